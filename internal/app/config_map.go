package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"homebot/internal/capability"
	"homebot/internal/chat"
	"homebot/internal/config"
	"homebot/internal/conversation"
	"homebot/internal/ingest"
	"homebot/internal/notifier"
	"homebot/internal/storage"
	"homebot/internal/task/engine"
	"homebot/internal/task/scheduler"
	kit "homebot/internal/transport"
	"homebot/internal/voice"
	logx "homebot/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Owner: logx.OwnerConfig{
			Enabled:    cfg.Logging.Owner.Enabled,
			MinLevel:   cfg.Logging.Owner.MinLevel,
			RatePerMin: cfg.Logging.Owner.RatePerMin,
		},
	}
}

// MapStorageConfig resolves the storage section. Exported for the CLI.
func MapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)
	switch driver {
	case "", "sqlite", "sqlite3":
		driver = "sqlite"
		if path == "" {
			path = "./homebot.db"
		}
	case "bolt", "bbolt":
		driver = "bolt"
		if path == "" {
			path = "./homebot.bolt"
		}
	case "postgres", "postgresql", "pgx":
		driver = "postgres"
		if strings.TrimSpace(sc.DSN) == "" {
			return storage.Config{}, fmt.Errorf("storage.dsn is required when storage.driver=postgres")
		}
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
	busy, err := config.ParseDurationField("storage.busy_timeout", sc.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Driver: driver, Path: path, DSN: sc.DSN, BusyTimeout: busy}, nil
}

func mapTaskEngineConfig(cfg *config.Config) (engine.Config, error) {
	out := engine.Config{Enabled: true}
	te := cfg.TaskEngine
	if te == nil {
		return out, nil
	}
	if te.Workers < 0 || te.QueueSize < 0 || te.HistorySize < 0 || te.RetryMax < 0 {
		return engine.Config{}, fmt.Errorf("task_engine: workers, queue_size, history_size and retry_max must be >= 0")
	}
	def, err := config.ParseDurationField("task_engine.default_timeout", te.DefaultTimeout)
	if err != nil {
		return engine.Config{}, err
	}
	out.Workers = te.Workers
	out.QueueSize = te.QueueSize
	out.HistorySize = te.HistorySize
	out.RetryMax = te.RetryMax
	out.DefaultTimeout = def
	return out, nil
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{Timezone: strings.TrimSpace(cfg.Assistant.Timezone)}
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	send, err := config.ParseDurationField("alerts.send_timeout", cfg.Alerts.SendTimeout)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		Target:      kit.ChatTarget{ChatID: cfg.Telegram.OwnerChatID, ThreadID: cfg.Telegram.ThreadID},
		RatePerMin:  cfg.Alerts.RatePerMin,
		SendTimeout: send,
	}, nil
}

func mapIngestConfig(cfg *config.Config) (ingest.Config, error) {
	ic := cfg.Ingest
	rt, err := config.ParseDurationField("ingest.read_timeout", ic.ReadTimeout)
	if err != nil {
		return ingest.Config{}, err
	}
	wt, err := config.ParseDurationField("ingest.write_timeout", ic.WriteTimeout)
	if err != nil {
		return ingest.Config{}, err
	}
	return ingest.Config{
		Enabled:       ic.Enabled,
		Addr:          strings.TrimSpace(ic.Addr),
		Token:         strings.TrimSpace(ic.Token),
		AllowInsecure: ic.AllowInsecure,
		MaxImageBytes: ic.MaxImageBytes,
		ReadTimeout:   rt,
		WriteTimeout:  wt,
	}, nil
}

func mapChatConfig(cfg *config.Config) (chat.Config, error) {
	cc := cfg.Chat
	timeout, err := config.ParseDurationField("chat.timeout", cc.Timeout)
	if err != nil {
		return chat.Config{}, err
	}
	return chat.Config{
		Provider:     cc.Provider,
		Model:        cc.Model,
		APIKey:       cc.APIKey,
		BaseURL:      cc.BaseURL,
		SystemPrompt: cc.SystemPrompt,
		MaxTokens:    int64(cc.MaxTokens),
		Temperature:  cc.Temperature,
		Timeout:      timeout,
	}, nil
}

func mapSessionSettings(cfg *config.Config) (conversation.Settings, config.AssistantSettings, error) {
	as, err := cfg.AssistantSettings()
	if err != nil {
		return conversation.Settings{}, as, err
	}
	return conversation.Settings{
		SessionTimeout: as.SessionTimeout,
		UpcomingLimit:  as.UpcomingLimit,
		Location:       as.Location,
	}, as, nil
}

func userDisplayMap(cfg *config.Config) map[string]string {
	out := make(map[string]string, len(cfg.Users))
	for id, u := range cfg.Users {
		out[strings.TrimSpace(id)] = strings.TrimSpace(u.Display)
	}
	return out
}

func buildSpeaker(cfg *config.Config, log logx.Logger) (capability.Speaker, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Voice.Speaker)) {
	case "", "console":
		return voice.NewConsoleSpeaker(os.Stdout), nil
	case "command":
		return voice.NewCommandSpeaker(cfg.Voice.SpeakCommand, log)
	default:
		return nil, fmt.Errorf("voice.speaker: unknown speaker %q", cfg.Voice.Speaker)
	}
}

func buildListener(cfg *config.Config) (capability.Listener, error) {
	timeout, err := config.ParseDurationOrDefault("voice.listen_timeout", cfg.Voice.ListenTimeout, config.DefaultListenTimeout)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Voice.Listener)) {
	case "", "console":
		return voice.NewConsoleListener(os.Stdin, os.Stdout, timeout), nil
	default:
		return nil, fmt.Errorf("voice.listener: unknown listener %q", cfg.Voice.Listener)
	}
}

// validateReload rejects a hot reload that could not be applied.
func validateReload(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if _, err := mapTaskEngineConfig(cfg); err != nil {
		return err
	}
	if _, err := mapNotifierConfig(cfg); err != nil {
		return err
	}
	if _, err := mapIngestConfig(cfg); err != nil {
		return err
	}
	if _, err := MapStorageConfig(cfg); err != nil {
		return err
	}
	return nil
}

const defaultStopBudget = 10 * time.Second
