package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Defaults applied when a field is omitted.
const (
	DefaultSessionTimeout  = 90 * time.Second
	DefaultSweepInterval   = 60 * time.Second
	DefaultUpcomingLimit   = 10
	DefaultDispatchTimeout = 2 * time.Minute
	DefaultListenTimeout   = 20 * time.Second
	DefaultSnapshotDir     = "./captured"
	DefaultIngestAddr      = "127.0.0.1:8085"
	DefaultMaxImageBytes   = 8 << 20
)

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// AssistantSettings is the resolved, typed form of the assistant section.
type AssistantSettings struct {
	SessionTimeout time.Duration
	UpcomingLimit  int
	Location       *time.Location
	SnapshotDir    string
}

func (c *Config) AssistantSettings() (AssistantSettings, error) {
	out := AssistantSettings{
		UpcomingLimit: c.Assistant.UpcomingLimit,
		SnapshotDir:   strings.TrimSpace(c.Assistant.SnapshotDir),
		Location:      time.Local,
	}
	var err error
	if out.SessionTimeout, err = ParseDurationOrDefault("assistant.session_timeout", c.Assistant.SessionTimeout, DefaultSessionTimeout); err != nil {
		return out, err
	}
	if out.UpcomingLimit <= 0 {
		out.UpcomingLimit = DefaultUpcomingLimit
	}
	if out.SnapshotDir == "" {
		out.SnapshotDir = DefaultSnapshotDir
	}
	if tz := strings.TrimSpace(c.Assistant.Timezone); tz != "" {
		loc, lerr := time.LoadLocation(tz)
		if lerr != nil {
			return out, fmt.Errorf("assistant.timezone: %w", lerr)
		}
		out.Location = loc
	}
	return out, nil
}

// SweepInterval returns reminders.sweep_interval or its default.
func (c *Config) SweepInterval() (time.Duration, error) {
	return ParseDurationOrDefault("reminders.sweep_interval", c.Reminders.SweepInterval, DefaultSweepInterval)
}

// DispatchTimeout returns reminders.dispatch_timeout or its default.
func (c *Config) DispatchTimeout() (time.Duration, error) {
	return ParseDurationOrDefault("reminders.dispatch_timeout", c.Reminders.DispatchTimeout, DefaultDispatchTimeout)
}

// Validate checks semantic constraints the strict decoder cannot express.
func (c *Config) Validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	_, err := c.AssistantSettings()
	add(err)
	_, err = c.SweepInterval()
	add(err)
	_, err = c.DispatchTimeout()
	add(err)
	_, err = ParseDurationField("voice.listen_timeout", c.Voice.ListenTimeout)
	add(err)
	_, err = ParseDurationField("alerts.send_timeout", c.Alerts.SendTimeout)
	add(err)
	_, err = ParseDurationField("chat.timeout", c.Chat.Timeout)
	add(err)
	_, err = ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout)
	add(err)
	if c.TaskEngine != nil {
		_, err = ParseDurationField("task_engine.default_timeout", c.TaskEngine.DefaultTimeout)
		add(err)
	}

	if len(c.Users) == 0 {
		add(errors.New("users: at least one authorized user is required"))
	}
	for id := range c.Users {
		if strings.TrimSpace(id) == "" {
			add(errors.New("users: empty user id"))
		}
	}

	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "sqlite", "bolt":
	case "postgres":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			add(errors.New("storage.dsn: required for postgres driver"))
		}
	default:
		add(fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}

	if strings.TrimSpace(c.Telegram.Token) != "" && c.Telegram.OwnerChatID == 0 {
		add(errors.New("telegram.owner_chat_id: required when telegram.token is set"))
	}

	switch strings.ToLower(strings.TrimSpace(c.Voice.Speaker)) {
	case "", "console":
	case "command":
		if len(c.Voice.SpeakCommand) == 0 {
			add(errors.New("voice.speak_command: required for command speaker"))
		}
	default:
		add(fmt.Errorf("voice.speaker: unknown speaker %q", c.Voice.Speaker))
	}

	switch strings.ToLower(strings.TrimSpace(c.Chat.Provider)) {
	case "", "echo", "ollama":
	case "openai", "anthropic":
		if strings.TrimSpace(c.Chat.APIKey) == "" {
			add(fmt.Errorf("chat.api_key: required for %s provider", c.Chat.Provider))
		}
	default:
		add(fmt.Errorf("chat.provider: unknown provider %q", c.Chat.Provider))
	}

	if c.Ingest.Enabled {
		addr := strings.TrimSpace(c.Ingest.Addr)
		if addr == "" {
			addr = DefaultIngestAddr
		}
		if !IsLoopbackAddr(addr) && strings.TrimSpace(c.Ingest.Token) == "" && !c.Ingest.AllowInsecure {
			add(fmt.Errorf("ingest.addr %q is not loopback: set ingest.token or allow_insecure", addr))
		}
	}

	return errors.Join(errs...)
}

// IsLoopbackAddr reports whether a listen address binds to loopback only.
func IsLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
