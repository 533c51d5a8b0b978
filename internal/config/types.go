package config

type Config struct {
	Assistant AssistantConfig       `json:"assistant"`
	Users     map[string]UserConfig `json:"users"`
	Reminders RemindersConfig       `json:"reminders"`

	// TaskEngine controls the worker pool that executes reminder deliveries.
	TaskEngine *TaskEngineConfig `json:"task_engine,omitempty"`

	Storage  StorageConfig  `json:"storage"`
	Telegram TelegramConfig `json:"telegram"`
	Alerts   AlertsConfig   `json:"alerts"`
	Voice    VoiceConfig    `json:"voice"`
	Chat     ChatConfig     `json:"chat"`
	Ingest   IngestConfig   `json:"ingest"`
	Logging  LoggingConfig  `json:"logging"`
}

// AssistantConfig controls conversation sessions.
//
// Defaults:
//   - session_timeout: "90s"
//   - upcoming_limit: 10
//   - timezone: local
//   - snapshot_dir: "./captured"
type AssistantConfig struct {
	SessionTimeout string `json:"session_timeout,omitempty"`
	UpcomingLimit  int    `json:"upcoming_limit,omitempty"`
	Timezone       string `json:"timezone,omitempty"`
	SnapshotDir    string `json:"snapshot_dir,omitempty"`
}

// UserConfig is one entry of the authorized-user directory, keyed by user id.
type UserConfig struct {
	Display string `json:"display"`
}

// RemindersConfig controls the recovery sweep.
type RemindersConfig struct {
	// SweepInterval is a Go duration string. Default "60s".
	SweepInterval string `json:"sweep_interval,omitempty"`
	// DispatchTimeout bounds one delivery (speak + alert + mark). Default "2m".
	DispatchTimeout string `json:"dispatch_timeout,omitempty"`
}

// TaskEngineConfig controls the task execution engine.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
//
// Defaults (when fields are omitted/zero):
//   - workers: 2
//   - queue_size: 256
//   - default_timeout: "0s" (disabled)
//   - history_size: 200
//   - retry_max: 3
type TaskEngineConfig struct {
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
	RetryMax       int    `json:"retry_max,omitempty"`
}

// StorageConfig selects the schedule store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./homebot.db" }
//
// Drivers: "sqlite" (default), "postgres" (dsn), "bolt" (path).
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`          // postgres; never logged
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite
}

type TelegramConfig struct {
	Token string `json:"token"`
	// OwnerChatID receives reminders, unknown-subject photos and error logs.
	OwnerChatID int64 `json:"owner_chat_id"`
	ThreadID    int   `json:"thread_id,omitempty"`
}

// AlertsConfig bounds outbound owner alerts.
type AlertsConfig struct {
	RatePerMin  int    `json:"rate_per_min,omitempty"`
	SendTimeout string `json:"send_timeout,omitempty"`
}

// VoiceConfig selects speech sinks and sources.
//
// speaker: "console" (default) or "command" (runs speak_command with the text as last arg).
// listener: "console" (default, reads stdin lines).
type VoiceConfig struct {
	Speaker       string   `json:"speaker,omitempty"`
	SpeakCommand  []string `json:"speak_command,omitempty"`
	Listener      string   `json:"listener,omitempty"`
	ListenTimeout string   `json:"listen_timeout,omitempty"`
}

// ChatConfig selects the chat responder.
//
// provider: "echo" (default), "openai", "anthropic", "ollama".
type ChatConfig struct {
	Provider     string  `json:"provider,omitempty"`
	Model        string  `json:"model,omitempty"`
	APIKey       string  `json:"api_key,omitempty"`
	BaseURL      string  `json:"base_url,omitempty"`
	SystemPrompt string  `json:"system_prompt,omitempty"`
	MaxTokens    int     `json:"max_tokens,omitempty"`
	Temperature  float64 `json:"temperature,omitempty"`
	Timeout      string  `json:"timeout,omitempty"`
}

// IngestConfig controls the recognition-event HTTP server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:8085").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type IngestConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"` // never logged
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	MaxImageBytes int64  `json:"max_image_bytes,omitempty"`
	ReadTimeout   string `json:"read_timeout,omitempty"`
	WriteTimeout  string `json:"write_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string       `json:"level"`
	Console bool         `json:"console"`
	File    LoggingFile  `json:"file"`
	Owner   LoggingOwner `json:"owner"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingOwner struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerMin int    `json:"rate_per_min"`
}
