package config

import (
	"reflect"
	"sort"
	"strings"

	logx "homebot/pkg/logx"
)

// Sections whose changes are applied without a restart.
var liveSections = map[string]bool{
	"assistant":   true,
	"users":       true,
	"reminders":   true,
	"alerts":      true,
	"task_engine": true,
	"logging":     true,
}

// SummarizeConfigChange returns the sorted list of changed sections, safe
// structured attrs for logging (never secrets), and the subset of changed
// sections that only take effect after a restart.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Assistant != newCfg.Assistant {
		changed = append(changed, "assistant")
		attrs = append(attrs,
			logx.String("assistant.session_timeout", newCfg.Assistant.SessionTimeout),
			logx.Int("assistant.upcoming_limit", newCfg.Assistant.UpcomingLimit),
			logx.String("assistant.timezone", newCfg.Assistant.Timezone),
		)
	}
	if !reflect.DeepEqual(oldCfg.Users, newCfg.Users) {
		changed = append(changed, "users")
		attrs = append(attrs, logx.Int("users.count", len(newCfg.Users)))
	}
	if oldCfg.Reminders != newCfg.Reminders {
		changed = append(changed, "reminders")
		attrs = append(attrs, logx.String("reminders.sweep_interval", newCfg.Reminders.SweepInterval))
	}
	if !reflect.DeepEqual(oldCfg.TaskEngine, newCfg.TaskEngine) {
		changed = append(changed, "task_engine")
	}

	// Storage: never log the DSN.
	if oldCfg.Storage.Driver != newCfg.Storage.Driver ||
		oldCfg.Storage.Path != newCfg.Storage.Path ||
		oldCfg.Storage.BusyTimeout != newCfg.Storage.BusyTimeout ||
		oldCfg.Storage.DSN != newCfg.Storage.DSN {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.Bool("storage.dsn_set", strings.TrimSpace(newCfg.Storage.DSN) != ""),
		)
	}

	// Telegram: never log the token.
	if oldCfg.Telegram != newCfg.Telegram {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_set", strings.TrimSpace(newCfg.Telegram.Token) != ""),
			logx.Int64("telegram.owner_chat_id", newCfg.Telegram.OwnerChatID),
		)
	}
	if oldCfg.Alerts != newCfg.Alerts {
		changed = append(changed, "alerts")
		attrs = append(attrs, logx.Int("alerts.rate_per_min", newCfg.Alerts.RatePerMin))
	}
	if !reflect.DeepEqual(oldCfg.Voice, newCfg.Voice) {
		changed = append(changed, "voice")
		attrs = append(attrs, logx.String("voice.speaker", newCfg.Voice.Speaker))
	}

	// Chat: never log the api key.
	oc, nc := oldCfg.Chat, newCfg.Chat
	if oc != nc {
		changed = append(changed, "chat")
		attrs = append(attrs,
			logx.String("chat.provider", nc.Provider),
			logx.String("chat.model", nc.Model),
			logx.Bool("chat.api_key_set", strings.TrimSpace(nc.APIKey) != ""),
		)
	}

	if oldCfg.Ingest != newCfg.Ingest {
		changed = append(changed, "ingest")
		attrs = append(attrs,
			logx.Bool("ingest.enabled", newCfg.Ingest.Enabled),
			logx.String("ingest.addr", newCfg.Ingest.Addr),
			logx.Bool("ingest.token_set", strings.TrimSpace(newCfg.Ingest.Token) != ""),
		)
	}
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.owner_enabled", newCfg.Logging.Owner.Enabled),
		)
	}

	sort.Strings(changed)
	restart := make([]string, 0, len(changed))
	for _, s := range changed {
		if !liveSections[s] {
			restart = append(restart, s)
		}
	}
	return changed, attrs, restart
}
