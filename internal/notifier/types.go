package notifier

import (
	"time"

	kit "homebot/internal/transport"
)

// Config controls owner alerts.
type Config struct {
	Target      kit.ChatTarget
	RatePerMin  int
	SendTimeout time.Duration
	HistorySize int
}

func (c Config) withDefaults() Config {
	if c.RatePerMin <= 0 {
		c.RatePerMin = 30
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 15 * time.Second
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 50
	}
	return c
}

type HistoryItem struct {
	At    time.Time `json:"at"`
	Text  string    `json:"text"`
	Photo bool      `json:"photo,omitempty"`
	Error string    `json:"error,omitempty"`
}

// NotificationEvent is emitted on the event bus for every alert attempt.
type NotificationEvent struct {
	Channel  string    `json:"channel"`
	ChatID   int64     `json:"chat_id"`
	ThreadID int       `json:"thread_id,omitempty"`
	At       time.Time `json:"at"`
	Photo    bool      `json:"photo,omitempty"`
	Error    string    `json:"error,omitempty"`
}
