package conversation

import (
	"time"

	"homebot/internal/capability"
	"homebot/internal/eventbus"
	"homebot/internal/reminder"
	"homebot/internal/storage"
	logx "homebot/pkg/logx"
)

// Spoken lines.
const (
	greetingFormat     = "Hi %s, nice to see you. How can I help?"
	askWhen            = "When should I remind you? Please say a date and time."
	parseFailed        = "I couldn't understand the time."
	scheduledFormat    = "Okay, scheduled: %s at %s"
	saveFailed         = "Sorry, I couldn't save that reminder."
	loadFailed         = "Sorry, I couldn't load your schedules."
	noUpcoming         = "You have no upcoming schedules."
	upcomingHeader     = "Here are your upcoming items:"
	upcomingItemFormat = "%s at %s"
	chatFailed         = "Sorry, I can't answer that right now."
)

// State is a session's position in the conversation loop.
type State int

const (
	StateGreeting State = iota
	StateListening
	StateRouting
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateGreeting:
		return "greeting"
	case StateListening:
		return "listening"
	case StateRouting:
		return "routing"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// EndReason says why a session ended.
type EndReason string

const (
	EndTimeout     EndReason = "timeout"
	EndSilence     EndReason = "silence"
	EndListenError EndReason = "listen_error"
	EndCanceled    EndReason = "canceled"
)

// Session is the ephemeral state of one conversation.
type Session struct {
	ID        string
	UserID    string
	Display   string
	StartedAt time.Time
	Deadline  time.Time
	State     State
}

// pendingSlot carries an add-schedule utterance while the time is asked for once.
type pendingSlot struct {
	utterance string
	retried   bool
}

// Settings are the live-reloadable session knobs.
type Settings struct {
	SessionTimeout time.Duration
	UpcomingLimit  int
	Location       *time.Location
}

func (s Settings) withDefaults() Settings {
	if s.SessionTimeout <= 0 {
		s.SessionTimeout = 90 * time.Second
	}
	if s.UpcomingLimit <= 0 {
		s.UpcomingLimit = 10
	}
	if s.Location == nil {
		s.Location = time.Local
	}
	return s
}

// Deps are the capabilities a session runs on.
type Deps struct {
	Store     storage.Store
	Arm       reminder.Arming
	Speaker   capability.Speaker
	Listener  capability.Listener
	Parser    capability.DateParser
	Responder capability.Responder
	Directory capability.Directory
	Clock     capability.Clock
	Log       logx.Logger
	Bus       eventbus.Bus
}

// Result summarizes a finished session.
type Result struct {
	SessionID string        `json:"session_id"`
	UserID    string        `json:"user_id"`
	Turns     int           `json:"turns"`
	Reason    EndReason     `json:"reason"`
	Duration  time.Duration `json:"duration"`
}
