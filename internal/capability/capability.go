// Package capability declares the external collaborators the assistant core
// depends on. Concrete implementations live in voice, datetime, chat, notifier
// and users; tests substitute fakes.
package capability

import (
	"context"
	"time"
)

// Speaker turns text into speech. Calls block until playback finishes and
// implementations serialize concurrent callers.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Listener returns the next utterance. An empty string means nothing was said.
type Listener interface {
	Listen(ctx context.Context) (string, error)
}

// DateParser extracts an absolute date-time from free text, relative to now.
type DateParser interface {
	ParseDateTime(text string, now time.Time) (time.Time, bool)
}

// Attachment is an optional binary payload sent with an alert.
type Attachment struct {
	Filename string
	Data     []byte
	Caption  string
}

// Alerter delivers a message to the owner. It never panics and reports
// delivery with a boolean only.
type Alerter interface {
	Notify(ctx context.Context, msg string, att *Attachment) bool
}

// Responder answers free-form chat.
type Responder interface {
	Respond(ctx context.Context, text, userID string) (string, error)
}

// User is an entry of the authorized-user directory.
type User struct {
	ID      string
	Display string
}

// Directory resolves authorized users.
type Directory interface {
	Lookup(userID string) (User, bool)
}

// DisplayName returns the display name for userID, falling back to the id.
func DisplayName(d Directory, userID string) string {
	if d == nil {
		return userID
	}
	if u, ok := d.Lookup(userID); ok && u.Display != "" {
		return u.Display
	}
	return userID
}

// Clock abstracts time for session deadlines and reminder rendering.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Funcs adapts plain functions to the capability interfaces.
type (
	SpeakFunc   func(ctx context.Context, text string) error
	ListenFunc  func(ctx context.Context) (string, error)
	RespondFunc func(ctx context.Context, text, userID string) (string, error)
)

func (f SpeakFunc) Speak(ctx context.Context, text string) error { return f(ctx, text) }

func (f ListenFunc) Listen(ctx context.Context) (string, error) { return f(ctx) }

func (f RespondFunc) Respond(ctx context.Context, text, userID string) (string, error) {
	return f(ctx, text, userID)
}
