// Package stranger handles frames of people the recognizer did not match.
package stranger

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"homebot/internal/capability"
	"homebot/internal/eventbus"
	logx "homebot/pkg/logx"
)

const (
	spokenNotified = "I detected someone I don't recognize. The owner has been notified."
	spokenFailed   = "I detected an unknown person but couldn't notify the owner."
	captionFormat  = "Unknown person seen at %s"

	maxNameAttempts = 100
)

// Outcome is the payload of stranger.handled.
type Outcome struct {
	Path     string    `json:"path,omitempty"`
	At       time.Time `json:"at"`
	Notified bool      `json:"notified"`
	Error    string    `json:"error,omitempty"`
}

type Deps struct {
	Alerter capability.Alerter
	Speaker capability.Speaker
	Clock   capability.Clock
	Log     logx.Logger
	Bus     eventbus.Bus
}

// Handler saves the snapshot, alerts the owner and tells the room.
type Handler struct {
	deps Deps

	mu  sync.Mutex
	dir string
}

func New(deps Deps, snapshotDir string) *Handler {
	if deps.Clock == nil {
		deps.Clock = capability.SystemClock{}
	}
	if deps.Log.IsZero() {
		deps.Log = logx.Nop()
	}
	return &Handler{deps: deps, dir: snapshotDir}
}

func (h *Handler) SetSnapshotDir(dir string) {
	h.mu.Lock()
	h.dir = dir
	h.mu.Unlock()
}

func (h *Handler) snapshotDir() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dir
}

// Handle never panics and never returns an error; the outcome is reported
// through speech, logs and the event bus.
func (h *Handler) Handle(ctx context.Context, image []byte) (out Outcome) {
	out.At = h.deps.Clock.Now()
	defer func() {
		if r := recover(); r != nil {
			h.deps.Log.Error("unknown subject handler panic", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			out.Notified = false
			out.Error = fmt.Sprint(r)
		}
		eventbus.Emit(h.deps.Bus, eventbus.TypeStrangerHandled, out)
	}()

	if len(image) > 0 {
		path, err := saveSnapshot(h.snapshotDir(), out.At, image)
		if err != nil {
			h.deps.Log.Error("snapshot save failed", logx.Err(err))
			out.Error = err.Error()
		} else {
			out.Path = path
		}
	}

	out.Notified = h.notify(ctx, out, image)
	line := spokenFailed
	if out.Notified {
		line = spokenNotified
	}
	if h.deps.Speaker != nil {
		if err := h.deps.Speaker.Speak(ctx, line); err != nil {
			h.deps.Log.Warn("speak failed", logx.Err(err))
		}
	}
	h.deps.Log.Info("unknown subject handled", logx.String("path", out.Path), logx.Bool("notified", out.Notified))
	return out
}

// notify recovers alert-path panics as a failed delivery.
func (h *Handler) notify(ctx context.Context, out Outcome, image []byte) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			h.deps.Log.Error("owner alert panic", logx.Any("panic", r))
			ok = false
		}
	}()
	if h.deps.Alerter == nil {
		return false
	}
	caption := fmt.Sprintf(captionFormat, out.At.Format(time.RFC3339))
	var att *capability.Attachment
	if len(image) > 0 {
		att = &capability.Attachment{Filename: filepath.Base(out.Path), Data: image, Caption: caption}
	}
	return h.deps.Alerter.Notify(ctx, caption, att)
}

// saveSnapshot writes unknown_<unix>.jpg in dir, adding _<n> on collision.
func saveSnapshot(dir string, at time.Time, image []byte) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}
	base := fmt.Sprintf("unknown_%d", at.Unix())
	for n := 0; n < maxNameAttempts; n++ {
		name := base + ".jpg"
		if n > 0 {
			name = fmt.Sprintf("%s_%d.jpg", base, n)
		}
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create snapshot: %w", err)
		}
		_, werr := f.Write(image)
		cerr := f.Close()
		if err := errors.Join(werr, cerr); err != nil {
			_ = os.Remove(path)
			return "", fmt.Errorf("write snapshot: %w", err)
		}
		return path, nil
	}
	return "", fmt.Errorf("no free snapshot name for %s", base)
}
