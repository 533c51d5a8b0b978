// Package assistant routes recognition events to conversation sessions and
// the unknown-subject handler. Every entry point returns immediately; the work
// runs on the assistant's supervisor.
package assistant

import (
	"context"
	"errors"
	"sort"
	"sync"

	"homebot/internal/capability"
	"homebot/internal/conversation"
	rtsup "homebot/internal/runtime/supervisor"
	"homebot/internal/stranger"
	logx "homebot/pkg/logx"
)

var (
	ErrUnauthorized  = errors.New("assistant: user is not authorized")
	ErrSessionActive = errors.New("assistant: session already active for user")
	ErrStopped       = errors.New("assistant: stopped")
	ErrEmptyImage    = errors.New("assistant: empty image")
)

// SessionRunner is satisfied by *conversation.Runner.
type SessionRunner interface {
	Run(ctx context.Context, userID string) conversation.Result
}

// StrangerHandler is satisfied by *stranger.Handler.
type StrangerHandler interface {
	Handle(ctx context.Context, image []byte) stranger.Outcome
}

type Assistant struct {
	dir      capability.Directory
	sessions SessionRunner
	stranger StrangerHandler
	log      logx.Logger
	sup      *rtsup.Supervisor

	mu      sync.Mutex
	active  map[string]struct{}
	stopped bool
}

func New(ctx context.Context, dir capability.Directory, sessions SessionRunner, sh StrangerHandler, log logx.Logger) *Assistant {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "assistant"))
	return &Assistant{
		dir:      dir,
		sessions: sessions,
		stranger: sh,
		log:      log,
		sup:      rtsup.NewSupervisor(ctx, rtsup.WithLogger(log), rtsup.WithCancelOnError(false)),
		active:   map[string]struct{}{},
	}
}

// OnAuthorizedUser starts a session for userID. A user already in a session
// gets ErrSessionActive and the event is dropped.
func (a *Assistant) OnAuthorizedUser(userID string) error {
	if a.dir == nil {
		return ErrUnauthorized
	}
	if _, ok := a.dir.Lookup(userID); !ok {
		a.log.Warn("recognition event for unknown user id", logx.String("user", userID))
		return ErrUnauthorized
	}

	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return ErrStopped
	}
	if _, busy := a.active[userID]; busy {
		a.mu.Unlock()
		a.log.Debug("session already active", logx.String("user", userID))
		return ErrSessionActive
	}
	a.active[userID] = struct{}{}
	a.mu.Unlock()

	a.sup.Go0("session."+userID, func(ctx context.Context) {
		defer a.release(userID)
		a.sessions.Run(ctx, userID)
	})
	return nil
}

func (a *Assistant) release(userID string) {
	a.mu.Lock()
	delete(a.active, userID)
	a.mu.Unlock()
}

// OnUnknownSubject hands a copy of image to the stranger handler.
func (a *Assistant) OnUnknownSubject(image []byte) error {
	if len(image) == 0 {
		return ErrEmptyImage
	}
	a.mu.Lock()
	stopped := a.stopped
	a.mu.Unlock()
	if stopped {
		return ErrStopped
	}

	frame := append([]byte(nil), image...)
	a.sup.Go0("stranger", func(ctx context.Context) {
		a.stranger.Handle(ctx, frame)
	})
	return nil
}

// ActiveSessions lists the users currently in a session, sorted.
func (a *Assistant) ActiveSessions() []string {
	a.mu.Lock()
	out := make([]string, 0, len(a.active))
	for id := range a.active {
		out = append(out, id)
	}
	a.mu.Unlock()
	sort.Strings(out)
	return out
}

func (a *Assistant) Supervisor() *rtsup.Supervisor { return a.sup }

// Stop rejects new events, cancels running sessions and waits for them.
func (a *Assistant) Stop(ctx context.Context) error {
	a.mu.Lock()
	a.stopped = true
	a.mu.Unlock()

	a.sup.Cancel()
	return a.sup.Wait(ctx)
}
