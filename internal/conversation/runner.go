package conversation

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"homebot/internal/capability"
	"homebot/internal/eventbus"
	logx "homebot/pkg/logx"
)

// Runner drives sessions. One Runner serves every user; each Run call owns
// its own Session.
type Runner struct {
	deps   Deps
	router *Router

	mu  sync.RWMutex
	set Settings
}

func NewRunner(deps Deps, set Settings) *Runner {
	if deps.Clock == nil {
		deps.Clock = capability.SystemClock{}
	}
	if deps.Log.IsZero() {
		deps.Log = logx.Nop()
	}
	return &Runner{deps: deps, router: NewRouter(deps), set: set.withDefaults()}
}

// Apply swaps the settings used by sessions started afterwards.
func (r *Runner) Apply(set Settings) {
	r.mu.Lock()
	r.set = set.withDefaults()
	r.mu.Unlock()
}

func (r *Runner) settings() Settings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.set
}

// Run holds a full session with userID and returns when it ends.
func (r *Runner) Run(ctx context.Context, userID string) Result {
	set := r.settings()
	now := r.deps.Clock.Now()
	sess := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Display:   capability.DisplayName(r.deps.Directory, userID),
		StartedAt: now,
		Deadline:  now.Add(set.SessionTimeout),
		State:     StateGreeting,
	}
	log := r.deps.Log.With(logx.String("session", sess.ID), logx.String("user", userID))
	log.Info("session started", logx.Time("deadline", sess.Deadline))
	eventbus.Emit(r.deps.Bus, eventbus.TypeSessionStarted, Result{SessionID: sess.ID, UserID: userID})

	r.router.say(ctx, fmt.Sprintf(greetingFormat, sess.Display))

	turns := 0
	reason := r.loop(ctx, sess, set, log, &turns)
	sess.State = StateEnded

	res := Result{SessionID: sess.ID, UserID: userID, Turns: turns, Reason: reason, Duration: r.deps.Clock.Now().Sub(sess.StartedAt)}
	log.Info("session ended", logx.String("reason", string(reason)), logx.Int("turns", turns), logx.Duration("dur", res.Duration))
	eventbus.Emit(r.deps.Bus, eventbus.TypeSessionEnded, res)
	return res
}

func (r *Runner) loop(ctx context.Context, sess *Session, set Settings, log logx.Logger, turns *int) EndReason {
	for {
		sess.State = StateListening
		if ctx.Err() != nil {
			return EndCanceled
		}
		// The deadline is checked between turns only; a listen in progress is not cut short.
		if !r.deps.Clock.Now().Before(sess.Deadline) {
			return EndTimeout
		}
		text, err := r.deps.Listener.Listen(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return EndCanceled
			}
			log.Warn("listen failed", logx.Err(err))
			return EndListenError
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return EndSilence
		}

		sess.State = StateRouting
		r.router.Handle(ctx, sess, set, text)
		*turns++
	}
}
