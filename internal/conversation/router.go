package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"homebot/internal/reminder"
	"homebot/internal/storage"
	logx "homebot/pkg/logx"
)

// Router acts on one classified utterance.
type Router struct {
	deps Deps
}

func NewRouter(deps Deps) *Router {
	return &Router{deps: deps}
}

// Handle routes text for sess and returns the intent it was classified as.
func (r *Router) Handle(ctx context.Context, sess *Session, set Settings, text string) Intent {
	intent := Classify(text)
	r.deps.Log.Debug("utterance routed", logx.String("session", sess.ID), logx.String("intent", string(intent)))
	switch intent {
	case IntentAddSchedule:
		r.addSchedule(ctx, sess, set, &pendingSlot{utterance: text})
	case IntentShowSchedule:
		r.showSchedule(ctx, sess, set)
	default:
		r.chat(ctx, sess, text)
	}
	return intent
}

func (r *Router) say(ctx context.Context, text string) {
	if err := r.deps.Speaker.Speak(ctx, text); err != nil {
		r.deps.Log.Warn("speak failed", logx.Err(err))
	}
}

func (r *Router) addSchedule(ctx context.Context, sess *Session, set Settings, slot *pendingSlot) {
	when, ok := r.deps.Parser.ParseDateTime(slot.utterance, r.deps.Clock.Now())
	if !ok && !slot.retried {
		slot.retried = true
		r.say(ctx, askWhen)
		follow, err := r.deps.Listener.Listen(ctx)
		if err != nil {
			r.deps.Log.Debug("clarification listen failed", logx.Err(err))
		}
		if follow = strings.TrimSpace(follow); err == nil && follow != "" {
			when, ok = r.deps.Parser.ParseDateTime(follow, r.deps.Clock.Now())
		}
	}
	if !ok {
		r.say(ctx, parseFailed)
		return
	}

	when = when.Truncate(time.Second)
	id, err := r.deps.Store.CreateSchedule(ctx, storage.NewSchedule{UserID: sess.UserID, Title: slot.utterance, When: when})
	if err != nil {
		r.deps.Log.Error("schedule create failed", logx.String("user", sess.UserID), logx.Err(err))
		r.say(ctx, saveFailed)
		return
	}
	if r.deps.Arm != nil {
		if err := r.deps.Arm.Arm(id, when); err != nil {
			// The record is durable; the next sweep arms it once due.
			r.deps.Log.Warn("schedule arm failed", logx.Int64("schedule_id", id), logx.Err(err))
		}
	}
	r.deps.Log.Info("schedule created", logx.Int64("schedule_id", id), logx.String("user", sess.UserID), logx.Time("when", when))
	r.say(ctx, fmt.Sprintf(scheduledFormat, slot.utterance, reminder.FormatWhen(when, set.Location)))
}

func (r *Router) showSchedule(ctx context.Context, sess *Session, set Settings) {
	items, err := r.deps.Store.ListUpcoming(ctx, sess.UserID, set.UpcomingLimit)
	if err != nil {
		r.deps.Log.Error("schedule list failed", logx.String("user", sess.UserID), logx.Err(err))
		r.say(ctx, loadFailed)
		return
	}
	if len(items) == 0 {
		r.say(ctx, noUpcoming)
		return
	}
	r.say(ctx, upcomingHeader)
	for _, it := range items {
		r.say(ctx, fmt.Sprintf(upcomingItemFormat, it.Title, reminder.FormatWhen(it.When, set.Location)))
	}
}

func (r *Router) chat(ctx context.Context, sess *Session, text string) {
	if r.deps.Responder == nil {
		r.say(ctx, chatFailed)
		return
	}
	reply, err := r.deps.Responder.Respond(ctx, text, sess.UserID)
	if err != nil {
		r.deps.Log.Warn("chat failed", logx.String("user", sess.UserID), logx.Err(err))
		r.say(ctx, chatFailed)
		return
	}
	r.say(ctx, reply)
}
