package reminder

import (
	"context"
	"sync/atomic"
	"time"

	"homebot/internal/capability"
	"homebot/internal/eventbus"
	"homebot/internal/storage"
	"homebot/internal/task/engine"
	logx "homebot/pkg/logx"
)

const markTimeout = 10 * time.Second

// FiredEvent is the payload of reminder.fired.
type FiredEvent struct {
	ID      int64     `json:"id"`
	UserID  string    `json:"user_id"`
	Title   string    `json:"title"`
	When    time.Time `json:"when"`
	Alerted bool      `json:"alerted"`
}

// SkippedEvent is the payload of reminder.skipped.
type SkippedEvent struct {
	ID     int64  `json:"id"`
	Reason string `json:"reason"` // "missing" or "delivered"
}

// DispatcherDeps are the collaborators of a Dispatcher. Log and Bus may be zero.
type DispatcherDeps struct {
	Store     storage.Store
	Speaker   capability.Speaker
	Alerter   capability.Alerter
	Directory capability.Directory
	Location  *time.Location
	Log       logx.Logger
	Bus       eventbus.Bus
}

// Dispatcher speaks, alerts and marks a due schedule.
type Dispatcher struct {
	store   storage.Store
	speaker capability.Speaker
	alerter capability.Alerter
	dir     capability.Directory
	loc     atomic.Pointer[time.Location]
	log     logx.Logger
	bus     eventbus.Bus

	locks keyedMutex
}

// NewDispatcher renders times in d.Location (Local when nil).
func NewDispatcher(d DispatcherDeps) *Dispatcher {
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	disp := &Dispatcher{
		store:   d.Store,
		speaker: d.Speaker,
		alerter: d.Alerter,
		dir:     d.Directory,
		log:     d.Log,
		bus:     d.Bus,
	}
	disp.SetLocation(d.Location)
	return disp
}

// SetLocation changes the timezone used to render reminder times.
func (d *Dispatcher) SetLocation(loc *time.Location) {
	if loc == nil {
		loc = time.Local
	}
	d.loc.Store(loc)
}

// Dispatch delivers schedule id unless it is missing or already delivered.
//
// Errors before speaking are plain (the engine may retry). Once the reminder
// has been spoken every error is wrapped with engine.NoRetry; the sweeper is
// the recovery path for a record that could not be marked.
func (d *Dispatcher) Dispatch(ctx context.Context, id int64) error {
	unlock := d.locks.Lock(id)
	defer unlock()

	log := d.log.With(logx.Int64("schedule_id", id))
	s, ok, err := d.store.GetSchedule(ctx, id)
	if err != nil {
		log.Warn("reminder load failed", logx.Err(err))
		return err
	}
	if !ok {
		log.Debug("reminder skipped: record missing")
		eventbus.Emit(d.bus, eventbus.TypeReminderSkipped, SkippedEvent{ID: id, Reason: "missing"})
		return nil
	}
	if s.Delivered {
		log.Debug("reminder skipped: already delivered")
		eventbus.Emit(d.bus, eventbus.TypeReminderSkipped, SkippedEvent{ID: id, Reason: "delivered"})
		return nil
	}

	msg := Message(capability.DisplayName(d.dir, s.UserID), s, d.loc.Load())
	if d.speaker != nil {
		if err := d.speaker.Speak(ctx, msg); err != nil {
			log.Warn("reminder speak failed", logx.Err(err))
		}
	}
	alerted := false
	if d.alerter != nil {
		alerted = d.alerter.Notify(ctx, "[Reminder] "+msg, nil)
	}
	if !alerted {
		log.Warn("reminder alert not delivered", logx.String("user", s.UserID))
	}

	// The reminder has been spoken; marking must not be lost to a spent deadline.
	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), markTimeout)
	defer cancel()
	if _, err := d.store.MarkDelivered(markCtx, id); err != nil {
		log.Error("reminder mark delivered failed", logx.Err(err))
		return engine.NoRetry(err)
	}

	log.Info("reminder delivered", logx.String("user", s.UserID), logx.Time("when", s.When), logx.Bool("alerted", alerted))
	eventbus.Emit(d.bus, eventbus.TypeReminderFired, FiredEvent{ID: id, UserID: s.UserID, Title: s.Title, When: s.When, Alerted: alerted})
	return nil
}
