package reminder

import (
	"context"
	"time"

	"homebot/internal/capability"
	"homebot/internal/storage"
	"homebot/internal/task/scheduler"
	logx "homebot/pkg/logx"
)

// SweepJobName is the interval trigger that runs Sweep.
const SweepJobName = "reminder.sweep"

// Arming arms a dispatch for id at the given time.
type Arming interface {
	Arm(id int64, at time.Time) error
}

// Sweeper re-arms schedules the in-memory timers may have missed.
type Sweeper struct {
	store storage.Store
	arm   Arming
	clock capability.Clock
	log   logx.Logger
}

// NewSweeper arms due schedules through arm. A nil clock means wall time.
func NewSweeper(store storage.Store, arm Arming, clock capability.Clock, log logx.Logger) *Sweeper {
	if clock == nil {
		clock = capability.SystemClock{}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sweeper{store: store, arm: arm, clock: clock, log: log}
}

// Sweep arms every due, undelivered schedule to fire now. A failure on one
// id is logged and the rest are still armed; a failed query aborts the tick.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := s.clock.Now()
	ids, err := s.store.ListDueUndelivered(ctx, now)
	if err != nil {
		s.log.Warn("sweep query failed", logx.Err(err))
		return 0, err
	}
	armed := 0
	for _, id := range ids {
		if err := s.arm.Arm(id, now); err != nil {
			s.log.Warn("sweep arm failed", logx.Int64("schedule_id", id), logx.Err(err))
			continue
		}
		armed++
	}
	if len(ids) > 0 {
		s.log.Info("sweep armed due reminders", logx.Int("due", len(ids)), logx.Int("armed", armed))
	}
	return armed, nil
}

// Reconcile arms every undelivered schedule at its own time (due ones fire
// immediately), rebuilding the timer projection after a restart.
func (s *Sweeper) Reconcile(ctx context.Context) (int, error) {
	list, err := s.store.ListUndelivered(ctx)
	if err != nil {
		s.log.Warn("reconcile query failed", logx.Err(err))
		return 0, err
	}
	armed := 0
	for _, sc := range list {
		if err := s.arm.Arm(sc.ID, sc.When); err != nil {
			s.log.Warn("reconcile arm failed", logx.Int64("schedule_id", sc.ID), logx.Err(err))
			continue
		}
		armed++
	}
	s.log.Info("reminders reconciled", logx.Int("undelivered", len(list)), logx.Int("armed", armed))
	return armed, nil
}

// Startup runs once when the service starts: Reconcile, falling back to a
// plain Sweep if the full listing fails.
func (s *Sweeper) Startup(ctx context.Context) error {
	if _, err := s.Reconcile(ctx); err == nil {
		return nil
	}
	_, err := s.Sweep(ctx)
	return err
}

// Interval is the subset of scheduler.Service used to register the sweep.
type Interval interface {
	AddIntervalOpt(name string, every, timeout time.Duration, opt scheduler.TaskOptions, job scheduler.Job) (string, error)
}

// Register installs the periodic sweep. A failed tick is not retried; the
// next tick covers it.
func (s *Sweeper) Register(sched Interval, every time.Duration) error {
	opt := scheduler.TaskOptions{Overlap: scheduler.OverlapSkipIfRunning, RetryMax: -1}
	_, err := sched.AddIntervalOpt(SweepJobName, every, every, opt, func(ctx context.Context) error {
		_, err := s.Sweep(ctx)
		return err
	})
	return err
}
