package reminder

import (
	"context"
	"sync/atomic"
	"time"

	"homebot/internal/task/scheduler"
)

// Trigger is the subset of scheduler.Service used to arm reminders.
type Trigger interface {
	AddOnceOpt(name string, at time.Time, timeout time.Duration, opt scheduler.TaskOptions, job scheduler.Job) (string, error)
}

// Armer arms one-shot dispatch triggers.
type Armer struct {
	trigger Trigger
	disp    *Dispatcher
	timeout atomic.Int64
}

// NewArmer binds trigger to disp; timeout bounds one dispatch.
func NewArmer(trigger Trigger, disp *Dispatcher, timeout time.Duration) *Armer {
	a := &Armer{trigger: trigger, disp: disp}
	a.SetTimeout(timeout)
	return a
}

// SetTimeout changes the bound for reminders armed afterwards.
func (a *Armer) SetTimeout(d time.Duration) { a.timeout.Store(int64(d)) }

// Arm schedules delivery of id at `at`. Re-arming an id replaces its timer.
func (a *Armer) Arm(id int64, at time.Time) error {
	opt := scheduler.TaskOptions{Overlap: scheduler.OverlapSkipIfRunning}
	_, err := a.trigger.AddOnceOpt(JobName(id), at, time.Duration(a.timeout.Load()), opt, func(ctx context.Context) error {
		return a.disp.Dispatch(ctx, id)
	})
	return err
}
