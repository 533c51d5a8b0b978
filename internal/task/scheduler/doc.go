// Package scheduler arms triggers and hands the work to the task engine.
//
// Two kinds of trigger exist:
//   - once: a named one-shot timer (AddOnce). Re-arming a name replaces the timer.
//   - interval: a robfig/cron "@every" schedule (AddInterval).
//
// The scheduler never runs jobs itself; each trigger enqueues an engine.Task.
// Timers live in memory only and are rebuilt by the caller after a restart.
package scheduler
