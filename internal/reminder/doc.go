// Package reminder delivers persisted schedules.
//
// The store is the source of truth. Timers in the scheduler are a projection
// named "reminder-<id>" that Arm creates and the Sweeper rebuilds: on startup
// (Reconcile) and on every sweep tick for records that are already due.
// Dispatcher delivers one record at most once per process and relies on the
// store's conditional MarkDelivered across processes.
package reminder
