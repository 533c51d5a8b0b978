// Package storage persists reminder schedules.
//
// The schedules table is the only durable state homebot owns. Timers armed
// in the scheduler are a projection of it and are rebuilt on startup.
//
// Drivers:
//   - sqlite (modernc.org/sqlite, embedded migrations)
//   - postgres (pgx/v5 pool)
//   - bolt (bbolt bucket of JSON records)
package storage
