package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrStorage classifies every failure returned by a Store.
var ErrStorage = errors.New("storage error")

// OpError wraps a driver failure with the operation that triggered it.
// errors.Is(err, ErrStorage) holds for every OpError.
type OpError struct {
	Op  string
	ID  int64
	Err error
}

func (e *OpError) Error() string {
	if e.ID != 0 {
		return fmt.Sprintf("storage %s (id=%d): %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

func (e *OpError) Is(target error) bool { return target == ErrStorage }

func opErr(op string, id int64, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, ID: id, Err: err}
}

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (default)
//   - "postgres": PostgreSQL via DSN
//   - "bolt": bbolt key/value file
type Config struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Schedule is one persisted reminder. When has second precision and never
// changes after creation. Delivered flips false to true at most once.
type Schedule struct {
	ID        int64
	UserID    string
	Title     string
	Notes     string
	When      time.Time
	Delivered bool
}

// NewSchedule is the input to CreateSchedule.
type NewSchedule struct {
	UserID string
	Title  string
	Notes  string
	When   time.Time
}

// Store is the durable schedule table. Implementations are safe for
// concurrent use; every method is atomic for the record it touches.
type Store interface {
	CreateSchedule(ctx context.Context, in NewSchedule) (int64, error)
	GetSchedule(ctx context.Context, id int64) (Schedule, bool, error)
	// MarkDelivered reports whether this call flipped the flag. Repeated
	// calls on a delivered record return (false, nil).
	MarkDelivered(ctx context.Context, id int64) (bool, error)
	// ListUpcoming returns the user's undelivered schedules ascending by When.
	// Overdue records still waiting for delivery are included and sort first.
	ListUpcoming(ctx context.Context, userID string, limit int) ([]Schedule, error)
	// ListDueUndelivered returns ids with When <= now that are not delivered.
	ListDueUndelivered(ctx context.Context, now time.Time) ([]int64, error)
	// ListUndelivered returns every undelivered schedule ascending by When.
	ListUndelivered(ctx context.Context) ([]Schedule, error)
	Close() error
}

const (
	defaultBusyTimeout = time.Second
	maxListLimit       = 1000
)

func normLimit(limit int) int {
	if limit <= 0 || limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func whenTS(t time.Time) int64 { return t.Unix() }

func fromTS(ts int64) time.Time { return time.Unix(ts, 0) }
