package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"homebot/internal/task/engine"
	logx "homebot/pkg/logx"
)

// Config controls the trigger service.
type Config struct {
	Timezone string // IANA TZ, e.g. "Europe/Berlin"; empty means Local
}

// Executor receives triggered tasks. *engine.Service satisfies it.
type Executor interface {
	Enqueue(t engine.Task) error
}

// Re-export execution types from engine.
type OverlapPolicy = engine.OverlapPolicy

type TaskOptions = engine.TaskOptions

const (
	OverlapAllow         = engine.OverlapAllow
	OverlapSkipIfRunning = engine.OverlapSkipIfRunning
)

type Job func(ctx context.Context) error

type intervalDef struct {
	name          string
	every         time.Duration
	timeout       time.Duration
	job           Job
	opt           TaskOptions
	entryID       cron.EntryID
	startupSpread time.Duration
}

type onceDef struct {
	name    string
	at      time.Time
	timeout time.Duration
	job     Job
	opt     TaskOptions
	ver     uint64
	timer   *time.Timer // nil while the service is stopped
}

type Service struct {
	mu sync.Mutex

	log  logx.Logger
	cfg  Config
	loc  *time.Location
	exec Executor

	c         *cron.Cron
	intervals map[string]*intervalDef
	once      map[string]*onceDef
	onceSeq   uint64

	// Enqueue error throttling: key is schedule name.
	enqMu       sync.Mutex
	lastEnqWarn map[string]time.Time
}

type ScheduleInfo struct {
	Name    string        `json:"name"`
	Kind    string        `json:"kind"` // "interval" or "once"
	Spec    string        `json:"spec"`
	Timeout time.Duration `json:"timeout"`
	Next    time.Time     `json:"next"`
	Prev    time.Time     `json:"prev,omitempty"`
}

type Snapshot struct {
	Running   bool           `json:"running"`
	Timezone  string         `json:"timezone"`
	Pending   int            `json:"pending_once"`
	Schedules []ScheduleInfo `json:"schedules"`
}
