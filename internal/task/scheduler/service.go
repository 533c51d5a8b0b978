package scheduler

import (
	"context"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	logx "homebot/pkg/logx"
)

func New(cfg Config, exec Executor, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:         cfg,
		log:         log,
		exec:        exec,
		intervals:   map[string]*intervalDef{},
		once:        map[string]*onceDef{},
		lastEnqWarn: map[string]time.Time{},
	}
}

// Location returns the scheduler timezone.
func (s *Service) Location() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loc != nil {
		return s.loc
	}
	return s.loadLocationLocked()
}

// Apply updates the config; a timezone change restarts cron with the new location.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	newTZ := strings.TrimSpace(cfg.Timezone)
	s.cfg = cfg

	if s.c == nil || oldTZ == newTZ {
		return
	}
	s.restartLocked()
}

// Start begins interval triggering and arms every pending one-shot timer.
func (s *Service) Start(ctx context.Context) {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.loc = s.loadLocationLocked()
	s.c = cron.New(cron.WithLocation(s.loc))
	for _, d := range s.intervals {
		s.addCronLocked(d)
	}
	s.c.Start()
	for _, d := range s.once {
		s.armOnceLocked(d)
	}
	s.log.Info("scheduler started", logx.String("tz", s.loc.String()), logx.Int("intervals", len(s.intervals)), logx.Int("once", len(s.once)))
}

// Stop halts triggering. Pending one-shot definitions survive and re-arm on the next Start.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()

	s.mu.Lock()
	c := s.c
	s.c = nil
	for _, d := range s.once {
		if d.timer != nil {
			d.timer.Stop()
			d.timer = nil
		}
	}
	for _, d := range s.intervals {
		d.entryID = 0
	}
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}
	s.log.Info("scheduler stopped", logx.Duration("took", time.Since(start)))
}

func (s *Service) restartLocked() {
	if s.c != nil {
		<-s.c.Stop().Done()
	}
	s.loc = s.loadLocationLocked()
	s.c = cron.New(cron.WithLocation(s.loc))
	for _, d := range s.intervals {
		s.addCronLocked(d)
	}
	s.c.Start()
	s.log.Info("scheduler restarted", logx.String("tz", s.loc.String()), logx.Int("intervals", len(s.intervals)))
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}
