package scheduler

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"homebot/internal/task/engine"
	logx "homebot/pkg/logx"
)

// AddInterval registers (or replaces) a repeating trigger. By default a tick is
// skipped while the previous run is still queued or running.
func (s *Service) AddInterval(name string, every, timeout time.Duration, job Job) (string, error) {
	return s.AddIntervalOpt(name, every, timeout, TaskOptions{Overlap: OverlapSkipIfRunning}, job)
}

func (s *Service) AddIntervalOpt(name string, every, timeout time.Duration, opt TaskOptions, job Job) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("name required")
	}
	if every <= 0 {
		return "", fmt.Errorf("interval %q: every must be > 0", name)
	}
	if job == nil {
		return "", fmt.Errorf("interval %q: job required", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
	d := &intervalDef{name: name, every: every, timeout: timeout, job: job, opt: opt}
	s.intervals[name] = d
	if s.c != nil {
		s.addCronLocked(d)
		s.log.Debug("interval registered",
			logx.String("name", name),
			logx.Duration("every", every),
			logx.Duration("startup_spread", d.startupSpread),
			logx.Time("next", s.c.Entry(d.entryID).Next),
		)
	}
	return name, nil
}

// AddOnce arms a one-shot trigger at `at` (past times fire immediately).
// Re-arming an existing name replaces its timer, so each name fires at most once.
func (s *Service) AddOnce(name string, at time.Time, timeout time.Duration, job Job) (string, error) {
	return s.AddOnceOpt(name, at, timeout, TaskOptions{}, job)
}

func (s *Service) AddOnceOpt(name string, at time.Time, timeout time.Duration, opt TaskOptions, job Job) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("name required")
	}
	if at.IsZero() {
		return "", fmt.Errorf("once %q: at required", name)
	}
	if job == nil {
		return "", fmt.Errorf("once %q: job required", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
	s.onceSeq++
	d := &onceDef{name: name, at: at, timeout: timeout, job: job, opt: opt, ver: s.onceSeq}
	s.once[name] = d
	if s.c != nil {
		s.armOnceLocked(d)
	}
	s.log.Debug("once armed", logx.String("name", name), logx.Time("at", at), logx.Bool("running", s.c != nil))
	return name, nil
}

// Has reports whether a trigger with this name is registered.
func (s *Service) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, okOnce := s.once[name]
	_, okInterval := s.intervals[name]
	return okOnce || okInterval
}

// Remove unschedules name. It returns true if something was removed.
func (s *Service) Remove(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	s.mu.Lock()
	removed := s.removeLocked(name)
	s.mu.Unlock()
	if removed {
		s.log.Debug("schedule removed", logx.String("name", name))
	}
	return removed
}

func (s *Service) removeLocked(name string) bool {
	removed := false
	if d, ok := s.intervals[name]; ok {
		if s.c != nil && d.entryID != 0 {
			s.c.Remove(d.entryID)
		}
		delete(s.intervals, name)
		removed = true
	}
	if d, ok := s.once[name]; ok {
		if d.timer != nil {
			d.timer.Stop()
		}
		delete(s.once, name)
		removed = true
	}
	return removed
}

func (s *Service) addCronLocked(d *intervalDef) {
	name, timeout, job, opt := d.name, d.timeout, d.job, d.opt
	sched, spread := makeIntervalScheduleWithSpread(d.every, time.Now().In(s.loc), name)
	d.startupSpread = spread
	d.entryID = s.c.Schedule(sched, cron.FuncJob(func() {
		s.enqueue(engine.Task{Name: name, Key: name, Timeout: timeout, Run: job, Opt: opt})
	}))
}

func (s *Service) armOnceLocked(d *onceDef) {
	if d.timer != nil {
		d.timer.Stop()
	}
	name, ver := d.name, d.ver
	delay := max(time.Until(d.at), 0)
	d.timer = time.AfterFunc(delay, func() { s.fireOnce(name, ver) })
}

func (s *Service) fireOnce(name string, ver uint64) {
	s.mu.Lock()
	d, ok := s.once[name]
	// Removed, replaced or stopped since this timer was armed.
	if !ok || d.ver != ver || d.timer == nil {
		s.mu.Unlock()
		return
	}
	delete(s.once, name)
	s.mu.Unlock()

	s.enqueue(engine.Task{Name: name, Key: name, Timeout: d.timeout, Run: d.job, Opt: d.opt})
}

func (s *Service) enqueue(t engine.Task) {
	if s.exec == nil {
		return
	}
	if err := s.exec.Enqueue(t); err != nil {
		s.reportEnqueueError(t.Name, err)
	}
}
