package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"homebot/internal/eventbus"
	logx "homebot/pkg/logx"
)

func newTestEngine(t *testing.T, cfg Config) *Service {
	t.Helper()
	cfg.Enabled = true
	s := New(cfg, logx.Nop(), eventbus.New())
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s
}

func fastRetry() TaskOptions {
	return TaskOptions{RetryBase: time.Millisecond, RetryMaxDelay: 2 * time.Millisecond}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestRetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	s := newTestEngine(t, Config{RetryMax: 3})
	var calls atomic.Int32
	done := make(chan struct{})
	err := s.Enqueue(Task{Name: "flaky", Opt: fastRetry(), Run: func(context.Context) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		close(done)
		return nil
	}})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("task did not succeed")
	}
	waitFor(t, func() bool { return len(s.Snapshot().History) == 1 })
	h := s.Snapshot().History[0]
	if h.Attempts != 3 || h.Error != "" {
		t.Fatalf("history=%+v", h)
	}
}

func TestNoRetryStopsImmediately(t *testing.T) {
	t.Parallel()

	s := newTestEngine(t, Config{RetryMax: 5})
	var calls atomic.Int32
	cause := errors.New("spoken already")
	if err := s.Enqueue(Task{Name: "once", Opt: fastRetry(), Run: func(context.Context) error {
		calls.Add(1)
		return NoRetry(cause)
	}}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return len(s.Snapshot().History) == 1 })
	if got := calls.Load(); got != 1 {
		t.Fatalf("calls=%d, want 1", got)
	}
	if h := s.Snapshot().History[0]; h.Error != cause.Error() {
		t.Fatalf("history error=%q", h.Error)
	}
	if !IsNoRetry(NoRetry(cause)) || IsNoRetry(cause) || NoRetry(nil) != nil {
		t.Fatal("IsNoRetry classification broken")
	}
}

func TestPanicIsRecovered(t *testing.T) {
	t.Parallel()

	s := newTestEngine(t, Config{})
	if err := s.Enqueue(Task{Name: "boom", Opt: TaskOptions{RetryMax: -1}, Run: func(context.Context) error {
		panic("kaboom")
	}}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return len(s.Snapshot().History) == 1 })

	// Workers survive and keep executing.
	ran := make(chan struct{})
	if err := s.Enqueue(Task{Name: "after", Run: func(context.Context) error { close(ran); return nil }}); err != nil {
		t.Fatal(err)
	}
	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("worker did not survive panic")
	}
}

func TestOverlapSkipByKey(t *testing.T) {
	t.Parallel()

	s := newTestEngine(t, Config{Workers: 2})
	release := make(chan struct{})
	started := make(chan struct{})
	task := Task{Name: "reminder.dispatch", Key: "reminder-7", Opt: TaskOptions{Overlap: OverlapSkipIfRunning}, Run: func(context.Context) error {
		close(started)
		<-release
		return nil
	}}
	if err := s.Enqueue(task); err != nil {
		t.Fatal(err)
	}
	<-started
	if err := s.Enqueue(task); !errors.Is(err, ErrOverlapSkip) {
		t.Fatalf("second enqueue err=%v, want ErrOverlapSkip", err)
	}

	other := task
	other.Key = "reminder-8"
	other.Run = func(context.Context) error { return nil }
	if err := s.Enqueue(other); err != nil {
		t.Fatalf("different key rejected: %v", err)
	}

	close(release)
	waitFor(t, func() bool { return len(s.Snapshot().History) == 2 })
	task.Run = func(context.Context) error { return nil }
	if err := s.Enqueue(task); err != nil {
		t.Fatalf("key not released after run: %v", err)
	}
}

func TestEnqueueErrors(t *testing.T) {
	t.Parallel()

	disabled := New(Config{}, logx.Nop(), nil)
	if err := disabled.Enqueue(Task{Name: "x", Run: func(context.Context) error { return nil }}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("err=%v, want ErrDisabled", err)
	}

	notStarted := New(Config{Enabled: true}, logx.Nop(), nil)
	if err := notStarted.Enqueue(Task{Name: "x", Run: func(context.Context) error { return nil }}); !errors.Is(err, ErrStopped) {
		t.Fatalf("err=%v, want ErrStopped", err)
	}

	s := newTestEngine(t, Config{})
	if err := s.Enqueue(Task{Name: "x"}); err == nil {
		t.Fatal("nil Run accepted")
	}
	if err := s.Enqueue(Task{Name: " ", Run: func(context.Context) error { return nil }}); err == nil {
		t.Fatal("empty name accepted")
	}
}

func TestBackoffDelayBounds(t *testing.T) {
	t.Parallel()

	opt := TaskOptions{RetryBase: 100 * time.Millisecond, RetryMaxDelay: time.Second}.withDefaults(Config{RetryMax: 3})
	opt.RetryJitter = 0.0001
	cases := []struct {
		retry int
		want  time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{6, time.Second},
	}
	for _, tc := range cases {
		got := backoffDelay(opt, tc.retry, nil)
		if got != tc.want {
			t.Fatalf("retry %d: delay=%v, want %v", tc.retry, got, tc.want)
		}
	}

	hinted := backoffDelayWithHint(opt, 1, RetryAfter(errors.New("429"), 10*time.Second), nil)
	if hinted != time.Second {
		t.Fatalf("hint not capped: %v", hinted)
	}
}
