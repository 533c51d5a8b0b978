package reminder

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homebot/internal/capability"
	"homebot/internal/eventbus"
	"homebot/internal/storage"
	"homebot/internal/task/engine"
	"homebot/internal/task/scheduler"
	"homebot/internal/users"
	logx "homebot/pkg/logx"
)

type recSpeaker struct {
	mu    sync.Mutex
	said  []string
	delay time.Duration
	err   error
}

func (s *recSpeaker) Speak(_ context.Context, text string) error {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.said = append(s.said, text)
	return s.err
}

func (s *recSpeaker) lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.said...)
}

type recAlerter struct {
	mu   sync.Mutex
	msgs []string
	ok   bool
}

func (a *recAlerter) Notify(_ context.Context, msg string, _ *capability.Attachment) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.msgs = append(a.msgs, msg)
	return a.ok
}

func (a *recAlerter) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.msgs)
}

func openStore(t *testing.T) storage.Store {
	t.Helper()
	st, err := storage.Open(context.Background(), storage.Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "homebot.db")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

type fixture struct {
	store   storage.Store
	speaker *recSpeaker
	alerter *recAlerter
	disp    *Dispatcher
	bus     eventbus.Bus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   openStore(t),
		speaker: &recSpeaker{},
		alerter: &recAlerter{ok: true},
		bus:     eventbus.New(),
	}
	f.disp = NewDispatcher(DispatcherDeps{
		Store:     f.store,
		Speaker:   f.speaker,
		Alerter:   f.alerter,
		Directory: users.New(map[string]string{"alice": "Alice"}),
		Location:  time.UTC,
		Log:       logx.Nop(),
		Bus:       f.bus,
	})
	return f
}

var at9 = time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)

func (f *fixture) create(t *testing.T, user, title, notes string, when time.Time) int64 {
	t.Helper()
	id, err := f.store.CreateSchedule(context.Background(), storage.NewSchedule{UserID: user, Title: title, Notes: notes, When: when})
	require.NoError(t, err)
	return id
}

func TestMessage(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		notes string
		want  string
	}{
		{"with notes", "with water", "Reminder for Alice: take pills at 2026-03-11 09:00. with water"},
		{"no notes", "", "Reminder for Alice: take pills at 2026-03-11 09:00."},
	}
	for _, tc := range cases {
		got := Message("Alice", storage.Schedule{Title: "take pills", Notes: tc.notes, When: at9}, time.UTC)
		assert.Equal(t, tc.want, got, tc.name)
	}
	assert.Equal(t, "reminder-42", JobName(42))
}

func TestDispatchDelivers(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	events, unsub := f.bus.Subscribe(8)
	defer unsub()
	id := f.create(t, "alice", "take pills", "", at9)

	require.NoError(t, f.disp.Dispatch(context.Background(), id))

	want := "Reminder for Alice: take pills at 2026-03-11 09:00."
	assert.Equal(t, []string{want}, f.speaker.lines())
	assert.Equal(t, []string{"[Reminder] " + want}, f.alerter.msgs)

	s, ok, err := f.store.GetSchedule(context.Background(), id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, s.Delivered)

	ev := <-events
	assert.Equal(t, eventbus.TypeReminderFired, ev.Type)
	assert.Equal(t, 0, f.disp.locks.size())
}

func TestDispatchUnknownUserUsesID(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	id := f.create(t, "bob", "call", "", at9)
	require.NoError(t, f.disp.Dispatch(context.Background(), id))
	assert.Equal(t, []string{"Reminder for bob: call at 2026-03-11 09:00."}, f.speaker.lines())
}

func TestDispatchNoops(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.NoError(t, f.disp.Dispatch(context.Background(), 999))

	id := f.create(t, "alice", "done already", "", at9)
	_, err := f.store.MarkDelivered(context.Background(), id)
	require.NoError(t, err)
	require.NoError(t, f.disp.Dispatch(context.Background(), id))

	assert.Empty(t, f.speaker.lines())
	assert.Zero(t, f.alerter.count())
}

func TestDispatchMarksDespiteFailures(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.alerter.ok = false
	f.speaker.err = errors.New("audio device busy")
	id := f.create(t, "alice", "stretch", "", at9)

	require.NoError(t, f.disp.Dispatch(context.Background(), id))
	s, _, err := f.store.GetSchedule(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, s.Delivered)
	assert.Equal(t, 1, f.alerter.count())
}

func TestConcurrentDispatchDeliversOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.speaker.delay = 5 * time.Millisecond
	id := f.create(t, "alice", "water plants", "", at9)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.disp.Dispatch(context.Background(), id))
		}()
	}
	wg.Wait()

	assert.Len(t, f.speaker.lines(), 1)
	assert.Equal(t, 1, f.alerter.count())
}

type failingStore struct {
	storage.Store
	getErr  error
	markErr error
}

func (s failingStore) GetSchedule(ctx context.Context, id int64) (storage.Schedule, bool, error) {
	if s.getErr != nil {
		return storage.Schedule{}, false, s.getErr
	}
	return s.Store.GetSchedule(ctx, id)
}

func (s failingStore) MarkDelivered(ctx context.Context, id int64) (bool, error) {
	if s.markErr != nil {
		return false, s.markErr
	}
	return s.Store.MarkDelivered(ctx, id)
}

func TestDispatchErrorClassification(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	id := f.create(t, "alice", "x", "", at9)
	loadErr := &storage.OpError{Op: "get", ID: id, Err: errors.New("disk I/O error")}

	f.disp.store = failingStore{Store: f.store, getErr: loadErr}
	err := f.disp.Dispatch(context.Background(), id)
	require.ErrorIs(t, err, storage.ErrStorage)
	assert.False(t, engine.IsNoRetry(err), "load failure must stay retryable")
	assert.Empty(t, f.speaker.lines())

	f.disp.store = failingStore{Store: f.store, markErr: &storage.OpError{Op: "mark", ID: id, Err: errors.New("locked")}}
	err = f.disp.Dispatch(context.Background(), id)
	require.Error(t, err)
	assert.True(t, engine.IsNoRetry(err), "failure after speaking must not be retried")
	assert.Len(t, f.speaker.lines(), 1)
}

type recArm struct {
	mu    sync.Mutex
	armed map[int64]time.Time
	fail  int64
}

func (r *recArm) Arm(id int64, at time.Time) error {
	if id == r.fail {
		return errors.New("arm failed")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.armed == nil {
		r.armed = map[int64]time.Time{}
	}
	r.armed[id] = at
	return nil
}

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }

func TestSweepArmsDueOnly(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	now := at9.Add(time.Hour)
	past1 := f.create(t, "alice", "a", "", at9)
	past2 := f.create(t, "alice", "b", "", at9)
	exact := f.create(t, "alice", "c", "", now)
	future := f.create(t, "alice", "d", "", now.Add(time.Minute))

	arm := &recArm{fail: past2}
	sw := NewSweeper(f.store, arm, fixedClock(now), logx.Nop())
	n, err := sw.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, now, arm.armed[past1])
	assert.Equal(t, now, arm.armed[exact])
	assert.NotContains(t, arm.armed, future)

	arm.fail = 0
	n, err = sw.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.True(t, arm.armed[future].Equal(now.Add(time.Minute)))
}

func TestStartupFiresPastDueRecord(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	id := f.create(t, "alice", "take pills", "", time.Now().Add(-2*time.Hour).Truncate(time.Second))
	later := f.create(t, "alice", "later", "", time.Now().Add(time.Hour).Truncate(time.Second))

	eng := engine.New(engine.Config{Enabled: true}, logx.Nop(), f.bus)
	eng.Start(context.Background())
	defer eng.Stop(context.Background())
	sched := scheduler.New(scheduler.Config{}, eng, logx.Nop())
	sched.Start(context.Background())
	defer sched.Stop(context.Background())

	sw := NewSweeper(f.store, NewArmer(sched, f.disp, time.Minute), nil, logx.Nop())
	require.NoError(t, sw.Register(sched, time.Minute))
	require.NoError(t, sw.Startup(context.Background()))

	require.Eventually(t, func() bool {
		s, _, err := f.store.GetSchedule(context.Background(), id)
		return err == nil && s.Delivered
	}, 3*time.Second, 10*time.Millisecond)
	assert.Len(t, f.speaker.lines(), 1)
	assert.True(t, sched.Has(JobName(later)), "future record stays armed")
	assert.True(t, sched.Has(SweepJobName))
}

func TestKeyedMutexReleases(t *testing.T) {
	t.Parallel()

	var k keyedMutex
	var inside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock(7)
			if inside.Add(1) != 1 {
				t.Error("two holders of the same key")
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, k.size())
}
