package conversation

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homebot/internal/capability"
	"homebot/internal/eventbus"
	"homebot/internal/storage"
	"homebot/internal/users"
	logx "homebot/pkg/logx"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		text string
		want Intent
	}{
		{"show schedule", IntentShowSchedule},
		{"Show schedule please", IntentShowSchedule},
		{"What's my schedule for tomorrow?", IntentShowSchedule},
		{"what’s my schedule", IntentShowSchedule},
		{"read MY SCHEDULE", IntentShowSchedule},
		{"remind me to take pills", IntentAddSchedule},
		{"schedule a dentist visit", IntentAddSchedule},
		{"add milk at 6pm", IntentAddSchedule},
		// "my schedule" outranks "add".
		{"add dentist to my schedule tomorrow", IntentShowSchedule},
		{"tell me a joke", IntentChat},
		{"", IntentChat},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.text), "text=%q", tc.text)
	}
}

// ---- fakes ----

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type scriptListener struct {
	mu      sync.Mutex
	script  []string
	calls   int
	clock   *fakeClock
	perTurn time.Duration
	err     error
}

func (l *scriptListener) Listen(ctx context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.clock != nil {
		l.clock.Advance(l.perTurn)
	}
	if l.err != nil {
		return "", l.err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(l.script) == 0 {
		return "", nil
	}
	next := l.script[0]
	l.script = l.script[1:]
	return next, nil
}

type recSpeaker struct {
	mu   sync.Mutex
	said []string
}

func (s *recSpeaker) Speak(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.said = append(s.said, text)
	return nil
}

func (s *recSpeaker) lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.said...)
}

// phraseParser understands "9am tomorrow" and "in one hour" only.
type phraseParser struct{}

func (phraseParser) ParseDateTime(text string, now time.Time) (time.Time, bool) {
	switch {
	case strings.Contains(text, "9am tomorrow"):
		d := now.AddDate(0, 0, 1)
		return time.Date(d.Year(), d.Month(), d.Day(), 9, 0, 0, 0, now.Location()), true
	case strings.Contains(text, "in one hour"):
		return now.Add(time.Hour), true
	}
	return time.Time{}, false
}

type recArm struct {
	mu    sync.Mutex
	armed map[int64]time.Time
}

func (a *recArm) Arm(id int64, at time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.armed == nil {
		a.armed = map[int64]time.Time{}
	}
	a.armed[id] = at
	return nil
}

type failingCreate struct {
	storage.Store
}

func (failingCreate) CreateSchedule(context.Context, storage.NewSchedule) (int64, error) {
	return 0, &storage.OpError{Op: "create", Err: errors.New("disk full")}
}

var start = time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)

type harness struct {
	store    storage.Store
	clock    *fakeClock
	speaker  *recSpeaker
	listener *scriptListener
	arm      *recArm
	runner   *Runner
}

func newHarness(t *testing.T, script []string, mutate func(*Deps)) *harness {
	t.Helper()
	st, err := storage.Open(context.Background(), storage.Config{Path: filepath.Join(t.TempDir(), "conv.db")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	h := &harness{
		store:   st,
		clock:   &fakeClock{now: start},
		speaker: &recSpeaker{},
		arm:     &recArm{},
	}
	h.listener = &scriptListener{script: script}
	deps := Deps{
		Store:    st,
		Arm:      h.arm,
		Speaker:  h.speaker,
		Listener: h.listener,
		Parser:   phraseParser{},
		Responder: capability.RespondFunc(func(_ context.Context, text, _ string) (string, error) {
			return "You said " + text, nil
		}),
		Directory: users.New(map[string]string{"alice": "Alice"}),
		Clock:     h.clock,
		Log:       logx.Nop(),
		Bus:       eventbus.New(),
	}
	if mutate != nil {
		mutate(&deps)
	}
	h.runner = NewRunner(deps, Settings{SessionTimeout: 90 * time.Second, UpcomingLimit: 10, Location: time.UTC})
	return h
}

func TestSlotFillingEndToEnd(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []string{"remind me to take pills", "9am tomorrow"}, nil)
	res := h.runner.Run(context.Background(), "alice")

	assert.Equal(t, EndSilence, res.Reason)
	assert.Equal(t, 1, res.Turns)
	assert.Equal(t, []string{
		"Hi Alice, nice to see you. How can I help?",
		"When should I remind you? Please say a date and time.",
		"Okay, scheduled: remind me to take pills at 2026-03-11 09:00",
	}, h.speaker.lines())

	items, err := h.store.ListUpcoming(context.Background(), "alice", 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	want := time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, "remind me to take pills", items[0].Title)
	assert.Equal(t, "", items[0].Notes)
	assert.True(t, items[0].When.Equal(want), "when=%v", items[0].When)
	assert.True(t, h.arm.armed[items[0].ID].Equal(want))
}

func TestAddScheduleParsedDirectly(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []string{"remind me to stretch in one hour"}, nil)
	h.runner.Run(context.Background(), "alice")
	assert.Equal(t, "Okay, scheduled: remind me to stretch in one hour at 2026-03-10 15:30", h.speaker.lines()[1])
	assert.Equal(t, 2, h.listener.calls, "no clarification turn expected")
}

func TestAddScheduleParseFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []string{"remind me to call mom", "whenever", "tell me a joke"}, nil)
	res := h.runner.Run(context.Background(), "alice")

	lines := h.speaker.lines()
	require.Len(t, lines, 4)
	assert.Equal(t, askWhen, lines[1])
	assert.Equal(t, parseFailed, lines[2])
	assert.Equal(t, "You said tell me a joke", lines[3])
	assert.Equal(t, 2, res.Turns)

	items, err := h.store.ListUpcoming(context.Background(), "alice", 10)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestAddScheduleStorageFailureKeepsSession(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []string{"remind me at 9am tomorrow", "hello"}, func(d *Deps) {
		d.Store = failingCreate{Store: d.Store}
	})
	res := h.runner.Run(context.Background(), "alice")

	lines := h.speaker.lines()
	assert.Equal(t, saveFailed, lines[1])
	assert.Equal(t, "You said hello", lines[2])
	assert.Equal(t, 2, res.Turns)
	assert.Empty(t, h.arm.armed)
}

func TestShowSchedule(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []string{"what's my schedule"}, nil)
	ctx := context.Background()
	for _, in := range []storage.NewSchedule{
		{UserID: "alice", Title: "later", When: start.Add(2 * time.Hour)},
		{UserID: "alice", Title: "sooner", When: start.Add(time.Hour)},
		{UserID: "bob", Title: "not mine", When: start.Add(time.Minute)},
	} {
		_, err := h.store.CreateSchedule(ctx, in)
		require.NoError(t, err)
	}
	h.runner.Run(ctx, "alice")

	assert.Equal(t, []string{
		"Hi Alice, nice to see you. How can I help?",
		upcomingHeader,
		"sooner at 2026-03-10 15:30",
		"later at 2026-03-10 16:30",
	}, h.speaker.lines())
}

func TestShowScheduleEmptyAndLimit(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []string{"show schedule"}, nil)
	h.runner.Run(context.Background(), "alice")
	assert.Equal(t, noUpcoming, h.speaker.lines()[1])

	h2 := newHarness(t, []string{"my schedule"}, nil)
	for i := 0; i < 3; i++ {
		_, err := h2.store.CreateSchedule(context.Background(), storage.NewSchedule{UserID: "alice", Title: "item", When: start.Add(time.Duration(i+1) * time.Hour)})
		require.NoError(t, err)
	}
	h2.runner.Apply(Settings{UpcomingLimit: 2, Location: time.UTC})
	h2.runner.Run(context.Background(), "alice")
	assert.Len(t, h2.speaker.lines(), 1+1+2)
}

func TestChatErrorApologizes(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []string{"how tall is everest"}, func(d *Deps) {
		d.Responder = capability.RespondFunc(func(context.Context, string, string) (string, error) {
			return "", errors.New("quota exceeded")
		})
	})
	h.runner.Run(context.Background(), "alice")
	assert.Equal(t, chatFailed, h.speaker.lines()[1])
}

func TestSessionTimeoutNeverListensPastDeadline(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []string{"a", "b", "c", "d", "e"}, nil)
	h.listener.clock = h.clock
	h.listener.perTurn = 40 * time.Second

	res := h.runner.Run(context.Background(), "alice")
	assert.Equal(t, EndTimeout, res.Reason)
	// Listens start at 0s, 40s and 80s; at 120s the deadline (90s) has passed.
	assert.Equal(t, 3, h.listener.calls)
	assert.Equal(t, 3, res.Turns)
}

func TestSessionEndReasons(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, nil)
	assert.Equal(t, EndSilence, h.runner.Run(context.Background(), "alice").Reason)
	assert.Equal(t, []string{"Hi Alice, nice to see you. How can I help?"}, h.speaker.lines())

	h = newHarness(t, []string{"hi"}, nil)
	h.listener.err = errors.New("microphone unplugged")
	assert.Equal(t, EndListenError, h.runner.Run(context.Background(), "alice").Reason)

	h = newHarness(t, []string{"hi"}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := h.runner.Run(ctx, "bob")
	assert.Equal(t, EndCanceled, res.Reason)
	assert.Equal(t, 0, h.listener.calls)
	assert.Equal(t, "Hi bob, nice to see you. How can I help?", h.speaker.lines()[0])
}
