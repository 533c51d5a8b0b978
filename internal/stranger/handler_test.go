package stranger

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homebot/internal/capability"
	logx "homebot/pkg/logx"
)

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }

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

type alertFunc func(ctx context.Context, msg string, att *capability.Attachment) bool

func (f alertFunc) Notify(ctx context.Context, msg string, att *capability.Attachment) bool {
	return f(ctx, msg, att)
}

var seen = time.Date(2026, 3, 10, 22, 15, 0, 0, time.UTC)

func TestHandleNotifies(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "captured")
	var gotMsg string
	var gotAtt *capability.Attachment
	sp := &recSpeaker{}
	h := New(Deps{
		Alerter: alertFunc(func(_ context.Context, msg string, att *capability.Attachment) bool {
			gotMsg, gotAtt = msg, att
			return true
		}),
		Speaker: sp,
		Clock:   fixedClock(seen),
		Log:     logx.Nop(),
	}, dir)

	out := h.Handle(context.Background(), []byte("jpeg-bytes"))
	require.True(t, out.Notified)
	assert.Equal(t, filepath.Join(dir, "unknown_1773180900.jpg"), out.Path)
	data, err := os.ReadFile(out.Path)
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))

	assert.Equal(t, "Unknown person seen at 2026-03-10T22:15:00Z", gotMsg)
	require.NotNil(t, gotAtt)
	assert.Equal(t, gotMsg, gotAtt.Caption)
	assert.Equal(t, []string{spokenNotified}, sp.said)
}

func TestHandleCollisionSuffix(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	h := New(Deps{Alerter: alertFunc(func(context.Context, string, *capability.Attachment) bool { return true }), Clock: fixedClock(seen)}, dir)
	first := h.Handle(context.Background(), []byte("a"))
	second := h.Handle(context.Background(), []byte("b"))
	third := h.Handle(context.Background(), []byte("c"))

	assert.Equal(t, "unknown_1773180900.jpg", filepath.Base(first.Path))
	assert.Equal(t, "unknown_1773180900_1.jpg", filepath.Base(second.Path))
	assert.Equal(t, "unknown_1773180900_2.jpg", filepath.Base(third.Path))
}

func TestHandleFailures(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		alerter capability.Alerter
	}{
		{"alert false", alertFunc(func(context.Context, string, *capability.Attachment) bool { return false })},
		{"alert panics", alertFunc(func(context.Context, string, *capability.Attachment) bool { panic("boom") })},
		{"no alerter", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			sp := &recSpeaker{}
			h := New(Deps{Alerter: tc.alerter, Speaker: sp, Clock: fixedClock(seen)}, t.TempDir())
			out := h.Handle(context.Background(), []byte("img"))
			assert.False(t, out.Notified)
			assert.NotEmpty(t, out.Path, "snapshot is kept even when the alert fails")
			assert.Equal(t, []string{spokenFailed}, sp.said)
		})
	}
}

func TestHandleUnwritableDirStillAlerts(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	called := false
	h := New(Deps{Alerter: alertFunc(func(context.Context, string, *capability.Attachment) bool { called = true; return true }), Clock: fixedClock(seen)}, file)
	out := h.Handle(context.Background(), []byte("img"))
	assert.True(t, called)
	assert.True(t, out.Notified)
	assert.Empty(t, out.Path)
	assert.NotEmpty(t, out.Error)
}
