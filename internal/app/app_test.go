package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homebot/internal/capability"
	"homebot/internal/config"
	"homebot/internal/storage"
)

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

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "homebot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func baseConfig(dir string) string {
	return `
assistant:
  timezone: UTC
  snapshot_dir: ` + filepath.Join(dir, "captured") + `
users:
  u1: { display: Alice }
storage:
  driver: sqlite
  path: ` + filepath.Join(dir, "homebot.db") + `
logging:
  level: error
`
}

func TestStartupDeliversPastDueReminder(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, baseConfig(dir))

	speaker := &recSpeaker{}
	silent := capability.ListenFunc(func(context.Context) (string, error) { return "", nil })
	a, err := NewApp(context.Background(), path, Options{Speaker: speaker, Listener: silent})
	require.NoError(t, err)

	id, err := a.Store().CreateSchedule(context.Background(), storage.NewSchedule{
		UserID: "u1",
		Title:  "water the plants",
		When:   time.Date(2026, 1, 2, 9, 30, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	require.NoError(t, a.Start(context.Background()))
	require.Eventually(t, func() bool { return len(speaker.lines()) == 1 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, "Reminder for Alice: water the plants at 2026-01-02 09:30.", speaker.lines()[0])

	require.Eventually(t, func() bool {
		s, ok, err := a.Store().GetSchedule(context.Background(), id)
		return err == nil && ok && s.Delivered
	}, 3*time.Second, 10*time.Millisecond)

	st, ok := a.Status().(Status)
	require.True(t, ok)
	assert.Contains(t, st.Supervisors, "app")
	assert.Contains(t, st.Supervisors, "task.engine")
	assert.NotEmpty(t, st.Scheduler.Schedules)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Stop(ctx, StopAppStop))
}

func TestAuthorizedUserRunsSession(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, baseConfig(dir))

	speaker := &recSpeaker{}
	silent := capability.ListenFunc(func(context.Context) (string, error) { return "", nil })
	a, err := NewApp(context.Background(), path, Options{Speaker: speaker, Listener: silent})
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Stop(ctx, StopAppStop)
	})

	require.NoError(t, a.Assistant().OnAuthorizedUser("u1"))
	require.Eventually(t, func() bool { return len(a.Assistant().ActiveSessions()) == 0 && len(speaker.lines()) > 0 }, 3*time.Second, 10*time.Millisecond)
	assert.True(t, strings.Contains(speaker.lines()[0], "Alice"), "greeting=%q", speaker.lines()[0])
}

func TestApplyConfigUpdatesLiveSections(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, baseConfig(dir))

	a, err := NewApp(context.Background(), path, Options{
		Speaker:  &recSpeaker{},
		Listener: capability.ListenFunc(func(context.Context) (string, error) { return "", nil }),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.store.Close() })

	oldCfg := a.cfgm.Get()
	next := *oldCfg
	next.Users = map[string]config.UserConfig{"u1": {Display: "Alice"}, "u2": {Display: "Bob"}}
	next.Assistant.Timezone = "Europe/Berlin"
	next.Reminders.SweepInterval = "2m"

	a.applyConfig(context.Background(), oldCfg, &next)

	u, ok := a.dir.Lookup("u2")
	require.True(t, ok)
	assert.Equal(t, "Bob", u.Display)
	assert.Equal(t, "Europe/Berlin", a.sched.Location().String())
	assert.Equal(t, 2*time.Minute, a.sweepEvery)
}

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		in      config.StorageConfig
		want    storage.Config
		wantErr bool
	}{
		{"default sqlite", config.StorageConfig{}, storage.Config{Driver: "sqlite", Path: "./homebot.db"}, false},
		{"bolt alias", config.StorageConfig{Driver: "bbolt", Path: "/tmp/x.bolt"}, storage.Config{Driver: "bolt", Path: "/tmp/x.bolt"}, false},
		{"postgres", config.StorageConfig{Driver: "postgres", DSN: "postgres://h/db"}, storage.Config{Driver: "postgres", DSN: "postgres://h/db"}, false},
		{"postgres without dsn", config.StorageConfig{Driver: "postgres"}, storage.Config{}, true},
		{"busy timeout", config.StorageConfig{Path: "a.db", BusyTimeout: "3s"}, storage.Config{Driver: "sqlite", Path: "a.db", BusyTimeout: 3 * time.Second}, false},
		{"unknown", config.StorageConfig{Driver: "mongo"}, storage.Config{}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := MapStorageConfig(&config.Config{Storage: tc.in})
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestMapTaskEngineConfig(t *testing.T) {
	t.Parallel()

	got, err := mapTaskEngineConfig(&config.Config{})
	require.NoError(t, err)
	assert.True(t, got.Enabled)

	got, err = mapTaskEngineConfig(&config.Config{TaskEngine: &config.TaskEngineConfig{Workers: 4, DefaultTimeout: "30s"}})
	require.NoError(t, err)
	assert.Equal(t, 4, got.Workers)
	assert.Equal(t, 30*time.Second, got.DefaultTimeout)

	_, err = mapTaskEngineConfig(&config.Config{TaskEngine: &config.TaskEngineConfig{Workers: -1}})
	assert.Error(t, err)
}
