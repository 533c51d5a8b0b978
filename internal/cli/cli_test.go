package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	body := `{
  "assistant": {"timezone": "UTC"},
  "users": {"alice": {"display": "Alice"}},
  "storage": {"driver": "sqlite", "path": "` + filepath.ToSlash(filepath.Join(dir, "homebot.db")) + `"}
}`
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	t.Parallel()

	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "homebot "+Version+"\n", out)
}

func TestSchedulesAddListSweep(t *testing.T) {
	t.Parallel()
	cfg := writeTestConfig(t)

	out, err := run(t, "--config", cfg, "schedules", "add", "--user", "alice", "--at", "2020-05-01 08:00", "--title", "old one")
	require.NoError(t, err)
	assert.Equal(t, "Added reminder 1 for alice at 2020-05-01 08:00.\n", out)

	future := time.Now().UTC().Add(48 * time.Hour).Format("2006-01-02 15:04")
	_, err = run(t, "--config", cfg, "schedules", "add", "-u", "alice", "--at", future, "-t", "later", "--notes", "bring cake")
	require.NoError(t, err)

	out, err = run(t, "--config", cfg, "schedules", "list", "--user", "alice")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "old one")
	assert.Contains(t, lines[2], "bring cake")

	out, err = run(t, "--config", cfg, "sweep")
	require.NoError(t, err)
	assert.Equal(t, "Due (1):\n  1\n", out)
}

func TestSchedulesAddRejectsBadInput(t *testing.T) {
	t.Parallel()
	cfg := writeTestConfig(t)

	_, err := run(t, "--config", cfg, "schedules", "add", "--user", "mallory", "--at", "2030-01-01 10:00", "--title", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown user")

	_, err = run(t, "--config", cfg, "schedules", "add", "--user", "alice", "--at", "whenever", "--title", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot understand")

	_, err = run(t, "--config", cfg, "schedules", "add", "--user", "alice")
	require.Error(t, err)
}

func TestParseAtAcceptsPhrases(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	got, err := parseAt("tomorrow at 5pm", now, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 11, 17, 0, 0, 0, time.UTC), got)

	got, err = parseAt("2026-04-01 09:15", now, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 4, 1, 9, 15, 0, 0, time.UTC), got)
}

func TestSweepNothingDue(t *testing.T) {
	t.Parallel()

	out, err := run(t, "--config", writeTestConfig(t), "sweep")
	require.NoError(t, err)
	assert.Equal(t, "Nothing due.\n", out)
}
