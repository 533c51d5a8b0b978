package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "homebot/pkg/logx"
)

//go:embed migrations.sql
var sqliteMigrations string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = "./homebot.db"
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = defaultBusyTimeout
	}
	_, _ = db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(ctx, sqliteMigrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func (s *sqliteStore) CreateSchedule(ctx context.Context, in NewSchedule) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO schedules(user_id, title, notes, when_ts, delivered) VALUES(?,?,?,?,0)`,
		in.UserID, in.Title, in.Notes, whenTS(in.When),
	)
	if err != nil {
		return 0, opErr("create", 0, err)
	}
	id, err := res.LastInsertId()
	return id, opErr("create", 0, err)
}

func (s *sqliteStore) GetSchedule(ctx context.Context, id int64) (Schedule, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, notes, when_ts, delivered FROM schedules WHERE id = ?`, id)
	sc, err := scanSchedule(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Schedule{}, false, nil
	}
	if err != nil {
		return Schedule{}, false, opErr("get", id, err)
	}
	return sc, true, nil
}

func (s *sqliteStore) MarkDelivered(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE schedules SET delivered = 1 WHERE id = ? AND delivered = 0`, id)
	if err != nil {
		return false, opErr("mark_delivered", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, opErr("mark_delivered", id, err)
	}
	return n > 0, nil
}

func (s *sqliteStore) ListUpcoming(ctx context.Context, userID string, limit int) ([]Schedule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, notes, when_ts, delivered FROM schedules
		 WHERE user_id = ? AND delivered = 0
		 ORDER BY when_ts ASC, id ASC LIMIT ?`, userID, normLimit(limit))
	if err != nil {
		return nil, opErr("list_upcoming", 0, err)
	}
	out, err := collectRows(rows)
	return out, opErr("list_upcoming", 0, err)
}

func (s *sqliteStore) ListDueUndelivered(ctx context.Context, now time.Time) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM schedules WHERE when_ts <= ? AND delivered = 0 ORDER BY when_ts ASC, id ASC`, whenTS(now))
	if err != nil {
		return nil, opErr("list_due", 0, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, opErr("list_due", 0, err)
		}
		ids = append(ids, id)
	}
	return ids, opErr("list_due", 0, rows.Err())
}

func (s *sqliteStore) ListUndelivered(ctx context.Context) ([]Schedule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, notes, when_ts, delivered FROM schedules
		 WHERE delivered = 0 ORDER BY when_ts ASC, id ASC`)
	if err != nil {
		return nil, opErr("list_undelivered", 0, err)
	}
	out, err := collectRows(rows)
	return out, opErr("list_undelivered", 0, err)
}

func scanSchedule(scan func(dest ...any) error) (Schedule, error) {
	var (
		sc        Schedule
		ts        int64
		delivered int64
	)
	if err := scan(&sc.ID, &sc.UserID, &sc.Title, &sc.Notes, &ts, &delivered); err != nil {
		return Schedule{}, err
	}
	sc.When = fromTS(ts)
	sc.Delivered = delivered != 0
	return sc, nil
}

func collectRows(rows *sql.Rows) ([]Schedule, error) {
	defer rows.Close()
	var out []Schedule
	for rows.Next() {
		sc, err := scanSchedule(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}
