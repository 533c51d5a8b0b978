package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	logx "homebot/pkg/logx"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS schedules (
		id        BIGSERIAL PRIMARY KEY,
		user_id   TEXT    NOT NULL,
		title     TEXT    NOT NULL,
		notes     TEXT    NOT NULL DEFAULT '',
		when_ts   BIGINT  NOT NULL,
		delivered BOOLEAN NOT NULL DEFAULT false
	)`,
	`CREATE INDEX IF NOT EXISTS idx_schedules_due ON schedules(delivered, when_ts)`,
	`CREATE INDEX IF NOT EXISTS idx_schedules_user ON schedules(user_id, delivered, when_ts)`,
}

const pgScheduleCols = `id, user_id, title, notes, when_ts, delivered`

type postgresStore struct {
	pool *pgxpool.Pool
	log  logx.Logger
}

func openPostgres(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	for _, stmt := range postgresSchema {
		if _, err := pool.Exec(pctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("postgres migrate: %w", err)
		}
	}
	log.Debug("postgres store opened")
	return &postgresStore{pool: pool, log: log}, nil
}

func (s *postgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *postgresStore) CreateSchedule(ctx context.Context, in NewSchedule) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO schedules(user_id, title, notes, when_ts) VALUES($1,$2,$3,$4) RETURNING id`,
		in.UserID, in.Title, in.Notes, whenTS(in.When),
	).Scan(&id)
	if err != nil {
		return 0, opErr("create", 0, err)
	}
	return id, nil
}

func (s *postgresStore) GetSchedule(ctx context.Context, id int64) (Schedule, bool, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+pgScheduleCols+` FROM schedules WHERE id = $1`, id)
	if err != nil {
		return Schedule{}, false, opErr("get", id, err)
	}
	sc, err := pgx.CollectOneRow(rows, scanPgSchedule)
	if errors.Is(err, pgx.ErrNoRows) {
		return Schedule{}, false, nil
	}
	if err != nil {
		return Schedule{}, false, opErr("get", id, err)
	}
	return sc, true, nil
}

func (s *postgresStore) MarkDelivered(ctx context.Context, id int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE schedules SET delivered = true WHERE id = $1 AND NOT delivered`, id)
	if err != nil {
		return false, opErr("mark_delivered", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *postgresStore) ListUpcoming(ctx context.Context, userID string, limit int) ([]Schedule, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgScheduleCols+` FROM schedules
		 WHERE user_id = $1 AND NOT delivered
		 ORDER BY when_ts, id LIMIT $2`, userID, normLimit(limit))
	if err != nil {
		return nil, opErr("list_upcoming", 0, err)
	}
	out, err := pgx.CollectRows(rows, scanPgSchedule)
	return out, opErr("list_upcoming", 0, err)
}

func (s *postgresStore) ListDueUndelivered(ctx context.Context, now time.Time) ([]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM schedules WHERE when_ts <= $1 AND NOT delivered ORDER BY when_ts, id`, whenTS(now))
	if err != nil {
		return nil, opErr("list_due", 0, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	return ids, opErr("list_due", 0, err)
}

func (s *postgresStore) ListUndelivered(ctx context.Context) ([]Schedule, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgScheduleCols+` FROM schedules WHERE NOT delivered ORDER BY when_ts, id`)
	if err != nil {
		return nil, opErr("list_undelivered", 0, err)
	}
	out, err := pgx.CollectRows(rows, scanPgSchedule)
	return out, opErr("list_undelivered", 0, err)
}

func scanPgSchedule(row pgx.CollectableRow) (Schedule, error) {
	var (
		sc Schedule
		ts int64
	)
	if err := row.Scan(&sc.ID, &sc.UserID, &sc.Title, &sc.Notes, &ts, &sc.Delivered); err != nil {
		return Schedule{}, err
	}
	sc.When = fromTS(ts)
	return sc, nil
}
