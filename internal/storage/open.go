package storage

import (
	"context"
	"errors"
	"strings"

	logx "homebot/pkg/logx"
)

// Open initializes the configured store. An empty driver means sqlite.
func Open(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	log = log.With(logx.String("driver", driver))

	switch driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(ctx, cfg, log)
	case "postgres", "postgresql", "pgx":
		return openPostgres(ctx, cfg, log)
	case "bolt", "bbolt":
		return openBolt(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
