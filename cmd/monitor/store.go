package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimemonitor/internal/config"
	"github.com/hamed0406/uptimemonitor/internal/repo"
	"github.com/hamed0406/uptimemonitor/internal/repo/memory"
	"github.com/hamed0406/uptimemonitor/internal/repo/postgres"
	"github.com/hamed0406/uptimemonitor/internal/repo/sqlite"
)

// openStore picks Postgres, then SQLite, then the in-memory store.
func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (repo.Store, error) {
	switch {
	case cfg.DatabaseURL != "":
		if err := postgres.Migrate(cfg.DatabaseURL, log); err != nil {
			return nil, err
		}
		s, err := postgres.New(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return nil, err
		}
		log.Info("store_postgres")
		return s, nil

	case cfg.SQLitePath != "":
		s, err := sqlite.Open(ctx, cfg.SQLitePath, log)
		if err != nil {
			return nil, err
		}
		return s, nil

	default:
		log.Warn("store_in_memory", zap.String("hint", "set DATABASE_URL or SQLITE_PATH to keep history across restarts"))
		return memory.New(), nil
	}
}
