package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimemonitor/internal/config"
	"github.com/hamed0406/uptimemonitor/internal/domain"
	"github.com/hamed0406/uptimemonitor/internal/repo"
	"github.com/hamed0406/uptimemonitor/internal/scheduler"
)

type reconciler interface {
	Reconcile(ctx context.Context) (scheduler.ReconcileResult, error)
}

// seedMonitors upserts the file's monitors. Monitors absent from the file
// are left untouched; set is_active: false to stop one.
func seedMonitors(ctx context.Context, store repo.MonitorStore, ms []domain.Monitor) error {
	for _, m := range ms {
		if err := store.Upsert(ctx, m); err != nil {
			return fmt.Errorf("seed monitor %d: %w", m.ID, err)
		}
	}
	return nil
}

// applyMonitors is the file watcher's callback: seed, then reconcile the
// scheduler against the store.
func applyMonitors(ctx context.Context, log *zap.Logger, store repo.MonitorStore, sched reconciler, ms []domain.Monitor) {
	if err := seedMonitors(ctx, store, ms); err != nil {
		log.Warn("monitors_seed_failed", zap.Error(err))
		return
	}
	if _, err := sched.Reconcile(ctx); err != nil {
		log.Warn("reconcile_failed", zap.Error(err))
	}
}

func watchMonitors(ctx context.Context, log *zap.Logger, store repo.MonitorStore, sched reconciler, path string) {
	err := config.Watch(ctx, log, path, func(ms []domain.Monitor) {
		applyMonitors(ctx, log, store, sched, ms)
	})
	if err != nil {
		log.Warn("monitors_file_watch_failed", zap.String("path", path), zap.Error(err))
	}
}
