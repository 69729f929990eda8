package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimemonitor/internal/repo"
)

// Evictor deletes check rows older than Retention on every tick.
type Evictor struct {
	Logger    *zap.Logger
	Checks    repo.CheckStore
	Retention time.Duration
	Interval  time.Duration
	Clock     Clock
}

func NewEvictor(logger *zap.Logger, checks repo.CheckStore, retention, interval time.Duration) *Evictor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Evictor{
		Logger:    logger,
		Checks:    checks,
		Retention: retention,
		Interval:  interval,
		Clock:     RealClock(),
	}
}

// Run does an immediate pass, then one per tick, until ctx is cancelled.
func (e *Evictor) Run(ctx context.Context) {
	if e.Retention <= 0 {
		e.Logger.Info("evictor_disabled")
		return
	}
	t := e.Clock.NewTicker(e.Interval)
	defer t.Stop()

	e.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			e.Logger.Info("evictor_stopped")
			return
		case <-t.C():
			e.runOnce(ctx)
		}
	}
}

func (e *Evictor) runOnce(ctx context.Context) {
	cutoff := e.Clock.Now().UTC().Add(-e.Retention)
	n, err := e.Checks.EvictChecksBefore(ctx, cutoff)
	if err != nil {
		e.Logger.Warn("evictor_error", zap.Error(err))
		return
	}
	if n > 0 {
		e.Logger.Info("evictor_deleted", zap.Int64("rows", n), zap.Time("cutoff", cutoff))
	}
}

// RunReconcile calls Reconcile every interval until ctx is cancelled. A
// non-positive interval disables it.
func (s *Scheduler) RunReconcile(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		s.log.Info("reconcile_loop_disabled")
		return
	}
	t := s.clock.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C():
			if _, err := s.Reconcile(ctx); err != nil {
				s.log.Warn("reconcile_failed", zap.Error(err))
			}
		}
	}
}
