package main

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimemonitor/internal/domain"
	"github.com/hamed0406/uptimemonitor/internal/monitor"
	"github.com/hamed0406/uptimemonitor/internal/repo/memory"
	"github.com/hamed0406/uptimemonitor/internal/scheduler"
)

type idleRunner struct{}

func (idleRunner) Run(context.Context, domain.Monitor) (monitor.Outcome, error) {
	return monitor.Outcome{}, nil
}

func TestApplyMonitors_SeedsAndReconciles(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	sched := scheduler.New(zap.NewNop(), idleRunner{}, store, time.Second, nil)
	defer sched.Stop()

	applyMonitors(ctx, zap.NewNop(), store, sched, []domain.Monitor{
		{ID: 1, URL: "https://a.example", CheckIntervalSeconds: 3600, IsActive: true},
		{ID: 2, URL: "https://b.example", CheckIntervalSeconds: 3600, IsActive: false},
	})

	if got := sched.Jobs(); len(got) != 1 || got[0] != 1 {
		t.Fatalf("want job for monitor 1 only, got %v", got)
	}

	// deactivating through the file removes the job
	applyMonitors(ctx, zap.NewNop(), store, sched, []domain.Monitor{
		{ID: 1, URL: "https://a.example", CheckIntervalSeconds: 3600, IsActive: false},
	})
	if got := sched.Jobs(); len(got) != 0 {
		t.Fatalf("want no jobs, got %v", got)
	}
}
