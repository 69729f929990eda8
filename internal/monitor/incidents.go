package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/hamed0406/uptimemonitor/internal/domain"
	"github.com/hamed0406/uptimemonitor/internal/repo"
)

// IncidentTracker opens and closes incident spans. The store enforces one
// open incident per monitor; Open surfaces that as repo.ErrIncidentOpen.
type IncidentTracker struct {
	store repo.IncidentStore
	now   func() time.Time
}

func NewIncidentTracker(store repo.IncidentStore) *IncidentTracker {
	return &IncidentTracker{store: store, now: time.Now}
}

func (t *IncidentTracker) Open(ctx context.Context, id domain.MonitorID) (*domain.Incident, error) {
	inc, err := t.store.OpenIncident(ctx, id, t.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("open incident: %w", err)
	}
	return inc, nil
}

// Close ends the open incident and returns its duration. ok is false when
// there was nothing to close.
func (t *IncidentTracker) Close(ctx context.Context, id domain.MonitorID) (d time.Duration, ok bool, err error) {
	inc, err := t.store.CloseIncident(ctx, id, t.now().UTC())
	if err != nil {
		return 0, false, fmt.Errorf("close incident: %w", err)
	}
	if inc == nil {
		return 0, false, nil
	}
	return inc.Duration(), true, nil
}
