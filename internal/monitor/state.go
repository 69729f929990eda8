package monitor

import (
	"context"
	"fmt"

	"github.com/hamed0406/uptimemonitor/internal/domain"
	"github.com/hamed0406/uptimemonitor/internal/repo"
)

// StateTracker reads the most recently recorded status for a monitor.
type StateTracker struct {
	checks repo.CheckStore
}

func NewStateTracker(checks repo.CheckStore) *StateTracker {
	return &StateTracker{checks: checks}
}

// Previous returns domain.StatusUnknown when the monitor has never been
// checked.
func (s *StateTracker) Previous(ctx context.Context, id domain.MonitorID) (domain.Status, error) {
	st, err := s.checks.LastStatus(ctx, id)
	if err != nil {
		return domain.StatusUnknown, fmt.Errorf("previous status: %w", err)
	}
	return st, nil
}
