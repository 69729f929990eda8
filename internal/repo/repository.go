package repo

import (
	"context"
	"errors"
	"time"

	"github.com/hamed0406/uptimemonitor/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrIncidentOpen is returned by OpenIncident when the monitor already has
	// an incident without an end timestamp.
	ErrIncidentOpen = errors.New("incident already open")
)

// Ports implemented by the memory, sqlite and postgres adapters.
type MonitorStore interface {
	ListActive(ctx context.Context) ([]domain.Monitor, error)
	Get(ctx context.Context, id domain.MonitorID) (*domain.Monitor, error)
	Upsert(ctx context.Context, m domain.Monitor) error
}

type CheckStore interface {
	InsertCheck(ctx context.Context, c *domain.CheckResult) error
	// LastStatus returns domain.StatusUnknown when the monitor has no checks.
	LastStatus(ctx context.Context, id domain.MonitorID) (domain.Status, error)
	// EvictChecksBefore deletes checks older than cutoff but always keeps
	// each monitor's newest check, so LastStatus survives retention.
	EvictChecksBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type IncidentStore interface {
	OpenIncident(ctx context.Context, id domain.MonitorID, startedAt time.Time) (*domain.Incident, error)
	// CloseIncident closes the most recent open incident and returns it with
	// its duration set. It returns nil, nil when none is open.
	CloseIncident(ctx context.Context, id domain.MonitorID, endedAt time.Time) (*domain.Incident, error)
}

type Store interface {
	MonitorStore
	CheckStore
	IncidentStore
	Ping(ctx context.Context) error
	Close()
}
