package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hamed0406/uptimemonitor/internal/domain"
	"github.com/hamed0406/uptimemonitor/internal/repo"
)

var _ repo.Store = (*Store)(nil)

type Store struct {
	mu        sync.RWMutex
	monitors  map[domain.MonitorID]domain.Monitor
	checks    []domain.CheckResult
	incidents []domain.Incident
	nextID    int64
}

func New() *Store {
	return &Store{
		monitors:  make(map[domain.MonitorID]domain.Monitor),
		checks:    make([]domain.CheckResult, 0, 128),
		incidents: make([]domain.Incident, 0, 16),
	}
}

func (m *Store) Ping(ctx context.Context) error { return nil }
func (m *Store) Close()                         {}

// ---- MonitorStore ----

func (m *Store) ListActive(ctx context.Context) ([]domain.Monitor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Monitor, 0, len(m.monitors))
	for _, mon := range m.monitors {
		if mon.IsActive {
			out = append(out, mon)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Store) Get(ctx context.Context, id domain.MonitorID) (*domain.Monitor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mon, ok := m.monitors[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &mon, nil
}

func (m *Store) Upsert(ctx context.Context, mon domain.Monitor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.monitors[mon.ID] = mon
	return nil
}

// ---- CheckStore ----

func (m *Store) InsertCheck(ctx context.Context, c *domain.CheckResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.CheckedAt.IsZero() {
		c.CheckedAt = time.Now().UTC()
	}
	m.nextID++
	c.ID = m.nextID
	m.checks = append(m.checks, *c)
	return nil
}

func (m *Store) LastStatus(ctx context.Context, id domain.MonitorID) (domain.Status, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var last *domain.CheckResult
	for i := range m.checks {
		c := &m.checks[i]
		if c.MonitorID != id {
			continue
		}
		// later insertion wins ties, matching ORDER BY checked_at DESC, id DESC
		if last == nil || !c.CheckedAt.Before(last.CheckedAt) {
			last = c
		}
	}
	if last == nil {
		return domain.StatusUnknown, nil
	}
	return last.Status, nil
}

func (m *Store) EvictChecksBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	newest := make(map[domain.MonitorID]int, len(m.monitors))
	for i, c := range m.checks {
		j, ok := newest[c.MonitorID]
		if !ok || !c.CheckedAt.Before(m.checks[j].CheckedAt) {
			newest[c.MonitorID] = i
		}
	}
	kept := m.checks[:0]
	var n int64
	for i, c := range m.checks {
		if c.CheckedAt.Before(cutoff) && newest[c.MonitorID] != i {
			n++
			continue
		}
		kept = append(kept, c)
	}
	m.checks = kept
	return n, nil
}

// ---- IncidentStore ----

func (m *Store) OpenIncident(ctx context.Context, id domain.MonitorID, startedAt time.Time) (*domain.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inc := range m.incidents {
		if inc.MonitorID == id && inc.Open() {
			return nil, repo.ErrIncidentOpen
		}
	}
	m.nextID++
	inc := domain.Incident{ID: m.nextID, MonitorID: id, StartedAt: startedAt}
	m.incidents = append(m.incidents, inc)
	return &inc, nil
}

func (m *Store) CloseIncident(ctx context.Context, id domain.MonitorID, endedAt time.Time) (*domain.Incident, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := -1
	for i, inc := range m.incidents {
		if inc.MonitorID != id || !inc.Open() {
			continue
		}
		if idx == -1 || !inc.StartedAt.Before(m.incidents[idx].StartedAt) {
			idx = i
		}
	}
	if idx == -1 {
		return nil, nil
	}
	secs := endedAt.Sub(m.incidents[idx].StartedAt).Seconds()
	end := endedAt
	m.incidents[idx].EndedAt = &end
	m.incidents[idx].DurationSeconds = &secs
	out := m.incidents[idx]
	return &out, nil
}

// ---- inspection helpers (tests, debugging) ----

// Checks returns a copy of the checks recorded for a monitor, oldest first.
func (m *Store) Checks(id domain.MonitorID) []domain.CheckResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.CheckResult
	for _, c := range m.checks {
		if c.MonitorID == id {
			out = append(out, c)
		}
	}
	return out
}

// Incidents returns a copy of the incidents recorded for a monitor.
func (m *Store) Incidents(id domain.MonitorID) []domain.Incident {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Incident
	for _, inc := range m.incidents {
		if inc.MonitorID == id {
			out = append(out, inc)
		}
	}
	return out
}
