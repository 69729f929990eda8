package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimemonitor/internal/domain"
	"github.com/hamed0406/uptimemonitor/internal/repo"
)

var _ repo.Store = (*Store)(nil)

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool, log: log}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// ---- MonitorStore ----

func (s *Store) ListActive(ctx context.Context) ([]domain.Monitor, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, url, check_interval_seconds, alert_email, is_active
		   FROM monitors
		  WHERE is_active = TRUE
		  ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list monitors: %w", err)
	}
	defer rows.Close()

	var out []domain.Monitor
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan monitor: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) Get(ctx context.Context, id domain.MonitorID) (*domain.Monitor, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, url, check_interval_seconds, alert_email, is_active
		   FROM monitors WHERE id = $1`, int64(id))
	m, err := scanMonitor(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get monitor: %w", err)
	}
	return &m, nil
}

func (s *Store) Upsert(ctx context.Context, m domain.Monitor) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO monitors (id, url, check_interval_seconds, alert_email, is_active)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE
		    SET url = EXCLUDED.url,
		        check_interval_seconds = EXCLUDED.check_interval_seconds,
		        alert_email = EXCLUDED.alert_email,
		        is_active = EXCLUDED.is_active`,
		int64(m.ID), m.URL, m.CheckIntervalSeconds, m.AlertEmail, m.IsActive)
	if err != nil {
		return fmt.Errorf("upsert monitor: %w", err)
	}
	// keep the serial ahead of explicitly seeded ids
	_, err = s.pool.Exec(ctx,
		`SELECT setval(pg_get_serial_sequence('monitors', 'id'), GREATEST((SELECT MAX(id) FROM monitors), 1))`)
	if err != nil {
		return fmt.Errorf("sync monitor sequence: %w", err)
	}
	return nil
}

func scanMonitor(row pgx.Row) (domain.Monitor, error) {
	var (
		id int64
		m  domain.Monitor
	)
	if err := row.Scan(&id, &m.URL, &m.CheckIntervalSeconds, &m.AlertEmail, &m.IsActive); err != nil {
		return domain.Monitor{}, err
	}
	m.ID = domain.MonitorID(id)
	return m, nil
}

// ---- CheckStore ----

func (s *Store) InsertCheck(ctx context.Context, c *domain.CheckResult) error {
	if c.CheckedAt.IsZero() {
		c.CheckedAt = time.Now().UTC()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO checks (monitor_id, status, latency_ms, error_message, checked_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		int64(c.MonitorID), string(c.Status), c.LatencyMS, c.ErrorMessage, c.CheckedAt,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("insert check: %w", err)
	}
	return nil
}

func (s *Store) LastStatus(ctx context.Context, id domain.MonitorID) (domain.Status, error) {
	var st string
	err := s.pool.QueryRow(ctx,
		`SELECT status
		   FROM checks
		  WHERE monitor_id = $1
		  ORDER BY checked_at DESC, id DESC
		  LIMIT 1`, int64(id)).Scan(&st)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.StatusUnknown, nil
	}
	if err != nil {
		return domain.StatusUnknown, fmt.Errorf("last status: %w", err)
	}
	return domain.Status(st), nil
}

func (s *Store) EvictChecksBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM checks
		 WHERE checked_at < $1
		   AND id <> (SELECT l.id FROM checks l
		               WHERE l.monitor_id = checks.monitor_id
		               ORDER BY l.checked_at DESC, l.id DESC
		               LIMIT 1)
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("evict checks: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ---- IncidentStore ----

func (s *Store) OpenIncident(ctx context.Context, id domain.MonitorID, startedAt time.Time) (*domain.Incident, error) {
	inc := domain.Incident{MonitorID: id, StartedAt: startedAt}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO incidents (monitor_id, started_at) VALUES ($1, $2) RETURNING id`,
		int64(id), startedAt).Scan(&inc.ID)
	if isUniqueViolation(err) {
		return nil, repo.ErrIncidentOpen
	}
	if err != nil {
		return nil, fmt.Errorf("open incident: %w", err)
	}
	return &inc, nil
}

func (s *Store) CloseIncident(ctx context.Context, id domain.MonitorID, endedAt time.Time) (*domain.Incident, error) {
	var (
		inc   domain.Incident
		monID int64
		end   time.Time
		secs  float64
	)
	err := s.pool.QueryRow(ctx, `
UPDATE incidents
   SET ended_at = $2,
       duration_seconds = EXTRACT(EPOCH FROM ($2::timestamptz - started_at))::double precision
 WHERE id = (SELECT id
               FROM incidents
              WHERE monitor_id = $1 AND ended_at IS NULL
              ORDER BY started_at DESC, id DESC
              LIMIT 1)
RETURNING id, monitor_id, started_at, ended_at, duration_seconds`,
		int64(id), endedAt,
	).Scan(&inc.ID, &monID, &inc.StartedAt, &end, &secs)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("close incident: %w", err)
	}
	inc.MonitorID = domain.MonitorID(monID)
	inc.EndedAt = &end
	inc.DurationSeconds = &secs
	return &inc, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
