// Package sqlite is a single-file store for small deployments where running
// Postgres is not worth it.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimemonitor/internal/domain"
	"github.com/hamed0406/uptimemonitor/internal/repo"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var _ repo.Store = (*Store)(nil)

type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// Open migrates the database at path and returns a store over it.
func Open(ctx context.Context, path string, log *zap.Logger) (*Store, error) {
	if err := migrateUp(path, log); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Single connection prevents concurrent write contention in SQLite.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	log.Info("sqlite_ready", zap.String("path", path))
	return &Store{db: db, log: log}, nil
}

func dsn(path string) string {
	return "file:" + path + "?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"
}

func migrateUp(path string, log *zap.Logger) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrations source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, "sqlite3://"+path)
	if err != nil {
		return fmt.Errorf("migrate init: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	v, dirty, _ := m.Version()
	log.Info("sqlite_migrated", zap.Uint("version", v), zap.Bool("dirty", dirty))
	return nil
}

func (s *Store) Close() {
	if err := s.db.Close(); err != nil {
		s.log.Warn("sqlite_close_error", zap.Error(err))
	}
}

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// ---- MonitorStore ----

func (s *Store) ListActive(ctx context.Context) ([]domain.Monitor, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, url, check_interval_seconds, alert_email, is_active
		   FROM monitors WHERE is_active = 1 ORDER BY id`)
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
	row := s.db.QueryRowContext(ctx,
		`SELECT id, url, check_interval_seconds, alert_email, is_active
		   FROM monitors WHERE id = ?`, int64(id))
	m, err := scanMonitor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get monitor: %w", err)
	}
	return &m, nil
}

func (s *Store) Upsert(ctx context.Context, m domain.Monitor) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO monitors (id, url, check_interval_seconds, alert_email, is_active)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			url = excluded.url,
			check_interval_seconds = excluded.check_interval_seconds,
			alert_email = excluded.alert_email,
			is_active = excluded.is_active
	`, int64(m.ID), m.URL, m.CheckIntervalSeconds, m.AlertEmail, m.IsActive)
	if err != nil {
		return fmt.Errorf("upsert monitor: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMonitor(row scanner) (domain.Monitor, error) {
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
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO checks (monitor_id, status, latency_ms, error_message, checked_at)
		VALUES (?, ?, ?, ?, ?)
	`, int64(c.MonitorID), string(c.Status), nullInt(c.LatencyMS), nullString(c.ErrorMessage), c.CheckedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert check: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		c.ID = id
	}
	return nil
}

func (s *Store) LastStatus(ctx context.Context, id domain.MonitorID) (domain.Status, error) {
	var st string
	err := s.db.QueryRowContext(ctx, `
		SELECT status FROM checks
		 WHERE monitor_id = ?
		 ORDER BY checked_at DESC, id DESC
		 LIMIT 1
	`, int64(id)).Scan(&st)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StatusUnknown, nil
	}
	if err != nil {
		return domain.StatusUnknown, fmt.Errorf("last status: %w", err)
	}
	return domain.Status(st), nil
}

func (s *Store) EvictChecksBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM checks
		 WHERE checked_at < ?
		   AND id <> (SELECT l.id FROM checks l
		               WHERE l.monitor_id = checks.monitor_id
		               ORDER BY l.checked_at DESC, l.id DESC
		               LIMIT 1)
	`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("evict checks: %w", err)
	}
	return res.RowsAffected()
}

// ---- IncidentStore ----

func (s *Store) OpenIncident(ctx context.Context, id domain.MonitorID, startedAt time.Time) (*domain.Incident, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO incidents (monitor_id, started_at) VALUES (?, ?)`,
		int64(id), startedAt.UnixNano())
	if isUniqueViolation(err) {
		return nil, repo.ErrIncidentOpen
	}
	if err != nil {
		return nil, fmt.Errorf("open incident: %w", err)
	}
	inc := &domain.Incident{MonitorID: id, StartedAt: startedAt}
	if incID, err := res.LastInsertId(); err == nil {
		inc.ID = incID
	}
	return inc, nil
}

func (s *Store) CloseIncident(ctx context.Context, id domain.MonitorID, endedAt time.Time) (*domain.Incident, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("close incident: begin: %w", err)
	}
	defer tx.Rollback()

	var (
		incID   int64
		started int64
	)
	err = tx.QueryRowContext(ctx, `
		SELECT id, started_at FROM incidents
		 WHERE monitor_id = ? AND ended_at IS NULL
		 ORDER BY started_at DESC, id DESC
		 LIMIT 1
	`, int64(id)).Scan(&incID, &started)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("close incident: select: %w", err)
	}

	start := time.Unix(0, started).UTC()
	secs := endedAt.Sub(start).Seconds()
	if _, err := tx.ExecContext(ctx,
		`UPDATE incidents SET ended_at = ?, duration_seconds = ? WHERE id = ?`,
		endedAt.UnixNano(), secs, incID); err != nil {
		return nil, fmt.Errorf("close incident: update: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("close incident: commit: %w", err)
	}

	end := endedAt
	return &domain.Incident{
		ID:              incID,
		MonitorID:       id,
		StartedAt:       start,
		EndedAt:         &end,
		DurationSeconds: &secs,
	}, nil
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
