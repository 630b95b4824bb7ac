package export

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// JobStore is the durable record of export jobs. The orchestrator is the
// sole writer; every other consumer reads only.
type JobStore interface {
	Create(ctx context.Context, clipID string) (*Job, error)
	Get(ctx context.Context, id string) (*Job, error)
	ListRecent(ctx context.Context, limit int) ([]*Job, error)
	MarkRunning(ctx context.Context, id string) error
	UpdateProgress(ctx context.Context, id string, percent int) error
	MarkSucceeded(ctx context.Context, id, outputLocator, thumbnailLocator string) error
	MarkFailed(ctx context.Context, id string, kind ErrorKind, detail string) error
	// CancelQueued terminalises a still-queued job as cancelled. Returns
	// false when the job already left the queued state.
	CancelQueued(ctx context.Context, id string) (bool, error)
}

type SQLiteStore struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Create inserts a queued job unless the clip already has one in flight.
// The conditional insert is the durable per-clip lock: it works across
// replicas because the database decides, not process memory.
func (s *SQLiteStore) Create(ctx context.Context, clipID string) (*Job, error) {
	job := &Job{
		ID:        uuid.New().String(),
		ClipID:    clipID,
		State:     StateQueued,
		CreatedAt: time.Now(),
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO export_jobs (id, clip_id, status, progress, created_at)
		SELECT ?, ?, ?, 0, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM export_jobs WHERE clip_id = ? AND status IN ('queued', 'running')
		)
	`, job.ID, clipID, string(StateQueued), job.CreatedAt.Format(time.RFC3339), clipID)
	if err != nil {
		// With concurrent writers both can pass the subquery; the loser
		// then trips the active-clip unique index instead.
		if isUniqueConstraint(err) {
			return nil, ErrExportInFlight
		}
		return nil, fmt.Errorf("create export job: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrExportInFlight
	}
	return job, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, clip_id, status, progress, error_kind, error_detail, output_locator, thumbnail_locator, created_at, started_at, completed_at
		FROM export_jobs WHERE id = ?
	`, id)
	return scanJob(row)
}

func (s *SQLiteStore) ListRecent(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, clip_id, status, progress, error_kind, error_detail, output_locator, thumbnail_locator, created_at, started_at, completed_at
		FROM export_jobs ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		j, err := scanJobRow(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *SQLiteStore) MarkRunning(ctx context.Context, id string) error {
	now := time.Now().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx, `
		UPDATE export_jobs SET status = ?, started_at = ?
		WHERE id = ? AND status = 'queued'
	`, string(StateRunning), now, id)
	if err != nil {
		return err
	}
	return s.guard(ctx, res, id, StateQueued)
}

// UpdateProgress writes a monotonically non-decreasing percent while the
// job is running. Writes against any other state report ErrNotRunning;
// progress is a UX nicety and its absence never blocks completion.
func (s *SQLiteStore) UpdateProgress(ctx context.Context, id string, percent int) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("progress %d out of range [0,100]", percent)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE export_jobs SET progress = ?
		WHERE id = ? AND status = 'running' AND progress <= ?
	`, percent, id, percent)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		job, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		if job == nil {
			return ErrNotFound
		}
		if job.State != StateRunning {
			return ErrNotRunning
		}
		// Regressing update against a running job: drop it silently,
		// the stored value stays monotonic.
	}
	return nil
}

func (s *SQLiteStore) MarkSucceeded(ctx context.Context, id, outputLocator, thumbnailLocator string) error {
	now := time.Now().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx, `
		UPDATE export_jobs
		SET status = ?, progress = 100, output_locator = ?, thumbnail_locator = ?, completed_at = ?
		WHERE id = ? AND status IN ('queued', 'running')
	`, string(StateSucceeded), outputLocator, nullable(thumbnailLocator), now, id)
	if err != nil {
		return err
	}
	return s.guardTerminal(ctx, res, id)
}

func (s *SQLiteStore) MarkFailed(ctx context.Context, id string, kind ErrorKind, detail string) error {
	now := time.Now().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx, `
		UPDATE export_jobs
		SET status = ?, error_kind = ?, error_detail = ?, completed_at = ?
		WHERE id = ? AND status IN ('queued', 'running')
	`, string(StateFailed), string(kind), detail, now, id)
	if err != nil {
		return err
	}
	return s.guardTerminal(ctx, res, id)
}

func (s *SQLiteStore) CancelQueued(ctx context.Context, id string) (bool, error) {
	now := time.Now().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx, `
		UPDATE export_jobs
		SET status = ?, error_kind = ?, error_detail = 'cancelled before start', completed_at = ?
		WHERE id = ? AND status = 'queued'
	`, string(StateFailed), string(KindCancelled), now, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// guardTerminal distinguishes "job missing" from "second terminal write"
// when a conditional terminal update matched no row.
func (s *SQLiteStore) guardTerminal(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if job == nil {
		return ErrNotFound
	}
	return ErrAlreadyTerminal
}

func (s *SQLiteStore) guard(ctx context.Context, res sql.Result, id string, want State) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if job == nil {
		return ErrNotFound
	}
	if job.State.Terminal() {
		return ErrAlreadyTerminal
	}
	return fmt.Errorf("export job %s is %s, want %s", id, job.State, want)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row *sql.Row) (*Job, error) {
	j, err := scanJobRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return j, err
}

func scanJobRow(row rowScanner) (*Job, error) {
	var j Job
	var status string
	var kind, detail, output, thumb sql.NullString
	var createdAt string
	var startedAt, completedAt sql.NullString

	err := row.Scan(&j.ID, &j.ClipID, &status, &j.Progress, &kind, &detail,
		&output, &thumb, &createdAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	j.State = State(status)
	j.ErrorKind = ErrorKind(kind.String)
	j.ErrorDetail = detail.String
	j.OutputLocator = output.String
	j.ThumbnailLocator = thumb.String
	j.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if startedAt.Valid {
		if t, err := time.Parse(time.RFC3339, startedAt.String); err == nil {
			j.StartedAt = &t
		}
	}
	if completedAt.Valid {
		if t, err := time.Parse(time.RFC3339, completedAt.String); err == nil {
			j.CompletedAt = &t
		}
	}
	return &j, nil
}

func isUniqueConstraint(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
