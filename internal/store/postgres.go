// File: internal/store/postgres.go
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/internal/transcript"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const (
	sqlCreateJobs = `
        CREATE TABLE IF NOT EXISTS jobs (
            id BIGSERIAL PRIMARY KEY,
            goal TEXT NOT NULL,
            starting_url TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            transcript JSONB NOT NULL DEFAULT '[]'::jsonb,
            log TEXT[] NOT NULL DEFAULT '{}',
            output TEXT,
            created_at TIMESTAMPTZ NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL,
            completed_at TIMESTAMPTZ
        );
    `
	sqlCreateJobsIndex = `
        CREATE INDEX IF NOT EXISTS jobs_created_at_idx ON jobs (created_at DESC);
    `
	sqlInsertJob = `
        INSERT INTO jobs (goal, starting_url, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $4)
        RETURNING id, created_at;
    `
	sqlUpdateStatus = `
        UPDATE jobs SET status = $2, updated_at = $3
        WHERE id = $1 AND status = ANY($4);
    `
	sqlUpdateProgress = `
        UPDATE jobs SET transcript = $2, log = $3, updated_at = $4
        WHERE id = $1 AND status = $5;
    `
	sqlFinalize = `
        UPDATE jobs SET status = $2, output = $3, transcript = $4, log = $5, updated_at = $6, completed_at = $6
        WHERE id = $1 AND status = ANY($7);
    `
	sqlSelectStatus = `SELECT status FROM jobs WHERE id = $1;`
	sqlSelectJob    = `
        SELECT id, goal, starting_url, status, transcript, log, output, created_at, updated_at, completed_at
        FROM jobs
        WHERE id = $1;
    `
	sqlSelectJobs = `
        SELECT id, goal, starting_url, status, transcript, log, output, created_at, updated_at, completed_at
        FROM jobs
        ORDER BY created_at DESC, id DESC;
    `
)

// Postgres provides a PostgreSQL implementation of the JobStore interface.
type Postgres struct {
	pool DBPool
	log  *zap.Logger
	now  func() time.Time
}

var _ JobStore = (*Postgres)(nil)

// NewPostgres creates a new store instance and verifies the connection.
func NewPostgres(ctx context.Context, pool DBPool, logger *zap.Logger) (*Postgres, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Postgres{
		pool: pool,
		log:  logger.Named("store"),
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

// EnsureSchema creates the jobs table if it does not exist.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	for _, stmt := range []string{sqlCreateJobs, sqlCreateJobsIndex} {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit schema: %w", err)
	}
	return nil
}

func (s *Postgres) Insert(ctx context.Context, goal, startingURL string) (Job, error) {
	job := Job{Goal: goal, StartingURL: startingURL, Status: StatusPending, Transcript: transcript.Transcript{}, Log: []string{}}
	now := s.now()

	row := s.pool.QueryRow(ctx, sqlInsertJob, goal, startingURL, string(StatusPending), now)
	if err := row.Scan(&job.ID, &job.CreatedAt); err != nil {
		return Job{}, fmt.Errorf("failed to insert job: %w", err)
	}
	job.UpdatedAt = job.CreatedAt
	return job, nil
}

func (s *Postgres) UpdateStatus(ctx context.Context, id int64, status Status) error {
	from := statusStrings(allowedFrom[status])
	if len(from) == 0 {
		return fmt.Errorf("%w: nothing may move to %q", ErrInvalidTransition, status)
	}

	tag, err := s.pool.Exec(ctx, sqlUpdateStatus, id, string(status), s.now(), from)
	if err != nil {
		return fmt.Errorf("failed to update status of job %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.explainMiss(ctx, id, status)
	}
	return nil
}

func (s *Postgres) UpdateProgress(ctx context.Context, id int64, t transcript.Transcript, log []string, at time.Time) error {
	data, err := transcript.Encode(t)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, sqlUpdateProgress, id, data, nonNilLog(log), at.UTC(), string(StatusRunning))
	if err != nil {
		return fmt.Errorf("failed to update progress of job %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.explainMiss(ctx, id, StatusRunning)
	}
	return nil
}

func (s *Postgres) Finalize(ctx context.Context, id int64, output string, t transcript.Transcript, log []string, at time.Time, status Status) error {
	if err := checkTerminal(status); err != nil {
		return err
	}
	data, err := transcript.Encode(t)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, sqlFinalize, id, string(status), output, data, nonNilLog(log), at.UTC(), statusStrings(allowedFrom[status]))
	if err != nil {
		return fmt.Errorf("failed to finalize job %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.explainMiss(ctx, id, status)
	}
	return nil
}

func (s *Postgres) Get(ctx context.Context, id int64) (*Job, error) {
	job, err := scanJob(s.pool.QueryRow(ctx, sqlSelectJob, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job %d: %w", id, err)
	}
	return job, nil
}

func (s *Postgres) ListAll(ctx context.Context) ([]Job, error) {
	rows, err := s.pool.Query(ctx, sqlSelectJobs)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	jobs := []Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return jobs, nil
}

// explainMiss turns a zero-row guarded update into the right sentinel.
func (s *Postgres) explainMiss(ctx context.Context, id int64, target Status) error {
	var current string
	err := s.pool.QueryRow(ctx, sqlSelectStatus, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read status of job %d: %w", id, err)
	}
	s.log.Debug("Rejected job write", zap.Int64("job_id", id), zap.String("current", current), zap.String("target", string(target)))
	return fmt.Errorf("%w: job %d is %s, cannot move to %s", ErrInvalidTransition, id, current, target)
}

func scanJob(row pgx.Row) (*Job, error) {
	var (
		job  Job
		raw  []byte
		stat string
	)
	if err := row.Scan(
		&job.ID, &job.Goal, &job.StartingURL, &stat,
		&raw, &job.Log, &job.Output,
		&job.CreatedAt, &job.UpdatedAt, &job.CompletedAt,
	); err != nil {
		return nil, err
	}
	job.Status = Status(stat)

	t, err := transcript.Decode(raw)
	if err != nil {
		return nil, err
	}
	job.Transcript = t
	if job.Log == nil {
		job.Log = []string{}
	}
	return &job, nil
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func nonNilLog(log []string) []string {
	if log == nil {
		return []string{}
	}
	return log
}
