package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/webpilot/internal/transcript"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace for more robust SQL mock testing.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

// ArgumentMatcherFunc is a helper to create inline mock matchers.
type ArgumentMatcherFunc func(interface{}) bool

func (f ArgumentMatcherFunc) Match(v interface{}) bool {
	return f(v)
}

// encodedTranscriptOfLen matches a serialized transcript with n messages.
func encodedTranscriptOfLen(n int) ArgumentMatcherFunc {
	return func(v interface{}) bool {
		data, ok := v.([]byte)
		if !ok {
			return false
		}
		t, err := transcript.Decode(data)
		return err == nil && len(t) == n
	}
}

var jobColumns = []string{"id", "goal", "starting_url", "status", "transcript", "log", "output", "created_at", "updated_at", "completed_at"}

func setupPostgres(t *testing.T) (*Postgres, pgxmock.PgxPoolIface, *observer.ObservedLogs) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	core, logs := observer.New(zapcore.DebugLevel)
	mockPool.ExpectPing().WillReturnError(nil)
	s, err := NewPostgres(context.Background(), mockPool, zap.New(core))
	require.NoError(t, err)
	return s, mockPool, logs
}

// -- Test Cases --

func TestNewPostgres(t *testing.T) {
	t.Run("should return error if ping fails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err = NewPostgres(context.Background(), mockPool, zap.NewNop())
		require.Error(t, err)
		assert.ErrorIs(t, err, pingErr, "Error from ping should be propagated")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestEnsureSchema(t *testing.T) {
	t.Run("should create table and index in one transaction", func(t *testing.T) {
		s, mockPool, logs := setupPostgres(t)

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlCreateJobs)).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlCreateJobsIndex)).WillReturnResult(pgxmock.NewResult("CREATE INDEX", 0))
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, s.EnsureSchema(context.Background()))
		assert.NoError(t, mockPool.ExpectationsWereMet())
		assert.Empty(t, logs.FilterLevelExact(zapcore.ErrorLevel).All(), "a closed transaction is not a rollback failure")
	})

	t.Run("should roll back when a statement fails", func(t *testing.T) {
		s, mockPool, _ := setupPostgres(t)

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlCreateJobs)).WillReturnError(errors.New("permission denied"))
		mockPool.ExpectRollback()

		err := s.EnsureSchema(context.Background())
		assert.ErrorContains(t, err, "failed to apply schema")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPostgres_Insert(t *testing.T) {
	s, mockPool, _ := setupPostgres(t)
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	mockPool.ExpectQuery(flexibleSQLMatcher(sqlInsertJob)).
		WithArgs("extract price", "https://example.com", "pending", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(42), created))

	job, err := s.Insert(context.Background(), "extract price", "https://example.com")
	require.NoError(t, err)

	assert.Equal(t, int64(42), job.ID)
	assert.Equal(t, StatusPending, job.Status)
	assert.Equal(t, created, job.CreatedAt)
	assert.Nil(t, job.Output)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPostgres_UpdateStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("should guard on the allowed source statuses", func(t *testing.T) {
		s, mockPool, _ := setupPostgres(t)
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpdateStatus)).
			WithArgs(int64(1), "running", pgxmock.AnyArg(), []string{"pending"}).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, s.UpdateStatus(ctx, 1, StatusRunning))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should report an invalid transition when the guard rejects", func(t *testing.T) {
		s, mockPool, logs := setupPostgres(t)
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpdateStatus)).
			WithArgs(int64(1), "running", pgxmock.AnyArg(), []string{"pending"}).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelectStatus)).
			WithArgs(int64(1)).
			WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("completed"))

		err := s.UpdateStatus(ctx, 1, StatusRunning)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Contains(t, err.Error(), "job 1 is completed")
		assert.Len(t, logs.FilterMessage("Rejected job write").All(), 1)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should report a missing job", func(t *testing.T) {
		s, mockPool, _ := setupPostgres(t)
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpdateStatus)).
			WithArgs(int64(9), "running", pgxmock.AnyArg(), []string{"pending"}).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelectStatus)).
			WithArgs(int64(9)).
			WillReturnRows(pgxmock.NewRows([]string{"status"}))

		assert.ErrorIs(t, s.UpdateStatus(ctx, 9, StatusRunning), ErrJobNotFound)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should refuse to move back to pending without a query", func(t *testing.T) {
		s, mockPool, _ := setupPostgres(t)
		assert.ErrorIs(t, s.UpdateStatus(ctx, 1, StatusPending), ErrInvalidTransition)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPostgres_UpdateProgress(t *testing.T) {
	s, mockPool, _ := setupPostgres(t)
	tr := transcript.New("system", "goal", "<p>page</p>")
	log := []string{"[0ms]: Job started."}
	at := time.Date(2025, 3, 1, 12, 0, 5, 0, time.UTC)

	mockPool.ExpectExec(flexibleSQLMatcher(sqlUpdateProgress)).
		WithArgs(int64(3), encodedTranscriptOfLen(2), log, at, "running").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.UpdateProgress(context.Background(), 3, tr, log, at))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPostgres_Finalize(t *testing.T) {
	ctx := context.Background()
	tr := transcript.New("system", "goal", "")
	at := time.Date(2025, 3, 1, 12, 1, 0, 0, time.UTC)

	t.Run("should convert timestamps to UTC before persisting", func(t *testing.T) {
		s, mockPool, _ := setupPostgres(t)
		loc := time.FixedZone("EST", -5*3600)

		mockPool.ExpectExec(flexibleSQLMatcher(sqlFinalize)).
			WithArgs(int64(3), "completed", "$29/mo", encodedTranscriptOfLen(2), []string{}, at, []string{"running"}).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, s.Finalize(ctx, 3, "$29/mo", tr, nil, at.In(loc), StatusCompleted))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should allow failing a job that never started", func(t *testing.T) {
		s, mockPool, _ := setupPostgres(t)
		mockPool.ExpectExec(flexibleSQLMatcher(sqlFinalize)).
			WithArgs(int64(3), "failed", "Failed: boom", pgxmock.AnyArg(), pgxmock.AnyArg(), at, []string{"pending", "running"}).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, s.Finalize(ctx, 3, "Failed: boom", tr, []string{"x"}, at, StatusFailed))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should reject a non-terminal status", func(t *testing.T) {
		s, mockPool, _ := setupPostgres(t)
		assert.ErrorIs(t, s.Finalize(ctx, 3, "", tr, nil, at, StatusRunning), ErrInvalidTransition)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should propagate driver errors", func(t *testing.T) {
		s, mockPool, _ := setupPostgres(t)
		dbErr := errors.New("connection lost")
		mockPool.ExpectExec(flexibleSQLMatcher(sqlFinalize)).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(dbErr)

		err := s.Finalize(ctx, 3, "done", tr, nil, at, StatusCompleted)
		assert.ErrorIs(t, err, dbErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPostgres_Get(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	done := created.Add(time.Minute)
	output := "$29/mo"

	tr := transcript.New("system", "goal", "")
	tr.AppendAssistant("", &transcript.ToolCall{ID: "call_1", Name: "finish", Arguments: map[string]interface{}{"result": output}})
	raw, err := transcript.Encode(tr)
	require.NoError(t, err)

	t.Run("should decode a finished job", func(t *testing.T) {
		s, mockPool, _ := setupPostgres(t)
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelectJob)).
			WithArgs(int64(5)).
			WillReturnRows(pgxmock.NewRows(jobColumns).AddRow(
				int64(5), "extract price", "https://example.com", "completed",
				raw, []string{"[1ms]: Job started."}, &output,
				created, done, &done,
			))

		job, err := s.Get(ctx, 5)
		require.NoError(t, err)

		assert.Equal(t, StatusCompleted, job.Status)
		require.NotNil(t, job.Output)
		assert.Equal(t, output, *job.Output)
		assert.Len(t, job.Transcript, 3)
		assert.Equal(t, "finish", job.Transcript[2].ToolCall.Name)
		require.NotNil(t, job.CompletedAt)
		assert.Equal(t, done, *job.CompletedAt)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should keep nullable columns nil for a pending job", func(t *testing.T) {
		s, mockPool, _ := setupPostgres(t)
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelectJob)).
			WithArgs(int64(6)).
			WillReturnRows(pgxmock.NewRows(jobColumns).AddRow(
				int64(6), "goal", "https://example.com", "pending",
				[]byte("[]"), []string{}, nil,
				created, created, nil,
			))

		job, err := s.Get(ctx, 6)
		require.NoError(t, err)
		assert.Nil(t, job.Output)
		assert.Nil(t, job.CompletedAt)
		assert.Empty(t, job.Transcript)
	})

	t.Run("should map no rows to ErrJobNotFound", func(t *testing.T) {
		s, mockPool, _ := setupPostgres(t)
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelectJob)).
			WithArgs(int64(404)).
			WillReturnRows(pgxmock.NewRows(jobColumns))

		_, err := s.Get(ctx, 404)
		assert.ErrorIs(t, err, ErrJobNotFound)
	})
}

func TestPostgres_ListAll(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("should return rows in query order", func(t *testing.T) {
		s, mockPool, _ := setupPostgres(t)
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelectJobs)).
			WillReturnRows(pgxmock.NewRows(jobColumns).
				AddRow(int64(2), "b", "https://b.example", "running", []byte("[]"), []string{}, nil, created, created, nil).
				AddRow(int64(1), "a", "https://a.example", "pending", []byte("[]"), []string{}, nil, created, created, nil))

		jobs, err := s.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, jobs, 2)
		assert.Equal(t, int64(2), jobs[0].ID)
		assert.Equal(t, StatusRunning, jobs[0].Status)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should return an empty slice when there are no jobs", func(t *testing.T) {
		s, mockPool, _ := setupPostgres(t)
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelectJobs)).WillReturnRows(pgxmock.NewRows(jobColumns))

		jobs, err := s.ListAll(ctx)
		require.NoError(t, err)
		assert.NotNil(t, jobs)
		assert.Empty(t, jobs)
	})

	t.Run("should surface row iteration errors", func(t *testing.T) {
		s, mockPool, _ := setupPostgres(t)
		rowErr := errors.New("stream reset")
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelectJobs)).
			WillReturnRows(pgxmock.NewRows(jobColumns).
				AddRow(int64(1), "a", "https://a.example", "pending", []byte("[]"), []string{}, nil, created, created, nil).
				CloseError(rowErr))

		_, err := s.ListAll(ctx)
		assert.ErrorIs(t, err, rowErr)
	})
}
