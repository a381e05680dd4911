// File: internal/job/dispatcher.go
package job

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/store"
)

// ErrShuttingDown is returned for work submitted after Shutdown began.
var ErrShuttingDown = errors.New("dispatcher is shutting down")

// Executor runs one job to completion.
type Executor interface {
	Run(ctx context.Context, id int64) error
}

// Ticket is what a caller gets back when a job is accepted.
type Ticket struct {
	JobID     int64        `json:"jobId"`
	Status    store.Status `json:"status"`
	CreatedAt time.Time    `json:"createdAt"`
}

// Dispatcher runs jobs in the background. Callers never wait for a job; they
// poll the store. At most cfg.Concurrency jobs run at once.
type Dispatcher struct {
	store         store.JobStore
	runner        Executor
	sem           *semaphore.Weighted
	maxGoalLength int
	persist       time.Duration
	logger        *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewDispatcher creates a dispatcher whose jobs run under their own context,
// independent of the request that created them.
func NewDispatcher(cfg config.JobConfig, st store.JobStore, runner Executor, logger *zap.Logger) *Dispatcher {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	persist := cfg.PersistTimeout
	if persist <= 0 {
		persist = defaultPersistTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		store:         st,
		runner:        runner,
		sem:           semaphore.NewWeighted(int64(concurrency)),
		maxGoalLength: cfg.MaxGoalLength,
		persist:       persist,
		logger:        logger.Named("dispatcher"),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Create validates the request, records a pending job and dispatches it.
func (d *Dispatcher) Create(ctx context.Context, goal, startingURL string) (Ticket, error) {
	req, err := NewRequest(goal, startingURL, d.maxGoalLength)
	if err != nil {
		return Ticket{}, err
	}
	if d.isClosed() {
		return Ticket{}, ErrShuttingDown
	}

	job, err := d.store.Insert(ctx, req.Goal, req.StartingURL)
	if err != nil {
		return Ticket{}, fmt.Errorf("failed to create job: %w", err)
	}
	if err := d.Submit(job.ID); err != nil {
		d.abandon(job.ID, err)
		return Ticket{}, err
	}
	return Ticket{JobID: job.ID, Status: store.StatusPending, CreatedAt: job.CreatedAt}, nil
}

// Submit schedules job id and returns immediately.
func (d *Dispatcher) Submit(id int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrShuttingDown
	}
	d.wg.Add(1)
	go d.run(id)
	return nil
}

func (d *Dispatcher) run(id int64) {
	defer d.wg.Done()
	logger := d.logger.With(zap.Int64("job_id", id))

	if err := d.sem.Acquire(d.ctx, 1); err != nil {
		d.abandon(id, ErrShuttingDown)
		return
	}
	defer d.sem.Release(1)

	defer func() {
		if p := recover(); p != nil {
			logger.Error("Panic recovered while running job",
				zap.Any("panic_value", p),
				zap.Stack("stack"),
			)
			d.abandon(id, fmt.Errorf("unexpected panic: %v", p))
		}
	}()

	if err := d.runner.Run(d.ctx, id); err != nil {
		logger.Error("Job run ended with an error.", zap.Error(err))
	}
}

// abandon fails a job that never reached a normal end. It is a no-op for
// jobs that already finished.
func (d *Dispatcher) abandon(id int64, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), d.persist)
	defer cancel()

	job, err := d.store.Get(ctx, id)
	if err != nil || job.Status.IsTerminal() {
		return
	}
	msg := cause.Error()
	log := append([]string{"Critical Error: " + msg}, job.Log...)
	if err := d.store.Finalize(ctx, id, "Failed: "+msg, job.Transcript, log, time.Now(), store.StatusFailed); err != nil {
		d.logger.Error("Failed to mark abandoned job as failed.", zap.Int64("job_id", id), zap.String("cause", msg), zap.Error(err))
	}
}

func (d *Dispatcher) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Wait blocks until every dispatched job has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Shutdown stops accepting jobs and waits for running ones. When ctx expires
// first, running jobs are cancelled and the wait continues until they return.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		d.logger.Info("Dispatcher drained.")
		return nil
	case <-ctx.Done():
		d.logger.Warn("Shutdown deadline reached; cancelling running jobs.")
		d.cancel()
		<-done
		return fmt.Errorf("dispatcher shutdown: %w", ctx.Err())
	}
}
