// File: internal/store/memory.go
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xkilldash9x/webpilot/internal/transcript"
)

// Memory is a process local JobStore. Jobs are lost on exit.
type Memory struct {
	mu     sync.RWMutex
	jobs   map[int64]*Job
	nextID int64
	now    func() time.Time
}

var _ JobStore = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		jobs: make(map[int64]*Job),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) Insert(ctx context.Context, goal, startingURL string) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	now := m.now()
	job := &Job{
		ID:          m.nextID,
		Goal:        goal,
		StartingURL: startingURL,
		Status:      StatusPending,
		Transcript:  transcript.Transcript{},
		Log:         []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.jobs[job.ID] = job
	return copyJob(job), nil
}

func (m *Memory) UpdateStatus(ctx context.Context, id int64, status Status) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	job, err := m.transitionLocked(id, status)
	if err != nil {
		return err
	}
	job.Status = status
	job.UpdatedAt = m.now()
	return nil
}

func (m *Memory) UpdateProgress(ctx context.Context, id int64, t transcript.Transcript, log []string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if job.Status != StatusRunning {
		return fmt.Errorf("%w: job %d is %s, cannot record progress", ErrInvalidTransition, id, job.Status)
	}
	job.Transcript = t.Clone()
	job.Log = append([]string{}, log...)
	job.UpdatedAt = at.UTC()
	return nil
}

func (m *Memory) Finalize(ctx context.Context, id int64, output string, t transcript.Transcript, log []string, at time.Time, status Status) error {
	if err := checkTerminal(status); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	job, err := m.transitionLocked(id, status)
	if err != nil {
		return err
	}
	at = at.UTC()
	job.Status = status
	job.Output = &output
	job.Transcript = t.Clone()
	job.Log = append([]string{}, log...)
	job.UpdatedAt = at
	job.CompletedAt = &at
	return nil
}

func (m *Memory) Get(ctx context.Context, id int64) (*Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	c := copyJob(job)
	return &c, nil
}

func (m *Memory) ListAll(ctx context.Context) ([]Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, copyJob(job))
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID > jobs[j].ID })
	return jobs, nil
}

func (m *Memory) transitionLocked(id int64, to Status) (*Job, error) {
	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	if !CanTransition(job.Status, to) {
		return nil, fmt.Errorf("%w: job %d is %s, cannot move to %s", ErrInvalidTransition, id, job.Status, to)
	}
	return job, nil
}

func copyJob(j *Job) Job {
	c := *j
	c.Transcript = j.Transcript.Clone()
	c.Log = append([]string{}, j.Log...)
	if j.Output != nil {
		out := *j.Output
		c.Output = &out
	}
	if j.CompletedAt != nil {
		at := *j.CompletedAt
		c.CompletedAt = &at
	}
	return c
}
