// File: internal/store/store.go
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xkilldash9x/webpilot/internal/transcript"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

var (
	// ErrJobNotFound is returned when no job exists with the requested id.
	ErrJobNotFound = errors.New("job not found")
	// ErrInvalidTransition is returned when a write would move a job backwards
	// or out of a terminal state.
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// IsTerminal reports whether no further transitions are possible from s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// allowedFrom lists the statuses a job may be in before moving to the key.
// A pending job may fail directly when it never got a chance to start.
var allowedFrom = map[Status][]Status{
	StatusRunning:   {StatusPending},
	StatusCompleted: {StatusRunning},
	StatusFailed:    {StatusPending, StatusRunning},
}

// CanTransition reports whether a job in from may move to to.
func CanTransition(from, to Status) bool {
	for _, s := range allowedFrom[to] {
		if s == from {
			return true
		}
	}
	return false
}

// Job is the durable record of one automation request.
type Job struct {
	ID          int64                 `json:"id" yaml:"id"`
	Goal        string                `json:"goal" yaml:"goal"`
	StartingURL string                `json:"startingUrl" yaml:"starting_url"`
	Status      Status                `json:"status" yaml:"status"`
	Transcript  transcript.Transcript `json:"transcript" yaml:"-"`
	Log         []string              `json:"log" yaml:"log"`
	Output      *string               `json:"output" yaml:"output"`
	CreatedAt   time.Time             `json:"createdAt" yaml:"created_at"`
	UpdatedAt   time.Time             `json:"updatedAt" yaml:"updated_at"`
	CompletedAt *time.Time            `json:"completedAt" yaml:"completed_at"`
}

// JobStore persists jobs. Implementations enforce the status machine
// pending -> running -> {completed, failed} and reject anything else with
// ErrInvalidTransition.
type JobStore interface {
	// Insert creates a pending job.
	Insert(ctx context.Context, goal, startingURL string) (Job, error)
	// UpdateStatus moves a job to status.
	UpdateStatus(ctx context.Context, id int64, status Status) error
	// UpdateProgress checkpoints the transcript and log of a running job.
	UpdateProgress(ctx context.Context, id int64, t transcript.Transcript, log []string, at time.Time) error
	// Finalize records the outcome and moves the job to a terminal status.
	Finalize(ctx context.Context, id int64, output string, t transcript.Transcript, log []string, at time.Time, status Status) error
	// Get returns the job or ErrJobNotFound.
	Get(ctx context.Context, id int64) (*Job, error)
	// ListAll returns every job, newest first.
	ListAll(ctx context.Context) ([]Job, error)
}

func checkTerminal(status Status) error {
	if !status.IsTerminal() {
		return fmt.Errorf("%w: finalize requires a terminal status, got %q", ErrInvalidTransition, status)
	}
	return nil
}
