// File: internal/job/validation.go
package job

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

// DefaultMaxGoalLength bounds the goal text when the configuration does not.
const DefaultMaxGoalLength = 1000

// ErrInvalidRequest marks job requests rejected before a job is created.
var ErrInvalidRequest = errors.New("invalid job request")

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidRequest }

// Request is a validated job submission.
type Request struct {
	Goal        string
	StartingURL string
}

// NewRequest trims and validates a submission. The starting URL must be an
// absolute http or https URL; the goal must be non-empty and at most
// maxGoalLength characters.
func NewRequest(goal, startingURL string, maxGoalLength int) (Request, error) {
	if maxGoalLength <= 0 {
		maxGoalLength = DefaultMaxGoalLength
	}
	goal = strings.TrimSpace(goal)
	startingURL = strings.TrimSpace(startingURL)

	if startingURL == "" {
		return Request{}, &ValidationError{Field: "startingUrl", Reason: "is required"}
	}
	u, err := url.Parse(startingURL)
	if err != nil {
		return Request{}, &ValidationError{Field: "startingUrl", Reason: "is not a valid URL"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Request{}, &ValidationError{Field: "startingUrl", Reason: "must use http or https"}
	}
	if u.Host == "" {
		return Request{}, &ValidationError{Field: "startingUrl", Reason: "must include a host"}
	}

	if goal == "" {
		return Request{}, &ValidationError{Field: "goal", Reason: "is required"}
	}
	if n := utf8.RuneCountInString(goal); n > maxGoalLength {
		return Request{}, &ValidationError{Field: "goal", Reason: fmt.Sprintf("is too long (%d characters, max %d)", n, maxGoalLength)}
	}
	return Request{Goal: goal, StartingURL: startingURL}, nil
}
