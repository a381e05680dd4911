// File: internal/browser/session.go
package browser

import (
	"time"

	"github.com/google/uuid"
)

// Session is the shared browser resource handed out by the Manager. The
// mutable fields are guarded by the owning Manager's mutex.
type Session struct {
	ID        uuid.UUID
	CreatedAt time.Time

	browser Browser

	idle         time.Duration
	lastActivity time.Time
	timer        Handle
	closed       bool
}

func newSession(b Browser, now time.Time) *Session {
	return &Session{
		ID:           uuid.New(),
		CreatedAt:    now,
		browser:      b,
		lastActivity: now,
	}
}

// Browser returns the underlying driver handle.
func (s *Session) Browser() Browser {
	return s.browser
}

// SessionInfo is a point in time view of a Session.
type SessionInfo struct {
	ID           string        `json:"id"`
	Version      string        `json:"version"`
	CreatedAt    time.Time     `json:"createdAt"`
	LastActivity time.Time     `json:"lastActivity"`
	Idle         time.Duration `json:"idleNanos"`
}
