// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/internal/config"
)

// probeTimeout bounds the connectivity check done on every AcquireSession.
const probeTimeout = 3 * time.Second

// Manager owns the single browser session of this worker. Launching and
// retiring the session are serialized behind mu; page operations are not.
type Manager struct {
	launcher    Launcher
	scheduler   Scheduler
	idleTimeout time.Duration
	tick        time.Duration
	logger      *zap.Logger
	now         func() time.Time

	mu      sync.Mutex
	current *Session
}

// NewManager creates a manager. No browser is started until the first AcquireSession.
func NewManager(cfg config.BrowserConfig, launcher Launcher, scheduler Scheduler, logger *zap.Logger) *Manager {
	if scheduler == nil {
		scheduler = TimerScheduler{}
	}
	return &Manager{
		launcher:    launcher,
		scheduler:   scheduler,
		idleTimeout: cfg.IdleTimeout,
		tick:        cfg.IdleCheckInterval,
		logger:      logger.Named("browser_manager"),
		now:         time.Now,
	}
}

// AcquireSession returns the live session, launching a new browser when there
// is none or the previous one lost its connection.
func (m *Manager) AcquireSession(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s := m.current; s != nil {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		connected := s.browser.Connected(probeCtx)
		cancel()
		if connected {
			// Handing the session to a job counts as activity.
			s.idle = 0
			s.lastActivity = m.now()
			return s, nil
		}
		m.logger.Warn("Browser session disconnected; relaunching.", zap.String("session_id", s.ID.String()))
		m.releaseLocked(s)
	}

	b, err := m.launcher.Launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	s := newSession(b, m.now())
	m.current = s
	s.timer = m.scheduler.ScheduleOnce(m.tick, func() { m.OnIdleTick(s) })

	m.logger.Info("Browser session launched.",
		zap.String("session_id", s.ID.String()),
		zap.String("version", b.Version()),
		zap.Duration("idle_timeout", m.idleTimeout),
	)
	return s, nil
}

// NewPage opens a fresh tab in s.
func (m *Manager) NewPage(ctx context.Context, s *Session) (Page, error) {
	m.mu.Lock()
	closed := s.closed
	m.mu.Unlock()
	if closed {
		return nil, ErrSessionClosed
	}

	page, err := s.browser.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	return page, nil
}

// RecordActivity resets the idle clock of s.
func (m *Manager) RecordActivity(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.idle = 0
	s.lastActivity = m.now()
}

// OnIdleTick advances the idle counter of s by one check interval. Once the
// counter exceeds the idle timeout the session is closed and released;
// otherwise the next check is scheduled.
func (m *Manager) OnIdleTick(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.closed || m.current != s {
		return
	}

	s.idle += m.tick
	if s.idle > m.idleTimeout {
		m.logger.Info("Closing idle browser session.",
			zap.String("session_id", s.ID.String()),
			zap.Duration("idle", s.idle),
		)
		m.releaseLocked(s)
		return
	}
	s.timer = m.scheduler.ScheduleOnce(m.tick, func() { m.OnIdleTick(s) })
}

// Info reports the live session, if any.
func (m *Manager) Info() (SessionInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.current
	if s == nil {
		return SessionInfo{}, false
	}
	return SessionInfo{
		ID:           s.ID.String(),
		Version:      s.browser.Version(),
		CreatedAt:    s.CreatedAt,
		LastActivity: s.lastActivity,
		Idle:         s.idle,
	}, true
}

// Shutdown closes the live session regardless of activity.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	s := m.current
	if s == nil {
		m.mu.Unlock()
		return nil
	}
	m.detachLocked(s)
	m.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- s.browser.Close() }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to close browser: %w", err)
		}
		m.logger.Info("Browser manager shut down.", zap.String("session_id", s.ID.String()))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timed out closing browser session: %w", ctx.Err())
	}
}

// detachLocked marks s closed, stops its idle timer and forgets it. m.mu must be held.
func (m *Manager) detachLocked(s *Session) {
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	if m.current == s {
		m.current = nil
	}
}

// releaseLocked detaches s and closes its browser. m.mu must be held.
func (m *Manager) releaseLocked(s *Session) {
	if s.closed {
		return
	}
	m.detachLocked(s)
	if err := s.browser.Close(); err != nil {
		m.logger.Warn("Error while closing browser.", zap.String("session_id", s.ID.String()), zap.Error(err))
	}
}
