// File: internal/browser/manager_test.go
package browser

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/webpilot/internal/config"
)

// -- Test Doubles --

type fakeBrowser struct {
	connected  atomic.Bool
	closeCalls atomic.Int32
	pageErr    error
}

func newFakeBrowser() *fakeBrowser {
	b := &fakeBrowser{}
	b.connected.Store(true)
	return b
}

func (b *fakeBrowser) NewPage(ctx context.Context) (Page, error) {
	if b.pageErr != nil {
		return nil, b.pageErr
	}
	return nil, nil
}
func (b *fakeBrowser) Connected(ctx context.Context) bool { return b.connected.Load() }
func (b *fakeBrowser) Version() string                    { return "FakeChrome/1.0" }
func (b *fakeBrowser) Close() error {
	b.closeCalls.Add(1)
	b.connected.Store(false)
	return nil
}

type countingLauncher struct {
	mu       sync.Mutex
	launched []*fakeBrowser
	err      error
}

func (l *countingLauncher) Launch(ctx context.Context) (Browser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	b := newFakeBrowser()
	l.launched = append(l.launched, b)
	return b, nil
}

func (l *countingLauncher) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.launched)
}

type manualTask struct {
	delay   time.Duration
	fn      func()
	stopped atomic.Bool
}

func (t *manualTask) Stop() bool { return !t.stopped.Swap(true) }

// manualScheduler queues callbacks until the test fires them.
type manualScheduler struct {
	mu    sync.Mutex
	tasks []*manualTask
}

func (s *manualScheduler) ScheduleOnce(delay time.Duration, fn func()) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTask{delay: delay, fn: fn}
	s.tasks = append(s.tasks, t)
	return t
}

// fire runs the oldest live callback. It reports false when nothing is pending.
func (s *manualScheduler) fire() bool {
	s.mu.Lock()
	var next *manualTask
	for len(s.tasks) > 0 {
		t := s.tasks[0]
		s.tasks = s.tasks[1:]
		if !t.stopped.Load() {
			next = t
			break
		}
	}
	s.mu.Unlock()
	if next == nil {
		return false
	}
	next.stopped.Store(true)
	next.fn()
	return true
}

func (s *manualScheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tasks {
		if !t.stopped.Load() {
			n++
		}
	}
	return n
}

func testBrowserConfig(idle, tick time.Duration) config.BrowserConfig {
	cfg := config.NewDefaultConfig().BrowserCfg
	cfg.IdleTimeout = idle
	cfg.IdleCheckInterval = tick
	return cfg
}

func setupManager(t *testing.T, idle, tick time.Duration) (*Manager, *countingLauncher, *manualScheduler) {
	t.Helper()
	launcher := &countingLauncher{}
	sched := &manualScheduler{}
	m := NewManager(testBrowserConfig(idle, tick), launcher, sched, zaptest.NewLogger(t))
	return m, launcher, sched
}

// -- Tests --

func TestManager_AcquireSession(t *testing.T) {
	t.Run("Launches Once And Reuses", func(t *testing.T) {
		m, launcher, sched := setupManager(t, 30*time.Second, 10*time.Second)

		s1, err := m.AcquireSession(context.Background())
		require.NoError(t, err)
		s2, err := m.AcquireSession(context.Background())
		require.NoError(t, err)

		assert.Same(t, s1, s2)
		assert.Equal(t, 1, launcher.count())
		assert.Equal(t, 1, sched.pending(), "exactly one idle check should be armed")

		info, ok := m.Info()
		require.True(t, ok)
		assert.Equal(t, s1.ID.String(), info.ID)
		assert.Equal(t, "FakeChrome/1.0", info.Version)
	})

	t.Run("Relaunches After Disconnect", func(t *testing.T) {
		m, launcher, sched := setupManager(t, 30*time.Second, 10*time.Second)

		s1, err := m.AcquireSession(context.Background())
		require.NoError(t, err)
		launcher.launched[0].connected.Store(false)

		s2, err := m.AcquireSession(context.Background())
		require.NoError(t, err)

		assert.NotEqual(t, s1.ID, s2.ID)
		assert.Equal(t, 2, launcher.count())
		assert.Equal(t, int32(1), launcher.launched[0].closeCalls.Load(), "stale browser should be closed")
		assert.Equal(t, 1, sched.pending(), "stale idle check should be cancelled")

		_, err = m.NewPage(context.Background(), s1)
		assert.ErrorIs(t, err, ErrSessionClosed)
	})

	t.Run("Launch Failure Is Reported", func(t *testing.T) {
		m, launcher, sched := setupManager(t, 30*time.Second, 10*time.Second)
		boom := errors.New("chrome not found")
		launcher.err = boom

		s, err := m.AcquireSession(context.Background())
		require.Error(t, err)
		assert.Nil(t, s)
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "failed to launch browser")
		assert.Zero(t, sched.pending())

		_, ok := m.Info()
		assert.False(t, ok)
	})
}

func TestManager_IdleRetirement(t *testing.T) {
	t.Run("Closes On Fourth Tick", func(t *testing.T) {
		m, launcher, sched := setupManager(t, 30*time.Second, 10*time.Second)
		s, err := m.AcquireSession(context.Background())
		require.NoError(t, err)

		for i := 1; i <= 3; i++ {
			require.True(t, sched.fire())
			info, ok := m.Info()
			require.True(t, ok, "session should survive tick %d", i)
			assert.Equal(t, time.Duration(i)*10*time.Second, info.Idle)
		}

		require.True(t, sched.fire())
		_, ok := m.Info()
		assert.False(t, ok, "session should be closed once idle exceeds the timeout")
		assert.Equal(t, int32(1), launcher.launched[0].closeCalls.Load())
		assert.Zero(t, sched.pending(), "no further checks after retirement")

		_, err = m.NewPage(context.Background(), s)
		assert.ErrorIs(t, err, ErrSessionClosed)
	})

	t.Run("Activity Resets Idle Counter", func(t *testing.T) {
		m, launcher, sched := setupManager(t, 30*time.Second, 10*time.Second)
		s, err := m.AcquireSession(context.Background())
		require.NoError(t, err)

		require.True(t, sched.fire())
		require.True(t, sched.fire())
		m.RecordActivity(s)

		for i := 0; i < 3; i++ {
			require.True(t, sched.fire())
		}
		_, ok := m.Info()
		assert.True(t, ok)
		assert.Zero(t, launcher.launched[0].closeCalls.Load())

		require.True(t, sched.fire())
		_, ok = m.Info()
		assert.False(t, ok)
	})

	t.Run("Acquire Resets Idle Counter", func(t *testing.T) {
		m, launcher, sched := setupManager(t, 30*time.Second, 10*time.Second)
		first, err := m.AcquireSession(context.Background())
		require.NoError(t, err)
		for i := 0; i < 3; i++ {
			require.True(t, sched.fire())
		}

		second, err := m.AcquireSession(context.Background())
		require.NoError(t, err)
		assert.Same(t, first, second)
		info, ok := m.Info()
		require.True(t, ok)
		assert.Zero(t, info.Idle)

		require.True(t, sched.fire())
		info, ok = m.Info()
		require.True(t, ok, "a session just handed to a job must survive the next tick")
		assert.Equal(t, 10*time.Second, info.Idle)
		assert.Equal(t, 1, launcher.count())
		assert.Zero(t, launcher.launched[0].closeCalls.Load())
	})

	t.Run("Next Acquire After Retirement Launches Fresh", func(t *testing.T) {
		m, launcher, sched := setupManager(t, 30*time.Second, 10*time.Second)
		_, err := m.AcquireSession(context.Background())
		require.NoError(t, err)
		for sched.fire() {
		}

		_, err = m.AcquireSession(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, launcher.count())
	})

	t.Run("Stale Tick Is Ignored", func(t *testing.T) {
		m, _, _ := setupManager(t, 30*time.Second, 10*time.Second)
		s, err := m.AcquireSession(context.Background())
		require.NoError(t, err)
		require.NoError(t, m.Shutdown(context.Background()))

		assert.NotPanics(t, func() { m.OnIdleTick(s) })
	})
}

func TestManager_NewPage(t *testing.T) {
	m, launcher, _ := setupManager(t, 30*time.Second, 10*time.Second)
	s, err := m.AcquireSession(context.Background())
	require.NoError(t, err)

	launcher.launched[0].pageErr = errors.New("target crashed")
	_, err = m.NewPage(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open page")
}

func TestManager_Shutdown(t *testing.T) {
	m, launcher, sched := setupManager(t, 30*time.Second, 10*time.Second)

	require.NoError(t, m.Shutdown(context.Background()), "shutdown without a session is a no-op")

	_, err := m.AcquireSession(context.Background())
	require.NoError(t, err)
	require.NoError(t, m.Shutdown(context.Background()))

	_, ok := m.Info()
	assert.False(t, ok)
	assert.Equal(t, int32(1), launcher.launched[0].closeCalls.Load())
	assert.Zero(t, sched.pending())
	require.NoError(t, m.Shutdown(context.Background()))
}

func TestManager_RealTimerRetiresSession(t *testing.T) {
	defer goleak.VerifyNone(t)

	launcher := &countingLauncher{}
	m := NewManager(testBrowserConfig(30*time.Millisecond, 10*time.Millisecond), launcher, nil, zap.NewNop())

	_, err := m.AcquireSession(context.Background())
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, ok := m.Info()
		return !ok
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), launcher.launched[0].closeCalls.Load())
}
