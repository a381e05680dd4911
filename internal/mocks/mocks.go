// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/webpilot/internal/browser"
	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/oracle"
	"github.com/xkilldash9x/webpilot/internal/store"
	"github.com/xkilldash9x/webpilot/internal/transcript"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

func (m *MockConfig) Logger() config.LoggerConfig {
	return m.Called().Get(0).(config.LoggerConfig)
}
func (m *MockConfig) Database() config.DatabaseConfig {
	return m.Called().Get(0).(config.DatabaseConfig)
}
func (m *MockConfig) Browser() config.BrowserConfig {
	return m.Called().Get(0).(config.BrowserConfig)
}
func (m *MockConfig) Oracle() config.OracleConfig {
	return m.Called().Get(0).(config.OracleConfig)
}
func (m *MockConfig) Job() config.JobConfig {
	return m.Called().Get(0).(config.JobConfig)
}
func (m *MockConfig) Server() config.ServerConfig {
	return m.Called().Get(0).(config.ServerConfig)
}
func (m *MockConfig) Storage() config.StorageConfig {
	return m.Called().Get(0).(config.StorageConfig)
}

// -- Browser Mocks --

// MockPage mocks the browser.Page interface.
type MockPage struct {
	mock.Mock
}

func (m *MockPage) Navigate(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}
func (m *MockPage) Click(ctx context.Context, selector string) error {
	return m.Called(ctx, selector).Error(0)
}
func (m *MockPage) Type(ctx context.Context, selector, value string) error {
	return m.Called(ctx, selector, value).Error(0)
}
func (m *MockPage) Select(ctx context.Context, selector, value string) error {
	return m.Called(ctx, selector, value).Error(0)
}
func (m *MockPage) Scroll(ctx context.Context, dy int) error {
	return m.Called(ctx, dy).Error(0)
}
func (m *MockPage) Content(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}
func (m *MockPage) Screenshot(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}
func (m *MockPage) Evaluate(ctx context.Context, script string) ([]byte, error) {
	args := m.Called(ctx, script)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}
func (m *MockPage) Close() error {
	return m.Called().Error(0)
}

// MockBrowser mocks the browser.Browser interface.
type MockBrowser struct {
	mock.Mock
}

func (m *MockBrowser) NewPage(ctx context.Context) (browser.Page, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(browser.Page), args.Error(1)
}
func (m *MockBrowser) Connected(ctx context.Context) bool {
	return m.Called(ctx).Bool(0)
}
func (m *MockBrowser) Version() string {
	return m.Called().String(0)
}
func (m *MockBrowser) Close() error {
	return m.Called().Error(0)
}

// MockLauncher mocks the browser.Launcher interface.
type MockLauncher struct {
	mock.Mock
}

func (m *MockLauncher) Launch(ctx context.Context) (browser.Browser, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(browser.Browser), args.Error(1)
}

// ManualScheduler records scheduled callbacks without ever running them.
type ManualScheduler struct {
	mu      sync.Mutex
	pending []*ManualHandle
}

// ManualHandle is returned by ManualScheduler.ScheduleOnce.
type ManualHandle struct {
	Delay   time.Duration
	owner   *ManualScheduler
	stopped bool
}

func (h *ManualHandle) Stop() bool {
	h.owner.mu.Lock()
	defer h.owner.mu.Unlock()
	was := !h.stopped
	h.stopped = true
	return was
}

func (s *ManualScheduler) ScheduleOnce(delay time.Duration, fn func()) browser.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := &ManualHandle{Delay: delay, owner: s}
	s.pending = append(s.pending, h)
	return h
}

// Pending returns the number of armed callbacks.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, h := range s.pending {
		if !h.stopped {
			n++
		}
	}
	return n
}

// -- Oracle Mock --

// MockOracle mocks the oracle.Client interface.
type MockOracle struct {
	mock.Mock
}

// Decide provides a mock function for oracle calls. The transcript is cloned
// so later appends by the caller do not rewrite recorded arguments.
func (m *MockOracle) Decide(ctx context.Context, t transcript.Transcript) (oracle.Decision, error) {
	select {
	case <-ctx.Done():
		return oracle.Decision{}, ctx.Err()
	default:
	}
	args := m.Called(ctx, t.Clone())
	if args.Get(0) == nil {
		return oracle.Decision{}, args.Error(1)
	}
	return args.Get(0).(oracle.Decision), args.Error(1)
}

// -- Store Mocks --

// MockJobStore mocks the store.JobStore interface.
type MockJobStore struct {
	mock.Mock
}

func (m *MockJobStore) Insert(ctx context.Context, goal, startingURL string) (store.Job, error) {
	args := m.Called(ctx, goal, startingURL)
	if args.Get(0) == nil {
		return store.Job{}, args.Error(1)
	}
	return args.Get(0).(store.Job), args.Error(1)
}
func (m *MockJobStore) UpdateStatus(ctx context.Context, id int64, status store.Status) error {
	return m.Called(ctx, id, status).Error(0)
}
func (m *MockJobStore) UpdateProgress(ctx context.Context, id int64, t transcript.Transcript, log []string, at time.Time) error {
	return m.Called(ctx, id, t.Clone(), append([]string{}, log...), at).Error(0)
}
func (m *MockJobStore) Finalize(ctx context.Context, id int64, output string, t transcript.Transcript, log []string, at time.Time, status store.Status) error {
	return m.Called(ctx, id, output, t.Clone(), append([]string{}, log...), at, status).Error(0)
}
func (m *MockJobStore) Get(ctx context.Context, id int64) (*store.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.Job), args.Error(1)
}
func (m *MockJobStore) ListAll(ctx context.Context) ([]store.Job, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]store.Job), args.Error(1)
}

// MockObjectStore mocks the objectstore.Store interface.
type MockObjectStore struct {
	mock.Mock
}

func (m *MockObjectStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	return m.Called(ctx, key, data, contentType).Error(0)
}
