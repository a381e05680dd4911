package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/job"
	"github.com/xkilldash9x/webpilot/internal/mocks"
	"github.com/xkilldash9x/webpilot/internal/store"
)

// creatorFunc adapts a function to JobCreator.
type creatorFunc func(ctx context.Context, goal, startingURL string) (job.Ticket, error)

func (f creatorFunc) Create(ctx context.Context, goal, startingURL string) (job.Ticket, error) {
	return f(ctx, goal, startingURL)
}

// validatingCreator inserts into st after the same validation the dispatcher runs.
func validatingCreator(st store.JobStore) creatorFunc {
	return func(ctx context.Context, goal, startingURL string) (job.Ticket, error) {
		req, err := job.NewRequest(goal, startingURL, 0)
		if err != nil {
			return job.Ticket{}, err
		}
		j, err := st.Insert(ctx, req.Goal, req.StartingURL)
		if err != nil {
			return job.Ticket{}, err
		}
		return job.Ticket{JobID: j.ID, Status: j.Status, CreatedAt: j.CreatedAt}, nil
	}
}

func newTestServer(t *testing.T, cfg config.ServerConfig, jobs JobCreator, st store.JobStore) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewServer(cfg, jobs, st, zap.NewNop()).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string, header http.Header) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var sb strings.Builder
	_, err = sb.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, sb.String()
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, config.ServerConfig{}, validatingCreator(store.NewMemory()), store.NewMemory())
	resp, body := do(t, http.MethodGet, srv.URL+"/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", body)
}

func TestCreateJob(t *testing.T) {
	st := store.NewMemory()
	srv := newTestServer(t, config.ServerConfig{}, validatingCreator(st), st)

	t.Run("Accepted", func(t *testing.T) {
		resp, body := do(t, http.MethodPost, srv.URL+"/api/jobs",
			`{"goal":"extract price","startingUrl":"https://shop.example/pricing"}`, nil)
		require.Equal(t, http.StatusAccepted, resp.StatusCode, body)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

		var ticket struct {
			JobID     int64     `json:"jobId"`
			Status    string    `json:"status"`
			CreatedAt time.Time `json:"createdAt"`
		}
		require.NoError(t, json.Unmarshal([]byte(body), &ticket))
		assert.Equal(t, int64(1), ticket.JobID)
		assert.Equal(t, "pending", ticket.Status)
		assert.False(t, ticket.CreatedAt.IsZero())
	})

	t.Run("Validation Error Names The Field", func(t *testing.T) {
		resp, body := do(t, http.MethodPost, srv.URL+"/api/jobs",
			`{"goal":"extract price","startingUrl":"file:///etc/passwd"}`, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.JSONEq(t, `{"error":"startingUrl: must use http or https","field":"startingUrl"}`, body)
	})

	t.Run("Malformed Body", func(t *testing.T) {
		resp, _ := do(t, http.MethodPost, srv.URL+"/api/jobs", `{"goal":`, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestCreateJob_DispatcherErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"Shutting Down", job.ErrShuttingDown, http.StatusServiceUnavailable},
		{"Store Failure", errors.New("failed to create job: db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creator := creatorFunc(func(context.Context, string, string) (job.Ticket, error) {
				return job.Ticket{}, tt.err
			})
			srv := newTestServer(t, config.ServerConfig{}, creator, store.NewMemory())
			resp, body := do(t, http.MethodPost, srv.URL+"/api/jobs", `{"goal":"g","startingUrl":"https://a.example"}`, nil)
			assert.Equal(t, tt.code, resp.StatusCode)
			assert.NotContains(t, body, "db down", "internal errors are not echoed")
		})
	}
}

func TestGetJob(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	j, err := st.Insert(ctx, "extract price", "https://shop.example/pricing")
	require.NoError(t, err)
	require.NoError(t, st.UpdateStatus(ctx, j.ID, store.StatusRunning))
	require.NoError(t, st.Finalize(ctx, j.ID, "$29/mo", nil, []string{"[5ms]: done"}, time.Now(), store.StatusCompleted))

	srv := newTestServer(t, config.ServerConfig{}, validatingCreator(st), st)

	t.Run("Found", func(t *testing.T) {
		resp, body := do(t, http.MethodGet, srv.URL+"/api/jobs/1", "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var got store.Job
		require.NoError(t, json.Unmarshal([]byte(body), &got))
		assert.Equal(t, store.StatusCompleted, got.Status)
		require.NotNil(t, got.Output)
		assert.Equal(t, "$29/mo", *got.Output)
		assert.Equal(t, []string{"[5ms]: done"}, got.Log)
	})

	t.Run("Not Found", func(t *testing.T) {
		resp, _ := do(t, http.MethodGet, srv.URL+"/api/jobs/42", "", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("Bad ID", func(t *testing.T) {
		resp, _ := do(t, http.MethodGet, srv.URL+"/api/jobs/abc", "", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestListJobs(t *testing.T) {
	st := store.NewMemory()
	srv := newTestServer(t, config.ServerConfig{}, validatingCreator(st), st)

	resp, body := do(t, http.MethodGet, srv.URL+"/api/jobs", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, body)

	for _, goal := range []string{"first", "second"} {
		_, err := st.Insert(context.Background(), goal, "https://a.example")
		require.NoError(t, err)
	}
	_, body = do(t, http.MethodGet, srv.URL+"/api/jobs", "", nil)

	var jobs []store.Job
	require.NoError(t, json.Unmarshal([]byte(body), &jobs))
	require.Len(t, jobs, 2)
	assert.Equal(t, "second", jobs[0].Goal)
}

func TestListJobs_StoreFailure(t *testing.T) {
	failing := new(mocks.MockJobStore)
	failing.On("ListAll", mock.Anything).Return(nil, errors.New("connection reset"))

	srv := newTestServer(t, config.ServerConfig{}, validatingCreator(failing), failing)
	resp, body := do(t, http.MethodGet, srv.URL+"/api/jobs", "", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.NotContains(t, body, "connection reset")
}

func TestRateLimit(t *testing.T) {
	st := store.NewMemory()
	srv := newTestServer(t, config.ServerConfig{RateLimit: 0.001, RateBurst: 2}, validatingCreator(st), st)

	for i := 0; i < 2; i++ {
		resp, _ := do(t, http.MethodGet, srv.URL+"/api/jobs", "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, _ := do(t, http.MethodGet, srv.URL+"/api/jobs", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, srv.URL+"/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "health checks are not limited")
}

func TestBearerAuth(t *testing.T) {
	const secret = "test-secret"
	st := store.NewMemory()
	srv := newTestServer(t, config.ServerConfig{JWTSecret: secret}, validatingCreator(st), st)

	sign := func(method jwt.SigningMethod, key interface{}, exp time.Time) string {
		tok, err := jwt.NewWithClaims(method, jwt.MapClaims{"sub": "ops", "exp": exp.Unix()}).SignedString(key)
		require.NoError(t, err)
		return tok
	}
	bearer := func(tok string) http.Header {
		return http.Header{"Authorization": []string{"Bearer " + tok}}
	}

	tests := []struct {
		name   string
		header http.Header
		code   int
	}{
		{"Valid Token", bearer(sign(jwt.SigningMethodHS256, []byte(secret), time.Now().Add(time.Hour))), http.StatusOK},
		{"Missing Header", nil, http.StatusUnauthorized},
		{"Wrong Secret", bearer(sign(jwt.SigningMethodHS256, []byte("other"), time.Now().Add(time.Hour))), http.StatusUnauthorized},
		{"Expired", bearer(sign(jwt.SigningMethodHS256, []byte(secret), time.Now().Add(-time.Hour))), http.StatusUnauthorized},
		{"Wrong Algorithm", bearer(sign(jwt.SigningMethodHS512, []byte(secret), time.Now().Add(time.Hour))), http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := do(t, http.MethodGet, srv.URL+"/api/jobs", "", tt.header)
			assert.Equal(t, tt.code, resp.StatusCode)
		})
	}

	resp, _ := do(t, http.MethodGet, srv.URL+"/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServe_StopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := NewServer(config.ServerConfig{ShutdownTimeout: time.Second}, validatingCreator(store.NewMemory()), store.NewMemory(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	require.Eventually(t, func() bool {
		resp, err := client.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}
