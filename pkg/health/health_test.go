package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type probeBody struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func probe(t *testing.T, h *Health, path string) (int, probeBody) {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body probeBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func ok(context.Context) error { return nil }

func failing(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

// toggle is a check whose result can be switched between runs.
type toggle struct {
	mu  sync.Mutex
	err error
}

func (tg *toggle) set(err error) {
	tg.mu.Lock()
	tg.err = err
	tg.mu.Unlock()
}

func (tg *toggle) Ping(context.Context) error {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	return tg.err
}

func TestLiveness(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]CheckFunc
		runs       int
		wantStatus int
		wantChecks map[string]string
	}{
		{name: "no checks", wantStatus: http.StatusOK},
		{
			name:       "all passing",
			checks:     map[string]CheckFunc{"goroutines": ok, "other": ok},
			runs:       3,
			wantStatus: http.StatusOK,
		},
		{
			name:       "failure below threshold",
			checks:     map[string]CheckFunc{"flaky": failing("temporary")},
			runs:       2,
			wantStatus: http.StatusOK,
		},
		{
			name:       "failure at threshold",
			checks:     map[string]CheckFunc{"stuck": failing("deadlock")},
			runs:       3,
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"stuck": "deadlock"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New()
			for name, fn := range tt.checks {
				h.AddLivenessCheck(name, time.Second, fn)
			}
			for range tt.runs {
				for _, c := range h.liveness {
					c.run(context.Background())
				}
			}

			code, body := probe(t, h, "/livez")
			assert.Equal(t, tt.wantStatus, code)
			if tt.wantChecks == nil {
				assert.Equal(t, "ok", body.Status)
				assert.Empty(t, body.Checks)
			} else {
				assert.Equal(t, "unhealthy", body.Status)
				assert.Equal(t, tt.wantChecks, body.Checks)
			}
		})
	}
}

func TestReadiness_Gate(t *testing.T) {
	h := New()
	h.AddReadinessCheck("catalog", time.Second, ok)

	code, body := probe(t, h, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "service is not ready", body.Checks["_readiness"])
	assert.False(t, h.IsReady())

	h.SetReady(true)
	code, body = probe(t, h, "/readyz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)
	assert.True(t, h.IsReady())

	h.SetReady(false)
	code, _ = probe(t, h, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestReadiness_CatalogOutageAndRecovery(t *testing.T) {
	catalog := &toggle{}
	h := New()
	h.AddReadinessCheck("catalog", time.Second, PingCheck(catalog),
		WithFailureThreshold(2),
		WithSuccessThreshold(2),
	)
	h.SetReady(true)
	c := h.readiness[0]
	ctx := context.Background()

	catalog.set(errors.New("connection refused"))
	c.run(ctx)
	assert.True(t, h.IsReady(), "one failure is below threshold")
	c.run(ctx)
	assert.False(t, h.IsReady())

	code, body := probe(t, h, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "ping: connection refused", body.Checks["catalog"])

	catalog.set(nil)
	c.run(ctx)
	assert.False(t, h.IsReady(), "one success is below recovery threshold")
	c.run(ctx)
	assert.True(t, h.IsReady())
}

func TestStartAndStop(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	h := New()
	h.AddLivenessCheck("counter", time.Second, func(context.Context) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	})

	h.Start(context.Background(), 10*time.Millisecond)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 2
	}, time.Second, 5*time.Millisecond)

	h.Stop()
	h.Stop()

	mu.Lock()
	stopped := calls
	mu.Unlock()
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, calls, stopped+1)
}

func TestConcurrentProbes(t *testing.T) {
	h := New()
	h.AddLivenessCheck("live", time.Second, ok)
	h.AddReadinessCheck("ready", time.Second, ok)
	h.SetReady(true)
	h.Start(context.Background(), time.Millisecond)
	defer h.Stop()

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				w := httptest.NewRecorder()
				h.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
				h.SetReady(true)
				_ = h.IsReady()
			}
		}()
	}
	wg.Wait()
}

func TestGoroutineCountCheck(t *testing.T) {
	require.NoError(t, GoroutineCountCheck(1_000_000)(context.Background()))
	err := GoroutineCountCheck(0)(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds threshold 0")
}
