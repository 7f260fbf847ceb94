package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/jobplan/internal/resilience"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestFetcher(maxRetries int) *HTTPFetcher {
	return NewHTTPFetcher(HTTPOptions{
		UserAgent:  "test-agent",
		Timeout:    5 * time.Second,
		MaxRetries: maxRetries,
		RatePerSec: 100,
		Retry: &resilience.RetryConfig{
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
		},
	})
}

func TestHTTPFetcher_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		w.Write([]byte("job_key\nJ1\n")) //nolint:errcheck
	}))
	defer srv.Close()

	data, err := newTestFetcher(3).Fetch(context.Background(), srv.URL+"/plan.csv")
	require.NoError(t, err)
	assert.Equal(t, "job_key\nJ1\n", string(data))
}

func TestHTTPFetcher_RetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok")) //nolint:errcheck
	}))
	defer srv.Close()

	data, err := newTestFetcher(3).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))
	assert.Equal(t, int32(3), attempts.Load())
}

func TestHTTPFetcher_RetriesExhausted(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestFetcher(2).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 500")
	assert.Equal(t, int32(2), attempts.Load())
}

func TestHTTPFetcher_NoRetryOnClientError(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestFetcher(3).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 404")
	assert.Equal(t, int32(1), attempts.Load())
}

func TestHTTPFetcher_RateLimitedResponseSlowsHost(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("ok")) //nolint:errcheck
	}))
	defer srv.Close()

	f := newTestFetcher(3)
	_, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	lim := f.limiterFor(srv.Listener.Addr().String())
	// Halved to 50 then raised 20% on success.
	assert.InDelta(t, 60, float64(lim.Limit()), 0.001)
}

func TestHTTPFetcher_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestFetcher(3).Fetch(ctx, srv.URL)
	require.Error(t, err)
}

func TestAdaptiveLimiter_Bounds(t *testing.T) {
	lim := NewAdaptiveLimiter(10, 10)
	for range 10 {
		lim.OnSuccess()
	}
	assert.Equal(t, rate.Limit(20), lim.Limit())

	for range 10 {
		lim.OnRateLimit()
	}
	assert.Equal(t, rate.Limit(2.5), lim.Limit())
}

func TestNewHTTPFetcher_Defaults(t *testing.T) {
	f := NewHTTPFetcher(HTTPOptions{})
	assert.Equal(t, 30*time.Second, f.opts.Timeout)
	assert.Equal(t, 3, f.opts.MaxRetries)
	assert.Equal(t, "jobplan/1.0", f.opts.UserAgent)
	assert.Equal(t, float64(5), f.opts.RatePerSec)
}
