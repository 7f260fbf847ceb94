package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/jobplan/internal/resilience"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	// RatePerSec is the initial per-host request rate.
	RatePerSec float64
	// Retry overrides the backoff schedule; MaxRetries still sets the
	// attempt count.
	Retry *resilience.RetryConfig
}

// AdaptiveLimiter wraps a rate.Limiter that speeds up on success and
// halves its rate when the host answers 429. The rate stays between a
// quarter and twice the initial rate.
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	maxRate     rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates an adaptive limiter starting at initialRate.
func NewAdaptiveLimiter(initialRate rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(initialRate, burst),
		maxRate:     initialRate * 2,
		minRate:     initialRate / 4,
		currentRate: initialRate,
	}
}

// Wait blocks until the limiter allows a request.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess raises the rate by 20%.
func (a *AdaptiveLimiter) OnSuccess() {
	a.setRate(a.Limit() * 1.2)
}

// OnRateLimit halves the rate.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.setRate(a.Limit() * 0.5)
	zap.L().Warn("fetcher: reducing rate after 429", zap.Float64("rate", float64(a.Limit())))
}

// Limit returns the current rate.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

func (a *AdaptiveLimiter) setRate(r rate.Limit) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r = min(max(r, a.minRate), a.maxRate)
	a.currentRate = r
	a.limiter.SetLimit(r)
}

// HTTPFetcher downloads files over http(s) with per-host rate limiting and
// retries on transient failures.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions

	mu       sync.Mutex
	limiters map[string]*AdaptiveLimiter
}

// NewHTTPFetcher creates an HTTPFetcher, filling unset options with
// defaults.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "jobplan/1.0"
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 5
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:     opts,
		limiters: make(map[string]*AdaptiveLimiter),
	}
}

func (f *HTTPFetcher) limiterFor(host string) *AdaptiveLimiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		burst := max(int(f.opts.RatePerSec), 1)
		lim = NewAdaptiveLimiter(rate.Limit(f.opts.RatePerSec), burst)
		f.limiters[host] = lim
	}
	return lim
}

func (f *HTTPFetcher) retryConfig() resilience.RetryConfig {
	cfg := resilience.WithAttempts(f.opts.MaxRetries)
	if f.opts.Retry != nil {
		cfg = *f.opts.Retry
		cfg.MaxAttempts = f.opts.MaxRetries
	}
	cfg.OnRetry = resilience.RetryLogger("fetcher", "http_get")
	return cfg
}

// Fetch downloads rawURL. 429 and 5xx responses and network errors are
// retried; other non-200 responses fail immediately.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: parse url %q", rawURL)
	}
	lim := f.limiterFor(u.Host)

	data, err := resilience.DoVal(ctx, f.retryConfig(), func(ctx context.Context) ([]byte, error) {
		if err := lim.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "fetcher: rate limiter wait")
		}
		return f.get(ctx, rawURL, lim)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: get %s", rawURL)
	}
	return data, nil
}

func (f *HTTPFetcher) get(ctx context.Context, rawURL string, lim *AdaptiveLimiter) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(err, 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusTooManyRequests {
		lim.OnRateLimit()
	}
	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("fetcher: unexpected status %d from %s", resp.StatusCode, rawURL)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxFileSize+1))
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "fetcher: read body"), 0)
	}
	if len(data) > MaxFileSize {
		return nil, eris.Errorf("fetcher: %s exceeds %d bytes", rawURL, MaxFileSize)
	}
	lim.OnSuccess()
	return data, nil
}
