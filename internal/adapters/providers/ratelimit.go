package providers

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Rate limit header names shared by the profile APIs.
const (
	headerRetryAfter    = "Retry-After"
	headerRateRemaining = "X-RateLimit-Remaining"
	headerRateReset     = "X-RateLimit-Reset"

	// defaultBackoff applies when a provider throttles without a hint.
	defaultBackoff = 60 * time.Second
)

// Limiter combines a proactive token bucket with reactive backoff parsed
// from provider responses.
type Limiter struct {
	mu        sync.Mutex
	bucket    *rate.Limiter
	retryAt   time.Time
	remaining int
}

// NewLimiter creates a limiter allowing rps sustained requests with the
// given burst.
func NewLimiter(rps float64, burst int) *Limiter {
	if rps <= 0 {
		rps = defaultRequestsPerSecond
	}
	if burst < 1 {
		burst = defaultBurst
	}

	return &Limiter{
		bucket:    rate.NewLimiter(rate.Limit(rps), burst),
		remaining: -1,
	}
}

// Wait blocks until a request can be made without exceeding the rate limit.
// It also respects any backoff period recorded from a throttled response.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	retryAt := l.retryAt
	l.mu.Unlock()

	if until := time.Until(retryAt); until > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(until):
		}
	}

	return l.bucket.Wait(ctx)
}

// Observe updates limiter state from a provider response. A 429 arms the
// backoff from the Retry-After header, falling back to X-RateLimit-Reset
// and then a fixed default.
func (l *Limiter) Observe(resp *http.Response) {
	if resp == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if remaining := resp.Header.Get(headerRateRemaining); remaining != "" {
		if val, err := strconv.Atoi(remaining); err == nil {
			l.remaining = val
		}
	}

	if resp.StatusCode != http.StatusTooManyRequests {
		return
	}

	if retryAfter := resp.Header.Get(headerRetryAfter); retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
			l.retryAt = time.Now().Add(time.Duration(seconds) * time.Second)
			return
		}
	}
	if reset := resp.Header.Get(headerRateReset); reset != "" {
		if unix, err := strconv.ParseInt(reset, 10, 64); err == nil {
			if at := time.Unix(unix, 0); at.After(time.Now()) {
				l.retryAt = at
				return
			}
		}
	}
	l.retryAt = time.Now().Add(defaultBackoff)
}

// RetryAfter returns the remaining backoff window, or zero when requests
// are allowed.
func (l *Limiter) RetryAfter() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	if until := time.Until(l.retryAt); until > 0 {
		return until
	}
	return 0
}

// Remaining returns the last quota figure reported by the provider, or -1
// when none was seen.
func (l *Limiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.remaining
}
