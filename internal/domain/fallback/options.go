package fallback

import "time"

// Default chain configuration constants.
const (
	defaultMaxAttempts    = 2
	defaultBaseDelay      = 5 * time.Second
	defaultMaxDelay       = 60 * time.Second
	defaultAttemptTimeout = 30 * time.Second
)

// Option applies a configuration option to the Chain.
type Option func(*Chain)

// WithMaxAttempts sets the total tries per provider, including the first.
func WithMaxAttempts(attempts int) Option {
	return func(c *Chain) {
		if attempts > 0 {
			c.maxAttempts = attempts
		}
	}
}

// WithBaseDelay sets the first backoff delay; later retries double it.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Chain) {
		if d > 0 {
			c.baseDelay = d
		}
	}
}

// WithMaxDelay caps the computed backoff delay.
func WithMaxDelay(d time.Duration) Option {
	return func(c *Chain) {
		if d > 0 {
			c.maxDelay = d
		}
	}
}

// WithAttemptTimeout bounds each individual request. Zero disables the
// per-attempt bound, leaving only the caller's context.
func WithAttemptTimeout(d time.Duration) Option {
	return func(c *Chain) {
		if d >= 0 {
			c.attemptTimeout = d
		}
	}
}
