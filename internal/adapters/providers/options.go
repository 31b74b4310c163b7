// Package providers implements the external profile API adapters.
package providers

import (
	"net/http"
	"strings"
	"time"
)

// Option applies a configuration option to a provider client.
type Option func(*client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *client) {
		if h != nil {
			c.httpc = h
		}
	}
}

// WithTimeout sets the per-request timeout on the HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *client) {
		if d > 0 {
			c.httpc.Timeout = d
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithBaseURL overrides the provider base URL. Intended for tests and
// self-hosted gateways.
func WithBaseURL(u string) Option {
	return func(c *client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithRateLimit replaces the default request budget.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *client) {
		c.limiter = NewLimiter(rps, burst)
	}
}
