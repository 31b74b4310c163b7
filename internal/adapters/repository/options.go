// Package repository defines the node store interface and errors.
package repository

import (
	"net/http"
	"time"
)

// Option applies a configuration option to the RESTStore.
type Option func(*RESTStore)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(s *RESTStore) {
		if h != nil {
			s.httpc = h
		}
	}
}

// WithTimeout sets the per-request timeout on the HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(s *RESTStore) {
		if d > 0 {
			s.httpc.Timeout = d
		}
	}
}
