// Package worker defines worker contracts for asynchronous node processing.
package worker

import (
	"github.com/avetra/prospect/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(logger logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithGuard wires the dedupe guard whose in-flight slots messages hold.
func WithGuard(g Guard) Option {
	return func(w *InMemoryWorker) {
		if g != nil {
			w.guard = g
		}
	}
}

// WithRedeliveryMax caps how often a retryable message is re-enqueued.
// Zero disables redelivery.
func WithRedeliveryMax(max int) Option {
	return func(w *InMemoryWorker) {
		if max >= 0 {
			w.redeliveryMax = max
		}
	}
}

// WithProcessedHook registers a callback invoked after each successfully
// processed message.
func WithProcessedHook(fn func()) Option {
	return func(w *InMemoryWorker) {
		if fn != nil {
			w.onProcessed = fn
		}
	}
}
