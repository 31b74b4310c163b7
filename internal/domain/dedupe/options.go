// Package dedupe tracks node identifiers that are in flight or recently
// finished, so duplicate deliveries are skipped instead of reprocessed.
package dedupe

// Option applies a configuration option to the memory guard.
type Option func(*memoryGuard)

// WithMaxSize sets the maximum number of node IDs to keep in memory.
// If maxSize > 0: bounded mode, the oldest entry is evicted at capacity.
// If maxSize <= 0: unbounded mode (no eviction, no size limit).
func WithMaxSize(maxSize int) Option {
	return func(g *memoryGuard) {
		g.maxSize = maxSize
	}
}
