// Package dedupe tracks node identifiers that are in flight or recently
// finished, so duplicate deliveries are skipped instead of reprocessed.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
)

// Guard records node IDs to keep concurrent deliveries of the same node
// from being processed twice.
type Guard interface {
	// SeenAndRecord atomically checks whether nodeID was seen and records it
	// if not. Returns true if the node was already recorded, false if it was
	// newly recorded. This is the ONLY method for duplicate detection -
	// thread-safe and atomic.
	SeenAndRecord(ctx context.Context, nodeID string) bool

	// Unrecord forgets a node ID so a redelivery can be processed. This
	// should only be used when a node was recorded but its processing did
	// not reach a terminal state (e.g. a retryable failure).
	Unrecord(ctx context.Context, nodeID string)

	Size() int64
}

// entry is one slot in the insertion-order ring. An entry is live only while
// the map still holds its sequence number; unrecorded IDs leave stale entries
// behind that eviction skips.
type entry struct {
	seq uint64
	id  string
}

// memoryGuard implements Guard with a map keyed by node ID.
// For bounded mode (maxSize > 0): insertion order is kept in a ring so the
// oldest live entry can be evicted at capacity.
// For unbounded mode (maxSize <= 0): uses the map alone (no eviction).
type memoryGuard struct {
	mu      sync.Mutex
	seen    map[string]uint64 // node ID -> sequence of its live ring entry
	order   []entry           // insertion order, oldest first; may hold stale entries
	nextSeq uint64
	maxSize int          // maximum number of IDs to keep in memory (0 or negative = UNBOUNDED)
	size    atomic.Int64 // current number of entries (atomic)
}

// New creates an in-memory guard with configuration options.
func New(opts ...Option) Guard {
	g := &memoryGuard{
		maxSize: 50000, // default max size
	}

	for _, opt := range opts {
		opt(g)
	}

	g.seen = make(map[string]uint64)

	return g
}

// SeenAndRecord atomically checks whether nodeID was seen and records it if
// not. Returns true if the node was already recorded.
func (g *memoryGuard) SeenAndRecord(ctx context.Context, nodeID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.seen[nodeID]; exists {
		return true
	}

	if g.maxSize > 0 {
		if len(g.seen) >= g.maxSize {
			g.evictOldest()
		}

		g.nextSeq++
		g.order = append(g.order, entry{seq: g.nextSeq, id: nodeID})
		g.seen[nodeID] = g.nextSeq

		// Stale entries accumulate as IDs are unrecorded; rebuild the ring
		// once they outnumber the live ones.
		if len(g.order) > 2*g.maxSize {
			g.compact()
		}
	} else {
		g.seen[nodeID] = 0
	}
	g.size.Add(1)
	return false
}

// Unrecord forgets a node ID so a redelivery can be processed. The ring entry
// stays behind as a stale slot that eviction skips.
func (g *memoryGuard) Unrecord(ctx context.Context, nodeID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.seen[nodeID]; !exists {
		return
	}
	delete(g.seen, nodeID)
	g.size.Add(-1)
}

// evictOldest removes the oldest live entry from the map, skipping stale ring
// slots. Must be called with g.mu held.
func (g *memoryGuard) evictOldest() {
	for len(g.order) > 0 {
		oldest := g.order[0]
		g.order[0] = entry{}
		g.order = g.order[1:]

		// A slot is live only if the map still points at this sequence;
		// anything else was unrecorded or re-recorded since.
		if seq, exists := g.seen[oldest.id]; exists && seq == oldest.seq {
			delete(g.seen, oldest.id)
			g.size.Add(-1)
			return
		}
	}
}

// compact rebuilds the ring keeping only live entries. Must be called with
// g.mu held.
func (g *memoryGuard) compact() {
	live := make([]entry, 0, len(g.seen))
	for _, e := range g.order {
		if seq, exists := g.seen[e.id]; exists && seq == e.seq {
			live = append(live, e)
		}
	}
	g.order = live
}

// Size returns the current number of recorded node IDs.
func (g *memoryGuard) Size() int64 {
	return g.size.Load()
}
