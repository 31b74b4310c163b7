package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/avetra/prospect/internal/domain/faults"
	"github.com/avetra/prospect/internal/domain/model"
	"github.com/avetra/prospect/pkg/logger"
)

// MemoryStore is a map-backed Store used by tests and the load generator.
// It applies the same duplicate and candidate semantics as the SQLite store.
type MemoryStore struct {
	mu    sync.RWMutex
	nodes map[string]model.Node
	log   logger.Logger
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes: make(map[string]model.Node),
		log:   logger.Get().Named("store"),
	}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, nodeID string) (node model.Node, err error) {
	start := time.Now()
	defer func() { observe("get", start, err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	node, ok := s.nodes[nodeID]
	if !ok {
		return model.Node{}, ErrNotFound
	}
	return node, nil
}

// TouchAttempt implements Store.
func (s *MemoryStore) TouchAttempt(_ context.Context, nodeID string) (err error) {
	start := time.Now()
	defer func() { observe("touch", start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[nodeID]
	if !ok {
		return ErrNotFound
	}
	node.LastAttemptAt = time.Now().UTC()
	s.nodes[nodeID] = node
	return nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, nodeID string, profile model.Profile, score model.QualityScore) (err error) {
	start := time.Now()
	defer func() { observe("save", start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if score.MeetsThreshold && profile.Username != "" {
		for id, other := range s.nodes {
			if id != nodeID && other.Scraped && other.Username == profile.Username {
				return faults.Newf(faults.KindPersistDuplicate,
					"username %q already scraped on node %s", profile.Username, id).WithNode(nodeID)
			}
		}
	}

	now := time.Now().UTC()
	node := s.nodes[nodeID]
	node.ID = nodeID
	node.Username = profile.Username
	node.QualityScore = score.Overall
	node.APIScraped = true
	node.Scraped = score.MeetsThreshold
	node.ErrorCode = ""
	node.LastAttemptAt = now
	node.UpdatedAt = now
	s.nodes[nodeID] = node
	return nil
}

// MarkError implements Store.
func (s *MemoryStore) MarkError(_ context.Context, nodeID string, f *faults.Fault) (err error) {
	start := time.Now()
	defer func() { observe("mark_error", start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[nodeID]
	if !ok {
		return ErrNotFound
	}
	node.ErrorCode = string(faults.KindUnknown)
	if f != nil {
		node.ErrorCode = string(f.Kind)
	}
	node.UpdatedAt = time.Now().UTC()
	s.nodes[nodeID] = node
	return nil
}

// Delete implements Store. Deleting an already-gone node is not an error.
func (s *MemoryStore) Delete(_ context.Context, nodeID string) (err error) {
	start := time.Now()
	defer func() { observe("delete", start, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.nodes, nodeID)
	return nil
}

// MergeDuplicates implements Store.
func (s *MemoryStore) MergeDuplicates(_ context.Context, nodeID, username string) (n int, err error) {
	start := time.Now()
	defer func() { observe("merge", start, err) }()

	if username == "" {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for id, node := range s.nodes {
		if id == nodeID || node.Scraped || node.Username != username {
			continue
		}
		node.Scraped = true
		node.APIScraped = true
		node.UpdatedAt = now
		s.nodes[id] = node
		n++
	}
	return n, nil
}

// Candidates implements Store.
func (s *MemoryStore) Candidates(_ context.Context, limit int) (ids []model.Identifier, err error) {
	start := time.Now()
	defer func() { observe("candidates", start, err) }()

	if limit < 1 {
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	pending := make([]model.Node, 0, len(s.nodes))
	for _, node := range s.nodes {
		if !node.Scraped && node.ErrorCode == "" {
			pending = append(pending, node)
		}
	}
	s.mu.RUnlock()

	// Never-attempted first (zero time), then least recently attempted.
	sort.Slice(pending, func(i, j int) bool {
		if !pending[i].LastAttemptAt.Equal(pending[j].LastAttemptAt) {
			return pending[i].LastAttemptAt.Before(pending[j].LastAttemptAt)
		}
		return pending[i].ID < pending[j].ID
	})

	if len(pending) > limit {
		pending = pending[:limit]
	}
	ids = make([]model.Identifier, 0, len(pending))
	for _, node := range pending {
		ids = append(ids, model.Identifier{
			NodeID:       node.ID,
			UserID:       node.UserID,
			UsernameHint: node.Username,
		})
	}
	return ids, nil
}

// Stats implements Store.
func (s *MemoryStore) Stats(_ context.Context) (st Stats, err error) {
	start := time.Now()
	defer func() { observe("stats", start, err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	st.Total = len(s.nodes)
	for _, node := range s.nodes {
		switch {
		case node.Scraped:
			st.Scraped++
		case node.ErrorCode != "":
			st.Errored++
		default:
			st.Unscraped++
		}
	}
	return st, nil
}

// Seed inserts nodes wholesale, replacing existing entries.
func (s *MemoryStore) Seed(ctx context.Context, nodes []model.Node) error {
	s.mu.Lock()
	for _, node := range nodes {
		s.nodes[node.ID] = node
	}
	s.mu.Unlock()

	s.log.Debug(ctx, "seeded nodes", logger.Int("count", len(nodes)))
	return nil
}
