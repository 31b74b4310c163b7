// Package repository defines the node store interface and errors.
package repository

import (
	"context"

	"github.com/avetra/prospect/internal/domain/faults"
	"github.com/avetra/prospect/internal/domain/model"
)

// Stats summarizes node processing progress.
type Stats struct {
	Total     int `json:"total"`
	Scraped   int `json:"scraped"`
	Unscraped int `json:"unscraped"`
	Errored   int `json:"errored"`
}

// Store provides read/write access to the node graph.
type Store interface {
	// Get returns the stored node. Returns ErrNotFound if the node is unknown.
	Get(ctx context.Context, nodeID string) (model.Node, error)

	// TouchAttempt stamps the node's last-attempted time. Best effort;
	// callers may log and ignore the error.
	TouchAttempt(ctx context.Context, nodeID string) error

	// Save persists the transformed profile and its quality score.
	// APIScraped is always set; Scraped only when the score met the
	// threshold. A canonical profile already held by another scraped node
	// surfaces as a duplicate persistence fault.
	Save(ctx context.Context, nodeID string, profile model.Profile, score model.QualityScore) error

	// MarkError records a terminal fault code on the node.
	MarkError(ctx context.Context, nodeID string, f *faults.Fault) error

	// Delete removes a node whose profile is unreachable.
	Delete(ctx context.Context, nodeID string) error

	// MergeDuplicates applies the canonical node's profile to other
	// unscraped nodes holding the same username. Returns the number of
	// nodes changed.
	MergeDuplicates(ctx context.Context, nodeID, username string) (int, error)

	// Candidates returns up to limit unscraped identifiers, never-attempted
	// first, then least recently attempted.
	Candidates(ctx context.Context, limit int) ([]model.Identifier, error)

	// Stats reports node counts by processing state.
	Stats(ctx context.Context) (Stats, error)
}
