package loadgen

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/avetra/prospect/pkg/logger"
	"github.com/google/uuid"
)

// Constants for random case selection.
const (
	usernameCaseDivisor = 8
	sharedUsernamePool  = 10
)

// Constants for username shape cases. Unique hints dominate; shared hints
// exercise duplicate merging, empty hints exercise hint-less fetches and
// mixed-case hints exercise username normalization.
const (
	caseUniqueUsername    = 0
	caseUniqueUsername2   = 1
	caseUniqueUsername3   = 2
	caseUniqueUsername4   = 3
	caseSharedUsername    = 4
	caseSharedUsername2   = 5
	caseNoUsername        = 6
	caseMixedCaseUsername = 7
)

// randomCase returns a random int below the given divisor using crypto/rand.
func randomCase(divisor int64) int64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(divisor))
	return n.Int64()
}

// generateIdentifiers creates the specified number of identifiers with
// unique node IDs.
func generateIdentifiers(ctx context.Context, config *Config, stats *Stats) ([]Identifier, error) {
	logger.Get().Info(ctx, "generating identifiers with unique node IDs", logger.Int("numNodes", config.NumNodes))

	ids := make([]Identifier, config.NumNodes)

	// Pre-allocate node IDs to ensure uniqueness
	nodeIDs := make([]string, config.NumNodes)
	for i := 0; i < config.NumNodes; i++ {
		nodeIDs[i] = "node-" + uuid.New().String()
	}

	// Generate identifiers concurrently
	type idResult struct {
		index int
		id    Identifier
		err   error
	}

	resultChan := make(chan idResult, config.NumNodes)

	// Use worker pool for identifier generation
	workerCount := minInt(config.Workers, config.NumNodes)
	idsPerWorker := config.NumNodes / workerCount

	for worker := 0; worker < workerCount; worker++ {
		start := worker * idsPerWorker
		end := start + idsPerWorker
		if worker == workerCount-1 {
			end = config.NumNodes // Last worker gets the remainder
		}

		go func(start, end int) {
			for i := start; i < end; i++ {
				select {
				case <-ctx.Done():
					resultChan <- idResult{index: i, err: ctx.Err()}
					return
				default:
					resultChan <- idResult{index: i, id: generateSingleIdentifier(i, nodeIDs[i])}
				}
			}
		}(start, end)
	}

	// Collect results
	for i := 0; i < config.NumNodes; i++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled during identifier generation: %w", ctx.Err())
		case result := <-resultChan:
			if result.err != nil {
				return nil, fmt.Errorf("failed to generate identifier %d: %w", result.index, result.err)
			}
			ids[result.index] = result.id
		}
	}

	stats.NodesGenerated = len(ids)
	logger.Get().Info(ctx, "generated identifiers successfully", logger.Int("count", len(ids)))

	return ids, nil
}

// generateSingleIdentifier creates one identifier with a varied username
// hint.
func generateSingleIdentifier(index int, nodeID string) Identifier {
	id := Identifier{NodeID: nodeID}

	suffix := strings.Split(nodeID, "-")
	short := suffix[len(suffix)-1]

	switch randomCase(usernameCaseDivisor) {
	case caseSharedUsername, caseSharedUsername2:
		// A small shared pool so several nodes carry the same hint
		id.Username = "shared-user-" + strconv.FormatInt(randomCase(sharedUsernamePool), 10)
	case caseNoUsername:
		// No hint; the service fetches by node ID alone
	case caseMixedCaseUsername:
		id.Username = "User-" + strings.ToUpper(short[:4]) + strconv.Itoa(index)
	default:
		id.Username = "user-" + short + "-" + strconv.Itoa(index)
	}

	return id
}

// minInt returns the minimum of two integers.
func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
