package loadgen

import (
	"fmt"
	"log"
)

// verifyEnvelope checks the internal consistency of one invocation
// envelope: the counters must reconcile, and every redelivery-eligible
// identifier must belong to a non-success outcome carrying a retryable
// fault. Identifiers the processing budget never let start count toward
// redelivery but not toward processed/failed.
func verifyEnvelope(env *envelope) error {
	if env.Body.Processed != env.Body.Succeeded+env.Body.Failed {
		return fmt.Errorf("processed (%d) != succeeded (%d) + failed (%d)",
			env.Body.Processed, env.Body.Succeeded, env.Body.Failed)
	}

	// Single-node envelopes omit the outcomes sequence; only the counter
	// bound is checkable.
	if len(env.Body.Outcomes) == 0 {
		if len(env.BatchItemFailures) > env.Body.Failed {
			return fmt.Errorf("batchItemFailures (%d) exceeds failed count (%d)",
				len(env.BatchItemFailures), env.Body.Failed)
		}
		return nil
	}

	unattempted := 0
	failedNodes := make(map[string]outcome, len(env.Body.Outcomes))
	for _, out := range env.Body.Outcomes {
		if !out.Attempted {
			unattempted++
		}
		if !out.Success {
			failedNodes[out.NodeID] = out
		}
	}

	if len(env.BatchItemFailures) > env.Body.Failed+unattempted {
		return fmt.Errorf("batchItemFailures (%d) exceeds failed (%d) + unattempted (%d)",
			len(env.BatchItemFailures), env.Body.Failed, unattempted)
	}

	for _, failure := range env.BatchItemFailures {
		out, ok := failedNodes[failure.ItemIdentifier]
		if !ok {
			return fmt.Errorf("batch item failure %q has no failed outcome", failure.ItemIdentifier)
		}
		if out.Fault != nil && !out.Fault.Retryable {
			return fmt.Errorf("batch item failure %q carries a terminal fault (%s)",
				failure.ItemIdentifier, out.Fault.Kind)
		}
	}

	return nil
}

// verifySubmission checks that the enqueue counters account for every
// submitted node.
func verifySubmission(stats *Stats) error {
	log.Println("🔍 Verifying submission counters...")

	total := stats.Accepted + stats.Duplicates + stats.Rejected + stats.SubmitFailed
	if total != stats.NodesSubmitted {
		return fmt.Errorf("counters do not reconcile: accepted (%d) + duplicate (%d) + rejected (%d) + failed (%d) != submitted (%d)",
			stats.Accepted, stats.Duplicates, stats.Rejected, stats.SubmitFailed, stats.NodesSubmitted)
	}

	log.Println("✅ Submission counters verified")
	return nil
}
