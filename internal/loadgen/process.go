package loadgen

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// processBatches drives synchronous /v1/process calls over the identifiers
// in fixed-size batches and folds the returned envelopes into stats.
func processBatches(ctx context.Context, config *Config, ids []Identifier, stats *Stats) error {
	batches := sliceBatches(ids, config.BatchSize)
	log.Printf("⚙️  Processing %d nodes in %d batches with %d workers...", len(ids), len(batches), config.Workers)

	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + "/v1/process"

	// Counters for statistics
	var (
		processed  int64
		succeeded  int64
		failed     int64
		scraped    int64
		redeliver  int64
		submitted  int64
		submitErrs int64
	)

	// Progress reporting
	var lastReport time.Time
	reportInterval := 1 * time.Second

	// Create worker pool
	batchChan := make(chan []Identifier, config.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for batch := range batchChan {
				select {
				case <-ctx.Done():
					return
				default:
					env, err := processSingleBatch(ctx, client, url, batch)
					atomic.AddInt64(&submitted, int64(len(batch)))
					if err != nil {
						atomic.AddInt64(&submitErrs, 1)
						if config.Verbose {
							log.Printf("⚠️  Batch of %d failed: %v", len(batch), err)
						}
						continue
					}

					if err := verifyEnvelope(env); err != nil {
						log.Printf("⚠️  Envelope inconsistency: %v", err)
					}

					atomic.AddInt64(&processed, int64(env.Body.Processed))
					atomic.AddInt64(&succeeded, int64(env.Body.Succeeded))
					atomic.AddInt64(&failed, int64(env.Body.Failed))
					atomic.AddInt64(&scraped, int64(env.Body.ProfilesScraped))
					atomic.AddInt64(&redeliver, int64(len(env.BatchItemFailures)))

					// Progress reporting
					if time.Since(lastReport) >= reportInterval {
						lastReport = time.Now()
						total := atomic.LoadInt64(&submitted)
						done := atomic.LoadInt64(&processed)
						succ := atomic.LoadInt64(&succeeded)
						fail := atomic.LoadInt64(&failed)

						if config.Verbose {
							log.Printf("📊 Progress: %d/%d submitted (processed: %d, succeeded: %d, failed: %d)",
								total, len(ids), done, succ, fail)
						} else {
							fmt.Printf("\r⚙️  Processed: %d/%d (succeeded: %d, failed: %d)",
								done, len(ids), succ, fail)
						}
					}
				}
			}
		}()
	}

	// Send batches to workers
	go func() {
		defer close(batchChan)
		for _, batch := range batches {
			select {
			case <-ctx.Done():
				return
			case batchChan <- batch:
			}
		}
	}()

	// Wait for all workers to complete
	wg.Wait()

	// Final progress report
	if !config.Verbose {
		fmt.Println() // New line after progress indicator
	}

	// Update stats
	stats.NodesSubmitted = int(atomic.LoadInt64(&submitted))
	stats.Processed = int(atomic.LoadInt64(&processed))
	stats.Succeeded = int(atomic.LoadInt64(&succeeded))
	stats.Failed = int(atomic.LoadInt64(&failed))
	stats.ProfilesScraped = int(atomic.LoadInt64(&scraped))
	stats.RedeliverySlots = int(atomic.LoadInt64(&redeliver))
	stats.SubmitFailed = int(atomic.LoadInt64(&submitErrs))

	log.Printf(`✅ Processing completed:
   Processed: %d
   Succeeded: %d
   Failed: %d
   Profiles scraped: %d
   Redelivery eligible: %d
`, stats.Processed, stats.Succeeded, stats.Failed, stats.ProfilesScraped, stats.RedeliverySlots)

	return nil
}

// processSingleBatch posts one batch and decodes the invocation envelope.
func processSingleBatch(ctx context.Context, client *HTTPClient, url string, batch []Identifier) (*envelope, error) {
	nodeIDs := make([]string, len(batch))
	for i, id := range batch {
		nodeIDs[i] = id.NodeID
	}

	resp, err := client.Post(ctx, url, map[string]interface{}{"nodeIds": nodeIDs})
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	body, err := readResponseBody(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var env envelope
	if err := unmarshalJSON(body, &env); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &env, nil
}

// sliceBatches splits identifiers into batches of at most size elements.
func sliceBatches(ids []Identifier, size int) [][]Identifier {
	if size < 1 {
		size = 1
	}

	batches := make([][]Identifier, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		batches = append(batches, ids[start:end])
	}
	return batches
}
