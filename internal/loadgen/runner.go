package loadgen

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/avetra/prospect/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
)

// Run executes a complete load run against a live service.
func Run(ctx context.Context, config *Config) error {
	stats := &Stats{
		StartTime: time.Now(),
	}

	logger.Get().Info(ctx, "starting prospect load run",
		logger.String("baseURL", config.BaseURL),
		logger.String("mode", config.Mode),
		logger.Int("nodes", config.NumNodes),
		logger.Int("workers", config.Workers),
		logger.Int("batchSize", config.BatchSize),
		logger.String("timeout", config.Timeout.String()),
		logger.String("logFile", config.LogFile),
		logger.Any("verbose", config.Verbose))

	// Step 1: Check service health
	if err := checkServiceHealth(ctx, config); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Generate synthetic identifiers
	ids, err := generateIdentifiers(ctx, config, stats)
	if err != nil {
		return fmt.Errorf("identifier generation failed: %w", err)
	}

	// Step 3: Submit per the configured mode
	switch config.Mode {
	case ModeProcess:
		if err := processBatches(ctx, config, ids, stats); err != nil {
			return fmt.Errorf("batch processing failed: %w", err)
		}
	default:
		if err := submitIdentifiers(ctx, config, ids, stats); err != nil {
			return fmt.Errorf("enqueue failed: %w", err)
		}

		// Step 4: Wait for the queue to drain
		if err := waitForDrain(ctx, config); err != nil {
			logger.Get().Warn(ctx, "queue did not drain in time", logger.Error(err))
		}

		// Step 5: Verify submission accounting
		if err := verifySubmission(stats); err != nil {
			return fmt.Errorf("submission verification failed: %w", err)
		}
	}

	// Step 6: Save identifiers to file
	if err := saveIdentifiersToFile(ctx, config, ids); err != nil {
		logger.Get().Warn(ctx, "failed to save identifiers to file", logger.Error(err))
	}

	// Final statistics
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	displayFinalStats(stats)

	logger.Get().Info(ctx, "load run completed successfully")
	return nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, config *Config) error {
	logger.Get().Info(ctx, "checking service health")

	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + "/healthz"

	resp, err := client.Get(ctx, url)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Get().Error(context.Background(), "failed to close response body", logger.Error(err))
		}
	}()

	if resp.StatusCode != StatusOK {
		return fmt.Errorf("service health check failed with status: %d", resp.StatusCode)
	}

	logger.Get().Info(ctx, "service is healthy")
	return nil
}

// waitForDrain polls the stats endpoint until the queue is empty or the
// configured drain window elapses.
func waitForDrain(ctx context.Context, config *Config) error {
	logger.Get().Info(ctx, "waiting for the queue to drain", logger.String("window", config.DrainWait.String()))

	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + "/v1/stats"
	deadline := time.Now().Add(config.DrainWait)

	ticker := time.NewTicker(DrainPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			depth, inFlight, err := fetchQueueDepth(ctx, client, url)
			if err != nil {
				logger.Get().Warn(ctx, "stats poll failed", logger.Error(err))
			} else if depth == 0 && inFlight == 0 {
				logger.Get().Info(ctx, "queue drained")
				return nil
			}

			if time.Now().After(deadline) {
				return fmt.Errorf("queue depth still %d after %s", depth, config.DrainWait)
			}
		}
	}
}

// fetchQueueDepth reads queue_depth and in_flight from the stats endpoint.
// JSON numbers decode as float64.
func fetchQueueDepth(ctx context.Context, client *HTTPClient, url string) (int, int, error) {
	resp, err := client.Get(ctx, url)
	if err != nil {
		return 0, 0, err
	}

	body, err := readResponseBody(resp)
	if err != nil {
		return 0, 0, err
	}

	if resp.StatusCode != StatusOK {
		return 0, 0, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var stats map[string]interface{}
	if err := unmarshalJSON(body, &stats); err != nil {
		return 0, 0, err
	}

	depth := 0
	if v, ok := stats["queue_depth"].(float64); ok {
		depth = int(v)
	}
	inFlight := 0
	if v, ok := stats["in_flight"].(float64); ok {
		inFlight = int(v)
	}
	return depth, inFlight, nil
}

// saveIdentifiersToFile saves the generated identifiers to a JSON file.
func saveIdentifiersToFile(ctx context.Context, config *Config, ids []Identifier) error {
	if len(ids) == 0 {
		return fmt.Errorf("no identifiers to save")
	}

	// Determine output filename
	filename := config.OutputFile
	if filename == "" {
		timestamp := time.Now().Format("20060102_150405")
		filename = "generated_nodes_" + timestamp + ".json"
	}

	// Ensure the directory exists
	dir := filepath.Dir(filename)
	if dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// Write identifiers to file
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			logger.Get().Error(context.Background(), "failed to close file", logger.Error(err))
		}
	}()

	// Write JSON array
	if _, err := file.WriteString("[\n"); err != nil {
		return fmt.Errorf("failed to write opening bracket: %w", err)
	}

	for i, id := range ids {
		jsonData, err := marshalJSON(id)
		if err != nil {
			return fmt.Errorf("failed to marshal identifier %d: %w", i, err)
		}

		if _, err := file.Write(jsonData); err != nil {
			return fmt.Errorf("failed to write identifier %d: %w", i, err)
		}

		// Add comma except for last identifier
		if i < len(ids)-1 {
			if _, err := file.WriteString(","); err != nil {
				return fmt.Errorf("failed to write comma: %w", err)
			}
		}
		_, _ = file.WriteString("\n")
	}

	if _, err := file.WriteString("]\n"); err != nil {
		return fmt.Errorf("failed to write closing bracket: %w", err)
	}

	logger.Get().Info(ctx, "identifiers saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats prints the final load run statistics.
func displayFinalStats(stats *Stats) {
	var successRate, nodesPerSecond float64

	if stats.Processed > 0 {
		successRate = float64(stats.Succeeded) / float64(stats.Processed) * PercentageMultiplier
	} else if stats.NodesSubmitted > 0 {
		successRate = float64(stats.Accepted+stats.Duplicates) / float64(stats.NodesSubmitted) * PercentageMultiplier
	}

	if stats.Duration > 0 {
		nodesPerSecond = float64(stats.NodesSubmitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("nodesGenerated", stats.NodesGenerated),
		logger.Int("nodesSubmitted", stats.NodesSubmitted),
		logger.Int("accepted", stats.Accepted),
		logger.Int("duplicates", stats.Duplicates),
		logger.Int("rejected", stats.Rejected),
		logger.Int("submitFailed", stats.SubmitFailed),
		logger.Int("processed", stats.Processed),
		logger.Int("succeeded", stats.Succeeded),
		logger.Int("failed", stats.Failed),
		logger.Int("profilesScraped", stats.ProfilesScraped),
		logger.Int("redeliverySlots", stats.RedeliverySlots),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("successRate", successRate),
		logger.Float64("nodesPerSecond", nodesPerSecond))
}
