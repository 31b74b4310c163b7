package cli

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/avetra/prospect/internal/loadgen"
)

// Load test defaults.
const (
	defaultLoadNodes     = 1000
	defaultLoadBatchSize = 25
	defaultDrainWait     = 2 * time.Minute
	defaultRunTimeout    = 10 * time.Minute
)

var (
	loadNodes     int
	loadWorkers   int
	loadMode      string
	loadBatchSize int
	loadDrainWait time.Duration
	loadOutput    string
	loadLogFile   string
	loadVerbose   bool
	loadTimeout   time.Duration
)

var loadtestCmd = &cobra.Command{
	Use:   "loadtest",
	Short: "Run synthetic load against the service",
	Long: `Generates synthetic node identifiers and submits them to the service,
then verifies that the returned counters reconcile.

Modes:
  enqueue - submit through /v1/enqueue and wait for the queue to drain
  process - submit through synchronous /v1/process batches`,
	Args: cobra.NoArgs,
	RunE: runLoadtest,
}

func init() {
	loadtestCmd.Flags().IntVar(&loadNodes, "nodes", defaultLoadNodes, "number of synthetic nodes")
	loadtestCmd.Flags().IntVar(&loadWorkers, "workers", runtime.NumCPU()*2, "number of concurrent workers")
	loadtestCmd.Flags().StringVar(&loadMode, "mode", loadgen.ModeEnqueue, "submission mode: enqueue or process")
	loadtestCmd.Flags().IntVar(&loadBatchSize, "batch-size", defaultLoadBatchSize, "identifiers per process call")
	loadtestCmd.Flags().DurationVar(&loadDrainWait, "drain-wait", defaultDrainWait, "how long to wait for the queue to drain")
	loadtestCmd.Flags().StringVar(&loadOutput, "output", "", "output file for generated identifiers")
	loadtestCmd.Flags().StringVar(&loadLogFile, "log", "", "log file for run output")
	loadtestCmd.Flags().BoolVar(&loadVerbose, "verbose", false, "enable verbose logging")
	loadtestCmd.Flags().DurationVar(&loadTimeout, "run-timeout", defaultRunTimeout, "overall run timeout")
	rootCmd.AddCommand(loadtestCmd)
}

func runLoadtest(cmd *cobra.Command, _ []string) error {
	if loadMode != loadgen.ModeEnqueue && loadMode != loadgen.ModeProcess {
		return fmt.Errorf("unknown mode %q: use %s or %s", loadMode, loadgen.ModeEnqueue, loadgen.ModeProcess)
	}
	if loadNodes < 1 {
		return fmt.Errorf("nodes must be at least 1")
	}
	if loadWorkers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}

	if err := loadgen.SetupLogging(loadLogFile); err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), loadTimeout)
	defer cancel()

	config := &loadgen.Config{
		BaseURL:    baseURL,
		NumNodes:   loadNodes,
		Workers:    loadWorkers,
		Mode:       loadMode,
		BatchSize:  loadBatchSize,
		Timeout:    httpTimeout,
		DrainWait:  loadDrainWait,
		OutputFile: loadOutput,
		LogFile:    loadLogFile,
		Verbose:    loadVerbose,
	}

	if err := loadgen.Run(ctx, config); err != nil {
		return fmt.Errorf("load run failed: %w", err)
	}
	return nil
}
