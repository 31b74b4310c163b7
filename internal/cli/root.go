// Package cli implements the prospectctl command tree. Every command
// talks to a running ingestion service over its HTTP API.
package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var (
	baseURL     string
	httpTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "prospectctl",
	Short: "Operate a prospect ingestion service",
	Long: `prospectctl drives a running prospect ingestion service over HTTP.

It can process nodes synchronously, enqueue them for background
processing, inspect the provider chain and service statistics, and run
synthetic load against the service.`,
	SilenceUsage: true,
}

// Execute runs the root command with the given context.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseURL, "url", "http://localhost:9080", "base URL of the service")
	rootCmd.PersistentFlags().DurationVar(&httpTimeout, "timeout", 30*time.Second, "HTTP request timeout")
}
