package cli

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var batchLimit int

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Resolve and process a batch of pending nodes",
	Long: `Asks the service to pick up to limit unscraped candidates from its
repository and process them, printing the invocation envelope.`,
	Args: cobra.NoArgs,
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "candidate cap (0 uses the service default)")
	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, _ []string) error {
	payload := map[string]interface{}{"batch": true}
	if batchLimit > 0 {
		payload["limit"] = batchLimit
	}

	body, status, err := postJSON(cmd.Context(), "/v1/process", payload)
	if err != nil {
		return fmt.Errorf("batch failed: %w", err)
	}
	if status != http.StatusOK {
		return serviceError(status, body)
	}

	return printJSON(cmd, body)
}
