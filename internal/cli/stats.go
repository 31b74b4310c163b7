package cli

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show service statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	body, status, err := getRaw(cmd.Context(), "/v1/stats")
	if err != nil {
		return fmt.Errorf("stats failed: %w", err)
	}
	if status != http.StatusOK {
		return serviceError(status, body)
	}

	return printJSON(cmd, body)
}
