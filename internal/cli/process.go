package cli

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var processUsername string

var processCmd = &cobra.Command{
	Use:   "process [nodeId...]",
	Short: "Process one or more nodes synchronously",
	Long: `Runs the full ingestion pipeline for the given nodes and prints the
invocation envelope: fetch through the provider fallback chain, transform,
score, persist.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runProcess,
}

func init() {
	processCmd.Flags().StringVar(&processUsername, "username", "", "username hint (single node only)")
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	if processUsername != "" && len(args) > 1 {
		return errors.New("a username hint applies to a single node")
	}

	var payload interface{}
	if len(args) == 1 {
		payload = map[string]string{"nodeId": args[0], "username": processUsername}
	} else {
		payload = map[string][]string{"nodeIds": args}
	}

	body, status, err := postJSON(cmd.Context(), "/v1/process", payload)
	if err != nil {
		return fmt.Errorf("process failed: %w", err)
	}
	if status != http.StatusOK {
		return serviceError(status, body)
	}

	return printJSON(cmd, body)
}
