package cli

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var enqueueUsername string

var enqueueCmd = &cobra.Command{
	Use:   "enqueue [nodeId]",
	Short: "Queue a node for background processing",
	Args:  cobra.ExactArgs(1),
	RunE:  runEnqueue,
}

func init() {
	enqueueCmd.Flags().StringVar(&enqueueUsername, "username", "", "username hint")
	rootCmd.AddCommand(enqueueCmd)
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	nodeID := args[0]

	payload := map[string]string{"nodeId": nodeID, "username": enqueueUsername}
	body, status, err := postJSON(cmd.Context(), "/v1/enqueue", payload)
	if err != nil {
		return fmt.Errorf("enqueue failed: %w", err)
	}

	switch status {
	case http.StatusAccepted:
		cmd.Printf("node %s accepted\n", nodeID)
		return nil
	case http.StatusOK:
		var ack struct {
			Duplicate bool `json:"duplicate"`
		}
		if err := json.Unmarshal(body, &ack); err == nil && ack.Duplicate {
			cmd.Printf("node %s already queued or processed\n", nodeID)
			return nil
		}
		cmd.Printf("node %s acknowledged\n", nodeID)
		return nil
	case http.StatusTooManyRequests:
		return fmt.Errorf("queue is full, retry later")
	case http.StatusServiceUnavailable:
		return fmt.Errorf("service is not started")
	default:
		return serviceError(status, body)
	}
}
