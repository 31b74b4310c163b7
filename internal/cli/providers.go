package cli

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var (
	providersProbe bool
	providersJSON  bool
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Show the provider fallback chain",
	Args:  cobra.NoArgs,
	RunE:  runProviders,
}

func init() {
	providersCmd.Flags().BoolVar(&providersProbe, "probe", false, "issue a reachability probe per provider")
	providersCmd.Flags().BoolVar(&providersJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(providersCmd)
}

// providerStatus mirrors one entry of the providers listing.
type providerStatus struct {
	Name       string `json:"name"`
	Position   int    `json:"position"`
	Configured bool   `json:"configured"`
	Host       string `json:"host,omitempty"`
	Healthy    *bool  `json:"healthy,omitempty"`
	LatencyMS  int64  `json:"latency_ms,omitempty"`
	Error      string `json:"error,omitempty"`
}

func runProviders(cmd *cobra.Command, _ []string) error {
	path := "/v1/providers"
	if providersProbe {
		path += "?probe=true"
	}

	body, status, err := getRaw(cmd.Context(), path)
	if err != nil {
		return fmt.Errorf("providers failed: %w", err)
	}
	if status != http.StatusOK {
		return serviceError(status, body)
	}

	if providersJSON {
		return printJSON(cmd, body)
	}

	var listing []providerStatus
	if err := json.Unmarshal(body, &listing); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if len(listing) == 0 {
		cmd.Println("No providers configured.")
		return nil
	}

	cmd.Println("Provider chain:")
	cmd.Println()
	for _, p := range listing {
		state := "unconfigured"
		if p.Configured {
			state = "configured"
		}

		cmd.Printf("  [%d] %-10s %s", p.Position, p.Name, state)
		if p.Host != "" {
			cmd.Printf("  host=%s", p.Host)
		}
		if p.Healthy != nil {
			if *p.Healthy {
				cmd.Printf("  healthy (%dms)", p.LatencyMS)
			} else {
				cmd.Printf("  unhealthy: %s", p.Error)
			}
		}
		cmd.Println()
	}

	return nil
}
