package client

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// BackendStatus represents one backend's health snapshot.
type BackendStatus struct {
	Name                string   `json:"name"`
	Kind                string   `json:"kind"`
	Roles               []string `json:"roles"`
	Healthy             bool     `json:"healthy"`
	ConsecutiveFailures int      `json:"consecutive_failures"`
}

// BackendsAPIResponse represents the backends API response.
type BackendsAPIResponse struct {
	Backends []BackendStatus `json:"backends"`
}

// BackendsCmd creates the backends command.
func BackendsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "Show backend health",
		Long:  "Lists the configured storage backends with their roles and circuit state.",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runBackends(cmd, outputJSON)
		},
	}
}

func runBackends(cmd *cobra.Command, outputJSON bool) error {
	api := NewAPIClient(cmd)

	resp, err := api.Get("/v1/backends")
	if err != nil {
		return fmt.Errorf("backends failed: %w", err)
	}

	var backendsResp BackendsAPIResponse
	if err := json.Unmarshal(resp.Data, &backendsResp); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(backendsResp, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(backendsResp.Backends) == 0 {
		fmt.Println("No backends configured.")
		return nil
	}

	for _, b := range backendsResp.Backends {
		state := "healthy"
		if !b.Healthy {
			state = fmt.Sprintf("unhealthy (%d consecutive failures)", b.ConsecutiveFailures)
		}
		fmt.Printf("%s (%s) roles=%s: %s\n", b.Name, b.Kind, strings.Join(b.Roles, ","), state)
	}

	return nil
}
