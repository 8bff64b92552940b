package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cognidex/cognidex/internal/cli/client"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "cognidex",
		Short: "Cognidex CLI - Knowledge extraction storage",
		Long: `Cognidex CLI provides commands to ingest and query extracted knowledge.

Environment variables:
  COGNIDEX_API_URL   API base URL (default: http://localhost:8080)`,
		Version: version,
	}

	rootCmd.PersistentFlags().Bool("output", false, "Output as JSON")
	rootCmd.PersistentFlags().String("api-url", "", "API base URL (overrides env)")

	rootCmd.AddCommand(client.DiscoverCmd())
	rootCmd.AddCommand(client.IngestCmd())
	rootCmd.AddCommand(client.SessionCmd())
	rootCmd.AddCommand(client.BackendsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
