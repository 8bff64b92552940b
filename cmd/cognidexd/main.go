package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cognidex/cognidex/internal/cli/admin"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "cognidexd",
		Short: "Cognidex daemon",
		Long:  "Cognidex daemon for running the API server and managing the relational schema",
	}

	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.MigrateCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
