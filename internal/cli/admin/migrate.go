package admin

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cognidex/cognidex/internal/config"
	"github.com/cognidex/cognidex/internal/migrations"
)

// MigrateCmd returns the migrate command
func MigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long:  "Apply pending schema migrations to the relational index backend and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			target := cfg.MigrateTarget()
			if target == "" {
				return fmt.Errorf("no postgres index backend configured and COGNIDEX_MIGRATE_URL not set")
			}

			return migrations.Run(target)
		},
	}
}
