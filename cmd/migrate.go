package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/shotapi/internal/storage/postgres"
)

func newMigrateCmd() *cobra.Command {
	var direction string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the capture audit schema to db.dsn",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := configFrom(cmd.Context())
			if cfg.DB.DSN == "" {
				return fmt.Errorf("db.dsn is not configured")
			}
			return postgres.Migrate(cmd.Context(), cfg.DB.DSN, direction)
		},
	}
	cmd.Flags().StringVar(&direction, "direction", postgres.MigrateUp, "up, down or status")
	return cmd
}
