package cmd

import (
	"github.com/spf13/cobra"

	"github.com/JakeFAU/shotapi/internal/server"
)

func newClearCacheCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-cache",
		Short: "Delete every record from the configured durable cache",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := configFrom(cmd.Context())
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return server.ClearCache(cmd.Context(), cfg, logger)
		},
	}
}
