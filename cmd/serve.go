package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/shotapi/internal/server"
)

func newServeCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP capture service",
		Long: `Starts the HTTP service. Captures are served from the in-memory cache, then the
configured durable store, and rendered with headless Chrome on a miss. The
process drains in-flight renders and stops on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := server.Build(cmd.Context(), configFrom(cmd.Context()), server.Options{
				ConfigPath: *cfgFile,
				Version:    version,
			})
			if err != nil {
				return fmt.Errorf("build application: %w", err)
			}
			return app.Run(cmd.Context())
		},
	}
}
