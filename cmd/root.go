// Package cmd defines the shotapi command line.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/shotapi/internal/config"
	"github.com/JakeFAU/shotapi/internal/logging"
)

// version is overridden at build time with -ldflags "-X github.com/JakeFAU/shotapi/cmd.version=...".
var version = "dev"

type configKeyType struct{}

var configKey configKeyType

// loadConfig is a variable so tests can bypass the environment.
var loadConfig = config.Load

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:           "shotapi",
		Short:         "Web page screenshot and PDF capture service",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		// Every subcommand runs with a validated config in its context.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")

	cmd.AddCommand(
		newServeCmd(&cfgFile),
		newClearCacheCmd(),
		newCaptureCmd(),
		newMigrateCmd(),
	)
	return cmd
}

func configFrom(ctx context.Context) config.Config {
	cfg, _ := ctx.Value(configKey).(config.Config)
	return cfg
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	logger, _, err := logging.New(logging.Options{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	return logger, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "shotapi: %v\n", err)
		os.Exit(1)
	}
}
