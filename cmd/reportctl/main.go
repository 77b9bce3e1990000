// Command reportctl runs report ticks by hand and inspects the stored
// watermarks.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jwalitptl/comms-notebook/internal/app"
	"github.com/jwalitptl/comms-notebook/internal/config"
	"github.com/jwalitptl/comms-notebook/internal/repository"
	"github.com/jwalitptl/comms-notebook/pkg/logger"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

type rootOptions struct {
	configDir string
	logLevel  string
}

// openStore builds the configured watermark store. Tests replace it.
var openStore = func(ctx context.Context, opts *rootOptions) (repository.WatermarkRepository, func(), error) {
	a, err := buildApp(ctx, opts, app.Options{})
	if err != nil {
		return nil, nil, err
	}
	return a.Watermarks, a.Close, nil
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "reportctl",
		Short:         "Communications notebook report administration",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVarP(&opts.configDir, "config", "c", "", "directory holding config.yaml")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newRunCmd(opts))
	cmd.AddCommand(newWatermarkCmd(opts))
	cmd.AddCommand(newRosterCmd(opts))
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "reportctl %s (commit: %s)\n", Version, Commit)
		},
	}
}

func loadConfig(opts *rootOptions) (*config.Config, error) {
	if opts.configDir != "" {
		return config.LoadConfig(opts.configDir)
	}
	return config.LoadConfig()
}

func newLogger(opts *rootOptions) *logger.Logger {
	return logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(opts.logLevel),
		TimeFormat: time.RFC3339,
		Output:     os.Stderr,
	})
}

func buildApp(ctx context.Context, opts *rootOptions, appOpts app.Options) (*app.App, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return app.New(ctx, cfg, newLogger(opts), appOpts)
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
