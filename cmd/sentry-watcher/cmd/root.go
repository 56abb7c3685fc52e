package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/plc-sentry/internal/config"
	"github.com/oshokin/plc-sentry/internal/service/watcher"
	"github.com/oshokin/plc-sentry/internal/version"
)

var (
	// configPath stores the path to the configuration YAML file.
	configPath string
	// debug logs settled changes without launching the backup action.
	debug bool
	// historyLimit caps how many runs the history command shows.
	historyLimit int

	// rootCmd represents the base command for watching the controller value.
	rootCmd = &cobra.Command{
		Use:   "sentry-watcher",
		Short: "Watch a controller value and trigger backups when it settles.",
		Long: `Background service that watches a controller audit value and triggers a backup.

Polls the configured value source at a fixed interval. When the value changes
and then stays unchanged for the full stability period, the configured backup
action is launched exactly once. A backup already in progress is never
duplicated: a change that settles meanwhile is logged and dropped.

This runs unattended on the station PC; a terminated in-flight backup is never
cut short - shutdown waits for it to finish.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			watcherOptions := &watcher.Options{
				ConfigPath: configPath,
				Debug:      debug,
			}

			return watcher.Run(ctx, watcherOptions)
		},
	}

	// historyCmd renders the recorded backup runs as a table.
	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "Show recorded backup runs, newest first.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			historyOptions := &watcher.HistoryOptions{
				ConfigPath: configPath,
				Limit:      historyLimit,
			}

			return watcher.RunHistory(ctx, historyOptions)
		},
	}
)

// Execute runs the sentry-watcher CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)
	rootCmd.AddCommand(historyCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")

	// Hidden debug flag to log settled changes without running backups.
	rootCmd.Flags().BoolVarP(&debug, "debug", "d", false, "skip backup action for debugging")

	err := rootCmd.Flags().MarkHidden("debug")
	if err != nil {
		panic(err)
	}

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "show at most this many runs (0 = all)")
}
