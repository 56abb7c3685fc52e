package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/plc-sentry/internal/config"
	"github.com/oshokin/plc-sentry/internal/service/backup"
	"github.com/oshokin/plc-sentry/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string

	// rootCmd represents the base command for running one queued backup.
	rootCmd = &cobra.Command{
		Use:   "sentry-backup",
		Short: "Run one queued controller program backup.",
		Long: `Run the configured vendor upload command once, queueing behind other backups.

A machine-wide lock file serializes concurrent invocations; a lock left by a
dead process is reclaimed. After the upload finishes, the newest matching file
in the save directory must be fresh, otherwise the run fails. Old copies
beyond the configured retention are pruned.

The watcher launches this as its backup action; the exit code tells it whether
the backup succeeded.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			backupOptions := &backup.Options{
				ConfigPath: configPath,
			}

			return backup.Run(ctx, backupOptions)
		},
	}
)

// Execute runs the sentry-backup CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
}
