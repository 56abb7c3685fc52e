package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/plc-sentry/internal/service/launcher"
	"github.com/oshokin/plc-sentry/internal/version"
)

// rootCmd represents the base command for the startup shim.
var rootCmd = &cobra.Command{
	Use:   "sentry-launcher <command> [args...]",
	Short: "Run a command once no update is in progress",
	Long: `Startup shim for station PCs.

Waits until no update marker is present (removing stale markers left by a
crashed updater), then runs the given command with inherited standard streams
and propagates its result. Register it as the system startup command wrapping
sentry-watcher.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		// Setup graceful shutdown handling.
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		options := &launcher.Options{
			Command: args,
		}

		return launcher.Run(ctx, options)
	},
}

// Execute runs the sentry-launcher CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Flags after the wrapped command belong to it, not to the launcher.
	rootCmd.Flags().SetInterspersed(false)
}
