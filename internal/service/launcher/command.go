package launcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/oshokin/plc-sentry/internal/logger"
	"github.com/oshokin/plc-sentry/internal/service/updater"
)

// Options contains inputs for the launcher entry point.
type Options struct {
	// Command is the program and arguments to run once no update is in progress.
	Command []string
	// PollInterval is how often the update marker is re-checked.
	PollInterval time.Duration
}

// DefaultPollInterval defines the fixed interval between marker checks.
const DefaultPollInterval = 2 * time.Second

// errCommandRequired is returned when no program to launch was given.
var errCommandRequired = errors.New("command to launch must be provided")

// Run waits until no update is in progress, then runs the given command
// with inherited standard streams and propagates its result. Stale update
// markers are cleaned up by the marker check itself.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "sentry-launcher")

	if len(opts.Command) == 0 {
		return errCommandRequired
	}

	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}

	// Check immediately before starting the poll loop.
	if !updater.IsUpdaterRunningNow(ctx) {
		return launch(ctx, opts.Command)
	}

	logger.InfoKV(ctx, "Update in progress, waiting", "interval", opts.PollInterval.String())

	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Context canceled, exiting without launching")
			return nil
		case <-ticker.C:
			if updater.IsUpdaterRunningNow(ctx) {
				continue
			}

			return launch(ctx, opts.Command)
		}
	}
}

// launch runs the command to completion with inherited standard streams.
func launch(ctx context.Context, command []string) error {
	logger.InfoKV(ctx, "Update marker not present, launching", "command", command[0])

	cmd := exec.Command(command[0], command[1:]...) //nolint:gosec // The command comes from the operator.
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("run %s: %w", command[0], err)
	}

	return nil
}
