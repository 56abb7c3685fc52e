package executor

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/oshokin/plc-sentry/internal/logger"
)

// errEmptyCommand is returned when no command is configured.
var errEmptyCommand = errors.New("command is empty")

// Executor starts an external command and waits for it to finish.
type Executor interface {
	// Run executes the command in the given working directory and returns
	// its exit code. A non-zero exit is not an error: the command ran and
	// reported failure. The returned error means the command never started,
	// in which case the exit code is -1.
	Run(ctx context.Context, command []string, workingDirectory string) (int, error)
}

// CommandExecutor runs commands through the operating system.
type CommandExecutor struct{}

// NewCommandExecutor returns an Executor backed by os/exec.
func NewCommandExecutor() *CommandExecutor {
	return &CommandExecutor{}
}

// Run starts the command and waits for it. The process is deliberately not
// bound to ctx: a backup already in progress must run to completion even
// when the watch loop is shutting down. ctx only scopes the logging.
func (e *CommandExecutor) Run(ctx context.Context, command []string, workingDirectory string) (int, error) {
	if len(command) == 0 {
		return -1, errEmptyCommand
	}

	cmd := exec.Command(command[0], command[1:]...) //nolint:gosec // The command comes from the station settings.
	cmd.Dir = workingDirectory

	output, err := cmd.CombinedOutput()
	if trimmed := strings.TrimSpace(string(output)); trimmed != "" {
		logger.DebugKV(ctx, "Command output", "command", command[0], "output", trimmed)
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}

		return -1, fmt.Errorf("start command %s: %w", command[0], err)
	}

	return 0, nil
}
