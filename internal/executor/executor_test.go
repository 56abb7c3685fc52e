package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

const helperModeEnv = "PLC_SENTRY_EXECUTOR_HELPER"

// helperCommand re-runs this test binary so the tests have a portable
// command with a controllable exit code.
func helperCommand(t *testing.T, args ...string) []string {
	t.Helper()
	t.Setenv(helperModeEnv, "1")

	return append([]string{os.Args[0], "-test.run=TestHelperProcess", "--"}, args...)
}

// TestHelperProcess is not a real test: it is the child process launched
// by helperCommand.
func TestHelperProcess(t *testing.T) {
	if os.Getenv(helperModeEnv) != "1" {
		return
	}

	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}

	if len(args) < 2 {
		os.Exit(0)
	}

	args = args[1:]

	switch args[0] {
	case "exit":
		fmt.Println("helper finishing")

		code, err := strconv.Atoi(args[1])
		if err != nil {
			os.Exit(1)
		}

		os.Exit(code)
	case "touch":
		if err := os.WriteFile(args[1], []byte("ok"), 0o600); err != nil {
			os.Exit(1)
		}

		os.Exit(0)
	}

	os.Exit(0)
}

func TestCommandExecutorRun(t *testing.T) {
	e := NewCommandExecutor()

	code, err := e.Run(context.Background(), helperCommand(t, "exit", "0"), "")
	require.NoError(t, err)
	require.Equal(t, 0, code)
}

func TestCommandExecutorRun_NonZeroExit(t *testing.T) {
	e := NewCommandExecutor()

	code, err := e.Run(context.Background(), helperCommand(t, "exit", "3"), "")
	require.NoError(t, err)
	require.Equal(t, 3, code)
}

func TestCommandExecutorRun_WorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	e := NewCommandExecutor()

	code, err := e.Run(context.Background(), helperCommand(t, "touch", "artifact.txt"), dir)
	require.NoError(t, err)
	require.Equal(t, 0, code)
	require.FileExists(t, filepath.Join(dir, "artifact.txt"))
}

func TestCommandExecutorRun_StartFailure(t *testing.T) {
	t.Parallel()

	e := NewCommandExecutor()

	code, err := e.Run(context.Background(), []string{"plc-sentry-no-such-binary"}, "")
	require.Error(t, err)
	require.Equal(t, -1, code)
}

func TestCommandExecutorRun_EmptyCommand(t *testing.T) {
	t.Parallel()

	e := NewCommandExecutor()

	code, err := e.Run(context.Background(), nil, "")
	require.ErrorIs(t, err, errEmptyCommand)
	require.Equal(t, -1, code)
}
