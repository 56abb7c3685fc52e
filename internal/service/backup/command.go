package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oshokin/plc-sentry/internal/config"
	"github.com/oshokin/plc-sentry/internal/executor"
	"github.com/oshokin/plc-sentry/internal/logger"
)

// Options contains inputs for the backup runner entry point.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// Executor overrides how the upload command is launched.
	// Tests install fakes here; nil means the real command executor.
	Executor executor.Executor
}

// outputPlaceholder in the upload command is replaced with the timestamped
// destination path of this run's artifact.
const outputPlaceholder = "{output}"

// timestampLayout names artifacts down to the minute, matching the plant's
// backup naming convention.
const timestampLayout = "20060102_1504"

// defaultLockFilename is used when no lock file is configured; it lives in
// the user's home directory so every invocation on the machine agrees on it.
const defaultLockFilename = ".plc-sentry-backup.lock"

var (
	errUploadCommandRequired = errors.New("backup upload command must be provided")
	errSaveDirectoryRequired = errors.New("backup save directory must be provided")
	errNoFreshArtifact       = errors.New("upload produced no fresh backup artifact")
)

// Run executes one queued backup: wait for the machine-wide lock, run the
// vendor upload command, verify a fresh artifact appeared and prune old
// copies. The watcher invokes it as the default external backup action; its
// exit code is the watcher's success signal.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "sentry-backup")

	// Load settings from configuration file.
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	if len(cfg.Backup.UploadCommand) == 0 {
		return errUploadCommandRequired
	}

	if cfg.Backup.SaveDirectory == "" {
		return errSaveDirectoryRequired
	}

	lockPath, err := lockFilePath(cfg)
	if err != nil {
		return err
	}

	// Queue behind any backup already running on this machine.
	release, err := acquireLock(ctx, lockPath, cfg.Backup.LockWait, cfg.Backup.LockPollInterval)
	if err != nil {
		return fmt.Errorf("acquire backup lock: %w", err)
	}

	defer release()

	exec := opts.Executor
	if exec == nil {
		exec = executor.NewCommandExecutor()
	}

	return runUpload(ctx, cfg, exec)
}

// runUpload performs the upload under the lock and verifies the result.
func runUpload(ctx context.Context, cfg *config.Config, exec executor.Executor) error {
	// Record the newest artifact before the run; success means something
	// newer exists afterwards. Comparing against this baseline instead of
	// wall-clock time sidesteps filesystem timestamp granularity.
	baseline := time.Time{}
	if newest, err := newestArtifact(cfg.Backup.SaveDirectory, cfg.Backup.FilePrefix, cfg.Backup.FileExtension); err == nil {
		baseline = newest.modifiedAt
	}

	outputPath := filepath.Join(
		cfg.Backup.SaveDirectory,
		fmt.Sprintf("%s_%s%s", cfg.Backup.FilePrefix, time.Now().Format(timestampLayout), cfg.Backup.FileExtension),
	)
	command := expandCommand(cfg.Backup.UploadCommand, outputPath)

	logger.InfoKV(ctx, "Running upload command",
		"command", command[0], "output", outputPath)

	exitCode, err := exec.Run(ctx, command, cfg.Backup.WorkingDirectory)
	if err != nil {
		return fmt.Errorf("run upload command: %w", err)
	}

	if exitCode != 0 {
		return fmt.Errorf("upload command failed with exit code %d", exitCode)
	}

	newest, err := newestArtifact(cfg.Backup.SaveDirectory, cfg.Backup.FilePrefix, cfg.Backup.FileExtension)
	if err != nil {
		return fmt.Errorf("verify backup artifact: %w", err)
	}

	if !newest.modifiedAt.After(baseline) {
		return fmt.Errorf("%w: newest is %s from %s",
			errNoFreshArtifact, newest.path, newest.modifiedAt.Format(time.RFC3339))
	}

	logger.InfoKV(ctx, "Backup verified", "artifact", newest.path)

	if err = pruneArtifacts(
		ctx,
		cfg.Backup.SaveDirectory,
		cfg.Backup.FilePrefix,
		cfg.Backup.FileExtension,
		cfg.Backup.KeepCopies,
	); err != nil {
		return fmt.Errorf("prune old backups: %w", err)
	}

	return nil
}

// expandCommand substitutes the output placeholder in the upload command.
func expandCommand(command []string, outputPath string) []string {
	expanded := make([]string, len(command))
	for i, arg := range command {
		expanded[i] = strings.ReplaceAll(arg, outputPlaceholder, outputPath)
	}

	return expanded
}

// lockFilePath resolves the configured lock file, defaulting to a dotfile
// in the user's home directory.
func lockFilePath(cfg *config.Config) (string, error) {
	if cfg.Backup.LockFile != "" {
		return cfg.Backup.LockFile, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory for lock file: %w", err)
	}

	return filepath.Join(home, defaultLockFilename), nil
}
