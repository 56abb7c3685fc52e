package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/plc-sentry/internal/config"
	"github.com/oshokin/plc-sentry/internal/logger"
)

// errLockTimeout is returned when the lock is still held when the wait
// deadline passes.
var errLockTimeout = errors.New("timed out waiting for the backup lock")

// acquireLock serializes backups machine-wide through an exclusively
// created lock file holding the owner's PID. Concurrent invocations queue:
// they poll until the holder releases the lock or the wait deadline passes.
// A lock whose holder process is no longer alive is stale and is reclaimed.
//
// The returned release function removes the lock file.
func acquireLock(ctx context.Context, path string, wait, pollInterval time.Duration) (func(), error) {
	path = filepath.Clean(path)
	deadline := time.Now().Add(wait)

	// Attempt immediately before starting the poll loop.
	taken, err := tryTakeLock(ctx, path)
	if err != nil {
		return nil, err
	}

	if taken {
		return func() { _ = os.Remove(path) }, nil
	}

	logger.InfoKV(ctx, "Backup lock is held, queueing", "lock_file", path)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			taken, err = tryTakeLock(ctx, path)
			if err != nil {
				return nil, err
			}

			if taken {
				return func() { _ = os.Remove(path) }, nil
			}

			if time.Now().After(deadline) {
				return nil, fmt.Errorf("%w after %s", errLockTimeout, wait)
			}
		}
	}
}

// tryTakeLock makes one attempt to create the lock file. It returns false
// when another live process holds it. A stale lock is removed so the next
// attempt can succeed.
func tryTakeLock(ctx context.Context, path string) (bool, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, config.DefaultFilePermissions)
	if err == nil {
		_, writeErr := file.WriteString(strconv.Itoa(os.Getpid()))
		if closeErr := file.Close(); writeErr == nil {
			writeErr = closeErr
		}

		if writeErr != nil {
			_ = os.Remove(path)
			return false, fmt.Errorf("write lock file: %w", writeErr)
		}

		return true, nil
	}

	if !errors.Is(err, os.ErrExist) {
		return false, fmt.Errorf("create lock file: %w", err)
	}

	if isLockStale(ctx, path) {
		logger.InfoKV(ctx, "Removing stale backup lock", "lock_file", path)
		_ = os.Remove(path)
	}

	return false, nil
}

// isLockStale reports whether the lock's holder is no longer alive. An
// unreadable or unparsable lock file also counts as stale.
func isLockStale(ctx context.Context, path string) bool {
	contents, err := os.ReadFile(path)
	if err != nil {
		// The holder may have just released it; the next attempt decides.
		return false
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(contents)))
	if err != nil {
		logger.WarnKV(ctx, "Backup lock holds no PID, treating as stale", "lock_file", path)
		return true
	}

	if pid == os.Getpid() {
		return false
	}

	process, err := ps.FindProcess(pid)
	if err != nil {
		return false
	}

	return process == nil
}
