package integration

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/plc-sentry/internal/config"
	"github.com/oshokin/plc-sentry/internal/domain/watch"
	"github.com/oshokin/plc-sentry/internal/repository/runlog"
	"github.com/oshokin/plc-sentry/internal/service/watcher"
)

// gatedExecutor blocks each launched run until the test sends a token,
// letting tests hold a backup open while the watch loop keeps polling.
type gatedExecutor struct {
	started  chan struct{}
	proceed  chan struct{}
	exitCode int
	calls    atomic.Int32
}

func newGatedExecutor(exitCode int) *gatedExecutor {
	return &gatedExecutor{
		started:  make(chan struct{}, 4),
		proceed:  make(chan struct{}),
		exitCode: exitCode,
	}
}

func (e *gatedExecutor) Run(_ context.Context, _ []string, _ string) (int, error) {
	e.calls.Add(1)
	e.started <- struct{}{}
	<-e.proceed

	return e.exitCode, nil
}

// waitStarted blocks until a run has been launched.
func (e *gatedExecutor) waitStarted(t *testing.T) {
	t.Helper()

	select {
	case <-e.started:
	case <-time.After(5 * time.Second):
		t.Fatal("no backup run started in time")
	}
}

// allowFinish lets exactly one blocked run complete.
func (e *gatedExecutor) allowFinish() {
	e.proceed <- struct{}{}
}

// watcherSettings writes a file-source configuration with short intervals.
func watcherSettings(t *testing.T, dir string, stability time.Duration) (cfgPath, valuePath string) {
	t.Helper()

	valuePath = filepath.Join(dir, "tag-value.txt")
	require.NoError(t, os.WriteFile(valuePath, []byte("5"), 0o600))

	cfg := &config.Config{}
	cfg.Source.Type = config.SourceTypeFile
	cfg.Source.File.Path = valuePath
	cfg.Watch.PollInterval = 20 * time.Millisecond
	cfg.Watch.StabilityPeriod = stability
	cfg.Trigger.Command = []string{"sentry-backup"}
	cfg.RunLogFile = filepath.Join(dir, "runs.json")

	cfgPath = filepath.Join(dir, config.DefaultConfigFilename)
	require.NoError(t, config.Save(cfgPath, cfg))

	return cfgPath, valuePath
}

// setValue rewrites the watched file.
func setValue(t *testing.T, path, value string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(value), 0o600))
}

// listRuns reads the recorded runs from the run log file.
func listRuns(t *testing.T, dir string) []*watch.TriggerRun {
	t.Helper()

	runs, err := runlog.NewFileRepository(filepath.Join(dir, "runs.json"), 0).List(context.Background())
	require.NoError(t, err)

	return runs
}

// TestWatcher_TriggersOncePerSettledChange drives the real watch loop with a
// file source: a change fires the backup once it settles, an event arriving
// while the backup runs is dropped, and the next settle cycle runs again.
func TestWatcher_TriggersOncePerSettledChange(t *testing.T) {
	dir := t.TempDir()
	cfgPath, valuePath := watcherSettings(t, dir, 60*time.Millisecond)

	exec := newGatedExecutor(0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- watcher.Run(ctx, &watcher.Options{ConfigPath: cfgPath, Executor: exec})
	}()

	// First settle cycle launches a run.
	setValue(t, valuePath, "7")
	exec.waitStarted(t)

	// A second cycle settles while the run is blocked; it must be dropped.
	setValue(t, valuePath, "8")
	time.Sleep(200 * time.Millisecond)
	require.Equal(t, int32(1), exec.calls.Load())

	exec.allowFinish()

	require.Eventually(t, func() bool {
		return len(listRuns(t, dir)) == 1
	}, 5*time.Second, 20*time.Millisecond)

	// The dropped cycle's value became the baseline, so the next change
	// starts a fresh cycle and runs once idle.
	setValue(t, valuePath, "9")
	exec.waitStarted(t)
	exec.allowFinish()

	require.Eventually(t, func() bool {
		return len(listRuns(t, dir)) == 2
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	runs := listRuns(t, dir)
	require.Len(t, runs, 2)
	require.Equal(t, int64(9), runs[0].TriggeringValue)
	require.Equal(t, watch.RunStatusSucceeded, runs[0].Status)
	require.Equal(t, int64(7), runs[1].TriggeringValue)
}

// TestWatcher_RecordsFailedRun verifies a non-zero backup exit is recorded
// as failed and the loop keeps going.
func TestWatcher_RecordsFailedRun(t *testing.T) {
	dir := t.TempDir()
	cfgPath, valuePath := watcherSettings(t, dir, 60*time.Millisecond)

	exec := newGatedExecutor(1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- watcher.Run(ctx, &watcher.Options{ConfigPath: cfgPath, Executor: exec})
	}()

	setValue(t, valuePath, "7")
	exec.waitStarted(t)
	exec.allowFinish()

	require.Eventually(t, func() bool {
		runs := listRuns(t, dir)
		return len(runs) == 1 && runs[0].Status == watch.RunStatusFailed
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	runs := listRuns(t, dir)
	require.Equal(t, 1, runs[0].ExitCode)
}

// TestWatcher_ReadFailureSkipsTick verifies a transient read failure never
// produces an event: deleting the value file mid-cycle stalls the debounce
// without firing or crashing the loop.
func TestWatcher_ReadFailureSkipsTick(t *testing.T) {
	dir := t.TempDir()
	cfgPath, valuePath := watcherSettings(t, dir, 60*time.Millisecond)

	exec := newGatedExecutor(0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- watcher.Run(ctx, &watcher.Options{ConfigPath: cfgPath, Executor: exec})
	}()

	// Change the value, then break reads before the change can settle.
	setValue(t, valuePath, "7")
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, os.Remove(valuePath))
	time.Sleep(200 * time.Millisecond)

	// Reads failed through the whole stability window: no event, no run.
	require.Equal(t, int32(0), exec.calls.Load())

	// Restore the file; the armed change settles and fires exactly once.
	setValue(t, valuePath, "7")
	exec.waitStarted(t)
	exec.allowFinish()

	cancel()
	require.NoError(t, <-done)
	require.Equal(t, int32(1), exec.calls.Load())
}

// TestWatcher_FailsOnUnreadableSourceAtStartup verifies a source that cannot
// serve the first read keeps the watcher from entering the loop.
func TestWatcher_FailsOnUnreadableSourceAtStartup(t *testing.T) {
	dir := t.TempDir()
	cfgPath, valuePath := watcherSettings(t, dir, 60*time.Millisecond)
	require.NoError(t, os.Remove(valuePath))

	err := watcher.Run(context.Background(), &watcher.Options{
		ConfigPath: cfgPath,
		Executor:   newGatedExecutor(0),
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "initial read")
}

// TestWatcher_CheckpointSurvivesRestart verifies an armed change persisted
// via the checkpoint file still triggers exactly once after a restart.
func TestWatcher_CheckpointSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	cfgPath, valuePath := watcherSettings(t, dir, 150*time.Millisecond)

	// Enable checkpointing.
	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	cfg.Watch.CheckpointFile = filepath.Join(dir, "checkpoint.json")
	require.NoError(t, config.Save(cfgPath, cfg))

	exec := newGatedExecutor(0)

	// First process lifetime: see the change, stop before it settles.
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- watcher.Run(ctx, &watcher.Options{ConfigPath: cfgPath, Executor: exec})
	}()

	setValue(t, valuePath, "7")
	time.Sleep(60 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	require.Equal(t, int32(0), exec.calls.Load())

	// Second lifetime: the restored armed state settles and fires.
	ctx, cancel = context.WithCancel(context.Background())

	go func() {
		done <- watcher.Run(ctx, &watcher.Options{ConfigPath: cfgPath, Executor: exec})
	}()

	exec.waitStarted(t)
	exec.allowFinish()

	cancel()
	require.NoError(t, <-done)
	require.Equal(t, int32(1), exec.calls.Load())
}
