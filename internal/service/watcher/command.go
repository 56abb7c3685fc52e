package watcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oshokin/plc-sentry/internal/config"
	"github.com/oshokin/plc-sentry/internal/domain/watch"
	"github.com/oshokin/plc-sentry/internal/executor"
	"github.com/oshokin/plc-sentry/internal/logger"
	"github.com/oshokin/plc-sentry/internal/notify"
	"github.com/oshokin/plc-sentry/internal/repository/checkpoint"
	"github.com/oshokin/plc-sentry/internal/repository/runlog"
	"github.com/oshokin/plc-sentry/internal/source"
)

// Options controls the watcher polling behavior and configuration.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// Debug logs settled changes without launching the backup action.
	Debug bool
	// Executor overrides how the backup action is launched.
	// Tests install fakes here; nil means the real command executor.
	Executor executor.Executor
}

// Run drives the watch loop: read the value at a fixed cadence, feed it to
// the debouncer and hand settled changes to the supervisor. It returns when
// the context is canceled, after draining any in-flight backup.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "sentry-watcher")

	// Load settings from configuration file.
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	// Construct the value source; an unreachable source is fatal here,
	// transient only once the loop is running.
	src, err := source.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("create value source: %w", err)
	}

	defer func() {
		_ = src.Close()
	}()

	notifier, err := notify.New(cfg)
	if err != nil {
		return fmt.Errorf("create notifier: %w", err)
	}

	defer notifier.Close()

	exec := opts.Executor
	if exec == nil {
		exec = executor.NewCommandExecutor()
	}

	runs := runlog.NewFileRepository(cfg.RunLogFile, cfg.RunLogLimit)
	supervisor := NewSupervisor(cfg, exec, runs, notifier, opts.Debug)

	loop := newWatchLoop(cfg, src, supervisor)
	loop.restoreCheckpoint(ctx)

	// Probe the source before entering the loop: a value source that
	// cannot serve the very first read is a startup failure, not a
	// transient one. The probe doubles as the immediate first poll.
	if err = loop.poll(ctx); err != nil {
		return fmt.Errorf("initial read of %s: %w", cfg.Watch.TagName, err)
	}

	logger.InfoKV(ctx, "Watching value",
		"tag", cfg.Watch.TagName,
		"poll_interval", cfg.Watch.PollInterval.String(),
		"stability_period", cfg.Watch.StabilityPeriod.String())

	// Setup polling ticker with fixed interval.
	ticker := time.NewTicker(cfg.Watch.PollInterval)
	defer ticker.Stop()

	// Main polling loop until context cancellation.
	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Context canceled, waiting for in-flight backup")
			supervisor.Wait()
			logger.Info(ctx, "Watcher stopped")

			return nil
		case <-ticker.C:
			// Read errors inside the loop are transient: logged,
			// tick skipped, state untouched.
			if err = loop.poll(ctx); err != nil {
				loop.failures++
				logger.ErrorKV(ctx, "Value read failed, skipping tick",
					"error", err, "consecutive_failures", loop.failures)
			}
		}
	}
}

// watchLoop holds the per-poll state. WatchState is mutated only here, by
// the single polling goroutine, so it needs no locking.
type watchLoop struct {
	cfg        *config.Config
	src        source.Source
	supervisor *Supervisor
	debouncer  *watch.Debouncer
	// checkpoints persists the debounce state when configured, nil otherwise.
	checkpoints checkpoint.Repository
	// failures counts consecutive read errors for log context.
	failures int
}

func newWatchLoop(cfg *config.Config, src source.Source, supervisor *Supervisor) *watchLoop {
	loop := &watchLoop{
		cfg:        cfg,
		src:        src,
		supervisor: supervisor,
		debouncer:  watch.NewDebouncer(cfg.Watch.StabilityPeriod),
	}

	if cfg.Watch.CheckpointFile != "" {
		loop.checkpoints = checkpoint.NewFileRepository(cfg.Watch.CheckpointFile)
	}

	return loop
}

// restoreCheckpoint reloads the debounce state persisted by a previous run.
// Without a checkpoint file the watcher always restarts with no baseline.
func (l *watchLoop) restoreCheckpoint(ctx context.Context) {
	if l.checkpoints == nil {
		return
	}

	saved, err := l.checkpoints.Load(ctx)
	if err != nil {
		if !errors.Is(err, checkpoint.ErrNotFound) {
			logger.WarnKV(ctx, "Unable to restore checkpoint, starting fresh", "error", err)
		}

		return
	}

	l.debouncer.Restore(saved)
	logger.InfoKV(ctx, "Restored debounce state",
		"last_value", saved.LastValue, "armed", saved.Armed)
}

// poll reads the value once and feeds it through the debouncer. The
// returned error means the read failed and the tick was skipped.
func (l *watchLoop) poll(ctx context.Context) error {
	readCtx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()

	sample, err := l.src.Read(readCtx)
	if err != nil {
		return err
	}

	if l.failures > 0 {
		logger.InfoKV(ctx, "Value reads recovered", "after_failures", l.failures)
		l.failures = 0
	}

	event := l.debouncer.Observe(sample)
	l.saveCheckpoint(ctx)

	if event == nil {
		return nil
	}

	logger.InfoKV(ctx, "Value settled after change",
		"tag", l.cfg.Watch.TagName,
		"value", event.TriggeringValue,
		"detected_at", event.DetectedAt.Format(time.RFC3339))
	l.supervisor.OnStableChange(ctx, *event)

	return nil
}

// saveCheckpoint persists the debounce state, best effort.
func (l *watchLoop) saveCheckpoint(ctx context.Context) {
	if l.checkpoints == nil {
		return
	}

	snapshot, ok := l.debouncer.Checkpoint()
	if !ok {
		return
	}

	if err := l.checkpoints.Save(ctx, snapshot); err != nil {
		logger.WarnKV(ctx, "Unable to save checkpoint", "error", err)
	}
}
