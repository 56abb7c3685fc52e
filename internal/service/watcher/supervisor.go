package watcher

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oshokin/plc-sentry/internal/config"
	"github.com/oshokin/plc-sentry/internal/domain/watch"
	"github.com/oshokin/plc-sentry/internal/executor"
	"github.com/oshokin/plc-sentry/internal/logger"
	"github.com/oshokin/plc-sentry/internal/notify"
	"github.com/oshokin/plc-sentry/internal/repository/runlog"
	"github.com/oshokin/plc-sentry/internal/service/common"
)

// Supervisor turns settled-change events into backup action runs.
//
// It guarantees at most one run is active at any time: an event arriving
// while a run is in progress is dropped, never queued. The action itself
// executes on its own goroutine so the polling loop keeps ticking while a
// slow backup is in flight.
type Supervisor struct {
	// exec launches the configured backup action.
	exec executor.Executor
	// runs records completed runs for the history command.
	runs runlog.Repository
	// notifier publishes run lifecycle events.
	notifier notify.Notifier
	// command is the backup action and its arguments.
	command []string
	// workingDirectory is where the backup action runs.
	workingDirectory string
	// tagName labels published events.
	tagName string
	// debug logs settled changes without launching the action.
	debug bool

	// busy is the only state shared between the polling path and the
	// execution path. Acquired with compare-and-swap so a rapid pair of
	// settle events can never launch two overlapping runs.
	busy atomic.Bool
	// inFlight tracks the active run for the shutdown drain.
	inFlight sync.WaitGroup
}

// NewSupervisor builds a supervisor for the configured trigger action.
func NewSupervisor(
	cfg *config.Config,
	exec executor.Executor,
	runs runlog.Repository,
	notifier notify.Notifier,
	debug bool,
) *Supervisor {
	return &Supervisor{
		exec:             exec,
		runs:             runs,
		notifier:         notifier,
		command:          cfg.Trigger.Command,
		workingDirectory: cfg.Trigger.WorkingDirectory,
		tagName:          cfg.Watch.TagName,
		debug:            debug,
	}
}

// OnStableChange reacts to one settled change. It returns true when a run
// was launched and false when the event was dropped (a run is already
// active, or debug mode is on). The call never blocks on the action itself.
func (s *Supervisor) OnStableChange(ctx context.Context, event watch.StableChangeEvent) bool {
	if s.debug {
		logger.InfoKV(ctx, "Debug mode prevents backup action",
			"value", event.TriggeringValue)

		return false
	}

	if !s.busy.CompareAndSwap(false, true) {
		logger.InfoKV(ctx, "Backup already in progress, skipping settled change",
			"value", event.TriggeringValue)
		s.publish(ctx, notify.KindRunSkipped, event.TriggeringValue, 0, "a run is already active")

		return false
	}

	run := &watch.TriggerRun{
		TriggeringValue: event.TriggeringValue,
		StartedAt:       time.Now(),
		Status:          watch.RunStatusRunning,
	}

	// Host and user are audit details; their absence never blocks a run.
	if actor, err := common.DetectActor(); err == nil {
		run.Hostname = actor.Hostname
		run.Username = actor.Username
	}

	logger.InfoKV(ctx, "Launching backup action",
		"value", event.TriggeringValue, "command", s.command[0])
	s.publish(ctx, notify.KindRunStarted, event.TriggeringValue, 0, "")

	s.inFlight.Add(1)

	go s.execute(ctx, run)

	return true
}

// Busy reports whether a run is currently active.
func (s *Supervisor) Busy() bool {
	return s.busy.Load()
}

// Wait blocks until the in-flight run, if any, has completed. A launched
// backup always runs to completion; shutdown only stops new launches.
func (s *Supervisor) Wait() {
	s.inFlight.Wait()
}

// execute runs the backup action to completion and records the outcome.
func (s *Supervisor) execute(ctx context.Context, run *watch.TriggerRun) {
	defer s.inFlight.Done()
	defer s.busy.Store(false)

	exitCode, err := s.exec.Run(ctx, s.command, s.workingDirectory)

	run.FinishedAt = time.Now()
	run.ExitCode = exitCode

	switch {
	case err != nil:
		run.Status = watch.RunStatusFailed
		run.Detail = err.Error()

		logger.ErrorKV(ctx, "Backup action could not be started", "error", err)
		s.publish(ctx, notify.KindRunFailed, run.TriggeringValue, exitCode, run.Detail)
	case exitCode != 0:
		run.Status = watch.RunStatusFailed

		logger.ErrorKV(ctx, "Backup action failed",
			"exit_code", exitCode, "value", run.TriggeringValue)
		s.publish(ctx, notify.KindRunFailed, run.TriggeringValue, exitCode, "")
	default:
		run.Status = watch.RunStatusSucceeded

		logger.InfoKV(ctx, "Backup action succeeded",
			"value", run.TriggeringValue,
			"duration", run.FinishedAt.Sub(run.StartedAt).String())
		s.publish(ctx, notify.KindRunSucceeded, run.TriggeringValue, 0, "")
	}

	if s.runs == nil {
		return
	}

	if err := s.runs.Append(ctx, run); err != nil {
		logger.ErrorKV(ctx, "Unable to record run", "error", err)
	}
}

// publish sends one lifecycle event; failures are logged and ignored.
func (s *Supervisor) publish(ctx context.Context, kind notify.Kind, value int64, exitCode int, detail string) {
	if s.notifier == nil {
		return
	}

	event := notify.Event{
		Kind:            kind,
		TagName:         s.tagName,
		TriggeringValue: value,
		ExitCode:        exitCode,
		Detail:          detail,
		Timestamp:       time.Now(),
	}

	if hostname, err := common.DetectActor(); err == nil {
		event.Hostname = hostname.Hostname
	}

	if err := s.notifier.Publish(ctx, event); err != nil {
		logger.WarnKV(ctx, "Unable to publish trigger event", "error", err, "kind", kind)
	}
}
