package watch

import "time"

// Sample is a single reading of the watched controller value.
type Sample struct {
	// Value is the raw scalar read from the controller.
	Value int64
	// ReadAt is when the reading was taken. All stability arithmetic
	// uses these timestamps; they never influence value comparison.
	ReadAt time.Time
}

// StableChangeEvent is emitted when a changed value has survived the full
// quiet period without further changes. Exactly one event is produced per
// settle cycle.
type StableChangeEvent struct {
	// TriggeringValue is the settled value that caused the event.
	TriggeringValue int64
	// DetectedAt is when stability was confirmed.
	DetectedAt time.Time
}

// RunStatus describes the lifecycle stage of a trigger run.
type RunStatus string

// Trigger run statuses.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// TriggerRun records one execution of the backup action.
type TriggerRun struct {
	// TriggeringValue is the settled value that started this run.
	TriggeringValue int64
	// StartedAt is when the backup action was launched.
	StartedAt time.Time
	// FinishedAt is when the backup action completed. Zero while running.
	FinishedAt time.Time
	// Status is the current lifecycle stage of the run.
	Status RunStatus
	// ExitCode is the backup action's exit code. Zero means success,
	// -1 means the action could not be started.
	ExitCode int
	// Detail carries a short failure description when Status is failed.
	Detail string
	// Hostname is the machine the run was performed on.
	Hostname string
	// Username is the system user the run was performed as.
	Username string
}

// Clone returns a copy of the run to avoid leaking internal references.
func (r *TriggerRun) Clone() *TriggerRun {
	if r == nil {
		return nil
	}

	cloned := *r

	return &cloned
}
