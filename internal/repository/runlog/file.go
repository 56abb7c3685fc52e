package runlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oshokin/plc-sentry/internal/config"
	"github.com/oshokin/plc-sentry/internal/domain/watch"
)

// Repository defines persistence operations for the trigger run log.
type Repository interface {
	// Append records one completed run. The log keeps the newest runs
	// first and is truncated to the configured limit.
	Append(ctx context.Context, run *watch.TriggerRun) error
	// List returns the recorded runs, newest first. A missing log file
	// yields an empty list.
	List(ctx context.Context) ([]*watch.TriggerRun, error)
}

// FileRepository persists the run log to a JSON file on disk.
type FileRepository struct {
	// path is the filesystem location of the JSON run log.
	path string
	// limit caps how many runs are kept.
	limit int
	// mu protects concurrent access to the log file.
	mu sync.Mutex
}

// errRunIsNotSet is returned when a nil run is appended.
var errRunIsNotSet = errors.New("run is not set")

// NewFileRepository creates a repository that reads/writes JSON at the provided path.
func NewFileRepository(path string, limit int) *FileRepository {
	if limit <= 0 {
		limit = config.DefaultRunLogLimit
	}

	return &FileRepository{
		path:  filepath.Clean(path),
		limit: limit,
	}
}

// storedRun is the on-disk JSON form of one run.
type storedRun struct {
	TriggeringValue int64     `json:"triggering_value"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	Status          string    `json:"status"`
	ExitCode        int       `json:"exit_code"`
	Detail          string    `json:"detail,omitempty"`
	Hostname        string    `json:"hostname,omitempty"`
	Username        string    `json:"username,omitempty"`
}

// Append prepends the run and rewrites the log, truncated to the limit.
func (r *FileRepository) Append(_ context.Context, run *watch.TriggerRun) error {
	if run == nil {
		return errRunIsNotSet
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, err := r.load()
	if err != nil {
		return err
	}

	stored = append([]storedRun{toStored(run)}, stored...)
	if len(stored) > r.limit {
		stored = stored[:r.limit]
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run log: %w", err)
	}

	if err = os.WriteFile(r.path, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write run log: %w", err)
	}

	return nil
}

// List returns the recorded runs, newest first.
func (r *FileRepository) List(_ context.Context) ([]*watch.TriggerRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, err := r.load()
	if err != nil {
		return nil, err
	}

	runs := make([]*watch.TriggerRun, 0, len(stored))
	for _, s := range stored {
		runs = append(runs, fromStored(s))
	}

	return runs, nil
}

// load reads and decodes the log file. A missing file is an empty log.
func (r *FileRepository) load() ([]storedRun, error) {
	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("read run log: %w", err)
	}

	var stored []storedRun
	if err = json.Unmarshal(contents, &stored); err != nil {
		return nil, fmt.Errorf("decode run log: %w", err)
	}

	return stored, nil
}

// toStored converts the domain run into its on-disk form.
func toStored(run *watch.TriggerRun) storedRun {
	return storedRun{
		TriggeringValue: run.TriggeringValue,
		StartedAt:       run.StartedAt,
		FinishedAt:      run.FinishedAt,
		Status:          string(run.Status),
		ExitCode:        run.ExitCode,
		Detail:          run.Detail,
		Hostname:        run.Hostname,
		Username:        run.Username,
	}
}

// fromStored converts the on-disk form into the domain run.
func fromStored(stored storedRun) *watch.TriggerRun {
	return &watch.TriggerRun{
		TriggeringValue: stored.TriggeringValue,
		StartedAt:       stored.StartedAt,
		FinishedAt:      stored.FinishedAt,
		Status:          watch.RunStatus(stored.Status),
		ExitCode:        stored.ExitCode,
		Detail:          stored.Detail,
		Hostname:        stored.Hostname,
		Username:        stored.Username,
	}
}
