package checkpoint

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

// Repository defines persistence operations for the debounce checkpoint.
type Repository interface {
	Load(ctx context.Context) (watch.Checkpoint, error)
	Save(ctx context.Context, checkpoint watch.Checkpoint) error
}

// FileRepository persists the debounce checkpoint to a JSON file so a
// change that was waiting out its quiet period survives a restart.
type FileRepository struct {
	// path is the filesystem location of the JSON checkpoint file.
	path string
	// mu protects concurrent access to the checkpoint file.
	mu sync.Mutex
}

// ErrNotFound is returned when the checkpoint file does not exist yet.
var ErrNotFound = errors.New("checkpoint not found")

// NewFileRepository creates a repository that reads/writes JSON at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// storedCheckpoint is the on-disk JSON form of the debounce state.
type storedCheckpoint struct {
	LastValue    int64     `json:"last_value"`
	LastChangeAt time.Time `json:"last_change_at"`
	Armed        bool      `json:"armed"`
}

// Load reads the checkpoint from disk.
func (r *FileRepository) Load(_ context.Context) (watch.Checkpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return watch.Checkpoint{}, ErrNotFound
		}

		return watch.Checkpoint{}, fmt.Errorf("read checkpoint file: %w", err)
	}

	var stored storedCheckpoint
	if err = json.Unmarshal(contents, &stored); err != nil {
		return watch.Checkpoint{}, fmt.Errorf("decode checkpoint file: %w", err)
	}

	return watch.Checkpoint{
		LastValue:    stored.LastValue,
		LastChangeAt: stored.LastChangeAt,
		Armed:        stored.Armed,
	}, nil
}

// Save writes the checkpoint to disk.
func (r *FileRepository) Save(_ context.Context, checkpoint watch.Checkpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := json.Marshal(storedCheckpoint{
		LastValue:    checkpoint.LastValue,
		LastChangeAt: checkpoint.LastChangeAt,
		Armed:        checkpoint.Armed,
	})
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	if err = os.WriteFile(r.path, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write checkpoint file: %w", err)
	}

	return nil
}
