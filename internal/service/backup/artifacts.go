package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oshokin/plc-sentry/internal/logger"
)

// errNoArtifact is returned when no backup artifact matches the filter.
var errNoArtifact = errors.New("no backup artifact found")

// artifact is one matching backup file in the save directory.
type artifact struct {
	path       string
	modifiedAt time.Time
}

// listArtifacts returns the files in dir matching the station's prefix and
// extension, newest first.
func listArtifacts(dir, prefix, extension string) ([]artifact, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read save directory: %w", err)
	}

	artifacts := make([]artifact, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !strings.HasPrefix(name, prefix) {
			continue
		}

		if !strings.EqualFold(filepath.Ext(name), extension) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", name, err)
		}

		artifacts = append(artifacts, artifact{
			path:       filepath.Join(dir, name),
			modifiedAt: info.ModTime(),
		})
	}

	sort.Slice(artifacts, func(i, j int) bool {
		return artifacts[i].modifiedAt.After(artifacts[j].modifiedAt)
	})

	return artifacts, nil
}

// newestArtifact returns the most recently modified matching file.
func newestArtifact(dir, prefix, extension string) (artifact, error) {
	artifacts, err := listArtifacts(dir, prefix, extension)
	if err != nil {
		return artifact{}, err
	}

	if len(artifacts) == 0 {
		return artifact{}, fmt.Errorf("%w in %s matching %s*%s", errNoArtifact, dir, prefix, extension)
	}

	return artifacts[0], nil
}

// pruneArtifacts deletes matching files beyond the newest keep copies.
func pruneArtifacts(ctx context.Context, dir, prefix, extension string, keep int) error {
	if keep <= 0 {
		return nil
	}

	artifacts, err := listArtifacts(dir, prefix, extension)
	if err != nil {
		return err
	}

	for _, old := range artifacts[min(keep, len(artifacts)):] {
		if err = os.Remove(old.path); err != nil {
			return fmt.Errorf("prune %s: %w", old.path, err)
		}

		logger.InfoKV(ctx, "Pruned old backup", "path", old.path)
	}

	return nil
}
