package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// writeArtifact creates a file with the given modification time.
func writeArtifact(t *testing.T, dir, name string, modifiedAt time.Time) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("backup"), 0o600))
	require.NoError(t, os.Chtimes(path, modifiedAt, modifiedAt))

	return path
}

// TestNewestArtifact_PicksByModTime verifies the newest matching file wins,
// regardless of name ordering.
func TestNewestArtifact_PicksByModTime(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	base := time.Now().Add(-time.Hour)

	writeArtifact(t, dir, "PRESS_20250310_0800.ACD", base)
	newest := writeArtifact(t, dir, "PRESS_20250309_0800.ACD", base.Add(30*time.Minute))
	writeArtifact(t, dir, "OTHER_20250311_0800.ACD", base.Add(time.Hour))
	writeArtifact(t, dir, "PRESS_notes.txt", base.Add(time.Hour))

	found, err := newestArtifact(dir, "PRESS", ".ACD")
	require.NoError(t, err)
	require.Equal(t, newest, found.path)
}

// TestNewestArtifact_ExtensionIsCaseInsensitive matches .acd against .ACD.
func TestNewestArtifact_ExtensionIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeArtifact(t, dir, "PRESS_20250310_0800.acd", time.Now())

	found, err := newestArtifact(dir, "PRESS", ".ACD")
	require.NoError(t, err)
	require.Equal(t, path, found.path)
}

// TestNewestArtifact_NoneFound verifies the typed error when nothing matches.
func TestNewestArtifact_NoneFound(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeArtifact(t, dir, "OTHER_20250310_0800.ACD", time.Now())

	_, err := newestArtifact(dir, "PRESS", ".ACD")
	require.ErrorIs(t, err, errNoArtifact)
}

// TestPruneArtifacts_KeepsNewest verifies only the newest N copies survive.
func TestPruneArtifacts_KeepsNewest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	base := time.Now().Add(-time.Hour)

	oldest := writeArtifact(t, dir, "PRESS_1.ACD", base)
	middle := writeArtifact(t, dir, "PRESS_2.ACD", base.Add(10*time.Minute))
	newest := writeArtifact(t, dir, "PRESS_3.ACD", base.Add(20*time.Minute))
	unrelated := writeArtifact(t, dir, "OTHER_1.ACD", base)

	require.NoError(t, pruneArtifacts(context.Background(), dir, "PRESS", ".ACD", 2))

	_, err := os.Stat(oldest)
	require.ErrorIs(t, err, os.ErrNotExist)

	for _, path := range []string{middle, newest, unrelated} {
		_, err = os.Stat(path)
		require.NoError(t, err)
	}
}

// TestPruneArtifacts_ZeroKeepsAll verifies keep_copies of zero disables pruning.
func TestPruneArtifacts_ZeroKeepsAll(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeArtifact(t, dir, "PRESS_1.ACD", time.Now().Add(-time.Hour))

	require.NoError(t, pruneArtifacts(context.Background(), dir, "PRESS", ".ACD", 0))

	_, err := os.Stat(path)
	require.NoError(t, err)
}
