package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/plc-sentry/internal/config"
	"github.com/oshokin/plc-sentry/internal/service/packager"
	upd "github.com/oshokin/plc-sentry/internal/service/updater"
)

// TestPackager_WritesManifest generates a manifest over placeholder
// artifacts and verifies its contents and the persisted update folder.
func TestPackager_WritesManifest(t *testing.T) {
	// Setup test directory and change working directory.
	dir := t.TempDir()
	prev, _ := os.Getwd() //nolint:errcheck // Test code needs simple os.Getwd for directory change.

	t.Chdir(dir)

	t.Cleanup(func() {
		t.Chdir(prev)
	})

	// The settings file is itself one of the checksummed artifacts.
	stationSettings(t, dir, "")

	// Create placeholder files expected by packager.
	for _, name := range upd.FilesWithChecksum() {
		if name == config.DefaultConfigFilename {
			continue
		}

		require.NoError(t, os.WriteFile(name, []byte(name), 0o600))
	}

	// Run packager with timeout context.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	options := &packager.Options{
		ConfigPath:   config.DefaultConfigFilename,
		UpdateFolder: "http://localhost/updates",
	}

	require.NoError(t, packager.Run(ctx, options))

	// Verify version manifest file was created with the station role.
	contents, err := os.ReadFile(upd.VersionFilename)
	require.NoError(t, err)

	var desc upd.Description
	require.NoError(t, yaml.Unmarshal(contents, &desc))
	require.Contains(t, desc.Roles, upd.RoleStation)
	require.Len(t, desc.Files, len(upd.FilesWithChecksum()))

	// The update folder was persisted into the settings.
	cfg, err := config.Load(config.DefaultConfigFilename)
	require.NoError(t, err)
	require.Equal(t, "http://localhost/updates", cfg.ServerUpdateFolder)
}

// TestPackager_RefusesWhileUpdaterRuns verifies the update marker blocks
// packaging.
func TestPackager_RefusesWhileUpdaterRuns(t *testing.T) {
	dir := t.TempDir()
	prev, _ := os.Getwd() //nolint:errcheck // Test code needs simple os.Getwd for directory change.

	t.Chdir(dir)

	t.Cleanup(func() {
		t.Chdir(prev)
	})

	stationSettings(t, dir, "")
	require.NoError(t, os.WriteFile(upd.MarkerFilename, nil, 0o600))

	err := packager.Run(context.Background(), &packager.Options{
		ConfigPath:   config.DefaultConfigFilename,
		UpdateFolder: "http://localhost/updates",
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "updater is running")
}
