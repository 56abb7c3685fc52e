package version

import "fmt"

var (
	// Version is the suite release number, injected via ldflags when a
	// release is packaged.
	Version = "1.0.0"
	// Commit is the short VCS revision of the build ("none" for local builds).
	Commit = "none"
	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"
)

// Short returns the bare release number, the form the update tooling
// compares against the manifest.
func Short() string {
	return Version
}

// Full renders the release with its commit and build timestamp. The update
// tooling parses this exact layout from `version` output, so the format
// stays stable.
func Full() string {
	return fmt.Sprintf("version: %s, commit: %s, built at: %s", Version, Commit, BuildTime)
}
