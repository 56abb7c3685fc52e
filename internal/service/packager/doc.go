// Package packager prepares the release manifest consumed by the updater.
//
// It computes checksums for the distributable binaries, wires role-to-files
// mappings, and persists the update folder into station settings. The
// resulting YAML is uploaded to the update folder served to stations.
package packager
