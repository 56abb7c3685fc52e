// Package updater downloads and applies updates from the update folder.
//
// It validates station files against checksums from the release manifest,
// downloads required artifacts to a temporary directory, atomically applies
// updates, and restarts the station's watcher.
package updater
