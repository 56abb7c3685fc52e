// Package backup implements the sentry-backup service: the default external
// backup action launched by the watcher.
//
// A machine-wide lock file serializes concurrent invocations, the vendor
// upload command produces the artifact, and a newest-file scan verifies a
// fresh copy actually appeared before old copies are pruned.
package backup
