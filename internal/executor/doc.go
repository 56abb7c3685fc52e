// Package executor runs configured external commands and reports their
// exit codes. The watcher's trigger action and the backup runner's upload
// command both go through it.
package executor
