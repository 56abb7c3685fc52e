// Package watcher implements the sentry-watcher service: a fixed-cadence
// polling loop feeding the debounce state machine, and the supervisor that
// launches the external backup action exactly once per settled change.
//
// The loop and the supervisor are the core of the suite; everything else is
// a collaborator behind an interface (value source, executor, notifier,
// run log).
package watcher
