// Package watch contains the core domain types for controller value watching.
//
// It defines Sample (one reading of the watched value), the Debouncer state
// machine that decides when a changed value has settled, StableChangeEvent
// (the debouncer's output), and TriggerRun (the record of one backup action).
package watch
