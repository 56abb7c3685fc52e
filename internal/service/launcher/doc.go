// Package launcher implements the sentry-launcher startup shim.
//
// It holds the station's boot command until no update is in progress,
// removing stale update markers along the way, then runs the command and
// propagates its result.
package launcher
