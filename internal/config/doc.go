// Package config defines station settings used by the plc-sentry binaries
// and provides helpers to load, validate and save them in YAML format.
//
// The Config type covers the value source (modbus, mqtt or file), the watch
// loop, the backup action, the queued backup runner, event notification and
// the update folder URL.
package config
