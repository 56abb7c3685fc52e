// Package source provides implementations of the value source the watcher
// polls: Modbus/TCP holding registers, an MQTT topic fed by a gateway, and a
// local text file for commissioning.
//
// All read failures are transient from the watch loop's point of view; only
// construction errors are fatal.
package source
