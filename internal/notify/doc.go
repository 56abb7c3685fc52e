// Package notify publishes trigger lifecycle events to an MQTT broker so
// plant dashboards can follow backup activity. Notifications are optional
// and best-effort: an unset broker disables them entirely.
package notify
