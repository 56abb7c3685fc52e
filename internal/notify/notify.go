package notify

import (
	"context"
	"errors"
	"time"

	"github.com/oshokin/plc-sentry/internal/config"
)

// Kind classifies a trigger lifecycle event.
type Kind string

// Trigger lifecycle event kinds.
const (
	// KindRunStarted is published when a settled change launches the action.
	KindRunStarted Kind = "run_started"
	// KindRunSucceeded is published when the action exits with code zero.
	KindRunSucceeded Kind = "run_succeeded"
	// KindRunFailed is published when the action exits non-zero or never starts.
	KindRunFailed Kind = "run_failed"
	// KindRunSkipped is published when a settled change finds a run in progress.
	KindRunSkipped Kind = "run_skipped"
)

// errNotifyTopicRequired is returned when a broker is configured without a topic.
var errNotifyTopicRequired = errors.New("notify topic must be provided")

// Event is the JSON document published per lifecycle transition.
type Event struct {
	Kind            Kind      `json:"kind"`
	TagName         string    `json:"tag_name"`
	TriggeringValue int64     `json:"triggering_value"`
	ExitCode        int       `json:"exit_code,omitempty"`
	Detail          string    `json:"detail,omitempty"`
	Hostname        string    `json:"hostname,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// Notifier publishes trigger lifecycle events.
type Notifier interface {
	// Publish sends one event. Failures are the caller's to log; they
	// never block or fail the run itself.
	Publish(ctx context.Context, event Event) error
	// Close releases the underlying connection.
	Close()
}

// NoopNotifier drops all events. Used when no broker is configured.
type NoopNotifier struct{}

// Publish does nothing.
func (NoopNotifier) Publish(_ context.Context, _ Event) error {
	return nil
}

// Close does nothing.
func (NoopNotifier) Close() {}

// New returns the notifier selected by the configuration: a broker-backed
// one when notify.broker is set, a no-op otherwise.
func New(cfg *config.Config) (Notifier, error) {
	if cfg.Notify.Broker == "" {
		return NoopNotifier{}, nil
	}

	if cfg.Notify.Topic == "" {
		return nil, errNotifyTopicRequired
	}

	return newMQTTNotifier(cfg)
}
