package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/oshokin/plc-sentry/internal/config"
)

const (
	// publishQoS requests at-least-once delivery of lifecycle events.
	publishQoS byte = 1
	// connectRetryInterval is how often the client retries the broker.
	connectRetryInterval = 5 * time.Second
	// disconnectQuiesceMs is how long Disconnect waits for in-flight work.
	disconnectQuiesceMs = 1000
)

var (
	// errConnectTimeout is returned when the broker connect attempt
	// exceeds the configured timeout.
	errConnectTimeout = errors.New("broker connection timed out")
	// errPublishTimeout is returned when an event could not be handed to
	// the broker within the configured timeout.
	errPublishTimeout = errors.New("event publish timed out")
)

// MQTTNotifier publishes lifecycle events to a broker topic.
type MQTTNotifier struct {
	client  paho.Client
	topic   string
	timeout time.Duration
}

// newMQTTNotifier connects to the broker configured in the notify section.
func newMQTTNotifier(cfg *config.Config) (*MQTTNotifier, error) {
	clientID := cfg.Notify.ClientID
	if clientID == "" {
		clientID = defaultClientID("plc-sentry-notify")
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Notify.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(connectRetryInterval)

	client := paho.NewClient(opts)

	token := client.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		return nil, fmt.Errorf("connect to broker %s: %w", cfg.Notify.Broker, errConnectTimeout)
	}

	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker %s: %w", cfg.Notify.Broker, err)
	}

	return &MQTTNotifier{
		client:  client,
		topic:   cfg.Notify.Topic,
		timeout: cfg.Timeout,
	}, nil
}

// Publish marshals the event and hands it to the broker.
func (n *MQTTNotifier) Publish(_ context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	token := n.client.Publish(n.topic, publishQoS, false, payload)
	if !token.WaitTimeout(n.timeout) {
		return errPublishTimeout
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}

	return nil
}

// Close disconnects from the broker.
func (n *MQTTNotifier) Close() {
	n.client.Disconnect(disconnectQuiesceMs)
}

// defaultClientID derives a broker client identifier from the hostname when
// none is configured.
func defaultClientID(prefix string) string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		return prefix
	}

	return prefix + "-" + hostname
}
