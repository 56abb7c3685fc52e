package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/oshokin/plc-sentry/internal/config"
	"github.com/oshokin/plc-sentry/internal/domain/watch"
	"github.com/oshokin/plc-sentry/internal/logger"
)

const (
	// subscribeQoS requests at-least-once delivery of value updates.
	subscribeQoS byte = 1
	// connectRetryInterval is how often the client retries the broker.
	connectRetryInterval = 5 * time.Second
	// disconnectQuiesceMs is how long Disconnect waits for in-flight work.
	disconnectQuiesceMs = 1000
)

var (
	// errEmptyPayload is returned for blank value messages.
	errEmptyPayload = errors.New("empty payload")
	// errNoValueField is returned when a JSON message misses the value field.
	errNoValueField = errors.New("value message has no value field")
)

// mqttSource subscribes to a gateway topic publishing the watched value and
// serves the latest received sample to the polling loop.
type mqttSource struct {
	client paho.Client
	topic  string
	// maxAge fails reads whose latest sample is older than this; zero
	// disables the check.
	maxAge time.Duration

	// mu protects the cached value below.
	mu sync.Mutex
	// value is the most recently received value.
	value int64
	// receivedAt is when value arrived from the broker.
	receivedAt time.Time
	// hasValue is false until the first parsable message arrives.
	hasValue bool
}

// newMQTTSource connects to the broker and subscribes to the value topic.
// The subscription is re-established on every reconnect.
func newMQTTSource(ctx context.Context, cfg *config.Config) (*mqttSource, error) {
	s := &mqttSource{
		topic:  cfg.Source.MQTT.Topic,
		maxAge: cfg.Source.MQTT.MaxSampleAge,
	}

	clientID := cfg.Source.MQTT.ClientID
	if clientID == "" {
		clientID = defaultClientID("plc-sentry-watch")
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Source.MQTT.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(connectRetryInterval)

	opts.OnConnect = func(client paho.Client) {
		token := client.Subscribe(s.topic, subscribeQoS, func(_ paho.Client, message paho.Message) {
			s.handleMessage(ctx, message)
		})

		reportSubscribeOutcome(ctx, token, s.topic, cfg.Timeout)
	}

	s.client = paho.NewClient(opts)

	token := s.client.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		return nil, fmt.Errorf("connect to broker %s: %w", cfg.Source.MQTT.Broker, errConnectTimeout)
	}

	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker %s: %w", cfg.Source.MQTT.Broker, err)
	}

	return s, nil
}

// reportSubscribeOutcome logs a subscribe that timed out or failed. Without
// the subscription no sample ever arrives, so the failure must be visible
// long before the staleness error surfaces on reads.
func reportSubscribeOutcome(ctx context.Context, token paho.Token, topic string, timeout time.Duration) {
	if !token.WaitTimeout(timeout) {
		logger.ErrorKV(ctx, "Value topic subscription timed out", "topic", topic, "timeout", timeout)

		return
	}

	if err := token.Error(); err != nil {
		logger.ErrorKV(ctx, "Value topic subscription failed", "topic", topic, "error", err)
	}
}

// handleMessage caches the value carried by one broker message. Messages
// that do not parse are dropped; the previous value stays current.
func (s *mqttSource) handleMessage(ctx context.Context, message paho.Message) {
	value, err := parseValuePayload(message.Payload())
	if err != nil {
		logger.WarnKV(ctx, "Discarding unparsable value message",
			"topic", message.Topic(), "error", err)

		return
	}

	s.mu.Lock()
	s.value = value
	s.receivedAt = time.Now()
	s.hasValue = true
	s.mu.Unlock()
}

// Read returns the latest received value. The sample is timestamped at the
// moment of the read; the arrival time only feeds the staleness check.
func (s *mqttSource) Read(_ context.Context) (watch.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasValue {
		return watch.Sample{}, newReadError(config.SourceTypeMQTT, "latest sample", ErrNoSample)
	}

	if s.maxAge > 0 {
		if age := time.Since(s.receivedAt); age > s.maxAge {
			return watch.Sample{}, newReadError(config.SourceTypeMQTT, "latest sample",
				fmt.Errorf("%w: last update %s ago", ErrStaleSample, age.Truncate(time.Second)))
		}
	}

	return watch.Sample{
		Value:  s.value,
		ReadAt: time.Now(),
	}, nil
}

// Close disconnects from the broker.
func (s *mqttSource) Close() error {
	s.client.Disconnect(disconnectQuiesceMs)

	return nil
}

// valueMessage is the JSON form gateways commonly publish.
type valueMessage struct {
	Value *int64 `json:"value"`
}

// parseValuePayload accepts either a bare decimal integer or a JSON object
// with a "value" field.
func parseValuePayload(payload []byte) (int64, error) {
	text := strings.TrimSpace(string(payload))
	if text == "" {
		return 0, errEmptyPayload
	}

	if !strings.HasPrefix(text, "{") {
		value, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse value %q: %w", text, err)
		}

		return value, nil
	}

	var message valueMessage
	if err := json.Unmarshal([]byte(text), &message); err != nil {
		return 0, fmt.Errorf("decode value message: %w", err)
	}

	if message.Value == nil {
		return 0, errNoValueField
	}

	return *message.Value, nil
}
