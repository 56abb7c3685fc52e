package source

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/oshokin/plc-sentry/internal/config"
	"github.com/oshokin/plc-sentry/internal/domain/watch"
)

// Source provides readings of the watched controller value.
type Source interface {
	// Read returns the current value. Errors are transient and always a
	// *ReadError: the watch loop logs them and skips the tick.
	Read(ctx context.Context) (watch.Sample, error)
	// Close releases the underlying transport.
	Close() error
}

// ReadError is the error every Source returns from a failed Read. It names
// the transport and operation that failed; the cause stays reachable
// through errors.Is/As.
type ReadError struct {
	// Kind is the source type that produced the failure.
	Kind config.SourceType
	// Op names the failed operation.
	Op string
	// Err is the underlying cause.
	Err error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("%s source: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// newReadError wraps a read failure in the package's error type.
func newReadError(kind config.SourceType, op string, err error) error {
	return &ReadError{Kind: kind, Op: op, Err: err}
}

var (
	// ErrNoSample is returned while no value has been received yet.
	ErrNoSample = errors.New("no sample received yet")
	// ErrStaleSample is returned when the latest value is older than the
	// configured maximum sample age.
	ErrStaleSample = errors.New("latest sample is stale")
	// errConnectTimeout is returned when the broker connect attempt
	// exceeds the configured timeout.
	errConnectTimeout = errors.New("broker connection timed out")
)

// New constructs the source selected by the configuration. Construction
// failures are fatal startup errors for the watcher.
func New(ctx context.Context, cfg *config.Config) (Source, error) {
	switch cfg.Source.Type {
	case config.SourceTypeModbus:
		return newModbusSource(cfg)
	case config.SourceTypeMQTT:
		return newMQTTSource(ctx, cfg)
	case config.SourceTypeFile:
		return newFileSource(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported source type: %q", cfg.Source.Type)
	}
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
