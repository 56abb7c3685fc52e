package source

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/oshokin/plc-sentry/internal/config"
	"github.com/oshokin/plc-sentry/internal/domain/watch"
)

// fileSource reads the watched value from a local text file holding one
// decimal integer. Gateways that export controller tags to disk are the
// usual producer; tests and bench rigs use it too.
type fileSource struct {
	path string
}

func newFileSource(cfg *config.Config) *fileSource {
	return &fileSource{path: cfg.Source.File.Path}
}

// Read parses the current file contents as a decimal integer.
func (s *fileSource) Read(_ context.Context) (watch.Sample, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return watch.Sample{}, newReadError(config.SourceTypeFile, "read value file", err)
	}

	value, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return watch.Sample{}, newReadError(config.SourceTypeFile, "parse value file "+s.path, err)
	}

	return watch.Sample{
		Value:  value,
		ReadAt: time.Now(),
	}, nil
}

// Close is a no-op; the file is opened per read.
func (s *fileSource) Close() error {
	return nil
}
