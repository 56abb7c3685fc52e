package source

import (
	"context"
	"errors"
	"testing"

	"github.com/goburrow/modbus"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/plc-sentry/internal/config"
)

// stubModbusClient serves canned holding-register responses. The embedded
// interface covers the function codes the source never calls.
type stubModbusClient struct {
	modbus.Client

	data []byte
	err  error
}

func (c *stubModbusClient) ReadHoldingRegisters(_, _ uint16) ([]byte, error) {
	return c.data, c.err
}

func TestModbusSourceRead(t *testing.T) {
	t.Parallel()

	s := &modbusSource{
		client:   &stubModbusClient{data: []byte{0x00, 0x07}},
		register: 100,
		quantity: 1,
	}

	sample, err := s.Read(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 7, sample.Value)
	require.False(t, sample.ReadAt.IsZero())
}

func TestModbusSourceRead_WrapsFailures(t *testing.T) {
	t.Parallel()

	gatewayDown := errors.New("connection reset")
	s := &modbusSource{
		client:   &stubModbusClient{err: gatewayDown},
		quantity: 1,
	}

	_, err := s.Read(context.Background())

	var readErr *ReadError
	require.ErrorAs(t, err, &readErr)
	require.Equal(t, config.SourceTypeModbus, readErr.Kind)
	require.ErrorIs(t, err, gatewayDown)

	// A malformed register payload is wrapped the same way.
	s.client = &stubModbusClient{data: []byte{0x07}}

	_, err = s.Read(context.Background())
	require.ErrorAs(t, err, &readErr)
	require.Equal(t, config.SourceTypeModbus, readErr.Kind)
	require.Contains(t, err.Error(), "decode registers")
}

func TestDecodeRegisters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		data     []byte
		quantity uint16
		expected int64
		wantErr  bool
	}{
		{
			name:     "single register",
			data:     []byte{0x00, 0x07},
			quantity: 1,
			expected: 7,
		},
		{
			name:     "two registers big endian",
			data:     []byte{0x00, 0x01, 0x00, 0x00},
			quantity: 2,
			expected: 65536,
		},
		{
			name:     "four registers",
			data:     []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x04, 0xB5},
			quantity: 4,
			expected: 1205,
		},
		{
			name:     "short response",
			data:     []byte{0x07},
			quantity: 1,
			wantErr:  true,
		},
		{
			name:     "unsupported quantity",
			data:     []byte{0x00, 0x01, 0x00, 0x02, 0x00, 0x03},
			quantity: 3,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			value, err := decodeRegisters(tt.data, tt.quantity)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.expected, value)
		})
	}
}
