package emg

// Source defines the interface for raw EMG sample sources (real or mocked).
// Read returns the latest raw ADC value for a channel; the conditioning
// pipeline polls it once per channel per cycle.
type Source interface {
	Connect() error
	Close() error
	Read(channel int) uint16
	Channels() int
	IsConnected() bool
}

// Ensure Serial implements Source.
var _ Source = (*Serial)(nil)

// Ensure Mock implements Source.
var _ Source = (*Mock)(nil)
