package emg

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/itohio/goemg/pkg/config"
)

// Mock simulates an EMG source for testing and development. Each channel
// produces band-limited noise around midscale at rest and a sinusoidal burst
// during periodic simulated contractions, with per-channel phase offsets so
// channels fire at different times.
type Mock struct {
	cfg      *config.MockConfig
	channels int
	adcMax   int

	mu        sync.RWMutex
	startTime time.Time
	connected bool
}

// NewMock creates a new mocked source instance.
func NewMock(cfg *config.MockConfig, channels, adcMax int) *Mock {
	if cfg == nil {
		def := config.Default().Mock
		cfg = &def
	}
	if channels <= 0 {
		channels = 1
	}

	return &Mock{
		cfg:      cfg,
		channels: channels,
		adcMax:   adcMax,
	}
}

// Connect simulates connecting to the source.
func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return fmt.Errorf("already connected")
	}

	m.connected = true
	m.startTime = time.Now()

	return nil
}

// Close stops the mocked source.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.connected = false
	return nil
}

// Read synthesizes the raw value for a channel at the current time.
func (m *Mock) Read(channel int) uint16 {
	m.mu.RLock()
	elapsed := time.Since(m.startTime)
	m.mu.RUnlock()

	return m.at(channel, elapsed)
}

// at computes the synthetic sample for a channel at the given offset from
// connect time. Deterministic, so tests can replay exact waveforms.
func (m *Mock) at(channel int, elapsed time.Duration) uint16 {
	t := elapsed.Seconds()
	mid := float64(m.adcMax) / 2

	// Pseudo-noise from incommensurate sinusoids, same trick as a cheap
	// hardware noise source and reproducible across runs.
	noise := (math.Sin(t*1327.3+float64(channel)) + math.Cos(t*997.1)) * m.cfg.NoiseLevel * 0.5

	v := mid + m.cfg.RestLevel + noise

	// Contraction bursts are staggered per channel by a quarter period.
	period := m.cfg.BurstPeriod.Seconds()
	if period > 0 {
		phase := math.Mod(t+float64(channel)*period/4, period)
		if phase < m.cfg.BurstDuration.Seconds() {
			v += m.cfg.BurstLevel * math.Sin(2*math.Pi*m.cfg.ToneHz*t)
		}
	}

	if v < 0 {
		v = 0
	} else if v > float64(m.adcMax) {
		v = float64(m.adcMax)
	}
	return uint16(v)
}

// Channels returns the configured channel count.
func (m *Mock) Channels() int {
	return m.channels
}

// IsConnected returns whether the source is currently connected.
func (m *Mock) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}
