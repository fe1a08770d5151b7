package emg

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"sync"

	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is the standard baud rate for the ADC bridge firmware.
	DefaultBaudRate = 115200
)

// Frame is one raw sample per channel as streamed by the ADC bridge.
type Frame struct {
	Micros int64 // Bridge-side timestamp, unix microseconds
	Values []uint16
}

// Serial reads raw sample frames from the ADC bridge over a serial port and
// holds the most recent frame for polling.
type Serial struct {
	port     string
	baudRate int
	channels int
	adcMax   int

	conn      serial.Port
	mu        sync.RWMutex
	latest    []uint16
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool
}

// New creates a new Serial source for the given port and channel count.
func New(port string, baudRate, channels, adcMax int) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if channels <= 0 {
		channels = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Serial{
		port:     port,
		baudRate: baudRate,
		channels: channels,
		adcMax:   adcMax,
		latest:   make([]uint16, channels),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Ports returns the names of available serial ports.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}

// Connect opens the serial port and starts reading frames.
func (s *Serial) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return fmt.Errorf("already connected")
	}

	mode := &serial.Mode{
		BaudRate: s.baudRate,
	}

	port, err := serial.Open(s.port, mode)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", s.port, err)
	}

	s.conn = port
	s.connected = true

	go s.readFrames()

	return nil
}

// Close closes the connection and stops reading frames.
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return nil
	}

	s.cancel()

	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			log.Printf("Error closing serial port: %v", err)
		}
		s.conn = nil
	}

	s.connected = false

	return nil
}

// Read returns the latest raw value for a channel.
func (s *Serial) Read(channel int) uint16 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if channel < 0 || channel >= len(s.latest) {
		return 0
	}
	return s.latest[channel]
}

// Channels returns the configured channel count.
func (s *Serial) Channels() int {
	return s.channels
}

// IsConnected returns whether the source is currently connected.
func (s *Serial) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// readFrames reads lines from the serial port and keeps the latest frame.
func (s *Serial) readFrames() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Panic in readFrames: %v", r)
		}
	}()

	scanner := bufio.NewScanner(s.conn)
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
			if !scanner.Scan() {
				if err := scanner.Err(); err != nil && err != io.EOF {
					log.Printf("Error reading from serial port: %v", err)
				}
				return
			}

			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}

			frame, err := parseFrame(line, s.channels, s.adcMax)
			if err != nil {
				log.Printf("Failed to parse frame '%s': %v", line, err)
				continue
			}

			s.mu.Lock()
			copy(s.latest, frame.Values)
			s.mu.Unlock()
		}
	}
}

// parseFrame parses a line from the ADC bridge into a Frame.
// Format: unix_micros,ch0,ch1,...,chN-1
// Example: 1234567890123,512,498
func parseFrame(line string, channels, adcMax int) (Frame, error) {
	parts := strings.Split(line, ",")
	if len(parts) != channels+1 {
		return Frame{}, fmt.Errorf("invalid frame: expected %d comma-separated values, got %d", channels+1, len(parts))
	}

	micros, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Frame{}, fmt.Errorf("invalid timestamp: %w", err)
	}

	values := make([]uint16, channels)
	for i := 0; i < channels; i++ {
		v, err := strconv.ParseUint(parts[i+1], 10, 16)
		if err != nil {
			return Frame{}, fmt.Errorf("invalid channel %d value: %w", i, err)
		}
		if int(v) > adcMax {
			return Frame{}, fmt.Errorf("channel %d value out of range: %d (max %d)", i, v, adcMax)
		}
		values[i] = uint16(v)
	}

	return Frame{Micros: micros, Values: values}, nil
}
