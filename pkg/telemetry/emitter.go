package telemetry

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Classification is a signal-quality verdict token.
type Classification string

const (
	// Good means every channel meets the configured minimum SNR.
	Good Classification = "GOOD"
	// LowQuality means at least one channel is below the minimum SNR.
	LowQuality Classification = "LOW_QUALITY"
)

// SNRSentinel is reported when a channel's baseline is exactly zero.
const SNRSentinel = 999

// Emitter serializes per-cycle outputs and periodic quality reports as
// newline-terminated ASCII lines. Each record is built whole and handed to
// the sink in a single Write, so records never interleave mid-line. Writes
// are fire-and-forget; a sink that blocks will skew the sampling cadence.
type Emitter struct {
	w         io.Writer
	precision int
}

// NewEmitter creates an emitter with the given decimal precision.
func NewEmitter(w io.Writer, precision int) *Emitter {
	if precision <= 0 {
		precision = 2
	}
	return &Emitter{w: w, precision: precision}
}

// Data emits one conditioning-cycle record:
// EMG,<timestamp_ms>,<out0>,...,<outN-1>,<base0>,...,<baseN-1>
func (e *Emitter) Data(timestampMs int64, outputs, baselines []float32) error {
	var b strings.Builder
	b.WriteString("EMG,")
	b.WriteString(strconv.FormatInt(timestampMs, 10))
	for _, v := range outputs {
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(float64(v), 'f', e.precision, 32))
	}
	for _, v := range baselines {
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(float64(v), 'f', e.precision, 32))
	}
	b.WriteByte('\n')

	_, err := io.WriteString(e.w, b.String())
	return err
}

// Quality emits one quality record:
// QUALITY,<snr0>,...,<snrN-1>,<classification>
func (e *Emitter) Quality(snrs []float32, c Classification) error {
	var b strings.Builder
	b.WriteString("QUALITY")
	for _, v := range snrs {
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(float64(v), 'f', e.precision, 32))
	}
	b.WriteByte(',')
	b.WriteString(string(c))
	b.WriteByte('\n')

	_, err := io.WriteString(e.w, b.String())
	return err
}

// Status emits a free-text status line, used for the calibration lifecycle
// (CALIBRATION_START, progress, CALIBRATION_COMPLETE).
func (e *Emitter) Status(format string, args ...any) error {
	_, err := fmt.Fprintf(e.w, format+"\n", args...)
	return err
}
