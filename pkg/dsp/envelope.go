package dsp

import (
	"github.com/chewxy/math32"
)

// Envelope is a moving-average amplitude demodulator: a circular buffer of
// the B most recent rectified samples with an incrementally maintained
// running sum. The window length is fixed for the lifetime of the detector.
type Envelope struct {
	buf []float32
	sum float32
	idx int
}

// NewEnvelope creates an envelope detector with the given window length.
func NewEnvelope(window int) *Envelope {
	if window <= 0 {
		window = 1
	}
	return &Envelope{
		buf: make([]float32, window),
	}
}

// Push rectifies the sample, folds it into the window and returns the new
// envelope value. A push evicts the oldest value from the running sum, adds
// the new one, overwrites the slot and advances the index modulo the window
// length, so the cost is constant regardless of window size.
func (e *Envelope) Push(v float32) float32 {
	r := math32.Abs(v)
	e.sum -= e.buf[e.idx]
	e.sum += r
	e.buf[e.idx] = r
	e.idx = (e.idx + 1) % len(e.buf)
	return e.Value()
}

// Value returns the current envelope, the mean of the window. Always >= 0 up
// to float32 rounding.
func (e *Envelope) Value() float32 {
	v := e.sum / float32(len(e.buf))
	if v < 0 {
		// Running-sum rounding can leave a tiny negative residue.
		return 0
	}
	return v
}

// Sum returns the running sum of the window.
func (e *Envelope) Sum() float32 {
	return e.sum
}

// Window returns the fixed window length B.
func (e *Envelope) Window() int {
	return len(e.buf)
}
