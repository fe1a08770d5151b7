package pipeline

import (
	"github.com/chewxy/math32"
	"github.com/itohio/goemg/pkg/config"
	"github.com/itohio/goemg/pkg/dsp"
)

// Channel holds all per-channel conditioning state. Channels are created once
// at pipeline construction and live until process exit; no state is shared
// between channels.
type Channel struct {
	name   string
	filter *dsp.Cascade
	env    *dsp.Envelope
	gain   float32

	// Calibration accumulator, kept separate from the live baseline so the
	// two roles never alias.
	calibSum   float64
	calibrated bool

	baseline   float32 // Exponentially smoothed resting level once calibrated
	noiseFloor float32
	peak       float32
	output     float32
}

// newChannel builds a channel from its configuration. When literal biquad
// coefficients are supplied they win over the designed band-pass.
func newChannel(cc config.ChannelConfig, sampleRate float64, window int) *Channel {
	var filter *dsp.Cascade
	if len(cc.Coefficients) > 0 {
		filter = dsp.NewCascade(cc.Coefficients)
	} else {
		filter = dsp.NewBandPass(sampleRate, cc.LowHz, cc.HighHz)
	}

	return &Channel{
		name:   cc.Name,
		filter: filter,
		env:    dsp.NewEnvelope(window),
		gain:   float32(cc.Gain),
	}
}

// condition runs one raw sample through the filter cascade and the envelope
// detector and returns the amplified envelope.
func (c *Channel) condition(raw uint16, midscale float32) float32 {
	filtered := c.filter.Process(float32(raw) - midscale)
	return c.env.Push(filtered) * c.gain
}

// accumulate folds one envelope value into the calibration accumulator.
func (c *Channel) accumulate(envelope float32) {
	c.calibSum += float64(envelope)
}

// finishCalibration converts the accumulator into the resting baseline and
// optional noise floor. Called exactly once; the calibrated flag never
// reverts.
func (c *Channel) finishCalibration(samples int, t *tuning) {
	c.baseline = float32(c.calibSum / float64(samples))
	if t.useNoiseFloor {
		c.noiseFloor = c.baseline * (1 + t.noiseFloorMargin)
	}
	c.calibrated = true
}

// update runs the post-calibration stages for one envelope value: baseline
// drift tracking, adaptive threshold with optional square-root compression,
// and the decaying peak-hold. Returns the control output.
func (c *Channel) update(envelope float32, t *tuning) float32 {
	// Alpha near 1: the baseline follows slow drift, not contractions.
	c.baseline = t.alpha*c.baseline + (1-t.alpha)*envelope

	threshold := c.baseline + c.baseline*t.multiplier
	if t.useNoiseFloor && c.noiseFloor > threshold {
		threshold = c.noiseFloor
	}

	var out float32
	if envelope > threshold {
		out = envelope - c.baseline
		if t.compress {
			out = math32.Sqrt(out) * t.scale
		}
		out *= t.postGain
	}

	c.output = out
	c.peak = math32.Max(c.peak*t.peakDecay, out)
	return out
}

// snr returns the peak-to-baseline ratio, or the sentinel when the baseline
// is exactly zero.
func (c *Channel) snr() float32 {
	if c.baseline == 0 {
		return snrSentinel
	}
	return c.peak / c.baseline
}

// Name returns the configured electrode site name.
func (c *Channel) Name() string {
	return c.name
}

// Calibrated reports whether the channel has completed rest calibration.
func (c *Channel) Calibrated() bool {
	return c.calibrated
}

// Baseline returns the current resting reference level.
func (c *Channel) Baseline() float32 {
	return c.baseline
}

// Peak returns the decaying peak-hold value.
func (c *Channel) Peak() float32 {
	return c.peak
}

// Output returns the thresholded control output of the last cycle.
func (c *Channel) Output() float32 {
	return c.output
}
