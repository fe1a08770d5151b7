package dsp

import (
	"math"
)

// NumSections is the fixed depth of a channel's filter cascade.
const NumSections = 4

// Biquad is a single second-order recursive filter section in Direct Form II
// transposed realization, with two delay registers of persistent state.
type Biquad struct {
	b0, b1, b2 float32 // Numerator coefficients
	a1, a2     float32 // Denominator coefficients (a0 normalized to 1)
	z1, z2     float32 // Delay registers
}

// Process filters a single sample through the section.
func (f *Biquad) Process(in float32) float32 {
	out := in*f.b0 + f.z1
	f.z1 = in*f.b1 - out*f.a1 + f.z2
	f.z2 = in*f.b2 - out*f.a2
	return out
}

// Reset clears the delay registers.
func (f *Biquad) Reset() {
	f.z1 = 0
	f.z2 = 0
}

// Cascade is a fixed chain of four biquad sections applied in sequence.
// Each instance owns its state; cascades are never shared between channels.
type Cascade struct {
	sections [NumSections]Biquad
}

// Process filters a single sample through all sections.
func (c *Cascade) Process(in float32) float32 {
	out := in
	for i := range c.sections {
		out = c.sections[i].Process(out)
	}
	return out
}

// Reset clears the state of every section.
func (c *Cascade) Reset() {
	for i := range c.sections {
		c.sections[i].Reset()
	}
}

// NewCascade builds a cascade from literal coefficients, four sections of
// [b0 b1 b2 a1 a2]. Coefficient stability is the caller's responsibility;
// no runtime check is performed.
func NewCascade(coeffs [][]float64) *Cascade {
	c := &Cascade{}
	for i := 0; i < NumSections && i < len(coeffs); i++ {
		s := coeffs[i]
		if len(s) < 5 {
			continue
		}
		c.sections[i] = Biquad{
			b0: float32(s[0]), b1: float32(s[1]), b2: float32(s[2]),
			a1: float32(s[3]), a2: float32(s[4]),
		}
	}
	return c
}

// NewBandPass designs a band-pass cascade for the given edges: two cascaded
// second-order Butterworth high-pass sections at lowHz followed by two
// low-pass sections at highHz. Edges are clamped below Nyquist to keep the
// bilinear transform well conditioned.
func NewBandPass(sampleRate, lowHz, highHz float64) *Cascade {
	nyquist := sampleRate * 0.499
	if lowHz >= nyquist {
		lowHz = nyquist
	}
	if highHz >= nyquist {
		highHz = nyquist
	}

	hp := highpassSection(sampleRate, lowHz)
	lp := lowpassSection(sampleRate, highHz)

	return &Cascade{sections: [NumSections]Biquad{hp, hp, lp, lp}}
}

// lowpassSection computes a second-order Butterworth low-pass biquad
// (bilinear transform, Q = 1/sqrt(2)).
func lowpassSection(sampleRate, cutoffHz float64) Biquad {
	w0 := 2 * math.Pi * cutoffHz / sampleRate
	cosW := math.Cos(w0)
	alpha := math.Sin(w0) / math.Sqrt2

	a0 := 1 + alpha
	return Biquad{
		b0: float32((1 - cosW) / 2 / a0),
		b1: float32((1 - cosW) / a0),
		b2: float32((1 - cosW) / 2 / a0),
		a1: float32(-2 * cosW / a0),
		a2: float32((1 - alpha) / a0),
	}
}

// highpassSection computes a second-order Butterworth high-pass biquad.
func highpassSection(sampleRate, cutoffHz float64) Biquad {
	w0 := 2 * math.Pi * cutoffHz / sampleRate
	cosW := math.Cos(w0)
	alpha := math.Sin(w0) / math.Sqrt2

	a0 := 1 + alpha
	return Biquad{
		b0: float32((1 + cosW) / 2 / a0),
		b1: float32(-(1 + cosW) / a0),
		b2: float32((1 + cosW) / 2 / a0),
		a1: float32(-2 * cosW / a0),
		a2: float32((1 - alpha) / a0),
	}
}
