package dsp

import (
	"math"

	dspcore "github.com/cwbudde/algo-dsp/dsp/core"
	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
)

// Biquad implements a second-order IIR filter (no heap allocations in Process).
type Biquad struct {
	// Coefficients
	b0, b1, b2 float32
	a1, a2     float32

	// State (previous samples)
	x1, x2 float32 // input history
	y1, y2 float32 // output history
}

// NewBiquad creates a new biquad filter with the given coefficients.
func NewBiquad(c biquad.Coefficients) *Biquad {
	b := &Biquad{}
	b.SetCoefficients(c)
	return b
}

// SetCoefficients replaces the coefficients and keeps the history.
func (b *Biquad) SetCoefficients(c biquad.Coefficients) {
	b.b0 = float32(c.B0)
	b.b1 = float32(c.B1)
	b.b2 = float32(c.B2)
	b.a1 = float32(c.A1)
	b.a2 = float32(c.A2)
}

// Coefficients returns the coefficients in algo-dsp form.
func (b *Biquad) Coefficients() biquad.Coefficients {
	return biquad.Coefficients{
		B0: float64(b.b0), B1: float64(b.b1), B2: float64(b.b2),
		A1: float64(b.a1), A2: float64(b.a2),
	}
}

// CopyStateFrom copies the input and output history of other.
func (b *Biquad) CopyStateFrom(other *Biquad) {
	b.x1, b.x2 = other.x1, other.x2
	b.y1, b.y2 = other.y1, other.y2
}

// Process processes one sample through the biquad filter.
func (b *Biquad) Process(input float32) float32 {
	// Direct Form I
	output := b.b0*input + b.b1*b.x1 + b.b2*b.x2 - b.a1*b.y1 - b.a2*b.y2
	output = float32(dspcore.FlushDenormals(float64(output)))

	b.x2 = b.x1
	b.x1 = input
	b.y2 = b.y1
	b.y1 = output

	return output
}

// Reset clears the filter state.
func (b *Biquad) Reset() {
	b.x1, b.x2 = 0, 0
	b.y1, b.y2 = 0, 0
}

// PeakCoefficients designs a peaking filter with linear gain at freq.
// The shelf amplitude is sqrt(gain); gain 1 yields an identity filter.
func PeakCoefficients(freq, gain, q, sampleRate float64) biquad.Coefficients {
	if gain <= 0 || gain == 1 {
		return biquad.Coefficients{B0: 1}
	}
	if q <= 0 {
		q = 0.7071067811865476
	}
	freq = dspcore.Clamp(freq, 1, 0.49*sampleRate)

	phi := 2.0 * math.Pi * freq / sampleRate
	a := math.Sqrt(gain)
	alpha := math.Sin(phi) / (2.0 * q)
	cosPhi := math.Cos(phi)

	b0 := 1.0 + alpha*a
	b1 := -2.0 * cosPhi
	b2 := 1.0 - alpha*a
	a0 := 1.0 + alpha/a
	a1 := -2.0 * cosPhi
	a2 := 1.0 - alpha/a

	return biquad.Coefficients{
		B0: b0 / a0,
		B1: b1 / a0,
		B2: b2 / a0,
		A1: a1 / a0,
		A2: a2 / a0,
	}
}

// StereoBiquad runs the same coefficients over two channels.
type StereoBiquad struct {
	L, R Biquad
}

// SetCoefficients sets both channels.
func (s *StereoBiquad) SetCoefficients(c biquad.Coefficients) {
	s.L.SetCoefficients(c)
	s.R.SetCoefficients(c)
}

// CopyStateFrom copies both channels' history.
func (s *StereoBiquad) CopyStateFrom(other *StereoBiquad) {
	s.L.CopyStateFrom(&other.L)
	s.R.CopyStateFrom(&other.R)
}

// Process filters one stereo sample.
func (s *StereoBiquad) Process(inL, inR float32) (outL, outR float32) {
	return s.L.Process(inL), s.R.Process(inR)
}

// Reset clears both channels.
func (s *StereoBiquad) Reset() {
	s.L.Reset()
	s.R.Reset()
}
