package dsp

import "math"

const (
	lrR2            = 1.41421356237
	snapToZeroLevel = 1.0e-9
)

// LinkwitzRiley is a single-channel 4th-order Linkwitz-Riley band splitter
// built from two cascaded TPT state-variable sections. The low and high
// outputs sum to a second-order allpass of the input.
type LinkwitzRiley struct {
	sampleRate float64
	cutoff     float64
	g, h       float32
	state      [4]float32
}

// NewLinkwitzRiley creates a band splitter at the given cutoff.
func NewLinkwitzRiley(sampleRate float64, cutoffHz float64) *LinkwitzRiley {
	if sampleRate <= 0 {
		sampleRate = 48000
	}
	f := &LinkwitzRiley{sampleRate: sampleRate}
	f.SetCutoff(cutoffHz)
	return f
}

// SetCutoff recomputes the coefficients. The cutoff is kept inside
// (0, sampleRate/2).
func (f *LinkwitzRiley) SetCutoff(cutoffHz float64) {
	nyquist := 0.5 * f.sampleRate
	if cutoffHz >= nyquist {
		cutoffHz = nyquist * 0.999
	}
	if cutoffHz <= 0 {
		cutoffHz = 1
	}
	f.cutoff = cutoffHz
	g := math.Tan(math.Pi * cutoffHz / f.sampleRate)
	f.g = float32(g)
	f.h = float32(1.0 / (1.0 + lrR2*g + g*g))
}

// Cutoff returns the current cutoff in Hz.
func (f *LinkwitzRiley) Cutoff() float64 { return f.cutoff }

// ProcessSample filters one sample and returns the low-pass and high-pass
// outputs.
func (f *LinkwitzRiley) ProcessSample(x float32) (low, high float32) {
	g, h := f.g, f.h
	s := &f.state

	yH := (x - (lrR2+g)*s[0] - s[1]) * h

	tB := g * yH
	yB := tB + s[0]
	s[0] = tB + yB

	tL := g * yB
	yL := tL + s[1]
	s[1] = tL + yL

	yH2 := (yL - (lrR2+g)*s[2] - s[3]) * h

	tB2 := g * yH2
	yB2 := tB2 + s[2]
	s[2] = tB2 + yB2

	tL2 := g * yB2
	yL2 := tL2 + s[3]
	s[3] = tL2 + yL2

	return yL2, yL - lrR2*yB + yH - yL2
}

// SnapToZero clears state registers that decayed below the denormal guard.
// Call once per block, not per sample.
func (f *LinkwitzRiley) SnapToZero() {
	for i, v := range f.state {
		if v < snapToZeroLevel && v > -snapToZeroLevel {
			f.state[i] = 0
		}
	}
}

// Reset clears the filter state.
func (f *LinkwitzRiley) Reset() {
	f.state = [4]float32{}
}
