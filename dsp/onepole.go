package dsp

import (
	"math"

	dspcore "github.com/cwbudde/algo-dsp/dsp/core"
)

// OnePoleLowpass is a bilinear-transform first-order low-pass filter.
type OnePoleLowpass struct {
	sampleRate float64
	cutoff     float64
	b0, b1, a1 float32
	z          float32
}

// NewOnePoleLowpass creates a low-pass at the given cutoff.
func NewOnePoleLowpass(sampleRate float64, cutoffHz float64) *OnePoleLowpass {
	if sampleRate <= 0 {
		sampleRate = 48000
	}
	f := &OnePoleLowpass{sampleRate: sampleRate}
	f.SetCutoff(cutoffHz)
	return f
}

// SetCutoff recomputes the coefficients for cutoffHz, clamped to
// [1, 0.49*sampleRate].
func (f *OnePoleLowpass) SetCutoff(cutoffHz float64) {
	cutoffHz = dspcore.Clamp(cutoffHz, 1, 0.49*f.sampleRate)
	f.cutoff = cutoffHz
	c := 1.0 / math.Tan(math.Pi*cutoffHz/f.sampleRate)
	a0 := c + 1.0
	f.b0 = float32(1.0 / a0)
	f.b1 = f.b0
	f.a1 = float32((1.0 - c) / a0)
}

// Cutoff returns the current cutoff in Hz.
func (f *OnePoleLowpass) Cutoff() float64 { return f.cutoff }

// Process filters one sample.
func (f *OnePoleLowpass) Process(x float32) float32 {
	y := f.z + x*f.b0
	f.z = float32(dspcore.FlushDenormals(float64(x*f.b1 - y*f.a1)))
	return y
}

// Reset clears the filter state.
func (f *OnePoleLowpass) Reset() {
	f.z = 0
}
