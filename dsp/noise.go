package dsp

import "math/rand/v2"

// NewNoiseSource returns a PCG generator for one consumer. Consumers sharing
// a seed get independent sequences through distinct stream values.
func NewNoiseSource(seed, stream uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, 0x9e3779b97f4a7c15^stream))
}

// Bipolar returns a uniform value in [-0.5, 0.5).
func Bipolar(r *rand.Rand) float32 {
	return r.Float32() - 0.5
}
