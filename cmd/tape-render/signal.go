package main

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// generateSignal builds a stereo test signal when no input file is given.
func generateSignal(kind string, frames int, sampleRate float64, level float32, seed uint64) ([]float32, []float32, error) {
	l := make([]float32, frames)
	r := make([]float32, frames)
	switch kind {
	case "noise":
		rng := rand.New(rand.NewPCG(seed, 1))
		for i := range frames {
			l[i] = level * (2*rng.Float32() - 1)
			r[i] = level * (2*rng.Float32() - 1)
		}
	case "sine":
		for i := range frames {
			v := level * float32(math.Sin(2*math.Pi*1000*float64(i)/sampleRate))
			l[i] = v
			r[i] = v
		}
	case "sweep":
		// Exponential sweep 20 Hz to 20 kHz.
		const f0, f1 = 20.0, 20000.0
		dur := float64(frames) / sampleRate
		k := math.Log(f1 / f0)
		for i := range frames {
			t := float64(i) / sampleRate
			phase := 2 * math.Pi * f0 * dur / k * (math.Exp(t*k/dur) - 1)
			v := level * float32(math.Sin(phase))
			l[i] = v
			r[i] = v
		}
	case "impulse":
		if frames > 0 {
			l[0] = level
			r[0] = level
		}
	default:
		return nil, nil, fmt.Errorf("unknown signal %q (use noise|sine|sweep|impulse)", kind)
	}
	return l, r, nil
}
