package tape

import (
	"math"
	"math/rand/v2"
	"testing"

	dspcore "github.com/cwbudde/algo-dsp/dsp/core"
)

const testSampleRate = 48000

func testConfig() Config {
	return NewConfig(dspcore.WithSampleRate(testSampleRate))
}

func newTestProcessor(t testing.TB, params *Params) *TapeProcessor {
	t.Helper()
	cfg := testConfig()
	p, err := NewTapeProcessor(cfg, params)
	if err != nil {
		t.Fatalf("NewTapeProcessor: %v", err)
	}
	p.BindDelayBuffers(NewDelayBuffers(cfg))
	p.Reset()
	return p
}

func allOffParams() *Params {
	p := NewDefaultParams()
	p.FiltersEnabled = false
	p.MakeupEnabled = false
	p.LossEnabled = false
	p.DegradeEnabled = false
	p.AzimuthEnabled = false
	p.DryWet = 1
	return p
}

// runBlocks feeds in through p in blocks of blockSize and returns the
// outputs.
func runBlocks(p *TapeProcessor, inL, inR []float32, blockSize int) (outL, outR []float32) {
	outL = make([]float32, len(inL))
	outR = make([]float32, len(inR))
	for off := 0; off < len(inL); off += blockSize {
		end := min(off+blockSize, len(inL))
		p.ProcessBlock(inL[off:end], inR[off:end], outL[off:end], outR[off:end])
	}
	return outL, outR
}

func sine(freq float64, amp float32, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = amp * float32(math.Sin(2*math.Pi*freq*float64(i)/testSampleRate))
	}
	return out
}

func whiteNoise(seed uint64, n int) []float32 {
	rng := rand.New(rand.NewPCG(seed, seed^0xabcdef))
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(rng.Float64()*2 - 1)
	}
	return out
}

func impulse(n int) []float32 {
	out := make([]float32, n)
	out[0] = 1
	return out
}

func rms(samples []float32) float64 {
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func argmaxAbs(samples []float32) int {
	best := 0
	for i, s := range samples {
		if math.Abs(float64(s)) > math.Abs(float64(samples[best])) {
			best = i
		}
	}
	return best
}

func peakAbs(samples []float32) float64 {
	var peak float64
	for _, s := range samples {
		peak = math.Max(peak, math.Abs(float64(s)))
	}
	return peak
}

func constant(v float32, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func assertFinite(t *testing.T, name string, samples []float32) {
	t.Helper()
	for i, s := range samples {
		if math.IsNaN(float64(s)) || math.IsInf(float64(s), 0) {
			t.Fatalf("%s: non-finite sample at %d: %v", name, i, s)
		}
	}
}
