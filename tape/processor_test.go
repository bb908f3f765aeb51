package tape

import (
	"fmt"
	"math"
	"sync"
	"testing"
)

func TestNewTapeProcessorRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"sample rate", func(c *Config) { c.SampleRate = 100 }},
		{"block size", func(c *Config) { c.MaxBlockSize = 0 }},
		{"dry capacity", func(c *Config) { c.DryDelaySamples = 10 }},
		{"makeup capacity", func(c *Config) { c.MakeupDelaySamples = 10 }},
		{"azimuth capacity", func(c *Config) { c.AzimuthDelaySamples = 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			if _, err := NewTapeProcessor(cfg, nil); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestNewConfigDefaults(t *testing.T) {
	cfg := testConfig()
	if cfg.SampleRate != testSampleRate {
		t.Fatalf("sample rate = %v", cfg.SampleRate)
	}
	if cfg.MaxBlockSize != DefaultMaxBlockSize {
		t.Fatalf("max block size = %d, want %d", cfg.MaxBlockSize, DefaultMaxBlockSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestPassThroughIdentity(t *testing.T) {
	for _, block := range []int{1, 64, 100, 256, 1000} {
		t.Run(fmt.Sprintf("block%d", block), func(t *testing.T) {
			p := newTestProcessor(t, allOffParams())
			if got := p.LatencySamples(); got != 0 {
				t.Fatalf("latency = %d, want 0", got)
			}
			inL := whiteNoise(1, 5000)
			inR := whiteNoise(2, 5000)
			outL, outR := runBlocks(p, inL, inR, block)
			for i := range inL {
				if outL[i] != inL[i] || outR[i] != inR[i] {
					t.Fatalf("sample %d: got (%v,%v) want (%v,%v)", i, outL[i], outR[i], inL[i], inR[i])
				}
			}
		})
	}
}

func TestPassThroughWithPartialMix(t *testing.T) {
	params := allOffParams()
	params.DryWet = 0.3
	p := newTestProcessor(t, params)
	in := whiteNoise(3, 4096)
	outL, _ := runBlocks(p, in, in, 128)
	for i := range in {
		if math.Abs(float64(outL[i]-in[i])) > 1e-6 {
			t.Fatalf("sample %d: got %v want %v", i, outL[i], in[i])
		}
	}
}

func TestLatencyAlignment(t *testing.T) {
	blockSizes := []int{1, 5, 7, 34, 35, 36, 64, 70, 128, 256, 300}
	for _, block := range blockSizes {
		t.Run(fmt.Sprintf("block%d", block), func(t *testing.T) {
			wetParams := allOffParams()
			wetParams.LossEnabled = true
			wetParams.DryWet = 1
			wet := newTestProcessor(t, wetParams)

			dryParams := *wetParams
			dryParams.DryWet = 0
			dry := newTestProcessor(t, &dryParams)

			if got := wet.LatencySamples(); got != LossFIROrder/2 {
				t.Fatalf("latency = %d, want %d", got, LossFIROrder/2)
			}

			in := impulse(512)
			wetOut, _ := runBlocks(wet, in, in, block)
			dryOut, _ := runBlocks(dry, in, in, block)

			latency := wet.LatencySamples()
			if got := argmaxAbs(wetOut); got != latency {
				t.Fatalf("wet peak at %d, want %d", got, latency)
			}
			for i, v := range dryOut {
				want := float32(0)
				if i == latency {
					want = 1
				}
				if v != want {
					t.Fatalf("dry sample %d = %v, want %v", i, v, want)
				}
			}
		})
	}
}

func TestLatencyFollowsLossEnable(t *testing.T) {
	params := allOffParams()
	params.LossEnabled = true
	p := newTestProcessor(t, params)
	if got := p.LatencySamples(); got != LossFIROrder/2 {
		t.Fatalf("latency = %d", got)
	}
	params.LossEnabled = false
	p.UpdateParams(params)
	if got := p.LatencySamples(); got != 0 {
		t.Fatalf("latency after disable = %d, want 0", got)
	}
}

func TestMakeupReconstructsFullBand(t *testing.T) {
	params := allOffParams()
	params.FiltersEnabled = true
	params.MakeupEnabled = true
	params.LowCutHz = 20
	params.HighCutHz = 24000

	for _, freq := range []float64{40, 200, 1000, 5000, 12000, 18000} {
		t.Run(fmt.Sprintf("%.0fHz", freq), func(t *testing.T) {
			p := newTestProcessor(t, params)
			n := testSampleRate / 2
			in := sine(freq, 0.5, n)
			out, _ := runBlocks(p, in, in, 256)
			tail := n / 2
			want := rms(in[tail:])
			got := rms(out[tail:])
			if math.Abs(got-want) > 0.01*want {
				t.Fatalf("rms %.6f, want %.6f", got, want)
			}
		})
	}
}

func TestMakeupRestoresRemovedBand(t *testing.T) {
	params := allOffParams()
	params.FiltersEnabled = true
	params.LowCutHz = 1000
	params.HighCutHz = 4000

	n := testSampleRate / 2
	in := sine(100, 0.5, n)
	tail := n / 2

	withoutMakeup := newTestProcessor(t, params)
	out, _ := runBlocks(withoutMakeup, in, in, 256)
	if got := rms(out[tail:]); got > 0.01*rms(in[tail:]) {
		t.Fatalf("100 Hz passed the midband: rms %.6f", got)
	}

	params.MakeupEnabled = true
	withMakeup := newTestProcessor(t, params)
	out, _ = runBlocks(withMakeup, in, in, 256)
	want := rms(in[tail:])
	if got := rms(out[tail:]); math.Abs(got-want) > 0.02*want {
		t.Fatalf("makeup rms %.6f, want %.6f", got, want)
	}
}

func TestDryWetChangeIsSmoothed(t *testing.T) {
	params := allOffParams()
	params.FiltersEnabled = true
	params.LowCutHz = 2000
	params.HighCutHz = 4000
	params.DryWet = 1
	p := newTestProcessor(t, params)

	in := sine(100, 0.5, 4096)
	outL := make([]float32, len(in))
	outR := make([]float32, len(in))
	for off := 0; off < len(in); off += 64 {
		if off == 2048 {
			params.DryWet = 0
			p.UpdateParams(params)
		}
		p.ProcessBlock(in[off:off+64], in[off:off+64], outL[off:off+64], outR[off:off+64])
	}
	for i := 2049; i < len(outL); i++ {
		if d := math.Abs(float64(outL[i] - outL[i-1])); d > 0.02 {
			t.Fatalf("jump of %.4f at %d", d, i)
		}
	}
	if math.Abs(float64(outL[len(outL)-1]-in[len(in)-1])) > 1e-6 {
		t.Fatal("mix did not settle on the dry signal")
	}
}

func TestOversizedBlockIsChunked(t *testing.T) {
	params := allOffParams()
	params.LossEnabled = true
	a := newTestProcessor(t, params)
	b := newTestProcessor(t, params)

	in := whiteNoise(9, 3000)
	bigL, _ := runBlocks(a, in, in, 3000)
	smallL, _ := runBlocks(b, in, in, DefaultMaxBlockSize)
	for i := range bigL {
		if bigL[i] != smallL[i] {
			t.Fatalf("sample %d differs: %v vs %v", i, bigL[i], smallL[i])
		}
	}
}

func TestUnboundDelayBuffersPassThrough(t *testing.T) {
	params := allOffParams()
	params.AzimuthEnabled = true
	params.AzimuthDeg = 5
	params.FiltersEnabled = true
	params.MakeupEnabled = true
	p, err := NewTapeProcessor(testConfig(), params)
	if err != nil {
		t.Fatal(err)
	}
	in := whiteNoise(4, 2048)
	out, _ := runBlocks(p, in, in, 128)
	assertFinite(t, "out", out)
}

func TestParamsReturnsLastSnapshot(t *testing.T) {
	p := newTestProcessor(t, nil)
	want := *NewDefaultParams()
	if got := p.Params(); got != want {
		t.Fatalf("Params() = %+v, want defaults", got)
	}
	next := NewDefaultParams()
	next.DryWet = 0.25
	p.UpdateParams(next)
	next.DryWet = 0.9
	if got := p.Params().DryWet; got != 0.25 {
		t.Fatalf("snapshot aliased caller struct, DryWet = %v", got)
	}
}

func TestBoundsWhiteNoise(t *testing.T) {
	if testing.Short() {
		t.Skip("10 s of audio per case")
	}
	extreme := NewDefaultParams()
	extreme.LowCutHz = 2000
	extreme.HighCutHz = 2000
	extreme.MakeupEnabled = true
	extreme.Speed = 1
	extreme.Gap = 50
	extreme.Spacing = 20
	extreme.Thickness = 50
	extreme.DegradeDepth = 1
	extreme.DegradeAmount = 1
	extreme.DegradeVariance = 1
	extreme.DegradeEnvelope = 1
	extreme.DegradePoint1x = false
	extreme.AzimuthEnabled = true
	extreme.AzimuthDeg = -45
	extreme.DryWet = 0.7

	minimal := NewDefaultParams()
	minimal.LowCutHz = 20
	minimal.HighCutHz = 22000
	minimal.MakeupEnabled = true
	minimal.Speed = 50
	minimal.Gap = 1
	minimal.Spacing = 0.1
	minimal.Thickness = 0.1
	minimal.DegradeVariance = 1
	minimal.AzimuthEnabled = true
	minimal.AzimuthDeg = 0.1

	bump := NewDefaultParams()
	bump.Speed = 7.5
	bump.Gap = 20
	bump.DegradeDepth = 0.5
	bump.DegradeAmount = 0.5

	cases := map[string]*Params{"extreme": extreme, "minimal": minimal, "bump": bump}
	for name, params := range cases {
		t.Run(name, func(t *testing.T) {
			p := newTestProcessor(t, params)
			n := testSampleRate * 10
			inL := whiteNoise(11, n)
			inR := whiteNoise(12, n)
			outL, outR := runBlocks(p, inL, inR, 256)
			assertFinite(t, "left", outL)
			assertFinite(t, "right", outR)
		})
	}
}

func TestConcurrentUpdatesDuringProcessing(t *testing.T) {
	p := newTestProcessor(t, nil)
	in := whiteNoise(21, testSampleRate)
	out := make([]float32, len(in))
	outR := make([]float32, len(in))

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		params := NewDefaultParams()
		params.MakeupEnabled = true
		params.AzimuthEnabled = true
		for i := 0; ; i++ {
			select {
			case <-done:
				return
			default:
			}
			x := float32(i%100) / 100
			params.LowCutHz = 20 + 500*x
			params.HighCutHz = 2000 + 15000*x
			params.Speed = 1 + 49*x
			params.Gap = 1 + 49*(1-x)
			params.DegradeDepth = x
			params.DegradeAmount = 1 - x
			params.AzimuthDeg = 10*x - 5
			params.DryWet = x
			params.LossEnabled = i%7 != 0
			p.UpdateParams(params)
		}
	}()

	for off := 0; off < len(in); off += 128 {
		p.ProcessBlock(in[off:off+128], in[off:off+128], out[off:off+128], outR[off:off+128])
	}
	close(done)
	wg.Wait()

	assertFinite(t, "left", out)
	assertFinite(t, "right", outR)
}

func BenchmarkProcessBlock256(b *testing.B) {
	params := NewDefaultParams()
	params.MakeupEnabled = true
	params.DegradeDepth = 0.5
	params.DegradeAmount = 0.5
	params.AzimuthEnabled = true
	params.AzimuthDeg = 2
	p := newTestProcessor(b, params)

	inL := whiteNoise(1, 256)
	inR := whiteNoise(2, 256)
	outL := make([]float32, 256)
	outR := make([]float32, 256)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p.ProcessBlock(inL, inR, outL, outR)
	}
}
