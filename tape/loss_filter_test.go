package tape

import (
	"math"
	"testing"
)

func TestDesignFIRIsSymmetricLinearPhase(t *testing.T) {
	taps := make([]float32, LossFIROrder)
	DesignFIR(taps, testSampleRate, LossParams{Speed: 7.5, Spacing: 2, Thickness: 5, Gap: 3})
	if taps[0] != 0 {
		t.Fatalf("tap 0 = %v, want 0", taps[0])
	}
	center := LossFIROrder / 2
	for n := 1; n < center; n++ {
		if taps[center+n] != taps[center-n] {
			t.Fatalf("taps not symmetric at offset %d: %v vs %v", n, taps[center+n], taps[center-n])
		}
	}
	for i, v := range taps {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			t.Fatalf("tap %d not finite", i)
		}
	}
}

func TestDesignFIRLosslessIsPureDelay(t *testing.T) {
	taps := make([]float32, LossFIROrder)
	DesignFIR(taps, testSampleRate, LossParams{Speed: 15})
	center := LossFIROrder / 2
	for i, v := range taps {
		want := 0.0
		if i == center {
			want = 1
		}
		if math.Abs(float64(v)-want) > 1e-5 {
			t.Fatalf("tap %d = %v, want %v", i, v, want)
		}
	}
}

func TestDesignFIRMoreSpacingLosesMoreHighs(t *testing.T) {
	mild := make([]float32, LossFIROrder)
	heavy := make([]float32, LossFIROrder)
	DesignFIR(mild, testSampleRate, LossParams{Speed: 15, Spacing: 0.1, Thickness: 0.1, Gap: 1})
	DesignFIR(heavy, testSampleRate, LossParams{Speed: 15, Spacing: 10, Thickness: 0.1, Gap: 1})
	if nyquistGain(heavy) >= nyquistGain(mild) {
		t.Fatalf("Nyquist gain heavy=%.4f mild=%.4f, want heavy < mild", nyquistGain(heavy), nyquistGain(mild))
	}
}

func nyquistGain(taps []float32) float64 {
	var sum float64
	for i, v := range taps {
		if i%2 == 0 {
			sum += float64(v)
		} else {
			sum -= float64(v)
		}
	}
	return math.Abs(sum)
}

func TestHeadBump(t *testing.T) {
	tests := []struct {
		name     string
		params   LossParams
		wantFreq float64
		wantGain float64
	}{
		{"default gap has no bump", LossParams{Speed: 15, Gap: 1}, 762, 1},
		{"wide gap", LossParams{Speed: 15, Gap: 10}, 76.2, 1.5 * (1000 - 23.8) / 1000},
		{"zero gap", LossParams{Speed: 15, Gap: 0}, math.Inf(1), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			freq, gain := HeadBump(tt.params)
			if math.IsInf(tt.wantFreq, 1) {
				if !math.IsInf(freq, 1) {
					t.Fatalf("freq = %v, want +Inf", freq)
				}
			} else if math.Abs(freq-tt.wantFreq) > 1e-6*tt.wantFreq {
				t.Fatalf("freq = %v, want %v", freq, tt.wantFreq)
			}
			if math.Abs(gain-tt.wantGain) > 1e-9 {
				t.Fatalf("gain = %v, want %v", gain, tt.wantGain)
			}
			c := DesignHeadBump(testSampleRate, tt.params)
			if tt.wantGain == 1 && (c.B0 != 1 || c.B1 != 0 || c.B2 != 0 || c.A1 != 0 || c.A2 != 0) {
				t.Fatalf("unity bump not identity: %+v", c)
			}
		})
	}
}

func TestLossFilterIgnoresSmallChanges(t *testing.T) {
	f := NewLossFilter(testSampleRate)
	p := DefaultLossParams
	f.SetParameters(p.Speed+0.005, p.Spacing-0.005, p.Thickness, p.Gap+0.009)
	if f.Fading() {
		t.Fatal("change below epsilon armed a crossfade")
	}
	f.SetParameters(p.Speed+0.5, p.Spacing, p.Thickness, p.Gap)
	if !f.Fading() {
		t.Fatal("real change did not arm a crossfade")
	}
}

func TestLossFilterDisabledCopiesInput(t *testing.T) {
	f := NewLossFilter(testSampleRate)
	f.SetEnabled(false)
	if f.LatencySamples() != 0 {
		t.Fatalf("latency = %d, want 0", f.LatencySamples())
	}
	in := whiteNoise(5, 256)
	outL := make([]float32, len(in))
	outR := make([]float32, len(in))
	f.ProcessBlock(in, in, outL, outR)
	for i := range in {
		if outL[i] != in[i] || outR[i] != in[i] {
			t.Fatalf("sample %d modified", i)
		}
	}
}

func TestLossFilterCrossfadeContinuity(t *testing.T) {
	const block = 64
	const eps = 0.02

	f := NewLossFilter(testSampleRate)
	first := LossParams{Speed: 15, Spacing: 0.1, Thickness: 0.1, Gap: 1}
	second := LossParams{Speed: 7.5, Spacing: 5, Thickness: 10, Gap: 20}
	third := LossParams{Speed: 30, Spacing: 1, Thickness: 1, Gap: 2}
	f.SetParameters(first.Speed, first.Spacing, first.Thickness, first.Gap)
	f.Reset()

	in := sine(100, 0.5, testSampleRate)
	outL := make([]float32, len(in))
	outR := make([]float32, len(in))

	fadeStart := 8192
	midFade := fadeStart + LossFadeLength/2
	sawFade := false
	for off := 0; off < len(in); off += block {
		switch off {
		case fadeStart:
			f.SetParameters(second.Speed, second.Spacing, second.Thickness, second.Gap)
			if !f.Fading() {
				t.Fatal("crossfade not armed")
			}
		case midFade:
			if !f.Fading() {
				t.Fatal("fade finished too early")
			}
			sawFade = true
			f.SetParameters(third.Speed, third.Spacing, third.Thickness, third.Gap)
			if got := f.Params(); got != second {
				t.Fatalf("mid-fade update applied: %+v", got)
			}
		}
		f.ProcessBlock(in[off:off+block], in[off:off+block], outL[off:off+block], outR[off:off+block])
	}
	if !sawFade {
		t.Fatal("mid-fade update never attempted")
	}
	if f.Fading() {
		t.Fatal("fade did not complete")
	}

	for i := 1; i < len(outL); i++ {
		if d := math.Abs(float64(outL[i] - outL[i-1])); d > eps {
			t.Fatalf("left discontinuity %.5f at %d", d, i)
		}
		if d := math.Abs(float64(outR[i] - outR[i-1])); d > eps {
			t.Fatalf("right discontinuity %.5f at %d", d, i)
		}
	}

	// The dropped update was not remembered, so the next call applies it.
	f.SetParameters(third.Speed, third.Spacing, third.Thickness, third.Gap)
	if !f.Fading() {
		t.Fatal("update after fade was not honored")
	}
	if got := f.Params(); got != third {
		t.Fatalf("params = %+v, want %+v", got, third)
	}
}

func TestLossFilterFadeLengthAndSwap(t *testing.T) {
	f := NewLossFilter(testSampleRate)
	before := f.active.Load()
	f.SetParameters(5, 3, 3, 3)

	buf := make([]float32, LossFadeLength-1)
	f.ProcessBlock(buf, buf, buf, buf)
	if !f.Fading() || f.active.Load() != before {
		t.Fatal("fade ended before LossFadeLength samples")
	}
	one := make([]float32, 1)
	f.ProcessBlock(one, one, one, one)
	if f.Fading() {
		t.Fatal("still fading after LossFadeLength samples")
	}
	if f.active.Load() == before {
		t.Fatal("active slot did not flip")
	}
}

func TestLossFilterStateCopyAvoidsTransient(t *testing.T) {
	// A constant input through two designs with unity DC gain must stay
	// constant through the fade when the back slot inherits the history.
	f := NewLossFilter(testSampleRate)
	f.SetParameters(15, 0, 0, 0)
	f.Reset()

	in := make([]float32, 4096)
	for i := range in {
		in[i] = 0.5
	}
	out := make([]float32, len(in))
	f.ProcessBlock(in[:2048], in[:2048], out[:2048], out[:2048])
	f.SetParameters(30, 0, 0, 0)
	f.ProcessBlock(in[2048:], in[2048:], out[2048:], out[2048:])
	for i := 100; i < len(out); i++ {
		if math.Abs(float64(out[i]-0.5)) > 1e-4 {
			t.Fatalf("sample %d = %v, want 0.5", i, out[i])
		}
	}
}

func TestLossFilterReenableStartsFromSilence(t *testing.T) {
	f := NewLossFilter(testSampleRate)
	f.Reset()

	loud := constant(0.9, 4096)
	outL := make([]float32, len(loud))
	outR := make([]float32, len(loud))
	f.ProcessBlock(loud, loud, outL, outR)

	f.SetEnabled(false)
	silence := make([]float32, testSampleRate)
	outL = make([]float32, len(silence))
	outR = make([]float32, len(silence))
	f.ProcessBlock(silence, silence, outL, outR)

	f.SetEnabled(true)
	f.ProcessBlock(silence, silence, outL, outR)
	if peak := max(peakAbs(outL), peakAbs(outR)); peak > 1e-6 {
		t.Fatalf("re-enabled stage replayed old audio, peak %v", peak)
	}
}
