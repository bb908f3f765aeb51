package tape

import (
	"math"
	"testing"

	"github.com/cwbudde/algo-tape/dsp"
)

func newTestAzimuth() *Azimuth {
	a := NewAzimuth(testSampleRate)
	a.SetDelayLines(dsp.NewDelayLine(DefaultAzimuthDelaySamples), dsp.NewDelayLine(DefaultAzimuthDelaySamples))
	a.SetEnabled(true)
	return a
}

func TestAzimuthDelaySamples(t *testing.T) {
	got := AzimuthDelaySamples(-1, 15, testSampleRate)
	want := 0.25 * 0.0254 * math.Sin(math.Pi/180) / (15 * 0.0254) * testSampleRate
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("delay = %v, want %v", got, want)
	}
	if AzimuthDelaySamples(0, 15, testSampleRate) != 0 {
		t.Fatal("zero angle must add no delay")
	}
	if AzimuthDelaySamples(5, 30, testSampleRate) >= AzimuthDelaySamples(5, 15, testSampleRate) {
		t.Fatal("faster tape must shorten the delay")
	}
}

func TestAzimuthLaggingChannel(t *testing.T) {
	tests := []struct {
		name  string
		angle float32
		lag   int
	}{
		{"negative delays left", -2, 0},
		{"positive delays right", 2, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAzimuth()
			a.SetAzimuthAngle(tt.angle, 15)
			a.Reset()

			want := float32(1 + AzimuthDelaySamples(tt.angle, 15, testSampleRate))
			if got := a.TargetDelay(tt.lag); math.Abs(float64(got-want)) > 1e-4 {
				t.Fatalf("lagging target = %v, want %v", got, want)
			}
			if got := a.TargetDelay(1 - tt.lag); got != 1 {
				t.Fatalf("leading target = %v, want 1", got)
			}

			in := make([]float32, 256)
			in[0] = 1
			outs := [2][]float32{make([]float32, 256), make([]float32, 256)}
			a.ProcessBlock(in, in, outs[0], outs[1])

			lead := outs[1-tt.lag]
			for i := range in {
				if lead[i] != in[i] {
					t.Fatalf("leading channel sample %d = %v, want %v", i, lead[i], in[i])
				}
			}
			peak := argmaxAbs(outs[tt.lag])
			extra := float64(want - 1)
			if math.Abs(float64(peak)-extra) > 1 {
				t.Fatalf("lagging peak at %d, want about %.2f", peak, extra)
			}
		})
	}
}

func TestAzimuthSmoothsDelayChanges(t *testing.T) {
	a := newTestAzimuth()
	a.Reset()
	a.SetAzimuthAngle(10, 15)

	in := sine(200, 0.5, testSampleRate)
	outL := make([]float32, len(in))
	outR := make([]float32, len(in))
	a.ProcessBlock(in, in, outL, outR)
	for i := 1; i < len(outR); i++ {
		if d := math.Abs(float64(outR[i] - outR[i-1])); d > 0.03 {
			t.Fatalf("jump of %.4f at %d", d, i)
		}
	}
	if got, want := a.smooth[1].Current(), a.TargetDelay(1); got != want {
		t.Fatalf("smoother at %v after 1 s, want %v", got, want)
	}
}

func TestAzimuthClampsToCapacity(t *testing.T) {
	a := NewAzimuth(testSampleRate)
	a.SetDelayLines(dsp.NewDelayLine(64), dsp.NewDelayLine(64))
	a.SetAzimuthAngle(-90, 0.1)
	if got := a.TargetDelay(0); got != 61 {
		t.Fatalf("target = %v, want 61", got)
	}
}

func TestAzimuthMissingDelayLinePassesThrough(t *testing.T) {
	a := NewAzimuth(testSampleRate)
	a.SetDelayLines(nil, dsp.NewDelayLine(1024))
	a.SetEnabled(true)
	a.SetAzimuthAngle(-5, 15)
	in := whiteNoise(3, 512)
	outL := make([]float32, len(in))
	outR := make([]float32, len(in))
	a.ProcessBlock(in, in, outL, outR)
	for i := range in {
		if outL[i] != in[i] {
			t.Fatalf("left sample %d modified without a delay line", i)
		}
	}
}

func TestAzimuthReenableStartsFromSilence(t *testing.T) {
	a := newTestAzimuth()
	a.SetAzimuthAngle(5, 15)
	a.Reset()

	loud := constant(0.9, 4096)
	outL := make([]float32, len(loud))
	outR := make([]float32, len(loud))
	a.ProcessBlock(loud, loud, outL, outR)

	a.SetEnabled(false)
	silence := make([]float32, testSampleRate)
	outL = make([]float32, len(silence))
	outR = make([]float32, len(silence))
	a.ProcessBlock(silence, silence, outL, outR)

	a.SetEnabled(true)
	a.ProcessBlock(silence, silence, outL, outR)
	if peak := max(peakAbs(outL), peakAbs(outR)); peak > 1e-6 {
		t.Fatalf("re-enabled stage replayed old audio, peak %v", peak)
	}
}
