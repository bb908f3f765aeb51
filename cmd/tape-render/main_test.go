package main

import (
	"math"
	"testing"
	"time"

	dspcore "github.com/cwbudde/algo-dsp/dsp/core"
	"github.com/cwbudde/algo-tape/config"
	"github.com/cwbudde/algo-tape/tape"
)

func testOptions(blockSizes ...int) renderOptions {
	return renderOptions{
		cfg:         tape.NewConfig(dspcore.WithSampleRate(48000)),
		params:      tape.NewDefaultParams(),
		blockSizes:  blockSizes,
		controlRate: 100,
	}
}

func TestParseKnobs(t *testing.T) {
	k, err := parseKnobs("loss=0.4, speed=1,low_cut=0")
	if err != nil {
		t.Fatalf("parseKnobs: %v", err)
	}
	if k.Loss != 0.4 || k.Speed != 1 || k.LowCut != 0 {
		t.Fatalf("unexpected knobs: %+v", k)
	}
	for _, bad := range []string{"loss", "volume=0.2", "loss=2", "speed=x"} {
		if _, err := parseKnobs(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestLoadMeter(t *testing.T) {
	m := newLoadMeter(48000)
	if avg, lo, hi := m.snapshot(); avg != 0 || lo != 0 || hi != 0 {
		t.Fatalf("empty meter should report zeros")
	}
	// 480 frames last 10 ms.
	m.record(5*time.Millisecond, 480)
	m.record(10*time.Millisecond, 480)
	avg, lo, hi := m.snapshot()
	if math.Abs(avg-0.75) > 1e-9 || math.Abs(lo-0.5) > 1e-9 || math.Abs(hi-1.0) > 1e-9 {
		t.Fatalf("avg=%f min=%f max=%f", avg, lo, hi)
	}
	m.reset()
	if m.count != 0 {
		t.Fatalf("reset did not clear")
	}
}

func TestGenerateSignal(t *testing.T) {
	for _, kind := range []string{"noise", "sine", "sweep", "impulse"} {
		l, r, err := generateSignal(kind, 4800, 48000, 0.5, 1)
		if err != nil {
			t.Fatalf("%s: %v", kind, err)
		}
		if len(l) != 4800 || len(r) != 4800 {
			t.Fatalf("%s: bad length", kind)
		}
		for i := range l {
			if math.Abs(float64(l[i])) > 0.5+1e-6 || math.Abs(float64(r[i])) > 0.5+1e-6 {
				t.Fatalf("%s: sample %d exceeds level", kind, i)
			}
		}
	}
	if _, _, err := generateSignal("pink", 10, 48000, 1, 1); err == nil {
		t.Fatalf("expected error for unknown signal")
	}
}

func TestRenderBlockSizesAgree(t *testing.T) {
	inL, inR, _ := generateSignal("noise", 24000, 48000, 0.5, 3)
	p := tape.NewDefaultParams()
	p.DegradeDepth = 0.5
	p.DegradeAmount = 0.5
	p.Spacing = 3

	a := testOptions(256)
	a.params = p
	b := testOptions(1, 7, 300, 64)
	b.params = p

	aL, aR, _, err := render(inL, inR, a)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	bL, bR, stats, err := render(inL, inR, b)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if stats.controlTicks != 50 {
		t.Fatalf("control ticks=%d want 50", stats.controlTicks)
	}
	for i := range aL {
		if math.Abs(float64(aL[i]-bL[i])) > 1e-5 || math.Abs(float64(aR[i]-bR[i])) > 1e-5 {
			t.Fatalf("frame %d differs: (%f,%f) vs (%f,%f)", i, aL[i], aR[i], bL[i], bR[i])
		}
	}
}

func TestRenderAlignTrimsLatency(t *testing.T) {
	inL, inR, _ := generateSignal("impulse", 2048, 48000, 1, 0)
	opts := testOptions(64)
	opts.params.DryWet = 0
	opts.align = true

	outL, outR, stats, err := render(inL, inR, opts)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if stats.latency == 0 {
		t.Fatalf("expected non-zero latency with the loss filter on")
	}
	if math.Abs(float64(outL[0])-1) > 1e-5 || math.Abs(float64(outR[0])-1) > 1e-5 {
		t.Fatalf("aligned dry impulse not at frame 0: %f %f", outL[0], outR[0])
	}
}

func TestRenderAppliesAutomation(t *testing.T) {
	const sr = 48000
	inL, inR, _ := generateSignal("noise", 14400, sr, 0.5, 9)
	opts := testOptions(128)
	dry := *opts.params
	dry.DryWet = 0
	opts.automation = []config.Change{{AtSec: 0.1, Params: dry}}

	outL, _, stats, err := render(inL, inR, opts)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	lat := stats.latency
	// After the change lands and the mix ramp settles, output is the
	// latency-compensated dry input.
	for i := 6000; i < len(outL); i++ {
		if math.Abs(float64(outL[i]-inL[i-lat])) > 1e-5 {
			t.Fatalf("frame %d: got %f want %f", i, outL[i], inL[i-lat])
		}
	}
	// Before it, the wet path is audible.
	var diff float64
	for i := 1000; i < 4000; i++ {
		diff += math.Abs(float64(outL[i] - inL[i-lat]))
	}
	if diff < 1 {
		t.Fatalf("wet path inaudible before automation: diff=%f", diff)
	}
}

func TestRenderRejectsBadInput(t *testing.T) {
	if _, _, _, err := render(make([]float32, 3), make([]float32, 4), testOptions(64)); err == nil {
		t.Fatalf("expected length mismatch error")
	}
	opts := testOptions(64)
	opts.cfg.MaxBlockSize = 0
	if _, _, _, err := render(make([]float32, 4), make([]float32, 4), opts); err == nil {
		t.Fatalf("expected config error")
	}
}
