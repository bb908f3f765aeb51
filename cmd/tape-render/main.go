package main

import (
	"flag"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	dspcore "github.com/cwbudde/algo-dsp/dsp/core"
	"github.com/cwbudde/algo-tape/config"
	"github.com/cwbudde/algo-tape/internal/fitcommon"
	"github.com/cwbudde/algo-tape/tape"
)

type renderOptions struct {
	cfg         tape.Config
	params      *tape.Params
	automation  []config.Change
	blockSizes  []int
	controlRate float64
	logEvery    int
	align       bool
}

type renderStats struct {
	frames       int
	blocks       int
	controlTicks int
	latency      int
	avgLoad      float64
	maxLoad      float64
}

func main() {
	input := flag.String("input", "", "Input WAV path (empty: generate -signal)")
	signal := flag.String("signal", "noise", "Generated signal when no input: noise|sine|sweep|impulse")
	level := flag.Float64("level", 0.5, "Generated signal peak level")
	duration := flag.Float64("duration", 5.0, "Generated signal duration in seconds")
	sampleRate := flag.Int("sample-rate", 48000, "Processing sample rate in Hz")
	sessionPath := flag.String("config", "", "Session JSON path (optional)")
	knobs := flag.String("knobs", "", "Knob positions, e.g. loss=0.4,speed=0.3,low_cut=0.1")
	dryWet := flag.Float64("dry-wet", math.NaN(), "Dry/wet override in [0,1]")
	seed := flag.Uint64("seed", tape.DefaultSeed, "Degradation noise seed")
	blocks := flag.String("block-sizes", "256", "Comma-separated host block sizes, cycled per callback")
	controlRate := flag.Float64("control-rate", 100, "Parameter update rate in Hz")
	logEvery := flag.Int("log-every", 50, "Log status every N control ticks (0 disables)")
	tail := flag.Float64("tail", 0.25, "Silence appended after the input in seconds")
	align := flag.Bool("align", false, "Trim the wet path latency from the output")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	output := flag.String("output", "output.wav", "Output WAV file path")
	flag.Parse()

	if err := initLogger(*logLevel); err != nil {
		die("%v", err)
	}
	blockSizes, err := fitcommon.ParseBlockSizes(*blocks)
	if err != nil {
		die("invalid -block-sizes: %v", err)
	}
	if *controlRate <= 0 {
		die("control-rate must be > 0")
	}

	cfg := tape.NewConfig(dspcore.WithSampleRate(float64(*sampleRate)))
	cfg.Seed = *seed
	opts := renderOptions{
		cfg:         cfg,
		params:      tape.NewDefaultParams(),
		blockSizes:  blockSizes,
		controlRate: *controlRate,
		logEvery:    *logEvery,
		align:       *align,
	}
	if *sessionPath != "" {
		s, err := config.LoadSession(*sessionPath, cfg)
		if err != nil {
			die("failed to load config %q: %v", *sessionPath, err)
		}
		opts.cfg = s.Config
		opts.params = s.Params
		opts.automation = s.Automation
	}
	if *knobs != "" {
		k, err := parseKnobs(*knobs)
		if err != nil {
			die("invalid -knobs: %v", err)
		}
		config.MapKnobs(opts.params, k)
		logger.Debug("knobs", "positions", k.String())
	}
	if !math.IsNaN(*dryWet) {
		v := float32(*dryWet)
		if err := config.ApplySetting(opts.params, &config.ParamSetting{DryWet: &v}); err != nil {
			die("invalid -dry-wet: %v", err)
		}
	}

	sr := int(opts.cfg.SampleRate)
	var inL, inR []float32
	if *input != "" {
		st, err := fitcommon.ReadWAVStereo(*input)
		if err != nil {
			die("failed to read input: %v", err)
		}
		st, err = fitcommon.ResampleStereo(st, sr)
		if err != nil {
			die("failed to resample input: %v", err)
		}
		inL, inR = st.L, st.R
	} else {
		frames := max(1, int(*duration*float64(sr)))
		inL, inR, err = generateSignal(*signal, frames, opts.cfg.SampleRate, float32(*level), opts.cfg.Seed)
		if err != nil {
			die("%v", err)
		}
	}
	if pad := int(*tail * float64(sr)); pad > 0 {
		inL = append(inL, make([]float32, pad)...)
		inR = append(inR, make([]float32, pad)...)
	}

	src := *input
	if src == "" {
		src = *signal
	}
	fmt.Printf("Rendering %s (%.2fs) at %d Hz, blocks %v, control %.0f Hz...\n",
		src, float64(len(inL))/float64(sr), sr, blockSizes, *controlRate)

	start := time.Now()
	outL, outR, stats, err := render(inL, inR, opts)
	if err != nil {
		die("render failed: %v", err)
	}

	if err := fitcommon.WriteWAVStereo(*output, outL, outR, sr); err != nil {
		die("failed to write output: %v", err)
	}
	fmt.Printf("Wrote %s: %d frames, %d blocks, %d control ticks, latency %d samples\n",
		*output, stats.frames, stats.blocks, stats.controlTicks, stats.latency)
	fmt.Printf("CPU load avg %.2f%% max %.2f%%, wall %.2fs, output RMS %.1f dBFS\n",
		stats.avgLoad*100, stats.maxLoad*100, time.Since(start).Seconds(),
		20*math.Log10(fitcommon.StereoRMS(outL, outR)+1e-12))
}

// render drives the processor the way a host does: audio callbacks of the
// configured sizes, interleaved with parameter updates at control rate.
func render(inL, inR []float32, opts renderOptions) ([]float32, []float32, renderStats, error) {
	var stats renderStats
	if len(inL) != len(inR) {
		return nil, nil, stats, fmt.Errorf("left/right length mismatch")
	}
	if len(opts.blockSizes) == 0 {
		opts.blockSizes = []int{opts.cfg.MaxBlockSize}
	}
	params := *opts.params

	proc, err := tape.NewTapeProcessor(opts.cfg, &params)
	if err != nil {
		return nil, nil, stats, err
	}
	proc.BindDelayBuffers(tape.NewDelayBuffers(opts.cfg))
	stats.latency = proc.LatencySamples()

	n := len(inL)
	outL := make([]float32, n)
	outR := make([]float32, n)

	sr := opts.cfg.SampleRate
	controlPeriod := max(1, int(math.Round(sr/opts.controlRate)))
	nextControl := 0
	nextChange := 0
	audioLoad := newLoadMeter(sr)
	controlLoad := newLoadMeter(opts.controlRate)
	overall := newLoadMeter(sr)

	for pos, bi := 0, 0; pos < n; bi++ {
		if pos >= nextControl {
			controlLoad.blockStart()
			for nextChange < len(opts.automation) && opts.automation[nextChange].AtSec*sr <= float64(pos) {
				params = opts.automation[nextChange].Params
				logger.Debug("automation", "at_sec", opts.automation[nextChange].AtSec)
				nextChange++
			}
			proc.UpdateParams(&params)
			controlLoad.blockEnd(1)
			stats.controlTicks++
			nextControl += controlPeriod

			if opts.logEvery > 0 && stats.controlTicks%opts.logEvery == 0 {
				logStatus(proc, audioLoad, controlLoad, float64(pos)/sr)
				audioLoad.reset()
				controlLoad.reset()
			}
		}

		size := min(opts.blockSizes[bi%len(opts.blockSizes)], n-pos)
		audioLoad.blockStart()
		proc.ProcessBlock(inL[pos:pos+size], inR[pos:pos+size], outL[pos:pos+size], outR[pos:pos+size])
		elapsed := time.Since(audioLoad.start)
		audioLoad.record(elapsed, size)
		overall.record(elapsed, size)

		pos += size
		stats.blocks++
	}
	stats.frames = n
	stats.avgLoad, _, stats.maxLoad = overall.snapshot()

	if opts.align && stats.latency > 0 {
		lat := min(stats.latency, n)
		outL = append(outL[lat:], make([]float32, lat)...)
		outR = append(outR[lat:], make([]float32, lat)...)
	}
	return outL, outR, stats, nil
}

func logStatus(proc *tape.TapeProcessor, audio, control *loadMeter, atSec float64) {
	p := proc.Params()
	avg, lo, hi := audio.snapshot()
	cavg, clo, chi := control.snapshot()
	logger.Info("status",
		"t", fmt.Sprintf("%.2f", atSec),
		"low_cut_hz", p.LowCutHz,
		"high_cut_hz", p.HighCutHz,
		"speed_ips", p.Speed,
		"gap", p.Gap,
		"spacing", p.Spacing,
		"thickness", p.Thickness,
		"deg_depth", p.DegradeDepth,
		"deg_amount", p.DegradeAmount,
		"deg_variance", p.DegradeVariance,
		"deg_envelope", p.DegradeEnvelope,
		"dry_wet", p.DryWet,
		"loss_fading", proc.LossFading(),
		"cpu_avg_pct", pct(avg),
		"cpu_min_pct", pct(lo),
		"cpu_max_pct", pct(hi),
		"main_avg_pct", pct(cavg),
		"main_min_pct", pct(clo),
		"main_max_pct", pct(chi),
	)
}

func pct(v float64) string { return fmt.Sprintf("%.3f", v*100) }

// parseKnobs parses "name=value" pairs into knob positions.
func parseKnobs(raw string) (config.Knobs, error) {
	var k config.Knobs
	fields := map[string]*float32{
		"low_cut":          &k.LowCut,
		"high_cut":         &k.HighCut,
		"loss":             &k.Loss,
		"speed":            &k.Speed,
		"degrade_depth":    &k.DegradeDepth,
		"degrade_amount":   &k.DegradeAmount,
		"degrade_variance": &k.DegradeVariance,
		"degrade_envelope": &k.DegradeEnvelope,
	}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, val, ok := strings.Cut(part, "=")
		if !ok {
			return config.Knobs{}, fmt.Errorf("expected name=value, got %q", part)
		}
		dst, ok := fields[strings.TrimSpace(name)]
		if !ok {
			return config.Knobs{}, fmt.Errorf("unknown knob %q", name)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(val), 32)
		if err != nil || v < 0 || v > 1 {
			return config.Knobs{}, fmt.Errorf("knob %s must be a number in [0,1], got %q", name, val)
		}
		*dst = float32(v)
	}
	return k, nil
}
