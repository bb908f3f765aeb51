package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	dspcore "github.com/cwbudde/algo-dsp/dsp/core"
	"github.com/cwbudde/algo-tape/analysis"
	"github.com/cwbudde/algo-tape/config"
	"github.com/cwbudde/algo-tape/dsp"
	"github.com/cwbudde/algo-tape/internal/fitcommon"
	"github.com/cwbudde/algo-tape/tape"
)

func main() {
	sessionPath := flag.String("config", "", "Session JSON path (optional)")
	speeds := flag.String("speeds", "1.875,3.75,7.5,15,30", "Comma-separated tape speeds in ips")
	stage := flag.String("stage", "loss", "Response to show: loss (FIR + head bump) | pipeline (full wet path)")
	sampleRate := flag.Int("sample-rate", 48000, "Sample rate in Hz")
	fftSize := flag.Int("fft-size", 8192, "FFT size")
	dryPath := flag.String("dry", "", "Optional dry WAV for a measured transfer response")
	wetPath := flag.String("wet", "", "Optional tape WAV matching -dry")
	output := flag.String("output", "", "Optional JSON path for the responses")
	flag.Parse()

	cfg := tape.NewConfig(dspcore.WithSampleRate(float64(*sampleRate)))
	params := tape.NewDefaultParams()
	if *sessionPath != "" {
		s, err := config.LoadSession(*sessionPath, cfg)
		if err != nil {
			die("failed to load config: %v", err)
		}
		cfg = s.Config
		params = s.Params
	}
	speedList, err := parseSpeeds(*speeds)
	if err != nil {
		die("invalid -speeds: %v", err)
	}
	sr := int(cfg.SampleRate)

	fmt.Printf("Gap %.2fum  spacing %.2fum  thickness %.2fum  stage %s  %d Hz\n\n",
		params.Gap, params.Spacing, params.Thickness, *stage, sr)
	printHeader()

	all := map[string]analysis.Response{}
	for _, speed := range speedList {
		p := *params
		p.Speed = float32(speed)
		ir, err := impulseResponse(*stage, cfg, &p, *fftSize)
		if err != nil {
			die("%v", err)
		}
		resp, err := analysis.MagnitudeResponse(ir, sr, *fftSize)
		if err != nil {
			die("response: %v", err)
		}
		freq, gain := tape.HeadBump(lossParams(&p))
		printRow(fmt.Sprintf("%.3f ips", speed), analysis.BandLevels(resp, analysis.DefaultBands),
			fmt.Sprintf("bump %.0fHz %+.1fdB", freq, 20*math.Log10(gain)))
		all[strconv.FormatFloat(speed, 'f', -1, 64)] = resp
	}

	if *dryPath != "" || *wetPath != "" {
		if *dryPath == "" || *wetPath == "" {
			die("-dry and -wet must be given together")
		}
		measured, err := measuredResponse(*dryPath, *wetPath, sr, *fftSize)
		if err != nil {
			die("%v", err)
		}
		fmt.Println()
		printRow("measured", analysis.BandLevels(measured, analysis.DefaultBands), "")
		all["measured"] = measured
		for _, speed := range speedList {
			d, err := analysis.ResponseDistanceDB(measured, all[strconv.FormatFloat(speed, 'f', -1, 64)], 30, math.Min(20000, 0.45*float64(sr)))
			if err != nil {
				die("%v", err)
			}
			fmt.Printf("  distance to %.3f ips: %.2f dB RMS\n", speed, d)
		}
	}

	if *output != "" {
		if err := writeJSON(*output, all); err != nil {
			die("failed to write %s: %v", *output, err)
		}
		fmt.Printf("\nWrote %s\n", *output)
	}
}

func lossParams(p *tape.Params) tape.LossParams {
	return tape.LossParams{Speed: p.Speed, Spacing: p.Spacing, Thickness: p.Thickness, Gap: p.Gap}
}

// impulseResponse returns the first n samples of the requested stage's
// impulse response.
func impulseResponse(stage string, cfg tape.Config, p *tape.Params, n int) ([]float64, error) {
	switch stage {
	case "loss":
		taps := make([]float32, tape.LossFIROrder)
		tape.DesignFIR(taps, cfg.SampleRate, lossParams(p))
		bump := dsp.NewBiquad(tape.DesignHeadBump(cfg.SampleRate, lossParams(p)))
		ir := make([]float64, n)
		for i := range ir {
			var x float32
			if i < len(taps) {
				x = taps[i]
			}
			ir[i] = float64(bump.Process(x))
		}
		return ir, nil
	case "pipeline":
		wet := *p
		wet.DegradeEnabled = false
		wet.DryWet = 1
		proc, err := tape.NewTapeProcessor(cfg, &wet)
		if err != nil {
			return nil, err
		}
		proc.BindDelayBuffers(tape.NewDelayBuffers(cfg))
		l := make([]float32, n)
		r := make([]float32, n)
		l[0], r[0] = 1, 1
		proc.ProcessBlock(l, r, l, r)
		ir := make([]float64, n)
		for i := range ir {
			ir[i] = 0.5 * (float64(l[i]) + float64(r[i]))
		}
		return ir, nil
	default:
		return nil, fmt.Errorf("unknown stage %q (use loss|pipeline)", stage)
	}
}

func measuredResponse(dryPath, wetPath string, sampleRate, fftSize int) (analysis.Response, error) {
	load := func(path string) ([]float64, error) {
		st, err := fitcommon.ReadWAVStereo(path)
		if err != nil {
			return nil, err
		}
		st, err = fitcommon.ResampleStereo(st, sampleRate)
		if err != nil {
			return nil, err
		}
		return st.Mid(), nil
	}
	dry, err := load(dryPath)
	if err != nil {
		return analysis.Response{}, fmt.Errorf("dry: %w", err)
	}
	wet, err := load(wetPath)
	if err != nil {
		return analysis.Response{}, fmt.Errorf("wet: %w", err)
	}
	return analysis.TransferResponse(dry, wet, sampleRate, fftSize)
}

func parseSpeeds(raw string) ([]float64, error) {
	var out []float64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("invalid speed %q", part)
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no speeds in %q", raw)
	}
	return out, nil
}

func printHeader() {
	fmt.Printf("%-12s", "")
	for _, b := range analysis.DefaultBands {
		fmt.Printf(" %20s", b.Name)
	}
	fmt.Println()
}

func printRow(label string, levels []float64, extra string) {
	fmt.Printf("%-12s", label)
	for _, v := range levels {
		fmt.Printf(" %18.2fdB", v)
	}
	if extra != "" {
		fmt.Printf("  %s", extra)
	}
	fmt.Println()
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return os.WriteFile(path, b, 0o644)
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
