package main

import (
	"flag"
	"fmt"
	"os"

	dspcore "github.com/cwbudde/algo-dsp/dsp/core"
	"github.com/cwbudde/algo-tape/config"
	"github.com/cwbudde/algo-tape/internal/fitcommon"
	"github.com/cwbudde/algo-tape/tape"
)

func main() {
	dryPath := flag.String("dry", "reference/dry.wav", "Dry source WAV path")
	referencePath := flag.String("reference", "reference/tape.wav", "Reference WAV of the dry source recorded through tape")
	sessionPath := flag.String("config", "", "Base session JSON path (optional)")
	outputSession := flag.String("output-config", "fitted.json", "Path to write the fitted session JSON")
	reportPath := flag.String("report", "", "Optional report JSON path (default: <output-config>.report.json)")
	knobList := flag.String("knobs", "speed,gap,spacing,thickness", "Comma-separated knobs to fit: speed,gap,spacing,thickness,low_cut_hz,high_cut_hz")
	sampleRate := flag.Int("sample-rate", 48000, "Render/analysis sample rate")
	maxSeconds := flag.Float64("max-seconds", 10.0, "Use at most this many seconds of the recordings")
	fftSize := flag.Int("fft-size", 4096, "FFT size for transfer response estimation")
	fitLo := flag.Float64("fit-lo", 30.0, "Lower edge of the fitted band in Hz")
	fitHi := flag.Float64("fit-hi", 20000.0, "Upper edge of the fitted band in Hz")
	seed := flag.Int64("seed", 1, "Random seed")
	timeBudget := flag.Float64("time-budget", 120.0, "Optimization time budget in seconds")
	maxEvals := flag.Int("max-evals", 4000, "Maximum objective evaluations")
	reportEvery := flag.Int("report-every", 20, "Print progress every N evaluations")
	checkpointEvery := flag.Int("checkpoint-every", 1, "Write checkpoint every N best-score improvements")
	writeBest := flag.String("write-best-candidate", "", "Optional WAV path to write best candidate render")
	resume := flag.Bool("resume", true, "Resume from previous best_knobs report when available")
	workersRaw := flag.String("workers", "auto", "Parallel optimization workers (integer >= 1 or 'auto')")

	mayflyVariant := flag.String("mayfly-variant", "desma", "Mayfly variant: ma|desma|olce|eobbma|gsasma|mpma|aoblmoa")
	mayflyPop := flag.Int("mayfly-pop", 10, "Male and female population size per Mayfly run")
	mayflyRoundEvals := flag.Int("mayfly-round-evals", 240, "Target eval budget per Mayfly round")
	flag.Parse()

	if *maxEvals < 1 {
		die("max-evals must be >= 1")
	}
	if *timeBudget <= 0 {
		die("time-budget must be > 0")
	}
	*reportEvery = max(*reportEvery, 1)
	*checkpointEvery = max(*checkpointEvery, 1)
	*mayflyPop = max(*mayflyPop, 2)
	*mayflyRoundEvals = max(*mayflyRoundEvals, *mayflyPop*2)

	workers, err := fitcommon.ParseWorkers(*workersRaw)
	if err != nil {
		die("invalid -workers: %v", err)
	}
	defs, err := selectKnobs(*knobList)
	if err != nil {
		die("invalid -knobs: %v", err)
	}

	cfg := tape.NewConfig(dspcore.WithSampleRate(float64(*sampleRate)))
	baseParams := tape.NewDefaultParams()
	if *sessionPath != "" {
		s, err := config.LoadSession(*sessionPath, cfg)
		if err != nil {
			die("failed to load config: %v", err)
		}
		cfg = s.Config
		baseParams = s.Params
	}

	dry := loadInput(*dryPath, int(cfg.SampleRate), *maxSeconds)
	ref := loadInput(*referencePath, int(cfg.SampleRate), *maxSeconds)
	eval, err := newEvaluator(dry, ref, cfg, *fftSize, *fitLo, *fitHi)
	if err != nil {
		die("failed to prepare evaluation: %v", err)
	}

	initCand := initCandidate(baseParams, defs)
	if *resume {
		resumePath := *reportPath
		if resumePath == "" {
			resumePath = *outputSession + ".report.json"
		}
		if resumed, ok, err := loadCandidateFromReport(resumePath, defs, initCand); err != nil {
			fmt.Fprintf(os.Stderr, "resume skipped (%s): %v\n", resumePath, err)
		} else if ok {
			initCand = resumed
			fmt.Printf("Resumed candidate from %s\n", resumePath)
		}
	}

	fmt.Printf("Fitting %v against %s (%d frames at %d Hz, %d workers)\n",
		knobNames(defs), *referencePath, eval.dry.Frames(), int(cfg.SampleRate), workers)

	opt := &optimizationConfig{
		eval:             eval,
		baseParams:       baseParams,
		defs:             defs,
		initCandidate:    initCand,
		seed:             *seed,
		timeBudget:       *timeBudget,
		maxEvals:         *maxEvals,
		reportEvery:      *reportEvery,
		checkpointEvery:  *checkpointEvery,
		mayflyVariant:    *mayflyVariant,
		mayflyPop:        *mayflyPop,
		mayflyRoundEvals: *mayflyRoundEvals,
		workers:          workers,
		outputSession:    *outputSession,
		reportPath:       *reportPath,
		dryPath:          *dryPath,
		referencePath:    *referencePath,
		sessionPath:      *sessionPath,
		writeBest:        *writeBest,
	}
	res, err := runOptimization(opt)
	if err != nil {
		die("optimization failed: %v", err)
	}

	if err := writeOutputs(opt.info(res.elapsed, res.evals), defs, res.best, res.bestMetrics, baseParams, res.checkpoints); err != nil {
		die("failed to write outputs: %v", err)
	}
	if *writeBest != "" {
		if err := writeBestRender(*writeBest, eval, baseParams, defs, res.best); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write best candidate wav: %v\n", err)
		}
	}

	for i, d := range defs {
		fmt.Printf("  %-12s %.4f\n", d.Name, res.best.Vals[i])
	}
	fmt.Printf("Done evals=%d elapsed=%.1fs best_score=%.4f response=%.2fdB best_similarity=%.2f%%\n",
		res.evals, res.elapsed, res.bestMetrics.Score, res.bestMetrics.ResponseRMSEDB, res.bestMetrics.Similarity*100.0)
}

func loadInput(path string, sampleRate int, maxSeconds float64) *fitcommon.Stereo {
	st, err := fitcommon.ReadWAVStereo(path)
	if err != nil {
		die("failed to read %s: %v", path, err)
	}
	st, err = fitcommon.ResampleStereo(st, sampleRate)
	if err != nil {
		die("failed to resample %s: %v", path, err)
	}
	if maxSeconds > 0 {
		if n := int(maxSeconds * float64(sampleRate)); n < st.Frames() {
			st = &fitcommon.Stereo{L: st.L[:n], R: st.R[:n], SampleRate: st.SampleRate}
		}
	}
	return st
}

func knobNames(defs []knobDef) []string {
	out := make([]string, len(defs))
	for i, d := range defs {
		out[i] = d.Name
	}
	return out
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
