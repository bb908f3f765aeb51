package main

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	dspcore "github.com/cwbudde/algo-dsp/dsp/core"
	"github.com/cwbudde/algo-tape/config"
	"github.com/cwbudde/algo-tape/internal/fitcommon"
	"github.com/cwbudde/algo-tape/tape"
)

type runReport struct {
	DryPath         string             `json:"dry_path"`
	ReferencePath   string             `json:"reference_path"`
	SessionPath     string             `json:"session_path"`
	OutputSession   string             `json:"output_session"`
	SampleRate      int                `json:"sample_rate"`
	DurationSec     float64            `json:"elapsed_seconds"`
	Evaluations     int                `json:"evaluations"`
	MayflyVariant   string             `json:"mayfly_variant"`
	BestScore       float64            `json:"best_score"`
	BestSimilarity  float64            `json:"best_similarity"`
	BestMetrics     fitMetrics         `json:"best_metrics"`
	BestKnobs       map[string]float64 `json:"best_knobs"`
	BestPositions   map[string]float64 `json:"best_positions"`
	CheckpointCount int                `json:"checkpoint_count"`
}

type runInfo struct {
	dryPath       string
	referencePath string
	sessionPath   string
	outputSession string
	reportPath    string
	sampleRate    int
	elapsed       float64
	evals         int
	variant       string
}

func writeOutputs(info runInfo, defs []knobDef, best candidate, bestM fitMetrics, base *tape.Params, checkpoints int) error {
	p := applyCandidate(base, defs, best)
	// The fitted session keeps the caller's degradation and mix settings.
	p.DegradeEnabled = base.DegradeEnabled
	p.DryWet = base.DryWet
	if err := writeSessionJSON(info.outputSession, p); err != nil {
		return err
	}

	knobs := make(map[string]float64, len(defs))
	positions := make(map[string]float64, len(defs))
	norm := toNormalized(best, defs)
	for i, d := range defs {
		knobs[d.Name] = best.Vals[i]
		positions[d.Name] = norm[i]
	}
	rep := runReport{
		DryPath:         info.dryPath,
		ReferencePath:   info.referencePath,
		SessionPath:     info.sessionPath,
		OutputSession:   info.outputSession,
		SampleRate:      info.sampleRate,
		DurationSec:     info.elapsed,
		Evaluations:     info.evals,
		MayflyVariant:   info.variant,
		BestScore:       bestM.Score,
		BestSimilarity:  bestM.Similarity,
		BestMetrics:     bestM,
		BestKnobs:       knobs,
		BestPositions:   positions,
		CheckpointCount: checkpoints,
	}

	reportPath := info.reportPath
	if reportPath == "" {
		reportPath = info.outputSession + ".report.json"
	}
	return writeJSON(reportPath, rep)
}

func writeBestRender(path string, e *evaluator, base *tape.Params, defs []knobDef, best candidate) error {
	out, err := e.render(applyCandidate(base, defs, best))
	if err != nil {
		return err
	}
	return fitcommon.WriteWAVStereo(path, out.L, out.R, out.SampleRate)
}

// writeSessionJSON writes p in the format config.LoadJSON reads.
func writeSessionJSON(path string, p *tape.Params) error {
	f := config.ParamSetting{
		LowCutHz:        &p.LowCutHz,
		HighCutHz:       &p.HighCutHz,
		FiltersEnabled:  &p.FiltersEnabled,
		MakeupEnabled:   &p.MakeupEnabled,
		Speed:           &p.Speed,
		Gap:             &p.Gap,
		Spacing:         &p.Spacing,
		Thickness:       &p.Thickness,
		LossEnabled:     &p.LossEnabled,
		DegradeDepth:    &p.DegradeDepth,
		DegradeAmount:   &p.DegradeAmount,
		DegradeVariance: &p.DegradeVariance,
		DegradeEnvelope: &p.DegradeEnvelope,
		DegradeEnabled:  &p.DegradeEnabled,
		DegradePoint1x:  &p.DegradePoint1x,
		AzimuthDeg:      &p.AzimuthDeg,
		AzimuthEnabled:  &p.AzimuthEnabled,
		DryWet:          &p.DryWet,
	}
	return writeJSON(path, f)
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

func loadCandidateFromReport(path string, defs []knobDef, fallback candidate) (candidate, bool, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fallback, false, nil
		}
		return fallback, false, err
	}
	var rep runReport
	if err := json.Unmarshal(b, &rep); err != nil {
		return fallback, false, err
	}
	if len(rep.BestKnobs) == 0 {
		return fallback, false, nil
	}

	vals := make([]float64, len(fallback.Vals))
	copy(vals, fallback.Vals)
	updated := false
	for i, d := range defs {
		if v, ok := rep.BestKnobs[d.Name]; ok {
			vals[i] = dspcore.Clamp(v, d.Min, d.Max)
			updated = true
		}
	}
	if !updated {
		return fallback, false, nil
	}
	return candidate{Vals: vals}, true, nil
}
