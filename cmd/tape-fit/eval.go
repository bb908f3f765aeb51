package main

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-tape/analysis"
	"github.com/cwbudde/algo-tape/internal/fitcommon"
	"github.com/cwbudde/algo-tape/tape"
)

type fitMetrics struct {
	ResponseRMSEDB float64          `json:"response_rmse_db"`
	Compare        analysis.Metrics `json:"compare"`
	Score          float64          `json:"score"`
	Similarity     float64          `json:"similarity"`
}

// evaluator scores parameter snapshots by rendering the dry recording and
// comparing the result against the reference tape recording.
type evaluator struct {
	cfg     tape.Config
	dry     *fitcommon.Stereo
	dryMid  []float64
	refMid  []float64
	refResp analysis.Response
	fftSize int
	loHz    float64
	hiHz    float64
}

func newEvaluator(dry, ref *fitcommon.Stereo, cfg tape.Config, fftSize int, loHz, hiHz float64) (*evaluator, error) {
	n := min(dry.Frames(), ref.Frames())
	if n < fftSize {
		return nil, fmt.Errorf("recordings too short: %d frames, need %d", n, fftSize)
	}
	if hiHz <= loHz {
		return nil, fmt.Errorf("fit band [%g,%g] Hz is empty", loHz, hiHz)
	}
	dry = &fitcommon.Stereo{L: dry.L[:n], R: dry.R[:n], SampleRate: dry.SampleRate}
	ref = &fitcommon.Stereo{L: ref.L[:n], R: ref.R[:n], SampleRate: ref.SampleRate}

	e := &evaluator{
		cfg:     cfg,
		dry:     dry,
		dryMid:  dry.Mid(),
		refMid:  ref.Mid(),
		fftSize: fftSize,
		loHz:    loHz,
		hiHz:    hiHz,
	}
	resp, err := analysis.TransferResponse(e.dryMid, e.refMid, int(cfg.SampleRate), fftSize)
	if err != nil {
		return nil, fmt.Errorf("reference response: %w", err)
	}
	e.refResp = resp
	return e, nil
}

// render processes the dry recording with p and removes the wet latency.
func (e *evaluator) render(p *tape.Params) (*fitcommon.Stereo, error) {
	proc, err := tape.NewTapeProcessor(e.cfg, p)
	if err != nil {
		return nil, err
	}
	proc.BindDelayBuffers(tape.NewDelayBuffers(e.cfg))
	lat := proc.LatencySamples()

	n := e.dry.Frames()
	inL := append(append([]float32(nil), e.dry.L...), make([]float32, lat)...)
	inR := append(append([]float32(nil), e.dry.R...), make([]float32, lat)...)
	proc.ProcessBlock(inL, inR, inL, inR)
	return &fitcommon.Stereo{L: inL[lat : lat+n], R: inR[lat : lat+n], SampleRate: int(e.cfg.SampleRate)}, nil
}

func (e *evaluator) evaluate(p *tape.Params) (fitMetrics, error) {
	out, err := e.render(p)
	if err != nil {
		return fitMetrics{}, err
	}
	return e.score(out.Mid())
}

func (e *evaluator) score(candMid []float64) (fitMetrics, error) {
	sr := int(e.cfg.SampleRate)
	resp, err := analysis.TransferResponse(e.dryMid, candMid, sr, e.fftSize)
	if err != nil {
		return fitMetrics{}, err
	}
	dist, err := analysis.ResponseDistanceDB(e.refResp, resp, e.loHz, e.hiHz)
	if err != nil {
		return fitMetrics{}, err
	}

	cmp, err := analysis.Compare(e.refMid, candMid, sr)
	if err != nil {
		return fitMetrics{}, err
	}
	m := fitMetrics{
		ResponseRMSEDB: dist,
		Compare:        cmp,
	}
	m.Score = 0.7*math.Min(1, dist/24.0) + 0.3*m.Compare.Score
	m.Similarity = math.Exp(-4.0 * m.Score)
	return m, nil
}
