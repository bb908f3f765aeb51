package tape

import (
	"fmt"
	"sync/atomic"

	"github.com/cwbudde/algo-tape/dsp"
)

// Dry/wet changes ramp over this many samples.
const mixRampSamples = 256

// TapeProcessor runs the wet path (input filters, degradation, loss filter,
// azimuth) against a latency-compensated dry copy and blends the two.
//
// ProcessBlock must be called from a single audio goroutine and
// UpdateParams from a single control goroutine. The two never block each
// other.
type TapeProcessor struct {
	cfg Config

	inputFilters *InputFilters
	degrade      *Degrade
	loss         *LossFilter
	azimuth      *Azimuth

	dryDelay [2]*dsp.DelayLine
	dryL     []float32
	dryR     []float32
	wetL     []float32
	wetR     []float32

	dryWet dsp.AtomicFloat32
	mix    *dsp.LinearSmoother
	params atomic.Pointer[Params]
}

// NewTapeProcessor validates cfg and builds the pipeline with params
// applied (defaults when nil). Delay lines are bound separately with
// BindDelayBuffers; until then the delayed paths pass through.
func NewTapeProcessor(cfg Config, params *Params) (*TapeProcessor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("tape processor: %w", err)
	}
	if params == nil {
		params = NewDefaultParams()
	}

	p := &TapeProcessor{
		cfg:          cfg,
		inputFilters: NewInputFilters(cfg.SampleRate, cfg.MaxBlockSize),
		degrade:      NewDegrade(cfg.SampleRate, cfg.Seed),
		loss:         NewLossFilter(cfg.SampleRate),
		azimuth:      NewAzimuth(cfg.SampleRate),
		dryL:         make([]float32, cfg.MaxBlockSize),
		dryR:         make([]float32, cfg.MaxBlockSize),
		wetL:         make([]float32, cfg.MaxBlockSize),
		wetR:         make([]float32, cfg.MaxBlockSize),
		mix:          dsp.NewLinearSmoother(mixRampSamples, 1),
	}
	p.UpdateParams(params)
	p.Reset()
	return p, nil
}

// Config returns the construction settings.
func (p *TapeProcessor) Config() Config { return p.cfg }

// BindDelayBuffers hands the externally owned delay lines to the stages.
// A nil b unbinds everything. Bind before audio starts.
func (p *TapeProcessor) BindDelayBuffers(b *DelayBuffers) {
	if b == nil {
		b = &DelayBuffers{}
	}
	p.inputFilters.SetDelayLines(b.MakeupL, b.MakeupR)
	p.azimuth.SetDelayLines(b.AzimuthL, b.AzimuthR)
	p.dryDelay[0] = b.DryL
	p.dryDelay[1] = b.DryR

	// Azimuth targets are clamped against the bound capacity.
	if snap := p.params.Load(); snap != nil {
		p.azimuth.SetAzimuthAngle(snap.AzimuthDeg, snap.Speed)
	}
}

// UpdateParams fans a snapshot out to the stages. Control context.
func (p *TapeProcessor) UpdateParams(params *Params) {
	snap := *params

	p.inputFilters.SetLowCut(snap.LowCutHz)
	p.inputFilters.SetHighCut(snap.HighCutHz)
	p.inputFilters.SetMakeupEnabled(snap.MakeupEnabled)
	p.inputFilters.SetEnabled(snap.FiltersEnabled)

	p.degrade.SetPoint1x(snap.DegradePoint1x)
	p.degrade.SetParameters(snap.DegradeDepth, snap.DegradeAmount,
		snap.DegradeVariance, snap.DegradeEnvelope, snap.DegradeEnabled)

	p.loss.SetParameters(snap.Speed, snap.Spacing, snap.Thickness, snap.Gap)
	p.loss.SetEnabled(snap.LossEnabled)

	p.azimuth.SetAzimuthAngle(snap.AzimuthDeg, snap.Speed)
	p.azimuth.SetEnabled(snap.AzimuthEnabled)

	p.dryWet.Store(clampUnit(snap.DryWet))
	p.params.Store(&snap)
}

// Params returns a copy of the last snapshot passed to UpdateParams.
func (p *TapeProcessor) Params() Params { return *p.params.Load() }

// LatencySamples returns the current wet path latency.
func (p *TapeProcessor) LatencySamples() int {
	return p.inputFilters.LatencySamples() +
		p.degrade.LatencySamples() +
		p.loss.LatencySamples() +
		p.azimuth.LatencySamples()
}

// LossFading reports whether the loss filter is crossfading to a new design.
func (p *TapeProcessor) LossFading() bool { return p.loss.Fading() }

// Reset clears all audio state and jumps every smoothed value to its
// target. Call only while no audio is being processed.
func (p *TapeProcessor) Reset() {
	p.inputFilters.Reset()
	p.degrade.Reset()
	p.loss.Reset()
	p.azimuth.Reset()
	for _, d := range p.dryDelay {
		if d != nil {
			d.Reset()
		}
	}
	p.mix.SetCurrent(p.dryWet.Load())
}

// ProcessBlock processes one stereo block of any length. Input and output
// slices may alias; all four must have the same length.
func (p *TapeProcessor) ProcessBlock(inL, inR, outL, outR []float32) {
	n := len(inL)
	for off := 0; off < n; off += p.cfg.MaxBlockSize {
		end := min(off+p.cfg.MaxBlockSize, n)
		p.processChunk(inL[off:end], inR[off:end], outL[off:end], outR[off:end])
	}
}

func (p *TapeProcessor) processChunk(inL, inR, outL, outR []float32) {
	n := len(inL)
	dryL, dryR := p.dryL[:n], p.dryR[:n]
	wetL, wetR := p.wetL[:n], p.wetR[:n]
	copy(dryL, inL)
	copy(dryR, inR)
	copy(wetL, inL)
	copy(wetR, inR)

	p.inputFilters.ProcessBlock(wetL, wetR)
	p.degrade.ProcessBlock(wetL, wetR)
	p.loss.ProcessBlock(wetL, wetR, wetL, wetR)
	p.azimuth.ProcessBlock(wetL, wetR, wetL, wetR)

	p.compensateLatency(dryL, dryR)
	p.inputFilters.ProcessBlockMakeup(wetL, wetR)

	if target := p.dryWet.Load(); target != p.mix.Target() {
		p.mix.SetTarget(target)
	}
	for i := 0; i < n; i++ {
		m := p.mix.Next()
		outL[i] = dryL[i]*(1-m) + wetL[i]*m
		outR[i] = dryR[i]*(1-m) + wetR[i]*m
	}
}

// compensateLatency delays the dry copy and the makeup path by the wet
// path latency.
func (p *TapeProcessor) compensateLatency(dryL, dryR []float32) {
	latency := float32(p.LatencySamples())
	p.inputFilters.SetMakeupDelay(latency)

	bufs := [2][]float32{dryL, dryR}
	for ch, d := range p.dryDelay {
		if d == nil {
			continue
		}
		d.SetDelay(latency)
		buf := bufs[ch]
		for i, x := range buf {
			buf[i] = d.Process(x)
		}
	}
}
