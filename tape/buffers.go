package tape

import "github.com/cwbudde/algo-tape/dsp"

// DelayBuffers owns the large delay lines used by the pipeline. Stages only
// hold references; a nil line makes the affected channel pass through.
type DelayBuffers struct {
	MakeupL, MakeupR   *dsp.DelayLine
	DryL, DryR         *dsp.DelayLine
	AzimuthL, AzimuthR *dsp.DelayLine
}

// NewDelayBuffers allocates every delay line at the capacities in cfg.
func NewDelayBuffers(cfg Config) *DelayBuffers {
	return &DelayBuffers{
		MakeupL:  dsp.NewDelayLine(cfg.MakeupDelaySamples),
		MakeupR:  dsp.NewDelayLine(cfg.MakeupDelaySamples),
		DryL:     dsp.NewDelayLine(cfg.DryDelaySamples),
		DryR:     dsp.NewDelayLine(cfg.DryDelaySamples),
		AzimuthL: dsp.NewDelayLine(cfg.AzimuthDelaySamples),
		AzimuthR: dsp.NewDelayLine(cfg.AzimuthDelaySamples),
	}
}

// Reset clears every allocated line.
func (b *DelayBuffers) Reset() {
	for _, d := range []*dsp.DelayLine{b.MakeupL, b.MakeupR, b.DryL, b.DryR, b.AzimuthL, b.AzimuthR} {
		if d != nil {
			d.Reset()
		}
	}
}
