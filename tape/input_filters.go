package tape

import (
	"sync/atomic"

	dspcore "github.com/cwbudde/algo-dsp/dsp/core"
	"github.com/cwbudde/algo-tape/dsp"
)

const (
	minLowCutHz = 20.0
	// Cutoff changes ramp geometrically over this many blocks.
	cutoffRampBlocks = 8
)

// InputFilters splits each channel into a midband that continues down the
// wet path and the removed low and high bands, which are kept for the
// makeup path.
type InputFilters struct {
	sampleRate float64

	enabled       atomic.Bool
	makeupEnabled atomic.Bool
	pendingLow    dsp.AtomicFloat32
	pendingHigh   dsp.AtomicFloat32

	lowSmooth  *dsp.MultiplicativeSmoother
	highSmooth *dsp.MultiplicativeSmoother
	lowCut     [2]*dsp.LinkwitzRiley
	highCut    [2]*dsp.LinkwitzRiley

	makeupDelay [2]*dsp.DelayLine
	makeup      [2][]float32

	// Audio side: whether the previous block ran the filters and the makeup.
	running       bool
	makeupRunning bool
}

// NewInputFilters creates the stage with a 20 Hz low cut and a 22 kHz high
// cut (clamped below Nyquist). Blocks passed to it must not exceed
// maxBlockSize samples.
func NewInputFilters(sampleRate float64, maxBlockSize int) *InputFilters {
	f := &InputFilters{sampleRate: sampleRate}
	f.SetLowCut(minLowCutHz)
	f.SetHighCut(22000)
	low, high := f.targets()
	f.lowSmooth = dsp.NewMultiplicativeSmoother(cutoffRampBlocks, low)
	f.highSmooth = dsp.NewMultiplicativeSmoother(cutoffRampBlocks, high)
	for ch := 0; ch < 2; ch++ {
		f.lowCut[ch] = dsp.NewLinkwitzRiley(sampleRate, float64(low))
		f.highCut[ch] = dsp.NewLinkwitzRiley(sampleRate, float64(high))
		f.makeup[ch] = make([]float32, maxBlockSize)
	}
	return f
}

// SetDelayLines binds the makeup delay lines. A nil line disables makeup
// for that channel.
func (f *InputFilters) SetDelayLines(left, right *dsp.DelayLine) {
	f.makeupDelay[0] = left
	f.makeupDelay[1] = right
}

// SetEnabled switches the stage on or off.
func (f *InputFilters) SetEnabled(enabled bool) { f.enabled.Store(enabled) }

// SetMakeupEnabled switches re-summation of the removed bands.
func (f *InputFilters) SetMakeupEnabled(enabled bool) { f.makeupEnabled.Store(enabled) }

// SetLowCut sets the low cut in Hz, floored at 20 Hz.
func (f *InputFilters) SetLowCut(hz float32) {
	if !(hz > minLowCutHz) {
		hz = minLowCutHz
	}
	f.pendingLow.Store(hz)
}

// SetHighCut sets the high cut in Hz, clamped to 0.48 * sampleRate.
func (f *InputFilters) SetHighCut(hz float32) {
	f.pendingHigh.Store(float32(dspcore.Clamp(float64(hz), minLowCutHz, 0.48*f.sampleRate)))
}

// SetMakeupDelay sets the makeup path delay. Audio context only.
func (f *InputFilters) SetMakeupDelay(samples float32) {
	for _, d := range f.makeupDelay {
		if d != nil {
			d.SetDelay(samples)
		}
	}
}

// LatencySamples reports the stage latency, which is zero.
func (f *InputFilters) LatencySamples() int { return 0 }

func (f *InputFilters) targets() (low, high float32) {
	high = f.pendingHigh.Load()
	low = f.pendingLow.Load()
	if low > high {
		low = high
	}
	return low, high
}

func (f *InputFilters) updateCutoffs() {
	low, high := f.targets()
	if low != f.lowSmooth.Target() {
		f.lowSmooth.SetTarget(low)
	}
	if high != f.highSmooth.Target() {
		f.highSmooth.SetTarget(high)
	}
	if f.lowSmooth.IsSmoothing() {
		v := float64(f.lowSmooth.Next())
		f.lowCut[0].SetCutoff(v)
		f.lowCut[1].SetCutoff(v)
	}
	if f.highSmooth.IsSmoothing() {
		v := float64(f.highSmooth.Next())
		f.highCut[0].SetCutoff(v)
		f.highCut[1].SetCutoff(v)
	}
}

// ProcessBlock replaces each sample with its midband and stores the removed
// bands for ProcessBlockMakeup. No-op when disabled. Filter state is
// cleared when the stage comes back on.
func (f *InputFilters) ProcessBlock(left, right []float32) {
	if !f.enabled.Load() {
		f.running = false
		return
	}
	if !f.running {
		for ch := 0; ch < 2; ch++ {
			f.lowCut[ch].Reset()
			f.highCut[ch].Reset()
		}
		f.running = true
	}
	f.updateCutoffs()

	bufs := [2][]float32{left, right}
	for ch, buf := range bufs {
		lowCut, highCut := f.lowCut[ch], f.highCut[ch]
		makeup := f.makeup[ch]
		for i, x := range buf {
			trashLow, pass := lowCut.ProcessSample(x)
			mid, trashHigh := highCut.ProcessSample(pass)
			buf[i] = mid
			makeup[i] = trashLow + trashHigh
		}
		lowCut.SnapToZero()
		highCut.SnapToZero()
	}
}

// ProcessBlockMakeup adds the removed bands back, delayed by the makeup
// delay. No-op unless both the stage and makeup are enabled. The makeup
// delay lines start empty each time makeup resumes.
func (f *InputFilters) ProcessBlockMakeup(left, right []float32) {
	if !f.enabled.Load() || !f.makeupEnabled.Load() {
		f.makeupRunning = false
		return
	}
	if !f.makeupRunning {
		f.clearMakeupLines()
		f.makeupRunning = true
	}
	bufs := [2][]float32{left, right}
	for ch, buf := range bufs {
		d := f.makeupDelay[ch]
		if d == nil {
			continue
		}
		makeup := f.makeup[ch]
		for i := range buf {
			buf[i] += d.Process(makeup[i])
		}
	}
}

// Reset jumps to the pending cutoffs and clears filter state.
func (f *InputFilters) Reset() {
	low, high := f.targets()
	f.lowSmooth.SetCurrent(low)
	f.highSmooth.SetCurrent(high)
	for ch := 0; ch < 2; ch++ {
		f.lowCut[ch].SetCutoff(float64(low))
		f.highCut[ch].SetCutoff(float64(high))
		f.lowCut[ch].Reset()
		f.highCut[ch].Reset()
		clear(f.makeup[ch])
	}
	f.clearMakeupLines()
}

func (f *InputFilters) clearMakeupLines() {
	for _, d := range f.makeupDelay {
		if d != nil {
			d.Reset()
		}
	}
}
