package tape

import (
	"math"
	"sync/atomic"

	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-tape/dsp"
)

const (
	// LossFIROrder is the number of FIR taps and frequency bins.
	LossFIROrder = 70
	// LossFadeLength is the coefficient crossfade length in samples.
	LossFadeLength = 1024

	lossLatency      = LossFIROrder / 2
	lossParamEpsilon = 0.01
	headBumpQ        = 2.0
	metersPerInch    = 0.0254
	minSpeedIps      = 0.1

	// maxPipelineLatency is the sum of the largest latencies any stage reports.
	maxPipelineLatency = lossLatency
)

// LossParams are the physical inputs of the loss model. Speed is in inches
// per second, the rest in microns.
type LossParams struct {
	Speed     float32
	Spacing   float32
	Thickness float32
	Gap       float32
}

// DefaultLossParams is the design applied at construction.
var DefaultLossParams = LossParams{Speed: 15, Spacing: 0.5, Thickness: 0.5, Gap: 0.5}

func (p LossParams) clamped() LossParams {
	if !(p.Speed > minSpeedIps) {
		p.Speed = minSpeedIps
	}
	p.Spacing = max(p.Spacing, 0)
	p.Thickness = max(p.Thickness, 0)
	p.Gap = max(p.Gap, 0)
	return p
}

func (p LossParams) near(o LossParams) bool {
	return absf(p.Speed-o.Speed) < lossParamEpsilon &&
		absf(p.Spacing-o.Spacing) < lossParamEpsilon &&
		absf(p.Thickness-o.Thickness) < lossParamEpsilon &&
		absf(p.Gap-o.Gap) < lossParamEpsilon
}

// DesignFIR fills dst (at least LossFIROrder long) with the linear-phase
// loss filter taps. Tap 0 is zero and the taps are symmetric about
// LossFIROrder/2.
func DesignFIR(dst []float32, sampleRate float64, p LossParams) {
	p = p.clamped()
	var h [LossFIROrder]float64
	binWidth := sampleRate / LossFIROrder
	speed := float64(p.Speed) * metersPerInch
	spacing := float64(p.Spacing) * 1e-6
	thickness := float64(p.Thickness) * 1e-6
	gap := float64(p.Gap) * 1e-6

	for k := 0; k < LossFIROrder/2; k++ {
		freq := math.Max(float64(k)*binWidth, 20.0)
		waveNumber := 2.0 * math.Pi * freq / speed

		val := math.Exp(-waveNumber * spacing)

		kt := waveNumber * thickness
		if math.Abs(kt) > 1e-5 {
			val *= (1.0 - math.Exp(-kt)) / kt
		}

		kg := waveNumber * gap / 2.0
		if math.Abs(kg) > 1e-5 {
			val *= math.Sin(kg) / kg
		}

		h[k] = val
		h[LossFIROrder-k-1] = val
	}

	dst[0] = 0
	for n := 0; n < LossFIROrder/2; n++ {
		var sum float64
		for k := 0; k < LossFIROrder; k++ {
			sum += h[k] * math.Cos(2.0*math.Pi*float64(k)*float64(n)/LossFIROrder)
		}
		v := float32(sum / LossFIROrder)
		dst[lossLatency+n] = v
		dst[lossLatency-n] = v
	}
}

// HeadBump returns the head-bump resonance frequency and linear gain.
func HeadBump(p LossParams) (freq, gain float64) {
	p = p.clamped()
	gapMeters := float64(p.Gap) * 1e-6
	freq = float64(p.Speed) * metersPerInch / (gapMeters * 500.0)
	gain = math.Max(1.5*(1000.0-math.Abs(freq-100.0))/1000.0, 1.0)
	return freq, gain
}

// DesignHeadBump returns the peaking filter coefficients modeling the
// head bump. Designs without a bump come back as an exact identity.
func DesignHeadBump(sampleRate float64, p LossParams) biquad.Coefficients {
	freq, gain := HeadBump(p)
	return dsp.PeakCoefficients(freq, gain, headBumpQ, sampleRate)
}

type lossSlot struct {
	fir  *dsp.StereoFIR
	bump dsp.StereoBiquad
}

// LossFilter applies the playback loss FIR followed by the head-bump
// resonance. New designs go into the back slot and are crossfaded in over
// LossFadeLength samples.
//
// SetParameters runs on the control goroutine and ProcessBlock on the audio
// goroutine. The back slot's coefficients belong to the control side until
// armed is set and to the audio side until fading clears.
type LossFilter struct {
	sampleRate float64

	enabled atomic.Bool
	armed   atomic.Bool
	fading  atomic.Bool
	active  atomic.Int32
	slots   [2]lossSlot

	// Audio side.
	fadeRemaining int
	running       bool

	// Control side.
	last LossParams
	taps []float32
}

// NewLossFilter creates an enabled loss filter running DefaultLossParams.
func NewLossFilter(sampleRate float64) *LossFilter {
	f := &LossFilter{
		sampleRate: sampleRate,
		taps:       make([]float32, LossFIROrder),
	}
	f.enabled.Store(true)

	p := DefaultLossParams.clamped()
	DesignFIR(f.taps, sampleRate, p)
	bump := DesignHeadBump(sampleRate, p)
	for i := range f.slots {
		f.slots[i].fir = dsp.NewStereoFIR(LossFIROrder)
		f.slots[i].fir.SetCoefficients(f.taps)
		f.slots[i].bump.SetCoefficients(bump)
	}
	f.last = p
	return f
}

// SetEnabled switches the stage on or off.
func (f *LossFilter) SetEnabled(enabled bool) { f.enabled.Store(enabled) }

// Enabled reports whether the stage is on.
func (f *LossFilter) Enabled() bool { return f.enabled.Load() }

// LatencySamples returns half the FIR order when enabled, zero otherwise.
func (f *LossFilter) LatencySamples() int {
	if f.enabled.Load() {
		return lossLatency
	}
	return 0
}

// Fading reports whether a new design is armed or being crossfaded in.
func (f *LossFilter) Fading() bool { return f.armed.Load() || f.fading.Load() }

// SetParameters designs a new filter into the back slot and arms a
// crossfade. Changes within 0.01 of the current design on every field are
// ignored. Updates arriving while a crossfade is armed or running are
// dropped and not remembered, so the next call after the fade applies them.
func (f *LossFilter) SetParameters(speed, spacing, thickness, gap float32) {
	p := LossParams{Speed: speed, Spacing: spacing, Thickness: thickness, Gap: gap}.clamped()
	if p.near(f.last) {
		return
	}
	if f.armed.Load() || f.fading.Load() {
		return
	}

	back := &f.slots[1-f.active.Load()]
	DesignFIR(f.taps, f.sampleRate, p)
	back.fir.SetCoefficients(f.taps)
	back.bump.SetCoefficients(DesignHeadBump(f.sampleRate, p))
	f.last = p
	f.armed.Store(true)
}

// Params returns the design most recently handed to the audio side.
// Control context only.
func (f *LossFilter) Params() LossParams { return f.last }

// ProcessBlock filters inL/inR into outL/outR. The buffers may alias.
// A disabled stage copies input to output. Filter memory is cleared when
// the stage comes back on.
func (f *LossFilter) ProcessBlock(inL, inR, outL, outR []float32) {
	if !f.enabled.Load() {
		f.running = false
		copy(outL, inL)
		copy(outR, inR)
		return
	}
	if !f.running {
		f.clearHistory()
		f.running = true
	}

	act := f.active.Load()
	if f.fadeRemaining == 0 && f.armed.Load() {
		back := &f.slots[1-act]
		back.fir.CopyStateFrom(f.slots[act].fir)
		back.bump.CopyStateFrom(&f.slots[act].bump)
		f.fadeRemaining = LossFadeLength
		f.fading.Store(true)
		f.armed.Store(false)
	}

	for i := range inL {
		cur := &f.slots[act]
		l, r := cur.fir.Process(inL[i], inR[i])
		l, r = cur.bump.Process(l, r)

		if f.fadeRemaining > 0 {
			back := &f.slots[1-act]
			bl, br := back.fir.Process(inL[i], inR[i])
			bl, br = back.bump.Process(bl, br)

			gOld := float32(f.fadeRemaining) / LossFadeLength
			gNew := 1 - gOld
			l = l*gOld + bl*gNew
			r = r*gOld + br*gNew

			f.fadeRemaining--
			if f.fadeRemaining == 0 {
				act = 1 - act
				f.active.Store(act)
				f.fading.Store(false)
			}
		}

		outL[i] = l
		outR[i] = r
	}
}

// Reset clears filter memory. An armed design is installed immediately
// without a crossfade. Call only while no audio is being processed.
func (f *LossFilter) Reset() {
	if f.fadeRemaining > 0 || f.armed.Load() {
		f.active.Store(1 - f.active.Load())
	}
	f.fadeRemaining = 0
	f.armed.Store(false)
	f.fading.Store(false)
	f.clearHistory()
}

func (f *LossFilter) clearHistory() {
	for i := range f.slots {
		f.slots[i].fir.Reset()
		f.slots[i].bump.Reset()
	}
}

func absf(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
