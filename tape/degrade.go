package tape

import (
	"math"
	"math/rand/v2"
	"sync/atomic"

	"github.com/cwbudde/algo-approx"
	dspcore "github.com/cwbudde/algo-dsp/dsp/core"
	"github.com/cwbudde/algo-tape/dsp"
)

// DegradeBlockLength is the number of samples between coefficient updates.
const DegradeBlockLength = 2048

const (
	degradeMinFreq          = 20.0
	degradeMaxGainDB        = 3.0
	degradeAttackMs         = 10.0
	degradeInitialFreq      = 20000.0
	degradeInitialReleaseMs = 200.0
	ln10Over20              = 0.11512925464970229

	noiseStreamLeft  = 1
	noiseStreamRight = 2
	varianceStream   = 3
)

// blockClock counts samples towards the next control boundary.
type blockClock struct {
	length int
	pos    int
}

// untilBoundary returns the number of samples left before the boundary.
func (c *blockClock) untilBoundary() int { return c.length - c.pos }

// advance moves the clock by n samples and reports whether a boundary was
// reached. n must not exceed untilBoundary.
func (c *blockClock) advance(n int) bool {
	c.pos += n
	if c.pos >= c.length {
		c.pos = 0
		return true
	}
	return false
}

func (c *blockClock) reset() { c.pos = 0 }

// Degrade adds envelope-modulated noise, low-passes the result with a
// randomly varied cutoff and applies a varied output gain. Coefficients are
// recomputed only every DegradeBlockLength samples.
type Degrade struct {
	sampleRate float64

	depth    dsp.AtomicFloat32
	amount   dsp.AtomicFloat32
	variance dsp.AtomicFloat32
	envelope dsp.AtomicFloat32
	enabled  atomic.Bool
	point1x  atomic.Bool

	seed        uint64
	clock       blockClock
	filterL     *dsp.OnePoleLowpass
	filterR     *dsp.OnePoleLowpass
	level       *dsp.LevelDetector
	noiseL      *rand.Rand
	noiseR      *rand.Rand
	varRand     *rand.Rand
	noiseGain   *dsp.LinearSmoother
	outputGain  *dsp.LinearSmoother
	useEnvelope bool
}

// NewDegrade creates the stage. Generators are seeded from seed and never
// reseeded while running.
func NewDegrade(sampleRate float64, seed uint64) *Degrade {
	d := &Degrade{
		sampleRate: sampleRate,
		seed:       seed,
		clock:      blockClock{length: DegradeBlockLength},
		filterL:    dsp.NewOnePoleLowpass(sampleRate, degradeInitialFreq),
		filterR:    dsp.NewOnePoleLowpass(sampleRate, degradeInitialFreq),
		level:      dsp.NewLevelDetector(float32(sampleRate)),
		noiseGain:  dsp.NewLinearSmoother(DegradeBlockLength, 0),
		outputGain: dsp.NewLinearSmoother(DegradeBlockLength, 1),
	}
	d.enabled.Store(true)
	d.point1x.Store(true)
	d.seedGenerators()
	return d
}

func (d *Degrade) seedGenerators() {
	d.noiseL = dsp.NewNoiseSource(d.seed, noiseStreamLeft)
	d.noiseR = dsp.NewNoiseSource(d.seed, noiseStreamRight)
	d.varRand = dsp.NewNoiseSource(d.seed, varianceStream)
}

// SetParameters stores the normalized controls. They take effect at the
// next control boundary; enabled takes effect at the next block.
func (d *Degrade) SetParameters(depth, amount, variance, envelope float32, enabled bool) {
	d.depth.Store(clampUnit(depth))
	d.amount.Store(clampUnit(amount))
	d.variance.Store(clampUnit(variance))
	d.envelope.Store(clampUnit(envelope))
	d.enabled.Store(enabled)
}

// SetPoint1x scales depth by 0.1 when on.
func (d *Degrade) SetPoint1x(on bool) { d.point1x.Store(on) }

// LatencySamples reports the stage latency, which is zero.
func (d *Degrade) LatencySamples() int { return 0 }

// ProcessBlock degrades the block in place. A disabled stage does not
// touch the audio or advance its state.
func (d *Degrade) ProcessBlock(left, right []float32) {
	if !d.enabled.Load() {
		return
	}
	n := len(left)
	for done := 0; done < n; {
		chunk := min(n-done, d.clock.untilBoundary())
		d.processChunk(left[done:done+chunk], right[done:done+chunk])
		done += chunk
		if d.clock.advance(chunk) {
			d.cook()
		}
	}
}

func (d *Degrade) processChunk(left, right []float32) {
	for i := range left {
		xl, xr := left[i], right[i]
		env := d.level.Process(xl, xr)

		g := d.noiseGain.Next()
		nl := dsp.Bipolar(d.noiseL) * g
		nr := dsp.Bipolar(d.noiseR) * g
		if d.useEnvelope {
			nl *= env
			nr *= env
		}

		out := d.outputGain.Next()
		left[i] = d.filterL.Process(xl+nl) * out
		right[i] = d.filterR.Process(xr+nr) * out
	}
}

// cook derives the next control block's coefficients from the stored
// parameters plus two random draws.
func (d *Degrade) cook() {
	depth := float64(d.depth.Load())
	if d.point1x.Load() {
		depth *= 0.1
	}
	amount := float64(d.amount.Load())
	variance := float64(d.variance.Load())
	envelope := float64(d.envelope.Load())

	freq := 200.0 * math.Pow(100.0, 1.0-amount)
	freq += variance * (freq / 0.6) * float64(dsp.Bipolar(d.varRand))
	freq = dspcore.Clamp(freq, degradeMinFreq, 0.49*d.sampleRate)
	d.filterL.SetCutoff(freq)
	d.filterR.SetCutoff(freq)

	d.noiseGain.SetTarget(float32(0.5 * depth * amount))

	skew := 1.0 - math.Pow(envelope, 0.8)
	release := 20.0 * math.Pow(250.0, skew)
	d.level.SetParameters(degradeAttackMs, float32(release))
	d.useEnvelope = envelope > 0

	gainDB := -24.0*depth + variance*36.0*float64(dsp.Bipolar(d.varRand))
	if gainDB > degradeMaxGainDB {
		gainDB = degradeMaxGainDB
	}
	d.outputGain.SetTarget(approx.FastExp(float32(gainDB * ln10Over20)))
}

// Reset restores the start-up state, including the generator seeds.
func (d *Degrade) Reset() {
	d.clock.reset()
	d.filterL.SetCutoff(degradeInitialFreq)
	d.filterR.SetCutoff(degradeInitialFreq)
	d.filterL.Reset()
	d.filterR.Reset()
	d.level.Reset()
	d.level.SetParameters(degradeAttackMs, degradeInitialReleaseMs)
	d.noiseGain.SetCurrent(0)
	d.outputGain.SetCurrent(1)
	d.useEnvelope = false
	d.seedGenerators()
}

func clampUnit(v float32) float32 {
	return float32(dspcore.Clamp(float64(v), 0, 1))
}
