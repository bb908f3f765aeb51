package tape

import (
	"math"
	"sync/atomic"

	"github.com/cwbudde/algo-tape/dsp"
)

const (
	tapeWidthMeters  = 0.25 * metersPerInch
	azimuthSmoothSec = 0.05
	// Read position 1 is the newest sample, so it means no added delay.
	azimuthBaseDelay = 1.0
)

// Azimuth delays the lagging channel by the head misalignment's path
// difference across the tape width.
type Azimuth struct {
	sampleRate float64

	enabled atomic.Bool
	target  [2]dsp.AtomicFloat32

	smooth  [2]*dsp.OnePoleSmoother
	delays  [2]*dsp.DelayLine
	running bool
}

// NewAzimuth creates a disabled azimuth stage with no added delay.
func NewAzimuth(sampleRate float64) *Azimuth {
	a := &Azimuth{sampleRate: sampleRate}
	for ch := 0; ch < 2; ch++ {
		a.smooth[ch] = dsp.NewOnePoleSmoother(float32(sampleRate), azimuthSmoothSec)
		a.smooth[ch].SetCurrent(azimuthBaseDelay)
		a.target[ch].Store(azimuthBaseDelay)
	}
	return a
}

// SetDelayLines binds the delay lines. A nil line makes that channel pass
// through. Bind before audio starts.
func (a *Azimuth) SetDelayLines(left, right *dsp.DelayLine) {
	a.delays[0] = left
	a.delays[1] = right
}

// SetEnabled switches the stage on or off.
func (a *Azimuth) SetEnabled(enabled bool) { a.enabled.Store(enabled) }

// LatencySamples reports the stage latency, which is zero.
func (a *Azimuth) LatencySamples() int { return 0 }

// AzimuthDelaySamples converts a head angle and tape speed to the extra
// delay of the lagging channel in samples.
func AzimuthDelaySamples(angleDeg, speedIps float32, sampleRate float64) float64 {
	speed := math.Max(float64(speedIps), minSpeedIps) * metersPerInch
	angle := math.Abs(float64(angleDeg)) * math.Pi / 180.0
	dist := tapeWidthMeters * math.Sin(angle)
	return dist / speed * sampleRate
}

// SetAzimuthAngle sets the target delays. A negative angle delays the left
// channel, a positive one the right.
func (a *Azimuth) SetAzimuthAngle(angleDeg, speedIps float32) {
	lag := 1
	if angleDeg < 0 {
		lag = 0
	}
	d := azimuthBaseDelay + AzimuthDelaySamples(angleDeg, speedIps, a.sampleRate)
	if line := a.delays[lag]; line != nil {
		d = math.Min(d, float64(line.Size()-3))
	}
	a.target[lag].Store(float32(d))
	a.target[1-lag].Store(azimuthBaseDelay)
}

// TargetDelay returns the delay a channel is moving towards, in read
// positions.
func (a *Azimuth) TargetDelay(ch int) float32 { return a.target[ch].Load() }

// ProcessBlock delays each channel from in to out. The buffers may alias.
// The delay lines start empty each time the stage is switched on.
func (a *Azimuth) ProcessBlock(inL, inR, outL, outR []float32) {
	if !a.enabled.Load() {
		a.running = false
		copy(outL, inL)
		copy(outR, inR)
		return
	}
	if !a.running {
		a.clearLines()
		a.running = true
	}

	ins := [2][]float32{inL, inR}
	outs := [2][]float32{outL, outR}
	for ch := 0; ch < 2; ch++ {
		in, out := ins[ch], outs[ch]
		line := a.delays[ch]
		if line == nil {
			copy(out, in)
			continue
		}
		s := a.smooth[ch]
		s.SetTarget(a.target[ch].Load())
		for i, x := range in {
			d := s.Next()
			line.Write(x)
			out[i] = line.ReadHermite(d)
		}
	}
}

// Reset jumps the smoothers to their targets and clears the delay lines.
func (a *Azimuth) Reset() {
	for ch := 0; ch < 2; ch++ {
		a.smooth[ch].SetCurrent(a.target[ch].Load())
	}
	a.clearLines()
}

func (a *Azimuth) clearLines() {
	for _, line := range a.delays {
		if line != nil {
			line.Reset()
		}
	}
}
