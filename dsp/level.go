package dsp

import "github.com/cwbudde/algo-approx"

// LevelDetector is a stereo envelope follower with separate attack and
// release ballistics. The detector input is the mono sum of absolute values.
type LevelDetector struct {
	sampleRate   float32
	envelope     float32
	attackCoeff  float32
	releaseCoeff float32
}

// NewLevelDetector creates a detector with 10 ms attack and 200 ms release.
func NewLevelDetector(sampleRate float32) *LevelDetector {
	if sampleRate <= 0 {
		sampleRate = 48000
	}
	d := &LevelDetector{sampleRate: sampleRate}
	d.SetParameters(10, 200)
	return d
}

// SetParameters sets attack and release times in milliseconds.
func (d *LevelDetector) SetParameters(attackMs, releaseMs float32) {
	d.attackCoeff = ballisticCoeff(attackMs, d.sampleRate)
	d.releaseCoeff = ballisticCoeff(releaseMs, d.sampleRate)
}

func ballisticCoeff(ms, sampleRate float32) float32 {
	if ms <= 0 {
		return 0
	}
	return approx.FastExp(-1000.0 / (ms * sampleRate))
}

// Process consumes one stereo sample and returns the envelope.
func (d *LevelDetector) Process(l, r float32) float32 {
	if l < 0 {
		l = -l
	}
	if r < 0 {
		r = -r
	}
	in := (l + r) * 0.5
	if in > d.envelope {
		d.envelope = d.attackCoeff*(d.envelope-in) + in
	} else {
		d.envelope = d.releaseCoeff*(d.envelope-in) + in
	}
	return d.envelope
}

// Envelope returns the last envelope value.
func (d *LevelDetector) Envelope() float32 { return d.envelope }

// Reset clears the envelope.
func (d *LevelDetector) Reset() { d.envelope = 0 }
