package dsp

import "math"

// LinearSmoother ramps from its current value to a target in a fixed number
// of equal steps. The ramp never overshoots and lands exactly on the target.
type LinearSmoother struct {
	start     float64
	target    float64
	current   float64
	steps     int
	remaining int
}

// NewLinearSmoother creates a linear smoother that reaches a new target in
// steps calls to Next.
func NewLinearSmoother(steps int, initial float32) *LinearSmoother {
	s := &LinearSmoother{}
	s.SetSteps(steps)
	s.SetCurrent(initial)
	return s
}

// SetSteps changes the ramp length used by the next SetTarget.
func (s *LinearSmoother) SetSteps(steps int) {
	if steps < 1 {
		steps = 1
	}
	s.steps = steps
}

// SetCurrent jumps to v without ramping.
func (s *LinearSmoother) SetCurrent(v float32) {
	s.start = float64(v)
	s.target = float64(v)
	s.current = float64(v)
	s.remaining = 0
}

// SetTarget starts a new ramp from the current value.
func (s *LinearSmoother) SetTarget(v float32) {
	s.start = s.current
	s.target = float64(v)
	s.remaining = s.steps
}

// Next advances one step and returns the new value.
func (s *LinearSmoother) Next() float32 {
	if s.remaining == 0 {
		return float32(s.current)
	}
	s.remaining--
	if s.remaining == 0 {
		s.current = s.target
	} else {
		done := float64(s.steps - s.remaining)
		s.current = s.start + (s.target-s.start)*(done/float64(s.steps))
	}
	return float32(s.current)
}

// Current returns the value without advancing.
func (s *LinearSmoother) Current() float32 { return float32(s.current) }

// Target returns the ramp destination.
func (s *LinearSmoother) Target() float32 { return float32(s.target) }

// IsSmoothing reports whether a ramp is in progress.
func (s *LinearSmoother) IsSmoothing() bool { return s.remaining > 0 }

// minMultiplicativeValue keeps log-domain ramps away from zero.
const minMultiplicativeValue = 1e-6

// MultiplicativeSmoother ramps geometrically (constant ratio per step), which
// is the natural ramp for frequencies and gains. Values stay strictly positive.
type MultiplicativeSmoother struct {
	target    float64
	current   float64
	ratio     float64
	steps     int
	remaining int
}

// NewMultiplicativeSmoother creates a multiplicative smoother that reaches a
// new target in steps calls to Next.
func NewMultiplicativeSmoother(steps int, initial float32) *MultiplicativeSmoother {
	s := &MultiplicativeSmoother{}
	s.SetSteps(steps)
	s.SetCurrent(initial)
	return s
}

// SetSteps changes the ramp length used by the next SetTarget.
func (s *MultiplicativeSmoother) SetSteps(steps int) {
	if steps < 1 {
		steps = 1
	}
	s.steps = steps
}

// SetCurrent jumps to v without ramping.
func (s *MultiplicativeSmoother) SetCurrent(v float32) {
	x := positive(float64(v))
	s.target = x
	s.current = x
	s.ratio = 1
	s.remaining = 0
}

// SetTarget starts a new ramp from the current value.
func (s *MultiplicativeSmoother) SetTarget(v float32) {
	s.target = positive(float64(v))
	if s.target == s.current {
		s.remaining = 0
		return
	}
	s.ratio = math.Exp((math.Log(s.target) - math.Log(s.current)) / float64(s.steps))
	s.remaining = s.steps
}

// Next advances one step and returns the new value.
func (s *MultiplicativeSmoother) Next() float32 {
	if s.remaining == 0 {
		return float32(s.current)
	}
	s.remaining--
	if s.remaining == 0 {
		s.current = s.target
	} else {
		s.current *= s.ratio
	}
	return float32(s.current)
}

// Current returns the value without advancing.
func (s *MultiplicativeSmoother) Current() float32 { return float32(s.current) }

// Target returns the ramp destination.
func (s *MultiplicativeSmoother) Target() float32 { return float32(s.target) }

// IsSmoothing reports whether a ramp is in progress.
func (s *MultiplicativeSmoother) IsSmoothing() bool { return s.remaining > 0 }

func positive(x float64) float64 {
	if !(x > minMultiplicativeValue) {
		return minMultiplicativeValue
	}
	return x
}

// OnePoleSmoother is an exponential follower with a time constant. It snaps
// to the target once within 1e-4.
type OnePoleSmoother struct {
	coeff   float64
	current float64
	target  float64
}

// NewOnePoleSmoother creates a smoother with the given time constant.
func NewOnePoleSmoother(sampleRate float32, timeSec float32) *OnePoleSmoother {
	s := &OnePoleSmoother{}
	s.Configure(sampleRate, timeSec)
	return s
}

// Configure sets the time constant.
func (s *OnePoleSmoother) Configure(sampleRate float32, timeSec float32) {
	if sampleRate <= 0 || timeSec <= 0 {
		s.coeff = 1
		return
	}
	s.coeff = 1.0 / (float64(timeSec) * float64(sampleRate))
	if s.coeff > 1 {
		s.coeff = 1
	}
}

// SetTarget sets the value to follow.
func (s *OnePoleSmoother) SetTarget(v float32) { s.target = float64(v) }

// SetCurrent forces both current and target to v.
func (s *OnePoleSmoother) SetCurrent(v float32) {
	s.current = float64(v)
	s.target = float64(v)
}

// Next advances one sample.
func (s *OnePoleSmoother) Next() float32 {
	diff := s.target - s.current
	if math.Abs(diff) < 1e-4 {
		s.current = s.target
	} else {
		s.current += diff * s.coeff
	}
	return float32(s.current)
}

// Current returns the value without advancing.
func (s *OnePoleSmoother) Current() float32 { return float32(s.current) }

// Target returns the followed value.
func (s *OnePoleSmoother) Target() float32 { return float32(s.target) }
