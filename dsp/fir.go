package dsp

// StereoFIR is a fixed-order stereo FIR filter with a circular history.
// Coefficient i applies to the input delayed by i samples.
type StereoFIR struct {
	coeffs []float32
	stateL []float32
	stateR []float32
	head   int
}

// NewStereoFIR creates a filter of the given order with zero coefficients.
func NewStereoFIR(order int) *StereoFIR {
	if order < 1 {
		order = 1
	}
	return &StereoFIR{
		coeffs: make([]float32, order),
		stateL: make([]float32, order),
		stateR: make([]float32, order),
	}
}

// Order returns the number of taps.
func (f *StereoFIR) Order() int { return len(f.coeffs) }

// SetCoefficients copies taps into the filter. Extra taps are ignored and
// missing taps are zeroed.
func (f *StereoFIR) SetCoefficients(taps []float32) {
	n := copy(f.coeffs, taps)
	for i := n; i < len(f.coeffs); i++ {
		f.coeffs[i] = 0
	}
}

// Coefficients returns the current taps. The slice aliases filter memory.
func (f *StereoFIR) Coefficients() []float32 { return f.coeffs }

// CopyStateFrom copies the history and head position from other, leaving
// the coefficients untouched. Both filters must have the same order.
func (f *StereoFIR) CopyStateFrom(other *StereoFIR) {
	f.head = other.head
	copy(f.stateL, other.stateL)
	copy(f.stateR, other.stateR)
}

// Process filters one stereo sample.
func (f *StereoFIR) Process(inL, inR float32) (outL, outR float32) {
	order := len(f.coeffs)
	f.stateL[f.head] = inL
	f.stateR[f.head] = inR

	var sumL, sumR float32
	idx := f.head
	for i := 0; i < order; i++ {
		c := f.coeffs[i]
		sumL += c * f.stateL[idx]
		sumR += c * f.stateR[idx]
		idx--
		if idx < 0 {
			idx = order - 1
		}
	}

	f.head++
	if f.head >= order {
		f.head = 0
	}
	return sumL, sumR
}

// Reset clears the history.
func (f *StereoFIR) Reset() {
	for i := range f.stateL {
		f.stateL[i] = 0
		f.stateR[i] = 0
	}
	f.head = 0
}
