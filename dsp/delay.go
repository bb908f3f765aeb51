package dsp

// DelayLine implements a circular buffer for delay.
//
// Read positions follow the convention that position 1.0 is the most
// recently written sample and position 0.0 is the oldest slot in the buffer.
type DelayLine struct {
	buffer   []float32
	writePos int
	size     int
	delay    float32
}

// NewDelayLine creates a new delay line with the given size.
func NewDelayLine(size int) *DelayLine {
	if size < 4 {
		size = 4
	}
	return &DelayLine{
		buffer: make([]float32, size),
		size:   size,
	}
}

// Size returns the capacity in samples.
func (d *DelayLine) Size() int {
	return d.size
}

// Write writes a sample to the delay line.
func (d *DelayLine) Write(sample float32) {
	d.buffer[d.writePos] = sample
	d.writePos++
	if d.writePos >= d.size {
		d.writePos = 0
	}
}

// Read reads a sample from the delay line at the given read position.
func (d *DelayLine) Read(delay int) float32 {
	readPos := (d.writePos - delay) % d.size
	if readPos < 0 {
		readPos += d.size
	}
	return d.buffer[readPos]
}

// ReadFractional reads with fractional delay using linear interpolation.
func (d *DelayLine) ReadFractional(delay float32) float32 {
	intDelay := int(delay)
	frac := delay - float32(intDelay)

	sample1 := d.Read(intDelay)
	sample2 := d.Read(intDelay + 1)

	return sample1 + frac*(sample2-sample1)
}

// ReadHermite reads with fractional delay using 4-point Hermite interpolation.
func (d *DelayLine) ReadHermite(delay float32) float32 {
	intDelay := int(delay)
	f := delay - float32(intDelay)

	xm1 := d.Read(intDelay - 1)
	x0 := d.Read(intDelay)
	x1 := d.Read(intDelay + 1)
	x2 := d.Read(intDelay + 2)

	c := (x1 - xm1) * 0.5
	v := x0 - x1
	w := c + v
	a := w + v + (x2-x0)*0.5
	bNeg := w + a
	return (((a*f)-bNeg)*f+c)*f + x0
}

// SetDelay sets the latency used by Process, clamped to the capacity.
func (d *DelayLine) SetDelay(samples float32) {
	maxDelay := float32(d.size - 2)
	if samples < 0 {
		samples = 0
	}
	if samples > maxDelay {
		samples = maxDelay
	}
	d.delay = samples
}

// Delay returns the latency set by SetDelay.
func (d *DelayLine) Delay() float32 {
	return d.delay
}

// Process writes x and returns the sample written Delay() samples earlier.
// A delay of zero returns x unchanged.
func (d *DelayLine) Process(x float32) float32 {
	d.Write(x)
	return d.ReadFractional(d.delay + 1)
}

// Reset clears the delay line.
func (d *DelayLine) Reset() {
	for i := range d.buffer {
		d.buffer[i] = 0
	}
	d.writePos = 0
}
