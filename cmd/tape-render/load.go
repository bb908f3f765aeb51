package main

import (
	"math"
	"time"
)

// loadMeter tracks processing time relative to the real-time budget of each
// block. Loads are fractions where 1 means the block took as long as it
// lasts.
type loadMeter struct {
	sampleRate float64
	start      time.Time

	sum   float64
	count int
	min   float64
	max   float64
}

func newLoadMeter(sampleRate float64) *loadMeter {
	m := &loadMeter{sampleRate: sampleRate}
	m.reset()
	return m
}

func (m *loadMeter) blockStart() { m.start = time.Now() }

func (m *loadMeter) blockEnd(frames int) {
	m.record(time.Since(m.start), frames)
}

func (m *loadMeter) record(elapsed time.Duration, frames int) {
	if frames <= 0 {
		return
	}
	budget := float64(frames) / m.sampleRate
	load := elapsed.Seconds() / budget
	m.sum += load
	m.count++
	m.min = math.Min(m.min, load)
	m.max = math.Max(m.max, load)
}

func (m *loadMeter) avg() float64 {
	if m.count == 0 {
		return 0
	}
	return m.sum / float64(m.count)
}

// snapshot returns avg/min/max since the last reset.
func (m *loadMeter) snapshot() (avg, lo, hi float64) {
	if m.count == 0 {
		return 0, 0, 0
	}
	return m.avg(), m.min, m.max
}

func (m *loadMeter) reset() {
	m.sum = 0
	m.count = 0
	m.min = math.Inf(1)
	m.max = 0
}
