package tape

import (
	"fmt"

	dspcore "github.com/cwbudde/algo-dsp/dsp/core"
)

const (
	// DefaultMaxBlockSize is the largest block handed to the stages at once.
	DefaultMaxBlockSize = 256

	// DefaultSeed seeds the degradation noise and variance generators.
	DefaultSeed uint64 = 0x5eed7a9e

	// DefaultDryDelaySamples is the capacity of each dry-path delay line.
	DefaultDryDelaySamples = 4096
	// DefaultMakeupDelaySamples is the capacity of each makeup delay line.
	DefaultMakeupDelaySamples = 4096
	// DefaultAzimuthDelaySamples is the capacity of each azimuth delay line.
	DefaultAzimuthDelaySamples = 1 << 15

	minSampleRate = 8000
	maxSampleRate = 384000
	maxBlockSize  = 1 << 16
)

// Config holds the settings fixed at construction time.
type Config struct {
	SampleRate   float64
	MaxBlockSize int
	Seed         uint64

	DryDelaySamples     int
	MakeupDelaySamples  int
	AzimuthDelaySamples int
}

// NewConfig builds a Config from processor options. The block size option
// sets MaxBlockSize; without it DefaultMaxBlockSize is used.
func NewConfig(opts ...dspcore.ProcessorOption) Config {
	all := make([]dspcore.ProcessorOption, 0, len(opts)+1)
	all = append(all, dspcore.WithBlockSize(DefaultMaxBlockSize))
	all = append(all, opts...)
	pc := dspcore.ApplyProcessorOptions(all...)

	return Config{
		SampleRate:          pc.SampleRate,
		MaxBlockSize:        pc.BlockSize,
		Seed:                DefaultSeed,
		DryDelaySamples:     DefaultDryDelaySamples,
		MakeupDelaySamples:  DefaultMakeupDelaySamples,
		AzimuthDelaySamples: DefaultAzimuthDelaySamples,
	}
}

// Validate checks that the configuration can host the full pipeline.
func (c Config) Validate() error {
	if c.SampleRate < minSampleRate || c.SampleRate > maxSampleRate {
		return fmt.Errorf("sample rate must be in [%d,%d], got %g", minSampleRate, maxSampleRate, c.SampleRate)
	}
	if c.MaxBlockSize < 1 || c.MaxBlockSize > maxBlockSize {
		return fmt.Errorf("max block size must be in [1,%d], got %d", maxBlockSize, c.MaxBlockSize)
	}
	// Compensation delays must hold the worst-case pipeline latency.
	minComp := maxPipelineLatency + 4
	if c.DryDelaySamples < minComp {
		return fmt.Errorf("dry delay capacity must be >= %d samples, got %d", minComp, c.DryDelaySamples)
	}
	if c.MakeupDelaySamples < minComp {
		return fmt.Errorf("makeup delay capacity must be >= %d samples, got %d", minComp, c.MakeupDelaySamples)
	}
	if c.AzimuthDelaySamples < 4 {
		return fmt.Errorf("azimuth delay capacity must be >= 4 samples, got %d", c.AzimuthDelaySamples)
	}
	return nil
}
