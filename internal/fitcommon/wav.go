package fitcommon

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	dspresample "github.com/cwbudde/algo-dsp/dsp/resample"
	"github.com/cwbudde/wav"
	"github.com/go-audio/audio"
)

// Stereo is a decoded stereo signal. Mono files are duplicated to both sides.
type Stereo struct {
	L, R       []float32
	SampleRate int
}

// Frames returns the number of sample frames.
func (s *Stereo) Frames() int { return len(s.L) }

// ReadWAVStereo decodes a WAV file into left/right float32 slices.
// Channels beyond the second are ignored.
func ReadWAVStereo(path string) (*Stereo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("invalid wav file: %s", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, err
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels < 1 {
		return nil, fmt.Errorf("invalid wav buffer: %s", path)
	}
	if buf.Format.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid wav sample-rate: %d", buf.Format.SampleRate)
	}

	ch := buf.Format.NumChannels
	frames := len(buf.Data) / ch
	if frames == 0 {
		return nil, fmt.Errorf("empty wav data: %s", path)
	}
	out := &Stereo{
		L:          make([]float32, frames),
		R:          make([]float32, frames),
		SampleRate: buf.Format.SampleRate,
	}
	for i := range frames {
		out.L[i] = buf.Data[i*ch]
		if ch == 1 {
			out.R[i] = out.L[i]
		} else {
			out.R[i] = buf.Data[i*ch+1]
		}
	}
	return out, nil
}

// ResampleStereo converts s to toRate. It returns s unchanged when the rates
// already match.
func ResampleStereo(s *Stereo, toRate int) (*Stereo, error) {
	if s.SampleRate == toRate {
		return s, nil
	}
	l, err := ResampleIfNeeded(toFloat64(s.L), s.SampleRate, toRate)
	if err != nil {
		return nil, err
	}
	r, err := ResampleIfNeeded(toFloat64(s.R), s.SampleRate, toRate)
	if err != nil {
		return nil, err
	}
	n := min(len(l), len(r))
	return &Stereo{L: toFloat32(l[:n]), R: toFloat32(r[:n]), SampleRate: toRate}, nil
}

func ResampleIfNeeded(in []float64, fromRate int, toRate int) ([]float64, error) {
	if fromRate == toRate {
		return in, nil
	}
	r, err := dspresample.NewForRates(
		float64(fromRate),
		float64(toRate),
		dspresample.WithQuality(dspresample.QualityBest),
	)
	if err != nil {
		return nil, err
	}
	return r.Process(in), nil
}

// WriteWAVStereo writes left/right as a 16-bit stereo WAV file.
func WriteWAVStereo(path string, left []float32, right []float32, sampleRate int) error {
	if len(left) != len(right) {
		return fmt.Errorf("left/right length mismatch")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	data := make([]float32, len(left)*2)
	for i := range left {
		data[i*2] = left[i]
		data[i*2+1] = right[i]
	}

	enc := wav.NewEncoder(f, sampleRate, 16, 2, 1)
	buf := &audio.Float32Buffer{
		Format: &audio.Format{
			SampleRate:  sampleRate,
			NumChannels: 2,
		},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// Mid returns the per-frame average of both channels.
func (s *Stereo) Mid() []float64 {
	out := make([]float64, len(s.L))
	for i := range s.L {
		out[i] = 0.5 * (float64(s.L[i]) + float64(s.R[i]))
	}
	return out
}

// StereoRMS returns the RMS over both channels.
func StereoRMS(left, right []float32) float64 {
	n := len(left) + len(right)
	if n == 0 {
		return 0
	}
	var sum float64
	for _, s := range left {
		sum += float64(s) * float64(s)
	}
	for _, s := range right {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(n))
}

func toFloat64(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}

func toFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}
