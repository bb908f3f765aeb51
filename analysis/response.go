package analysis

import (
	"fmt"
	"math"

	algofft "github.com/cwbudde/algo-fft"
)

// Response is a magnitude response sampled on FFT bins 0..fftSize/2.
type Response struct {
	SampleRate int       `json:"sample_rate"`
	FFTSize    int       `json:"fft_size"`
	FreqHz     []float64 `json:"freq_hz"`
	MagDB      []float64 `json:"mag_db"`
}

// Band is a named frequency range used for band summaries.
type Band struct {
	Name string
	LoHz float64
	HiHz float64
}

// DefaultBands splits the audio range the way tape loss is usually judged.
var DefaultBands = []Band{
	{"sub (20-60Hz)", 20, 60},
	{"bump (60-250Hz)", 60, 250},
	{"low-mid (250-1kHz)", 250, 1000},
	{"mid (1-4kHz)", 1000, 4000},
	{"presence (4-10kHz)", 4000, 10000},
	{"air (10-20kHz)", 10000, 20000},
}

// MagnitudeResponse returns the magnitude response of an impulse response,
// zero-padded (or truncated) to fftSize.
func MagnitudeResponse(ir []float64, sampleRate int, fftSize int) (Response, error) {
	plan, err := algofft.NewPlanReal64(fftSize)
	if err != nil {
		return Response{}, fmt.Errorf("fft plan: %w", err)
	}
	buf := make([]float64, fftSize)
	copy(buf, ir)
	spec := make([]complex128, fftSize/2+1)
	if err := plan.Forward(spec, buf); err != nil {
		return Response{}, fmt.Errorf("fft: %w", err)
	}

	r := newResponse(sampleRate, fftSize)
	for k, c := range spec {
		r.MagDB[k] = linToDB(cmplxAbs(c))
	}
	return r, nil
}

// TransferResponse estimates |wet/dry| from a pair of aligned recordings
// with Hann-windowed, half-overlapped frames (H1 estimator).
func TransferResponse(dry, wet []float64, sampleRate int, fftSize int) (Response, error) {
	n := min(len(dry), len(wet))
	if n < fftSize {
		return Response{}, fmt.Errorf("need at least %d samples, got %d", fftSize, n)
	}
	plan, err := algofft.NewPlanReal64(fftSize)
	if err != nil {
		return Response{}, fmt.Errorf("fft plan: %w", err)
	}

	hann := hannWindow(fftSize)
	bins := fftSize/2 + 1
	specDry := make([]complex128, bins)
	specWet := make([]complex128, bins)
	bufDry := make([]float64, fftSize)
	bufWet := make([]float64, fftSize)
	sxx := make([]float64, bins)
	sxy := make([]complex128, bins)

	hop := fftSize / 2
	for start := 0; start+fftSize <= n; start += hop {
		for i := 0; i < fftSize; i++ {
			bufDry[i] = dry[start+i] * hann[i]
			bufWet[i] = wet[start+i] * hann[i]
		}
		if err := plan.Forward(specDry, bufDry); err != nil {
			return Response{}, fmt.Errorf("fft dry frame at %d: %w", start, err)
		}
		if err := plan.Forward(specWet, bufWet); err != nil {
			return Response{}, fmt.Errorf("fft wet frame at %d: %w", start, err)
		}
		for k := 0; k < bins; k++ {
			x := specDry[k]
			sxx[k] += real(x)*real(x) + imag(x)*imag(x)
			sxy[k] += complex(real(x), -imag(x)) * specWet[k]
		}
	}

	r := newResponse(sampleRate, fftSize)
	for k := 0; k < bins; k++ {
		if sxx[k] < 1e-20 {
			r.MagDB[k] = linToDB(0)
			continue
		}
		r.MagDB[k] = linToDB(cmplxAbs(sxy[k]) / sxx[k])
	}
	return r, nil
}

// AverageSpectrum returns the Hann-windowed, half-overlapped power
// spectrum of x in dB.
func AverageSpectrum(x []float64, sampleRate int, fftSize int) (Response, error) {
	if len(x) < fftSize {
		return Response{}, fmt.Errorf("need at least %d samples, got %d", fftSize, len(x))
	}
	plan, err := algofft.NewPlanReal64(fftSize)
	if err != nil {
		return Response{}, fmt.Errorf("fft plan: %w", err)
	}
	hann := hannWindow(fftSize)
	bins := fftSize/2 + 1
	spec := make([]complex128, bins)
	buf := make([]float64, fftSize)
	power := make([]float64, bins)
	frames := 0
	for start := 0; start+fftSize <= len(x); start += fftSize / 2 {
		for i := range buf {
			buf[i] = x[start+i] * hann[i]
		}
		if err := plan.Forward(spec, buf); err != nil {
			return Response{}, fmt.Errorf("fft frame at %d: %w", start, err)
		}
		for k, c := range spec {
			power[k] += real(c)*real(c) + imag(c)*imag(c)
		}
		frames++
	}

	r := newResponse(sampleRate, fftSize)
	for k := range power {
		r.MagDB[k] = 10.0 * math.Log10(math.Max(power[k]/float64(frames), 1e-24))
	}
	return r, nil
}

// At returns the magnitude in dB at freqHz by linear interpolation
// between bins.
func (r Response) At(freqHz float64) float64 {
	if len(r.MagDB) == 0 {
		return math.NaN()
	}
	binHz := float64(r.SampleRate) / float64(r.FFTSize)
	pos := freqHz / binHz
	if pos <= 0 {
		return r.MagDB[0]
	}
	last := len(r.MagDB) - 1
	if pos >= float64(last) {
		return r.MagDB[last]
	}
	i := int(pos)
	f := pos - float64(i)
	return r.MagDB[i] + f*(r.MagDB[i+1]-r.MagDB[i])
}

// BandLevels returns the mean dB of each band.
func BandLevels(r Response, bands []Band) []float64 {
	out := make([]float64, len(bands))
	for i, b := range bands {
		var sum float64
		count := 0
		for k, f := range r.FreqHz {
			if f >= b.LoHz && f < b.HiHz {
				sum += r.MagDB[k]
				count++
			}
		}
		if count == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = sum / float64(count)
	}
	return out
}

// ResponseDistanceDB returns the RMS dB difference between two responses
// over [loHz, hiHz]. Both must share sample rate and FFT size.
func ResponseDistanceDB(a, b Response, loHz, hiHz float64) (float64, error) {
	if a.SampleRate != b.SampleRate || a.FFTSize != b.FFTSize {
		return 0, fmt.Errorf("response grids differ: %d/%d vs %d/%d", a.SampleRate, a.FFTSize, b.SampleRate, b.FFTSize)
	}
	var sum float64
	count := 0
	for k, f := range a.FreqHz {
		if f < loHz || f > hiHz {
			continue
		}
		d := a.MagDB[k] - b.MagDB[k]
		sum += d * d
		count++
	}
	if count == 0 {
		return 0, fmt.Errorf("no bins in [%g,%g] Hz", loHz, hiHz)
	}
	return math.Sqrt(sum / float64(count)), nil
}

func newResponse(sampleRate, fftSize int) Response {
	bins := fftSize/2 + 1
	r := Response{
		SampleRate: sampleRate,
		FFTSize:    fftSize,
		FreqHz:     make([]float64, bins),
		MagDB:      make([]float64, bins),
	}
	binHz := float64(sampleRate) / float64(fftSize)
	for k := range r.FreqHz {
		r.FreqHz[k] = float64(k) * binHz
	}
	return r
}

func hannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

func cmplxAbs(c complex128) float64 {
	return math.Hypot(real(c), imag(c))
}
