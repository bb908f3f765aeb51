package analysis

import (
	"fmt"
	"math"
	"math/bits"
	"math/cmplx"

	algofft "github.com/cwbudde/algo-fft"
)

const (
	onsetThreshold = 1e-6
	// Signals are compared at a common RMS so level is judged only by LevelDiffDB.
	compareRMS = 0.1
	// Shortest overlap worth scoring, and the longest that is scored.
	minAlignedFrames = 256
	maxAlignedSec    = 12
	// Lag search covers +-20 ms over the first two seconds.
	maxLagSec    = 0.02
	lagWindowSec = 2
	// Envelope frames are 10 ms.
	envelopeFrameSec = 0.01
)

// Metrics compares a tape render against a reference recording.
type Metrics struct {
	SampleRate int `json:"sample_rate"`

	ReferenceFrames int `json:"reference_frames"`
	CandidateFrames int `json:"candidate_frames"`
	AlignedFrames   int `json:"aligned_frames"`
	LagSamples      int `json:"lag_samples"`

	TimeRMSE       float64 `json:"time_rmse"`
	EnvelopeRMSEDB float64 `json:"envelope_rmse_db"`
	SpectralRMSEDB float64 `json:"spectral_rmse_db"`
	LevelDiffDB    float64 `json:"level_diff_db"`
	// BandDiffDB is candidate minus reference per DefaultBands entry. It
	// shows where a render misses the head bump or the high-frequency loss.
	BandDiffDB []float64 `json:"band_diff_db"`

	Score      float64 `json:"score"`
	Similarity float64 `json:"similarity"`
}

// scoreTerm maps one metric onto [0,1], saturating at full.
type scoreTerm struct {
	weight float64
	full   float64
	value  func(*Metrics) float64
}

var scoreTerms = []scoreTerm{
	{0.25, 0.25, func(m *Metrics) float64 { return m.TimeRMSE }},
	{0.20, 30, func(m *Metrics) float64 { return m.EnvelopeRMSEDB }},
	{0.40, 30, func(m *Metrics) float64 { return m.SpectralRMSEDB }},
	{0.15, 24, func(m *Metrics) float64 { return math.Abs(m.LevelDiffDB) }},
}

func (m *Metrics) combine() {
	var s float64
	for _, t := range scoreTerms {
		s += t.weight * clamp01(t.value(m)/t.full)
	}
	m.Score = clamp01(s)
	m.Similarity = math.Exp(-4.0 * m.Score)
}

func (m *Metrics) worst() Metrics {
	m.Score = 1
	m.Similarity = 0
	return *m
}

// Compare scores a candidate render against a reference recording. Both
// are trimmed to their first sound and aligned by cross-correlation, so
// processing latency does not count as distance. Score is in [0,1] with 0
// meaning identical. Signals too short to compare score 1.
func Compare(reference, candidate []float64, sampleRate int) (Metrics, error) {
	m := Metrics{
		SampleRate:      sampleRate,
		ReferenceFrames: len(reference),
		CandidateFrames: len(candidate),
	}
	if sampleRate <= 0 {
		return m.worst(), nil
	}
	ref := reference[onset(reference):]
	cand := candidate[onset(candidate):]
	if len(ref) == 0 || len(cand) == 0 {
		return m.worst(), nil
	}

	refRMS, candRMS := rmsOf(ref), rmsOf(cand)
	m.LevelDiffDB = linToDB(candRMS) - linToDB(refRMS)
	ref = scaled(ref, compareRMS, refRMS)
	cand = scaled(cand, compareRMS, candRMS)

	maxLag := int(maxLagSec * float64(sampleRate))
	maxLag = max(1, min(maxLag, len(ref)-1, len(cand)-1))
	w := lagWindowSec * sampleRate
	lag, err := correlationLag(ref[:min(w, len(ref))], cand[:min(w, len(cand))], maxLag)
	if err != nil {
		return m, fmt.Errorf("lag search: %w", err)
	}
	m.LagSamples = lag

	ref, cand = overlap(ref, cand, lag, maxAlignedSec*sampleRate)
	if len(ref) < minAlignedFrames {
		return m.worst(), nil
	}
	m.AlignedFrames = len(ref)

	m.TimeRMSE = rmsDiff(ref, cand)
	m.EnvelopeRMSEDB = envelopeDistanceDB(ref, cand, max(1, int(envelopeFrameSec*float64(sampleRate))))
	m.SpectralRMSEDB, m.BandDiffDB, err = spectralDistance(ref, cand, sampleRate)
	if err != nil {
		return m, err
	}
	m.combine()
	return m, nil
}

// onset returns the index of the first sample above onsetThreshold, or
// len(x) for silence.
func onset(x []float64) int {
	for i, v := range x {
		if math.Abs(v) > onsetThreshold {
			return i
		}
	}
	return len(x)
}

// scaled returns a copy of x brought from level to target RMS.
func scaled(x []float64, target, level float64) []float64 {
	g := 1.0
	if level > 1e-12 {
		g = target / level
	}
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = v * g
	}
	return out
}

// correlationLag returns the lag in [-maxLag, maxLag] that maximises
// sum(ref[i+lag] * cand[i]), computed by FFT cross-correlation.
func correlationLag(ref, cand []float64, maxLag int) (int, error) {
	if len(ref) == 0 || len(cand) == 0 {
		return 0, nil
	}
	size := max(2, 1<<bits.Len(uint(max(len(ref), len(cand))+maxLag)))
	plan, err := algofft.NewPlanReal64(size)
	if err != nil {
		return 0, err
	}

	bins := size/2 + 1
	fr := make([]complex128, bins)
	fc := make([]complex128, bins)
	buf := make([]float64, size)
	copy(buf, ref)
	if err := plan.Forward(fr, buf); err != nil {
		return 0, err
	}
	clear(buf)
	copy(buf, cand)
	if err := plan.Forward(fc, buf); err != nil {
		return 0, err
	}
	for k := range fr {
		fr[k] *= cmplx.Conj(fc[k])
	}
	fr[0] = complex(real(fr[0]), 0)
	fr[bins-1] = complex(real(fr[bins-1]), 0)
	if err := plan.Inverse(buf, fr); err != nil {
		return 0, err
	}

	best, bestLag := math.Inf(-1), 0
	for lag := -maxLag; lag <= maxLag; lag++ {
		if c := buf[(lag+size)%size]; c > best {
			best, bestLag = c, lag
		}
	}
	return bestLag, nil
}

// overlap drops the first lag samples of ref (or -lag of cand) and cuts
// both to their common length, at most limit.
func overlap(ref, cand []float64, lag, limit int) ([]float64, []float64) {
	if lag >= 0 {
		ref = ref[min(lag, len(ref)):]
	} else {
		cand = cand[min(-lag, len(cand)):]
	}
	n := min(len(ref), len(cand), limit)
	return ref[:n], cand[:n]
}

func rmsDiff(a, b []float64) float64 {
	if len(a) == 0 {
		return 0
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(a)))
}

func rmsOf(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(x)))
}

// envelopeDistanceDB is the RMS dB difference between the frame levels of
// a and b over consecutive frames of the given length.
func envelopeDistanceDB(a, b []float64, frame int) float64 {
	frames := len(a) / frame
	if frames == 0 {
		return 0
	}
	var sum float64
	for f := 0; f < frames; f++ {
		lo, hi := f*frame, (f+1)*frame
		d := linToDB(rmsOf(a[lo:hi])) - linToDB(rmsOf(b[lo:hi]))
		sum += d * d
	}
	return math.Sqrt(sum / float64(frames))
}

// spectralDistance compares the averaged spectra of a and b. It returns
// the RMS dB difference between 20 Hz and 20 kHz and the per-band level
// difference over DefaultBands. Bands without bins report 0.
func spectralDistance(a, b []float64, sampleRate int) (float64, []float64, error) {
	fftSize := 4096
	for fftSize > 512 && fftSize > len(a) {
		fftSize /= 2
	}
	if len(a) < fftSize {
		return 0, nil, nil
	}
	ra, err := AverageSpectrum(a, sampleRate, fftSize)
	if err != nil {
		return 0, nil, err
	}
	rb, err := AverageSpectrum(b, sampleRate, fftSize)
	if err != nil {
		return 0, nil, err
	}
	d, err := ResponseDistanceDB(ra, rb, 20, math.Min(20000, 0.5*float64(sampleRate)))
	if err != nil {
		return 0, nil, err
	}

	la, lb := BandLevels(ra, DefaultBands), BandLevels(rb, DefaultBands)
	bands := make([]float64, len(DefaultBands))
	for i := range bands {
		if diff := lb[i] - la[i]; !math.IsNaN(diff) {
			bands[i] = diff
		}
	}
	return d, bands, nil
}

func linToDB(x float64) float64 {
	return 20.0 * math.Log10(math.Max(x, 1e-12))
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}
