// Package analysis measures how far a render has drifted from a reference
// recording of the same patch and notes.
package analysis

import (
	"fmt"
	"math"
	"math/cmplx"

	algofft "github.com/cwbudde/algo-fft"
)

const (
	envFrame = 256
	envHop   = 128
	fftSize  = 2048
)

// Metrics are distances between a reference and a candidate render.
type Metrics struct {
	AlignedFrames  int     `json:"aligned_frames"`
	LagSamples     int     `json:"lag_samples"`
	PeakDiffDB     float64 `json:"peak_diff_db"`
	TimeRMSE       float64 `json:"time_rmse"`
	EnvelopeRMSEDB float64 `json:"envelope_rmse_db"`
	SpectralRMSEDB float64 `json:"spectral_rmse_db"`
	Score          float64 `json:"score"`      // 0 identical, 1 unrelated
	Similarity     float64 `json:"similarity"` // exp(-4*Score)
}

func (m Metrics) String() string {
	return fmt.Sprintf("lag=%d peak=%+.2fdB time=%.4f env=%.2fdB spec=%.2fdB score=%.3f similarity=%.3f",
		m.LagSamples, m.PeakDiffDB, m.TimeRMSE, m.EnvelopeRMSEDB, m.SpectralRMSEDB, m.Score, m.Similarity)
}

// Compare aligns candidate to reference within maxLag samples and scores
// the difference. Signals shorter than one analysis frame score 1.
func Compare(reference, candidate []float32, maxLag int) Metrics {
	m := Metrics{Score: 1}
	ref, cand := toFloat64(reference), toFloat64(candidate)
	if len(ref) < envFrame || len(cand) < envFrame {
		return m
	}
	m.PeakDiffDB = toDB(peak(cand)) - toDB(peak(ref))

	normalize(ref, 0.1)
	normalize(cand, 0.1)
	maxLag = max(0, min(maxLag, len(ref)-1, len(cand)-1))
	m.LagSamples = bestLag(ref, cand, maxLag)
	ref, cand = align(ref, cand, m.LagSamples)
	n := min(len(ref), len(cand))
	if n < envFrame {
		return m
	}
	ref, cand = ref[:n], cand[:n]
	m.AlignedFrames = n

	m.TimeRMSE = rmsDiff(ref, cand)
	m.EnvelopeRMSEDB = rmsDiffDB(envelope(ref), envelope(cand))
	m.SpectralRMSEDB = rmsDiffDB(spectrum(ref), spectrum(cand))

	m.Score = clamp01(0.35*clamp01(m.TimeRMSE/0.25) +
		0.30*clamp01(m.EnvelopeRMSEDB/30) +
		0.35*clamp01(m.SpectralRMSEDB/30))
	m.Similarity = math.Exp(-4 * m.Score)
	return m
}

func toFloat64(x []float32) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = float64(v)
	}
	return out
}

func peak(x []float64) float64 {
	p := 0.0
	for _, v := range x {
		p = math.Max(p, math.Abs(v))
	}
	return p
}

func rms(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(x)))
}

func normalize(x []float64, target float64) {
	r := rms(x)
	if r <= 1e-12 {
		return
	}
	g := target / r
	for i := range x {
		x[i] *= g
	}
}

// bestLag returns the shift in [-maxLag, maxLag] maximizing the cross
// correlation. A positive lag means the reference starts later.
func bestLag(ref, cand []float64, maxLag int) int {
	best, bestAt := math.Inf(-1), 0
	for lag := -maxLag; lag <= maxLag; lag++ {
		a, b := align(ref, cand, lag)
		var dot float64
		for i := range min(len(a), len(b)) {
			dot += a[i] * b[i]
		}
		if dot > best {
			best, bestAt = dot, lag
		}
	}
	return bestAt
}

func align(ref, cand []float64, lag int) ([]float64, []float64) {
	if lag >= 0 {
		return ref[min(lag, len(ref)):], cand
	}
	return ref, cand[min(-lag, len(cand)):]
}

func rmsDiff(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(a)))
}

// rmsDiffDB compares two magnitude curves in dB, flooring both at 80 dB
// below their joint peak so numerical noise does not dominate.
func rmsDiffDB(a, b []float64) float64 {
	n := min(len(a), len(b))
	if n == 0 {
		return 0
	}
	floor := math.Max(peak(a[:n]), peak(b[:n])) * 1e-4
	var sum float64
	for i := range n {
		d := toDB(math.Max(a[i], floor)) - toDB(math.Max(b[i], floor))
		sum += d * d
	}
	return math.Sqrt(sum / float64(n))
}

func envelope(x []float64) []float64 {
	n := 1 + (len(x)-envFrame)/envHop
	out := make([]float64, n)
	for i := range n {
		out[i] = rms(x[i*envHop : i*envHop+envFrame])
	}
	return out
}

// spectrum is the Hann-windowed magnitude spectrum averaged over frames,
// without the DC bin.
func spectrum(x []float64) []float64 {
	size := fftSize
	for size > len(x) {
		size /= 2
	}
	plan, err := algofft.NewPlanReal64(size)
	if err != nil {
		return nil
	}
	win := make([]float64, size)
	buf := make([]float64, size)
	spec := make([]complex128, size/2+1)
	avg := make([]float64, size/2)
	for i := range win {
		win[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(size-1))
	}
	frames := 0
	for pos := 0; pos+size <= len(x); pos += size / 2 {
		for i := range buf {
			buf[i] = x[pos+i] * win[i]
		}
		plan.Forward(spec, buf)
		for k := 1; k < len(spec)-1; k++ {
			avg[k-1] += cmplx.Abs(spec[k])
		}
		frames++
	}
	for i := range avg {
		avg[i] /= float64(frames)
	}
	return avg[:len(avg)-1]
}

func toDB(x float64) float64 {
	return 20 * math.Log10(math.Max(x, 1e-9))
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}
