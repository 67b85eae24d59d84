package dsp

import (
	"math"

	"github.com/cwbudde/algo-approx"
)

// BiquadType selects the response computed by DesignBiquad.
type BiquadType int

const (
	BiquadLowpass BiquadType = iota
	BiquadHighpass
	BiquadBandpass
	BiquadNotch
	BiquadPeak
	BiquadLowShelf
	BiquadHighShelf
)

var biquadTypeNames = map[string]BiquadType{
	"lowpass":   BiquadLowpass,
	"highpass":  BiquadHighpass,
	"bandpass":  BiquadBandpass,
	"notch":     BiquadNotch,
	"peak":      BiquadPeak,
	"lowshelf":  BiquadLowShelf,
	"highshelf": BiquadHighShelf,
}

// ParseBiquadType maps a lowercase type name to its BiquadType.
func ParseBiquadType(name string) (BiquadType, bool) {
	t, ok := biquadTypeNames[name]
	return t, ok
}

// BiquadCoefs is a feedback/feedforward coefficient set. Feedback terms use
// the additive sign convention: w[n] = x[n] + FB1*w[n-1] + FB2*w[n-2].
type BiquadCoefs struct {
	FB1, FB2      float32
	FF1, FF2, FF3 float32
}

// Stable reports whether the feedback pair keeps both poles inside the unit
// circle. Complex poles need FB2 >= -1; real poles must satisfy the
// triangle bounds on FB1.
func (c BiquadCoefs) Stable() bool {
	for _, v := range [...]float32{c.FB1, c.FB2, c.FF1, c.FF2, c.FF3} {
		if !IsFinite(v) {
			return false
		}
	}
	discriminant := c.FB1*c.FB1 + 4*c.FB2
	if discriminant < 0 {
		return c.FB2 >= -1
	}
	return c.FB1 <= 2 && c.FB1 >= -2 && 1-c.FB1-c.FB2 >= 0 && 1+c.FB1-c.FB2 >= 0
}

// Safe returns c when stable and the all-zero set otherwise.
func (c BiquadCoefs) Safe() (BiquadCoefs, bool) {
	if c.Stable() {
		return c, true
	}
	return BiquadCoefs{}, false
}

// DesignBiquad derives a coefficient set for the given response. gainDB only
// affects the peak and shelf types. The result is passed through Safe.
func DesignBiquad(t BiquadType, freq, q, gainDB float32, sampleRate int) (BiquadCoefs, bool) {
	if sampleRate <= 0 {
		return BiquadCoefs{}, false
	}
	const ln10 = 2.302585092994046
	v := float64(approx.FastExp(float32(math.Abs(float64(gainDB))) / 20 * ln10))
	k := math.Tan(math.Pi * float64(freq) / float64(sampleRate))
	qq := float64(q)
	kk := k * k
	sqrt2v := math.Sqrt(2 * v)

	var ff1, ff2, ff3, fb1, fb2, norm float64
	switch t {
	case BiquadLowpass:
		norm = 1 / (1 + k/qq + kk)
		ff1 = kk * norm
		ff2 = 2 * ff1
		ff3 = ff1
		fb1 = 2 * (kk - 1) * norm
		fb2 = (1 - k/qq + kk) * norm
	case BiquadHighpass:
		norm = 1 / (1 + k/qq + kk)
		ff1 = norm
		ff2 = -2 * ff1
		ff3 = ff1
		fb1 = 2 * (kk - 1) * norm
		fb2 = (1 - k/qq + kk) * norm
	case BiquadBandpass:
		norm = 1 / (1 + k/qq + kk)
		ff1 = k / qq * norm
		ff2 = 0
		ff3 = -ff1
		fb1 = 2 * (kk - 1) * norm
		fb2 = (1 - k/qq + kk) * norm
	case BiquadNotch:
		norm = 1 / (1 + k/qq + kk)
		ff1 = (1 + kk) * norm
		ff2 = 2 * (kk - 1) * norm
		ff3 = ff1
		fb1 = ff2
		fb2 = (1 - k/qq + kk) * norm
	case BiquadPeak:
		if gainDB >= 0 {
			norm = 1 / (1 + k/qq + kk)
			ff1 = (1 + v/qq*k + kk) * norm
			ff2 = 2 * (kk - 1) * norm
			ff3 = (1 - v/qq*k + kk) * norm
			fb1 = ff2
			fb2 = (1 - k/qq + kk) * norm
		} else {
			norm = 1 / (1 + v/qq*k + kk)
			ff1 = (1 + k/qq + kk) * norm
			ff2 = 2 * (kk - 1) * norm
			ff3 = (1 - k/qq + kk) * norm
			fb1 = ff2
			fb2 = (1 - v/qq*k + kk) * norm
		}
	case BiquadLowShelf:
		if gainDB >= 0 {
			norm = 1 / (1 + math.Sqrt2*k + kk)
			ff1 = (1 + sqrt2v*k + v*kk) * norm
			ff2 = 2 * (v*kk - 1) * norm
			ff3 = (1 - sqrt2v*k + v*kk) * norm
			fb1 = 2 * (kk - 1) * norm
			fb2 = (1 - math.Sqrt2*k + kk) * norm
		} else {
			norm = 1 / (1 + sqrt2v*k + v*kk)
			ff1 = (1 + math.Sqrt2*k + kk) * norm
			ff2 = 2 * (kk - 1) * norm
			ff3 = (1 - math.Sqrt2*k + kk) * norm
			fb1 = 2 * (v*kk - 1) * norm
			fb2 = (1 - sqrt2v*k + v*kk) * norm
		}
	case BiquadHighShelf:
		if gainDB >= 0 {
			norm = 1 / (1 + math.Sqrt2*k + kk)
			ff1 = (v + sqrt2v*k + kk) * norm
			ff2 = 2 * (kk - v) * norm
			ff3 = (v - sqrt2v*k + kk) * norm
			fb1 = 2 * (kk - 1) * norm
			fb2 = (1 - math.Sqrt2*k + kk) * norm
		} else {
			norm = 1 / (v + sqrt2v*k + kk)
			ff1 = (1 + math.Sqrt2*k + kk) * norm
			ff2 = 2 * (kk - 1) * norm
			ff3 = (1 - math.Sqrt2*k + kk) * norm
			fb1 = 2 * (kk - v) * norm
			fb2 = (v - sqrt2v*k + kk) * norm
		}
	default:
		return BiquadCoefs{}, false
	}

	return BiquadCoefs{
		FB1: float32(-fb1),
		FB2: float32(-fb2),
		FF1: float32(ff1),
		FF2: float32(ff2),
		FF3: float32(ff3),
	}.Safe()
}

// Biquad holds the two-sample recursion memory of a direct form II section.
// It is touched only by the render context.
type Biquad struct {
	last, previous float32
}

// Process filters in into out with the coefficient snapshot c.
// out must be at least as long as in.
func (b *Biquad) Process(c BiquadCoefs, in, out []float32) {
	last, previous := b.last, b.previous
	for i, x := range in {
		w := x + c.FB1*last + c.FB2*previous
		out[i] = c.FF1*w + c.FF2*last + c.FF3*previous
		previous = last
		last = FlushDenormals(w)
	}
	b.last, b.previous = last, previous
}

// Reset clears the filter state.
func (b *Biquad) Reset() {
	b.last, b.previous = 0, 0
}
