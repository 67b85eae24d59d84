// Package irsynth generates synthetic mono room responses for the
// convolver node.
package irsynth

import (
	"fmt"
	"math"
	"math/rand"
)

// Room controls the generated response.
type Room struct {
	SampleRate int
	Duration   float64 // seconds
	Seed       int64

	DirectLevel float64
	EarlyCount  int     // reflections in the first 50 ms
	Modes       int     // damped resonances colouring the tail
	Brightness  float64 // >1 keeps more high-frequency energy
	LateLevel   float64 // diffuse noise tail

	LowDecay  float64 // seconds, low end
	HighDecay float64 // seconds, high end
	FadeOut   float64 // cosine fade at the end, 0 disables

	NormalizePeak float64
}

// DefaultRoom returns a small, fairly dry room at sampleRate.
func DefaultRoom(sampleRate int) Room {
	return Room{
		SampleRate:    sampleRate,
		Duration:      0.6,
		Seed:          1,
		DirectLevel:   0.8,
		EarlyCount:    24,
		Modes:         48,
		Brightness:    0.8,
		LateLevel:     0.05,
		LowDecay:      0.8,
		HighDecay:     0.15,
		FadeOut:       0.01,
		NormalizePeak: 0.9,
	}
}

func (r *Room) Validate() error {
	if r.SampleRate < 8000 {
		return fmt.Errorf("sample rate too low: %d", r.SampleRate)
	}
	if r.Duration <= 0 {
		return fmt.Errorf("duration must be > 0")
	}
	if r.EarlyCount < 0 || r.Modes < 0 {
		return fmt.Errorf("early count and modes must be >= 0")
	}
	if r.Brightness <= 0 {
		return fmt.Errorf("brightness must be > 0")
	}
	if r.DirectLevel < 0 || r.LateLevel < 0 {
		return fmt.Errorf("levels must be >= 0")
	}
	if r.LowDecay <= 0 || r.HighDecay <= 0 {
		return fmt.Errorf("decay seconds must be > 0")
	}
	if r.FadeOut < 0 {
		return fmt.Errorf("fade out must be >= 0")
	}
	if r.NormalizePeak <= 0 {
		return fmt.Errorf("normalize peak must be > 0")
	}
	return nil
}

// Generate renders the response. The same Room always yields the same
// samples.
func Generate(r Room) ([]float32, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	n := max(1, int(math.Round(r.Duration*float64(r.SampleRate))))
	buf := make([]float64, n)
	rng := rand.New(rand.NewSource(r.Seed))
	sr := float64(r.SampleRate)

	buf[0] += r.DirectLevel

	for range r.EarlyCount {
		t := 0.001 + 0.049*rng.Float64()
		idx := int(t * sr)
		if idx <= 0 || idx >= n {
			continue
		}
		amp := (0.1 + 0.35*rng.Float64()) * math.Exp(-20*t)
		amp *= math.Pow(0.5+0.5*rng.Float64(), 1/r.Brightness)
		if rng.Intn(2) == 0 {
			amp = -amp
		}
		buf[idx] += amp
	}

	// Log-spaced modes; decay blends from LowDecay to HighDecay with frequency.
	lo, hi := 40.0, 0.45*sr
	tilt := 0.7 + 0.9/r.Brightness
	for m := range r.Modes {
		x := (float64(m) + 0.5) / float64(r.Modes)
		f := lo * math.Pow(hi/lo, x)
		amp := 0.2 / math.Pow(1+f/150, tilt) * (0.7 + 0.6*rng.Float64())
		tau := r.LowDecay + (r.HighDecay-r.LowDecay)*math.Sqrt(x)
		addMode(buf, amp, f/sr, 2*math.Pi*rng.Float64(), math.Exp(-1/(tau*sr)))
	}

	if r.LateLevel > 0 {
		var low, high float64
		bright := max(0, 0.3*(r.Brightness-0.3))
		for i := range buf {
			t := float64(i) / sr
			noise := rng.NormFloat64()
			low = 0.985*low + 0.015*noise
			high = 0.15*noise - 0.15*high
			buf[i] += r.LateLevel * (math.Exp(-t/(0.75*r.LowDecay))*low + bright*math.Exp(-t/(0.75*r.HighDecay))*high)
		}
	}

	removeDC(buf, 0.995)
	fadeOut(buf, int(math.Round(r.FadeOut*sr)))

	peak := 1e-12
	for _, v := range buf {
		peak = max(peak, math.Abs(v))
	}
	g := r.NormalizePeak / peak
	out := make([]float32, n)
	for i, v := range buf {
		out[i] = float32(v * g)
	}
	return out, nil
}

// addMode accumulates a decaying cosine using the two-term recurrence.
// freq is in cycles per sample.
func addMode(out []float64, amp, freq, phase, decay float64) {
	w := 2 * math.Pi * freq
	c := 2 * math.Cos(w)
	x0, x1 := math.Cos(phase-w), math.Cos(phase)
	env := amp
	for i := range out {
		out[i] += env * x1
		x0, x1 = x1, c*x1-x0
		env *= decay
	}
}

func removeDC(x []float64, r float64) {
	var prevIn, prevOut float64
	for i, v := range x {
		y := v - prevIn + r*prevOut
		prevIn, prevOut = v, y
		x[i] = y
	}
}

// fadeOut applies a raised-cosine fade over the last n samples, reaching
// exactly zero on the final one.
func fadeOut(x []float64, n int) {
	n = min(n, len(x))
	if n < 2 {
		return
	}
	start := len(x) - n
	for i := range n {
		x[start+i] *= 0.5 * (1 + math.Cos(math.Pi*float64(i)/float64(n-1)))
	}
}
