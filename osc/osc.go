// Package osc provides minimal wavetable generators behind the Generator
// capability consumed by oscillator nodes.
package osc

import "math"

// Generator produces one sample per call at the requested frequency.
type Generator interface {
	Generate(frequency float32) float32
	Reset()
	Clone() Generator
}

const tableSize = 1024

// Wavetable is a single-cycle table read with linear interpolation.
type Wavetable struct {
	sampleRate float32
	table      []float32 // shared between clones, never written after construction
	phase      float32
}

// NewSine creates a sine generator.
func NewSine(sampleRate int) *Wavetable {
	return newWavetable(sampleRate, func(k int) float32 {
		if k == 1 {
			return 1
		}
		return 0
	}, 1)
}

// NewTriangle creates a band-limited triangle from odd harmonics.
func NewTriangle(sampleRate int, harmonics int) *Wavetable {
	return newWavetable(sampleRate, func(k int) float32 {
		if k%2 == 0 {
			return 0
		}
		sign := float32(1)
		if (k/2)%2 == 1 {
			sign = -1
		}
		return sign / float32(k*k)
	}, harmonics)
}

// NewSaw creates a band-limited sawtooth.
func NewSaw(sampleRate int, harmonics int) *Wavetable {
	return newWavetable(sampleRate, func(k int) float32 {
		return 1 / float32(k)
	}, harmonics)
}

func newWavetable(sampleRate int, amp func(k int) float32, harmonics int) *Wavetable {
	if sampleRate <= 0 {
		sampleRate = 48000
	}
	if harmonics < 1 {
		harmonics = 1
	}
	table := make([]float32, tableSize+1)
	peak := float32(0)
	for i := 0; i < tableSize; i++ {
		x := 2 * math.Pi * float64(i) / tableSize
		var s float32
		for k := 1; k <= harmonics; k++ {
			if a := amp(k); a != 0 {
				s += a * float32(math.Sin(float64(k)*x))
			}
		}
		table[i] = s
		if s < 0 {
			s = -s
		}
		peak = max(peak, s)
	}
	if peak > 0 {
		for i := range table {
			table[i] /= peak
		}
	}
	table[tableSize] = table[0]
	return &Wavetable{sampleRate: float32(sampleRate), table: table}
}

// Generate returns the next sample and advances the phase. A non-finite
// frequency holds the phase.
func (w *Wavetable) Generate(frequency float32) float32 {
	if !(w.phase >= 0 && w.phase < 1) {
		w.phase = 0
	}
	pos := w.phase * tableSize
	i := min(int(pos), tableSize-1)
	frac := pos - float32(i)
	s := w.table[i] + frac*(w.table[i+1]-w.table[i])

	step := float64(frequency) / float64(w.sampleRate)
	if math.IsNaN(step) || math.IsInf(step, 0) {
		return s
	}
	p := float64(w.phase) + step
	w.phase = float32(p - math.Floor(p))
	if !(w.phase >= 0 && w.phase < 1) {
		w.phase = 0
	}
	return s
}

// Reset restarts the cycle.
func (w *Wavetable) Reset() {
	w.phase = 0
}

// Clone shares the table and starts from phase zero.
func (w *Wavetable) Clone() Generator {
	return &Wavetable{sampleRate: w.sampleRate, table: w.table}
}

// ByName returns a generator for "sine", "triangle" or "saw".
func ByName(name string, sampleRate int) (Generator, bool) {
	switch name {
	case "sine", "":
		return NewSine(sampleRate), true
	case "triangle":
		return NewTriangle(sampleRate, 8), true
	case "saw":
		return NewSaw(sampleRate, 16), true
	}
	return nil, false
}
