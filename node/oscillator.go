package node

import (
	"github.com/cwbudde/algo-poly/dsp"
	"github.com/cwbudde/algo-poly/osc"
)

// Oscillator renders a Generator at the voice's note frequency times
// ratio, plus offset Hz. A buffer on inlet 0 is added to the frequency
// sample by sample for frequency modulation.
type Oscillator struct {
	filterIn
	audioOut
	gen    osc.Generator
	base   *dsp.Param
	ratio  *dsp.Param
	offset *dsp.Param
}

// NewOscillator creates an oscillator sounding at frequency until a note
// arrives.
func NewOscillator(gen osc.Generator, frequency float32) *Oscillator {
	return &Oscillator{
		audioOut: newAudioOut(),
		gen:      gen,
		base:     dsp.NewParam(frequency),
		ratio:    dsp.NewParam(1),
		offset:   dsp.NewParam(0),
	}
}

// NoteOn retunes the oscillator. Phase is kept so retriggers stay smooth.
// Velocity is applied by the envelope, not here.
func (o *Oscillator) NoteOn(frequency, _ float32) {
	if dsp.IsFinite(frequency) {
		o.base.Store(frequency)
	}
}

// Frequency returns the current base frequency before ratio and offset.
func (o *Oscillator) Frequency() float32 { return o.base.Load() }

func (o *Oscillator) SetParameter(name string, v float32) error {
	if !dsp.IsFinite(v) {
		return invalidValue("oscillator", name, v)
	}
	switch name {
	case "frequency":
		o.base.Store(v)
	case "ratio":
		o.ratio.Store(v)
	case "offset":
		o.offset.Store(v)
	default:
		return unknownParameter("oscillator", name)
	}
	return nil
}

func (o *Oscillator) Compute(frames int) {
	if o.in != nil {
		frames = o.in.Len()
	}
	o.out.Resize(frames)
	out := o.out.Samples()
	f := o.base.Load()*o.ratio.Load() + o.offset.Load()
	if !dsp.IsFinite(f) {
		f = 0
	}

	if o.in == nil {
		for i := range out {
			out[i] = o.gen.Generate(f)
		}
		return
	}
	fm := o.in.Samples()
	for i := range out {
		out[i] = o.gen.Generate(f + fm[i])
	}
}

func (o *Oscillator) Reset() { o.gen.Reset() }

func (o *Oscillator) Clone() Node {
	c := NewOscillator(o.gen.Clone(), o.base.Load())
	c.ratio.Store(o.ratio.Load())
	c.offset.Store(o.offset.Load())
	return c
}
