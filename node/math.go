package node

import "github.com/cwbudde/algo-poly/dsp"

// binary is the shared input side of nodes combining a buffer on inlet 0
// with a buffer or held scalar on inlet 1.
type binary struct {
	left, right *dsp.Block
	held        *dsp.Param
	scratch     *dsp.Block
}

func newBinary(held float32) binary {
	return binary{held: dsp.NewParam(held), scratch: dsp.NewBlock(0)}
}

func (b *binary) Inlets() []Kind { return mixedIn }

func (b *binary) SetBuffer(inlet int, blk *dsp.Block) {
	switch inlet {
	case 0:
		b.left = blk
	case 1:
		b.right = blk
	}
}

// SetScalar on inlet 1 replaces the held scalar, the same cell the named
// parameter writes.
func (b *binary) SetScalar(inlet int, v float32) {
	if inlet == 1 {
		b.held.Store(v)
	}
}

func (b *binary) leftInput(frames int) []float32 {
	if b.left != nil {
		return b.left.Samples()
	}
	b.scratch.Resize(frames)
	b.scratch.Zero()
	return b.scratch.Samples()
}

// Multiply scales inlet 0 by inlet 1. Without a buffer on inlet 1 it
// multiplies by the held factor, 1 unless set.
type Multiply struct {
	binary
	audioOut
}

// NewMultiply creates a multiplier with the given held factor.
func NewMultiply(factor float32) *Multiply {
	return &Multiply{binary: newBinary(factor), audioOut: newAudioOut()}
}

func (m *Multiply) SetParameter(name string, v float32) error {
	if name != "factor" {
		return unknownParameter("multiply", name)
	}
	m.held.Store(v)
	return nil
}

func (m *Multiply) Compute(frames int) {
	in := m.leftInput(frames)
	m.out.Resize(len(in))
	out := m.out.Samples()

	if m.right == nil {
		f := m.held.Load()
		for i, x := range in {
			out[i] = x * f
		}
		return
	}
	r := m.right.Samples()
	for i, x := range in {
		if i < len(r) {
			out[i] = x * r[i]
		} else {
			out[i] = 0
		}
	}
}

// Reset drops the input references; they are handed in again next tick.
func (m *Multiply) Reset() { m.left, m.right = nil, nil }

func (m *Multiply) Clone() Node { return NewMultiply(m.held.Load()) }

// Add sums inlet 0 with inlet 1, or with the held offset when inlet 1 has
// no buffer.
type Add struct {
	binary
	audioOut
}

// NewAdd creates an adder with the given held offset.
func NewAdd(offset float32) *Add {
	return &Add{binary: newBinary(offset), audioOut: newAudioOut()}
}

func (a *Add) SetParameter(name string, v float32) error {
	if name != "offset" {
		return unknownParameter("add", name)
	}
	a.held.Store(v)
	return nil
}

func (a *Add) Compute(frames int) {
	in := a.leftInput(frames)
	a.out.Resize(len(in))
	out := a.out.Samples()

	if a.right == nil {
		o := a.held.Load()
		for i, x := range in {
			out[i] = x + o
		}
		return
	}
	r := a.right.Samples()
	copy(out, in)
	a.out.Add(r)
}

func (a *Add) Reset() { a.left, a.right = nil, nil }

func (a *Add) Clone() Node { return NewAdd(a.held.Load()) }

// Clip limits its input to [min, max].
type Clip struct {
	filterIn
	audioOut
	lo, hi  *dsp.Param
	scratch *dsp.Block
}

// NewClip creates a clipper. Bounds given in the wrong order are swapped.
func NewClip(lo, hi float32) *Clip {
	c := &Clip{
		audioOut: newAudioOut(),
		lo:       dsp.NewParam(0),
		hi:       dsp.NewParam(0),
		scratch:  dsp.NewBlock(0),
	}
	c.Set(lo, hi)
	return c
}

// Set updates both bounds.
func (c *Clip) Set(lo, hi float32) {
	if lo > hi {
		lo, hi = hi, lo
	}
	c.lo.Store(lo)
	c.hi.Store(hi)
}

func (c *Clip) SetParameter(name string, v float32) error {
	switch name {
	case "min":
		c.lo.Store(v)
	case "max":
		c.hi.Store(v)
	default:
		return unknownParameter("clip", name)
	}
	return nil
}

func (c *Clip) Compute(frames int) {
	in := c.input(frames, c.scratch).Samples()
	c.out.Resize(len(in))
	out := c.out.Samples()
	lo, hi := c.lo.Load(), c.hi.Load()
	for i, x := range in {
		out[i] = dsp.Clamp(x, lo, hi)
	}
}

func (c *Clip) Reset() {}

func (c *Clip) Clone() Node { return NewClip(c.lo.Load(), c.hi.Load()) }

// Gain scales its input by the amplitude parameter.
type Gain struct {
	filterIn
	audioOut
	amplitude *dsp.Param
	scratch   *dsp.Block
}

func NewGain(amplitude float32) *Gain {
	return &Gain{
		audioOut:  newAudioOut(),
		amplitude: dsp.NewParam(amplitude),
		scratch:   dsp.NewBlock(0),
	}
}

func (g *Gain) SetParameter(name string, v float32) error {
	if name != "amplitude" {
		return unknownParameter("gain", name)
	}
	g.amplitude.Store(v)
	return nil
}

func (g *Gain) Compute(frames int) {
	in := g.input(frames, g.scratch).Samples()
	g.out.Resize(len(in))
	out := g.out.Samples()
	a := g.amplitude.Load()
	for i, x := range in {
		out[i] = x * a
	}
}

func (g *Gain) Reset() {}

func (g *Gain) Clone() Node { return NewGain(g.amplitude.Load()) }
