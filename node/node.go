// Package node defines the processing units wired together by a patch graph.
//
// A node exposes typed inlets and outlets, receives its inputs for the
// current tick through SetBuffer/SetScalar, and produces its outputs in
// Compute. Parameters may be written from any goroutine through
// SetParameter; Compute reads them without blocking or allocating.
package node

import (
	"errors"
	"fmt"

	"github.com/cwbudde/algo-poly/dsp"
)

// Kind is a bitmask of the signal types a port carries or accepts.
type Kind uint8

const (
	KindBuffer Kind = 1 << iota
	KindScalar
)

// Accepts reports whether an inlet of kind k can take a source of kind src.
func (k Kind) Accepts(src Kind) bool {
	return k&src != 0
}

func (k Kind) String() string {
	switch k {
	case KindBuffer:
		return "buffer"
	case KindScalar:
		return "scalar"
	case KindBuffer | KindScalar:
		return "buffer|scalar"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ErrUnknownParameter is returned by SetParameter for names a node does not have.
var ErrUnknownParameter = errors.New("unknown parameter")

// ErrInvalidValue is returned by SetParameter for NaN or infinite values.
var ErrInvalidValue = errors.New("invalid parameter value")

// Node is one processing unit of a patch.
type Node interface {
	Inlets() []Kind
	Outlets() []Kind

	// SetBuffer hands the node the block feeding inlet for this tick, or
	// nil when the inlet is unconnected.
	SetBuffer(inlet int, b *dsp.Block)
	// SetScalar delivers a control value to inlet.
	SetScalar(inlet int, v float32)

	Compute(frames int)

	Buffer(outlet int) *dsp.Block
	Scalar(outlet int) float32

	SetParameter(name string, v float32) error
	Reset()
	// Clone returns a node with the same configuration and fresh state.
	Clone() Node
}

// NoteReceiver is implemented by nodes that follow the note of their voice.
type NoteReceiver interface {
	NoteOn(frequency, velocity float32)
}

func unknownParameter(node, name string) error {
	return fmt.Errorf("%s: %w %q", node, ErrUnknownParameter, name)
}

func invalidValue(node, name string, v float32) error {
	return fmt.Errorf("%s: %w %s=%v", node, ErrInvalidValue, name, v)
}

var (
	bufferIn  = []Kind{KindBuffer}
	bufferOut = []Kind{KindBuffer}
	mixedIn   = []Kind{KindBuffer, KindBuffer | KindScalar}
	twoBufIn  = []Kind{KindBuffer, KindBuffer}
	scalarOut = []Kind{KindScalar}
)

// audioOut is the shared output half of single-outlet buffer nodes.
type audioOut struct {
	out *dsp.Block
}

func newAudioOut() audioOut {
	return audioOut{out: dsp.NewBlock(0)}
}

func (a *audioOut) Outlets() []Kind { return bufferOut }

func (a *audioOut) Buffer(outlet int) *dsp.Block {
	if outlet != 0 {
		return nil
	}
	return a.out
}

func (a *audioOut) Scalar(int) float32 { return 0 }

// filterIn is the input half of single-inlet buffer nodes.
type filterIn struct {
	in *dsp.Block
}

func (f *filterIn) Inlets() []Kind { return bufferIn }

func (f *filterIn) SetBuffer(inlet int, b *dsp.Block) {
	if inlet == 0 {
		f.in = b
	}
}

func (f *filterIn) SetScalar(int, float32) {}

// input returns the connected block, or a zeroed scratch block of the
// requested length when the inlet is unconnected.
func (f *filterIn) input(frames int, scratch *dsp.Block) *dsp.Block {
	if f.in != nil {
		return f.in
	}
	scratch.Resize(frames)
	scratch.Zero()
	return scratch
}

// Value is a control source holding one scalar.
type Value struct {
	value *dsp.Param
}

// NewValue creates a control source emitting v.
func NewValue(v float32) *Value {
	return &Value{value: dsp.NewParam(v)}
}

func (n *Value) Inlets() []Kind            { return nil }
func (n *Value) Outlets() []Kind           { return scalarOut }
func (n *Value) SetBuffer(int, *dsp.Block) {}
func (n *Value) SetScalar(int, float32)    {}
func (n *Value) Compute(int)               {}
func (n *Value) Buffer(int) *dsp.Block     { return nil }
func (n *Value) Scalar(outlet int) float32 { return n.value.Load() }
func (n *Value) Reset()                    {}
func (n *Value) Clone() Node               { return NewValue(n.value.Load()) }
func (n *Value) SetParameter(name string, v float32) error {
	if name != "value" {
		return unknownParameter("value", name)
	}
	n.value.Store(v)
	return nil
}
