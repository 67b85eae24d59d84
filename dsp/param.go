package dsp

import (
	"math"
	"sync/atomic"

	dspcore "github.com/cwbudde/algo-dsp/dsp/core"
)

// Param is a single-writer/single-reader float cell shared between the
// control context and the render context. Store and Load never block.
//
// A Store that happens before a render call is visible to that render call
// or a later one; a render call never observes a value older than one it
// already read.
type Param struct {
	bits atomic.Uint32
}

// NewParam creates a cell holding v.
func NewParam(v float32) *Param {
	p := &Param{}
	p.Store(v)
	return p
}

// Store publishes v.
func (p *Param) Store(v float32) {
	p.bits.Store(math.Float32bits(v))
}

// Load returns the latest published value.
func (p *Param) Load() float32 {
	return math.Float32frombits(p.bits.Load())
}

// FlushDenormals zeroes values small enough to stall the FPU in feedback paths.
func FlushDenormals(x float32) float32 {
	return float32(dspcore.FlushDenormals(float64(x)))
}

// Clamp limits x to [lo, hi]. NaN maps to lo.
func Clamp(x, lo, hi float32) float32 {
	if x != x || x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// IsFinite reports whether x is neither NaN nor infinite.
func IsFinite(x float32) bool {
	return !math.IsNaN(float64(x)) && !math.IsInf(float64(x), 0)
}
