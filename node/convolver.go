package node

import (
	"errors"
	"fmt"
	"sync/atomic"

	dspconv "github.com/cwbudde/algo-dsp/dsp/conv"

	"github.com/cwbudde/algo-poly/dsp"
	"github.com/cwbudde/algo-poly/internal/wavio"
)

// DefaultPartSize is the convolver partition length in samples.
const DefaultPartSize = 128

var ErrInvalidIR = errors.New("invalid impulse response")

// convState is everything the render path touches for one IR. A new state
// is built and published on every IR change.
type convState struct {
	ir  []float32
	ola *dspconv.StreamingOverlapAddT[float32, complex64]
	out []float32
	pad []float32
}

// Convolver applies a mono impulse response with streaming partitioned
// convolution. Block lengths that are not a multiple of the partition size
// are zero padded in their last chunk, which truncates the tail carried
// into the next block; render with a block size that is a multiple of
// PartSize.
type Convolver struct {
	filterIn
	audioOut
	sampleRate int
	partSize   int
	state      atomic.Pointer[convState]
	scratch    *dsp.Block
}

// NewConvolver creates a convolver with an identity IR.
func NewConvolver(sampleRate, partSize int) *Convolver {
	if partSize <= 0 {
		partSize = DefaultPartSize
	}
	c := &Convolver{
		audioOut:   newAudioOut(),
		sampleRate: sampleRate,
		partSize:   partSize,
		scratch:    dsp.NewBlock(0),
	}
	_ = c.SetIR([]float32{1})
	return c
}

// PartSize returns the partition length.
func (c *Convolver) PartSize() int { return c.partSize }

// IRLen returns the active impulse response length.
func (c *Convolver) IRLen() int { return len(c.state.Load().ir) }

// SetIR installs ir. The slice is copied. An empty IR is the identity.
func (c *Convolver) SetIR(ir []float32) error {
	if len(ir) == 0 {
		ir = []float32{1}
	}
	st, err := newConvState(append([]float32(nil), ir...), c.partSize)
	if err != nil {
		return err
	}
	c.state.Store(st)
	return nil
}

func newConvState(ir []float32, partSize int) (*convState, error) {
	ola, err := dspconv.NewStreamingOverlapAdd32(ir, partSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIR, err)
	}
	return &convState{
		ir:  ir,
		ola: ola,
		out: make([]float32, partSize),
		pad: make([]float32, partSize),
	}, nil
}

// SetIRFromWAV loads an impulse response from a WAV file, keeping the first
// channel and resampling to the convolver's rate when needed.
func (c *Convolver) SetIRFromWAV(path string) error {
	ir, err := LoadIR(path, c.sampleRate)
	if err != nil {
		return err
	}
	return c.SetIR(ir)
}

// LoadIR reads the first channel of a WAV file at sampleRate.
func LoadIR(path string, sampleRate int) ([]float32, error) {
	clip, err := wavio.Read(path)
	if err != nil {
		if errors.Is(err, wavio.ErrInvalidFile) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidIR, err)
		}
		return nil, err
	}
	return wavio.Resample(clip.Channel(0), clip.SampleRate, sampleRate)
}

func (c *Convolver) SetParameter(name string, _ float32) error {
	return unknownParameter("convolver", name)
}

func (c *Convolver) Compute(frames int) {
	in := c.input(frames, c.scratch).Samples()
	c.out.Resize(len(in))
	out := c.out.Samples()
	st := c.state.Load()

	for done := 0; done < len(in); done += c.partSize {
		end := min(done+c.partSize, len(in))
		chunk := in[done:end]
		if len(chunk) < c.partSize {
			copy(st.pad, chunk)
			clear(st.pad[len(chunk):])
			chunk = st.pad
		}
		if err := st.ola.ProcessBlockTo(st.out, chunk); err != nil {
			copy(out[done:end], in[done:end])
			continue
		}
		copy(out[done:end], st.out)
	}
}

func (c *Convolver) Reset() { c.state.Load().ola.Reset() }

// Clone shares the IR samples and builds its own overlap-add state.
func (c *Convolver) Clone() Node {
	n := &Convolver{
		audioOut:   newAudioOut(),
		sampleRate: c.sampleRate,
		partSize:   c.partSize,
		scratch:    dsp.NewBlock(0),
	}
	st, err := newConvState(c.state.Load().ir, c.partSize)
	if err != nil {
		_ = n.SetIR(nil)
		return n
	}
	n.state.Store(st)
	return n
}
