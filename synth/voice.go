package synth

import (
	"errors"
	"fmt"

	"github.com/cwbudde/algo-poly/dsp"
	"github.com/cwbudde/algo-poly/envelope"
	"github.com/cwbudde/algo-poly/patch"
)

var ErrNoGraph = errors.New("template has no patch graph")

// Intent is the play/stop handshake between a voice and its owner.
type Intent int

const (
	WantsToPlay Intent = iota
	WantsToStop
	Playing
	Stopped
)

func (i Intent) String() string {
	switch i {
	case WantsToPlay:
		return "wants-to-play"
	case WantsToStop:
		return "wants-to-stop"
	case Playing:
		return "playing"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("Intent(%d)", int(i))
}

// Template is the static description every voice of a group is cloned
// from.
type Template struct {
	Points []envelope.BreakPoint
	Graph  *patch.Graph
	// Gain scales every voice's output. Zero or negative means 1.
	Gain float32
}

// NewVoice validates the template and builds an independent voice. The
// graph is cloned; the template's own graph is never processed.
func (t Template) NewVoice(sampleRate, blockSize int) (*Voice, error) {
	env, err := envelope.NewFromPoints(sampleRate, t.Points...)
	if err != nil {
		return nil, fmt.Errorf("envelope: %w", err)
	}
	if t.Graph == nil {
		return nil, ErrNoGraph
	}
	g := t.Graph.Clone()
	if !g.Compiled() {
		if err := g.Compile(); err != nil {
			return nil, fmt.Errorf("graph: %w", err)
		}
	}
	gain := t.Gain
	if gain <= 0 {
		gain = 1
	}
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &Voice{
		sampleRate: sampleRate,
		blockSize:  blockSize,
		env:        env,
		graph:      g,
		gain:       gain,
		velocity:   1,
		envGain:    make([]float32, blockSize),
		out:        dsp.NewBlock(blockSize),
	}, nil
}

// Voice is one envelope and one patch graph behind the intent contract.
// Everything except Graph().SetParameter runs on the render context.
type Voice struct {
	sampleRate int
	blockSize  int
	env        *envelope.Envelope
	graph      *patch.Graph
	gain       float32
	velocity   float32
	frequency  float32
	releasing  bool
	envGain    []float32
	out        *dsp.Block
}

// Start binds the voice to a note. The envelope is untouched until the
// next WantsToPlay, but the new note may be stopped before then.
func (v *Voice) Start(frequency, velocity float32) {
	v.releasing = false
	v.frequency = frequency
	v.velocity = velocity
	v.graph.NoteOn(frequency, velocity)
}

// Release forces the envelope into release immediately.
func (v *Voice) Release() {
	v.env.Release()
	v.releasing = true
}

// Reset returns the voice to silence with fresh DSP state.
func (v *Voice) Reset() {
	v.env.Reset()
	v.graph.Reset()
	v.releasing = false
}

// Process renders frames samples. WantsToPlay starts the envelope and
// answers Playing; the first WantsToStop starts the release and later ones
// are ignored. The answer is Stopped once the envelope has ended.
func (v *Voice) Process(intent Intent, frames int) (Intent, []float32) {
	req := envelope.Resume
	switch intent {
	case WantsToPlay:
		req = envelope.Attack
		v.releasing = false
	case WantsToStop:
		if !v.releasing {
			if v.env.State() == envelope.StateIdle {
				// Stopped before it ever sounded: play the table from the
				// point closest to silence.
				v.env.Attack()
			}
			req = envelope.Release
			v.releasing = true
		}
	}

	if frames > len(v.envGain) {
		v.envGain = make([]float32, frames)
	}
	gain := v.envGain[:frames]
	v.env.Process(req, gain)

	src := v.graph.Process(frames).Samples()
	v.out.Resize(frames)
	out := v.out.Samples()
	scale := v.gain * v.velocity
	for i := range out {
		if i < len(src) {
			out[i] = gain[i] * src[i] * scale
		} else {
			out[i] = 0
		}
	}

	if v.env.IsAtEnd() {
		return Stopped, out
	}
	return Playing, out
}

// Releasing reports whether a stop has been accepted.
func (v *Voice) Releasing() bool { return v.releasing }

// Frequency returns the frequency of the current note.
func (v *Voice) Frequency() float32 { return v.frequency }

// Envelope exposes the voice envelope for inspection.
func (v *Voice) Envelope() *envelope.Envelope { return v.env }

// Graph exposes the voice graph so parameters can be addressed per voice.
func (v *Voice) Graph() *patch.Graph { return v.graph }

// Clone returns a voice with the same configuration and fresh state.
func (v *Voice) Clone() *Voice {
	return &Voice{
		sampleRate: v.sampleRate,
		blockSize:  v.blockSize,
		env:        v.env.Clone(),
		graph:      v.graph.Clone(),
		gain:       v.gain,
		velocity:   1,
		envGain:    make([]float32, v.blockSize),
		out:        dsp.NewBlock(v.blockSize),
	}
}
