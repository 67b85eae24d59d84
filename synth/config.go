package synth

import (
	"errors"
	"fmt"

	"github.com/cwbudde/algo-poly/envelope"
	"github.com/cwbudde/algo-poly/node"
	"github.com/cwbudde/algo-poly/osc"
	"github.com/cwbudde/algo-poly/patch"
)

const (
	DefaultSampleRate = 48000
	DefaultBlockSize  = 128
	DefaultQueueSize  = 256
	DefaultVoices     = 8
)

var (
	ErrInvalidConfig  = errors.New("invalid synth config")
	ErrUnknownChannel = errors.New("unknown channel")
)

// Group is a fixed set of voices answering one channel.
type Group struct {
	Channel  int
	Voices   int
	Template Template
	// Gain is the initial channel gain. Zero or negative means 1.
	Gain float32
}

// Config holds everything fixed at synth creation.
type Config struct {
	SampleRate int
	BlockSize  int
	// QueueSize bounds the note commands buffered between two blocks.
	QueueSize  int
	MasterGain float32
	Groups     []Group
}

// NewDefaultConfig creates a single eight-voice group on channel 0 playing
// DefaultTemplate.
func NewDefaultConfig() *Config {
	return &Config{
		SampleRate: DefaultSampleRate,
		BlockSize:  DefaultBlockSize,
		QueueSize:  DefaultQueueSize,
		MasterGain: 1.0,
		Groups: []Group{{
			Channel:  0,
			Voices:   DefaultVoices,
			Template: DefaultTemplate(DefaultSampleRate),
			Gain:     1.0,
		}},
	}
}

// DefaultPoints is a six point envelope with a sustain loop between the
// 0.2 s and 0.4 s points.
func DefaultPoints() []envelope.BreakPoint {
	return []envelope.BreakPoint{
		envelope.Point(0, 0, 0.2),
		envelope.Point(0.1, 1, 4),
		{Time: 0.2, Value: 0.5, Ramp: 2, LoopStart: true},
		envelope.Point(0.3, 0.9, 0.5),
		{Time: 0.4, Value: 0.5, Ramp: 0.5, LoopEnd: true},
		envelope.Point(0.5, 0, 0.5),
	}
}

// DefaultTemplate is a band-limited triangle under DefaultPoints at a
// quarter of full scale.
func DefaultTemplate(sampleRate int) Template {
	g := patch.New()
	o, _ := g.AddNamed("osc", node.NewOscillator(osc.NewTriangle(sampleRate, 8), 440))
	_ = g.SetOutput(o, 0)
	_ = g.Compile()
	return Template{Points: DefaultPoints(), Graph: g, Gain: 0.25}
}

// Validate checks the pool layout. Templates are validated when voices are
// built.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %d", ErrInvalidConfig, c.SampleRate)
	}
	if c.BlockSize <= 0 {
		return fmt.Errorf("%w: block size %d", ErrInvalidConfig, c.BlockSize)
	}
	if len(c.Groups) == 0 {
		return fmt.Errorf("%w: no voice groups", ErrInvalidConfig)
	}
	seen := make(map[int]bool, len(c.Groups))
	for i, g := range c.Groups {
		if g.Voices <= 0 {
			return fmt.Errorf("%w: group %d has %d voices", ErrInvalidConfig, i, g.Voices)
		}
		if seen[g.Channel] {
			return fmt.Errorf("%w: channel %d assigned to more than one group", ErrInvalidConfig, g.Channel)
		}
		seen[g.Channel] = true
	}
	return nil
}
