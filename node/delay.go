package node

import "github.com/cwbudde/algo-poly/dsp"

// Delay is a feedback delay with a dry/wet mix. The line is sized for
// maxSeconds at construction; longer times are clamped.
type Delay struct {
	filterIn
	audioOut
	sampleRate int
	maxSeconds float32
	line       *dsp.DelayLine
	time       *dsp.Param
	feedback   *dsp.Param
	mix        *dsp.Param
	scratch    *dsp.Block
}

// NewDelay creates a delay of the given time in seconds.
func NewDelay(sampleRate int, maxSeconds, seconds, feedback, mix float32) *Delay {
	if maxSeconds <= 0 {
		maxSeconds = 1
	}
	return &Delay{
		audioOut:   newAudioOut(),
		sampleRate: sampleRate,
		maxSeconds: maxSeconds,
		line:       dsp.NewDelayLine(int(maxSeconds*float32(sampleRate)) + 2),
		time:       dsp.NewParam(seconds),
		feedback:   dsp.NewParam(dsp.Clamp(feedback, -0.99, 0.99)),
		mix:        dsp.NewParam(dsp.Clamp(mix, 0, 1)),
		scratch:    dsp.NewBlock(0),
	}
}

func (d *Delay) SetParameter(name string, v float32) error {
	if !dsp.IsFinite(v) {
		return invalidValue("delay", name, v)
	}
	switch name {
	case "time":
		d.time.Store(v)
	case "feedback":
		d.feedback.Store(dsp.Clamp(v, -0.99, 0.99))
	case "mix":
		d.mix.Store(dsp.Clamp(v, 0, 1))
	default:
		return unknownParameter("delay", name)
	}
	return nil
}

func (d *Delay) Compute(frames int) {
	in := d.input(frames, d.scratch).Samples()
	d.out.Resize(len(in))
	out := d.out.Samples()

	delay := d.time.Load() * float32(d.sampleRate)
	fb := d.feedback.Load()
	wet := d.mix.Load()
	dry := 1 - wet
	for i, x := range in {
		y := d.line.ReadFractional(delay)
		d.line.Write(dsp.FlushDenormals(x + fb*y))
		out[i] = dry*x + wet*y
	}
}

func (d *Delay) Reset() { d.line.Reset() }

func (d *Delay) Clone() Node {
	return NewDelay(d.sampleRate, d.maxSeconds, d.time.Load(), d.feedback.Load(), d.mix.Load())
}
