package node

import (
	"math"
	"sync/atomic"

	"github.com/cwbudde/algo-poly/dsp"
)

const twoPi = 2 * math.Pi

// LowPass is a one-pole low-pass filter.
type LowPass struct {
	filterIn
	audioOut
	sampleRate int
	freq       *dsp.Param
	coef       *dsp.Param
	last       float32
	scratch    *dsp.Block
}

// NewLowPass creates a one-pole low-pass at freq Hz.
func NewLowPass(sampleRate int, freq float32) *LowPass {
	f := &LowPass{
		audioOut:   newAudioOut(),
		sampleRate: sampleRate,
		freq:       dsp.NewParam(0),
		coef:       dsp.NewParam(0),
		scratch:    dsp.NewBlock(0),
	}
	f.SetFrequency(freq)
	return f
}

// SetFrequency updates the cutoff. The coefficient is clamped to [0,1].
func (f *LowPass) SetFrequency(hz float32) {
	if !(hz >= 0) {
		hz = 0
	}
	f.freq.Store(hz)
	f.coef.Store(dsp.Clamp(hz*twoPi/float32(f.sampleRate), 0, 1))
}

// Frequency returns the configured cutoff.
func (f *LowPass) Frequency() float32 { return f.freq.Load() }

func (f *LowPass) SetParameter(name string, v float32) error {
	if name != "frequency" {
		return unknownParameter("lowpass", name)
	}
	if !dsp.IsFinite(v) {
		return invalidValue("lowpass", name, v)
	}
	f.SetFrequency(v)
	return nil
}

func (f *LowPass) Compute(frames int) {
	in := f.input(frames, f.scratch).Samples()
	f.out.Resize(len(in))
	out := f.out.Samples()

	c := f.coef.Load()
	feedback := 1 - c
	last := f.last
	for i, x := range in {
		last = dsp.FlushDenormals(c*x + feedback*last)
		out[i] = last
	}
	f.last = last
}

func (f *LowPass) Reset() { f.last = 0 }

func (f *LowPass) Clone() Node { return NewLowPass(f.sampleRate, f.freq.Load()) }

// HighPass is a one-pole high-pass filter. A cutoff of 0 Hz passes the
// input through unchanged.
type HighPass struct {
	filterIn
	audioOut
	sampleRate int
	freq       *dsp.Param
	coef       *dsp.Param
	last       float32
	scratch    *dsp.Block
}

// NewHighPass creates a one-pole high-pass at freq Hz.
func NewHighPass(sampleRate int, freq float32) *HighPass {
	f := &HighPass{
		audioOut:   newAudioOut(),
		sampleRate: sampleRate,
		freq:       dsp.NewParam(0),
		coef:       dsp.NewParam(1),
		scratch:    dsp.NewBlock(0),
	}
	f.SetFrequency(freq)
	return f
}

// SetFrequency updates the cutoff. The coefficient is clamped to [0,1].
func (f *HighPass) SetFrequency(hz float32) {
	if !(hz >= 0) {
		hz = 0
	}
	f.freq.Store(hz)
	f.coef.Store(dsp.Clamp(1-hz*twoPi/float32(f.sampleRate), 0, 1))
}

// Frequency returns the configured cutoff.
func (f *HighPass) Frequency() float32 { return f.freq.Load() }

func (f *HighPass) SetParameter(name string, v float32) error {
	if name != "frequency" {
		return unknownParameter("highpass", name)
	}
	if !dsp.IsFinite(v) {
		return invalidValue("highpass", name, v)
	}
	f.SetFrequency(v)
	return nil
}

func (f *HighPass) Compute(frames int) {
	in := f.input(frames, f.scratch).Samples()
	f.out.Resize(len(in))
	out := f.out.Samples()

	c := f.coef.Load()
	if c >= 1 {
		f.last = 0
		copy(out, in)
		return
	}
	last := f.last
	for i, x := range in {
		w := x + c*last
		out[i] = w - last
		last = dsp.FlushDenormals(w)
	}
	f.last = last
}

func (f *HighPass) Reset() { f.last = 0 }

func (f *HighPass) Clone() Node { return NewHighPass(f.sampleRate, f.freq.Load()) }

type bandPassCoefs struct {
	coef1, coef2, gain float32
}

// BandPass is a two-pole resonator with a centre frequency and Q.
type BandPass struct {
	filterIn
	audioOut
	sampleRate int
	freq       *dsp.Param
	q          *dsp.Param
	coefs      atomic.Pointer[bandPassCoefs]
	last       float32
	previous   float32
	scratch    *dsp.Block
}

// NewBandPass creates a band-pass at freq Hz with the given Q.
func NewBandPass(sampleRate int, freq, q float32) *BandPass {
	f := &BandPass{
		audioOut:   newAudioOut(),
		sampleRate: sampleRate,
		freq:       dsp.NewParam(freq),
		q:          dsp.NewParam(q),
		scratch:    dsp.NewBlock(0),
	}
	f.calc()
	return f
}

// Set updates frequency and Q together.
func (f *BandPass) Set(freq, q float32) {
	f.freq.Store(freq)
	f.q.Store(q)
	f.calc()
}

func (f *BandPass) SetFrequency(freq float32) {
	f.freq.Store(freq)
	f.calc()
}

func (f *BandPass) SetQ(q float32) {
	f.q.Store(q)
	f.calc()
}

func (f *BandPass) calc() {
	freq := f.freq.Load()
	q := f.q.Load()
	if !dsp.IsFinite(freq) || freq < 0.001 {
		freq = 10
	}
	if !dsp.IsFinite(q) || q < 0 {
		q = 0
	}
	omega := freq * twoPi / float32(f.sampleRate)
	oneMinusR := float32(1)
	if q >= 0.001 {
		oneMinusR = min(omega/q, 1)
	}
	r := 1 - oneMinusR
	f.coefs.Store(&bandPassCoefs{
		coef1: 2 * approxCos(omega) * r,
		coef2: -r * r,
		gain:  2 * oneMinusR * (oneMinusR + r*omega),
	})
}

// approxCos is a sixth-order Taylor cosine valid on [-pi/2, pi/2]; outside
// that range it returns 0.
func approxCos(omega float32) float32 {
	if omega < -0.5*math.Pi || omega > 0.5*math.Pi {
		return 0
	}
	x := omega * omega
	return ((x*x*x*(-1.0/720.0) + x*x*(1.0/24.0)) - x*0.5) + 1
}

func (f *BandPass) SetParameter(name string, v float32) error {
	if !dsp.IsFinite(v) {
		return invalidValue("bandpass", name, v)
	}
	switch name {
	case "frequency":
		f.SetFrequency(v)
	case "q":
		f.SetQ(v)
	default:
		return unknownParameter("bandpass", name)
	}
	return nil
}

func (f *BandPass) Compute(frames int) {
	in := f.input(frames, f.scratch).Samples()
	f.out.Resize(len(in))
	out := f.out.Samples()

	c := f.coefs.Load()
	last, previous := f.last, f.previous
	for i, x := range in {
		w := x + c.coef1*last + c.coef2*previous
		out[i] = c.gain * w
		previous = last
		last = dsp.FlushDenormals(w)
	}
	f.last, f.previous = last, previous
}

func (f *BandPass) Reset() { f.last, f.previous = 0, 0 }

func (f *BandPass) Clone() Node { return NewBandPass(f.sampleRate, f.freq.Load(), f.q.Load()) }

// Biquad is a general second-order section. Every coefficient change, raw
// or derived, passes the stability check; unstable sets are replaced by
// zeros and counted.
type Biquad struct {
	filterIn
	audioOut
	sampleRate int
	typ        atomic.Int32
	freq       *dsp.Param
	q          *dsp.Param
	gain       *dsp.Param
	coefs      atomic.Pointer[dsp.BiquadCoefs]
	stable     atomic.Bool
	unstable   atomic.Int64
	state      dsp.Biquad
	scratch    *dsp.Block
}

// NewBiquad creates a biquad of the given type. gainDB applies to the peak
// and shelf types.
func NewBiquad(sampleRate int, typ dsp.BiquadType, freq, q, gainDB float32) *Biquad {
	f := &Biquad{
		audioOut:   newAudioOut(),
		sampleRate: sampleRate,
		freq:       dsp.NewParam(freq),
		q:          dsp.NewParam(q),
		gain:       dsp.NewParam(gainDB),
		scratch:    dsp.NewBlock(0),
	}
	f.typ.Store(int32(typ))
	f.calc()
	return f
}

// Set updates type, frequency, Q and gain with a single recalculation.
func (f *Biquad) Set(typ dsp.BiquadType, freq, q, gainDB float32) {
	f.typ.Store(int32(typ))
	f.freq.Store(freq)
	f.q.Store(q)
	f.gain.Store(gainDB)
	f.calc()
}

func (f *Biquad) SetType(typ dsp.BiquadType) {
	f.typ.Store(int32(typ))
	f.calc()
}

func (f *Biquad) SetFrequency(freq float32) {
	f.freq.Store(freq)
	f.calc()
}

func (f *Biquad) SetQ(q float32) {
	f.q.Store(q)
	f.calc()
}

func (f *Biquad) SetGain(gainDB float32) {
	f.gain.Store(gainDB)
	f.calc()
}

// SetRaw injects coefficients directly.
func (f *Biquad) SetRaw(fb1, fb2, ff1, ff2, ff3 float32) {
	c, ok := dsp.BiquadCoefs{FB1: fb1, FB2: fb2, FF1: ff1, FF2: ff2, FF3: ff3}.Safe()
	f.publish(c, ok)
}

func (f *Biquad) calc() {
	c, ok := dsp.DesignBiquad(dsp.BiquadType(f.typ.Load()), f.freq.Load(), f.q.Load(), f.gain.Load(), f.sampleRate)
	f.publish(c, ok)
}

func (f *Biquad) publish(c dsp.BiquadCoefs, ok bool) {
	if !ok {
		f.unstable.Add(1)
	}
	f.stable.Store(ok)
	f.coefs.Store(&c)
}

// Coefficients returns the active coefficient set.
func (f *Biquad) Coefficients() dsp.BiquadCoefs { return *f.coefs.Load() }

// Stable reports whether the last coefficient change was accepted.
func (f *Biquad) Stable() bool { return f.stable.Load() }

// UnstableCount returns how many coefficient changes were zeroed.
func (f *Biquad) UnstableCount() int64 { return f.unstable.Load() }

func (f *Biquad) SetParameter(name string, v float32) error {
	switch name {
	case "type":
		f.SetType(dsp.BiquadType(int(v)))
	case "frequency":
		f.SetFrequency(v)
	case "q":
		f.SetQ(v)
	case "gain":
		f.SetGain(v)
	default:
		return unknownParameter("biquad", name)
	}
	return nil
}

func (f *Biquad) Compute(frames int) {
	in := f.input(frames, f.scratch).Samples()
	f.out.Resize(len(in))
	f.state.Process(*f.coefs.Load(), in, f.out.Samples())
}

func (f *Biquad) Reset() { f.state.Reset() }

func (f *Biquad) Clone() Node {
	c := &Biquad{
		audioOut:   newAudioOut(),
		sampleRate: f.sampleRate,
		freq:       dsp.NewParam(f.freq.Load()),
		q:          dsp.NewParam(f.q.Load()),
		gain:       dsp.NewParam(f.gain.Load()),
		scratch:    dsp.NewBlock(0),
	}
	c.typ.Store(f.typ.Load())
	c.coefs.Store(f.coefs.Load())
	c.stable.Store(f.stable.Load())
	return c
}

// SampleHold samples inlet 0 whenever the control signal on inlet 1
// decreases, and holds that value otherwise.
type SampleHold struct {
	audioOut
	in, signal   *dsp.Block
	lastIn       float32
	lastOut      float32
	resetValue   *dsp.Param
	setValue     *dsp.Param
	resetPending atomic.Bool
	setPending   atomic.Bool
	scratch      *dsp.Block
	sigScratch   *dsp.Block
}

// NewSampleHold creates a sample-and-hold.
func NewSampleHold() *SampleHold {
	return &SampleHold{
		audioOut:   newAudioOut(),
		resetValue: dsp.NewParam(0),
		setValue:   dsp.NewParam(0),
		scratch:    dsp.NewBlock(0),
		sigScratch: dsp.NewBlock(0),
	}
}

func (s *SampleHold) Inlets() []Kind { return twoBufIn }

func (s *SampleHold) SetBuffer(inlet int, b *dsp.Block) {
	switch inlet {
	case 0:
		s.in = b
	case 1:
		s.signal = b
	}
}

func (s *SampleHold) SetScalar(int, float32) {}

// ResetTrigger sets the remembered control value. Taking effect at the next
// block, it forces a sample whenever the control signal is below v.
func (s *SampleHold) ResetTrigger(v float32) {
	s.resetValue.Store(v)
	s.resetPending.Store(true)
}

// Hold overrides the held output value from the next block on.
func (s *SampleHold) Hold(v float32) {
	s.setValue.Store(v)
	s.setPending.Store(true)
}

func (s *SampleHold) SetParameter(name string, v float32) error {
	switch name {
	case "reset":
		s.ResetTrigger(v)
	case "set":
		s.Hold(v)
	default:
		return unknownParameter("samplehold", name)
	}
	return nil
}

func (s *SampleHold) Compute(frames int) {
	if s.resetPending.Swap(false) {
		s.lastIn = s.resetValue.Load()
	}
	if s.setPending.Swap(false) {
		s.lastOut = s.setValue.Load()
	}

	in := s.scratch
	if s.in != nil {
		in = s.in
	} else {
		in.Resize(frames)
		in.Zero()
	}
	sig := s.signal
	if sig == nil {
		sig = s.sigScratch
		sig.Resize(in.Len())
		sig.Zero()
	}

	s.out.Resize(in.Len())
	out := s.out.Samples()
	x := in.Samples()
	ctl := sig.Samples()
	n := min(len(x), len(ctl))

	li, lo := s.lastIn, s.lastOut
	for i := 0; i < n; i++ {
		if ctl[i] < li {
			lo = x[i]
		}
		out[i] = lo
		li = ctl[i]
	}
	for i := n; i < len(out); i++ {
		out[i] = lo
	}
	s.lastIn, s.lastOut = li, lo
}

func (s *SampleHold) Reset() {
	s.lastIn, s.lastOut = 0, 0
}

func (s *SampleHold) Clone() Node { return NewSampleHold() }
