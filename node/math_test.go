package node

import (
	"errors"
	"math"
	"testing"

	"github.com/cwbudde/algo-poly/dsp"
	"github.com/cwbudde/algo-poly/osc"
)

func TestMultiplyUsesHeldFactorWithoutRightBuffer(t *testing.T) {
	m := NewMultiply(1)
	m.SetBuffer(0, blockOf(1, 2, 3))
	m.Compute(3)
	if got := m.Buffer(0).Samples(); got[0] != 1 || got[2] != 3 {
		t.Fatalf("expected default factor 1, got %v", got)
	}

	m.SetScalar(1, 0.5)
	m.Compute(3)
	if got := m.Buffer(0).Samples(); got[1] != 1 {
		t.Fatalf("expected scalar inlet to halve, got %v", got)
	}
	if err := m.SetParameter("factor", 2); err != nil {
		t.Fatalf("SetParameter: %v", err)
	}
	m.Compute(3)
	if got := m.Buffer(0).Samples(); got[2] != 6 {
		t.Fatalf("expected factor parameter to double, got %v", got)
	}
}

func TestMultiplyByBuffer(t *testing.T) {
	m := NewMultiply(3)
	m.SetBuffer(0, blockOf(1, 2, 3, 4))
	m.SetBuffer(1, blockOf(0, 0.5, -1, 2))
	m.Compute(4)
	want := []float32{0, 1, -3, 8}
	for i, w := range want {
		if got := m.Buffer(0).Samples()[i]; got != w {
			t.Fatalf("sample %d: got=%f want=%f", i, got, w)
		}
	}
}

func TestMultiplyResetDropsInputs(t *testing.T) {
	m := NewMultiply(1)
	m.SetBuffer(0, blockOf(1, 1))
	m.SetBuffer(1, blockOf(2, 2))
	m.Reset()
	m.Compute(2)
	for i, v := range m.Buffer(0).Samples() {
		if v != 0 {
			t.Fatalf("expected silence after reset at %d, got %f", i, v)
		}
	}
}

func TestAddClipGain(t *testing.T) {
	a := NewAdd(0.5)
	a.SetBuffer(0, blockOf(0, 1))
	a.Compute(2)
	if got := a.Buffer(0).Samples(); got[0] != 0.5 || got[1] != 1.5 {
		t.Fatalf("add offset: got %v", got)
	}
	a.SetBuffer(1, blockOf(1, -1))
	a.Compute(2)
	if got := a.Buffer(0).Samples(); got[0] != 1 || got[1] != 0 {
		t.Fatalf("add buffer: got %v", got)
	}

	c := NewClip(1, -1)
	c.SetBuffer(0, blockOf(-3, 0.25, 3))
	c.Compute(3)
	if got := c.Buffer(0).Samples(); got[0] != -1 || got[1] != 0.25 || got[2] != 1 {
		t.Fatalf("clip: got %v", got)
	}

	g := NewGain(0.5)
	g.SetBuffer(0, blockOf(2, -4))
	g.Compute(2)
	if got := g.Buffer(0).Samples(); got[0] != 1 || got[1] != -2 {
		t.Fatalf("gain: got %v", got)
	}
}

func TestUnknownParametersAreRejected(t *testing.T) {
	nodes := map[string]Node{
		"multiply":   NewMultiply(1),
		"add":        NewAdd(0),
		"clip":       NewClip(-1, 1),
		"gain":       NewGain(1),
		"lowpass":    NewLowPass(48000, 1000),
		"oscillator": NewOscillator(osc.NewSine(48000), 440),
		"delay":      NewDelay(48000, 1, 0.1, 0, 0.5),
		"convolver":  NewConvolver(48000, 0),
		"value":      NewValue(1),
	}
	for name, n := range nodes {
		if err := n.SetParameter("nope", 1); !errors.Is(err, ErrUnknownParameter) {
			t.Fatalf("%s: expected ErrUnknownParameter, got %v", name, err)
		}
	}
}

func TestOscillatorFollowsNoteAndRatio(t *testing.T) {
	o := NewOscillator(osc.NewSine(48000), 100)
	o.NoteOn(440, 1)
	if err := o.SetParameter("ratio", 2); err != nil {
		t.Fatalf("SetParameter: %v", err)
	}
	o.Compute(256)

	ref := osc.NewSine(48000)
	for i, got := range o.Buffer(0).Samples() {
		if want := ref.Generate(880); got != want {
			t.Fatalf("sample %d: got=%f want=%f", i, got, want)
		}
	}
}

func TestOscillatorFrequencyModulation(t *testing.T) {
	o := NewOscillator(osc.NewSine(48000), 440)
	o.SetBuffer(0, constBlock(64, 60))
	o.Compute(64)

	ref := osc.NewSine(48000)
	for i, got := range o.Buffer(0).Samples() {
		if want := ref.Generate(500); math.Abs(float64(got-want)) > 1e-6 {
			t.Fatalf("sample %d: got=%f want=%f", i, got, want)
		}
	}
}

func TestOscillatorCloneKeepsTuningAndRestartsPhase(t *testing.T) {
	o := NewOscillator(osc.NewTriangle(48000, 8), 220)
	_ = o.SetParameter("offset", 3)
	o.Compute(100)
	c := o.Clone()
	fresh := NewOscillator(osc.NewTriangle(48000, 8), 220)
	_ = fresh.SetParameter("offset", 3)
	c.Compute(32)
	fresh.Compute(32)
	if d := maxAbsDiff(c.Buffer(0).Samples(), fresh.Buffer(0).Samples()); d != 0 {
		t.Fatalf("clone differs from fresh oscillator, max diff=%g", d)
	}
}

func TestDelayEchoesImpulse(t *testing.T) {
	d := NewDelay(1000, 1, 0.01, 0.5, 1)
	in := make([]float32, 40)
	in[0] = 1
	out := run(d, in, 16)
	if math.Abs(float64(out[10]-1)) > 1e-5 {
		t.Fatalf("expected first echo at 10 samples, got %f", out[10])
	}
	if math.Abs(float64(out[20]-0.5)) > 1e-5 {
		t.Fatalf("expected feedback echo 0.5 at 20 samples, got %f", out[20])
	}
	if out[0] != 0 {
		t.Fatalf("expected no dry signal at full mix, got %f", out[0])
	}

	d.Reset()
	out = run(d, make([]float32, 40), 16)
	if rms(out) != 0 {
		t.Fatalf("expected silence after reset")
	}
}

func TestOscillatorRejectsNonFiniteParameters(t *testing.T) {
	o := NewOscillator(osc.NewSine(48000), 440)
	for _, name := range []string{"frequency", "ratio", "offset"} {
		if err := o.SetParameter(name, float32(math.Inf(1))); !errors.Is(err, ErrInvalidValue) {
			t.Fatalf("%s: expected ErrInvalidValue, got %v", name, err)
		}
	}
	o.NoteOn(float32(math.NaN()), 1)
	if o.Frequency() != 440 {
		t.Fatalf("expected a NaN note frequency to be ignored, got %f", o.Frequency())
	}
	o.offset.Store(float32(math.Inf(1)))
	o.Compute(64)
	for i, x := range o.Buffer(0).Samples() {
		if !dsp.IsFinite(x) {
			t.Fatalf("sample %d is %v", i, x)
		}
	}
}
