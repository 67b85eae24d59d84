package synth

import (
	"errors"
	"math"
	"testing"

	"github.com/cwbudde/algo-poly/envelope"
	"github.com/cwbudde/algo-poly/node"
	"github.com/cwbudde/algo-poly/patch"
)

const testRate = 1000

// constTemplate plays a constant 1 through the envelope so voice output
// equals envelope gain times velocity times gain.
func constTemplate(t *testing.T, points ...envelope.BreakPoint) Template {
	t.Helper()
	g := patch.New()
	dc := g.Add(node.NewAdd(1))
	if err := g.SetOutput(dc, 0); err != nil {
		t.Fatalf("SetOutput: %v", err)
	}
	if err := g.Compile(); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return Template{Points: points, Graph: g, Gain: 1}
}

func loopPoints() []envelope.BreakPoint {
	return []envelope.BreakPoint{
		envelope.Point(0, 1, 0.01),
		{Time: 0.02, Value: 0.5, Ramp: 0.01, LoopStart: true},
		{Time: 0.04, Value: 0.8, Ramp: 0.01, LoopEnd: true},
		envelope.Point(0.06, 0, 0.01),
	}
}

func TestTemplateValidation(t *testing.T) {
	if _, err := (Template{Points: loopPoints()}).NewVoice(testRate, 16); !errors.Is(err, ErrNoGraph) {
		t.Fatalf("expected ErrNoGraph, got %v", err)
	}
	tpl := constTemplate(t)
	if _, err := tpl.NewVoice(testRate, 16); !errors.Is(err, envelope.ErrNoPoints) {
		t.Fatalf("expected ErrNoPoints, got %v", err)
	}
	g := patch.New()
	g.Add(node.NewGain(1))
	if _, err := (Template{Points: loopPoints(), Graph: g}).NewVoice(testRate, 16); !errors.Is(err, patch.ErrNoOutput) {
		t.Fatalf("expected ErrNoOutput, got %v", err)
	}
}

func TestVoiceLifecycle(t *testing.T) {
	tpl := constTemplate(t, loopPoints()...)
	tpl.Gain = 0.5
	v, err := tpl.NewVoice(testRate, 64)
	if err != nil {
		t.Fatalf("NewVoice: %v", err)
	}
	v.Start(440, 0.8)

	intent, out := v.Process(WantsToPlay, 64)
	if intent != Playing {
		t.Fatalf("expected playing, got %s", intent)
	}
	gain := v.Envelope().Value()
	if want := gain * 0.8 * 0.5; math.Abs(float64(out[63]-want)) > 1e-6 {
		t.Fatalf("expected gain*velocity*template gain = %f, got %f", want, out[63])
	}

	for i := 0; i < 5; i++ {
		if intent, _ = v.Process(intent, 64); intent != Playing {
			t.Fatalf("expected looping voice to keep playing, got %s", intent)
		}
	}

	intent, _ = v.Process(WantsToStop, 64)
	if !v.Releasing() || v.Envelope().State() != envelope.StateRelease && !v.Envelope().IsAtEnd() {
		t.Fatalf("expected release, got %s", v.Envelope().State())
	}
	for i := 0; i < 10 && intent != Stopped; i++ {
		intent, _ = v.Process(WantsToStop, 64)
	}
	if intent != Stopped {
		t.Fatalf("expected voice to stop after release")
	}
}

func TestRepeatedStopDoesNotRestartRelease(t *testing.T) {
	tpl := constTemplate(t, loopPoints()...)
	a, _ := tpl.NewVoice(testRate, 8)
	b, _ := tpl.NewVoice(testRate, 8)
	a.Process(WantsToPlay, 8)
	b.Process(WantsToPlay, 8)
	for i := 0; i < 10; i++ {
		a.Process(Playing, 8)
		b.Process(Playing, 8)
	}
	a.Process(WantsToStop, 8)
	b.Process(WantsToStop, 8)
	for i := 0; i < 3; i++ {
		_, outA := a.Process(WantsToStop, 8)
		_, outB := b.Process(Playing, 8)
		for j := range outA {
			if outA[j] != outB[j] {
				t.Fatalf("repeated stop changed the release at block %d sample %d", i, j)
			}
		}
	}
}

func TestStopBeforePlayStillEnds(t *testing.T) {
	tpl := constTemplate(t, loopPoints()...)
	v, _ := tpl.NewVoice(testRate, 16)
	intent, _ := v.Process(WantsToStop, 16)
	for i := 0; i < 20 && intent != Stopped; i++ {
		intent, _ = v.Process(intent, 16)
	}
	if intent != Stopped {
		t.Fatalf("a voice stopped before it played must still end")
	}
}

func TestVoiceCloneIsIndependent(t *testing.T) {
	tpl := constTemplate(t, loopPoints()...)
	v, _ := tpl.NewVoice(testRate, 16)
	v.Process(WantsToPlay, 16)
	c := v.Clone()
	if c.Envelope().State() != envelope.StateIdle {
		t.Fatalf("expected clone to start idle, got %s", c.Envelope().State())
	}
	c.Process(WantsToPlay, 16)
	c.Process(WantsToStop, 16)
	if v.Releasing() {
		t.Fatalf("clone release leaked into original")
	}
}
