package main

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/cwbudde/algo-poly/internal/wavio"
	"github.com/cwbudde/algo-poly/synth"
)

func TestParseNotes(t *testing.T) {
	tests := []struct {
		in      string
		want    []int
		wantErr bool
	}{
		{in: "60", want: []int{60}},
		{in: "60, 64,67", want: []int{60, 64, 67}},
		{in: "60,,64", want: []int{60, 64}},
		{in: "", wantErr: true},
		{in: "128", wantErr: true},
		{in: "c4", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseNotes(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("parseNotes(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseNotes(%q) unexpected error: %v", tt.in, err)
		}
		if len(got) != len(tt.want) {
			t.Fatalf("parseNotes(%q) = %v, want %v", tt.in, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Fatalf("parseNotes(%q) = %v, want %v", tt.in, got, tt.want)
			}
		}
	}
}

func TestRenderChordAutoStops(t *testing.T) {
	s, err := synth.New(synth.NewDefaultConfig())
	if err != nil {
		t.Fatalf("synth.New: %v", err)
	}
	seq := chord(0, []int{60, 64}, 1, 300*time.Millisecond)
	samples := render(s, seq, 10*time.Second, -90)

	maxFrames := 10 * s.SampleRate()
	if len(samples) == 0 || len(samples) >= maxFrames {
		t.Fatalf("expected early stop, rendered %d frames", len(samples))
	}
	peak := 0.0
	for _, v := range samples {
		peak = math.Max(peak, math.Abs(float64(v)))
	}
	if peak == 0 {
		t.Fatalf("expected audible output")
	}
	if minFrames := s.SampleRate() * 3 / 10; len(samples) < minFrames {
		t.Fatalf("stopped before the release was sent: %d frames", len(samples))
	}
}

func TestRenderFixedLength(t *testing.T) {
	s, err := synth.New(synth.NewDefaultConfig())
	if err != nil {
		t.Fatalf("synth.New: %v", err)
	}
	samples := render(s, chord(0, []int{69}, 1, 0), 100*time.Millisecond, math.Inf(-1))
	if want := s.SampleRate() / 10; len(samples) != want {
		t.Fatalf("rendered %d frames, want %d", len(samples), want)
	}
}

func TestCompareToReference(t *testing.T) {
	s, err := synth.New(synth.NewDefaultConfig())
	if err != nil {
		t.Fatalf("synth.New: %v", err)
	}
	samples := render(s, chord(0, []int{57}, 1, 200*time.Millisecond), 500*time.Millisecond, math.Inf(-1))

	path := filepath.Join(t.TempDir(), "ref.wav")
	if err := wavio.WriteMono(path, s.SampleRate(), samples); err != nil {
		t.Fatalf("WriteMono: %v", err)
	}
	m, err := compareTo(path, samples, s.SampleRate())
	if err != nil {
		t.Fatalf("compareTo: %v", err)
	}
	if m.LagSamples != 0 || m.Similarity < 0.9 {
		t.Fatalf("expected a render to match its own recording: %s", m)
	}
	if _, err := compareTo(filepath.Join(t.TempDir(), "missing.wav"), samples, s.SampleRate()); err == nil {
		t.Fatalf("expected error for a missing reference")
	}
}
