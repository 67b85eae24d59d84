package synth

import (
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/cwbudde/algo-poly/dsp"
	"github.com/cwbudde/algo-poly/node"
	"github.com/cwbudde/algo-poly/patch"
)

func newTestSynth(t *testing.T, voices int) *Synth {
	t.Helper()
	s, err := New(&Config{
		SampleRate: testRate,
		BlockSize:  16,
		QueueSize:  8,
		Groups: []Group{
			{Channel: 1, Voices: voices, Template: constTemplate(t, loopPoints()...)},
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestConfigValidation(t *testing.T) {
	cases := []*Config{
		{SampleRate: 0, BlockSize: 16, Groups: []Group{{Voices: 1}}},
		{SampleRate: 48000, BlockSize: 0, Groups: []Group{{Voices: 1}}},
		{SampleRate: 48000, BlockSize: 16},
		{SampleRate: 48000, BlockSize: 16, Groups: []Group{{Voices: 0}}},
		{SampleRate: 48000, BlockSize: 16, Groups: []Group{{Channel: 2, Voices: 1}, {Channel: 2, Voices: 1}}},
	}
	for i, cfg := range cases {
		if _, err := New(cfg); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("case %d: expected ErrInvalidConfig, got %v", i, err)
		}
	}
}

func TestDefaultConfigRenders(t *testing.T) {
	s, err := New(NewDefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.NoteOn(0, 69, 1)
	peak := 0.0
	for i := 0; i < 500; i++ {
		for _, v := range s.RenderBlock(DefaultBlockSize) {
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				t.Fatalf("non-finite sample in block %d", i)
			}
			peak = math.Max(peak, math.Abs(float64(v)))
		}
	}
	if peak < 0.05 || peak > 0.26 {
		t.Fatalf("expected audible output under the template gain, peak=%f", peak)
	}
}

func TestNoteOnPastPoolStealsExactlyOne(t *testing.T) {
	const voices = 4
	s := newTestSynth(t, voices)
	for n := 0; n < voices; n++ {
		s.NoteOn(1, 60+n, 1)
		s.RenderBlock(16)
	}
	s.NoteOn(1, 70, 1)
	s.RenderBlock(16)

	st := s.Stats()
	if st.Steals != 1 {
		t.Fatalf("expected exactly one steal, got %d", st.Steals)
	}
	if got := s.Assigned(1); !slices.Equal(got, []int{61, 62, 63, 70}) {
		t.Fatalf("expected the oldest note (60) to be stolen, assigned=%v", got)
	}

	s.NoteOff(1, 60)
	s.RenderBlock(16)
	if s.Stats().IgnoredNoteOffs != 1 {
		t.Fatalf("expected noteOff of the stolen note to be ignored")
	}
	if got := s.ActiveVoices(1); got != voices {
		t.Fatalf("expected %d active voices, got %d", voices, got)
	}
	for _, sl := range s.slots {
		if sl.releasing {
			t.Fatalf("noteOff of a stolen note released note %d", sl.note)
		}
	}
}

func TestPoolOfTwoScenario(t *testing.T) {
	s := newTestSynth(t, 2)
	s.NoteOn(1, 60, 1)
	s.NoteOn(1, 64, 1)
	s.NoteOn(1, 67, 1)
	s.RenderBlock(16)

	if got := s.Assigned(1); !slices.Equal(got, []int{64, 67}) {
		t.Fatalf("expected 60 to be stolen, assigned=%v", got)
	}
	if s.ActiveVoices(1) != 2 {
		t.Fatalf("expected two assigned voices, got %d", s.ActiveVoices(1))
	}
}

func TestStealPrefersReleasingVoice(t *testing.T) {
	s := newTestSynth(t, 3)
	s.NoteOn(1, 60, 1)
	s.NoteOn(1, 62, 1)
	s.NoteOn(1, 64, 1)
	s.RenderBlock(16)
	s.NoteOff(1, 62)
	s.NoteOn(1, 65, 1)
	s.RenderBlock(16)

	if got := s.Assigned(1); !slices.Equal(got, []int{60, 64, 65}) {
		t.Fatalf("expected releasing note 62 to be stolen first, assigned=%v", got)
	}
}

func TestReleasedVoicesAreFreed(t *testing.T) {
	s := newTestSynth(t, 2)
	s.NoteOn(1, 60, 1)
	s.RenderBlock(16)
	s.NoteOff(1, 60)
	for i := 0; i < 20 && s.ActiveVoices(1) > 0; i++ {
		s.RenderBlock(16)
	}
	if s.ActiveVoices(1) != 0 || len(s.Assigned(1)) != 0 {
		t.Fatalf("expected voice to be freed after its release ended")
	}
	st := s.Stats()
	if st.NotesOn != 1 || st.NotesOff != 1 || st.Steals != 0 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestUnknownNoteOffAndChannel(t *testing.T) {
	s := newTestSynth(t, 2)
	s.NoteOff(1, 42)
	s.NoteOn(9, 60, 1)
	s.RenderBlock(16)
	st := s.Stats()
	if st.IgnoredNoteOffs != 1 || st.Unrouted != 1 || st.ActiveVoices != 0 {
		t.Fatalf("unexpected stats: %+v", st)
	}
	if err := s.SetChannelGain(9, 1); !errors.Is(err, ErrUnknownChannel) {
		t.Fatalf("expected ErrUnknownChannel, got %v", err)
	}
}

func TestOnAndOffInOneBlockResolveInOrder(t *testing.T) {
	s := newTestSynth(t, 2)
	s.NoteOn(1, 60, 1)
	s.NoteOff(1, 60)
	s.NoteOn(1, 60, 1)
	s.RenderBlock(16)
	if got := s.Assigned(1); !slices.Equal(got, []int{60, 60}) {
		t.Fatalf("expected released and retriggered voices, assigned=%v", got)
	}
	held := 0
	for _, sl := range s.slots {
		if sl.assigned && !sl.releasing {
			held++
		}
	}
	if held != 1 {
		t.Fatalf("expected exactly one held voice after on/off/on, got %d", held)
	}
}

func TestFullQueueDropsCommands(t *testing.T) {
	s := newTestSynth(t, 2)
	for i := 0; i < 10; i++ {
		s.NoteOn(1, 60, 1)
	}
	if s.Stats().Dropped != 2 {
		t.Fatalf("expected two dropped commands, got %d", s.Stats().Dropped)
	}
	s.RenderBlock(16)
	if s.Stats().NotesOn != 8 {
		t.Fatalf("expected eight applied note-ons, got %d", s.Stats().NotesOn)
	}
}

func TestGainsScaleMix(t *testing.T) {
	s := newTestSynth(t, 1)
	s.NoteOn(1, 60, 0.5)
	ref := append([]float32(nil), s.RenderBlock(16)...)

	t2 := newTestSynth(t, 1)
	t2.SetMasterGain(0.5)
	if err := t2.SetChannelGain(1, 0.5); err != nil {
		t.Fatalf("SetChannelGain: %v", err)
	}
	t2.NoteOn(1, 60, 0.5)
	got := t2.RenderBlock(16)
	for i := range got {
		if math.Abs(float64(got[i]-ref[i]*0.25)) > 1e-6 {
			t.Fatalf("sample %d: got=%f want=%f", i, got[i], ref[i]*0.25)
		}
	}
}

func TestAllNotesOff(t *testing.T) {
	s := newTestSynth(t, 3)
	s.NoteOn(1, 60, 1)
	s.NoteOn(1, 64, 1)
	s.RenderBlock(16)
	s.AllNotesOff(-1)
	for i := 0; i < 20 && s.ActiveVoices(1) > 0; i++ {
		s.RenderBlock(16)
	}
	if s.ActiveVoices(1) != 0 {
		t.Fatalf("expected all voices to end, %d active", s.ActiveVoices(1))
	}
}

func TestSetNodeParameterReachesEveryVoice(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Groups[0].Voices = 3
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.SetNodeParameter("osc", "ratio", 2); err != nil {
		t.Fatalf("SetNodeParameter: %v", err)
	}
	if err := s.SetNodeParameter("osc", "frequency", 220); err != nil {
		t.Fatalf("SetNodeParameter: %v", err)
	}
	for i, sl := range s.slots {
		h, _ := sl.voice.Graph().Lookup("osc")
		n, _ := sl.voice.Graph().Node(h)
		if f := n.(*node.Oscillator).Frequency(); f != 220 {
			t.Fatalf("voice %d: expected frequency 220, got %f", i, f)
		}
	}
	if err := s.SetNodeParameter("filter", "q", 1); !errors.Is(err, patch.ErrUnknownNode) {
		t.Fatalf("expected ErrUnknownNode, got %v", err)
	}
	if err := s.SetNodeParameter("osc", "bogus", 1); !errors.Is(err, node.ErrUnknownParameter) {
		t.Fatalf("expected ErrUnknownParameter, got %v", err)
	}
}

func TestRenderBlockDoesNotAllocate(t *testing.T) {
	s, err := New(NewDefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for n := 0; n < 10; n++ {
		s.NoteOn(0, 48+n*3, 0.8)
	}
	s.RenderBlock(DefaultBlockSize)
	allocs := testing.AllocsPerRun(50, func() {
		s.NoteOn(0, 60, 1)
		s.NoteOff(0, 60)
		s.RenderBlock(DefaultBlockSize)
	})
	if allocs != 0 {
		t.Fatalf("expected no allocations on the render path, got %f", allocs)
	}
}

func TestMidiNoteToFreq(t *testing.T) {
	if f := midiNoteToFreq(69); math.Abs(float64(f-440)) > 0.5 {
		t.Fatalf("expected A4 near 440 Hz, got %f", f)
	}
	if f := midiNoteToFreq(81); math.Abs(float64(f-880)) > 1 {
		t.Fatalf("expected A5 near 880 Hz, got %f", f)
	}
}

func TestStolenVoiceStoppedInSameBlockIsReleased(t *testing.T) {
	s := newTestSynth(t, 1)
	s.NoteOn(1, 60, 1)
	s.RenderBlock(16)
	s.NoteOn(1, 62, 1)
	s.NoteOff(1, 62)
	s.RenderBlock(16)

	if st := s.Stats(); st.Steals != 1 || st.NotesOff != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}
	if !s.slots[0].voice.Releasing() {
		t.Fatalf("expected the note-off of the stealing note to be honoured")
	}
	for i := 0; i < 1000 && s.ActiveVoices(1) > 0; i++ {
		s.RenderBlock(16)
	}
	if s.ActiveVoices(1) != 0 {
		t.Fatalf("expected the stolen voice to be freed, assigned=%v", s.Assigned(1))
	}
}

func TestNonFiniteOscillatorFrequencyKeepsRendering(t *testing.T) {
	s, err := New(NewDefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.NoteOn(0, 69, 1)
	s.RenderBlock(s.BlockSize())

	for _, v := range []float32{float32(math.Inf(1)), float32(math.Inf(-1)), float32(math.NaN())} {
		if err := s.SetNodeParameter("osc", "frequency", v); !errors.Is(err, node.ErrInvalidValue) {
			t.Fatalf("frequency %v: expected ErrInvalidValue, got %v", v, err)
		}
		if err := s.SetNodeParameter("osc", "ratio", v); !errors.Is(err, node.ErrInvalidValue) {
			t.Fatalf("ratio %v: expected ErrInvalidValue, got %v", v, err)
		}
	}
	// Finite parameters whose product overflows still reach the generator.
	if err := s.SetNodeParameter("osc", "ratio", math.MaxFloat32); err != nil {
		t.Fatalf("SetNodeParameter: %v", err)
	}
	for i := 0; i < 4; i++ {
		for j, x := range s.RenderBlock(s.BlockSize()) {
			if !dsp.IsFinite(x) {
				t.Fatalf("block %d sample %d is %v", i, j, x)
			}
		}
	}
	if err := s.SetNodeParameter("osc", "ratio", 1); err != nil {
		t.Fatalf("SetNodeParameter: %v", err)
	}
	peak := float32(0)
	for i := 0; i < 4; i++ {
		for _, x := range s.RenderBlock(s.BlockSize()) {
			peak = max(peak, x, -x)
		}
	}
	if peak == 0 {
		t.Fatalf("expected the oscillator to recover once the ratio is finite")
	}
}
