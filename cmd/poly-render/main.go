package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cwbudde/algo-poly/analysis"
	"github.com/cwbudde/algo-poly/internal/wavio"
	"github.com/cwbudde/algo-poly/midi"
	"github.com/cwbudde/algo-poly/preset"
	"github.com/cwbudde/algo-poly/synth"
)

func main() {
	presetPath := flag.String("preset", "", "Preset JSON file path (built-in default when empty)")
	midiPath := flag.String("midi", "", "Standard MIDI file to render instead of -notes")
	notes := flag.String("notes", "60,64,67", "Comma-separated MIDI notes played together")
	channel := flag.Int("channel", 0, "MIDI channel for -notes")
	velocity := flag.Int("velocity", 100, "MIDI velocity (1-127)")
	releaseAfter := flag.Float64("release-after", 1.0, "Send NoteOff after this many seconds")
	duration := flag.Float64("duration", 2.0, "Duration in seconds (MIDI files add -tail to their length)")
	tail := flag.Float64("tail", 1.0, "Seconds rendered after the last MIDI event")
	decayDBFS := flag.Float64("decay-dbfs", math.Inf(-1), "Stop once block RMS falls below this dBFS after all notes are released (e.g. -90). Disabled by default")
	output := flag.String("output", "output.wav", "Output WAV file path")
	reference := flag.String("reference", "", "Reference WAV to compare the render against (optional)")
	flag.Parse()

	cfg := synth.NewDefaultConfig()
	if *presetPath != "" {
		var err error
		cfg, err = preset.LoadJSON(*presetPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading preset %q: %v\n", *presetPath, err)
			os.Exit(1)
		}
	}
	s, err := synth.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating synth: %v\n", err)
		os.Exit(1)
	}

	var seq *midi.Sequence
	length := time.Duration(*duration * float64(time.Second))
	if *midiPath != "" {
		seq, err = midi.LoadSMF(*midiPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading MIDI file %q: %v\n", *midiPath, err)
			os.Exit(1)
		}
		length = seq.Duration() + time.Duration(*tail*float64(time.Second))
	} else {
		keys, err := parseNotes(*notes)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if *velocity < 1 || *velocity > 127 {
			fmt.Fprintf(os.Stderr, "Error: velocity must be in [1,127]\n")
			os.Exit(1)
		}
		seq = chord(*channel, keys, float32(*velocity)/127, time.Duration(*releaseAfter*float64(time.Second)))
	}

	fmt.Printf("Rendering %d events for %.2f seconds at %d Hz (preset: %s)...\n",
		len(seq.Events()), length.Seconds(), s.SampleRate(), presetName(*presetPath))

	samples := render(s, seq, length, *decayDBFS)

	st := s.Stats()
	fmt.Printf("Rendered %d frames (%.3fs): %d notes on, %d steals, %d dropped\n",
		len(samples), float64(len(samples))/float64(s.SampleRate()), st.NotesOn, st.Steals, st.Dropped)

	if err := wavio.WriteMono(*output, s.SampleRate(), samples); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing WAV file: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Successfully wrote %s\n", *output)

	if *reference != "" {
		m, err := compareTo(*reference, samples, s.SampleRate())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error comparing against %q: %v\n", *reference, err)
			os.Exit(1)
		}
		fmt.Printf("Reference %s: %s\n", *reference, m)
	}
}

// compareTo scores samples against a reference WAV, allowing 10 ms of
// misalignment.
func compareTo(path string, samples []float32, sampleRate int) (analysis.Metrics, error) {
	clip, err := wavio.Read(path)
	if err != nil {
		return analysis.Metrics{}, err
	}
	ref, err := wavio.Resample(clip.Mono(), clip.SampleRate, sampleRate)
	if err != nil {
		return analysis.Metrics{}, err
	}
	return analysis.Compare(ref, samples, sampleRate/100), nil
}

func presetName(path string) string {
	if path == "" {
		return "default"
	}
	return path
}

func parseNotes(s string) ([]int, error) {
	var out []int
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 || n > 127 {
			return nil, fmt.Errorf("invalid note %q", f)
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no notes given")
	}
	return out, nil
}

// chord starts every key at zero and releases them together.
func chord(channel int, keys []int, velocity float32, release time.Duration) *midi.Sequence {
	events := make([]midi.Event, 0, 2*len(keys))
	for _, k := range keys {
		events = append(events, midi.Event{Kind: midi.NoteOn, Channel: channel, Note: k, Velocity: velocity})
	}
	if release > 0 {
		for _, k := range keys {
			events = append(events, midi.Event{Time: release, Kind: midi.NoteOff, Channel: channel, Note: k})
		}
	}
	return midi.NewSequence(events)
}

// render plays seq block by block for at most length. With a finite
// decayDBFS it stops early once the sequence is done and the output has
// decayed below the threshold.
func render(s *synth.Synth, seq *midi.Sequence, length time.Duration, decayDBFS float64) []float32 {
	sr := s.SampleRate()
	blockSize := s.BlockSize()
	totalFrames := int(length.Seconds() * float64(sr))
	if totalFrames < 1 {
		totalFrames = 1
	}
	autoStop := !math.IsInf(decayDBFS, -1)
	threshold := math.Pow(10, decayDBFS/20)

	samples := make([]float32, 0, totalFrames)
	for rendered := 0; rendered < totalFrames; {
		frames := min(blockSize, totalFrames-rendered)
		end := time.Duration(float64(rendered+frames) / float64(sr) * float64(time.Second))
		seq.Advance(s, end)

		block := s.RenderBlock(frames)
		samples = append(samples, block...)
		rendered += frames

		if autoStop && seq.Done() && blockRMS(block) < threshold {
			break
		}
	}
	return samples
}

func blockRMS(block []float32) float64 {
	if len(block) == 0 {
		return 0
	}
	var sum float64
	for _, s := range block {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(block)))
}
