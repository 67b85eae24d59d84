package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/cwbudde/algo-poly/midi"
	"github.com/cwbudde/algo-poly/preset"
	"github.com/cwbudde/algo-poly/synth"
)

func main() {
	presetPath := flag.String("preset", "", "Preset JSON file path (built-in default when empty)")
	midiPath := flag.String("midi", "", "Standard MIDI file to play; live input when empty")
	port := flag.String("port", "", "MIDI input port name (first port when empty)")
	list := flag.Bool("list", false, "List MIDI input ports and exit")
	buffer := flag.Duration("buffer", 20*time.Millisecond, "Audio output buffer")
	flag.Parse()

	defer gomidi.CloseDriver()

	if *list {
		for i, name := range midi.InPorts() {
			fmt.Printf("%d: %s\n", i, name)
		}
		return
	}

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

	src := &source{synth: s}
	if *midiPath != "" {
		src.seq, err = midi.LoadSMF(*midiPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading MIDI file %q: %v\n", *midiPath, err)
			os.Exit(1)
		}
	}

	out, err := newOutput(s.SampleRate(), *buffer)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening audio output: %v\n", err)
		os.Exit(1)
	}
	defer out.close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if src.seq == nil {
		in, err := midi.FindInPort(*port)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		stop, err := midi.Listen(in, s, func(err error) {
			fmt.Fprintf(os.Stderr, "MIDI input error: %v\n", err)
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer stop()
		fmt.Printf("Listening on %s at %d Hz, Ctrl-C to quit\n", in.String(), s.SampleRate())
	} else {
		fmt.Printf("Playing %s (%.1fs) at %d Hz\n", *midiPath, src.seq.Duration().Seconds(), s.SampleRate())
	}

	out.setSource(src)
	out.start()
	go out.feed(ctx, src, blockDuration(s))

	tick := time.NewTicker(250 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			s.AllNotesOff(-1)
			report(s)
			return
		case <-tick.C:
			if src.seq != nil && out.seqDone.Load() && s.Stats().ActiveVoices == 0 {
				report(s)
				return
			}
		}
	}
}

func report(s *synth.Synth) {
	st := s.Stats()
	fmt.Printf("%d notes on, %d notes off, %d steals, %d dropped, %d unrouted\n",
		st.NotesOn, st.NotesOff, st.Steals, st.Dropped, st.Unrouted)
}
