package main

import (
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/cwbudde/algo-poly/internal/wavio"
	"github.com/cwbudde/algo-poly/irsynth"
)

func main() {
	room := irsynth.DefaultRoom(48000)

	output := flag.String("output", "room.wav", "Output WAV path")
	flag.IntVar(&room.SampleRate, "sample-rate", room.SampleRate, "Output sample rate")
	flag.Float64Var(&room.Duration, "duration", room.Duration, "Response length in seconds")
	flag.Int64Var(&room.Seed, "seed", room.Seed, "Random seed")
	flag.Float64Var(&room.DirectLevel, "direct", room.DirectLevel, "Direct impulse level")
	flag.IntVar(&room.EarlyCount, "early", room.EarlyCount, "Number of early reflections")
	flag.IntVar(&room.Modes, "modes", room.Modes, "Number of damped modes")
	flag.Float64Var(&room.Brightness, "brightness", room.Brightness, "Spectral brightness (>0)")
	flag.Float64Var(&room.LateLevel, "late", room.LateLevel, "Diffuse tail level")
	flag.Float64Var(&room.LowDecay, "low-decay", room.LowDecay, "Low-frequency decay time (s)")
	flag.Float64Var(&room.HighDecay, "high-decay", room.HighDecay, "High-frequency decay time (s)")
	flag.Float64Var(&room.FadeOut, "fade", room.FadeOut, "Fade-out length (s)")
	flag.Float64Var(&room.NormalizePeak, "normalize", room.NormalizePeak, "Peak normalization target")
	flag.Parse()

	ir, err := irsynth.Generate(room)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ir-synth error: %v\n", err)
		os.Exit(1)
	}
	if err := wavio.WriteMono(*output, room.SampleRate, ir); err != nil {
		fmt.Fprintf(os.Stderr, "wav write error: %v\n", err)
		os.Exit(1)
	}

	peak, rms := stats(ir)
	fmt.Printf("Wrote %s\n", *output)
	fmt.Printf("SampleRate: %d Hz, Duration: %.3f s, Samples: %d\n", room.SampleRate, room.Duration, len(ir))
	fmt.Printf("Peak: %.6f, RMS: %.6f\n", peak, rms)
}

func stats(x []float32) (peak, rms float64) {
	if len(x) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range x {
		a := math.Abs(float64(v))
		peak = math.Max(peak, a)
		sum += a * a
	}
	return peak, math.Sqrt(sum / float64(len(x)))
}
