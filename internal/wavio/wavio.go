// Package wavio reads and writes the WAV files the synth tools exchange.
package wavio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	dspresample "github.com/cwbudde/algo-dsp/dsp/resample"
	"github.com/cwbudde/wav"
	"github.com/go-audio/audio"
)

var ErrInvalidFile = errors.New("invalid wav file")

// Clip is decoded interleaved audio.
type Clip struct {
	Data       []float32
	Channels   int
	SampleRate int
}

// Frames returns the number of sample frames.
func (c Clip) Frames() int {
	if c.Channels <= 0 {
		return 0
	}
	return len(c.Data) / c.Channels
}

// Channel extracts one channel.
func (c Clip) Channel(ch int) []float32 {
	n := c.Frames()
	out := make([]float32, n)
	for i := range n {
		out[i] = c.Data[i*c.Channels+ch]
	}
	return out
}

// Mono averages all channels.
func (c Clip) Mono() []float32 {
	n := c.Frames()
	out := make([]float32, n)
	g := 1 / float32(c.Channels)
	for i := range n {
		var sum float32
		for ch := 0; ch < c.Channels; ch++ {
			sum += c.Data[i*c.Channels+ch]
		}
		out[i] = sum * g
	}
	return out
}

// Read decodes a whole WAV file.
func Read(path string) (Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return Clip{}, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return Clip{}, fmt.Errorf("%w: %s", ErrInvalidFile, path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Clip{}, err
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels < 1 {
		return Clip{}, fmt.Errorf("%w: no buffer in %s", ErrInvalidFile, path)
	}
	if buf.Format.SampleRate <= 0 {
		return Clip{}, fmt.Errorf("%w: sample rate %d in %s", ErrInvalidFile, buf.Format.SampleRate, path)
	}

	c := Clip{
		Data:       make([]float32, len(buf.Data)),
		Channels:   buf.Format.NumChannels,
		SampleRate: buf.Format.SampleRate,
	}
	for i, v := range buf.Data {
		c.Data[i] = float32(v)
	}
	if c.Frames() == 0 {
		return Clip{}, fmt.Errorf("%w: empty data in %s", ErrInvalidFile, path)
	}
	return c, nil
}

// WriteMono writes 16-bit PCM, creating parent directories as needed.
func WriteMono(path string, sampleRate int, samples []float32) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &audio.Float32Buffer{
		Format:         &audio.Format{SampleRate: sampleRate, NumChannels: 1},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return err
	}
	return enc.Close()
}

// Resample converts in from one rate to another. Equal rates return in
// unchanged.
func Resample(in []float32, fromRate, toRate int) ([]float32, error) {
	if fromRate == toRate {
		return in, nil
	}
	r, err := dspresample.NewForRates(
		float64(fromRate),
		float64(toRate),
		dspresample.WithQuality(dspresample.QualityBest),
	)
	if err != nil {
		return nil, err
	}

	in64 := make([]float64, len(in))
	for i, v := range in {
		in64[i] = float64(v)
	}
	out64 := r.Process(in64)
	out := make([]float32, len(out64))
	for i, v := range out64 {
		out[i] = float32(v)
	}
	return out, nil
}
