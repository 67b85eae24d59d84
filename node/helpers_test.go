package node

import (
	"math"
	"os"
	"testing"

	"github.com/cwbudde/wav"
	"github.com/go-audio/audio"

	"github.com/cwbudde/algo-poly/dsp"
)

func blockOf(samples ...float32) *dsp.Block {
	b := dsp.NewBlock(len(samples))
	copy(b.Samples(), samples)
	return b
}

func sineBlock(n int, freq, sampleRate float64) *dsp.Block {
	b := dsp.NewBlock(n)
	s := b.Samples()
	for i := range s {
		s[i] = float32(math.Sin(2 * math.Pi * freq * float64(i) / sampleRate))
	}
	return b
}

func constBlock(n int, v float32) *dsp.Block {
	b := dsp.NewBlock(n)
	b.Fill(v)
	return b
}

// run feeds input through a single-inlet node in blocks and concatenates
// the output.
func run(n Node, input []float32, blockSize int) []float32 {
	out := make([]float32, 0, len(input))
	in := dsp.NewBlock(blockSize)
	for done := 0; done < len(input); done += blockSize {
		end := min(done+blockSize, len(input))
		in.Resize(end - done)
		copy(in.Samples(), input[done:end])
		n.SetBuffer(0, in)
		n.Compute(end - done)
		out = append(out, n.Buffer(0).Samples()...)
	}
	return out
}

func rms(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func directConvolve(x []float32, h []float32) []float32 {
	y := make([]float32, len(x)+len(h)-1)
	for i := 0; i < len(x); i++ {
		for j := 0; j < len(h); j++ {
			y[i+j] += x[i] * h[j]
		}
	}
	return y
}

func maxAbsDiff(a []float32, b []float32) float64 {
	n := min(len(a), len(b))
	worst := 0.0
	for i := 0; i < n; i++ {
		worst = math.Max(worst, math.Abs(float64(a[i]-b[i])))
	}
	return worst
}

func writeTempIRWav(t *testing.T, ir []float32, sampleRate int) string {
	t.Helper()
	f, err := os.CreateTemp("", "ir-*.wav")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &audio.Float32Buffer{
		Format: &audio.Format{
			SampleRate:  sampleRate,
			NumChannels: 1,
		},
		Data:           append([]float32(nil), ir...),
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("wav write: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("wav close: %v", err)
	}
	t.Cleanup(func() { _ = os.Remove(f.Name()) })
	return f.Name()
}
