package main

import (
	"context"
	"encoding/binary"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/cwbudde/algo-poly/midi"
	"github.com/cwbudde/algo-poly/synth"
)

// source is what the audio callback renders from. A nil sequence means
// live input only. The sequence belongs to the feed goroutine.
type source struct {
	synth *synth.Synth
	seq   *midi.Sequence
}

// output pulls blocks from a synth into an oto player.
type output struct {
	ctx     *oto.Context
	player  *oto.Player
	src     atomic.Pointer[source] // lock-free in Read
	pending []float32
	frames  atomic.Int64 // rendered so far, published by Read
	seqDone atomic.Bool
	started bool
	mutex   sync.Mutex // setup and control only
}

func newOutput(sampleRate int, buffer time.Duration) (*output, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatFloat32LE,
		BufferSize:   buffer,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, err
	}
	<-ready
	return &output{ctx: ctx}, nil
}

func (o *output) setSource(src *source) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.src.Store(src)
	if o.player == nil {
		o.player = o.ctx.NewPlayer(o)
	}
}

// Read renders into p as float32 little-endian mono. It only renders;
// sequence events reach the synth through feed.
func (o *output) Read(p []byte) (int, error) {
	src := o.src.Load()
	if src == nil {
		clear(p)
		return len(p), nil
	}

	n := len(p) / 4
	for i := 0; i < n; i++ {
		if len(o.pending) == 0 {
			o.pending = src.synth.RenderBlock(src.synth.BlockSize())
			o.frames.Add(int64(len(o.pending)))
		}
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(o.pending[0]))
		o.pending = o.pending[1:]
	}
	return n * 4, nil
}

// feed dispatches the sequence of src until it is done or ctx ends,
// keeping lookahead ahead of the rendered position. It polls twice per
// block.
func (o *output) feed(ctx context.Context, src *source, lookahead time.Duration) {
	if src.seq == nil {
		return
	}
	poll := blockDuration(src.synth) / 2
	tick := time.NewTicker(max(poll, time.Millisecond))
	defer tick.Stop()
	for {
		if o.advance(src, lookahead) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
	}
}

// advance sends every event due before the rendered position plus
// lookahead and reports whether the sequence is done.
func (o *output) advance(src *source, lookahead time.Duration) bool {
	sr := src.synth.SampleRate()
	played := time.Duration(float64(o.frames.Load()) / float64(sr) * float64(time.Second))
	src.seq.Advance(src.synth, played+lookahead)
	done := src.seq.Done()
	o.seqDone.Store(done)
	return done
}

func blockDuration(s *synth.Synth) time.Duration {
	return time.Duration(float64(s.BlockSize()) / float64(s.SampleRate()) * float64(time.Second))
}

func (o *output) start() {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	if !o.started && o.player != nil {
		o.player.Play()
		o.started = true
	}
}

func (o *output) close() {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	if o.player != nil {
		o.player.Close()
		o.player = nil
	}
	o.started = false
}
