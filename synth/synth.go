// Package synth schedules notes onto fixed pools of voices and mixes them
// into one block per render call.
//
// NoteOn, NoteOff, AllNotesOff and the gain and parameter setters may be
// called from any goroutine. RenderBlock belongs to the render context: it
// never blocks on those callers, and once the pool is warm it does not
// allocate.
package synth

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/cwbudde/algo-poly/dsp"
)

// slot is one voice of the pool and its assignment.
type slot struct {
	voice     *Voice
	assigned  bool
	releasing bool
	note      int
	seq       uint64
	intent    Intent
	// published mirrors note (or -1) for control-side inspection.
	published atomic.Int64
}

type group struct {
	channel int
	slots   []*slot
	gain    *dsp.Param
	mix     *dsp.Block
	active  atomic.Int32
}

// Synth is the voice scheduler.
type Synth struct {
	sampleRate int
	blockSize  int

	slots     []*slot
	groups    []*group
	byChannel map[int]*group

	queue     *commandQueue
	producers sync.Mutex

	master *dsp.Param
	mix    *dsp.Block
	seq    uint64

	stats counters
}

// New builds every voice up front. The pool cannot be resized afterwards.
func New(cfg *Config) (*Synth, error) {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	master := cfg.MasterGain
	if master <= 0 {
		master = 1
	}

	s := &Synth{
		sampleRate: cfg.SampleRate,
		blockSize:  cfg.BlockSize,
		byChannel:  make(map[int]*group, len(cfg.Groups)),
		queue:      newCommandQueue(queueSize),
		master:     dsp.NewParam(master),
		mix:        dsp.NewBlock(cfg.BlockSize),
	}
	for gi, gc := range cfg.Groups {
		gain := gc.Gain
		if gain <= 0 {
			gain = 1
		}
		g := &group{
			channel: gc.Channel,
			gain:    dsp.NewParam(gain),
			mix:     dsp.NewBlock(cfg.BlockSize),
		}
		proto, err := gc.Template.NewVoice(cfg.SampleRate, cfg.BlockSize)
		if err != nil {
			return nil, fmt.Errorf("group %d (channel %d): %w", gi, gc.Channel, err)
		}
		for i := 0; i < gc.Voices; i++ {
			v := proto
			if i > 0 {
				v = proto.Clone()
			}
			sl := &slot{voice: v, note: -1, intent: Stopped}
			sl.published.Store(-1)
			g.slots = append(g.slots, sl)
			s.slots = append(s.slots, sl)
		}
		s.groups = append(s.groups, g)
		s.byChannel[gc.Channel] = g
	}
	return s, nil
}

// SampleRate returns the configured sample rate.
func (s *Synth) SampleRate() int { return s.sampleRate }

// BlockSize returns the block length voices are preallocated for.
func (s *Synth) BlockSize() int { return s.blockSize }

// NoteOn queues a note start. velocity is clamped to [0,1].
func (s *Synth) NoteOn(channel, note int, velocity float32) {
	s.enqueue(command{kind: cmdNoteOn, channel: channel, note: note, velocity: clamp01(velocity)})
}

// NoteOff queues a note stop. Stopping a note that is not sounding is a
// no-op.
func (s *Synth) NoteOff(channel, note int) {
	s.enqueue(command{kind: cmdNoteOff, channel: channel, note: note})
}

// AllNotesOff releases every voice of channel, or of every channel when
// channel is negative.
func (s *Synth) AllNotesOff(channel int) {
	s.enqueue(command{kind: cmdAllNotesOff, channel: channel})
}

func (s *Synth) enqueue(c command) {
	s.producers.Lock()
	ok := s.queue.push(c)
	s.producers.Unlock()
	if !ok {
		s.stats.dropped.Add(1)
	}
}

// SetNodeParameter sets param on the node named nodeID in every voice.
func (s *Synth) SetNodeParameter(nodeID, param string, value float32) error {
	for _, sl := range s.slots {
		if err := sl.voice.Graph().SetParameter(nodeID, param, value); err != nil {
			return err
		}
	}
	return nil
}

// SetMasterGain scales the final mix.
func (s *Synth) SetMasterGain(gain float32) {
	s.master.Store(gain)
}

// SetChannelGain scales the mix of one channel group.
func (s *Synth) SetChannelGain(channel int, gain float32) error {
	g, ok := s.byChannel[channel]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownChannel, channel)
	}
	g.gain.Store(gain)
	return nil
}

// ActiveVoices returns how many voices of channel were assigned after the
// last rendered block.
func (s *Synth) ActiveVoices(channel int) int {
	g, ok := s.byChannel[channel]
	if !ok {
		return 0
	}
	return int(g.active.Load())
}

// Assigned returns the sorted notes held by channel's voices after the last
// rendered block.
func (s *Synth) Assigned(channel int) []int {
	g, ok := s.byChannel[channel]
	if !ok {
		return nil
	}
	var notes []int
	for _, sl := range g.slots {
		if n := sl.published.Load(); n >= 0 {
			notes = append(notes, int(n))
		}
	}
	slices.Sort(notes)
	return notes
}

// RenderBlock applies queued commands in arrival order, renders every
// assigned voice and returns the mono mix. The returned slice is reused by
// the next call.
func (s *Synth) RenderBlock(frames int) []float32 {
	for {
		c, ok := s.queue.pop()
		if !ok {
			break
		}
		s.apply(c)
	}

	s.mix.Resize(frames)
	s.mix.Zero()
	active := 0
	for _, g := range s.groups {
		g.mix.Resize(frames)
		g.mix.Zero()
		n := 0
		for _, sl := range g.slots {
			if !sl.assigned {
				continue
			}
			intent, out := sl.voice.Process(sl.intent, frames)
			sl.intent = intent
			g.mix.Add(out)
			if intent == Stopped {
				s.free(sl)
				continue
			}
			n++
		}
		g.mix.Scale(g.gain.Load())
		s.mix.Add(g.mix.Samples())
		g.active.Store(int32(n))
		active += n
	}
	s.mix.Scale(s.master.Load())
	s.stats.active.Store(int64(active))
	return s.mix.Samples()
}

func (s *Synth) apply(c command) {
	switch c.kind {
	case cmdNoteOn:
		s.noteOn(c.channel, c.note, c.velocity)
	case cmdNoteOff:
		s.noteOff(c.channel, c.note)
	case cmdAllNotesOff:
		s.allNotesOff(c.channel)
	}
}

func (s *Synth) noteOn(channel, note int, velocity float32) {
	g, ok := s.byChannel[channel]
	if !ok {
		s.stats.unrouted.Add(1)
		return
	}
	s.stats.notesOn.Add(1)

	sl := g.pick()
	if sl.assigned {
		s.stats.steals.Add(1)
		sl.voice.Release()
	} else {
		sl.voice.Reset()
	}
	s.seq++
	sl.assigned = true
	sl.releasing = false
	sl.note = note
	sl.seq = s.seq
	sl.intent = WantsToPlay
	sl.published.Store(int64(note))
	sl.voice.Start(midiNoteToFreq(note), velocity)
}

// pick chooses the slot for a new note: the free slot with the lowest
// index, else the oldest releasing slot, else the oldest slot. Sequence
// numbers are unique so age never ties.
func (g *group) pick() *slot {
	var releasing, oldest *slot
	for _, sl := range g.slots {
		if !sl.assigned {
			return sl
		}
		if sl.releasing && (releasing == nil || sl.seq < releasing.seq) {
			releasing = sl
		}
		if oldest == nil || sl.seq < oldest.seq {
			oldest = sl
		}
	}
	if releasing != nil {
		return releasing
	}
	return oldest
}

func (s *Synth) noteOff(channel, note int) {
	g, ok := s.byChannel[channel]
	if !ok {
		s.stats.unrouted.Add(1)
		return
	}
	found := false
	for _, sl := range g.slots {
		if sl.assigned && !sl.releasing && sl.note == note {
			sl.releasing = true
			sl.intent = WantsToStop
			found = true
		}
	}
	if found {
		s.stats.notesOff.Add(1)
	} else {
		s.stats.ignoredNoteOffs.Add(1)
	}
}

func (s *Synth) allNotesOff(channel int) {
	for _, g := range s.groups {
		if channel >= 0 && g.channel != channel {
			continue
		}
		for _, sl := range g.slots {
			if sl.assigned && !sl.releasing {
				sl.releasing = true
				sl.intent = WantsToStop
			}
		}
	}
}

func (s *Synth) free(sl *slot) {
	sl.assigned = false
	sl.releasing = false
	sl.note = -1
	sl.intent = Stopped
	sl.published.Store(-1)
}
