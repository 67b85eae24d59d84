// Package midi turns MIDI messages, live or from Standard MIDI Files, into
// note commands for a synth.
package midi

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/smf"
)

// ccAllNotesOff is the channel mode message that silences a channel.
const ccAllNotesOff = 123

var ErrNoPort = errors.New("midi input port not found")

// Kind tells what an Event does.
type Kind uint8

const (
	NoteOn Kind = iota
	NoteOff
	AllNotesOff
)

// Event is one command, timed from the start of a sequence.
type Event struct {
	Time     time.Duration
	Kind     Kind
	Channel  int
	Note     int
	Velocity float32
}

// Target receives decoded commands. *synth.Synth implements it.
type Target interface {
	NoteOn(channel, note int, velocity float32)
	NoteOff(channel, note int)
	AllNotesOff(channel int)
}

// Decode converts a channel message. A note-on with zero velocity is a
// note-off. ok is false for messages that carry no note command.
func Decode(msg gomidi.Message) (ev Event, ok bool) {
	var ch, key, vel uint8
	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		return Event{Kind: NoteOn, Channel: int(ch), Note: int(key), Velocity: float32(vel) / 127}, true
	case msg.GetNoteEnd(&ch, &key):
		return Event{Kind: NoteOff, Channel: int(ch), Note: int(key)}, true
	case msg.GetControlChange(&ch, &key, &vel) && key == ccAllNotesOff:
		return Event{Kind: AllNotesOff, Channel: int(ch)}, true
	}
	return Event{}, false
}

// Dispatch forwards ev to t.
func Dispatch(t Target, ev Event) {
	switch ev.Kind {
	case NoteOn:
		t.NoteOn(ev.Channel, ev.Note, ev.Velocity)
	case NoteOff:
		t.NoteOff(ev.Channel, ev.Note)
	case AllNotesOff:
		t.AllNotesOff(ev.Channel)
	}
}

// LoadSMF reads the note commands of every track of a Standard MIDI File.
func LoadSMF(path string) (*Sequence, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadSMF(f)
}

// ReadSMF reads the note commands of every track, ordered by time. Events
// sharing a time keep file order, track by track.
func ReadSMF(r io.Reader) (*Sequence, error) {
	var events []Event
	tr := smf.ReadTracksFrom(r).Do(func(te smf.TrackEvent) {
		ev, ok := Decode(gomidi.Message(te.Message))
		if !ok {
			return
		}
		ev.Time = time.Duration(te.AbsMicroSeconds) * time.Microsecond
		events = append(events, ev)
	})
	if err := tr.Error(); err != nil {
		return nil, fmt.Errorf("read smf: %w", err)
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Time < events[j].Time })
	return &Sequence{events: events}, nil
}

// Sequence replays timed events block by block.
type Sequence struct {
	events []Event
	next   int
}

// NewSequence orders events by time.
func NewSequence(events []Event) *Sequence {
	evs := append([]Event(nil), events...)
	sort.SliceStable(evs, func(i, j int) bool { return evs[i].Time < evs[j].Time })
	return &Sequence{events: evs}
}

// Events returns the ordered events.
func (s *Sequence) Events() []Event { return s.events }

// Duration returns the time of the last event.
func (s *Sequence) Duration() time.Duration {
	if len(s.events) == 0 {
		return 0
	}
	return s.events[len(s.events)-1].Time
}

// Advance dispatches every pending event earlier than until and returns
// how many were sent.
func (s *Sequence) Advance(t Target, until time.Duration) int {
	n := 0
	for s.next < len(s.events) && s.events[s.next].Time < until {
		Dispatch(t, s.events[s.next])
		s.next++
		n++
	}
	return n
}

// Done reports whether every event has been dispatched.
func (s *Sequence) Done() bool { return s.next >= len(s.events) }

// Rewind restarts playback from the first event.
func (s *Sequence) Rewind() { s.next = 0 }

// InPorts lists the input port names of the registered driver.
func InPorts() []string {
	ins := gomidi.GetInPorts()
	names := make([]string, len(ins))
	for i, in := range ins {
		names[i] = in.String()
	}
	return names
}

// FindInPort resolves an input port by name, or the first port when name
// is empty.
func FindInPort(name string) (drivers.In, error) {
	if name == "" {
		ins := gomidi.GetInPorts()
		if len(ins) == 0 {
			return nil, ErrNoPort
		}
		return ins[0], nil
	}
	in, err := gomidi.FindInPort(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrNoPort, name, err)
	}
	return in, nil
}

// Listen forwards note commands arriving on in to t until stop is called.
// onErr, when set, receives listener errors such as a disconnect.
func Listen(in drivers.In, t Target, onErr func(error)) (stop func(), err error) {
	opts := []gomidi.Option{}
	if onErr != nil {
		opts = append(opts, gomidi.HandleError(onErr))
	}
	stop, err = gomidi.ListenTo(in, func(msg gomidi.Message, _ int32) {
		if ev, ok := Decode(msg); ok {
			Dispatch(t, ev)
		}
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", in.String(), err)
	}
	return stop, nil
}
