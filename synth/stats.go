package synth

import "sync/atomic"

// Stats is a snapshot of the scheduler's diagnostic counters.
type Stats struct {
	NotesOn         uint64
	NotesOff        uint64
	Steals          uint64
	IgnoredNoteOffs uint64
	// Dropped counts commands lost to a full queue.
	Dropped uint64
	// Unrouted counts commands for channels without a group.
	Unrouted     uint64
	ActiveVoices int
}

type counters struct {
	notesOn         atomic.Uint64
	notesOff        atomic.Uint64
	steals          atomic.Uint64
	ignoredNoteOffs atomic.Uint64
	dropped         atomic.Uint64
	unrouted        atomic.Uint64
	active          atomic.Int64
}

// Stats returns the current counters. Safe from any goroutine.
func (s *Synth) Stats() Stats {
	return Stats{
		NotesOn:         s.stats.notesOn.Load(),
		NotesOff:        s.stats.notesOff.Load(),
		Steals:          s.stats.steals.Load(),
		IgnoredNoteOffs: s.stats.ignoredNoteOffs.Load(),
		Dropped:         s.stats.dropped.Load(),
		Unrouted:        s.stats.unrouted.Load(),
		ActiveVoices:    int(s.stats.active.Load()),
	}
}
