package envelope

import (
	"fmt"
	"math"
)

// State is the playback phase of an Envelope.
type State int

const (
	StateIdle State = iota
	StateAttack
	StateLoop
	StateRelease
	StateEnd
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAttack:
		return "attack"
	case StateLoop:
		return "loop"
	case StateRelease:
		return "release"
	case StateEnd:
		return "end"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Request is applied at the start of a Process call.
type Request int

const (
	Resume Request = iota
	Attack
	Release
)

type segment struct {
	start  int // sample offset at which the point fires
	target float32
	ramp   int // samples to reach target
}

// Envelope is a breakpoint envelope with an optional sustain loop.
// Points are added during setup, Generate compiles them once, and the
// instance is then driven by the render context only.
type Envelope struct {
	sampleRate int
	points     []BreakPoint
	loopStart  int
	loopEnd    int

	// compiled by Generate, read-only afterwards
	segs      []segment
	loopWrap  int
	generated bool

	state    State
	pos      int
	seg      int
	from     float32
	elapsed  int
	value    float32
	released bool
	reached  bool
}

// New creates an empty envelope for the given sample rate.
func New(sampleRate int) *Envelope {
	if sampleRate <= 0 {
		sampleRate = 48000
	}
	return &Envelope{
		sampleRate: sampleRate,
		loopStart:  -1,
		loopEnd:    -1,
		seg:        -1,
	}
}

// NewFromPoints adds all points and generates the ramp table.
func NewFromPoints(sampleRate int, points ...BreakPoint) (*Envelope, error) {
	e := New(sampleRate)
	for i, p := range points {
		if err := e.AddPoint(p); err != nil {
			return nil, fmt.Errorf("breakpoint %d: %w", i, err)
		}
	}
	if err := e.Generate(); err != nil {
		return nil, err
	}
	return e, nil
}

// AddPoint appends a breakpoint. Points must arrive in non-decreasing time.
func (e *Envelope) AddPoint(p BreakPoint) error {
	if p.Time < 0 || p.Ramp < 0 || math.IsNaN(float64(p.Time)) || math.IsNaN(float64(p.Ramp)) {
		return ErrNegativeTime
	}
	if n := len(e.points); n > 0 && p.Time < e.points[n-1].Time {
		return ErrOutOfOrder
	}
	if p.LoopStart && p.LoopEnd {
		return ErrLoopOrder
	}
	if p.LoopStart && e.loopStart >= 0 {
		return ErrDuplicateLoopMarker
	}
	if p.LoopEnd {
		if e.loopEnd >= 0 {
			return ErrDuplicateLoopMarker
		}
		if e.loopStart < 0 || p.Time <= e.points[e.loopStart].Time {
			return ErrLoopOrder
		}
	}

	idx := len(e.points)
	e.points = append(e.points, p)
	if p.LoopStart {
		e.loopStart = idx
	}
	if p.LoopEnd {
		e.loopEnd = idx
	}
	e.generated = false
	return nil
}

// Points returns a copy of the configured breakpoints.
func (e *Envelope) Points() []BreakPoint {
	out := make([]BreakPoint, len(e.points))
	copy(out, e.points)
	return out
}

// HasLoop reports whether both loop markers are set.
func (e *Envelope) HasLoop() bool {
	return e.loopStart >= 0 && e.loopEnd >= 0
}

// Generate compiles the points into the per-segment ramp table.
func (e *Envelope) Generate() error {
	if len(e.points) == 0 {
		return ErrNoPoints
	}
	if (e.loopStart >= 0) != (e.loopEnd >= 0) {
		return ErrIncompleteLoop
	}

	sr := float64(e.sampleRate)
	segs := make([]segment, len(e.points))
	for i, p := range e.points {
		segs[i] = segment{
			start:  int(math.Round(float64(p.Time) * sr)),
			target: p.Value,
			ramp:   int(math.Round(float64(p.Ramp) * sr)),
		}
	}
	e.segs = segs
	if e.HasLoop() {
		le := segs[e.loopEnd]
		e.loopWrap = le.start + max(le.ramp, 1)
	}
	e.generated = true
	e.Reset()
	return nil
}

// Reset returns the envelope to Idle with a zero output.
func (e *Envelope) Reset() {
	e.state = StateIdle
	e.pos = 0
	e.seg = -1
	e.from = 0
	e.elapsed = 0
	e.value = 0
	e.released = false
	e.reached = false
}

// Clone returns an envelope with the same breakpoints and compiled table and
// fresh playback state.
func (e *Envelope) Clone() *Envelope {
	c := &Envelope{
		sampleRate: e.sampleRate,
		points:     e.Points(),
		loopStart:  e.loopStart,
		loopEnd:    e.loopEnd,
		segs:       e.segs,
		loopWrap:   e.loopWrap,
		generated:  e.generated,
	}
	c.Reset()
	return c
}

// State returns the current playback phase.
func (e *Envelope) State() State {
	return e.state
}

// Value returns the most recent output.
func (e *Envelope) Value() float32 {
	return e.value
}

// IsAtEnd reports whether playback has finished.
func (e *Envelope) IsAtEnd() bool {
	return e.state == StateEnd
}

// Attack restarts playback at time zero. The first ramp starts from the
// current output, so retriggering a sounding envelope does not click.
func (e *Envelope) Attack() {
	if !e.generated {
		return
	}
	e.state = StateAttack
	e.pos = 0
	e.seg = -1
	e.from = e.value
	e.elapsed = 0
	e.released = false
	e.reached = false
}

// Release leaves the sustain loop. It is accepted once per attack; later
// calls are no-ops. Playback resumes at the loop point (or any point when
// there is no loop) whose value is closest to the current output, earliest
// point on ties, and then runs linearly to the end.
func (e *Envelope) Release() {
	if !e.generated || e.released || e.state == StateIdle || e.state == StateEnd {
		return
	}
	e.released = true

	target := e.closestPoint(e.value)
	e.pos = e.segs[target].start
	e.seg = target - 1
	e.state = StateRelease
	e.reached = false
}

func (e *Envelope) closestPoint(v float32) int {
	lo, hi := 0, len(e.points)-1
	if e.HasLoop() {
		lo, hi = e.loopStart, e.loopEnd
	}
	best := lo
	bestDiff := absf(e.points[lo].Value - v)
	for i := lo + 1; i <= hi; i++ {
		if d := absf(e.points[i].Value - v); d < bestDiff {
			best, bestDiff = i, d
		}
	}
	return best
}

// Process applies req and writes one gain value per sample into gain.
func (e *Envelope) Process(req Request, gain []float32) {
	e.apply(req)
	for i := range gain {
		gain[i] = e.step()
	}
}

// Next applies req and returns a single sample.
func (e *Envelope) Next(req Request) float32 {
	e.apply(req)
	return e.step()
}

func (e *Envelope) apply(req Request) {
	switch req {
	case Attack:
		e.Attack()
	case Release:
		e.Release()
	}
}

func (e *Envelope) step() float32 {
	switch e.state {
	case StateIdle, StateEnd:
		return e.value
	}
	if e.reached {
		e.state = StateEnd
		return e.value
	}

	for e.seg+1 < len(e.segs) && e.segs[e.seg+1].start <= e.pos {
		if e.state == StateLoop && e.seg == e.loopEnd {
			break
		}
		e.seg++
		e.from = e.value
		e.elapsed = 0
		if e.state == StateAttack && e.seg == e.loopStart {
			e.state = StateLoop
		}
	}

	if e.seg >= 0 {
		s := e.segs[e.seg]
		e.elapsed++
		if s.ramp <= 0 || e.elapsed >= s.ramp {
			e.value = s.target
		} else {
			e.value = e.from + (s.target-e.from)*float32(e.elapsed)/float32(s.ramp)
		}
		if e.state != StateLoop && e.seg == len(e.segs)-1 && (s.ramp <= 0 || e.elapsed >= s.ramp) {
			e.reached = true
		}
	}
	e.pos++

	if e.state == StateLoop && e.seg == e.loopEnd && e.pos >= e.loopWrap {
		e.pos = e.segs[e.loopStart].start
		e.seg = e.loopStart - 1
	}
	return e.value
}

func absf(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
