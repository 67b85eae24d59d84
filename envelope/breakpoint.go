package envelope

import "errors"

// BreakPoint is one control point of an envelope. At Time seconds after the
// attack the envelope starts a linear ramp from its current output to Value,
// taking Ramp seconds (0 is a step).
type BreakPoint struct {
	Time      float32
	Value     float32
	Ramp      float32
	LoopStart bool
	LoopEnd   bool
}

// Point is a shorthand constructor for a plain breakpoint.
func Point(time, value, ramp float32) BreakPoint {
	return BreakPoint{Time: time, Value: value, Ramp: ramp}
}

// Configuration errors. They are reported by AddPoint and Generate, never
// during playback.
var (
	ErrNoPoints            = errors.New("envelope has no breakpoints")
	ErrOutOfOrder          = errors.New("breakpoint time precedes previous breakpoint")
	ErrNegativeTime        = errors.New("breakpoint time or ramp is negative")
	ErrDuplicateLoopMarker = errors.New("duplicate loop marker")
	ErrLoopOrder           = errors.New("loop end must come after loop start")
	ErrIncompleteLoop      = errors.New("loop start and loop end must both be set")
)
