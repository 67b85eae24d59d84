package synth

import "sync/atomic"

type commandKind uint8

const (
	cmdNoteOn commandKind = iota
	cmdNoteOff
	cmdAllNotesOff
)

type command struct {
	kind     commandKind
	channel  int
	note     int
	velocity float32
}

// commandQueue is a bounded single-producer/single-consumer ring. The
// render context is the only consumer; producers must be serialised by the
// caller.
type commandQueue struct {
	buf  []command
	mask uint64
	head atomic.Uint64 // next slot to read
	tail atomic.Uint64 // next slot to write
}

func newCommandQueue(size int) *commandQueue {
	n := 1
	for n < size {
		n <<= 1
	}
	return &commandQueue{buf: make([]command, n), mask: uint64(n - 1)}
}

// push appends c and reports false when the ring is full.
func (q *commandQueue) push(c command) bool {
	t := q.tail.Load()
	if t-q.head.Load() == uint64(len(q.buf)) {
		return false
	}
	q.buf[t&q.mask] = c
	q.tail.Store(t + 1)
	return true
}

func (q *commandQueue) pop() (command, bool) {
	h := q.head.Load()
	if h == q.tail.Load() {
		return command{}, false
	}
	c := q.buf[h&q.mask]
	q.head.Store(h + 1)
	return c, true
}

func (q *commandQueue) len() int {
	return int(q.tail.Load() - q.head.Load())
}
