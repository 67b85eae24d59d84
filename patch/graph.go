// Package patch wires nodes into a directed acyclic processing graph that
// a voice pulls one block from per render tick.
package patch

import (
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/cwbudde/algo-poly/dsp"
	"github.com/cwbudde/algo-poly/node"
)

var (
	ErrUnknownHandle = errors.New("unknown node handle")
	ErrUnknownNode   = errors.New("unknown node name")
	ErrDuplicateName = errors.New("duplicate node name")
	ErrPortRange     = errors.New("port index out of range")
	ErrKindMismatch  = errors.New("incompatible port kinds")
	ErrInletTaken    = errors.New("inlet already connected")
	ErrCycle         = errors.New("graph contains a cycle")
	ErrNoOutput      = errors.New("graph has no output")
)

// Handle addresses a node inside one graph.
type Handle int

// inlet records what feeds one node input: a connection, a held literal,
// or nothing.
type inlet struct {
	from       Handle
	outlet     int
	literal    *dsp.Param
	hasLiteral atomic.Bool
}

type entry struct {
	node   node.Node
	name   string
	inlets []*inlet
}

// Graph owns its nodes. Structural edits (Add, Connect, SetOutput) must
// happen before the graph is handed to the render context; SetInlet on an
// existing literal and SetParameter are safe at any time.
type Graph struct {
	entries   []entry
	names     map[string]Handle
	output    Handle
	outlet    int
	hasOutput bool

	compiled  bool
	order     []Handle
	receivers []node.NoteReceiver
	silence   *dsp.Block
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		names:   make(map[string]Handle),
		output:  -1,
		silence: dsp.NewBlock(0),
	}
}

// Add inserts n and returns its handle.
func (g *Graph) Add(n node.Node) Handle {
	h := Handle(len(g.entries))
	ins := make([]*inlet, len(n.Inlets()))
	for i := range ins {
		ins[i] = &inlet{from: -1, literal: dsp.NewParam(0)}
	}
	g.entries = append(g.entries, entry{node: n, inlets: ins})
	g.compiled = false
	return h
}

// AddNamed inserts n under name so it can be addressed by SetParameter.
func (g *Graph) AddNamed(name string, n node.Node) (Handle, error) {
	if _, ok := g.names[name]; ok {
		return -1, fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	h := g.Add(n)
	g.entries[h].name = name
	g.names[name] = h
	return h, nil
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.entries) }

// Node returns the node behind h.
func (g *Graph) Node(h Handle) (node.Node, error) {
	if !g.valid(h) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownHandle, h)
	}
	return g.entries[h].node, nil
}

// Lookup resolves a node name.
func (g *Graph) Lookup(name string) (Handle, bool) {
	h, ok := g.names[name]
	return h, ok
}

func (g *Graph) valid(h Handle) bool {
	return h >= 0 && int(h) < len(g.entries)
}

// Connect feeds outlet of from into inlet of to.
func (g *Graph) Connect(from Handle, outlet int, to Handle, inletIdx int) error {
	if !g.valid(from) {
		return fmt.Errorf("connect: source %w: %d", ErrUnknownHandle, from)
	}
	if !g.valid(to) {
		return fmt.Errorf("connect: target %w: %d", ErrUnknownHandle, to)
	}
	outs := g.entries[from].node.Outlets()
	if outlet < 0 || outlet >= len(outs) {
		return fmt.Errorf("connect: outlet %d of node %d: %w", outlet, from, ErrPortRange)
	}
	ins := g.entries[to].node.Inlets()
	if inletIdx < 0 || inletIdx >= len(ins) {
		return fmt.Errorf("connect: inlet %d of node %d: %w", inletIdx, to, ErrPortRange)
	}
	if !ins[inletIdx].Accepts(outs[outlet]) {
		return fmt.Errorf("connect: %s outlet into %s inlet: %w", outs[outlet], ins[inletIdx], ErrKindMismatch)
	}
	in := g.entries[to].inlets[inletIdx]
	if in.from >= 0 {
		return fmt.Errorf("connect: inlet %d of node %d: %w", inletIdx, to, ErrInletTaken)
	}
	in.from = from
	in.outlet = outlet
	g.compiled = false
	return nil
}

// Disconnect removes whatever feeds inlet of to.
func (g *Graph) Disconnect(to Handle, inletIdx int) error {
	if !g.valid(to) {
		return fmt.Errorf("disconnect: %w: %d", ErrUnknownHandle, to)
	}
	if inletIdx < 0 || inletIdx >= len(g.entries[to].inlets) {
		return fmt.Errorf("disconnect: inlet %d of node %d: %w", inletIdx, to, ErrPortRange)
	}
	g.entries[to].inlets[inletIdx].from = -1
	g.compiled = false
	return nil
}

// SetInlet holds v on an unconnected scalar-capable inlet. The value is
// delivered every tick until a connection replaces it.
func (g *Graph) SetInlet(h Handle, inletIdx int, v float32) error {
	if !g.valid(h) {
		return fmt.Errorf("set inlet: %w: %d", ErrUnknownHandle, h)
	}
	ins := g.entries[h].node.Inlets()
	if inletIdx < 0 || inletIdx >= len(ins) {
		return fmt.Errorf("set inlet: inlet %d of node %d: %w", inletIdx, h, ErrPortRange)
	}
	if !ins[inletIdx].Accepts(node.KindScalar) {
		return fmt.Errorf("set inlet: literal into %s inlet: %w", ins[inletIdx], ErrKindMismatch)
	}
	in := g.entries[h].inlets[inletIdx]
	in.literal.Store(v)
	in.hasLiteral.Store(true)
	return nil
}

// SetOutput selects the buffer outlet the graph renders.
func (g *Graph) SetOutput(h Handle, outlet int) error {
	if !g.valid(h) {
		return fmt.Errorf("set output: %w: %d", ErrUnknownHandle, h)
	}
	outs := g.entries[h].node.Outlets()
	if outlet < 0 || outlet >= len(outs) {
		return fmt.Errorf("set output: outlet %d of node %d: %w", outlet, h, ErrPortRange)
	}
	if !outs[outlet].Accepts(node.KindBuffer) {
		return fmt.Errorf("set output: %s outlet: %w", outs[outlet], ErrKindMismatch)
	}
	g.output = h
	g.outlet = outlet
	g.hasOutput = true
	g.compiled = false
	return nil
}

// SetParameter forwards a parameter change to the node registered as name.
func (g *Graph) SetParameter(name, param string, v float32) error {
	h, ok := g.names[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownNode, name)
	}
	return g.entries[h].node.SetParameter(param, v)
}

// Compile validates the graph and fixes the evaluation order. Only nodes
// the output depends on are evaluated.
func (g *Graph) Compile() error {
	g.compiled = false
	if !g.hasOutput {
		return ErrNoOutput
	}

	const (
		unvisited = iota
		visiting
		done
	)
	marks := make([]uint8, len(g.entries))
	var visit func(h Handle, order *[]Handle) error
	visit = func(h Handle, order *[]Handle) error {
		switch marks[h] {
		case visiting:
			return fmt.Errorf("%w through node %d", ErrCycle, h)
		case done:
			return nil
		}
		marks[h] = visiting
		for _, in := range g.entries[h].inlets {
			if in.from >= 0 {
				if err := visit(in.from, order); err != nil {
					return err
				}
			}
		}
		marks[h] = done
		if order != nil {
			*order = append(*order, h)
		}
		return nil
	}

	order := make([]Handle, 0, len(g.entries))
	if err := visit(g.output, &order); err != nil {
		return err
	}
	// Cycles off the output path are still configuration errors.
	for h := range g.entries {
		if err := visit(Handle(h), nil); err != nil {
			return err
		}
	}

	g.order = order
	g.collectReceivers()
	g.compiled = true
	return nil
}

func (g *Graph) collectReceivers() {
	g.receivers = g.receivers[:0]
	for _, e := range g.entries {
		if r, ok := e.node.(node.NoteReceiver); ok {
			g.receivers = append(g.receivers, r)
		}
	}
}

// Compiled reports whether Process will render.
func (g *Graph) Compiled() bool { return g.compiled }

// Process evaluates every node the output depends on once, in dependency
// order, and returns the output block. An uncompiled graph yields silence.
// The returned block is owned by the graph and valid until the next call.
func (g *Graph) Process(frames int) *dsp.Block {
	if !g.compiled {
		g.silence.Resize(frames)
		g.silence.Zero()
		return g.silence
	}
	for _, h := range g.order {
		e := &g.entries[h]
		for i, in := range e.inlets {
			if in.from < 0 {
				e.node.SetBuffer(i, nil)
				if in.hasLiteral.Load() {
					e.node.SetScalar(i, in.literal.Load())
				}
				continue
			}
			src := g.entries[in.from].node
			if src.Outlets()[in.outlet].Accepts(node.KindBuffer) {
				e.node.SetBuffer(i, src.Buffer(in.outlet))
				continue
			}
			e.node.SetBuffer(i, nil)
			e.node.SetScalar(i, src.Scalar(in.outlet))
		}
		e.node.Compute(frames)
	}
	return g.entries[g.output].node.Buffer(g.outlet)
}

// NoteOn tells every note-aware node which note its voice now plays.
func (g *Graph) NoteOn(frequency, velocity float32) {
	for _, r := range g.receivers {
		r.NoteOn(frequency, velocity)
	}
}

// Reset clears the runtime state of every node.
func (g *Graph) Reset() {
	for _, e := range g.entries {
		e.node.Reset()
	}
}

// Clone returns an independent graph: every node is cloned, connections,
// names and literals are copied, and a compiled g yields a compiled clone
// with the same evaluation order.
func (g *Graph) Clone() *Graph {
	c := New()
	c.entries = make([]entry, len(g.entries))
	for i, e := range g.entries {
		ins := make([]*inlet, len(e.inlets))
		for j, in := range e.inlets {
			cp := &inlet{from: in.from, outlet: in.outlet, literal: dsp.NewParam(in.literal.Load())}
			cp.hasLiteral.Store(in.hasLiteral.Load())
			ins[j] = cp
		}
		c.entries[i] = entry{node: e.node.Clone(), name: e.name, inlets: ins}
	}
	for name, h := range g.names {
		c.names[name] = h
	}
	c.output, c.outlet, c.hasOutput = g.output, g.outlet, g.hasOutput
	if g.compiled {
		c.order = slices.Clone(g.order)
		c.collectReceivers()
		c.compiled = true
	}
	return c
}
