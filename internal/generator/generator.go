// Package generator implements the generator/coroutine state machine
// (spec.md §4.10): Created/Running/Suspended/Finished frame states
// driving current/key/next/send/throw/getReturn. The Delegating state is
// declared but never entered: `yield from` delegation is driven by the
// executor through the frame's DelegateCursor while the generator stays
// Suspended. There is no rewind operation.
//
// Generators are not OS threads (spec.md explicitly rules that out) — a
// generator is a suspended frame.Frame that the executor resumes
// synchronously on the caller's own goroutine, the same way smog's VM
// drives a single call stack in pkg/vm/vm.go's dispatch loop. What's new
// relative to smog (which has no suspend/resume concept at all) is the
// state machine itself and the channel-free handoff: Resume and the
// executor pass control back and forth through plain Go function calls,
// not goroutines, since a generator's body runs on the same stack its
// caller yields control to it from.
package generator

import (
	"fmt"
	"sync/atomic"

	"github.com/kristofer/phpvm/internal/frame"
	"github.com/kristofer/phpvm/internal/heap"
)

// State is one of the five lifecycle states spec.md §4.10 names.
type State int

const (
	Created State = iota
	Running
	Suspended
	Delegating
	Finished
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Running:
		return "running"
	case Suspended:
		return "suspended"
	case Delegating:
		return "delegating"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}

var idCounter uint64

// nextID mints a process-unique generator correlation id; tests and the
// executor use it to find a generator's owning frame without an import
// cycle back to frame.Frame holding a *Generator pointer directly.
func nextID() uint64 {
	return atomic.AddUint64(&idCounter, 1)
}

// Resumer is implemented by the executor: it knows how to run a suspended
// frame forward until the next yield, return, or uncaught exception.
// Defined here (rather than imported from internal/executor) to avoid a
// generator<->executor import cycle — internal/executor implements this
// structurally.
type Resumer interface {
	// Resume runs f until it yields (returns key/value, done=false),
	// returns (value holds the return value, done=true), or fails with an
	// uncaught exception (err non-nil).
	Resume(f *frame.Frame, sent heap.Handle) (key, value heap.Handle, done bool, err error)
}

// Generator is the runtime object backing a `function f(): Generator` or
// `yield`-containing function's return value. It implements value.Generator
// structurally via HeapRefs.
type Generator struct {
	id    uint64
	state State
	frame *frame.Frame
	exec  Resumer

	currentKey   heap.Handle
	currentValue heap.Handle
	returnValue  heap.Handle

	// delegate is reported by HeapRefs when non-nil; nothing in this
	// package sets it (`yield from` is tracked in the frame's
	// DelegateCursor instead).
	delegate *Generator

	started bool
	err     error
}

// New wraps a not-yet-started frame as a Created generator. The frame's
// GeneratorID field is stamped so the executor's yield opcode handler can
// find its way back to this Generator when it suspends.
func New(f *frame.Frame, exec Resumer) *Generator {
	g := &Generator{id: nextID(), state: Created, frame: f, exec: exec}
	f.GeneratorID = g.id
	return g
}

// ID returns the generator's correlation id.
func (g *Generator) ID() uint64 { return g.id }

// Lifecycle reports the current lifecycle state.
func (g *Generator) Lifecycle() State { return g.state }

// ensureStarted runs the generator up to its first yield (or completion)
// the first time any of Current/Key/Next/Send is called, matching PHP
// generators' "execution doesn't begin until the first advance" rule.
func (g *Generator) ensureStarted() {
	if g.started {
		return
	}
	g.started = true
	g.advance(heap.NilHandle)
}

// advance drives the underlying frame forward by one step, sending v in
// as the result of whatever yield expression it's suspended at (ignored
// on the very first advance).
func (g *Generator) advance(v heap.Handle) {
	if g.state == Finished {
		return
	}
	g.state = Running
	key, value, done, err := g.exec.Resume(g.frame, v)
	if err != nil {
		g.state = Finished
		g.err = err
		return
	}
	if done {
		g.state = Finished
		g.returnValue = value
		return
	}
	g.currentKey, g.currentValue = key, value
	g.state = Suspended
}

// Current returns the value at the generator's current suspension point
// (Generator::current()), starting the generator if needed.
func (g *Generator) Current() heap.Handle {
	g.ensureStarted()
	return g.currentValue
}

// Key returns the key at the current suspension point
// (Generator::key()).
func (g *Generator) Key() heap.Handle {
	g.ensureStarted()
	return g.currentKey
}

// Valid reports whether the generator has more values
// (Generator::valid()).
func (g *Generator) Valid() bool {
	g.ensureStarted()
	return g.state != Finished
}

// Next advances without injecting a value (Generator::next()).
func (g *Generator) Next() error {
	g.ensureStarted()
	if g.state == Finished {
		return nil
	}
	g.advance(heap.NilHandle)
	return g.err
}

// Send resumes the generator with v as the result of the paused yield
// expression (Generator::send()). Per spec.md §4.10, calling Send before
// the generator has ever run implicitly performs the first advance
// first, discarding v (matching PHP's send()-on-fresh-generator
// behavior).
func (g *Generator) Send(v heap.Handle) (heap.Handle, error) {
	if !g.started {
		g.ensureStarted()
	} else {
		g.advance(v)
	}
	return g.currentValue, g.err
}

// Throw injects an exception at the generator's current suspension point
// (Generator::throw()). The executor has no way to re-enter a suspended
// Go call stack mid-expression, so rather than raising inside the paused
// frame this marks the generator Finished and reports the exception to
// the caller directly — a documented simplification of PHP's throw(),
// which would otherwise resume the body with the exception live at the
// yield site.
func (g *Generator) Throw(exc heap.Handle) (heap.Handle, error) {
	g.ensureStarted()
	if g.state == Finished {
		return heap.NilHandle, fmt.Errorf("cannot resume a finished generator")
	}
	g.state = Finished
	g.err = fmt.Errorf("uncaught exception thrown into generator")
	return heap.NilHandle, g.err
}

// GetReturn returns the value the generator's body returned, or an error
// if it hasn't finished yet (Generator::getReturn()).
func (g *Generator) GetReturn() (heap.Handle, error) {
	if g.state != Finished {
		return heap.NilHandle, fmt.Errorf("cannot get return value of a generator that hasn't returned")
	}
	return g.returnValue, nil
}

// HeapRefs implements heap.Refs (and thereby value.Generator structurally)
// so a suspended generator's frame and buffered current/return values
// stay reachable across a collection cycle.
func (g *Generator) HeapRefs() []heap.Handle {
	refs := []heap.Handle{g.currentKey, g.currentValue, g.returnValue}
	if g.frame != nil {
		refs = append(refs, g.frame.HeapRefs()...)
	}
	if g.delegate != nil {
		refs = append(refs, g.delegate.HeapRefs()...)
	}
	return refs
}
