// Package frame implements the call frame (spec.md §4.3 invocation
// protocol): the activation record pushed for every function, method, and
// closure invocation, and popped (in order, with finally obligations
// honored) during a return or unwind.
//
// smog's equivalent is the bare []interface{} locals array plus ad hoc
// fields on vm.Frame in pkg/vm/vm.go (ip, code, locals, self, class,
// stackBase). phpvm generalizes this the same way — one struct per active
// call — but adds the bookkeeping PHP-family semantics need that
// Smalltalk message sends don't: a called-scope distinct from the
// defining class (late static binding), a pending-finally slot for
// exactly-once finally execution during unwind, and a generator backref so
// a suspended frame can be found again by the generator that owns it.
package frame

import (
	"github.com/kristofer/phpvm/internal/foreach"
	"github.com/kristofer/phpvm/internal/heap"
	"github.com/kristofer/phpvm/internal/interner"
	"github.com/kristofer/phpvm/pkg/bytecode"
)

// PendingExit records a deferred control transfer (return, throw, or a
// loop break/continue targeting an outer loop) that must be resumed once
// the frame's active finally block finishes (spec.md §4.8: "finally
// executes exactly once, and re-applies whatever exit was pending
// afterward unless the finally itself exits first").
type PendingExitKind int

const (
	NoPendingExit PendingExitKind = iota
	PendingReturn
	PendingThrow
	PendingJump
)

type PendingExit struct {
	Kind        PendingExitKind
	ReturnValue heap.Handle
	Exception   heap.Handle
	JumpTarget  int
}

// Frame is one activation record on the executor's call stack.
type Frame struct {
	Code *bytecode.Chunk
	IP   int

	Locals []heap.Handle // indexed by the chunk's local slot numbers

	This        heap.Handle // KindObject handle, NilHandle if unbound
	Class       interner.Symbol
	CalledScope interner.Symbol // spec.md §4.6: what static:: resolves through

	StackBase int  // operand stack depth when this frame was entered
	Discard   bool // true if the caller is a statement context that ignores the return value

	// Pending holds a deferred exit while a finally block (possibly several,
	// nested) is running; NoPendingExit otherwise.
	Pending PendingExit

	// GeneratorID is the owning generator's correlation id, 0 if this frame
	// is not a generator body (internal/generator assigns ids).
	GeneratorID uint64

	Args []heap.Handle // bound argument handles, for func_get_args()

	// ActiveFinally tracks finally regions currently executing, innermost
	// last, so the dispatch loop knows when control reaches a
	// FinallyEnd and which pending exit (if any) to re-apply. A region is
	// pushed when the dispatch loop jumps into its finally body and popped
	// when execution reaches that region's FinallyEnd.
	ActiveFinally []*bytecode.CatchEntry

	// YieldKey is the auto-increment key counter for OpYield calls that
	// don't specify an explicit key (spec.md §4.10: bare `yield $v` keys
	// sequentially starting at 0, independent of any key an earlier
	// `yield $k => $v` in the same generator used).
	YieldKey int64

	// DelegateCursor holds the source of an in-progress `yield from`
	// delegation so OpYieldFrom can resume it across successive Resume
	// calls instead of needing a dedicated "delegating" VM state.
	DelegateCursor foreach.Cursor

	// ForeachStack holds the cursor and loop-variable slots for each
	// currently nested foreach, pushed by OpForeachInit and popped by
	// OpForeachEnd.
	ForeachStack []*ForeachState

	// StaticSlots marks which local slots back a `static $x` declaration;
	// OpStoreLocal mirrors writes to these slots into the chunk-keyed
	// persistent table in runtimectx.Context so the value survives across
	// calls to the same function (spec.md §4.3).
	StaticSlots map[int]bool
}

// ForeachState is one entry of a frame's foreach nesting stack.
type ForeachState struct {
	Cursor  foreach.Cursor
	ValSlot int
	KeySlot int // -1 if the loop has no key variable
}

// New allocates a frame for invoking code, with LocalSlots local slots all
// initialized to heap.NilHandle (spec.md §4.3: an unset local reads as
// "undefined", distinct from set-to-null).
func New(code *bytecode.Chunk, stackBase int) *Frame {
	locals := make([]heap.Handle, code.LocalSlots)
	for i := range locals {
		locals[i] = heap.NilHandle
	}
	return &Frame{Code: code, Locals: locals, StackBase: stackBase, This: heap.NilHandle}
}

// HeapRefs implements heap.Refs so a suspended generator's frame keeps its
// locals, bound receiver, and pending exception reachable across a
// collection cycle.
func (f *Frame) HeapRefs() []heap.Handle {
	refs := make([]heap.Handle, 0, len(f.Locals)+len(f.Args)+2)
	refs = append(refs, f.Locals...)
	refs = append(refs, f.Args...)
	if f.This != heap.NilHandle {
		refs = append(refs, f.This)
	}
	if f.Pending.Kind == PendingReturn {
		refs = append(refs, f.Pending.ReturnValue)
	}
	if f.Pending.Kind == PendingThrow {
		refs = append(refs, f.Pending.Exception)
	}
	return refs
}

// CatchEntryFor returns the innermost catch-table entry covering ip, or
// nil if ip is not inside any try region (spec.md §4.8: catch tables are
// searched innermost-first, which in a compiler that emits entries in
// nesting order means scanning front-to-back and taking the first match
// whose range contains ip, since the emitter nests inner ranges before
// their enclosing ones end).
func (f *Frame) CatchEntryFor(ip int) *bytecode.CatchEntry {
	for i := range f.Code.CatchTable {
		e := &f.Code.CatchTable[i]
		if ip >= e.Start && ip < e.End {
			return e
		}
	}
	return nil
}

// FinallyEntryFor returns the innermost catch-table entry whose protected
// range covers ip and which carries a finally block, or nil. A return,
// break, or continue that jumps out of ip's region must route through
// this entry's finally before the exit actually happens.
func (f *Frame) FinallyEntryFor(ip int) *bytecode.CatchEntry {
	for i := range f.Code.CatchTable {
		e := &f.Code.CatchTable[i]
		if e.FinallyTarget >= 0 && ip >= e.Start && ip < e.End {
			return e
		}
	}
	return nil
}

// PushFinally marks entry's finally block as currently running.
func (f *Frame) PushFinally(entry *bytecode.CatchEntry) {
	f.ActiveFinally = append(f.ActiveFinally, entry)
}

// PopFinallyIfEnds pops the innermost active finally region when ip has
// reached its FinallyEnd, returning the popped entry or nil.
func (f *Frame) PopFinallyIfEnds(ip int) *bytecode.CatchEntry {
	if len(f.ActiveFinally) == 0 {
		return nil
	}
	top := f.ActiveFinally[len(f.ActiveFinally)-1]
	if ip != top.FinallyEnd {
		return nil
	}
	f.ActiveFinally = f.ActiveFinally[:len(f.ActiveFinally)-1]
	return top
}
