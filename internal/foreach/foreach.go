// Package foreach implements the foreach engine (spec.md §4.9):
// polymorphic iteration over plain arrays (by value or by reference),
// Generators, Iterator/IteratorAggregate objects, and a property-iteration
// fallback for plain objects, all behind one Cursor interface so the
// executor's FOREACH_INIT/FOREACH_NEXT opcodes don't need to know which
// kind of iterable they're driving.
//
// smog has no foreach construct at all (pkg/vm/vm.go only has message
// sends), so this package is new rather than adapted — grounded instead
// on the iterator-shape pattern smog's Block (closure) type already
// establishes: something with a simple synchronous "call, get a result"
// protocol that the VM drives one step at a time, generalized from
// "call with arguments" to "advance and read current/key".
package foreach

import (
	"github.com/kristofer/phpvm/internal/heap"
	"github.com/kristofer/phpvm/internal/interner"
	"github.com/kristofer/phpvm/internal/value"
)

// Cursor is the uniform interface every foreach source exposes.
type Cursor interface {
	Valid() bool
	Key() heap.Handle
	Current() heap.Handle
	Next() error
	// ByRefSlot returns the heap handle a by-reference foreach should
	// alias the loop variable to, and whether this cursor supports
	// by-reference iteration at all (spec.md §4.9: Generators and
	// Iterator objects cannot be iterated by reference).
	ByRefSlot() (heap.Handle, bool)
}

// arrayCursor iterates an *value.Array snapshot of its entries taken at
// FOREACH_INIT time, matching spec.md §4.9's rule that foreach iterates
// the array's state as of the start of the loop: mutations to the
// original array during the loop body don't change what later iterations
// see, except through an aliased by-reference element.
type arrayCursor struct {
	arr     *value.Array
	entries []struct {
		Key    value.Key
		Handle heap.Handle
	}
	pos   int
	byRef bool
}

// NewArrayCursor builds a Cursor over arr. When byRef is true, the source
// array itself (not a clone) is mutated by the caller via ByRefSlot so
// assignments to the loop variable are visible after the loop — the
// caller is responsible for calling arr.PrepareMutate() before iterating
// if the array might be shared (spec.md §4.9: "by-reference foreach over
// a shared array forces an unshare first, the same as any other mutation
// would").
func NewArrayCursor(arr *value.Array, byRef bool) Cursor {
	return &arrayCursor{arr: arr, entries: arr.Entries(), byRef: byRef}
}

func (c *arrayCursor) Valid() bool          { return c.pos < len(c.entries) }
func (c *arrayCursor) Key() heap.Handle     { return heap.NilHandle } // resolved by caller via KeyValue
func (c *arrayCursor) Current() heap.Handle { return c.entries[c.pos].Handle }
func (c *arrayCursor) Next() error          { c.pos++; return nil }

func (c *arrayCursor) ByRefSlot() (heap.Handle, bool) {
	if !c.byRef {
		return heap.NilHandle, false
	}
	return c.entries[c.pos].Handle, true
}

// KeyValue returns the normalized array key for the current position as a
// value.Value, since Cursor.Key only deals in heap.Handle and array keys
// are ints or strings, not independently heap-allocated.
func (c *arrayCursor) KeyValue() value.Key {
	return c.entries[c.pos].Key
}

// ArrayCursor exposes the concrete type so the executor can call
// KeyValue without a type switch on every Cursor implementation.
type ArrayCursor = *arrayCursor

// Iterator is the subset of a user-defined Iterator object's method
// surface foreach needs; internal/executor's call dispatch supplies this
// by wrapping method invocation, since Cursor must stay free of any
// dependency on the executor.
type Iterator interface {
	Valid() (bool, error)
	Current() (heap.Handle, error)
	Key() (heap.Handle, error)
	Next() error
	Rewind() error
}

// iteratorCursor adapts a user-defined Iterator object to Cursor.
type iteratorCursor struct {
	it      Iterator
	started bool
}

// NewIteratorCursor wraps it, calling Rewind once before the first Valid
// check per the Iterator protocol's documented contract.
func NewIteratorCursor(it Iterator) (Cursor, error) {
	if err := it.Rewind(); err != nil {
		return nil, err
	}
	return &iteratorCursor{it: it, started: true}, nil
}

func (c *iteratorCursor) Valid() bool {
	ok, err := c.it.Valid()
	return err == nil && ok
}

func (c *iteratorCursor) Key() heap.Handle {
	h, _ := c.it.Key()
	return h
}

func (c *iteratorCursor) Current() heap.Handle {
	h, _ := c.it.Current()
	return h
}

func (c *iteratorCursor) Next() error {
	return c.it.Next()
}

func (c *iteratorCursor) ByRefSlot() (heap.Handle, bool) {
	return heap.NilHandle, false
}

// GeneratorSource is the subset of *generator.Generator foreach needs;
// declared locally (rather than importing internal/generator) to avoid
// foreach<->generator import churn, since generator.Generator already
// exposes exactly this surface.
type GeneratorSource interface {
	Valid() bool
	Current() heap.Handle
	Key() heap.Handle
	Next() error
}

type generatorCursor struct {
	gen GeneratorSource
}

// NewGeneratorCursor wraps a running or suspended generator for foreach.
func NewGeneratorCursor(gen GeneratorSource) Cursor {
	return &generatorCursor{gen: gen}
}

func (c *generatorCursor) Valid() bool          { return c.gen.Valid() }
func (c *generatorCursor) Key() heap.Handle     { return c.gen.Key() }
func (c *generatorCursor) Current() heap.Handle { return c.gen.Current() }
func (c *generatorCursor) Next() error          { return c.gen.Next() }
func (c *generatorCursor) ByRefSlot() (heap.Handle, bool) {
	return heap.NilHandle, false
}

// propertyCursor is the fallback for a plain object with no Iterator
// implementation: foreach visits its public properties in declaration
// order (spec.md §4.9).
type propertyCursor struct {
	obj     *value.Object
	names   []interner.Symbol
	in      *interner.Interner
	pos     int
}

// NewPropertyCursor builds the declaration-order property fallback
// cursor. When isPublic is non-nil, only properties for which it returns
// true are visited; the cursor does not consider the calling scope, so
// the same filter applies inside and outside the declaring class.
func NewPropertyCursor(obj *value.Object, in *interner.Interner, isPublic func(interner.Symbol) bool) Cursor {
	all := obj.PropertiesInOrder()
	visible := make([]interner.Symbol, 0, len(all))
	for _, name := range all {
		if isPublic == nil || isPublic(name) {
			visible = append(visible, name)
		}
	}
	return &propertyCursor{obj: obj, names: visible, in: in}
}

func (c *propertyCursor) Valid() bool { return c.pos < len(c.names) }

func (c *propertyCursor) Key() heap.Handle {
	return heap.NilHandle // caller reads PropertyName() for the string key
}

func (c *propertyCursor) PropertyName() string {
	return c.in.Name(c.names[c.pos])
}

func (c *propertyCursor) Current() heap.Handle {
	h, _ := c.obj.GetProp(c.names[c.pos])
	return h
}

func (c *propertyCursor) Next() error {
	c.pos++
	return nil
}

func (c *propertyCursor) ByRefSlot() (heap.Handle, bool) {
	return heap.NilHandle, false
}

// PropertyCursor exposes the concrete type so the executor can read
// PropertyName without a type switch on every Cursor implementation,
// mirroring ArrayCursor above.
type PropertyCursor = *propertyCursor
