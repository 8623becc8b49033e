package value

import (
	"github.com/kristofer/phpvm/internal/heap"
	"github.com/kristofer/phpvm/internal/interner"
)

// Object is the KindObject payload: a handle-pair of class symbol and
// property record (spec.md §3). The class record itself lives in
// internal/class's table, keyed by ClassSym — Object only carries the
// symbol to avoid value<->class import cycle and because class records
// are immutable after registration (spec.md §3 invariant 5) while objects
// are not.
type Object struct {
	ClassSym interner.Symbol

	props     map[interner.Symbol]heap.Handle
	order     []interner.Symbol
	initOnce  map[interner.Symbol]bool // tracks first write, for readonly enforcement
}

// NewObject creates an instance of the class named by classSym with no
// properties set yet (the executor populates declared-property defaults
// immediately after allocation).
func NewObject(classSym interner.Symbol) *Object {
	return &Object{
		ClassSym: classSym,
		props:    make(map[interner.Symbol]heap.Handle),
		initOnce: make(map[interner.Symbol]bool),
	}
}

// GetProp returns the handle for a property and whether it is set.
func (o *Object) GetProp(name interner.Symbol) (heap.Handle, bool) {
	h, ok := o.props[name]
	return h, ok
}

// SetProp assigns a property, appending to declaration order on first
// write (so dynamic-property objects still iterate in write order, and
// declared properties keep the order the class record populated them in
// when the executor walks the class's property table at construction).
func (o *Object) SetProp(name interner.Symbol, h heap.Handle) {
	if _, exists := o.props[name]; !exists {
		o.order = append(o.order, name)
	}
	o.props[name] = h
}

// UnsetProp removes a property entirely.
func (o *Object) UnsetProp(name interner.Symbol) {
	if _, exists := o.props[name]; !exists {
		return
	}
	delete(o.props, name)
	delete(o.initOnce, name)
	for i, n := range o.order {
		if n == name {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}
}

// MarkInitialized records that name has received its first write, for
// readonly-property enforcement (spec.md §4.6: "first write" uses a
// per-object initialization set).
func (o *Object) MarkInitialized(name interner.Symbol) {
	o.initOnce[name] = true
}

// WasInitialized reports whether name has already received its first
// write on this object.
func (o *Object) WasInitialized(name interner.Symbol) bool {
	return o.initOnce[name]
}

// PropertiesInOrder returns declared property names in the order they
// were first written, for foreach's "iterate public properties in
// declaration order" fallback (spec.md §4.9) and for var_dump.
func (o *Object) PropertiesInOrder() []interner.Symbol {
	out := make([]interner.Symbol, len(o.order))
	copy(out, o.order)
	return out
}

// HeapRefs implements heap.Refs.
func (o *Object) HeapRefs() []heap.Handle {
	refs := make([]heap.Handle, 0, len(o.props))
	for _, h := range o.props {
		refs = append(refs, h)
	}
	return refs
}
