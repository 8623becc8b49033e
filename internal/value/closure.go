package value

import (
	"github.com/kristofer/phpvm/internal/heap"
	"github.com/kristofer/phpvm/internal/interner"
	"github.com/kristofer/phpvm/pkg/bytecode"
)

// Closure is the KindClosure payload: a compiled chunk plus whatever state
// from its defining scope it needs to run later (spec.md §4.3, §4.6 late
// static binding). Closures, bound methods ($obj->method(...) passed as a
// callable), and top-level functions are all represented the same way —
// a function with no captures and no bound receiver is just a Closure with
// an empty Captures map and This == nil.
type Closure struct {
	Code *bytecode.Chunk

	// Captures holds the "use ($x, &$y)" bindings closed over at creation
	// time, keyed by local name. A captured-by-reference binding is stored
	// as a heap.Handle whose slot holds a KindReference Value; a
	// captured-by-value binding holds its own independent copy.
	Captures map[interner.Symbol]heap.Handle

	This  *Object // bound receiver, nil for unbound closures/static methods
	Class interner.Symbol // defining class scope, for self:: resolution
	Static bool // declared `static function` — This is always nil if so

	// CalledScope is the class the call was dispatched through, distinct
	// from Class when the closure runs via a subclass (spec.md §4.6
	// late static binding: static:: resolves through CalledScope, self::
	// through Class). BindTo (Closure::bindTo/Closure::bind) sets Class and
	// CalledScope together to the new scope; see SPEC_FULL.md's resolution of
	// the static::/Closure::bind open question.
	CalledScope interner.Symbol
}

// NewClosure wraps a compiled chunk with no captures and no bound scope,
// the shape a plain top-level function or unbound method reference takes.
func NewClosure(code *bytecode.Chunk) *Closure {
	return &Closure{Code: code, Captures: make(map[interner.Symbol]heap.Handle)}
}

// BindTo returns a copy of c bound to a new receiver and class scope,
// implementing Closure::bindTo/Closure::bind (spec.md §4.6). The copy
// shares Code and Captures with c; only This/Class/CalledScope change.
func (c *Closure) BindTo(this *Object, class interner.Symbol) *Closure {
	bound := *c
	bound.This = this
	bound.Class = class
	bound.CalledScope = class
	return &bound
}

// HeapRefs implements heap.Refs, tracing into captured bindings and the
// bound receiver's own property handles (via its own HeapRefs when the
// sweep visits this object directly as a root; here it only reports what
// handle the receiver would be at if it were itself heap-resident, which
// for This *Object pointers is indirect — This is only ever reached via
// an Object's own heap slot, so HeapRefs here only needs to report
// Captures).
func (c *Closure) HeapRefs() []heap.Handle {
	refs := make([]heap.Handle, 0, len(c.Captures))
	for _, h := range c.Captures {
		refs = append(refs, h)
	}
	return refs
}
