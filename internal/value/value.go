// Package value implements the tagged-union Value model described in
// spec.md §3–§4.5: scalars, copy-on-write containers, references, objects,
// closures, generators, and resources, all addressed through heap.Handle.
//
// smog's equivalent is the raw interface{} it stores directly on VM.stack
// (pkg/vm/vm.go): int64, float64, string, bool, nil, *Array, *Instance,
// *Block. That works because smog has no reference semantics and no
// copy-on-write — "$b = $a" in smog's Smalltalk-style syntax just copies a
// Go interface value. phpvm needs aliasing (references), sharing-until-
// mutated (COW arrays), and GC reachability, so Value becomes a real
// tagged struct instead of bare interface{}, and containers carry the
// bookkeeping (owner counts, target handles) the teacher's values never
// needed.
package value

import "github.com/kristofer/phpvm/internal/heap"

// Kind discriminates the Value union.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindArray
	KindObject
	KindReference
	KindClosure
	KindGenerator
	KindResource
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	case KindReference:
		return "reference"
	case KindClosure:
		return "closure"
	case KindGenerator:
		return "generator"
	case KindResource:
		return "resource"
	default:
		return "unknown"
	}
}

// Value is one tagged-union cell of the value model. Only the field(s)
// matching Kind are meaningful; the rest are zero.
//
// Invariant 1 (spec.md §3): a Value of KindReference never has Ref
// pointing at a slot that itself holds KindReference — references do not
// chain. Callers that build references must resolve through an existing
// reference first (see Deref in reference.go).
type Value struct {
	Kind Kind

	Bool   bool
	Int    int64
	Float  float64
	Str    string
	Arr    *Array
	Obj    *Object
	Ref    heap.Handle
	Clo    *Closure
	Gen    Generator
	Res    *Resource
}

// Generator is the subset of *generator.Generator the value model needs to
// know about. Defined here (rather than imported from internal/generator)
// to avoid a value<->generator import cycle: generator.Generator implements
// this interface structurally.
type Generator interface {
	// HeapRefs lets the tracing sweep walk into a suspended generator
	// frame's locals and its buffered current/return values.
	HeapRefs() []heap.Handle
}

// Null, True, False are convenience constructors for the literal values
// the compiler and executor push most often.
func Null() Value         { return Value{Kind: KindNull} }
func Bool(b bool) Value   { return Value{Kind: KindBool, Bool: b} }
func Int(i int64) Value   { return Value{Kind: KindInt, Int: i} }
func Float(f float64) Value { return Value{Kind: KindFloat, Float: f} }
func Str(s string) Value  { return Value{Kind: KindString, Str: s} }

// IsTruthy implements PHP-family truthiness: false, 0, 0.0, "", "0", empty
// array, and null are falsy; everything else (including objects) is truthy.
func (v Value) IsTruthy() bool {
	switch v.Kind {
	case KindNull:
		return false
	case KindBool:
		return v.Bool
	case KindInt:
		return v.Int != 0
	case KindFloat:
		return v.Float != 0
	case KindString:
		return v.Str != "" && v.Str != "0"
	case KindArray:
		return v.Arr.Len() > 0
	default:
		return true
	}
}

// TypeName reports the user-visible type name (gettype()-shaped).
func (v Value) TypeName() string {
	switch v.Kind {
	case KindNull:
		return "NULL"
	case KindBool:
		return "boolean"
	case KindInt:
		return "integer"
	case KindFloat:
		return "double"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	case KindClosure:
		return "object"
	case KindGenerator:
		return "object"
	case KindResource:
		return "resource"
	default:
		return "unknown type"
	}
}

// HeapRefs implements heap.Refs so Collect can trace through a Value
// stored directly in a heap slot (an Object's property map, a Closure's
// captures) into whatever it points at.
func (v Value) HeapRefs() []heap.Handle {
	switch v.Kind {
	case KindReference:
		return []heap.Handle{v.Ref}
	case KindArray:
		return v.Arr.HeapRefs()
	case KindObject:
		return v.Obj.HeapRefs()
	case KindClosure:
		return v.Clo.HeapRefs()
	case KindGenerator:
		if v.Gen != nil {
			return v.Gen.HeapRefs()
		}
	}
	return nil
}
