package value

import "github.com/kristofer/phpvm/internal/heap"

// MakeReference builds a Value of KindReference pointing at target,
// enforcing invariant 1 (spec.md §3): references never chain. If target
// itself names a reference slot, the new reference points at the final
// non-reference target instead.
func MakeReference(h *heap.Heap, target heap.Handle) Value {
	return Value{Kind: KindReference, Ref: Deref(h, target)}
}

// Deref follows reference handles until it reaches a handle whose slot is
// not itself a reference, returning that terminal handle. Given invariant
// 1 this should never recurse more than once in a well-formed heap, but
// it loops defensively in case a reference is ever constructed by hand
// without going through MakeReference.
func Deref(h *heap.Heap, handle heap.Handle) heap.Handle {
	seen := map[heap.Handle]bool{}
	for {
		if !h.IsLive(handle) {
			return handle
		}
		v, ok := h.Get(handle).(Value)
		if !ok || v.Kind != KindReference {
			return handle
		}
		if seen[handle] {
			return handle // defensive: break an accidental cycle
		}
		seen[handle] = true
		handle = v.Ref
	}
}
