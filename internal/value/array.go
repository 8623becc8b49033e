package value

import (
	"strconv"

	"github.com/kristofer/phpvm/internal/heap"
)

// Key is a normalized array key: PHP-family arrays key by either an int
// or a byte string, never both for the same logical key (spec.md §3
// invariant 4, §4.5).
type Key struct {
	IsInt bool
	Int   int64
	Str   string
}

// IntKey and StrKey build normalized keys directly, bypassing
// NormalizeKey's coercion — used when the caller already knows the key
// is canonical (e.g. the implicit counter in `$a[] = x`).
func IntKey(i int64) Key   { return Key{IsInt: true, Int: i} }
func StrKey(s string) Key { return Key{Str: s} }

// NormalizeKey applies PHP's key-coercion rule (spec.md §4.5):
// integer-valued string keys become int keys; true/false become 1/0;
// null becomes ""; float keys truncate toward zero.
func NormalizeKey(v Value) Key {
	switch v.Kind {
	case KindInt:
		return IntKey(v.Int)
	case KindFloat:
		return IntKey(int64(v.Float))
	case KindBool:
		if v.Bool {
			return IntKey(1)
		}
		return IntKey(0)
	case KindNull:
		return StrKey("")
	case KindString:
		if n, ok := canonicalInt(v.Str); ok {
			return IntKey(n)
		}
		return StrKey(v.Str)
	default:
		return StrKey("")
	}
}

// canonicalInt reports whether s is the canonical decimal representation
// of an int64 with no leading zeros (other than "0" itself) and no
// leading '+': "01" is NOT canonical (stays a string key), "1" is,
// "-1" is, "01" per spec.md §8 boundary behavior stays string-keyed.
func canonicalInt(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	if strconv.FormatInt(n, 10) != s {
		return 0, false
	}
	return n, true
}

// entry pairs a normalized key with the heap handle holding its value, in
// insertion order.
type entry struct {
	key    Key
	handle heap.Handle
}

// Array is the ordered associative container backing spec.md's Array
// variant. Insertion order is semantically significant and preserved
// across insert/update/delete/iterate (spec.md §3 invariant 3).
//
// Copy-on-write: owners tracks how many variable bindings currently treat
// this *Array as their own copy. A plain (non-reference) assignment that
// duplicates a handle into a second binding calls AddOwner; a mutating
// opcode must call PrepareMutate first, which clones (and resets the clone's
// owner count to 1) when owners > 1, leaving the original shared copy
// untouched for whichever binding doesn't see the mutation.
type Array struct {
	owners  *int
	order   []entry
	index   map[Key]int // key -> position in order, for O(1) lookup/update
	nextInt int64
}

// NewArray creates an empty array with a single owner.
func NewArray() *Array {
	one := 1
	return &Array{owners: &one, index: make(map[Key]int)}
}

// AddOwner records a second (or further) binding sharing this buffer.
func (a *Array) AddOwner() {
	*a.owners++
}

// RemoveOwner records that a binding no longer observes this buffer
// (reassigned or unset). Call this before a variable slot stops pointing
// at the array that held it, to keep the owner count accurate.
func (a *Array) RemoveOwner() {
	if *a.owners > 0 {
		*a.owners--
	}
}

// IsShared reports whether more than one binding currently owns this
// buffer, i.e. whether a mutation must clone first.
func (a *Array) IsShared() bool {
	return *a.owners > 1
}

// Clone produces an independent copy with a fresh owner count of 1. Element
// handles are shared (PHP array copies are shallow at the handle level;
// the heap values they reference are copied again only if those are
// themselves arrays under their own COW rules when later mutated).
func (a *Array) Clone() *Array {
	one := 1
	order := make([]entry, len(a.order))
	copy(order, a.order)
	index := make(map[Key]int, len(a.index))
	for k, v := range a.index {
		index[k] = v
	}
	return &Array{owners: &one, order: order, index: index, nextInt: a.nextInt}
}

// PrepareMutate returns the Array a mutating opcode should write to: a
// itself if uniquely owned, or a freshly cloned, uniquely-owned copy if
// a.IsShared(). The caller is responsible for redirecting the binding
// under mutation to the returned array's handle when a clone occurs.
func (a *Array) PrepareMutate() *Array {
	if a.IsShared() {
		a.RemoveOwner()
		return a.Clone()
	}
	return a
}

// Len reports the number of elements.
func (a *Array) Len() int {
	return len(a.order)
}

// Get returns the handle stored at key and whether it was present.
func (a *Array) Get(key Key) (heap.Handle, bool) {
	pos, ok := a.index[key]
	if !ok {
		return heap.NilHandle, false
	}
	return a.order[pos].handle, true
}

// Set inserts or updates key -> handle. Update does not reorder
// (spec.md §3 invariant 3). Keys with an int component update the
// next-auto-key counter per spec.md §4.5 ("explicitly setting a larger
// int key raises the next-key counter").
func (a *Array) Set(key Key, handle heap.Handle) {
	if pos, ok := a.index[key]; ok {
		a.order[pos].handle = handle
	} else {
		a.index[key] = len(a.order)
		a.order = append(a.order, entry{key: key, handle: handle})
	}
	if key.IsInt && key.Int >= a.nextInt {
		a.nextInt = key.Int + 1
	}
}

// Append implements `$a[] = v`: next-int-key = (max existing int key) + 1,
// starting at 0 (spec.md §4.5).
func (a *Array) Append(handle heap.Handle) Key {
	key := IntKey(a.nextInt)
	a.Set(key, handle)
	return key
}

// Unset removes key, preserving the order and handles of the remaining
// elements without reindexing (spec.md §3 invariant 3, §4.5).
func (a *Array) Unset(key Key) (heap.Handle, bool) {
	pos, ok := a.index[key]
	if !ok {
		return heap.NilHandle, false
	}
	removed := a.order[pos].handle
	a.order = append(a.order[:pos], a.order[pos+1:]...)
	delete(a.index, key)
	for i := pos; i < len(a.order); i++ {
		a.index[a.order[i].key] = i
	}
	return removed, true
}

// Keys returns the keys in insertion order.
func (a *Array) Keys() []Key {
	keys := make([]Key, len(a.order))
	for i, e := range a.order {
		keys[i] = e.key
	}
	return keys
}

// Entries exposes (key, handle) pairs in insertion order, for foreach and
// serialization built-ins.
func (a *Array) Entries() [](struct {
	Key    Key
	Handle heap.Handle
}) {
	out := make([]struct {
		Key    Key
		Handle heap.Handle
	}, len(a.order))
	for i, e := range a.order {
		out[i] = struct {
			Key    Key
			Handle heap.Handle
		}{Key: e.key, Handle: e.handle}
	}
	return out
}

// HeapRefs implements heap.Refs.
func (a *Array) HeapRefs() []heap.Handle {
	refs := make([]heap.Handle, len(a.order))
	for i, e := range a.order {
		refs[i] = e.handle
	}
	return refs
}

// MaxIntKey returns one less than the next append key: the highest
// non-negative int key ever set on the array (it is not lowered when that
// key is unset), or -1 if none was set (so the next append starts at 0,
// matching nextInt's zero value).
func (a *Array) MaxIntKey() int64 {
	return a.nextInt - 1
}
