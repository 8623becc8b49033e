// Package heap implements the value heap: a slab of slots addressed by
// stable integer handles, plus the VM's operand stack.
//
// This generalizes smog's flat VM.stack/VM.sp pair (pkg/vm/vm.go) from
// "the stack holds interface{} directly" to "the stack holds handles into
// an arena, and the arena is the single place values live." The indirection
// is what lets references, copy-on-write containers, and a tracing sweep
// exist at all — smog's design has no handle layer because its values never
// need to be aliased or collected.
package heap

import "fmt"

// Handle is a stable 32-bit index into the heap. It is not an owning
// reference: a slot's lifetime is determined by reachability from the
// roots passed to Collect, not by how many Handles happen to exist.
type Handle uint32

// NilHandle is never returned by Alloc; callers use it to mean "no value."
const NilHandle Handle = 0

// Slot holds one value plus the bookkeeping Collect needs.
type slot struct {
	value interface{}
	live  bool
}

// Heap is the slab of value slots. Slot 0 is permanently reserved so that
// NilHandle is never a valid allocation, matching the convention that a
// zero Handle means "absent" everywhere in the runtime core.
type Heap struct {
	slots    []slot
	freelist []Handle
}

// New creates an empty heap with slot 0 reserved.
func New() *Heap {
	h := &Heap{slots: make([]slot, 1, 256)}
	return h
}

// Alloc stores v in a free slot (reusing one from the free-list if
// available) and returns its Handle. Amortized O(1) in both branches.
func (h *Heap) Alloc(v interface{}) Handle {
	if n := len(h.freelist); n > 0 {
		idx := h.freelist[n-1]
		h.freelist = h.freelist[:n-1]
		h.slots[idx] = slot{value: v, live: true}
		return idx
	}
	h.slots = append(h.slots, slot{value: v, live: true})
	return Handle(len(h.slots) - 1)
}

// Get returns the value stored at h. Calling Get on a freed or
// never-allocated handle is a programming error in the executor; it
// panics rather than silently returning garbage, since a live handle
// pointing at a freed slot means a root was retained past Free.
func (h *Heap) Get(handle Handle) interface{} {
	s := h.mustSlot(handle)
	return s.value
}

// Set overwrites the value stored at h in place. Used by copy-on-write
// clone-and-redirect and by reference writes.
func (h *Heap) Set(handle Handle, v interface{}) {
	h.mustSlotPtr(handle).value = v
}

// Free releases a slot for reuse. The executor must not retain handle
// across Free; Collect is the safe alternative when liveness is unclear.
func (h *Heap) Free(handle Handle) {
	s := h.mustSlotPtr(handle)
	s.value = nil
	s.live = false
	h.freelist = append(h.freelist, handle)
}

// IsLive reports whether handle currently refers to an allocated slot.
func (h *Heap) IsLive(handle Handle) bool {
	if handle == NilHandle || int(handle) >= len(h.slots) {
		return false
	}
	return h.slots[handle].live
}

func (h *Heap) mustSlot(handle Handle) slot {
	if !h.IsLive(handle) {
		panic(fmt.Sprintf("heap: use of freed or invalid handle %d", handle))
	}
	return h.slots[handle]
}

func (h *Heap) mustSlotPtr(handle Handle) *slot {
	if !h.IsLive(handle) {
		panic(fmt.Sprintf("heap: use of freed or invalid handle %d", handle))
	}
	return &h.slots[handle]
}

// Len reports the number of slots ever allocated, live or not. Intended
// for diagnostics and tests, not for iteration (use Collect's root-walk
// pattern if you need every live handle).
func (h *Heap) Len() int {
	return len(h.slots)
}

// Refs is implemented by any value that can point at other handles, so
// Collect can walk them during the mark phase. Array, Object property
// records, Closure captures, and Reference all implement this.
type Refs interface {
	HeapRefs() []Handle
}

// Collect performs a conservative mark-and-sweep from roots, freeing
// every slot not reachable from them. This is the "tracing sweep
// available on demand" named in spec.md §4.1 — it is never triggered
// automatically; the host (or a builtin like gc_collect()) calls it.
func (h *Heap) Collect(roots []Handle) (freed int) {
	marked := make([]bool, len(h.slots))
	var stack []Handle
	for _, r := range roots {
		if h.IsLive(r) && !marked[r] {
			marked[r] = true
			stack = append(stack, r)
		}
	}
	for len(stack) > 0 {
		n := len(stack) - 1
		cur := stack[n]
		stack = stack[:n]
		v := h.slots[cur].value
		if refs, ok := v.(Refs); ok {
			for _, child := range refs.HeapRefs() {
				if h.IsLive(child) && !marked[child] {
					marked[child] = true
					stack = append(stack, child)
				}
			}
		}
	}
	for idx := Handle(1); int(idx) < len(h.slots); idx++ {
		if h.slots[idx].live && !marked[idx] {
			h.Free(idx)
			freed++
		}
	}
	return freed
}

// OperandStack is the LIFO of handles that every opcode operand lives on
// (spec.md §4.3). It is deliberately separate from Heap: the stack holds
// Handles, the heap holds the Values those handles name.
type OperandStack struct {
	data []Handle
}

// NewOperandStack creates an empty operand stack with room for depth
// entries before it needs to grow.
func NewOperandStack(depth int) *OperandStack {
	return &OperandStack{data: make([]Handle, 0, depth)}
}

// Push appends a handle to the top of the stack.
func (s *OperandStack) Push(h Handle) {
	s.data = append(s.data, h)
}

// Pop removes and returns the top handle. Returns an error (rather than
// panicking) because StackUnderflow is a catalogued runtime error kind,
// not a host bug, per spec.md §4.12.
func (s *OperandStack) Pop() (Handle, error) {
	n := len(s.data)
	if n == 0 {
		return NilHandle, ErrStackUnderflow
	}
	h := s.data[n-1]
	s.data = s.data[:n-1]
	return h, nil
}

// Peek returns the top handle without removing it.
func (s *OperandStack) Peek() (Handle, error) {
	n := len(s.data)
	if n == 0 {
		return NilHandle, ErrStackUnderflow
	}
	return s.data[n-1], nil
}

// Dup duplicates the top handle.
func (s *OperandStack) Dup() error {
	h, err := s.Peek()
	if err != nil {
		return err
	}
	s.Push(h)
	return nil
}

// Swap exchanges the top two handles.
func (s *OperandStack) Swap() error {
	n := len(s.data)
	if n < 2 {
		return ErrStackUnderflow
	}
	s.data[n-1], s.data[n-2] = s.data[n-2], s.data[n-1]
	return nil
}

// Depth returns the current number of entries on the stack. Call frames
// record this at entry (stack_base) so returns can truncate regardless
// of imbalanced intermediate state (spec.md §4.3).
func (s *OperandStack) Depth() int {
	return len(s.data)
}

// TruncateTo resets the stack to exactly n entries, discarding anything
// above it. Used on return/exception-unwind to restore stack_base.
func (s *OperandStack) TruncateTo(n int) {
	if n < 0 {
		n = 0
	}
	if n > len(s.data) {
		return
	}
	s.data = s.data[:n]
}

// ErrStackUnderflow is returned by Pop, Peek and Swap when the stack holds
// too few entries.
var ErrStackUnderflow = fmt.Errorf("heap: operand stack underflow")
