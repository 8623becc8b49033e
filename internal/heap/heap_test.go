package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocGetFreeReuse(t *testing.T) {
	h := New()
	a := h.Alloc("hello")
	require.True(t, h.IsLive(a))
	assert.Equal(t, "hello", h.Get(a))

	h.Free(a)
	assert.False(t, h.IsLive(a))

	b := h.Alloc("world")
	assert.Equal(t, a, b, "freed slot should be reused before growing the slab")
	assert.Equal(t, "world", h.Get(b))
}

func TestGetOnFreedHandlePanics(t *testing.T) {
	h := New()
	a := h.Alloc(1)
	h.Free(a)
	assert.Panics(t, func() { h.Get(a) })
}

func TestNilHandleNeverLive(t *testing.T) {
	h := New()
	assert.False(t, h.IsLive(NilHandle))
}

type refNode struct {
	children []Handle
}

func (n refNode) HeapRefs() []Handle { return n.children }

func TestCollectFreesUnreachable(t *testing.T) {
	h := New()
	leaf := h.Alloc(42)
	root := h.Alloc(refNode{children: []Handle{leaf}})
	orphan := h.Alloc("unreachable")

	freed := h.Collect([]Handle{root})

	assert.Equal(t, 1, freed)
	assert.True(t, h.IsLive(root))
	assert.True(t, h.IsLive(leaf))
	assert.False(t, h.IsLive(orphan))
}

func TestCollectHandlesCycles(t *testing.T) {
	h := New()
	a := h.Alloc(refNode{})
	b := h.Alloc(refNode{children: []Handle{a}})
	h.Set(a, refNode{children: []Handle{b}}) // a -> b -> a, reachable from a

	freed := h.Collect([]Handle{a})

	assert.Equal(t, 0, freed)
	assert.True(t, h.IsLive(a))
	assert.True(t, h.IsLive(b))
}

func TestOperandStackPushPopUnderflow(t *testing.T) {
	s := NewOperandStack(4)
	_, err := s.Pop()
	assert.ErrorIs(t, err, ErrStackUnderflow)

	s.Push(Handle(1))
	s.Push(Handle(2))
	require.NoError(t, s.Dup())
	assert.Equal(t, 3, s.Depth())

	top, err := s.Pop()
	require.NoError(t, err)
	assert.Equal(t, Handle(2), top)
}

func TestOperandStackSwapAndTruncate(t *testing.T) {
	s := NewOperandStack(4)
	s.Push(Handle(1))
	s.Push(Handle(2))
	require.NoError(t, s.Swap())

	top, _ := s.Pop()
	assert.Equal(t, Handle(1), top)

	s.Push(Handle(3))
	s.Push(Handle(4))
	s.TruncateTo(1)
	assert.Equal(t, 1, s.Depth())
}
