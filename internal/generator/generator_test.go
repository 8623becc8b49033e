package generator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kristofer/phpvm/internal/frame"
	"github.com/kristofer/phpvm/internal/heap"
	"github.com/kristofer/phpvm/pkg/bytecode"
)

// scriptedResumer replays a fixed sequence of yields then a final return,
// standing in for the executor so generator.go's state machine can be
// tested without wiring a full dispatch loop.
type scriptedResumer struct {
	steps []step
	pos   int
}

type step struct {
	key, value heap.Handle
	done       bool
}

func (s *scriptedResumer) Resume(f *frame.Frame, sent heap.Handle) (key, value heap.Handle, done bool, err error) {
	st := s.steps[s.pos]
	s.pos++
	return st.key, st.value, st.done, nil
}

func TestGeneratorLifecycle(t *testing.T) {
	resumer := &scriptedResumer{steps: []step{
		{key: heap.Handle(1), value: heap.Handle(10)},
		{key: heap.Handle(2), value: heap.Handle(20)},
		{value: heap.Handle(99), done: true},
	}}
	f := frame.New(&bytecode.Chunk{LocalSlots: 0}, 0)
	g := New(f, resumer)

	require.Equal(t, Created, g.Lifecycle())
	require.True(t, g.Valid())
	require.Equal(t, heap.Handle(10), g.Current())
	require.Equal(t, heap.Handle(1), g.Key())
	require.Equal(t, Suspended, g.Lifecycle())

	require.NoError(t, g.Next())
	require.Equal(t, heap.Handle(20), g.Current())

	require.NoError(t, g.Next())
	require.False(t, g.Valid())
	require.Equal(t, Finished, g.Lifecycle())

	ret, err := g.GetReturn()
	require.NoError(t, err)
	require.Equal(t, heap.Handle(99), ret)
}

func TestGetReturnBeforeFinishErrors(t *testing.T) {
	resumer := &scriptedResumer{steps: []step{{value: heap.Handle(1)}}}
	f := frame.New(&bytecode.Chunk{}, 0)
	g := New(f, resumer)
	g.ensureStarted()

	_, err := g.GetReturn()
	require.Error(t, err)
}
