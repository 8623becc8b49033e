package executor

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kristofer/phpvm/internal/heap"
	"github.com/kristofer/phpvm/internal/runtimectx"
	"github.com/kristofer/phpvm/internal/value"
	"github.com/kristofer/phpvm/pkg/bytecode"
)

func TestAddAndReturn(t *testing.T) {
	ctx := runtimectx.Build()
	exec := New(ctx)

	chunk := &bytecode.Chunk{
		Code: []bytecode.Instruction{
			{Op: bytecode.OpConst, Operand: 0},
			{Op: bytecode.OpConst, Operand: 1},
			{Op: bytecode.OpAdd},
			{Op: bytecode.OpReturn},
		},
		Constants: []interface{}{int64(2), int64(3)},
	}

	h, err := exec.Call(chunk, 0, 0, 0, nil)
	require.NoError(t, err)
	v, _ := ctx.Heap.Get(h).(value.Value)
	require.Equal(t, int64(5), v.Int)
}

func TestEchoWritesToOutput(t *testing.T) {
	ctx := runtimectx.Build()
	exec := New(ctx)

	chunk := &bytecode.Chunk{
		Code: []bytecode.Instruction{
			{Op: bytecode.OpConst, Operand: 0},
			{Op: bytecode.OpEcho},
			{Op: bytecode.OpReturn},
		},
		Constants: []interface{}{"hello"},
	}

	_, err := exec.Call(chunk, 0, 0, 0, nil)
	require.NoError(t, err)
}

// TestPlainAssignmentCopiesArray exercises spec.md §3 invariant 2: $a=[1,2];
// $b=$a; $a[0]=99; return $b[0]; must read back the original 1, not 99,
// because $b=$a must allocate its own heap handle rather than alias $a's.
func TestPlainAssignmentCopiesArray(t *testing.T) {
	ctx := runtimectx.Build()
	exec := New(ctx)

	const (
		slotA = 0
		slotB = 1
	)

	chunk := &bytecode.Chunk{
		LocalSlots: 2,
		Constants:  []interface{}{int64(1), int64(2), int64(0), int64(99)},
		Code: []bytecode.Instruction{
			{Op: bytecode.OpConst, Operand: 0},       // push 1
			{Op: bytecode.OpConst, Operand: 1},       // push 2
			{Op: bytecode.OpNewArray, Operand: 2},    // [1, 2]
			{Op: bytecode.OpStoreLocal, Operand: slotA}, // $a = [1, 2]

			{Op: bytecode.OpLoadLocal, Operand: slotA},
			{Op: bytecode.OpStoreLocal, Operand: slotB}, // $b = $a

			{Op: bytecode.OpLoadLocal, Operand: slotA},
			{Op: bytecode.OpConst, Operand: 2}, // key 0
			{Op: bytecode.OpConst, Operand: 3}, // val 99
			{Op: bytecode.OpArraySet},
			{Op: bytecode.OpStoreLocal, Operand: slotA}, // $a[0] = 99

			{Op: bytecode.OpLoadLocal, Operand: slotB},
			{Op: bytecode.OpConst, Operand: 2}, // key 0
			{Op: bytecode.OpArrayGet},
			{Op: bytecode.OpReturn}, // return $b[0]
		},
	}

	h, err := exec.Call(chunk, 0, 0, 0, nil)
	require.NoError(t, err)
	v, _ := ctx.Heap.Get(h).(value.Value)
	require.Equal(t, int64(1), v.Int)
}

// TestFinallyRunsOnceOnReturn exercises spec.md §4.8 testable property 5:
// a finally block attached to a try that returns must still run exactly
// once, and must run before the return value reaches the caller.
func TestFinallyRunsOnceOnReturn(t *testing.T) {
	inner := &bytecode.Chunk{
		Constants: []interface{}{int64(1), "f"},
		Code: []bytecode.Instruction{
			{Op: bytecode.OpConst, Operand: 0}, // push 1        (ip0)
			{Op: bytecode.OpReturn},            //               (ip1)
			{Op: bytecode.OpConst, Operand: 1}, // push "f"      (ip2, finally body)
			{Op: bytecode.OpEcho},              //               (ip3)
		},
		CatchTable: []bytecode.CatchEntry{
			{Start: 0, End: 2, Target: -1, CatchType: -1, FinallyTarget: 2, FinallyEnd: 4},
		},
	}

	var out bytes.Buffer
	ctx := runtimectx.Build(runtimectx.WithOutputSink(&out))
	exec := New(ctx)

	// Mimics the caller-side `echo f();`: F's own finally-driven "f" echo
	// happens during the call, the caller's echo of the return value
	// happens after.
	h, err := exec.Call(inner, 0, 0, 0, nil)
	require.NoError(t, err)
	ctx.Output.Write(stringify(exec.get(h)))

	require.Equal(t, "f1", out.String())
}

// TestRecursiveFactorialViaCallProtocol exercises spec.md §8's recursive
// factorial scenario through the actual three-opcode invocation protocol
// (INIT_CALL/PUSH_ARG/DO_CALL) instead of calling Call directly, the way
// a compiled `return $n <= 1 ? 1 : $n * factorial($n - 1);` body would.
func TestRecursiveFactorialViaCallProtocol(t *testing.T) {
	ctx := runtimectx.Build()
	exec := New(ctx)

	nameSym := ctx.Interner.Intern("factorial")

	factorial := &bytecode.Chunk{
		Name:       nameSym,
		LocalSlots: 1,
		Params:     []bytecode.ParamDef{{Name: ctx.Interner.Intern("n")}},
		Constants:  []interface{}{int64(1), "factorial"},
		Code: []bytecode.Instruction{
			{Op: bytecode.OpLoadLocal, Operand: 0},    // ip0: push n
			{Op: bytecode.OpConst, Operand: 0},        // ip1: push 1
			{Op: bytecode.OpLte},                      // ip2: n <= 1
			{Op: bytecode.OpJmpIfFalse, Operand: 6},   // ip3
			{Op: bytecode.OpConst, Operand: 0},        // ip4: push 1
			{Op: bytecode.OpReturn},                   // ip5
			{Op: bytecode.OpLoadLocal, Operand: 0},    // ip6: push n (multiplicand)
			{Op: bytecode.OpInitCall, Operand: 1, Aux: 0}, // ip7: call factorial(...)
			{Op: bytecode.OpLoadLocal, Operand: 0},    // ip8: push n
			{Op: bytecode.OpConst, Operand: 0},        // ip9: push 1
			{Op: bytecode.OpSub},                      // ip10: n - 1
			{Op: bytecode.OpPushArg},                  // ip11
			{Op: bytecode.OpDoCall},                   // ip12: push factorial(n-1)
			{Op: bytecode.OpMul},                      // ip13: n * factorial(n-1)
			{Op: bytecode.OpReturn},                   // ip14
		},
	}

	ctx.Functions[nameSym] = &runtimectx.FunctionDef{Name: nameSym, Code: factorial}

	argH := ctx.Heap.Alloc(value.Int(5))
	h, err := exec.Call(factorial, heap.NilHandle, 0, 0, []heap.Handle{argH})
	require.NoError(t, err)
	v, _ := ctx.Heap.Get(h).(value.Value)
	require.Equal(t, int64(120), v.Int)
}

// TestGeneratorYieldsSequentialValues exercises spec.md §4.10: calling a
// chunk containing OpYield must return a suspended Generator rather than
// run the body immediately, and driving it via Current/Next must replay
// each yielded value in order without re-running earlier statements.
func TestGeneratorYieldsSequentialValues(t *testing.T) {
	ctx := runtimectx.Build()
	exec := New(ctx)

	gen := &bytecode.Chunk{
		Constants: []interface{}{int64(1), int64(2), int64(3)},
		Code: []bytecode.Instruction{
			{Op: bytecode.OpConst, Operand: 0},
			{Op: bytecode.OpYield},
			{Op: bytecode.OpConst, Operand: 1},
			{Op: bytecode.OpYield},
			{Op: bytecode.OpConst, Operand: 2},
			{Op: bytecode.OpYield},
			{Op: bytecode.OpReturn},
		},
	}

	h, err := exec.Call(gen, 0, 0, 0, nil)
	require.NoError(t, err)
	genV, _ := ctx.Heap.Get(h).(value.Value)
	require.Equal(t, value.KindGenerator, genV.Kind)

	var got []int64
	for genV.Gen.(interface{ Valid() bool }).Valid() {
		cur := genV.Gen.(interface {
			Current() heap.Handle
			Next() error
		})
		v, _ := ctx.Heap.Get(cur.Current()).(value.Value)
		got = append(got, v.Int)
		require.NoError(t, cur.Next())
	}

	require.Equal(t, []int64{1, 2, 3}, got)
}
