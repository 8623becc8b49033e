// Package debug provides a var_dump-style value dumper and a chunk
// disassembler, used by the var_dump() builtin and the CLI's
// disassemble command.
//
// Grounded on smog's pkg/vm/debugger.go (which dumps VM state for
// step-through debugging). Scalars, arrays and objects are formatted by
// hand, recursing through the heap with no depth limit and no cycle
// detection; go-spew, the pack's only structured-dump library, is used
// only for value kinds DumpValue has no case for.
package debug

import (
	"fmt"
	"strings"

	"github.com/davecgh/go-spew/spew"

	"github.com/kristofer/phpvm/internal/heap"
	"github.com/kristofer/phpvm/internal/interner"
	"github.com/kristofer/phpvm/internal/value"
	"github.com/kristofer/phpvm/pkg/bytecode"
)

// dumpConfig is the go-spew configuration for DumpValue's fallback
// branch. Its MaxDepth applies only to that fallback; the hand-written
// array and object dumpers below do not use it.
var dumpConfig = &spew.ConfigState{
	Indent:                  "  ",
	DisableMethods:          true,
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	MaxDepth:                64,
}

// DumpValue renders v the way var_dump() would, resolving through h to
// print array elements and object properties recursively.
func DumpValue(h *heap.Heap, in *interner.Interner, v value.Value) string {
	switch v.Kind {
	case value.KindNull:
		return "NULL"
	case value.KindBool:
		return fmt.Sprintf("bool(%t)", v.Bool)
	case value.KindInt:
		return fmt.Sprintf("int(%d)", v.Int)
	case value.KindFloat:
		return fmt.Sprintf("float(%v)", v.Float)
	case value.KindString:
		return fmt.Sprintf("string(%d) %q", len(v.Str), v.Str)
	case value.KindArray:
		return dumpArray(h, in, v.Arr)
	case value.KindObject:
		return dumpObject(h, in, v.Obj)
	case value.KindClosure:
		return "object(Closure)"
	case value.KindGenerator:
		return "object(Generator)"
	case value.KindResource:
		return fmt.Sprintf("resource(%d) of type (%s)", v.Res.Key, v.Res.Type)
	case value.KindReference:
		inner, ok := h.Get(v.Ref).(value.Value)
		if !ok {
			return "NULL"
		}
		return DumpValue(h, in, inner)
	default:
		return dumpConfig.Sdump(v)
	}
}

func dumpArray(h *heap.Heap, in *interner.Interner, arr *value.Array) string {
	var b strings.Builder
	fmt.Fprintf(&b, "array(%d) {\n", arr.Len())
	for _, e := range arr.Entries() {
		if e.Key.IsInt {
			fmt.Fprintf(&b, "  [%d]=>\n", e.Key.Int)
		} else {
			fmt.Fprintf(&b, "  [%q]=>\n", e.Key.Str)
		}
		inner, _ := h.Get(e.Handle).(value.Value)
		fmt.Fprintf(&b, "  %s\n", indent(DumpValue(h, in, inner)))
	}
	b.WriteString("}")
	return b.String()
}

func dumpObject(h *heap.Heap, in *interner.Interner, obj *value.Object) string {
	var b strings.Builder
	props := obj.PropertiesInOrder()
	fmt.Fprintf(&b, "object(%s)#(%d) {\n", in.Name(obj.ClassSym), len(props))
	for _, name := range props {
		handle, _ := obj.GetProp(name)
		inner, _ := h.Get(handle).(value.Value)
		fmt.Fprintf(&b, "  [%q]=>\n  %s\n", in.Name(name), indent(DumpValue(h, in, inner)))
	}
	b.WriteString("}")
	return b.String()
}

func indent(s string) string {
	return strings.ReplaceAll(s, "\n", "\n  ")
}

// Disassemble renders chunk's instruction stream as human-readable text,
// one line per instruction, for the CLI's `disassemble` command.
func Disassemble(chunk *bytecode.Chunk, in *interner.Interner) string {
	var b strings.Builder
	fmt.Fprintf(&b, "; chunk %s (%s)\n", in.Name(chunk.Name), chunk.FilePath)
	for i, instr := range chunk.Code {
		line := 0
		if i < len(chunk.Lines) {
			line = chunk.Lines[i]
		}
		fmt.Fprintf(&b, "%4d | L%-4d %-20s %d", i, line, instr.Op.String(), instr.Operand)
		if instr.Aux != 0 {
			fmt.Fprintf(&b, " (aux=%d)", instr.Aux)
		}
		b.WriteString("\n")
	}
	for _, e := range chunk.CatchTable {
		fmt.Fprintf(&b, "; catch [%d,%d) -> %d (type=%d, finally=%d..%d)\n",
			e.Start, e.End, e.Target, e.CatchType, e.FinallyTarget, e.FinallyEnd)
	}
	return b.String()
}
