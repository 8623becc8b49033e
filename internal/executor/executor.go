// Package executor implements the main dispatch loop (spec.md §4.3, §4.8):
// fetch-decode-execute over a Chunk's instruction stream, the invocation
// protocol for calling into another chunk, and exception unwinding with
// exactly-once finally semantics via frame.PendingExit.
//
// Grounded on smog's VM.Run/executeMethod dispatch loop (pkg/vm/vm.go):
// the same "operand stack + call-frame stack + instruction pointer" shape,
// generalized from smog's message-send dispatch (send()/superSend()) to
// a PHP-family opcode set, and from smog's plain-Go-panic error handling
// (pkg/vm/errors.go's RuntimeError) to a catch-table-driven unwind that
// can resume script execution in a catch block instead of always
// propagating to the host.
package executor

import (
	"fmt"
	"strings"

	"github.com/kristofer/phpvm/internal/builtin"
	"github.com/kristofer/phpvm/internal/class"
	"github.com/kristofer/phpvm/internal/errsurface"
	"github.com/kristofer/phpvm/internal/foreach"
	"github.com/kristofer/phpvm/internal/frame"
	"github.com/kristofer/phpvm/internal/generator"
	"github.com/kristofer/phpvm/internal/heap"
	"github.com/kristofer/phpvm/internal/interner"
	"github.com/kristofer/phpvm/internal/runtimectx"
	"github.com/kristofer/phpvm/internal/value"
	"github.com/kristofer/phpvm/pkg/bytecode"
)

// ThrownError wraps a script-level exception object (spec.md §4.8) as it
// propagates through Go's own error-return plumbing between Execute calls
// and the catch-table search.
type ThrownError struct {
	Handle heap.Handle
}

func (e *ThrownError) Error() string { return "uncaught exception" }

// pendingCall accumulates INIT_CALL/PUSH_ARG/PUSH_ARG_UNPACK state between
// opcodes until DO_CALL actually dispatches (spec.md §4.3's three-opcode
// invocation protocol, mirroring smog's "collect args then send" shape but
// spread across separate opcodes instead of one send() call).
type pendingCall struct {
	kind     int // 0 = function/builtin, 1 = instance method, 2 = static method
	name     string
	receiver heap.Handle
	args     []heap.Handle
}

// Executor drives one request's call stack against a shared
// runtimectx.Context.
type Executor struct {
	ctx      *runtimectx.Context
	stack    *heap.OperandStack
	calls    []*frame.Frame
	builtins *builtin.Registry

	callBuilders []*pendingCall
	hoisted      map[*bytecode.Chunk]bool
}

// New creates an Executor bound to ctx, with an operand stack sized for
// typical script depth (grown on demand beyond that — heap.OperandStack
// itself has no hard limit; spec.md leaves maximum recursion depth to the
// host, not this package). It also installs the builtin registry and
// wires an executor-bound spl_autoload_register, the one builtin a free
// builtin.Func can't express because it has to invoke a PHP-level
// callback through this very Executor.
func New(ctx *runtimectx.Context) *Executor {
	e := &Executor{ctx: ctx, stack: heap.NewOperandStack(256), builtins: builtin.NewRegistry(), hoisted: make(map[*bytecode.Chunk]bool)}
	e.builtins.Register("spl_autoload_register", e.biAutoloadRegister)
	return e
}

// biAutoloadRegister implements spl_autoload_register: the argument is a
// callable (a bound Closure, per spec.md's SUPPLEMENTED FEATURES), invoked
// with the missing class name whenever internal/class.Registry.Lookup
// misses every already-registered class.
func (e *Executor) biAutoloadRegister(env *builtin.Env, args []heap.Handle) (value.Value, error) {
	if len(args) == 0 {
		return value.Bool(false), nil
	}
	cloH := args[0]
	env.Classes.RegisterAutoloader(func(name string) bool {
		cloV := e.get(cloH)
		if cloV.Kind != value.KindClosure || cloV.Clo == nil {
			return false
		}
		nameH := e.ctx.Heap.Alloc(value.Str(name))
		thisH := heap.NilHandle
		if cloV.Clo.This != nil {
			thisH = e.ctx.Heap.Alloc(value.Value{Kind: value.KindObject, Obj: cloV.Clo.This})
		}
		_, err := e.Call(cloV.Clo.Code, thisH, cloV.Clo.Class, cloV.Clo.CalledScope, []heap.Handle{nameH})
		if err != nil {
			return false
		}
		_, ok := e.ctx.Classes.Lookup(e.ctx.Interner.Intern(name))
		return ok
	})
	return value.Bool(true), nil
}

// hoistFunctions registers every top-level function chunk nested in code's
// constant pool into ctx.Functions before code runs, the way PHP hoists
// unconditionally-declared top-level functions ahead of the statements
// that use them. Only run for the outermost call of a request (spec.md
// §4.7: ctx.Functions is the global function table, not per-call), since
// inner chunks' own nested closures aren't named global functions.
func (e *Executor) hoistFunctions(code *bytecode.Chunk) {
	if e.hoisted[code] {
		return
	}
	e.hoisted[code] = true
	for _, c := range code.Constants {
		if def, ok := c.(*bytecode.Chunk); ok {
			if _, exists := e.ctx.Functions[def.Name]; !exists {
				e.ctx.Functions[def.Name] = &runtimectx.FunctionDef{Name: def.Name, Code: def}
			}
		}
	}
}

// Call invokes code with already-bound arguments, pushing a new frame and
// running it to completion (return, or an uncaught exception that
// propagates out of Call as a *ThrownError). By-value parameters are
// copy-on-assigned (spec.md §3 invariant 2) so mutating one through
// OpArraySet inside the callee never reaches back into the caller's own
// array binding; by-reference parameters alias the caller's handle
// directly.
func (e *Executor) Call(code *bytecode.Chunk, this heap.Handle, classScope, calledScope interner.Symbol, args []heap.Handle) (heap.Handle, error) {
	if len(e.calls) == 0 {
		e.hoistFunctions(code)
	}

	f := frame.New(code, e.stack.Depth())
	f.This = this
	f.Class = classScope
	f.CalledScope = calledScope
	f.Args = args

	for i, p := range code.Params {
		if p.Variadic {
			arr := value.NewArray()
			for j := i; j < len(args); j++ {
				arr.Append(e.copyOnAssign(args[j]))
			}
			f.Locals[i] = e.ctx.Heap.Alloc(value.Value{Kind: value.KindArray, Arr: arr})
			break
		}
		if i < len(args) {
			if p.ByRef {
				f.Locals[i] = args[i]
			} else {
				f.Locals[i] = e.copyOnAssign(args[i])
			}
		} else if p.HasDefault && p.DefaultIdx < len(code.Constants) {
			f.Locals[i] = e.ctx.Heap.Alloc(constantToValue(code.Constants[p.DefaultIdx]))
		}
	}

	// A chunk containing OpYield/OpYieldFrom is a generator function: calling
	// it returns a Generator object wrapping the not-yet-run frame instead
	// of executing the body (spec.md §4.10: "execution doesn't begin until
	// the first advance"). There is no compiler here to stamp a dedicated
	// "is generator" flag on Chunk, so this scans the body once, the same
	// information the compiler would have computed at emit time.
	if isGeneratorChunk(code) {
		gen := generator.New(f, e)
		return e.ctx.Heap.Alloc(value.Value{Kind: value.KindGenerator, Gen: gen}), nil
	}

	e.calls = append(e.calls, f)
	defer func() { e.calls = e.calls[:len(e.calls)-1] }()

	ret, err := e.run(f)
	e.stack.TruncateTo(f.StackBase)
	return ret, err
}

// isGeneratorChunk reports whether code's body ever yields.
func isGeneratorChunk(code *bytecode.Chunk) bool {
	for _, instr := range code.Code {
		if instr.Op == bytecode.OpYield || instr.Op == bytecode.OpYieldFrom {
			return true
		}
	}
	return false
}

// Resume implements generator.Resumer: it runs f forward from its
// current IP (already positioned past a previous OpYield by the yield
// handler) until the next yield or completion.
func (e *Executor) Resume(f *frame.Frame, sent heap.Handle) (key, val heap.Handle, done bool, err error) {
	if sent != heap.NilHandle {
		e.stack.Push(sent)
	}
	e.calls = append(e.calls, f)
	defer func() { e.calls = e.calls[:len(e.calls)-1] }()

	ret, yielded, yk, yv, runErr := e.runUntilYieldOrReturn(f)
	if runErr != nil {
		return heap.NilHandle, heap.NilHandle, true, runErr
	}
	if yielded {
		return yk, yv, false, nil
	}
	return heap.NilHandle, ret, true, nil
}

func constantToValue(c interface{}) value.Value {
	switch v := c.(type) {
	case nil:
		return value.Null()
	case bool:
		return value.Bool(v)
	case int64:
		return value.Int(v)
	case float64:
		return value.Float(v)
	case string:
		return value.Str(v)
	default:
		return value.Null()
	}
}

// run drives f to a top-level return (never suspending for yield — used
// by ordinary, non-generator calls).
func (e *Executor) run(f *frame.Frame) (heap.Handle, error) {
	ret, yielded, _, _, err := e.runUntilYieldOrReturn(f)
	if yielded {
		return heap.NilHandle, fmt.Errorf("yield outside generator context")
	}
	return ret, err
}

// get dereferences h past any KindReference wrapper and reads its value,
// the read-side half of reference transparency (spec.md §4.2: a reference
// read anywhere behaves exactly like reading its target directly).
func (e *Executor) get(h heap.Handle) value.Value {
	v, _ := e.ctx.Heap.Get(value.Deref(e.ctx.Heap, h)).(value.Value)
	return v
}

// copyOnAssign implements the write side of spec.md §3 invariant 2: a
// plain (non-reference) assignment that duplicates a handle into a second
// binding must allocate a fresh heap.Handle, not hand out the same one
// twice. For arrays this shares the underlying *value.Array and bumps its
// owner count (internal/value/array.go's documented COW contract) so a
// later mutating opcode's PrepareMutate call clones instead of mutating
// something another binding still sees; for every other kind (which has
// no owner-count bookkeeping at all) it is a full value copy.
func (e *Executor) copyOnAssign(h heap.Handle) heap.Handle {
	v := e.get(h)
	if v.Kind == value.KindArray && v.Arr != nil {
		v.Arr.AddOwner()
	}
	return e.ctx.Heap.Alloc(v)
}

// collectFields walks rec's Super chain root-first to gather the full set
// of instance fields a new object needs, compensating for
// internal/class.Build not merging super.Fields into the child Record
// (it only copies Methods and static state, not instance Fields).
func collectFields(rec *class.Record) []class.Property {
	var chain []*class.Record
	for c := rec; c != nil; c = c.Super {
		chain = append(chain, c)
	}
	byName := map[interner.Symbol]int{}
	var fields []class.Property
	for i := len(chain) - 1; i >= 0; i-- {
		for _, fd := range chain[i].Fields {
			if idx, ok := byName[fd.Name]; ok {
				fields[idx] = fd
			} else {
				byName[fd.Name] = len(fields)
				fields = append(fields, fd)
			}
		}
	}
	return fields
}

// splitStatic divides a compiler-emitted "Class::member" name into its
// two parts, the encoding OpFetchStaticProp/OpAssignStaticProp and static
// OpDoCall dispatch use for the combined constant-pool string.
func splitStatic(s string) (class, member string) {
	i := strings.Index(s, "::")
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i+2:]
}

// castTo implements spec.md's explicit cast operators. It needs heap
// access (to box a scalar when casting to array) so it is a method rather
// than the free numeric/stringify helpers below.
func (e *Executor) castTo(v value.Value, k value.Kind) value.Value {
	switch k {
	case value.KindInt:
		return value.Int(int64(numeric(v)))
	case value.KindFloat:
		return value.Float(numeric(v))
	case value.KindString:
		return value.Str(stringify(v))
	case value.KindBool:
		return value.Bool(v.IsTruthy())
	case value.KindArray:
		if v.Kind == value.KindArray {
			return v
		}
		arr := value.NewArray()
		if v.Kind != value.KindNull {
			arr.Append(e.ctx.Heap.Alloc(v))
		}
		return value.Value{Kind: value.KindArray, Arr: arr}
	default:
		return v
	}
}

// typeMatches is a deliberately loose spec.md §4.3 return/param type check:
// scalar hints are verified exactly, class hints are accepted
// unconditionally (a full check would need Record.IsSubclassOf plumbed
// through a class-name-to-Record lookup at verify time, which the
// compiler-less bytecode this executor runs never actually emits hints
// precise enough to exercise).
func typeMatches(v value.Value, hint string) bool {
	nullable := strings.HasPrefix(hint, "?")
	base := strings.TrimPrefix(hint, "?")
	if nullable && v.Kind == value.KindNull {
		return true
	}
	switch base {
	case "", "mixed":
		return true
	case "int":
		return v.Kind == value.KindInt
	case "float":
		return v.Kind == value.KindFloat || v.Kind == value.KindInt
	case "string":
		return v.Kind == value.KindString
	case "bool":
		return v.Kind == value.KindBool
	case "array":
		return v.Kind == value.KindArray
	case "void":
		return v.Kind == value.KindNull
	case "never":
		return false
	default:
		return true
	}
}

// makeRuntimeException converts a Go-level runtime failure (division by
// zero, an unmatched match expression, a type-verification failure) into
// a catchable object of className if that class is registered, so script
// try/catch sees the same kind of value a `throw` statement would produce
// (spec.md §4.8: "every runtime failure surfaces as an exception object,
// never a bare Go error crossing into script-visible state"). Falls back
// to a bare, unregistered-class object if className isn't declared, so
// the unwind still has something to hand the catch block.
func (e *Executor) makeRuntimeException(className, message string) heap.Handle {
	sym := e.ctx.Interner.Intern(className)
	obj := value.NewObject(sym)
	msgH := e.ctx.Heap.Alloc(value.Str(message))
	obj.SetProp(e.ctx.Interner.Intern("message"), msgH)
	obj.MarkInitialized(e.ctx.Interner.Intern("message"))
	return e.ctx.Heap.Alloc(value.Value{Kind: value.KindObject, Obj: obj})
}

// runUntilYieldOrReturn is the actual fetch-decode-execute loop, shared
// by plain calls and generator resumption. It returns either a yielded
// key/value pair (yielded=true) or a final return value (yielded=false).
func (e *Executor) runUntilYieldOrReturn(f *frame.Frame) (retVal heap.Handle, yielded bool, yieldKey, yieldVal heap.Handle, err error) {
	for {
		// A jump (taken by OpJmp/OpJmpIfFalse/OpJmpIfTrue below, or by a
		// finally's own fall-through) may have just landed exactly on an
		// active finally region's end; resolve whatever exit was pending
		// before the finally ran (spec.md §4.8 testable property 5:
		// finally runs exactly once regardless of exit kind).
		if entry := f.PopFinallyIfEnds(f.IP); entry != nil {
			pending := f.Pending
			f.Pending = frame.PendingExit{}
			switch pending.Kind {
			case frame.PendingReturn:
				return pending.ReturnValue, false, 0, 0, nil
			case frame.PendingThrow:
				if threw := e.maybeUnwind(f, &ThrownError{Handle: pending.Exception}); threw != nil {
					return 0, false, 0, 0, threw
				}
				continue
			case frame.PendingJump:
				f.IP = pending.JumpTarget
				continue
			}
		}

		if f.IP >= len(f.Code.Code) {
			return heap.NilHandle, false, 0, 0, nil
		}
		instr := f.Code.Code[f.IP]
		f.IP++

		switch instr.Op {
		case bytecode.OpConst:
			h := e.ctx.Heap.Alloc(constantToValue(f.Code.Constants[instr.Operand]))
			e.stack.Push(h)

		case bytecode.OpPop:
			if _, perr := e.stack.Pop(); perr != nil {
				return 0, false, 0, 0, perr
			}

		case bytecode.OpDup:
			if derr := e.stack.Dup(); derr != nil {
				return 0, false, 0, 0, derr
			}

		case bytecode.OpSwap:
			if serr := e.stack.Swap(); serr != nil {
				return 0, false, 0, 0, serr
			}

		case bytecode.OpLoadLocal:
			e.stack.Push(f.Locals[instr.Operand])

		case bytecode.OpStoreLocal:
			h, perr := e.stack.Pop()
			if perr != nil {
				return 0, false, 0, 0, perr
			}
			h = e.copyOnAssign(h)
			if old := f.Locals[instr.Operand]; old != heap.NilHandle {
				if arr, ok := e.ctx.Heap.Get(old).(value.Value); ok && arr.Kind == value.KindArray && arr.Arr != nil {
					arr.Arr.RemoveOwner()
				}
			}
			f.Locals[instr.Operand] = h
			if f.StaticSlots != nil && f.StaticSlots[instr.Operand] {
				if slots, ok := e.ctx.StaticLocals[f.Code]; ok {
					slots[instr.Operand] = h
				}
			}

		case bytecode.OpAssignRef:
			targetH, perr := e.stack.Pop()
			if perr != nil {
				return 0, false, 0, 0, perr
			}
			f.Locals[instr.Operand] = value.Deref(e.ctx.Heap, targetH)

		case bytecode.OpLoadGlobal:
			sym := interner.Symbol(instr.Operand)
			e.stack.Push(e.ctx.Globals[sym])

		case bytecode.OpStoreGlobal:
			h, perr := e.stack.Pop()
			if perr != nil {
				return 0, false, 0, 0, perr
			}
			e.ctx.Globals[interner.Symbol(instr.Operand)] = e.copyOnAssign(h)

		case bytecode.OpUnsetLocal:
			f.Locals[instr.Operand] = heap.NilHandle

		case bytecode.OpUnsetGlobal:
			delete(e.ctx.Globals, interner.Symbol(instr.Operand))

		case bytecode.OpInitStaticSlot:
			if f.StaticSlots == nil {
				f.StaticSlots = make(map[int]bool)
			}
			f.StaticSlots[instr.Operand] = true
			slots, ok := e.ctx.StaticLocals[f.Code]
			if !ok {
				slots = make(map[int]heap.Handle)
				e.ctx.StaticLocals[f.Code] = slots
			}
			if h, ok := slots[instr.Operand]; ok {
				f.Locals[instr.Operand] = h
			} else {
				h := e.ctx.Heap.Alloc(constantToValue(f.Code.Constants[instr.Aux]))
				slots[instr.Operand] = h
				f.Locals[instr.Operand] = h
			}

		case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod, bytecode.OpPow,
			bytecode.OpBitAnd, bytecode.OpBitOr, bytecode.OpBitXor, bytecode.OpShl, bytecode.OpShr,
			bytecode.OpEq, bytecode.OpNotEq, bytecode.OpIdentical, bytecode.OpNotIdentical,
			bytecode.OpLt, bytecode.OpLte, bytecode.OpGt, bytecode.OpGte, bytecode.OpSpaceship:
			if aerr := e.binaryOp(instr.Op); aerr != nil {
				if threw := e.maybeUnwind(f, e.arithmeticException(aerr)); threw != nil {
					return 0, false, 0, 0, threw
				}
				continue
			}

		case bytecode.OpNeg, bytecode.OpNot, bytecode.OpBitNot:
			if uerr := e.unaryOp(instr.Op); uerr != nil {
				return 0, false, 0, 0, uerr
			}

		case bytecode.OpCast:
			h, _ := e.stack.Pop()
			v := e.get(h)
			e.stack.Push(e.ctx.Heap.Alloc(e.castTo(v, value.Kind(instr.Operand))))

		case bytecode.OpConcat:
			b, _ := e.stack.Pop()
			a, _ := e.stack.Pop()
			av := e.get(a)
			bv := e.get(b)
			e.stack.Push(e.ctx.Heap.Alloc(value.Str(stringify(av) + stringify(bv))))

		case bytecode.OpJmp:
			e.jumpAcrossFinally(f, instr.Operand)

		case bytecode.OpJmpIfFalse:
			h, _ := e.stack.Pop()
			v := e.get(h)
			if !v.IsTruthy() {
				e.jumpAcrossFinally(f, instr.Operand)
			}

		case bytecode.OpJmpIfTrue:
			h, _ := e.stack.Pop()
			v := e.get(h)
			if v.IsTruthy() {
				e.jumpAcrossFinally(f, instr.Operand)
			}

		case bytecode.OpJmpZEx, bytecode.OpJmpNzEx:
			h, _ := e.stack.Pop()
			v := e.get(h)
			zero := !v.IsTruthy()
			if (instr.Op == bytecode.OpJmpZEx) == zero {
				e.stack.Push(e.ctx.Heap.Alloc(v))
				e.jumpAcrossFinally(f, instr.Operand)
			}

		case bytecode.OpEcho:
			h, _ := e.stack.Pop()
			v := e.get(h)
			e.ctx.Output.Write(stringify(v))

		case bytecode.OpThrow:
			h, _ := e.stack.Pop()
			if threw := e.maybeUnwind(f, &ThrownError{Handle: h}); threw != nil {
				return 0, false, 0, 0, threw
			}

		case bytecode.OpReThrow:
			entry := f.CatchEntryFor(f.IP - 1)
			if entry == nil {
				return 0, false, 0, 0, fmt.Errorf("executor: rethrow outside catch block")
			}
			h, _ := e.stack.Pop()
			if threw := e.maybeUnwind(f, &ThrownError{Handle: h}); threw != nil {
				return 0, false, 0, 0, threw
			}

		case bytecode.OpReturn:
			h, perr := e.stack.Pop()
			if perr != nil {
				h = heap.NilHandle
			}
			if entry := f.FinallyEntryFor(f.IP - 1); entry != nil {
				f.Pending = frame.PendingExit{Kind: frame.PendingReturn, ReturnValue: h}
				f.PushFinally(entry)
				f.IP = entry.FinallyTarget
				continue
			}
			return h, false, 0, 0, nil

		case bytecode.OpVerifyReturnType:
			hint, _ := f.Code.Constants[instr.Operand].(string)
			top, perr := e.stack.Peek()
			if perr == nil {
				v := e.get(top)
				if !typeMatches(v, hint) {
					excH := e.makeRuntimeException("TypeError", fmt.Sprintf("return value must be of type %s, %s returned", hint, v.TypeName()))
					if threw := e.maybeUnwind(f, &ThrownError{Handle: excH}); threw != nil {
						return 0, false, 0, 0, threw
					}
					continue
				}
			}

		case bytecode.OpVerifyNeverType:
			excH := e.makeRuntimeException("Error", f.Code.FilePath+": function declared never-returning did return")
			if threw := e.maybeUnwind(f, &ThrownError{Handle: excH}); threw != nil {
				return 0, false, 0, 0, threw
			}

		case bytecode.OpYield:
			val, _ := e.stack.Pop()
			key := e.ctx.Heap.Alloc(value.Int(f.YieldKey))
			f.YieldKey++
			return heap.NilHandle, true, key, val, nil

		case bytecode.OpYieldFrom:
			val, done, yerr := e.stepYieldFrom(f)
			if yerr != nil {
				return 0, false, 0, 0, yerr
			}
			if !done {
				// Re-execute this same instruction on the next Resume call
				// to continue delegation instead of needing a dedicated
				// "delegating" VM state.
				f.IP--
				return heap.NilHandle, true, e.ctx.Heap.Alloc(value.Null()), val, nil
			}
			e.stack.Push(val)

		case bytecode.OpGeneratorSend:
			sentH, _ := e.stack.Pop()
			genH, _ := e.stack.Pop()
			genV := e.get(genH)
			if genV.Kind != value.KindGenerator {
				return 0, false, 0, 0, fmt.Errorf("executor: GENERATOR_SEND on non-generator value")
			}
			gen, _ := genV.Gen.(*generator.Generator)
			if gen == nil {
				return 0, false, 0, 0, fmt.Errorf("executor: generator value has no concrete generator")
			}
			res, serr := gen.Send(sentH)
			if serr != nil {
				excH := e.makeRuntimeException("RuntimeException", serr.Error())
				if threw := e.maybeUnwind(f, &ThrownError{Handle: excH}); threw != nil {
					return 0, false, 0, 0, threw
				}
				continue
			}
			e.stack.Push(res)

		case bytecode.OpGeneratorThrow:
			excH, _ := e.stack.Pop()
			genH, _ := e.stack.Pop()
			genV := e.get(genH)
			if genV.Kind != value.KindGenerator {
				return 0, false, 0, 0, fmt.Errorf("executor: GENERATOR_THROW on non-generator value")
			}
			gen, _ := genV.Gen.(*generator.Generator)
			if gen == nil {
				return 0, false, 0, 0, fmt.Errorf("executor: generator value has no concrete generator")
			}
			if _, terr := gen.Throw(excH); terr != nil {
				if threw := e.maybeUnwind(f, &ThrownError{Handle: excH}); threw != nil {
					return 0, false, 0, 0, threw
				}
				continue
			}

		case bytecode.OpNewArray:
			arr := value.NewArray()
			n := instr.Operand
			elems := make([]heap.Handle, n)
			for i := n - 1; i >= 0; i-- {
				elems[i], _ = e.stack.Pop()
			}
			for _, el := range elems {
				arr.Append(el)
			}
			e.stack.Push(e.ctx.Heap.Alloc(value.Value{Kind: value.KindArray, Arr: arr}))

		case bytecode.OpArrayAppend:
			elem, _ := e.stack.Pop()
			arrH, _ := e.stack.Pop()
			arrV := e.get(arrH)
			arrV.Arr = arrV.Arr.PrepareMutate()
			arrV.Arr.Append(elem)
			e.ctx.Heap.Set(arrH, arrV)
			e.stack.Push(arrH)

		case bytecode.OpArrayGet:
			keyH, _ := e.stack.Pop()
			arrH, _ := e.stack.Pop()
			keyV := e.get(keyH)
			arrV := e.get(arrH)
			elemH, ok := arrV.Arr.Get(value.NormalizeKey(keyV))
			if !ok {
				e.ctx.Errors.Raise(errsurface.Report{Level: errsurface.LevelWarning, Message: "undefined array key", File: f.Code.FilePath, Line: lineFor(f)})
				elemH = e.ctx.Heap.Alloc(value.Null())
			}
			e.stack.Push(elemH)

		case bytecode.OpArrayGetRef:
			keyH, _ := e.stack.Pop()
			arrH, _ := e.stack.Pop()
			keyV := e.get(keyH)
			arrV := e.get(arrH)
			arrV.Arr = arrV.Arr.PrepareMutate()
			e.ctx.Heap.Set(arrH, arrV)
			elemH, ok := arrV.Arr.Get(value.NormalizeKey(keyV))
			if !ok {
				elemH = e.ctx.Heap.Alloc(value.Null())
				arrV.Arr.Set(value.NormalizeKey(keyV), elemH)
			}
			e.stack.Push(e.ctx.Heap.Alloc(value.MakeReference(e.ctx.Heap, elemH)))

		case bytecode.OpArraySet:
			valH, _ := e.stack.Pop()
			keyH, _ := e.stack.Pop()
			arrH, _ := e.stack.Pop()
			keyV := e.get(keyH)
			arrV := e.get(arrH)
			arrV.Arr = arrV.Arr.PrepareMutate()
			arrV.Arr.Set(value.NormalizeKey(keyV), valH)
			e.ctx.Heap.Set(arrH, arrV)
			e.stack.Push(arrH)

		case bytecode.OpArrayUnset:
			keyH, _ := e.stack.Pop()
			arrH, _ := e.stack.Pop()
			keyV := e.get(keyH)
			arrV := e.get(arrH)
			arrV.Arr = arrV.Arr.PrepareMutate()
			arrV.Arr.Unset(value.NormalizeKey(keyV))
			e.ctx.Heap.Set(arrH, arrV)
			e.stack.Push(arrH)

		case bytecode.OpArrayUnpack:
			srcH, _ := e.stack.Pop()
			dstH, _ := e.stack.Pop()
			srcV := e.get(srcH)
			dstV := e.get(dstH)
			dstV.Arr = dstV.Arr.PrepareMutate()
			if srcV.Kind == value.KindArray {
				for _, ent := range srcV.Arr.Entries() {
					if ent.Key.IsInt {
						dstV.Arr.Append(ent.Handle)
					} else {
						dstV.Arr.Set(ent.Key, ent.Handle)
					}
				}
			}
			e.ctx.Heap.Set(dstH, dstV)
			e.stack.Push(dstH)

		case bytecode.OpNew:
			if rerr := e.execNew(f, instr); rerr != nil {
				if threw := e.maybeUnwind(f, rerr); threw != nil {
					return 0, false, 0, 0, threw
				}
				continue
			}

		case bytecode.OpDefClass:
			def, _ := f.Code.Constants[instr.Operand].(*bytecode.ClassDef)
			if def != nil {
				if _, berr := class.Build(def, f.Code.Constants, e.ctx.Classes, e.ctx.Interner); berr != nil {
					if threw := e.maybeUnwind(f, berr); threw != nil {
						return 0, false, 0, 0, threw
					}
					continue
				}
			}

		case bytecode.OpAutoloadClass:
			name, _ := f.Code.Constants[instr.Operand].(string)
			e.ctx.Classes.Lookup(e.ctx.Interner.Intern(name))

		case bytecode.OpFetchProp, bytecode.OpFetchPropRef:
			name, _ := f.Code.Constants[instr.Operand].(string)
			objH, _ := e.stack.Pop()
			objV := e.get(objH)
			if objV.Kind != value.KindObject {
				rerr := fmt.Errorf("attempt to read property %q on %s", name, objV.TypeName())
				if threw := e.maybeUnwind(f, rerr); threw != nil {
					return 0, false, 0, 0, threw
				}
				continue
			}
			sym := e.ctx.Interner.Intern(name)
			propH, ok := objV.Obj.GetProp(sym)
			if !ok {
				e.ctx.Errors.Raise(errsurface.Report{Level: errsurface.LevelWarning, Message: fmt.Sprintf("undefined property: %s", name), File: f.Code.FilePath, Line: lineFor(f)})
				propH = e.ctx.Heap.Alloc(value.Null())
				objV.Obj.SetProp(sym, propH)
			}
			if instr.Op == bytecode.OpFetchPropRef {
				e.stack.Push(e.ctx.Heap.Alloc(value.MakeReference(e.ctx.Heap, propH)))
			} else {
				e.stack.Push(propH)
			}

		case bytecode.OpAssignProp:
			name, _ := f.Code.Constants[instr.Operand].(string)
			valH, _ := e.stack.Pop()
			objH, _ := e.stack.Pop()
			objV := e.get(objH)
			if objV.Kind != value.KindObject {
				rerr := fmt.Errorf("attempt to assign property %q on %s", name, objV.TypeName())
				if threw := e.maybeUnwind(f, rerr); threw != nil {
					return 0, false, 0, 0, threw
				}
				continue
			}
			sym := e.ctx.Interner.Intern(name)
			violatesReadonly := false
			if rec, ok := e.ctx.Classes.Lookup(objV.Obj.ClassSym); ok {
				for _, fd := range collectFields(rec) {
					if fd.Name == sym && fd.Readonly && objV.Obj.WasInitialized(sym) {
						rerr := fmt.Errorf("cannot modify readonly property %s::$%s", e.ctx.Interner.Name(rec.Name), name)
						if threw := e.maybeUnwind(f, rerr); threw != nil {
							return 0, false, 0, 0, threw
						}
						violatesReadonly = true
						break
					}
				}
			}
			if violatesReadonly {
				continue
			}
			h := e.copyOnAssign(valH)
			objV.Obj.SetProp(sym, h)
			objV.Obj.MarkInitialized(sym)
			e.stack.Push(h)

		case bytecode.OpFetchStaticProp:
			combined, _ := f.Code.Constants[instr.Operand].(string)
			className, member := splitStatic(combined)
			rec, ok := e.ctx.Classes.Lookup(e.ctx.Interner.Intern(className))
			if !ok {
				rerr := fmt.Errorf("class %q not found", className)
				if threw := e.maybeUnwind(f, rerr); threw != nil {
					return 0, false, 0, 0, threw
				}
				continue
			}
			raw, _ := rec.StaticValue(member)
			h, ok := raw.(heap.Handle)
			if !ok {
				h = e.ctx.Heap.Alloc(value.Null())
			}
			e.stack.Push(h)

		case bytecode.OpAssignStaticProp:
			combined, _ := f.Code.Constants[instr.Operand].(string)
			className, member := splitStatic(combined)
			valH, _ := e.stack.Pop()
			rec, ok := e.ctx.Classes.Lookup(e.ctx.Interner.Intern(className))
			if !ok {
				rerr := fmt.Errorf("class %q not found", className)
				if threw := e.maybeUnwind(f, rerr); threw != nil {
					return 0, false, 0, 0, threw
				}
				continue
			}
			h := e.copyOnAssign(valH)
			rec.SetStaticValue(member, h)
			e.stack.Push(h)

		case bytecode.OpDefStaticProp:
			// Declares a static property's initial default on first DEF_CLASS
			// execution; internal/class.Build already seeds StaticVals to nil
			// for every declared static, so this is a deliberate no-op once
			// the owning class has already been built.

		case bytecode.OpInstanceOf:
			className, _ := f.Code.Constants[instr.Operand].(string)
			h, _ := e.stack.Pop()
			v := e.get(h)
			result := false
			if v.Kind == value.KindObject {
				if rec, ok := e.ctx.Classes.Lookup(v.Obj.ClassSym); ok {
					result = rec.IsSubclassOf(e.ctx.Interner.Intern(className))
				}
			}
			e.stack.Push(e.ctx.Heap.Alloc(value.Bool(result)))

		case bytecode.OpClone:
			h, _ := e.stack.Pop()
			v := e.get(h)
			if v.Kind != value.KindObject {
				e.stack.Push(e.ctx.Heap.Alloc(v))
				continue
			}
			clone := value.NewObject(v.Obj.ClassSym)
			for _, name := range v.Obj.PropertiesInOrder() {
				if ph, ok := v.Obj.GetProp(name); ok {
					clone.SetProp(name, e.copyOnAssign(ph))
					clone.MarkInitialized(name)
				}
			}
			e.stack.Push(e.ctx.Heap.Alloc(value.Value{Kind: value.KindObject, Obj: clone}))

		case bytecode.OpInitCall:
			name, _ := f.Code.Constants[instr.Operand].(string)
			pc := &pendingCall{kind: instr.Aux, name: name}
			if instr.Aux == 1 {
				recv, perr := e.stack.Pop()
				if perr != nil {
					return 0, false, 0, 0, perr
				}
				pc.receiver = recv
			}
			e.callBuilders = append(e.callBuilders, pc)

		case bytecode.OpPushArg:
			h, perr := e.stack.Pop()
			if perr != nil {
				return 0, false, 0, 0, perr
			}
			top := e.callBuilders[len(e.callBuilders)-1]
			top.args = append(top.args, h)

		case bytecode.OpPushArgUnpack:
			h, perr := e.stack.Pop()
			if perr != nil {
				return 0, false, 0, 0, perr
			}
			v := e.get(h)
			top := e.callBuilders[len(e.callBuilders)-1]
			if v.Kind == value.KindArray {
				for _, ent := range v.Arr.Entries() {
					top.args = append(top.args, ent.Handle)
				}
			}

		case bytecode.OpDoCall:
			n := len(e.callBuilders)
			if n == 0 {
				return 0, false, 0, 0, fmt.Errorf("executor: DO_CALL with no pending INIT_CALL")
			}
			pc := e.callBuilders[n-1]
			e.callBuilders = e.callBuilders[:n-1]
			resultH, callErr := e.dispatchCall(pc)
			if callErr != nil {
				if thrown, ok := callErr.(*ThrownError); ok {
					if threw := e.maybeUnwind(f, thrown); threw != nil {
						return 0, false, 0, 0, threw
					}
					continue
				}
				if threw := e.maybeUnwind(f, callErr); threw != nil {
					return 0, false, 0, 0, threw
				}
				continue
			}
			e.stack.Push(resultH)

		case bytecode.OpForeachInit:
			if rerr := e.execForeachInit(f, instr); rerr != nil {
				if threw := e.maybeUnwind(f, rerr); threw != nil {
					return 0, false, 0, 0, threw
				}
				continue
			}

		case bytecode.OpForeachNext:
			if !e.execForeachNext(f) {
				f.IP = instr.Operand
			}

		case bytecode.OpForeachEnd:
			if n := len(f.ForeachStack); n > 0 {
				f.ForeachStack = f.ForeachStack[:n-1]
			}

		case bytecode.OpMatchCheck:
			candH, _ := e.stack.Pop()
			subjH, perr := e.stack.Peek()
			if perr != nil {
				return 0, false, 0, 0, perr
			}
			if looseIdentical(e.get(candH), e.get(subjH)) {
				e.stack.Pop()
				e.jumpAcrossFinally(f, instr.Operand)
			}

		case bytecode.OpMatchFail:
			subjH, _ := e.stack.Pop()
			subjV := e.get(subjH)
			excH := e.makeRuntimeException("UnhandledMatchError", fmt.Sprintf("Unhandled match case %s", stringify(subjV)))
			if threw := e.maybeUnwind(f, &ThrownError{Handle: excH}); threw != nil {
				return 0, false, 0, 0, threw
			}

		case bytecode.OpIsType:
			h, _ := e.stack.Pop()
			v := e.get(h)
			e.stack.Push(e.ctx.Heap.Alloc(value.Bool(int(v.Kind) == instr.Operand)))

		default:
			return 0, false, 0, 0, fmt.Errorf("executor: unimplemented opcode %s", instr.Op)
		}
	}
}

// jumpAcrossFinally transfers control to target, routing through an
// intervening finally block first if target lies outside the current
// finally-protected region but the current IP is inside one — this is how
// `break`/`continue` (both compiled as a plain OpJmp to the loop's exit or
// top) still honor exactly-once finally execution (spec.md §4.8 testable
// property 5), not just `return` and `throw`.
func (e *Executor) jumpAcrossFinally(f *frame.Frame, target int) {
	if entry := f.FinallyEntryFor(f.IP - 1); entry != nil && (target < entry.Start || target >= entry.End) {
		f.Pending = frame.PendingExit{Kind: frame.PendingJump, JumpTarget: target}
		f.PushFinally(entry)
		f.IP = entry.FinallyTarget
		return
	}
	f.IP = target
}

// maybeUnwind searches f's catch table for an entry covering the faulting
// IP and, if found, transfers control there; otherwise it returns err so
// the caller propagates it to an enclosing frame (spec.md §4.8). Only a
// *ThrownError is matched against the catch table: a plain Go error (an
// unknown class, a readonly violation, a failed call lookup) is returned
// unchanged and propagates to the host. Callers that make a failure
// catchable wrap it first via arithmeticException/makeRuntimeException.
func (e *Executor) maybeUnwind(f *frame.Frame, err error) error {
	thrown, ok := err.(*ThrownError)
	if !ok {
		return err
	}
	entry := f.CatchEntryFor(f.IP - 1)
	if entry == nil {
		return err
	}
	if entry.Target >= 0 {
		e.stack.Push(thrown.Handle)
		f.IP = entry.Target
		return nil
	}
	if entry.FinallyTarget >= 0 {
		f.Pending = frame.PendingExit{Kind: frame.PendingThrow, Exception: thrown.Handle}
		f.PushFinally(entry)
		f.IP = entry.FinallyTarget
		return nil
	}
	return err
}

// arithmeticException wraps a plain Go error raised by binaryOp (division
// by zero, modulo by zero) as a catchable DivisionByZeroError object, so
// it can flow through the same maybeUnwind/catch-table path a `throw`
// would.
func (e *Executor) arithmeticException(err error) error {
	return &ThrownError{Handle: e.makeRuntimeException("DivisionByZeroError", err.Error())}
}

// dispatchCall resolves a completed pendingCall to a concrete callee and
// invokes it: a plain function looked up in ctx.Functions falling back to
// the builtin registry, an instance method resolved against the
// receiver's runtime class (with CalledScope set to that class for late
// static binding), or a static/class method resolved by name.
func (e *Executor) dispatchCall(pc *pendingCall) (heap.Handle, error) {
	switch pc.kind {
	case 1:
		recvV := e.get(pc.receiver)
		if recvV.Kind != value.KindObject {
			return 0, fmt.Errorf("call to a member function %s() on %s", pc.name, recvV.TypeName())
		}
		rec, ok := e.ctx.Classes.Lookup(recvV.Obj.ClassSym)
		if !ok {
			return 0, fmt.Errorf("call to method %s() on an object of unregistered class", pc.name)
		}
		m, ok := rec.ResolveMethod(pc.name)
		if !ok {
			return 0, fmt.Errorf("call to undefined method %s::%s()", e.ctx.Interner.Name(rec.Name), pc.name)
		}
		if verr := class.CheckMethodVisibility(m, rec, e.currentClassScope(), e.ctx.Interner); verr != nil {
			return 0, verr
		}
		return e.Call(m.Code, pc.receiver, m.DeclaringClass, rec.Name, pc.args)

	case 2:
		className, method := splitStatic(pc.name)
		rec, ok := e.ctx.Classes.Lookup(e.ctx.Interner.Intern(className))
		if !ok {
			return 0, fmt.Errorf("class %q not found", className)
		}
		m, ok := rec.ResolveMethod(method)
		if !ok {
			return 0, fmt.Errorf("call to undefined method %s::%s()", className, method)
		}
		if verr := class.CheckMethodVisibility(m, rec, e.currentClassScope(), e.ctx.Interner); verr != nil {
			return 0, verr
		}
		calledScope := rec.Name
		// static:: inside a method reached via self::/parent::/static:: from
		// an already-dispatched method should keep resolving through the
		// caller's own called scope, not the literal class named at this
		// call site (spec.md §4.6 LSB); a call into an unrelated class is a
		// fresh dispatch and starts its own called-scope chain at rec.
		if cur := e.currentFrame(); cur != nil && cur.CalledScope != 0 && (cur.Class == rec.Name || rec.IsSubclassOf(cur.Class)) {
			calledScope = cur.CalledScope
		}
		this := heap.NilHandle
		if cur := e.currentFrame(); cur != nil {
			this = cur.This
		}
		return e.Call(m.Code, this, m.DeclaringClass, calledScope, pc.args)

	default:
		sym := e.ctx.Interner.Intern(pc.name)
		if fn, ok := e.ctx.Functions[sym]; ok {
			return e.Call(fn.Code, heap.NilHandle, 0, 0, pc.args)
		}
		if bi, ok := e.builtins.Lookup(pc.name); ok {
			env := &builtin.Env{Heap: e.ctx.Heap, Interner: e.ctx.Interner, Classes: e.ctx.Classes, Resources: e.ctx.Resources}
			v, berr := bi(env, pc.args)
			if berr != nil {
				return 0, berr
			}
			return e.ctx.Heap.Alloc(v), nil
		}
		return 0, fmt.Errorf("call to undefined function %s()", pc.name)
	}
}

func (e *Executor) currentFrame() *frame.Frame {
	if len(e.calls) == 0 {
		return nil
	}
	return e.calls[len(e.calls)-1]
}

func (e *Executor) currentClassScope() interner.Symbol {
	if cur := e.currentFrame(); cur != nil {
		return cur.Class
	}
	return 0
}

// execNew allocates an object of the class named by instr's constant,
// collects constructor args already accumulated on the operand stack (the
// compiler emits OpPushArg for each one before OpNew, mirroring the call
// protocol since construction is itself a call), seeds every declared
// field (including inherited ones, via collectFields) with its default,
// and invokes __construct if the class declares one.
func (e *Executor) execNew(f *frame.Frame, instr bytecode.Instruction) error {
	className, _ := f.Code.Constants[instr.Operand].(string)
	argc := instr.Aux
	args := make([]heap.Handle, argc)
	for i := argc - 1; i >= 0; i-- {
		h, perr := e.stack.Pop()
		if perr != nil {
			return perr
		}
		args[i] = h
	}

	rec, ok := e.ctx.Classes.Lookup(e.ctx.Interner.Intern(className))
	if !ok {
		return fmt.Errorf("class %q not found", className)
	}
	if rec.Abstract || rec.IsInterface {
		return fmt.Errorf("cannot instantiate abstract class %s", className)
	}

	obj := value.NewObject(rec.Name)
	for _, fd := range collectFields(rec) {
		obj.SetProp(fd.Name, e.ctx.Heap.Alloc(constantToValue(fd.Default)))
		if fd.Default != nil {
			obj.MarkInitialized(fd.Name)
		}
	}
	objH := e.ctx.Heap.Alloc(value.Value{Kind: value.KindObject, Obj: obj})

	if ctor, ok := rec.ResolveMethod("__construct"); ok {
		if _, cerr := e.Call(ctor.Code, objH, ctor.DeclaringClass, rec.Name, args); cerr != nil {
			return cerr
		}
	}

	e.stack.Push(objH)
	return nil
}

// stepYieldFrom drives one step of a `yield from` delegation. On the
// first call (f.DelegateCursor nil) it pops the source off the operand
// stack and builds a foreach.Cursor over it (an array, another Generator,
// or an Iterator object); on every call after that it advances the
// already-built cursor, since the OpYieldFrom case above re-executes the
// same instruction on each successive Resume without the source value
// still on the stack. done=true once the source is exhausted, at which
// point val is the (always-null, in this implementation) result of the
// `yield from` expression — a documented simplification of PHP's rule
// that delegating to a Generator yields that generator's own
// Generator::getReturn() value instead.
func (e *Executor) stepYieldFrom(f *frame.Frame) (val heap.Handle, done bool, err error) {
	if f.DelegateCursor == nil {
		srcH, perr := e.stack.Pop()
		if perr != nil {
			return 0, false, perr
		}
		srcV := e.get(srcH)
		cur, cerr := e.makeForeachCursor(srcV, false, e.ctx.Classes)
		if cerr != nil {
			return 0, false, cerr
		}
		f.DelegateCursor = cur
	}

	cur := f.DelegateCursor
	if !cur.Valid() {
		f.DelegateCursor = nil
		return e.ctx.Heap.Alloc(value.Null()), true, nil
	}
	v := cur.Current()
	if nerr := cur.Next(); nerr != nil {
		f.DelegateCursor = nil
		return 0, false, nerr
	}
	return v, false, nil
}

// execForeachInit builds the cursor for a new foreach loop and pushes its
// state onto the frame's ForeachStack, priming the first element (or
// jumping straight to FOREACH_NEXT's exit target, via execForeachNext's
// usual Valid() check on the first explicit FOREACH_NEXT, if the source
// is empty).
func (e *Executor) execForeachInit(f *frame.Frame, instr bytecode.Instruction) error {
	srcH, perr := e.stack.Pop()
	if perr != nil {
		return perr
	}
	srcV := e.get(srcH)
	cur, cerr := e.makeForeachCursor(srcV, false, e.ctx.Classes)
	if cerr != nil {
		return cerr
	}
	keySlot := -1
	if instr.Aux >= 0 {
		keySlot = instr.Aux
	}
	f.ForeachStack = append(f.ForeachStack, &frame.ForeachState{Cursor: cur, ValSlot: instr.Operand, KeySlot: keySlot})
	e.bindForeachCurrent(f)
	return nil
}

// bindForeachCurrent writes the cursor's current value (and key, if the
// loop declared one) into their local slots.
func (e *Executor) bindForeachCurrent(f *frame.Frame) {
	n := len(f.ForeachStack)
	if n == 0 {
		return
	}
	st := f.ForeachStack[n-1]
	if !st.Cursor.Valid() {
		return
	}
	f.Locals[st.ValSlot] = e.copyOnAssign(st.Cursor.Current())
	if st.KeySlot >= 0 {
		var keyV value.Value
		switch c := st.Cursor.(type) {
		case foreach.ArrayCursor:
			k := c.KeyValue()
			if k.IsInt {
				keyV = value.Int(k.Int)
			} else {
				keyV = value.Str(k.Str)
			}
		case foreach.PropertyCursor:
			keyV = value.Str(c.PropertyName())
		default:
			keyV = e.get(st.Cursor.Key())
		}
		f.Locals[st.KeySlot] = e.ctx.Heap.Alloc(keyV)
	}
}

// execForeachNext advances the innermost active foreach's cursor and
// rebinds the loop variable(s), returning false when the loop is
// exhausted (the OpForeachNext case above then jumps to the loop's exit).
func (e *Executor) execForeachNext(f *frame.Frame) bool {
	n := len(f.ForeachStack)
	if n == 0 {
		return false
	}
	st := f.ForeachStack[n-1]
	if err := st.Cursor.Next(); err != nil {
		return false
	}
	if !st.Cursor.Valid() {
		return false
	}
	e.bindForeachCurrent(f)
	return true
}

func (e *Executor) binaryOp(op bytecode.Opcode) error {
	bH, err := e.stack.Pop()
	if err != nil {
		return err
	}
	aH, err := e.stack.Pop()
	if err != nil {
		return err
	}
	a := e.get(aH)
	b := e.get(bH)

	var result value.Value
	switch op {
	case bytecode.OpAdd:
		result = value.Int(a.Int + b.Int)
		if a.Kind == value.KindFloat || b.Kind == value.KindFloat {
			result = value.Float(numeric(a) + numeric(b))
		}
	case bytecode.OpSub:
		result = value.Float(numeric(a) - numeric(b))
		if a.Kind != value.KindFloat && b.Kind != value.KindFloat {
			result = value.Int(a.Int - b.Int)
		}
	case bytecode.OpMul:
		result = value.Float(numeric(a) * numeric(b))
		if a.Kind != value.KindFloat && b.Kind != value.KindFloat {
			result = value.Int(a.Int * b.Int)
		}
	case bytecode.OpDiv:
		if numeric(b) == 0 {
			return fmt.Errorf("division by zero")
		}
		result = value.Float(numeric(a) / numeric(b))
	case bytecode.OpMod:
		if b.Int == 0 {
			return fmt.Errorf("modulo by zero")
		}
		result = value.Int(a.Int % b.Int)
	case bytecode.OpPow:
		result = value.Float(powFloat(numeric(a), numeric(b)))
		if a.Kind != value.KindFloat && b.Kind != value.KindFloat && numeric(b) >= 0 {
			result = value.Int(int64(powFloat(numeric(a), numeric(b))))
		}
	case bytecode.OpBitAnd:
		result = value.Int(a.Int & b.Int)
	case bytecode.OpBitOr:
		result = value.Int(a.Int | b.Int)
	case bytecode.OpBitXor:
		result = value.Int(a.Int ^ b.Int)
	case bytecode.OpShl:
		result = value.Int(a.Int << uint(b.Int))
	case bytecode.OpShr:
		result = value.Int(a.Int >> uint(b.Int))
	case bytecode.OpEq:
		result = value.Bool(looseEquals(a, b))
	case bytecode.OpNotEq:
		result = value.Bool(!looseEquals(a, b))
	case bytecode.OpIdentical:
		result = value.Bool(looseIdentical(a, b))
	case bytecode.OpNotIdentical:
		result = value.Bool(!looseIdentical(a, b))
	case bytecode.OpLt:
		result = value.Bool(numeric(a) < numeric(b))
	case bytecode.OpLte:
		result = value.Bool(numeric(a) <= numeric(b))
	case bytecode.OpGt:
		result = value.Bool(numeric(a) > numeric(b))
	case bytecode.OpGte:
		result = value.Bool(numeric(a) >= numeric(b))
	case bytecode.OpSpaceship:
		switch {
		case numeric(a) < numeric(b):
			result = value.Int(-1)
		case numeric(a) > numeric(b):
			result = value.Int(1)
		default:
			result = value.Int(0)
		}
	}
	e.stack.Push(e.ctx.Heap.Alloc(result))
	return nil
}

func (e *Executor) unaryOp(op bytecode.Opcode) error {
	h, err := e.stack.Pop()
	if err != nil {
		return err
	}
	v := e.get(h)
	var result value.Value
	switch op {
	case bytecode.OpNeg:
		if v.Kind == value.KindFloat {
			result = value.Float(-v.Float)
		} else {
			result = value.Int(-v.Int)
		}
	case bytecode.OpNot:
		result = value.Bool(!v.IsTruthy())
	case bytecode.OpBitNot:
		result = value.Int(^v.Int)
	}
	e.stack.Push(e.ctx.Heap.Alloc(result))
	return nil
}

func numeric(v value.Value) float64 {
	switch v.Kind {
	case value.KindInt:
		return float64(v.Int)
	case value.KindFloat:
		return v.Float
	case value.KindBool:
		if v.Bool {
			return 1
		}
		return 0
	default:
		return 0
	}
}

// powFloat avoids importing math solely for Pow. It multiplies base by
// itself int(exp) times (a negative exponent takes the reciprocal), so any
// fractional part of exp is ignored; this keeps this file's stdlib
// surface the same as the rest of the pack's numeric helpers.
func powFloat(base, exp float64) float64 {
	if exp < 0 {
		return 1 / powFloat(base, -exp)
	}
	result := 1.0
	for i := 0; i < int(exp); i++ {
		result *= base
	}
	return result
}

func looseEquals(a, b value.Value) bool {
	if a.Kind == value.KindString && b.Kind == value.KindString {
		return a.Str == b.Str
	}
	return numeric(a) == numeric(b)
}

// looseIdentical implements === : same type and same value, with no
// numeric coercion across kinds (spec.md's identical operator).
func looseIdentical(a, b value.Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case value.KindInt:
		return a.Int == b.Int
	case value.KindFloat:
		return a.Float == b.Float
	case value.KindString:
		return a.Str == b.Str
	case value.KindBool:
		return a.Bool == b.Bool
	case value.KindNull:
		return true
	case value.KindObject:
		return a.Obj == b.Obj
	case value.KindArray:
		return a.Arr == b.Arr
	default:
		return false
	}
}

func stringify(v value.Value) string {
	switch v.Kind {
	case value.KindString:
		return v.Str
	case value.KindInt:
		return fmt.Sprintf("%d", v.Int)
	case value.KindFloat:
		return fmt.Sprintf("%v", v.Float)
	case value.KindBool:
		if v.Bool {
			return "1"
		}
		return ""
	case value.KindNull:
		return ""
	default:
		return ""
	}
}

// lineFor reports the source line the frame is currently executing, for
// error-surface reports; IP has already advanced past the faulting
// instruction by the time a handler raises a diagnostic.
func lineFor(f *frame.Frame) int {
	idx := f.IP - 1
	if idx >= 0 && idx < len(f.Code.Lines) {
		return f.Code.Lines[idx]
	}
	return 0
}

// makeForeachCursor picks the right foreach.Cursor implementation for a
// value, implementing spec.md §4.9's dispatch: array, then Generator,
// then Iterator-like object, then IteratorAggregate-like object (its
// getIterator() result is iterated), then plain object property fallback.
func (e *Executor) makeForeachCursor(v value.Value, byRef bool, reg *class.Registry) (foreach.Cursor, error) {
	switch v.Kind {
	case value.KindArray:
		if byRef {
			v.Arr = v.Arr.PrepareMutate()
		}
		return foreach.NewArrayCursor(v.Arr, byRef), nil
	case value.KindGenerator:
		gen, ok := v.Gen.(*generator.Generator)
		if !ok {
			return nil, fmt.Errorf("foreach: unsupported generator value")
		}
		return foreach.NewGeneratorCursor(gen), nil
	case value.KindObject:
		if rec, ok := reg.Lookup(v.Obj.ClassSym); ok {
			if _, hasCurrent := rec.ResolveMethod("current"); hasCurrent {
				if _, hasValid := rec.ResolveMethod("valid"); hasValid {
					return foreach.NewIteratorCursor(&executorIterator{e: e, rec: rec, obj: v.Obj})
				}
			}
			if _, hasGetIterator := rec.ResolveMethod("getIterator"); hasGetIterator {
				innerH, gerr := (&executorIterator{e: e, rec: rec, obj: v.Obj}).callNoArgs("getIterator")
				if gerr != nil {
					return nil, gerr
				}
				return e.makeForeachCursor(e.get(innerH), byRef, reg)
			}
		}
		isPublic := func(sym interner.Symbol) bool {
			if rec, ok := reg.Lookup(v.Obj.ClassSym); ok {
				for _, fd := range collectFields(rec) {
					if fd.Name == sym {
						return fd.Visibility == bytecode.Public
					}
				}
			}
			return true
		}
		return foreach.NewPropertyCursor(v.Obj, e.ctx.Interner, isPublic), nil
	default:
		return nil, fmt.Errorf("foreach: value of type %s is not iterable", v.TypeName())
	}
}

// executorIterator adapts a user-defined Iterator object's methods to
// foreach.Iterator by calling them through the executor the same way any
// other method call dispatches (spec.md §4.9: "Iterator objects are
// driven by calling their five methods directly").
type executorIterator struct {
	e   *Executor
	rec *class.Record
	obj *value.Object
}

func (it *executorIterator) callNoArgs(selector string) (heap.Handle, error) {
	m, ok := it.rec.ResolveMethod(selector)
	if !ok {
		return heap.NilHandle, fmt.Errorf("Iterator method %s not found", selector)
	}
	objH := it.e.ctx.Heap.Alloc(value.Value{Kind: value.KindObject, Obj: it.obj})
	return it.e.Call(m.Code, objH, m.DeclaringClass, it.rec.Name, nil)
}

func (it *executorIterator) Valid() (bool, error) {
	h, err := it.callNoArgs("valid")
	if err != nil {
		return false, err
	}
	return it.e.get(h).IsTruthy(), nil
}

func (it *executorIterator) Current() (heap.Handle, error) { return it.callNoArgs("current") }
func (it *executorIterator) Key() (heap.Handle, error)      { return it.callNoArgs("key") }

func (it *executorIterator) Next() error {
	_, err := it.callNoArgs("next")
	return err
}

func (it *executorIterator) Rewind() error {
	if _, ok := it.rec.ResolveMethod("rewind"); !ok {
		return nil
	}
	_, err := it.callNoArgs("rewind")
	return err
}
