// Package bytecode defines the bytecode format the compiler emits and the
// executor runs (spec.md §4.2, §6 "Compiled chunk").
//
// This replaces smog's pkg/bytecode (a flat Instruction{Op, Operand} slice
// plus a bare []interface{} constant pool, built for a language with no
// exceptions, no typed parameters, and no per-instruction line info). The
// shape — opcode/operand instructions, a constant pool referenced by
// index, a recursively-encodable format for nested code objects — is kept
// and generalized: Chunk adds strict_types/returns_ref flags, a parallel
// line table, and a catch table (spec.md's try/catch/finally contract),
// and the opcode set is rebuilt around the PHP-family instruction
// categories in spec.md §4.2 instead of smog's Smalltalk message sends.
package bytecode

import "github.com/kristofer/phpvm/internal/interner"

// Opcode is a single bytecode operation.
type Opcode byte

const (
	// --- Stack ---
	OpConst Opcode = iota
	OpPop
	OpDup
	OpSwap

	// --- Variable ---
	OpLoadLocal
	OpStoreLocal
	OpLoadGlobal
	OpStoreGlobal
	OpAssignRef
	OpUnsetLocal
	OpUnsetGlobal

	// --- Arithmetic / bitwise / comparison ---
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpPow
	OpBitAnd
	OpBitOr
	OpBitXor
	OpBitNot
	OpShl
	OpShr
	OpNeg
	OpNot
	OpEq
	OpNotEq
	OpIdentical
	OpNotIdentical
	OpLt
	OpLte
	OpGt
	OpGte
	OpSpaceship

	// --- Control flow ---
	OpJmp
	OpJmpIfFalse
	OpJmpIfTrue
	OpJmpZEx
	OpJmpNzEx

	// --- Array ---
	OpNewArray
	OpArrayGet
	OpArrayGetRef
	OpArraySet
	OpArrayUnset
	OpArrayAppend
	OpArrayUnpack

	// --- Object ---
	OpNew
	OpFetchProp
	OpFetchPropRef
	OpAssignProp
	OpFetchStaticProp
	OpAssignStaticProp
	OpDefClass
	OpDefStaticProp
	OpInstanceOf
	OpClone

	// --- Call ---
	OpInitCall
	OpPushArg
	OpPushArgUnpack
	OpDoCall
	OpReturn
	OpVerifyReturnType
	OpVerifyNeverType

	// --- Exception ---
	OpThrow
	OpReThrow

	// --- Generator ---
	OpYield
	OpYieldFrom
	OpGeneratorSend
	OpGeneratorThrow

	// --- Foreach ---
	OpForeachInit
	OpForeachNext
	OpForeachEnd

	// --- Match ---
	OpMatchCheck
	OpMatchFail

	// --- Misc ---
	OpEcho
	OpConcat
	OpCast
	OpIsType
	OpInitStaticSlot
	OpAutoloadClass
)

var opcodeNames = map[Opcode]string{
	OpConst: "CONST", OpPop: "POP", OpDup: "DUP", OpSwap: "SWAP",
	OpLoadLocal: "LOAD_LOCAL", OpStoreLocal: "STORE_LOCAL",
	OpLoadGlobal: "LOAD_GLOBAL", OpStoreGlobal: "STORE_GLOBAL",
	OpAssignRef: "ASSIGN_REF", OpUnsetLocal: "UNSET_LOCAL", OpUnsetGlobal: "UNSET_GLOBAL",
	OpAdd: "ADD", OpSub: "SUB", OpMul: "MUL", OpDiv: "DIV", OpMod: "MOD", OpPow: "POW",
	OpBitAnd: "BIT_AND", OpBitOr: "BIT_OR", OpBitXor: "BIT_XOR", OpBitNot: "BIT_NOT",
	OpShl: "SHL", OpShr: "SHR", OpNeg: "NEG", OpNot: "NOT",
	OpEq: "EQ", OpNotEq: "NEQ", OpIdentical: "IDENTICAL", OpNotIdentical: "NOT_IDENTICAL",
	OpLt: "LT", OpLte: "LTE", OpGt: "GT", OpGte: "GTE", OpSpaceship: "SPACESHIP",
	OpJmp: "JMP", OpJmpIfFalse: "JMP_IF_FALSE", OpJmpIfTrue: "JMP_IF_TRUE",
	OpJmpZEx: "JMP_Z_EX", OpJmpNzEx: "JMP_NZ_EX",
	OpNewArray: "NEW_ARRAY", OpArrayGet: "ARRAY_GET", OpArrayGetRef: "ARRAY_GET_REF",
	OpArraySet: "ARRAY_SET", OpArrayUnset: "ARRAY_UNSET", OpArrayAppend: "ARRAY_APPEND",
	OpArrayUnpack: "ARRAY_UNPACK",
	OpNew: "NEW", OpFetchProp: "FETCH_PROP", OpFetchPropRef: "FETCH_PROP_REF",
	OpAssignProp: "ASSIGN_PROP", OpFetchStaticProp: "FETCH_STATIC_PROP",
	OpAssignStaticProp: "ASSIGN_STATIC_PROP", OpDefClass: "DEF_CLASS",
	OpDefStaticProp: "DEF_STATIC_PROP", OpInstanceOf: "INSTANCE_OF", OpClone: "CLONE",
	OpInitCall: "INIT_CALL", OpPushArg: "PUSH_ARG", OpPushArgUnpack: "PUSH_ARG_UNPACK",
	OpDoCall: "DO_CALL", OpReturn: "RETURN", OpVerifyReturnType: "VERIFY_RETURN_TYPE",
	OpVerifyNeverType: "VERIFY_NEVER_TYPE",
	OpThrow: "THROW", OpReThrow: "RETHROW",
	OpYield: "YIELD", OpYieldFrom: "YIELD_FROM", OpGeneratorSend: "GENERATOR_SEND",
	OpGeneratorThrow: "GENERATOR_THROW",
	OpForeachInit: "FOREACH_INIT", OpForeachNext: "FOREACH_NEXT", OpForeachEnd: "FOREACH_END",
	OpMatchCheck: "MATCH_CHECK", OpMatchFail: "MATCH_FAIL",
	OpEcho: "ECHO", OpConcat: "CONCAT", OpCast: "CAST", OpIsType: "IS_TYPE",
	OpInitStaticSlot: "INIT_STATIC_SLOT", OpAutoloadClass: "AUTOLOAD_CLASS",
}

// String returns a human-readable mnemonic, used by the disassembler
// (internal/debug.Disassemble; adapted from smog's Opcode.String()).
func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return "UNKNOWN"
}

// StackEffect returns the opcode's declared (push - pop) stack delta
// (spec.md §3 invariant 6 / §8 property 1). Opcodes whose effect depends
// on a runtime operand count (OpDoCall, OpNewArray, ...) return (0, false).
// The executor does not check these deltas at run time.
func (op Opcode) StackEffect() (delta int, fixed bool) {
	switch op {
	case OpConst, OpDup, OpLoadLocal, OpLoadGlobal:
		return 1, true
	case OpPop, OpStoreLocal, OpStoreGlobal, OpThrow, OpEcho:
		return -1, true
	case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpPow, OpBitAnd, OpBitOr, OpBitXor,
		OpShl, OpShr, OpEq, OpNotEq, OpIdentical, OpNotIdentical,
		OpLt, OpLte, OpGt, OpGte, OpSpaceship, OpConcat:
		return -1, true // pop 2, push 1
	case OpNeg, OpNot, OpBitNot, OpCast, OpIsType:
		return 0, true // pop 1, push 1
	case OpSwap, OpUnsetLocal, OpUnsetGlobal:
		return 0, true
	default:
		return 0, false
	}
}

// Instruction is one bytecode operation plus its operand(s). Operand holds
// the primary operand (constant index, jump target, local slot, cast
// kind, element count); Aux carries a secondary value for opcodes that
// need one (e.g. OpInitCall's call kind, OpNew's argument count,
// OpForeachInit's key slot, OpInitStaticSlot's default-value constant).
type Instruction struct {
	Op      Opcode
	Operand int
	Aux     int
}

// CatchEntry describes one try region: the IP range it covers, where to
// transfer control on a matching throw, and the optional finally region
// (spec.md §4.2, §4.8). CatchType is encoded and decoded with the chunk,
// but the executor's unwind does not consult it: every entry with a
// Target catches any thrown value.
type CatchEntry struct {
	Start         int // inclusive
	End           int // exclusive
	Target        int // catch body IP, -1 if this entry is finally-only
	CatchType     int // constant-pool index of the class-name Symbol, -1 = catches anything
	FinallyTarget int // -1 if this try has no finally
	FinallyEnd    int
}

// Chunk is the handoff from the emitter to the executor (spec.md §4.2,
// §6 "Compiled chunk"): one function, method, closure, or top-level
// script's compiled code.
type Chunk struct {
	Name        interner.Symbol
	FilePath    string
	StrictTypes bool
	ReturnsRef  bool

	Code      []Instruction
	Constants []interface{}
	Lines     []int // Lines[i] is the source line for Code[i]

	CatchTable []CatchEntry

	Params    []ParamDef
	LocalSlots int // total local-variable slots this chunk needs
}

// ParamDef describes one declared parameter for binding and type
// verification (spec.md §4.3 invocation protocol).
type ParamDef struct {
	Name       interner.Symbol
	ByRef      bool
	Variadic   bool
	HasDefault bool
	DefaultIdx int // constant-pool index of the default value, if HasDefault
	TypeHint   string
}

// ClassDef is the constant-pool payload for OpDefClass: a class record as
// the compiler emits it, consumed by internal/class at the moment the
// DefClass opcode actually runs (spec.md §4.6: "registered lazily").
type ClassDef struct {
	Name       string
	Super      string
	Interfaces []string
	Traits     []string

	Fields      []PropertyDef
	Methods     []*MethodDef
	StaticProps []PropertyDef
	Constants   map[string]interface{}

	Final, Abstract, Readonly, IsEnum, BackedEnum, IsInterface, IsTrait bool
	AllowDynamicProperties                                              bool
	EnumCases                                                           []EnumCaseDef
}

// PropertyDef is one declared property with its default-value constant
// and visibility.
type PropertyDef struct {
	Name       string
	Visibility Visibility
	Readonly   bool
	Static     bool
	DefaultIdx int // index into the owning Chunk's constant pool, -1 = no default
}

// EnumCaseDef is one `case Name` or `case Name = value` in an enum.
type EnumCaseDef struct {
	Name      string
	BackedVal interface{} // nil for pure enums
}

// Visibility mirrors PHP's three visibility levels (spec.md §4.6).
type Visibility int

const (
	Public Visibility = iota
	Protected
	Private
)

// MethodDef is one method's signature plus its compiled body.
type MethodDef struct {
	Selector   string
	Visibility Visibility
	Static     bool
	Abstract   bool
	Final      bool
	Code       *Chunk
}
