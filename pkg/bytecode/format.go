// Package bytecode provides serialization and deserialization for .sgc
// bytecode files.
//
// File Format Specification:
//
// The .sgc file format is a binary format for storing compiled chunks,
// letting a script be compiled once and loaded many times without
// re-lexing/parsing/compiling (spec.md §6 "Compiled chunk" is the
// in-memory shape this format is the on-disk mirror of). Design goals
// carried over from smog's .sg format:
//   - Compact: Efficient binary encoding
//   - Versioned: Support for format evolution
//   - Complete: Stores all information needed for execution
//
// Binary Format Layout:
//
//   [Header]
//     Magic Number (4 bytes): "PHPC" (0x50485043)
//     Version (4 bytes): Format version number (currently 1)
//     Flags (4 bytes): Reserved for future use
//
//   [Chunk]
//     Name (string)
//     FilePath (string)
//     StrictTypes (1 byte)
//     ReturnsRef (1 byte)
//     LocalSlots (4 bytes)
//     Params section
//     Constants section
//     Instructions section (opcode + operand + aux + source line, per entry)
//     CatchTable section
//
// Constant Types:
//   0x01 = Integer (int64, 8 bytes)
//   0x02 = Float (float64, 8 bytes)
//   0x03 = String (4-byte length + UTF-8 bytes)
//   0x04 = Boolean (1 byte: 0=false, 1=true)
//   0x05 = Nil (0 bytes)
//   0x06 = ClassDef (nested structure)
//   0x07 = MethodDef (nested structure)
//   0x08 = Chunk (recursive structure, for closures and method bodies)
//
// Design Rationale:
//
// Binary Format:
//   - Faster to parse than text formats
//   - Smaller file size
//   - Direct mapping to in-memory structures
//
// Magic Number:
//   - Identifies file type
//   - Prevents accidental execution of wrong files
//
// Symbols (interner.Symbol) are process-local integers, so the format
// never writes them directly: every name crossing the wire is a plain
// string, re-interned on the way back in against whatever *interner.Interner
// the caller supplies to Decode. This is the one structural departure from
// smog's format, which had no interning layer to worry about.
//
// This format is inspired by:
//   - Java .class files
//   - Python .pyc files
//   - smog's own .sg image format
package bytecode

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/kristofer/phpvm/internal/interner"
)

// File format constants
const (
	// MagicNumber is the file signature for .sgc files: "PHPC"
	MagicNumber uint32 = 0x50485043

	// FormatVersion is the current bytecode format version
	FormatVersion uint32 = 1

	// Reserved flags (currently unused, set to 0)
	formatFlags uint32 = 0
)

// Constant type identifiers for serialization
const (
	constTypeInteger byte = 0x01
	constTypeFloat   byte = 0x02
	constTypeString  byte = 0x03
	constTypeBoolean byte = 0x04
	constTypeNil     byte = 0x05
	constTypeClass   byte = 0x06
	constTypeMethod  byte = 0x07
	constTypeChunk   byte = 0x08
)

// Encode serializes chunk to binary format and writes it to w. Symbols
// (chunk.Name, parameter names, ...) are resolved to strings through in,
// since a Symbol's integer value is only meaningful within the Interner
// that minted it.
//
// Example usage:
//
//	chunk := &bytecode.Chunk{Name: in.Intern("main"), Code: code, Constants: consts}
//	f, _ := os.Create("program.sgc")
//	defer f.Close()
//	bytecode.Encode(chunk, f, in)
func Encode(chunk *Chunk, w io.Writer, in *interner.Interner) error {
	if err := writeHeader(w); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := writeChunk(w, chunk, in); err != nil {
		return fmt.Errorf("failed to write chunk: %w", err)
	}
	return nil
}

// Decode deserializes a chunk from binary format, interning every name it
// reads against in so the returned Chunk's symbols are valid in the
// caller's symbol table.
//
// Returns an error if:
//   - Magic number is incorrect (not a .sgc file)
//   - Version is unsupported
//   - File is corrupted
//   - Unexpected end of file
func Decode(r io.Reader, in *interner.Interner) (*Chunk, error) {
	version, err := readHeader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if version != FormatVersion {
		return nil, fmt.Errorf("unsupported bytecode version: %d (expected %d)", version, FormatVersion)
	}
	return readChunk(r, in)
}

func writeHeader(w io.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, MagicNumber); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, FormatVersion); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, formatFlags)
}

func readHeader(r io.Reader) (uint32, error) {
	var magic uint32
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return 0, err
	}
	if magic != MagicNumber {
		return 0, fmt.Errorf("invalid magic number: 0x%08X (expected 0x%08X)", magic, MagicNumber)
	}
	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return 0, err
	}
	var flags uint32
	if err := binary.Read(r, binary.LittleEndian, &flags); err != nil {
		return 0, err
	}
	return version, nil
}

// writeChunk writes the body of a Chunk (everything after the file
// header) to w. Encode calls this once for the top-level chunk;
// writeConstant calls it again recursively for every nested closure or
// method body that appears in the constant pool.
func writeChunk(w io.Writer, c *Chunk, in *interner.Interner) error {
	if err := writeString(w, in.Name(c.Name)); err != nil {
		return err
	}
	if err := writeString(w, c.FilePath); err != nil {
		return err
	}
	if err := writeBool(w, c.StrictTypes); err != nil {
		return err
	}
	if err := writeBool(w, c.ReturnsRef); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, int32(c.LocalSlots)); err != nil {
		return err
	}
	if err := writeParams(w, c.Params, in); err != nil {
		return err
	}
	if err := writeConstants(w, c.Constants, in); err != nil {
		return fmt.Errorf("failed to write constants: %w", err)
	}
	if err := writeInstructions(w, c.Code, c.Lines); err != nil {
		return fmt.Errorf("failed to write instructions: %w", err)
	}
	if err := writeCatchTable(w, c.CatchTable); err != nil {
		return fmt.Errorf("failed to write catch table: %w", err)
	}
	return nil
}

func readChunk(r io.Reader, in *interner.Interner) (*Chunk, error) {
	name, err := readString(r)
	if err != nil {
		return nil, err
	}
	filePath, err := readString(r)
	if err != nil {
		return nil, err
	}
	strictTypes, err := readBool(r)
	if err != nil {
		return nil, err
	}
	returnsRef, err := readBool(r)
	if err != nil {
		return nil, err
	}
	var localSlots int32
	if err := binary.Read(r, binary.LittleEndian, &localSlots); err != nil {
		return nil, err
	}
	params, err := readParams(r, in)
	if err != nil {
		return nil, err
	}
	constants, err := readConstants(r, in)
	if err != nil {
		return nil, fmt.Errorf("failed to read constants: %w", err)
	}
	code, lines, err := readInstructions(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read instructions: %w", err)
	}
	catchTable, err := readCatchTable(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read catch table: %w", err)
	}
	return &Chunk{
		Name:        in.Intern(name),
		FilePath:    filePath,
		StrictTypes: strictTypes,
		ReturnsRef:  returnsRef,
		LocalSlots:  int(localSlots),
		Params:      params,
		Constants:   constants,
		Code:        code,
		Lines:       lines,
		CatchTable:  catchTable,
	}, nil
}

// writeConstants writes the constants section: a count followed by each
// constant's type byte and type-specific payload.
func writeConstants(w io.Writer, constants []interface{}, in *interner.Interner) error {
	count := uint32(len(constants))
	if err := binary.Write(w, binary.LittleEndian, count); err != nil {
		return err
	}
	for i, c := range constants {
		if err := writeConstant(w, c, in); err != nil {
			return fmt.Errorf("failed to write constant %d: %w", i, err)
		}
	}
	return nil
}

func writeConstant(w io.Writer, c interface{}, in *interner.Interner) error {
	switch v := c.(type) {
	case int64:
		if err := binary.Write(w, binary.LittleEndian, constTypeInteger); err != nil {
			return err
		}
		return binary.Write(w, binary.LittleEndian, v)

	case float64:
		if err := binary.Write(w, binary.LittleEndian, constTypeFloat); err != nil {
			return err
		}
		return binary.Write(w, binary.LittleEndian, v)

	case string:
		if err := binary.Write(w, binary.LittleEndian, constTypeString); err != nil {
			return err
		}
		return writeString(w, v)

	case bool:
		if err := binary.Write(w, binary.LittleEndian, constTypeBoolean); err != nil {
			return err
		}
		return writeBool(w, v)

	case nil:
		return binary.Write(w, binary.LittleEndian, constTypeNil)

	case *ClassDef:
		if err := binary.Write(w, binary.LittleEndian, constTypeClass); err != nil {
			return err
		}
		return writeClassDef(w, v, in)

	case *MethodDef:
		if err := binary.Write(w, binary.LittleEndian, constTypeMethod); err != nil {
			return err
		}
		return writeMethodDef(w, v, in)

	case *Chunk:
		if err := binary.Write(w, binary.LittleEndian, constTypeChunk); err != nil {
			return err
		}
		return writeChunk(w, v, in)

	default:
		return fmt.Errorf("unsupported constant type: %T", c)
	}
}

func readConstants(r io.Reader, in *interner.Interner) ([]interface{}, error) {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	constants := make([]interface{}, count)
	for i := uint32(0); i < count; i++ {
		c, err := readConstant(r, in)
		if err != nil {
			return nil, fmt.Errorf("failed to read constant %d: %w", i, err)
		}
		constants[i] = c
	}
	return constants, nil
}

func readConstant(r io.Reader, in *interner.Interner) (interface{}, error) {
	var constType byte
	if err := binary.Read(r, binary.LittleEndian, &constType); err != nil {
		return nil, err
	}
	switch constType {
	case constTypeInteger:
		var v int64
		err := binary.Read(r, binary.LittleEndian, &v)
		return v, err

	case constTypeFloat:
		var v float64
		err := binary.Read(r, binary.LittleEndian, &v)
		return v, err

	case constTypeString:
		return readString(r)

	case constTypeBoolean:
		return readBool(r)

	case constTypeNil:
		return nil, nil

	case constTypeClass:
		return readClassDef(r, in)

	case constTypeMethod:
		return readMethodDef(r, in)

	case constTypeChunk:
		return readChunk(r, in)

	default:
		return nil, fmt.Errorf("unknown constant type: 0x%02X", constType)
	}
}

// writeInstructions writes the code and line-table sections together,
// since every chunk carries Lines in lockstep with Code (spec.md §4.2:
// "lines: per-instruction source line").
func writeInstructions(w io.Writer, code []Instruction, lines []int) error {
	count := uint32(len(code))
	if err := binary.Write(w, binary.LittleEndian, count); err != nil {
		return err
	}
	for i, instr := range code {
		if err := binary.Write(w, binary.LittleEndian, byte(instr.Op)); err != nil {
			return fmt.Errorf("failed to write instruction %d opcode: %w", i, err)
		}
		if err := binary.Write(w, binary.LittleEndian, int32(instr.Operand)); err != nil {
			return fmt.Errorf("failed to write instruction %d operand: %w", i, err)
		}
		if err := binary.Write(w, binary.LittleEndian, int32(instr.Aux)); err != nil {
			return fmt.Errorf("failed to write instruction %d aux: %w", i, err)
		}
		line := 0
		if i < len(lines) {
			line = lines[i]
		}
		if err := binary.Write(w, binary.LittleEndian, int32(line)); err != nil {
			return fmt.Errorf("failed to write instruction %d line: %w", i, err)
		}
	}
	return nil
}

func readInstructions(r io.Reader) ([]Instruction, []int, error) {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, nil, err
	}
	code := make([]Instruction, count)
	lines := make([]int, count)
	for i := uint32(0); i < count; i++ {
		var op byte
		if err := binary.Read(r, binary.LittleEndian, &op); err != nil {
			return nil, nil, fmt.Errorf("failed to read instruction %d opcode: %w", i, err)
		}
		var operand, aux, line int32
		if err := binary.Read(r, binary.LittleEndian, &operand); err != nil {
			return nil, nil, fmt.Errorf("failed to read instruction %d operand: %w", i, err)
		}
		if err := binary.Read(r, binary.LittleEndian, &aux); err != nil {
			return nil, nil, fmt.Errorf("failed to read instruction %d aux: %w", i, err)
		}
		if err := binary.Read(r, binary.LittleEndian, &line); err != nil {
			return nil, nil, fmt.Errorf("failed to read instruction %d line: %w", i, err)
		}
		code[i] = Instruction{Op: Opcode(op), Operand: int(operand), Aux: int(aux)}
		lines[i] = int(line)
	}
	return code, lines, nil
}

// writeCatchTable writes a chunk's try/catch/finally regions (spec.md
// §4.2, §4.8).
func writeCatchTable(w io.Writer, table []CatchEntry) error {
	count := uint32(len(table))
	if err := binary.Write(w, binary.LittleEndian, count); err != nil {
		return err
	}
	for _, e := range table {
		fields := []int32{
			int32(e.Start), int32(e.End), int32(e.Target),
			int32(e.CatchType), int32(e.FinallyTarget), int32(e.FinallyEnd),
		}
		for _, f := range fields {
			if err := binary.Write(w, binary.LittleEndian, f); err != nil {
				return err
			}
		}
	}
	return nil
}

func readCatchTable(r io.Reader) ([]CatchEntry, error) {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	table := make([]CatchEntry, count)
	for i := uint32(0); i < count; i++ {
		var start, end, target, catchType, finallyTarget, finallyEnd int32
		for _, f := range []*int32{&start, &end, &target, &catchType, &finallyTarget, &finallyEnd} {
			if err := binary.Read(r, binary.LittleEndian, f); err != nil {
				return nil, err
			}
		}
		table[i] = CatchEntry{
			Start: int(start), End: int(end), Target: int(target),
			CatchType: int(catchType), FinallyTarget: int(finallyTarget), FinallyEnd: int(finallyEnd),
		}
	}
	return table, nil
}

// writeParams writes a chunk's declared-parameter table.
func writeParams(w io.Writer, params []ParamDef, in *interner.Interner) error {
	count := uint32(len(params))
	if err := binary.Write(w, binary.LittleEndian, count); err != nil {
		return err
	}
	for _, p := range params {
		if err := writeString(w, in.Name(p.Name)); err != nil {
			return err
		}
		if err := writeBool(w, p.ByRef); err != nil {
			return err
		}
		if err := writeBool(w, p.Variadic); err != nil {
			return err
		}
		if err := writeBool(w, p.HasDefault); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, int32(p.DefaultIdx)); err != nil {
			return err
		}
		if err := writeString(w, p.TypeHint); err != nil {
			return err
		}
	}
	return nil
}

func readParams(r io.Reader, in *interner.Interner) ([]ParamDef, error) {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	params := make([]ParamDef, count)
	for i := uint32(0); i < count; i++ {
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		byRef, err := readBool(r)
		if err != nil {
			return nil, err
		}
		variadic, err := readBool(r)
		if err != nil {
			return nil, err
		}
		hasDefault, err := readBool(r)
		if err != nil {
			return nil, err
		}
		var defaultIdx int32
		if err := binary.Read(r, binary.LittleEndian, &defaultIdx); err != nil {
			return nil, err
		}
		typeHint, err := readString(r)
		if err != nil {
			return nil, err
		}
		params[i] = ParamDef{
			Name: in.Intern(name), ByRef: byRef, Variadic: variadic,
			HasDefault: hasDefault, DefaultIdx: int(defaultIdx), TypeHint: typeHint,
		}
	}
	return params, nil
}

// writeClassDef writes a ClassDef constant-pool entry (spec.md §4.6).
func writeClassDef(w io.Writer, cd *ClassDef, in *interner.Interner) error {
	if err := writeString(w, cd.Name); err != nil {
		return err
	}
	if err := writeString(w, cd.Super); err != nil {
		return err
	}
	if err := writeStringSlice(w, cd.Interfaces); err != nil {
		return err
	}
	if err := writeStringSlice(w, cd.Traits); err != nil {
		return err
	}
	if err := writePropertySlice(w, cd.Fields); err != nil {
		return err
	}
	if err := writeMethodSlice(w, cd.Methods, in); err != nil {
		return err
	}
	if err := writePropertySlice(w, cd.StaticProps); err != nil {
		return err
	}
	if err := writeConstantMap(w, cd.Constants, in); err != nil {
		return err
	}
	flags := []bool{cd.Final, cd.Abstract, cd.Readonly, cd.IsEnum, cd.BackedEnum, cd.IsInterface, cd.IsTrait, cd.AllowDynamicProperties}
	for _, f := range flags {
		if err := writeBool(w, f); err != nil {
			return err
		}
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(cd.EnumCases))); err != nil {
		return err
	}
	for _, ec := range cd.EnumCases {
		if err := writeString(w, ec.Name); err != nil {
			return err
		}
		if err := writeConstant(w, ec.BackedVal, in); err != nil {
			return err
		}
	}
	return nil
}

func readClassDef(r io.Reader, in *interner.Interner) (*ClassDef, error) {
	name, err := readString(r)
	if err != nil {
		return nil, err
	}
	super, err := readString(r)
	if err != nil {
		return nil, err
	}
	interfaces, err := readStringSlice(r)
	if err != nil {
		return nil, err
	}
	traits, err := readStringSlice(r)
	if err != nil {
		return nil, err
	}
	fields, err := readPropertySlice(r)
	if err != nil {
		return nil, err
	}
	methods, err := readMethodSlice(r, in)
	if err != nil {
		return nil, err
	}
	staticProps, err := readPropertySlice(r)
	if err != nil {
		return nil, err
	}
	constants, err := readConstantMap(r, in)
	if err != nil {
		return nil, err
	}
	flags := make([]bool, 8)
	for i := range flags {
		b, err := readBool(r)
		if err != nil {
			return nil, err
		}
		flags[i] = b
	}
	var caseCount uint32
	if err := binary.Read(r, binary.LittleEndian, &caseCount); err != nil {
		return nil, err
	}
	cases := make([]EnumCaseDef, caseCount)
	for i := uint32(0); i < caseCount; i++ {
		caseName, err := readString(r)
		if err != nil {
			return nil, err
		}
		backed, err := readConstant(r, in)
		if err != nil {
			return nil, err
		}
		cases[i] = EnumCaseDef{Name: caseName, BackedVal: backed}
	}
	return &ClassDef{
		Name: name, Super: super, Interfaces: interfaces, Traits: traits,
		Fields: fields, Methods: methods, StaticProps: staticProps, Constants: constants,
		Final: flags[0], Abstract: flags[1], Readonly: flags[2], IsEnum: flags[3],
		BackedEnum: flags[4], IsInterface: flags[5], IsTrait: flags[6], AllowDynamicProperties: flags[7],
		EnumCases: cases,
	}, nil
}

// writeMethodDef writes a MethodDef (selector, modifiers, compiled body).
func writeMethodDef(w io.Writer, md *MethodDef, in *interner.Interner) error {
	if err := writeString(w, md.Selector); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, int32(md.Visibility)); err != nil {
		return err
	}
	for _, f := range []bool{md.Static, md.Abstract, md.Final} {
		if err := writeBool(w, f); err != nil {
			return err
		}
	}
	return writeChunk(w, md.Code, in)
}

func readMethodDef(r io.Reader, in *interner.Interner) (*MethodDef, error) {
	selector, err := readString(r)
	if err != nil {
		return nil, err
	}
	var vis int32
	if err := binary.Read(r, binary.LittleEndian, &vis); err != nil {
		return nil, err
	}
	static, err := readBool(r)
	if err != nil {
		return nil, err
	}
	abstract, err := readBool(r)
	if err != nil {
		return nil, err
	}
	final, err := readBool(r)
	if err != nil {
		return nil, err
	}
	code, err := readChunk(r, in)
	if err != nil {
		return nil, err
	}
	return &MethodDef{
		Selector: selector, Visibility: Visibility(vis),
		Static: static, Abstract: abstract, Final: final, Code: code,
	}, nil
}

func writeMethodSlice(w io.Writer, slice []*MethodDef, in *interner.Interner) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(slice))); err != nil {
		return err
	}
	for _, md := range slice {
		if err := writeMethodDef(w, md, in); err != nil {
			return err
		}
	}
	return nil
}

func readMethodSlice(r io.Reader, in *interner.Interner) ([]*MethodDef, error) {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	slice := make([]*MethodDef, count)
	for i := uint32(0); i < count; i++ {
		md, err := readMethodDef(r, in)
		if err != nil {
			return nil, err
		}
		slice[i] = md
	}
	return slice, nil
}

func writePropertySlice(w io.Writer, slice []PropertyDef) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(slice))); err != nil {
		return err
	}
	for _, p := range slice {
		if err := writeString(w, p.Name); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, int32(p.Visibility)); err != nil {
			return err
		}
		if err := writeBool(w, p.Readonly); err != nil {
			return err
		}
		if err := writeBool(w, p.Static); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, int32(p.DefaultIdx)); err != nil {
			return err
		}
	}
	return nil
}

func readPropertySlice(r io.Reader) ([]PropertyDef, error) {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	slice := make([]PropertyDef, count)
	for i := uint32(0); i < count; i++ {
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		var vis int32
		if err := binary.Read(r, binary.LittleEndian, &vis); err != nil {
			return nil, err
		}
		readonly, err := readBool(r)
		if err != nil {
			return nil, err
		}
		static, err := readBool(r)
		if err != nil {
			return nil, err
		}
		var defaultIdx int32
		if err := binary.Read(r, binary.LittleEndian, &defaultIdx); err != nil {
			return nil, err
		}
		slice[i] = PropertyDef{
			Name: name, Visibility: Visibility(vis), Readonly: readonly,
			Static: static, DefaultIdx: int(defaultIdx),
		}
	}
	return slice, nil
}

func writeConstantMap(w io.Writer, m map[string]interface{}, in *interner.Interner) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(m))); err != nil {
		return err
	}
	for k, v := range m {
		if err := writeString(w, k); err != nil {
			return err
		}
		if err := writeConstant(w, v, in); err != nil {
			return err
		}
	}
	return nil
}

func readConstantMap(r io.Reader, in *interner.Interner) (map[string]interface{}, error) {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	m := make(map[string]interface{}, count)
	for i := uint32(0); i < count; i++ {
		k, err := readString(r)
		if err != nil {
			return nil, err
		}
		v, err := readConstant(r, in)
		if err != nil {
			return nil, err
		}
		m[k] = v
	}
	return m, nil
}

// Helper functions for reading/writing primitives and slices

func writeString(w io.Writer, s string) error {
	length := uint32(len(s))
	if err := binary.Write(w, binary.LittleEndian, length); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

func readString(r io.Reader) (string, error) {
	var length uint32
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return "", err
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeBool(w io.Writer, b bool) error {
	var v byte
	if b {
		v = 1
	}
	return binary.Write(w, binary.LittleEndian, v)
}

func readBool(r io.Reader) (bool, error) {
	var v byte
	if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
		return false, err
	}
	return v != 0, nil
}

func writeStringSlice(w io.Writer, slice []string) error {
	count := uint32(len(slice))
	if err := binary.Write(w, binary.LittleEndian, count); err != nil {
		return err
	}
	for _, s := range slice {
		if err := writeString(w, s); err != nil {
			return err
		}
	}
	return nil
}

func readStringSlice(r io.Reader) ([]string, error) {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	slice := make([]string, count)
	for i := uint32(0); i < count; i++ {
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		slice[i] = s
	}
	return slice, nil
}
