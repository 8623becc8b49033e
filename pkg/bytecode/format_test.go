package bytecode

import (
	"bytes"
	"testing"

	"github.com/kristofer/phpvm/internal/interner"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeSimpleChunk(t *testing.T) {
	in := interner.New()
	original := &Chunk{
		Name:      in.Intern("main"),
		FilePath:  "main.php",
		LocalSlots: 1,
		Code: []Instruction{
			{Op: OpConst, Operand: 0},
			{Op: OpReturn},
		},
		Constants:  []interface{}{int64(42)},
		Lines:      []int{1, 1},
		CatchTable: nil,
	}

	var buf bytes.Buffer
	require.NoError(t, Encode(original, &buf, in))
	require.NotZero(t, buf.Len())

	out := interner.New()
	decoded, err := Decode(&buf, out)
	require.NoError(t, err)

	require.Equal(t, "main", out.Name(decoded.Name))
	require.Equal(t, "main.php", decoded.FilePath)
	require.Equal(t, original.Code, decoded.Code)
	require.Equal(t, original.Lines, decoded.Lines)
	require.Equal(t, int64(42), decoded.Constants[0])
}

func TestEncodeDecodeAllConstantTypes(t *testing.T) {
	in := interner.New()
	original := &Chunk{
		Name: in.Intern("c"),
		Code: []Instruction{{Op: OpReturn}},
		Constants: []interface{}{
			int64(123), float64(3.14), "hello", true, false, nil,
		},
		Lines: []int{1},
	}

	var buf bytes.Buffer
	require.NoError(t, Encode(original, &buf, in))

	out := interner.New()
	decoded, err := Decode(&buf, out)
	require.NoError(t, err)
	require.Equal(t, original.Constants, decoded.Constants)
}

func TestEncodeDecodeCatchTableAndParams(t *testing.T) {
	in := interner.New()
	original := &Chunk{
		Name:       in.Intern("f"),
		StrictTypes: true,
		ReturnsRef: false,
		LocalSlots: 2,
		Params: []ParamDef{
			{Name: in.Intern("x"), ByRef: false, TypeHint: "int"},
			{Name: in.Intern("rest"), Variadic: true},
		},
		Code: []Instruction{
			{Op: OpThrow},
			{Op: OpPop},
		},
		Lines: []int{5, 6},
		CatchTable: []CatchEntry{
			{Start: 0, End: 1, Target: 1, CatchType: -1, FinallyTarget: -1, FinallyEnd: -1},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Encode(original, &buf, in))

	out := interner.New()
	decoded, err := Decode(&buf, out)
	require.NoError(t, err)

	require.True(t, decoded.StrictTypes)
	require.Len(t, decoded.Params, 2)
	require.Equal(t, "x", out.Name(decoded.Params[0].Name))
	require.True(t, decoded.Params[1].Variadic)
	require.Equal(t, original.CatchTable, decoded.CatchTable)
}

func TestEncodeDecodeNestedChunkAndClassDef(t *testing.T) {
	in := interner.New()
	methodBody := &Chunk{
		Name: in.Intern("value"),
		Code: []Instruction{{Op: OpLoadLocal, Operand: 0}, {Op: OpReturn}},
		Lines: []int{1, 1},
	}
	classDef := &ClassDef{
		Name:   "Counter",
		Super:  "",
		Fields: []PropertyDef{{Name: "count", Visibility: Private, DefaultIdx: -1}},
		Methods: []*MethodDef{
			{Selector: "value", Visibility: Public, Code: methodBody},
		},
		Constants: map[string]interface{}{},
	}

	original := &Chunk{
		Name:      in.Intern("top"),
		Code:      []Instruction{{Op: OpDefClass, Operand: 0}, {Op: OpReturn}},
		Constants: []interface{}{classDef},
		Lines:     []int{1, 1},
	}

	var buf bytes.Buffer
	require.NoError(t, Encode(original, &buf, in))

	out := interner.New()
	decoded, err := Decode(&buf, out)
	require.NoError(t, err)
	require.Len(t, decoded.Constants, 1)

	decodedClass, ok := decoded.Constants[0].(*ClassDef)
	require.True(t, ok)
	require.Equal(t, "Counter", decodedClass.Name)
	require.Len(t, decodedClass.Fields, 1)
	require.Equal(t, "count", decodedClass.Fields[0].Name)
	require.Len(t, decodedClass.Methods, 1)
	require.Equal(t, "value", decodedClass.Methods[0].Selector)
	require.Equal(t, "value", out.Name(decodedClass.Methods[0].Code.Name))
}

func TestInvalidMagicNumber(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x78, 0x56, 0x34, 0x12, 0, 0, 0, 0, 0, 0, 0, 0})
	_, err := Decode(&buf, interner.New())
	require.Error(t, err)
}

func TestUnsupportedVersion(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x43, 0x50, 0x48, 0x50, 99, 0, 0, 0, 0, 0, 0, 0})
	_, err := Decode(&buf, interner.New())
	require.Error(t, err)
}

func TestEmptyChunk(t *testing.T) {
	in := interner.New()
	original := &Chunk{Name: in.Intern("empty")}

	var buf bytes.Buffer
	require.NoError(t, Encode(original, &buf, in))

	decoded, err := Decode(&buf, interner.New())
	require.NoError(t, err)
	require.Empty(t, decoded.Code)
	require.Empty(t, decoded.Constants)
}

func TestLargeOperandsAndUnicodeStrings(t *testing.T) {
	in := interner.New()
	original := &Chunk{
		Name: in.Intern("big"),
		Code: []Instruction{
			{Op: OpJmp, Operand: 100000},
			{Op: OpJmp, Operand: -100000},
			{Op: OpReturn},
		},
		Lines: []int{1, 1, 1},
		Constants: []interface{}{
			"Hello, 世界", "Привет, мир", "🎉🎊✨",
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Encode(original, &buf, in))

	decoded, err := Decode(&buf, interner.New())
	require.NoError(t, err)
	require.Equal(t, 100000, decoded.Code[0].Operand)
	require.Equal(t, -100000, decoded.Code[1].Operand)
	require.Equal(t, original.Constants, decoded.Constants)
}
