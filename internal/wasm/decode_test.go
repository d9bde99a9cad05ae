package wasm

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmlift/wasmlift/internal/leb128"
)

// section frames a section's contents with its ID and size.
func section(id SectionID, contents []byte) []byte {
	ret := []byte{id}
	ret = append(ret, leb128.EncodeUint32(uint32(len(contents)))...)
	return append(ret, contents...)
}

// buildAddModule encodes the classic two-parameter add module:
//
//	(func (export "add") (param i32 i32) (result i32)
//	  local.get 0 local.get 1 i32.add)
func buildAddModule() []byte {
	var bin []byte
	bin = append(bin, magic...)
	bin = append(bin, version...)
	// type: (i32, i32) -> i32
	bin = append(bin, section(SectionIDType, []byte{
		0x01, 0x60, 0x02, ValueTypeI32, ValueTypeI32, 0x01, ValueTypeI32,
	})...)
	// function: one function of type 0
	bin = append(bin, section(SectionIDFunction, []byte{0x01, 0x00})...)
	// export: "add" func 0
	bin = append(bin, section(SectionIDExport, []byte{
		0x01, 0x03, 'a', 'd', 'd', ExportKindFunc, 0x00,
	})...)
	// code: no locals, local.get 0 local.get 1 i32.add end
	body := []byte{0x00, OpcodeLocalGet, 0x00, OpcodeLocalGet, 0x01, OpcodeI32Add, OpcodeEnd}
	code := append([]byte{0x01, byte(len(body))}, body...)
	bin = append(bin, section(SectionIDCode, code)...)
	return bin
}

func TestDecodeModule(t *testing.T) {
	m, err := DecodeModule(buildAddModule())
	require.NoError(t, err)

	require.Len(t, m.TypeSection, 1)
	require.Equal(t, []ValueType{ValueTypeI32, ValueTypeI32}, m.TypeSection[0].Params)
	require.Equal(t, []ValueType{ValueTypeI32}, m.TypeSection[0].Results)

	require.Equal(t, []Index{0}, m.FunctionSection)
	require.Len(t, m.CodeSection, 1)
	require.Empty(t, m.CodeSection[0].LocalTypes)
	require.Equal(t, OpcodeEnd, m.CodeSection[0].Body[len(m.CodeSection[0].Body)-1])

	export, ok := m.ExportSection["add"]
	require.True(t, ok)
	require.Equal(t, ExportKindFunc, export.Kind)
	require.Equal(t, Index(0), export.Index)

	require.Equal(t, m.TypeSection[0], m.TypeOfFunction(0))
	require.Nil(t, m.TypeOfFunction(1))
}

func TestDecodeModule_errors(t *testing.T) {
	t.Run("bad magic", func(t *testing.T) {
		_, err := DecodeModule([]byte{0x01, 0x02, 0x03, 0x04, 0x01, 0x00, 0x00, 0x00})
		require.ErrorIs(t, err, ErrInvalidMagicNumber)
	})
	t.Run("bad version", func(t *testing.T) {
		_, err := DecodeModule(append(append([]byte{}, magic...), 0x02, 0x00, 0x00, 0x00))
		require.ErrorIs(t, err, ErrInvalidVersion)
	})
	t.Run("function and code mismatch", func(t *testing.T) {
		var bin []byte
		bin = append(bin, magic...)
		bin = append(bin, version...)
		bin = append(bin, section(SectionIDFunction, []byte{0x01, 0x00})...)
		_, err := DecodeModule(bin)
		require.Error(t, err)
	})
}

func TestReadBlockType(t *testing.T) {
	types := []*FunctionType{
		{Params: []ValueType{ValueTypeI32}, Results: []ValueType{ValueTypeI32, ValueTypeI64}},
	}

	for _, c := range []struct {
		name       string
		bytes      []byte
		expParams  int
		expResults []ValueType
	}{
		{name: "empty", bytes: []byte{0x40}, expResults: nil},
		{name: "i32", bytes: []byte{0x7f}, expResults: []ValueType{ValueTypeI32}},
		{name: "i64", bytes: []byte{0x7e}, expResults: []ValueType{ValueTypeI64}},
		{name: "f32", bytes: []byte{0x7d}, expResults: []ValueType{ValueTypeF32}},
		{name: "f64", bytes: []byte{0x7c}, expResults: []ValueType{ValueTypeF64}},
		{name: "funcref", bytes: []byte{0x70}, expResults: []ValueType{ValueTypeFuncref}},
		{name: "type index", bytes: []byte{0x00}, expParams: 1,
			expResults: []ValueType{ValueTypeI32, ValueTypeI64}},
	} {
		t.Run(c.name, func(t *testing.T) {
			bt, num, err := ReadBlockType(types, bytes.NewReader(c.bytes))
			require.NoError(t, err)
			require.Equal(t, uint64(len(c.bytes)), num)
			require.Len(t, bt.Params, c.expParams)
			require.Equal(t, c.expResults, bt.Results)
		})
	}

	t.Run("out of range", func(t *testing.T) {
		_, _, err := ReadBlockType(types, bytes.NewReader([]byte{0x01}))
		require.Error(t, err)
	})
}

func TestImportCountsAndIndexSpaces(t *testing.T) {
	max := uint32(10)
	m := &Module{
		TypeSection: []*FunctionType{{}},
		ImportSection: []*Import{
			{Kind: ImportKindFunc, Module: "env", Name: "f", DescFunc: 0},
			{Kind: ImportKindGlobal, Module: "env", Name: "g",
				DescGlobal: &GlobalType{ValType: ValueTypeI32, Mutable: true}},
			{Kind: ImportKindMemory, Module: "env", Name: "mem", DescMem: &LimitsType{Min: 1}},
			{Kind: ImportKindTable, Module: "env", Name: "t",
				DescTable: &TableType{ElemType: ValueTypeFuncref, Limit: &LimitsType{Min: 2, Max: &max}}},
		},
		FunctionSection: []Index{0},
		GlobalSection: []*Global{
			{Type: &GlobalType{ValType: ValueTypeI64}, Init: &ConstantExpression{Opcode: OpcodeI64Const, Data: []byte{0}}},
		},
	}

	require.Equal(t, uint32(1), m.ImportFuncCount())
	require.Equal(t, uint32(1), m.ImportGlobalCount())
	require.Equal(t, uint32(1), m.ImportMemoryCount())
	require.Equal(t, uint32(1), m.ImportTableCount())

	globals := m.Globals()
	require.Len(t, globals, 2)
	require.Equal(t, ValueTypeI32, globals[0].ValType)
	require.Equal(t, ValueTypeI64, globals[1].ValType)

	require.Len(t, m.Memories(), 1)
	require.Len(t, m.Tables(), 1)

	// The function index space starts with the import.
	require.Equal(t, m.TypeSection[0], m.TypeOfFunction(0))
	require.Equal(t, m.TypeSection[0], m.TypeOfFunction(1))
}
