package translate

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmlift/wasmlift/internal/jvm"
	"github.com/wasmlift/wasmlift/internal/wasm"
)

const testClass = "com/example/Module"

func translateForTest(t *testing.T, m *wasm.Module) []*jvm.ClassFile {
	t.Helper()
	classes, err := Translate(m, Config{ClassName: testClass})
	require.NoError(t, err)
	require.NotEmpty(t, classes)
	require.Equal(t, testClass, classes[0].Name)
	return classes
}

func findMethod(t *testing.T, cls *jvm.ClassFile, name string) *jvm.Method {
	t.Helper()
	for _, m := range cls.Methods {
		if m.Name == name {
			return m
		}
	}
	t.Fatalf("method %s not found in %s", name, cls.Name)
	return nil
}

func hasMethod(cls *jvm.ClassFile, name string) bool {
	for _, m := range cls.Methods {
		if m.Name == name {
			return true
		}
	}
	return false
}

func hasField(cls *jvm.ClassFile, name string) bool {
	for _, f := range cls.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

func findClass(t *testing.T, classes []*jvm.ClassFile, name string) *jvm.ClassFile {
	t.Helper()
	for _, c := range classes {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("class %s not found", name)
	return nil
}

// funcModule builds a module of one defined, exported function.
func funcModule(exportName string, ft *wasm.FunctionType, localTypes []wasm.ValueType, body ...byte) *wasm.Module {
	return &wasm.Module{
		TypeSection:     []*wasm.FunctionType{ft},
		FunctionSection: []wasm.Index{0},
		CodeSection:     []*wasm.Code{{LocalTypes: localTypes, Body: body}},
		ExportSection: map[string]*wasm.Export{
			exportName: {Name: exportName, Kind: wasm.ExportKindFunc, Index: 0},
		},
	}
}

func i32x2toI32() *wasm.FunctionType {
	return &wasm.FunctionType{
		Params:  []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32},
		Results: []wasm.ValueType{wasm.ValueTypeI32},
	}
}

func TestTranslateAdd(t *testing.T) {
	m := funcModule("add", i32x2toI32(), nil,
		wasm.OpcodeLocalGet, 0x00,
		wasm.OpcodeLocalGet, 0x01,
		wasm.OpcodeI32Add,
		wasm.OpcodeEnd,
	)
	classes := translateForTest(t, m)
	main := classes[0]

	// The static implementation: iload_0 iload_1 iadd ireturn.
	f0 := findMethod(t, main, "f0")
	require.Equal(t, "(IILcom/example/Module;)I", f0.Descriptor.String())
	require.Equal(t, []byte{
		jvm.OpILoad0, jvm.OpILoad0 + 1, jvm.OpIAdd, jvm.OpIReturn,
	}, f0.Code.Body)
	require.Equal(t, 2, f0.Code.MaxStack)

	// The exported wrapper.
	add := findMethod(t, main, "add")
	require.Equal(t, "(II)I", add.Descriptor.String())
	require.Equal(t, jvm.AccPublic, add.AccessFlags)
}

func TestTranslateDivTraps(t *testing.T) {
	m := funcModule("div", i32x2toI32(), nil,
		wasm.OpcodeLocalGet, 0x00,
		wasm.OpcodeLocalGet, 0x01,
		wasm.OpcodeI32DivS,
		wasm.OpcodeEnd,
	)
	classes := translateForTest(t, m)
	main := classes[0]

	// Division goes through the guarded helper, which references both the
	// trap thrower and the overflow operands.
	require.True(t, hasMethod(main, "div$i32_s"))
	require.True(t, hasMethod(main, "t$trap"))

	trap := findClass(t, classes, testClass+"$Trap")
	require.Equal(t, jvm.RuntimeExceptionClass, trap.SuperName)
	require.True(t, hasField(trap, "kind"))
}

func TestTranslateMemoryStore(t *testing.T) {
	m := &wasm.Module{
		TypeSection:     []*wasm.FunctionType{{Params: []wasm.ValueType{wasm.ValueTypeI32}}},
		FunctionSection: []wasm.Index{0},
		MemorySection:   []*wasm.MemoryType{{Min: 1}},
		CodeSection: []*wasm.Code{{Body: []byte{
			wasm.OpcodeI32Const, 0x00, // address
			wasm.OpcodeLocalGet, 0x00, // value
			wasm.OpcodeI32Store, 0x02, 0x00, // alignment, offset
			wasm.OpcodeEnd,
		}}},
		ExportSection: map[string]*wasm.Export{
			"store": {Name: "store", Kind: wasm.ExportKindFunc, Index: 0},
			"mem":   {Name: "mem", Kind: wasm.ExportKindMemory, Index: 0},
		},
	}
	classes := translateForTest(t, m)
	main := classes[0]

	require.True(t, hasMethod(main, "mem$st32_0"))
	require.True(t, hasMethod(main, "mem$idx"))
	require.True(t, hasMethod(main, "mem$grow_0"))
	require.True(t, hasField(main, "m0"))

	memCls := findClass(t, classes, testClass+"$Memory")
	require.True(t, hasField(memCls, "memory"))
	require.True(t, hasMethod(memCls, "grow"))
	require.True(t, hasMethod(memCls, "size"))
}

func TestTranslateBrTable(t *testing.T) {
	ft := &wasm.FunctionType{
		Params:  []wasm.ValueType{wasm.ValueTypeI32},
		Results: []wasm.ValueType{wasm.ValueTypeI32},
	}
	m := funcModule("sel", ft, nil,
		wasm.OpcodeBlock, 0x40,
		wasm.OpcodeBlock, 0x40,
		wasm.OpcodeBlock, 0x40,
		wasm.OpcodeLocalGet, 0x00,
		wasm.OpcodeBrTable, 0x03, 0x00, 0x01, 0x02, 0x02,
		wasm.OpcodeEnd,
		wasm.OpcodeEnd,
		wasm.OpcodeEnd,
		wasm.OpcodeI32Const, 0x07,
		wasm.OpcodeEnd,
	)
	classes := translateForTest(t, m)
	f0 := findMethod(t, classes[0], "f0")
	require.True(t, bytes.Contains(f0.Code.Body, []byte{jvm.OpTableSwitch}),
		"expected a tableswitch in the body")
}

func TestTranslateMultiValue(t *testing.T) {
	ft := &wasm.FunctionType{
		Results: []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI64, wasm.ValueTypeF32},
	}
	m := funcModule("mv", ft, nil,
		wasm.OpcodeI32Const, 0x01,
		wasm.OpcodeI64Const, 0x02,
		wasm.OpcodeF32Const, 0x00, 0x00, 0x40, 0x40, // 3.0f
		wasm.OpcodeEnd,
	)
	classes := translateForTest(t, m)
	main := classes[0]

	mv := findMethod(t, main, "mv")
	require.Equal(t, "()[Ljava/lang/Object;", mv.Descriptor.String())

	f0 := findMethod(t, main, "f0")
	require.Equal(t, "(Lcom/example/Module;)[Ljava/lang/Object;", f0.Descriptor.String())
	// The epilogue builds a three-element boxed array.
	require.True(t, bytes.Contains(f0.Code.Body, []byte{jvm.OpANewArray}[:1]))
	require.Equal(t, jvm.OpAReturn, f0.Code.Body[len(f0.Code.Body)-1])
}

func TestTranslateImports(t *testing.T) {
	m := &wasm.Module{
		TypeSection: []*wasm.FunctionType{{Results: []wasm.ValueType{wasm.ValueTypeI32}}},
		ImportSection: []*wasm.Import{
			{Kind: wasm.ImportKindGlobal, Module: "env", Name: "g",
				DescGlobal: &wasm.GlobalType{ValType: wasm.ValueTypeI32, Mutable: true}},
			{Kind: wasm.ImportKindMemory, Module: "env", Name: "mem",
				DescMem: &wasm.MemoryType{Min: 1}},
		},
		FunctionSection: []wasm.Index{0},
		CodeSection: []*wasm.Code{{Body: []byte{
			wasm.OpcodeGlobalGet, 0x00,
			wasm.OpcodeEnd,
		}}},
		ExportSection: map[string]*wasm.Export{
			"readg": {Name: "readg", Kind: wasm.ExportKindFunc, Index: 0},
		},
	}
	classes := translateForTest(t, m)
	main := classes[0]

	// Imported entities are held as opaque objects plus cached access handles.
	for _, field := range []string{"g0", "gget0", "gset0", "m0", "mget0", "mset0"} {
		require.True(t, hasField(main, field), "missing field %s", field)
	}
	require.True(t, hasMethod(main, "glb$get_0"))
	require.True(t, hasMethod(main, "glb$set_0"))
	require.True(t, hasMethod(main, "mem$buf_0"))
}

func TestTranslateCallIndirect(t *testing.T) {
	max := uint32(10)
	m := &wasm.Module{
		TypeSection: []*wasm.FunctionType{
			{Params: []wasm.ValueType{wasm.ValueTypeI32}, Results: []wasm.ValueType{wasm.ValueTypeI32}},
		},
		FunctionSection: []wasm.Index{0},
		TableSection: []*wasm.TableType{
			{ElemType: wasm.ValueTypeFuncref, Limit: &wasm.LimitsType{Min: 2, Max: &max}},
		},
		ElementSection: []*wasm.ElementSegment{
			{TableIndex: 0, OffsetExpr: &wasm.ConstantExpression{
				Opcode: wasm.OpcodeI32Const, Data: []byte{0x00}}, Init: []wasm.Index{0}},
		},
		CodeSection: []*wasm.Code{{Body: []byte{
			wasm.OpcodeLocalGet, 0x00,
			wasm.OpcodeLocalGet, 0x00,
			wasm.OpcodeCallIndirect, 0x00, 0x00,
			wasm.OpcodeEnd,
		}}},
		ExportSection: map[string]*wasm.Export{
			"dispatch": {Name: "dispatch", Kind: wasm.ExportKindFunc, Index: 0},
		},
	}
	classes := translateForTest(t, m)
	main := classes[0]

	require.True(t, hasMethod(main, "tbl$get_0"))
	require.True(t, hasMethod(main, "call$0"))
	require.True(t, hasField(main, "funcs"))

	tbl := findClass(t, classes, testClass+"$TableFunc")
	require.True(t, hasField(tbl, "table"))
}

func TestTranslateControlFlow(t *testing.T) {
	t.Run("if else", func(t *testing.T) {
		ft := &wasm.FunctionType{
			Params:  []wasm.ValueType{wasm.ValueTypeI32},
			Results: []wasm.ValueType{wasm.ValueTypeI32},
		}
		m := funcModule("choose", ft, nil,
			wasm.OpcodeLocalGet, 0x00,
			wasm.OpcodeIf, 0x7f,
			wasm.OpcodeI32Const, 0x01,
			wasm.OpcodeElse,
			wasm.OpcodeI32Const, 0x02,
			wasm.OpcodeEnd,
			wasm.OpcodeEnd,
		)
		classes := translateForTest(t, m)
		f0 := findMethod(t, classes[0], "f0")
		require.Equal(t, jvm.OpIfEq, f0.Code.Body[1])
		require.Equal(t, jvm.OpIReturn, f0.Code.Body[len(f0.Code.Body)-1])
	})

	t.Run("loop with backward branch", func(t *testing.T) {
		ft := &wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32}}
		m := funcModule("spin", ft, nil,
			wasm.OpcodeLoop, 0x40,
			wasm.OpcodeLocalGet, 0x00,
			wasm.OpcodeBrIf, 0x00,
			wasm.OpcodeEnd,
			wasm.OpcodeEnd,
		)
		classes := translateForTest(t, m)
		f0 := findMethod(t, classes[0], "f0")
		// iload_0 then a conditional branch backwards to offset 0
		require.Equal(t, []byte{jvm.OpILoad0, jvm.OpIfNe, 0xff, 0xff, jvm.OpReturn}, f0.Code.Body)
	})

	t.Run("unreachable", func(t *testing.T) {
		ft := &wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeI32}}
		m := funcModule("dead", ft, nil,
			wasm.OpcodeUnreachable,
			wasm.OpcodeEnd,
		)
		classes := translateForTest(t, m)
		f0 := findMethod(t, classes[0], "f0")
		// a trap call, then aconst_null; athrow closing the dead tail: no
		// return is emitted because the trap never returns
		require.Equal(t, jvm.OpInvokeStatic, f0.Code.Body[1])
	})
}

func TestTranslateSelect(t *testing.T) {
	ft := &wasm.FunctionType{
		Params:  []wasm.ValueType{wasm.ValueTypeI64, wasm.ValueTypeI64, wasm.ValueTypeI32},
		Results: []wasm.ValueType{wasm.ValueTypeI64},
	}
	m := funcModule("pick", ft, nil,
		wasm.OpcodeLocalGet, 0x00,
		wasm.OpcodeLocalGet, 0x02,
		wasm.OpcodeLocalGet, 0x04,
		wasm.OpcodeSelect,
		wasm.OpcodeEnd,
	)
	// local indices above are wasm locals 0,1,2 -- slots differ
	m.CodeSection[0].Body = []byte{
		wasm.OpcodeLocalGet, 0x00,
		wasm.OpcodeLocalGet, 0x01,
		wasm.OpcodeLocalGet, 0x02,
		wasm.OpcodeSelect,
		wasm.OpcodeEnd,
	}
	classes := translateForTest(t, m)
	f0 := findMethod(t, classes[0], "f0")
	// wide select uses the dup2_x2 shuffle on the kept-top path
	require.True(t, bytes.Contains(f0.Code.Body, []byte{jvm.OpDup2X2, jvm.OpPop2, jvm.OpPop2}))
}

func TestTranslateLimitErrors(t *testing.T) {
	t.Run("memory too large", func(t *testing.T) {
		m := &wasm.Module{MemorySection: []*wasm.MemoryType{{Min: 40000}}}
		_, err := Translate(m, Config{ClassName: testClass})
		te, ok := AsError(err)
		require.True(t, ok)
		require.Equal(t, ErrKindLimitExceeded, te.Kind)
	})
	t.Run("oversized maximum is tolerated", func(t *testing.T) {
		max := uint32(65536) // 4 GiB worth of pages, beyond the 31-bit cap
		m := &wasm.Module{MemorySection: []*wasm.MemoryType{{Min: 1, Max: &max}}}
		_, err := Translate(m, Config{ClassName: testClass})
		require.NoError(t, err)
	})
}

func TestTranslateUnsupportedInstruction(t *testing.T) {
	m := funcModule("bad", &wasm.FunctionType{}, nil,
		0xfd, 0x00, // SIMD prefix: not implemented
		wasm.OpcodeEnd,
	)
	_, err := Translate(m, Config{ClassName: testClass})
	te, ok := AsError(err)
	require.True(t, ok)
	require.Equal(t, ErrKindUnsupported, te.Kind)
}

func TestTranslateDeterminism(t *testing.T) {
	build := func() *wasm.Module {
		return &wasm.Module{
			TypeSection:     []*wasm.FunctionType{i32x2toI32()},
			FunctionSection: []wasm.Index{0},
			MemorySection:   []*wasm.MemoryType{{Min: 1}},
			GlobalSection: []*wasm.Global{
				{Type: &wasm.GlobalType{ValType: wasm.ValueTypeI32, Mutable: true},
					Init: &wasm.ConstantExpression{Opcode: wasm.OpcodeI32Const, Data: []byte{0x2a}}},
			},
			DataSection: []*wasm.DataSegment{
				{OffsetExpr: &wasm.ConstantExpression{Opcode: wasm.OpcodeI32Const, Data: []byte{0x00}},
					Init: []byte("hello\x00\xff")},
			},
			CodeSection: []*wasm.Code{{Body: []byte{
				wasm.OpcodeLocalGet, 0x00,
				wasm.OpcodeLocalGet, 0x01,
				wasm.OpcodeI32Add,
				wasm.OpcodeEnd,
			}}},
			ExportSection: map[string]*wasm.Export{
				"add": {Name: "add", Kind: wasm.ExportKindFunc, Index: 0},
				"g":   {Name: "g", Kind: wasm.ExportKindGlobal, Index: 0},
			},
		}
	}

	encodeAll := func(classes []*jvm.ClassFile) [][]byte {
		var ret [][]byte
		for _, c := range classes {
			bs, err := c.Encode()
			require.NoError(t, err)
			ret = append(ret, bs)
		}
		return ret
	}

	first := encodeAll(translateForTest(t, build()))
	second := encodeAll(translateForTest(t, build()))
	require.Equal(t, first, second)
}

func TestTrapKindStrings(t *testing.T) {
	// The identifiers are stable: generated trap messages and tests match on
	// them.
	for kind, want := range map[TrapKind]string{
		TrapUnreachable:                "unreachable",
		TrapIntegerDivideByZero:        "integer divide by zero",
		TrapIntegerOverflow:            "integer overflow",
		TrapInvalidConversionToInteger: "invalid conversion to integer",
		TrapMemoryOutOfBounds:          "out of bounds memory access",
		TrapTableOutOfBounds:           "invalid table access",
		TrapIndirectCallTypeMismatch:   "indirect call type mismatch",
		TrapNullFunctionReference:      "null function reference",
		TrapDataSegmentOutOfBounds:     "out of bounds data segment",
		TrapElementSegmentOutOfBounds:  "out of bounds element segment",
	} {
		require.Equal(t, want, kind.String())
	}
}
