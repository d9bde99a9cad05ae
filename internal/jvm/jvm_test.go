package jvm

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFieldType(t *testing.T) {
	require.Equal(t, FieldType("Ljava/lang/Object;"), ObjectType(ObjectClass))
	require.Equal(t, FieldType("[Ljava/lang/Object;"), ArrayOf(ObjectType(ObjectClass)))

	require.Equal(t, 2, TypeLong.SlotWidth())
	require.Equal(t, 2, TypeDouble.SlotWidth())
	require.Equal(t, 1, TypeInt.SlotWidth())
	require.Equal(t, 1, ObjectType(ObjectClass).SlotWidth())

	require.True(t, ObjectType(ObjectClass).IsReference())
	require.True(t, ArrayOf(TypeInt).IsReference())
	require.False(t, TypeInt.IsReference())

	require.Equal(t, "java/lang/Object", ObjectType(ObjectClass).InternalName())
	require.Equal(t, "[I", ArrayOf(TypeInt).InternalName())
}

func TestMethodDescriptor(t *testing.T) {
	d := MethodDescriptor{Params: []FieldType{TypeInt, TypeLong}, Result: TypeInt}
	require.Equal(t, "(IJ)I", d.String())
	require.Equal(t, 3, d.ParamSlots())
	require.Equal(t, 1, d.ResultSlots())

	v := MethodDescriptor{}
	require.Equal(t, "()V", v.String())
	require.Equal(t, 0, v.ResultSlots())
}

func TestConstantPoolDedup(t *testing.T) {
	p := NewConstantPool()
	a := p.Utf8("hello")
	b := p.Utf8("hello")
	require.Equal(t, a, b)

	c1 := p.Class("java/lang/Object")
	c2 := p.Class("java/lang/Object")
	require.Equal(t, c1, c2)

	l1 := p.Long(42)
	next := p.Integer(7)
	// longs take two slots
	require.Equal(t, l1+2, next)
}

func TestConstantPoolEncode(t *testing.T) {
	p := NewConstantPool()
	p.Utf8("A")
	p.Integer(1)

	buf := new(bytes.Buffer)
	p.Encode(buf)
	require.Equal(t, []byte{
		1, 0, 1, 'A', // CONSTANT_Utf8 "A"
		3, 0, 0, 0, 1, // CONSTANT_Integer 1
	}, buf.Bytes())
	require.Equal(t, uint16(3), p.Count())
}

func TestModifiedUTF8(t *testing.T) {
	require.Equal(t, []byte{0xc0, 0x80}, encodeModifiedUTF8("\x00"))
	require.Equal(t, []byte{'a'}, encodeModifiedUTF8("a"))
	require.Equal(t, []byte{0xc3, 0xbf}, encodeModifiedUTF8("ÿ"))
}

func TestCodeBuilderConstants(t *testing.T) {
	p := NewConstantPool()
	b := NewCodeBuilder(p)
	b.ConstInt(0)
	b.ConstInt(100)
	b.ConstInt(1000)
	b.ConstInt(1 << 20)
	body, maxStack, _, err := b.Finish()
	require.NoError(t, err)
	require.Equal(t, 4, maxStack)

	require.Equal(t, OpIConst0, body[0])
	require.Equal(t, OpBIPush, body[1])
	require.Equal(t, OpSIPush, body[3])
	require.Equal(t, OpLdc, body[6])
}

func TestCodeBuilderBranchPatching(t *testing.T) {
	p := NewConstantPool()
	b := NewCodeBuilder(p)
	l := b.NewLabel()
	b.ConstInt(1)
	b.Branch(OpIfEq, l) // offset 1, 3 bytes
	b.ConstInt(2)
	b.Insn(OpPop)
	b.PlaceLabel(l) // offset 6
	b.Insn(OpNop)
	body, _, _, err := b.Finish()
	require.NoError(t, err)
	// branch at offset 1 jumps +5 to offset 6
	require.Equal(t, []byte{OpIConst1, OpIfEq, 0x00, 0x05, OpIConst2, OpPop, OpNop}, body)
}

func TestCodeBuilderUnplacedLabel(t *testing.T) {
	b := NewCodeBuilder(NewConstantPool())
	l := b.NewLabel()
	b.ConstInt(1)
	b.Branch(OpIfEq, l)
	_, _, _, err := b.Finish()
	require.Error(t, err)
}

func TestCodeBuilderTableSwitchAlignment(t *testing.T) {
	b := NewCodeBuilder(NewConstantPool())
	def := b.NewLabel()
	l0 := b.NewLabel()
	b.ConstInt(0)
	b.TableSwitch(0, def, []Label{l0})
	b.PlaceLabel(def)
	b.PlaceLabel(l0)
	b.Insn(OpNop)
	body, _, _, err := b.Finish()
	require.NoError(t, err)

	require.Equal(t, OpIConst0, body[0])
	require.Equal(t, OpTableSwitch, body[1])
	// padding to a 4-byte boundary after the opcode at offset 1
	require.Equal(t, []byte{0, 0}, body[2:4])
	// default offset is relative to the tableswitch opcode: the labels sit
	// at offset 20, right after the 19-byte switch that starts at offset 1
	require.Equal(t, []byte{0, 0, 0, 19}, body[4:8])
}

func TestCodeBuilderLocals(t *testing.T) {
	b := NewCodeBuilder(NewConstantPool())
	b.ConstLong(1)
	b.Store(TypeLong, 3)
	b.Load(TypeLong, 3)
	b.Insn(OpPop2)
	body, maxStack, maxLocals, err := b.Finish()
	require.NoError(t, err)
	require.Equal(t, 2, maxStack)
	require.Equal(t, 5, maxLocals)
	require.Equal(t, OpLConst1, body[0])
	require.Equal(t, OpLStore0+3, body[1])
}

func TestClassFileEncode(t *testing.T) {
	cls := NewClassFile("com/example/T", ObjectClass)
	cls.AddField(AccPublic, "x", TypeInt)

	m := cls.NewMethod(AccPublic|AccStatic, "id", MethodDescriptor{
		Params: []FieldType{TypeInt}, Result: TypeInt})
	b := m.Builder()
	b.Load(TypeInt, 0)
	b.Return(TypeInt)
	require.NoError(t, m.FinishMethod())

	bs, err := cls.Encode()
	require.NoError(t, err)
	require.Equal(t, []byte{0xca, 0xfe, 0xba, 0xbe}, bs[:4])
	// minor then major version
	require.Equal(t, []byte{0x00, 0x00, 0x00, ClassFileVersion}, bs[4:8])

	// the same class encodes identically
	bs2, err := cls.Encode()
	require.NoError(t, err)
	require.Equal(t, bs, bs2)
}

func TestClassFileEncodeUnfinishedMethod(t *testing.T) {
	cls := NewClassFile("com/example/T", ObjectClass)
	cls.NewMethod(AccPublic, "m", MethodDescriptor{})
	_, err := cls.Encode()
	require.Error(t, err)
}
