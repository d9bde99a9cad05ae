// Package jvm models JVM class files at the level the translator needs:
// field and method descriptors, a constant-pool builder, a bytecode assembler
// with labels, and a class-file serializer.
//
// The model is deliberately small. It covers what generated code uses and
// nothing else: no inner-class metadata, no generics signatures, no debug
// attributes.
// See https://docs.oracle.com/javase/specs/jvms/se8/html/jvms-4.html
package jvm

import "strings"

// FieldType is a JVM field descriptor such as "I" or "Ljava/lang/Object;".
// See https://docs.oracle.com/javase/specs/jvms/se8/html/jvms-4.html#jvms-4.3.2
type FieldType string

const (
	TypeInt     FieldType = "I"
	TypeLong    FieldType = "J"
	TypeFloat   FieldType = "F"
	TypeDouble  FieldType = "D"
	TypeByte    FieldType = "B"
	TypeShort   FieldType = "S"
	TypeBoolean FieldType = "Z"
	TypeChar    FieldType = "C"
)

// Well-known class names in internal (slash-separated) form.
const (
	ObjectClass           = "java/lang/Object"
	StringClass           = "java/lang/String"
	MethodHandleClass     = "java/lang/invoke/MethodHandle"
	MethodHandlesClass    = "java/lang/invoke/MethodHandles"
	LookupClass           = "java/lang/invoke/MethodHandles$Lookup"
	MethodTypeClass       = "java/lang/invoke/MethodType"
	ByteBufferClass       = "java/nio/ByteBuffer"
	ByteOrderClass        = "java/nio/ByteOrder"
	MapClass              = "java/util/Map"
	LinkedHashMapClass    = "java/util/LinkedHashMap"
	RuntimeExceptionClass = "java/lang/RuntimeException"
	IntegerClass          = "java/lang/Integer"
	LongClass             = "java/lang/Long"
	FloatClass            = "java/lang/Float"
	DoubleClass           = "java/lang/Double"
	MathClass             = "java/lang/Math"
	ClassClass            = "java/lang/Class"
	FieldClass            = "java/lang/reflect/Field"
)

// ObjectType returns the descriptor of a reference to the given class,
// e.g. ObjectType("java/lang/Object") == "Ljava/lang/Object;".
func ObjectType(internalName string) FieldType {
	return FieldType("L" + internalName + ";")
}

// ArrayOf returns the descriptor of an array of the given component type.
func ArrayOf(component FieldType) FieldType {
	return "[" + component
}

// SlotWidth returns how many operand-stack or local slots a value of this
// type occupies: 2 for long and double, otherwise 1.
func (t FieldType) SlotWidth() int {
	if t == TypeLong || t == TypeDouble {
		return 2
	}
	return 1
}

// IsReference returns true for class and array descriptors.
func (t FieldType) IsReference() bool {
	return len(t) > 0 && (t[0] == 'L' || t[0] == '[')
}

// InternalName returns the form usable as a checkcast/anewarray operand:
// the class name for "L...;" descriptors, the descriptor itself for arrays.
func (t FieldType) InternalName() string {
	s := string(t)
	if strings.HasPrefix(s, "L") && strings.HasSuffix(s, ";") {
		return s[1 : len(s)-1]
	}
	return s
}

// MethodDescriptor is a JVM method signature. An empty Result means void.
// See https://docs.oracle.com/javase/specs/jvms/se8/html/jvms-4.html#jvms-4.3.3
type MethodDescriptor struct {
	Params []FieldType
	Result FieldType
}

func (d MethodDescriptor) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for _, p := range d.Params {
		sb.WriteString(string(p))
	}
	sb.WriteByte(')')
	if d.Result == "" {
		sb.WriteByte('V')
	} else {
		sb.WriteString(string(d.Result))
	}
	return sb.String()
}

// ParamSlots returns the total slot width of the parameters, not counting a
// receiver.
func (d MethodDescriptor) ParamSlots() (n int) {
	for _, p := range d.Params {
		n += p.SlotWidth()
	}
	return
}

// ResultSlots returns the slot width of the result, zero for void.
func (d MethodDescriptor) ResultSlots() int {
	if d.Result == "" {
		return 0
	}
	return d.Result.SlotWidth()
}
