package jvm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
)

// ClassFile is the descriptor of one generated class: everything a serializer
// needs to produce class-file bytes. Each ClassFile owns its constant pool;
// bytecode emitted through NewMethod embeds indexes into that pool.
type ClassFile struct {
	AccessFlags uint16
	// Name is the class name in internal (slash-separated) form.
	Name       string
	SuperName  string
	Interfaces []string
	Fields     []*Field
	Methods    []*Method
	Pool       *ConstantPool
}

type Field struct {
	AccessFlags uint16
	Name        string
	Descriptor  FieldType
}

type Method struct {
	AccessFlags uint16
	Name        string
	Descriptor  MethodDescriptor
	Code        *Code

	builder *CodeBuilder
}

// Code is an assembled method body.
type Code struct {
	MaxStack  int
	MaxLocals int
	Body      []byte
}

// ClassFileVersion is the emitted major version (52 = Java 8), the earliest
// release with every runtime facility the generated code leans on
// (MethodHandle/MethodType constants, Integer.divideUnsigned and friends).
const ClassFileVersion = 52

// NewClassFile starts a public class descriptor with the given superclass.
func NewClassFile(name, superName string) *ClassFile {
	c := &ClassFile{
		AccessFlags: AccPublic | AccSuper,
		Name:        name,
		SuperName:   superName,
		Pool:        NewConstantPool(),
	}
	// Request the self-describing entries up front so their indexes do not
	// depend on method emission order.
	c.Pool.Class(name)
	c.Pool.Class(superName)
	return c
}

// AddField appends a field descriptor.
func (c *ClassFile) AddField(flags uint16, name string, t FieldType) *Field {
	f := &Field{AccessFlags: flags, Name: name, Descriptor: t}
	c.Fields = append(c.Fields, f)
	return f
}

// NewMethod starts a method whose body is assembled through the returned
// method's Builder. FinishMethod must be called before Encode.
func (c *ClassFile) NewMethod(flags uint16, name string, d MethodDescriptor) *Method {
	m := &Method{AccessFlags: flags, Name: name, Descriptor: d, builder: NewCodeBuilder(c.Pool)}
	// Parameters occupy the leading local slots; a receiver occupies slot 0
	// of instance methods.
	slots := d.ParamSlots()
	if flags&AccStatic == 0 {
		slots++
	}
	m.builder.ReserveLocals(slots)
	c.Methods = append(c.Methods, m)
	return m
}

// Builder returns the method's bytecode assembler.
func (m *Method) Builder() *CodeBuilder { return m.builder }

// FinishMethod seals the method body.
func (m *Method) FinishMethod() error {
	body, maxStack, maxLocals, err := m.builder.Finish()
	if err != nil {
		return fmt.Errorf("method %s%s: %w", m.Name, m.Descriptor, err)
	}
	m.Code = &Code{MaxStack: maxStack, MaxLocals: maxLocals, Body: body}
	return nil
}

// Encode serializes the descriptor to class-file bytes.
//
// Note: StackMapTable frames are a serializer concern left to downstream
// tooling; the emitted classes carry max_stack/max_locals computed during
// assembly.
func (c *ClassFile) Encode() ([]byte, error) {
	pool := c.Pool

	// Resolve every pool request before the pool is written: attribute and
	// member names also live in the pool.
	thisClass := pool.Class(c.Name)
	superClass := pool.Class(c.SuperName)
	ifaceIdx := make([]uint16, len(c.Interfaces))
	for i, iface := range c.Interfaces {
		ifaceIdx[i] = pool.Class(iface)
	}
	type memberIdx struct{ name, desc uint16 }
	fieldIdx := make([]memberIdx, len(c.Fields))
	for i, f := range c.Fields {
		fieldIdx[i] = memberIdx{pool.Utf8(f.Name), pool.Utf8(string(f.Descriptor))}
	}
	methodIdx := make([]memberIdx, len(c.Methods))
	var codeAttr uint16
	for i, m := range c.Methods {
		if m.Code == nil {
			return nil, fmt.Errorf("method %s not finished", m.Name)
		}
		methodIdx[i] = memberIdx{pool.Utf8(m.Name), pool.Utf8(m.Descriptor.String())}
		codeAttr = pool.Utf8("Code")
	}

	buf := new(bytes.Buffer)
	w16 := func(v uint16) {
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], v)
		buf.Write(b[:])
	}
	w32 := func(v uint32) {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], v)
		buf.Write(b[:])
	}

	w32(0xcafebabe)
	w16(0) // minor
	w16(ClassFileVersion)
	w16(pool.Count())
	pool.Encode(buf)
	w16(c.AccessFlags)
	w16(thisClass)
	w16(superClass)
	w16(uint16(len(ifaceIdx)))
	for _, idx := range ifaceIdx {
		w16(idx)
	}

	w16(uint16(len(c.Fields)))
	for i := range c.Fields {
		w16(c.Fields[i].AccessFlags)
		w16(fieldIdx[i].name)
		w16(fieldIdx[i].desc)
		w16(0) // no attributes
	}

	w16(uint16(len(c.Methods)))
	for i, m := range c.Methods {
		w16(m.AccessFlags)
		w16(methodIdx[i].name)
		w16(methodIdx[i].desc)
		w16(1) // the Code attribute
		w16(codeAttr)
		// attribute_length = 2 (max_stack) + 2 (max_locals) + 4 (code_length)
		// + code + 2 (exception_table_length) + 2 (attributes_count)
		w32(uint32(12 + len(m.Code.Body)))
		w16(uint16(m.Code.MaxStack))
		w16(uint16(m.Code.MaxLocals))
		w32(uint32(len(m.Code.Body)))
		buf.Write(m.Code.Body)
		w16(0) // exception table
		w16(0) // code attributes
	}

	w16(0) // class attributes
	return buf.Bytes(), nil
}

// SortClassFiles orders descriptors by class name for deterministic output
// sets.
func SortClassFiles(classes []*ClassFile) {
	sort.Slice(classes, func(i, j int) bool { return classes[i].Name < classes[j].Name })
}
