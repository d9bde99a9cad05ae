package jvm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Constant pool tags.
// See https://docs.oracle.com/javase/specs/jvms/se8/html/jvms-4.html#jvms-4.4
const (
	tagUtf8               byte = 1
	tagInteger            byte = 3
	tagFloat              byte = 4
	tagLong               byte = 5
	tagDouble             byte = 6
	tagClass              byte = 7
	tagString             byte = 8
	tagFieldref           byte = 9
	tagMethodref          byte = 10
	tagInterfaceMethodref byte = 11
	tagNameAndType        byte = 12
	tagMethodHandle       byte = 15
	tagMethodType         byte = 16
)

// Method handle reference kinds.
// See https://docs.oracle.com/javase/specs/jvms/se8/html/jvms-4.html#jvms-4.4.8
const (
	RefGetField         byte = 1
	RefGetStatic        byte = 2
	RefPutField         byte = 3
	RefPutStatic        byte = 4
	RefInvokeVirtual    byte = 5
	RefInvokeStatic     byte = 6
	RefInvokeSpecial    byte = 7
	RefNewInvokeSpecial byte = 8
	RefInvokeInterface  byte = 9
)

type constant struct {
	tag  byte
	str  string // tagUtf8
	i32  int32  // tagInteger
	f32  float32
	i64  int64
	f64  float64
	ref1 uint16 // first index operand, or the method handle's reference index
	ref2 uint16 // second index operand
	kind byte   // tagMethodHandle reference kind
}

// ConstantPool is an append-only, deduplicating constant pool builder.
// Entry indexes are stable once assigned, so bytecode can embed them while
// the pool is still growing. Identical request sequences produce identical
// pools, which keeps translation output deterministic.
type ConstantPool struct {
	// entries[0] is unused: constant pool indexes start at 1.
	entries []constant
	// next is the index the next entry receives. Long and double entries
	// consume two indexes.
	next  uint16
	cache map[string]uint16
}

func NewConstantPool() *ConstantPool {
	return &ConstantPool{next: 1, cache: map[string]uint16{}}
}

func (p *ConstantPool) add(key string, c constant) uint16 {
	if idx, ok := p.cache[key]; ok {
		return idx
	}
	idx := p.next
	p.entries = append(p.entries, c)
	if c.tag == tagLong || c.tag == tagDouble {
		p.next += 2
	} else {
		p.next++
	}
	p.cache[key] = idx
	return idx
}

func (p *ConstantPool) Utf8(s string) uint16 {
	return p.add("u:"+s, constant{tag: tagUtf8, str: s})
}

func (p *ConstantPool) Class(internalName string) uint16 {
	name := p.Utf8(internalName)
	return p.add(fmt.Sprintf("c:%d", name), constant{tag: tagClass, ref1: name})
}

func (p *ConstantPool) String(s string) uint16 {
	utf8 := p.Utf8(s)
	return p.add(fmt.Sprintf("s:%d", utf8), constant{tag: tagString, ref1: utf8})
}

func (p *ConstantPool) Integer(v int32) uint16 {
	return p.add(fmt.Sprintf("i:%d", v), constant{tag: tagInteger, i32: v})
}

func (p *ConstantPool) Float(v float32) uint16 {
	// Key by bit pattern so distinct NaNs and ±0 stay distinct.
	return p.add(fmt.Sprintf("f:%x", math.Float32bits(v)), constant{tag: tagFloat, f32: v})
}

func (p *ConstantPool) Long(v int64) uint16 {
	return p.add(fmt.Sprintf("l:%d", v), constant{tag: tagLong, i64: v})
}

func (p *ConstantPool) Double(v float64) uint16 {
	return p.add(fmt.Sprintf("d:%x", math.Float64bits(v)), constant{tag: tagDouble, f64: v})
}

func (p *ConstantPool) NameAndType(name, descriptor string) uint16 {
	n := p.Utf8(name)
	d := p.Utf8(descriptor)
	return p.add(fmt.Sprintf("nt:%d:%d", n, d), constant{tag: tagNameAndType, ref1: n, ref2: d})
}

func (p *ConstantPool) Fieldref(class, name string, t FieldType) uint16 {
	c := p.Class(class)
	nt := p.NameAndType(name, string(t))
	return p.add(fmt.Sprintf("fr:%d:%d", c, nt), constant{tag: tagFieldref, ref1: c, ref2: nt})
}

func (p *ConstantPool) Methodref(class, name string, d MethodDescriptor) uint16 {
	c := p.Class(class)
	nt := p.NameAndType(name, d.String())
	return p.add(fmt.Sprintf("mr:%d:%d", c, nt), constant{tag: tagMethodref, ref1: c, ref2: nt})
}

func (p *ConstantPool) InterfaceMethodref(class, name string, d MethodDescriptor) uint16 {
	c := p.Class(class)
	nt := p.NameAndType(name, d.String())
	return p.add(fmt.Sprintf("ir:%d:%d", c, nt), constant{tag: tagInterfaceMethodref, ref1: c, ref2: nt})
}

// MethodHandleStatic returns a CONSTANT_MethodHandle entry of kind
// REF_invokeStatic for the given method.
func (p *ConstantPool) MethodHandleStatic(class, name string, d MethodDescriptor) uint16 {
	mr := p.Methodref(class, name, d)
	return p.add(fmt.Sprintf("mh:%d:%d", RefInvokeStatic, mr),
		constant{tag: tagMethodHandle, kind: RefInvokeStatic, ref1: mr})
}

func (p *ConstantPool) MethodType(d MethodDescriptor) uint16 {
	desc := p.Utf8(d.String())
	return p.add(fmt.Sprintf("mt:%d", desc), constant{tag: tagMethodType, ref1: desc})
}

// Count returns the constant_pool_count value: one more than the highest
// assigned index.
func (p *ConstantPool) Count() uint16 {
	return p.next
}

// Encode writes the constant pool table, without the count, in class-file order.
func (p *ConstantPool) Encode(buf *bytes.Buffer) {
	for _, c := range p.entries {
		buf.WriteByte(c.tag)
		switch c.tag {
		case tagUtf8:
			b := encodeModifiedUTF8(c.str)
			var lenBuf [2]byte
			binary.BigEndian.PutUint16(lenBuf[:], uint16(len(b)))
			buf.Write(lenBuf[:])
			buf.Write(b)
		case tagInteger:
			var b [4]byte
			binary.BigEndian.PutUint32(b[:], uint32(c.i32))
			buf.Write(b[:])
		case tagFloat:
			var b [4]byte
			binary.BigEndian.PutUint32(b[:], math.Float32bits(c.f32))
			buf.Write(b[:])
		case tagLong:
			var b [8]byte
			binary.BigEndian.PutUint64(b[:], uint64(c.i64))
			buf.Write(b[:])
		case tagDouble:
			var b [8]byte
			binary.BigEndian.PutUint64(b[:], math.Float64bits(c.f64))
			buf.Write(b[:])
		case tagClass, tagString, tagMethodType:
			var b [2]byte
			binary.BigEndian.PutUint16(b[:], c.ref1)
			buf.Write(b[:])
		case tagFieldref, tagMethodref, tagInterfaceMethodref, tagNameAndType:
			var b [4]byte
			binary.BigEndian.PutUint16(b[:2], c.ref1)
			binary.BigEndian.PutUint16(b[2:], c.ref2)
			buf.Write(b[:])
		case tagMethodHandle:
			buf.WriteByte(c.kind)
			var b [2]byte
			binary.BigEndian.PutUint16(b[:], c.ref1)
			buf.Write(b[:])
		}
	}
}

// encodeModifiedUTF8 converts a Go string to the JVM's modified UTF-8: NUL is
// two bytes and supplementary characters are surrogate pairs encoded
// separately.
// See https://docs.oracle.com/javase/specs/jvms/se8/html/jvms-4.html#jvms-4.4.7
func encodeModifiedUTF8(s string) []byte {
	var out []byte
	for _, r := range s {
		switch {
		case r == 0:
			out = append(out, 0xc0, 0x80)
		case r < 0x80:
			out = append(out, byte(r))
		case r < 0x800:
			out = append(out, 0xc0|byte(r>>6), 0x80|byte(r&0x3f))
		case r < 0x10000:
			out = append(out, 0xe0|byte(r>>12), 0x80|byte((r>>6)&0x3f), 0x80|byte(r&0x3f))
		default:
			r -= 0x10000
			hi := 0xd800 | (r >> 10)
			lo := 0xdc00 | (r & 0x3ff)
			out = append(out,
				0xe0|byte(hi>>12), 0x80|byte((hi>>6)&0x3f), 0x80|byte(hi&0x3f),
				0xe0|byte(lo>>12), 0x80|byte((lo>>6)&0x3f), 0x80|byte(lo&0x3f))
		}
	}
	return out
}
