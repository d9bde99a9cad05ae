package jvm

import (
	"encoding/binary"
	"fmt"
)

// Label identifies a position in a method body that branches can target
// before it is placed. Labels are allocated by CodeBuilder.NewLabel.
type Label int

type labelInfo struct {
	// pos is the bytecode offset of the label, or -1 while unplaced.
	pos int
	// depth is the operand-stack slot count at the label, or -1 while unknown.
	depth int
}

type patch struct {
	// site is the offset of the offset operand to fill in.
	site int
	// origin is the offset of the branch opcode the jump is relative to.
	origin int
	label  Label
	// wide is true for the 4-byte offsets of tableswitch.
	wide bool
}

// CodeBuilder assembles one method body. It tracks the operand-stack slot
// count (for max_stack) and the highest touched local (for max_locals), and
// resolves forward branches when Finish is called.
//
// The builder trusts its caller: it does not verify that the instruction
// sequence is type-correct. The translator's abstract operand stack is the
// authority on typing.
type CodeBuilder struct {
	pool *ConstantPool
	buf  []byte

	stack     int
	maxStack  int
	maxLocals int

	labels  []labelInfo
	patches []patch

	// suppressed is set while the translator is in unreachable code: all
	// emission becomes a no-op so dead instruction sequences never reach the
	// method body.
	suppressed bool

	err error
}

func NewCodeBuilder(pool *ConstantPool) *CodeBuilder {
	return &CodeBuilder{pool: pool}
}

// SetSuppressed toggles dead-code suppression.
func (c *CodeBuilder) SetSuppressed(on bool) { c.suppressed = on }

// Suppressed returns whether emission is currently suppressed.
func (c *CodeBuilder) Suppressed() bool { return c.suppressed }

// Offset returns the current bytecode length.
func (c *CodeBuilder) Offset() int { return len(c.buf) }

// StackDepth returns the current operand-stack slot count.
func (c *CodeBuilder) StackDepth() int { return c.stack }

// SetStackDepth overrides the tracked operand-stack slot count. Used when
// control flow resumes at a label whose depth differs from the fallthrough.
func (c *CodeBuilder) SetStackDepth(n int) {
	c.stack = n
	if n > c.maxStack {
		c.maxStack = n
	}
}

// ReserveLocals ensures max_locals covers slots [0, n).
func (c *CodeBuilder) ReserveLocals(n int) {
	if n > c.maxLocals {
		c.maxLocals = n
	}
}

func (c *CodeBuilder) fail(format string, args ...interface{}) {
	if c.err == nil {
		c.err = fmt.Errorf(format, args...)
	}
}

func (c *CodeBuilder) adjust(delta int) {
	c.stack += delta
	if c.stack > c.maxStack {
		c.maxStack = c.stack
	}
	if c.stack < 0 {
		// Should never happen: the translator's abstract stack keeps this
		// non-negative. Defer to Finish to report.
		c.fail("operand stack underflow at offset %d", len(c.buf))
	}
}

func (c *CodeBuilder) raw(bs ...byte) {
	c.buf = append(c.buf, bs...)
}

func (c *CodeBuilder) u16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	c.raw(b[:]...)
}

func (c *CodeBuilder) u32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	c.raw(b[:]...)
}

// Insn emits a plain instruction with no operands.
func (c *CodeBuilder) Insn(op byte) {
	if c.suppressed {
		return
	}
	delta, ok := stackDelta[op]
	if !ok {
		c.fail("instruction %#x requires a dedicated emitter", op)
		return
	}
	c.adjust(delta)
	c.raw(op)
}

// NewLabel allocates an unplaced label.
func (c *CodeBuilder) NewLabel() Label {
	c.labels = append(c.labels, labelInfo{pos: -1, depth: -1})
	return Label(len(c.labels) - 1)
}

// PlaceLabel pins the label at the current offset. If a branch to the label
// recorded an operand-stack depth, the tracked depth is reset to it, which
// makes labels the resynchronization points after unconditional control
// transfers.
//
// Note: labels are placed even while suppressed; a label placement is what
// ends an unreachable region.
func (c *CodeBuilder) PlaceLabel(l Label) {
	li := &c.labels[l]
	li.pos = len(c.buf)
	if li.depth >= 0 {
		c.SetStackDepth(li.depth)
	} else {
		li.depth = c.stack
	}
}

// Branch emits a conditional or unconditional 2-byte-offset branch.
func (c *CodeBuilder) Branch(op byte, l Label) {
	if c.suppressed {
		return
	}
	delta, ok := branchDelta[op]
	if !ok {
		c.fail("not a branch opcode: %#x", op)
		return
	}
	origin := len(c.buf)
	c.adjust(delta)
	c.mergeLabelDepth(l)
	c.raw(op)
	c.patches = append(c.patches, patch{site: len(c.buf), origin: origin, label: l})
	c.u16(0)
}

func (c *CodeBuilder) mergeLabelDepth(l Label) {
	li := &c.labels[l]
	if li.depth < 0 {
		li.depth = c.stack
	} else if li.depth != c.stack {
		c.fail("operand stack depth mismatch at label %d: %d != %d", l, li.depth, c.stack)
	}
}

// TableSwitch emits a tableswitch over [low, low+len(targets)) with the given
// default target. The selector is popped.
func (c *CodeBuilder) TableSwitch(low int32, def Label, targets []Label) {
	if c.suppressed {
		return
	}
	origin := len(c.buf)
	c.adjust(-1)
	c.raw(OpTableSwitch)
	for len(c.buf)%4 != 0 {
		c.raw(0)
	}
	c.mergeLabelDepth(def)
	c.patches = append(c.patches, patch{site: len(c.buf), origin: origin, label: def, wide: true})
	c.u32(0)
	c.u32(uint32(low))
	c.u32(uint32(low + int32(len(targets)) - 1))
	for _, t := range targets {
		c.mergeLabelDepth(t)
		c.patches = append(c.patches, patch{site: len(c.buf), origin: origin, label: t, wide: true})
		c.u32(0)
	}
}

// ConstInt pushes an int constant using the shortest encoding.
func (c *CodeBuilder) ConstInt(v int32) {
	if c.suppressed {
		return
	}
	c.adjust(1)
	switch {
	case v >= -1 && v <= 5:
		c.raw(OpIConst0 + byte(v))
	case v >= -128 && v <= 127:
		c.raw(OpBIPush, byte(v))
	case v >= -32768 && v <= 32767:
		c.raw(OpSIPush)
		c.u16(uint16(v))
	default:
		c.ldc(c.pool.Integer(v))
	}
}

// ConstLong pushes a long constant.
func (c *CodeBuilder) ConstLong(v int64) {
	if c.suppressed {
		return
	}
	c.adjust(2)
	switch v {
	case 0:
		c.raw(OpLConst0)
	case 1:
		c.raw(OpLConst1)
	default:
		c.raw(OpLdc2W)
		c.u16(c.pool.Long(v))
	}
}

// ConstFloat pushes a float constant. It always loads through the constant
// pool and never uses the f*const short forms, so -0.0 keeps its sign bit.
func (c *CodeBuilder) ConstFloat(v float32) {
	if c.suppressed {
		return
	}
	c.adjust(1)
	c.ldc(c.pool.Float(v))
}

// ConstDouble pushes a double constant.
func (c *CodeBuilder) ConstDouble(v float64) {
	if c.suppressed {
		return
	}
	c.adjust(2)
	c.raw(OpLdc2W)
	c.u16(c.pool.Double(v))
}

// ConstString pushes a String constant.
func (c *CodeBuilder) ConstString(s string) {
	if c.suppressed {
		return
	}
	c.adjust(1)
	c.ldc(c.pool.String(s))
}

// ConstMethodType pushes a MethodType constant.
func (c *CodeBuilder) ConstMethodType(d MethodDescriptor) {
	if c.suppressed {
		return
	}
	c.adjust(1)
	c.ldc(c.pool.MethodType(d))
}

// ConstMethodHandleStatic pushes a MethodHandle constant referencing a static
// method.
func (c *CodeBuilder) ConstMethodHandleStatic(class, name string, d MethodDescriptor) {
	if c.suppressed {
		return
	}
	c.adjust(1)
	c.ldc(c.pool.MethodHandleStatic(class, name, d))
}

func (c *CodeBuilder) ldc(idx uint16) {
	if idx <= 0xff {
		c.raw(OpLdc, byte(idx))
	} else {
		c.raw(OpLdcW)
		c.u16(idx)
	}
}

// Load emits a local-variable load of the given type.
func (c *CodeBuilder) Load(t FieldType, slot int) {
	if c.suppressed {
		return
	}
	c.localInsn(t, slot, OpILoad, OpLLoad, OpFLoad, OpDLoad, OpALoad,
		OpILoad0, OpLLoad0, OpFLoad0, OpDLoad0, OpALoad0)
	c.adjust(t.SlotWidth())
	c.ReserveLocals(slot + t.SlotWidth())
}

// Store emits a local-variable store of the given type.
func (c *CodeBuilder) Store(t FieldType, slot int) {
	if c.suppressed {
		return
	}
	c.localInsn(t, slot, OpIStore, OpLStore, OpFStore, OpDStore, OpAStore,
		OpIStore0, OpLStore0, OpFStore0, OpDStore0, OpAStore0)
	c.adjust(-t.SlotWidth())
	c.ReserveLocals(slot + t.SlotWidth())
}

func (c *CodeBuilder) localInsn(t FieldType, slot int, i, l, f, d, a, i0, l0, f0, d0, a0 byte) {
	var op, op0 byte
	switch t {
	case TypeLong:
		op, op0 = l, l0
	case TypeFloat:
		op, op0 = f, f0
	case TypeDouble:
		op, op0 = d, d0
	default:
		if t.IsReference() {
			op, op0 = a, a0
		} else {
			op, op0 = i, i0
		}
	}
	switch {
	case slot < 4:
		c.raw(op0 + byte(slot))
	case slot <= 0xff:
		c.raw(op, byte(slot))
	default:
		c.raw(OpWide, op)
		c.u16(uint16(slot))
	}
}

// IInc increments a local int slot in place.
func (c *CodeBuilder) IInc(slot, delta int) {
	if c.suppressed {
		return
	}
	if slot <= 0xff && delta >= -128 && delta <= 127 {
		c.raw(OpIInc, byte(slot), byte(int8(delta)))
	} else {
		c.raw(OpWide, OpIInc)
		c.u16(uint16(slot))
		c.u16(uint16(int16(delta)))
	}
	c.ReserveLocals(slot + 1)
}

// GetField emits getfield.
func (c *CodeBuilder) GetField(class, name string, t FieldType) {
	if c.suppressed {
		return
	}
	c.adjust(t.SlotWidth() - 1)
	c.raw(OpGetField)
	c.u16(c.pool.Fieldref(class, name, t))
}

// PutField emits putfield.
func (c *CodeBuilder) PutField(class, name string, t FieldType) {
	if c.suppressed {
		return
	}
	c.adjust(-t.SlotWidth() - 1)
	c.raw(OpPutField)
	c.u16(c.pool.Fieldref(class, name, t))
}

// GetStatic emits getstatic.
func (c *CodeBuilder) GetStatic(class, name string, t FieldType) {
	if c.suppressed {
		return
	}
	c.adjust(t.SlotWidth())
	c.raw(OpGetStatic)
	c.u16(c.pool.Fieldref(class, name, t))
}

// PutStatic emits putstatic.
func (c *CodeBuilder) PutStatic(class, name string, t FieldType) {
	if c.suppressed {
		return
	}
	c.adjust(-t.SlotWidth())
	c.raw(OpPutStatic)
	c.u16(c.pool.Fieldref(class, name, t))
}

// InvokeStatic emits invokestatic.
func (c *CodeBuilder) InvokeStatic(class, name string, d MethodDescriptor) {
	if c.suppressed {
		return
	}
	c.adjust(d.ResultSlots() - d.ParamSlots())
	c.raw(OpInvokeStatic)
	c.u16(c.pool.Methodref(class, name, d))
}

// InvokeVirtual emits invokevirtual.
func (c *CodeBuilder) InvokeVirtual(class, name string, d MethodDescriptor) {
	if c.suppressed {
		return
	}
	c.adjust(d.ResultSlots() - d.ParamSlots() - 1)
	c.raw(OpInvokeVirtual)
	c.u16(c.pool.Methodref(class, name, d))
}

// InvokeSpecial emits invokespecial, used for constructors.
func (c *CodeBuilder) InvokeSpecial(class, name string, d MethodDescriptor) {
	if c.suppressed {
		return
	}
	c.adjust(d.ResultSlots() - d.ParamSlots() - 1)
	c.raw(OpInvokeSpecial)
	c.u16(c.pool.Methodref(class, name, d))
}

// InvokeInterface emits invokeinterface.
func (c *CodeBuilder) InvokeInterface(class, name string, d MethodDescriptor) {
	if c.suppressed {
		return
	}
	argSlots := d.ParamSlots() + 1
	c.adjust(d.ResultSlots() - argSlots)
	c.raw(OpInvokeInterface)
	c.u16(c.pool.InterfaceMethodref(class, name, d))
	c.raw(byte(argSlots), 0)
}

// New emits new for the given class. The reference is uninitialized until
// the matching InvokeSpecial of a constructor.
func (c *CodeBuilder) New(class string) {
	if c.suppressed {
		return
	}
	c.adjust(1)
	c.raw(OpNew)
	c.u16(c.pool.Class(class))
}

// ANewArray emits anewarray of the given component class or array descriptor.
func (c *CodeBuilder) ANewArray(componentInternalName string) {
	if c.suppressed {
		return
	}
	c.raw(OpANewArray)
	c.u16(c.pool.Class(componentInternalName))
}

// CheckCast emits checkcast.
func (c *CodeBuilder) CheckCast(t FieldType) {
	if c.suppressed {
		return
	}
	c.raw(OpCheckCast)
	c.u16(c.pool.Class(t.InternalName()))
}

// Return emits the return instruction matching the given type; an empty type
// means void.
func (c *CodeBuilder) Return(t FieldType) {
	if c.suppressed {
		return
	}
	switch t {
	case "":
		c.raw(OpReturn)
	case TypeLong:
		c.adjust(-2)
		c.raw(OpLReturn)
	case TypeFloat:
		c.adjust(-1)
		c.raw(OpFReturn)
	case TypeDouble:
		c.adjust(-2)
		c.raw(OpDReturn)
	default:
		if t.IsReference() {
			c.adjust(-1)
			c.raw(OpAReturn)
		} else {
			c.adjust(-1)
			c.raw(OpIReturn)
		}
	}
}

// Finish patches branch offsets and returns the method body.
func (c *CodeBuilder) Finish() (body []byte, maxStack, maxLocals int, err error) {
	if c.err != nil {
		return nil, 0, 0, c.err
	}
	for _, p := range c.patches {
		target := c.labels[p.label].pos
		if target < 0 {
			return nil, 0, 0, fmt.Errorf("label %d branched to but never placed", p.label)
		}
		offset := target - p.origin
		if p.wide {
			binary.BigEndian.PutUint32(c.buf[p.site:], uint32(int32(offset)))
		} else {
			if offset > 32767 || offset < -32768 {
				return nil, 0, 0, fmt.Errorf("branch offset %d exceeds 16 bits", offset)
			}
			binary.BigEndian.PutUint16(c.buf[p.site:], uint16(int16(offset)))
		}
	}
	return c.buf, c.maxStack, c.maxLocals, nil
}
