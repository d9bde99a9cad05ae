package translate

import (
	"errors"
	"fmt"

	"github.com/wasmlift/wasmlift/internal/jvm"
	"github.com/wasmlift/wasmlift/internal/wasm"
)

var errNotMemoryOpcode = errors.New("not a memory opcode")

func isMemoryOpcode(op wasm.Opcode) bool {
	return op >= wasm.OpcodeI32Load && op <= wasm.OpcodeI64Store32
}

// invokeHelper registers and calls a module-class static helper.
func (f *funcTranslator) invokeHelper(name string, params []jvm.FieldType, result jvm.FieldType) {
	f.mt.useHelper(name)
	f.b.InvokeStatic(f.mt.plan.moduleClass(), name, jvm.MethodDescriptor{Params: params, Result: result})
}

// handleMemoryAccess lowers the load/store families. Every access funnels
// through per-memory static helpers that compute the 64-bit effective
// address, bounds-check it against the buffer limit, and trap on violation.
func (f *funcTranslator) handleMemoryAccess(op wasm.Opcode) error {
	if !isMemoryOpcode(op) {
		return errNotMemoryOpcode
	}
	imm, err := f.readMemoryImmediate(wasm.InstructionName(op))
	if err != nil {
		return err
	}

	mod := f.mt.moduleType()
	loadDesc := func(result jvm.FieldType) ([]jvm.FieldType, jvm.FieldType) {
		return []jvm.FieldType{jvm.TypeInt, jvm.TypeInt, mod}, result
	}
	storeDesc := func(value jvm.FieldType) []jvm.FieldType {
		return []jvm.FieldType{jvm.TypeInt, value, jvm.TypeInt, mod}
	}

	load := func(helper string, result jvm.FieldType, produced wasm.ValueType) error {
		if err := f.popExpect(wasm.ValueTypeI32); err != nil {
			return err
		}
		f.b.ConstInt(int32(imm.offset))
		f.b.Load(mod, f.moduleSlot)
		p, r := loadDesc(result)
		f.invokeHelper(helper, p, r)
		f.push(produced)
		return nil
	}
	store := func(helper string, value jvm.FieldType, consumed wasm.ValueType, narrow func()) error {
		if err := f.popExpect(consumed); err != nil {
			return err
		}
		if err := f.popExpect(wasm.ValueTypeI32); err != nil {
			return err
		}
		if narrow != nil {
			narrow()
		}
		f.b.ConstInt(int32(imm.offset))
		f.b.Load(mod, f.moduleSlot)
		f.invokeHelper(helper, storeDesc(value), "")
		return nil
	}
	l2i := func() { f.b.Insn(jvm.OpL2I) }

	switch op {
	case wasm.OpcodeI32Load:
		return load("mem$ld32_0", jvm.TypeInt, wasm.ValueTypeI32)
	case wasm.OpcodeI64Load:
		return load("mem$ld64_0", jvm.TypeLong, wasm.ValueTypeI64)
	case wasm.OpcodeF32Load:
		return load("mem$ldf32_0", jvm.TypeFloat, wasm.ValueTypeF32)
	case wasm.OpcodeF64Load:
		return load("mem$ldf64_0", jvm.TypeDouble, wasm.ValueTypeF64)
	case wasm.OpcodeI32Load8S:
		return load("mem$ld8_0", jvm.TypeByte, wasm.ValueTypeI32)
	case wasm.OpcodeI32Load8U:
		if err := load("mem$ld8_0", jvm.TypeByte, wasm.ValueTypeI32); err != nil {
			return err
		}
		f.b.ConstInt(0xff)
		f.b.Insn(jvm.OpIAnd)
	case wasm.OpcodeI32Load16S:
		return load("mem$ld16_0", jvm.TypeShort, wasm.ValueTypeI32)
	case wasm.OpcodeI32Load16U:
		if err := load("mem$ld16_0", jvm.TypeShort, wasm.ValueTypeI32); err != nil {
			return err
		}
		f.b.Insn(jvm.OpI2C)
	case wasm.OpcodeI64Load8S:
		if err := load("mem$ld8_0", jvm.TypeByte, wasm.ValueTypeI64); err != nil {
			return err
		}
		f.b.Insn(jvm.OpI2L)
	case wasm.OpcodeI64Load8U:
		if err := load("mem$ld8_0", jvm.TypeByte, wasm.ValueTypeI64); err != nil {
			return err
		}
		f.b.ConstInt(0xff)
		f.b.Insn(jvm.OpIAnd)
		f.b.Insn(jvm.OpI2L)
	case wasm.OpcodeI64Load16S:
		if err := load("mem$ld16_0", jvm.TypeShort, wasm.ValueTypeI64); err != nil {
			return err
		}
		f.b.Insn(jvm.OpI2L)
	case wasm.OpcodeI64Load16U:
		if err := load("mem$ld16_0", jvm.TypeShort, wasm.ValueTypeI64); err != nil {
			return err
		}
		f.b.Insn(jvm.OpI2C)
		f.b.Insn(jvm.OpI2L)
	case wasm.OpcodeI64Load32S:
		if err := load("mem$ld32_0", jvm.TypeInt, wasm.ValueTypeI64); err != nil {
			return err
		}
		f.b.Insn(jvm.OpI2L)
	case wasm.OpcodeI64Load32U:
		if err := load("mem$ld32_0", jvm.TypeInt, wasm.ValueTypeI64); err != nil {
			return err
		}
		f.b.Insn(jvm.OpI2L)
		f.b.ConstLong(0xffffffff)
		f.b.Insn(jvm.OpLAnd)
	case wasm.OpcodeI32Store:
		return store("mem$st32_0", jvm.TypeInt, wasm.ValueTypeI32, nil)
	case wasm.OpcodeI64Store:
		return store("mem$st64_0", jvm.TypeLong, wasm.ValueTypeI64, nil)
	case wasm.OpcodeF32Store:
		return store("mem$stf32_0", jvm.TypeFloat, wasm.ValueTypeF32, nil)
	case wasm.OpcodeF64Store:
		return store("mem$stf64_0", jvm.TypeDouble, wasm.ValueTypeF64, nil)
	case wasm.OpcodeI32Store8:
		return store("mem$st8_0", jvm.TypeInt, wasm.ValueTypeI32, nil)
	case wasm.OpcodeI32Store16:
		return store("mem$st16_0", jvm.TypeInt, wasm.ValueTypeI32, nil)
	case wasm.OpcodeI64Store8:
		return store("mem$st8_0", jvm.TypeInt, wasm.ValueTypeI64, l2i)
	case wasm.OpcodeI64Store16:
		return store("mem$st16_0", jvm.TypeInt, wasm.ValueTypeI64, l2i)
	case wasm.OpcodeI64Store32:
		return store("mem$st32_0", jvm.TypeInt, wasm.ValueTypeI64, l2i)
	default:
		return errNotMemoryOpcode
	}
	return nil
}

// handleNumeric lowers the comparison, arithmetic and conversion families.
func (f *funcTranslator) handleNumeric(op wasm.Opcode) error {
	i32, i64, f32, f64 := wasm.ValueTypeI32, wasm.ValueTypeI64, wasm.ValueTypeF32, wasm.ValueTypeF64

	// bin pops two operands and pushes one result of the same type.
	bin := func(t wasm.ValueType, emit func()) error {
		if err := f.popExpect(t); err != nil {
			return err
		}
		if err := f.popExpect(t); err != nil {
			return err
		}
		emit()
		f.push(t)
		return nil
	}
	// un rewrites the top operand in place.
	un := func(t wasm.ValueType, emit func()) error {
		if err := f.popExpect(t); err != nil {
			return err
		}
		emit()
		f.push(t)
		return nil
	}
	// cmp pops two operands and pushes an i32 boolean.
	cmp := func(t wasm.ValueType, emit func()) error {
		if err := f.popExpect(t); err != nil {
			return err
		}
		if err := f.popExpect(t); err != nil {
			return err
		}
		emit()
		f.push(i32)
		return nil
	}
	// conv pops from and pushes to.
	conv := func(from, to wasm.ValueType, emit func()) error {
		if err := f.popExpect(from); err != nil {
			return err
		}
		emit()
		f.push(to)
		return nil
	}
	insn := func(ops ...byte) func() {
		return func() {
			for _, o := range ops {
				f.b.Insn(o)
			}
		}
	}
	boolInsn := func(branchOp byte, pre ...byte) func() {
		return func() {
			for _, o := range pre {
				f.b.Insn(o)
			}
			f.emitBool(branchOp)
		}
	}
	// iCmpU produces the Integer.compareUnsigned ordering then booleanizes.
	iCmpU := func(branchOp byte) func() {
		return func() {
			f.b.InvokeStatic(jvm.IntegerClass, "compareUnsigned", jvm.MethodDescriptor{
				Params: []jvm.FieldType{jvm.TypeInt, jvm.TypeInt}, Result: jvm.TypeInt})
			f.emitBool(branchOp)
		}
	}
	lCmpU := func(branchOp byte) func() {
		return func() {
			f.b.InvokeStatic(jvm.LongClass, "compareUnsigned", jvm.MethodDescriptor{
				Params: []jvm.FieldType{jvm.TypeLong, jvm.TypeLong}, Result: jvm.TypeInt})
			f.emitBool(branchOp)
		}
	}
	iHelper := func(name string) func() {
		return func() {
			f.invokeHelper(name, []jvm.FieldType{jvm.TypeInt, jvm.TypeInt}, jvm.TypeInt)
		}
	}
	lHelper := func(name string) func() {
		return func() {
			f.invokeHelper(name, []jvm.FieldType{jvm.TypeLong, jvm.TypeLong}, jvm.TypeLong)
		}
	}
	iStatic := func(class, name string) func() {
		return func() {
			f.b.InvokeStatic(class, name, jvm.MethodDescriptor{
				Params: []jvm.FieldType{jvm.TypeInt}, Result: jvm.TypeInt})
		}
	}
	// f32Canon and f64Canon re-canonicalize a possibly non-canonical NaN.
	f32Canon := func() { f.invokeHelper("canon$f32", []jvm.FieldType{jvm.TypeFloat}, jvm.TypeFloat) }
	f64Canon := func() { f.invokeHelper("canon$f64", []jvm.FieldType{jvm.TypeDouble}, jvm.TypeDouble) }
	fBin := func(op byte) func() {
		return func() { f.b.Insn(op); f32Canon() }
	}
	dBin := func(op byte) func() {
		return func() { f.b.Insn(op); f64Canon() }
	}
	fMath := func(name string) func() {
		// float math routed through the double-precision methods
		return func() {
			f.b.Insn(jvm.OpF2D)
			f.b.InvokeStatic(jvm.MathClass, name, jvm.MethodDescriptor{
				Params: []jvm.FieldType{jvm.TypeDouble}, Result: jvm.TypeDouble})
			f.b.Insn(jvm.OpD2F)
			f32Canon()
		}
	}
	dMath := func(name string) func() {
		return func() {
			f.b.InvokeStatic(jvm.MathClass, name, jvm.MethodDescriptor{
				Params: []jvm.FieldType{jvm.TypeDouble}, Result: jvm.TypeDouble})
			f64Canon()
		}
	}
	trapTrunc := func(from, to wasm.ValueType, signed bool) error {
		return conv(from, to, func() {
			name := fmt.Sprintf("cnv$%s_%s_%s", wasm.ValueTypeName(to), wasm.ValueTypeName(from), signSuffix(signed))
			f.invokeHelper(name, []jvm.FieldType{jvmTypeOf(from)}, jvmTypeOf(to))
		})
	}

	switch op {
	// i32 comparisons
	case wasm.OpcodeI32Eqz:
		if err := f.popExpect(i32); err != nil {
			return err
		}
		f.emitBool(jvm.OpIfEq)
		f.push(i32)
	case wasm.OpcodeI32Eq:
		return cmp(i32, boolInsn(jvm.OpIfICmpEq))
	case wasm.OpcodeI32Ne:
		return cmp(i32, boolInsn(jvm.OpIfICmpNe))
	case wasm.OpcodeI32LtS:
		return cmp(i32, boolInsn(jvm.OpIfICmpLt))
	case wasm.OpcodeI32LtU:
		return cmp(i32, iCmpU(jvm.OpIfLt))
	case wasm.OpcodeI32GtS:
		return cmp(i32, boolInsn(jvm.OpIfICmpGt))
	case wasm.OpcodeI32GtU:
		return cmp(i32, iCmpU(jvm.OpIfGt))
	case wasm.OpcodeI32LeS:
		return cmp(i32, boolInsn(jvm.OpIfICmpLe))
	case wasm.OpcodeI32LeU:
		return cmp(i32, iCmpU(jvm.OpIfLe))
	case wasm.OpcodeI32GeS:
		return cmp(i32, boolInsn(jvm.OpIfICmpGe))
	case wasm.OpcodeI32GeU:
		return cmp(i32, iCmpU(jvm.OpIfGe))

	// i64 comparisons
	case wasm.OpcodeI64Eqz:
		if err := f.popExpect(i64); err != nil {
			return err
		}
		f.b.ConstLong(0)
		f.b.Insn(jvm.OpLCmp)
		f.emitBool(jvm.OpIfEq)
		f.push(i32)
	case wasm.OpcodeI64Eq:
		return cmp(i64, boolInsn(jvm.OpIfEq, jvm.OpLCmp))
	case wasm.OpcodeI64Ne:
		return cmp(i64, boolInsn(jvm.OpIfNe, jvm.OpLCmp))
	case wasm.OpcodeI64LtS:
		return cmp(i64, boolInsn(jvm.OpIfLt, jvm.OpLCmp))
	case wasm.OpcodeI64LtU:
		return cmp(i64, lCmpU(jvm.OpIfLt))
	case wasm.OpcodeI64GtS:
		return cmp(i64, boolInsn(jvm.OpIfGt, jvm.OpLCmp))
	case wasm.OpcodeI64GtU:
		return cmp(i64, lCmpU(jvm.OpIfGt))
	case wasm.OpcodeI64LeS:
		return cmp(i64, boolInsn(jvm.OpIfLe, jvm.OpLCmp))
	case wasm.OpcodeI64LeU:
		return cmp(i64, lCmpU(jvm.OpIfLe))
	case wasm.OpcodeI64GeS:
		return cmp(i64, boolInsn(jvm.OpIfGe, jvm.OpLCmp))
	case wasm.OpcodeI64GeU:
		return cmp(i64, lCmpU(jvm.OpIfGe))

	// float comparisons: the cmp variant is chosen so NaN drives the
	// comparison false (except ne, which NaN makes true).
	case wasm.OpcodeF32Eq:
		return cmp(f32, boolInsn(jvm.OpIfEq, jvm.OpFCmpL))
	case wasm.OpcodeF32Ne:
		return cmp(f32, boolInsn(jvm.OpIfNe, jvm.OpFCmpL))
	case wasm.OpcodeF32Lt:
		return cmp(f32, boolInsn(jvm.OpIfLt, jvm.OpFCmpG))
	case wasm.OpcodeF32Gt:
		return cmp(f32, boolInsn(jvm.OpIfGt, jvm.OpFCmpL))
	case wasm.OpcodeF32Le:
		return cmp(f32, boolInsn(jvm.OpIfLe, jvm.OpFCmpG))
	case wasm.OpcodeF32Ge:
		return cmp(f32, boolInsn(jvm.OpIfGe, jvm.OpFCmpL))
	case wasm.OpcodeF64Eq:
		return cmp(f64, boolInsn(jvm.OpIfEq, jvm.OpDCmpL))
	case wasm.OpcodeF64Ne:
		return cmp(f64, boolInsn(jvm.OpIfNe, jvm.OpDCmpL))
	case wasm.OpcodeF64Lt:
		return cmp(f64, boolInsn(jvm.OpIfLt, jvm.OpDCmpG))
	case wasm.OpcodeF64Gt:
		return cmp(f64, boolInsn(jvm.OpIfGt, jvm.OpDCmpL))
	case wasm.OpcodeF64Le:
		return cmp(f64, boolInsn(jvm.OpIfLe, jvm.OpDCmpG))
	case wasm.OpcodeF64Ge:
		return cmp(f64, boolInsn(jvm.OpIfGe, jvm.OpDCmpL))

	// i32 arithmetic
	case wasm.OpcodeI32Clz:
		return un(i32, iStatic(jvm.IntegerClass, "numberOfLeadingZeros"))
	case wasm.OpcodeI32Ctz:
		return un(i32, iStatic(jvm.IntegerClass, "numberOfTrailingZeros"))
	case wasm.OpcodeI32Popcnt:
		return un(i32, iStatic(jvm.IntegerClass, "bitCount"))
	case wasm.OpcodeI32Add:
		return bin(i32, insn(jvm.OpIAdd))
	case wasm.OpcodeI32Sub:
		return bin(i32, insn(jvm.OpISub))
	case wasm.OpcodeI32Mul:
		return bin(i32, insn(jvm.OpIMul))
	case wasm.OpcodeI32DivS:
		return bin(i32, iHelper("div$i32_s"))
	case wasm.OpcodeI32DivU:
		return bin(i32, iHelper("div$i32_u"))
	case wasm.OpcodeI32RemS:
		return bin(i32, iHelper("rem$i32_s"))
	case wasm.OpcodeI32RemU:
		return bin(i32, iHelper("rem$i32_u"))
	case wasm.OpcodeI32And:
		return bin(i32, insn(jvm.OpIAnd))
	case wasm.OpcodeI32Or:
		return bin(i32, insn(jvm.OpIOr))
	case wasm.OpcodeI32Xor:
		return bin(i32, insn(jvm.OpIXor))
	case wasm.OpcodeI32Shl:
		return bin(i32, insn(jvm.OpIShl))
	case wasm.OpcodeI32ShrS:
		return bin(i32, insn(jvm.OpIShr))
	case wasm.OpcodeI32ShrU:
		return bin(i32, insn(jvm.OpIUShr))
	case wasm.OpcodeI32Rotl:
		return bin(i32, func() {
			f.b.InvokeStatic(jvm.IntegerClass, "rotateLeft", jvm.MethodDescriptor{
				Params: []jvm.FieldType{jvm.TypeInt, jvm.TypeInt}, Result: jvm.TypeInt})
		})
	case wasm.OpcodeI32Rotr:
		return bin(i32, func() {
			f.b.InvokeStatic(jvm.IntegerClass, "rotateRight", jvm.MethodDescriptor{
				Params: []jvm.FieldType{jvm.TypeInt, jvm.TypeInt}, Result: jvm.TypeInt})
		})

	// i64 arithmetic
	case wasm.OpcodeI64Clz:
		return un(i64, func() {
			f.b.InvokeStatic(jvm.LongClass, "numberOfLeadingZeros", jvm.MethodDescriptor{
				Params: []jvm.FieldType{jvm.TypeLong}, Result: jvm.TypeInt})
			f.b.Insn(jvm.OpI2L)
		})
	case wasm.OpcodeI64Ctz:
		return un(i64, func() {
			f.b.InvokeStatic(jvm.LongClass, "numberOfTrailingZeros", jvm.MethodDescriptor{
				Params: []jvm.FieldType{jvm.TypeLong}, Result: jvm.TypeInt})
			f.b.Insn(jvm.OpI2L)
		})
	case wasm.OpcodeI64Popcnt:
		return un(i64, func() {
			f.b.InvokeStatic(jvm.LongClass, "bitCount", jvm.MethodDescriptor{
				Params: []jvm.FieldType{jvm.TypeLong}, Result: jvm.TypeInt})
			f.b.Insn(jvm.OpI2L)
		})
	case wasm.OpcodeI64Add:
		return bin(i64, insn(jvm.OpLAdd))
	case wasm.OpcodeI64Sub:
		return bin(i64, insn(jvm.OpLSub))
	case wasm.OpcodeI64Mul:
		return bin(i64, insn(jvm.OpLMul))
	case wasm.OpcodeI64DivS:
		return bin(i64, lHelper("div$i64_s"))
	case wasm.OpcodeI64DivU:
		return bin(i64, lHelper("div$i64_u"))
	case wasm.OpcodeI64RemS:
		return bin(i64, lHelper("rem$i64_s"))
	case wasm.OpcodeI64RemU:
		return bin(i64, lHelper("rem$i64_u"))
	case wasm.OpcodeI64And:
		return bin(i64, insn(jvm.OpLAnd))
	case wasm.OpcodeI64Or:
		return bin(i64, insn(jvm.OpLOr))
	case wasm.OpcodeI64Xor:
		return bin(i64, insn(jvm.OpLXor))
	case wasm.OpcodeI64Shl:
		return bin(i64, insn(jvm.OpL2I, jvm.OpLShl))
	case wasm.OpcodeI64ShrS:
		return bin(i64, insn(jvm.OpL2I, jvm.OpLShr))
	case wasm.OpcodeI64ShrU:
		return bin(i64, insn(jvm.OpL2I, jvm.OpLUShr))
	case wasm.OpcodeI64Rotl:
		return bin(i64, func() {
			f.b.Insn(jvm.OpL2I)
			f.b.InvokeStatic(jvm.LongClass, "rotateLeft", jvm.MethodDescriptor{
				Params: []jvm.FieldType{jvm.TypeLong, jvm.TypeInt}, Result: jvm.TypeLong})
		})
	case wasm.OpcodeI64Rotr:
		return bin(i64, func() {
			f.b.Insn(jvm.OpL2I)
			f.b.InvokeStatic(jvm.LongClass, "rotateRight", jvm.MethodDescriptor{
				Params: []jvm.FieldType{jvm.TypeLong, jvm.TypeInt}, Result: jvm.TypeLong})
		})

	// f32 arithmetic. abs and neg are sign-bit operations, which preserve
	// NaN payloads exactly as WASM requires; the arithmetic ops get their
	// results canonicalized.
	case wasm.OpcodeF32Abs:
		return un(f32, func() {
			f.emitF32Bits()
			f.b.ConstInt(0x7fffffff)
			f.b.Insn(jvm.OpIAnd)
			f.emitF32FromBits()
		})
	case wasm.OpcodeF32Neg:
		return un(f32, func() {
			f.emitF32Bits()
			f.b.ConstInt(-0x80000000)
			f.b.Insn(jvm.OpIXor)
			f.emitF32FromBits()
		})
	case wasm.OpcodeF32Ceil:
		return un(f32, fMath("ceil"))
	case wasm.OpcodeF32Floor:
		return un(f32, fMath("floor"))
	case wasm.OpcodeF32Trunc:
		return un(f32, func() {
			f.invokeHelper("trunc$f32", []jvm.FieldType{jvm.TypeFloat}, jvm.TypeFloat)
			f32Canon()
		})
	case wasm.OpcodeF32Nearest:
		return un(f32, fMath("rint"))
	case wasm.OpcodeF32Sqrt:
		return un(f32, fMath("sqrt"))
	case wasm.OpcodeF32Add:
		return bin(f32, fBin(jvm.OpFAdd))
	case wasm.OpcodeF32Sub:
		return bin(f32, fBin(jvm.OpFSub))
	case wasm.OpcodeF32Mul:
		return bin(f32, fBin(jvm.OpFMul))
	case wasm.OpcodeF32Div:
		return bin(f32, fBin(jvm.OpFDiv))
	case wasm.OpcodeF32Min:
		return bin(f32, func() {
			f.b.InvokeStatic(jvm.MathClass, "min", jvm.MethodDescriptor{
				Params: []jvm.FieldType{jvm.TypeFloat, jvm.TypeFloat}, Result: jvm.TypeFloat})
			f32Canon()
		})
	case wasm.OpcodeF32Max:
		return bin(f32, func() {
			f.b.InvokeStatic(jvm.MathClass, "max", jvm.MethodDescriptor{
				Params: []jvm.FieldType{jvm.TypeFloat, jvm.TypeFloat}, Result: jvm.TypeFloat})
			f32Canon()
		})
	case wasm.OpcodeF32Copysign:
		return bin(f32, func() {
			f.b.InvokeStatic(jvm.MathClass, "copySign", jvm.MethodDescriptor{
				Params: []jvm.FieldType{jvm.TypeFloat, jvm.TypeFloat}, Result: jvm.TypeFloat})
		})

	// f64 arithmetic
	case wasm.OpcodeF64Abs:
		return un(f64, func() {
			f.emitF64Bits()
			f.b.ConstLong(0x7fffffffffffffff)
			f.b.Insn(jvm.OpLAnd)
			f.emitF64FromBits()
		})
	case wasm.OpcodeF64Neg:
		return un(f64, func() {
			f.emitF64Bits()
			f.b.ConstLong(-0x8000000000000000)
			f.b.Insn(jvm.OpLXor)
			f.emitF64FromBits()
		})
	case wasm.OpcodeF64Ceil:
		return un(f64, dMath("ceil"))
	case wasm.OpcodeF64Floor:
		return un(f64, dMath("floor"))
	case wasm.OpcodeF64Trunc:
		return un(f64, func() {
			f.invokeHelper("trunc$f64", []jvm.FieldType{jvm.TypeDouble}, jvm.TypeDouble)
			f64Canon()
		})
	case wasm.OpcodeF64Nearest:
		return un(f64, dMath("rint"))
	case wasm.OpcodeF64Sqrt:
		return un(f64, dMath("sqrt"))
	case wasm.OpcodeF64Add:
		return bin(f64, dBin(jvm.OpDAdd))
	case wasm.OpcodeF64Sub:
		return bin(f64, dBin(jvm.OpDSub))
	case wasm.OpcodeF64Mul:
		return bin(f64, dBin(jvm.OpDMul))
	case wasm.OpcodeF64Div:
		return bin(f64, dBin(jvm.OpDDiv))
	case wasm.OpcodeF64Min:
		return bin(f64, func() {
			f.b.InvokeStatic(jvm.MathClass, "min", jvm.MethodDescriptor{
				Params: []jvm.FieldType{jvm.TypeDouble, jvm.TypeDouble}, Result: jvm.TypeDouble})
			f64Canon()
		})
	case wasm.OpcodeF64Max:
		return bin(f64, func() {
			f.b.InvokeStatic(jvm.MathClass, "max", jvm.MethodDescriptor{
				Params: []jvm.FieldType{jvm.TypeDouble, jvm.TypeDouble}, Result: jvm.TypeDouble})
			f64Canon()
		})
	case wasm.OpcodeF64Copysign:
		return bin(f64, func() {
			f.b.InvokeStatic(jvm.MathClass, "copySign", jvm.MethodDescriptor{
				Params: []jvm.FieldType{jvm.TypeDouble, jvm.TypeDouble}, Result: jvm.TypeDouble})
		})

	// conversions
	case wasm.OpcodeI32WrapI64:
		return conv(i64, i32, insn(jvm.OpL2I))
	case wasm.OpcodeI32TruncF32S:
		return trapTrunc(f32, i32, true)
	case wasm.OpcodeI32TruncF32U:
		return trapTrunc(f32, i32, false)
	case wasm.OpcodeI32TruncF64S:
		return trapTrunc(f64, i32, true)
	case wasm.OpcodeI32TruncF64U:
		return trapTrunc(f64, i32, false)
	case wasm.OpcodeI64ExtendI32S:
		return conv(i32, i64, insn(jvm.OpI2L))
	case wasm.OpcodeI64ExtendI32U:
		return conv(i32, i64, func() {
			f.b.Insn(jvm.OpI2L)
			f.b.ConstLong(0xffffffff)
			f.b.Insn(jvm.OpLAnd)
		})
	case wasm.OpcodeI64TruncF32S:
		return trapTrunc(f32, i64, true)
	case wasm.OpcodeI64TruncF32U:
		return trapTrunc(f32, i64, false)
	case wasm.OpcodeI64TruncF64S:
		return trapTrunc(f64, i64, true)
	case wasm.OpcodeI64TruncF64U:
		return trapTrunc(f64, i64, false)
	case wasm.OpcodeF32ConvertI32S:
		return conv(i32, f32, insn(jvm.OpI2F))
	case wasm.OpcodeF32ConvertI32U:
		return conv(i32, f32, func() {
			f.b.Insn(jvm.OpI2L)
			f.b.ConstLong(0xffffffff)
			f.b.Insn(jvm.OpLAnd)
			f.b.Insn(jvm.OpL2F)
		})
	case wasm.OpcodeF32ConvertI64S:
		return conv(i64, f32, insn(jvm.OpL2F))
	case wasm.OpcodeF32ConvertI64U:
		return conv(i64, f32, func() {
			f.invokeHelper("cnv$f32_i64_u", []jvm.FieldType{jvm.TypeLong}, jvm.TypeFloat)
		})
	case wasm.OpcodeF32DemoteF64:
		return conv(f64, f32, func() {
			f.b.Insn(jvm.OpD2F)
			f32Canon()
		})
	case wasm.OpcodeF64ConvertI32S:
		return conv(i32, f64, insn(jvm.OpI2D))
	case wasm.OpcodeF64ConvertI32U:
		return conv(i32, f64, func() {
			f.b.Insn(jvm.OpI2L)
			f.b.ConstLong(0xffffffff)
			f.b.Insn(jvm.OpLAnd)
			f.b.Insn(jvm.OpL2D)
		})
	case wasm.OpcodeF64ConvertI64S:
		return conv(i64, f64, insn(jvm.OpL2D))
	case wasm.OpcodeF64ConvertI64U:
		return conv(i64, f64, func() {
			f.invokeHelper("cnv$f64_i64_u", []jvm.FieldType{jvm.TypeLong}, jvm.TypeDouble)
		})
	case wasm.OpcodeF64PromoteF32:
		return conv(f32, f64, func() {
			f.b.Insn(jvm.OpF2D)
			f64Canon()
		})
	case wasm.OpcodeI32ReinterpretF32:
		return conv(f32, i32, f.emitF32Bits)
	case wasm.OpcodeI64ReinterpretF64:
		return conv(f64, i64, f.emitF64Bits)
	case wasm.OpcodeF32ReinterpretI32:
		return conv(i32, f32, f.emitF32FromBits)
	case wasm.OpcodeF64ReinterpretI64:
		return conv(i64, f64, f.emitF64FromBits)

	// sign-extension operators
	case wasm.OpcodeI32Extend8S:
		return un(i32, insn(jvm.OpI2B))
	case wasm.OpcodeI32Extend16S:
		return un(i32, insn(jvm.OpI2S))
	case wasm.OpcodeI64Extend8S:
		return un(i64, insn(jvm.OpL2I, jvm.OpI2B, jvm.OpI2L))
	case wasm.OpcodeI64Extend16S:
		return un(i64, insn(jvm.OpL2I, jvm.OpI2S, jvm.OpI2L))
	case wasm.OpcodeI64Extend32S:
		return un(i64, insn(jvm.OpL2I, jvm.OpI2L))

	default:
		return newError(ErrKindUnsupported, f.context(), "unsupported instruction: 0x%x (%s)", op, wasm.InstructionName(op))
	}
	return nil
}

// emitTruncSat lowers the non-trapping float-to-int conversions. The JVM's
// own f2i family already saturates with NaN mapped to zero, which matches the
// signed variants exactly; the unsigned variants need helpers.
func (f *funcTranslator) emitTruncSat(from, to wasm.ValueType, signed bool) error {
	if err := f.popExpect(from); err != nil {
		return err
	}
	if signed {
		switch {
		case to == wasm.ValueTypeI32 && from == wasm.ValueTypeF32:
			f.b.Insn(jvm.OpF2I)
		case to == wasm.ValueTypeI32 && from == wasm.ValueTypeF64:
			f.b.Insn(jvm.OpD2I)
		case to == wasm.ValueTypeI64 && from == wasm.ValueTypeF32:
			f.b.Insn(jvm.OpF2L)
		case to == wasm.ValueTypeI64 && from == wasm.ValueTypeF64:
			f.b.Insn(jvm.OpD2L)
		}
	} else {
		name := fmt.Sprintf("sat$%s_%s_u", wasm.ValueTypeName(to), wasm.ValueTypeName(from))
		f.invokeHelper(name, []jvm.FieldType{jvmTypeOf(from)}, jvmTypeOf(to))
	}
	f.push(to)
	return nil
}

func signSuffix(signed bool) string {
	if signed {
		return "s"
	}
	return "u"
}

func (f *funcTranslator) emitF32Bits() {
	f.b.InvokeStatic(jvm.FloatClass, "floatToRawIntBits", jvm.MethodDescriptor{
		Params: []jvm.FieldType{jvm.TypeFloat}, Result: jvm.TypeInt})
}

func (f *funcTranslator) emitF32FromBits() {
	f.b.InvokeStatic(jvm.FloatClass, "intBitsToFloat", jvm.MethodDescriptor{
		Params: []jvm.FieldType{jvm.TypeInt}, Result: jvm.TypeFloat})
}

func (f *funcTranslator) emitF64Bits() {
	f.b.InvokeStatic(jvm.DoubleClass, "doubleToRawLongBits", jvm.MethodDescriptor{
		Params: []jvm.FieldType{jvm.TypeDouble}, Result: jvm.TypeLong})
}

func (f *funcTranslator) emitF64FromBits() {
	f.b.InvokeStatic(jvm.DoubleClass, "longBitsToDouble", jvm.MethodDescriptor{
		Params: []jvm.FieldType{jvm.TypeLong}, Result: jvm.TypeDouble})
}
