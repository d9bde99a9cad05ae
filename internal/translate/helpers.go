package translate

import (
	"fmt"
	"math"
	"strings"

	"github.com/wasmlift/wasmlift/internal/jvm"
	"github.com/wasmlift/wasmlift/internal/wasm"
)

// Module-class static helpers. Each is registered at most once per module;
// the per-entity accessors are emitted unconditionally so that imported and
// module-defined entities present one uniform call surface to compiled code.

func (t *ModuleTranslator) newHelper(name string, d jvm.MethodDescriptor) *jvm.Method {
	return t.main.NewMethod(jvm.AccPrivate|jvm.AccStatic|jvm.AccSynthetic, name, d)
}

// emitTrapCall emits a call to the trap thrower inside a helper body.
func (t *ModuleTranslator) emitTrapCall(b *jvm.CodeBuilder, kind TrapKind) {
	b.ConstInt(int32(kind))
	b.InvokeStatic(t.plan.moduleClass(), "t$trap", jvm.MethodDescriptor{
		Params: []jvm.FieldType{jvm.TypeInt}})
}

// emitUsedHelpers emits the numeric helpers the function bodies requested,
// in name order, then the call adapters in allocation order.
func (t *ModuleTranslator) emitUsedHelpers() error {
	for _, name := range t.sortedHelperNames() {
		if strings.HasPrefix(name, "mem$") || strings.HasPrefix(name, "tbl$") || strings.HasPrefix(name, "glb$") {
			continue // per-entity helpers, emitted unconditionally
		}
		if err := t.emitNamedHelper(name); err != nil {
			return err
		}
	}
	for i, name := range t.adapterNames {
		t.emitCallAdapter(name, t.adapterSigs[i])
	}
	return nil
}

func (t *ModuleTranslator) emitNamedHelper(name string) error {
	switch name {
	case "t$trap":
		t.emitTrapThrower()
	case "canon$f32":
		t.emitCanonF32()
	case "canon$f64":
		t.emitCanonF64()
	case "trunc$f32":
		t.emitTruncF32()
	case "trunc$f64":
		t.emitTruncF64()
	case "div$i32_s", "div$i32_u", "rem$i32_s", "rem$i32_u":
		t.emitIntDiv32(name)
	case "div$i64_s", "div$i64_u", "rem$i64_s", "rem$i64_u":
		t.emitIntDiv64(name)
	case "cnv$i32_f32_s", "cnv$i32_f32_u", "cnv$i32_f64_s", "cnv$i32_f64_u",
		"cnv$i64_f32_s", "cnv$i64_f32_u", "cnv$i64_f64_s", "cnv$i64_f64_u":
		t.emitTrappingTrunc(name)
	case "sat$i32_f32_u", "sat$i32_f64_u":
		t.emitSaturating32U(name)
	case "sat$i64_f32_u", "sat$i64_f64_u":
		t.emitSaturating64U(name)
	case "cnv$f32_i64_u":
		t.emitUnsignedLongToF32()
	case "cnv$f64_i64_u":
		t.emitUnsignedLongToF64()
	case "data$write":
		t.emitDataWrite()
	default:
		return newError(ErrKindInternal, "", "unknown helper %q", name)
	}
	return nil
}

// emitTrapThrower emits t$trap: constructs and throws the trap exception.
func (t *ModuleTranslator) emitTrapThrower() {
	m := t.newHelper("t$trap", jvm.MethodDescriptor{Params: []jvm.FieldType{jvm.TypeInt}})
	b := m.Builder()
	trap := t.plan.trapClass()
	b.New(trap)
	b.Insn(jvm.OpDup)
	b.Load(jvm.TypeInt, 0)
	b.InvokeSpecial(trap, "<init>", jvm.MethodDescriptor{Params: []jvm.FieldType{jvm.TypeInt}})
	b.Insn(jvm.OpAThrow)
	mustFinish(m)
}

// emitCanonF32 emits canon$f32: NaN results collapse to the canonical quiet
// NaN bit pattern, everything else passes through.
func (t *ModuleTranslator) emitCanonF32() {
	m := t.newHelper("canon$f32", jvm.MethodDescriptor{
		Params: []jvm.FieldType{jvm.TypeFloat}, Result: jvm.TypeFloat})
	b := m.Builder()
	nan := b.NewLabel()
	b.Load(jvm.TypeFloat, 0)
	b.Load(jvm.TypeFloat, 0)
	b.Insn(jvm.OpFCmpL)
	b.Branch(jvm.OpIfNe, nan)
	b.Load(jvm.TypeFloat, 0)
	b.Return(jvm.TypeFloat)
	b.PlaceLabel(nan)
	b.ConstFloat(math.Float32frombits(0x7fc00000))
	b.Return(jvm.TypeFloat)
	mustFinish(m)
}

func (t *ModuleTranslator) emitCanonF64() {
	m := t.newHelper("canon$f64", jvm.MethodDescriptor{
		Params: []jvm.FieldType{jvm.TypeDouble}, Result: jvm.TypeDouble})
	b := m.Builder()
	nan := b.NewLabel()
	b.Load(jvm.TypeDouble, 0)
	b.Load(jvm.TypeDouble, 0)
	b.Insn(jvm.OpDCmpL)
	b.Branch(jvm.OpIfNe, nan)
	b.Load(jvm.TypeDouble, 0)
	b.Return(jvm.TypeDouble)
	b.PlaceLabel(nan)
	b.ConstDouble(math.Float64frombits(0x7ff8000000000000))
	b.Return(jvm.TypeDouble)
	mustFinish(m)
}

// emitTruncF32 emits trunc$f32: round toward zero, via floor for
// non-negative inputs and ceil for negative ones. NaN propagates through
// either path.
func (t *ModuleTranslator) emitTruncF32() {
	m := t.newHelper("trunc$f32", jvm.MethodDescriptor{
		Params: []jvm.FieldType{jvm.TypeFloat}, Result: jvm.TypeFloat})
	b := m.Builder()
	neg := b.NewLabel()
	mathD1 := jvm.MethodDescriptor{Params: []jvm.FieldType{jvm.TypeDouble}, Result: jvm.TypeDouble}
	b.Load(jvm.TypeFloat, 0)
	b.Insn(jvm.OpFConst0)
	b.Insn(jvm.OpFCmpL)
	b.Branch(jvm.OpIfLt, neg)
	b.Load(jvm.TypeFloat, 0)
	b.Insn(jvm.OpF2D)
	b.InvokeStatic(jvm.MathClass, "floor", mathD1)
	b.Insn(jvm.OpD2F)
	b.Return(jvm.TypeFloat)
	b.PlaceLabel(neg)
	b.Load(jvm.TypeFloat, 0)
	b.Insn(jvm.OpF2D)
	b.InvokeStatic(jvm.MathClass, "ceil", mathD1)
	b.Insn(jvm.OpD2F)
	b.Return(jvm.TypeFloat)
	mustFinish(m)
}

func (t *ModuleTranslator) emitTruncF64() {
	m := t.newHelper("trunc$f64", jvm.MethodDescriptor{
		Params: []jvm.FieldType{jvm.TypeDouble}, Result: jvm.TypeDouble})
	b := m.Builder()
	neg := b.NewLabel()
	mathD1 := jvm.MethodDescriptor{Params: []jvm.FieldType{jvm.TypeDouble}, Result: jvm.TypeDouble}
	b.Load(jvm.TypeDouble, 0)
	b.Insn(jvm.OpDConst0)
	b.Insn(jvm.OpDCmpL)
	b.Branch(jvm.OpIfLt, neg)
	b.Load(jvm.TypeDouble, 0)
	b.InvokeStatic(jvm.MathClass, "floor", mathD1)
	b.Return(jvm.TypeDouble)
	b.PlaceLabel(neg)
	b.Load(jvm.TypeDouble, 0)
	b.InvokeStatic(jvm.MathClass, "ceil", mathD1)
	b.Return(jvm.TypeDouble)
	mustFinish(m)
}

// emitIntDiv32 emits the guarded i32 division family: a zero divisor traps,
// and signed INT_MIN / -1 traps with integer overflow. The unsigned variants
// route through Integer.divideUnsigned/remainderUnsigned after the zero
// guard.
func (t *ModuleTranslator) emitIntDiv32(name string) {
	m := t.newHelper(name, jvm.MethodDescriptor{
		Params: []jvm.FieldType{jvm.TypeInt, jvm.TypeInt}, Result: jvm.TypeInt})
	b := m.Builder()
	ok := b.NewLabel()
	b.Load(jvm.TypeInt, 1)
	b.Branch(jvm.OpIfNe, ok)
	t.emitTrapCall(b, TrapIntegerDivideByZero)
	b.PlaceLabel(ok)

	if name == "div$i32_s" {
		noOverflow := b.NewLabel()
		b.Load(jvm.TypeInt, 0)
		b.ConstInt(math.MinInt32)
		b.Branch(jvm.OpIfICmpNe, noOverflow)
		b.Load(jvm.TypeInt, 1)
		b.ConstInt(-1)
		b.Branch(jvm.OpIfICmpNe, noOverflow)
		t.emitTrapCall(b, TrapIntegerOverflow)
		b.PlaceLabel(noOverflow)
	}

	b.Load(jvm.TypeInt, 0)
	b.Load(jvm.TypeInt, 1)
	switch name {
	case "div$i32_s":
		b.Insn(jvm.OpIDiv)
	case "rem$i32_s":
		// INT_MIN % -1 is 0 on the JVM, as WASM requires: no guard needed.
		b.Insn(jvm.OpIRem)
	case "div$i32_u":
		b.InvokeStatic(jvm.IntegerClass, "divideUnsigned", jvm.MethodDescriptor{
			Params: []jvm.FieldType{jvm.TypeInt, jvm.TypeInt}, Result: jvm.TypeInt})
	case "rem$i32_u":
		b.InvokeStatic(jvm.IntegerClass, "remainderUnsigned", jvm.MethodDescriptor{
			Params: []jvm.FieldType{jvm.TypeInt, jvm.TypeInt}, Result: jvm.TypeInt})
	}
	b.Return(jvm.TypeInt)
	mustFinish(m)
}

func (t *ModuleTranslator) emitIntDiv64(name string) {
	m := t.newHelper(name, jvm.MethodDescriptor{
		Params: []jvm.FieldType{jvm.TypeLong, jvm.TypeLong}, Result: jvm.TypeLong})
	b := m.Builder()
	ok := b.NewLabel()
	b.Load(jvm.TypeLong, 2)
	b.ConstLong(0)
	b.Insn(jvm.OpLCmp)
	b.Branch(jvm.OpIfNe, ok)
	t.emitTrapCall(b, TrapIntegerDivideByZero)
	b.PlaceLabel(ok)

	if name == "div$i64_s" {
		noOverflow := b.NewLabel()
		b.Load(jvm.TypeLong, 0)
		b.ConstLong(math.MinInt64)
		b.Insn(jvm.OpLCmp)
		b.Branch(jvm.OpIfNe, noOverflow)
		b.Load(jvm.TypeLong, 2)
		b.ConstLong(-1)
		b.Insn(jvm.OpLCmp)
		b.Branch(jvm.OpIfNe, noOverflow)
		t.emitTrapCall(b, TrapIntegerOverflow)
		b.PlaceLabel(noOverflow)
	}

	b.Load(jvm.TypeLong, 0)
	b.Load(jvm.TypeLong, 2)
	switch name {
	case "div$i64_s":
		b.Insn(jvm.OpLDiv)
	case "rem$i64_s":
		b.Insn(jvm.OpLRem)
	case "div$i64_u":
		b.InvokeStatic(jvm.LongClass, "divideUnsigned", jvm.MethodDescriptor{
			Params: []jvm.FieldType{jvm.TypeLong, jvm.TypeLong}, Result: jvm.TypeLong})
	case "rem$i64_u":
		b.InvokeStatic(jvm.LongClass, "remainderUnsigned", jvm.MethodDescriptor{
			Params: []jvm.FieldType{jvm.TypeLong, jvm.TypeLong}, Result: jvm.TypeLong})
	}
	b.Return(jvm.TypeLong)
	mustFinish(m)
}

// truncSpec describes one trapping float-to-int conversion: the exclusive
// upper bound, the lower-bound comparison, and the result emission.
type truncSpec struct {
	from jvm.FieldType
	to   jvm.FieldType
	// hi is the smallest value that traps.
	hi float64
	// loExclusive, when true, accepts x when x > lo; otherwise x >= lo.
	lo          float64
	loExclusive bool
	// convert emits the in-range conversion.
	convert func(b *jvm.CodeBuilder)
}

var truncSpecs = map[string]truncSpec{
	"cnv$i32_f32_s": {from: jvm.TypeFloat, to: jvm.TypeInt, hi: 1 << 31, lo: -(1 << 31),
		convert: func(b *jvm.CodeBuilder) { b.Insn(jvm.OpF2I) }},
	"cnv$i32_f64_s": {from: jvm.TypeDouble, to: jvm.TypeInt, hi: 1 << 31, lo: -(1<<31 + 1), loExclusive: true,
		convert: func(b *jvm.CodeBuilder) { b.Insn(jvm.OpD2I) }},
	"cnv$i64_f32_s": {from: jvm.TypeFloat, to: jvm.TypeLong, hi: 1 << 63, lo: -(1 << 63),
		convert: func(b *jvm.CodeBuilder) { b.Insn(jvm.OpF2L) }},
	"cnv$i64_f64_s": {from: jvm.TypeDouble, to: jvm.TypeLong, hi: 1 << 63, lo: -(1 << 63),
		convert: func(b *jvm.CodeBuilder) { b.Insn(jvm.OpD2L) }},
	"cnv$i32_f32_u": {from: jvm.TypeFloat, to: jvm.TypeInt, hi: 1 << 32, lo: -1, loExclusive: true,
		convert: func(b *jvm.CodeBuilder) { b.Insn(jvm.OpF2L); b.Insn(jvm.OpL2I) }},
	"cnv$i32_f64_u": {from: jvm.TypeDouble, to: jvm.TypeInt, hi: 1 << 32, lo: -1, loExclusive: true,
		convert: func(b *jvm.CodeBuilder) { b.Insn(jvm.OpD2L); b.Insn(jvm.OpL2I) }},
	"cnv$i64_f32_u": {from: jvm.TypeFloat, to: jvm.TypeLong, hi: 1 << 64, lo: -1, loExclusive: true,
		convert: emitUnsignedSplitToLong},
	"cnv$i64_f64_u": {from: jvm.TypeDouble, to: jvm.TypeLong, hi: 1 << 64, lo: -1, loExclusive: true,
		convert: emitUnsignedSplitToLong},
}

// emitUnsignedSplitToLong converts the double in local 0 (widened if needed
// by the caller into the value on the stack) into an unsigned 64-bit result.
// Expects the operand on the stack as a double.
func emitUnsignedSplitToLong(b *jvm.CodeBuilder) {
	const half = float64(1 << 63)
	big := b.NewLabel()
	done := b.NewLabel()
	// stack: [x]
	b.Insn(jvm.OpDup2)
	b.ConstDouble(half)
	b.Insn(jvm.OpDCmpL)
	b.Branch(jvm.OpIfGe, big)
	b.Insn(jvm.OpD2L)
	b.Branch(jvm.OpGoto, done)
	b.PlaceLabel(big)
	b.ConstDouble(half)
	b.Insn(jvm.OpDSub)
	b.Insn(jvm.OpD2L)
	b.ConstLong(math.MinInt64)
	b.Insn(jvm.OpLAdd)
	b.PlaceLabel(done)
}

// emitTrappingTrunc emits one of the non-saturating float-to-int conversion
// helpers: NaN raises the invalid-conversion trap, out-of-range input raises
// integer overflow, and the in-range conversion is exact.
func (t *ModuleTranslator) emitTrappingTrunc(name string) {
	spec := truncSpecs[name]
	m := t.newHelper(name, jvm.MethodDescriptor{
		Params: []jvm.FieldType{spec.from}, Result: spec.to})
	b := m.Builder()
	wide := spec.from == jvm.TypeDouble
	load := func() {
		b.Load(spec.from, 0)
		if !wide {
			b.Insn(jvm.OpF2D)
		}
	}
	cmpOp := jvm.OpDCmpL

	// NaN check
	notNaN := b.NewLabel()
	b.Load(spec.from, 0)
	b.Load(spec.from, 0)
	if wide {
		b.Insn(jvm.OpDCmpL)
	} else {
		b.Insn(jvm.OpFCmpL)
	}
	b.Branch(jvm.OpIfEq, notNaN)
	t.emitTrapCall(b, TrapInvalidConversionToInteger)
	b.PlaceLabel(notNaN)

	// upper bound: x < hi
	belowHi := b.NewLabel()
	load()
	b.ConstDouble(spec.hi)
	b.Insn(cmpOp)
	b.Branch(jvm.OpIfLt, belowHi)
	t.emitTrapCall(b, TrapIntegerOverflow)
	b.PlaceLabel(belowHi)

	// lower bound: x > lo (or x >= lo)
	aboveLo := b.NewLabel()
	load()
	b.ConstDouble(spec.lo)
	b.Insn(jvm.OpDCmpG)
	if spec.loExclusive {
		b.Branch(jvm.OpIfGt, aboveLo)
	} else {
		b.Branch(jvm.OpIfGe, aboveLo)
	}
	t.emitTrapCall(b, TrapIntegerOverflow)
	b.PlaceLabel(aboveLo)

	if name == "cnv$i64_f32_u" || name == "cnv$i64_f64_u" {
		load()
		spec.convert(b)
	} else {
		b.Load(spec.from, 0)
		spec.convert(b)
	}
	b.Return(spec.to)
	mustFinish(m)
}

// emitSaturating32U emits the saturating unsigned 32-bit conversions: NaN to
// zero, negative to zero, and 2^32 and beyond to all-ones.
func (t *ModuleTranslator) emitSaturating32U(name string) {
	from := jvm.TypeFloat
	if name == "sat$i32_f64_u" {
		from = jvm.TypeDouble
	}
	m := t.newHelper(name, jvm.MethodDescriptor{
		Params: []jvm.FieldType{from}, Result: jvm.TypeInt})
	b := m.Builder()
	wide := from == jvm.TypeDouble
	loadD := func() {
		b.Load(from, 0)
		if !wide {
			b.Insn(jvm.OpF2D)
		}
	}

	notNaN := b.NewLabel()
	b.Load(from, 0)
	b.Load(from, 0)
	if wide {
		b.Insn(jvm.OpDCmpL)
	} else {
		b.Insn(jvm.OpFCmpL)
	}
	b.Branch(jvm.OpIfEq, notNaN)
	b.ConstInt(0)
	b.Return(jvm.TypeInt)
	b.PlaceLabel(notNaN)

	inRange := b.NewLabel()
	loadD()
	b.ConstDouble(1 << 32)
	b.Insn(jvm.OpDCmpL)
	b.Branch(jvm.OpIfLt, inRange)
	b.ConstInt(-1)
	b.Return(jvm.TypeInt)
	b.PlaceLabel(inRange)

	// clamp negatives to zero, then narrow
	loadD()
	b.Insn(jvm.OpD2L)
	b.ConstLong(0)
	b.InvokeStatic(jvm.MathClass, "max", jvm.MethodDescriptor{
		Params: []jvm.FieldType{jvm.TypeLong, jvm.TypeLong}, Result: jvm.TypeLong})
	b.Insn(jvm.OpL2I)
	b.Return(jvm.TypeInt)
	mustFinish(m)
}

// emitSaturating64U emits the saturating unsigned 64-bit conversions.
func (t *ModuleTranslator) emitSaturating64U(name string) {
	from := jvm.TypeFloat
	if name == "sat$i64_f64_u" {
		from = jvm.TypeDouble
	}
	m := t.newHelper(name, jvm.MethodDescriptor{
		Params: []jvm.FieldType{from}, Result: jvm.TypeLong})
	b := m.Builder()
	wide := from == jvm.TypeDouble
	loadD := func() {
		b.Load(from, 0)
		if !wide {
			b.Insn(jvm.OpF2D)
		}
	}

	notNaN := b.NewLabel()
	b.Load(from, 0)
	b.Load(from, 0)
	if wide {
		b.Insn(jvm.OpDCmpL)
	} else {
		b.Insn(jvm.OpFCmpL)
	}
	b.Branch(jvm.OpIfEq, notNaN)
	b.ConstLong(0)
	b.Return(jvm.TypeLong)
	b.PlaceLabel(notNaN)

	positive := b.NewLabel()
	loadD()
	b.Insn(jvm.OpDConst0)
	b.Insn(jvm.OpDCmpG)
	b.Branch(jvm.OpIfGt, positive)
	b.ConstLong(0)
	b.Return(jvm.TypeLong)
	b.PlaceLabel(positive)

	inRange := b.NewLabel()
	loadD()
	b.ConstDouble(1 << 64)
	b.Insn(jvm.OpDCmpL)
	b.Branch(jvm.OpIfLt, inRange)
	b.ConstLong(-1)
	b.Return(jvm.TypeLong)
	b.PlaceLabel(inRange)

	loadD()
	emitUnsignedSplitToLong(b)
	b.Return(jvm.TypeLong)
	mustFinish(m)
}

// emitUnsignedLongToF32 emits cnv$f32_i64_u: unsigned long to float via the
// halve-and-double trick for the high range.
func (t *ModuleTranslator) emitUnsignedLongToF32() {
	m := t.newHelper("cnv$f32_i64_u", jvm.MethodDescriptor{
		Params: []jvm.FieldType{jvm.TypeLong}, Result: jvm.TypeFloat})
	b := m.Builder()
	neg := b.NewLabel()
	b.Load(jvm.TypeLong, 0)
	b.ConstLong(0)
	b.Insn(jvm.OpLCmp)
	b.Branch(jvm.OpIfLt, neg)
	b.Load(jvm.TypeLong, 0)
	b.Insn(jvm.OpL2F)
	b.Return(jvm.TypeFloat)
	b.PlaceLabel(neg)
	b.Load(jvm.TypeLong, 0)
	b.ConstInt(1)
	b.Insn(jvm.OpLUShr)
	b.Load(jvm.TypeLong, 0)
	b.ConstLong(1)
	b.Insn(jvm.OpLAnd)
	b.Insn(jvm.OpLOr)
	b.Insn(jvm.OpL2F)
	b.Insn(jvm.OpFConst2)
	b.Insn(jvm.OpFMul)
	b.Return(jvm.TypeFloat)
	mustFinish(m)
}

func (t *ModuleTranslator) emitUnsignedLongToF64() {
	m := t.newHelper("cnv$f64_i64_u", jvm.MethodDescriptor{
		Params: []jvm.FieldType{jvm.TypeLong}, Result: jvm.TypeDouble})
	b := m.Builder()
	neg := b.NewLabel()
	b.Load(jvm.TypeLong, 0)
	b.ConstLong(0)
	b.Insn(jvm.OpLCmp)
	b.Branch(jvm.OpIfLt, neg)
	b.Load(jvm.TypeLong, 0)
	b.Insn(jvm.OpL2D)
	b.Return(jvm.TypeDouble)
	b.PlaceLabel(neg)
	b.Load(jvm.TypeLong, 0)
	b.ConstInt(1)
	b.Insn(jvm.OpLUShr)
	b.Load(jvm.TypeLong, 0)
	b.ConstLong(1)
	b.Insn(jvm.OpLAnd)
	b.Insn(jvm.OpLOr)
	b.Insn(jvm.OpL2D)
	b.ConstDouble(2)
	b.Insn(jvm.OpDMul)
	b.Return(jvm.TypeDouble)
	mustFinish(m)
}

// emitDataWrite emits data$write, the constructor's data-segment initializer:
// bounds-checks the destination range, then copies the segment bytes, which
// travel as an ISO-8859-1 style string constant.
func (t *ModuleTranslator) emitDataWrite() {
	m := t.newHelper("data$write", jvm.MethodDescriptor{
		Params: []jvm.FieldType{byteBuffer, jvm.TypeInt, jvm.ObjectType(jvm.StringClass)}})
	b := m.Builder()
	strLen := jvm.MethodDescriptor{Result: jvm.TypeInt}

	ok := b.NewLabel()
	b.Load(jvm.TypeInt, 1)
	b.Insn(jvm.OpI2L)
	b.ConstLong(0xffffffff)
	b.Insn(jvm.OpLAnd)
	b.Load(jvm.ObjectType(jvm.StringClass), 2)
	b.InvokeVirtual(jvm.StringClass, "length", strLen)
	b.Insn(jvm.OpI2L)
	b.Insn(jvm.OpLAdd)
	b.Load(byteBuffer, 0)
	emitBufferLimit(b)
	b.Insn(jvm.OpI2L)
	b.Insn(jvm.OpLCmp)
	b.Branch(jvm.OpIfLe, ok)
	t.emitTrapCall(b, TrapDataSegmentOutOfBounds)
	b.PlaceLabel(ok)

	loop := b.NewLabel()
	done := b.NewLabel()
	b.ConstInt(0)
	b.Store(jvm.TypeInt, 3)
	b.PlaceLabel(loop)
	b.Load(jvm.TypeInt, 3)
	b.Load(jvm.ObjectType(jvm.StringClass), 2)
	b.InvokeVirtual(jvm.StringClass, "length", strLen)
	b.Branch(jvm.OpIfICmpGe, done)
	b.Load(byteBuffer, 0)
	b.Load(jvm.TypeInt, 1)
	b.Load(jvm.TypeInt, 3)
	b.Insn(jvm.OpIAdd)
	b.Load(jvm.ObjectType(jvm.StringClass), 2)
	b.Load(jvm.TypeInt, 3)
	b.InvokeVirtual(jvm.StringClass, "charAt", jvm.MethodDescriptor{
		Params: []jvm.FieldType{jvm.TypeInt}, Result: jvm.TypeChar})
	b.Insn(jvm.OpI2B)
	b.InvokeVirtual(jvm.ByteBufferClass, "put", jvm.MethodDescriptor{
		Params: []jvm.FieldType{jvm.TypeInt, jvm.TypeByte}, Result: byteBuffer})
	b.Insn(jvm.OpPop)
	b.IInc(3, 1)
	b.Branch(jvm.OpGoto, loop)
	b.PlaceLabel(done)
	b.Return("")
	mustFinish(m)
}

// emitCallAdapter emits a call$N adapter: arguments arrive in the natural
// (or packed) positions with the target handle last; the adapter checks the
// handle for null and an exact signature match, then invokes it.
func (t *ModuleTranslator) emitCallAdapter(name string, sig signature) {
	handle := jvm.ObjectType(jvm.MethodHandleClass)
	d := adapterDesc(sig)
	m := t.newHelper(name, d)
	b := m.Builder()

	handleSlot := 0
	for _, p := range sig.desc.Params {
		handleSlot += p.SlotWidth()
	}

	nonNull := b.NewLabel()
	b.Load(handle, handleSlot)
	b.Branch(jvm.OpIfNonNull, nonNull)
	t.emitTrapCall(b, TrapNullFunctionReference)
	b.PlaceLabel(nonNull)

	typeOK := b.NewLabel()
	b.Load(handle, handleSlot)
	b.InvokeVirtual(jvm.MethodHandleClass, "type", jvm.MethodDescriptor{
		Result: jvm.ObjectType(jvm.MethodTypeClass)})
	b.ConstMethodType(sig.desc)
	b.Branch(jvm.OpIfACmpEq, typeOK)
	t.emitTrapCall(b, TrapIndirectCallTypeMismatch)
	b.PlaceLabel(typeOK)

	b.Load(handle, handleSlot)
	slot := 0
	for _, p := range sig.desc.Params {
		b.Load(p, slot)
		slot += p.SlotWidth()
	}
	b.InvokeVirtual(jvm.MethodHandleClass, "invokeExact", sig.desc)
	b.Return(sig.desc.Result)
	mustFinish(m)
}

// emitEntityHelpers emits the per-entity accessor helpers: one group per
// memory, table and global index. Imported entities route through the cached
// reflective handles; module-defined ones touch their carrier fields
// directly. Compiled code never needs to know the difference.
func (t *ModuleTranslator) emitEntityHelpers() {
	memories := t.m.Memories()
	if len(memories) > 0 {
		t.emitMemIdxHelper()
	}
	importedMems := int(t.m.ImportMemoryCount())
	for i, mem := range memories {
		t.emitMemoryHelpers(i, mem, i < importedMems)
	}

	importedTables := int(t.m.ImportTableCount())
	for i, table := range t.m.Tables() {
		t.emitTableHelpers(i, table, i < importedTables)
	}

	importedGlobals := int(t.m.ImportGlobalCount())
	for i, g := range t.globals {
		t.emitGlobalHelpers(i, g, i < importedGlobals)
	}
}

// emitMemIdxHelper emits mem$idx, the shared bounds check: the effective
// address is the 64-bit sum of the unsigned base and offset, and the access
// of the given width must end at or before the buffer limit.
func (t *ModuleTranslator) emitMemIdxHelper() {
	m := t.newHelper("mem$idx", jvm.MethodDescriptor{
		Params: []jvm.FieldType{byteBuffer, jvm.TypeInt, jvm.TypeInt, jvm.TypeInt},
		Result: jvm.TypeInt})
	b := m.Builder()
	ok := b.NewLabel()
	b.Load(jvm.TypeInt, 1)
	b.Insn(jvm.OpI2L)
	b.ConstLong(0xffffffff)
	b.Insn(jvm.OpLAnd)
	b.Load(jvm.TypeInt, 2)
	b.Insn(jvm.OpI2L)
	b.ConstLong(0xffffffff)
	b.Insn(jvm.OpLAnd)
	b.Insn(jvm.OpLAdd)
	b.Store(jvm.TypeLong, 4)
	b.Load(jvm.TypeLong, 4)
	b.Load(jvm.TypeInt, 3)
	b.Insn(jvm.OpI2L)
	b.Insn(jvm.OpLAdd)
	b.Load(byteBuffer, 0)
	emitBufferLimit(b)
	b.Insn(jvm.OpI2L)
	b.Insn(jvm.OpLCmp)
	b.Branch(jvm.OpIfLe, ok)
	t.emitTrapCall(b, TrapMemoryOutOfBounds)
	b.PlaceLabel(ok)
	b.Load(jvm.TypeLong, 4)
	b.Insn(jvm.OpL2I)
	b.Return(jvm.TypeInt)
	mustFinish(m)
}

func (t *ModuleTranslator) emitMemoryHelpers(i int, mem *wasm.MemoryType, imported bool) {
	mod := t.moduleType()
	main := t.plan.moduleClass()
	mField := fmt.Sprintf("m%d", i)

	// mem$buf_i resolves the current backing buffer.
	buf := t.newHelper(fmt.Sprintf("mem$buf_%d", i), jvm.MethodDescriptor{
		Params: []jvm.FieldType{mod}, Result: byteBuffer})
	b := buf.Builder()
	if imported {
		b.Load(mod, 0)
		b.GetField(main, fmt.Sprintf("mget%d", i), jvm.ObjectType(jvm.MethodHandleClass))
		b.Load(mod, 0)
		b.GetField(main, mField, jvm.ObjectType(jvm.ObjectClass))
		b.InvokeVirtual(jvm.MethodHandleClass, "invokeExact", jvm.MethodDescriptor{
			Params: []jvm.FieldType{jvm.ObjectType(jvm.ObjectClass)}, Result: byteBuffer})
	} else {
		memCls := t.ensureMemoryCarrier()
		b.Load(mod, 0)
		b.GetField(main, mField, jvm.ObjectType(memCls))
		b.GetField(memCls, memoryFieldName, byteBuffer)
	}
	b.Return(byteBuffer)
	mustFinish(buf)

	// mem$size_i in pages.
	size := t.newHelper(fmt.Sprintf("mem$size_%d", i), jvm.MethodDescriptor{
		Params: []jvm.FieldType{mod}, Result: jvm.TypeInt})
	b = size.Builder()
	if imported {
		b.Load(mod, 0)
		b.InvokeStatic(main, fmt.Sprintf("mem$buf_%d", i), jvm.MethodDescriptor{
			Params: []jvm.FieldType{mod}, Result: byteBuffer})
		emitBufferLimit(b)
		b.ConstInt(16)
		b.Insn(jvm.OpIUShr)
	} else {
		memCls := t.ensureMemoryCarrier()
		b.Load(mod, 0)
		b.GetField(main, mField, jvm.ObjectType(memCls))
		b.InvokeVirtual(memCls, "size", jvm.MethodDescriptor{Result: jvm.TypeInt})
	}
	b.Return(jvm.TypeInt)
	mustFinish(size)

	// mem$grow_i: delegate to the carrier, or reallocate through the import
	// handles.
	grow := t.newHelper(fmt.Sprintf("mem$grow_%d", i), jvm.MethodDescriptor{
		Params: []jvm.FieldType{jvm.TypeInt, mod}, Result: jvm.TypeInt})
	b = grow.Builder()
	if !imported {
		memCls := t.ensureMemoryCarrier()
		b.Load(mod, 1)
		b.GetField(main, mField, jvm.ObjectType(memCls))
		b.Load(jvm.TypeInt, 0)
		b.InvokeVirtual(memCls, "grow", jvm.MethodDescriptor{
			Params: []jvm.FieldType{jvm.TypeInt}, Result: jvm.TypeInt})
		b.Return(jvm.TypeInt)
	} else {
		t.emitImportedMemoryGrow(b, i, mem)
	}
	mustFinish(grow)

	// The load/store family.
	t.emitMemoryAccessHelpers(i)
}

// emitImportedMemoryGrow reallocates an imported memory through its cached
// getter/setter handles. Locals: delta(0), module(1).
func (t *ModuleTranslator) emitImportedMemoryGrow(b *jvm.CodeBuilder, i int, mem *wasm.MemoryType) {
	mod := t.moduleType()
	main := t.plan.moduleClass()
	object := jvm.ObjectType(jvm.ObjectClass)

	fail := b.NewLabel()
	failPop := b.NewLabel()

	bufDesc := jvm.MethodDescriptor{Params: []jvm.FieldType{mod}, Result: byteBuffer}
	b.Load(mod, 1)
	b.InvokeStatic(main, fmt.Sprintf("mem$buf_%d", i), bufDesc)
	b.Store(byteBuffer, 2)

	b.Load(byteBuffer, 2)
	emitBufferLimit(b)
	b.ConstInt(16)
	b.Insn(jvm.OpIUShr)
	b.Store(jvm.TypeInt, 3) // cur

	b.Load(jvm.TypeInt, 0)
	b.Branch(jvm.OpIfLt, fail)

	b.Load(jvm.TypeInt, 3)
	b.Insn(jvm.OpI2L)
	b.Load(jvm.TypeInt, 0)
	b.Insn(jvm.OpI2L)
	b.Insn(jvm.OpLAdd)
	b.Insn(jvm.OpDup2)
	b.ConstInt(effectiveMaxPages(mem))
	b.Insn(jvm.OpI2L)
	b.Insn(jvm.OpLCmp)
	b.Branch(jvm.OpIfGt, failPop)
	b.Insn(jvm.OpL2I)
	b.Store(jvm.TypeInt, 4) // newPages

	b.Load(jvm.TypeInt, 4)
	b.ConstInt(16)
	b.Insn(jvm.OpIShl)
	emitAllocateBuffer(b)
	b.Store(byteBuffer, 5)
	b.Load(byteBuffer, 5)
	b.Load(byteBuffer, 2)
	b.InvokeVirtual(jvm.ByteBufferClass, "duplicate", jvm.MethodDescriptor{Result: byteBuffer})
	b.InvokeVirtual(jvm.ByteBufferClass, "put", jvm.MethodDescriptor{
		Params: []jvm.FieldType{byteBuffer}, Result: byteBuffer})
	emitBufferRewind(b)

	b.Load(mod, 1)
	b.GetField(main, fmt.Sprintf("mset%d", i), jvm.ObjectType(jvm.MethodHandleClass))
	b.Load(mod, 1)
	b.GetField(main, fmt.Sprintf("m%d", i), object)
	b.Load(byteBuffer, 5)
	b.InvokeVirtual(jvm.MethodHandleClass, "invokeExact", jvm.MethodDescriptor{
		Params: []jvm.FieldType{object, byteBuffer}})

	b.Load(jvm.TypeInt, 3)
	b.Return(jvm.TypeInt)

	b.PlaceLabel(failPop)
	b.Insn(jvm.OpPop2)
	b.PlaceLabel(fail)
	b.ConstInt(-1)
	b.Return(jvm.TypeInt)
}

// emitMemoryAccessHelpers emits the twelve load/store helpers of one memory.
func (t *ModuleTranslator) emitMemoryAccessHelpers(i int) {
	mod := t.moduleType()
	main := t.plan.moduleClass()
	bufDesc := jvm.MethodDescriptor{Params: []jvm.FieldType{mod}, Result: byteBuffer}
	idxDesc := jvm.MethodDescriptor{
		Params: []jvm.FieldType{byteBuffer, jvm.TypeInt, jvm.TypeInt, jvm.TypeInt},
		Result: jvm.TypeInt}

	loads := []struct {
		name   string
		width  int32
		method string
		result jvm.FieldType
	}{
		{"ld8", 1, "get", jvm.TypeByte},
		{"ld16", 2, "getShort", jvm.TypeShort},
		{"ld32", 4, "getInt", jvm.TypeInt},
		{"ld64", 8, "getLong", jvm.TypeLong},
		{"ldf32", 4, "getFloat", jvm.TypeFloat},
		{"ldf64", 8, "getDouble", jvm.TypeDouble},
	}
	for _, l := range loads {
		m := t.newHelper(fmt.Sprintf("mem$%s_%d", l.name, i), jvm.MethodDescriptor{
			Params: []jvm.FieldType{jvm.TypeInt, jvm.TypeInt, mod}, Result: l.result})
		b := m.Builder()
		b.Load(mod, 2)
		b.InvokeStatic(main, fmt.Sprintf("mem$buf_%d", i), bufDesc)
		b.Insn(jvm.OpDup)
		b.Load(jvm.TypeInt, 0)
		b.Load(jvm.TypeInt, 1)
		b.ConstInt(l.width)
		b.InvokeStatic(main, "mem$idx", idxDesc)
		b.InvokeVirtual(jvm.ByteBufferClass, l.method, jvm.MethodDescriptor{
			Params: []jvm.FieldType{jvm.TypeInt}, Result: l.result})
		b.Return(l.result)
		mustFinish(m)
	}

	stores := []struct {
		name   string
		width  int32
		method string
		value  jvm.FieldType
		param  jvm.FieldType
	}{
		{"st8", 1, "put", jvm.TypeInt, jvm.TypeByte},
		{"st16", 2, "putShort", jvm.TypeInt, jvm.TypeShort},
		{"st32", 4, "putInt", jvm.TypeInt, jvm.TypeInt},
		{"st64", 8, "putLong", jvm.TypeLong, jvm.TypeLong},
		{"stf32", 4, "putFloat", jvm.TypeFloat, jvm.TypeFloat},
		{"stf64", 8, "putDouble", jvm.TypeDouble, jvm.TypeDouble},
	}
	for _, s := range stores {
		offSlot := 1 + s.value.SlotWidth()
		modSlot := offSlot + 1
		m := t.newHelper(fmt.Sprintf("mem$%s_%d", s.name, i), jvm.MethodDescriptor{
			Params: []jvm.FieldType{jvm.TypeInt, s.value, jvm.TypeInt, mod}})
		b := m.Builder()
		b.Load(mod, modSlot)
		b.InvokeStatic(main, fmt.Sprintf("mem$buf_%d", i), bufDesc)
		b.Insn(jvm.OpDup)
		b.Load(jvm.TypeInt, 0)
		b.Load(jvm.TypeInt, offSlot)
		b.ConstInt(s.width)
		b.InvokeStatic(main, "mem$idx", idxDesc)
		b.Load(s.value, 1)
		b.InvokeVirtual(jvm.ByteBufferClass, s.method, jvm.MethodDescriptor{
			Params: []jvm.FieldType{jvm.TypeInt, s.param}, Result: byteBuffer})
		b.Insn(jvm.OpPop)
		b.Return("")
		mustFinish(m)
	}
}

func (t *ModuleTranslator) emitTableHelpers(i int, table *wasm.TableType, imported bool) {
	mod := t.moduleType()
	main := t.plan.moduleClass()
	elem := jvmTypeOf(table.ElemType)
	arr := jvm.ArrayOf(elem)
	tField := fmt.Sprintf("t%d", i)
	arrDesc := jvm.MethodDescriptor{Params: []jvm.FieldType{mod}, Result: arr}

	// tbl$arr_i resolves the current backing array.
	arrH := t.newHelper(fmt.Sprintf("tbl$arr_%d", i), arrDesc)
	b := arrH.Builder()
	if imported {
		b.Load(mod, 0)
		b.GetField(main, fmt.Sprintf("tget%d", i), jvm.ObjectType(jvm.MethodHandleClass))
		b.Load(mod, 0)
		b.GetField(main, tField, jvm.ObjectType(jvm.ObjectClass))
		b.InvokeVirtual(jvm.MethodHandleClass, "invokeExact", jvm.MethodDescriptor{
			Params: []jvm.FieldType{jvm.ObjectType(jvm.ObjectClass)}, Result: arr})
	} else {
		tblCls := t.ensureTableCarrier(table.ElemType)
		b.Load(mod, 0)
		b.GetField(main, tField, jvm.ObjectType(tblCls))
		b.GetField(tblCls, tableFieldName, arr)
	}
	b.Return(arr)
	mustFinish(arrH)

	// tbl$get_i: bounds-checked element fetch.
	get := t.newHelper(fmt.Sprintf("tbl$get_%d", i), jvm.MethodDescriptor{
		Params: []jvm.FieldType{jvm.TypeInt, mod}, Result: elem})
	b = get.Builder()
	trap := b.NewLabel()
	b.Load(mod, 1)
	b.InvokeStatic(main, fmt.Sprintf("tbl$arr_%d", i), arrDesc)
	b.Store(arr, 2)
	b.Load(jvm.TypeInt, 0)
	b.Branch(jvm.OpIfLt, trap)
	b.Load(jvm.TypeInt, 0)
	b.Load(arr, 2)
	b.Insn(jvm.OpArrayLength)
	b.Branch(jvm.OpIfICmpGe, trap)
	b.Load(arr, 2)
	b.Load(jvm.TypeInt, 0)
	b.Insn(jvm.OpAALoad)
	b.Return(elem)
	b.PlaceLabel(trap)
	t.emitTrapCall(b, TrapTableOutOfBounds)
	b.Insn(jvm.OpAConstNull)
	b.Return(elem)
	mustFinish(get)

	// tbl$set_i: bounds-checked element store.
	set := t.newHelper(fmt.Sprintf("tbl$set_%d", i), jvm.MethodDescriptor{
		Params: []jvm.FieldType{jvm.TypeInt, elem, mod}})
	b = set.Builder()
	trap = b.NewLabel()
	done := b.NewLabel()
	b.Load(mod, 2)
	b.InvokeStatic(main, fmt.Sprintf("tbl$arr_%d", i), arrDesc)
	b.Store(arr, 3)
	b.Load(jvm.TypeInt, 0)
	b.Branch(jvm.OpIfLt, trap)
	b.Load(jvm.TypeInt, 0)
	b.Load(arr, 3)
	b.Insn(jvm.OpArrayLength)
	b.Branch(jvm.OpIfICmpGe, trap)
	b.Load(arr, 3)
	b.Load(jvm.TypeInt, 0)
	b.Load(elem, 1)
	b.Insn(jvm.OpAAStore)
	b.Branch(jvm.OpGoto, done)
	b.PlaceLabel(trap)
	t.emitTrapCall(b, TrapTableOutOfBounds)
	b.PlaceLabel(done)
	b.Return("")
	mustFinish(set)

	// tbl$size_i.
	size := t.newHelper(fmt.Sprintf("tbl$size_%d", i), jvm.MethodDescriptor{
		Params: []jvm.FieldType{mod}, Result: jvm.TypeInt})
	b = size.Builder()
	b.Load(mod, 0)
	b.InvokeStatic(main, fmt.Sprintf("tbl$arr_%d", i), arrDesc)
	b.Insn(jvm.OpArrayLength)
	b.Return(jvm.TypeInt)
	mustFinish(size)

	// tbl$grow_i: (init, delta, module) -> previous size or -1.
	grow := t.newHelper(fmt.Sprintf("tbl$grow_%d", i), jvm.MethodDescriptor{
		Params: []jvm.FieldType{elem, jvm.TypeInt, mod}, Result: jvm.TypeInt})
	b = grow.Builder()
	if !imported {
		tblCls := t.ensureTableCarrier(table.ElemType)
		b.Load(mod, 2)
		b.GetField(main, tField, jvm.ObjectType(tblCls))
		b.Load(jvm.TypeInt, 1)
		b.Load(elem, 0)
		b.InvokeVirtual(tblCls, "grow", jvm.MethodDescriptor{
			Params: []jvm.FieldType{jvm.TypeInt, elem}, Result: jvm.TypeInt})
		b.Return(jvm.TypeInt)
	} else {
		t.emitImportedTableGrow(b, i, table)
	}
	mustFinish(grow)
}

// emitImportedTableGrow grows an imported table through its handles.
// Locals: init(0), delta(1), module(2).
func (t *ModuleTranslator) emitImportedTableGrow(b *jvm.CodeBuilder, i int, table *wasm.TableType) {
	mod := t.moduleType()
	main := t.plan.moduleClass()
	elem := jvmTypeOf(table.ElemType)
	arr := jvm.ArrayOf(elem)
	object := jvm.ObjectType(jvm.ObjectClass)
	arrDesc := jvm.MethodDescriptor{Params: []jvm.FieldType{mod}, Result: arr}

	fail := b.NewLabel()
	failPop := b.NewLabel()
	loop := b.NewLabel()
	done := b.NewLabel()

	b.Load(mod, 2)
	b.InvokeStatic(main, fmt.Sprintf("tbl$arr_%d", i), arrDesc)
	b.Store(arr, 3)
	b.Load(arr, 3)
	b.Insn(jvm.OpArrayLength)
	b.Store(jvm.TypeInt, 4) // cur

	b.Load(jvm.TypeInt, 1)
	b.Branch(jvm.OpIfLt, fail)

	b.Load(jvm.TypeInt, 4)
	b.Insn(jvm.OpI2L)
	b.Load(jvm.TypeInt, 1)
	b.Insn(jvm.OpI2L)
	b.Insn(jvm.OpLAdd)
	b.Insn(jvm.OpDup2)
	b.ConstInt(effectiveMaxEntries(table))
	b.Insn(jvm.OpI2L)
	b.Insn(jvm.OpLCmp)
	b.Branch(jvm.OpIfGt, failPop)
	b.Insn(jvm.OpL2I)
	b.Store(jvm.TypeInt, 5) // newLen

	b.Load(jvm.TypeInt, 5)
	b.ANewArray(elem.InternalName())
	b.Store(arr, 6)
	b.Load(arr, 3)
	b.ConstInt(0)
	b.Load(arr, 6)
	b.ConstInt(0)
	b.Load(jvm.TypeInt, 4)
	b.InvokeStatic("java/lang/System", "arraycopy", jvm.MethodDescriptor{
		Params: []jvm.FieldType{object, jvm.TypeInt, object, jvm.TypeInt, jvm.TypeInt}})

	b.Load(jvm.TypeInt, 4)
	b.Store(jvm.TypeInt, 7)
	b.PlaceLabel(loop)
	b.Load(jvm.TypeInt, 7)
	b.Load(jvm.TypeInt, 5)
	b.Branch(jvm.OpIfICmpGe, done)
	b.Load(arr, 6)
	b.Load(jvm.TypeInt, 7)
	b.Load(elem, 0)
	b.Insn(jvm.OpAAStore)
	b.IInc(7, 1)
	b.Branch(jvm.OpGoto, loop)
	b.PlaceLabel(done)

	b.Load(mod, 2)
	b.GetField(main, fmt.Sprintf("tset%d", i), jvm.ObjectType(jvm.MethodHandleClass))
	b.Load(mod, 2)
	b.GetField(main, fmt.Sprintf("t%d", i), object)
	b.Load(arr, 6)
	b.InvokeVirtual(jvm.MethodHandleClass, "invokeExact", jvm.MethodDescriptor{
		Params: []jvm.FieldType{object, arr}})

	b.Load(jvm.TypeInt, 4)
	b.Return(jvm.TypeInt)

	b.PlaceLabel(failPop)
	b.Insn(jvm.OpPop2)
	b.PlaceLabel(fail)
	b.ConstInt(-1)
	b.Return(jvm.TypeInt)
}

func (t *ModuleTranslator) emitGlobalHelpers(i int, g *wasm.GlobalType, imported bool) {
	mod := t.moduleType()
	main := t.plan.moduleClass()
	jt := jvmTypeOf(g.ValType)
	gField := fmt.Sprintf("g%d", i)
	object := jvm.ObjectType(jvm.ObjectClass)

	get := t.newHelper(fmt.Sprintf("glb$get_%d", i), jvm.MethodDescriptor{
		Params: []jvm.FieldType{mod}, Result: jt})
	b := get.Builder()
	if imported {
		b.Load(mod, 0)
		b.GetField(main, fmt.Sprintf("gget%d", i), jvm.ObjectType(jvm.MethodHandleClass))
		b.Load(mod, 0)
		b.GetField(main, gField, object)
		b.InvokeVirtual(jvm.MethodHandleClass, "invokeExact", jvm.MethodDescriptor{
			Params: []jvm.FieldType{object}, Result: jt})
	} else {
		cls := t.ensureGlobalCarrier(g.ValType)
		b.Load(mod, 0)
		b.GetField(main, gField, jvm.ObjectType(cls))
		b.GetField(cls, globalFieldName, jt)
	}
	b.Return(jt)
	mustFinish(get)

	if !g.Mutable {
		return
	}
	modSlot := jt.SlotWidth()
	set := t.newHelper(fmt.Sprintf("glb$set_%d", i), jvm.MethodDescriptor{
		Params: []jvm.FieldType{jt, mod}})
	b = set.Builder()
	if imported {
		b.Load(mod, modSlot)
		b.GetField(main, fmt.Sprintf("gset%d", i), jvm.ObjectType(jvm.MethodHandleClass))
		b.Load(mod, modSlot)
		b.GetField(main, gField, object)
		b.Load(jt, 0)
		b.InvokeVirtual(jvm.MethodHandleClass, "invokeExact", jvm.MethodDescriptor{
			Params: []jvm.FieldType{object, jt}})
	} else {
		cls := t.ensureGlobalCarrier(g.ValType)
		b.Load(mod, modSlot)
		b.GetField(main, gField, jvm.ObjectType(cls))
		b.Load(jt, 0)
		b.PutField(cls, globalFieldName, jt)
	}
	b.Return("")
	mustFinish(set)
}
