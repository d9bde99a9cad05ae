package translate

import (
	"github.com/wasmlift/wasmlift/internal/jvm"
	"github.com/wasmlift/wasmlift/internal/wasm"
)

// jvmTypeOf maps a WASM value type to its unboxed JVM form: i32 and i64 to
// int and long, floats to float and double, funcref to MethodHandle and
// externref to a plain object reference.
func jvmTypeOf(t wasm.ValueType) jvm.FieldType {
	switch t {
	case wasm.ValueTypeI32:
		return jvm.TypeInt
	case wasm.ValueTypeI64:
		return jvm.TypeLong
	case wasm.ValueTypeF32:
		return jvm.TypeFloat
	case wasm.ValueTypeF64:
		return jvm.TypeDouble
	case wasm.ValueTypeFuncref:
		return jvm.ObjectType(jvm.MethodHandleClass)
	case wasm.ValueTypeExternref:
		return jvm.ObjectType(jvm.ObjectClass)
	}
	panic("BUG: unknown value type")
}

// boxClassOf returns the box class of a numeric value type, or the reference
// class for types that are already references.
func boxClassOf(t wasm.ValueType) string {
	switch t {
	case wasm.ValueTypeI32:
		return jvm.IntegerClass
	case wasm.ValueTypeI64:
		return jvm.LongClass
	case wasm.ValueTypeF32:
		return jvm.FloatClass
	case wasm.ValueTypeF64:
		return jvm.DoubleClass
	case wasm.ValueTypeFuncref:
		return jvm.MethodHandleClass
	case wasm.ValueTypeExternref:
		return jvm.ObjectClass
	}
	panic("BUG: unknown value type")
}

// objectArray is the carrier type of packed parameters and results. Elements
// are always boxed so the array stays uniformly java/lang/Object.
var objectArray = jvm.ArrayOf(jvm.ObjectType(jvm.ObjectClass))

// signature is the JVM projection of a WASM function type.
type signature struct {
	wasm *wasm.FunctionType
	// packedParams is set when the parameters exceed the JVM's 255-slot
	// argument budget and collapse into one boxed object array.
	packedParams bool
	// packedResults is set when there is more than one result, which the JVM
	// cannot return natively.
	packedResults bool
	// desc is the resulting descriptor, before any synthetic trailing
	// parameter (such as the module reference on inner static methods).
	desc jvm.MethodDescriptor
}

// maxParamSlots reserves one of the JVM's 255 argument slots for a receiver
// or the synthetic module reference.
const maxParamSlots = 254

// signatureOf projects a WASM function type onto a JVM method shape,
// packing whichever side does not fit.
func signatureOf(ft *wasm.FunctionType) signature {
	s := signature{wasm: ft}

	slots := 0
	for _, p := range ft.Params {
		slots += jvmTypeOf(p).SlotWidth()
	}
	s.packedParams = slots > maxParamSlots
	s.packedResults = len(ft.Results) > 1

	if s.packedParams {
		s.desc.Params = []jvm.FieldType{objectArray}
	} else {
		for _, p := range ft.Params {
			s.desc.Params = append(s.desc.Params, jvmTypeOf(p))
		}
	}
	switch {
	case s.packedResults:
		s.desc.Result = objectArray
	case len(ft.Results) == 1:
		s.desc.Result = jvmTypeOf(ft.Results[0])
	}
	return s
}

// innerDesc returns the descriptor of the static per-function method, which
// carries the module reference as a synthetic trailing parameter.
func (s signature) innerDesc(moduleType jvm.FieldType) jvm.MethodDescriptor {
	params := make([]jvm.FieldType, 0, len(s.desc.Params)+1)
	params = append(params, s.desc.Params...)
	params = append(params, moduleType)
	return jvm.MethodDescriptor{Params: params, Result: s.desc.Result}
}

// emitBox boxes the unboxed top of stack.
func emitBox(b *jvm.CodeBuilder, t wasm.ValueType) {
	switch t {
	case wasm.ValueTypeI32:
		b.InvokeStatic(jvm.IntegerClass, "valueOf", jvm.MethodDescriptor{
			Params: []jvm.FieldType{jvm.TypeInt}, Result: jvm.ObjectType(jvm.IntegerClass)})
	case wasm.ValueTypeI64:
		b.InvokeStatic(jvm.LongClass, "valueOf", jvm.MethodDescriptor{
			Params: []jvm.FieldType{jvm.TypeLong}, Result: jvm.ObjectType(jvm.LongClass)})
	case wasm.ValueTypeF32:
		b.InvokeStatic(jvm.FloatClass, "valueOf", jvm.MethodDescriptor{
			Params: []jvm.FieldType{jvm.TypeFloat}, Result: jvm.ObjectType(jvm.FloatClass)})
	case wasm.ValueTypeF64:
		b.InvokeStatic(jvm.DoubleClass, "valueOf", jvm.MethodDescriptor{
			Params: []jvm.FieldType{jvm.TypeDouble}, Result: jvm.ObjectType(jvm.DoubleClass)})
	}
	// references are already objects
}

// emitUnbox converts an object on top of stack to the unboxed form of t.
func emitUnbox(b *jvm.CodeBuilder, t wasm.ValueType) {
	switch t {
	case wasm.ValueTypeI32:
		b.CheckCast(jvm.ObjectType(jvm.IntegerClass))
		b.InvokeVirtual(jvm.IntegerClass, "intValue", jvm.MethodDescriptor{Result: jvm.TypeInt})
	case wasm.ValueTypeI64:
		b.CheckCast(jvm.ObjectType(jvm.LongClass))
		b.InvokeVirtual(jvm.LongClass, "longValue", jvm.MethodDescriptor{Result: jvm.TypeLong})
	case wasm.ValueTypeF32:
		b.CheckCast(jvm.ObjectType(jvm.FloatClass))
		b.InvokeVirtual(jvm.FloatClass, "floatValue", jvm.MethodDescriptor{Result: jvm.TypeFloat})
	case wasm.ValueTypeF64:
		b.CheckCast(jvm.ObjectType(jvm.DoubleClass))
		b.InvokeVirtual(jvm.DoubleClass, "doubleValue", jvm.MethodDescriptor{Result: jvm.TypeDouble})
	case wasm.ValueTypeFuncref:
		b.CheckCast(jvm.ObjectType(jvm.MethodHandleClass))
	}
	// externref stays a plain object
}
