package translate

import (
	"github.com/wasmlift/wasmlift/internal/jvm"
	"github.com/wasmlift/wasmlift/internal/wasm"
)

// Carrier classes host WASM runtime entities behind the fixed field-name
// convention: one conventional field per carrier, plus the resize helpers the
// entity kind calls for. Structurally equal carriers share one class.

var (
	byteBuffer = jvm.ObjectType(jvm.ByteBufferClass)
	byteOrder  = jvm.ObjectType(jvm.ByteOrderClass)
)

func (t *ModuleTranslator) registerCarrier(key string, build func(name string) *jvm.ClassFile) string {
	name := t.plan.carrierClass(keyField(key), keyType(key))
	if _, ok := t.carrierSet[name]; !ok {
		cls := build(name)
		t.carrierSet[name] = cls
		t.carriers = append(t.carriers, cls)
	}
	return name
}

func keyField(key string) string       { return key[:indexByte(key, ':')] }
func keyType(key string) jvm.FieldType { return jvm.FieldType(key[indexByte(key, ':')+1:]) }

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return len(s)
}

// ensureMemoryCarrier emits (once) the memory carrier: a little-endian direct
// byte buffer behind the conventional "memory" field, with page-granular size
// and grow helpers. Grow swaps in a freshly allocated copy and reports the
// previous page count, or -1 when the declared or 31-bit maximum is hit.
func (t *ModuleTranslator) ensureMemoryCarrier() string {
	return t.registerCarrier(memoryFieldName+":"+string(byteBuffer), func(name string) *jvm.ClassFile {
		cls := jvm.NewClassFile(name, jvm.ObjectClass)
		cls.AddField(jvm.AccPublic, memoryFieldName, byteBuffer)
		cls.AddField(jvm.AccPrivate|jvm.AccFinal, "max", jvm.TypeInt)

		// <init>(pages, maxPages)
		init := cls.NewMethod(jvm.AccPublic, "<init>", jvm.MethodDescriptor{
			Params: []jvm.FieldType{jvm.TypeInt, jvm.TypeInt}})
		b := init.Builder()
		b.Load(jvm.ObjectType(name), 0)
		b.InvokeSpecial(jvm.ObjectClass, "<init>", jvm.MethodDescriptor{})
		b.Load(jvm.ObjectType(name), 0)
		b.Load(jvm.TypeInt, 1)
		b.ConstInt(16)
		b.Insn(jvm.OpIShl)
		emitAllocateBuffer(b)
		b.PutField(name, memoryFieldName, byteBuffer)
		b.Load(jvm.ObjectType(name), 0)
		b.Load(jvm.TypeInt, 2)
		b.PutField(name, "max", jvm.TypeInt)
		b.Return("")
		mustFinish(init)

		// size() in pages
		size := cls.NewMethod(jvm.AccPublic, "size", jvm.MethodDescriptor{Result: jvm.TypeInt})
		b = size.Builder()
		b.Load(jvm.ObjectType(name), 0)
		b.GetField(name, memoryFieldName, byteBuffer)
		emitBufferLimit(b)
		b.ConstInt(16)
		b.Insn(jvm.OpIUShr)
		b.Return(jvm.TypeInt)
		mustFinish(size)

		// grow(deltaPages) -> previous pages or -1
		grow := cls.NewMethod(jvm.AccPublic, "grow", jvm.MethodDescriptor{
			Params: []jvm.FieldType{jvm.TypeInt}, Result: jvm.TypeInt})
		b = grow.Builder()
		fail := b.NewLabel()
		failPop := b.NewLabel()

		// cur = limit >>> 16
		b.Load(jvm.ObjectType(name), 0)
		b.GetField(name, memoryFieldName, byteBuffer)
		emitBufferLimit(b)
		b.ConstInt(16)
		b.Insn(jvm.OpIUShr)
		b.Store(jvm.TypeInt, 2)

		// delta interpreted as u32: the sign bit alone exceeds any maximum
		b.Load(jvm.TypeInt, 1)
		b.Branch(jvm.OpIfLt, fail)

		// newPages = cur + delta, checked against max in 64 bits
		b.Load(jvm.TypeInt, 2)
		b.Insn(jvm.OpI2L)
		b.Load(jvm.TypeInt, 1)
		b.Insn(jvm.OpI2L)
		b.Insn(jvm.OpLAdd)
		b.Insn(jvm.OpDup2)
		b.Load(jvm.ObjectType(name), 0)
		b.GetField(name, "max", jvm.TypeInt)
		b.Insn(jvm.OpI2L)
		b.Insn(jvm.OpLCmp)
		b.Branch(jvm.OpIfGt, failPop)
		b.Insn(jvm.OpL2I)
		b.Store(jvm.TypeInt, 3)

		// allocate, copy, swap
		b.Load(jvm.TypeInt, 3)
		b.ConstInt(16)
		b.Insn(jvm.OpIShl)
		emitAllocateBuffer(b)
		b.Store(byteBuffer, 4)
		b.Load(byteBuffer, 4)
		b.Load(jvm.ObjectType(name), 0)
		b.GetField(name, memoryFieldName, byteBuffer)
		b.InvokeVirtual(jvm.ByteBufferClass, "duplicate", jvm.MethodDescriptor{Result: byteBuffer})
		b.InvokeVirtual(jvm.ByteBufferClass, "put", jvm.MethodDescriptor{
			Params: []jvm.FieldType{byteBuffer}, Result: byteBuffer})
		emitBufferRewind(b)
		b.Load(jvm.ObjectType(name), 0)
		b.Load(byteBuffer, 4)
		b.PutField(name, memoryFieldName, byteBuffer)
		b.Load(jvm.TypeInt, 2)
		b.Return(jvm.TypeInt)

		b.PlaceLabel(failPop)
		b.Insn(jvm.OpPop2)
		b.PlaceLabel(fail)
		b.ConstInt(-1)
		b.Return(jvm.TypeInt)
		mustFinish(grow)

		return cls
	})
}

// ensureTableCarrier emits (once) the table carrier for the given element
// type: a reference array behind the conventional "table" field.
func (t *ModuleTranslator) ensureTableCarrier(elemType wasm.ValueType) string {
	elem := jvmTypeOf(elemType)
	arr := jvm.ArrayOf(elem)
	return t.registerCarrier(tableFieldName+":"+string(arr), func(name string) *jvm.ClassFile {
		cls := jvm.NewClassFile(name, jvm.ObjectClass)
		cls.AddField(jvm.AccPublic, tableFieldName, arr)
		cls.AddField(jvm.AccPrivate|jvm.AccFinal, "max", jvm.TypeInt)

		init := cls.NewMethod(jvm.AccPublic, "<init>", jvm.MethodDescriptor{
			Params: []jvm.FieldType{jvm.TypeInt, jvm.TypeInt}})
		b := init.Builder()
		b.Load(jvm.ObjectType(name), 0)
		b.InvokeSpecial(jvm.ObjectClass, "<init>", jvm.MethodDescriptor{})
		b.Load(jvm.ObjectType(name), 0)
		b.Load(jvm.TypeInt, 1)
		b.ANewArray(elem.InternalName())
		b.PutField(name, tableFieldName, arr)
		b.Load(jvm.ObjectType(name), 0)
		b.Load(jvm.TypeInt, 2)
		b.PutField(name, "max", jvm.TypeInt)
		b.Return("")
		mustFinish(init)

		size := cls.NewMethod(jvm.AccPublic, "size", jvm.MethodDescriptor{Result: jvm.TypeInt})
		b = size.Builder()
		b.Load(jvm.ObjectType(name), 0)
		b.GetField(name, tableFieldName, arr)
		b.Insn(jvm.OpArrayLength)
		b.Return(jvm.TypeInt)
		mustFinish(size)

		// grow(delta, init) -> previous size or -1
		grow := cls.NewMethod(jvm.AccPublic, "grow", jvm.MethodDescriptor{
			Params: []jvm.FieldType{jvm.TypeInt, elem}, Result: jvm.TypeInt})
		b = grow.Builder()
		fail := b.NewLabel()
		failPop := b.NewLabel()
		loop := b.NewLabel()
		done := b.NewLabel()

		b.Load(jvm.ObjectType(name), 0)
		b.GetField(name, tableFieldName, arr)
		b.Store(arr, 3)
		b.Load(arr, 3)
		b.Insn(jvm.OpArrayLength)
		b.Store(jvm.TypeInt, 4)

		b.Load(jvm.TypeInt, 1)
		b.Branch(jvm.OpIfLt, fail)

		b.Load(jvm.TypeInt, 4)
		b.Insn(jvm.OpI2L)
		b.Load(jvm.TypeInt, 1)
		b.Insn(jvm.OpI2L)
		b.Insn(jvm.OpLAdd)
		b.Insn(jvm.OpDup2)
		b.Load(jvm.ObjectType(name), 0)
		b.GetField(name, "max", jvm.TypeInt)
		b.Insn(jvm.OpI2L)
		b.Insn(jvm.OpLCmp)
		b.Branch(jvm.OpIfGt, failPop)
		b.Insn(jvm.OpL2I)
		b.Store(jvm.TypeInt, 5)

		b.Load(jvm.TypeInt, 5)
		b.ANewArray(elem.InternalName())
		b.Store(arr, 6)
		b.Load(arr, 3)
		b.ConstInt(0)
		b.Load(arr, 6)
		b.ConstInt(0)
		b.Load(jvm.TypeInt, 4)
		b.InvokeStatic("java/lang/System", "arraycopy", jvm.MethodDescriptor{
			Params: []jvm.FieldType{jvm.ObjectType(jvm.ObjectClass), jvm.TypeInt,
				jvm.ObjectType(jvm.ObjectClass), jvm.TypeInt, jvm.TypeInt}})

		b.Load(jvm.TypeInt, 4)
		b.Store(jvm.TypeInt, 7)
		b.PlaceLabel(loop)
		b.Load(jvm.TypeInt, 7)
		b.Load(jvm.TypeInt, 5)
		b.Branch(jvm.OpIfICmpGe, done)
		b.Load(arr, 6)
		b.Load(jvm.TypeInt, 7)
		b.Load(elem, 2)
		b.Insn(jvm.OpAAStore)
		b.IInc(7, 1)
		b.Branch(jvm.OpGoto, loop)
		b.PlaceLabel(done)

		b.Load(jvm.ObjectType(name), 0)
		b.Load(arr, 6)
		b.PutField(name, tableFieldName, arr)
		b.Load(jvm.TypeInt, 4)
		b.Return(jvm.TypeInt)

		b.PlaceLabel(failPop)
		b.Insn(jvm.OpPop2)
		b.PlaceLabel(fail)
		b.ConstInt(-1)
		b.Return(jvm.TypeInt)
		mustFinish(grow)

		return cls
	})
}

// ensureGlobalCarrier emits (once) the global carrier for the given value
// type: a single conventional "global" field of the matching JVM type.
func (t *ModuleTranslator) ensureGlobalCarrier(valType wasm.ValueType) string {
	jt := jvmTypeOf(valType)
	return t.registerCarrier(globalFieldName+":"+string(jt), func(name string) *jvm.ClassFile {
		cls := jvm.NewClassFile(name, jvm.ObjectClass)
		cls.AddField(jvm.AccPublic, globalFieldName, jt)

		init := cls.NewMethod(jvm.AccPublic, "<init>", jvm.MethodDescriptor{
			Params: []jvm.FieldType{jt}})
		b := init.Builder()
		b.Load(jvm.ObjectType(name), 0)
		b.InvokeSpecial(jvm.ObjectClass, "<init>", jvm.MethodDescriptor{})
		b.Load(jvm.ObjectType(name), 0)
		b.Load(jt, 1)
		b.PutField(name, globalFieldName, jt)
		b.Return("")
		mustFinish(init)

		return cls
	})
}

// ensureTrapClass emits the trap exception class: a RuntimeException with a
// stable integer kind and a fixed message per kind.
func (t *ModuleTranslator) ensureTrapClass() string {
	name := t.plan.trapClass()
	if _, ok := t.carrierSet[name]; ok {
		return name
	}
	cls := jvm.NewClassFile(name, jvm.RuntimeExceptionClass)
	cls.AddField(jvm.AccPublic|jvm.AccFinal, "kind", jvm.TypeInt)
	stringArr := jvm.ArrayOf(jvm.ObjectType(jvm.StringClass))
	cls.AddField(jvm.AccPrivate|jvm.AccStatic|jvm.AccFinal, "MESSAGES", stringArr)

	clinit := cls.NewMethod(jvm.AccStatic, "<clinit>", jvm.MethodDescriptor{})
	b := clinit.Builder()
	b.ConstInt(int32(numTrapKinds))
	b.ANewArray(jvm.StringClass)
	for k := TrapKind(0); k < numTrapKinds; k++ {
		b.Insn(jvm.OpDup)
		b.ConstInt(int32(k))
		b.ConstString(k.String())
		b.Insn(jvm.OpAAStore)
	}
	b.PutStatic(name, "MESSAGES", stringArr)
	b.Return("")
	mustFinish(clinit)

	init := cls.NewMethod(jvm.AccPublic, "<init>", jvm.MethodDescriptor{
		Params: []jvm.FieldType{jvm.TypeInt}})
	b = init.Builder()
	b.Load(jvm.ObjectType(name), 0)
	b.GetStatic(name, "MESSAGES", stringArr)
	b.Load(jvm.TypeInt, 1)
	b.Insn(jvm.OpAALoad)
	b.InvokeSpecial(jvm.RuntimeExceptionClass, "<init>", jvm.MethodDescriptor{
		Params: []jvm.FieldType{jvm.ObjectType(jvm.StringClass)}})
	b.Load(jvm.ObjectType(name), 0)
	b.Load(jvm.TypeInt, 1)
	b.PutField(name, "kind", jvm.TypeInt)
	b.Return("")
	mustFinish(init)

	t.carrierSet[name] = cls
	t.carriers = append(t.carriers, cls)
	return name
}

func emitAllocateBuffer(b *jvm.CodeBuilder) {
	b.InvokeStatic(jvm.ByteBufferClass, "allocateDirect", jvm.MethodDescriptor{
		Params: []jvm.FieldType{jvm.TypeInt}, Result: byteBuffer})
	b.GetStatic(jvm.ByteOrderClass, "LITTLE_ENDIAN", byteOrder)
	b.InvokeVirtual(jvm.ByteBufferClass, "order", jvm.MethodDescriptor{
		Params: []jvm.FieldType{byteOrder}, Result: byteBuffer})
}

func emitBufferLimit(b *jvm.CodeBuilder) {
	b.InvokeVirtual(jvm.ByteBufferClass, "limit", jvm.MethodDescriptor{Result: jvm.TypeInt})
}

func emitBufferRewind(b *jvm.CodeBuilder) {
	b.InvokeVirtual(jvm.ByteBufferClass, "rewind", jvm.MethodDescriptor{
		Result: jvm.ObjectType("java/nio/Buffer")})
	b.Insn(jvm.OpPop)
}

// mustFinish seals a helper method whose body is generated by the translator
// itself: a failure is a translator bug.
func mustFinish(m *jvm.Method) {
	if err := m.FinishMethod(); err != nil {
		panic("BUG: " + err.Error())
	}
}
