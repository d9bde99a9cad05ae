package translate

import (
	"bytes"
	"fmt"

	"github.com/wasmlift/wasmlift/internal/ieee754"
	"github.com/wasmlift/wasmlift/internal/jvm"
	"github.com/wasmlift/wasmlift/internal/leb128"
	"github.com/wasmlift/wasmlift/internal/wasm"
)

// dataChunkBytes bounds the string constants carrying data segments: modified
// UTF-8 can spend two bytes per segment byte and a constant is capped at
// 65535 encoded bytes.
const dataChunkBytes = 30000

// emitConstructor assembles <init>(Map): allocate carriers, bind imports,
// build the bound function handle table, evaluate global initializers,
// initialize element and data segments, run the start function, and publish
// the exports map.
func (t *ModuleTranslator) emitConstructor() error {
	mod := t.moduleType()
	main := t.plan.moduleClass()
	handle := jvm.ObjectType(jvm.MethodHandleClass)
	mapType := jvm.ObjectType(jvm.MapClass)
	handleArr := jvm.ArrayOf(handle)

	method := t.main.NewMethod(jvm.AccPublic, "<init>", jvm.MethodDescriptor{
		Params: []jvm.FieldType{mapType}})
	b := method.Builder()

	b.Load(mod, 0)
	b.InvokeSpecial(jvm.ObjectClass, "<init>", jvm.MethodDescriptor{})

	// Defined memory and table carriers.
	importedMems := int(t.m.ImportMemoryCount())
	for i, mem := range t.m.Memories() {
		if i < importedMems {
			continue
		}
		cls := t.ensureMemoryCarrier()
		b.Load(mod, 0)
		b.New(cls)
		b.Insn(jvm.OpDup)
		b.ConstInt(int32(mem.Min))
		b.ConstInt(effectiveMaxPages(mem))
		b.InvokeSpecial(cls, "<init>", jvm.MethodDescriptor{
			Params: []jvm.FieldType{jvm.TypeInt, jvm.TypeInt}})
		b.PutField(main, fmt.Sprintf("m%d", i), jvm.ObjectType(cls))
	}
	importedTables := int(t.m.ImportTableCount())
	for i, table := range t.m.Tables() {
		if i < importedTables {
			continue
		}
		cls := t.ensureTableCarrier(table.ElemType)
		b.Load(mod, 0)
		b.New(cls)
		b.Insn(jvm.OpDup)
		b.ConstInt(int32(table.Limit.Min))
		b.ConstInt(effectiveMaxEntries(table))
		b.InvokeSpecial(cls, "<init>", jvm.MethodDescriptor{
			Params: []jvm.FieldType{jvm.TypeInt, jvm.TypeInt}})
		b.PutField(main, fmt.Sprintf("t%d", i), jvm.ObjectType(cls))
	}

	// The bound function handle table.
	numFuncs := int(t.m.ImportFuncCount()) + len(t.m.FunctionSection)
	b.Load(mod, 0)
	b.ConstInt(int32(numFuncs))
	b.ANewArray(jvm.MethodHandleClass)
	b.PutField(main, "funcs", handleArr)

	// Bind imports in declaration order.
	var funcIdx, tableIdx, memIdx, globalIdx int
	for _, im := range t.m.ImportSection {
		switch im.Kind {
		case wasm.ImportKindFunc:
			sig := t.typeSigs[im.DescFunc]
			b.Load(mod, 0)
			b.GetField(main, "funcs", handleArr)
			b.ConstInt(int32(funcIdx))
			t.emitFetchImport(b, im)
			b.CheckCast(handle)
			b.ConstMethodType(sig.desc)
			b.InvokeVirtual(jvm.MethodHandleClass, "asType", jvm.MethodDescriptor{
				Params: []jvm.FieldType{jvm.ObjectType(jvm.MethodTypeClass)}, Result: handle})
			b.Insn(jvm.OpAAStore)
			funcIdx++
		case wasm.ImportKindGlobal:
			t.emitBindFieldImport(b, im, fmt.Sprintf("g%d", globalIdx),
				fmt.Sprintf("gget%d", globalIdx), fmt.Sprintf("gset%d", globalIdx),
				globalFieldName, jvmTypeOf(im.DescGlobal.ValType), im.DescGlobal.Mutable)
			globalIdx++
		case wasm.ImportKindMemory:
			t.emitBindFieldImport(b, im, fmt.Sprintf("m%d", memIdx),
				fmt.Sprintf("mget%d", memIdx), fmt.Sprintf("mset%d", memIdx),
				memoryFieldName, byteBuffer, true)
			memIdx++
		case wasm.ImportKindTable:
			t.emitBindFieldImport(b, im, fmt.Sprintf("t%d", tableIdx),
				fmt.Sprintf("tget%d", tableIdx), fmt.Sprintf("tset%d", tableIdx),
				tableFieldName, jvm.ArrayOf(jvmTypeOf(im.DescTable.ElemType)), true)
			tableIdx++
		}
	}

	// Bind module-defined functions: each handle is the static method with
	// the module reference inserted as its trailing argument.
	importedFuncs := int(t.m.ImportFuncCount())
	for i := range t.m.FunctionSection {
		idx := importedFuncs + i
		sig := t.funcSigs[idx]
		inner := sig.innerDesc(mod)
		b.Load(mod, 0)
		b.GetField(main, "funcs", handleArr)
		b.ConstInt(int32(idx))
		b.ConstMethodHandleStatic(main, t.plan.funcMethodName(wasm.Index(idx)), inner)
		b.ConstInt(int32(len(sig.desc.Params)))
		b.ConstInt(1)
		b.ANewArray(jvm.ObjectClass)
		b.Insn(jvm.OpDup)
		b.ConstInt(0)
		b.Load(mod, 0)
		b.Insn(jvm.OpAAStore)
		b.InvokeStatic(jvm.MethodHandlesClass, "insertArguments", jvm.MethodDescriptor{
			Params: []jvm.FieldType{handle, jvm.TypeInt, jvm.ArrayOf(jvm.ObjectType(jvm.ObjectClass))},
			Result: handle})
		b.Insn(jvm.OpAAStore)
	}

	// Evaluate global initializers.
	importedGlobals := int(t.m.ImportGlobalCount())
	for i, g := range t.m.GlobalSection {
		idx := importedGlobals + i
		cls := t.ensureGlobalCarrier(g.Type.ValType)
		b.Load(mod, 0)
		b.New(cls)
		b.Insn(jvm.OpDup)
		if err := t.emitConstExpr(b, g.Init, g.Type.ValType); err != nil {
			return err
		}
		b.InvokeSpecial(cls, "<init>", jvm.MethodDescriptor{
			Params: []jvm.FieldType{jvmTypeOf(g.Type.ValType)}})
		b.PutField(main, fmt.Sprintf("g%d", idx), jvm.ObjectType(cls))
	}

	// Element segments.
	tables := t.m.Tables()
	for segIdx, seg := range t.m.ElementSection {
		if int(seg.TableIndex) >= len(tables) {
			return newError(ErrKindInternal, fmt.Sprintf("element segment %d", segIdx),
				"table index out of range: %d", seg.TableIndex)
		}
		elem := jvmTypeOf(tables[seg.TableIndex].ElemType)
		arr := jvm.ArrayOf(elem)
		b.Load(mod, 0)
		b.InvokeStatic(main, fmt.Sprintf("tbl$arr_%d", seg.TableIndex),
			jvm.MethodDescriptor{Params: []jvm.FieldType{mod}, Result: arr})
		b.Store(arr, 2)
		if err := t.emitConstExpr(b, seg.OffsetExpr, wasm.ValueTypeI32); err != nil {
			return err
		}
		b.Store(jvm.TypeInt, 3)

		ok := b.NewLabel()
		b.Load(jvm.TypeInt, 3)
		b.Insn(jvm.OpI2L)
		b.ConstLong(0xffffffff)
		b.Insn(jvm.OpLAnd)
		b.ConstLong(int64(len(seg.Init)))
		b.Insn(jvm.OpLAdd)
		b.Load(arr, 2)
		b.Insn(jvm.OpArrayLength)
		b.Insn(jvm.OpI2L)
		b.Insn(jvm.OpLCmp)
		b.Branch(jvm.OpIfLe, ok)
		t.emitTrapCall(b, TrapElementSegmentOutOfBounds)
		b.PlaceLabel(ok)

		for j, fidx := range seg.Init {
			b.Load(arr, 2)
			b.Load(jvm.TypeInt, 3)
			b.ConstInt(int32(j))
			b.Insn(jvm.OpIAdd)
			b.Load(mod, 0)
			b.GetField(main, "funcs", handleArr)
			b.ConstInt(int32(fidx))
			b.Insn(jvm.OpAALoad)
			b.Insn(jvm.OpAAStore)
		}
	}

	// Data segments.
	for segIdx, seg := range t.m.DataSection {
		if int(seg.MemoryIndex) >= len(t.m.Memories()) {
			return newError(ErrKindInternal, fmt.Sprintf("data segment %d", segIdx),
				"memory index out of range: %d", seg.MemoryIndex)
		}
		t.useHelper("data$write")
		b.Load(mod, 0)
		b.InvokeStatic(main, fmt.Sprintf("mem$buf_%d", seg.MemoryIndex),
			jvm.MethodDescriptor{Params: []jvm.FieldType{mod}, Result: byteBuffer})
		b.Store(byteBuffer, 2)
		if err := t.emitConstExpr(b, seg.OffsetExpr, wasm.ValueTypeI32); err != nil {
			return err
		}
		b.Store(jvm.TypeInt, 3)

		init := seg.Init
		for base := 0; base == 0 || base < len(init); base += dataChunkBytes {
			end := base + dataChunkBytes
			if end > len(init) {
				end = len(init)
			}
			b.Load(byteBuffer, 2)
			b.Load(jvm.TypeInt, 3)
			if base > 0 {
				b.ConstInt(int32(base))
				b.Insn(jvm.OpIAdd)
			}
			b.ConstString(bytesToLatin1(init[base:end]))
			b.InvokeStatic(main, "data$write", jvm.MethodDescriptor{
				Params: []jvm.FieldType{byteBuffer, jvm.TypeInt, jvm.ObjectType(jvm.StringClass)}})
		}
	}

	// Start function.
	if t.m.StartSection != nil {
		start := *t.m.StartSection
		sig := t.funcSigs[start]
		if start < t.m.ImportFuncCount() {
			b.Load(mod, 0)
			b.GetField(main, "funcs", handleArr)
			b.ConstInt(int32(start))
			b.Insn(jvm.OpAALoad)
			adapter := t.callAdapterFor(sig)
			b.InvokeStatic(main, adapter, adapterDesc(sig))
		} else {
			b.Load(mod, 0)
			b.InvokeStatic(main, t.plan.funcMethodName(start), sig.innerDesc(mod))
		}
	}

	// Publish exports.
	lhm := jvm.LinkedHashMapClass
	b.New(lhm)
	b.Insn(jvm.OpDup)
	b.InvokeSpecial(lhm, "<init>", jvm.MethodDescriptor{})
	b.Store(jvm.ObjectType(lhm), 2)
	for _, name := range sortedExportNames(t.m) {
		export := t.m.ExportSection[name]
		b.Load(jvm.ObjectType(lhm), 2)
		b.ConstString(name)
		switch export.Kind {
		case wasm.ExportKindFunc:
			b.Load(mod, 0)
			b.GetField(main, "funcs", handleArr)
			b.ConstInt(int32(export.Index))
			b.Insn(jvm.OpAALoad)
		case wasm.ExportKindGlobal:
			b.Load(mod, 0)
			b.GetField(main, fmt.Sprintf("g%d", export.Index), t.globalFieldType(int(export.Index)))
		case wasm.ExportKindMemory:
			b.Load(mod, 0)
			b.GetField(main, fmt.Sprintf("m%d", export.Index), t.memoryFieldType(int(export.Index)))
		case wasm.ExportKindTable:
			b.Load(mod, 0)
			b.GetField(main, fmt.Sprintf("t%d", export.Index), t.tableFieldType(int(export.Index)))
		}
		b.InvokeVirtual(lhm, "put", jvm.MethodDescriptor{
			Params: []jvm.FieldType{jvm.ObjectType(jvm.ObjectClass), jvm.ObjectType(jvm.ObjectClass)},
			Result: jvm.ObjectType(jvm.ObjectClass)})
		b.Insn(jvm.OpPop)
	}
	b.Load(mod, 0)
	b.Load(jvm.ObjectType(lhm), 2)
	b.PutField(main, "exports", mapType)

	b.Return("")
	t.pending = append(t.pending, method)
	return nil
}

// globalFieldType returns the declared field type of g<i>: the carrier class
// for defined globals, Object for imported ones.
func (t *ModuleTranslator) globalFieldType(i int) jvm.FieldType {
	if i < int(t.m.ImportGlobalCount()) {
		return jvm.ObjectType(jvm.ObjectClass)
	}
	return jvm.ObjectType(t.ensureGlobalCarrier(t.globals[i].ValType))
}

func (t *ModuleTranslator) memoryFieldType(i int) jvm.FieldType {
	if i < int(t.m.ImportMemoryCount()) {
		return jvm.ObjectType(jvm.ObjectClass)
	}
	return jvm.ObjectType(t.ensureMemoryCarrier())
}

func (t *ModuleTranslator) tableFieldType(i int) jvm.FieldType {
	if i < int(t.m.ImportTableCount()) {
		return jvm.ObjectType(jvm.ObjectClass)
	}
	return jvm.ObjectType(t.ensureTableCarrier(t.m.Tables()[i].ElemType))
}

// emitFetchImport loads the import value from the constructor's map argument
// and rejects a missing binding.
func (t *ModuleTranslator) emitFetchImport(b *jvm.CodeBuilder, im *wasm.Import) {
	name := canonicalImportName(im)
	b.Load(jvm.ObjectType(jvm.MapClass), 1)
	b.ConstString(name)
	b.InvokeInterface(jvm.MapClass, "get", jvm.MethodDescriptor{
		Params: []jvm.FieldType{jvm.ObjectType(jvm.ObjectClass)},
		Result: jvm.ObjectType(jvm.ObjectClass)})
	ok := b.NewLabel()
	b.Insn(jvm.OpDup)
	b.Branch(jvm.OpIfNonNull, ok)
	b.New(jvm.RuntimeExceptionClass)
	b.Insn(jvm.OpDup)
	b.ConstString("missing import: " + name)
	b.InvokeSpecial(jvm.RuntimeExceptionClass, "<init>", jvm.MethodDescriptor{
		Params: []jvm.FieldType{jvm.ObjectType(jvm.StringClass)}})
	b.Insn(jvm.OpAThrow)
	b.PlaceLabel(ok)
}

// emitBindFieldImport stores the host carrier object and caches asType'd
// getter (and setter) handles for its conventional field, looked up
// reflectively so hosts need no shared library type.
func (t *ModuleTranslator) emitBindFieldImport(b *jvm.CodeBuilder, im *wasm.Import,
	objField, getField, setField, conventionalName string, fieldType jvm.FieldType, withSetter bool) {
	mod := t.moduleType()
	main := t.plan.moduleClass()
	object := jvm.ObjectType(jvm.ObjectClass)
	handle := jvm.ObjectType(jvm.MethodHandleClass)
	lookup := jvm.ObjectType(jvm.LookupClass)
	field := jvm.ObjectType(jvm.FieldClass)
	methodType := jvm.ObjectType(jvm.MethodTypeClass)

	t.emitFetchImport(b, im)
	b.Store(object, 2)
	b.Load(mod, 0)
	b.Load(object, 2)
	b.PutField(main, objField, object)

	emitUnreflect := func(unreflect string, mt jvm.MethodDescriptor, target string) {
		b.Load(mod, 0)
		b.InvokeStatic(jvm.MethodHandlesClass, "lookup", jvm.MethodDescriptor{Result: lookup})
		b.Load(object, 2)
		b.InvokeVirtual(jvm.ObjectClass, "getClass", jvm.MethodDescriptor{
			Result: jvm.ObjectType(jvm.ClassClass)})
		b.ConstString(conventionalName)
		b.InvokeVirtual(jvm.ClassClass, "getField", jvm.MethodDescriptor{
			Params: []jvm.FieldType{jvm.ObjectType(jvm.StringClass)}, Result: field})
		b.InvokeVirtual(jvm.LookupClass, unreflect, jvm.MethodDescriptor{
			Params: []jvm.FieldType{field}, Result: handle})
		b.ConstMethodType(mt)
		b.InvokeVirtual(jvm.MethodHandleClass, "asType", jvm.MethodDescriptor{
			Params: []jvm.FieldType{methodType}, Result: handle})
		b.PutField(main, target, handle)
	}

	emitUnreflect("unreflectGetter", jvm.MethodDescriptor{
		Params: []jvm.FieldType{object}, Result: fieldType}, getField)
	if withSetter {
		emitUnreflect("unreflectSetter", jvm.MethodDescriptor{
			Params: []jvm.FieldType{object, fieldType}}, setField)
	}
}

// emitConstExpr lowers a constant expression onto the JVM stack.
func (t *ModuleTranslator) emitConstExpr(b *jvm.CodeBuilder, ce *wasm.ConstantExpression, want wasm.ValueType) error {
	r := bytes.NewReader(ce.Data)
	switch ce.Opcode {
	case wasm.OpcodeI32Const:
		v, _, err := leb128.DecodeInt32(r)
		if err != nil {
			return newError(ErrKindInternal, "", "const expr: %v", err)
		}
		b.ConstInt(v)
	case wasm.OpcodeI64Const:
		v, _, err := leb128.DecodeInt64(r)
		if err != nil {
			return newError(ErrKindInternal, "", "const expr: %v", err)
		}
		b.ConstLong(v)
	case wasm.OpcodeF32Const:
		v, err := ieee754.DecodeFloat32(r)
		if err != nil {
			return newError(ErrKindInternal, "", "const expr: %v", err)
		}
		b.ConstFloat(v)
	case wasm.OpcodeF64Const:
		v, err := ieee754.DecodeFloat64(r)
		if err != nil {
			return newError(ErrKindInternal, "", "const expr: %v", err)
		}
		b.ConstDouble(v)
	case wasm.OpcodeGlobalGet:
		idx, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return newError(ErrKindInternal, "", "const expr: %v", err)
		}
		if int(idx) >= len(t.globals) {
			return newError(ErrKindInternal, "", "const expr references global %d out of range", idx)
		}
		b.Load(t.moduleType(), 0)
		b.InvokeStatic(t.plan.moduleClass(), fmt.Sprintf("glb$get_%d", idx), jvm.MethodDescriptor{
			Params: []jvm.FieldType{t.moduleType()}, Result: jvmTypeOf(t.globals[idx].ValType)})
	case wasm.OpcodeRefNull:
		b.Insn(jvm.OpAConstNull)
	case wasm.OpcodeRefFunc:
		idx, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return newError(ErrKindInternal, "", "const expr: %v", err)
		}
		b.Load(t.moduleType(), 0)
		b.GetField(t.plan.moduleClass(), "funcs", jvm.ArrayOf(jvm.ObjectType(jvm.MethodHandleClass)))
		b.ConstInt(int32(idx))
		b.Insn(jvm.OpAALoad)
	default:
		return newError(ErrKindUnsupported, "", "const expression opcode 0x%x", ce.Opcode)
	}
	_ = want
	return nil
}

// bytesToLatin1 maps each byte to the code point of the same value, the
// inverse of what data$write's charAt narrowing performs.
func bytesToLatin1(bs []byte) string {
	runes := make([]rune, len(bs))
	for i, c := range bs {
		runes[i] = rune(c)
	}
	return string(runes)
}
