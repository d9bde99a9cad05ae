package translate

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/wasmlift/wasmlift/internal/ieee754"
	"github.com/wasmlift/wasmlift/internal/jvm"
	"github.com/wasmlift/wasmlift/internal/leb128"
	"github.com/wasmlift/wasmlift/internal/wasm"
)

// funcTranslator lowers one function body to JVM bytecode. It maintains the
// abstract typed operand stack, the WASM-local to JVM-slot map, the control
// frame stack, and the polymorphic-stack state entered by unreachable code.
type funcTranslator struct {
	mt  *ModuleTranslator
	sig signature

	funcIdx wasm.Index
	body    []byte
	pc      uint64

	// localTypes covers parameters then declared locals.
	localTypes []wasm.ValueType
	// localSlots maps a WASM local index to its JVM slot.
	localSlots []int
	// moduleSlot holds the synthetic trailing module-reference parameter.
	moduleSlot int
	// scratchBase is the first JVM slot free for branch reconciliation and
	// multi-value packing temporaries.
	scratchBase int

	b *jvm.CodeBuilder

	stack            []wasm.ValueType
	frames           *controlFrames
	unreachableState struct {
		on    bool
		depth int
	}
}

// For debugging only.
func (f *funcTranslator) stackDump() string {
	strs := make([]string, 0, len(f.stack))
	for _, s := range f.stack {
		strs = append(strs, wasm.ValueTypeName(s))
	}
	return "[" + strings.Join(strs, ", ") + "]"
}

// translateFunction compiles the body of the function at the given function
// index space offset into the provided method builder.
func (t *ModuleTranslator) translateFunction(funcIdx wasm.Index, code *wasm.Code, method *jvm.Method) error {
	sig := t.funcSigs[funcIdx]
	f := &funcTranslator{
		mt:      t,
		sig:     sig,
		funcIdx: funcIdx,
		body:    code.Body,
		b:       method.Builder(),
		frames:  &controlFrames{},
	}

	f.localTypes = append(f.localTypes, sig.wasm.Params...)
	f.localTypes = append(f.localTypes, code.LocalTypes...)

	f.layoutLocals()
	f.emitPrologue(code)

	// The function body behaves as one outer block returning the results.
	f.frames.push(&controlFrame{
		kind:      controlFrameKindFunction,
		blockType: sig.wasm,
		base:      0,
	})

	for !f.frames.empty() {
		if err := f.handleInstruction(); err != nil {
			return fmt.Errorf("handling instruction at offset %d: %w: stack: %s", f.pc, err, f.stackDump())
		}
	}
	return nil
}

// layoutLocals assigns JVM slots: declared parameters first (or the packed
// array), then the module reference, then declared locals, then scratch.
func (f *funcTranslator) layoutLocals() {
	next := 0
	if f.sig.packedParams {
		// Slot 0 is the boxed argument array; every parameter gets its own
		// slot after the module reference and is unpacked in the prologue.
		next = 1
		f.moduleSlot = next
		next++
		for _, p := range f.sig.wasm.Params {
			f.localSlots = append(f.localSlots, next)
			next += jvmTypeOf(p).SlotWidth()
		}
	} else {
		for _, p := range f.sig.wasm.Params {
			f.localSlots = append(f.localSlots, next)
			next += jvmTypeOf(p).SlotWidth()
		}
		f.moduleSlot = next
		next++
	}
	for _, lt := range f.localTypes[len(f.sig.wasm.Params):] {
		f.localSlots = append(f.localSlots, next)
		next += jvmTypeOf(lt).SlotWidth()
	}
	f.scratchBase = next
	f.b.ReserveLocals(next)
}

// emitPrologue unpacks a packed argument array and zero-initializes declared
// locals, as WASM requires.
func (f *funcTranslator) emitPrologue(code *wasm.Code) {
	if f.sig.packedParams {
		for i, p := range f.sig.wasm.Params {
			f.b.Load(objectArray, 0)
			f.b.ConstInt(int32(i))
			f.b.Insn(jvm.OpAALoad)
			emitUnbox(f.b, p)
			f.b.Store(jvmTypeOf(p), f.localSlots[i])
		}
	}
	numParams := len(f.sig.wasm.Params)
	for i, lt := range code.LocalTypes {
		slot := f.localSlots[numParams+i]
		switch lt {
		case wasm.ValueTypeI32:
			f.b.ConstInt(0)
		case wasm.ValueTypeI64:
			f.b.ConstLong(0)
		case wasm.ValueTypeF32:
			f.b.ConstFloat(0)
		case wasm.ValueTypeF64:
			f.b.ConstDouble(0)
		default:
			f.b.Insn(jvm.OpAConstNull)
		}
		f.b.Store(jvmTypeOf(lt), slot)
	}
}

func (f *funcTranslator) push(t wasm.ValueType) {
	f.stack = append(f.stack, t)
}

func (f *funcTranslator) pop() (wasm.ValueType, error) {
	if len(f.stack) == 0 {
		return 0, fmt.Errorf("operand stack underflow")
	}
	ret := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return ret, nil
}

func (f *funcTranslator) popExpect(want wasm.ValueType) error {
	got, err := f.pop()
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("type mismatch: want %s but got %s", wasm.ValueTypeName(want), wasm.ValueTypeName(got))
	}
	return nil
}

// slotDepth is the JVM operand-stack slot count of the abstract stack.
func slotDepth(stack []wasm.ValueType) (n int) {
	for _, t := range stack {
		n += jvmTypeOf(t).SlotWidth()
	}
	return
}

func (f *funcTranslator) setUnreachable() {
	f.unreachableState.on = true
	f.b.SetSuppressed(true)
}

func (f *funcTranslator) clearUnreachable() {
	f.unreachableState.on = false
	f.b.SetSuppressed(false)
	f.b.SetStackDepth(slotDepth(f.stack))
}

func (f *funcTranslator) readerAtPC() *bytes.Reader {
	return bytes.NewReader(f.body[f.pc+1:])
}

func (f *funcTranslator) readIndexImmediate() (wasm.Index, error) {
	v, num, err := leb128.DecodeUint32(f.readerAtPC())
	if err != nil {
		return 0, fmt.Errorf("reading immediate: %w", err)
	}
	f.pc += num
	return v, nil
}

type memoryImmediate struct {
	alignment uint32
	offset    uint32
}

func (f *funcTranslator) readMemoryImmediate(tag string) (memoryImmediate, error) {
	r := f.readerAtPC()
	alignment, num, err := leb128.DecodeUint32(r)
	if err != nil {
		return memoryImmediate{}, fmt.Errorf("reading alignment for %s: %w", tag, err)
	}
	f.pc += num
	offset, num, err := leb128.DecodeUint32(r)
	if err != nil {
		return memoryImmediate{}, fmt.Errorf("reading offset for %s: %w", tag, err)
	}
	f.pc += num
	return memoryImmediate{alignment: alignment, offset: offset}, nil
}

// handleInstruction translates the instruction at pc and advances past it.
func (f *funcTranslator) handleInstruction() error {
	op := f.body[f.pc]

	if f.unreachableState.on && !isControlOpcode(op) {
		// Inside unreachable code only the control structure matters; the
		// instruction and its immediates are skipped without stack checks.
		if err := f.skipImmediates(op); err != nil {
			return err
		}
		f.pc++
		return nil
	}

	var err error
	switch op {
	case wasm.OpcodeUnreachable:
		f.emitTrap(TrapUnreachable)
		f.setUnreachable()
	case wasm.OpcodeNop:
		// Nop lowers to nothing.
	case wasm.OpcodeBlock, wasm.OpcodeLoop, wasm.OpcodeIf:
		err = f.handleBlockEntry(op)
	case wasm.OpcodeElse:
		err = f.handleElse()
	case wasm.OpcodeEnd:
		err = f.handleEnd()
	case wasm.OpcodeBr:
		err = f.handleBr()
	case wasm.OpcodeBrIf:
		err = f.handleBrIf()
	case wasm.OpcodeBrTable:
		err = f.handleBrTable()
	case wasm.OpcodeReturn:
		if err = f.popResults(); err == nil {
			f.emitReturn()
			f.setUnreachable()
		}
	case wasm.OpcodeCall:
		err = f.handleCall()
	case wasm.OpcodeCallIndirect:
		err = f.handleCallIndirect()
	case wasm.OpcodeDrop:
		var t wasm.ValueType
		if t, err = f.pop(); err == nil {
			f.emitPop(t)
		}
	case wasm.OpcodeSelect, wasm.OpcodeSelectT:
		err = f.handleSelect(op)
	case wasm.OpcodeLocalGet, wasm.OpcodeLocalSet, wasm.OpcodeLocalTee:
		err = f.handleLocal(op)
	case wasm.OpcodeGlobalGet, wasm.OpcodeGlobalSet:
		err = f.handleGlobal(op)
	case wasm.OpcodeTableGet, wasm.OpcodeTableSet:
		err = f.handleTableAccess(op)
	case wasm.OpcodeMemorySize:
		f.pc++ // reserved memory index byte
		f.b.Load(f.mt.moduleType(), f.moduleSlot)
		f.b.InvokeStatic(f.mt.plan.moduleClass(), "mem$size_0", jvm.MethodDescriptor{
			Params: []jvm.FieldType{f.mt.moduleType()}, Result: jvm.TypeInt})
		f.push(wasm.ValueTypeI32)
	case wasm.OpcodeMemoryGrow:
		f.pc++ // reserved memory index byte
		if err = f.popExpect(wasm.ValueTypeI32); err == nil {
			f.b.Load(f.mt.moduleType(), f.moduleSlot)
			f.b.InvokeStatic(f.mt.plan.moduleClass(), "mem$grow_0", jvm.MethodDescriptor{
				Params: []jvm.FieldType{jvm.TypeInt, f.mt.moduleType()}, Result: jvm.TypeInt})
			f.push(wasm.ValueTypeI32)
		}
	case wasm.OpcodeI32Const:
		val, num, cerr := leb128.DecodeInt32(f.readerAtPC())
		if cerr != nil {
			return fmt.Errorf("reading i32.const value: %v", cerr)
		}
		f.pc += num
		f.b.ConstInt(val)
		f.push(wasm.ValueTypeI32)
	case wasm.OpcodeI64Const:
		val, num, cerr := leb128.DecodeInt64(f.readerAtPC())
		if cerr != nil {
			return fmt.Errorf("reading i64.const value: %v", cerr)
		}
		f.pc += num
		f.b.ConstLong(val)
		f.push(wasm.ValueTypeI64)
	case wasm.OpcodeF32Const:
		v, cerr := ieee754.DecodeFloat32(f.readerAtPC())
		if cerr != nil {
			return fmt.Errorf("reading f32.const value: %v", cerr)
		}
		f.pc += 4
		f.b.ConstFloat(v)
		f.push(wasm.ValueTypeF32)
	case wasm.OpcodeF64Const:
		v, cerr := ieee754.DecodeFloat64(f.readerAtPC())
		if cerr != nil {
			return fmt.Errorf("reading f64.const value: %v", cerr)
		}
		f.pc += 8
		f.b.ConstDouble(v)
		f.push(wasm.ValueTypeF64)
	case wasm.OpcodeRefNull:
		f.pc++ // reference type byte
		refType := f.body[f.pc]
		f.b.Insn(jvm.OpAConstNull)
		f.push(refType)
	case wasm.OpcodeRefIsNull:
		var t wasm.ValueType
		if t, err = f.pop(); err == nil {
			if !wasm.IsReferenceType(t) {
				return fmt.Errorf("ref.is_null on non-reference %s", wasm.ValueTypeName(t))
			}
			f.emitBool(jvm.OpIfNull)
			f.push(wasm.ValueTypeI32)
		}
	case wasm.OpcodeRefFunc:
		var idx wasm.Index
		if idx, err = f.readIndexImmediate(); err == nil {
			f.emitFuncref(idx)
			f.push(wasm.ValueTypeFuncref)
		}
	case wasm.OpcodeMiscPrefix:
		err = f.handleMisc()
	default:
		if err = f.handleMemoryAccess(op); err == errNotMemoryOpcode {
			err = f.handleNumeric(op)
		}
	}
	if err != nil {
		return err
	}

	f.pc++
	return nil
}

func isControlOpcode(op wasm.Opcode) bool {
	switch op {
	case wasm.OpcodeBlock, wasm.OpcodeLoop, wasm.OpcodeIf, wasm.OpcodeElse, wasm.OpcodeEnd:
		return true
	}
	return false
}

// skipImmediates advances pc over the immediates of an instruction in an
// unreachable region.
func (f *funcTranslator) skipImmediates(op wasm.Opcode) error {
	switch op {
	case wasm.OpcodeBr, wasm.OpcodeBrIf, wasm.OpcodeCall,
		wasm.OpcodeLocalGet, wasm.OpcodeLocalSet, wasm.OpcodeLocalTee,
		wasm.OpcodeGlobalGet, wasm.OpcodeGlobalSet,
		wasm.OpcodeTableGet, wasm.OpcodeTableSet,
		wasm.OpcodeRefFunc,
		wasm.OpcodeI32Const:
		_, num, err := leb128.DecodeInt64(f.readerAtPC())
		if err != nil {
			return err
		}
		f.pc += num
	case wasm.OpcodeI64Const:
		_, num, err := leb128.DecodeInt64(f.readerAtPC())
		if err != nil {
			return err
		}
		f.pc += num
	case wasm.OpcodeCallIndirect:
		r := f.readerAtPC()
		var total uint64
		for i := 0; i < 2; i++ {
			_, num, err := leb128.DecodeUint32(r)
			if err != nil {
				return err
			}
			total += num
		}
		f.pc += total
	case wasm.OpcodeBrTable:
		r := f.readerAtPC()
		numTargets, num, err := leb128.DecodeUint32(r)
		if err != nil {
			return err
		}
		total := num
		for i := uint32(0); i <= numTargets; i++ {
			_, num, err := leb128.DecodeUint32(r)
			if err != nil {
				return err
			}
			total += num
		}
		f.pc += total
	case wasm.OpcodeF32Const:
		f.pc += 4
	case wasm.OpcodeF64Const:
		f.pc += 8
	case wasm.OpcodeMemorySize, wasm.OpcodeMemoryGrow, wasm.OpcodeRefNull:
		f.pc++
	case wasm.OpcodeSelectT:
		r := f.readerAtPC()
		n, num, err := leb128.DecodeUint32(r)
		if err != nil {
			return err
		}
		f.pc += num + uint64(n)
	case wasm.OpcodeMiscPrefix:
		r := f.readerAtPC()
		sub, num, err := leb128.DecodeUint32(r)
		if err != nil {
			return err
		}
		f.pc += num
		switch sub {
		case wasm.OpcodeMiscTableGrow, wasm.OpcodeMiscTableSize:
			_, num, err := leb128.DecodeUint32(r)
			if err != nil {
				return err
			}
			f.pc += num
		}
	default:
		if isMemoryOpcode(op) {
			if _, err := f.readMemoryImmediate("skip"); err != nil {
				return err
			}
		}
	}
	return nil
}

// handleBlockEntry opens a block, loop or if frame.
func (f *funcTranslator) handleBlockEntry(op wasm.Opcode) error {
	bt, num, err := wasm.ReadBlockType(f.mt.m.TypeSection, f.readerAtPC())
	if err != nil {
		return fmt.Errorf("reading block type: %w", err)
	}
	f.pc += num

	if f.unreachableState.on {
		// The entire block is unreachable; only track nesting.
		f.unreachableState.depth++
		return nil
	}

	if op == wasm.OpcodeIf {
		if err := f.popExpect(wasm.ValueTypeI32); err != nil {
			return err
		}
	}

	frame := &controlFrame{
		blockType: bt,
		base:      len(f.stack) - len(bt.Params),
		exitLabel: f.b.NewLabel(),
	}
	if frame.base < 0 {
		return fmt.Errorf("block parameters deeper than stack")
	}

	switch op {
	case wasm.OpcodeBlock:
		frame.kind = controlFrameKindBlock
	case wasm.OpcodeLoop:
		frame.kind = controlFrameKindLoop
		frame.entryLabel = f.b.NewLabel()
		f.b.PlaceLabel(frame.entryLabel)
	case wasm.OpcodeIf:
		frame.kind = controlFrameKindIf
		frame.elseLabel = f.b.NewLabel()
		f.b.Branch(jvm.OpIfEq, frame.elseLabel)
	}
	f.frames.push(frame)
	return nil
}

func (f *funcTranslator) handleElse() error {
	frame := f.frames.top()
	if f.unreachableState.on && f.unreachableState.depth > 0 {
		// Nested inside an unreachable region: the else belongs to a
		// removed if.
		return nil
	} else if f.unreachableState.on {
		// The then arm ended unreachable. Reset the stack for the else arm.
		f.stack = f.stack[:frame.base]
		f.stack = append(f.stack, frame.blockType.Params...)
		frame.sawElse = true
		f.b.PlaceLabel(frame.elseLabel)
		f.clearUnreachable()
		return nil
	}

	if frame.kind != controlFrameKindIf {
		return fmt.Errorf("else outside of if")
	}
	frame.sawElse = true

	// The then arm falls through to the continuation; the stack resets to
	// the block parameters for the else arm.
	for i := len(frame.blockType.Results) - 1; i >= 0; i-- {
		if err := f.popExpect(frame.blockType.Results[i]); err != nil {
			return fmt.Errorf("then arm results: %w", err)
		}
	}
	if len(f.stack) != frame.base {
		return fmt.Errorf("then arm leaves %d extra values", len(f.stack)-frame.base)
	}
	frame.exitUsed = true
	f.b.Branch(jvm.OpGoto, frame.exitLabel)

	f.stack = append(f.stack, frame.blockType.Params...)
	f.b.PlaceLabel(frame.elseLabel)
	f.b.SetStackDepth(slotDepth(f.stack))
	return nil
}

func (f *funcTranslator) handleEnd() error {
	if f.unreachableState.on && f.unreachableState.depth > 0 {
		f.unreachableState.depth--
		return nil
	}

	wasUnreachable := f.unreachableState.on
	frame := f.frames.pop()

	if !wasUnreachable {
		// A clean fallthrough must leave exactly the declared results.
		for i := len(frame.blockType.Results) - 1; i >= 0; i-- {
			if err := f.popExpect(frame.blockType.Results[i]); err != nil {
				return fmt.Errorf("%s results: %w", frame.kind, err)
			}
		}
		if len(f.stack) != frame.base {
			return fmt.Errorf("%s leaves %d extra values", frame.kind, len(f.stack)-frame.base)
		}
	} else {
		f.stack = f.stack[:frame.base]
	}
	f.stack = append(f.stack, frame.blockType.Results...)

	switch frame.kind {
	case controlFrameKindFunction:
		if !f.frames.empty() {
			// Should never happen: a bug in the translation.
			return fmt.Errorf("invalid function frame")
		}
		if !wasUnreachable {
			// Pop the declared results back off: emitReturn consumes them.
			f.stack = f.stack[:frame.base]
			f.emitReturn()
		} else {
			// The body cannot fall off its end: terminate the dead tail.
			f.clearUnreachable()
			f.b.Insn(jvm.OpAConstNull)
			f.b.Insn(jvm.OpAThrow)
		}
	case controlFrameKindIf:
		if !frame.sawElse {
			// Synthesize the empty else arm: it falls straight through.
			f.b.PlaceLabel(frame.elseLabel)
		}
		f.b.PlaceLabel(frame.exitLabel)
	case controlFrameKindBlock:
		f.b.PlaceLabel(frame.exitLabel)
	case controlFrameKindLoop:
		// A loop's continuation is reached only by fallthrough.
	}

	if wasUnreachable {
		f.clearUnreachable()
	}
	return nil
}

// popResults type-checks the function results on the stack top without
// touching emitted code.
func (f *funcTranslator) popResults() error {
	results := f.sig.wasm.Results
	if len(f.stack) < len(results) {
		return fmt.Errorf("return with missing results")
	}
	for i := len(results) - 1; i >= 0; i-- {
		if err := f.popExpect(results[i]); err != nil {
			return fmt.Errorf("return results: %w", err)
		}
	}
	return nil
}

// emitReturn emits the function epilogue: a direct return for zero or one
// result, or boxed object-array packing for multi-value signatures. The JVM
// permits extra values below the returned ones, so no stack unwinding is
// needed.
func (f *funcTranslator) emitReturn() {
	results := f.sig.wasm.Results
	if !f.sig.packedResults {
		f.b.Return(f.sig.desc.Result)
		return
	}

	// Stash results (top of stack is the last result), then build the array.
	slots := f.stashToScratch(results)
	f.b.ConstInt(int32(len(results)))
	f.b.ANewArray(jvm.ObjectClass)
	for i, rt := range results {
		f.b.Insn(jvm.OpDup)
		f.b.ConstInt(int32(i))
		f.b.Load(jvmTypeOf(rt), slots[i])
		emitBox(f.b, rt)
		f.b.Insn(jvm.OpAAStore)
	}
	f.b.Return(objectArray)
}

// stashToScratch pops the top len(types) values into scratch locals and
// returns the slot of each, indexed like types (bottom value first).
func (f *funcTranslator) stashToScratch(types []wasm.ValueType) []int {
	slots := make([]int, len(types))
	// Assign slots bottom-up, but store top-down.
	next := f.scratchBase
	for i, t := range types {
		slots[i] = next
		next += jvmTypeOf(t).SlotWidth()
	}
	for i := len(types) - 1; i >= 0; i-- {
		f.b.Store(jvmTypeOf(types[i]), slots[i])
	}
	return slots
}

// reconcileAndBranch implements the stack-height reconciliation of a branch:
// values above the target frame's height, beneath the transferred arity, are
// discarded before the jump.
func (f *funcTranslator) reconcileAndBranch(frame *controlFrame) {
	arity := frame.branchArity()

	if frame.kind == controlFrameKindFunction {
		// A branch to the function frame is a return.
		f.emitReturn()
		return
	}

	// Stack layout right now: [... base-part ... excess ... arity].
	excess := len(f.stack) - len(arity) - frame.base
	if excess > 0 {
		slots := f.stashToScratch(arity)
		for i := 0; i < excess; i++ {
			t := f.stack[len(f.stack)-len(arity)-1-i]
			f.emitPop(t)
		}
		for i, at := range arity {
			f.b.Load(jvmTypeOf(at), slots[i])
		}
	}

	var target jvm.Label
	if frame.kind == controlFrameKindLoop {
		target = frame.entryLabel
	} else {
		frame.exitUsed = true
		target = frame.exitLabel
	}
	f.b.Branch(jvm.OpGoto, target)
}

func (f *funcTranslator) handleBr() error {
	target, err := f.readIndexImmediate()
	if err != nil {
		return fmt.Errorf("read br target: %w", err)
	}
	frame := f.frames.get(int(target))

	// Check that the transferred values are present without disturbing the stack model:
	// br is stack-polymorphic and everything after it is unreachable anyway.
	arity := frame.branchArity()
	if len(f.stack)-frame.base < len(arity) {
		return fmt.Errorf("br transfers %d values but only %d available", len(arity), len(f.stack)-frame.base)
	}
	f.reconcileAndBranch(frame)
	f.setUnreachable()
	return nil
}

func (f *funcTranslator) handleBrIf() error {
	target, err := f.readIndexImmediate()
	if err != nil {
		return fmt.Errorf("read br_if target: %w", err)
	}
	if err := f.popExpect(wasm.ValueTypeI32); err != nil {
		return err
	}
	frame := f.frames.get(int(target))
	arity := frame.branchArity()

	excess := len(f.stack) - len(arity) - frame.base
	if excess == 0 && frame.kind != controlFrameKindFunction {
		// Direct conditional jump: the stack already matches the target.
		var label jvm.Label
		if frame.kind == controlFrameKindLoop {
			label = frame.entryLabel
		} else {
			frame.exitUsed = true
			label = frame.exitLabel
		}
		f.b.Branch(jvm.OpIfNe, label)
		return nil
	}

	// Reconciliation (or a return) is needed on the taken path only.
	skip := f.b.NewLabel()
	f.b.Branch(jvm.OpIfEq, skip)
	savedStack := append([]wasm.ValueType(nil), f.stack...)
	f.reconcileAndBranch(frame)
	f.stack = savedStack
	f.b.PlaceLabel(skip)
	f.b.SetStackDepth(slotDepth(f.stack))
	return nil
}

func (f *funcTranslator) handleBrTable() error {
	r := f.readerAtPC()
	numTargets, num, err := leb128.DecodeUint32(r)
	if err != nil {
		return fmt.Errorf("reading number of br_table targets: %w", err)
	}
	f.pc += num

	targets := make([]uint32, numTargets+1)
	for i := range targets {
		l, num, err := leb128.DecodeUint32(r)
		if err != nil {
			return fmt.Errorf("reading br_table target %d: %w", i, err)
		}
		f.pc += num
		targets[i] = l
	}
	defaultTarget := targets[numTargets]
	targets = targets[:numTargets]

	if err := f.popExpect(wasm.ValueTypeI32); err != nil {
		return err
	}

	// Every target frame must agree on the branch arity.
	defFrame := f.frames.get(int(defaultTarget))
	arity := defFrame.branchArity()
	for _, t := range targets {
		ta := f.frames.get(int(t)).branchArity()
		if len(ta) != len(arity) {
			return fmt.Errorf("br_table targets disagree on arity: %d != %d", len(ta), len(arity))
		}
		for i := range ta {
			if ta[i] != arity[i] {
				return fmt.Errorf("br_table targets disagree on types")
			}
		}
	}

	if len(targets) == 0 {
		// Only a default target: no switch needed.
		f.b.Insn(jvm.OpPop)
		f.reconcileAndBranch(defFrame)
		f.setUnreachable()
		return nil
	}

	// Each destination may need its own reconciliation, so the switch jumps
	// to per-target trampolines.
	trampolines := make([]jvm.Label, len(targets))
	for i := range targets {
		trampolines[i] = f.b.NewLabel()
	}
	defTrampoline := f.b.NewLabel()

	f.b.TableSwitch(0, defTrampoline, trampolines)

	savedStack := append([]wasm.ValueType(nil), f.stack...)
	emitTrampoline := func(l jvm.Label, frame *controlFrame) {
		f.b.PlaceLabel(l)
		f.b.SetStackDepth(slotDepth(savedStack))
		f.stack = append([]wasm.ValueType(nil), savedStack...)
		f.reconcileAndBranch(frame)
	}
	for i, t := range targets {
		emitTrampoline(trampolines[i], f.frames.get(int(t)))
	}
	emitTrampoline(defTrampoline, defFrame)

	f.stack = savedStack
	f.setUnreachable()
	return nil
}

func (f *funcTranslator) handleCall() error {
	idx, err := f.readIndexImmediate()
	if err != nil {
		return fmt.Errorf("read call target: %w", err)
	}
	sig := f.mt.funcSigs[idx]

	// Type-check and pop arguments.
	for i := len(sig.wasm.Params) - 1; i >= 0; i-- {
		if err := f.popExpect(sig.wasm.Params[i]); err != nil {
			return fmt.Errorf("call argument: %w", err)
		}
	}

	if sig.packedParams {
		f.packArguments(sig.wasm.Params)
	}

	if idx < f.mt.m.ImportFuncCount() {
		// Imported functions go through their bound method handle.
		f.emitFuncref(idx)
		adapter := f.mt.callAdapterFor(sig)
		f.b.InvokeStatic(f.mt.plan.moduleClass(), adapter, adapterDesc(sig))
	} else {
		f.b.Load(f.mt.moduleType(), f.moduleSlot)
		f.b.InvokeStatic(f.mt.plan.moduleClass(), f.mt.plan.funcMethodName(idx),
			sig.innerDesc(f.mt.moduleType()))
	}

	f.pushCallResults(sig)
	return nil
}

func (f *funcTranslator) handleCallIndirect() error {
	typeIdx, err := f.readIndexImmediate()
	if err != nil {
		return fmt.Errorf("read call_indirect type: %w", err)
	}
	tableIdx, err := f.readIndexImmediate()
	if err != nil {
		return fmt.Errorf("read call_indirect table: %w", err)
	}
	if int(typeIdx) >= len(f.mt.m.TypeSection) {
		return fmt.Errorf("call_indirect type index out of range: %d", typeIdx)
	}
	sig := f.mt.typeSigs[typeIdx]

	if err := f.popExpect(wasm.ValueTypeI32); err != nil {
		return err
	}
	for i := len(sig.wasm.Params) - 1; i >= 0; i-- {
		if err := f.popExpect(sig.wasm.Params[i]); err != nil {
			return fmt.Errorf("call_indirect argument: %w", err)
		}
	}

	if sig.packedParams {
		// The table index sits above the arguments; move it aside so the
		// packing temporaries do not clobber it.
		idxSlot := f.scratchBase
		f.b.Store(jvm.TypeInt, idxSlot)
		f.scratchBase++
		f.packArguments(sig.wasm.Params)
		f.scratchBase--
		f.b.Load(jvm.TypeInt, idxSlot)
	}

	// [args..., idx] -> [args..., handle]
	f.b.Load(f.mt.moduleType(), f.moduleSlot)
	f.b.InvokeStatic(f.mt.plan.moduleClass(), fmt.Sprintf("tbl$get_%d", tableIdx),
		jvm.MethodDescriptor{Params: []jvm.FieldType{jvm.TypeInt, f.mt.moduleType()},
			Result: jvm.ObjectType(jvm.MethodHandleClass)})

	adapter := f.mt.callAdapterFor(sig)
	f.b.InvokeStatic(f.mt.plan.moduleClass(), adapter, adapterDesc(sig))

	f.pushCallResults(sig)
	return nil
}

// packArguments collapses the top len(params) unboxed values into one boxed
// object array, leaving the array on the stack.
func (f *funcTranslator) packArguments(params []wasm.ValueType) {
	slots := f.stashToScratch(params)
	f.b.ConstInt(int32(len(params)))
	f.b.ANewArray(jvm.ObjectClass)
	for i, pt := range params {
		f.b.Insn(jvm.OpDup)
		f.b.ConstInt(int32(i))
		f.b.Load(jvmTypeOf(pt), slots[i])
		emitBox(f.b, pt)
		f.b.Insn(jvm.OpAAStore)
	}
}

// pushCallResults unpacks a packed result array, or simply records the single
// result, updating the abstract stack.
func (f *funcTranslator) pushCallResults(sig signature) {
	results := sig.wasm.Results
	if sig.packedResults {
		arrSlot := f.scratchBase
		f.b.Store(objectArray, arrSlot)
		for i, rt := range results {
			f.b.Load(objectArray, arrSlot)
			f.b.ConstInt(int32(i))
			f.b.Insn(jvm.OpAALoad)
			emitUnbox(f.b, rt)
			f.push(rt)
		}
		return
	}
	for _, rt := range results {
		f.push(rt)
	}
}

// emitFuncref pushes funcs[idx], the bound method handle of the function at
// the given index.
func (f *funcTranslator) emitFuncref(idx wasm.Index) {
	f.b.Load(f.mt.moduleType(), f.moduleSlot)
	f.b.GetField(f.mt.plan.moduleClass(), "funcs", jvm.ArrayOf(jvm.ObjectType(jvm.MethodHandleClass)))
	f.b.ConstInt(int32(idx))
	f.b.Insn(jvm.OpAALoad)
}

func (f *funcTranslator) handleSelect(op wasm.Opcode) error {
	if op == wasm.OpcodeSelectT {
		// The type annotation vector is redundant for translation.
		r := f.readerAtPC()
		n, num, err := leb128.DecodeUint32(r)
		if err != nil {
			return fmt.Errorf("reading select type vector: %w", err)
		}
		f.pc += num + uint64(n)
	}
	if err := f.popExpect(wasm.ValueTypeI32); err != nil {
		return err
	}
	v2, err := f.pop()
	if err != nil {
		return err
	}
	v1, err := f.pop()
	if err != nil {
		return err
	}
	if v1 != v2 {
		return fmt.Errorf("select operands disagree: %s != %s", wasm.ValueTypeName(v1), wasm.ValueTypeName(v2))
	}

	wide := jvmTypeOf(v1).SlotWidth() == 2
	keepTop := f.b.NewLabel()
	done := f.b.NewLabel()

	// cond != 0 keeps v1 (the bottom value): drop the top.
	f.b.Branch(jvm.OpIfEq, keepTop)
	f.emitPop(v2)
	f.b.Branch(jvm.OpGoto, done)

	// cond == 0 keeps v2 (the top value): rotate it under, drop v1.
	f.b.PlaceLabel(keepTop)
	if wide {
		f.b.Insn(jvm.OpDup2X2)
		f.b.Insn(jvm.OpPop2)
		f.b.Insn(jvm.OpPop2)
	} else {
		f.b.Insn(jvm.OpSwap)
		f.b.Insn(jvm.OpPop)
	}
	f.b.PlaceLabel(done)

	f.push(v1)
	return nil
}

func (f *funcTranslator) handleLocal(op wasm.Opcode) error {
	idx, err := f.readIndexImmediate()
	if err != nil {
		return fmt.Errorf("read local index: %w", err)
	}
	if int(idx) >= len(f.localTypes) {
		return fmt.Errorf("local index out of range: %d", idx)
	}
	t := f.localTypes[idx]
	slot := f.localSlots[idx]
	jt := jvmTypeOf(t)

	switch op {
	case wasm.OpcodeLocalGet:
		f.b.Load(jt, slot)
		f.push(t)
	case wasm.OpcodeLocalSet:
		if err := f.popExpect(t); err != nil {
			return err
		}
		f.b.Store(jt, slot)
	case wasm.OpcodeLocalTee:
		if err := f.popExpect(t); err != nil {
			return err
		}
		if jt.SlotWidth() == 2 {
			f.b.Insn(jvm.OpDup2)
		} else {
			f.b.Insn(jvm.OpDup)
		}
		f.b.Store(jt, slot)
		f.push(t)
	}
	return nil
}

func (f *funcTranslator) handleGlobal(op wasm.Opcode) error {
	idx, err := f.readIndexImmediate()
	if err != nil {
		return fmt.Errorf("read global index: %w", err)
	}
	globals := f.mt.globals
	if int(idx) >= len(globals) {
		return fmt.Errorf("global index out of range: %d", idx)
	}
	gt := globals[idx]
	jt := jvmTypeOf(gt.ValType)

	switch op {
	case wasm.OpcodeGlobalGet:
		f.b.Load(f.mt.moduleType(), f.moduleSlot)
		f.b.InvokeStatic(f.mt.plan.moduleClass(), fmt.Sprintf("glb$get_%d", idx),
			jvm.MethodDescriptor{Params: []jvm.FieldType{f.mt.moduleType()}, Result: jt})
		f.push(gt.ValType)
	case wasm.OpcodeGlobalSet:
		if !gt.Mutable {
			return fmt.Errorf("global.set on immutable global %d", idx)
		}
		if err := f.popExpect(gt.ValType); err != nil {
			return err
		}
		f.b.Load(f.mt.moduleType(), f.moduleSlot)
		f.b.InvokeStatic(f.mt.plan.moduleClass(), fmt.Sprintf("glb$set_%d", idx),
			jvm.MethodDescriptor{Params: []jvm.FieldType{jt, f.mt.moduleType()}})
	}
	return nil
}

func (f *funcTranslator) handleTableAccess(op wasm.Opcode) error {
	idx, err := f.readIndexImmediate()
	if err != nil {
		return fmt.Errorf("read table index: %w", err)
	}
	tables := f.mt.m.Tables()
	if int(idx) >= len(tables) {
		return fmt.Errorf("table index out of range: %d", idx)
	}
	elemType := tables[idx].ElemType
	jt := jvmTypeOf(elemType)

	switch op {
	case wasm.OpcodeTableGet:
		if err := f.popExpect(wasm.ValueTypeI32); err != nil {
			return err
		}
		f.b.Load(f.mt.moduleType(), f.moduleSlot)
		f.b.InvokeStatic(f.mt.plan.moduleClass(), fmt.Sprintf("tbl$get_%d", idx),
			jvm.MethodDescriptor{Params: []jvm.FieldType{jvm.TypeInt, f.mt.moduleType()}, Result: jt})
		f.push(elemType)
	case wasm.OpcodeTableSet:
		if err := f.popExpect(elemType); err != nil {
			return err
		}
		if err := f.popExpect(wasm.ValueTypeI32); err != nil {
			return err
		}
		f.b.Load(f.mt.moduleType(), f.moduleSlot)
		f.b.InvokeStatic(f.mt.plan.moduleClass(), fmt.Sprintf("tbl$set_%d", idx),
			jvm.MethodDescriptor{Params: []jvm.FieldType{jvm.TypeInt, jt, f.mt.moduleType()}})
	}
	return nil
}

func (f *funcTranslator) handleMisc() error {
	r := f.readerAtPC()
	sub, num, err := leb128.DecodeUint32(r)
	if err != nil {
		return fmt.Errorf("reading misc opcode: %w", err)
	}
	f.pc += num

	switch sub {
	case wasm.OpcodeMiscI32TruncSatF32S:
		return f.emitTruncSat(wasm.ValueTypeF32, wasm.ValueTypeI32, true)
	case wasm.OpcodeMiscI32TruncSatF32U:
		return f.emitTruncSat(wasm.ValueTypeF32, wasm.ValueTypeI32, false)
	case wasm.OpcodeMiscI32TruncSatF64S:
		return f.emitTruncSat(wasm.ValueTypeF64, wasm.ValueTypeI32, true)
	case wasm.OpcodeMiscI32TruncSatF64U:
		return f.emitTruncSat(wasm.ValueTypeF64, wasm.ValueTypeI32, false)
	case wasm.OpcodeMiscI64TruncSatF32S:
		return f.emitTruncSat(wasm.ValueTypeF32, wasm.ValueTypeI64, true)
	case wasm.OpcodeMiscI64TruncSatF32U:
		return f.emitTruncSat(wasm.ValueTypeF32, wasm.ValueTypeI64, false)
	case wasm.OpcodeMiscI64TruncSatF64S:
		return f.emitTruncSat(wasm.ValueTypeF64, wasm.ValueTypeI64, true)
	case wasm.OpcodeMiscI64TruncSatF64U:
		return f.emitTruncSat(wasm.ValueTypeF64, wasm.ValueTypeI64, false)
	case wasm.OpcodeMiscTableSize:
		idx, num, err := leb128.DecodeUint32(r)
		if err != nil {
			return fmt.Errorf("reading table index: %w", err)
		}
		f.pc += num
		f.b.Load(f.mt.moduleType(), f.moduleSlot)
		f.b.InvokeStatic(f.mt.plan.moduleClass(), fmt.Sprintf("tbl$size_%d", idx),
			jvm.MethodDescriptor{Params: []jvm.FieldType{f.mt.moduleType()}, Result: jvm.TypeInt})
		f.push(wasm.ValueTypeI32)
		return nil
	case wasm.OpcodeMiscTableGrow:
		idx, num, err := leb128.DecodeUint32(r)
		if err != nil {
			return fmt.Errorf("reading table index: %w", err)
		}
		f.pc += num
		tables := f.mt.m.Tables()
		if int(idx) >= len(tables) {
			return fmt.Errorf("table index out of range: %d", idx)
		}
		elemType := tables[idx].ElemType
		if err := f.popExpect(wasm.ValueTypeI32); err != nil {
			return err
		}
		if err := f.popExpect(elemType); err != nil {
			return err
		}
		f.b.Load(f.mt.moduleType(), f.moduleSlot)
		f.b.InvokeStatic(f.mt.plan.moduleClass(), fmt.Sprintf("tbl$grow_%d", idx),
			jvm.MethodDescriptor{Params: []jvm.FieldType{jvmTypeOf(elemType), jvm.TypeInt, f.mt.moduleType()},
				Result: jvm.TypeInt})
		f.push(wasm.ValueTypeI32)
		return nil
	}
	return newError(ErrKindUnsupported, f.context(), "unsupported misc instruction: 0x%x", sub)
}

func (f *funcTranslator) context() string {
	return fmt.Sprintf("function %d", f.funcIdx)
}

// emitPop drops the top value of the given type from the JVM stack.
func (f *funcTranslator) emitPop(t wasm.ValueType) {
	if jvmTypeOf(t).SlotWidth() == 2 {
		f.b.Insn(jvm.OpPop2)
	} else {
		f.b.Insn(jvm.OpPop)
	}
}

// emitTrap calls the module trap thrower with the given kind.
func (f *funcTranslator) emitTrap(kind TrapKind) {
	f.b.ConstInt(int32(kind))
	f.b.InvokeStatic(f.mt.plan.moduleClass(), "t$trap", jvm.MethodDescriptor{
		Params: []jvm.FieldType{jvm.TypeInt}})
}

// emitBool materializes an i32 boolean from a one-operand branch opcode: the
// branch consuming the operand jumps to the true arm.
func (f *funcTranslator) emitBool(branchOp byte) {
	isTrue := f.b.NewLabel()
	done := f.b.NewLabel()
	f.b.Branch(branchOp, isTrue)
	f.b.ConstInt(0)
	f.b.Branch(jvm.OpGoto, done)
	f.b.PlaceLabel(isTrue)
	f.b.ConstInt(1)
	f.b.PlaceLabel(done)
}
