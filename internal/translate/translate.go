package translate

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/wasmlift/wasmlift/internal/jvm"
	"github.com/wasmlift/wasmlift/internal/wasm"
)

// Config carries the translation options.
type Config struct {
	// ClassName is the main module class name in internal (slash-separated)
	// form, e.g. "com/example/Module".
	ClassName string
	// Logger receives debug-level translation progress. Nil means no-op.
	Logger *zap.Logger
}

// maxMemoryPages caps memory sizes so every byte index fits in a JVM int:
// 32767 pages of 64 KiB is the largest page count whose byte size stays at or
// below 2^31-1.
const maxMemoryPages = 32767

// maxTableEntries caps table sizes at the largest JVM array length the
// translator relies on.
const maxTableEntries = 1<<31 - 1

// ModuleTranslator drives the lowering of one module. It is single-use and
// confined to one goroutine; translate modules in parallel with independent
// instances.
type ModuleTranslator struct {
	m    *wasm.Module
	plan *planner
	log  *zap.Logger

	main       *jvm.ClassFile
	carriers   []*jvm.ClassFile
	carrierSet map[string]*jvm.ClassFile

	typeSigs []signature
	funcSigs []signature
	globals  []*wasm.GlobalType

	usedHelpers map[string]bool
	// adapters maps a JVM descriptor to the call-adapter method name shared
	// by call_indirect and imported calls of that shape.
	adapters     map[string]string
	adapterSigs  []signature
	adapterNames []string

	// pending methods awaiting FinishMethod, in emission order.
	pending []*jvm.Method
}

// Translate lowers a parsed, validated module into class descriptors. The
// first descriptor is the main module class; carrier and trap classes follow
// in deterministic order.
func Translate(m *wasm.Module, cfg Config) ([]*jvm.ClassFile, error) {
	if cfg.ClassName == "" {
		return nil, newError(ErrKindInternal, "", "empty class name")
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	t := &ModuleTranslator{
		m:           m,
		plan:        newPlanner(cfg.ClassName),
		log:         log,
		carrierSet:  map[string]*jvm.ClassFile{},
		usedHelpers: map[string]bool{},
		adapters:    map[string]string{},
	}

	if err := t.checkLimits(); err != nil {
		return nil, err
	}

	for _, ft := range m.TypeSection {
		t.typeSigs = append(t.typeSigs, signatureOf(ft))
	}
	numFuncs := m.ImportFuncCount() + uint32(len(m.FunctionSection))
	for i := uint32(0); i < numFuncs; i++ {
		ft := m.TypeOfFunction(i)
		if ft == nil {
			return nil, newError(ErrKindInternal, fmt.Sprintf("function %d", i), "no type for function index")
		}
		t.funcSigs = append(t.funcSigs, signatureOf(ft))
	}
	t.globals = m.Globals()

	t.main = jvm.NewClassFile(t.plan.moduleClass(), jvm.ObjectClass)
	t.declareModuleFields()
	t.ensureTrapClass()

	// The trap thrower is referenced pervasively; emit it unconditionally.
	t.usedHelpers["t$trap"] = true

	// Function bodies.
	importedFuncs := m.ImportFuncCount()
	for i, code := range m.CodeSection {
		funcIdx := importedFuncs + uint32(i)
		sig := t.funcSigs[funcIdx]
		method := t.main.NewMethod(jvm.AccPrivate|jvm.AccStatic, t.plan.funcMethodName(funcIdx),
			sig.innerDesc(t.moduleType()))
		t.log.Debug("translating function",
			zap.Uint32("index", funcIdx),
			zap.String("type", sig.wasm.String()))
		if err := t.translateFunction(funcIdx, code, method); err != nil {
			if _, ok := AsError(err); ok {
				return nil, err
			}
			return nil, newError(ErrKindInternal, fmt.Sprintf("function %d", funcIdx), "%v", err)
		}
		t.pending = append(t.pending, method)
	}

	t.emitExportWrappers()
	t.emitExportsGetter()
	if err := t.emitConstructor(); err != nil {
		return nil, err
	}
	t.emitEntityHelpers()
	if err := t.emitUsedHelpers(); err != nil {
		return nil, err
	}

	for _, method := range t.pending {
		if err := method.FinishMethod(); err != nil {
			return nil, newError(ErrKindInternal, "", "%v", err)
		}
	}

	classes := append([]*jvm.ClassFile{t.main}, t.carriers...)
	t.log.Debug("translation complete",
		zap.Int("classes", len(classes)),
		zap.Int("functions", len(m.CodeSection)))
	return classes, nil
}

func (t *ModuleTranslator) moduleType() jvm.FieldType {
	return t.plan.moduleType()
}

// checkLimits rejects entities whose current size cannot be projected onto
// 31-bit JVM indexes. Oversized declared maxima are tolerated: growth fails
// with the documented sentinel instead.
func (t *ModuleTranslator) checkLimits() error {
	for i, mem := range t.m.Memories() {
		if mem.Min > maxMemoryPages {
			return newError(ErrKindLimitExceeded, fmt.Sprintf("memory %d", i),
				"initial size %d pages exceeds the %d-page limit", mem.Min, maxMemoryPages)
		}
	}
	for i, table := range t.m.Tables() {
		if table.Limit.Min > maxTableEntries {
			return newError(ErrKindLimitExceeded, fmt.Sprintf("table %d", i),
				"initial size %d exceeds the %d-entry limit", table.Limit.Min, maxTableEntries)
		}
	}
	return nil
}

// effectiveMaxPages clamps a memory's declared maximum to the translator cap.
func effectiveMaxPages(mem *wasm.MemoryType) int32 {
	max := uint32(maxMemoryPages)
	if mem.Max != nil && *mem.Max < max {
		max = *mem.Max
	}
	return int32(max)
}

// effectiveMaxEntries clamps a table's declared maximum to the translator cap.
func effectiveMaxEntries(table *wasm.TableType) int32 {
	max := uint32(maxTableEntries)
	if table.Limit.Max != nil && *table.Limit.Max < max {
		max = *table.Limit.Max
	}
	return int32(max)
}

// declareModuleFields lays out the module class fields: the exports map, the
// bound function handles, and one field group per memory, table and global.
func (t *ModuleTranslator) declareModuleFields() {
	main := t.main
	main.AddField(jvm.AccPrivate|jvm.AccFinal, "exports", jvm.ObjectType(jvm.MapClass))
	main.AddField(jvm.AccPrivate|jvm.AccFinal, "funcs", jvm.ArrayOf(jvm.ObjectType(jvm.MethodHandleClass)))

	handle := jvm.ObjectType(jvm.MethodHandleClass)
	object := jvm.ObjectType(jvm.ObjectClass)

	importedMems := int(t.m.ImportMemoryCount())
	for i := range t.m.Memories() {
		if i < importedMems {
			main.AddField(jvm.AccPrivate|jvm.AccFinal, fmt.Sprintf("m%d", i), object)
			main.AddField(jvm.AccPrivate|jvm.AccFinal, fmt.Sprintf("mget%d", i), handle)
			main.AddField(jvm.AccPrivate|jvm.AccFinal, fmt.Sprintf("mset%d", i), handle)
		} else {
			cls := t.ensureMemoryCarrier()
			main.AddField(jvm.AccPrivate|jvm.AccFinal, fmt.Sprintf("m%d", i), jvm.ObjectType(cls))
		}
	}

	importedTables := int(t.m.ImportTableCount())
	for i, table := range t.m.Tables() {
		if i < importedTables {
			main.AddField(jvm.AccPrivate|jvm.AccFinal, fmt.Sprintf("t%d", i), object)
			main.AddField(jvm.AccPrivate|jvm.AccFinal, fmt.Sprintf("tget%d", i), handle)
			main.AddField(jvm.AccPrivate|jvm.AccFinal, fmt.Sprintf("tset%d", i), handle)
		} else {
			cls := t.ensureTableCarrier(table.ElemType)
			main.AddField(jvm.AccPrivate|jvm.AccFinal, fmt.Sprintf("t%d", i), jvm.ObjectType(cls))
		}
	}

	importedGlobals := int(t.m.ImportGlobalCount())
	for i, g := range t.globals {
		if i < importedGlobals {
			main.AddField(jvm.AccPrivate|jvm.AccFinal, fmt.Sprintf("g%d", i), object)
			main.AddField(jvm.AccPrivate|jvm.AccFinal, fmt.Sprintf("gget%d", i), handle)
			if g.Mutable {
				main.AddField(jvm.AccPrivate|jvm.AccFinal, fmt.Sprintf("gset%d", i), handle)
			}
		} else {
			cls := t.ensureGlobalCarrier(g.ValType)
			main.AddField(jvm.AccPrivate, fmt.Sprintf("g%d", i), jvm.ObjectType(cls))
		}
	}
}

// useHelper records that a named module-class helper is required.
func (t *ModuleTranslator) useHelper(name string) {
	t.usedHelpers[name] = true
}

// callAdapterFor returns (allocating on first use) the static adapter method
// that receives the target method handle above the arguments, re-orders via
// locals, checks null and signature, and performs the exact invocation.
func (t *ModuleTranslator) callAdapterFor(sig signature) string {
	key := sig.desc.String()
	if name, ok := t.adapters[key]; ok {
		return name
	}
	name := fmt.Sprintf("call$%d", len(t.adapterSigs))
	t.adapters[key] = name
	t.adapterSigs = append(t.adapterSigs, sig)
	t.adapterNames = append(t.adapterNames, name)
	return name
}

// adapterDesc is the descriptor of a call adapter: the natural (or packed)
// parameters followed by the target handle.
func adapterDesc(sig signature) jvm.MethodDescriptor {
	params := make([]jvm.FieldType, 0, len(sig.desc.Params)+1)
	params = append(params, sig.desc.Params...)
	params = append(params, jvm.ObjectType(jvm.MethodHandleClass))
	return jvm.MethodDescriptor{Params: params, Result: sig.desc.Result}
}

// emitExportWrappers emits one public instance method per exported function,
// forwarding to the static implementation.
func (t *ModuleTranslator) emitExportWrappers() {
	for _, name := range sortedExportNames(t.m) {
		export := t.m.ExportSection[name]
		if export.Kind != wasm.ExportKindFunc {
			continue
		}
		sig := t.funcSigs[export.Index]
		methodName := t.plan.exportMethodName(name)
		method := t.main.NewMethod(jvm.AccPublic, methodName, sig.desc)
		b := method.Builder()
		slot := 1 // past the receiver
		for _, p := range sig.desc.Params {
			b.Load(p, slot)
			slot += p.SlotWidth()
		}
		b.Load(t.moduleType(), 0)
		b.InvokeStatic(t.plan.moduleClass(), t.plan.funcMethodName(export.Index),
			sig.innerDesc(t.moduleType()))
		b.Return(sig.desc.Result)
		t.pending = append(t.pending, method)
	}
}

// emitExportsGetter emits getExports, the public accessor of the exports map.
func (t *ModuleTranslator) emitExportsGetter() {
	method := t.main.NewMethod(jvm.AccPublic, "getExports",
		jvm.MethodDescriptor{Result: jvm.ObjectType(jvm.MapClass)})
	b := method.Builder()
	b.Load(t.moduleType(), 0)
	b.GetField(t.plan.moduleClass(), "exports", jvm.ObjectType(jvm.MapClass))
	b.Return(jvm.ObjectType(jvm.MapClass))
	t.pending = append(t.pending, method)
}

// sortedHelperNames returns the used helper names in deterministic order.
func (t *ModuleTranslator) sortedHelperNames() []string {
	names := make([]string, 0, len(t.usedHelpers))
	for name := range t.usedHelpers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
