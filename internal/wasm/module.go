// Package wasm holds the typed representation of a parsed WebAssembly module
// that the translator consumes.
//
// The shape mirrors the WebAssembly 1.0 Binary Format sections, extended with
// the reference-types proposal (funcref/externref), sign-extension operators
// and non-trapping float-to-int conversions.
// See https://www.w3.org/TR/wasm-core-1/#modules%E2%91%A8
package wasm

// Module is a WebAssembly binary representation.
//
// Differences from the specification:
// * The ExportSection is represented as a map for lookup convenience.
type Module struct {
	// TypeSection contains the unique FunctionType of functions imported or defined in this module.
	//
	// Note: In the Binary Format, this is SectionIDType.
	TypeSection []*FunctionType

	// ImportSection contains imported functions, tables, memories or globals
	// required for instantiation.
	//
	// Note: In the Binary Format, this is SectionIDImport.
	ImportSection []*Import

	// FunctionSection contains the index in TypeSection of each function defined in this module.
	//
	// Note: The function Index space begins with imported functions and ends with those
	// defined in this module. FunctionSection is index-correlated with the CodeSection.
	//
	// Note: In the Binary Format, this is SectionIDFunction.
	FunctionSection []Index

	// TableSection contains each table defined in this module.
	//
	// Note: The table Index space begins with imported tables and ends with those
	// defined in this module.
	//
	// Note: In the Binary Format, this is SectionIDTable.
	TableSection []*TableType

	// MemorySection contains each memory defined in this module.
	//
	// Note: The memory Index space begins with imported memories and ends with those
	// defined in this module.
	//
	// Note: In the Binary Format, this is SectionIDMemory.
	MemorySection []*MemoryType

	// GlobalSection contains each global defined in this module.
	//
	// Global indexes are offset by any imported globals because the global index space
	// begins with imports, followed by ones defined in this module.
	//
	// Note: In the Binary Format, this is SectionIDGlobal.
	GlobalSection []*Global

	// ExportSection contains each export defined in this module, keyed by name.
	//
	// Note: In the Binary Format, this is SectionIDExport.
	ExportSection map[string]*Export

	// StartSection is the index of a function to call once instantiation completes.
	//
	// Note: The index here is in the function index space, which begins with
	// imported functions.
	//
	// Note: In the Binary Format, this is SectionIDStart.
	StartSection *Index

	// Note: In the Binary Format, this is SectionIDElement.
	ElementSection []*ElementSegment

	// CodeSection is index-correlated with FunctionSection and contains each
	// function's locals and body.
	//
	// Note: In the Binary Format, this is SectionIDCode.
	CodeSection []*Code

	// Note: In the Binary Format, this is SectionIDData.
	DataSection []*DataSegment

	// CustomSections are retained, but otherwise ignored by the translator.
	CustomSections map[string][]byte
}

// Index is the offset in an index space, not necessarily an absolute position in a
// Module section. This is because index spaces are often preceded by a corresponding
// entry in the Module.ImportSection.
//
// See https://www.w3.org/TR/wasm-core-1/#binary-index
type Index = uint32

// FunctionType is a possibly empty function signature.
//
// Unlike WebAssembly 1.0 (MVP), Results may hold more than one type: the
// multi-value proposal is accepted by the translator.
//
// See https://www.w3.org/TR/wasm-core-1/#function-types%E2%91%A0
type FunctionType struct {
	// Params are the possibly empty sequence of value types accepted by a function with this signature.
	Params []ValueType

	// Results are the possibly empty sequence of value types returned by a function with this signature.
	Results []ValueType
}

func (t *FunctionType) String() (ret string) {
	for _, b := range t.Params {
		ret += ValueTypeName(b)
	}
	if len(t.Params) == 0 {
		ret += "null"
	}
	ret += "_"
	for _, b := range t.Results {
		ret += ValueTypeName(b)
	}
	if len(t.Results) == 0 {
		ret += "null"
	}
	return
}

// Import is the binary representation of an import indicated by Kind.
// See https://www.w3.org/TR/wasm-core-1/#binary-import
type Import struct {
	Kind ImportKind
	// Module is the possibly empty primary namespace of this import.
	Module string
	// Name is the possibly empty secondary namespace of this import.
	Name string
	// DescFunc is the index in Module.TypeSection when Kind equals ImportKindFunc.
	DescFunc Index
	// DescTable is the inlined TableType when Kind equals ImportKindTable.
	DescTable *TableType
	// DescMem is the inlined MemoryType when Kind equals ImportKindMemory.
	DescMem *MemoryType
	// DescGlobal is the inlined GlobalType when Kind equals ImportKindGlobal.
	DescGlobal *GlobalType
}

type LimitsType struct {
	Min uint32
	Max *uint32
}

type TableType struct {
	// ElemType is either ValueTypeFuncref or ValueTypeExternref.
	ElemType byte
	Limit    *LimitsType
}

type MemoryType = LimitsType

type GlobalType struct {
	ValType ValueType
	Mutable bool
}

type Global struct {
	Type *GlobalType
	Init *ConstantExpression
}

// ConstantExpression is the restricted expression subset allowed in global
// initializers and segment offsets: a single const, ref.null, ref.func or
// global.get instruction followed by end.
type ConstantExpression struct {
	Opcode Opcode
	Data   []byte
}

// Export is the binary representation of an export indicated by Kind.
// See https://www.w3.org/TR/wasm-core-1/#binary-export
type Export struct {
	Kind ExportKind
	// Name is what the host refers to this definition as.
	Name string
	// Index is the index of the definition to export. The index space is by Kind.
	Index Index
}

type ElementSegment struct {
	TableIndex Index
	OffsetExpr *ConstantExpression
	// Init is the sequence of function indexes written into the table.
	Init []Index
}

// Code is an entry in the Module.CodeSection containing the locals and body of the function.
// See https://www.w3.org/TR/wasm-core-1/#binary-code
type Code struct {
	// LocalTypes are any function-scoped variables in insertion order.
	LocalTypes []ValueType
	// Body is a sequence of expressions ending in OpcodeEnd.
	Body []byte
}

type DataSegment struct {
	MemoryIndex Index // supposed to be zero
	OffsetExpr  *ConstantExpression
	Init        []byte
}

// MemoryPageSize is the unit of a memory's min/max limits, in bytes.
const MemoryPageSize = 65536

// ImportFuncCount returns the number of imported functions, which offsets the
// function index space of module-defined functions.
func (m *Module) ImportFuncCount() uint32 {
	return m.importCount(ImportKindFunc)
}

// ImportTableCount returns the number of imported tables.
func (m *Module) ImportTableCount() uint32 {
	return m.importCount(ImportKindTable)
}

// ImportMemoryCount returns the number of imported memories.
func (m *Module) ImportMemoryCount() uint32 {
	return m.importCount(ImportKindMemory)
}

// ImportGlobalCount returns the number of imported globals.
func (m *Module) ImportGlobalCount() uint32 {
	return m.importCount(ImportKindGlobal)
}

func (m *Module) importCount(kind ImportKind) (n uint32) {
	for _, im := range m.ImportSection {
		if im.Kind == kind {
			n++
		}
	}
	return
}

// ImportsByKind returns the imports of the given kind in declaration order.
// The position in the returned slice is the offset in the kind's index space.
func (m *Module) ImportsByKind(kind ImportKind) (ret []*Import) {
	for _, im := range m.ImportSection {
		if im.Kind == kind {
			ret = append(ret, im)
		}
	}
	return
}

// TypeOfFunction returns the FunctionType for the given function index space
// offset, or nil if the index is out of range.
//
// Note: The function index space is preceded by imported functions.
func (m *Module) TypeOfFunction(funcIdx Index) *FunctionType {
	typeSectionLength := uint32(len(m.TypeSection))
	funcImportCount := Index(0)
	for _, im := range m.ImportSection {
		if im.Kind == ImportKindFunc {
			if funcIdx == funcImportCount {
				if im.DescFunc >= typeSectionLength {
					return nil
				}
				return m.TypeSection[im.DescFunc]
			}
			funcImportCount++
		}
	}
	funcSectionIdx := funcIdx - funcImportCount
	if funcSectionIdx >= uint32(len(m.FunctionSection)) {
		return nil
	}
	typeIdx := m.FunctionSection[funcSectionIdx]
	if typeIdx >= typeSectionLength {
		return nil
	}
	return m.TypeSection[typeIdx]
}

// Globals returns the global types of the entire global index space: imported
// globals in declaration order followed by module-defined ones.
func (m *Module) Globals() (ret []*GlobalType) {
	for _, im := range m.ImportSection {
		if im.Kind == ImportKindGlobal {
			ret = append(ret, im.DescGlobal)
		}
	}
	for _, g := range m.GlobalSection {
		ret = append(ret, g.Type)
	}
	return
}

// Memories returns the memory types of the entire memory index space.
func (m *Module) Memories() (ret []*MemoryType) {
	for _, im := range m.ImportSection {
		if im.Kind == ImportKindMemory {
			ret = append(ret, im.DescMem)
		}
	}
	ret = append(ret, m.MemorySection...)
	return
}

// Tables returns the table types of the entire table index space.
func (m *Module) Tables() (ret []*TableType) {
	for _, im := range m.ImportSection {
		if im.Kind == ImportKindTable {
			ret = append(ret, im.DescTable)
		}
	}
	ret = append(ret, m.TableSection...)
	return
}

// SectionID identifies the sections of a Module in the WebAssembly 1.0 Binary Format.
// See https://www.w3.org/TR/wasm-core-1/#sections%E2%91%A0
type SectionID = byte

const (
	SectionIDCustom SectionID = iota
	SectionIDType
	SectionIDImport
	SectionIDFunction
	SectionIDTable
	SectionIDMemory
	SectionIDGlobal
	SectionIDExport
	SectionIDStart
	SectionIDElement
	SectionIDCode
	SectionIDData
)

// ValueType is the binary encoding of a type such as i32.
// See https://www.w3.org/TR/wasm-core-1/#binary-valtype
//
// Note: This is a type alias as it is easier to encode and decode in the binary format.
type ValueType = byte

const (
	ValueTypeI32 ValueType = 0x7f
	ValueTypeI64 ValueType = 0x7e
	ValueTypeF32 ValueType = 0x7d
	ValueTypeF64 ValueType = 0x7c
	// ValueTypeFuncref is a reference to a function, usable as a table element
	// or, with the reference-types proposal, a first-class value.
	ValueTypeFuncref ValueType = 0x70
	// ValueTypeExternref is an opaque host reference.
	ValueTypeExternref ValueType = 0x6f
)

// ValueTypeName returns the type name of the given ValueType as a string.
// These type names match the names used in the WebAssembly text format.
//
// Note: ValueTypeName returns "unknown" if an undefined ValueType value is passed.
func ValueTypeName(t ValueType) string {
	switch t {
	case ValueTypeI32:
		return "i32"
	case ValueTypeI64:
		return "i64"
	case ValueTypeF32:
		return "f32"
	case ValueTypeF64:
		return "f64"
	case ValueTypeFuncref:
		return "funcref"
	case ValueTypeExternref:
		return "externref"
	}
	return "unknown"
}

// IsReferenceType returns true for funcref and externref.
func IsReferenceType(t ValueType) bool {
	return t == ValueTypeFuncref || t == ValueTypeExternref
}

// ImportKind indicates which import description is present.
// See https://www.w3.org/TR/wasm-core-1/#import-section%E2%91%A0
type ImportKind = byte

const (
	ImportKindFunc   ImportKind = 0x00
	ImportKindTable  ImportKind = 0x01
	ImportKindMemory ImportKind = 0x02
	ImportKindGlobal ImportKind = 0x03
)

// ExportKind indicates which index Export.Index points to.
// See https://www.w3.org/TR/wasm-core-1/#export-section%E2%91%A0
type ExportKind = byte

const (
	ExportKindFunc   ExportKind = 0x00
	ExportKindTable  ExportKind = 0x01
	ExportKindMemory ExportKind = 0x02
	ExportKindGlobal ExportKind = 0x03
)

// ExportKindName returns the canonical name of the exportdesc.
// https://www.w3.org/TR/wasm-core-1/#syntax-exportdesc
func ExportKindName(ek ExportKind) string {
	switch ek {
	case ExportKindFunc:
		return "func"
	case ExportKindTable:
		return "table"
	case ExportKindMemory:
		return "mem"
	case ExportKindGlobal:
		return "global"
	}
	return "unknown"
}
