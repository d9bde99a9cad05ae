package wasm

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/wasmlift/wasmlift/internal/leb128"
)

var (
	magic   = []byte{0x00, 0x61, 0x73, 0x6d}
	version = []byte{0x01, 0x00, 0x00, 0x00}
)

// DecodeModule decodes a module in the WebAssembly 1.0 Binary Format. The
// result is structurally checked, but not validated: the translator assumes
// an upstream validator has accepted the module.
func DecodeModule(binary []byte) (*Module, error) {
	r := bytes.NewReader(binary)

	// Magic number.
	buf := make([]byte, 4)
	if n, err := io.ReadFull(r, buf); err != nil || n != 4 || !bytes.Equal(buf, magic) {
		return nil, ErrInvalidMagicNumber
	}

	// Version.
	if n, err := io.ReadFull(r, buf); err != nil || n != 4 || !bytes.Equal(buf, version) {
		return nil, ErrInvalidVersion
	}

	ret := &Module{CustomSections: map[string][]byte{}}
	if err := ret.readSections(r); err != nil {
		return nil, fmt.Errorf("read sections: %w", err)
	}

	if len(ret.FunctionSection) != len(ret.CodeSection) {
		return nil, fmt.Errorf("function and code section have inconsistent lengths")
	}
	return ret, nil
}

func (m *Module) readSections(r *bytes.Reader) error {
	for {
		if err := m.readSection(r); errors.Is(err, io.EOF) {
			return nil
		} else if err != nil {
			return err
		}
	}
}

func (m *Module) readSection(r *bytes.Reader) error {
	b := make([]byte, 1)
	if _, err := io.ReadFull(r, b); err != nil {
		return err
	}

	ss, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return fmt.Errorf("get size of section for id=%d: %w", b[0], err)
	}

	switch b[0] {
	case SectionIDCustom:
		err = m.readSectionCustom(r, ss)
	case SectionIDType:
		err = m.readSectionTypes(r)
	case SectionIDImport:
		err = m.readSectionImports(r)
	case SectionIDFunction:
		err = m.readSectionFunctions(r)
	case SectionIDTable:
		err = m.readSectionTables(r)
	case SectionIDMemory:
		err = m.readSectionMemories(r)
	case SectionIDGlobal:
		err = m.readSectionGlobals(r)
	case SectionIDExport:
		err = m.readSectionExports(r)
	case SectionIDStart:
		err = m.readSectionStart(r)
	case SectionIDElement:
		err = m.readSectionElement(r)
	case SectionIDCode:
		err = m.readSectionCodes(r)
	case SectionIDData:
		err = m.readSectionData(r)
	default:
		err = ErrInvalidSectionID
	}

	if err != nil {
		return fmt.Errorf("read section id=%d: %w", b[0], err)
	}
	return nil
}

func (m *Module) readSectionCustom(r *bytes.Reader, size uint32) error {
	nameLen, nameLenSize, err := leb128.DecodeUint32(r)
	if err != nil {
		return fmt.Errorf("get custom section name length: %w", err)
	}
	name := make([]byte, nameLen)
	if _, err := io.ReadFull(r, name); err != nil {
		return fmt.Errorf("read custom section name: %w", err)
	}
	contentLen := int64(size) - int64(nameLenSize) - int64(nameLen)
	if contentLen < 0 {
		return fmt.Errorf("malformed custom section %s", string(name))
	}
	content := make([]byte, contentLen)
	if _, err := io.ReadFull(r, content); err != nil {
		return fmt.Errorf("read custom section content: %w", err)
	}
	m.CustomSections[string(name)] = content
	return nil
}

func (m *Module) readSectionTypes(r *bytes.Reader) error {
	vs, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return fmt.Errorf("get size of vector: %w", err)
	}

	m.TypeSection = make([]*FunctionType, vs)
	for i := range m.TypeSection {
		m.TypeSection[i], err = readFunctionType(r)
		if err != nil {
			return fmt.Errorf("read %d-th function type: %w", i, err)
		}
	}
	return nil
}

func (m *Module) readSectionImports(r *bytes.Reader) error {
	vs, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return fmt.Errorf("get size of vector: %w", err)
	}

	m.ImportSection = make([]*Import, vs)
	for i := range m.ImportSection {
		m.ImportSection[i], err = readImport(r)
		if err != nil {
			return fmt.Errorf("read import: %w", err)
		}
	}
	return nil
}

func (m *Module) readSectionFunctions(r *bytes.Reader) error {
	vs, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return fmt.Errorf("get size of vector: %w", err)
	}

	m.FunctionSection = make([]Index, vs)
	for i := range m.FunctionSection {
		m.FunctionSection[i], _, err = leb128.DecodeUint32(r)
		if err != nil {
			return fmt.Errorf("get typeidx: %w", err)
		}
	}
	return nil
}

func (m *Module) readSectionTables(r *bytes.Reader) error {
	vs, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return fmt.Errorf("get size of vector: %w", err)
	}

	m.TableSection = make([]*TableType, vs)
	for i := range m.TableSection {
		m.TableSection[i], err = readTableType(r)
		if err != nil {
			return fmt.Errorf("read table type: %w", err)
		}
	}
	return nil
}

func (m *Module) readSectionMemories(r *bytes.Reader) error {
	vs, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return fmt.Errorf("get size of vector: %w", err)
	}

	m.MemorySection = make([]*MemoryType, vs)
	for i := range m.MemorySection {
		m.MemorySection[i], err = readLimitsType(r)
		if err != nil {
			return fmt.Errorf("read memory type: %w", err)
		}
	}
	return nil
}

func (m *Module) readSectionGlobals(r *bytes.Reader) error {
	vs, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return fmt.Errorf("get size of vector: %w", err)
	}

	m.GlobalSection = make([]*Global, vs)
	for i := range m.GlobalSection {
		m.GlobalSection[i], err = readGlobal(r)
		if err != nil {
			return fmt.Errorf("read global: %w", err)
		}
	}
	return nil
}

func (m *Module) readSectionExports(r *bytes.Reader) error {
	vs, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return fmt.Errorf("get size of vector: %w", err)
	}

	m.ExportSection = make(map[string]*Export, vs)
	for i := uint32(0); i < vs; i++ {
		export, err := readExport(r)
		if err != nil {
			return fmt.Errorf("read export: %w", err)
		}
		if _, ok := m.ExportSection[export.Name]; ok {
			return fmt.Errorf("duplicate export name %q", export.Name)
		}
		m.ExportSection[export.Name] = export
	}
	return nil
}

func (m *Module) readSectionStart(r *bytes.Reader) error {
	vs, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return fmt.Errorf("get function index: %w", err)
	}
	m.StartSection = &vs
	return nil
}

func (m *Module) readSectionElement(r *bytes.Reader) error {
	vs, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return fmt.Errorf("get size of vector: %w", err)
	}

	m.ElementSection = make([]*ElementSegment, vs)
	for i := range m.ElementSection {
		m.ElementSection[i], err = readElementSegment(r)
		if err != nil {
			return fmt.Errorf("read element segment: %w", err)
		}
	}
	return nil
}

func (m *Module) readSectionCodes(r *bytes.Reader) error {
	vs, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return fmt.Errorf("get size of vector: %w", err)
	}

	m.CodeSection = make([]*Code, vs)
	for i := range m.CodeSection {
		m.CodeSection[i], err = readCode(r)
		if err != nil {
			return fmt.Errorf("read %d-th code: %w", i, err)
		}
	}
	return nil
}

func (m *Module) readSectionData(r *bytes.Reader) error {
	vs, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return fmt.Errorf("get size of vector: %w", err)
	}

	m.DataSection = make([]*DataSegment, vs)
	for i := range m.DataSection {
		m.DataSection[i], err = readDataSegment(r)
		if err != nil {
			return fmt.Errorf("read data segment: %w", err)
		}
	}
	return nil
}

func readFunctionType(r *bytes.Reader) (*FunctionType, error) {
	b := make([]byte, 1)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("read leading byte: %w", err)
	}

	if b[0] != 0x60 {
		return nil, fmt.Errorf("%w: %#x != 0x60", ErrInvalidByte, b[0])
	}

	s, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("get the size of input value types: %w", err)
	}

	paramTypes, err := readValueTypes(r, s)
	if err != nil {
		return nil, fmt.Errorf("read value types of inputs: %w", err)
	}

	s, _, err = leb128.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("get the size of output value types: %w", err)
	}

	resultTypes, err := readValueTypes(r, s)
	if err != nil {
		return nil, fmt.Errorf("read value types of outputs: %w", err)
	}

	return &FunctionType{
		Params:  paramTypes,
		Results: resultTypes,
	}, nil
}

func readValueTypes(r *bytes.Reader, num uint32) ([]ValueType, error) {
	ret := make([]ValueType, num)
	buf := make([]byte, num)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	for i, v := range buf {
		switch v {
		case ValueTypeI32, ValueTypeI64, ValueTypeF32, ValueTypeF64,
			ValueTypeFuncref, ValueTypeExternref:
			ret[i] = v
		default:
			return nil, fmt.Errorf("%w: invalid value type: %#x", ErrInvalidByte, v)
		}
	}
	return ret, nil
}

func readImport(r *bytes.Reader) (*Import, error) {
	mn, err := readName(r)
	if err != nil {
		return nil, fmt.Errorf("read name of imported module: %w", err)
	}

	n, err := readName(r)
	if err != nil {
		return nil, fmt.Errorf("read name of imported entity: %w", err)
	}

	b := make([]byte, 1)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("read import kind: %w", err)
	}

	ret := &Import{Module: mn, Name: n, Kind: b[0]}
	switch b[0] {
	case ImportKindFunc:
		ret.DescFunc, _, err = leb128.DecodeUint32(r)
		if err != nil {
			return nil, fmt.Errorf("read type index: %w", err)
		}
	case ImportKindTable:
		ret.DescTable, err = readTableType(r)
		if err != nil {
			return nil, fmt.Errorf("read table type: %w", err)
		}
	case ImportKindMemory:
		ret.DescMem, err = readLimitsType(r)
		if err != nil {
			return nil, fmt.Errorf("read memory type: %w", err)
		}
	case ImportKindGlobal:
		ret.DescGlobal, err = readGlobalType(r)
		if err != nil {
			return nil, fmt.Errorf("read global type: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: invalid byte for importdesc: %#x", ErrInvalidByte, b[0])
	}
	return ret, nil
}

func readLimitsType(r *bytes.Reader) (*LimitsType, error) {
	b := make([]byte, 1)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("read leading byte: %v", err)
	}

	ret := &LimitsType{}
	switch b[0] {
	case 0x00:
		var err error
		ret.Min, _, err = leb128.DecodeUint32(r)
		if err != nil {
			return nil, fmt.Errorf("read min of limit: %v", err)
		}
	case 0x01:
		var err error
		ret.Min, _, err = leb128.DecodeUint32(r)
		if err != nil {
			return nil, fmt.Errorf("read min of limit: %v", err)
		}
		m, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, fmt.Errorf("read max of limit: %v", err)
		}
		ret.Max = &m
	default:
		return nil, fmt.Errorf("%w for limits: %#x != 0x00 or 0x01", ErrInvalidByte, b[0])
	}
	return ret, nil
}

func readTableType(r *bytes.Reader) (*TableType, error) {
	b := make([]byte, 1)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("read leading byte: %v", err)
	}

	elemType := b[0]
	if elemType != ValueTypeFuncref && elemType != ValueTypeExternref {
		return nil, fmt.Errorf("%w: invalid element type %#x", ErrInvalidByte, elemType)
	}

	lm, err := readLimitsType(r)
	if err != nil {
		return nil, fmt.Errorf("read limits: %v", err)
	}

	return &TableType{
		ElemType: elemType,
		Limit:    lm,
	}, nil
}

func readGlobalType(r *bytes.Reader) (*GlobalType, error) {
	vt, err := readValueTypes(r, 1)
	if err != nil {
		return nil, fmt.Errorf("read value type: %w", err)
	}

	ret := &GlobalType{
		ValType: vt[0],
	}

	b := make([]byte, 1)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("read mutability: %w", err)
	}

	switch mut := b[0]; mut {
	case 0x00:
	case 0x01:
		ret.Mutable = true
	default:
		return nil, fmt.Errorf("%w for mutability: %#x != 0x00 or 0x01", ErrInvalidByte, mut)
	}
	return ret, nil
}

func readGlobal(r *bytes.Reader) (*Global, error) {
	gt, err := readGlobalType(r)
	if err != nil {
		return nil, fmt.Errorf("read global type: %v", err)
	}

	init, err := readConstantExpression(r)
	if err != nil {
		return nil, fmt.Errorf("get init expression: %v", err)
	}

	return &Global{Type: gt, Init: init}, nil
}

func readExport(r *bytes.Reader) (*Export, error) {
	name, err := readName(r)
	if err != nil {
		return nil, fmt.Errorf("read export name: %w", err)
	}

	b := make([]byte, 1)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("read export kind: %w", err)
	}

	kind := b[0]
	if kind >= 0x04 {
		return nil, fmt.Errorf("%w: invalid byte for exportdesc: %#x", ErrInvalidByte, kind)
	}

	id, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("read export index: %w", err)
	}

	return &Export{Name: name, Kind: kind, Index: id}, nil
}

func readElementSegment(r *bytes.Reader) (*ElementSegment, error) {
	ti, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("get table index: %w", err)
	}

	expr, err := readConstantExpression(r)
	if err != nil {
		return nil, fmt.Errorf("read expr for offset: %w", err)
	}

	vs, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("get size of vector: %w", err)
	}

	init := make([]Index, vs)
	for i := range init {
		fIdx, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, fmt.Errorf("read function index: %w", err)
		}
		init[i] = fIdx
	}

	return &ElementSegment{
		TableIndex: ti,
		OffsetExpr: expr,
		Init:       init,
	}, nil
}

func readCode(r *bytes.Reader) (*Code, error) {
	ss, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("get the size of code: %w", err)
	}

	lr := io.LimitReader(r, int64(ss))

	// parse locals
	ls, _, err := leb128.DecodeUint32(lr)
	if err != nil {
		return nil, fmt.Errorf("get the size of locals: %v", err)
	}

	var nums []uint64
	var types []ValueType
	var sum uint64
	b := make([]byte, 1)
	for i := uint32(0); i < ls; i++ {
		n, _, err := leb128.DecodeUint32(lr)
		if err != nil {
			return nil, fmt.Errorf("read n of locals: %v", err)
		}
		sum += uint64(n)
		nums = append(nums, uint64(n))

		if _, err = io.ReadFull(lr, b); err != nil {
			return nil, fmt.Errorf("read type of local: %v", err)
		}
		switch vt := b[0]; vt {
		case ValueTypeI32, ValueTypeF32, ValueTypeI64, ValueTypeF64,
			ValueTypeFuncref, ValueTypeExternref:
			types = append(types, vt)
		default:
			return nil, fmt.Errorf("invalid local type: 0x%x", vt)
		}
	}

	if sum > math.MaxUint32 {
		return nil, fmt.Errorf("too many locals: %d", sum)
	}

	var localTypes []ValueType
	for i, num := range nums {
		t := types[i]
		for j := uint64(0); j < num; j++ {
			localTypes = append(localTypes, t)
		}
	}

	body, err := io.ReadAll(lr)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if len(body) == 0 || body[len(body)-1] != OpcodeEnd {
		return nil, fmt.Errorf("expr not terminated with OpcodeEnd")
	}

	return &Code{
		Body:       body,
		LocalTypes: localTypes,
	}, nil
}

func readDataSegment(r *bytes.Reader) (*DataSegment, error) {
	d, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("read memory index: %v", err)
	}

	if d != 0 {
		return nil, fmt.Errorf("invalid memory index: %d", d)
	}

	expr, err := readConstantExpression(r)
	if err != nil {
		return nil, fmt.Errorf("read offset expression: %v", err)
	}

	vs, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, fmt.Errorf("get the size of vector: %v", err)
	}

	b := make([]byte, vs)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("read bytes for init: %v", err)
	}

	return &DataSegment{
		OffsetExpr: expr,
		Init:       b,
	}, nil
}

func readName(r *bytes.Reader) (string, error) {
	vs, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return "", fmt.Errorf("get size of name: %w", err)
	}

	buf := make([]byte, vs)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("read name: %w", err)
	}
	return string(buf), nil
}
