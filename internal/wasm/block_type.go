package wasm

import (
	"fmt"
	"io"

	"github.com/wasmlift/wasmlift/internal/leb128"
)

// ReadBlockType reads the block type immediate of a block, loop or if
// instruction and resolves it against the type section.
//
// The immediate is a signed 33-bit integer: non-negative values index the
// type section, while the negative values encode the empty type or a single
// result type inline.
// See https://webassembly.github.io/spec/core/binary/instructions.html#binary-blocktype
func ReadBlockType(types []*FunctionType, r io.Reader) (*FunctionType, uint64, error) {
	raw, num, err := leb128.DecodeInt33AsInt64(r)
	if err != nil {
		return nil, 0, fmt.Errorf("decode int33: %w", err)
	}

	var ret *FunctionType
	switch raw {
	case -64: // 0x40 in original byte = empty
		ret = &FunctionType{}
	case -1: // 0x7f in original byte = i32
		ret = &FunctionType{Results: []ValueType{ValueTypeI32}}
	case -2: // 0x7e in original byte = i64
		ret = &FunctionType{Results: []ValueType{ValueTypeI64}}
	case -3: // 0x7d in original byte = f32
		ret = &FunctionType{Results: []ValueType{ValueTypeF32}}
	case -4: // 0x7c in original byte = f64
		ret = &FunctionType{Results: []ValueType{ValueTypeF64}}
	case -16: // 0x70 in original byte = funcref
		ret = &FunctionType{Results: []ValueType{ValueTypeFuncref}}
	case -17: // 0x6f in original byte = externref
		ret = &FunctionType{Results: []ValueType{ValueTypeExternref}}
	default:
		if raw < 0 || raw >= int64(len(types)) {
			return nil, 0, fmt.Errorf("invalid block type index: %d", raw)
		}
		ret = types[raw]
	}
	return ret, num, nil
}
