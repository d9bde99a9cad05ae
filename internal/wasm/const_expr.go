package wasm

import (
	"bytes"
	"fmt"
	"io"

	"github.com/wasmlift/wasmlift/internal/ieee754"
	"github.com/wasmlift/wasmlift/internal/leb128"
)

func readConstantExpression(r io.Reader) (*ConstantExpression, error) {
	b := make([]byte, 1)
	_, err := io.ReadFull(r, b)
	if err != nil {
		return nil, fmt.Errorf("read opcode: %v", err)
	}
	buf := new(bytes.Buffer)
	teeR := io.TeeReader(r, buf)

	opcode := b[0]
	switch opcode {
	case OpcodeI32Const:
		_, _, err = leb128.DecodeInt32(teeR)
	case OpcodeI64Const:
		_, _, err = leb128.DecodeInt64(teeR)
	case OpcodeF32Const:
		_, err = ieee754.DecodeFloat32(teeR)
	case OpcodeF64Const:
		_, err = ieee754.DecodeFloat64(teeR)
	case OpcodeGlobalGet:
		_, _, err = leb128.DecodeUint32(teeR)
	case OpcodeRefNull:
		_, err = io.ReadFull(teeR, make([]byte, 1)) // reference type
	case OpcodeRefFunc:
		_, _, err = leb128.DecodeUint32(teeR)
	default:
		return nil, fmt.Errorf("%w for const expression opcode: %#x", ErrInvalidByte, b[0])
	}

	if err != nil {
		return nil, fmt.Errorf("read value: %v", err)
	}

	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("look for end opcode: %v", err)
	}

	if b[0] != OpcodeEnd {
		return nil, fmt.Errorf("constant expression has not been terminated")
	}

	return &ConstantExpression{
		Opcode: opcode,
		Data:   buf.Bytes(),
	}, nil
}
