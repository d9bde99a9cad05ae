package translate

import (
	"fmt"

	"github.com/wasmlift/wasmlift/internal/jvm"
	"github.com/wasmlift/wasmlift/internal/wasm"
)

type controlFrameKind byte

const (
	controlFrameKindFunction controlFrameKind = iota
	controlFrameKindBlock
	controlFrameKindLoop
	controlFrameKindIf
)

type (
	// controlFrame is one structured-control scope: the function body, a
	// block, a loop or an if/else.
	controlFrame struct {
		kind      controlFrameKind
		blockType *wasm.FunctionType

		// base is the abstract operand-stack length beneath the frame's
		// parameters at entry. On a clean exit the stack is base + results.
		base int

		// entryLabel is placed at the top of a loop: backward branches target it.
		entryLabel jvm.Label
		// elseLabel is the start of an if's else arm (or its synthesized
		// empty arm when no else is present).
		elseLabel jvm.Label
		// exitLabel is the continuation after the frame: forward branches
		// target it. Unused for the function frame, whose branch target is
		// the return sequence.
		exitLabel jvm.Label

		// sawElse records that an else opcode was handled for an if frame.
		sawElse bool
		// exitUsed records whether any branch targets exitLabel. The label
		// of a block or if frame is placed at its end either way.
		exitUsed bool
	}
	controlFrames struct{ frames []*controlFrame }
)

// branchArity returns the value types a branch to this frame transfers:
// the parameter types for a loop (branches re-enter the top), the result
// types for every other kind.
func (c *controlFrame) branchArity() []wasm.ValueType {
	if c.kind == controlFrameKindLoop {
		return c.blockType.Params
	}
	return c.blockType.Results
}

func (c *controlFrames) functionFrame() *controlFrame {
	// No need to check the bound: the operations are valid because the
	// upstream validator accepted the module.
	return c.frames[0]
}

func (c *controlFrames) get(n int) *controlFrame {
	// No need to check the bound: the operations are valid because the
	// upstream validator accepted the module.
	return c.frames[len(c.frames)-n-1]
}

func (c *controlFrames) top() *controlFrame {
	return c.frames[len(c.frames)-1]
}

func (c *controlFrames) empty() bool {
	return len(c.frames) == 0
}

func (c *controlFrames) pop() (frame *controlFrame) {
	frame = c.top()
	c.frames = c.frames[:len(c.frames)-1]
	return
}

func (c *controlFrames) push(frame *controlFrame) {
	c.frames = append(c.frames, frame)
}

func (c controlFrameKind) String() string {
	switch c {
	case controlFrameKindFunction:
		return "function"
	case controlFrameKindBlock:
		return "block"
	case controlFrameKindLoop:
		return "loop"
	case controlFrameKindIf:
		return "if"
	}
	panic(fmt.Sprintf("BUG: invalid control frame kind: %d", c))
}
