package jvm

// JVM instruction opcodes used by the translator.
// See https://docs.oracle.com/javase/specs/jvms/se8/html/jvms-6.html
const (
	OpNop             byte = 0x00
	OpAConstNull      byte = 0x01
	OpIConstM1        byte = 0x02
	OpIConst0         byte = 0x03
	OpIConst1         byte = 0x04
	OpIConst2         byte = 0x05
	OpIConst3         byte = 0x06
	OpIConst4         byte = 0x07
	OpIConst5         byte = 0x08
	OpLConst0         byte = 0x09
	OpLConst1         byte = 0x0a
	OpFConst0         byte = 0x0b
	OpFConst1         byte = 0x0c
	OpFConst2         byte = 0x0d
	OpDConst0         byte = 0x0e
	OpDConst1         byte = 0x0f
	OpBIPush          byte = 0x10
	OpSIPush          byte = 0x11
	OpLdc             byte = 0x12
	OpLdcW            byte = 0x13
	OpLdc2W           byte = 0x14
	OpILoad           byte = 0x15
	OpLLoad           byte = 0x16
	OpFLoad           byte = 0x17
	OpDLoad           byte = 0x18
	OpALoad           byte = 0x19
	OpILoad0          byte = 0x1a
	OpLLoad0          byte = 0x1e
	OpFLoad0          byte = 0x22
	OpDLoad0          byte = 0x26
	OpALoad0          byte = 0x2a
	OpIALoad          byte = 0x2e
	OpAALoad          byte = 0x32
	OpIStore          byte = 0x36
	OpLStore          byte = 0x37
	OpFStore          byte = 0x38
	OpDStore          byte = 0x39
	OpAStore          byte = 0x3a
	OpIStore0         byte = 0x3b
	OpLStore0         byte = 0x3f
	OpFStore0         byte = 0x43
	OpDStore0         byte = 0x47
	OpAStore0         byte = 0x4b
	OpIAStore         byte = 0x4f
	OpAAStore         byte = 0x53
	OpPop             byte = 0x57
	OpPop2            byte = 0x58
	OpDup             byte = 0x59
	OpDupX1           byte = 0x5a
	OpDupX2           byte = 0x5b
	OpDup2            byte = 0x5c
	OpDup2X1          byte = 0x5d
	OpDup2X2          byte = 0x5e
	OpSwap            byte = 0x5f
	OpIAdd            byte = 0x60
	OpLAdd            byte = 0x61
	OpFAdd            byte = 0x62
	OpDAdd            byte = 0x63
	OpISub            byte = 0x64
	OpLSub            byte = 0x65
	OpFSub            byte = 0x66
	OpDSub            byte = 0x67
	OpIMul            byte = 0x68
	OpLMul            byte = 0x69
	OpFMul            byte = 0x6a
	OpDMul            byte = 0x6b
	OpIDiv            byte = 0x6c
	OpLDiv            byte = 0x6d
	OpFDiv            byte = 0x6e
	OpDDiv            byte = 0x6f
	OpIRem            byte = 0x70
	OpLRem            byte = 0x71
	OpFRem            byte = 0x72
	OpDRem            byte = 0x73
	OpINeg            byte = 0x74
	OpLNeg            byte = 0x75
	OpFNeg            byte = 0x76
	OpDNeg            byte = 0x77
	OpIShl            byte = 0x78
	OpLShl            byte = 0x79
	OpIShr            byte = 0x7a
	OpLShr            byte = 0x7b
	OpIUShr           byte = 0x7c
	OpLUShr           byte = 0x7d
	OpIAnd            byte = 0x7e
	OpLAnd            byte = 0x7f
	OpIOr             byte = 0x80
	OpLOr             byte = 0x81
	OpIXor            byte = 0x82
	OpLXor            byte = 0x83
	OpIInc            byte = 0x84
	OpI2L             byte = 0x85
	OpI2F             byte = 0x86
	OpI2D             byte = 0x87
	OpL2I             byte = 0x88
	OpL2F             byte = 0x89
	OpL2D             byte = 0x8a
	OpF2I             byte = 0x8b
	OpF2L             byte = 0x8c
	OpF2D             byte = 0x8d
	OpD2I             byte = 0x8e
	OpD2L             byte = 0x8f
	OpD2F             byte = 0x90
	OpI2B             byte = 0x91
	OpI2C             byte = 0x92
	OpI2S             byte = 0x93
	OpLCmp            byte = 0x94
	OpFCmpL           byte = 0x95
	OpFCmpG           byte = 0x96
	OpDCmpL           byte = 0x97
	OpDCmpG           byte = 0x98
	OpIfEq            byte = 0x99
	OpIfNe            byte = 0x9a
	OpIfLt            byte = 0x9b
	OpIfGe            byte = 0x9c
	OpIfGt            byte = 0x9d
	OpIfLe            byte = 0x9e
	OpIfICmpEq        byte = 0x9f
	OpIfICmpNe        byte = 0xa0
	OpIfICmpLt        byte = 0xa1
	OpIfICmpGe        byte = 0xa2
	OpIfICmpGt        byte = 0xa3
	OpIfICmpLe        byte = 0xa4
	OpIfACmpEq        byte = 0xa5
	OpIfACmpNe        byte = 0xa6
	OpGoto            byte = 0xa7
	OpTableSwitch     byte = 0xaa
	OpLookupSwitch    byte = 0xab
	OpIReturn         byte = 0xac
	OpLReturn         byte = 0xad
	OpFReturn         byte = 0xae
	OpDReturn         byte = 0xaf
	OpAReturn         byte = 0xb0
	OpReturn          byte = 0xb1
	OpGetStatic       byte = 0xb2
	OpPutStatic       byte = 0xb3
	OpGetField        byte = 0xb4
	OpPutField        byte = 0xb5
	OpInvokeVirtual   byte = 0xb6
	OpInvokeSpecial   byte = 0xb7
	OpInvokeStatic    byte = 0xb8
	OpInvokeInterface byte = 0xb9
	OpNew             byte = 0xbb
	OpNewArray        byte = 0xbc
	OpANewArray       byte = 0xbd
	OpArrayLength     byte = 0xbe
	OpAThrow          byte = 0xbf
	OpCheckCast       byte = 0xc0
	OpInstanceOf      byte = 0xc1
	OpWide            byte = 0xc4
	OpIfNull          byte = 0xc6
	OpIfNonNull       byte = 0xc7
	OpGotoW           byte = 0xc8
)

// stackDelta maps a plain (operand-free) instruction to its effect on the
// operand-stack slot count. Instructions with operands or variable effect are
// handled by dedicated CodeBuilder methods.
var stackDelta = map[byte]int{
	OpNop:        0,
	OpAConstNull: 1,
	OpIConstM1:   1, OpIConst0: 1, OpIConst1: 1, OpIConst2: 1, OpIConst3: 1, OpIConst4: 1, OpIConst5: 1,
	OpLConst0: 2, OpLConst1: 2,
	OpFConst0: 1, OpFConst1: 1, OpFConst2: 1,
	OpDConst0: 2, OpDConst1: 2,
	OpIALoad: -1, OpAALoad: -1,
	OpIAStore: -3, OpAAStore: -3,
	OpPop: -1, OpPop2: -2,
	OpDup: 1, OpDupX1: 1, OpDupX2: 1,
	OpDup2: 2, OpDup2X1: 2, OpDup2X2: 2,
	OpSwap: 0,
	OpIAdd: -1, OpLAdd: -2, OpFAdd: -1, OpDAdd: -2,
	OpISub: -1, OpLSub: -2, OpFSub: -1, OpDSub: -2,
	OpIMul: -1, OpLMul: -2, OpFMul: -1, OpDMul: -2,
	OpIDiv: -1, OpLDiv: -2, OpFDiv: -1, OpDDiv: -2,
	OpIRem: -1, OpLRem: -2, OpFRem: -1, OpDRem: -2,
	OpINeg: 0, OpLNeg: 0, OpFNeg: 0, OpDNeg: 0,
	OpIShl: -1, OpLShl: -1, OpIShr: -1, OpLShr: -1, OpIUShr: -1, OpLUShr: -1,
	OpIAnd: -1, OpLAnd: -2, OpIOr: -1, OpLOr: -2, OpIXor: -1, OpLXor: -2,
	OpI2L: 1, OpI2F: 0, OpI2D: 1,
	OpL2I: -1, OpL2F: -1, OpL2D: 0,
	OpF2I: 0, OpF2L: 1, OpF2D: 1,
	OpD2I: -1, OpD2L: 0, OpD2F: -1,
	OpI2B: 0, OpI2C: 0, OpI2S: 0,
	OpLCmp: -3, OpFCmpL: -1, OpFCmpG: -1, OpDCmpL: -3, OpDCmpG: -3,
	OpArrayLength: 0,
	OpAThrow:      -1,
}

// branchDelta maps conditional and unconditional branch opcodes to their
// stack effect at the branch site.
var branchDelta = map[byte]int{
	OpIfEq: -1, OpIfNe: -1, OpIfLt: -1, OpIfGe: -1, OpIfGt: -1, OpIfLe: -1,
	OpIfICmpEq: -2, OpIfICmpNe: -2, OpIfICmpLt: -2, OpIfICmpGe: -2, OpIfICmpGt: -2, OpIfICmpLe: -2,
	OpIfACmpEq: -2, OpIfACmpNe: -2,
	OpIfNull: -1, OpIfNonNull: -1,
	OpGoto: 0,
}
