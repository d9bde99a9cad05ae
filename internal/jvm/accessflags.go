package jvm

// Access flags for classes, fields and methods.
// See https://docs.oracle.com/javase/specs/jvms/se8/html/jvms-4.html#jvms-4.1
const (
	AccPublic    uint16 = 0x0001
	AccPrivate   uint16 = 0x0002
	AccProtected uint16 = 0x0004
	AccStatic    uint16 = 0x0008
	AccFinal     uint16 = 0x0010
	AccSuper     uint16 = 0x0020
	AccSynthetic uint16 = 0x1000
)
