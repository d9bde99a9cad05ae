package wasmlift

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// addModuleBinary is the binary encoding of:
//
//	(module (func (export "add") (param i32 i32) (result i32)
//	  local.get 0 local.get 1 i32.add))
var addModuleBinary = []byte{
	0x00, 0x61, 0x73, 0x6d, // magic
	0x01, 0x00, 0x00, 0x00, // version
	0x01, 0x07, 0x01, 0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f, // type section
	0x03, 0x02, 0x01, 0x00, // function section
	0x07, 0x07, 0x01, 0x03, 'a', 'd', 'd', 0x00, 0x00, // export section
	0x0a, 0x09, 0x01, 0x07, 0x00, 0x20, 0x00, 0x20, 0x01, 0x6a, 0x0b, // code section
}

func TestTranslateModule(t *testing.T) {
	classes, err := TranslateModule(addModuleBinary, TranslationConfig{
		ClassName: "com.example.Adder",
	})
	require.NoError(t, err)
	require.NotEmpty(t, classes)

	require.Equal(t, "com/example/Adder", classes[0].Name)
	require.Equal(t, []byte{0xca, 0xfe, 0xba, 0xbe}, classes[0].Bytes[:4])

	// The trap class always rides along.
	names := make(map[string]bool, len(classes))
	for _, c := range classes {
		names[c.Name] = true
	}
	require.True(t, names["com/example/Adder$Trap"])
}

func TestTranslateModuleDeterminism(t *testing.T) {
	cfg := TranslationConfig{ClassName: "com.example.Adder"}
	first, err := TranslateModule(addModuleBinary, cfg)
	require.NoError(t, err)
	second, err := TranslateModule(addModuleBinary, cfg)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestTranslateModuleRejectsGarbage(t *testing.T) {
	_, err := TranslateModule([]byte{0x00, 0x01}, TranslationConfig{ClassName: "M"})
	require.Error(t, err)
}

func TestTranslateEmptyClassName(t *testing.T) {
	_, err := TranslateModule(addModuleBinary, TranslationConfig{})
	require.Error(t, err)
}
