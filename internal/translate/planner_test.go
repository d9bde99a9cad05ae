package translate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmlift/wasmlift/internal/jvm"
	"github.com/wasmlift/wasmlift/internal/wasm"
)

func TestCarrierClassSharing(t *testing.T) {
	p := newPlanner("com/example/M")

	// Two i32 globals share one carrier class; an i64 global gets its own.
	a := p.carrierClass(globalFieldName, jvm.TypeInt)
	b := p.carrierClass(globalFieldName, jvm.TypeInt)
	c := p.carrierClass(globalFieldName, jvm.TypeLong)
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
	require.Equal(t, "com/example/M$GlobalI", a)
	require.Equal(t, "com/example/M$GlobalJ", c)

	require.Equal(t, "com/example/M$Memory",
		p.carrierClass(memoryFieldName, jvm.ObjectType(jvm.ByteBufferClass)))
	require.Equal(t, "com/example/M$TableFunc",
		p.carrierClass(tableFieldName, jvm.ArrayOf(jvm.ObjectType(jvm.MethodHandleClass))))
}

func TestCarrierNamesAreDeterministic(t *testing.T) {
	build := func() []string {
		p := newPlanner("com/example/M")
		return []string{
			p.carrierClass(globalFieldName, jvm.TypeFloat),
			p.carrierClass(memoryFieldName, jvm.ObjectType(jvm.ByteBufferClass)),
			p.carrierClass(globalFieldName, jvm.TypeFloat),
		}
	}
	require.Equal(t, build(), build())
}

func TestMangleIdentifier(t *testing.T) {
	for _, c := range []struct {
		in, exp string
	}{
		{"add", "add"},
		{"two words", "two_words"},
		{"memory.grow", "memory_grow"},
		{"0start", "_start"},
		{"", "_"},
		{"$ok_name9", "$ok_name9"},
	} {
		require.Equal(t, c.exp, mangleIdentifier(c.in), "input %q", c.in)
	}
}

func TestExportMethodNameCollisions(t *testing.T) {
	p := newPlanner("com/example/M")
	first := p.exportMethodName("do it")
	second := p.exportMethodName("do.it")
	require.Equal(t, "do_it", first)
	require.NotEqual(t, first, second)

	// Stable on re-query.
	require.Equal(t, first, p.exportMethodName("do it"))
}

func TestCanonicalImportName(t *testing.T) {
	im := &wasm.Import{Module: "env", Name: "mem"}
	require.Equal(t, "env.mem", canonicalImportName(im))
}
