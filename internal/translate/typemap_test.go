package translate

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"github.com/wasmlift/wasmlift/internal/jvm"
	"github.com/wasmlift/wasmlift/internal/wasm"
)

func TestJVMTypeOf(t *testing.T) {
	require.Equal(t, jvm.TypeInt, jvmTypeOf(wasm.ValueTypeI32))
	require.Equal(t, jvm.TypeLong, jvmTypeOf(wasm.ValueTypeI64))
	require.Equal(t, jvm.TypeFloat, jvmTypeOf(wasm.ValueTypeF32))
	require.Equal(t, jvm.TypeDouble, jvmTypeOf(wasm.ValueTypeF64))
	require.Equal(t, jvm.ObjectType(jvm.MethodHandleClass), jvmTypeOf(wasm.ValueTypeFuncref))
	require.Equal(t, jvm.ObjectType(jvm.ObjectClass), jvmTypeOf(wasm.ValueTypeExternref))
}

func repeated(t wasm.ValueType, n int) []wasm.ValueType {
	ret := make([]wasm.ValueType, n)
	for i := range ret {
		ret[i] = t
	}
	return ret
}

func TestSignatureOf(t *testing.T) {
	t.Run("natural", func(t *testing.T) {
		s := signatureOf(&wasm.FunctionType{
			Params:  []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeF64},
			Results: []wasm.ValueType{wasm.ValueTypeI64},
		})
		require.False(t, s.packedParams)
		require.False(t, s.packedResults)
		require.Equal(t, "(ID)J", s.desc.String())
	})

	t.Run("at the slot budget", func(t *testing.T) {
		// 127 longs are 254 slots: the last natural shape.
		s := signatureOf(&wasm.FunctionType{Params: repeated(wasm.ValueTypeI64, 127)})
		require.False(t, s.packedParams)

		s = signatureOf(&wasm.FunctionType{Params: repeated(wasm.ValueTypeI64, 128)})
		require.True(t, s.packedParams)
		require.Equal(t, "([Ljava/lang/Object;)V", s.desc.String())
	})

	t.Run("multi-value results", func(t *testing.T) {
		s := signatureOf(&wasm.FunctionType{
			Params:  []wasm.ValueType{wasm.ValueTypeI32},
			Results: []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI64},
		})
		require.False(t, s.packedParams)
		require.True(t, s.packedResults)
		require.Equal(t, "(I)[Ljava/lang/Object;", s.desc.String())
	})

	t.Run("inner descriptor appends the module", func(t *testing.T) {
		s := signatureOf(&wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32}})
		inner := s.innerDesc(jvm.ObjectType("com/example/M"))
		require.Equal(t, "(ILcom/example/M;)V", inner.String())
	})
}

func TestSignaturePackingProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	valueType := gen.OneConstOf(
		wasm.ValueTypeI32, wasm.ValueTypeI64, wasm.ValueTypeF32,
		wasm.ValueTypeF64, wasm.ValueTypeFuncref, wasm.ValueTypeExternref)

	properties.Property("params pack exactly when the slot budget overflows", prop.ForAll(
		func(params []wasm.ValueType) bool {
			slots := 0
			for _, p := range params {
				slots += jvmTypeOf(p).SlotWidth()
			}
			s := signatureOf(&wasm.FunctionType{Params: params})
			return s.packedParams == (slots > maxParamSlots)
		},
		gen.SliceOf(valueType),
	))

	properties.Property("results pack exactly when there are several", prop.ForAll(
		func(results []wasm.ValueType) bool {
			s := signatureOf(&wasm.FunctionType{Results: results})
			return s.packedResults == (len(results) > 1)
		},
		gen.SliceOf(valueType),
	))

	properties.TestingRun(t)
}
