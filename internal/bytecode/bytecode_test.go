package bytecode

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jstar/internal/compiler"
	"jstar/internal/gc"
	"jstar/internal/token"
	"jstar/value"
)

func compile(t *testing.T, heap *gc.Heap, src string) *value.FuncProto {
	t.Helper()
	proto, ok := compiler.CompileSource(heap, "<test>", src, func(path string, pos token.Pos, msg string) {
		t.Fatalf("compile error at %s: %s", pos, msg)
	})
	require.True(t, ok)
	return proto
}

const roundTripSrc = `
	fun outer(a, b = 2, ...rest)
		var captured = a
		fun inner()
			return captured + b
		end
		return inner
	end

	fun gen()
		yield 1
		yield 2
	end

	class Greeter
		construct(name)
			self.name = name
		end
		fun greet()
			return "hello " + self.name
		end
	end

	var pi = 3.14159
	print(outer(1)())
`

// protoDiff compares two prototype trees structurally, following
// nested prototype constants.
func protoDiff(a, b *value.FuncProto) string {
	return cmp.Diff(a, b,
		cmpopts.IgnoreFields(value.FuncProto{}, "Header", "NumLocals"),
		cmpopts.EquateEmpty(),
		cmp.AllowUnexported(value.Value{}),
		cmp.Comparer(func(x, y value.Value) bool {
			if x.Kind() != y.Kind() {
				return false
			}
			switch x.Kind() {
			case value.Null:
				return true
			case value.Bool:
				return x.AsBool() == y.AsBool()
			case value.Number:
				return x.AsNumber() == y.AsNumber()
			case value.Object:
				xs, xok := x.AsObj().(*value.String)
				ys, yok := y.AsObj().(*value.String)
				if xok && yok {
					return xs.Bytes == ys.Bytes
				}
				xp, xok := x.AsObj().(*value.FuncProto)
				yp, yok := y.AsObj().(*value.FuncProto)
				if xok && yok {
					return protoDiff(xp, yp) == ""
				}
			}
			return false
		}),
	)
}

func TestRoundTrip(t *testing.T) {
	heap := gc.New(gc.DefaultConfig())
	proto := compile(t, heap, roundTripSrc)

	data := Serialize(proto)
	got, err := Deserialize(heap, data, "<test>")
	require.NoError(t, err)

	assert.Empty(t, protoDiff(proto, got))
}

func TestSerializeIsDeterministic(t *testing.T) {
	h1 := gc.New(gc.DefaultConfig())
	h2 := gc.New(gc.DefaultConfig())
	a := Serialize(compile(t, h1, roundTripSrc))
	b := Serialize(compile(t, h2, roundTripSrc))
	assert.Equal(t, a, b)
}

func TestDeserialize_BadMagic(t *testing.T) {
	heap := gc.New(gc.DefaultConfig())
	_, err := Deserialize(heap, []byte{'n', 'o', 'p', 'e', 0, 0, 0}, "<test>")
	assert.ErrorIs(t, err, ErrMagic)
}

func TestDeserialize_VersionMismatch(t *testing.T) {
	heap := gc.New(gc.DefaultConfig())
	data := Serialize(compile(t, heap, "var x = 1"))
	data[4] = 0xff
	data[5] = 0xff
	_, err := Deserialize(heap, data, "<test>")
	assert.ErrorIs(t, err, ErrVersion)
}

func TestDeserialize_Truncated(t *testing.T) {
	heap := gc.New(gc.DefaultConfig())
	data := Serialize(compile(t, heap, "var x = 1 + 2"))
	for _, cut := range []int{5, 7, len(data) / 2, len(data) - 1} {
		_, err := Deserialize(heap, data[:cut], "<test>")
		assert.Error(t, err, "cut at %d", cut)
	}
}

func TestDeserialize_UnknownTag(t *testing.T) {
	heap := gc.New(gc.DefaultConfig())
	proto := compile(t, heap, `var s = "needle"`)
	data := Serialize(proto)

	// Corrupt the string constant's tag byte.
	idx := -1
	for i := 0; i+6 < len(data); i++ {
		if string(data[i:i+6]) == "needle" {
			idx = i
			break
		}
	}
	require.GreaterOrEqual(t, idx, 0)
	data[idx-3] = 0x7f // tag byte sits before the u16 length
	_, err := Deserialize(heap, data, "<test>")
	assert.Error(t, err)
}

func TestRoundTrip_EmptySource(t *testing.T) {
	heap := gc.New(gc.DefaultConfig())
	proto := compile(t, heap, "")
	got, err := Deserialize(heap, Serialize(proto), "<test>")
	require.NoError(t, err)
	assert.Equal(t, proto.Code, got.Code)
	assert.Equal(t, proto.Lines, got.Lines)
}
