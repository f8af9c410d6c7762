package persist

import (
	"bytes"
	"testing"

	"github.com/Iris-proj/iris-vm/internal/code"
	"github.com/Iris-proj/iris-vm/internal/object"
	"github.com/Iris-proj/iris-vm/internal/value"
	"github.com/stretchr/testify/require"
)

func TestFunctionRoundTrip(t *testing.T) {
	fn := code.NewBytecodeFunction("add", 2, []byte{
		byte(code.OpGetLocal8), 0,
		byte(code.OpGetLocal8), 1,
		byte(code.OpAdd),
		byte(code.OpReturn),
	}, []value.Value{
		value.I32(7),
		value.NewStr("hello"),
		value.Bool(true),
		value.Null(),
	})

	var buf bytes.Buffer
	require.NoError(t, WriteFunction(&buf, fn))

	back, err := ReadFunction(&buf)
	require.NoError(t, err)

	require.Equal(t, fn.Name, back.Name)
	require.Equal(t, fn.Arity, back.Arity)
	require.Equal(t, fn.Code, back.Code)
	require.Equal(t, code.KindBytecode, back.Kind)
	require.False(t, back.IsSpecialized())
	require.Equal(t, fn.Constants, back.Constants)
}

func TestFunctionRoundTripAllNumericKinds(t *testing.T) {
	fn := code.NewBytecodeFunction("k", 0, []byte{byte(code.OpReturn)}, []value.Value{
		value.I8(-1),
		value.I16(-2),
		value.I32(-3),
		value.I64(-4),
		value.I128(value.Int128{Hi: -1, Lo: 9}),
		value.U8(1),
		value.U16(2),
		value.U32(3),
		value.U64(4),
		value.U128(value.Uint128{Hi: 1, Lo: 2}),
		value.F32(1.5),
		value.F64(2.5),
	})

	var buf bytes.Buffer
	require.NoError(t, WriteFunction(&buf, fn))

	back, err := ReadFunction(&buf)
	require.NoError(t, err)
	require.Equal(t, fn.Constants, back.Constants)
}

func TestFunctionRoundTripEmptyCodeAndConstants(t *testing.T) {
	fn := code.NewBytecodeFunction("empty", 0, nil, nil)

	var buf bytes.Buffer
	require.NoError(t, WriteFunction(&buf, fn))

	back, err := ReadFunction(&buf)
	require.NoError(t, err)
	require.Equal(t, "empty", back.Name)
	require.Empty(t, back.Code)
	require.Empty(t, back.Constants)
}

func TestWriteFunctionRejectsFunctionConstant(t *testing.T) {
	inner := code.NewBytecodeFunction("inner", 0, nil, nil)
	fn := code.NewBytecodeFunction("outer", 0, []byte{byte(code.OpReturn)}, []value.Value{inner.ToValue()})

	var buf bytes.Buffer
	err := WriteFunction(&buf, fn)
	require.ErrorIs(t, err, ErrUnserializableConstant)
}

func TestWriteFunctionRejectsClassAndInstanceConstants(t *testing.T) {
	class := object.NewClass("C", 0)

	var buf bytes.Buffer
	err := WriteFunction(&buf, code.NewBytecodeFunction("f", 0, nil, []value.Value{class.ToValue()}))
	require.ErrorIs(t, err, ErrUnserializableConstant)

	buf.Reset()
	err = WriteFunction(&buf, code.NewBytecodeFunction("f", 0, nil, []value.Value{object.NewInstance(class).ToValue()}))
	require.ErrorIs(t, err, ErrUnserializableConstant)
}

func TestReadFunctionRejectsBadMagic(t *testing.T) {
	_, err := ReadFunction(bytes.NewReader([]byte{0, 0, 0, 0, 1, 0, 0, 0}))
	require.ErrorIs(t, err, ErrBadMagic)
}

func TestReadFunctionRejectsFutureVersion(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFunction(&buf, code.NewBytecodeFunction("f", 0, nil, nil)))
	raw := buf.Bytes()
	raw[4] = byte(FormatVersion + 1) // version field follows the 4-byte magic

	_, err := ReadFunction(bytes.NewReader(raw))
	require.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestArchiveRoundTripSameMultiset(t *testing.T) {
	entries := []Entry{
		{Name: "main", Fn: code.NewBytecodeFunction("main", 0, []byte{byte(code.OpReturn)}, nil)},
		{Name: "add", Fn: code.NewBytecodeFunction("add", 2, []byte{byte(code.OpAdd), byte(code.OpReturn)}, []value.Value{value.I32(1)})},
		{Name: "greet", Fn: code.NewBytecodeFunction("greet", 1, nil, []value.Value{value.NewStr("hi")})},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteArchive(&buf, entries))

	back, err := ReadArchive(&buf)
	require.NoError(t, err)
	require.Len(t, back, len(entries))

	byName := make(map[string]*code.Function, len(back))
	for _, e := range back {
		byName[e.Name] = e.Fn
	}
	for _, want := range entries {
		got, ok := byName[want.Name]
		require.True(t, ok, "missing entry %q", want.Name)
		require.Equal(t, want.Fn.Arity, got.Arity)
		require.Equal(t, want.Fn.Code, got.Code)
		require.Equal(t, want.Fn.Constants, got.Constants)
	}
}

func TestArchiveRoundTripOrderImmaterial(t *testing.T) {
	a := Entry{Name: "a", Fn: code.NewBytecodeFunction("a", 0, nil, nil)}
	b := Entry{Name: "b", Fn: code.NewBytecodeFunction("b", 1, []byte{byte(code.OpReturn)}, nil)}

	var forward, reverse bytes.Buffer
	require.NoError(t, WriteArchive(&forward, []Entry{a, b}))
	require.NoError(t, WriteArchive(&reverse, []Entry{b, a}))

	fm, err := ArchiveMap(&forward)
	require.NoError(t, err)
	rm, err := ArchiveMap(&reverse)
	require.NoError(t, err)

	require.Equal(t, len(fm), len(rm))
	for name, fn := range fm {
		other, ok := rm[name]
		require.True(t, ok)
		require.Equal(t, fn.Arity, other.Arity)
	}
}

func TestArchiveRoundTripEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteArchive(&buf, nil))

	back, err := ReadArchive(&buf)
	require.NoError(t, err)
	require.Empty(t, back)
}

func TestReadArchiveRejectsBadMagic(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFunction(&buf, code.NewBytecodeFunction("f", 0, nil, nil)))

	_, err := ReadArchive(bytes.NewReader(buf.Bytes()))
	require.ErrorIs(t, err, ErrBadMagic)
}
