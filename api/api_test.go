package api

import (
	"bytes"
	"testing"

	"github.com/Iris-proj/iris-vm/internal/code"
	"github.com/Iris-proj/iris-vm/internal/persist"
	"github.com/Iris-proj/iris-vm/internal/value"
	"github.com/Iris-proj/iris-vm/internal/vm/logging"
	"github.com/stretchr/testify/require"
)

func addFunction() *code.Function {
	return code.NewBytecodeFunction("add", 2, []byte{
		byte(code.OpGetLocal8), 0,
		byte(code.OpGetLocal8), 1,
		byte(code.OpAdd),
		byte(code.OpReturn),
	}, nil)
}

func TestVMRunsPushedArguments(t *testing.T) {
	m := New()
	m.Push(value.I32(3))
	m.Push(value.I32(4))
	m.PushInitialFrame(addFunction(), 2)

	require.NoError(t, m.Run())
	top, ok := m.Top()
	require.True(t, ok)
	require.Equal(t, int32(7), top.I32())
}

func TestVMRegisterGlobal(t *testing.T) {
	fn := code.NewBytecodeFunction("readGlobal", 0, []byte{
		byte(code.OpGetGlobal8), 0,
		byte(code.OpReturn),
	}, nil)

	m := New()
	m.RegisterGlobal(0, value.I32(42))
	m.PushInitialFrame(fn, 0)

	require.NoError(t, m.Run())
	top, ok := m.Top()
	require.True(t, ok)
	require.Equal(t, int32(42), top.I32())
}

func TestVMWithLoggerOption(t *testing.T) {
	var buf bytes.Buffer
	m := New(WithLogger(&logging.WriterLogger{W: &buf}))
	m.PushInitialFrame(code.NewBytecodeFunction("noop", 0, []byte{byte(code.OpNull), byte(code.OpReturn)}, nil), 0)
	require.NoError(t, m.Run())
}

func TestLoadFunctionAndRun(t *testing.T) {
	var blob bytes.Buffer
	require.NoError(t, persist.WriteFunction(&blob, addFunction()))

	fn, err := LoadFunction(&blob)
	require.NoError(t, err)

	m := New()
	m.Push(value.I32(10))
	m.Push(value.I32(20))
	m.PushInitialFrame(fn, 2)
	require.NoError(t, m.Run())

	top, ok := m.Top()
	require.True(t, ok)
	require.Equal(t, int32(30), top.I32())
}

func TestVMWithJITOptionLeavesResultUnchanged(t *testing.T) {
	// With the threshold set far above this test's call count,
	// internal/jit.Compile never actually runs, so this only confirms
	// the option wires through New without disturbing ordinary
	// interpreted execution — real codegen correctness is
	// internal/jit's own concern, covered by its amd64 build-tagged
	// tests that actually compile and execute native code.
	var buf bytes.Buffer
	m := New(WithJIT(1000), WithLogger(&logging.WriterLogger{W: &buf}))

	m.Push(value.I32(3))
	m.Push(value.I32(4))
	m.PushInitialFrame(addFunction(), 2)
	require.NoError(t, m.Run())
	top, ok := m.Top()
	require.True(t, ok)
	require.Equal(t, int32(7), top.I32())
}

func TestLoadArchiveAddressesByName(t *testing.T) {
	entries := []persist.Entry{
		{Name: "add", Fn: addFunction()},
		{Name: "readGlobal", Fn: code.NewBytecodeFunction("readGlobal", 0, []byte{byte(code.OpGetGlobal8), 0, byte(code.OpReturn)}, nil)},
	}
	var archive bytes.Buffer
	require.NoError(t, persist.WriteArchive(&archive, entries))

	fns, err := LoadArchive(&archive)
	require.NoError(t, err)
	require.Contains(t, fns, "add")
	require.Contains(t, fns, "readGlobal")

	m := New()
	m.RegisterGlobal(0, value.I32(5))
	m.PushInitialFrame(fns["readGlobal"], 0)
	require.NoError(t, m.Run())
	top, ok := m.Top()
	require.True(t, ok)
	require.Equal(t, int32(5), top.I32())
}
