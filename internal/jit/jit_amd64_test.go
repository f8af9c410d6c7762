//go:build amd64 && (linux || darwin)

package jit

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Iris-proj/iris-vm/internal/code"
	"github.com/Iris-proj/iris-vm/internal/value"
	"github.com/Iris-proj/iris-vm/internal/vm"
)

// sumAndBranchCode builds a function taking two i32 locals, a and b:
// it adds them, compares the sum against 5, and returns 100 if the sum
// is greater or 200 otherwise. It exercises arithmetic (OpAdd),
// comparison (OpGreater), and a genuine conditional branch
// (OpJumpIfFalse/OpJump) together, the same shape codegen_amd64.go's
// emitBranch and the arithmetic thunks both have to cooperate on.
func sumAndBranchCode() (codeBytes []byte, constants []value.Value) {
	c := code.NewChunk()
	c.WriteOpcode(code.OpGetLocal8)
	c.Write8(0)
	c.WriteOpcode(code.OpGetLocal8)
	c.Write8(1)
	c.WriteOpcode(code.OpAdd)
	c.WriteOpcode(code.OpLoadImmI32)
	c.Write32(5)
	c.WriteOpcode(code.OpGreater)

	jifPos := c.WriteOpcode(code.OpJumpIfFalse)
	c.Write16(0) // patched below

	c.WriteOpcode(code.OpLoadImmI32)
	c.Write32(100)
	jmpPos := c.WriteOpcode(code.OpJump)
	c.Write16(0) // patched below

	elseStart := len(c.Code)
	c.Patch16(jifPos+1, uint16(elseStart-jifPos-1))

	c.WriteOpcode(code.OpLoadImmI32)
	c.Write32(200)

	retPos := len(c.Code)
	c.Patch16(jmpPos+1, uint16(retPos-jmpPos-1))

	c.WriteOpcode(code.OpReturn)
	return c.Code, c.Constants
}

func runSumAndBranch(t *testing.T, fn *code.Function, a, b int32) value.Value {
	t.Helper()
	m := vm.New()
	m.Push(value.I32(a))
	m.Push(value.I32(b))
	m.PushInitialFrame(fn, 2)
	require.NoError(t, m.Run())
	top, ok := m.Top()
	require.True(t, ok)
	return top
}

// TestCompileExecutesRealNativeCodeAgainstTheInterpreter compiles
// sumAndBranchCode to genuine amd64 machine code, runs it through the
// mmap'd NativeEntry produced by loadExecutable, and checks the result
// against the same bytecode run unspecialized through the interpreter.
func TestCompileExecutesRealNativeCodeAgainstTheInterpreter(t *testing.T) {
	cases := []struct {
		a, b int32
		want int32
	}{
		{3, 4, 100},  // 7 > 5
		{1, 1, 200},  // 2 not > 5
		{5, 0, 200},  // 5 not > 5
	}

	for _, tc := range cases {
		codeBytes, constants := sumAndBranchCode()

		interpFn := code.NewBytecodeFunction("sumAndBranch", 2, codeBytes, constants)
		wantTop := runSumAndBranch(t, interpFn, tc.a, tc.b)
		require.Equal(t, tc.want, wantTop.I32())

		nativeFn := code.NewBytecodeFunction("sumAndBranch", 2, codeBytes, constants)
		require.NoError(t, Compile(nativeFn))
		require.True(t, nativeFn.IsSpecialized())

		gotTop := runSumAndBranch(t, nativeFn, tc.a, tc.b)
		require.Equal(t, wantTop.Kind, gotTop.Kind)
		require.Equal(t, tc.want, gotTop.I32())
	}
}
