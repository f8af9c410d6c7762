package jit

import (
	"errors"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iris-proj/iris-vm/internal/code"
	"github.com/Iris-proj/iris-vm/internal/value"
	"github.com/Iris-proj/iris-vm/internal/vm"
)

func TestRecoverBlocksLinear(t *testing.T) {
	c := []byte{byte(code.OpTrue), byte(code.OpPop), byte(code.OpReturn)}
	bs, err := recoverBlocks(c)
	require.NoError(t, err)
	require.Len(t, bs.blocks, 1)
	assert.Equal(t, block{start: 0, end: 3}, bs.blocks[0])
}

func TestRecoverBlocksSplitsOnJumpTarget(t *testing.T) {
	// true; jump over the dead OpFalse; pop; return
	c := []byte{
		byte(code.OpTrue),            // 0
		byte(code.OpJump), 0x00, 0x03, // 1: offset 3 from byte 2 -> target 5
		byte(code.OpFalse),           // 4 (dead unless reached)
		byte(code.OpPop),             // 5
		byte(code.OpReturn),          // 6
	}
	bs, err := recoverBlocks(c)
	require.NoError(t, err)

	// boundaries: 0 (entry), 4 (fallthrough after the Jump), 5 (jump target)
	starts := make([]int, len(bs.blocks))
	for i, b := range bs.blocks {
		starts[i] = b.start
	}
	assert.Equal(t, []int{0, 4, 5}, starts)

	idx, ok := bs.indexAt(5)
	require.True(t, ok)
	assert.Equal(t, block{start: 5, end: 7}, bs.blocks[idx])
}

func TestRecoverBlocksShortJumpBackward(t *testing.T) {
	// a loop body ending in a short jump back to its own start
	c := []byte{
		byte(code.OpGetLocal8), 0x00, // 0
		byte(code.OpShortJump), 0xFE, // 2: delta -2, targets offset 0
	}
	bs, err := recoverBlocks(c)
	require.NoError(t, err)
	_, ok := bs.indexAt(0)
	assert.True(t, ok)
}

func TestRecoverBlocksRejectsUnsupportedOpcode(t *testing.T) {
	c := []byte{byte(code.OpTrue), byte(code.OpTailCall), 0x00}
	_, err := recoverBlocks(c)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedOpcode))
}

func TestRecoverBlocksRejectsOutOfRangeJump(t *testing.T) {
	c := []byte{byte(code.OpJump), 0xFF, 0xFF}
	_, err := recoverBlocks(c)
	require.Error(t, err)
}

func TestBranchTargetArithmetic(t *testing.T) {
	// OpJump's offset is measured from the byte after the opcode.
	c := []byte{byte(code.OpJump), 0x00, 0x05}
	target, err := branchTarget(code.OpJump, c, 0)
	require.NoError(t, err)
	assert.Equal(t, 6, target)

	// OpShortJump's delta is measured from the opcode's own position.
	c = []byte{byte(code.OpShortJump), 0xFE} // -2
	target, err = branchTarget(code.OpShortJump, c, 0)
	require.NoError(t, err)
	assert.Equal(t, -2, target)

	// OpLoop subtracts its offset from the byte after the opcode.
	c = []byte{byte(code.OpLoop), 0x00, 0x03}
	target, err = branchTarget(code.OpLoop, c, 0)
	require.NoError(t, err)
	assert.Equal(t, -2, target)
}

func TestSupportedOpsAgreeWithInstrLen(t *testing.T) {
	for op := range supportedOps {
		if _, ok := fixedImmLen[op]; ok {
			continue
		}
		c := make([]byte, 8)
		c[0] = byte(op)
		n, ok := instrLen(op, c, 1)
		require.Truef(t, ok, "instrLen must recognize every opcode listed in supportedOps: %s", op)
		require.Greater(t, n, 0)
	}
}

func TestIsBranchClassifiesEveryControlFlowOp(t *testing.T) {
	cases := []struct {
		op                        code.Opcode
		wantConditional, wantJump bool
	}{
		{code.OpJump, false, true},
		{code.OpShortJump, false, true},
		{code.OpLoop, false, true},
		{code.OpJumpIfFalse, true, true},
		{code.OpJumpIfTrue, true, true},
		{code.OpJumpIfNull, true, true},
		{code.OpJumpIfNonNull, true, true},
		{code.OpCall, false, false},
		{code.OpAdd, false, false},
	}
	for _, tc := range cases {
		cond, isJump := isBranch(tc.op)
		assert.Equalf(t, tc.wantJump, isJump, "%s isJump", tc.op)
		if isJump {
			assert.Equalf(t, tc.wantConditional, cond, "%s conditional", tc.op)
		}
	}
}

func TestCompileFallsBackOnUnsupportedOpcode(t *testing.T) {
	fn := code.NewBytecodeFunction("usesThrow", 0, []byte{
		byte(code.OpTrue),
		byte(code.OpThrow),
	}, nil)

	err := Compile(fn)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedOpcode))
	assert.Equal(t, code.KindBytecode, fn.Kind)
	assert.False(t, fn.IsSpecialized())
}

func TestCompileIsIdempotentOnceSpecialized(t *testing.T) {
	fn := code.NewBytecodeFunction("noop", 0, []byte{byte(code.OpReturn)}, nil)
	fn.Specialize(func(uintptr) {})
	require.True(t, fn.IsSpecialized())

	err := Compile(fn)
	assert.NoError(t, err)
	assert.True(t, fn.IsSpecialized())
}

func TestThunkForCoversEverySupportedOpcodeExceptPureControlFlow(t *testing.T) {
	for op := range supportedOps {
		if _, isJump := isBranch(op); isJump {
			continue
		}
		_, ok := thunkFor(op)
		assert.Truef(t, ok, "supported opcode %s has no registered thunk", op)
	}
}

// asVMPtr gives a test the same uintptr codegen would bake in as a
// thunk's sole argument, without going through any native code.
func asVMPtr(m *vm.Interpreter) uintptr {
	return uintptr(unsafe.Pointer(m))
}

func TestThunkPushConstantReadsJitOperand(t *testing.T) {
	fn := code.NewBytecodeFunction("main", 0, nil, []value.Value{value.I32(99)})
	m := vm.New()
	m.PushInitialFrame(fn, 0)
	m.SetJitOperand(0)

	thunkPushConstant(asVMPtr(m))

	top, err := m.PeekValue()
	require.NoError(t, err)
	assert.Equal(t, int32(99), top.I32())
}

func TestThunkGetLocalAndSetLocalRoundTripThroughJitOperand(t *testing.T) {
	fn := code.NewBytecodeFunction("main", 1, nil, nil)
	m := vm.New()
	m.Push(value.I32(7))
	m.PushInitialFrame(fn, 1)

	m.SetJitOperand(0)
	thunkGetLocal(asVMPtr(m))
	top, err := m.PopValue()
	require.NoError(t, err)
	assert.Equal(t, int32(7), top.I32())

	m.Push(value.I32(41))
	m.SetJitOperand(0)
	thunkSetLocal(asVMPtr(m))
	require.False(t, m.ThunkFailed())

	m.SetJitOperand(0)
	thunkGetLocal(asVMPtr(m))
	top, err = m.PopValue()
	require.NoError(t, err)
	assert.Equal(t, int32(41), top.I32())
}

func TestJitOperandPairRoundTrips(t *testing.T) {
	// thunkInvoke is the one thunk that needs a second scratch word
	// (method slot plus argument count, read via JitOperand/JitOperandB
	// in thunks.go); codegen normally writes these by poking the raw
	// memory offsets directly from native code rather than calling the
	// Go setters, so this is the setters' only exercise.
	m := vm.New()
	m.SetJitOperand(3)
	m.SetJitOperandB(2)
	assert.Equal(t, int64(3), m.JitOperand())
	assert.Equal(t, int64(2), m.JitOperandB())
}
