package jit

import (
	"math"
	"unsafe"

	"github.com/Iris-proj/iris-vm/internal/code"
	"github.com/Iris-proj/iris-vm/internal/value"
	"github.com/Iris-proj/iris-vm/internal/vm"
)

// A thunk is the uniform func(vmPtr uintptr) shape codegen CALLs
// directly from hand-emitted native code — the same shape as a
// Function's Native entry itself (code.NativeEntry), so no separate
// calling convention is needed for the native→Go direction. Every
// thunk recovers *vm.Interpreter from the raw pointer, performs
// exactly the operation dispatch.go's step() would have for the
// opcode it backs, and reports failure through vm.FailThunk rather
// than a return value.
type thunk func(vmPtr uintptr)

func recv(vmPtr uintptr) *vm.Interpreter {
	return (*vm.Interpreter)(unsafe.Pointer(vmPtr))
}

func thunkPushConstant(vmPtr uintptr) {
	m := recv(vmPtr)
	if err := m.PushConstant(int(m.JitOperand())); err != nil {
		m.FailThunk(err)
	}
}

func thunkLoadImmI8(vmPtr uintptr) {
	m := recv(vmPtr)
	m.Push(value.I8(int8(m.JitOperand())))
}

func thunkLoadImmI16(vmPtr uintptr) {
	m := recv(vmPtr)
	m.Push(value.I16(int16(m.JitOperand())))
}

func thunkLoadImmI32(vmPtr uintptr) {
	m := recv(vmPtr)
	m.PushI32(int32(m.JitOperand()))
}

func thunkLoadImmI64(vmPtr uintptr) {
	m := recv(vmPtr)
	m.PushI64(m.JitOperand())
}

func thunkLoadImmF32(vmPtr uintptr) {
	m := recv(vmPtr)
	m.PushF32(math.Float32frombits(uint32(m.JitOperand())))
}

func thunkLoadImmF64(vmPtr uintptr) {
	m := recv(vmPtr)
	m.PushF64(math.Float64frombits(uint64(m.JitOperand())))
}

func thunkPushNull(vmPtr uintptr)  { recv(vmPtr).PushNull() }
func thunkPushTrue(vmPtr uintptr)  { recv(vmPtr).PushBool(true) }
func thunkPushFalse(vmPtr uintptr) { recv(vmPtr).PushBool(false) }

func thunkPop(vmPtr uintptr) {
	m := recv(vmPtr)
	if err := m.PopDiscard(); err != nil {
		m.FailThunk(err)
	}
}

func thunkDup(vmPtr uintptr) {
	m := recv(vmPtr)
	if err := m.Dup(); err != nil {
		m.FailThunk(err)
	}
}

func thunkSwap(vmPtr uintptr) {
	m := recv(vmPtr)
	if err := m.SwapTop(); err != nil {
		m.FailThunk(err)
	}
}

func thunkGetLocal(vmPtr uintptr) {
	m := recv(vmPtr)
	frame, err := m.CurrentFrame()
	if err != nil {
		m.FailThunk(err)
		return
	}
	v, err := m.GetLocal(frame, int(m.JitOperand()))
	if err != nil {
		m.FailThunk(err)
		return
	}
	m.Push(v)
}

func thunkSetLocal(vmPtr uintptr) {
	m := recv(vmPtr)
	frame, err := m.CurrentFrame()
	if err != nil {
		m.FailThunk(err)
		return
	}
	if err := m.SetLocal(frame, int(m.JitOperand())); err != nil {
		m.FailThunk(err)
	}
}

func thunkGetGlobal(vmPtr uintptr) {
	m := recv(vmPtr)
	v, err := m.GetGlobal(int(m.JitOperand()))
	if err != nil {
		m.FailThunk(err)
		return
	}
	m.Push(v)
}

func thunkSetGlobal(vmPtr uintptr) {
	m := recv(vmPtr)
	if err := m.SetGlobal(int(m.JitOperand())); err != nil {
		m.FailThunk(err)
	}
}

func thunkDefineGlobal(vmPtr uintptr) {
	m := recv(vmPtr)
	if err := m.DefineGlobalSlot(int(m.JitOperand())); err != nil {
		m.FailThunk(err)
	}
}

func thunkGetProperty(vmPtr uintptr) {
	m := recv(vmPtr)
	name, err := m.ConstantString(int(m.JitOperand()))
	if err != nil {
		m.FailThunk(err)
		return
	}
	if err := m.GetProperty(name); err != nil {
		m.FailThunk(err)
	}
}

func thunkSetProperty(vmPtr uintptr) {
	m := recv(vmPtr)
	name, err := m.ConstantString(int(m.JitOperand()))
	if err != nil {
		m.FailThunk(err)
		return
	}
	if err := m.SetProperty(name); err != nil {
		m.FailThunk(err)
	}
}

func thunkGetField(vmPtr uintptr) {
	m := recv(vmPtr)
	if err := m.GetFieldSlot(int(m.JitOperand())); err != nil {
		m.FailThunk(err)
	}
}

func thunkSetField(vmPtr uintptr) {
	m := recv(vmPtr)
	if err := m.SetFieldSlot(int(m.JitOperand())); err != nil {
		m.FailThunk(err)
	}
}

func thunkGetMapEntry(vmPtr uintptr) {
	m := recv(vmPtr)
	key, err := m.ConstantString(int(m.JitOperand()))
	if err != nil {
		m.FailThunk(err)
		return
	}
	if err := m.GetMapEntryNamed(key); err != nil {
		m.FailThunk(err)
	}
}

func thunkSetMapEntry(vmPtr uintptr) {
	m := recv(vmPtr)
	key, err := m.ConstantString(int(m.JitOperand()))
	if err != nil {
		m.FailThunk(err)
		return
	}
	if err := m.SetMapEntryNamed(key); err != nil {
		m.FailThunk(err)
	}
}

func thunkNewArray(vmPtr uintptr) {
	m := recv(vmPtr)
	if err := m.NewArrayOf(int(m.JitOperand())); err != nil {
		m.FailThunk(err)
	}
}

func thunkGetIndex(vmPtr uintptr) {
	m := recv(vmPtr)
	idx, err := m.PopIndex()
	if err != nil {
		m.FailThunk(err)
		return
	}
	if err := m.GetArrayIndex(idx); err != nil {
		m.FailThunk(err)
	}
}

func thunkSetIndex(vmPtr uintptr) {
	m := recv(vmPtr)
	v, err := m.PopValue()
	if err != nil {
		m.FailThunk(err)
		return
	}
	idx, err := m.PopIndex()
	if err != nil {
		m.FailThunk(err)
		return
	}
	if err := m.SetArrayIndex(idx, v); err != nil {
		m.FailThunk(err)
	}
}

func thunkArrayLen(vmPtr uintptr) {
	m := recv(vmPtr)
	if err := m.ArrayLength(); err != nil {
		m.FailThunk(err)
	}
}

func thunkResize(vmPtr uintptr) {
	m := recv(vmPtr)
	newLen, err := m.PopIndex()
	if err != nil {
		m.FailThunk(err)
		return
	}
	if err := m.ResizeArrayTo(newLen); err != nil {
		m.FailThunk(err)
	}
}

func thunkNewMap(vmPtr uintptr) {
	m := recv(vmPtr)
	if err := m.NewMapOf(int(m.JitOperand())); err != nil {
		m.FailThunk(err)
	}
}

func thunkPrint(vmPtr uintptr) {
	m := recv(vmPtr)
	if err := m.PrintTop(); err != nil {
		m.FailThunk(err)
	}
}

// thunkPopTruthy and thunkPopNull are the two "pop the condition into
// condFlag" thunks spec.md §4.5 describes; native code then tests
// condFlag itself with TESTB+JZ/JNZ rather than calling back into Go
// a second time per branch.
func thunkPopTruthy(vmPtr uintptr) {
	m := recv(vmPtr)
	if err := m.PopBoolToCondFlag(); err != nil {
		m.FailThunk(err)
	}
}

func thunkPopNull(vmPtr uintptr) {
	m := recv(vmPtr)
	if err := m.PopNullToCondFlag(); err != nil {
		m.FailThunk(err)
	}
}

// thunkCall and thunkInvoke perform the complete call: push (or
// directly execute, for a Native callee) the new frame and then drive
// it to completion via RunUntilFrameCount before returning, since the
// native entry making the call must itself account for popping
// nothing but its own frame by the time it next executes a RET
// (runNative's invariant).
func thunkCall(vmPtr uintptr) {
	m := recv(vmPtr)
	before := len(m.Frames)
	n := int(m.JitOperand())
	if err := m.CallFunction(n); err != nil {
		m.FailThunk(err)
		return
	}
	if err := m.RunUntilFrameCount(before); err != nil {
		m.FailThunk(err)
	}
}

func thunkInvoke(vmPtr uintptr) {
	m := recv(vmPtr)
	before := len(m.Frames)
	slot := int(m.JitOperand())
	argc := int(m.JitOperandB())
	if err := m.InvokeMethod(slot, argc); err != nil {
		m.FailThunk(err)
		return
	}
	if err := m.RunUntilFrameCount(before); err != nil {
		m.FailThunk(err)
	}
}

// thunkReturn pops the current frame. Unlike every other thunk,
// codegen unconditionally emits a native RET right after this CALL —
// the native function compiled for the frame thunkReturn just popped
// has nothing left to do either way.
func thunkReturn(vmPtr uintptr) {
	m := recv(vmPtr)
	if err := m.ReturnFromFunction(); err != nil {
		m.FailThunk(err)
	}
}

// arithThunk and its siblings close over the code.Opcode they back,
// since BinaryArith/CompareOp/etc. are themselves polymorphic over
// the handful of opcodes in their family — one Go closure per opcode
// still gives codegen a single fixed function-pointer constant to
// bake into each call site, exactly like every other thunk.
func arithThunk(op code.Opcode) thunk {
	return func(vmPtr uintptr) {
		m := recv(vmPtr)
		if err := m.BinaryArith(op); err != nil {
			m.FailThunk(err)
		}
	}
}

func unaryArithThunk(op code.Opcode) thunk {
	return func(vmPtr uintptr) {
		m := recv(vmPtr)
		if err := m.UnaryNegateOrAbs(op); err != nil {
			m.FailThunk(err)
		}
	}
}

func bitwiseThunk(op code.Opcode) thunk {
	return func(vmPtr uintptr) {
		m := recv(vmPtr)
		if err := m.BitwiseBinary(op); err != nil {
			m.FailThunk(err)
		}
	}
}

func shiftThunk(op code.Opcode) thunk {
	return func(vmPtr uintptr) {
		m := recv(vmPtr)
		if err := m.ShiftBinary(op); err != nil {
			m.FailThunk(err)
		}
	}
}

func compareThunk(op code.Opcode) thunk {
	return func(vmPtr uintptr) {
		m := recv(vmPtr)
		if err := m.CompareOp(op); err != nil {
			m.FailThunk(err)
		}
	}
}

func logicalThunk(op code.Opcode) thunk {
	return func(vmPtr uintptr) {
		m := recv(vmPtr)
		if err := m.LogicalBinary(op); err != nil {
			m.FailThunk(err)
		}
	}
}

func booleanThunk(op code.Opcode) thunk {
	return func(vmPtr uintptr) {
		m := recv(vmPtr)
		if err := m.BooleanBinary(op); err != nil {
			m.FailThunk(err)
		}
	}
}

func thunkBitwiseNot(vmPtr uintptr) {
	m := recv(vmPtr)
	if err := m.BitwiseNot(); err != nil {
		m.FailThunk(err)
	}
}

func thunkLogicalNot(vmPtr uintptr) {
	m := recv(vmPtr)
	if err := m.LogicalNot(); err != nil {
		m.FailThunk(err)
	}
}

// thunkFor returns the thunk backing op's runtime effect, if any. The
// branch opcodes have no entry here: emitBranch lowers them to native
// jumps itself, calling thunkPopTruthy or thunkPopNull for the
// conditional forms.
func thunkFor(op code.Opcode) (thunk, bool) {
	switch op {
	case code.OpConstant8, code.OpConstant16:
		return thunkPushConstant, true
	case code.OpNull:
		return thunkPushNull, true
	case code.OpTrue:
		return thunkPushTrue, true
	case code.OpFalse:
		return thunkPushFalse, true
	case code.OpLoadImmI8:
		return thunkLoadImmI8, true
	case code.OpLoadImmI16:
		return thunkLoadImmI16, true
	case code.OpLoadImmI32:
		return thunkLoadImmI32, true
	case code.OpLoadImmI64:
		return thunkLoadImmI64, true
	case code.OpLoadImmF32:
		return thunkLoadImmF32, true
	case code.OpLoadImmF64:
		return thunkLoadImmF64, true
	case code.OpPop:
		return thunkPop, true
	case code.OpDup:
		return thunkDup, true
	case code.OpSwap:
		return thunkSwap, true
	case code.OpGetLocal8, code.OpGetLocal16:
		return thunkGetLocal, true
	case code.OpSetLocal8, code.OpSetLocal16:
		return thunkSetLocal, true
	case code.OpGetGlobal8, code.OpGetGlobal16:
		return thunkGetGlobal, true
	case code.OpSetGlobal8, code.OpSetGlobal16:
		return thunkSetGlobal, true
	case code.OpDefineGlobal:
		return thunkDefineGlobal, true
	case code.OpGetProperty8, code.OpGetProperty16:
		return thunkGetProperty, true
	case code.OpSetProperty8, code.OpSetProperty16:
		return thunkSetProperty, true
	case code.OpGetField8, code.OpGetField16:
		return thunkGetField, true
	case code.OpSetField8, code.OpSetField16:
		return thunkSetField, true
	case code.OpGetMapEntry8, code.OpGetMapEntry16:
		return thunkGetMapEntry, true
	case code.OpSetMapEntry8, code.OpSetMapEntry16:
		return thunkSetMapEntry, true
	case code.OpInvoke8, code.OpInvoke16:
		return thunkInvoke, true
	case code.OpNewArray8, code.OpNewArray16:
		return thunkNewArray, true
	case code.OpGetIndex:
		return thunkGetIndex, true
	case code.OpSetIndex:
		return thunkSetIndex, true
	case code.OpArrayLen:
		return thunkArrayLen, true
	case code.OpResize:
		return thunkResize, true
	case code.OpNewMap8, code.OpNewMap16:
		return thunkNewMap, true
	case code.OpPrint:
		return thunkPrint, true
	case code.OpNop:
		return func(uintptr) {}, true
	case code.OpCall:
		return thunkCall, true
	case code.OpReturn:
		return thunkReturn, true
	case code.OpAdd, code.OpSub, code.OpMul, code.OpDiv, code.OpModulo:
		return arithThunk(op), true
	case code.OpNegate, code.OpAbsolute:
		return unaryArithThunk(op), true
	case code.OpBitwiseAnd, code.OpBitwiseOr, code.OpBitwiseXor:
		return bitwiseThunk(op), true
	case code.OpBitwiseNot:
		return thunkBitwiseNot, true
	case code.OpLeftShift, code.OpRightShift:
		return shiftThunk(op), true
	case code.OpEqual, code.OpNotEqual, code.OpGreater, code.OpLess, code.OpGreaterEqual, code.OpLessEqual:
		return compareThunk(op), true
	case code.OpLogicalAnd, code.OpLogicalOr:
		return logicalThunk(op), true
	case code.OpLogicalNot:
		return thunkLogicalNot, true
	case code.OpBooleanAnd, code.OpBooleanOr:
		return booleanThunk(op), true
	default:
		return nil, false
	}
}
