package vm

import (
	"fmt"
	"unsafe"

	"github.com/Iris-proj/iris-vm/internal/code"
	"github.com/Iris-proj/iris-vm/internal/value"
)

// This file is the boundary internal/jit's thunk table calls through.
// Every thunk that needs to touch the operand stack, a frame's locals,
// or the globals vector goes through one of these exported wrappers
// rather than reaching into package vm's unexported state directly —
// the same operations dispatch.go's step() performs, just addressable
// from outside the package. Per SPEC_FULL.md §4.5's implementation
// note, this is where "every operation... is performed by a registered
// Go thunk function" actually executes; internal/jit only decides
// *when* to call one.

// CondFlagOffset and ThunkFailedOffset are the byte offsets of the
// Interpreter's native-control-flow scratch fields, computed once so
// internal/jit's codegen can address them directly from hand-emitted
// machine code (a MOVQ of the interpreter pointer plus this constant
// offset) without depending on the struct's exact field order.
var (
	CondFlagOffset    = unsafe.Offsetof(Interpreter{}.condFlag)
	ThunkFailedOffset = unsafe.Offsetof(Interpreter{}.thunkFailed)
	JitOperandAOffset = unsafe.Offsetof(Interpreter{}.jitOperandA)
	JitOperandBOffset = unsafe.Offsetof(Interpreter{}.jitOperandB)
)

// SetJitOperand and JitOperand (and the B-suffixed pair) move an
// immediate decoded from bytecode — a slot, constant index, or count —
// across the native/Go boundary without giving thunks a second
// argument: native code MOVs the immediate into this field, then
// CALLs a thunk that reads it back out.
func (vm *Interpreter) SetJitOperand(v int64)  { vm.jitOperandA = v }
func (vm *Interpreter) JitOperand() int64      { return vm.jitOperandA }
func (vm *Interpreter) SetJitOperandB(v int64) { vm.jitOperandB = v }
func (vm *Interpreter) JitOperandB() int64     { return vm.jitOperandB }

// SetCondFlag stores b as 0 or 1 in condFlag, the fixed-offset field
// native code tests with TESTB+JZ/JNZ for a conditional branch.
func (vm *Interpreter) SetCondFlag(b bool) {
	if b {
		vm.condFlag = 1
	} else {
		vm.condFlag = 0
	}
}

// CondFlag reads back condFlag, for tests exercising thunks without a
// native caller.
func (vm *Interpreter) CondFlag() bool {
	return vm.condFlag != 0
}

// FailThunk records err as the reason the in-flight JIT-compiled call
// aborted and sets thunkFailed, the fixed-offset byte native code
// checks with TESTB+JNZ after every thunk CALL to decide whether to
// unwind to a native RET instead of continuing to the next block.
func (vm *Interpreter) FailThunk(err error) {
	vm.thunkFailed = 1
	vm.thunkErr = err
}

// ThunkFailed reports whether FailThunk has been called since the last
// ClearThunkError.
func (vm *Interpreter) ThunkFailed() bool {
	return vm.thunkFailed != 0
}

// ThunkError returns the error FailThunk recorded, or nil.
func (vm *Interpreter) ThunkError() error {
	return vm.thunkErr
}

// ClearThunkError resets the thunk-failure scratch state; runNative
// calls this immediately before invoking a specialized Function's
// native entry.
func (vm *Interpreter) ClearThunkError() {
	vm.thunkFailed = 0
	vm.thunkErr = nil
}

// CurrentFrame exposes currentFrame to internal/jit's thunks, all of
// which operate on the interpreter's topmost frame — the only frame a
// native entry is ever executing on behalf of.
func (vm *Interpreter) CurrentFrame() (*CallFrame, error) {
	return vm.currentFrame()
}

// PopValue and PeekValue are the generic stack primitives; thunks for
// locals, globals, and any operation not specialized by numeric width
// go through these.
func (vm *Interpreter) PopValue() (value.Value, error) { return vm.pop() }
func (vm *Interpreter) PeekValue() (value.Value, error) { return vm.peek() }

// PushI32 and its I64/F32/F64/Null/Bool siblings are the per-width
// immediate-load thunks spec.md §4.5 describes ("push/pop of each
// primitive width"); thunkLoadImm*, thunkPushNull, thunkPushTrue and
// thunkPushFalse in internal/jit call these directly
// for OpLoadImm*/OpNull/OpTrue/OpFalse instead of routing a decoded
// value.Value through the generic PushConstant path. The pop direction
// of that pair has no use here: BinaryArith/CompareOp/etc. pop through
// the generic vm.pop() since every opcode in the arithmetic/comparison
// family already dispatches on value.Kind itself (see Open Question
// resolutions in DESIGN.md).
func (vm *Interpreter) PushI32(v int32) { vm.push(value.I32(v)) }
func (vm *Interpreter) PushI64(v int64) { vm.push(value.I64(v)) }
func (vm *Interpreter) PushF32(v float32) { vm.push(value.F32(v)) }
func (vm *Interpreter) PushF64(v float64) { vm.push(value.F64(v)) }
func (vm *Interpreter) PushNull()         { vm.push(value.Null()) }
func (vm *Interpreter) PushBool(b bool)   { vm.push(value.Bool(b)) }

// PopBoolToCondFlag pops the top of the stack, applies spec.md §3's
// truthiness projection, and stores the result in condFlag — the
// "interpreter's pop-bool thunk" spec.md §4.5 names as one of the two
// ways a conditional branch's condition reaches native code.
func (vm *Interpreter) PopBoolToCondFlag() error {
	v, err := vm.pop()
	if err != nil {
		return err
	}
	vm.SetCondFlag(v.IsTruthy())
	return nil
}

// Dup, PopDiscard, and SwapTop cover the "peek/pick/roll/swap/
// duplicate variants" thunk group for the handful of stack-shape
// opcodes the JIT supports (plain Dup/Pop/Swap; the N-ary DupN/RollN/
// PickN/SwapNPairs forms are out of JIT scope — see DESIGN.md).
func (vm *Interpreter) Dup() error {
	top, err := vm.peek()
	if err != nil {
		return err
	}
	vm.push(top)
	return nil
}

func (vm *Interpreter) PopDiscard() error {
	_, err := vm.pop()
	return err
}

func (vm *Interpreter) SwapTop() error {
	n := len(vm.Stack)
	if n < 2 {
		return ErrStackUnderflow
	}
	vm.Stack[n-1], vm.Stack[n-2] = vm.Stack[n-2], vm.Stack[n-1]
	return nil
}

// GetLocal and SetLocal are frame.StackBase-relative, matching
// dispatch.go's OpGetLocal8/16 and OpSetLocal8/16 handling exactly
// (SetLocal peeks, not pops, per the store-by-peek convention).
func (vm *Interpreter) GetLocal(frame *CallFrame, slot int) (value.Value, error) {
	return vm.stackAt(frame.StackBase + slot)
}

func (vm *Interpreter) SetLocal(frame *CallFrame, slot int) error {
	v, err := vm.peek()
	if err != nil {
		return err
	}
	idx := frame.StackBase + slot
	if idx < 0 || idx >= len(vm.Stack) {
		return ErrInvalidOperand
	}
	vm.Stack[idx] = v
	return nil
}

// GetGlobal, SetGlobal, and DefineGlobalSlot mirror dispatch.go's
// OpGetGlobal8/16, OpSetGlobal8/16, and OpDefineGlobal handling.
func (vm *Interpreter) GetGlobal(slot int) (value.Value, error) {
	if slot < 0 || slot >= len(vm.Globals) {
		return value.Value{}, newErr(KindUndefinedVariable, "global slot %d", slot)
	}
	return vm.Globals[slot], nil
}

func (vm *Interpreter) SetGlobal(slot int) error {
	if slot < 0 || slot >= len(vm.Globals) {
		return newErr(KindUndefinedVariable, "set of undefined global slot %d", slot)
	}
	v, err := vm.peek()
	if err != nil {
		return err
	}
	vm.Globals[slot] = v
	return nil
}

func (vm *Interpreter) DefineGlobalSlot(slot int) error {
	v, err := vm.pop()
	if err != nil {
		return err
	}
	vm.RegisterGlobal(slot, v)
	return nil
}

// GetProperty, SetProperty, GetFieldSlot, and SetFieldSlot expose
// objects.go's property/field accessors to thunks.
func (vm *Interpreter) GetProperty(name string) error { return vm.getProperty(name) }
func (vm *Interpreter) SetProperty(name string) error { return vm.setProperty(name) }
func (vm *Interpreter) GetFieldSlot(slot int) error    { return vm.getField(slot) }
func (vm *Interpreter) SetFieldSlot(slot int) error    { return vm.setField(slot) }

// GetArrayIndex, SetArrayIndex, ArrayLength, NewArrayOf, and
// ResizeArrayTo expose collections.go's array opcodes to thunks.
func (vm *Interpreter) GetArrayIndex(idx int) error                { return vm.getArrayIndex(idx) }
func (vm *Interpreter) SetArrayIndex(idx int, v value.Value) error { return vm.setArrayIndex(idx, v) }
func (vm *Interpreter) ArrayLength() error                         { return vm.arrayLen() }
func (vm *Interpreter) NewArrayOf(n int) error                     { return vm.newArray(n) }
func (vm *Interpreter) ResizeArrayTo(newLen int) error             { return vm.resizeArray(newLen) }

// NewMapOf, GetMapEntryNamed, and SetMapEntryNamed expose
// collections.go's map opcodes to thunks.
func (vm *Interpreter) NewMapOf(n int) error           { return vm.newMap(n) }
func (vm *Interpreter) GetMapEntryNamed(key string) error { return vm.getMapEntry(key) }
func (vm *Interpreter) SetMapEntryNamed(key string) error { return vm.setMapEntry(key) }

// PrintTop pops the top of the stack and prints its String() form,
// matching dispatch.go's OpPrint handling exactly.
func (vm *Interpreter) PrintTop() error {
	v, err := vm.pop()
	if err != nil {
		return err
	}
	fmt.Println(v.String())
	return nil
}

// PushConstant pushes frame.Fn.Constants[idx], matching OpConstant8/16.
func (vm *Interpreter) PushConstant(idx int) error {
	frame, err := vm.currentFrame()
	if err != nil {
		return err
	}
	if idx < 0 || idx >= len(frame.Fn.Constants) {
		return ErrInvalidOperand
	}
	vm.push(frame.Fn.Constants[idx])
	return nil
}

// ConstantString resolves idx against the current frame's constant
// pool and requires a Str, matching decodeStrConstant's use for
// property, field, and map-entry names.
func (vm *Interpreter) ConstantString(idx int) (string, error) {
	frame, err := vm.currentFrame()
	if err != nil {
		return "", err
	}
	if idx < 0 || idx >= len(frame.Fn.Constants) {
		return "", ErrInvalidOperand
	}
	cv := frame.Fn.Constants[idx]
	if cv.Kind != value.KindStr {
		return "", ErrInvalidOperand
	}
	return cv.StrCell().S, nil
}

// PopNullToCondFlag pops the top of the stack and stores whether it
// was Null in condFlag, the other of the two ways a conditional
// branch's condition reaches native code (JumpIfNull/JumpIfNonNull).
func (vm *Interpreter) PopNullToCondFlag() error {
	v, err := vm.pop()
	if err != nil {
		return err
	}
	vm.SetCondFlag(v.Kind == value.KindNull)
	return nil
}

// PopIndex pops the top of the stack and converts it to an int index,
// matching families.go's asIndex — the convention GetIndex/SetIndex/
// Resize use since their index is a runtime value, not an immediate.
func (vm *Interpreter) PopIndex() (int, error) {
	v, err := vm.pop()
	if err != nil {
		return 0, err
	}
	return asIndex(v)
}

// BinaryArith implements the generic Add/Sub/Mul/Div/Modulo family for
// a thunk, identical to families.go's stepArithFamily case.
func (vm *Interpreter) BinaryArith(op code.Opcode) error {
	b, err := vm.pop()
	if err != nil {
		return err
	}
	a, err := vm.pop()
	if err != nil {
		return err
	}
	res, err := applyBinaryArith(op, a, b)
	if err != nil {
		return err
	}
	vm.push(res)
	return nil
}

// UnaryNegateOrAbs implements Negate/Absolute.
func (vm *Interpreter) UnaryNegateOrAbs(op code.Opcode) error {
	a, err := vm.pop()
	if err != nil {
		return err
	}
	var res value.Value
	if op == code.OpNegate {
		res, err = genericNegate(a)
	} else {
		res, err = genericAbs(a)
	}
	if err != nil {
		return err
	}
	vm.push(res)
	return nil
}

// BitwiseBinary implements And/Or/Xor.
func (vm *Interpreter) BitwiseBinary(op code.Opcode) error {
	b, err := vm.pop()
	if err != nil {
		return err
	}
	a, err := vm.pop()
	if err != nil {
		return err
	}
	var res value.Value
	switch op {
	case code.OpBitwiseAnd:
		res, err = genericBitAnd(a, b)
	case code.OpBitwiseOr:
		res, err = genericBitOr(a, b)
	case code.OpBitwiseXor:
		res, err = genericBitXor(a, b)
	}
	if err != nil {
		return err
	}
	vm.push(res)
	return nil
}

// BitwiseNot implements the unary complement.
func (vm *Interpreter) BitwiseNot() error {
	a, err := vm.pop()
	if err != nil {
		return err
	}
	res, err := genericBitNot(a)
	if err != nil {
		return err
	}
	vm.push(res)
	return nil
}

// ShiftBinary implements LeftShift/RightShift (the arithmetic-width
// pair; URightShift stays interpreter-only — see DESIGN.md).
func (vm *Interpreter) ShiftBinary(op code.Opcode) error {
	b, err := vm.pop()
	if err != nil {
		return err
	}
	a, err := vm.pop()
	if err != nil {
		return err
	}
	var res value.Value
	switch op {
	case code.OpLeftShift:
		res, err = genericShl(a, b)
	case code.OpRightShift:
		res, err = genericShr(a, b)
	}
	if err != nil {
		return err
	}
	vm.push(res)
	return nil
}

// CompareOp implements Equal/NotEqual/Greater/Less/GreaterEqual/
// LessEqual, matching dispatch.go's comparison cases exactly.
func (vm *Interpreter) CompareOp(op code.Opcode) error {
	b, err := vm.pop()
	if err != nil {
		return err
	}
	a, err := vm.pop()
	if err != nil {
		return err
	}
	if op == code.OpEqual || op == code.OpNotEqual {
		eq := value.Equal(a, b)
		if op == code.OpNotEqual {
			eq = !eq
		}
		vm.push(value.Bool(eq))
		return nil
	}
	cmp, err := compareNumeric(a, b)
	if err != nil {
		return err
	}
	var res bool
	switch op {
	case code.OpGreater:
		res = cmp > 0
	case code.OpLess:
		res = cmp < 0
	case code.OpGreaterEqual:
		res = cmp >= 0
	case code.OpLessEqual:
		res = cmp <= 0
	}
	vm.push(value.Bool(res))
	return nil
}

// LogicalBinary implements LogicalAnd/LogicalOr (truthiness, not
// boolean-typed).
func (vm *Interpreter) LogicalBinary(op code.Opcode) error {
	b, err := vm.pop()
	if err != nil {
		return err
	}
	a, err := vm.pop()
	if err != nil {
		return err
	}
	var res bool
	if op == code.OpLogicalAnd {
		res = a.IsTruthy() && b.IsTruthy()
	} else {
		res = a.IsTruthy() || b.IsTruthy()
	}
	vm.push(value.Bool(res))
	return nil
}

// LogicalNot implements the unary truthiness complement.
func (vm *Interpreter) LogicalNot() error {
	a, err := vm.pop()
	if err != nil {
		return err
	}
	vm.push(value.Bool(!a.IsTruthy()))
	return nil
}

// BooleanBinary implements BooleanAnd/BooleanOr, which (unlike
// LogicalBinary) require both operands to already be Bool.
func (vm *Interpreter) BooleanBinary(op code.Opcode) error {
	b, err := vm.pop()
	if err != nil {
		return err
	}
	a, err := vm.pop()
	if err != nil {
		return err
	}
	if a.Kind != value.KindBool || b.Kind != value.KindBool {
		return ErrTypeMismatch
	}
	var res bool
	if op == code.OpBooleanAnd {
		res = a.Bool() && b.Bool()
	} else {
		res = a.Bool() || b.Bool()
	}
	vm.push(value.Bool(res))
	return nil
}
