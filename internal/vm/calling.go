package vm

import (
	"github.com/Iris-proj/iris-vm/internal/code"
	"github.com/Iris-proj/iris-vm/internal/object"
	"github.com/Iris-proj/iris-vm/internal/value"
)

// CallFunction implements spec.md §4.2's CallFunction(n): callee sits
// at stack[top-1-n], arguments are the n entries above it. For a
// Bytecode callee, the callee entry is removed (leaving arguments
// contiguous) and a new CallFrame is pushed. For a Native callee, its
// extern entry is invoked directly with a pointer to the VM.
func (vm *Interpreter) CallFunction(n int) error {
	calleeVal, err := vm.peekAt(n)
	if err != nil {
		return err
	}
	fn, ok := code.FromValue(calleeVal)
	if !ok {
		return ErrNonCallableValue
	}
	return vm.callFunctionValue(fn, n)
}

// callFunctionValue performs the callee-removal and frame-push (or
// direct native invocation) shared by CallFunction and InvokeMethod,
// whose only difference is how the callee Value was found.
func (vm *Interpreter) callFunctionValue(fn *code.Function, n int) error {
	calleeIdx := len(vm.Stack) - 1 - n
	// Remove the callee entry, shifting arguments down by one so they
	// remain contiguous at the new stack top.
	copy(vm.Stack[calleeIdx:], vm.Stack[calleeIdx+1:])
	vm.Stack = vm.Stack[:len(vm.Stack)-1]

	frame := CallFrame{Fn: fn, IP: 0, StackBase: len(vm.Stack) - n}
	vm.Frames = append(vm.Frames, frame)

	switch fn.Kind {
	case code.KindBytecode:
		vm.maybeSpecialize(fn)
		return nil
	case code.KindNative:
		// Native callees run to completion synchronously, including
		// popping their own frame, before CallFunction's caller ever
		// resumes — the interpreter loop never sees a Native frame on
		// top for longer than this call.
		return vm.runNative(&vm.Frames[len(vm.Frames)-1])
	default:
		return newErr(KindInvalidOperand, "function %q has unknown kind %d", fn.Name, fn.Kind)
	}
}

// TailCallFunction implements spec.md §4.2's TailCallFunction(n): for
// a Bytecode callee, arguments are moved down to the current frame's
// stack_base, the stack truncated to base+n, and the current frame's
// function and IP replaced in place — the frame stack does not grow
// (B6). Tail-calling a Native callee is an error.
func (vm *Interpreter) TailCallFunction(n int) error {
	frame, err := vm.currentFrame()
	if err != nil {
		return err
	}
	calleeVal, err := vm.peekAt(n)
	if err != nil {
		return err
	}
	fn, ok := code.FromValue(calleeVal)
	if !ok {
		return ErrNonCallableValue
	}
	if fn.Kind != code.KindBytecode {
		return newErr(KindInvalidOperand, "tail call to native function %q has no frame to reuse", fn.Name)
	}

	calleeIdx := len(vm.Stack) - 1 - n
	args := append([]value.Value(nil), vm.Stack[calleeIdx+1:]...)
	copy(vm.Stack[frame.StackBase:], args)
	vm.Stack = vm.Stack[:frame.StackBase+n]

	frame.Fn = fn
	frame.IP = 0
	return nil
}

// ReturnFromFunction implements spec.md §4.2's ReturnFromFunction: pop
// a result, discard the current frame's stack window, and push the
// result onto the caller's operand stack. Returning from the only
// frame ends execution (the frame stack becomes empty and Run exits).
func (vm *Interpreter) ReturnFromFunction() error {
	frame, err := vm.currentFrame()
	if err != nil {
		return err
	}
	result, err := vm.pop()
	if err != nil {
		return err
	}
	vm.Stack = vm.Stack[:frame.StackBase]
	vm.push(result)
	vm.Frames = vm.Frames[:len(vm.Frames)-1]
	return nil
}

// InvokeMethod implements spec.md §4.2's method invocation: the
// receiver sits at stack[top-1-n]; the method is resolved via the
// receiver class's method table (walking parents per I6), then
// dispatched like CallFunction.
func (vm *Interpreter) InvokeMethod(slot, n int) error {
	receiverVal, err := vm.peekAt(n)
	if err != nil {
		return err
	}
	inst, ok := object.FromValue(receiverVal)
	if !ok {
		return ErrNonObjectValue
	}
	methodVal, ok := inst.Class.FindMethod(slot)
	if !ok {
		return newErr(KindMethodNotFound, "slot %d not found on class %q", slot, inst.Class.Name)
	}
	fn, ok := code.FromValue(methodVal)
	if !ok {
		return ErrNonCallableValue
	}
	return vm.callFunctionValue(fn, n)
}

// GetSuperClassMethod implements spec.md §4.2's GetSuperClassMethod:
// pop a class handle and a receiver; resolve slot starting at the
// popped class; push the resolved method as a Function Value. Late
// binding of the receiver ("this") happens at the subsequent Call,
// which is why the receiver itself is simply discarded here once the
// method lookup walk is anchored at the popped class — the caller's
// bytecode is responsible for re-pushing the receiver before Call.
func (vm *Interpreter) GetSuperClassMethod(slot int) error {
	classVal, err := vm.pop()
	if err != nil {
		return err
	}
	cls, ok := object.ClassFromValue(classVal)
	if !ok {
		return ErrNonClassValue
	}
	if _, err := vm.pop(); err != nil { // receiver, discarded per above
		return err
	}
	methodVal, ok := cls.FindMethod(slot)
	if !ok {
		return newErr(KindMethodNotFound, "slot %d not found on class %q", slot, cls.Name)
	}
	vm.push(methodVal)
	return nil
}
