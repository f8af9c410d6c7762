package vm

import (
	"github.com/Iris-proj/iris-vm/internal/object"
)

// BeginTryBlock implements spec.md §4.4's BeginTry: pushes a TryFrame
// capturing the handler IP (current frame's IP + handlerOffset) and
// the current operand stack height.
func (vm *Interpreter) BeginTryBlock(handlerOffset int) error {
	frame, err := vm.currentFrame()
	if err != nil {
		return err
	}
	vm.Tries = append(vm.Tries, TryFrame{
		HandlerIP:   frame.IP + handlerOffset,
		StackHeight: len(vm.Stack),
	})
	return nil
}

// EndTryBlock implements spec.md §4.4's EndTry: pops the topmost
// TryFrame. Popping with an empty protected-region stack is fatal.
func (vm *Interpreter) EndTryBlock() error {
	if len(vm.Tries) == 0 {
		return ErrNoTryFrame
	}
	vm.Tries = vm.Tries[:len(vm.Tries)-1]
	return nil
}

// ThrowException implements spec.md §4.4's Throw: pop the exception
// value; if the protected-region stack is empty, the run terminates
// with UnhandledException(value) (B4). Otherwise pop the innermost
// TryFrame, truncate the operand stack to its captured height, push
// the exception, and set the active frame's IP to the handler.
func (vm *Interpreter) ThrowException() error {
	exc, err := vm.pop()
	if err != nil {
		return err
	}
	if len(vm.Tries) == 0 {
		return UnhandledException(exc)
	}
	try := vm.Tries[len(vm.Tries)-1]
	vm.Tries = vm.Tries[:len(vm.Tries)-1]

	vm.Stack = vm.Stack[:try.StackHeight]
	vm.push(exc)

	frame, err := vm.currentFrame()
	if err != nil {
		return err
	}
	frame.IP = try.HandlerIP
	return nil
}

// CatchException implements spec.md §4.4's Catch: peek the exception
// on top of the stack; if it is an Object whose class is catchClass
// or a descendant, this is a no-op (B5, the handler keeps the
// exception on top). Otherwise it re-throws via the Throw path.
func (vm *Interpreter) CatchException(catchClass *object.Class) error {
	top, err := vm.peek()
	if err != nil {
		return err
	}
	inst, ok := object.FromValue(top)
	if ok && inst.Class.IsOrDescendsFrom(catchClass) {
		return nil
	}
	return vm.ThrowException()
}
