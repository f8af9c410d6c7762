package vm

import "github.com/Iris-proj/iris-vm/internal/code"

// CallFrame is the activation record described in spec.md §3: a
// function handle, a byte-offset instruction pointer, and the operand
// stack index at which this frame's locals begin.
type CallFrame struct {
	Fn        *code.Function
	IP        int
	StackBase int
}

// TryFrame is the protected-region frame described in spec.md §3/§4.4:
// the handler's instruction pointer and the operand stack height
// captured at BeginTryBlock, to which the stack is truncated on
// unwind.
type TryFrame struct {
	HandlerIP   int
	StackHeight int
}
