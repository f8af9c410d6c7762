// Package vm implements the IRIS interpreter: the operand stack, the
// frame stack, the globals vector, the protected-region stack, and
// the fetch-decode-dispatch loop over the full instruction set in
// spec.md §4.1.
package vm

import (
	"unsafe"

	"github.com/Iris-proj/iris-vm/internal/code"
	"github.com/Iris-proj/iris-vm/internal/value"
	"github.com/Iris-proj/iris-vm/internal/vm/logging"
)

// Interpreter owns every piece of state a running IRIS program
// touches: the operand stack shared by every frame, the frame stack,
// the globals vector, and the protected-region stack, per spec.md
// §4.2. A JIT native entry receives a pointer to an Interpreter (via
// internal/jit's NativeEntry) and mutates this same state through the
// thunk table.
type Interpreter struct {
	Stack   []value.Value
	Frames  []CallFrame
	Globals []value.Value
	Tries   []TryFrame

	// Logger, when non-nil, receives opt-in lifecycle notifications
	// per SPEC_FULL.md §7. Nil by default: the core never logs on its
	// own initiative.
	Logger logging.Logger

	// condFlag is the fixed-offset byte internal/jit's native control
	// flow tests directly for conditional branches, per SPEC_FULL.md
	// §4.5's implementation note. It is set by PopBoolToCondFlag and
	// PopNullToCondFlag (via internal/jit's thunkPopTruthy and
	// thunkPopNull) before a native JEQ/JNE reads it.
	condFlag byte

	// thunkFailed and thunkErr let a JIT thunk report a fatal error
	// back through the native call boundary: native code tests
	// thunkFailed at its fixed offset after every thunk CALL and jumps
	// to its epilogue (a plain RET) rather than continuing, leaving
	// thunkErr for runNative to surface.
	thunkFailed byte
	thunkErr    error

	// jitOperandA and jitOperandB are the fixed-offset scratch slots
	// internal/jit's codegen writes an immediate operand (a slot
	// index, constant index, or count) into before a thunk CALL, so
	// every thunk keeps the uniform func(vmPtr uintptr) signature
	// instead of needing its own argument-passing convention.
	jitOperandA int64
	jitOperandB int64

	// Specializer, when non-nil, is internal/jit.Compile injected from
	// outside this package (internal/jit imports internal/vm, so the
	// reverse import would cycle; the api package, which depends on
	// both, is what actually wires WithJIT to this field). JITThreshold
	// is the call-count a Bytecode Function must reach before
	// maybeSpecialize attempts it; zero or a nil Specializer disables
	// the JIT entirely and every Function keeps running interpreted.
	Specializer  func(*code.Function) error
	JITThreshold int
}

// Option configures a New Interpreter using the functional-options
// style.
type Option func(*Interpreter)

// WithLogger attaches a diagnostic Logger.
func WithLogger(l logging.Logger) Option {
	return func(vm *Interpreter) { vm.Logger = l }
}

// WithInitialStackCapacity preallocates the operand stack, avoiding
// reallocation churn for programs with a known rough stack depth.
func WithInitialStackCapacity(n int) Option {
	return func(vm *Interpreter) { vm.Stack = make([]value.Value, 0, n) }
}

// WithJIT enables method-level specialization: once a Bytecode
// Function has been called threshold times, maybeSpecialize calls
// specializer on it. The api package wires this to internal/jit.Compile
// so internal/vm itself never imports internal/jit. threshold <= 0
// leaves the JIT disabled.
func WithJIT(specializer func(*code.Function) error, threshold int) Option {
	return func(vm *Interpreter) {
		vm.Specializer = specializer
		vm.JITThreshold = threshold
	}
}

// New constructs an empty Interpreter ready to accept globals and an
// initial frame.
func New(opts ...Option) *Interpreter {
	vm := &Interpreter{}
	for _, opt := range opts {
		opt(vm)
	}
	return vm
}

// RegisterGlobal sets the global at slot k to v, growing the globals
// vector as needed — the embedding-API counterpart of DefineGlobal,
// per spec.md §6.
func (vm *Interpreter) RegisterGlobal(slot int, v value.Value) {
	for len(vm.Globals) <= slot {
		vm.Globals = append(vm.Globals, value.Value{})
	}
	vm.Globals[slot] = v
}

// PushInitialFrame pushes a frame for fn with nArgs arguments already
// on the operand stack, per spec.md §6.
func (vm *Interpreter) PushInitialFrame(fn *code.Function, nArgs int) {
	vm.maybeSpecialize(fn)
	vm.Frames = append(vm.Frames, CallFrame{
		Fn:        fn,
		IP:        0,
		StackBase: len(vm.Stack) - nArgs,
	})
}

// maybeSpecialize bumps fn's call count and, once it has reached
// JITThreshold, hands fn to Specializer — a no-op when the JIT is
// disabled or fn is already specialized. A compile failure (an
// unsupported opcode, or any architecture without native codegen) is
// expected and non-fatal: fn simply keeps running interpreted, logged
// as a fallback rather than surfaced as an error to the caller.
func (vm *Interpreter) maybeSpecialize(fn *code.Function) {
	if vm.Specializer == nil || vm.JITThreshold <= 0 || fn.IsSpecialized() {
		return
	}
	if fn.IncrementCalls() < vm.JITThreshold {
		return
	}
	if err := vm.Specializer(fn); err != nil {
		if vm.Logger != nil {
			vm.Logger.Log(logging.EventJITFallback, fn.Name, err.Error())
		}
		return
	}
	if vm.Logger != nil {
		vm.Logger.Log(logging.EventJITSpecialized, fn.Name, "")
	}
}

// Top returns the current top of the operand stack, for embedder
// inspection after Run returns (spec.md §6).
func (vm *Interpreter) Top() (value.Value, bool) {
	if len(vm.Stack) == 0 {
		return value.Value{}, false
	}
	return vm.Stack[len(vm.Stack)-1], true
}

// Push places v on the operand stack, for an embedder assembling an
// argument list ahead of PushInitialFrame (spec.md §6).
func (vm *Interpreter) Push(v value.Value) {
	vm.push(v)
}

// --- operand stack primitives ---

func (vm *Interpreter) push(v value.Value) {
	vm.Stack = append(vm.Stack, v)
}

func (vm *Interpreter) pop() (value.Value, error) {
	if len(vm.Stack) == 0 {
		return value.Value{}, ErrStackUnderflow
	}
	n := len(vm.Stack) - 1
	v := vm.Stack[n]
	vm.Stack = vm.Stack[:n]
	return v, nil
}

func (vm *Interpreter) peek() (value.Value, error) {
	if len(vm.Stack) == 0 {
		return value.Value{}, ErrStackUnderflow
	}
	return vm.Stack[len(vm.Stack)-1], nil
}

func (vm *Interpreter) peekAt(offsetFromTop int) (value.Value, error) {
	idx := len(vm.Stack) - 1 - offsetFromTop
	if idx < 0 {
		return value.Value{}, ErrStackUnderflow
	}
	return vm.Stack[idx], nil
}

// currentFrame returns the topmost CallFrame. Callers must not keep
// the returned pointer across a Stack-reallocating operation.
func (vm *Interpreter) currentFrame() (*CallFrame, error) {
	if len(vm.Frames) == 0 {
		return nil, ErrNoActiveCallFrame
	}
	return &vm.Frames[len(vm.Frames)-1], nil
}

// Run executes until the frame stack is empty or a fatal error
// occurs, per spec.md §6. ThrowException/catch handling happens
// internally via the protected-region stack and never surfaces here
// except as KindUnhandledException.
func (vm *Interpreter) Run() error {
	return vm.RunUntilFrameCount(0)
}

// RunUntilFrameCount drives the fetch-decode-dispatch loop until the
// frame stack has shrunk to target frames, then returns. A JIT thunk
// that performs a Call or Invoke uses this (with target set to the
// frame count just before the call) to run the callee to completion —
// Bytecode or Native — before resuming the native caller, since a
// native entry's single invocation must account for its own frame
// only (see runNative).
func (vm *Interpreter) RunUntilFrameCount(target int) error {
	for len(vm.Frames) > target {
		frame := &vm.Frames[len(vm.Frames)-1]
		if frame.Fn.Kind == code.KindNative {
			// A specialized function's native entry takes over the
			// frame entirely; it calls back into the interpreter only
			// through thunks, and its return pops this frame itself
			// (see internal/jit's thunkReturn).
			if err := vm.runNative(frame); err != nil {
				return err
			}
			continue
		}
		if err := vm.step(frame); err != nil {
			if e, ok := err.(*Error); ok && e.Kind == KindUnhandledException {
				if vm.Logger != nil {
					vm.Logger.Log(logging.EventUnhandledException, frame.Fn.Name, e.Error())
				}
				return e
			}
			return err
		}
	}
	return nil
}

// runNative invokes frame's specialized native entry, passing this
// Interpreter as the single pointer-sized argument required by
// spec.md §4.5's calling convention. The native entry is responsible
// for popping its own frame (via the thunk equivalent of
// ReturnFromFunction) before returning to this loop — see
// internal/jit's thunkReturn.
func (vm *Interpreter) runNative(frame *CallFrame) (err error) {
	// Per spec.md §5, thunks panic rather than return an error when
	// their stated preconditions (arity, operand shape) are violated
	// — the interpreter is responsible for pre-checking before ever
	// reaching the JIT path. Recover here so a thunk panic surfaces
	// as the same *Error the interpreter path would have returned.
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(*Error); ok {
				err = e
				return
			}
			panic(r)
		}
	}()

	vm.ClearThunkError()
	entry := frame.Fn.Native
	framesBefore := len(vm.Frames)
	entry(uintptr(unsafe.Pointer(vm)))
	if vm.ThunkFailed() {
		return vm.ThunkError()
	}
	if len(vm.Frames) >= framesBefore {
		// A well-formed native entry always pops at least its own
		// frame before returning (directly, or by unwinding further
		// on an uncaught exception). Guard against a runaway loop if
		// a future thunk regresses this invariant.
		return newErr(KindInvalidOperand, "native entry for %q returned without popping its frame", frame.Fn.Name)
	}
	return nil
}
