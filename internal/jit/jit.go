// Package jit implements the optional method-level specialization
// spec.md §4.5 describes: compile a Function's bytecode to native
// machine code the first time it looks hot, leaving functions whose
// bytecode falls outside the supported scope running through the
// interpreter unchanged (R3: identical behavior either way).
//
// The native code genuinely branches, loops, and returns on its own;
// every operation that touches the operand stack, a frame's locals,
// the globals vector, or the heap crosses back into Go through a
// thunk — a plain Go function of the same func(vmPtr uintptr) shape
// as a Function's Native entry — addressed directly from hand-emitted
// machine code. Branch conditions and thunk failures cross back the
// other way through two fixed-offset scratch fields on
// *vm.Interpreter (vm.CondFlagOffset, vm.ThunkFailedOffset).
package jit

import (
	"errors"
	"fmt"

	"github.com/Iris-proj/iris-vm/internal/code"
)

// ErrUnsupportedOpcode is wrapped into the error Compile returns when
// fn's bytecode contains an opcode outside the JIT's supported scope.
// It is never fatal to the caller: Compile leaves fn untouched
// (Kind stays KindBytecode) and the interpreter runs it as before.
var ErrUnsupportedOpcode = errors.New("jit: opcode not supported for specialization")

// ErrUnsupportedArch is returned by Compile on any platform other
// than amd64 Linux or macOS, for the same non-fatal reason.
var ErrUnsupportedArch = errors.New("jit: native code generation not available on this architecture")

// Compile attempts to specialize fn in place: recover fn's basic-block
// structure, confirm every opcode it contains is within the JIT's
// supported scope, emit native code, and call fn.Specialize on
// success. On any failure it returns a non-nil error and leaves fn
// completely unmodified — the caller's only correct response is to
// keep running fn through the interpreter.
//
// Compile is idempotent to call twice on an already-specialized fn:
// it returns immediately without redoing the work (spec.md §3's
// "calling Specialize more than once is a caller error" is the
// Function-level invariant; Compile itself is the single caller that
// respects it).
func Compile(fn *code.Function) error {
	if fn.IsSpecialized() {
		return nil
	}
	blocks, err := recoverBlocks(fn.Code)
	if err != nil {
		return fmt.Errorf("jit: %q: %w", fn.Name, err)
	}
	entry, err := compileNative(fn, blocks)
	if err != nil {
		return fmt.Errorf("jit: compiling %q: %w", fn.Name, err)
	}
	fn.Specialize(entry)
	return nil
}
