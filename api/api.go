// Package api is the embedding surface spec.md §6 describes: construct
// a VM, register globals, push an initial frame, run it, and inspect
// the result — plus the file-based counterparts of loading a Function
// or an archive of them from internal/persist.
package api

import (
	"io"

	"github.com/Iris-proj/iris-vm/internal/code"
	"github.com/Iris-proj/iris-vm/internal/jit"
	"github.com/Iris-proj/iris-vm/internal/persist"
	"github.com/Iris-proj/iris-vm/internal/value"
	"github.com/Iris-proj/iris-vm/internal/vm"
	"github.com/Iris-proj/iris-vm/internal/vm/logging"
)

// VM is the embedder-facing handle over a single interpreter instance.
// Per spec.md §5, a VM never shares heap state with another VM; each
// construction via New is fully independent.
type VM struct {
	interp *vm.Interpreter
}

// Option configures a VM at construction time.
type Option func(*vm.Interpreter)

// WithLogger attaches a diagnostic Logger receiving opt-in lifecycle
// notifications (JIT specialization and fallback, unhandled exceptions); the
// core never logs on its own initiative without one attached.
func WithLogger(l logging.Logger) Option {
	return func(i *vm.Interpreter) { i.Logger = l }
}

// WithInitialStackCapacity preallocates the operand stack for programs
// with a known rough stack depth.
func WithInitialStackCapacity(n int) Option {
	return Option(vm.WithInitialStackCapacity(n))
}

// WithJIT enables method-level specialization (SPEC_FULL.md §2's "JIT
// compile threshold" configuration item): once a Function has been
// called threshold times, internal/jit.Compile attempts to specialize
// it. This is the only place internal/jit is wired in — internal/vm
// never imports it directly, to keep the dependency one-directional
// (internal/jit -> internal/vm, never the reverse).
func WithJIT(threshold int) Option {
	return Option(vm.WithJIT(jit.Compile, threshold))
}

// New constructs a VM ready to accept globals and an initial frame.
func New(opts ...Option) *VM {
	vmOpts := make([]vm.Option, len(opts))
	for i, o := range opts {
		vmOpts[i] = vm.Option(o)
	}
	return &VM{interp: vm.New(vmOpts...)}
}

// RegisterGlobal sets the global at slot k to v before Run.
func (m *VM) RegisterGlobal(slot int, v value.Value) {
	m.interp.RegisterGlobal(slot, v)
}

// PushInitialFrame pushes a frame for fn, with nArgs arguments the
// caller has already pushed via Push.
func (m *VM) PushInitialFrame(fn *code.Function, nArgs int) {
	m.interp.PushInitialFrame(fn, nArgs)
}

// Push places v on the operand stack, for assembling the argument list
// a subsequent PushInitialFrame call consumes.
func (m *VM) Push(v value.Value) {
	m.interp.Push(v)
}

// Run executes until the frame stack empties or a fatal error occurs.
func (m *VM) Run() error {
	return m.interp.Run()
}

// Top inspects the current top of the operand stack after Run returns.
func (m *VM) Top() (value.Value, bool) {
	return m.interp.Top()
}

// LoadFunction reads a single-function blob written by
// internal/persist.WriteFunction, ready to be passed to
// PushInitialFrame.
func LoadFunction(r io.Reader) (*code.Function, error) {
	return persist.ReadFunction(r)
}

// LoadArchive reads the named functions out of an archive written by
// internal/persist.WriteArchive, addressable by name.
func LoadArchive(r io.Reader) (map[string]*code.Function, error) {
	return persist.ArchiveMap(r)
}
