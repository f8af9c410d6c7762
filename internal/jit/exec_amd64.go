//go:build amd64 && (linux || darwin)

package jit

import (
	"fmt"
	"runtime"
	"syscall"
	"unsafe"

	"github.com/Iris-proj/iris-vm/internal/code"
)

// nativecall is implemented in nativecall_amd64.s: it sets up no Go
// stack frame of its own beyond the return address, jumps to codeAddr,
// and returns once that code's RET unwinds back to it. The machine
// code at codeAddr is produced by compileNative and never touches
// anything GC-visible on the bare machine stack — every value the
// compiled function reads or writes lives in the *vm.Interpreter's own
// Go-managed slices, kept alive for the call's duration by the caller
// holding a live reference to it.
//
//go:noescape
func nativecall(codeAddr, vmPtr uintptr)

// execBuf owns one mmap'd region of RWX memory holding a single
// compiled function's machine code. A finalizer releases it once the
// code.NativeEntry closure referencing it is collected.
type execBuf struct {
	mem []byte
}

func loadExecutable(machineCode []byte) (code.NativeEntry, error) {
	if len(machineCode) == 0 {
		return nil, fmt.Errorf("jit: assembler produced no code")
	}

	mem, err := syscall.Mmap(-1, 0, len(machineCode), syscall.PROT_READ|syscall.PROT_WRITE|syscall.PROT_EXEC, syscall.MAP_PRIVATE|syscall.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("jit: mmap executable page: %w", err)
	}
	copy(mem, machineCode)

	buf := &execBuf{mem: mem}
	runtime.SetFinalizer(buf, func(b *execBuf) {
		_ = syscall.Munmap(b.mem)
	})

	addr := uintptr(unsafe.Pointer(&buf.mem[0]))
	return func(vmPtr uintptr) {
		runtime.KeepAlive(buf)
		nativecall(addr, vmPtr)
	}, nil
}
