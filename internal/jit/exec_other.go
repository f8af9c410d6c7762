//go:build !(amd64 && (linux || darwin))

package jit

import "github.com/Iris-proj/iris-vm/internal/code"

// compileNative is unavailable outside amd64 on Linux/macOS; Compile
// surfaces ErrUnsupportedArch and its caller keeps running fn through
// the interpreter, per spec.md §4.5's "must remain semantically
// optional."
func compileNative(fn *code.Function, blocks *blockSet) (code.NativeEntry, error) {
	return nil, ErrUnsupportedArch
}
