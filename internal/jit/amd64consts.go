//go:build amd64 && (linux || darwin)

package jit

import (
	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"
)

// Mnemonic aliases for the obj/x86 opcodes codegen_amd64.go emits,
// lowercased to match Go assembler syntax (https://go.dev/doc/asm).
// Only the subset this backend actually needs gets an alias; anything
// else is spelled out with the x86 package directly.
const (
	movq  = x86.AMOVQ
	leaq  = x86.ALEAQ
	subq  = x86.ASUBQ
	addq  = x86.AADDQ
	callq = obj.ACALL
	retq  = obj.ARET
	jmp   = obj.AJMP
	jeq   = x86.AJEQ
	jne   = x86.AJNE
	testb = x86.ATESTB
	nop   = obj.ANOP
)

// vmSlotReg is the register the function prologue loads the incoming
// *vm.Interpreter pointer into and keeps resident in a stack slot for
// the rest of the function (registers aren't preserved across a CALL
// under Go's internal ABI, so every thunk call site reloads AX from
// this slot rather than trusting a register survives the call).
//
// argReg is the register Go's internal ABI passes a function's first
// integer/pointer argument in — the register a thunk CALL needs its
// vm pointer loaded into immediately before the CALL.
const (
	vmSlotReg = x86.REG_SP // vm pointer lives at 0(SP) in the native frame
	argReg    = x86.REG_AX
)
