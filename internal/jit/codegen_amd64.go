//go:build amd64 && (linux || darwin)

package jit

import (
	"fmt"
	"reflect"

	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"

	"github.com/Iris-proj/iris-vm/internal/code"
	"github.com/Iris-proj/iris-vm/internal/vm"
)

// vmSlotOffset is where the function prologue parks the incoming
// *vm.Interpreter pointer for the rest of the function: SUBQ $8, SP
// makes room below the return address the trampoline's CALL pushed,
// and every thunk call site reloads AX from here since a CALL clobbers
// whatever a prior thunk left in registers.
const vmSlotOffset = 0

// compileNative lowers fn's recovered blocks to amd64 machine code.
// Every block is emitted in bytecode order, so a block whose last
// instruction isn't itself a terminator falls through to the next
// block's first instruction exactly like the interpreter's linear
// fetch-decode loop would — only genuine branches need an explicit
// native jump.
func compileNative(fn *code.Function, blocks *blockSet) (code.NativeEntry, error) {
	b, err := newAsmBuilder()
	if err != nil {
		return nil, err
	}

	emitPrologue(b)

	c := fn.Code
	for idx, blk := range blocks.blocks {
		if err := lowerBlock(b, idx, blk, c, blocks); err != nil {
			return nil, err
		}
	}

	if err := b.resolvePending(); err != nil {
		return nil, err
	}

	return loadExecutable(b.assemble())
}

// emitPrologue reserves a stack slot for the vm pointer, arriving in
// AX per the internal ABI's first-argument register, and parks it at
// vmSlotOffset(SP).
func emitPrologue(b *asmBuilder) *obj.Prog {
	sub := b.newProg()
	sub.As = subq
	sub.From.Type = obj.TYPE_CONST
	sub.From.Offset = 8
	sub.To.Type = obj.TYPE_REG
	sub.To.Reg = x86.REG_SP
	b.add(sub)

	save := b.newProg()
	save.As = movq
	save.From.Type = obj.TYPE_REG
	save.From.Reg = x86.REG_AX
	save.To.Type = obj.TYPE_MEM
	save.To.Reg = x86.REG_SP
	save.To.Offset = vmSlotOffset
	b.add(save)
	return sub
}

// emitEpilogue restores SP and returns to the trampoline.
func emitEpilogue(b *asmBuilder) {
	add := b.newProg()
	add.As = addq
	add.From.Type = obj.TYPE_CONST
	add.From.Offset = 8
	add.To.Type = obj.TYPE_REG
	add.To.Reg = x86.REG_SP
	b.add(add)

	ret := b.newProg()
	ret.As = retq
	b.add(ret)
}

// loadVM emits "MOVQ vmSlotOffset(SP), AX", the reload every thunk
// call site needs since registers don't survive a CALL.
func loadVM(b *asmBuilder) *obj.Prog {
	p := b.newProg()
	p.As = movq
	p.From.Type = obj.TYPE_MEM
	p.From.Reg = x86.REG_SP
	p.From.Offset = vmSlotOffset
	p.To.Type = obj.TYPE_REG
	p.To.Reg = x86.REG_AX
	b.add(p)
	return p
}

// emitSetOperand writes the compile-time-constant val into the
// Interpreter's jitOperandA/B scratch field at its fixed offset —
// vm.JitOperandAOffset/JitOperandBOffset — via the vm pointer just
// reloaded into AX.
func emitSetOperand(b *asmBuilder, offset uintptr, val int64) *obj.Prog {
	first := loadVM(b)
	p := b.newProg()
	p.As = movq
	p.From.Type = obj.TYPE_CONST
	p.From.Offset = val
	p.To.Type = obj.TYPE_MEM
	p.To.Reg = x86.REG_AX
	p.To.Offset = int64(offset)
	b.add(p)
	return first
}

// emitCallThunk bakes th's code pointer in as an immediate (thunks
// never move once registered — they're ordinary package-level Go
// functions or closures created once at jit.Compile time) and issues
// an indirect CALL through CX, since x86-64 has no direct CALL with a
// 64-bit absolute immediate operand.
func emitCallThunk(b *asmBuilder, th thunk) *obj.Prog {
	first := loadVM(b)

	addr := reflect.ValueOf(th).Pointer()
	movAddr := b.newProg()
	movAddr.As = movq
	movAddr.From.Type = obj.TYPE_CONST
	movAddr.From.Offset = int64(addr)
	movAddr.To.Type = obj.TYPE_REG
	movAddr.To.Reg = x86.REG_CX
	b.add(movAddr)

	call := b.newProg()
	call.As = callq
	call.To.Type = obj.TYPE_REG
	call.To.Reg = x86.REG_CX
	b.add(call)

	return first
}

// emitThunkFailureCheck emits the TESTB+JNE that every fallible thunk
// call needs right after it returns: a thunk that called vm.FailThunk
// leaves vm.ThunkFailedOffset(vm) non-zero, and the only correct move
// from native code at that point is to stop and let runNative surface
// the error — there is no way to keep executing an operation whose
// Go-side half already failed.
func emitThunkFailureCheck(b *asmBuilder, pending *[]*obj.Prog) {
	loadVM(b)
	test := b.newProg()
	test.As = testb
	test.From.Type = obj.TYPE_CONST
	test.From.Offset = 1
	test.To.Type = obj.TYPE_MEM
	test.To.Reg = x86.REG_AX
	test.To.Offset = int64(vm.ThunkFailedOffset)
	b.add(test)

	branch := b.newProg()
	branch.As = jne
	branch.To.Type = obj.TYPE_BRANCH
	b.add(branch)
	*pending = append(*pending, branch)
}

// lowerBlock emits every instruction in blk, in order, and registers
// the first emitted *obj.Prog as block idx's jump-target entry point
// via markBlockEntry.
func lowerBlock(b *asmBuilder, idx int, blk block, c []byte, blocks *blockSet) error {
	ip := blk.start
	var entry *obj.Prog
	var bailPending []*obj.Prog

	mark := func(p *obj.Prog) {
		if entry == nil {
			entry = p
		}
	}

	for ip < blk.end {
		op := code.Opcode(c[ip])
		n, ok := instrLen(op, c, ip+1)
		if !ok {
			return fmt.Errorf("jit: %s unsupported during codegen", op)
		}

		prog, fallible, err := emitInstruction(b, op, c, ip, blocks)
		if err != nil {
			return err
		}
		mark(prog)
		if fallible {
			emitThunkFailureCheck(b, &bailPending)
		}
		ip += n
	}

	if len(bailPending) > 0 {
		// Every fallible call in this block shares one epilogue: restore
		// SP and return, leaving vm.ThunkError() for runNative to read.
		// A block that falls through jumps over it to the next block.
		if idx+1 < len(blocks.blocks) {
			skip := b.newProg()
			skip.As = jmp
			skip.To.Type = obj.TYPE_BRANCH
			b.add(skip)
			b.jumpTo(skip, idx+1)
		}
		epilogue := b.newProg()
		epilogue.As = addq
		epilogue.From.Type = obj.TYPE_CONST
		epilogue.From.Offset = 8
		epilogue.To.Type = obj.TYPE_REG
		epilogue.To.Reg = x86.REG_SP
		b.add(epilogue)
		ret := b.newProg()
		ret.As = retq
		b.add(ret)
		for _, p := range bailPending {
			p.To.SetTarget(epilogue)
		}
	}

	if entry != nil {
		b.markBlockEntry(idx, entry)
	}
	return nil
}

// emitInstruction lowers exactly one bytecode instruction, returning
// its first emitted *obj.Prog (for block-entry bookkeeping) and
// whether its thunk call (if any) can fail and needs a guard.
func emitInstruction(b *asmBuilder, op code.Opcode, c []byte, ip int, blocks *blockSet) (first *obj.Prog, fallible bool, err error) {
	if cond, isJump := isBranch(op); isJump {
		p, err := emitBranch(b, op, cond, c, ip, blocks)
		return p, false, err
	}
	if op == code.OpReturn {
		p := emitCallThunk(b, thunkReturn)
		emitEpilogue(b)
		return p, false, nil
	}

	th, ok := thunkFor(op)
	if !ok {
		return nil, false, fmt.Errorf("jit: no thunk registered for supported opcode %s", op)
	}

	a, bv, operandErr := decodeOperands(op, c, ip)
	if operandErr != nil {
		return nil, false, operandErr
	}

	var entry *obj.Prog
	if needsOperand(op) {
		entry = emitSetOperand(b, vm.JitOperandAOffset, a)
		if info, ok := supportedOps[op]; ok && (info.operand == operandSlot8Cnt || info.operand == operandSlot16Cnt) {
			emitSetOperand(b, vm.JitOperandBOffset, bv)
		}
	}

	call := emitCallThunk(b, th)
	if entry == nil {
		entry = call
	}
	return entry, opCanFail(op), nil
}

// needsOperand reports whether op's thunk reads JitOperand at all —
// every opcode in supportedOps with a non-None operandKind, plus the
// four fixed-width LoadImm forms whose operand doesn't fit
// operandKind's byte/uint16 shape.
func needsOperand(op code.Opcode) bool {
	if _, fixed := fixedImmLen[op]; fixed {
		return true
	}
	info, ok := supportedOps[op]
	return ok && info.operand != operandNone
}

// opCanFail reports whether op's thunk can call vm.FailThunk — the
// handful that physically cannot (pushing a freshly-decoded constant
// immediate, Nop) skip the TESTB+JNE guard entirely.
func opCanFail(op code.Opcode) bool {
	switch op {
	case code.OpLoadImmI8, code.OpLoadImmI16, code.OpLoadImmI32, code.OpLoadImmI64,
		code.OpLoadImmF32, code.OpLoadImmF64, code.OpNop,
		code.OpNull, code.OpTrue, code.OpFalse:
		return false
	default:
		return true
	}
}

// decodeOperands extracts op's immediate(s) directly from the
// bytecode at compile time — every operand the JIT's supported
// opcodes carry is a constant baked into the function at compile
// time, never something a thunk needs to re-parse at run time.
func decodeOperands(op code.Opcode, c []byte, ip int) (a, bv int64, err error) {
	if n, fixed := fixedImmLen[op]; fixed {
		switch n {
		case 4:
			if op == code.OpLoadImmF32 {
				return int64(code.ReadU32(c, ip+1)), 0, nil
			}
			return int64(int32(code.ReadU32(c, ip+1))), 0, nil
		case 8:
			return int64(code.ReadU64(c, ip+1)), 0, nil
		}
	}

	info, ok := supportedOps[op]
	if !ok {
		return 0, 0, fmt.Errorf("jit: %s has no operand decoding rule", op)
	}
	switch info.operand {
	case operandNone:
		return 0, 0, nil
	case operand8:
		return int64(c[ip+1]), 0, nil
	case operand16:
		return int64(code.ReadU16(c, ip+1)), 0, nil
	case operandSlot8Cnt:
		return int64(c[ip+1]), int64(c[ip+2]), nil
	case operandSlot16Cnt:
		return int64(code.ReadU16(c, ip+1)), int64(c[ip+3]), nil
	default:
		return 0, 0, fmt.Errorf("jit: %s: unrecognized operand kind", op)
	}
}

// emitBranch lowers a control-flow opcode to genuine native branching:
// conditional forms call the matching condFlag-setting thunk, test it,
// then Jcc to the target block (falling through to the next block in
// sequence otherwise); unconditional forms emit a bare JMP.
func emitBranch(b *asmBuilder, op code.Opcode, conditional bool, c []byte, ip int, blocks *blockSet) (*obj.Prog, error) {
	target, err := branchTarget(op, c, ip)
	if err != nil {
		return nil, err
	}
	targetIdx, ok := blocks.indexAt(target)
	if !ok {
		return nil, fmt.Errorf("jit: branch target %d is not a recovered block boundary", target)
	}

	if !conditional {
		first := emitCallOrNone(b, op)
		jp := b.newProg()
		jp.As = jmp
		jp.To.Type = obj.TYPE_BRANCH
		b.add(jp)
		b.jumpTo(jp, targetIdx)
		if first == nil {
			first = jp
		}
		return first, nil
	}

	var condThunk thunk
	switch op {
	case code.OpJumpIfFalse, code.OpJumpIfTrue:
		condThunk = thunkPopTruthy
	case code.OpJumpIfNull, code.OpJumpIfNonNull:
		condThunk = thunkPopNull
	default:
		return nil, fmt.Errorf("jit: %s is not a recognized conditional branch", op)
	}
	first := emitCallThunk(b, condThunk)

	loadVM(b)
	test := b.newProg()
	test.As = testb
	test.From.Type = obj.TYPE_CONST
	test.From.Offset = 1
	test.To.Type = obj.TYPE_MEM
	test.To.Reg = x86.REG_AX
	test.To.Offset = int64(vm.CondFlagOffset)
	b.add(test)

	jp := b.newProg()
	// JumpIfTrue/JumpIfNonNull branch when condFlag is set (JNE);
	// JumpIfFalse/JumpIfNull branch when it's clear (JEQ) — matching
	// dispatch.go's sense of each opcode exactly.
	switch op {
	case code.OpJumpIfTrue, code.OpJumpIfNonNull:
		jp.As = jne
	case code.OpJumpIfFalse, code.OpJumpIfNull:
		jp.As = jeq
	}
	jp.To.Type = obj.TYPE_BRANCH
	b.add(jp)
	b.jumpTo(jp, targetIdx)

	return first, nil
}

// emitCallOrNone handles OpShortJump/OpJump/OpLoop's lack of any
// thunk: these are pure native control flow with no Go-side effect,
// so there's nothing to call before the JMP itself.
func emitCallOrNone(b *asmBuilder, op code.Opcode) *obj.Prog {
	return nil
}
