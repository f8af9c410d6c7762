package jit

import (
	"fmt"
	"sort"

	"github.com/Iris-proj/iris-vm/internal/code"
)

// block is a maximal straight-line run of bytecode between branch
// targets — the unit codegen_amd64.go lowers one at a time. code
// c[start:end) belongs to it; end is exclusive.
type block struct {
	start, end int
}

// blockSet is the control-flow structure spec.md §4.5's "control-flow
// recovery" pass recovers from a flat instruction stream: one block
// per entry point (offset 0 plus every branch target), ordered by
// start offset.
type blockSet struct {
	blocks  []block
	byStart map[int]int
}

// indexAt returns the index into blocks of the block starting exactly
// at offset, for resolving a branch's target block at lowering time.
func (bs *blockSet) indexAt(offset int) (int, bool) {
	i, ok := bs.byStart[offset]
	return i, ok
}

// recoverBlocks enumerates every branch target in a first pass over c
// (creating one basic block per target plus the entry block at 0),
// then fixes each block's extent in a second pass. It returns
// ErrUnsupportedOpcode the moment it meets an opcode outside the
// JIT's supported scope — Compile treats that as a whole-function
// fallback to the interpreter, so there is no use recovering blocks
// any further once one is found.
func recoverBlocks(c []byte) (*blockSet, error) {
	targets := map[int]bool{0: true}

	ip := 0
	for ip < len(c) {
		op := code.Opcode(c[ip])
		n, ok := instrLen(op, c, ip+1)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedOpcode, op)
		}
		if _, isJump := isBranch(op); isJump {
			target, err := branchTarget(op, c, ip)
			if err != nil {
				return nil, err
			}
			if target < 0 || target > len(c) {
				return nil, fmt.Errorf("jit: branch target %d out of range in %d-byte function", target, len(c))
			}
			targets[target] = true
			// An instruction immediately after any jump — conditional
			// or not — starts a new block: a conditional jump's
			// fallthrough successor, or the never-naturally-reached
			// block after an unconditional one.
			if next := ip + n; next < len(c) {
				targets[next] = true
			}
		}
		ip += n
	}
	if ip != len(c) {
		return nil, fmt.Errorf("jit: instruction stream desynchronized at offset %d", ip)
	}

	sorted := make([]int, 0, len(targets))
	for t := range targets {
		sorted = append(sorted, t)
	}
	sort.Ints(sorted)

	bs := &blockSet{byStart: make(map[int]int, len(sorted))}
	for i, start := range sorted {
		end := len(c)
		if i+1 < len(sorted) {
			end = sorted[i+1]
		}
		bs.byStart[start] = len(bs.blocks)
		bs.blocks = append(bs.blocks, block{start: start, end: end})
	}
	return bs, nil
}

// branchTarget computes op's absolute target offset from its operand,
// matching dispatch.go's OpJump/OpShortJump/OpJumpIf*/OpLoop handling
// byte for byte: Jump and the conditional forms add a forward offset
// to the position right after the opcode byte; ShortJump adds a
// signed delta to the opcode's own position; Loop subtracts.
func branchTarget(op code.Opcode, c []byte, ip int) (int, error) {
	switch op {
	case code.OpJump, code.OpJumpIfFalse, code.OpJumpIfTrue, code.OpJumpIfNull, code.OpJumpIfNonNull:
		offset := int(code.ReadU16(c, ip+1))
		return ip + 1 + offset, nil
	case code.OpShortJump:
		delta := int(int8(c[ip+1]))
		return ip + delta, nil
	case code.OpLoop:
		offset := int(code.ReadU16(c, ip+1))
		return ip + 1 - offset, nil
	default:
		return 0, fmt.Errorf("jit: %s is not a recognized branch opcode", op)
	}
}
