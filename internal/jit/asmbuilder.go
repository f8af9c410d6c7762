//go:build amd64 && (linux || darwin)

package jit

import (
	"fmt"

	goasm "github.com/twitchyliquid64/golang-asm"
	"github.com/twitchyliquid64/golang-asm/obj"
)

// asmBuilder is a thin wrapper over goasm.Builder's NewProg/
// AddInstruction/Assemble calls, plus the pending-target bookkeeping
// codegen_amd64.go needs to resolve a forward jump to a block it
// hasn't emitted yet.
type asmBuilder struct {
	b *goasm.Builder

	// blockEntry records, for each recovered block index, the first
	// *obj.Prog emitted for it — the target a jump into that block
	// resolves to.
	blockEntry map[int]*obj.Prog

	// pendingJumps holds jump instructions whose target block hadn't
	// been emitted yet when the jump itself was; resolveJumps patches
	// every one once the whole function has been walked.
	pendingJumps []pendingJump
}

type pendingJump struct {
	prog  *obj.Prog
	block int
}

func newAsmBuilder() (*asmBuilder, error) {
	b, err := goasm.NewBuilder("amd64", 256)
	if err != nil {
		return nil, fmt.Errorf("jit: creating assembler: %w", err)
	}
	return &asmBuilder{b: b, blockEntry: make(map[int]*obj.Prog)}, nil
}

func (a *asmBuilder) newProg() *obj.Prog {
	return a.b.NewProg()
}

func (a *asmBuilder) add(p *obj.Prog) {
	a.b.AddInstruction(p)
}

// markBlockEntry records p as the first instruction of block idx, iff
// idx hasn't already been marked (a block is only entered once, at
// its first emitted instruction).
func (a *asmBuilder) markBlockEntry(idx int, p *obj.Prog) {
	if _, ok := a.blockEntry[idx]; !ok {
		a.blockEntry[idx] = p
	}
}

// jumpTo emits p (already built as a jump/branch instruction with its
// From set) targeting block idx, recording it for later resolution if
// idx's entry instruction doesn't exist yet.
func (a *asmBuilder) jumpTo(p *obj.Prog, idx int) {
	if target, ok := a.blockEntry[idx]; ok {
		p.To.SetTarget(target)
		return
	}
	a.pendingJumps = append(a.pendingJumps, pendingJump{prog: p, block: idx})
}

// resolvePending patches every jump recorded by jumpTo before the
// target block had been emitted; it must run after every block has
// been lowered.
func (a *asmBuilder) resolvePending() error {
	for _, pj := range a.pendingJumps {
		target, ok := a.blockEntry[pj.block]
		if !ok {
			return fmt.Errorf("jit: block %d never emitted", pj.block)
		}
		pj.prog.To.SetTarget(target)
	}
	a.pendingJumps = nil
	return nil
}

func (a *asmBuilder) assemble() []byte {
	return a.b.Assemble()
}
