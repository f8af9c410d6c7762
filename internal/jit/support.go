package jit

import "github.com/Iris-proj/iris-vm/internal/code"

// operandKind classifies how codegen gets an opcode's operand(s) to
// the thunk it calls, if any.
type operandKind int

const (
	operandNone     operandKind = iota // no immediate; thunk takes nothing extra
	operand8                           // one unsigned byte immediate -> JitOperand
	operand16                          // one uint16 immediate -> JitOperand
	operandSlot8Cnt                    // Invoke8 shape: byte slot, byte count -> JitOperand, JitOperandB
	operandSlot16Cnt                   // Invoke16 shape: uint16 slot, byte count
)

// opInfo describes everything the block-recovery and codegen passes
// need to know about a supported opcode: how many bytes its operand
// occupies and how that operand reaches the thunk it calls.
type opInfo struct {
	operand operandKind
}

// supportedOps is the bounded slice of spec.md §4.1's instruction set
// the JIT backs with native code; every other opcode — control-flow
// forms with dynamic multi-way targets (TableSwitch/LookupSwitch/
// RangeSwitch/CmpBranch*), TailCall (frame-reuse is incompatible with
// runNative's one-native-entry-pops-its-own-frame invariant), the
// N-ary stack shuffles, exceptions, class/cast/super-method opcodes,
// the Typed* family, and the reserved placeholders — falls back to
// the interpreter by making Compile return ErrUnsupportedOpcode, per
// spec.md §4.5's explicit allowance. This is a deliberately narrower
// cut than that section's full "Supported scope" list; see DESIGN.md.
var supportedOps = map[code.Opcode]opInfo{
	// stack shaping
	code.OpConstant8:  {operand8},
	code.OpConstant16: {operand16},
	code.OpNull:       {operandNone},
	code.OpTrue:       {operandNone},
	code.OpFalse:      {operandNone},
	code.OpPop:        {operandNone},
	code.OpDup:        {operandNone},
	code.OpSwap:       {operandNone},
	code.OpLoadImmI8:  {operand8},
	code.OpLoadImmI16: {operand16},
	code.OpLoadImmI32: {operandNone}, // 4-byte immediate handled specially, see instrLen
	code.OpLoadImmI64: {operandNone}, // 8-byte immediate
	code.OpLoadImmF32: {operandNone}, // 4-byte immediate
	code.OpLoadImmF64: {operandNone}, // 8-byte immediate

	// locals and globals
	code.OpGetLocal8:    {operand8},
	code.OpGetLocal16:   {operand16},
	code.OpSetLocal8:    {operand8},
	code.OpSetLocal16:   {operand16},
	code.OpGetGlobal8:   {operand8},
	code.OpGetGlobal16:  {operand16},
	code.OpDefineGlobal: {operand8},
	code.OpSetGlobal8:   {operand8},
	code.OpSetGlobal16:  {operand16},

	// property, field, map-entry, invoke
	code.OpGetProperty8:  {operand8},
	code.OpGetProperty16: {operand16},
	code.OpSetProperty8:  {operand8},
	code.OpSetProperty16: {operand16},
	code.OpGetField8:     {operand8},
	code.OpGetField16:    {operand16},
	code.OpSetField8:     {operand8},
	code.OpSetField16:    {operand16},
	code.OpGetMapEntry8:  {operand8},
	code.OpGetMapEntry16: {operand16},
	code.OpSetMapEntry8:  {operand8},
	code.OpSetMapEntry16: {operand16},
	code.OpInvoke8:       {operandSlot8Cnt},
	code.OpInvoke16:      {operandSlot16Cnt},

	// control flow
	code.OpJump:         {operand16},
	code.OpShortJump:    {operand8},
	code.OpJumpIfFalse:  {operand16},
	code.OpJumpIfTrue:   {operand16},
	code.OpJumpIfNull:   {operand16},
	code.OpJumpIfNonNull: {operand16},
	code.OpLoop:         {operand16},
	code.OpCall:         {operand8},
	code.OpReturn:       {operandNone},

	// logical and comparison
	code.OpEqual:        {operandNone},
	code.OpNotEqual:     {operandNone},
	code.OpGreater:      {operandNone},
	code.OpLess:         {operandNone},
	code.OpGreaterEqual: {operandNone},
	code.OpLessEqual:    {operandNone},
	code.OpLogicalAnd:   {operandNone},
	code.OpLogicalOr:    {operandNone},
	code.OpLogicalNot:   {operandNone},
	code.OpBooleanAnd:   {operandNone},
	code.OpBooleanOr:    {operandNone},

	// arithmetic and bitwise (generic polymorphic forms only)
	code.OpAdd:        {operandNone},
	code.OpSub:        {operandNone},
	code.OpMul:        {operandNone},
	code.OpDiv:        {operandNone},
	code.OpModulo:     {operandNone},
	code.OpNegate:     {operandNone},
	code.OpAbsolute:   {operandNone},
	code.OpBitwiseAnd: {operandNone},
	code.OpBitwiseOr:  {operandNone},
	code.OpBitwiseXor: {operandNone},
	code.OpBitwiseNot: {operandNone},
	code.OpLeftShift:  {operandNone},
	code.OpRightShift: {operandNone},

	// arrays and maps
	code.OpNewArray8:  {operand8},
	code.OpNewArray16: {operand16},
	code.OpGetIndex:   {operandNone},
	code.OpSetIndex:   {operandNone},
	code.OpArrayLen:   {operandNone},
	code.OpResize:     {operandNone},
	code.OpNewMap8:    {operand8},
	code.OpNewMap16:   {operand16},

	// misc
	code.OpPrint: {operandNone},
	code.OpNop:   {operandNone},
}

// fixedImmLen special-cases the four opcodes whose immediate doesn't
// fit operandKind's byte/uint16 shape (OpLoadImmI32/F32 carry a 4-byte
// immediate, OpLoadImmI64/F64 an 8-byte one); codegen reads the raw
// bytes out of fn.Code directly for these instead of staging them
// through JitOperand.
var fixedImmLen = map[code.Opcode]int{
	code.OpLoadImmI32: 4,
	code.OpLoadImmF32: 4,
	code.OpLoadImmI64: 8,
	code.OpLoadImmF64: 8,
}

// isBranch reports whether op is one of the control-flow opcodes
// recoverBlocks treats as a block terminator, and if so whether it is
// conditional (leaves a fallthrough successor) or unconditional.
func isBranch(op code.Opcode) (conditional, isJump bool) {
	switch op {
	case code.OpJump, code.OpShortJump, code.OpLoop:
		return false, true
	case code.OpJumpIfFalse, code.OpJumpIfTrue, code.OpJumpIfNull, code.OpJumpIfNonNull:
		return true, true
	default:
		return false, false
	}
}

// instrLen returns the total length in bytes (opcode + operand) of
// the supported instruction op starting at c[ip], or ok=false if op
// isn't in the JIT's supported scope.
func instrLen(op code.Opcode, c []byte, ip int) (n int, ok bool) {
	if n, fixed := fixedImmLen[op]; fixed {
		return 1 + n, true
	}
	info, known := supportedOps[op]
	if !known {
		return 0, false
	}
	switch info.operand {
	case operandNone:
		return 1, true
	case operand8:
		return 2, true
	case operand16:
		return 3, true
	case operandSlot8Cnt:
		return 3, true
	case operandSlot16Cnt:
		return 4, true
	default:
		return 0, false
	}
}
