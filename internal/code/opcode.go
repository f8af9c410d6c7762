// Package code defines the IRIS bytecode format: the Opcode table, the
// Function unit of code, and the Chunk (code + constant pool) builder.
package code

// Opcode is a single instruction octet, extended in the 102-255 range
// for every instruction family spec.md names beyond the smaller core
// set. Opcode numbering is part of the ABI (spec.md §6) and must stay
// stable once assigned.
type Opcode byte

const (
	OpUnknown Opcode = 0

	// == Stack shaping ==
	OpConstant8    Opcode = 1
	OpConstant16   Opcode = 2
	OpNull         Opcode = 3
	OpTrue         Opcode = 4
	OpFalse        Opcode = 5
	OpPop          Opcode = 6
	OpDup          Opcode = 7
	OpSwap         Opcode = 8
	OpLoadImmI8    Opcode = 9
	OpLoadImmI16   Opcode = 10
	OpLoadImmI32   Opcode = 11
	OpLoadImmI64   Opcode = 12
	OpLoadImmF32   Opcode = 13
	OpLoadImmF64   Opcode = 14
	OpRotateTop3   Opcode = 102
	OpSwapTop2Pair Opcode = 103
	OpPick         Opcode = 104
	OpDropN        Opcode = 105
	OpDupN         Opcode = 106
	OpSwapNPairs   Opcode = 107
	OpRollN        Opcode = 108

	// == Local and global variables ==
	OpGetLocal8    Opcode = 15
	OpGetLocal16   Opcode = 16
	OpSetLocal8    Opcode = 17
	OpSetLocal16   Opcode = 18
	OpGetGlobal8   Opcode = 19
	OpGetGlobal16  Opcode = 20
	OpDefineGlobal Opcode = 21
	OpSetGlobal8   Opcode = 23
	OpSetGlobal16  Opcode = 24

	// == Property / field / map-entry access ==
	OpGetProperty8  Opcode = 25
	OpGetProperty16 Opcode = 26
	OpSetProperty8  Opcode = 27
	OpSetProperty16 Opcode = 28
	OpNewInstance   Opcode = 29
	OpInvoke8       Opcode = 30
	OpInvoke16      Opcode = 31
	OpGetSuper8     Opcode = 32
	OpGetSuper16    Opcode = 33
	OpClass8        Opcode = 34
	OpClass16       Opcode = 35
	OpCheckCast     Opcode = 36
	OpInstanceOf    Opcode = 37
	OpGetField8     Opcode = 86
	OpGetField16    Opcode = 87
	OpSetField8     Opcode = 88
	OpSetField16    Opcode = 89
	OpGetMapEntry8  Opcode = 109
	OpGetMapEntry16 Opcode = 110
	OpSetMapEntry8  Opcode = 111
	OpSetMapEntry16 Opcode = 112

	// == Control flow ==
	OpJump           Opcode = 40
	OpShortJump      Opcode = 112 + 1 // 113
	OpJumpIfFalse    Opcode = 41
	OpJumpIfTrue     Opcode = 114
	OpJumpIfNull     Opcode = 115
	OpJumpIfNonNull  Opcode = 116
	OpLoop           Opcode = 42
	OpCall           Opcode = 43
	OpTailCall       Opcode = 117
	OpReturn         Opcode = 44
	OpTableSwitch    Opcode = 118
	OpLookupSwitch   Opcode = 119
	OpRangeSwitch    Opcode = 120
	OpCmpBranchI32LT Opcode = 121

	// == Logical & comparison ==
	OpEqual        Opcode = 50
	OpNotEqual     Opcode = 51
	OpGreater      Opcode = 52
	OpLess         Opcode = 53
	OpLogicalAnd   Opcode = 54
	OpLogicalOr    Opcode = 55
	OpLogicalNot   Opcode = 56
	OpGreaterEqual Opcode = 57
	OpLessEqual    Opcode = 58
	OpBooleanAnd   Opcode = 122
	OpBooleanOr    Opcode = 123

	// == Arithmetic & bitwise (generic / peephole forms) ==
	OpAdd         Opcode = 60
	OpSub         Opcode = 61
	OpMul         Opcode = 62
	OpDiv         Opcode = 63
	OpModulo      Opcode = 64
	OpNegate      Opcode = 65
	OpBitwiseAnd  Opcode = 66
	OpBitwiseOr   Opcode = 67
	OpBitwiseXor  Opcode = 68
	OpBitwiseNot  Opcode = 69
	OpLeftShift   Opcode = 70
	OpRightShift  Opcode = 71
	OpURightShift Opcode = 124
	OpRotateLeft  Opcode = 125
	OpRotateRight Opcode = 126
	OpAbsolute    Opcode = 127
	OpFMA         Opcode = 128
	OpFloor       Opcode = 129
	OpCeil        Opcode = 130
	OpRound       Opcode = 131
	OpTrunc       Opcode = 132
	OpSqrt        Opcode = 133
	OpIncrement   Opcode = 134
	OpDecrement   Opcode = 135
	OpAddConstI8  Opcode = 136
	OpMulConstI8  Opcode = 137

	// Per-type arithmetic/compare family: width selector is packed
	// into the byte immediately following these opcodes (see
	// TypedArithWidth). This keeps §4.1's "for each of I32, I64, F32,
	// F64" family compact instead of spending one opcode per
	// (operation, width) pair.
	OpTypedAdd      Opcode = 140
	OpTypedSub      Opcode = 141
	OpTypedMul      Opcode = 142
	OpTypedDiv      Opcode = 143
	OpTypedMod      Opcode = 144
	OpTypedNegate   Opcode = 145
	OpTypedAbs      Opcode = 146
	OpTypedEqual    Opcode = 147
	OpTypedNotEqual Opcode = 148
	OpTypedGreater  Opcode = 149
	OpTypedLess     Opcode = 150
	OpTypedGE       Opcode = 151
	OpTypedLE       Opcode = 152
	OpTypedConvert  Opcode = 153 // immediate: (fromWidth<<4)|toWidth

	// == Arrays & maps ==
	OpNewArray8  Opcode = 80
	OpNewArray16 Opcode = 81
	OpGetIndex   Opcode = 82
	OpSetIndex   Opcode = 83
	OpArrayLen   Opcode = 154
	OpResize     Opcode = 155
	OpNewMap8    Opcode = 84
	OpNewMap16   Opcode = 85
	OpContains   Opcode = 156
	OpRemove     Opcode = 157
	OpGetOrDflt  Opcode = 158

	// == Exceptions ==
	OpThrow   Opcode = 90
	OpTry     Opcode = 91
	OpEndTry  Opcode = 92
	OpCatch   Opcode = 159
	OpFinally Opcode = 160 // reserved placeholder, fatal per spec.md §9
	OpUnwind  Opcode = 161 // reserved placeholder, fatal per spec.md §9

	// == Reserved placeholders (spec.md Open Questions: fatal) ==
	OpInlineCache  Opcode = 162
	OpMegamorphic  Opcode = 163
	OpAtomicAdd    Opcode = 164
	OpAtomicCAS    Opcode = 165
	OpEnterMonitor Opcode = 166
	OpExitMonitor  Opcode = 167
	OpYieldThread  Opcode = 168

	// == Misc ==
	OpPrint Opcode = 100
	OpNop   Opcode = 101
)

// TypedWidth selects the operand width for the Typed* opcode family.
type TypedWidth byte

const (
	WidthI32 TypedWidth = iota
	WidthI64
	WidthF32
	WidthF64
	WidthU32
	WidthU64
)

var opcodeNames = map[Opcode]string{
	OpUnknown: "unknown",

	OpConstant8: "const8", OpConstant16: "const16",
	OpNull: "null", OpTrue: "true", OpFalse: "false",
	OpPop: "pop", OpDup: "dup", OpSwap: "swap",
	OpLoadImmI8: "loadimm.i8", OpLoadImmI16: "loadimm.i16",
	OpLoadImmI32: "loadimm.i32", OpLoadImmI64: "loadimm.i64",
	OpLoadImmF32: "loadimm.f32", OpLoadImmF64: "loadimm.f64",
	OpRotateTop3: "rot3", OpSwapTop2Pair: "swap2pair", OpPick: "pick",
	OpDropN: "dropn", OpDupN: "dupn", OpSwapNPairs: "swapnpairs", OpRollN: "rolln",

	OpGetLocal8: "getlocal8", OpGetLocal16: "getlocal16",
	OpSetLocal8: "setlocal8", OpSetLocal16: "setlocal16",
	OpGetGlobal8: "getglobal8", OpGetGlobal16: "getglobal16",
	OpDefineGlobal: "defineglobal",
	OpSetGlobal8:   "setglobal8", OpSetGlobal16: "setglobal16",

	OpGetProperty8: "getprop8", OpGetProperty16: "getprop16",
	OpSetProperty8: "setprop8", OpSetProperty16: "setprop16",
	OpNewInstance: "newinstance",
	OpInvoke8:     "invoke8", OpInvoke16: "invoke16",
	OpGetSuper8: "getsuper8", OpGetSuper16: "getsuper16",
	OpClass8: "class8", OpClass16: "class16",
	OpCheckCast: "checkcast", OpInstanceOf: "instanceof",
	OpGetField8: "getfield8", OpGetField16: "getfield16",
	OpSetField8: "setfield8", OpSetField16: "setfield16",
	OpGetMapEntry8: "getmapentry8", OpGetMapEntry16: "getmapentry16",
	OpSetMapEntry8: "setmapentry8", OpSetMapEntry16: "setmapentry16",

	OpJump: "jump", OpShortJump: "shortjump",
	OpJumpIfFalse: "jumpiffalse", OpJumpIfTrue: "jumpiftrue",
	OpJumpIfNull: "jumpifnull", OpJumpIfNonNull: "jumpifnonnull",
	OpLoop: "loop", OpCall: "call", OpTailCall: "tailcall", OpReturn: "return",
	OpTableSwitch: "tableswitch", OpLookupSwitch: "lookupswitch",
	OpRangeSwitch: "rangeswitch", OpCmpBranchI32LT: "cmpbranch.i32.lt",

	OpEqual: "eq", OpNotEqual: "ne", OpGreater: "gt", OpLess: "lt",
	OpLogicalAnd: "land", OpLogicalOr: "lor", OpLogicalNot: "lnot",
	OpGreaterEqual: "ge", OpLessEqual: "le",
	OpBooleanAnd:   "band", OpBooleanOr: "bor",

	OpAdd: "add", OpSub: "sub", OpMul: "mul", OpDiv: "div", OpModulo: "mod",
	OpNegate: "neg", OpBitwiseAnd: "bitand", OpBitwiseOr: "bitor",
	OpBitwiseXor: "bitxor", OpBitwiseNot: "bitnot",
	OpLeftShift: "shl", OpRightShift: "shr", OpURightShift: "ushr",
	OpRotateLeft: "rotl", OpRotateRight: "rotr", OpAbsolute: "abs",
	OpFMA: "fma", OpFloor: "floor", OpCeil: "ceil", OpRound: "round",
	OpTrunc: "trunc", OpSqrt: "sqrt", OpIncrement: "inc", OpDecrement: "dec",
	OpAddConstI8: "addconst.i8", OpMulConstI8: "mulconst.i8",

	OpTypedAdd: "typed.add", OpTypedSub: "typed.sub", OpTypedMul: "typed.mul",
	OpTypedDiv: "typed.div", OpTypedMod: "typed.mod", OpTypedNegate: "typed.neg",
	OpTypedAbs: "typed.abs", OpTypedEqual: "typed.eq", OpTypedNotEqual: "typed.ne",
	OpTypedGreater: "typed.gt", OpTypedLess: "typed.lt", OpTypedGE: "typed.ge",
	OpTypedLE: "typed.le", OpTypedConvert: "typed.convert",

	OpNewArray8: "newarray8", OpNewArray16: "newarray16",
	OpGetIndex: "getindex", OpSetIndex: "setindex",
	OpArrayLen: "arraylen", OpResize: "resize",
	OpNewMap8: "newmap8", OpNewMap16: "newmap16",
	OpContains: "contains", OpRemove: "remove", OpGetOrDflt: "getordefault",

	OpThrow: "throw", OpTry: "try", OpEndTry: "endtry", OpCatch: "catch",
	OpFinally: "finally", OpUnwind: "unwind",

	OpInlineCache: "inlinecache", OpMegamorphic: "megamorphic",
	OpAtomicAdd: "atomicadd", OpAtomicCAS: "atomiccas",
	OpEnterMonitor: "entermonitor", OpExitMonitor: "exitmonitor",
	OpYieldThread: "yieldthread",

	OpPrint: "print", OpNop: "nop",
}

// String renders the opcode's mnemonic, or "?unknown?" for unassigned
// octets.
func (o Opcode) String() string {
	if s, ok := opcodeNames[o]; ok {
		return s
	}
	return "?unknown?"
}

// IsReservedPlaceholder reports whether o is one of the opcodes
// spec.md's Open Questions reserve without defining semantics
// (FinallyBlock, UnwindStack, inline-cache/megamorphic, atomic/monitor).
// The interpreter and JIT must treat these as fatal.
func (o Opcode) IsReservedPlaceholder() bool {
	switch o {
	case OpFinally, OpUnwind, OpInlineCache, OpMegamorphic,
		OpAtomicAdd, OpAtomicCAS, OpEnterMonitor, OpExitMonitor, OpYieldThread:
		return true
	}
	return false
}
