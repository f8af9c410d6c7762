package vm

import (
	"math"

	"github.com/Iris-proj/iris-vm/internal/code"
	"github.com/Iris-proj/iris-vm/internal/value"
)

// stepArithFamily handles every opcode dispatch.go's main switch
// doesn't: the generic peephole arithmetic/bitwise forms and the
// explicit-width Typed* family (spec.md §4.1). ip is advanced past any
// immediates the opcode carries; handled reports whether op belonged
// to this family at all; callers leave op to the next family (or
// UnknownOpCode) when handled is false.
func (vm *Interpreter) stepArithFamily(op code.Opcode, c []byte, ip *int) (handled bool, err error) {
	switch op {
	case code.OpAdd, code.OpSub, code.OpMul, code.OpDiv, code.OpModulo:
		b, err := vm.pop()
		if err != nil {
			return true, err
		}
		a, err := vm.pop()
		if err != nil {
			return true, err
		}
		res, err := applyBinaryArith(op, a, b)
		if err != nil {
			return true, err
		}
		vm.push(res)
	case code.OpNegate, code.OpAbsolute:
		a, err := vm.pop()
		if err != nil {
			return true, err
		}
		var res value.Value
		if op == code.OpNegate {
			res, err = genericNegate(a)
		} else {
			res, err = genericAbs(a)
		}
		if err != nil {
			return true, err
		}
		vm.push(res)
	case code.OpBitwiseAnd, code.OpBitwiseOr, code.OpBitwiseXor:
		b, err := vm.pop()
		if err != nil {
			return true, err
		}
		a, err := vm.pop()
		if err != nil {
			return true, err
		}
		var res value.Value
		switch op {
		case code.OpBitwiseAnd:
			res, err = genericBitAnd(a, b)
		case code.OpBitwiseOr:
			res, err = genericBitOr(a, b)
		case code.OpBitwiseXor:
			res, err = genericBitXor(a, b)
		}
		if err != nil {
			return true, err
		}
		vm.push(res)
	case code.OpBitwiseNot:
		a, err := vm.pop()
		if err != nil {
			return true, err
		}
		res, err := genericBitNot(a)
		if err != nil {
			return true, err
		}
		vm.push(res)
	case code.OpLeftShift, code.OpRightShift, code.OpURightShift:
		b, err := vm.pop()
		if err != nil {
			return true, err
		}
		a, err := vm.pop()
		if err != nil {
			return true, err
		}
		var res value.Value
		switch op {
		case code.OpLeftShift:
			res, err = genericShl(a, b)
		case code.OpRightShift:
			res, err = genericShr(a, b)
		case code.OpURightShift:
			res, err = genericUShr(a, b)
		}
		if err != nil {
			return true, err
		}
		vm.push(res)
	case code.OpRotateLeft, code.OpRotateRight:
		b, err := vm.pop()
		if err != nil {
			return true, err
		}
		a, err := vm.pop()
		if err != nil {
			return true, err
		}
		if a.Kind != value.KindI32 || !b.Kind.IsNumeric() {
			return true, ErrTypeMismatch
		}
		n := int32(shiftAmount(b))
		if op == code.OpRotateLeft {
			vm.push(value.I32(genericRotl32(a.I32(), n)))
		} else {
			vm.push(value.I32(genericRotr32(a.I32(), n)))
		}
	case code.OpFMA:
		cv, err := vm.pop()
		if err != nil {
			return true, err
		}
		bv, err := vm.pop()
		if err != nil {
			return true, err
		}
		av, err := vm.pop()
		if err != nil {
			return true, err
		}
		res, err := genericFMA(av, bv, cv)
		if err != nil {
			return true, err
		}
		vm.push(res)
	case code.OpFloor, code.OpCeil, code.OpRound, code.OpTrunc, code.OpSqrt:
		a, err := vm.pop()
		if err != nil {
			return true, err
		}
		res, err := applyUnaryFloat(op, a)
		if err != nil {
			return true, err
		}
		vm.push(res)
	case code.OpIncrement, code.OpDecrement:
		a, err := vm.pop()
		if err != nil {
			return true, err
		}
		one, err := oneLike(a.Kind)
		if err != nil {
			return true, err
		}
		var res value.Value
		if op == code.OpIncrement {
			res, err = genericAdd(a, one)
		} else {
			res, err = genericSub(a, one)
		}
		if err != nil {
			return true, err
		}
		vm.push(res)
	case code.OpAddConstI8, code.OpMulConstI8:
		imm := int8((readImm8(c, ip)))
		a, err := vm.pop()
		if err != nil {
			return true, err
		}
		if a.Kind != value.KindI32 {
			return true, ErrTypeMismatch
		}
		if op == code.OpAddConstI8 {
			vm.push(value.I32(a.I32() + int32(imm)))
		} else {
			vm.push(value.I32(a.I32() * int32(imm)))
		}

	case code.OpTypedAdd, code.OpTypedSub, code.OpTypedMul, code.OpTypedDiv, code.OpTypedMod,
		code.OpTypedEqual, code.OpTypedNotEqual, code.OpTypedGreater, code.OpTypedLess,
		code.OpTypedGE, code.OpTypedLE:
		kind, e := typedWidthKind(code.TypedWidth(readImm8(c, ip)))
		if e != nil {
			return true, e
		}
		b, err := vm.pop()
		if err != nil {
			return true, err
		}
		a, err := vm.pop()
		if err != nil {
			return true, err
		}
		if a.Kind != kind || b.Kind != kind {
			return true, ErrTypeMismatch
		}
		res, err := applyTypedOp(op, a, b)
		if err != nil {
			return true, err
		}
		vm.push(res)
	case code.OpTypedNegate, code.OpTypedAbs:
		kind, e := typedWidthKind(code.TypedWidth(readImm8(c, ip)))
		if e != nil {
			return true, e
		}
		a, err := vm.pop()
		if err != nil {
			return true, err
		}
		if a.Kind != kind {
			return true, ErrTypeMismatch
		}
		var res value.Value
		if op == code.OpTypedNegate {
			res, err = genericNegate(a)
		} else {
			res, err = genericAbs(a)
		}
		if err != nil {
			return true, err
		}
		vm.push(res)
	case code.OpTypedConvert:
		imm := readImm8(c, ip)
		fromKind, e := typedWidthKind(code.TypedWidth(imm >> 4))
		if e != nil {
			return true, e
		}
		toKind, e := typedWidthKind(code.TypedWidth(imm & 0x0f))
		if e != nil {
			return true, e
		}
		a, err := vm.pop()
		if err != nil {
			return true, err
		}
		if a.Kind != fromKind {
			return true, ErrTypeMismatch
		}
		res, err := convertNumeric(a, toKind)
		if err != nil {
			return true, err
		}
		vm.push(res)

	default:
		return false, nil
	}
	return true, nil
}

// readImm8 reads the next immediate byte at *ip and advances it.
func readImm8(c []byte, ip *int) byte {
	b := c[*ip]
	*ip++
	return b
}

func applyBinaryArith(op code.Opcode, a, b value.Value) (value.Value, error) {
	switch op {
	case code.OpAdd:
		return genericAdd(a, b)
	case code.OpSub:
		return genericSub(a, b)
	case code.OpMul:
		return genericMul(a, b)
	case code.OpDiv:
		return genericDiv(a, b)
	case code.OpModulo:
		return genericMod(a, b)
	default:
		return value.Value{}, ErrUnknownOpCode
	}
}

func applyTypedOp(op code.Opcode, a, b value.Value) (value.Value, error) {
	switch op {
	case code.OpTypedAdd:
		return genericAdd(a, b)
	case code.OpTypedSub:
		return genericSub(a, b)
	case code.OpTypedMul:
		return genericMul(a, b)
	case code.OpTypedDiv:
		return genericDiv(a, b)
	case code.OpTypedMod:
		return genericMod(a, b)
	case code.OpTypedEqual, code.OpTypedNotEqual, code.OpTypedGreater, code.OpTypedLess,
		code.OpTypedGE, code.OpTypedLE:
		cmp, err := compareNumeric(a, b)
		if err != nil {
			return value.Value{}, err
		}
		var res bool
		switch op {
		case code.OpTypedEqual:
			res = cmp == 0
		case code.OpTypedNotEqual:
			res = cmp != 0
		case code.OpTypedGreater:
			res = cmp > 0
		case code.OpTypedLess:
			res = cmp < 0
		case code.OpTypedGE:
			res = cmp >= 0
		case code.OpTypedLE:
			res = cmp <= 0
		}
		return value.Bool(res), nil
	default:
		return value.Value{}, ErrUnknownOpCode
	}
}

func applyUnaryFloat(op code.Opcode, a value.Value) (value.Value, error) {
	switch a.Kind {
	case value.KindF32:
		f := float64(a.F32())
		return value.F32(float32(applyMathFn(op, f))), nil
	case value.KindF64:
		return value.F64(applyMathFn(op, a.F64())), nil
	default:
		return value.Value{}, newErr(KindTypeMismatch, "%s requires a float operand, got %v", op, a.Kind)
	}
}

func applyMathFn(op code.Opcode, f float64) float64 {
	switch op {
	case code.OpFloor:
		return math.Floor(f)
	case code.OpCeil:
		return math.Ceil(f)
	case code.OpRound:
		return math.Round(f)
	case code.OpTrunc:
		return math.Trunc(f)
	case code.OpSqrt:
		return math.Sqrt(f)
	default:
		return f
	}
}

func genericFMA(a, b, cVal value.Value) (value.Value, error) {
	if a.Kind != b.Kind || b.Kind != cVal.Kind {
		return value.Value{}, ErrTypeMismatch
	}
	switch a.Kind {
	case value.KindF32:
		return value.F32(float32(math.FMA(float64(a.F32()), float64(b.F32()), float64(cVal.F32())))), nil
	case value.KindF64:
		return value.F64(math.FMA(a.F64(), b.F64(), cVal.F64())), nil
	default:
		return value.Value{}, newErr(KindTypeMismatch, "FMA requires float operands, got %v", a.Kind)
	}
}

func oneLike(k value.Kind) (value.Value, error) {
	switch k {
	case value.KindI32:
		return value.I32(1), nil
	case value.KindI64:
		return value.I64(1), nil
	case value.KindU32:
		return value.U32(1), nil
	case value.KindU64:
		return value.U64(1), nil
	case value.KindF32:
		return value.F32(1), nil
	case value.KindF64:
		return value.F64(1), nil
	default:
		return value.Value{}, newErr(KindTypeMismatch, "Increment/Decrement unsupported for %v", k)
	}
}

func typedWidthKind(w code.TypedWidth) (value.Kind, error) {
	switch w {
	case code.WidthI32:
		return value.KindI32, nil
	case code.WidthI64:
		return value.KindI64, nil
	case code.WidthF32:
		return value.KindF32, nil
	case code.WidthF64:
		return value.KindF64, nil
	case code.WidthU32:
		return value.KindU32, nil
	case code.WidthU64:
		return value.KindU64, nil
	default:
		return 0, newErr(KindInvalidOperand, "unknown TypedWidth %d", w)
	}
}

// stepCollectionFamily handles the array/map opcodes that weren't
// already given an explicit case in dispatch.go's main switch. Index
// operands for GetIndex/Resize are runtime values, not immediates:
// GetIndex pushes array-then-index (index popped first). SetIndex
// pushes array-then-index-then-value, so the value is popped first,
// then the index, before setArrayIndex pops the array and applies
// both — array-pushed-first, value-pushed-last, fully consumed.
func (vm *Interpreter) stepCollectionFamily(op code.Opcode, c []byte, ip *int) (handled bool, err error) {
	switch op {
	case code.OpNewArray8:
		n := int(readImm8(c, ip))
		return true, vm.newArray(n)
	case code.OpNewArray16:
		n := int(code.ReadU16(c, *ip))
		*ip += 2
		return true, vm.newArray(n)
	case code.OpGetIndex:
		idxVal, err := vm.pop()
		if err != nil {
			return true, err
		}
		idx, err := asIndex(idxVal)
		if err != nil {
			return true, err
		}
		return true, vm.getArrayIndex(idx)
	case code.OpSetIndex:
		v, err := vm.pop()
		if err != nil {
			return true, err
		}
		idxVal, err := vm.pop()
		if err != nil {
			return true, err
		}
		idx, err := asIndex(idxVal)
		if err != nil {
			return true, err
		}
		return true, vm.setArrayIndex(idx, v)
	case code.OpArrayLen:
		return true, vm.arrayLen()
	case code.OpResize:
		idxVal, err := vm.pop()
		if err != nil {
			return true, err
		}
		newLen, err := asIndex(idxVal)
		if err != nil {
			return true, err
		}
		return true, vm.resizeArray(newLen)
	case code.OpNewMap8:
		n := int(readImm8(c, ip))
		return true, vm.newMap(n)
	case code.OpNewMap16:
		n := int(code.ReadU16(c, *ip))
		*ip += 2
		return true, vm.newMap(n)
	case code.OpContains:
		return true, vm.mapContains()
	case code.OpRemove:
		return true, vm.mapRemove()
	case code.OpGetOrDflt:
		return true, vm.mapGetOrDefault()
	default:
		return false, nil
	}
}

func asIndex(v value.Value) (int, error) {
	switch v.Kind {
	case value.KindI8, value.KindI16, value.KindI32, value.KindI64:
		return int(v.I64()), nil
	case value.KindU8, value.KindU16, value.KindU32, value.KindU64:
		return int(v.U64()), nil
	default:
		return 0, newErr(KindTypeMismatch, "expected an integer index, got %v", v.Kind)
	}
}
