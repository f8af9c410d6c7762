package vm

import (
	"math"

	"github.com/Iris-proj/iris-vm/internal/value"
)

// numericPair coerces two Values for a generic arithmetic or
// comparison opcode per spec.md §4.2's "Numeric coercions" paragraph:
// same-kind operands pass through unchanged; a mixed integer/float
// pair widens both to F64; a mixed signed/unsigned pair is a
// TypeMismatch unless the opcode is explicitly the unsigned variant
// (the Typed* family in families.go, which checks that both operands
// already have the opcode's width before calling into this path, so
// only same-kind pairs reach it from there).
func numericPair(a, b value.Value) (value.Value, value.Value, error) {
	if !a.Kind.IsNumeric() || !b.Kind.IsNumeric() {
		return value.Value{}, value.Value{}, newErr(KindTypeMismatch, "expected numeric operands, got %v and %v", a.Kind, b.Kind)
	}
	if a.Kind == b.Kind {
		return a, b, nil
	}
	af, aIsFloat := asFloat(a)
	bf, bIsFloat := asFloat(b)
	if aIsFloat || bIsFloat {
		return value.F64(af), value.F64(bf), nil
	}
	if isUnsignedKind(a.Kind) != isUnsignedKind(b.Kind) {
		return value.Value{}, value.Value{}, newErr(KindTypeMismatch, "cannot mix signed and unsigned operands (%v, %v)", a.Kind, b.Kind)
	}
	return value.F64(af), value.F64(bf), nil
}

func isUnsignedKind(k value.Kind) bool {
	switch k {
	case value.KindU8, value.KindU16, value.KindU32, value.KindU64, value.KindU128:
		return true
	}
	return false
}

// asFloat extracts a float64 view of any numeric Value, reporting
// whether the original Kind was already a float width.
func asFloat(v value.Value) (float64, bool) {
	switch v.Kind {
	case value.KindI8, value.KindI16, value.KindI32, value.KindI64:
		return float64(v.I64()), false
	case value.KindU8, value.KindU16, value.KindU32, value.KindU64:
		return float64(v.U64()), false
	case value.KindF32:
		return float64(v.F32()), true
	case value.KindF64:
		return v.F64(), true
	default:
		return 0, false
	}
}

// genericAdd/Sub/Mul/Div/Mod implement spec.md §4.1's Add/Sub/Mul/
// Div/Mod family generalized across I32/I64/F32/F64/U32/U64 via
// numericPair coercion. Integer arithmetic wraps on overflow (P4);
// Go's fixed-width integer types already wrap on overflow, so a plain
// arithmetic expression in the target width is sufficient.

func genericAdd(a, b value.Value) (value.Value, error) {
	a, b, err := numericPair(a, b)
	if err != nil {
		return value.Value{}, err
	}
	switch a.Kind {
	case value.KindI32:
		return value.I32(a.I32() + b.I32()), nil
	case value.KindI64:
		return value.I64(a.I64() + b.I64()), nil
	case value.KindU32:
		return value.U32(a.U32() + b.U32()), nil
	case value.KindU64:
		return value.U64(a.U64() + b.U64()), nil
	case value.KindF32:
		return value.F32(a.F32() + b.F32()), nil
	case value.KindF64:
		return value.F64(a.F64() + b.F64()), nil
	default:
		return value.Value{}, newErr(KindTypeMismatch, "Add unsupported for %v", a.Kind)
	}
}

func genericSub(a, b value.Value) (value.Value, error) {
	a, b, err := numericPair(a, b)
	if err != nil {
		return value.Value{}, err
	}
	switch a.Kind {
	case value.KindI32:
		return value.I32(a.I32() - b.I32()), nil
	case value.KindI64:
		return value.I64(a.I64() - b.I64()), nil
	case value.KindU32:
		return value.U32(a.U32() - b.U32()), nil
	case value.KindU64:
		return value.U64(a.U64() - b.U64()), nil
	case value.KindF32:
		return value.F32(a.F32() - b.F32()), nil
	case value.KindF64:
		return value.F64(a.F64() - b.F64()), nil
	default:
		return value.Value{}, newErr(KindTypeMismatch, "Sub unsupported for %v", a.Kind)
	}
}

func genericMul(a, b value.Value) (value.Value, error) {
	a, b, err := numericPair(a, b)
	if err != nil {
		return value.Value{}, err
	}
	switch a.Kind {
	case value.KindI32:
		return value.I32(a.I32() * b.I32()), nil
	case value.KindI64:
		return value.I64(a.I64() * b.I64()), nil
	case value.KindU32:
		return value.U32(a.U32() * b.U32()), nil
	case value.KindU64:
		return value.U64(a.U64() * b.U64()), nil
	case value.KindF32:
		return value.F32(a.F32() * b.F32()), nil
	case value.KindF64:
		return value.F64(a.F64() * b.F64()), nil
	default:
		return value.Value{}, newErr(KindTypeMismatch, "Mul unsupported for %v", a.Kind)
	}
}

func genericDiv(a, b value.Value) (value.Value, error) {
	a, b, err := numericPair(a, b)
	if err != nil {
		return value.Value{}, err
	}
	switch a.Kind {
	case value.KindI32:
		if b.I32() == 0 {
			return value.Value{}, ErrDivisionByZero
		}
		return value.I32(a.I32() / b.I32()), nil
	case value.KindI64:
		if b.I64() == 0 {
			return value.Value{}, ErrDivisionByZero
		}
		return value.I64(a.I64() / b.I64()), nil
	case value.KindU32:
		if b.U32() == 0 {
			return value.Value{}, ErrDivisionByZero
		}
		return value.U32(a.U32() / b.U32()), nil
	case value.KindU64:
		if b.U64() == 0 {
			return value.Value{}, ErrDivisionByZero
		}
		return value.U64(a.U64() / b.U64()), nil
	case value.KindF32:
		// IEEE-754 division by zero yields ±Inf or NaN, not an error
		// (B3).
		return value.F32(a.F32() / b.F32()), nil
	case value.KindF64:
		return value.F64(a.F64() / b.F64()), nil
	default:
		return value.Value{}, newErr(KindTypeMismatch, "Div unsupported for %v", a.Kind)
	}
}

func genericMod(a, b value.Value) (value.Value, error) {
	a, b, err := numericPair(a, b)
	if err != nil {
		return value.Value{}, err
	}
	switch a.Kind {
	case value.KindI32:
		if b.I32() == 0 {
			return value.Value{}, ErrDivisionByZero
		}
		return value.I32(a.I32() % b.I32()), nil
	case value.KindI64:
		if b.I64() == 0 {
			return value.Value{}, ErrDivisionByZero
		}
		return value.I64(a.I64() % b.I64()), nil
	case value.KindU32:
		if b.U32() == 0 {
			return value.Value{}, ErrDivisionByZero
		}
		return value.U32(a.U32() % b.U32()), nil
	case value.KindU64:
		if b.U64() == 0 {
			return value.Value{}, ErrDivisionByZero
		}
		return value.U64(a.U64() % b.U64()), nil
	default:
		return value.Value{}, newErr(KindTypeMismatch, "Mod is integer-only, got %v", a.Kind)
	}
}

func genericNegate(a value.Value) (value.Value, error) {
	switch a.Kind {
	case value.KindI32:
		return value.I32(-a.I32()), nil
	case value.KindI64:
		return value.I64(-a.I64()), nil
	case value.KindF32:
		return value.F32(-a.F32()), nil
	case value.KindF64:
		return value.F64(-a.F64()), nil
	default:
		return value.Value{}, newErr(KindTypeMismatch, "Negate unsupported for %v", a.Kind)
	}
}

func genericAbs(a value.Value) (value.Value, error) {
	switch a.Kind {
	case value.KindI32:
		v := a.I32()
		if v < 0 {
			v = -v
		}
		return value.I32(v), nil
	case value.KindI64:
		v := a.I64()
		if v < 0 {
			v = -v
		}
		return value.I64(v), nil
	case value.KindF32:
		return value.F32(float32(math.Abs(float64(a.F32())))), nil
	case value.KindF64:
		return value.F64(math.Abs(a.F64())), nil
	default:
		return value.Value{}, newErr(KindTypeMismatch, "Absolute unsupported for %v", a.Kind)
	}
}

// compareNumeric reports the three-way comparison of numeric a, b for
// the Greater/Less/GreaterOrEqual/LessOrEqual family.
func compareNumeric(a, b value.Value) (cmp int, err error) {
	a, b, err = numericPair(a, b)
	if err != nil {
		return 0, err
	}
	switch a.Kind {
	case value.KindI32:
		return cmpInt64(int64(a.I32()), int64(b.I32())), nil
	case value.KindI64:
		return cmpInt64(a.I64(), b.I64()), nil
	case value.KindU32:
		return cmpUint64(uint64(a.U32()), uint64(b.U32())), nil
	case value.KindU64:
		return cmpUint64(a.U64(), b.U64()), nil
	case value.KindF32:
		return cmpFloat64(float64(a.F32()), float64(b.F32())), nil
	case value.KindF64:
		return cmpFloat64(a.F64(), b.F64()), nil
	default:
		return 0, newErr(KindTypeMismatch, "comparison unsupported for %v", a.Kind)
	}
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpUint64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpFloat64(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// bitwise & shift family — I32/I64 only, per spec.md §4.1.

func genericBitAnd(a, b value.Value) (value.Value, error) {
	if a.Kind != b.Kind {
		return value.Value{}, ErrTypeMismatch
	}
	switch a.Kind {
	case value.KindI32:
		return value.I32(a.I32() & b.I32()), nil
	case value.KindI64:
		return value.I64(a.I64() & b.I64()), nil
	default:
		return value.Value{}, newErr(KindTypeMismatch, "BitwiseAnd unsupported for %v", a.Kind)
	}
}

func genericBitOr(a, b value.Value) (value.Value, error) {
	if a.Kind != b.Kind {
		return value.Value{}, ErrTypeMismatch
	}
	switch a.Kind {
	case value.KindI32:
		return value.I32(a.I32() | b.I32()), nil
	case value.KindI64:
		return value.I64(a.I64() | b.I64()), nil
	default:
		return value.Value{}, newErr(KindTypeMismatch, "BitwiseOr unsupported for %v", a.Kind)
	}
}

func genericBitXor(a, b value.Value) (value.Value, error) {
	if a.Kind != b.Kind {
		return value.Value{}, ErrTypeMismatch
	}
	switch a.Kind {
	case value.KindI32:
		return value.I32(a.I32() ^ b.I32()), nil
	case value.KindI64:
		return value.I64(a.I64() ^ b.I64()), nil
	default:
		return value.Value{}, newErr(KindTypeMismatch, "BitwiseXor unsupported for %v", a.Kind)
	}
}

func genericBitNot(a value.Value) (value.Value, error) {
	switch a.Kind {
	case value.KindI32:
		return value.I32(^a.I32()), nil
	case value.KindI64:
		return value.I64(^a.I64()), nil
	default:
		return value.Value{}, newErr(KindTypeMismatch, "BitwiseNot unsupported for %v", a.Kind)
	}
}

func genericShl(a, b value.Value) (value.Value, error) {
	switch a.Kind {
	case value.KindI32:
		return value.I32(a.I32() << uint(shiftAmount(b))), nil
	case value.KindI64:
		return value.I64(a.I64() << uint(shiftAmount(b))), nil
	default:
		return value.Value{}, newErr(KindTypeMismatch, "left shift unsupported for %v", a.Kind)
	}
}

func genericShr(a, b value.Value) (value.Value, error) {
	switch a.Kind {
	case value.KindI32:
		return value.I32(a.I32() >> uint(shiftAmount(b))), nil
	case value.KindI64:
		return value.I64(a.I64() >> uint(shiftAmount(b))), nil
	default:
		return value.Value{}, newErr(KindTypeMismatch, "arithmetic right shift unsupported for %v", a.Kind)
	}
}

func genericUShr(a, b value.Value) (value.Value, error) {
	switch a.Kind {
	case value.KindI32:
		return value.I32(int32(uint32(a.I32()) >> uint(shiftAmount(b)))), nil
	case value.KindI64:
		return value.I64(int64(uint64(a.I64()) >> uint(shiftAmount(b)))), nil
	default:
		return value.Value{}, newErr(KindTypeMismatch, "logical right shift unsupported for %v", a.Kind)
	}
}

func shiftAmount(v value.Value) int64 {
	switch v.Kind {
	case value.KindI8, value.KindI16, value.KindI32, value.KindI64:
		return v.I64()
	case value.KindU8, value.KindU16, value.KindU32, value.KindU64:
		return int64(v.U64())
	default:
		return 0
	}
}

func genericRotl32(a, n int32) int32 {
	u := uint32(a)
	s := uint(n) & 31
	return int32(u<<s | u>>(32-s))
}

func genericRotr32(a, n int32) int32 {
	u := uint32(a)
	s := uint(n) & 31
	return int32(u>>s | u<<(32-s))
}

// numeric conversions — every pair among {I32,I64,F32,F64}.

func convertNumeric(v value.Value, to value.Kind) (value.Value, error) {
	switch to {
	case value.KindI32:
		switch v.Kind {
		case value.KindI32:
			return v, nil
		case value.KindI64:
			return value.I32(int32(v.I64())), nil
		case value.KindF32:
			return value.I32(int32(v.F32())), nil
		case value.KindF64:
			return value.I32(int32(v.F64())), nil
		}
	case value.KindI64:
		switch v.Kind {
		case value.KindI32:
			return value.I64(int64(v.I32())), nil
		case value.KindI64:
			return v, nil
		case value.KindF32:
			return value.I64(int64(v.F32())), nil
		case value.KindF64:
			return value.I64(int64(v.F64())), nil
		}
	case value.KindF32:
		switch v.Kind {
		case value.KindI32:
			return value.F32(float32(v.I32())), nil
		case value.KindI64:
			return value.F32(float32(v.I64())), nil
		case value.KindF32:
			return v, nil
		case value.KindF64:
			return value.F32(float32(v.F64())), nil
		}
	case value.KindF64:
		switch v.Kind {
		case value.KindI32:
			return value.F64(float64(v.I32())), nil
		case value.KindI64:
			return value.F64(float64(v.I64())), nil
		case value.KindF32:
			return value.F64(float64(v.F32())), nil
		case value.KindF64:
			return v, nil
		}
	}
	return value.Value{}, newErr(KindTypeMismatch, "unsupported conversion from %v to %v", v.Kind, to)
}
