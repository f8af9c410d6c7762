// Package value implements the IRIS tagged Value representation: the
// copy-cheap primitive variants and the shared, interior-mutable heap
// cells (Array, Map, Str, Object, Class, Function).
package value

import (
	"fmt"
	"math"
	"strings"
)

// Kind discriminates a Value's active variant.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindI8
	KindI16
	KindI32
	KindI64
	KindI128
	KindU8
	KindU16
	KindU32
	KindU64
	KindU128
	KindF32
	KindF64
	KindStr
	KindArray
	KindMap
	KindObject
	KindClass
	KindFunction
)

// Int128 is a 128-bit signed integer represented as two 64-bit halves
// (hi holds the sign-extended upper bits). Go has no native i128; this
// is the idiomatic two-word stand-in for a 128-bit primitive kind.
type Int128 struct {
	Hi int64
	Lo uint64
}

// Uint128 is the unsigned counterpart of Int128.
type Uint128 struct {
	Hi uint64
	Lo uint64
}

// Value is the tagged, copy-cheap discriminated union described in
// spec.md §3. Exactly one of the payload fields is meaningful, selected
// by Kind. Heap-kinded values hold a pointer into one of the heap cell
// types below; copying a Value copies the pointer, not the cell.
type Value struct {
	Kind Kind

	boolean bool
	i64     int64  // holds I8/I16/I32/I64 sign-extended, and Int128.Lo aliasing is not used
	u64     uint64 // holds U8/U16/U32/U64
	i128    Int128
	u128    Uint128
	f32     float32
	f64     float64

	heap interface{} // *Str, *Array, *Map, *object.Instance, *Class, *Function
}

// Heap cell types. Each is shared by reference (a Go pointer); mutation
// through one alias is visible through all others, matching spec.md's
// "shared, interior-mutable" requirement without manual refcounting —
// the Go garbage collector is the idiomatic stand-in for the
// reference-counted smart pointer spec.md §9 describes.

// Str is an immutable, shared string cell.
type Str struct {
	S string
}

// Array is a shared, interior-mutable ordered sequence of Value.
type Array struct {
	Elems []Value
}

// Map is a shared, interior-mutable mapping from string key to Value.
type Map struct {
	Entries map[string]Value
}

func Null() Value                { return Value{Kind: KindNull} }
func Bool(b bool) Value          { return Value{Kind: KindBool, boolean: b} }
func I8(v int8) Value            { return Value{Kind: KindI8, i64: int64(v)} }
func I16(v int16) Value          { return Value{Kind: KindI16, i64: int64(v)} }
func I32(v int32) Value          { return Value{Kind: KindI32, i64: int64(v)} }
func I64(v int64) Value          { return Value{Kind: KindI64, i64: v} }
func I128(v Int128) Value        { return Value{Kind: KindI128, i128: v} }
func U8(v uint8) Value           { return Value{Kind: KindU8, u64: uint64(v)} }
func U16(v uint16) Value         { return Value{Kind: KindU16, u64: uint64(v)} }
func U32(v uint32) Value         { return Value{Kind: KindU32, u64: uint64(v)} }
func U64(v uint64) Value         { return Value{Kind: KindU64, u64: v} }
func U128(v Uint128) Value       { return Value{Kind: KindU128, u128: v} }
func F32(v float32) Value        { return Value{Kind: KindF32, f32: v} }
func F64(v float64) Value        { return Value{Kind: KindF64, f64: v} }
func NewStr(s string) Value      { return Value{Kind: KindStr, heap: &Str{S: s}} }
func FromArray(a *Array) Value   { return Value{Kind: KindArray, heap: a} }
func FromMap(m *Map) Value       { return Value{Kind: KindMap, heap: m} }

// Accessors. Callers must check Kind first. The primitive accessors
// return the stored payload field as is and do not panic on a
// mismatched Kind; StrCell, ArrayCell and MapCell panic on one (a
// failed type assertion).

func (v Value) Bool() bool     { return v.boolean }
func (v Value) I8() int8       { return int8(v.i64) }
func (v Value) I16() int16     { return int16(v.i64) }
func (v Value) I32() int32     { return int32(v.i64) }
func (v Value) I64() int64     { return v.i64 }
func (v Value) I128() Int128   { return v.i128 }
func (v Value) U8() uint8      { return uint8(v.u64) }
func (v Value) U16() uint16    { return uint16(v.u64) }
func (v Value) U32() uint32    { return uint32(v.u64) }
func (v Value) U64() uint64    { return v.u64 }
func (v Value) U128() Uint128  { return v.u128 }
func (v Value) F32() float32   { return v.f32 }
func (v Value) F64() float64   { return v.f64 }

// StrCell returns the shared string cell backing a KindStr Value.
func (v Value) StrCell() *Str { return v.heap.(*Str) }

// ArrayCell returns the shared array cell backing a KindArray Value.
func (v Value) ArrayCell() *Array { return v.heap.(*Array) }

// MapCell returns the shared map cell backing a KindMap Value.
func (v Value) MapCell() *Map { return v.heap.(*Map) }

// Heap returns the raw heap pointer (an *Instance, *Class, or *Function,
// depending on Kind) for use by internal/object and internal/code,
// which define those cell types to avoid an import cycle with value.
func (v Value) Heap() interface{} { return v.heap }

// FromHeap wraps an arbitrary heap pointer (an *Instance, *Class, or
// *Function from internal/object / internal/code) as a Value of the
// given Kind.
func FromHeap(k Kind, h interface{}) Value { return Value{Kind: k, heap: h} }

// IsTruthy implements spec.md §3's Value→Bool projection: Null→false,
// Bool→self, numerics→nonzero, Str/Array/Map→nonempty,
// Object/Class/Function→true.
func (v Value) IsTruthy() bool {
	switch v.Kind {
	case KindNull:
		return false
	case KindBool:
		return v.boolean
	case KindI8, KindI16, KindI32, KindI64:
		return v.i64 != 0
	case KindI128:
		return v.i128.Hi != 0 || v.i128.Lo != 0
	case KindU8, KindU16, KindU32, KindU64:
		return v.u64 != 0
	case KindU128:
		return v.u128.Hi != 0 || v.u128.Lo != 0
	case KindF32:
		return v.f32 != 0
	case KindF64:
		return v.f64 != 0
	case KindStr:
		return v.StrCell().S != ""
	case KindArray:
		return len(v.ArrayCell().Elems) != 0
	case KindMap:
		return len(v.MapCell().Entries) != 0
	default: // Object, Class, Function
		return true
	}
}

// Equal implements spec.md §3's equality rule: primitives by value,
// strings by content, other heap values by identity.
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNull:
		return true
	case KindBool:
		return a.boolean == b.boolean
	case KindI8, KindI16, KindI32, KindI64:
		return a.i64 == b.i64
	case KindI128:
		return a.i128 == b.i128
	case KindU8, KindU16, KindU32, KindU64:
		return a.u64 == b.u64
	case KindU128:
		return a.u128 == b.u128
	case KindF32:
		return a.f32 == b.f32
	case KindF64:
		return a.f64 == b.f64
	case KindStr:
		return a.StrCell().S == b.StrCell().S
	default: // Array, Map, Object, Class, Function: identity
		return a.heap == b.heap
	}
}

// String renders a human-readable representation, used by
// PrintTopOfStack and debugging.
func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindBool:
		return fmt.Sprintf("%t", v.boolean)
	case KindI8, KindI16, KindI32, KindI64:
		return fmt.Sprintf("%d", v.i64)
	case KindI128:
		return fmt.Sprintf("%d:%d", v.i128.Hi, v.i128.Lo)
	case KindU8, KindU16, KindU32, KindU64:
		return fmt.Sprintf("%d", v.u64)
	case KindU128:
		return fmt.Sprintf("%d:%d", v.u128.Hi, v.u128.Lo)
	case KindF32:
		return formatFloat(float64(v.f32))
	case KindF64:
		return formatFloat(v.f64)
	case KindStr:
		return v.StrCell().S
	case KindArray:
		elems := v.ArrayCell().Elems
		parts := make([]string, len(elems))
		for i, e := range elems {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindMap:
		return fmt.Sprintf("map(%d entries)", len(v.MapCell().Entries))
	case KindObject:
		return "<object>"
	case KindClass:
		return "<class>"
	case KindFunction:
		return "<function>"
	default:
		return "?"
	}
}

func formatFloat(f float64) string {
	if math.IsNaN(f) {
		return "NaN"
	}
	if math.IsInf(f, 1) {
		return "Infinity"
	}
	if math.IsInf(f, -1) {
		return "-Infinity"
	}
	return fmt.Sprintf("%g", f)
}

// IsNumeric reports whether the Kind is one of the numeric variants.
func (k Kind) IsNumeric() bool {
	switch k {
	case KindI8, KindI16, KindI32, KindI64, KindI128,
		KindU8, KindU16, KindU32, KindU64, KindU128,
		KindF32, KindF64:
		return true
	}
	return false
}
