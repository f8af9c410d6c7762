package vm

import (
	"fmt"

	"github.com/Iris-proj/iris-vm/internal/value"
)

// ErrorKind tags a fatal VM error with the taxonomy entry it belongs
// to, per spec.md §7. Kinds are surfaced to the embedder as a
// categorized failure value; the core never logs or aborts on its own
// beyond returning from Run.
type ErrorKind int

const (
	KindStackUnderflow ErrorKind = iota
	KindTypeMismatch
	KindUndefinedVariable
	KindUndefinedProperty
	KindMethodNotFound
	KindNonCallableValue
	KindNonObjectValue
	KindNonClassValue
	KindNonStringKey
	KindIndexOutOfBounds
	KindDivisionByZero
	KindUnknownOpCode
	KindInvalidOperand
	KindUnhandledException
	KindNoActiveCallFrame
	KindNoTryFrame
)

var kindNames = map[ErrorKind]string{
	KindStackUnderflow:     "StackUnderflow",
	KindTypeMismatch:       "TypeMismatch",
	KindUndefinedVariable:  "UndefinedVariable",
	KindUndefinedProperty:  "UndefinedProperty",
	KindMethodNotFound:     "MethodNotFound",
	KindNonCallableValue:   "NonCallableValue",
	KindNonObjectValue:     "NonObjectValue",
	KindNonClassValue:      "NonClassValue",
	KindNonStringKey:       "NonStringKey",
	KindIndexOutOfBounds:   "IndexOutOfBounds",
	KindDivisionByZero:     "DivisionByZero",
	KindUnknownOpCode:      "UnknownOpCode",
	KindInvalidOperand:     "InvalidOperand",
	KindUnhandledException: "UnhandledException",
	KindNoActiveCallFrame:  "NoActiveCallFrame",
	KindNoTryFrame:         "NoTryFrame",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "UnknownErrorKind"
}

// Error is the categorized failure value the core returns to its
// embedder, per spec.md §7. Detail carries the kind-specific
// description (a type-mismatch explanation, an offending slot number,
// etc). Value carries the thrown exception for KindUnhandledException
// only; it is the zero Value otherwise.
type Error struct {
	Kind   ErrorKind
	Detail string
	Value  value.Value
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Is allows errors.Is(err, vm.ErrStackUnderflow) style checks against
// the sentinels below, comparing by Kind rather than pointer identity
// so a freshly constructed *Error with a different Detail still
// matches its sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func newErr(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Sentinels for errors.Is comparison against a bare kind, with no
// detail populated.
var (
	ErrStackUnderflow     = &Error{Kind: KindStackUnderflow}
	ErrTypeMismatch       = &Error{Kind: KindTypeMismatch}
	ErrUndefinedVariable  = &Error{Kind: KindUndefinedVariable}
	ErrUndefinedProperty  = &Error{Kind: KindUndefinedProperty}
	ErrMethodNotFound     = &Error{Kind: KindMethodNotFound}
	ErrNonCallableValue   = &Error{Kind: KindNonCallableValue}
	ErrNonObjectValue     = &Error{Kind: KindNonObjectValue}
	ErrNonClassValue      = &Error{Kind: KindNonClassValue}
	ErrNonStringKey       = &Error{Kind: KindNonStringKey}
	ErrIndexOutOfBounds   = &Error{Kind: KindIndexOutOfBounds}
	ErrDivisionByZero     = &Error{Kind: KindDivisionByZero}
	ErrUnknownOpCode      = &Error{Kind: KindUnknownOpCode}
	ErrInvalidOperand     = &Error{Kind: KindInvalidOperand}
	ErrUnhandledException = &Error{Kind: KindUnhandledException}
	ErrNoActiveCallFrame  = &Error{Kind: KindNoActiveCallFrame}
	ErrNoTryFrame         = &Error{Kind: KindNoTryFrame}
)

// UnhandledException builds the KindUnhandledException error carrying
// the thrown value, per spec.md §4.4/§7/B4.
func UnhandledException(v value.Value) *Error {
	return &Error{Kind: KindUnhandledException, Value: v}
}
