package vm

import (
	"errors"
	"math"
	"testing"
	"unsafe"

	"github.com/Iris-proj/iris-vm/internal/code"
	"github.com/Iris-proj/iris-vm/internal/object"
	"github.com/Iris-proj/iris-vm/internal/value"
	"github.com/Iris-proj/iris-vm/internal/vm/logging"
	"github.com/stretchr/testify/require"
)

// run assembles fn as the entry point with no arguments and drives it
// to completion, returning the finished Interpreter for inspection.
func run(t *testing.T, fn *code.Function) (*Interpreter, error) {
	t.Helper()
	m := New()
	m.PushInitialFrame(fn, 0)
	err := m.Run()
	return m, err
}

func TestAddPushesSum(t *testing.T) {
	c := code.NewChunk()
	c.WriteOpcode(code.OpLoadImmI32)
	c.Write32(2)
	c.WriteOpcode(code.OpLoadImmI32)
	c.Write32(3)
	c.WriteOpcode(code.OpAdd)
	c.WriteOpcode(code.OpReturn)
	fn := code.NewBytecodeFunction("main", 0, c.Code, c.Constants)

	m, err := run(t, fn)
	require.NoError(t, err)
	top, ok := m.Top()
	require.True(t, ok)
	require.Equal(t, int32(5), top.I32())
}

func TestIntegerDivisionByZeroIsFatal(t *testing.T) {
	c := code.NewChunk()
	c.WriteOpcode(code.OpLoadImmI32)
	c.Write32(1)
	c.WriteOpcode(code.OpLoadImmI32)
	c.Write32(0)
	c.WriteOpcode(code.OpDiv)
	c.WriteOpcode(code.OpReturn)
	fn := code.NewBytecodeFunction("main", 0, c.Code, c.Constants)

	_, err := run(t, fn)
	require.ErrorIs(t, err, ErrDivisionByZero)
}

func TestFloatDivisionByZeroYieldsInfNotError(t *testing.T) {
	c := code.NewChunk()
	c.WriteOpcode(code.OpLoadImmF64)
	c.WriteF64(1)
	c.WriteOpcode(code.OpLoadImmF64)
	c.WriteF64(0)
	c.WriteOpcode(code.OpDiv)
	c.WriteOpcode(code.OpReturn)
	fn := code.NewBytecodeFunction("main", 0, c.Code, c.Constants)

	m, err := run(t, fn)
	require.NoError(t, err)
	top, _ := m.Top()
	require.True(t, math.IsInf(top.F64(), 1))
}

func TestMixedIntFloatWidensToF64(t *testing.T) {
	c := code.NewChunk()
	c.WriteOpcode(code.OpLoadImmI32)
	c.Write32(2)
	c.WriteOpcode(code.OpLoadImmF64)
	c.WriteF64(0.5)
	c.WriteOpcode(code.OpAdd)
	c.WriteOpcode(code.OpReturn)
	fn := code.NewBytecodeFunction("main", 0, c.Code, c.Constants)

	m, err := run(t, fn)
	require.NoError(t, err)
	top, _ := m.Top()
	require.Equal(t, value.KindF64, top.Kind)
	require.Equal(t, 2.5, top.F64())
}

func TestMixedSignedUnsignedIsTypeMismatch(t *testing.T) {
	c := code.NewChunk()
	i0 := c.AddConstant(value.I32(1))
	i1 := c.AddConstant(value.U32(1))
	c.WriteOpcode(code.OpConstant8)
	c.Write8(byte(i0))
	c.WriteOpcode(code.OpConstant8)
	c.Write8(byte(i1))
	c.WriteOpcode(code.OpAdd)
	c.WriteOpcode(code.OpReturn)
	fn := code.NewBytecodeFunction("main", 0, c.Code, c.Constants)

	_, err := run(t, fn)
	require.ErrorIs(t, err, ErrTypeMismatch)
}

func TestIntegerOverflowWraps(t *testing.T) {
	c := code.NewChunk()
	c.WriteOpcode(code.OpLoadImmI32)
	c.Write32(uint32(int32(2147483647)))
	c.WriteOpcode(code.OpLoadImmI32)
	c.Write32(1)
	c.WriteOpcode(code.OpAdd)
	c.WriteOpcode(code.OpReturn)
	fn := code.NewBytecodeFunction("main", 0, c.Code, c.Constants)

	m, err := run(t, fn)
	require.NoError(t, err)
	top, _ := m.Top()
	require.Equal(t, int32(-2147483648), top.I32())
}

func TestLocalGetSet(t *testing.T) {
	c := code.NewChunk()
	c.WriteOpcode(code.OpLoadImmI32) // local 0
	c.Write32(10)
	c.WriteOpcode(code.OpLoadImmI32) // value to store
	c.Write32(20)
	c.WriteOpcode(code.OpSetLocal8)
	c.Write8(0)
	c.WriteOpcode(code.OpPop)
	c.WriteOpcode(code.OpGetLocal8)
	c.Write8(0)
	c.WriteOpcode(code.OpReturn)
	fn := code.NewBytecodeFunction("main", 0, c.Code, c.Constants)

	m, err := run(t, fn)
	require.NoError(t, err)
	top, _ := m.Top()
	require.Equal(t, int32(20), top.I32())
}

func TestGlobalDefineGetSet(t *testing.T) {
	c := code.NewChunk()
	c.WriteOpcode(code.OpLoadImmI32)
	c.Write32(1)
	c.WriteOpcode(code.OpDefineGlobal)
	c.Write8(0)
	c.WriteOpcode(code.OpLoadImmI32)
	c.Write32(99)
	c.WriteOpcode(code.OpSetGlobal8)
	c.Write8(0)
	c.WriteOpcode(code.OpPop)
	c.WriteOpcode(code.OpGetGlobal8)
	c.Write8(0)
	c.WriteOpcode(code.OpReturn)
	fn := code.NewBytecodeFunction("main", 0, c.Code, c.Constants)

	m, err := run(t, fn)
	require.NoError(t, err)
	top, _ := m.Top()
	require.Equal(t, int32(99), top.I32())
}

// TestCallFunctionAddsTwoArgs exercises the full calling convention:
// CallFunction(n) with the callee at stack[top-1-n], argument
// contiguity after the callee slot is removed, and
// ReturnFromFunction's stack-base truncation.
func TestCallFunctionAddsTwoArgs(t *testing.T) {
	callee := code.NewChunk()
	callee.WriteOpcode(code.OpGetLocal8)
	callee.Write8(0)
	callee.WriteOpcode(code.OpGetLocal8)
	callee.Write8(1)
	callee.WriteOpcode(code.OpAdd)
	callee.WriteOpcode(code.OpReturn)
	calleeFn := code.NewBytecodeFunction("add2", 2, callee.Code, callee.Constants)

	main := code.NewChunk()
	calleeIdx := main.AddConstant(calleeFn.ToValue())
	main.WriteOpcode(code.OpConstant8)
	main.Write8(byte(calleeIdx))
	main.WriteOpcode(code.OpLoadImmI32)
	main.Write32(4)
	main.WriteOpcode(code.OpLoadImmI32)
	main.Write32(5)
	main.WriteOpcode(code.OpCall)
	main.Write8(2)
	main.WriteOpcode(code.OpReturn)
	mainFn := code.NewBytecodeFunction("main", 0, main.Code, main.Constants)

	m, err := run(t, mainFn)
	require.NoError(t, err)
	top, _ := m.Top()
	require.Equal(t, int32(9), top.I32())
}

func TestTailCallReusesFrame(t *testing.T) {
	// countdown(n): if n == 0 return n; else tailcall countdown(n-1)
	cd := code.NewChunk()
	cd.WriteOpcode(code.OpGetLocal8)
	cd.Write8(0)
	cd.WriteOpcode(code.OpLoadImmI32)
	cd.Write32(0)
	cd.WriteOpcode(code.OpEqual)
	cd.WriteOpcode(code.OpJumpIfFalse)
	jumpPatch := len(cd.Code) // offset field starts here; frame.IP at dispatch is jumpPatch-1
	cd.Write16(0)             // placeholder, patched once the else-branch offset is known

	// then: n == 0, return n.
	cd.WriteOpcode(code.OpGetLocal8)
	cd.Write8(0)
	cd.WriteOpcode(code.OpReturn)

	// else: tailcall countdown(n-1). A forward jump's target is
	// frame.IP+1+offset, and frame.IP here is jumpPatch-1, so
	// offset = elseStart - jumpPatch lands exactly here.
	elseStart := len(cd.Code)
	cd.Patch16(jumpPatch, uint16(elseStart-jumpPatch))

	selfIdx := cd.AddConstant(value.Null()) // placeholder, patched below
	cd.WriteOpcode(code.OpConstant8)
	cd.Write8(byte(selfIdx))
	cd.WriteOpcode(code.OpGetLocal8)
	cd.Write8(0)
	cd.WriteOpcode(code.OpLoadImmI32)
	cd.Write32(1)
	cd.WriteOpcode(code.OpSub)
	cd.WriteOpcode(code.OpTailCall)
	cd.Write8(1)

	cdFn := code.NewBytecodeFunction("countdown", 1, cd.Code, cd.Constants)
	cd.Constants[selfIdx] = cdFn.ToValue()

	main := code.NewChunk()
	calleeIdx := main.AddConstant(cdFn.ToValue())
	main.WriteOpcode(code.OpConstant8)
	main.Write8(byte(calleeIdx))
	main.WriteOpcode(code.OpLoadImmI32)
	main.Write32(3)
	main.WriteOpcode(code.OpCall)
	main.Write8(1)
	main.WriteOpcode(code.OpReturn)
	mainFn := code.NewBytecodeFunction("main", 0, main.Code, main.Constants)

	m, err := run(t, mainFn)
	require.NoError(t, err)
	top, _ := m.Top()
	require.Equal(t, int32(0), top.I32())
	require.Len(t, m.Frames, 0)
}

func TestBeginTryThrowCatchUnwindsToHandler(t *testing.T) {
	excClass := object.NewClass("Boom", 1)

	c := code.NewChunk()
	classIdx := c.AddConstant(excClass.ToValue())

	c.WriteOpcode(code.OpTry)
	tryPatch := len(c.Code)
	c.Write16(0)

	// protected region: push a marker, then throw.
	c.WriteOpcode(code.OpLoadImmI32)
	c.Write32(111)
	c.WriteOpcode(code.OpPop)
	c.WriteOpcode(code.OpClass16)
	c.Write16(uint16(classIdx))
	c.WriteOpcode(code.OpNewInstance)
	c.WriteOpcode(code.OpThrow)

	handlerStart := len(c.Code)
	c.Patch16(tryPatch, uint16(handlerStart-(tryPatch-1)))

	c.WriteOpcode(code.OpCheckCast) // sanity: the exception is on top
	c.Write16(uint16(classIdx))
	c.WriteOpcode(code.OpPop)
	c.WriteOpcode(code.OpLoadImmI32)
	c.Write32(42)
	c.WriteOpcode(code.OpReturn)

	fn := code.NewBytecodeFunction("main", 0, c.Code, c.Constants)
	m, err := run(t, fn)
	require.NoError(t, err)
	top, _ := m.Top()
	require.Equal(t, int32(42), top.I32())
}

func TestThrowWithNoTryFrameIsUnhandledException(t *testing.T) {
	excClass := object.NewClass("Boom", 1)
	c := code.NewChunk()
	classIdx := c.AddConstant(excClass.ToValue())
	c.WriteOpcode(code.OpClass16)
	c.Write16(uint16(classIdx))
	c.WriteOpcode(code.OpNewInstance)
	c.WriteOpcode(code.OpThrow)
	fn := code.NewBytecodeFunction("main", 0, c.Code, c.Constants)

	_, err := run(t, fn)
	var vmErr *Error
	require.ErrorAs(t, err, &vmErr)
	require.Equal(t, KindUnhandledException, vmErr.Kind)
	require.Equal(t, value.KindObject, vmErr.Value.Kind)
}

func TestArrayGetOutOfBoundsIsFatal(t *testing.T) {
	c := code.NewChunk()
	c.WriteOpcode(code.OpNewArray8)
	c.Write8(0)
	c.WriteOpcode(code.OpLoadImmI32)
	c.Write32(0)
	c.WriteOpcode(code.OpGetIndex)
	c.WriteOpcode(code.OpReturn)
	fn := code.NewBytecodeFunction("main", 0, c.Code, c.Constants)

	_, err := run(t, fn)
	require.ErrorIs(t, err, ErrIndexOutOfBounds)
}

func TestArraySetAutoExtends(t *testing.T) {
	c := code.NewChunk()
	c.WriteOpcode(code.OpNewArray8) // stack: [A]
	c.Write8(0)
	c.WriteOpcode(code.OpDup) // stack: [A, A]
	c.WriteOpcode(code.OpLoadImmI32)
	c.Write32(2) // stack: [A, A, 2]
	c.WriteOpcode(code.OpLoadImmI32)
	c.Write32(77)                  // stack: [A, A, 2, 77]
	c.WriteOpcode(code.OpSetIndex) // pops value, index, array, fully consumed: stack: [A]
	c.WriteOpcode(code.OpArrayLen)
	c.WriteOpcode(code.OpReturn)
	fn := code.NewBytecodeFunction("main", 0, c.Code, c.Constants)

	m, err := run(t, fn)
	require.NoError(t, err)
	top, _ := m.Top()
	require.Equal(t, int32(3), top.I32())
}

func TestMapGetMissingKeyYieldsNull(t *testing.T) {
	c := code.NewChunk()
	keyIdx := c.AddConstant(value.NewStr("missing"))
	c.WriteOpcode(code.OpNewMap8)
	c.Write8(0)
	c.WriteOpcode(code.OpGetMapEntry8)
	c.Write8(byte(keyIdx))
	c.WriteOpcode(code.OpReturn)
	fn := code.NewBytecodeFunction("main", 0, c.Code, c.Constants)

	m, err := run(t, fn)
	require.NoError(t, err)
	top, _ := m.Top()
	require.Equal(t, value.KindNull, top.Kind)
}

func TestPropertyAndFieldShareSameSlottedStorage(t *testing.T) {
	cls := object.NewClass("Point", 1)
	cls.AddProperty("x", 0)

	c := code.NewChunk()
	classIdx := c.AddConstant(cls.ToValue())
	nameIdx := c.AddConstant(value.NewStr("x"))

	c.WriteOpcode(code.OpClass16)
	c.Write16(uint16(classIdx))
	c.WriteOpcode(code.OpNewInstance) // stack: [I]
	c.WriteOpcode(code.OpDup)         // stack: [I, I]
	c.WriteOpcode(code.OpLoadImmI32)
	c.Write32(7)                    // stack: [I, I, 7]
	c.WriteOpcode(code.OpSetField8)  // pops value then instance, fully consumed: stack: [I]
	c.Write8(0)
	c.WriteOpcode(code.OpGetProperty8)
	c.Write8(byte(nameIdx))
	c.WriteOpcode(code.OpReturn)
	fn := code.NewBytecodeFunction("main", 0, c.Code, c.Constants)

	m, err := run(t, fn)
	require.NoError(t, err)
	top, _ := m.Top()
	require.Equal(t, int32(7), top.I32())
}

func TestInvokeMethodResolvesThroughParentChain(t *testing.T) {
	greetChunk := code.NewChunk()
	greetChunk.WriteOpcode(code.OpLoadImmI32)
	greetChunk.Write32(1)
	greetChunk.WriteOpcode(code.OpReturn)
	greetFn := code.NewBytecodeFunction("greet", 1, greetChunk.Code, greetChunk.Constants)

	base := object.NewClass("Base", 1)
	base.AddMethod(0, greetFn.ToValue())
	derived := object.NewClass("Derived", 2)
	derived.Parent = base

	c := code.NewChunk()
	classIdx := c.AddConstant(derived.ToValue())
	c.WriteOpcode(code.OpClass16)
	c.Write16(uint16(classIdx))
	c.WriteOpcode(code.OpNewInstance)
	c.WriteOpcode(code.OpInvoke8)
	c.Write8(0)
	c.Write8(0) // 0 extra args beyond receiver
	c.WriteOpcode(code.OpReturn)
	fn := code.NewBytecodeFunction("main", 0, c.Code, c.Constants)

	m, err := run(t, fn)
	require.NoError(t, err)
	top, _ := m.Top()
	require.Equal(t, int32(1), top.I32())
}

func TestJumpIfFalseSkipsBranch(t *testing.T) {
	c := code.NewChunk()
	c.WriteOpcode(code.OpFalse)
	c.WriteOpcode(code.OpJumpIfFalse)
	patch := len(c.Code)
	c.Write16(0)
	c.WriteOpcode(code.OpLoadImmI32) // skipped
	c.Write32(1)
	c.WriteOpcode(code.OpReturn)
	target := len(c.Code)
	c.Patch16(patch, uint16(target-patch))
	c.WriteOpcode(code.OpLoadImmI32)
	c.Write32(2)
	c.WriteOpcode(code.OpReturn)
	fn := code.NewBytecodeFunction("main", 0, c.Code, c.Constants)

	m, err := run(t, fn)
	require.NoError(t, err)
	top, _ := m.Top()
	require.Equal(t, int32(2), top.I32())
}

func TestTypedAddRequiresExactWidthMatch(t *testing.T) {
	c := code.NewChunk()
	c.WriteOpcode(code.OpLoadImmI32)
	c.Write32(1)
	c.WriteOpcode(code.OpLoadImmF64)
	c.WriteF64(2)
	c.WriteOpcode(code.OpTypedAdd)
	c.Write8(byte(code.WidthI32))
	c.WriteOpcode(code.OpReturn)
	fn := code.NewBytecodeFunction("main", 0, c.Code, c.Constants)

	_, err := run(t, fn)
	require.ErrorIs(t, err, ErrTypeMismatch)
}

func TestTypedConvertI32ToF64(t *testing.T) {
	c := code.NewChunk()
	c.WriteOpcode(code.OpLoadImmI32)
	c.Write32(7)
	c.WriteOpcode(code.OpTypedConvert)
	c.Write8(byte(code.WidthI32)<<4 | byte(code.WidthF64))
	c.WriteOpcode(code.OpReturn)
	fn := code.NewBytecodeFunction("main", 0, c.Code, c.Constants)

	m, err := run(t, fn)
	require.NoError(t, err)
	top, _ := m.Top()
	require.Equal(t, value.KindF64, top.Kind)
	require.Equal(t, 7.0, top.F64())
}

func TestUnknownOpcodeIsFatal(t *testing.T) {
	fn := code.NewBytecodeFunction("main", 0, []byte{250}, nil)
	_, err := run(t, fn)
	require.ErrorIs(t, err, ErrUnknownOpCode)
}

func TestReservedPlaceholderOpcodeIsFatal(t *testing.T) {
	fn := code.NewBytecodeFunction("main", 0, []byte{byte(code.OpFinally)}, nil)
	_, err := run(t, fn)
	require.ErrorIs(t, err, ErrUnknownOpCode)
}

func TestPopFromEmptyStackIsStackUnderflow(t *testing.T) {
	fn := code.NewBytecodeFunction("main", 0, []byte{byte(code.OpPop)}, nil)
	_, err := run(t, fn)
	require.ErrorIs(t, err, ErrStackUnderflow)
}

// stubLogger records every lifecycle event it's given, for asserting
// the JIT threshold's success/fallback logging without depending on
// internal/jit (which itself imports this package).
type stubLogger struct {
	events []string
}

func (l *stubLogger) Log(event logging.Event, functionName, detail string) {
	l.events = append(l.events, event.String()+":"+functionName)
}

func TestJITDisabledByDefaultNeverSpecializes(t *testing.T) {
	fn := code.NewBytecodeFunction("loop", 0, []byte{byte(code.OpNull), byte(code.OpReturn)}, nil)
	m := New()
	for i := 0; i < 10; i++ {
		m.PushInitialFrame(fn, 0)
		require.NoError(t, m.Run())
	}
	require.False(t, fn.IsSpecialized())
}

func TestJITThresholdSpecializesOnceReached(t *testing.T) {
	fn := code.NewBytecodeFunction("hot", 0, []byte{byte(code.OpNull), byte(code.OpReturn)}, nil)
	var compiled int
	specializer := func(f *code.Function) error {
		compiled++
		f.Specialize(func(vmPtr uintptr) {
			iv := (*Interpreter)(unsafe.Pointer(vmPtr))
			iv.Frames = iv.Frames[:len(iv.Frames)-1]
			iv.push(value.Value{})
		})
		return nil
	}
	log := &stubLogger{}
	m := New(WithJIT(specializer, 3), WithLogger(log))

	for i := 0; i < 2; i++ {
		m.PushInitialFrame(fn, 0)
		require.NoError(t, m.Run())
	}
	require.False(t, fn.IsSpecialized(), "must not specialize before the threshold")

	m.PushInitialFrame(fn, 0)
	require.NoError(t, m.Run())
	require.True(t, fn.IsSpecialized())
	require.Equal(t, 1, compiled)
	require.Contains(t, log.events, logging.EventJITSpecialized.String()+":hot")

	// Already specialized: further calls must not re-invoke the specializer.
	m.PushInitialFrame(fn, 0)
	require.NoError(t, m.Run())
	require.Equal(t, 1, compiled)
}

func TestJITCompileFailureFallsBackAndLogs(t *testing.T) {
	fn := code.NewBytecodeFunction("cold", 0, []byte{byte(code.OpNull), byte(code.OpReturn)}, nil)
	boom := errors.New("unsupported opcode")
	specializer := func(f *code.Function) error { return boom }
	log := &stubLogger{}
	m := New(WithJIT(specializer, 1), WithLogger(log))

	m.PushInitialFrame(fn, 0)
	require.NoError(t, m.Run())

	require.False(t, fn.IsSpecialized())
	require.Contains(t, log.events, logging.EventJITFallback.String()+":cold")
}

func TestUnhandledExceptionIsLogged(t *testing.T) {
	excClass := object.NewClass("Boom", 1)
	c := code.NewChunk()
	classIdx := c.AddConstant(excClass.ToValue())
	c.WriteOpcode(code.OpClass16)
	c.Write16(uint16(classIdx))
	c.WriteOpcode(code.OpNewInstance)
	c.WriteOpcode(code.OpThrow)
	fn := code.NewBytecodeFunction("boom", 0, c.Code, c.Constants)

	log := &stubLogger{}
	m := New(WithLogger(log))
	m.PushInitialFrame(fn, 0)
	err := m.Run()

	var vmErr *Error
	require.ErrorAs(t, err, &vmErr)
	require.Contains(t, log.events, logging.EventUnhandledException.String()+":boom")
}
