package vm

import (
	"fmt"

	"github.com/Iris-proj/iris-vm/internal/code"
	"github.com/Iris-proj/iris-vm/internal/object"
	"github.com/Iris-proj/iris-vm/internal/value"
)

// step decodes and executes exactly one instruction from frame,
// advancing frame.IP past it unless the instruction itself sets IP
// (jumps, calls, throws). This is the fetch-decode-dispatch loop
// spec.md §4.2 requires; every opcode family in §4.1 is a case below.
func (vm *Interpreter) step(frame *CallFrame) error {
	c := frame.Fn.Code
	if frame.IP < 0 || frame.IP >= len(c) {
		return newErr(KindInvalidOperand, "IP %d past end of function %q with no ReturnFromFunction", frame.IP, frame.Fn.Name)
	}
	op := code.Opcode(c[frame.IP])
	ip := frame.IP + 1

	if op.IsReservedPlaceholder() {
		return newErr(KindUnknownOpCode, "opcode %s is a reserved placeholder", op)
	}

	switch op {

	// ---- stack shaping ----
	case code.OpConstant8:
		idx := int(c[ip])
		ip++
		if idx >= len(frame.Fn.Constants) {
			return ErrInvalidOperand
		}
		vm.push(frame.Fn.Constants[idx])
	case code.OpConstant16:
		idx := int(code.ReadU16(c, ip))
		ip += 2
		if idx >= len(frame.Fn.Constants) {
			return ErrInvalidOperand
		}
		vm.push(frame.Fn.Constants[idx])
	case code.OpNull:
		vm.push(value.Null())
	case code.OpTrue:
		vm.push(value.Bool(true))
	case code.OpFalse:
		vm.push(value.Bool(false))
	case code.OpPop:
		if _, err := vm.pop(); err != nil {
			return err
		}
	case code.OpDup:
		top, err := vm.peek()
		if err != nil {
			return err
		}
		vm.push(top)
	case code.OpSwap:
		n := len(vm.Stack)
		if n < 2 {
			return ErrStackUnderflow
		}
		vm.Stack[n-1], vm.Stack[n-2] = vm.Stack[n-2], vm.Stack[n-1]
	case code.OpRotateTop3:
		n := len(vm.Stack)
		if n < 3 {
			return ErrStackUnderflow
		}
		vm.Stack[n-3], vm.Stack[n-2], vm.Stack[n-1] = vm.Stack[n-1], vm.Stack[n-3], vm.Stack[n-2]
	case code.OpSwapTop2Pair:
		n := len(vm.Stack)
		if n < 4 {
			return ErrStackUnderflow
		}
		vm.Stack[n-4], vm.Stack[n-3], vm.Stack[n-2], vm.Stack[n-1] =
			vm.Stack[n-2], vm.Stack[n-1], vm.Stack[n-4], vm.Stack[n-3]
	case code.OpPick:
		offset := int(c[ip])
		ip++
		v, err := vm.peekAt(offset)
		if err != nil {
			return err
		}
		vm.push(v)
	case code.OpDropN:
		n := int(c[ip])
		ip++
		if len(vm.Stack) < n {
			return ErrStackUnderflow
		}
		vm.Stack = vm.Stack[:len(vm.Stack)-n]
	case code.OpDupN:
		n := int(c[ip])
		ip++
		if len(vm.Stack) < n {
			return ErrStackUnderflow
		}
		vm.Stack = append(vm.Stack, vm.Stack[len(vm.Stack)-n:]...)
	case code.OpSwapNPairs:
		n := int(c[ip])
		ip++
		if len(vm.Stack) < 2*n {
			return ErrStackUnderflow
		}
		top := len(vm.Stack)
		for i := 0; i < n; i++ {
			vm.Stack[top-2*n+i], vm.Stack[top-n+i] = vm.Stack[top-n+i], vm.Stack[top-2*n+i]
		}
	case code.OpRollN:
		n := int(c[ip])
		ip++
		if len(vm.Stack) < n || n == 0 {
			return ErrStackUnderflow
		}
		window := vm.Stack[len(vm.Stack)-n:]
		last := window[n-1]
		copy(window[1:], window[:n-1])
		window[0] = last
	case code.OpLoadImmI8:
		v := int8(c[ip])
		ip++
		vm.push(value.I8(v))
	case code.OpLoadImmI16:
		v := int16(code.ReadU16(c, ip))
		ip += 2
		vm.push(value.I16(v))
	case code.OpLoadImmI32:
		v := int32(code.ReadU32(c, ip))
		ip += 4
		vm.push(value.I32(v))
	case code.OpLoadImmI64:
		v := int64(code.ReadU64(c, ip))
		ip += 8
		vm.push(value.I64(v))
	case code.OpLoadImmF32:
		v := code.ReadF32(c, ip)
		ip += 4
		vm.push(value.F32(v))
	case code.OpLoadImmF64:
		v := code.ReadF64(c, ip)
		ip += 8
		vm.push(value.F64(v))

	// ---- locals & globals ----
	case code.OpGetLocal8, code.OpGetLocal16:
		slot, n := decodeSlot(op, code.OpGetLocal8, c, ip)
		ip += n
		v, err := vm.stackAt(frame.StackBase + slot)
		if err != nil {
			return err
		}
		vm.push(v)
	case code.OpSetLocal8, code.OpSetLocal16:
		slot, n := decodeSlot(op, code.OpSetLocal8, c, ip)
		ip += n
		v, err := vm.peek()
		if err != nil {
			return err
		}
		idx := frame.StackBase + slot
		if idx < 0 || idx >= len(vm.Stack) {
			return ErrInvalidOperand
		}
		vm.Stack[idx] = v
	case code.OpGetGlobal8, code.OpGetGlobal16:
		slot, n := decodeSlot(op, code.OpGetGlobal8, c, ip)
		ip += n
		if slot < 0 || slot >= len(vm.Globals) {
			return newErr(KindUndefinedVariable, "global slot %d", slot)
		}
		vm.push(vm.Globals[slot])
	case code.OpDefineGlobal:
		slot := int(c[ip])
		ip++
		v, err := vm.pop()
		if err != nil {
			return err
		}
		vm.RegisterGlobal(slot, v)
	case code.OpSetGlobal8, code.OpSetGlobal16:
		slot, n := decodeSlot(op, code.OpSetGlobal8, c, ip)
		ip += n
		if slot < 0 || slot >= len(vm.Globals) {
			return newErr(KindUndefinedVariable, "set of undefined global slot %d", slot)
		}
		v, err := vm.peek()
		if err != nil {
			return err
		}
		vm.Globals[slot] = v

	// ---- property / field / map-entry access ----
	case code.OpGetProperty8, code.OpGetProperty16:
		name, n, err := vm.decodeStrConstant(frame, op, code.OpGetProperty8, c, ip)
		if err != nil {
			return err
		}
		ip += n
		if err := vm.getProperty(name); err != nil {
			return err
		}
	case code.OpSetProperty8, code.OpSetProperty16:
		name, n, err := vm.decodeStrConstant(frame, op, code.OpSetProperty8, c, ip)
		if err != nil {
			return err
		}
		ip += n
		if err := vm.setProperty(name); err != nil {
			return err
		}
	case code.OpGetField8, code.OpGetField16:
		slot, n := decodeSlot(op, code.OpGetField8, c, ip)
		ip += n
		if err := vm.getField(slot); err != nil {
			return err
		}
	case code.OpSetField8, code.OpSetField16:
		slot, n := decodeSlot(op, code.OpSetField8, c, ip)
		ip += n
		if err := vm.setField(slot); err != nil {
			return err
		}
	case code.OpGetMapEntry8, code.OpGetMapEntry16:
		key, n, err := vm.decodeStrConstant(frame, op, code.OpGetMapEntry8, c, ip)
		if err != nil {
			return err
		}
		ip += n
		if err := vm.getMapEntry(key); err != nil {
			return err
		}
	case code.OpSetMapEntry8, code.OpSetMapEntry16:
		key, n, err := vm.decodeStrConstant(frame, op, code.OpSetMapEntry8, c, ip)
		if err != nil {
			return err
		}
		ip += n
		if err := vm.setMapEntry(key); err != nil {
			return err
		}
	case code.OpNewInstance:
		if err := vm.createNewInstance(); err != nil {
			return err
		}
	case code.OpClass8, code.OpClass16:
		idx, n := decodeSlot(op, code.OpClass8, c, ip)
		ip += n
		cls, err := vm.classConstant(frame, idx)
		if err != nil {
			return err
		}
		vm.defineClass(cls)
	case code.OpCheckCast:
		idx := int(code.ReadU16(c, ip))
		ip += 2
		cls, err := vm.classConstant(frame, idx)
		if err != nil {
			return err
		}
		if err := vm.checkCastObject(cls); err != nil {
			return err
		}
	case code.OpInstanceOf:
		idx := int(code.ReadU16(c, ip))
		ip += 2
		cls, err := vm.classConstant(frame, idx)
		if err != nil {
			return err
		}
		if err := vm.instanceOfCheck(cls); err != nil {
			return err
		}
	case code.OpInvoke8, code.OpInvoke16:
		slot, argc, n, err := decodeSlotAndCount(op, code.OpInvoke8, c, ip)
		if err != nil {
			return err
		}
		ip += n
		frame.IP = ip
		if err := vm.InvokeMethod(slot, argc); err != nil {
			return err
		}
		return nil
	case code.OpGetSuper8, code.OpGetSuper16:
		slot, n := decodeSlot(op, code.OpGetSuper8, c, ip)
		ip += n
		if err := vm.GetSuperClassMethod(slot); err != nil {
			return err
		}

	// ---- control flow ----
	case code.OpJump:
		offset := int(code.ReadU16(c, ip))
		ip = frame.IP + 1 + offset
	case code.OpShortJump:
		delta := int(int8(c[ip]))
		ip = frame.IP + delta
	case code.OpJumpIfFalse, code.OpJumpIfTrue, code.OpJumpIfNull, code.OpJumpIfNonNull:
		offset := int(code.ReadU16(c, ip))
		ip += 2
		cond, err := vm.pop()
		if err != nil {
			return err
		}
		var take bool
		switch op {
		case code.OpJumpIfFalse:
			take = !cond.IsTruthy()
		case code.OpJumpIfTrue:
			take = cond.IsTruthy()
		case code.OpJumpIfNull:
			take = cond.Kind == value.KindNull
		case code.OpJumpIfNonNull:
			take = cond.Kind != value.KindNull
		}
		if take {
			ip = frame.IP + 1 + offset
		}
	case code.OpLoop:
		offset := int(code.ReadU16(c, ip))
		ip = frame.IP + 1 - offset
	case code.OpCall:
		n := int(c[ip])
		ip++
		frame.IP = ip
		if err := vm.CallFunction(n); err != nil {
			return err
		}
		return nil // CallFunction pushed (or ran to completion) a new frame
	case code.OpTailCall:
		n := int(c[ip])
		ip++
		frame.IP = ip
		if err := vm.TailCallFunction(n); err != nil {
			return err
		}
		return nil // TailCallFunction already reset frame.IP to 0
	case code.OpReturn:
		return vm.ReturnFromFunction()
	case code.OpTableSwitch:
		low := int(int32(code.ReadU32(c, ip)))
		ip += 4
		high := int(int32(code.ReadU32(c, ip)))
		ip += 4
		defaultOff := int(code.ReadU16(c, ip))
		ip += 2
		tableStart := ip
		v, err := vm.pop()
		if err != nil {
			return err
		}
		key := int(v.I32())
		if key < low || key > high {
			ip = frame.IP + 1 + defaultOff
		} else {
			target := int(code.ReadU16(c, tableStart+(key-low)*2))
			ip = frame.IP + 1 + target
		}
	case code.OpLookupSwitch:
		count := int(code.ReadU16(c, ip))
		ip += 2
		defaultOff := int(code.ReadU16(c, ip))
		ip += 2
		tableStart := ip
		v, err := vm.pop()
		if err != nil {
			return err
		}
		key := int(v.I32())
		matched := -1
		lo, hi := 0, count-1
		for lo <= hi {
			mid := (lo + hi) / 2
			entryOff := tableStart + mid*6
			k := int(int32(code.ReadU32(c, entryOff)))
			switch {
			case k == key:
				matched = mid
				lo = hi + 1
			case k < key:
				lo = mid + 1
			default:
				hi = mid - 1
			}
		}
		if matched == -1 {
			ip = frame.IP + 1 + defaultOff
		} else {
			target := int(code.ReadU16(c, tableStart+matched*6+4))
			ip = frame.IP + 1 + target
		}
	case code.OpRangeSwitch:
		count := int(code.ReadU16(c, ip))
		ip += 2
		defaultOff := int(code.ReadU16(c, ip))
		ip += 2
		tableStart := ip
		v, err := vm.pop()
		if err != nil {
			return err
		}
		key := int(v.I32())
		matchOff := -1
		for i := 0; i < count; i++ {
			entry := tableStart + i*10
			lo := int(int32(code.ReadU32(c, entry)))
			hi := int(int32(code.ReadU32(c, entry+4)))
			if key >= lo && key <= hi {
				matchOff = int(code.ReadU16(c, entry+8))
				break
			}
		}
		if matchOff == -1 {
			ip = frame.IP + 1 + defaultOff
		} else {
			ip = frame.IP + 1 + matchOff
		}
	case code.OpCmpBranchI32LT:
		offset := int(code.ReadU16(c, ip))
		ip += 2
		b, err := vm.pop()
		if err != nil {
			return err
		}
		a, err := vm.pop()
		if err != nil {
			return err
		}
		if a.Kind != value.KindI32 || b.Kind != value.KindI32 {
			return ErrTypeMismatch
		}
		if a.I32() < b.I32() {
			ip = frame.IP + 1 + offset
		}

	// ---- logical & comparison ----
	case code.OpEqual, code.OpNotEqual:
		b, err := vm.pop()
		if err != nil {
			return err
		}
		a, err := vm.pop()
		if err != nil {
			return err
		}
		eq := value.Equal(a, b)
		if op == code.OpNotEqual {
			eq = !eq
		}
		vm.push(value.Bool(eq))
	case code.OpGreater, code.OpLess, code.OpGreaterEqual, code.OpLessEqual:
		b, err := vm.pop()
		if err != nil {
			return err
		}
		a, err := vm.pop()
		if err != nil {
			return err
		}
		cmp, err := compareNumeric(a, b)
		if err != nil {
			return err
		}
		var res bool
		switch op {
		case code.OpGreater:
			res = cmp > 0
		case code.OpLess:
			res = cmp < 0
		case code.OpGreaterEqual:
			res = cmp >= 0
		case code.OpLessEqual:
			res = cmp <= 0
		}
		vm.push(value.Bool(res))
	case code.OpLogicalAnd, code.OpLogicalOr:
		b, err := vm.pop()
		if err != nil {
			return err
		}
		a, err := vm.pop()
		if err != nil {
			return err
		}
		var res bool
		if op == code.OpLogicalAnd {
			res = a.IsTruthy() && b.IsTruthy()
		} else {
			res = a.IsTruthy() || b.IsTruthy()
		}
		vm.push(value.Bool(res))
	case code.OpLogicalNot:
		a, err := vm.pop()
		if err != nil {
			return err
		}
		vm.push(value.Bool(!a.IsTruthy()))
	case code.OpBooleanAnd, code.OpBooleanOr:
		b, err := vm.pop()
		if err != nil {
			return err
		}
		a, err := vm.pop()
		if err != nil {
			return err
		}
		if a.Kind != value.KindBool || b.Kind != value.KindBool {
			return ErrTypeMismatch
		}
		var res bool
		if op == code.OpBooleanAnd {
			res = a.Bool() && b.Bool()
		} else {
			res = a.Bool() || b.Bool()
		}
		vm.push(value.Bool(res))

	// ---- exceptions ----
	case code.OpThrow:
		return vm.ThrowException()
	case code.OpTry:
		offset := int(code.ReadU16(c, ip))
		ip += 2
		if err := vm.BeginTryBlock(offset); err != nil {
			return err
		}
	case code.OpEndTry:
		if err := vm.EndTryBlock(); err != nil {
			return err
		}
	case code.OpCatch:
		idx := int(code.ReadU16(c, ip))
		ip += 2
		cls, err := vm.classConstant(frame, idx)
		if err != nil {
			return err
		}
		ipBefore := frame.IP
		if err := vm.CatchException(cls); err != nil {
			return err
		}
		if frame.IP != ipBefore {
			// CatchException re-threw and already redirected control
			// flow to a handler; don't clobber it below.
			return nil
		}

	// ---- misc ----
	case code.OpPrint:
		top, err := vm.pop()
		if err != nil {
			return err
		}
		fmt.Println(top.String())
	case code.OpNop:
		// no-op

	default:
		if handled, err := vm.stepArithFamily(op, c, &ip); err != nil {
			return err
		} else if handled {
			frame.IP = ip
			return nil
		}
		if handled, err := vm.stepCollectionFamily(op, c, &ip); err != nil {
			return err
		} else if handled {
			frame.IP = ip
			return nil
		}
		return newErr(KindUnknownOpCode, "opcode %d (%s)", byte(op), op)
	}

	frame.IP = ip
	return nil
}

// decodeSlot reads the slot/index operand of an 8-or-16-bit opcode
// pair and returns (value, bytes consumed). eightBit is the family's
// OpXxx8 member; op is the actual opcode dispatched.
func decodeSlot(op, eightBit code.Opcode, c []byte, ip int) (int, int) {
	if op == eightBit {
		return int(c[ip]), 1
	}
	return int(code.ReadU16(c, ip)), 2
}

// decodeSlotAndCount reads a (slot, argCount) pair as used by
// Invoke8/16: slot in the narrow/wide form immediately followed by a
// single argument-count byte.
func decodeSlotAndCount(op, eightBit code.Opcode, c []byte, ip int) (slot, argc, n int, err error) {
	slot, n = decodeSlot(op, eightBit, c, ip)
	argc = int(c[ip+n])
	n++
	return slot, argc, n, nil
}

// decodeStrConstant reads a name/key constant index (8 or 16 bit) and
// resolves it to the underlying Go string, erroring if the constant
// isn't a Str.
func (vm *Interpreter) decodeStrConstant(frame *CallFrame, op, eightBit code.Opcode, c []byte, ip int) (string, int, error) {
	idx, n := decodeSlot(op, eightBit, c, ip)
	if idx < 0 || idx >= len(frame.Fn.Constants) {
		return "", n, ErrInvalidOperand
	}
	cv := frame.Fn.Constants[idx]
	if cv.Kind != value.KindStr {
		return "", n, ErrInvalidOperand
	}
	return cv.StrCell().S, n, nil
}

// classConstant resolves constant index idx in frame's pool to a
// *object.Class, for CheckCastObject/InstanceOfCheck/Class8/16.
func (vm *Interpreter) classConstant(frame *CallFrame, idx int) (*object.Class, error) {
	if idx < 0 || idx >= len(frame.Fn.Constants) {
		return nil, ErrInvalidOperand
	}
	cls, ok := object.ClassFromValue(frame.Fn.Constants[idx])
	if !ok {
		return nil, ErrNonClassValue
	}
	return cls, nil
}

// stackAt reads the operand stack at an absolute index, used by
// GetLocal (stack_base + slot addressing per spec.md §4.2).
func (vm *Interpreter) stackAt(idx int) (value.Value, error) {
	if idx < 0 || idx >= len(vm.Stack) {
		return value.Value{}, ErrInvalidOperand
	}
	return vm.Stack[idx], nil
}
