package vm

import (
	"github.com/Iris-proj/iris-vm/internal/object"
	"github.com/Iris-proj/iris-vm/internal/value"
)

// defineClass registers a new class value built from name, with an
// optional parent, on top of the stack — DefineClass per spec.md
// §4.1. The assembler is responsible for having already populated
// methods/properties on the *object.Class before it becomes a
// constant; this opcode only pushes the class handle as a Value.
func (vm *Interpreter) defineClass(class *object.Class) {
	vm.push(class.ToValue())
}

// createNewInstance implements CreateNewInstance: pop a class Value,
// push a new Instance of it with every field slot initialized Null.
func (vm *Interpreter) createNewInstance() error {
	classVal, err := vm.pop()
	if err != nil {
		return err
	}
	cls, ok := object.ClassFromValue(classVal)
	if !ok {
		return ErrNonClassValue
	}
	vm.push(object.NewInstance(cls).ToValue())
	return nil
}

// checkCastObject implements CheckCastObject: requires the instance's
// class to equal or descend from the target class, per spec.md §4.3.
func (vm *Interpreter) checkCastObject(target *object.Class) error {
	top, err := vm.peek()
	if err != nil {
		return err
	}
	inst, ok := object.FromValue(top)
	if !ok || !inst.Class.IsOrDescendsFrom(target) {
		return newErr(KindTypeMismatch, "value is not an instance of %q or a descendant", target.Name)
	}
	return nil
}

// instanceOfCheck implements InstanceOfCheck: pushes a boolean, never
// raises on a non-object (spec.md §4.3).
func (vm *Interpreter) instanceOfCheck(target *object.Class) error {
	top, err := vm.pop()
	if err != nil {
		return err
	}
	inst, ok := object.FromValue(top)
	vm.push(value.Bool(ok && inst.Class.IsOrDescendsFrom(target)))
	return nil
}

// getProperty implements GetProperty(name): resolve name through the
// instance's class property table to a slot, then read that slot. Get
// on a missing property is an error (spec.md §4.1).
func (vm *Interpreter) getProperty(name string) error {
	top, err := vm.pop()
	if err != nil {
		return err
	}
	inst, ok := object.FromValue(top)
	if !ok {
		return ErrNonObjectValue
	}
	slot, ok := inst.Class.PropertySlot(name)
	if !ok {
		return newErr(KindUndefinedProperty, "no property %q on class %q", name, inst.Class.Name)
	}
	vm.push(inst.GetField(slot))
	return nil
}

// setProperty implements SetProperty(name): the instance is pushed
// before the new value, so the value is popped first and the
// assignment consumes both, leaving nothing behind on the stack.
func (vm *Interpreter) setProperty(name string) error {
	v, err := vm.pop()
	if err != nil {
		return err
	}
	instVal, err := vm.pop()
	if err != nil {
		return err
	}
	inst, ok := object.FromValue(instVal)
	if !ok {
		return ErrNonObjectValue
	}
	slot, ok := inst.Class.PropertySlot(name)
	if !ok {
		return newErr(KindUndefinedProperty, "no property %q on class %q", name, inst.Class.Name)
	}
	inst.SetField(slot, v)
	return nil
}

// getField implements the raw-slot GetField(slot) family: get on an
// out-of-range slot is a fatal error (spec.md §4.3).
func (vm *Interpreter) getField(slot int) error {
	top, err := vm.pop()
	if err != nil {
		return err
	}
	inst, ok := object.FromValue(top)
	if !ok {
		return ErrNonObjectValue
	}
	if slot < 0 || slot >= len(inst.Fields) {
		return newErr(KindUndefinedProperty, "field slot %d out of range for class %q", slot, inst.Class.Name)
	}
	vm.push(inst.GetField(slot))
	return nil
}

// setField implements the raw-slot SetField(slot) family, popping the
// value pushed on top of the instance and consuming both (see
// setProperty). Per spec.md §4.3: "Set-field grows the field vector
// only up to the declared slot — out-of-range writes are undefined and
// must be a fatal error rather than silent growth."
func (vm *Interpreter) setField(slot int) error {
	v, err := vm.pop()
	if err != nil {
		return err
	}
	instVal, err := vm.pop()
	if err != nil {
		return err
	}
	inst, ok := object.FromValue(instVal)
	if !ok {
		return ErrNonObjectValue
	}
	if slot < 0 || slot >= len(inst.Fields) {
		return newErr(KindUndefinedProperty, "field slot %d out of range for class %q", slot, inst.Class.Name)
	}
	inst.SetField(slot, v)
	return nil
}
