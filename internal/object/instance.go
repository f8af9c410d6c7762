package object

import "github.com/Iris-proj/iris-vm/internal/value"

// Instance is a class handle plus an ordered field vector (spec.md
// §3). Field access is by integer slot; Fields is sized to its
// class's FieldCount at construction and never grows past it — an
// out-of-range SetField is a fatal error in internal/vm, not silent
// growth, per spec.md §4.3.
type Instance struct {
	Class  *Class
	Fields []value.Value
}

// NewInstance allocates an Instance with Fields sized to class's
// FieldCount, every slot initialized to Null.
func NewInstance(class *Class) *Instance {
	fields := make([]value.Value, class.FieldCount)
	for i := range fields {
		fields[i] = value.Null()
	}
	return &Instance{Class: class, Fields: fields}
}

// GetField returns the value at field slot. Callers must bounds-check
// against len(Fields) first; internal/vm converts an out-of-range
// access into a fatal error before calling this.
func (i *Instance) GetField(slot int) value.Value {
	return i.Fields[slot]
}

// SetField stores v at field slot.
func (i *Instance) SetField(slot int, v value.Value) {
	i.Fields[slot] = v
}

// ToValue wraps i as a KindObject Value.
func (i *Instance) ToValue() value.Value {
	return value.FromHeap(value.KindObject, i)
}

// FromValue unwraps a KindObject Value back to its Instance. ok is
// false if v is not a KindObject Value.
func FromValue(v value.Value) (*Instance, bool) {
	if v.Kind != value.KindObject {
		return nil, false
	}
	inst, ok := v.Heap().(*Instance)
	return inst, ok
}

// ToValue wraps c as a KindClass Value.
func (c *Class) ToValue() value.Value {
	return value.FromHeap(value.KindClass, c)
}

// ClassFromValue unwraps a KindClass Value back to its Class.
func ClassFromValue(v value.Value) (*Class, bool) {
	if v.Kind != value.KindClass {
		return nil, false
	}
	cls, ok := v.Heap().(*Class)
	return cls, ok
}
