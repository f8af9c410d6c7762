// Package object implements the IRIS class/instance model: single
// inheritance, slot-indexed methods and fields, and name-to-slot
// property resolution.
package object

import "github.com/Iris-proj/iris-vm/internal/value"

// Class is the shared, heap-allocated class handle described in
// spec.md §3: a name, an integer type-id, an optional parent, an
// ordered method table indexed by method slot, and a mapping from
// property name to property slot. Method and field storage are both
// slot-indexed per spec.md §4.3, with a name-to-slot index layered on
// top for the property vocabulary.
type Class struct {
	Name   string
	TypeID int

	Parent *Class

	// Methods is indexed by method slot; a nil entry means the slot
	// is declared (by width) but not yet assigned.
	Methods []value.Value

	// Properties maps a property name to its field slot. Populated at
	// class-definition time; property (name-indexed) opcodes resolve
	// through this map to reuse the same slotted field access as the
	// raw-slot opcodes, per the Open Question resolution recorded in
	// DESIGN.md.
	Properties map[string]int

	// FieldCount is the number of field slots every Instance of this
	// class carries, fixed at construction time per spec.md §4.3.
	FieldCount int
}

// NewClass allocates an empty class with no parent.
func NewClass(name string, typeID int) *Class {
	return &Class{
		Name:       name,
		TypeID:     typeID,
		Properties: make(map[string]int),
	}
}

// AddMethod stores fn at method slot, growing the method table with
// nil entries as needed.
func (c *Class) AddMethod(slot int, fn value.Value) {
	for len(c.Methods) <= slot {
		c.Methods = append(c.Methods, value.Value{})
	}
	c.Methods[slot] = fn
}

// FindMethod resolves method slot in c or the nearest ancestor that
// defines it, per spec.md §4.3: "Method resolution on slot s in class
// C returns C.methods[s] if present; otherwise recurses into
// C.parent." Returns ok=false if no class in the chain defines slot.
func (c *Class) FindMethod(slot int) (fn value.Value, ok bool) {
	for cur := c; cur != nil; cur = cur.Parent {
		if slot < len(cur.Methods) {
			if m := cur.Methods[slot]; m.Kind == value.KindFunction {
				return m, true
			}
		}
	}
	return value.Value{}, false
}

// AddProperty declares name as resolving to field slot.
func (c *Class) AddProperty(name string, slot int) {
	c.Properties[name] = slot
	if slot+1 > c.FieldCount {
		c.FieldCount = slot + 1
	}
}

// PropertySlot resolves a property name to its field slot.
func (c *Class) PropertySlot(name string) (slot int, ok bool) {
	slot, ok = c.Properties[name]
	return
}

// IsOrDescendsFrom reports whether c is target or a descendant of
// target, walking the parent chain — the shared predicate behind
// CheckCastObject and CatchException's class-match test (spec.md
// §4.3, §4.4). Identity is by pointer, per spec.md's "Class-id
// equality is by identity of the class handle."
func (c *Class) IsOrDescendsFrom(target *Class) bool {
	for cur := c; cur != nil; cur = cur.Parent {
		if cur == target {
			return true
		}
	}
	return false
}
