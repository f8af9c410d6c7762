package vm

import "github.com/Iris-proj/iris-vm/internal/value"

// newArray implements CreateNewArray(n): pop n elements (in reverse
// order, restoring source order) and push a new Array Value.
func (vm *Interpreter) newArray(n int) error {
	elems := make([]value.Value, n)
	for i := n - 1; i >= 0; i-- {
		v, err := vm.pop()
		if err != nil {
			return err
		}
		elems[i] = v
	}
	vm.push(value.FromArray(&value.Array{Elems: elems}))
	return nil
}

// getArrayIndex implements the bounds-checked array get (B1): error
// on out-of-range.
func (vm *Interpreter) getArrayIndex(idx int) error {
	top, err := vm.pop()
	if err != nil {
		return err
	}
	if top.Kind != value.KindArray {
		return ErrNonObjectValue
	}
	arr := top.ArrayCell()
	if idx < 0 || idx >= len(arr.Elems) {
		return ErrIndexOutOfBounds
	}
	vm.push(arr.Elems[idx])
	return nil
}

// setArrayIndex implements the auto-extending array set (B2): indices
// at or beyond the current length grow the array, new cells Null. The
// index is decoded by the caller (it may come from an immediate or a
// popped runtime value); the array itself is the only operand left to
// pop here, and v is consumed fully — nothing is pushed back.
func (vm *Interpreter) setArrayIndex(idx int, v value.Value) error {
	arrVal, err := vm.pop()
	if err != nil {
		return err
	}
	if arrVal.Kind != value.KindArray {
		return ErrNonObjectValue
	}
	arr := arrVal.ArrayCell()
	if idx < 0 {
		return ErrIndexOutOfBounds
	}
	for len(arr.Elems) <= idx {
		arr.Elems = append(arr.Elems, value.Null())
	}
	arr.Elems[idx] = v
	return nil
}

// arrayLen implements GetArrayLength.
func (vm *Interpreter) arrayLen() error {
	top, err := vm.pop()
	if err != nil {
		return err
	}
	if top.Kind != value.KindArray {
		return ErrNonObjectValue
	}
	vm.push(value.I32(int32(len(top.ArrayCell().Elems))))
	return nil
}

// resizeArray implements ResizeArray(newLen): pads with Null, or
// truncates if shrinking.
func (vm *Interpreter) resizeArray(newLen int) error {
	top, err := vm.pop()
	if err != nil {
		return err
	}
	if top.Kind != value.KindArray {
		return ErrNonObjectValue
	}
	if newLen < 0 {
		return ErrIndexOutOfBounds
	}
	arr := top.ArrayCell()
	if newLen <= len(arr.Elems) {
		arr.Elems = arr.Elems[:newLen]
	} else {
		for len(arr.Elems) < newLen {
			arr.Elems = append(arr.Elems, value.Null())
		}
	}
	return nil
}

// newMap implements CreateNewMap(n): pop n key/value pairs (key then
// value, pushed in that order so they pop value-first) and push a new
// Map Value. Keys must be strings (NonStringKey otherwise).
func (vm *Interpreter) newMap(n int) error {
	entries := make(map[string]value.Value, n)
	for i := 0; i < n; i++ {
		v, err := vm.pop()
		if err != nil {
			return err
		}
		k, err := vm.pop()
		if err != nil {
			return err
		}
		if k.Kind != value.KindStr {
			return ErrNonStringKey
		}
		entries[k.StrCell().S] = v
	}
	vm.push(value.FromMap(&value.Map{Entries: entries}))
	return nil
}

// getMapEntry implements the name-indexed map-entry get: get on a
// missing key yields Null (spec.md §4.1), unlike the property family.
func (vm *Interpreter) getMapEntry(key string) error {
	top, err := vm.pop()
	if err != nil {
		return err
	}
	if top.Kind != value.KindMap {
		return ErrNonObjectValue
	}
	v, ok := top.MapCell().Entries[key]
	if !ok {
		v = value.Null()
	}
	vm.push(v)
	return nil
}

// setMapEntry implements the name-indexed map-entry set: the map is
// pushed before the value, so the value is popped first and the
// assignment consumes both.
func (vm *Interpreter) setMapEntry(key string) error {
	v, err := vm.pop()
	if err != nil {
		return err
	}
	mapVal, err := vm.pop()
	if err != nil {
		return err
	}
	if mapVal.Kind != value.KindMap {
		return ErrNonObjectValue
	}
	mapVal.MapCell().Entries[key] = v
	return nil
}

// mapContains implements Contains: pop a key Value, push a bool.
func (vm *Interpreter) mapContains() error {
	keyVal, err := vm.pop()
	if err != nil {
		return err
	}
	mapVal, err := vm.pop()
	if err != nil {
		return err
	}
	if mapVal.Kind != value.KindMap {
		return ErrNonObjectValue
	}
	if keyVal.Kind != value.KindStr {
		return ErrNonStringKey
	}
	_, ok := mapVal.MapCell().Entries[keyVal.StrCell().S]
	vm.push(value.Bool(ok))
	return nil
}

// mapRemove implements Remove: returns the removed value or Null.
func (vm *Interpreter) mapRemove() error {
	keyVal, err := vm.pop()
	if err != nil {
		return err
	}
	mapVal, err := vm.pop()
	if err != nil {
		return err
	}
	if mapVal.Kind != value.KindMap {
		return ErrNonObjectValue
	}
	if keyVal.Kind != value.KindStr {
		return ErrNonStringKey
	}
	entries := mapVal.MapCell().Entries
	v, ok := entries[keyVal.StrCell().S]
	if !ok {
		v = value.Null()
	} else {
		delete(entries, keyVal.StrCell().S)
	}
	vm.push(v)
	return nil
}

// mapGetOrDefault implements GetOrDefault: pop default, key, map; push
// the stored value or the default.
func (vm *Interpreter) mapGetOrDefault() error {
	def, err := vm.pop()
	if err != nil {
		return err
	}
	keyVal, err := vm.pop()
	if err != nil {
		return err
	}
	mapVal, err := vm.pop()
	if err != nil {
		return err
	}
	if mapVal.Kind != value.KindMap {
		return ErrNonObjectValue
	}
	if keyVal.Kind != value.KindStr {
		return ErrNonStringKey
	}
	v, ok := mapVal.MapCell().Entries[keyVal.StrCell().S]
	if !ok {
		v = def
	}
	vm.push(v)
	return nil
}
