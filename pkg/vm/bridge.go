package vm

import (
	"fmt"
)

// ToGo converts an interpreter value to the Go value advice sees for a
// field descriptor: int32 for int-like types, int64, float32, float64, or the
// referenced object (nil for null and void).
func (vm *VM) ToGo(v Value, descriptor string) any {
	if descriptor == "" || descriptor == "V" {
		return nil
	}
	switch descriptor[0] {
	case 'B', 'C', 'I', 'S', 'Z':
		return v.Int
	case 'J':
		return v.Long
	case 'F':
		return v.Float
	case 'D':
		return v.Double
	}
	if v.IsNull() {
		return nil
	}
	return v.Ref
}

// FromGo converts a Go value back to an interpreter value of the given field
// descriptor. Go strings become interned Java strings.
func (vm *VM) FromGo(x any, descriptor string) (Value, error) {
	if descriptor == "" || descriptor == "V" {
		return Value{}, nil
	}
	switch descriptor[0] {
	case 'B', 'C', 'I', 'S', 'Z':
		switch n := x.(type) {
		case int32:
			return IntValue(n), nil
		case int:
			return IntValue(int32(n)), nil
		case int8:
			return IntValue(int32(n)), nil
		case int16:
			return IntValue(int32(n)), nil
		case uint16:
			return IntValue(int32(n)), nil
		case bool:
			if n {
				return IntValue(1), nil
			}
			return IntValue(0), nil
		case nil:
			return IntValue(0), nil
		}
	case 'J':
		switch n := x.(type) {
		case int64:
			return LongValue(n), nil
		case int:
			return LongValue(int64(n)), nil
		case int32:
			return LongValue(int64(n)), nil
		case nil:
			return LongValue(0), nil
		}
	case 'F':
		switch n := x.(type) {
		case float32:
			return FloatValue(n), nil
		case float64:
			return FloatValue(float32(n)), nil
		case nil:
			return FloatValue(0), nil
		}
	case 'D':
		switch n := x.(type) {
		case float64:
			return DoubleValue(n), nil
		case float32:
			return DoubleValue(float64(n)), nil
		case nil:
			return DoubleValue(0), nil
		}
	default:
		switch r := x.(type) {
		case nil:
			return NullValue(), nil
		case string:
			return RefValue(vm.Intern(r)), nil
		case Value:
			return r, nil
		}
		return RefValue(x), nil
	}
	return Value{}, fmt.Errorf("cannot convert %T to %s", x, descriptor)
}
