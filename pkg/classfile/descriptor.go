package classfile

import (
	"fmt"
	"strings"
)

// MethodType is a parsed method descriptor.
type MethodType struct {
	Params []string // field descriptors, e.g. "I", "Ljava/lang/String;", "[[I"
	Return string   // field descriptor or "V"
}

// ParseMethodDescriptor splits a descriptor such as "(ILjava/lang/String;)V".
func ParseMethodDescriptor(descriptor string) (*MethodType, error) {
	if !strings.HasPrefix(descriptor, "(") {
		return nil, fmt.Errorf("invalid method descriptor: %s", descriptor)
	}
	end := strings.IndexByte(descriptor, ')')
	if end == -1 {
		return nil, fmt.Errorf("invalid method descriptor: %s", descriptor)
	}

	mt := &MethodType{Return: descriptor[end+1:]}
	params := descriptor[1:end]
	for len(params) > 0 {
		n, err := fieldDescriptorLen(params)
		if err != nil {
			return nil, fmt.Errorf("%w in %s", err, descriptor)
		}
		mt.Params = append(mt.Params, params[:n])
		params = params[n:]
	}
	if mt.Return != "V" {
		if n, err := fieldDescriptorLen(mt.Return); err != nil || n != len(mt.Return) {
			return nil, fmt.Errorf("invalid return type in %s", descriptor)
		}
	}
	return mt, nil
}

// fieldDescriptorLen returns the length of the field descriptor at the start
// of s.
func fieldDescriptorLen(s string) (int, error) {
	i := 0
	for i < len(s) && s[i] == '[' {
		i++
	}
	if i >= len(s) {
		return 0, fmt.Errorf("truncated type descriptor")
	}
	switch s[i] {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		return i + 1, nil
	case 'L':
		semi := strings.IndexByte(s[i:], ';')
		if semi == -1 {
			return 0, fmt.Errorf("unterminated class type descriptor")
		}
		return i + semi + 1, nil
	default:
		return 0, fmt.Errorf("invalid type descriptor char '%c'", s[i])
	}
}

// SlotSize returns the number of local variable slots a value of the given
// field descriptor occupies: 2 for long and double, 1 otherwise.
func SlotSize(fieldDescriptor string) int {
	if fieldDescriptor == "J" || fieldDescriptor == "D" {
		return 2
	}
	return 1
}

// ArgSlots returns the local variable slots taken by the parameters, not
// counting the receiver.
func (mt *MethodType) ArgSlots() int {
	n := 0
	for _, p := range mt.Params {
		n += SlotSize(p)
	}
	return n
}

// IsVoid reports whether the method returns nothing.
func (mt *MethodType) IsVoid() bool { return mt.Return == "V" }

// ClassOf returns the internal class name of a reference field descriptor
// ("Lfoo/Bar;" -> "foo/Bar"), or "" for primitives and arrays.
func ClassOf(fieldDescriptor string) string {
	if strings.HasPrefix(fieldDescriptor, "L") && strings.HasSuffix(fieldDescriptor, ";") {
		return fieldDescriptor[1 : len(fieldDescriptor)-1]
	}
	return ""
}
