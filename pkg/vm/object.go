package vm

import (
	"fmt"
	"sync"
)

// JObject represents a JVM object instance.
type JObject struct {
	Class *Class

	mu     sync.Mutex
	fields map[string]Value
}

// NewObject allocates an instance of class with every instance field,
// inherited ones included, set to its default value.
func NewObject(class *Class) *JObject {
	obj := &JObject{Class: class, fields: make(map[string]Value)}
	for c := class; c != nil; c = c.Super {
		for _, f := range c.instanceFields {
			if _, shadowed := obj.fields[f.Name]; !shadowed {
				obj.fields[f.Name] = ZeroValue(f.Descriptor)
			}
		}
	}
	return obj
}

func (o *JObject) ClassName() string {
	if o.Class == nil {
		return ""
	}
	return o.Class.Name
}

// GetField returns the named field, or null if the object has no such field.
func (o *JObject) GetField(name string) Value {
	o.mu.Lock()
	defer o.mu.Unlock()
	v, ok := o.fields[name]
	if !ok {
		return NullValue()
	}
	return v
}

func (o *JObject) SetField(name string, v Value) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fields[name] = v
}

func (o *JObject) String() string {
	return fmt.Sprintf("%s@%p", o.ClassName(), o)
}

// JArray represents a JVM array. Type is the array descriptor, e.g. "[I".
type JArray struct {
	Type     string
	Elements []Value
}

func NewArray(descriptor string, length int32) *JArray {
	elems := make([]Value, length)
	zero := ZeroValue(descriptor[1:])
	for i := range elems {
		elems[i] = zero
	}
	return &JArray{Type: descriptor, Elements: elems}
}

func (a *JArray) ClassName() string { return a.Type }
