package vm

import (
	"encoding/binary"
	"fmt"

	"github.com/daimatz/jweave/pkg/classfile"
)

// ValueType represents the type of a Value on the stack or in local variables.
type ValueType int

const (
	TypeInt ValueType = iota
	TypeLong
	TypeFloat
	TypeDouble
	TypeRef
	TypeNull
)

// Value represents a value on the operand stack or in local variables.
// Long and double values take one operand stack entry but two local slots.
type Value struct {
	Type   ValueType
	Int    int32
	Long   int64
	Float  float32
	Double float64
	Ref    interface{}
}

// IntValue creates an integer Value.
func IntValue(v int32) Value {
	return Value{Type: TypeInt, Int: v}
}

func LongValue(v int64) Value {
	return Value{Type: TypeLong, Long: v}
}

func FloatValue(v float32) Value {
	return Value{Type: TypeFloat, Float: v}
}

func DoubleValue(v float64) Value {
	return Value{Type: TypeDouble, Double: v}
}

// RefValue creates a reference Value. A nil ref is the null reference.
func RefValue(ref interface{}) Value {
	if ref == nil {
		return NullValue()
	}
	return Value{Type: TypeRef, Ref: ref}
}

// NullValue creates a null reference Value.
func NullValue() Value {
	return Value{Type: TypeNull}
}

// IsNull reports whether v is the null reference.
func (v Value) IsNull() bool {
	return v.Type == TypeNull || (v.Type == TypeRef && v.Ref == nil)
}

// wide reports whether v is a category 2 value.
func (v Value) wide() bool {
	return v.Type == TypeLong || v.Type == TypeDouble
}

// ZeroValue returns the default value of a field descriptor.
func ZeroValue(descriptor string) Value {
	if descriptor == "" {
		return NullValue()
	}
	switch descriptor[0] {
	case 'B', 'C', 'I', 'S', 'Z':
		return IntValue(0)
	case 'J':
		return LongValue(0)
	case 'F':
		return FloatValue(0)
	case 'D':
		return DoubleValue(0)
	}
	return NullValue()
}

// Frame is one activation of a method on a Thread.
type Frame struct {
	LocalVars    []Value
	OperandStack []Value
	SP           int
	Code         []byte
	PC           int
	Class        *Class
	Method       *Method
	// Reflective frames belong to reflection machinery and are hidden from
	// the class context.
	Reflective bool
	// Instrumented is set once a constructor frame has consulted its
	// constructor hooks.
	Instrumented bool
}

// NewFrame allocates a frame for code of class.
func NewFrame(maxLocals, maxStack uint16, code []byte, class *Class) *Frame {
	return &Frame{
		LocalVars:    make([]Value, maxLocals),
		OperandStack: make([]Value, maxStack),
		Code:         code,
		Class:        class,
	}
}

// Push pushes v. Exceeding max_stack means the code was not verified and
// panics.
func (f *Frame) Push(v Value) {
	if f.SP == len(f.OperandStack) {
		panic(fmt.Sprintf("operand stack overflow in %s (max %d)", f.where(), len(f.OperandStack)))
	}
	f.OperandStack[f.SP] = v
	f.SP++
}

// Pop removes and returns the top of the operand stack.
func (f *Frame) Pop() Value {
	v := f.Peek()
	f.SP--
	return v
}

// Peek returns the top of the operand stack.
func (f *Frame) Peek() Value {
	if f.SP == 0 {
		panic(fmt.Sprintf("operand stack underflow in %s", f.where()))
	}
	return f.OperandStack[f.SP-1]
}

func (f *Frame) GetLocal(index int) Value {
	f.checkLocal(index)
	return f.LocalVars[index]
}

func (f *Frame) SetLocal(index int, v Value) {
	f.checkLocal(index)
	f.LocalVars[index] = v
}

func (f *Frame) checkLocal(index int) {
	if index < 0 || index >= len(f.LocalVars) {
		panic(fmt.Sprintf("local %d out of range in %s (max_locals %d)", index, f.where(), len(f.LocalVars)))
	}
}

func (f *Frame) where() string {
	if f.Method != nil {
		return f.Method.String()
	}
	if f.Class != nil {
		return f.Class.Name
	}
	return "anonymous frame"
}

// Operand readers decode the big-endian immediates that follow an opcode
// and advance PC past them.

func (f *Frame) ReadU8() uint8 {
	v := f.Code[f.PC]
	f.PC++
	return v
}

func (f *Frame) ReadI8() int8 { return int8(f.ReadU8()) }

func (f *Frame) ReadU16() uint16 {
	v := binary.BigEndian.Uint16(f.Code[f.PC:])
	f.PC += 2
	return v
}

func (f *Frame) ReadI16() int16 { return int16(f.ReadU16()) }

func (f *Frame) ReadI32() int32 {
	v := binary.BigEndian.Uint32(f.Code[f.PC:])
	f.PC += 4
	return int32(v)
}

func (f *Frame) pool() []classfile.ConstantPoolEntry {
	if f.Class == nil || f.Class.File == nil {
		return nil
	}
	return f.Class.File.ConstantPool
}
