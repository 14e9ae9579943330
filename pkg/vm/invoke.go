package vm

import (
	"fmt"

	"github.com/daimatz/jweave/pkg/classfile"
	"github.com/daimatz/jweave/pkg/instrument"
)

func (t *Thread) executeLdc(frame *Frame, index uint16) (Value, bool, error) {
	pool := frame.pool()
	if int(index) >= len(pool) || pool[index] == nil {
		return Value{}, false, fmt.Errorf("ldc: invalid constant pool index %d", index)
	}
	switch c := pool[index].(type) {
	case *classfile.ConstantInteger:
		frame.Push(IntValue(c.Value))
	case *classfile.ConstantFloat:
		frame.Push(FloatValue(c.Value))
	case *classfile.ConstantLong:
		frame.Push(LongValue(c.Value))
	case *classfile.ConstantDouble:
		frame.Push(DoubleValue(c.Value))
	case *classfile.ConstantString:
		s, err := classfile.GetUtf8(pool, c.StringIndex)
		if err != nil {
			return Value{}, false, fmt.Errorf("ldc: %w", err)
		}
		frame.Push(RefValue(t.vm.Intern(s)))
	default:
		return Value{}, false, fmt.Errorf("ldc: unsupported constant %T at index %d", c, index)
	}
	return Value{}, false, nil
}

// staticField resolves a field reference to the class declaring it,
// initialising the referenced class first.
func (t *Thread) staticField(frame *Frame) (*Class, string, error) {
	ref, err := classfile.ResolveFieldref(frame.pool(), frame.ReadU16())
	if err != nil {
		return nil, "", fmt.Errorf("static field: %w", err)
	}
	class, err := t.vm.LoadClass(ref.ClassName)
	if err != nil {
		return nil, "", err
	}
	if err := t.initialize(class); err != nil {
		return nil, "", err
	}
	owner := class.staticOwner(ref.FieldName)
	if owner == nil {
		return nil, "", t.vm.throw("java/lang/NoSuchFieldError", "%s.%s", ref.ClassName, ref.FieldName)
	}
	if owner != class {
		if err := t.initialize(owner); err != nil {
			return nil, "", err
		}
	}
	return owner, ref.FieldName, nil
}

func (t *Thread) executeGetstatic(frame *Frame) (Value, bool, error) {
	owner, name, err := t.staticField(frame)
	if err != nil {
		return Value{}, false, err
	}
	v, _ := owner.GetStatic(name)
	frame.Push(v)
	return Value{}, false, nil
}

func (t *Thread) executePutstatic(frame *Frame) (Value, bool, error) {
	owner, name, err := t.staticField(frame)
	if err != nil {
		return Value{}, false, err
	}
	owner.SetStatic(name, frame.Pop())
	return Value{}, false, nil
}

func (t *Thread) instanceField(objRef Value, ref *classfile.FieldRefInfo) (*JObject, error) {
	if objRef.IsNull() {
		return nil, t.vm.throw("java/lang/NullPointerException", "field %s of null", ref.FieldName)
	}
	obj, ok := objRef.Ref.(*JObject)
	if !ok {
		return nil, fmt.Errorf("field %s.%s: %T has no fields", ref.ClassName, ref.FieldName, objRef.Ref)
	}
	return obj, nil
}

func (t *Thread) executeGetfield(frame *Frame) (Value, bool, error) {
	ref, err := classfile.ResolveFieldref(frame.pool(), frame.ReadU16())
	if err != nil {
		return Value{}, false, fmt.Errorf("getfield: %w", err)
	}
	obj, err := t.instanceField(frame.Pop(), ref)
	if err != nil {
		return Value{}, false, err
	}
	frame.Push(obj.GetField(ref.FieldName))
	return Value{}, false, nil
}

func (t *Thread) executePutfield(frame *Frame) (Value, bool, error) {
	ref, err := classfile.ResolveFieldref(frame.pool(), frame.ReadU16())
	if err != nil {
		return Value{}, false, fmt.Errorf("putfield: %w", err)
	}
	value := frame.Pop()
	obj, err := t.instanceField(frame.Pop(), ref)
	if err != nil {
		return Value{}, false, err
	}
	obj.SetField(ref.FieldName, value)
	return Value{}, false, nil
}

// methodref resolves a Methodref or InterfaceMethodref entry.
func methodref(pool []classfile.ConstantPoolEntry, index uint16) (*classfile.MethodRefInfo, error) {
	if int(index) < len(pool) {
		if _, ok := pool[index].(*classfile.ConstantInterfaceMethodref); ok {
			return classfile.ResolveInterfaceMethodref(pool, index)
		}
	}
	return classfile.ResolveMethodref(pool, index)
}

// popArgs pops the receiver, if any, and one value per parameter.
func popArgs(frame *Frame, mt *classfile.MethodType, withReceiver bool) []Value {
	n := len(mt.Params)
	if withReceiver {
		n++
	}
	args := make([]Value, n)
	for i := n - 1; i >= 0; i-- {
		args[i] = frame.Pop()
	}
	return args
}

func pushResult(frame *Frame, m *Method, ret Value) {
	if !m.Type.IsVoid() {
		frame.Push(ret)
	}
}

func (t *Thread) executeInvokevirtual(frame *Frame, index uint16, iface bool) (Value, bool, error) {
	var (
		ref *classfile.MethodRefInfo
		err error
	)
	if iface {
		ref, err = classfile.ResolveInterfaceMethodref(frame.pool(), index)
	} else {
		ref, err = methodref(frame.pool(), index)
	}
	if err != nil {
		return Value{}, false, fmt.Errorf("invoke: %w", err)
	}
	mt, err := classfile.ParseMethodDescriptor(ref.Descriptor)
	if err != nil {
		return Value{}, false, err
	}
	args := popArgs(frame, mt, true)
	m, err := t.virtualMethod(args[0], ref.MethodName, ref.Descriptor)
	if err != nil {
		return Value{}, false, err
	}
	ret, err := t.invoke(m, args)
	if err != nil {
		return Value{}, false, err
	}
	pushResult(frame, m, ret)
	return Value{}, false, nil
}

// virtualMethod selects the implementation of name+descriptor for the
// runtime class of receiver.
func (t *Thread) virtualMethod(receiver Value, name, descriptor string) (*Method, error) {
	if receiver.IsNull() {
		return nil, t.vm.throw("java/lang/NullPointerException", "invoking %s on null", name)
	}
	class, err := t.vm.classOf(receiver.Ref)
	if err != nil {
		return nil, err
	}
	m := class.LookupMethod(name, descriptor)
	if m == nil {
		return nil, t.vm.throw("java/lang/AbstractMethodError", "%s.%s%s", class.Name, name, descriptor)
	}
	return m, nil
}

// invokeVirtual calls a method on receiver from Go code with virtual
// dispatch.
func (t *Thread) invokeVirtual(receiver Value, name, descriptor string, args []Value) (Value, error) {
	m, err := t.virtualMethod(receiver, name, descriptor)
	if err != nil {
		return Value{}, err
	}
	return t.invoke(m, append([]Value{receiver}, args...))
}

func (t *Thread) executeInvokespecial(frame *Frame) (Value, bool, error) {
	ref, err := methodref(frame.pool(), frame.ReadU16())
	if err != nil {
		return Value{}, false, fmt.Errorf("invokespecial: %w", err)
	}
	class, err := t.vm.LoadClass(ref.ClassName)
	if err != nil {
		return Value{}, false, err
	}
	var m *Method
	if ref.MethodName == instrument.ConstructorName {
		m = class.DeclaredMethod(ref.MethodName, ref.Descriptor)
	} else {
		m = class.LookupMethod(ref.MethodName, ref.Descriptor)
	}
	if m == nil {
		return Value{}, false, t.vm.throw("java/lang/NoSuchMethodError", "%s.%s%s", ref.ClassName, ref.MethodName, ref.Descriptor)
	}
	args := popArgs(frame, m.Type, true)
	if args[0].IsNull() {
		return Value{}, false, t.vm.throw("java/lang/NullPointerException", "invoking %s on null", ref.MethodName)
	}
	ret, err := t.invoke(m, args)
	if err != nil {
		return Value{}, false, err
	}
	pushResult(frame, m, ret)
	return Value{}, false, nil
}

func (t *Thread) executeInvokestatic(frame *Frame) (Value, bool, error) {
	ref, err := methodref(frame.pool(), frame.ReadU16())
	if err != nil {
		return Value{}, false, fmt.Errorf("invokestatic: %w", err)
	}
	class, err := t.vm.LoadClass(ref.ClassName)
	if err != nil {
		return Value{}, false, err
	}
	m := class.LookupMethod(ref.MethodName, ref.Descriptor)
	if m == nil || !m.IsStatic() {
		return Value{}, false, t.vm.throw("java/lang/NoSuchMethodError", "%s.%s%s", ref.ClassName, ref.MethodName, ref.Descriptor)
	}
	if err := t.initialize(m.Class); err != nil {
		return Value{}, false, err
	}
	ret, err := t.invoke(m, popArgs(frame, m.Type, false))
	if err != nil {
		return Value{}, false, err
	}
	pushResult(frame, m, ret)
	return Value{}, false, nil
}

func (t *Thread) executeNew(frame *Frame) (Value, bool, error) {
	name, err := classfile.GetClassName(frame.pool(), frame.ReadU16())
	if err != nil {
		return Value{}, false, fmt.Errorf("new: %w", err)
	}
	class, err := t.vm.LoadClass(name)
	if err != nil {
		return Value{}, false, err
	}
	if class.IsInterface() || class.AccessFlags&classfile.AccAbstract != 0 {
		return Value{}, false, t.vm.throw("java/lang/InstantiationError", "%s", name)
	}
	if err := t.initialize(class); err != nil {
		return Value{}, false, err
	}
	frame.Push(RefValue(t.vm.allocate(class)))
	return Value{}, false, nil
}

func (t *Thread) newArray(frame *Frame, descriptor string) (Value, bool, error) {
	count := frame.Pop().Int
	if count < 0 {
		return Value{}, false, t.vm.throw("java/lang/NegativeArraySizeException", "%d", count)
	}
	frame.Push(RefValue(NewArray(descriptor, count)))
	return Value{}, false, nil
}

func (t *Thread) array(ref Value) (*JArray, error) {
	if ref.IsNull() {
		return nil, t.vm.throw("java/lang/NullPointerException", "array is null")
	}
	arr, ok := ref.Ref.(*JArray)
	if !ok {
		return nil, fmt.Errorf("%T is not an array", ref.Ref)
	}
	return arr, nil
}

func (t *Thread) element(arrRef Value, index int32) (*JArray, error) {
	arr, err := t.array(arrRef)
	if err != nil {
		return nil, err
	}
	if index < 0 || int(index) >= len(arr.Elements) {
		return nil, t.vm.throw("java/lang/ArrayIndexOutOfBoundsException",
			"Index %d out of bounds for length %d", index, len(arr.Elements))
	}
	return arr, nil
}

func (t *Thread) executeArrayLoad(frame *Frame) (Value, bool, error) {
	index := frame.Pop().Int
	arr, err := t.element(frame.Pop(), index)
	if err != nil {
		return Value{}, false, err
	}
	frame.Push(arr.Elements[index])
	return Value{}, false, nil
}

func (t *Thread) executeArrayStore(frame *Frame) (Value, bool, error) {
	value := frame.Pop()
	index := frame.Pop().Int
	arr, err := t.element(frame.Pop(), index)
	if err != nil {
		return Value{}, false, err
	}
	switch arr.Type {
	case "[Z":
		value = IntValue(value.Int & 1)
	case "[B":
		value = IntValue(int32(int8(value.Int)))
	case "[C":
		value = IntValue(int32(uint16(value.Int)))
	case "[S":
		value = IntValue(int32(int16(value.Int)))
	}
	arr.Elements[index] = value
	return Value{}, false, nil
}

// isInstance reports whether ref is an instance of className.
func (vm *VM) isInstance(ref any, className string) (bool, error) {
	class, err := vm.classOf(ref)
	if err != nil {
		return false, err
	}
	if class.IsSubclassOf(className) {
		return true, nil
	}
	// Arrays are instances of Object[] when their elements are references.
	if arr, ok := ref.(*JArray); ok && className == "[Ljava/lang/Object;" {
		return len(arr.Type) > 1 && (arr.Type[1] == 'L' || arr.Type[1] == '['), nil
	}
	return false, nil
}
