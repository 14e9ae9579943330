package vm

import (
	"errors"
	"fmt"

	"github.com/daimatz/jweave/pkg/classfile"
	"github.com/daimatz/jweave/pkg/instrument"
)

// Thread is one interpreter call stack. A Thread must only be used by one
// goroutine at a time; create one per goroutine with VM.NewThread.
type Thread struct {
	vm     *VM
	frames []*Frame
}

func (vm *VM) NewThread() *Thread {
	return &Thread{vm: vm}
}

func (t *Thread) VM() *VM { return t.vm }

func (t *Thread) push(f *Frame) error {
	if len(t.frames) >= maxFrameDepth {
		return t.vm.throw("java/lang/StackOverflowError", "frame depth exceeded %d", maxFrameDepth)
	}
	t.frames = append(t.frames, f)
	return nil
}

func (t *Thread) pop() {
	t.frames[len(t.frames)-1] = nil
	t.frames = t.frames[:len(t.frames)-1]
}

// StackTrace returns the symbolic trace, top of stack first.
func (t *Thread) StackTrace() []instrument.CallFrame {
	out := make([]instrument.CallFrame, 0, len(t.frames))
	for i := len(t.frames) - 1; i >= 0; i-- {
		f := t.frames[i]
		cf := instrument.CallFrame{Reflective: f.Reflective, Instrumented: f.Instrumented}
		if f.Class != nil {
			cf.Class = f.Class.Name
		}
		if f.Method != nil {
			cf.Method = f.Method.Name
		}
		out = append(out, cf)
	}
	return out
}

// ClassContext returns the declaring class of each non-reflective frame, top
// of stack first.
func (t *Thread) ClassContext() []string {
	out := make([]string, 0, len(t.frames))
	for i := len(t.frames) - 1; i >= 0; i-- {
		f := t.frames[i]
		if !f.Reflective && f.Class != nil {
			out = append(out, f.Class.Name)
		}
	}
	return out
}

// guard turns interpreter panics on malformed bytecode into errors.
func (t *Thread) guard(fn func() error) (err error) {
	depth := len(t.frames)
	defer func() {
		if r := recover(); r != nil {
			for len(t.frames) > depth {
				t.pop()
			}
			err = fmt.Errorf("internal interpreter error: %v", r)
		}
	}()
	return fn()
}

// invoke calls m with args laid out one Value per parameter, receiver first
// for instance methods. Attached method hooks run around the body.
func (t *Thread) invoke(m *Method, args []Value) (Value, error) {
	if hs := m.hooks.Load(); hs != nil && len(hs.advice) > 0 {
		return t.invokeAdvised(m, hs.advice, args)
	}
	return t.invokeBody(m, args)
}

func (t *Thread) invokeAdvised(m *Method, hooks []adviceEntry, args []Value) (Value, error) {
	var (
		this     Value
		receiver any
		params   = args
	)
	if m.IsStatic() {
		receiver = m.Class.Name
	} else {
		this, params = args[0], args[1:]
		receiver = this.Ref
	}
	goArgs := make([]any, len(params))
	for i, p := range params {
		goArgs[i] = t.vm.ToGo(p, m.Type.Params[i])
	}
	desc := m.Description()

	var next func(i int, goArgs []any) (any, error)
	next = func(i int, goArgs []any) (any, error) {
		if i == len(hooks) {
			vals, err := t.fromGoArgs(m, this, goArgs)
			if err != nil {
				return nil, err
			}
			ret, err := t.invokeBody(m, vals)
			if err != nil {
				return nil, err
			}
			return t.vm.ToGo(ret, m.Type.Return), nil
		}
		call := &instrument.Call{Receiver: receiver, Method: desc, Args: goArgs}
		return hooks[i].hook(call, func(a []any) (any, error) { return next(i+1, a) })
	}

	result, err := next(0, goArgs)
	if err != nil {
		return Value{}, err
	}
	if m.Type.IsVoid() {
		return Value{}, nil
	}
	v, err := t.vm.FromGo(result, m.Type.Return)
	if err != nil {
		return Value{}, fmt.Errorf("advice result for %s: %w", m, err)
	}
	return v, nil
}

func (t *Thread) fromGoArgs(m *Method, this Value, goArgs []any) ([]Value, error) {
	if len(goArgs) != len(m.Type.Params) {
		return nil, fmt.Errorf("%s: got %d arguments, want %d", m, len(goArgs), len(m.Type.Params))
	}
	vals := make([]Value, 0, len(goArgs)+1)
	if !m.IsStatic() {
		vals = append(vals, this)
	}
	for i, a := range goArgs {
		v, err := t.vm.FromGo(a, m.Type.Params[i])
		if err != nil {
			return nil, fmt.Errorf("%s argument %d: %w", m, i, err)
		}
		vals = append(vals, v)
	}
	return vals, nil
}

// invokeBody runs the method's own code, bypassing method hooks.
func (t *Thread) invokeBody(m *Method, args []Value) (Value, error) {
	if m.Native != nil {
		f := &Frame{Class: m.Class, Method: m}
		if err := t.push(f); err != nil {
			return Value{}, err
		}
		defer t.pop()
		return m.Native(t, args)
	}
	if m.Code == nil {
		if m.AccessFlags&classfile.AccAbstract != 0 {
			return Value{}, t.vm.throw("java/lang/AbstractMethodError", "%s", m)
		}
		return Value{}, t.vm.throw("java/lang/UnsatisfiedLinkError", "%s", m)
	}

	frame := NewFrame(m.Code.MaxLocals, m.Code.MaxStack, m.Code.Code, m.Class)
	frame.Method = m
	slot := 0
	params := args
	if !m.IsStatic() {
		frame.SetLocal(0, args[0])
		slot, params = 1, args[1:]
	}
	for i, p := range m.Type.Params {
		frame.SetLocal(slot, params[i])
		slot += classfile.SlotSize(p)
	}

	if err := t.push(frame); err != nil {
		return Value{}, err
	}
	defer t.pop()

	if m.Name == instrument.ConstructorName {
		if skipped, err := t.constructorHooks(frame, args[0]); skipped || err != nil {
			return Value{}, err
		}
	}
	return t.run(frame)
}

// constructorHooks asks each constructor hook whether the instance under
// construction is a mock. On the first positive token the original body is
// skipped: the superclass is initialised with default arguments and, if the
// token is 1, the finished instance is handed over.
func (t *Thread) constructorHooks(frame *Frame, this Value) (bool, error) {
	m := frame.Method
	hs := m.hooks.Load()
	if hs == nil || len(hs.ctor) == 0 {
		return false, nil
	}
	frame.Instrumented = true
	for _, e := range hs.ctor {
		depth, err := t.constructionDepth(e.hook)
		if err != nil {
			return true, err
		}
		if depth <= 0 {
			continue
		}
		if err := t.constructSuper(m.Class, this); err != nil {
			return true, err
		}
		if depth == 1 {
			obj, ok := this.Ref.(instrument.Object)
			if !ok {
				return true, fmt.Errorf("constructed %s is not an object", m.Class.Name)
			}
			if err := e.hook.Constructed(obj); err != nil {
				return true, err
			}
		}
		return true, nil
	}
	return false, nil
}

// constructionDepth calls the hook with its own frame on top of the stack,
// so the asking constructor is at index 1 of the trace.
func (t *Thread) constructionDepth(hook instrument.ConstructorHook) (int, error) {
	if err := t.push(&Frame{Class: t.vm.hookMethod.Class, Method: t.vm.hookMethod}); err != nil {
		return 0, err
	}
	defer t.pop()
	return hook.ConstructionDepth(t), nil
}

// constructSuper runs the superclass constructor with the fewest parameters,
// passing default values.
func (t *Thread) constructSuper(class *Class, this Value) error {
	if class.Super == nil {
		return nil
	}
	var ctor *Method
	for _, c := range class.Super.Constructors() {
		if ctor == nil || len(c.Type.Params) < len(ctor.Type.Params) {
			ctor = c
		}
	}
	if ctor == nil {
		return nil
	}
	args := []Value{this}
	for _, p := range ctor.Type.Params {
		args = append(args, ZeroValue(p))
	}
	_, err := t.invoke(ctor, args)
	return err
}

// run is the execution loop of one frame.
func (t *Thread) run(frame *Frame) (Value, error) {
	for frame.PC < len(frame.Code) {
		pc := frame.PC
		op := frame.Code[pc]
		frame.PC++

		retVal, hasReturn, err := t.executeInstruction(frame, op)
		if err != nil {
			var jex *JavaException
			if errors.As(err, &jex) {
				if handler, ok := t.findHandler(frame, pc, jex); ok {
					frame.SP = 0
					frame.Push(RefValue(jex.Object))
					frame.PC = handler
					continue
				}
			}
			return Value{}, err
		}
		if hasReturn {
			return retVal, nil
		}
	}

	// Fell off the end of the method (implicit return for void methods)
	return Value{}, nil
}

func (t *Thread) findHandler(frame *Frame, pc int, jex *JavaException) (int, bool) {
	if frame.Method == nil || frame.Method.Code == nil {
		return 0, false
	}
	for _, h := range frame.Method.Code.ExceptionHandlers {
		if pc < int(h.StartPC) || pc >= int(h.EndPC) {
			continue
		}
		if h.CatchType == 0 {
			return int(h.HandlerPC), true
		}
		name, err := classfile.GetClassName(frame.pool(), h.CatchType)
		if err == nil && jex.IsInstance(name) {
			return int(h.HandlerPC), true
		}
	}
	return 0, false
}

// initialize runs the class initializer of c and its superclasses once. A
// thread re-entering an initialization it started proceeds immediately;
// other threads wait for it.
func (t *Thread) initialize(c *Class) error {
	c.initMu.Lock()
	for c.state == initializing && c.initThread != t {
		c.initCond.Wait()
	}
	switch c.state {
	case initialized:
		c.initMu.Unlock()
		return nil
	case initializing:
		c.initMu.Unlock()
		return nil
	case initFailed:
		c.initMu.Unlock()
		return t.vm.throw("java/lang/NoClassDefFoundError", "Could not initialize class %s", c.Name)
	}
	c.state = initializing
	c.initThread = t
	c.initMu.Unlock()

	var err error
	if c.Super != nil {
		err = t.initialize(c.Super)
	}
	if err == nil {
		if clinit := c.DeclaredMethod(instrument.TypeInitializerName, "()V"); clinit != nil {
			_, err = t.invoke(clinit, nil)
		}
	}

	c.initMu.Lock()
	if err != nil {
		c.state = initFailed
	} else {
		c.state = initialized
	}
	c.initThread = nil
	c.initCond.Broadcast()
	c.initMu.Unlock()

	var jex *JavaException
	if errors.As(err, &jex) && !jex.IsInstance("java/lang/Error") {
		wrapped := t.vm.newThrowable("java/lang/ExceptionInInitializerError", "")
		wrapped.Object.SetField("cause", RefValue(jex.Object))
		return wrapped
	}
	return err
}

// New instantiates class through the constructor with the given descriptor.
// Go arguments are converted according to the descriptor.
func (t *Thread) New(class, descriptor string, args ...any) (any, error) {
	return t.construct(class, descriptor, false, args)
}

// NewReflective is New seen through reflection: the constructor runs below
// reflective frames, as with Constructor.newInstance.
func (t *Thread) NewReflective(class, descriptor string, args ...any) (any, error) {
	return t.construct(class, descriptor, true, args)
}

func (t *Thread) construct(className, descriptor string, reflective bool, args []any) (any, error) {
	var result any
	err := t.guard(func() error {
		class, err := t.vm.LoadClass(className)
		if err != nil {
			return err
		}
		ctor := class.DeclaredMethod(instrument.ConstructorName, descriptor)
		if ctor == nil {
			return t.vm.throw("java/lang/NoSuchMethodError", "%s.<init>%s", class.Name, descriptor)
		}
		if err := t.initialize(class); err != nil {
			return err
		}
		obj := t.vm.allocate(class)
		vals, err := t.fromGoArgs(ctor, RefValue(obj), args)
		if err != nil {
			return err
		}
		if reflective {
			for _, m := range t.vm.reflectFrames {
				if err := t.push(&Frame{Class: m.Class, Method: m, Reflective: true}); err != nil {
					return err
				}
				defer t.pop()
			}
		}
		if _, err := t.invoke(ctor, vals); err != nil {
			return err
		}
		result = obj
		return nil
	})
	return result, err
}

// Invoke calls an instance method on receiver with virtual dispatch.
func (t *Thread) Invoke(receiver any, name, descriptor string, args ...any) (any, error) {
	var result any
	err := t.guard(func() error {
		if receiver == nil {
			return t.vm.throw("java/lang/NullPointerException", "invoking %s on null", name)
		}
		class, err := t.vm.classOf(receiver)
		if err != nil {
			return err
		}
		m := class.LookupMethod(name, descriptor)
		if m == nil || m.IsStatic() {
			return t.vm.throw("java/lang/NoSuchMethodError", "%s.%s%s", class.Name, name, descriptor)
		}
		vals, err := t.fromGoArgs(m, RefValue(receiver), args)
		if err != nil {
			return err
		}
		ret, err := t.invoke(m, vals)
		if err != nil {
			return err
		}
		result = t.vm.ToGo(ret, m.Type.Return)
		return nil
	})
	return result, err
}

// InvokeStatic calls a static method, initialising its class first.
func (t *Thread) InvokeStatic(className, name, descriptor string, args ...any) (any, error) {
	var result any
	err := t.guard(func() error {
		class, err := t.vm.LoadClass(className)
		if err != nil {
			return err
		}
		m := class.LookupMethod(name, descriptor)
		if m == nil || !m.IsStatic() {
			return t.vm.throw("java/lang/NoSuchMethodError", "%s.%s%s", class.Name, name, descriptor)
		}
		if err := t.initialize(m.Class); err != nil {
			return err
		}
		vals, err := t.fromGoArgs(m, Value{}, args)
		if err != nil {
			return err
		}
		ret, err := t.invoke(m, vals)
		if err != nil {
			return err
		}
		result = t.vm.ToGo(ret, m.Type.Return)
		return nil
	})
	return result, err
}

// Initialize forces class initialisation.
func (t *Thread) Initialize(className string) error {
	return t.guard(func() error {
		class, err := t.vm.LoadClass(className)
		if err != nil {
			return err
		}
		return t.initialize(class)
	})
}

// allocate creates an uninitialised instance. Built-in classes backed by Go
// values allocate their own representation.
func (vm *VM) allocate(class *Class) any {
	if class.alloc != nil {
		return class.alloc()
	}
	return NewObject(class)
}
