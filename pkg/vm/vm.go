package vm

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/tliron/commonlog"

	"github.com/daimatz/jweave/pkg/classfile"
	"github.com/daimatz/jweave/pkg/instrument"
	"github.com/daimatz/jweave/pkg/native"
)

var log = commonlog.GetLogger("jweave.vm")

// maxFrameDepth is the maximum number of nested method calls.
const maxFrameDepth = 1024

// VM is the virtual machine that executes Java bytecode. Classes, statics
// and instrumentation are shared; each goroutine runs its own Thread.
type VM struct {
	Stdout io.Writer

	loader  ClassLoader
	strings *native.StringPool
	out     *native.PrintStream

	classesMu sync.RWMutex
	classes   map[string]*Class

	inst instrumentation

	hashes   sync.Map
	nextHash atomic.Int32

	hookMethod    *Method
	reflectFrames []*Method
}

// NewVM creates a VM loading user classes through loader, which may be nil
// when only built-in classes are needed.
func NewVM(loader ClassLoader) *VM {
	vm := &VM{
		Stdout:  os.Stdout,
		loader:  loader,
		strings: native.NewStringPool(),
		classes: make(map[string]*Class),
	}
	vm.out = native.NewPrintStream(stdoutWriter{vm})
	vm.defineBuiltins()
	return vm
}

// stdoutWriter forwards to whatever VM.Stdout is at write time.
type stdoutWriter struct{ vm *VM }

func (w stdoutWriter) Write(p []byte) (int, error) { return w.vm.Stdout.Write(p) }

// Execute runs className.main(String[]) on a fresh thread.
func (vm *VM) Execute(className string, args ...string) error {
	t := vm.NewThread()
	class, err := vm.LoadClass(className)
	if err != nil {
		return err
	}
	method := class.DeclaredMethod("main", "([Ljava/lang/String;)V")
	if method == nil || !method.IsStatic() {
		return fmt.Errorf("main method not found in %s", class.Name)
	}

	argv := NewArray("[Ljava/lang/String;", int32(len(args)))
	for i, a := range args {
		argv.Elements[i] = RefValue(native.NewString(a))
	}
	return t.guard(func() error {
		if err := t.initialize(class); err != nil {
			return err
		}
		_, err := t.invoke(method, []Value{RefValue(argv)})
		return err
	})
}

// LoadClass returns the named class, loading, linking and instrumenting it
// on first use. Dotted names are accepted.
func (vm *VM) LoadClass(name string) (*Class, error) {
	name = instrument.InternalName(name)
	if c := vm.lookup(name); c != nil {
		return c, nil
	}

	if strings.HasPrefix(name, "[") {
		object, err := vm.LoadClass("java/lang/Object")
		if err != nil {
			return nil, err
		}
		return vm.define(newClass(name, object, classfile.AccPublic|classfile.AccFinal))
	}
	if vm.loader == nil {
		return nil, fmt.Errorf("%s: %w", name, ErrClassNotFound)
	}
	cf, err := vm.loader.LoadClass(name)
	if err != nil {
		return nil, err
	}
	return vm.DefineClass(cf)
}

// DefineClass links cf and makes it visible. If a class of the same name is
// already defined, the existing one is returned.
func (vm *VM) DefineClass(cf *classfile.ClassFile) (*Class, error) {
	name, err := cf.ClassName()
	if err != nil {
		return nil, fmt.Errorf("define class: %w", err)
	}

	var super *Class
	if cf.SuperClass != 0 {
		if super, err = vm.LoadClass(cf.SuperClassName()); err != nil {
			return nil, fmt.Errorf("define %s: superclass: %w", name, err)
		}
	}
	c := newClass(name, super, cf.AccessFlags)
	c.File = cf

	for _, idx := range cf.Interfaces {
		iname, err := classfile.GetClassName(cf.ConstantPool, idx)
		if err != nil {
			return nil, fmt.Errorf("define %s: %w", name, err)
		}
		iface, err := vm.LoadClass(iname)
		if err != nil {
			return nil, fmt.Errorf("define %s: interface: %w", name, err)
		}
		c.Interfaces = append(c.Interfaces, iface)
	}

	for _, f := range cf.Fields {
		if f.IsStatic() {
			c.statics[f.Name] = ZeroValue(f.Descriptor)
		} else {
			c.instanceFields = append(c.instanceFields, f)
		}
	}

	for i := range cf.Methods {
		mi := &cf.Methods[i]
		m, err := newMethod(c, mi.AccessFlags, mi.Name, mi.Descriptor)
		if err != nil {
			return nil, fmt.Errorf("define %s: %w", name, err)
		}
		m.Code = mi.Code
		c.addMethod(m)
	}

	return vm.define(c)
}

// define applies every live instrumentation request to c and only then
// publishes it. Both happen under the instrumentation lock, so a request
// never misses a class and no thread sees a class before its hooks.
func (vm *VM) define(c *Class) (*Class, error) {
	vm.inst.mu.Lock()
	defer vm.inst.mu.Unlock()

	if existing := vm.lookup(c.Name); existing != nil {
		return existing, nil
	}

	n := 0
	for _, r := range vm.inst.requests {
		n += r.apply(c)
	}

	vm.classesMu.Lock()
	vm.classes[c.Name] = c
	vm.classesMu.Unlock()

	if n > 0 {
		log.Debugf("defined %s (%d methods instrumented)", c.Name, n)
	}
	return c, nil
}

func (vm *VM) lookup(name string) *Class {
	vm.classesMu.RLock()
	defer vm.classesMu.RUnlock()
	return vm.classes[name]
}

// Classes returns a snapshot of the defined classes.
func (vm *VM) Classes() []*Class {
	vm.classesMu.RLock()
	defer vm.classesMu.RUnlock()
	out := make([]*Class, 0, len(vm.classes))
	for _, c := range vm.classes {
		out = append(out, c)
	}
	return out
}

// Intern returns the canonical string object for s.
func (vm *VM) Intern(s string) *native.JString {
	return vm.strings.Intern(s)
}

// classOf returns the runtime class of a reference.
func (vm *VM) classOf(ref any) (*Class, error) {
	switch r := ref.(type) {
	case *JObject:
		return r.Class, nil
	case instrument.Object:
		return vm.LoadClass(r.ClassName())
	}
	return nil, fmt.Errorf("value of type %T is not a Java object", ref)
}

// identityHash emulates System.identityHashCode.
func (vm *VM) identityHash(ref any) int32 {
	if h, ok := vm.hashes.Load(ref); ok {
		return h.(int32)
	}
	h, _ := vm.hashes.LoadOrStore(ref, vm.nextHash.Add(0x61c88647))
	return h.(int32)
}

// newThrowable builds an exception of the given built-in or loadable class.
func (vm *VM) newThrowable(className, message string) *JavaException {
	class, err := vm.LoadClass(className)
	if err != nil {
		class, _ = vm.LoadClass("java/lang/Throwable")
	}
	obj := NewObject(class)
	if message != "" {
		obj.SetField("detailMessage", RefValue(native.NewString(message)))
	}
	return &JavaException{Object: obj}
}

// throw is newThrowable as an error.
func (vm *VM) throw(className, format string, args ...any) error {
	return vm.newThrowable(className, fmt.Sprintf(format, args...))
}

// IsJavaException reports whether err carries a Java exception of class or a
// subclass.
func IsJavaException(err error, class string) bool {
	var jex *JavaException
	return errors.As(err, &jex) && jex.IsInstance(class)
}
