package vm

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/daimatz/jweave/pkg/classfile"
	"github.com/daimatz/jweave/pkg/instrument"
)

type initState int

const (
	uninitialized initState = iota
	initializing
	initialized
	initFailed
)

// Class is a linked runtime class. Its shape never changes after it is
// defined; instrumentation only swaps the hook sets of its methods.
type Class struct {
	Name        string
	Super       *Class
	Interfaces  []*Class
	AccessFlags uint16
	// File is the parsed class file, nil for built-in classes.
	File    *classfile.ClassFile
	Methods []*Method

	methods        map[string]*Method
	instanceFields []classfile.FieldInfo
	// alloc creates instances of built-in classes backed by Go values.
	alloc func() any

	staticsMu sync.Mutex
	statics   map[string]Value

	initMu     sync.Mutex
	initCond   *sync.Cond
	state      initState
	initThread *Thread
}

func newClass(name string, super *Class, flags uint16) *Class {
	c := &Class{
		Name:        name,
		Super:       super,
		AccessFlags: flags,
		methods:     make(map[string]*Method),
		statics:     make(map[string]Value),
	}
	c.initCond = sync.NewCond(&c.initMu)
	return c
}

func (c *Class) addMethod(m *Method) {
	c.Methods = append(c.Methods, m)
	c.methods[m.Name+m.Descriptor] = m
}

func (c *Class) IsInterface() bool { return c.AccessFlags&classfile.AccInterface != 0 }

// DeclaredMethod finds a method declared by c itself.
func (c *Class) DeclaredMethod(name, descriptor string) *Method {
	return c.methods[name+descriptor]
}

// LookupMethod resolves a method through the superclass chain, then through
// superinterfaces for default methods.
func (c *Class) LookupMethod(name, descriptor string) *Method {
	for k := c; k != nil; k = k.Super {
		if m := k.methods[name+descriptor]; m != nil {
			return m
		}
	}
	seen := make(map[*Class]bool)
	queue := []*Class{}
	for k := c; k != nil; k = k.Super {
		queue = append(queue, k.Interfaces...)
	}
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		if seen[i] {
			continue
		}
		seen[i] = true
		if m := i.methods[name+descriptor]; m != nil && (m.Code != nil || m.Native != nil) {
			return m
		}
		queue = append(queue, i.Interfaces...)
	}
	return nil
}

// Constructors returns the declared instance initializers.
func (c *Class) Constructors() []*Method {
	var out []*Method
	for _, m := range c.Methods {
		if m.Name == instrument.ConstructorName {
			out = append(out, m)
		}
	}
	return out
}

// IsSubclassOf reports whether c is name, extends it or implements it.
func (c *Class) IsSubclassOf(name string) bool {
	for k := c; k != nil; k = k.Super {
		if k.Name == name {
			return true
		}
		for _, i := range k.Interfaces {
			if i.IsSubclassOf(name) {
				return true
			}
		}
	}
	return false
}

// Supertypes returns the superclass chain, nearest first.
func (c *Class) Supertypes() []string {
	var out []string
	for k := c.Super; k != nil; k = k.Super {
		out = append(out, k.Name)
	}
	return out
}

func (c *Class) Description() instrument.TypeDescription {
	return instrument.TypeDescription{Name: c.Name, Supertypes: c.Supertypes()}
}

// staticOwner finds the class declaring the static field name, searching
// superinterfaces before the superclass as field resolution does.
func (c *Class) staticOwner(name string) *Class {
	for k := c; k != nil; k = k.Super {
		k.staticsMu.Lock()
		_, ok := k.statics[name]
		k.staticsMu.Unlock()
		if ok {
			return k
		}
		for _, i := range k.Interfaces {
			if o := i.staticOwner(name); o != nil {
				return o
			}
		}
	}
	return nil
}

func (c *Class) GetStatic(name string) (Value, bool) {
	c.staticsMu.Lock()
	defer c.staticsMu.Unlock()
	v, ok := c.statics[name]
	return v, ok
}

func (c *Class) SetStatic(name string, v Value) {
	c.staticsMu.Lock()
	defer c.staticsMu.Unlock()
	c.statics[name] = v
}

func (c *Class) String() string { return c.Name }

// NativeMethod implements a method in Go. For instance methods args[0] is
// the receiver.
type NativeMethod func(t *Thread, args []Value) (Value, error)

// Method is a runtime method: a bytecode body or a native function, plus
// the hooks currently attached to it.
type Method struct {
	Class       *Class
	Name        string
	Descriptor  string
	AccessFlags uint16
	Type        *classfile.MethodType
	Code        *classfile.CodeAttribute
	Native      NativeMethod

	hooks atomic.Pointer[hookSet]
}

func newMethod(class *Class, flags uint16, name, descriptor string) (*Method, error) {
	mt, err := classfile.ParseMethodDescriptor(descriptor)
	if err != nil {
		return nil, fmt.Errorf("method %s.%s: %w", class.Name, name, err)
	}
	return &Method{Class: class, Name: name, Descriptor: descriptor, AccessFlags: flags, Type: mt}, nil
}

func (m *Method) IsStatic() bool { return m.AccessFlags&classfile.AccStatic != 0 }

func (m *Method) Description() instrument.MethodDescription {
	return instrument.MethodDescription{
		Class:      m.Class.Name,
		Name:       m.Name,
		Descriptor: m.Descriptor,
		Static:     m.IsStatic(),
	}
}

func (m *Method) String() string { return m.Class.Name + "." + m.Name + m.Descriptor }

// Instrumented reports whether any hook is attached.
func (m *Method) Instrumented() bool {
	hs := m.hooks.Load()
	return hs != nil && (len(hs.ctor) > 0 || len(hs.advice) > 0)
}

// hookSet is immutable once published.
type hookSet struct {
	ctor   []ctorEntry
	advice []adviceEntry
}

type ctorEntry struct {
	handle instrument.Handle
	hook   instrument.ConstructorHook
}

type adviceEntry struct {
	handle instrument.Handle
	hook   instrument.MethodHook
}

// attach publishes a copy of the hook set extended by r. Callers serialise
// through the VM's instrumentation lock.
func (m *Method) attach(r *request) {
	next := &hookSet{}
	if old := m.hooks.Load(); old != nil {
		next.ctor = append(next.ctor, old.ctor...)
		next.advice = append(next.advice, old.advice...)
	}
	if r.ctor != nil {
		next.ctor = append(next.ctor, ctorEntry{handle: r.handle, hook: r.ctor})
	}
	if r.advice != nil {
		next.advice = append(next.advice, adviceEntry{handle: r.handle, hook: r.advice})
	}
	m.hooks.Store(next)
}

// detach publishes a copy of the hook set without h's entries.
func (m *Method) detach(h instrument.Handle) {
	old := m.hooks.Load()
	if old == nil {
		return
	}
	next := &hookSet{}
	for _, e := range old.ctor {
		if e.handle != h {
			next.ctor = append(next.ctor, e)
		}
	}
	for _, e := range old.advice {
		if e.handle != h {
			next.advice = append(next.advice, e)
		}
	}
	if len(next.ctor) == 0 && len(next.advice) == 0 {
		m.hooks.Store(nil)
		return
	}
	m.hooks.Store(next)
}
