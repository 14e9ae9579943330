// Package instrument defines the contract between the interception core and
// whatever rewrites method bodies of loaded classes.
//
// The core (packages aspect and ctormock) only talks to an Instrumenter. The
// interpreter in package vm is one implementation; anything able to wrap a
// method body around a hook can provide another.
package instrument

import (
	"errors"
	"strings"
)

// Handle identifies one instrumentation request.
type Handle uint64

// ErrInstrumentationClosed is returned when a request is made against an
// instrumenter that no longer accepts new requests.
var ErrInstrumentationClosed = errors.New("instrumentation closed")

// Object is implemented by every instance the instrumenter hands to
// constructor hooks.
type Object interface {
	ClassName() string
}

// TypeDescription describes a class offered to a ClassMatcher.
type TypeDescription struct {
	Name string
	// Supertypes is the superclass chain, nearest first, ending with
	// java/lang/Object. Empty for java/lang/Object itself.
	Supertypes []string
}

// MethodDescription describes a method offered to a MethodMatcher and passed
// to advice at call time.
type MethodDescription struct {
	Class      string
	Name       string
	Descriptor string
	Static     bool
}

// IsConstructor reports whether the method is an instance initializer.
func (m MethodDescription) IsConstructor() bool { return m.Name == ConstructorName }

// IsTypeInitializer reports whether the method is the static class
// initializer.
func (m MethodDescription) IsTypeInitializer() bool { return m.Name == TypeInitializerName }

// ReturnDescriptor returns the part of the descriptor after the parameter
// list, e.g. "I" or "Ljava/lang/String;".
func (m MethodDescription) ReturnDescriptor() string {
	i := strings.LastIndexByte(m.Descriptor, ')')
	if i < 0 {
		return ""
	}
	return m.Descriptor[i+1:]
}

// ZeroResult returns the Go zero value matching the method's return type:
// nil for void and reference types.
func (m MethodDescription) ZeroResult() any {
	switch m.ReturnDescriptor() {
	case "I", "B", "C", "S", "Z":
		return int32(0)
	case "J":
		return int64(0)
	case "F":
		return float32(0)
	case "D":
		return float64(0)
	}
	return nil
}

func (m MethodDescription) String() string {
	return m.Class + "." + m.Name + m.Descriptor
}

const (
	ConstructorName     = "<init>"
	TypeInitializerName = "<clinit>"
)

// CallFrame is one entry of a symbolic stack trace, top of stack first.
// Reflective frames belong to reflective invocation machinery; they appear in
// a full trace but not in the class context.
type CallFrame struct {
	Class      string
	Method     string
	Reflective bool
	// Instrumented is set on constructor frames that consulted constructor
	// hooks when they were entered.
	Instrumented bool
}

// CallStack exposes the two views of the current thread's stack.
type CallStack interface {
	// StackTrace returns every frame, top first, starting with the frame of
	// the hook being called.
	StackTrace() []CallFrame
	// ClassContext returns the declaring class of every non-reflective
	// frame, top first, aligned with StackTrace on its first entry.
	ClassContext() []string
}

// Call is one intercepted invocation. Args may be modified in place by advice
// before the original body runs.
type Call struct {
	// Receiver is the target instance, or the class name for static methods
	// and type initializers.
	Receiver any
	Method   MethodDescription
	Args     []any
}

// Proceed runs the original body with the given arguments.
type Proceed func(args []any) (any, error)

// MethodHook replaces a method body. Calling proceed runs the original.
type MethodHook func(call *Call, proceed Proceed) (any, error)

// ConstructorHook is consulted by every instrumented constructor before its
// original body runs.
type ConstructorHook interface {
	// ConstructionDepth returns a positive skip token when the instance
	// under construction is a mock, or a negative value otherwise. A token
	// of 1 means the asking constructor belongs to the concrete class being
	// built.
	ConstructionDepth(stack CallStack) int
	// Constructed receives the instance after the super constructor chain
	// returned, when the token was 1.
	Constructed(instance Object) error
}

// Instrumenter attaches and detaches hooks to the methods of loaded and
// subsequently loaded classes. Implementations must never change the shape of
// a class, only the behaviour of its method bodies.
type Instrumenter interface {
	InstrumentConstructors(classes ClassMatcher, hook ConstructorHook) (Handle, error)
	InstrumentMethods(classes ClassMatcher, methods MethodMatcher, hook MethodHook) (Handle, error)
	// Detach removes a request. Unknown or already detached handles are
	// ignored.
	Detach(h Handle) error
	// Supertypes returns the superclass chain of the named class, nearest
	// first.
	Supertypes(class string) ([]string, error)
}

// InternalName converts a dotted class name to the slash form used inside
// class files. Names already in internal form are returned unchanged.
func InternalName(name string) string {
	return strings.ReplaceAll(name, ".", "/")
}
