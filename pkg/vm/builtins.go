package vm

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/daimatz/jweave/pkg/classfile"
	"github.com/daimatz/jweave/pkg/native"
)

// Built-in classes are implemented in Go and always take precedence over
// classes of the same name offered by the loader.

type nativeMethod struct {
	flags uint16
	name  string
	desc  string
	fn    NativeMethod
}

func virtual(name, desc string, fn NativeMethod) nativeMethod {
	return nativeMethod{flags: classfile.AccPublic, name: name, desc: desc, fn: fn}
}

func static(name, desc string, fn NativeMethod) nativeMethod {
	return nativeMethod{flags: classfile.AccPublic | classfile.AccStatic, name: name, desc: desc, fn: fn}
}

type builtinClass struct {
	name       string
	super      string
	interfaces []string
	flags      uint16
	alloc      func() any
	fields     []classfile.FieldInfo
	statics    map[string]Value
	methods    []nativeMethod
}

func (vm *VM) builtin(b builtinClass) *Class {
	var super *Class
	if b.super != "" {
		super = vm.classes[b.super]
	}
	flags := b.flags
	if flags == 0 {
		flags = classfile.AccPublic
	}
	c := newClass(b.name, super, flags)
	for _, i := range b.interfaces {
		c.Interfaces = append(c.Interfaces, vm.classes[i])
	}
	c.alloc = b.alloc
	c.instanceFields = b.fields
	for k, v := range b.statics {
		c.statics[k] = v
	}
	for _, d := range b.methods {
		m, err := newMethod(c, d.flags, d.name, d.desc)
		if err != nil {
			panic(err)
		}
		m.Native = d.fn
		c.addMethod(m)
	}
	c.state = initialized
	defined, _ := vm.define(c)
	return defined
}

func (vm *VM) defineBuiltins() {
	vm.builtin(builtinClass{name: "java/lang/Object", methods: []nativeMethod{
		virtual("<init>", "()V", nop),
		virtual("hashCode", "()I", func(t *Thread, args []Value) (Value, error) {
			return IntValue(t.vm.identityHash(args[0].Ref)), nil
		}),
		virtual("equals", "(Ljava/lang/Object;)Z", func(t *Thread, args []Value) (Value, error) {
			return boolValue(!args[1].IsNull() && args[0].Ref == args[1].Ref), nil
		}),
		virtual("toString", "()Ljava/lang/String;", func(t *Thread, args []Value) (Value, error) {
			class, err := t.vm.classOf(args[0].Ref)
			if err != nil {
				return Value{}, err
			}
			s := fmt.Sprintf("%s@%x", strings.ReplaceAll(class.Name, "/", "."), uint32(t.vm.identityHash(args[0].Ref)))
			return RefValue(native.NewString(s)), nil
		}),
	}})
	vm.builtin(builtinClass{name: "java/lang/CharSequence", super: "java/lang/Object",
		flags: classfile.AccPublic | classfile.AccInterface | classfile.AccAbstract})

	vm.defineString()
	vm.defineThrowables()
	vm.defineSystem()
	vm.defineCollections()
	vm.defineRuntimeSupport()
}

func nop(*Thread, []Value) (Value, error) { return Value{}, nil }

func boolValue(b bool) Value {
	if b {
		return IntValue(1)
	}
	return IntValue(0)
}

func stringValue(s string) Value { return RefValue(native.NewString(s)) }

// jstring returns the string referenced by v, throwing on null.
func (t *Thread) jstring(v Value) (*native.JString, error) {
	if v.IsNull() {
		return nil, t.vm.throw("java/lang/NullPointerException", "")
	}
	s, ok := v.Ref.(*native.JString)
	if !ok {
		return nil, t.vm.throw("java/lang/ClassCastException", "%T cannot be cast to java.lang.String", v.Ref)
	}
	return s, nil
}

// stringOf is String.valueOf(Object): "null" or a virtual toString call.
func (t *Thread) stringOf(v Value) (string, error) {
	if v.IsNull() {
		return "null", nil
	}
	if s, ok := v.Ref.(*native.JString); ok {
		return s.Value, nil
	}
	ret, err := t.invokeVirtual(v, "toString", "()Ljava/lang/String;", nil)
	if err != nil {
		return "", err
	}
	if ret.IsNull() {
		return "null", nil
	}
	s, err := t.jstring(ret)
	if err != nil {
		return "", err
	}
	return s.Value, nil
}

func (vm *VM) defineString() {
	unary := func(f func(string) string) NativeMethod {
		return func(t *Thread, args []Value) (Value, error) {
			s, err := t.jstring(args[0])
			if err != nil {
				return Value{}, err
			}
			return stringValue(f(s.Value)), nil
		}
	}
	vm.builtin(builtinClass{
		name:       "java/lang/String",
		super:      "java/lang/Object",
		interfaces: []string{"java/lang/CharSequence"},
		flags:      classfile.AccPublic | classfile.AccFinal,
		alloc:      func() any { return native.NewString("") },
		methods: []nativeMethod{
			virtual("<init>", "()V", nop),
			virtual("<init>", "(Ljava/lang/String;)V", func(t *Thread, args []Value) (Value, error) {
				src, err := t.jstring(args[1])
				if err != nil {
					return Value{}, err
				}
				args[0].Ref.(*native.JString).Value = src.Value
				return Value{}, nil
			}),
			virtual("length", "()I", func(t *Thread, args []Value) (Value, error) {
				return IntValue(args[0].Ref.(*native.JString).Length()), nil
			}),
			virtual("isEmpty", "()Z", func(t *Thread, args []Value) (Value, error) {
				return boolValue(args[0].Ref.(*native.JString).Value == ""), nil
			}),
			virtual("charAt", "(I)C", func(t *Thread, args []Value) (Value, error) {
				c, ok := args[0].Ref.(*native.JString).CharAt(args[1].Int)
				if !ok {
					return Value{}, t.vm.throw("java/lang/StringIndexOutOfBoundsException", "index %d", args[1].Int)
				}
				return IntValue(int32(c)), nil
			}),
			virtual("equals", "(Ljava/lang/Object;)Z", func(t *Thread, args []Value) (Value, error) {
				return boolValue(args[0].Ref.(*native.JString).Equals(args[1].Ref)), nil
			}),
			virtual("hashCode", "()I", func(t *Thread, args []Value) (Value, error) {
				return IntValue(args[0].Ref.(*native.JString).HashCode()), nil
			}),
			virtual("toString", "()Ljava/lang/String;", func(t *Thread, args []Value) (Value, error) {
				return args[0], nil
			}),
			virtual("toUpperCase", "()Ljava/lang/String;", unary(strings.ToUpper)),
			virtual("toLowerCase", "()Ljava/lang/String;", unary(strings.ToLower)),
			virtual("trim", "()Ljava/lang/String;", unary(func(s string) string {
				return strings.TrimFunc(s, func(r rune) bool { return r <= ' ' })
			})),
			virtual("concat", "(Ljava/lang/String;)Ljava/lang/String;", func(t *Thread, args []Value) (Value, error) {
				other, err := t.jstring(args[1])
				if err != nil {
					return Value{}, err
				}
				return stringValue(args[0].Ref.(*native.JString).Value + other.Value), nil
			}),
			virtual("replace", "(Ljava/lang/CharSequence;Ljava/lang/CharSequence;)Ljava/lang/String;", func(t *Thread, args []Value) (Value, error) {
				target, err := t.stringOf(args[1])
				if err != nil {
					return Value{}, err
				}
				repl, err := t.stringOf(args[2])
				if err != nil {
					return Value{}, err
				}
				return stringValue(args[0].Ref.(*native.JString).Replace(target, repl)), nil
			}),
			virtual("replaceAll", "(Ljava/lang/String;Ljava/lang/String;)Ljava/lang/String;", func(t *Thread, args []Value) (Value, error) {
				pattern, err := t.jstring(args[1])
				if err != nil {
					return Value{}, err
				}
				repl, err := t.jstring(args[2])
				if err != nil {
					return Value{}, err
				}
				out, err := args[0].Ref.(*native.JString).ReplaceAll(pattern.Value, repl.Value)
				if err != nil {
					return Value{}, t.vm.throw("java/util/regex/PatternSyntaxException", "%v", err)
				}
				return stringValue(out), nil
			}),
			static("valueOf", "(I)Ljava/lang/String;", func(t *Thread, args []Value) (Value, error) {
				return stringValue(strconv.Itoa(int(args[0].Int))), nil
			}),
			static("valueOf", "(Ljava/lang/Object;)Ljava/lang/String;", func(t *Thread, args []Value) (Value, error) {
				s, err := t.stringOf(args[0])
				if err != nil {
					return Value{}, err
				}
				return stringValue(s), nil
			}),
		},
	})
}

// throwableSubclasses lists the built-in exception classes by superclass.
var throwableSubclasses = [][2]string{
	{"java/lang/Exception", "java/lang/Throwable"},
	{"java/lang/Error", "java/lang/Throwable"},
	{"java/lang/RuntimeException", "java/lang/Exception"},
	{"java/lang/IllegalArgumentException", "java/lang/RuntimeException"},
	{"java/lang/NumberFormatException", "java/lang/IllegalArgumentException"},
	{"java/util/regex/PatternSyntaxException", "java/lang/IllegalArgumentException"},
	{"java/lang/IllegalStateException", "java/lang/RuntimeException"},
	{"java/lang/ArithmeticException", "java/lang/RuntimeException"},
	{"java/lang/NullPointerException", "java/lang/RuntimeException"},
	{"java/lang/ClassCastException", "java/lang/RuntimeException"},
	{"java/lang/IndexOutOfBoundsException", "java/lang/RuntimeException"},
	{"java/lang/ArrayIndexOutOfBoundsException", "java/lang/IndexOutOfBoundsException"},
	{"java/lang/StringIndexOutOfBoundsException", "java/lang/IndexOutOfBoundsException"},
	{"java/lang/NegativeArraySizeException", "java/lang/RuntimeException"},
	{"java/lang/UnsupportedOperationException", "java/lang/RuntimeException"},
	{"java/lang/LinkageError", "java/lang/Error"},
	{"java/lang/ExceptionInInitializerError", "java/lang/LinkageError"},
	{"java/lang/NoClassDefFoundError", "java/lang/LinkageError"},
	{"java/lang/UnsatisfiedLinkError", "java/lang/LinkageError"},
	{"java/lang/IncompatibleClassChangeError", "java/lang/LinkageError"},
	{"java/lang/AbstractMethodError", "java/lang/IncompatibleClassChangeError"},
	{"java/lang/NoSuchMethodError", "java/lang/IncompatibleClassChangeError"},
	{"java/lang/NoSuchFieldError", "java/lang/IncompatibleClassChangeError"},
	{"java/lang/InstantiationError", "java/lang/IncompatibleClassChangeError"},
	{"java/lang/VirtualMachineError", "java/lang/Error"},
	{"java/lang/StackOverflowError", "java/lang/VirtualMachineError"},
}

func throwableConstructors() []nativeMethod {
	return []nativeMethod{
		virtual("<init>", "()V", nop),
		virtual("<init>", "(Ljava/lang/String;)V", func(t *Thread, args []Value) (Value, error) {
			args[0].Ref.(*JObject).SetField("detailMessage", args[1])
			return Value{}, nil
		}),
		virtual("<init>", "(Ljava/lang/String;Ljava/lang/Throwable;)V", func(t *Thread, args []Value) (Value, error) {
			this := args[0].Ref.(*JObject)
			this.SetField("detailMessage", args[1])
			this.SetField("cause", args[2])
			return Value{}, nil
		}),
		virtual("<init>", "(Ljava/lang/Throwable;)V", func(t *Thread, args []Value) (Value, error) {
			this := args[0].Ref.(*JObject)
			this.SetField("cause", args[1])
			if !args[1].IsNull() {
				s, err := t.stringOf(args[1])
				if err != nil {
					return Value{}, err
				}
				this.SetField("detailMessage", stringValue(s))
			}
			return Value{}, nil
		}),
	}
}

func (vm *VM) defineThrowables() {
	methods := append(throwableConstructors(),
		virtual("getMessage", "()Ljava/lang/String;", func(t *Thread, args []Value) (Value, error) {
			return args[0].Ref.(*JObject).GetField("detailMessage"), nil
		}),
		virtual("getCause", "()Ljava/lang/Throwable;", func(t *Thread, args []Value) (Value, error) {
			return args[0].Ref.(*JObject).GetField("cause"), nil
		}),
		virtual("toString", "()Ljava/lang/String;", func(t *Thread, args []Value) (Value, error) {
			ex := &JavaException{Object: args[0].Ref.(*JObject)}
			name := strings.ReplaceAll(ex.ClassName(), "/", ".")
			if msg := ex.Message(); msg != "" {
				return stringValue(name + ": " + msg), nil
			}
			return stringValue(name), nil
		}),
	)
	vm.builtin(builtinClass{
		name:  "java/lang/Throwable",
		super: "java/lang/Object",
		fields: []classfile.FieldInfo{
			{AccessFlags: classfile.AccPrivate, Name: "detailMessage", Descriptor: "Ljava/lang/String;"},
			{AccessFlags: classfile.AccPrivate, Name: "cause", Descriptor: "Ljava/lang/Throwable;"},
		},
		methods: methods,
	})
	for _, sub := range throwableSubclasses {
		vm.builtin(builtinClass{name: sub[0], super: sub[1], methods: throwableConstructors()})
	}
}

func (vm *VM) defineSystem() {
	printer := func(newline bool, format func(t *Thread, v Value) (any, error)) NativeMethod {
		return func(t *Thread, args []Value) (Value, error) {
			ps, ok := args[0].Ref.(*native.PrintStream)
			if !ok {
				ps = t.vm.out
			}
			var out []any
			if len(args) > 1 {
				x, err := format(t, args[1])
				if err != nil {
					return Value{}, err
				}
				out = append(out, x)
			}
			switch {
			case newline:
				ps.Println(out...)
			case len(out) == 1:
				ps.Print(out[0])
			}
			return Value{}, nil
		}
	}
	asInt := func(_ *Thread, v Value) (any, error) { return v.Int, nil }
	asLong := func(_ *Thread, v Value) (any, error) { return v.Long, nil }
	asFloat := func(_ *Thread, v Value) (any, error) { return v.Float, nil }
	asDouble := func(_ *Thread, v Value) (any, error) { return v.Double, nil }
	asBool := func(_ *Thread, v Value) (any, error) { return v.Int != 0, nil }
	asChar := func(_ *Thread, v Value) (any, error) { return string(rune(uint16(v.Int))), nil }
	asObject := func(t *Thread, v Value) (any, error) { return t.stringOf(v) }

	var methods []nativeMethod
	for _, name := range []string{"println", "print"} {
		nl := name == "println"
		methods = append(methods,
			virtual(name, "(I)V", printer(nl, asInt)),
			virtual(name, "(J)V", printer(nl, asLong)),
			virtual(name, "(F)V", printer(nl, asFloat)),
			virtual(name, "(D)V", printer(nl, asDouble)),
			virtual(name, "(Z)V", printer(nl, asBool)),
			virtual(name, "(C)V", printer(nl, asChar)),
			virtual(name, "(Ljava/lang/String;)V", printer(nl, asObject)),
			virtual(name, "(Ljava/lang/Object;)V", printer(nl, asObject)),
		)
	}
	methods = append(methods, virtual("println", "()V", printer(true, nil)))
	vm.builtin(builtinClass{name: "java/io/PrintStream", super: "java/lang/Object", methods: methods})

	vm.builtin(builtinClass{
		name:    "java/lang/System",
		super:   "java/lang/Object",
		flags:   classfile.AccPublic | classfile.AccFinal,
		statics: map[string]Value{"out": RefValue(vm.out)},
		methods: []nativeMethod{
			static("nanoTime", "()J", func(*Thread, []Value) (Value, error) {
				return LongValue(time.Now().UnixNano()), nil
			}),
			static("currentTimeMillis", "()J", func(*Thread, []Value) (Value, error) {
				return LongValue(time.Now().UnixMilli()), nil
			}),
			static("identityHashCode", "(Ljava/lang/Object;)I", func(t *Thread, args []Value) (Value, error) {
				if args[0].IsNull() {
					return IntValue(0), nil
				}
				return IntValue(t.vm.identityHash(args[0].Ref)), nil
			}),
		},
	})
}

func (vm *VM) defineCollections() {
	key := func(v Value) any {
		if v.IsNull() {
			return nil
		}
		return v.Ref
	}
	vm.builtin(builtinClass{
		name:  "java/util/HashMap",
		super: "java/lang/Object",
		alloc: func() any { return native.NewNativeHashMap() },
		methods: []nativeMethod{
			virtual("<init>", "()V", nop),
			virtual("get", "(Ljava/lang/Object;)Ljava/lang/Object;", func(t *Thread, args []Value) (Value, error) {
				return RefValue(args[0].Ref.(*native.NativeHashMap).Get(key(args[1]))), nil
			}),
			virtual("put", "(Ljava/lang/Object;Ljava/lang/Object;)Ljava/lang/Object;", func(t *Thread, args []Value) (Value, error) {
				return RefValue(args[0].Ref.(*native.NativeHashMap).Put(key(args[1]), key(args[2]))), nil
			}),
			virtual("size", "()I", func(t *Thread, args []Value) (Value, error) {
				return IntValue(args[0].Ref.(*native.NativeHashMap).Size()), nil
			}),
		},
	})

	vm.builtin(builtinClass{
		name:  "java/lang/Integer",
		super: "java/lang/Object",
		flags: classfile.AccPublic | classfile.AccFinal,
		methods: []nativeMethod{
			static("valueOf", "(I)Ljava/lang/Integer;", func(t *Thread, args []Value) (Value, error) {
				return RefValue(native.IntegerValueOf(args[0].Int)), nil
			}),
			static("parseInt", "(Ljava/lang/String;)I", func(t *Thread, args []Value) (Value, error) {
				s, err := t.jstring(args[0])
				if err != nil {
					return Value{}, err
				}
				n, perr := strconv.ParseInt(s.Value, 10, 32)
				if perr != nil {
					return Value{}, t.vm.throw("java/lang/NumberFormatException", "For input string: %q", s.Value)
				}
				return IntValue(int32(n)), nil
			}),
			virtual("intValue", "()I", func(t *Thread, args []Value) (Value, error) {
				return IntValue(native.IntegerIntValue(args[0].Ref.(*native.NativeInteger))), nil
			}),
			virtual("hashCode", "()I", func(t *Thread, args []Value) (Value, error) {
				return IntValue(native.IntegerIntValue(args[0].Ref.(*native.NativeInteger))), nil
			}),
			virtual("equals", "(Ljava/lang/Object;)Z", func(t *Thread, args []Value) (Value, error) {
				other, ok := args[1].Ref.(*native.NativeInteger)
				return boolValue(ok && other.Value == args[0].Ref.(*native.NativeInteger).Value), nil
			}),
			virtual("toString", "()Ljava/lang/String;", func(t *Thread, args []Value) (Value, error) {
				return stringValue(args[0].Ref.(*native.NativeInteger).String()), nil
			}),
		},
	})
}

// defineRuntimeSupport defines the classes whose frames the VM pushes on
// behalf of hooks and reflective construction.
func (vm *VM) defineRuntimeSupport() {
	hooks := vm.builtin(builtinClass{
		name:  "jweave/runtime/ConstructorHooks",
		super: "java/lang/Object",
		flags: classfile.AccPublic | classfile.AccFinal,
		methods: []nativeMethod{
			static("constructionDepth", "()I", func(*Thread, []Value) (Value, error) { return IntValue(-1), nil }),
		},
	})
	vm.hookMethod = hooks.DeclaredMethod("constructionDepth", "()I")

	unsupported := func(t *Thread, _ []Value) (Value, error) {
		return Value{}, t.vm.throw("java/lang/UnsupportedOperationException", "reflection")
	}
	ctor := vm.builtin(builtinClass{
		name:    "java/lang/reflect/Constructor",
		super:   "java/lang/Object",
		flags:   classfile.AccPublic | classfile.AccFinal,
		methods: []nativeMethod{virtual("newInstance", "([Ljava/lang/Object;)Ljava/lang/Object;", unsupported)},
	})
	accessor := vm.builtin(builtinClass{
		name:  "jdk/internal/reflect/NativeConstructorAccessorImpl",
		super: "java/lang/Object",
		methods: []nativeMethod{
			static("newInstance0", "(Ljava/lang/reflect/Constructor;[Ljava/lang/Object;)Ljava/lang/Object;", unsupported),
		},
	})
	// Outermost first.
	vm.reflectFrames = []*Method{
		ctor.DeclaredMethod("newInstance", "([Ljava/lang/Object;)Ljava/lang/Object;"),
		accessor.DeclaredMethod("newInstance0", "(Ljava/lang/reflect/Constructor;[Ljava/lang/Object;)Ljava/lang/Object;"),
	}
}
