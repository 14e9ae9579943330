package instrument

import "strings"

// ClassMatcher selects the classes an instrumentation request applies to.
type ClassMatcher func(TypeDescription) bool

// MethodMatcher selects methods within matched classes.
type MethodMatcher func(MethodDescription) bool

// Named matches classes by qualified name, dotted or internal form.
func Named(name string) ClassMatcher {
	name = InternalName(name)
	return func(t TypeDescription) bool { return t.Name == name }
}

// AnyOf matches any of the named classes.
func AnyOf(names ...string) ClassMatcher {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[InternalName(n)] = struct{}{}
	}
	return func(t TypeDescription) bool {
		_, ok := set[t.Name]
		return ok
	}
}

// AnyClass matches every class.
func AnyClass() ClassMatcher {
	return func(TypeDescription) bool { return true }
}

// SubTypeOf matches the named class and every class extending it.
func SubTypeOf(name string) ClassMatcher {
	name = InternalName(name)
	return func(t TypeDescription) bool {
		if t.Name == name {
			return true
		}
		for _, s := range t.Supertypes {
			if s == name {
				return true
			}
		}
		return false
	}
}

func (m ClassMatcher) And(o ClassMatcher) ClassMatcher {
	return func(t TypeDescription) bool { return m(t) && o(t) }
}

func (m ClassMatcher) Or(o ClassMatcher) ClassMatcher {
	return func(t TypeDescription) bool { return m(t) || o(t) }
}

// NotClass inverts a class matcher.
func NotClass(m ClassMatcher) ClassMatcher {
	return func(t TypeDescription) bool { return !m(t) }
}

// MethodNamed matches methods by simple name.
func MethodNamed(name string) MethodMatcher {
	return func(m MethodDescription) bool { return m.Name == name }
}

// TakesArguments matches methods whose parameter list is exactly the given
// field descriptors, e.g. TakesArguments("Ljava/lang/String;", "I").
func TakesArguments(params ...string) MethodMatcher {
	want := "(" + strings.Join(params, "") + ")"
	return func(m MethodDescription) bool { return strings.HasPrefix(m.Descriptor, want) }
}

// Returns matches methods by return descriptor, e.g. Returns("V").
func Returns(desc string) MethodMatcher {
	return func(m MethodDescription) bool {
		i := strings.LastIndexByte(m.Descriptor, ')')
		return i >= 0 && m.Descriptor[i+1:] == desc
	}
}

// IsMethod matches ordinary methods, excluding constructors and type
// initializers.
func IsMethod() MethodMatcher {
	return func(m MethodDescription) bool { return !m.IsConstructor() && !m.IsTypeInitializer() }
}

func IsConstructor() MethodMatcher {
	return func(m MethodDescription) bool { return m.IsConstructor() }
}

func IsTypeInitializer() MethodMatcher {
	return func(m MethodDescription) bool { return m.IsTypeInitializer() }
}

func IsStatic() MethodMatcher {
	return func(m MethodDescription) bool { return m.Static }
}

// AnyMethod matches every method, constructors and initializers included.
func AnyMethod() MethodMatcher {
	return func(MethodDescription) bool { return true }
}

func (m MethodMatcher) And(o MethodMatcher) MethodMatcher {
	return func(d MethodDescription) bool { return m(d) && o(d) }
}

func (m MethodMatcher) Or(o MethodMatcher) MethodMatcher {
	return func(d MethodDescription) bool { return m(d) || o(d) }
}

// Not inverts a method matcher.
func Not(m MethodMatcher) MethodMatcher {
	return func(d MethodDescription) bool { return !m(d) }
}
