package vm

import (
	"fmt"
	"sync"

	"github.com/daimatz/jweave/pkg/instrument"
)

var _ instrument.Instrumenter = (*VM)(nil)

type instrumentation struct {
	mu       sync.Mutex
	next     instrument.Handle
	requests []*request
}

// request is one live instrumentation request. It is applied to every class
// defined while it is live, including classes defined before it was made.
type request struct {
	handle  instrument.Handle
	classes instrument.ClassMatcher
	methods instrument.MethodMatcher
	ctor    instrument.ConstructorHook
	advice  instrument.MethodHook
}

func (r *request) matches(m *Method) bool {
	if r.ctor != nil {
		return m.Name == instrument.ConstructorName
	}
	return r.methods(m.Description())
}

// apply attaches r to the matching methods of c and returns how many.
func (r *request) apply(c *Class) int {
	if !r.classes(c.Description()) {
		return 0
	}
	n := 0
	for _, m := range c.Methods {
		if m.Native != nil && m.Name == instrument.ConstructorName && r.ctor != nil {
			// Native constructors never consult constructor hooks.
			continue
		}
		if r.matches(m) {
			m.attach(r)
			n++
		}
	}
	return n
}

// InstrumentConstructors asks every matching constructor, of loaded and
// future classes, to consult hook before running its body.
func (vm *VM) InstrumentConstructors(classes instrument.ClassMatcher, hook instrument.ConstructorHook) (instrument.Handle, error) {
	if classes == nil || hook == nil {
		return 0, fmt.Errorf("instrument constructors: matcher and hook are required")
	}
	return vm.addRequest(&request{classes: classes, ctor: hook}), nil
}

// InstrumentMethods wraps every matching method, of loaded and future
// classes, in hook.
func (vm *VM) InstrumentMethods(classes instrument.ClassMatcher, methods instrument.MethodMatcher, hook instrument.MethodHook) (instrument.Handle, error) {
	if classes == nil || methods == nil || hook == nil {
		return 0, fmt.Errorf("instrument methods: matchers and hook are required")
	}
	return vm.addRequest(&request{classes: classes, methods: methods, advice: hook}), nil
}

func (vm *VM) addRequest(r *request) instrument.Handle {
	vm.inst.mu.Lock()
	defer vm.inst.mu.Unlock()

	vm.inst.next++
	r.handle = vm.inst.next
	vm.inst.requests = append(vm.inst.requests, r)

	n := 0
	for _, c := range vm.Classes() {
		n += r.apply(c)
	}
	log.Debugf("instrumentation %d attached to %d loaded methods", r.handle, n)
	return r.handle
}

// Detach removes the hooks of h from every method. Unknown handles are
// ignored.
func (vm *VM) Detach(h instrument.Handle) error {
	vm.inst.mu.Lock()
	defer vm.inst.mu.Unlock()

	idx := -1
	for i, r := range vm.inst.requests {
		if r.handle == h {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	vm.inst.requests = append(vm.inst.requests[:idx], vm.inst.requests[idx+1:]...)
	for _, c := range vm.Classes() {
		for _, m := range c.Methods {
			m.detach(h)
		}
	}
	log.Debugf("instrumentation %d detached", h)
	return nil
}

// Supertypes loads class if necessary and returns its superclass chain.
func (vm *VM) Supertypes(class string) ([]string, error) {
	c, err := vm.LoadClass(class)
	if err != nil {
		return nil, err
	}
	return c.Supertypes(), nil
}
