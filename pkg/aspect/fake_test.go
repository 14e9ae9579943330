package aspect

import (
	"sync"

	"github.com/daimatz/jweave/pkg/instrument"
)

// fakeInstrumenter records method hooks and lets tests drive calls through
// them without an interpreter.
type fakeInstrumenter struct {
	mu       sync.Mutex
	next     instrument.Handle
	requests map[instrument.Handle]fakeRequest
	detached []instrument.Handle
}

type fakeRequest struct {
	classes instrument.ClassMatcher
	methods instrument.MethodMatcher
	hook    instrument.MethodHook
}

func newFakeInstrumenter() *fakeInstrumenter {
	return &fakeInstrumenter{requests: make(map[instrument.Handle]fakeRequest)}
}

func (f *fakeInstrumenter) InstrumentConstructors(instrument.ClassMatcher, instrument.ConstructorHook) (instrument.Handle, error) {
	panic("not used")
}

func (f *fakeInstrumenter) InstrumentMethods(classes instrument.ClassMatcher, methods instrument.MethodMatcher, hook instrument.MethodHook) (instrument.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	f.requests[f.next] = fakeRequest{classes: classes, methods: methods, hook: hook}
	return f.next, nil
}

func (f *fakeInstrumenter) Detach(h instrument.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.requests, h)
	f.detached = append(f.detached, h)
	return nil
}

func (f *fakeInstrumenter) Supertypes(string) ([]string, error) { return nil, nil }

// invoke simulates a call of method on receiver with body as the
// uninstrumented method body.
func (f *fakeInstrumenter) invoke(receiver any, method instrument.MethodDescription, args []any, body instrument.Proceed) (any, error) {
	f.mu.Lock()
	var hooks []instrument.MethodHook
	for _, r := range f.requests {
		if r.classes(instrument.TypeDescription{Name: method.Class}) && r.methods(method) {
			hooks = append(hooks, r.hook)
		}
	}
	f.mu.Unlock()

	proceed := body
	for _, h := range hooks {
		inner, hook := proceed, h
		proceed = func(args []any) (any, error) {
			return hook(&instrument.Call{Receiver: receiver, Method: method, Args: args}, inner)
		}
	}
	return proceed(args)
}
