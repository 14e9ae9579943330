package ctormock

import (
	"fmt"
	"sort"
	"sync"

	"github.com/daimatz/jweave/pkg/instrument"
)

const objectClass = "java/lang/Object"

// Transformer instruments the constructors of a set of target classes and
// all of their ancestors so that they consult a Registry before running.
type Transformer struct {
	inst    instrument.Instrumenter
	classes []string

	mu     sync.Mutex
	handle instrument.Handle
	closed bool
}

// NewTransformer instruments the constructors of targets and their
// superclasses, java/lang/Object excepted. Registering the targets in the
// registry is a separate step.
func NewTransformer(inst instrument.Instrumenter, registry *Registry, targets ...string) (*Transformer, error) {
	set := make(map[string]struct{})
	for _, t := range targets {
		t = instrument.InternalName(t)
		set[t] = struct{}{}
		supers, err := inst.Supertypes(t)
		if err != nil {
			return nil, fmt.Errorf("constructor mock transformer: %w", err)
		}
		for _, s := range supers {
			set[s] = struct{}{}
		}
	}
	delete(set, objectClass)

	classes := make([]string, 0, len(set))
	for c := range set {
		classes = append(classes, c)
	}
	sort.Strings(classes)

	h, err := inst.InstrumentConstructors(instrument.AnyOf(classes...), registry)
	if err != nil {
		return nil, fmt.Errorf("constructor mock transformer: %w", err)
	}
	log.Debugf("instrumented constructors of %v (handle %d)", classes, h)
	return &Transformer{inst: inst, classes: classes, handle: h}, nil
}

// Classes returns the instrumented classes, sorted.
func (t *Transformer) Classes() []string {
	return append([]string(nil), t.classes...)
}

// Close removes the constructor instrumentation. Further calls are no-ops.
func (t *Transformer) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.inst.Detach(t.handle)
}
