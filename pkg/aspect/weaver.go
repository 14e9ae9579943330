package aspect

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/daimatz/jweave/pkg/instrument"
)

var log = commonlog.GetLogger("jweave.aspect")

// ErrUnregistered is returned when a detached weaver is asked to change its
// targets.
var ErrUnregistered = errors.New("weaver unregistered")

// Weaver is one weaving session: an advice attached to the methods selected
// by a class and a method matcher, optionally narrowed to bound targets.
//
// A weaver without bound targets advises every receiver. Once a target has
// been bound the weaver stays narrowed: removing the last target leaves it
// advising nobody rather than everybody.
//
// A weaver is active from construction until UnregisterTransformer. It cannot
// be re-attached; create a new one instead.
type Weaver struct {
	id     string
	inst   instrument.Instrumenter
	advice Advice

	handle instrument.Handle
	active atomic.Bool

	mu       sync.RWMutex
	targets  map[any]struct{}
	narrowed bool
}

// NewWeaver attaches advice to every method matching methods in every class
// matching classes, loaded now or later. With no targets the advice applies to
// all receivers; otherwise only to the bound ones.
func NewWeaver(inst instrument.Instrumenter, classes instrument.ClassMatcher, methods instrument.MethodMatcher, advice Advice, targets ...any) (*Weaver, error) {
	if advice == nil {
		return nil, fmt.Errorf("new weaver: advice is nil")
	}
	w := &Weaver{
		id:      uuid.NewString(),
		inst:    inst,
		advice:  advice,
		targets: make(map[any]struct{}, len(targets)),
	}
	for _, t := range targets {
		if !hashable(t) {
			return nil, fmt.Errorf("new weaver: target %T cannot be compared by identity", t)
		}
		w.targets[t] = struct{}{}
	}
	w.narrowed = len(w.targets) > 0
	// Active before the hook is installed so the first instrumented call
	// already sees the session.
	w.active.Store(true)
	h, err := inst.InstrumentMethods(classes, methods, w.intercept)
	if err != nil {
		w.active.Store(false)
		return nil, fmt.Errorf("new weaver: %w", err)
	}
	w.handle = h
	log.Debugf("weaver %s attached (handle %d, %d targets)", w.id, h, len(targets))
	return w, nil
}

// ID returns the session identifier used in log messages.
func (w *Weaver) ID() string { return w.id }

// Active reports whether the weaver is still attached.
func (w *Weaver) Active() bool { return w.active.Load() }

// AddTarget binds a receiver. Receivers are compared by identity, so pass
// pointers. Returns false if it was already bound.
func (w *Weaver) AddTarget(target any) (bool, error) {
	if !w.active.Load() {
		return false, ErrUnregistered
	}
	if !hashable(target) {
		return false, fmt.Errorf("add target: %T cannot be compared by identity", target)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.targets[target]; ok {
		return false, nil
	}
	w.targets[target] = struct{}{}
	w.narrowed = true
	return true, nil
}

// RemoveTarget unbinds a receiver, which then behaves as if it had never been
// bound. Returns false if it was not bound.
func (w *Weaver) RemoveTarget(target any) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !hashable(target) {
		return false
	}
	if _, ok := w.targets[target]; !ok {
		return false
	}
	delete(w.targets, target)
	return true
}

// HasTarget reports whether target is bound.
func (w *Weaver) HasTarget(target any) bool {
	if !hashable(target) {
		return false
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.targets[target]
	return ok
}

// UnregisterTransformer detaches the weaver and releases all targets.
// Calling it again is a no-op.
func (w *Weaver) UnregisterTransformer() error {
	if !w.active.CompareAndSwap(true, false) {
		return nil
	}
	w.mu.Lock()
	w.targets = make(map[any]struct{})
	w.mu.Unlock()
	if err := w.inst.Detach(w.handle); err != nil {
		return fmt.Errorf("unregister weaver %s: %w", w.id, err)
	}
	log.Debugf("weaver %s detached", w.id)
	return nil
}

func (w *Weaver) applies(receiver any) bool {
	if !w.active.Load() {
		return false
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if !w.narrowed {
		return true
	}
	if !hashable(receiver) {
		return false
	}
	_, ok := w.targets[receiver]
	return ok
}

// intercept is the hook installed into every matched method.
func (w *Weaver) intercept(call *instrument.Call, proceed instrument.Proceed) (any, error) {
	if !w.applies(call.Receiver) {
		return proceed(call.Args)
	}
	return Execute(w.advice, call, proceed)
}

// hashable guards map operations against receivers of unhashable dynamic
// type, which would panic.
func hashable(v any) bool {
	return v != nil && reflect.TypeOf(v).Comparable()
}
