// Package ctormock implements constructor mocking: a registry of target
// classes whose constructors skip their original bodies, the stack walk that
// decides which constructors are affected, and a transformer that installs
// the constructor hooks.
package ctormock

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tliron/commonlog"

	"github.com/daimatz/jweave/pkg/instrument"
)

var log = commonlog.GetLogger("jweave.ctormock")

// ErrNotRegistered means an instance was handed over for a class that is not
// a constructor mocking target. It indicates that instrumentation and
// registry state are out of sync.
var ErrNotRegistered = errors.New("class not registered for constructor mocking")

// Registry tracks the classes registered as constructor mocking targets and
// hands constructed mock instances over to pollers.
//
// Class names are accepted in dotted or internal form. Constructor mocking
// only has an effect once the class and its ancestors are also instrumented,
// see Transformer.
type Registry struct {
	mu      sync.RWMutex
	targets map[string]*handoffQueue
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{targets: make(map[string]*handoffQueue)}
}

// IsRegistered reports whether class is a constructor mocking target.
func (r *Registry) IsRegistered(class string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.targets[instrument.InternalName(class)]
	return ok
}

// Activate registers class as a target with an empty hand-off queue.
// Returns false, changing nothing, if it was already registered.
func (r *Registry) Activate(class string) bool {
	class = instrument.InternalName(class)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.targets[class]; ok {
		return false
	}
	r.targets[class] = newHandoffQueue()
	log.Debugf("activated constructor mocking for %s", class)
	return true
}

// Deactivate unregisters class and discards instances nobody polled.
// Pollers blocked on the class return empty-handed.
func (r *Registry) Deactivate(class string) {
	class = instrument.InternalName(class)
	r.mu.Lock()
	q, ok := r.targets[class]
	delete(r.targets, class)
	r.mu.Unlock()
	if ok {
		q.close()
		log.Debugf("deactivated constructor mocking for %s", class)
	}
}

// Reset deactivates every class.
func (r *Registry) Reset() {
	r.mu.Lock()
	old := r.targets
	r.targets = make(map[string]*handoffQueue)
	r.mu.Unlock()
	for _, q := range old {
		q.close()
	}
}

// Classes returns the registered class names.
func (r *Registry) Classes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.targets))
	for n := range r.targets {
		names = append(names, n)
	}
	return names
}

// Pending returns the number of instances waiting to be polled for class.
func (r *Registry) Pending(class string) int {
	q := r.queue(class)
	if q == nil {
		return 0
	}
	return q.len()
}

// RegisterConstructedInstance queues a freshly constructed mock instance
// under its exact class. It is called by instrumented constructors only.
func (r *Registry) RegisterConstructedInstance(instance instrument.Object) error {
	// Do not log the instance: its methods may be stubbed.
	class := instance.ClassName()
	q := r.queue(class)
	if q == nil {
		return fmt.Errorf("register constructed %s: %w", class, ErrNotRegistered)
	}
	q.push(instance)
	return nil
}

// Poll returns the oldest constructed instance of class without blocking.
// It returns false if the class is not registered or nothing is queued.
func (r *Registry) Poll(class string) (any, bool) {
	q := r.queue(class)
	if q == nil {
		return nil, false
	}
	return q.poll()
}

// PollTimeout is like Poll but waits up to timeout for an instance to
// arrive. A timeout yields false, not an error.
func (r *Registry) PollTimeout(class string, timeout time.Duration) (any, bool) {
	q := r.queue(class)
	if q == nil {
		return nil, false
	}
	return q.pollTimeout(timeout)
}

func (r *Registry) queue(class string) *handoffQueue {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.targets[instrument.InternalName(class)]
}
