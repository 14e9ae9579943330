// Package mock turns whole classes into mocks: every instance constructed
// while a session is open skips its constructor bodies, and every method of
// the class returns the zero value of its return type.
package mock

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/daimatz/jweave/pkg/aspect"
	"github.com/daimatz/jweave/pkg/ctormock"
	"github.com/daimatz/jweave/pkg/instrument"
)

var log = commonlog.GetLogger("jweave.mock")

// ErrAlreadyMocked is returned when a class is already a constructor mocking
// target of the registry.
var ErrAlreadyMocked = errors.New("class already mocked")

// identityMethods are never mocked so that mocks stay usable as map keys and
// monitors.
var identityMethods = instrument.MethodNamed("getClass").
	Or(instrument.MethodNamed("hashCode")).
	Or(instrument.MethodNamed("equals")).
	Or(instrument.MethodNamed("clone")).
	Or(instrument.MethodNamed("notify")).
	Or(instrument.MethodNamed("notifyAll")).
	Or(instrument.MethodNamed("wait")).
	Or(instrument.MethodNamed("finalize"))

// Methods selects the methods a mocked class answers with zero values:
// every ordinary method except the identity methods of java/lang/Object.
var Methods = instrument.IsMethod().And(instrument.Not(identityMethods))

// Session is one set of mocked classes. It is open from New until Close.
type Session struct {
	id       string
	registry *ctormock.Registry
	classes  []string

	transformer *ctormock.Transformer
	weaver      *aspect.Weaver

	mu     sync.Mutex
	closed bool
}

// New mocks classes on inst. Constructed mocks are handed over through
// registry and can be taken with Constructed.
func New(inst instrument.Instrumenter, registry *ctormock.Registry, classes ...string) (*Session, error) {
	if len(classes) == 0 {
		return nil, fmt.Errorf("mock: no classes")
	}
	s := &Session{id: uuid.NewString(), registry: registry}

	for _, c := range classes {
		c = instrument.InternalName(c)
		if !registry.Activate(c) {
			s.deactivate()
			return nil, fmt.Errorf("mock %s: %w", c, ErrAlreadyMocked)
		}
		s.classes = append(s.classes, c)
	}

	var err error
	s.transformer, err = ctormock.NewTransformer(inst, registry, s.classes...)
	if err != nil {
		s.deactivate()
		return nil, fmt.Errorf("mock: %w", err)
	}
	s.weaver, err = aspect.NewWeaver(inst, instrument.AnyOf(s.classes...), Methods, aspect.Mock)
	if err != nil {
		s.deactivate()
		return nil, errors.Join(fmt.Errorf("mock: %w", err), s.transformer.Close())
	}

	log.Infof("mock session %s opened for %v", s.id, s.classes)
	return s, nil
}

// ID returns the session identifier used in log messages.
func (s *Session) ID() string { return s.id }

// Classes returns the mocked classes in internal form.
func (s *Session) Classes() []string {
	return append([]string(nil), s.classes...)
}

// Constructed returns the oldest mock of class constructed and not yet
// taken, if any.
func (s *Session) Constructed(class string) (any, bool) {
	return s.registry.Poll(class)
}

// WaitConstructed is Constructed, waiting up to timeout for a mock
// constructed on another thread.
func (s *Session) WaitConstructed(class string, timeout time.Duration) (any, bool) {
	return s.registry.PollTimeout(class, timeout)
}

// Pending returns how many mocks of class are waiting to be taken.
func (s *Session) Pending(class string) int {
	return s.registry.Pending(class)
}

// Close restores the original behaviour of the mocked classes and discards
// mocks that were never taken. Calling it again is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	err := errors.Join(s.weaver.UnregisterTransformer(), s.transformer.Close())
	s.deactivate()
	log.Infof("mock session %s closed", s.id)
	return err
}

func (s *Session) deactivate() {
	for _, c := range s.classes {
		s.registry.Deactivate(c)
	}
}
