package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/daimatz/jweave/pkg/aspect"
	"github.com/daimatz/jweave/pkg/config"
	"github.com/daimatz/jweave/pkg/ctormock"
	"github.com/daimatz/jweave/pkg/instrument"
	"github.com/daimatz/jweave/pkg/mock"
)

var log = commonlog.GetLogger("jweave.cli")

// interception is a plan applied to one instrumenter.
type interception struct {
	weavers []*aspect.Weaver
	session *mock.Session
}

// applyPlan weaves the stubs of plan and opens a mock session for its
// mocks. Stubs are attached first so that they wrap the mock advice.
func applyPlan(inst instrument.Instrumenter, plan *config.Plan) (*interception, error) {
	ic := &interception{}
	for _, s := range plan.Stubs {
		classes, methods := stubMatchers(s)
		w, err := aspect.NewWeaver(inst, classes, methods, stubAdvice(s))
		if err != nil {
			return nil, errors.Join(fmt.Errorf("stub %s.%s: %w", s.Class, s.Method, err), ic.Close())
		}
		log.Infof("stubbed %s.%s%s (weaver %s)", s.Class, s.Method, s.Descriptor, w.ID())
		ic.weavers = append(ic.weavers, w)
	}
	if len(plan.Mocks) > 0 {
		session, err := mock.New(inst, ctormock.NewRegistry(), plan.Mocks...)
		if err != nil {
			return nil, errors.Join(err, ic.Close())
		}
		ic.session = session
	}
	return ic, nil
}

// Close detaches everything applyPlan attached.
func (ic *interception) Close() error {
	var errs []error
	if ic.session != nil {
		errs = append(errs, ic.session.Close())
	}
	for _, w := range ic.weavers {
		errs = append(errs, w.UnregisterTransformer())
	}
	return errors.Join(errs...)
}

// constructed returns how many mocks of each mocked class were built.
func (ic *interception) constructed() map[string]int {
	counts := make(map[string]int)
	if ic.session == nil {
		return counts
	}
	for _, c := range ic.session.Classes() {
		counts[c] = ic.session.Pending(c)
	}
	return counts
}

func stubMatchers(s config.Stub) (instrument.ClassMatcher, instrument.MethodMatcher) {
	methods := instrument.MethodNamed(s.Method)
	if s.Descriptor != "" {
		desc := s.Descriptor
		methods = methods.And(func(m instrument.MethodDescription) bool {
			return strings.HasPrefix(m.Descriptor, desc)
		})
	}
	return instrument.Named(s.Class), methods
}

// stubAdvice skips the original body unless the stub proceeds, and answers
// Returns if set. Failures of the original body pass through.
func stubAdvice(s config.Stub) aspect.Advice {
	return aspect.NewAroundAdvice(
		func(*instrument.Call) (bool, error) { return s.Proceed, nil },
		func(call *instrument.Call, proceeded bool, o aspect.Outcome) aspect.Outcome {
			switch {
			case o.Failed():
				return o
			case s.Returns != nil:
				return aspect.Success(s.Returns)
			case proceeded:
				return o
			}
			return aspect.Success(call.Method.ZeroResult())
		},
	)
}
