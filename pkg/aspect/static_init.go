package aspect

import "github.com/daimatz/jweave/pkg/instrument"

// StaticInitBefore decides whether the class initializer of class runs.
type StaticInitBefore func(class string) bool

// StaticInitAfter sees whether the initializer ran and what it failed with,
// if anything. The returned error, if any, becomes the initialization error.
type StaticInitAfter func(class string, proceeded bool, err error) error

var (
	StaticInitBeforeDefault StaticInitBefore = func(string) bool { return true }
	// StaticInitAfterDefault rethrows initializer failures.
	StaticInitAfterDefault StaticInitAfter = func(_ string, _ bool, err error) error { return err }
)

// StaticInitializerAroundAdvice is around advice for the one-time class
// initializer. Weave it with instrument.IsTypeInitializer().
type StaticInitializerAroundAdvice struct {
	before StaticInitBefore
	after  StaticInitAfter
}

func NewStaticInitializerAroundAdvice(before StaticInitBefore, after StaticInitAfter) *StaticInitializerAroundAdvice {
	if before == nil {
		before = StaticInitBeforeDefault
	}
	if after == nil {
		after = StaticInitAfterDefault
	}
	return &StaticInitializerAroundAdvice{before: before, after: after}
}

func (a *StaticInitializerAroundAdvice) Before(call *instrument.Call) (bool, error) {
	return a.before(call.Method.Class), nil
}

func (a *StaticInitializerAroundAdvice) After(call *instrument.Call, proceeded bool, outcome Outcome) Outcome {
	if err := a.after(call.Method.Class, proceeded, outcome.Err); err != nil {
		return Failure(err)
	}
	return Success(nil)
}
