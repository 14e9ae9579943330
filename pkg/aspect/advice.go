// Package aspect implements around advice and the weaver that attaches it to
// methods of loaded classes.
package aspect

import (
	"github.com/daimatz/jweave/pkg/instrument"
)

// Outcome is the result of an invocation: either a value or an error.
type Outcome struct {
	Value any
	Err   error
}

// Success wraps a normal result.
func Success(v any) Outcome { return Outcome{Value: v} }

// Failure wraps an error. The value is always nil.
func Failure(err error) Outcome { return Outcome{Err: err} }

func (o Outcome) Failed() bool { return o.Err != nil }

// Advice decides whether the original body runs and shapes the final
// outcome of a call.
type Advice interface {
	// Before runs ahead of the original body and may modify call.Args.
	// Returning false skips the body. Returning an error skips the body and
	// hands the error to After as a failed outcome.
	Before(call *instrument.Call) (proceed bool, err error)
	// After receives what happened and returns what the caller observes.
	After(call *instrument.Call, proceeded bool, outcome Outcome) Outcome
}

// BeforeFunc is the first phase of an AroundAdvice.
type BeforeFunc func(call *instrument.Call) (bool, error)

// AfterFunc is the second phase of an AroundAdvice.
type AfterFunc func(call *instrument.Call, proceeded bool, outcome Outcome) Outcome

// AroundAdvice is an immutable Before/After pair.
type AroundAdvice struct {
	before BeforeFunc
	after  AfterFunc
}

var (
	// BeforeDefault always proceeds.
	BeforeDefault BeforeFunc = func(*instrument.Call) (bool, error) { return true, nil }
	// AfterDefault passes the outcome through unchanged.
	AfterDefault AfterFunc = func(_ *instrument.Call, _ bool, o Outcome) Outcome { return o }
)

// NewAroundAdvice creates an advice. Nil phases fall back to BeforeDefault
// and AfterDefault.
func NewAroundAdvice(before BeforeFunc, after AfterFunc) *AroundAdvice {
	if before == nil {
		before = BeforeDefault
	}
	if after == nil {
		after = AfterDefault
	}
	return &AroundAdvice{before: before, after: after}
}

func (a *AroundAdvice) Before(call *instrument.Call) (bool, error) {
	return a.before(call)
}

func (a *AroundAdvice) After(call *instrument.Call, proceeded bool, outcome Outcome) Outcome {
	return a.after(call, proceeded, outcome)
}

// Mock never runs the original body and returns the zero value of the
// method's return type.
var Mock = NewAroundAdvice(
	func(*instrument.Call) (bool, error) { return false, nil },
	func(call *instrument.Call, _ bool, _ Outcome) Outcome {
		return Success(call.Method.ZeroResult())
	},
)

// Stub returns an advice that skips the original body and returns v.
func Stub(v any) *AroundAdvice {
	return NewAroundAdvice(
		func(*instrument.Call) (bool, error) { return false, nil },
		func(*instrument.Call, bool, Outcome) Outcome { return Success(v) },
	)
}

// Execute runs one advised call: Before, then the original body if Before
// allowed it, then After. Whatever After returns is the call's result.
func Execute(advice Advice, call *instrument.Call, proceed instrument.Proceed) (any, error) {
	var outcome Outcome
	proceeded, err := advice.Before(call)
	switch {
	case err != nil:
		proceeded = false
		outcome = Failure(err)
	case proceeded:
		v, err := proceed(call.Args)
		if err != nil {
			outcome = Failure(err)
		} else {
			outcome = Success(v)
		}
	}
	outcome = advice.After(call, proceeded, outcome)
	if outcome.Err != nil {
		return nil, outcome.Err
	}
	return outcome.Value, nil
}
