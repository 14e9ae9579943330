package ctormock

import "github.com/daimatz/jweave/pkg/instrument"

// Resolve finds the outermost constructor in the chain of constructor calls
// on top of the stack.
//
// trace[0] is the frame of whoever asks; the walk starts at trace[1] and
// continues while frames are constructors. The last constructor frame is the
// instantiation of the concrete class, whose name is returned together with
// its index in trace. Without a constructor frame, or when the outermost
// constructor did not consult constructor hooks, the depth is -1: skipping
// the ancestors of a class whose own constructor body runs anyway would
// leave a half-built object.
//
// Class names come from classContext, which omits reflective frames. The two
// views are correlated by counting non-reflective frames from the top, so
// reflective frames anywhere in trace do not shift the lookup.
func Resolve(trace []instrument.CallFrame, classContext []string) (string, int) {
	depth := -1
	for i := 1; i < len(trace); i++ {
		if trace[i].Reflective || trace[i].Method != instrument.ConstructorName {
			break
		}
		depth = i
	}
	if depth < 1 || !trace[depth].Instrumented {
		return "", -1
	}
	pos := 0
	for _, f := range trace[:depth] {
		if !f.Reflective {
			pos++
		}
	}
	if pos >= len(classContext) {
		return "", -1
	}
	return classContext[pos], depth
}

// ConstructionDepth implements instrument.ConstructorHook. It returns the
// constructor depth of the outermost constructor when that constructor's
// class is registered, and -1 otherwise.
func (r *Registry) ConstructionDepth(stack instrument.CallStack) int {
	class, depth := Resolve(stack.StackTrace(), stack.ClassContext())
	if depth < 1 || !r.IsRegistered(class) {
		return -1
	}
	return depth
}

// Constructed implements instrument.ConstructorHook. The class was
// registered when ConstructionDepth decided to skip; if it was deactivated
// while the super constructors ran, the instance is dropped as Deactivate
// would have dropped it from the queue.
func (r *Registry) Constructed(instance instrument.Object) error {
	q := r.queue(instance.ClassName())
	if q == nil {
		log.Debugf("dropped mock of %s deactivated during construction", instance.ClassName())
		return nil
	}
	q.push(instance)
	return nil
}
