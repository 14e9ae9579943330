package ctormock

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daimatz/jweave/pkg/instrument"
)

// recordingInstrumenter answers Supertypes from a fixed hierarchy and keeps
// the constructor requests it received.
type recordingInstrumenter struct {
	supers   map[string][]string
	classes  map[instrument.Handle]instrument.ClassMatcher
	hooks    map[instrument.Handle]instrument.ConstructorHook
	detached []instrument.Handle
}

func newRecordingInstrumenter() *recordingInstrumenter {
	return &recordingInstrumenter{
		supers: map[string][]string{
			"app/Widget": {"app/Base", "java/lang/Object"},
			"app/Sub":    {"app/Widget", "app/Base", "java/lang/Object"},
		},
		classes: make(map[instrument.Handle]instrument.ClassMatcher),
		hooks:   make(map[instrument.Handle]instrument.ConstructorHook),
	}
}

func (r *recordingInstrumenter) InstrumentConstructors(classes instrument.ClassMatcher, hook instrument.ConstructorHook) (instrument.Handle, error) {
	h := instrument.Handle(len(r.classes) + 1)
	r.classes[h] = classes
	r.hooks[h] = hook
	return h, nil
}

func (r *recordingInstrumenter) InstrumentMethods(instrument.ClassMatcher, instrument.MethodMatcher, instrument.MethodHook) (instrument.Handle, error) {
	return 0, errors.New("not supported")
}

func (r *recordingInstrumenter) Detach(h instrument.Handle) error {
	r.detached = append(r.detached, h)
	return nil
}

func (r *recordingInstrumenter) Supertypes(class string) ([]string, error) {
	s, ok := r.supers[class]
	if !ok {
		return nil, errors.New("no such class " + class)
	}
	return s, nil
}

func TestTransformerInstrumentsAncestors(t *testing.T) {
	inst := newRecordingInstrumenter()
	registry := NewRegistry()

	tr, err := NewTransformer(inst, registry, "app.Sub", "app/Widget")
	require.NoError(t, err)
	assert.Equal(t, []string{"app/Base", "app/Sub", "app/Widget"}, tr.Classes())

	require.Len(t, inst.classes, 1)
	matcher := inst.classes[1]
	for _, c := range tr.Classes() {
		assert.True(t, matcher(instrument.TypeDescription{Name: c}), c)
	}
	assert.False(t, matcher(instrument.TypeDescription{Name: "java/lang/Object"}), "Object constructor stays untouched")
	assert.Same(t, registry, inst.hooks[1])

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	assert.Equal(t, []instrument.Handle{1}, inst.detached, "second Close is a no-op")
}

func TestTransformerUnknownClass(t *testing.T) {
	inst := newRecordingInstrumenter()
	_, err := NewTransformer(inst, NewRegistry(), "app/Missing")
	require.Error(t, err)
	assert.Empty(t, inst.classes)
}
