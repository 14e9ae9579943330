package vm

import (
	"reflect"
	"testing"
	"time"

	"github.com/daimatz/jweave/pkg/classfile"
	"github.com/daimatz/jweave/pkg/classfile/opcode"
	"github.com/daimatz/jweave/pkg/instrument"
)

// widgetClasses returns Base, which sets tag in its constructor, and Widget
// extends Base, which stores its constructor argument in size.
func widgetClasses() []*classfile.ClassFile {
	base := classfile.NewBuilder("Base", object)
	base.Field(classfile.AccPublic, "tag", "I")
	base.Method(classfile.AccPublic, "<init>", "()V", base.Code(2, 1).
		Load(opcode.Aload, 0).InvokeSpecial(object, "<init>", "()V").
		Load(opcode.Aload, 0).Int(1).PutField("Base", "tag", "I").
		Op(opcode.Return))

	widget := classfile.NewBuilder("Widget", "Base")
	widget.Field(classfile.AccPublic, "size", "I")
	widget.Method(classfile.AccPublic, "<init>", "(I)V", widget.Code(2, 2).
		Load(opcode.Aload, 0).InvokeSpecial("Base", "<init>", "()V").
		Load(opcode.Aload, 0).Load(opcode.Iload, 1).PutField("Widget", "size", "I").
		Op(opcode.Return))
	return []*classfile.ClassFile{base.MustBuild(), widget.MustBuild()}
}

func newCounter(t *testing.T, th *Thread) any {
	t.Helper()
	obj, err := th.New("Counter", "()V")
	if err != nil {
		t.Fatalf("New Counter: %v", err)
	}
	return obj
}

func invokeInt(t *testing.T, th *Thread, obj any, name string) int32 {
	t.Helper()
	got, err := th.Invoke(obj, name, "()I")
	if err != nil {
		t.Fatalf("Invoke %s: %v", name, err)
	}
	return got.(int32)
}

func TestInstrumentMethods(t *testing.T) {
	later := classfile.NewBuilder("Later", object)
	later.Method(classfile.AccPublic|classfile.AccStatic, "answer", "()I", later.Code(1, 0).
		Int(42).Op(opcode.Ireturn))

	v, _ := newTestVM(t, counterClass(), later.MustBuild())
	th := v.NewThread()
	if _, err := v.LoadClass("Counter"); err != nil {
		t.Fatal(err)
	}

	var calls []string
	_, err := v.InstrumentMethods(instrument.AnyOf("Counter", "Later"), instrument.Returns("I"),
		func(call *instrument.Call, proceed instrument.Proceed) (any, error) {
			calls = append(calls, call.Method.String())
			ret, err := proceed(call.Args)
			if err != nil {
				return nil, err
			}
			return ret.(int32) + 100, nil
		})
	if err != nil {
		t.Fatal(err)
	}

	// 既にロード済みのクラス
	obj := newCounter(t, th)
	if got := invokeInt(t, th, obj, "get"); got != 100 {
		t.Errorf("Counter.get: got %d, want 100", got)
	}

	// 後からロードされるクラス
	got, err := th.InvokeStatic("Later", "answer", "()I")
	if err != nil {
		t.Fatal(err)
	}
	if got != int32(142) {
		t.Errorf("Later.answer: got %v, want 142", got)
	}

	want := []string{"Counter.get()I", "Later.answer()I"}
	if !reflect.DeepEqual(calls, want) {
		t.Errorf("advised calls: got %v, want %v", calls, want)
	}
}

func TestAdviceArguments(t *testing.T) {
	v, _ := newTestVM(t, counterClass())
	th := v.NewThread()

	var receivers []any
	_, err := v.InstrumentMethods(instrument.Named("Counter"), instrument.MethodNamed("add").Or(instrument.MethodNamed("twice")),
		func(call *instrument.Call, proceed instrument.Proceed) (any, error) {
			receivers = append(receivers, call.Receiver)
			switch a := call.Args[0].(type) {
			case int32:
				call.Args[0] = a * 10
			case int64:
				call.Args[0] = a + 1
			}
			return proceed(call.Args)
		})
	if err != nil {
		t.Fatal(err)
	}

	obj := newCounter(t, th)
	if _, err := th.Invoke(obj, "add", "(I)V", int32(2)); err != nil {
		t.Fatal(err)
	}
	if got := invokeInt(t, th, obj, "get"); got != 20 {
		t.Errorf("get after modified add: got %d, want 20", got)
	}

	got, err := th.InvokeStatic("Counter", "twice", "(J)J", int64(20))
	if err != nil {
		t.Fatal(err)
	}
	if got != int64(42) {
		t.Errorf("twice: got %v, want 42", got)
	}

	if len(receivers) != 2 || receivers[0] != obj || receivers[1] != "Counter" {
		t.Errorf("receivers: got %v, want [instance Counter]", receivers)
	}
}

func TestAdviceSkipsBody(t *testing.T) {
	v, _ := newTestVM(t, counterClass())
	th := v.NewThread()

	_, err := v.InstrumentMethods(instrument.Named("Counter"), instrument.IsMethod(),
		func(call *instrument.Call, proceed instrument.Proceed) (any, error) {
			if call.Method.Name == "add" {
				return nil, nil
			}
			return proceed(call.Args)
		})
	if err != nil {
		t.Fatal(err)
	}

	obj := newCounter(t, th)
	if _, err := th.Invoke(obj, "add", "(I)V", int32(5)); err != nil {
		t.Fatal(err)
	}
	if got := invokeInt(t, th, obj, "get"); got != 0 {
		t.Errorf("get after skipped add: got %d, want 0", got)
	}
}

func TestAdviceThrows(t *testing.T) {
	v, _ := newTestVM(t, counterClass())
	th := v.NewThread()

	_, err := v.InstrumentMethods(instrument.Named("Counter"), instrument.MethodNamed("get"),
		func(*instrument.Call, instrument.Proceed) (any, error) {
			return nil, v.throw("java/lang/IllegalStateException", "advised")
		})
	if err != nil {
		t.Fatal(err)
	}

	obj := newCounter(t, th)
	if _, err := th.Invoke(obj, "get", "()I"); !IsJavaException(err, "java/lang/IllegalStateException") {
		t.Errorf("got %v, want IllegalStateException", err)
	}
}

func TestAdviceOrder(t *testing.T) {
	v, _ := newTestVM(t, counterClass())
	th := v.NewThread()

	var order []string
	tracer := func(name string) instrument.MethodHook {
		return func(call *instrument.Call, proceed instrument.Proceed) (any, error) {
			order = append(order, name+" before")
			ret, err := proceed(call.Args)
			order = append(order, name+" after")
			return ret, err
		}
	}
	for _, name := range []string{"outer", "inner"} {
		if _, err := v.InstrumentMethods(instrument.Named("Counter"), instrument.MethodNamed("get"), tracer(name)); err != nil {
			t.Fatal(err)
		}
	}

	invokeInt(t, th, newCounter(t, th), "get")
	want := []string{"outer before", "inner before", "inner after", "outer after"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("order: got %v, want %v", order, want)
	}
}

func TestDetach(t *testing.T) {
	v, _ := newTestVM(t, counterClass())
	th := v.NewThread()

	calls := 0
	h, err := v.InstrumentMethods(instrument.AnyClass(), instrument.MethodNamed("get"),
		func(call *instrument.Call, proceed instrument.Proceed) (any, error) {
			calls++
			return proceed(call.Args)
		})
	if err != nil {
		t.Fatal(err)
	}

	obj := newCounter(t, th)
	invokeInt(t, th, obj, "get")
	if err := v.Detach(h); err != nil {
		t.Fatal(err)
	}
	invokeInt(t, th, obj, "get")
	if calls != 1 {
		t.Errorf("hook calls: got %d, want 1", calls)
	}

	// 二重の Detach や未知のハンドルは無視される
	if err := v.Detach(h); err != nil {
		t.Errorf("second detach: %v", err)
	}
	if err := v.Detach(9999); err != nil {
		t.Errorf("unknown handle: %v", err)
	}
}

func TestInstrumentRejectsNil(t *testing.T) {
	v := NewVM(nil)
	if _, err := v.InstrumentMethods(nil, instrument.AnyMethod(), func(*instrument.Call, instrument.Proceed) (any, error) { return nil, nil }); err == nil {
		t.Error("nil class matcher: expected error")
	}
	if _, err := v.InstrumentConstructors(instrument.AnyClass(), nil); err == nil {
		t.Error("nil constructor hook: expected error")
	}
}

func TestTypeInitializerAdvice(t *testing.T) {
	config := classfile.NewBuilder("Config", object)
	config.Field(classfile.AccPublic|classfile.AccStatic, "value", "I")
	config.Method(classfile.AccStatic, "<clinit>", "()V", config.Code(1, 0).
		Int(42).PutStatic("Config", "value", "I").
		Op(opcode.Return))
	config.Method(classfile.AccPublic|classfile.AccStatic, "value", "()I", config.Code(1, 0).
		GetStatic("Config", "value", "I").Op(opcode.Ireturn))

	v, _ := newTestVM(t, config.MustBuild())
	th := v.NewThread()

	var receiver any
	_, err := v.InstrumentMethods(instrument.Named("Config"), instrument.IsTypeInitializer(),
		func(call *instrument.Call, _ instrument.Proceed) (any, error) {
			receiver = call.Receiver
			return nil, nil
		})
	if err != nil {
		t.Fatal(err)
	}

	got, err := th.InvokeStatic("Config", "value", "()I")
	if err != nil {
		t.Fatal(err)
	}
	if got != int32(0) {
		t.Errorf("value with skipped initializer: got %v, want 0", got)
	}
	if receiver != "Config" {
		t.Errorf("receiver: got %v, want class name", receiver)
	}
}

// fakeConstructorHook answers every question with depth and records what it
// saw.
type fakeConstructorHook struct {
	depth       int
	traces      [][]instrument.CallFrame
	contexts    [][]string
	constructed []instrument.Object
}

func (h *fakeConstructorHook) ConstructionDepth(stack instrument.CallStack) int {
	h.traces = append(h.traces, stack.StackTrace())
	h.contexts = append(h.contexts, stack.ClassContext())
	return h.depth
}

func (h *fakeConstructorHook) Constructed(obj instrument.Object) error {
	h.constructed = append(h.constructed, obj)
	return nil
}

func TestConstructorHooks(t *testing.T) {
	tests := []struct {
		name            string
		depth           int
		wantSize        int32
		wantConstructed bool
	}{
		{"not a mock", -1, 5, false},
		{"concrete mock", 1, 0, true},
		{"mock of a subclass", 2, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, _ := newTestVM(t, widgetClasses()...)
			th := v.NewThread()
			hook := &fakeConstructorHook{depth: tt.depth}
			if _, err := v.InstrumentConstructors(instrument.Named("Widget"), hook); err != nil {
				t.Fatal(err)
			}

			obj, err := th.New("Widget", "(I)V", int32(5))
			if err != nil {
				t.Fatal(err)
			}
			w := obj.(*JObject)
			if got := w.GetField("size").Int; got != tt.wantSize {
				t.Errorf("size: got %d, want %d", got, tt.wantSize)
			}
			// スーパークラスのコンストラクタは常に実行される
			if got := w.GetField("tag").Int; got != 1 {
				t.Errorf("tag: got %d, want 1", got)
			}
			if got := len(hook.constructed) == 1 && hook.constructed[0] == obj; got != tt.wantConstructed {
				t.Errorf("constructed: got %v, want %v", hook.constructed, tt.wantConstructed)
			}
			if len(hook.traces) != 1 {
				t.Fatalf("hook consulted %d times, want 1", len(hook.traces))
			}
			top := hook.traces[0][:2]
			want := []instrument.CallFrame{
				{Class: "jweave/runtime/ConstructorHooks", Method: "constructionDepth"},
				{Class: "Widget", Method: "<init>", Instrumented: true},
			}
			if !reflect.DeepEqual(top, want) {
				t.Errorf("trace: got %v, want %v", top, want)
			}
		})
	}
}

func TestConstructorHooksReflective(t *testing.T) {
	v, _ := newTestVM(t, widgetClasses()...)
	th := v.NewThread()
	hook := &fakeConstructorHook{depth: -1}
	if _, err := v.InstrumentConstructors(instrument.SubTypeOf("Base"), hook); err != nil {
		t.Fatal(err)
	}

	if _, err := th.NewReflective("Widget", "(I)V", int32(1)); err != nil {
		t.Fatal(err)
	}
	// Widget.<init> と Base.<init> の両方が問い合わせる
	if len(hook.traces) != 2 {
		t.Fatalf("hook consulted %d times, want 2", len(hook.traces))
	}

	trace := hook.traces[0]
	if len(trace) != 4 || !trace[2].Reflective || !trace[3].Reflective {
		t.Fatalf("trace: got %+v, want hook, constructor and two reflective frames", trace)
	}
	wantContext := []string{"jweave/runtime/ConstructorHooks", "Widget"}
	if !reflect.DeepEqual(hook.contexts[0], wantContext) {
		t.Errorf("class context: got %v, want %v", hook.contexts[0], wantContext)
	}

	base := hook.contexts[1]
	wantBase := []string{"jweave/runtime/ConstructorHooks", "Base", "Widget"}
	if !reflect.DeepEqual(base, wantBase) {
		t.Errorf("class context from Base: got %v, want %v", base, wantBase)
	}
}

func TestClassPublishedWithHooks(t *testing.T) {
	v, _ := newTestVM(t, widgetClasses()...)
	hook := &fakeConstructorHook{depth: -1}
	slow := func(td instrument.TypeDescription) bool {
		if td.Name != "Widget" {
			return false
		}
		time.Sleep(50 * time.Millisecond)
		return true
	}
	if _, err := v.InstrumentConstructors(slow, hook); err != nil {
		t.Fatal(err)
	}

	loaded := make(chan error, 1)
	go func() {
		_, err := v.LoadClass("Widget")
		loaded <- err
	}()

	// 別スレッドのロード中に公開されたクラスは既にフック済みであること
	deadline := time.Now().Add(5 * time.Second)
	for !defined(v, "Widget") {
		if time.Now().After(deadline) {
			t.Fatal("Widget never became visible")
		}
		time.Sleep(time.Millisecond)
	}
	if _, err := v.NewThread().New("Widget", "(I)V", int32(5)); err != nil {
		t.Fatal(err)
	}
	if len(hook.traces) != 1 {
		t.Errorf("hook consulted %d times, want 1", len(hook.traces))
	}
	if err := <-loaded; err != nil {
		t.Fatal(err)
	}
}

func defined(v *VM, name string) bool {
	for _, c := range v.Classes() {
		if c.Name == name {
			return true
		}
	}
	return false
}

func TestNativeConstructorsSkipHooks(t *testing.T) {
	v := NewVM(nil)
	hook := &fakeConstructorHook{depth: 1}
	if _, err := v.InstrumentConstructors(instrument.Named("java/lang/String"), hook); err != nil {
		t.Fatal(err)
	}
	if _, err := v.NewThread().New("java/lang/String", "()V"); err != nil {
		t.Fatal(err)
	}
	if len(hook.traces) != 0 {
		t.Errorf("native constructor consulted the hook %d times", len(hook.traces))
	}
}

func TestSupertypes(t *testing.T) {
	v, _ := newTestVM(t, widgetClasses()...)
	got, err := v.Supertypes("Widget")
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"Base", object}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if _, err := v.Supertypes("Missing"); err == nil {
		t.Error("unknown class: expected error")
	}
}
