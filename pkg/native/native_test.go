package native

import (
	"bytes"
	"testing"
)

func TestNativeHashMap(t *testing.T) {
	hm := NewNativeHashMap()
	puts := []struct {
		key, value, old any
	}{
		{key: "a", value: "1"},
		{key: "b", value: "2"},
		{key: "a", value: "3", old: "1"},
		{key: int32(0), value: int32(1)},
	}
	for _, p := range puts {
		if old := hm.Put(p.key, p.value); old != p.old {
			t.Errorf("Put(%v): previous %v, want %v", p.key, old, p.old)
		}
	}

	for key, want := range map[any]any{"a": "3", "b": "2", int32(0): int32(1), "missing": nil} {
		if got := hm.Get(key); got != want {
			t.Errorf("Get(%v): got %v, want %v", key, got, want)
		}
	}
	if hm.Size() != 3 {
		t.Errorf("Size: got %d, want 3", hm.Size())
	}
}

func TestNativeInteger(t *testing.T) {
	for _, v := range []int32{0, 42, -100, 1<<31 - 1} {
		boxed := IntegerValueOf(v)
		if got := IntegerIntValue(boxed); got != v {
			t.Errorf("intValue(valueOf(%d)): got %d", v, got)
		}
		if boxed.ClassName() != "java/lang/Integer" {
			t.Errorf("class: got %s", boxed.ClassName())
		}
	}
	if IntegerValueOf(-7).String() != "-7" {
		t.Errorf("String: got %q", IntegerValueOf(-7).String())
	}
}

func TestNativeHashMapValueKeys(t *testing.T) {
	hm := NewNativeHashMap()
	hm.Put(NewString("k"), "v")

	// 別インスタンスでも内容が同じなら同じキー
	if got := hm.Get(NewString("k")); got != "v" {
		t.Errorf("Get(new String k): got %v, want %q", got, "v")
	}
	hm.Put(IntegerValueOf(7), "seven")
	if got := hm.Get(IntegerValueOf(7)); got != "seven" {
		t.Errorf("Get(Integer 7): got %v, want %q", got, "seven")
	}
	if hm.Size() != 2 {
		t.Errorf("Size: got %d, want 2", hm.Size())
	}
}

func TestJString(t *testing.T) {
	t.Run("hashCode matches java", func(t *testing.T) {
		tests := []struct {
			s    string
			want int32
		}{
			{"", 0},
			{"a", 97},
			{"hello", 99162322},
			{"Hello, World!", 1498789909},
		}
		for _, tt := range tests {
			if got := NewString(tt.s).HashCode(); got != tt.want {
				t.Errorf("hashCode(%q): got %d, want %d", tt.s, got, tt.want)
			}
		}
	})

	t.Run("length counts utf16 units", func(t *testing.T) {
		if got := NewString("héllo").Length(); got != 5 {
			t.Errorf("length: got %d, want 5", got)
		}
		if got := NewString("😀").Length(); got != 2 {
			t.Errorf("length of surrogate pair: got %d, want 2", got)
		}
	})

	t.Run("charAt", func(t *testing.T) {
		c, ok := NewString("abc").CharAt(1)
		if !ok || c != 'b' {
			t.Errorf("charAt(1): got %c %v", c, ok)
		}
		if _, ok := NewString("abc").CharAt(3); ok {
			t.Error("charAt(3) should be out of range")
		}
	})

	t.Run("replaceAll", func(t *testing.T) {
		got, err := NewString("a1b22c").ReplaceAll("[0-9]+", "#")
		if err != nil || got != "a#b#c" {
			t.Errorf("replaceAll: got %q, %v", got, err)
		}
		if _, err := NewString("x").ReplaceAll("(", ""); err == nil {
			t.Error("expected error for invalid pattern")
		}
	})

	t.Run("equals is by value, identity is by pointer", func(t *testing.T) {
		a, b := NewString("x"), NewString("x")
		if !a.Equals(b) {
			t.Error("equal contents should be equal")
		}
		if a == b {
			t.Error("distinct allocations should not be identical")
		}
	})
}

func TestStringPool(t *testing.T) {
	p := NewStringPool()
	if p.Intern("x") != p.Intern("x") {
		t.Error("interned strings should share identity")
	}
	if p.Intern("x") == p.Intern("y") {
		t.Error("different strings should not share identity")
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		in   interface{}
		want string
	}{
		{nil, "null"},
		{int32(42), "42"},
		{int64(-7), "-7"},
		{float32(1), "1.0"},
		{float64(2.5), "2.5"},
		{NewString("s"), "s"},
		{IntegerValueOf(9), "9"},
		{true, "true"},
	}
	for _, tt := range tests {
		if got := Format(tt.in); got != tt.want {
			t.Errorf("Format(%#v): got %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPrintStream(t *testing.T) {
	var buf bytes.Buffer
	ps := NewPrintStream(&buf)
	ps.Print("a")
	ps.Println(int32(1))
	ps.Println()
	if got, want := buf.String(), "a1\n\n"; got != want {
		t.Errorf("output: got %q, want %q", got, want)
	}
}
