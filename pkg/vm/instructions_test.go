package vm

import (
	"encoding/binary"
	"io"
	"math"
	"testing"

	"github.com/daimatz/jweave/pkg/classfile"
	"github.com/daimatz/jweave/pkg/native"
)

func newTestThread() *Thread {
	v := NewVM(nil)
	v.Stdout = io.Discard
	return v.NewThread()
}

// execute runs code in a fresh frame of class until a return instruction.
// Locals are stored from index 0.
func execute(t *testing.T, class *Class, code []byte, locals ...Value) (Value, error) {
	t.Helper()
	th := newTestThread()
	frame := NewFrame(8, 10, code, class)
	for i, v := range locals {
		frame.SetLocal(i, v)
	}
	for frame.PC < len(frame.Code) {
		op := frame.Code[frame.PC]
		frame.PC++
		retVal, hasReturn, err := th.executeInstruction(frame, op)
		if err != nil {
			return Value{}, err
		}
		if hasReturn {
			return retVal, nil
		}
	}
	t.Fatal("bytecode did not return a value (missing return?)")
	return Value{}, nil
}

// executeAndGetInt is execute for int-returning code without a class.
func executeAndGetInt(t *testing.T, code []byte, locals ...int32) int32 {
	t.Helper()
	vals := make([]Value, len(locals))
	for i, l := range locals {
		vals[i] = IntValue(l)
	}
	v, err := execute(t, nil, code, vals...)
	if err != nil {
		t.Fatalf("execution error: %v", err)
	}
	return v.Int
}

func i32(v int32) []byte { return binary.BigEndian.AppendUint32(nil, uint32(v)) }

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func TestIconst(t *testing.T) {
	tests := []struct {
		op   byte
		want int32
	}{
		{0x02, -1}, {0x03, 0}, {0x04, 1}, {0x05, 2}, {0x06, 3}, {0x07, 4}, {0x08, 5},
	}
	for _, tt := range tests {
		if got := executeAndGetInt(t, []byte{tt.op, 0xAC}); got != tt.want {
			t.Errorf("iconst 0x%02X: got %d, want %d", tt.op, got, tt.want)
		}
	}
}

func TestBipushSipush(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		want int32
	}{
		{"bipush positive", []byte{0x10, 100, 0xAC}, 100},
		{"bipush negative", []byte{0x10, 0x80, 0xAC}, -128},
		{"sipush positive", []byte{0x11, 0x03, 0xE8, 0xAC}, 1000},
		{"sipush negative", []byte{0x11, 0x80, 0x00, 0xAC}, -32768},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := executeAndGetInt(t, tt.code); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestArithmeticInstructions(t *testing.T) {
	tests := []struct {
		name string
		op   byte
		a, b int32
		want int32
	}{
		{"iadd", 0x60, 3, 4, 7},
		{"isub", 0x64, 10, 3, 7},
		{"imul", 0x68, 6, 7, 42},
		{"idiv", 0x6C, 20, 3, 6},
		{"idiv negative", 0x6C, -7, 2, -3},
		{"irem", 0x70, 20, 3, 2},
		{"irem negative", 0x70, -7, 2, -1},
		{"ishl", 0x78, 1, 33, 2},
		{"ishr", 0x7A, -8, 1, -4},
		{"iushr", 0x7C, -1, 28, 15},
		{"iand", 0x7E, 0b1100, 0b1010, 0b1000},
		{"ior", 0x80, 0b1100, 0b1010, 0b1110},
		{"ixor", 0x82, 0b1100, 0b1010, 0b0110},
		// MinInt32 / -1 は例外にならずラップする
		{"idiv overflow", 0x6C, math.MinInt32, -1, math.MinInt32},
		{"irem overflow", 0x70, math.MinInt32, -1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// iload_0, iload_1, op, ireturn
			got := executeAndGetInt(t, []byte{0x1A, 0x1B, tt.op, 0xAC}, tt.a, tt.b)
			if got != tt.want {
				t.Errorf("%d %s %d: got %d, want %d", tt.a, tt.name, tt.b, got, tt.want)
			}
		})
	}

	t.Run("ineg", func(t *testing.T) {
		if got := executeAndGetInt(t, []byte{0x1A, 0x74, 0xAC}, 5); got != -5 {
			t.Errorf("got %d, want -5", got)
		}
	})
	t.Run("iadd overflow wraps", func(t *testing.T) {
		got := executeAndGetInt(t, []byte{0x1A, 0x04, 0x60, 0xAC}, math.MaxInt32)
		if got != math.MinInt32 {
			t.Errorf("got %d, want %d", got, int32(math.MinInt32))
		}
	})
}

func TestDivisionByZero(t *testing.T) {
	for _, tt := range []struct {
		name string
		code []byte
	}{
		{"idiv", []byte{0x1A, 0x03, 0x6C, 0xAC}},
		{"irem", []byte{0x1A, 0x03, 0x70, 0xAC}},
		{"ldiv", []byte{0x0A, 0x09, 0x6D, 0xAD}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, nil, tt.code, IntValue(10))
			if !IsJavaException(err, "java/lang/ArithmeticException") {
				t.Errorf("got %v, want ArithmeticException", err)
			}
		})
	}
}

func TestWideTypes(t *testing.T) {
	t.Run("long arithmetic", func(t *testing.T) {
		// lload_0, lload_2, lmul, lreturn: the long in slot 0 spans slots 0-1
		v, err := execute(t, nil, []byte{0x1E, 0x20, 0x69, 0xAD},
			LongValue(3_000_000_000), Value{}, LongValue(4))
		if err != nil {
			t.Fatal(err)
		}
		if v.Type != TypeLong || v.Long != 12_000_000_000 {
			t.Errorf("got %+v, want long 12000000000", v)
		}
	})

	t.Run("double arithmetic", func(t *testing.T) {
		// dload_0, dload_2, dsub, dreturn
		v, err := execute(t, nil, []byte{0x26, 0x28, 0x67, 0xAF},
			DoubleValue(2.5), Value{}, DoubleValue(0.25))
		if err != nil {
			t.Fatal(err)
		}
		if v.Double != 2.25 {
			t.Errorf("got %v, want 2.25", v.Double)
		}
	})

	t.Run("float arithmetic", func(t *testing.T) {
		// fconst_2, fconst_1, fdiv, freturn
		v, err := execute(t, nil, []byte{0x0D, 0x0C, 0x6E, 0xAE})
		if err != nil {
			t.Fatal(err)
		}
		if v.Float != 2 {
			t.Errorf("got %v, want 2", v.Float)
		}
	})

	t.Run("pop2 removes one long", func(t *testing.T) {
		// iconst_3, lconst_1, pop2, ireturn
		if got := executeAndGetInt(t, []byte{0x06, 0x0A, 0x58, 0xAC}); got != 3 {
			t.Errorf("got %d, want 3", got)
		}
	})

	t.Run("pop2 removes two ints", func(t *testing.T) {
		// iconst_3, iconst_4, iconst_5, pop2, ireturn
		if got := executeAndGetInt(t, []byte{0x06, 0x07, 0x08, 0x58, 0xAC}); got != 3 {
			t.Errorf("got %d, want 3", got)
		}
	})

	t.Run("dup2 of a long", func(t *testing.T) {
		// lconst_1, dup2, ladd, lreturn
		v, err := execute(t, nil, []byte{0x0A, 0x5C, 0x61, 0xAD})
		if err != nil {
			t.Fatal(err)
		}
		if v.Long != 2 {
			t.Errorf("got %d, want 2", v.Long)
		}
	})
}

func TestConversions(t *testing.T) {
	tests := []struct {
		name  string
		code  []byte
		local Value
		want  Value
	}{
		{"i2l", []byte{0x1A, 0x85, 0xAD}, IntValue(-3), LongValue(-3)},
		{"l2i truncates", []byte{0x1E, 0x88, 0xAC}, LongValue(1<<32 + 7), IntValue(7)},
		{"i2b", []byte{0x1A, 0x91, 0xAC}, IntValue(200), IntValue(-56)},
		{"i2c", []byte{0x1A, 0x92, 0xAC}, IntValue(-1), IntValue(65535)},
		{"i2s", []byte{0x1A, 0x93, 0xAC}, IntValue(40000), IntValue(-25536)},
		{"f2i NaN", []byte{0x22, 0x8B, 0xAC}, FloatValue(float32(math.NaN())), IntValue(0)},
		{"f2i saturates", []byte{0x22, 0x8B, 0xAC}, FloatValue(1e20), IntValue(math.MaxInt32)},
		{"d2i saturates low", []byte{0x26, 0x8E, 0xAC}, DoubleValue(-1e20), IntValue(math.MinInt32)},
		{"d2l", []byte{0x26, 0x8F, 0xAD}, DoubleValue(-2.9), LongValue(-2)},
		{"i2d", []byte{0x1A, 0x87, 0xAF}, IntValue(7), DoubleValue(7)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := execute(t, nil, tt.code, tt.local)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestComparisons(t *testing.T) {
	nan := float32(math.NaN())
	tests := []struct {
		name string
		code []byte
		a, b Value
		want int32
	}{
		{"lcmp less", []byte{0x1E, 0x20, 0x94, 0xAC}, LongValue(1), LongValue(2), -1},
		{"lcmp equal", []byte{0x1E, 0x20, 0x94, 0xAC}, LongValue(2), LongValue(2), 0},
		{"fcmpl NaN", []byte{0x22, 0x23, 0x95, 0xAC}, FloatValue(nan), FloatValue(1), -1},
		{"fcmpg NaN", []byte{0x22, 0x23, 0x96, 0xAC}, FloatValue(nan), FloatValue(1), 1},
		{"fcmpl greater", []byte{0x22, 0x23, 0x95, 0xAC}, FloatValue(2), FloatValue(1), 1},
		{"dcmpg less", []byte{0x26, 0x28, 0x98, 0xAC}, DoubleValue(1), DoubleValue(2), -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// long/double locals take two slots; floats are read from 0 and 1
			locals := []Value{tt.a, tt.b}
			if tt.a.wide() {
				locals = []Value{tt.a, {}, tt.b}
			}
			got, err := execute(t, nil, tt.code, locals...)
			if err != nil {
				t.Fatal(err)
			}
			if got.Int != tt.want {
				t.Errorf("got %d, want %d", got.Int, tt.want)
			}
		})
	}
}

func TestBranch(t *testing.T) {
	// iload_0, <if> +7, iconst_0, ireturn, ..., iconst_1, ireturn
	branch := func(op byte) []byte {
		return []byte{0x1A, op, 0x00, 0x05, 0x03, 0xAC, 0x04, 0xAC}
	}
	tests := []struct {
		name  string
		op    byte
		value int32
		want  int32
	}{
		{"ifeq taken", 0x99, 0, 1},
		{"ifeq not taken", 0x99, 1, 0},
		{"ifne taken", 0x9A, 3, 1},
		{"iflt taken", 0x9B, -1, 1},
		{"ifge taken", 0x9C, 0, 1},
		{"ifgt not taken", 0x9D, 0, 0},
		{"ifle taken", 0x9E, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := executeAndGetInt(t, branch(tt.op), tt.value); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestIfIcmp(t *testing.T) {
	// iload_0, iload_1, <if_icmp> +5, iconst_0, ireturn, iconst_1, ireturn
	code := func(op byte) []byte {
		return []byte{0x1A, 0x1B, op, 0x00, 0x05, 0x03, 0xAC, 0x04, 0xAC}
	}
	tests := []struct {
		name string
		op   byte
		a, b int32
		want int32
	}{
		{"if_icmpeq", 0x9F, 2, 2, 1},
		{"if_icmpne", 0xA0, 2, 2, 0},
		{"if_icmplt", 0xA1, 1, 2, 1},
		{"if_icmpge", 0xA2, 1, 2, 0},
		{"if_icmpgt", 0xA3, 3, 2, 1},
		{"if_icmple", 0xA4, 3, 2, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := executeAndGetInt(t, code(tt.op), tt.a, tt.b); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSwitch(t *testing.T) {
	t.Run("tableswitch", func(t *testing.T) {
		code := concat(
			[]byte{0x1A, 0xAA, 0, 0}, // iload_0, tableswitch, padding
			i32(36), i32(0), i32(2),  // default, low, high
			i32(27), i32(30), i32(33),
			[]byte{0x10, 10, 0xAC}, // 28
			[]byte{0x10, 20, 0xAC}, // 31
			[]byte{0x10, 30, 0xAC}, // 34
			[]byte{0x02, 0xAC},     // 37
		)
		for in, want := range map[int32]int32{0: 10, 1: 20, 2: 30, 3: -1, -5: -1} {
			if got := executeAndGetInt(t, code, in); got != want {
				t.Errorf("switch(%d): got %d, want %d", in, got, want)
			}
		}
	})

	t.Run("lookupswitch", func(t *testing.T) {
		code := concat(
			[]byte{0x1A, 0xAB, 0, 0}, // iload_0, lookupswitch, padding
			i32(33), i32(2),          // default, npairs
			i32(5), i32(27),
			i32(100), i32(30),
			[]byte{0x10, 50, 0xAC}, // 28
			[]byte{0x10, 99, 0xAC}, // 31
			[]byte{0x02, 0xAC},     // 34
		)
		for in, want := range map[int32]int32{5: 50, 100: 99, 7: -1} {
			if got := executeAndGetInt(t, code, in); got != want {
				t.Errorf("switch(%d): got %d, want %d", in, got, want)
			}
		}
	})
}

func TestStackOps(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		want int32
	}{
		// iconst_2, dup, imul
		{"dup", []byte{0x05, 0x59, 0x68, 0xAC}, 4},
		// iconst_5, iconst_2, swap, isub => 2 - 5
		{"swap", []byte{0x08, 0x05, 0x5F, 0x64, 0xAC}, -3},
		// iconst_1, iconst_2, dup_x1, pop, pop => 2
		{"dup_x1", []byte{0x04, 0x05, 0x5A, 0x57, 0x57, 0xAC}, 2},
		// iconst_1, iconst_2, iconst_3, dup_x2, pop, pop, pop => 3
		{"dup_x2", []byte{0x04, 0x05, 0x06, 0x5B, 0x57, 0x57, 0x57, 0xAC}, 3},
		// iconst_1, iconst_2, dup2, iadd, iadd, iadd => 6
		{"dup2 of two ints", []byte{0x04, 0x05, 0x5C, 0x60, 0x60, 0x60, 0xAC}, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := executeAndGetInt(t, tt.code); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestIinc(t *testing.T) {
	t.Run("iinc", func(t *testing.T) {
		// iinc 0 -3, iload_0, ireturn
		if got := executeAndGetInt(t, []byte{0x84, 0, 0xFD, 0x1A, 0xAC}, 10); got != 7 {
			t.Errorf("got %d, want 7", got)
		}
	})
	t.Run("wide iinc", func(t *testing.T) {
		// wide iinc 0 1000, wide iload 0, ireturn
		code := []byte{0xC4, 0x84, 0, 0, 0x03, 0xE8, 0xC4, 0x15, 0, 0, 0xAC}
		if got := executeAndGetInt(t, code, 1); got != 1001 {
			t.Errorf("got %d, want 1001", got)
		}
	})
}

func TestIfnull(t *testing.T) {
	// aload_0, ifnull +5, iconst_0, ireturn, iconst_1, ireturn
	code := []byte{0x2A, 0xC6, 0x00, 0x05, 0x03, 0xAC, 0x04, 0xAC}
	for _, tt := range []struct {
		name string
		ref  Value
		want int32
	}{
		{"null", NullValue(), 1},
		{"object", RefValue(NewObject(testClass("Test", nil))), 0},
		{"string", RefValue(native.NewString("s")), 0},
	} {
		t.Run(tt.name, func(t *testing.T) {
			v, err := execute(t, nil, code, tt.ref)
			if err != nil {
				t.Fatal(err)
			}
			if v.Int != tt.want {
				t.Errorf("got %d, want %d", v.Int, tt.want)
			}
		})
	}
}

func TestIfAcmp(t *testing.T) {
	// aload_0, aload_1, if_acmpne +5, iconst_1, ireturn, iconst_0, ireturn
	code := []byte{0x2A, 0x2B, 0xA6, 0x00, 0x05, 0x04, 0xAC, 0x03, 0xAC}
	a := RefValue(NewObject(testClass("Test", nil)))
	b := RefValue(NewObject(testClass("Test", nil)))
	for _, tt := range []struct {
		name string
		x, y Value
		want int32
	}{
		{"same object", a, a, 1},
		{"different objects", a, b, 0},
		{"both null", NullValue(), NullValue(), 1},
		{"null and object", NullValue(), a, 0},
	} {
		t.Run(tt.name, func(t *testing.T) {
			v, err := execute(t, nil, code, tt.x, tt.y)
			if err != nil {
				t.Fatal(err)
			}
			if v.Int != tt.want {
				t.Errorf("got %d, want %d", v.Int, tt.want)
			}
		})
	}
}

func TestArrays(t *testing.T) {
	t.Run("newarray and iastore", func(t *testing.T) {
		// iconst_3, newarray int, dup, iconst_1, bipush 9, iastore, iconst_1, iaload, ireturn
		code := []byte{0x06, 0xBC, 10, 0x59, 0x04, 0x10, 9, 0x4F, 0x04, 0x2E, 0xAC}
		if got := executeAndGetInt(t, code); got != 9 {
			t.Errorf("got %d, want 9", got)
		}
	})

	t.Run("bastore truncates", func(t *testing.T) {
		// iconst_1, newarray byte, dup, iconst_0, sipush 300, bastore, iconst_0, baload, ireturn
		code := []byte{0x04, 0xBC, 8, 0x59, 0x03, 0x11, 0x01, 0x2C, 0x54, 0x03, 0x33, 0xAC}
		if got := executeAndGetInt(t, code); got != 44 {
			t.Errorf("got %d, want 44", got)
		}
	})

	t.Run("arraylength", func(t *testing.T) {
		arr := NewArray("[Ljava/lang/Object;", 4)
		v, err := execute(t, nil, []byte{0x2A, 0xBE, 0xAC}, RefValue(arr))
		if err != nil {
			t.Fatal(err)
		}
		if v.Int != 4 {
			t.Errorf("got %d, want 4", v.Int)
		}
	})

	t.Run("aastore and aaload", func(t *testing.T) {
		arr := NewArray("[Ljava/lang/Object;", 2)
		s := native.NewString("x")
		// aload_0, iconst_1, aload_1, aastore, aload_0, iconst_1, aaload, areturn
		v, err := execute(t, nil, []byte{0x2A, 0x04, 0x2B, 0x53, 0x2A, 0x04, 0x32, 0xB0}, RefValue(arr), RefValue(s))
		if err != nil {
			t.Fatal(err)
		}
		if v.Ref != s {
			t.Errorf("got %+v, want the stored string", v)
		}
	})

	t.Run("index out of bounds", func(t *testing.T) {
		// iconst_2, newarray int, iconst_2, iaload, ireturn
		_, err := execute(t, nil, []byte{0x05, 0xBC, 10, 0x05, 0x2E, 0xAC})
		if !IsJavaException(err, "java/lang/ArrayIndexOutOfBoundsException") {
			t.Errorf("got %v, want ArrayIndexOutOfBoundsException", err)
		}
	})

	t.Run("negative size", func(t *testing.T) {
		_, err := execute(t, nil, []byte{0x02, 0xBC, 10, 0xB0})
		if !IsJavaException(err, "java/lang/NegativeArraySizeException") {
			t.Errorf("got %v, want NegativeArraySizeException", err)
		}
	})

	t.Run("null array", func(t *testing.T) {
		_, err := execute(t, nil, []byte{0x01, 0xBE, 0xAC})
		if !IsJavaException(err, "java/lang/NullPointerException") {
			t.Errorf("got %v, want NullPointerException", err)
		}
	})
}

// poolClass returns a class whose constant pool is pool, for instructions
// that resolve symbolic references.
func poolClass(pool []classfile.ConstantPoolEntry) *Class {
	c := newClass("PoolHolder", nil, classfile.AccPublic)
	c.File = &classfile.ClassFile{ConstantPool: pool}
	return c
}

func TestGetfieldPutfield(t *testing.T) {
	pool := make([]classfile.ConstantPoolEntry, 7)
	pool[1] = &classfile.ConstantFieldref{ClassIndex: 2, NameAndTypeIndex: 3}
	pool[2] = &classfile.ConstantClass{NameIndex: 4}
	pool[3] = &classfile.ConstantNameAndType{NameIndex: 5, DescriptorIndex: 6}
	pool[4] = &classfile.ConstantUtf8{Value: "TestClass"}
	pool[5] = &classfile.ConstantUtf8{Value: "x"}
	pool[6] = &classfile.ConstantUtf8{Value: "I"}
	class := poolClass(pool)

	t.Run("putfield then getfield", func(t *testing.T) {
		obj := NewObject(testClass("TestClass", nil, "x", "I"))
		// aload_0, bipush 42, putfield #1, aload_0, getfield #1, ireturn
		code := []byte{0x2A, 0x10, 42, 0xB5, 0x00, 0x01, 0x2A, 0xB4, 0x00, 0x01, 0xAC}
		v, err := execute(t, class, code, RefValue(obj))
		if err != nil {
			t.Fatal(err)
		}
		if v.Int != 42 || obj.GetField("x").Int != 42 {
			t.Errorf("got %d (field %d), want 42", v.Int, obj.GetField("x").Int)
		}
	})

	t.Run("getfield on null", func(t *testing.T) {
		_, err := execute(t, class, []byte{0x01, 0xB4, 0x00, 0x01, 0xAC})
		if !IsJavaException(err, "java/lang/NullPointerException") {
			t.Errorf("got %v, want NullPointerException", err)
		}
	})
}

func TestCheckcastInstanceof(t *testing.T) {
	pool := make([]classfile.ConstantPoolEntry, 5)
	pool[1] = &classfile.ConstantClass{NameIndex: 2}
	pool[2] = &classfile.ConstantUtf8{Value: "Base"}
	pool[3] = &classfile.ConstantClass{NameIndex: 4}
	pool[4] = &classfile.ConstantUtf8{Value: "java/lang/CharSequence"}
	class := poolClass(pool)

	base := testClass("Base", nil)
	sub := NewObject(testClass("Sub", base))
	other := NewObject(testClass("Other", nil))
	str := native.NewString("s")

	instanceof := func(index byte) []byte { return []byte{0x2A, 0xC1, 0x00, index, 0xAC} }
	for _, tt := range []struct {
		name  string
		ref   Value
		index byte
		want  int32
	}{
		{"subclass", RefValue(sub), 1, 1},
		{"unrelated", RefValue(other), 1, 0},
		{"null", NullValue(), 1, 0},
		{"string is CharSequence", RefValue(str), 3, 1},
		{"string is not Base", RefValue(str), 1, 0},
	} {
		t.Run("instanceof "+tt.name, func(t *testing.T) {
			v, err := execute(t, class, instanceof(tt.index), tt.ref)
			if err != nil {
				t.Fatal(err)
			}
			if v.Int != tt.want {
				t.Errorf("got %d, want %d", v.Int, tt.want)
			}
		})
	}

	t.Run("checkcast passes", func(t *testing.T) {
		v, err := execute(t, class, []byte{0x2A, 0xC0, 0x00, 0x01, 0xB0}, RefValue(sub))
		if err != nil {
			t.Fatal(err)
		}
		if v.Ref != sub {
			t.Error("checkcast changed the reference")
		}
	})

	t.Run("checkcast fails", func(t *testing.T) {
		_, err := execute(t, class, []byte{0x2A, 0xC0, 0x00, 0x01, 0xB0}, RefValue(other))
		if !IsJavaException(err, "java/lang/ClassCastException") {
			t.Errorf("got %v, want ClassCastException", err)
		}
	})

	t.Run("checkcast null", func(t *testing.T) {
		v, err := execute(t, class, []byte{0x01, 0xC0, 0x00, 0x01, 0xB0})
		if err != nil || !v.IsNull() {
			t.Errorf("got %+v, %v; want null", v, err)
		}
	})
}

func TestUnknownOpcode(t *testing.T) {
	if _, err := execute(t, nil, []byte{0xFE}); err == nil {
		t.Error("expected error for unknown opcode")
	}
}
