package vm

import (
	"fmt"
	"math"

	"github.com/daimatz/jweave/pkg/classfile"
	"github.com/daimatz/jweave/pkg/classfile/opcode"
)

// executeInstruction executes a single bytecode instruction whose opcode has
// already been consumed. Returns (returnValue, hasReturn, error).
func (t *Thread) executeInstruction(frame *Frame, op byte) (Value, bool, error) {
	switch {
	// xload_<n>: five families of four
	case op >= opcode.Iload0 && op <= opcode.Aload3:
		frame.Push(frame.GetLocal(int(op-opcode.Iload0) % 4))
		return Value{}, false, nil
	case op >= opcode.Istore0 && op <= opcode.Astore3:
		frame.SetLocal(int(op-opcode.Istore0)%4, frame.Pop())
		return Value{}, false, nil
	case op >= opcode.Iload && op <= opcode.Aload:
		frame.Push(frame.GetLocal(int(frame.ReadU8())))
		return Value{}, false, nil
	case op >= opcode.Istore && op <= opcode.Astore:
		frame.SetLocal(int(frame.ReadU8()), frame.Pop())
		return Value{}, false, nil
	case op >= opcode.Iaload && op <= opcode.Saload:
		return t.executeArrayLoad(frame)
	case op >= opcode.Iastore && op <= opcode.Sastore:
		return t.executeArrayStore(frame)
	case op >= opcode.Iadd && op <= opcode.Lxor:
		return t.executeArithmetic(frame, op)
	case op >= opcode.I2l && op <= opcode.I2s:
		executeConversion(frame, op)
		return Value{}, false, nil
	case op >= opcode.Ifeq && op <= opcode.Ifle:
		return executeBranchUnary(frame, op)
	case op >= opcode.IfIcmpeq && op <= opcode.IfIcmple:
		return executeBranchBinary(frame, op)
	}

	switch op {
	case opcode.Nop:
		// do nothing

	// --- Constant load instructions ---
	case opcode.AconstNull:
		frame.Push(NullValue())
	case opcode.IconstM1, opcode.Iconst0, opcode.Iconst1, opcode.Iconst2,
		opcode.Iconst3, opcode.Iconst4, opcode.Iconst5:
		frame.Push(IntValue(int32(op) - opcode.Iconst0))
	case opcode.Lconst0, opcode.Lconst1:
		frame.Push(LongValue(int64(op - opcode.Lconst0)))
	case opcode.Fconst0, opcode.Fconst1, opcode.Fconst2:
		frame.Push(FloatValue(float32(op - opcode.Fconst0)))
	case opcode.Dconst0, opcode.Dconst1:
		frame.Push(DoubleValue(float64(op - opcode.Dconst0)))

	case opcode.Bipush:
		frame.Push(IntValue(int32(frame.ReadI8())))
	case opcode.Sipush:
		frame.Push(IntValue(int32(frame.ReadI16())))

	case opcode.Ldc:
		return t.executeLdc(frame, uint16(frame.ReadU8()))
	case opcode.LdcW, opcode.Ldc2W:
		return t.executeLdc(frame, frame.ReadU16())

	case opcode.Iinc:
		index := int(frame.ReadU8())
		delta := int32(frame.ReadI8())
		frame.SetLocal(index, IntValue(frame.GetLocal(index).Int+delta))

	case opcode.Wide:
		return executeWide(frame)

	// --- Stack manipulation ---
	case opcode.Pop:
		frame.Pop()
	case opcode.Pop2:
		if v := frame.Pop(); !v.wide() {
			frame.Pop()
		}
	case opcode.Dup:
		frame.Push(frame.Peek())
	case opcode.DupX1:
		v1, v2 := frame.Pop(), frame.Pop()
		frame.Push(v1)
		frame.Push(v2)
		frame.Push(v1)
	case opcode.DupX2:
		v1, v2 := frame.Pop(), frame.Pop()
		if v2.wide() {
			frame.Push(v1)
			frame.Push(v2)
			frame.Push(v1)
			break
		}
		v3 := frame.Pop()
		frame.Push(v1)
		frame.Push(v3)
		frame.Push(v2)
		frame.Push(v1)
	case opcode.Dup2:
		v1 := frame.Pop()
		if v1.wide() {
			frame.Push(v1)
			frame.Push(v1)
			break
		}
		v2 := frame.Pop()
		frame.Push(v2)
		frame.Push(v1)
		frame.Push(v2)
		frame.Push(v1)
	case opcode.Dup2X1:
		v1, v2 := frame.Pop(), frame.Pop()
		if v1.wide() {
			frame.Push(v1)
			frame.Push(v2)
			frame.Push(v1)
			break
		}
		v3 := frame.Pop()
		frame.Push(v2)
		frame.Push(v1)
		frame.Push(v3)
		frame.Push(v2)
		frame.Push(v1)
	case opcode.Dup2X2:
		// Only the all-category-2 and all-category-1 forms occur in javac output.
		v1, v2 := frame.Pop(), frame.Pop()
		if v1.wide() && v2.wide() {
			frame.Push(v1)
			frame.Push(v2)
			frame.Push(v1)
			break
		}
		v3, v4 := frame.Pop(), frame.Pop()
		frame.Push(v2)
		frame.Push(v1)
		frame.Push(v4)
		frame.Push(v3)
		frame.Push(v2)
		frame.Push(v1)
	case opcode.Swap:
		v1, v2 := frame.Pop(), frame.Pop()
		frame.Push(v1)
		frame.Push(v2)

	// --- Comparisons ---
	case opcode.Lcmp:
		v2, v1 := frame.Pop(), frame.Pop()
		frame.Push(IntValue(compare(v1.Long, v2.Long)))
	case opcode.Fcmpl, opcode.Fcmpg:
		v2, v1 := frame.Pop(), frame.Pop()
		frame.Push(IntValue(compareFloat(float64(v1.Float), float64(v2.Float), op == opcode.Fcmpg)))
	case opcode.Dcmpl, opcode.Dcmpg:
		v2, v1 := frame.Pop(), frame.Pop()
		frame.Push(IntValue(compareFloat(v1.Double, v2.Double, op == opcode.Dcmpg)))

	case opcode.IfAcmpeq, opcode.IfAcmpne:
		branchPC := frame.PC - 1
		offset := frame.ReadI16()
		v2, v1 := frame.Pop(), frame.Pop()
		if sameRef(v1, v2) == (op == opcode.IfAcmpeq) {
			frame.PC = branchPC + int(offset)
		}

	case opcode.Ifnull, opcode.Ifnonnull:
		branchPC := frame.PC - 1
		offset := frame.ReadI16()
		if frame.Pop().IsNull() == (op == opcode.Ifnull) {
			frame.PC = branchPC + int(offset)
		}

	case opcode.Goto:
		branchPC := frame.PC - 1
		frame.PC = branchPC + int(frame.ReadI16())
	case opcode.GotoW:
		branchPC := frame.PC - 1
		frame.PC = branchPC + int(frame.ReadI32())

	case opcode.Tableswitch:
		opcodePC := frame.PC - 1
		for frame.PC%4 != 0 {
			frame.PC++
		}
		defaultOffset := frame.ReadI32()
		low := frame.ReadI32()
		high := frame.ReadI32()
		tablePC := frame.PC
		index := frame.Pop().Int
		if index >= low && index <= high {
			frame.PC = tablePC + 4*int(index-low)
			frame.PC = opcodePC + int(frame.ReadI32())
		} else {
			frame.PC = opcodePC + int(defaultOffset)
		}

	case opcode.Lookupswitch:
		opcodePC := frame.PC - 1
		for frame.PC%4 != 0 {
			frame.PC++
		}
		defaultOffset := frame.ReadI32()
		npairs := frame.ReadI32()
		key := frame.Pop().Int
		target := opcodePC + int(defaultOffset)
		for i := int32(0); i < npairs; i++ {
			match, offset := frame.ReadI32(), frame.ReadI32()
			if key == match {
				target = opcodePC + int(offset)
				break
			}
		}
		frame.PC = target

	// --- Return ---
	case opcode.Ireturn, opcode.Lreturn, opcode.Freturn, opcode.Dreturn, opcode.Areturn:
		return frame.Pop(), true, nil
	case opcode.Return:
		return Value{}, true, nil

	// --- Fields, invocation and objects ---
	case opcode.Getstatic:
		return t.executeGetstatic(frame)
	case opcode.Putstatic:
		return t.executePutstatic(frame)
	case opcode.Getfield:
		return t.executeGetfield(frame)
	case opcode.Putfield:
		return t.executePutfield(frame)
	case opcode.Invokevirtual:
		return t.executeInvokevirtual(frame, frame.ReadU16(), false)
	case opcode.Invokeinterface:
		index := frame.ReadU16()
		frame.PC += 2 // count, 0
		return t.executeInvokevirtual(frame, index, true)
	case opcode.Invokespecial:
		return t.executeInvokespecial(frame)
	case opcode.Invokestatic:
		return t.executeInvokestatic(frame)
	case opcode.New:
		return t.executeNew(frame)

	case opcode.Newarray:
		desc, ok := primitiveArrays[frame.ReadU8()]
		if !ok {
			return Value{}, false, fmt.Errorf("newarray: bad type at PC=%d", frame.PC-2)
		}
		return t.newArray(frame, desc)
	case opcode.Anewarray:
		name, err := classfile.GetClassName(frame.pool(), frame.ReadU16())
		if err != nil {
			return Value{}, false, fmt.Errorf("anewarray: %w", err)
		}
		if name[0] == '[' {
			return t.newArray(frame, "["+name)
		}
		return t.newArray(frame, "[L"+name+";")

	case opcode.Arraylength:
		arr, err := t.array(frame.Pop())
		if err != nil {
			return Value{}, false, err
		}
		frame.Push(IntValue(int32(len(arr.Elements))))

	case opcode.Athrow:
		ref := frame.Pop()
		if ref.IsNull() {
			return Value{}, false, t.vm.throw("java/lang/NullPointerException", "throw null")
		}
		obj, ok := ref.Ref.(*JObject)
		if !ok || !obj.Class.IsSubclassOf("java/lang/Throwable") {
			return Value{}, false, fmt.Errorf("athrow: %T is not throwable", ref.Ref)
		}
		return Value{}, false, &JavaException{Object: obj}

	case opcode.Checkcast:
		className, err := classfile.GetClassName(frame.pool(), frame.ReadU16())
		if err != nil {
			return Value{}, false, fmt.Errorf("checkcast: %w", err)
		}
		if v := frame.Peek(); !v.IsNull() {
			ok, err := t.vm.isInstance(v.Ref, className)
			if err != nil {
				return Value{}, false, err
			}
			if !ok {
				return Value{}, false, t.vm.throw("java/lang/ClassCastException", "cannot cast to %s", className)
			}
		}

	case opcode.Instanceof:
		className, err := classfile.GetClassName(frame.pool(), frame.ReadU16())
		if err != nil {
			return Value{}, false, fmt.Errorf("instanceof: %w", err)
		}
		v := frame.Pop()
		ok := false
		if !v.IsNull() {
			if ok, err = t.vm.isInstance(v.Ref, className); err != nil {
				return Value{}, false, err
			}
		}
		frame.Push(boolValue(ok))

	case opcode.Monitorenter, opcode.Monitorexit:
		if frame.Pop().IsNull() {
			return Value{}, false, t.vm.throw("java/lang/NullPointerException", "monitor on null")
		}

	default:
		return Value{}, false, fmt.Errorf("unknown opcode: 0x%02X at PC=%d", op, frame.PC-1)
	}

	return Value{}, false, nil
}

var primitiveArrays = map[uint8]string{
	4: "[Z", 5: "[C", 6: "[F", 7: "[D", 8: "[B", 9: "[S", 10: "[I", 11: "[J",
}

func executeWide(frame *Frame) (Value, bool, error) {
	op := frame.ReadU8()
	index := int(frame.ReadU16())
	switch {
	case op == opcode.Iinc:
		delta := int32(frame.ReadI16())
		frame.SetLocal(index, IntValue(frame.GetLocal(index).Int+delta))
	case op >= opcode.Iload && op <= opcode.Aload:
		frame.Push(frame.GetLocal(index))
	case op >= opcode.Istore && op <= opcode.Astore:
		frame.SetLocal(index, frame.Pop())
	default:
		return Value{}, false, fmt.Errorf("wide: unsupported opcode 0x%02X", op)
	}
	return Value{}, false, nil
}

func (t *Thread) executeArithmetic(frame *Frame, op byte) (Value, bool, error) {
	switch op {
	case opcode.Ineg:
		frame.Push(IntValue(-frame.Pop().Int))
		return Value{}, false, nil
	case opcode.Lneg:
		frame.Push(LongValue(-frame.Pop().Long))
		return Value{}, false, nil
	case opcode.Fneg:
		frame.Push(FloatValue(-frame.Pop().Float))
		return Value{}, false, nil
	case opcode.Dneg:
		frame.Push(DoubleValue(-frame.Pop().Double))
		return Value{}, false, nil
	}

	v2, v1 := frame.Pop(), frame.Pop()
	var r Value
	switch op {
	case opcode.Iadd:
		r = IntValue(v1.Int + v2.Int)
	case opcode.Ladd:
		r = LongValue(v1.Long + v2.Long)
	case opcode.Fadd:
		r = FloatValue(v1.Float + v2.Float)
	case opcode.Dadd:
		r = DoubleValue(v1.Double + v2.Double)
	case opcode.Isub:
		r = IntValue(v1.Int - v2.Int)
	case opcode.Lsub:
		r = LongValue(v1.Long - v2.Long)
	case opcode.Fsub:
		r = FloatValue(v1.Float - v2.Float)
	case opcode.Dsub:
		r = DoubleValue(v1.Double - v2.Double)
	case opcode.Imul:
		r = IntValue(v1.Int * v2.Int)
	case opcode.Lmul:
		r = LongValue(v1.Long * v2.Long)
	case opcode.Fmul:
		r = FloatValue(v1.Float * v2.Float)
	case opcode.Dmul:
		r = DoubleValue(v1.Double * v2.Double)
	case opcode.Idiv, opcode.Irem:
		if v2.Int == 0 {
			return Value{}, false, t.vm.throw("java/lang/ArithmeticException", "/ by zero")
		}
		// MinInt32 / -1 wraps in Java; Go panics.
		if v2.Int == -1 {
			if op == opcode.Idiv {
				r = IntValue(-v1.Int)
			} else {
				r = IntValue(0)
			}
		} else if op == opcode.Idiv {
			r = IntValue(v1.Int / v2.Int)
		} else {
			r = IntValue(v1.Int % v2.Int)
		}
	case opcode.Ldiv, opcode.Lrem:
		if v2.Long == 0 {
			return Value{}, false, t.vm.throw("java/lang/ArithmeticException", "/ by zero")
		}
		if v2.Long == -1 {
			if op == opcode.Ldiv {
				r = LongValue(-v1.Long)
			} else {
				r = LongValue(0)
			}
		} else if op == opcode.Ldiv {
			r = LongValue(v1.Long / v2.Long)
		} else {
			r = LongValue(v1.Long % v2.Long)
		}
	case opcode.Fdiv:
		r = FloatValue(v1.Float / v2.Float)
	case opcode.Ddiv:
		r = DoubleValue(v1.Double / v2.Double)
	case opcode.Frem:
		r = FloatValue(float32(math.Mod(float64(v1.Float), float64(v2.Float))))
	case opcode.Drem:
		r = DoubleValue(math.Mod(v1.Double, v2.Double))
	case opcode.Ishl:
		r = IntValue(v1.Int << (uint(v2.Int) & 0x1f))
	case opcode.Lshl:
		r = LongValue(v1.Long << (uint(v2.Int) & 0x3f))
	case opcode.Ishr:
		r = IntValue(v1.Int >> (uint(v2.Int) & 0x1f))
	case opcode.Lshr:
		r = LongValue(v1.Long >> (uint(v2.Int) & 0x3f))
	case opcode.Iushr:
		r = IntValue(int32(uint32(v1.Int) >> (uint(v2.Int) & 0x1f)))
	case opcode.Lushr:
		r = LongValue(int64(uint64(v1.Long) >> (uint(v2.Int) & 0x3f)))
	case opcode.Iand:
		r = IntValue(v1.Int & v2.Int)
	case opcode.Land:
		r = LongValue(v1.Long & v2.Long)
	case opcode.Ior:
		r = IntValue(v1.Int | v2.Int)
	case opcode.Lor:
		r = LongValue(v1.Long | v2.Long)
	case opcode.Ixor:
		r = IntValue(v1.Int ^ v2.Int)
	case opcode.Lxor:
		r = LongValue(v1.Long ^ v2.Long)
	}
	frame.Push(r)
	return Value{}, false, nil
}

func executeConversion(frame *Frame, op byte) {
	v := frame.Pop()
	var r Value
	switch op {
	case opcode.I2l:
		r = LongValue(int64(v.Int))
	case opcode.I2f:
		r = FloatValue(float32(v.Int))
	case opcode.I2d:
		r = DoubleValue(float64(v.Int))
	case opcode.L2i:
		r = IntValue(int32(v.Long))
	case opcode.L2f:
		r = FloatValue(float32(v.Long))
	case opcode.L2d:
		r = DoubleValue(float64(v.Long))
	case opcode.F2i:
		r = IntValue(int32(saturate(float64(v.Float), math.MinInt32, math.MaxInt32)))
	case opcode.F2l:
		r = LongValue(saturate(float64(v.Float), math.MinInt64, math.MaxInt64))
	case opcode.F2d:
		r = DoubleValue(float64(v.Float))
	case opcode.D2i:
		r = IntValue(int32(saturate(v.Double, math.MinInt32, math.MaxInt32)))
	case opcode.D2l:
		r = LongValue(saturate(v.Double, math.MinInt64, math.MaxInt64))
	case opcode.D2f:
		r = FloatValue(float32(v.Double))
	case opcode.I2b:
		r = IntValue(int32(int8(v.Int)))
	case opcode.I2c:
		r = IntValue(int32(uint16(v.Int)))
	case opcode.I2s:
		r = IntValue(int32(int16(v.Int)))
	}
	frame.Push(r)
}

// saturate converts f to an integer in [lo, hi], mapping NaN to 0.
func saturate(f float64, lo, hi int64) int64 {
	switch {
	case math.IsNaN(f):
		return 0
	case f <= float64(lo):
		return lo
	case f >= float64(hi):
		return hi
	}
	return int64(f)
}

func compare[T int64 | float64](a, b T) int32 {
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	}
	return 0
}

// compareFloat is fcmp/dcmp: NaN yields 1 for the g variant and -1 otherwise.
func compareFloat(a, b float64, nanIsGreater bool) int32 {
	if math.IsNaN(a) || math.IsNaN(b) {
		if nanIsGreater {
			return 1
		}
		return -1
	}
	return compare(a, b)
}

func sameRef(v1, v2 Value) bool {
	if v1.IsNull() || v2.IsNull() {
		return v1.IsNull() && v2.IsNull()
	}
	return v1.Ref == v2.Ref
}

// executeBranchUnary handles ifeq through ifle.
func executeBranchUnary(frame *Frame, op byte) (Value, bool, error) {
	branchPC := frame.PC - 1
	offset := frame.ReadI16()
	if intCondition(op-opcode.Ifeq, frame.Pop().Int, 0) {
		frame.PC = branchPC + int(offset)
	}
	return Value{}, false, nil
}

// executeBranchBinary handles if_icmpeq through if_icmple.
func executeBranchBinary(frame *Frame, op byte) (Value, bool, error) {
	branchPC := frame.PC - 1
	offset := frame.ReadI16()
	v2, v1 := frame.Pop(), frame.Pop()
	if intCondition(op-opcode.IfIcmpeq, v1.Int, v2.Int) {
		frame.PC = branchPC + int(offset)
	}
	return Value{}, false, nil
}

// intCondition evaluates eq, ne, lt, ge, gt, le by their opcode order.
func intCondition(cond byte, a, b int32) bool {
	switch cond {
	case 0:
		return a == b
	case 1:
		return a != b
	case 2:
		return a < b
	case 3:
		return a >= b
	case 4:
		return a > b
	default:
		return a <= b
	}
}
