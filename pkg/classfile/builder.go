package classfile

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/daimatz/jweave/pkg/classfile/opcode"
)

// Builder assembles a ClassFile in memory. Constant pool entries are
// interned, so asking twice for the same constant yields the same index.
type Builder struct {
	cf    *ClassFile
	index map[string]uint16
	err   error
}

// NewBuilder starts a public class. An empty super means the class has no
// superclass, which only java/lang/Object may do.
func NewBuilder(name, super string) *Builder {
	b := &Builder{
		cf: &ClassFile{
			MajorVersion: DefaultMajorVersion,
			AccessFlags:  AccPublic | AccSuper,
			ConstantPool: []ConstantPoolEntry{nil},
		},
		index: make(map[string]uint16),
	}
	b.cf.ThisClass = b.Class(name)
	if super != "" {
		b.cf.SuperClass = b.Class(super)
	}
	b.Utf8("Code")
	return b
}

// Access replaces the class access flags.
func (b *Builder) Access(flags uint16) *Builder {
	b.cf.AccessFlags = flags
	return b
}

// Implements adds an interface.
func (b *Builder) Implements(iface string) *Builder {
	b.cf.Interfaces = append(b.cf.Interfaces, b.Class(iface))
	return b
}

func (b *Builder) add(key string, e ConstantPoolEntry) uint16 {
	if i, ok := b.index[key]; ok {
		return i
	}
	if len(b.cf.ConstantPool) >= math.MaxUint16-1 {
		if b.err == nil {
			b.err = fmt.Errorf("builder: constant pool overflow")
		}
		return 0
	}
	i := uint16(len(b.cf.ConstantPool))
	b.cf.ConstantPool = append(b.cf.ConstantPool, e)
	if t := e.Tag(); t == TagLong || t == TagDouble {
		b.cf.ConstantPool = append(b.cf.ConstantPool, nil)
	}
	b.index[key] = i
	return i
}

func (b *Builder) Utf8(s string) uint16 {
	return b.add("U:"+s, &ConstantUtf8{Value: s})
}

func (b *Builder) Class(name string) uint16 {
	n := b.Utf8(name)
	return b.add("C:"+name, &ConstantClass{NameIndex: n})
}

func (b *Builder) String(s string) uint16 {
	n := b.Utf8(s)
	return b.add("S:"+s, &ConstantString{StringIndex: n})
}

func (b *Builder) Integer(v int32) uint16 {
	return b.add("I:"+strconv.FormatInt(int64(v), 10), &ConstantInteger{Value: v})
}

func (b *Builder) Float(v float32) uint16 {
	return b.add("F:"+strconv.FormatUint(uint64(math.Float32bits(v)), 16), &ConstantFloat{Value: v})
}

func (b *Builder) Long(v int64) uint16 {
	return b.add("J:"+strconv.FormatInt(v, 10), &ConstantLong{Value: v})
}

func (b *Builder) Double(v float64) uint16 {
	return b.add("D:"+strconv.FormatUint(math.Float64bits(v), 16), &ConstantDouble{Value: v})
}

func (b *Builder) NameAndType(name, descriptor string) uint16 {
	n, d := b.Utf8(name), b.Utf8(descriptor)
	return b.add("N:"+name+":"+descriptor, &ConstantNameAndType{NameIndex: n, DescriptorIndex: d})
}

func (b *Builder) Fieldref(class, name, descriptor string) uint16 {
	c, nt := b.Class(class), b.NameAndType(name, descriptor)
	return b.add("Fr:"+class+"."+name+":"+descriptor, &ConstantFieldref{ClassIndex: c, NameAndTypeIndex: nt})
}

func (b *Builder) Methodref(class, name, descriptor string) uint16 {
	c, nt := b.Class(class), b.NameAndType(name, descriptor)
	return b.add("Mr:"+class+"."+name+descriptor, &ConstantMethodref{ClassIndex: c, NameAndTypeIndex: nt})
}

func (b *Builder) InterfaceMethodref(class, name, descriptor string) uint16 {
	c, nt := b.Class(class), b.NameAndType(name, descriptor)
	return b.add("IMr:"+class+"."+name+descriptor, &ConstantInterfaceMethodref{ClassIndex: c, NameAndTypeIndex: nt})
}

// Field declares a field.
func (b *Builder) Field(flags uint16, name, descriptor string) *Builder {
	b.Utf8(name)
	b.Utf8(descriptor)
	b.cf.Fields = append(b.cf.Fields, FieldInfo{AccessFlags: flags, Name: name, Descriptor: descriptor})
	return b
}

// Method declares a method. code is nil for native and abstract methods.
func (b *Builder) Method(flags uint16, name, descriptor string, code *Code) *Builder {
	b.Utf8(name)
	b.Utf8(descriptor)
	m := MethodInfo{AccessFlags: flags, Name: name, Descriptor: descriptor}
	if code != nil {
		attr, err := code.attribute()
		if err != nil && b.err == nil {
			b.err = fmt.Errorf("builder: method %s%s: %w", name, descriptor, err)
		}
		m.Code = attr
	}
	b.cf.Methods = append(b.cf.Methods, m)
	return b
}

// Build returns the assembled class, or the first error met while building.
func (b *Builder) Build() (*ClassFile, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.cf, nil
}

// MustBuild is Build for fixtures known to be well formed.
func (b *Builder) MustBuild() *ClassFile {
	cf, err := b.Build()
	if err != nil {
		panic(err)
	}
	return cf
}

// Code assembles one method body. Branch targets are symbolic labels resolved
// when the method is added to its Builder.
type Code struct {
	b         *Builder
	buf       []byte
	maxStack  uint16
	maxLocals uint16
	labels    map[string]int
	fixups    []fixup
	handlers  []handler
}

type fixup struct {
	opPC  int
	at    int
	label string
}

type handler struct {
	start, end, target string
	catchType          uint16
}

// Code starts a method body bound to b's constant pool.
func (b *Builder) Code(maxStack, maxLocals uint16) *Code {
	return &Code{b: b, maxStack: maxStack, maxLocals: maxLocals, labels: make(map[string]int)}
}

// Op emits a raw instruction.
func (c *Code) Op(op byte, operands ...byte) *Code {
	c.buf = append(c.buf, op)
	c.buf = append(c.buf, operands...)
	return c
}

func (c *Code) op16(op byte, v uint16) *Code {
	c.buf = append(c.buf, op)
	c.buf = binary.BigEndian.AppendUint16(c.buf, v)
	return c
}

// Label marks the current position.
func (c *Code) Label(name string) *Code {
	c.labels[name] = len(c.buf)
	return c
}

// Jump emits a branch instruction to label.
func (c *Code) Jump(op byte, label string) *Code {
	c.fixups = append(c.fixups, fixup{opPC: len(c.buf), at: len(c.buf) + 1, label: label})
	return c.Op(op, 0, 0)
}

// Int pushes an int constant using the shortest encoding.
func (c *Code) Int(v int32) *Code {
	switch {
	case v >= -1 && v <= 5:
		return c.Op(byte(opcode.Iconst0 + v))
	case v >= math.MinInt8 && v <= math.MaxInt8:
		return c.Op(opcode.Bipush, byte(int8(v)))
	case v >= math.MinInt16 && v <= math.MaxInt16:
		return c.Op(opcode.Sipush, byte(uint16(v)>>8), byte(v))
	}
	return c.ldc(c.b.Integer(v))
}

func (c *Code) Float(v float32) *Code { return c.ldc(c.b.Float(v)) }

func (c *Code) Long(v int64) *Code {
	if v == 0 || v == 1 {
		return c.Op(byte(opcode.Lconst0 + v))
	}
	return c.op16(opcode.Ldc2W, c.b.Long(v))
}

func (c *Code) Double(v float64) *Code { return c.op16(opcode.Ldc2W, c.b.Double(v)) }

// String pushes a string literal.
func (c *Code) String(s string) *Code { return c.ldc(c.b.String(s)) }

func (c *Code) ldc(index uint16) *Code {
	if index <= math.MaxUint8 {
		return c.Op(opcode.Ldc, byte(index))
	}
	return c.op16(opcode.LdcW, index)
}

// Load emits iload, lload, fload, dload or aload for slot, using the short
// forms for slots 0-3.
func (c *Code) Load(op byte, slot uint8) *Code {
	if slot <= 3 {
		return c.Op(opcode.Iload0 + (op-opcode.Iload)*4 + slot)
	}
	return c.Op(op, slot)
}

// Store is the store counterpart of Load.
func (c *Code) Store(op byte, slot uint8) *Code {
	if slot <= 3 {
		return c.Op(opcode.Istore0 + (op-opcode.Istore)*4 + slot)
	}
	return c.Op(op, slot)
}

func (c *Code) Iinc(slot uint8, delta int8) *Code { return c.Op(opcode.Iinc, slot, byte(delta)) }

func (c *Code) New(class string) *Code        { return c.op16(opcode.New, c.b.Class(class)) }
func (c *Code) Checkcast(class string) *Code  { return c.op16(opcode.Checkcast, c.b.Class(class)) }
func (c *Code) Instanceof(class string) *Code { return c.op16(opcode.Instanceof, c.b.Class(class)) }
func (c *Code) Anewarray(class string) *Code  { return c.op16(opcode.Anewarray, c.b.Class(class)) }

func (c *Code) GetField(class, name, desc string) *Code {
	return c.op16(opcode.Getfield, c.b.Fieldref(class, name, desc))
}

func (c *Code) PutField(class, name, desc string) *Code {
	return c.op16(opcode.Putfield, c.b.Fieldref(class, name, desc))
}

func (c *Code) GetStatic(class, name, desc string) *Code {
	return c.op16(opcode.Getstatic, c.b.Fieldref(class, name, desc))
}

func (c *Code) PutStatic(class, name, desc string) *Code {
	return c.op16(opcode.Putstatic, c.b.Fieldref(class, name, desc))
}

func (c *Code) InvokeVirtual(class, name, desc string) *Code {
	return c.op16(opcode.Invokevirtual, c.b.Methodref(class, name, desc))
}

func (c *Code) InvokeSpecial(class, name, desc string) *Code {
	return c.op16(opcode.Invokespecial, c.b.Methodref(class, name, desc))
}

func (c *Code) InvokeStatic(class, name, desc string) *Code {
	return c.op16(opcode.Invokestatic, c.b.Methodref(class, name, desc))
}

func (c *Code) InvokeInterface(class, name, desc string) *Code {
	count := byte(1)
	if mt, err := ParseMethodDescriptor(desc); err == nil {
		count += byte(mt.ArgSlots())
	}
	c.op16(opcode.Invokeinterface, c.b.InterfaceMethodref(class, name, desc))
	return c.Op(count, 0)
}

// Catch adds an exception table entry covering [start, end) that jumps to
// target. An empty class catches everything.
func (c *Code) Catch(start, end, target, class string) *Code {
	h := handler{start: start, end: end, target: target}
	if class != "" {
		h.catchType = c.b.Class(class)
	}
	c.handlers = append(c.handlers, h)
	return c
}

func (c *Code) resolve(label string) (int, error) {
	pc, ok := c.labels[label]
	if !ok {
		return 0, fmt.Errorf("undefined label %q", label)
	}
	return pc, nil
}

func (c *Code) attribute() (*CodeAttribute, error) {
	code := append([]byte(nil), c.buf...)
	for _, f := range c.fixups {
		pc, err := c.resolve(f.label)
		if err != nil {
			return nil, err
		}
		off := pc - f.opPC
		if off < math.MinInt16 || off > math.MaxInt16 {
			return nil, fmt.Errorf("branch to %q out of range", f.label)
		}
		binary.BigEndian.PutUint16(code[f.at:], uint16(int16(off)))
	}
	attr := &CodeAttribute{MaxStack: c.maxStack, MaxLocals: c.maxLocals, Code: code}
	for _, h := range c.handlers {
		start, err := c.resolve(h.start)
		if err != nil {
			return nil, err
		}
		end, err := c.resolve(h.end)
		if err != nil {
			return nil, err
		}
		target, err := c.resolve(h.target)
		if err != nil {
			return nil, err
		}
		attr.ExceptionHandlers = append(attr.ExceptionHandlers, ExceptionHandler{
			StartPC:   uint16(start),
			EndPC:     uint16(end),
			HandlerPC: uint16(target),
			CatchType: h.catchType,
		})
	}
	return attr, nil
}
