package classfile

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

// WriteFile serialises cf to path.
func WriteFile(path string, cf *ClassFile) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := Write(w, cf); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Bytes serialises cf into a byte slice.
func Bytes(cf *ClassFile) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, cf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write serialises cf in class file format. Parsed Code attributes are
// re-encoded from Method.Code; other attributes are written back raw.
func Write(w io.Writer, cf *ClassFile) error {
	e := &encoder{w: w, pool: cf.ConstantPool}

	e.u32(classMagic)
	e.u16(cf.MinorVersion)
	e.u16(cf.MajorVersion)
	e.constantPool()
	e.u16(cf.AccessFlags)
	e.u16(cf.ThisClass)
	e.u16(cf.SuperClass)
	e.u16(uint16(len(cf.Interfaces)))
	for _, i := range cf.Interfaces {
		e.u16(i)
	}

	e.u16(uint16(len(cf.Fields)))
	for _, f := range cf.Fields {
		e.u16(f.AccessFlags)
		e.u16(e.utf8Index(f.Name))
		e.u16(e.utf8Index(f.Descriptor))
		e.attributes(f.Attributes)
	}

	e.u16(uint16(len(cf.Methods)))
	for _, m := range cf.Methods {
		e.u16(m.AccessFlags)
		e.u16(e.utf8Index(m.Name))
		e.u16(e.utf8Index(m.Descriptor))
		attrs := make([]AttributeInfo, 0, len(m.Attributes)+1)
		if m.Code != nil {
			attrs = append(attrs, AttributeInfo{Name: "Code", Data: encodeCode(m.Code)})
		}
		for _, a := range m.Attributes {
			if a.Name != "Code" {
				attrs = append(attrs, a)
			}
		}
		e.attributes(attrs)
	}

	var classAttrs []AttributeInfo
	if len(cf.BootstrapMethods) > 0 {
		classAttrs = append(classAttrs, AttributeInfo{Name: "BootstrapMethods", Data: encodeBootstrapMethods(cf.BootstrapMethods)})
	}
	e.attributes(classAttrs)
	return e.err
}

type encoder struct {
	w    io.Writer
	pool []ConstantPoolEntry
	err  error
}

func (e *encoder) write(v any) {
	if e.err == nil {
		e.err = binary.Write(e.w, binary.BigEndian, v)
	}
}

func (e *encoder) u8(v uint8)   { e.write(v) }
func (e *encoder) u16(v uint16) { e.write(v) }
func (e *encoder) u32(v uint32) { e.write(v) }

func (e *encoder) fail(format string, args ...any) {
	if e.err == nil {
		e.err = fmt.Errorf(format, args...)
	}
}

func (e *encoder) utf8Index(s string) uint16 {
	for i, c := range e.pool {
		if u, ok := c.(*ConstantUtf8); ok && u.Value == s {
			return uint16(i)
		}
	}
	e.fail("write: no Utf8 constant for %q", s)
	return 0
}

func (e *encoder) constantPool() {
	e.u16(uint16(len(e.pool)))
	for i := 1; i < len(e.pool); i++ {
		c := e.pool[i]
		if c == nil {
			// Second slot of a long or double.
			continue
		}
		e.u8(c.Tag())
		switch c := c.(type) {
		case *ConstantUtf8:
			e.u16(uint16(len(c.Value)))
			e.write([]byte(c.Value))
		case *ConstantInteger:
			e.write(c.Value)
		case *ConstantFloat:
			e.u32(math.Float32bits(c.Value))
		case *ConstantLong:
			e.write(c.Value)
		case *ConstantDouble:
			e.write(math.Float64bits(c.Value))
		case *ConstantClass:
			e.u16(c.NameIndex)
		case *ConstantString:
			e.u16(c.StringIndex)
		case *ConstantFieldref:
			e.u16(c.ClassIndex)
			e.u16(c.NameAndTypeIndex)
		case *ConstantMethodref:
			e.u16(c.ClassIndex)
			e.u16(c.NameAndTypeIndex)
		case *ConstantInterfaceMethodref:
			e.u16(c.ClassIndex)
			e.u16(c.NameAndTypeIndex)
		case *ConstantNameAndType:
			e.u16(c.NameIndex)
			e.u16(c.DescriptorIndex)
		case *ConstantRaw:
			e.write(c.Data)
		default:
			e.fail("write: constant pool entry %d (tag=%d) cannot be encoded", i, c.Tag())
		}
	}
}

func (e *encoder) attributes(attrs []AttributeInfo) {
	e.u16(uint16(len(attrs)))
	for _, a := range attrs {
		e.u16(e.utf8Index(a.Name))
		e.u32(uint32(len(a.Data)))
		e.write(a.Data)
	}
}

func encodeCode(c *CodeAttribute) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, c.MaxStack)
	binary.Write(&buf, binary.BigEndian, c.MaxLocals)
	binary.Write(&buf, binary.BigEndian, uint32(len(c.Code)))
	buf.Write(c.Code)
	binary.Write(&buf, binary.BigEndian, uint16(len(c.ExceptionHandlers)))
	for _, h := range c.ExceptionHandlers {
		binary.Write(&buf, binary.BigEndian, h)
	}
	binary.Write(&buf, binary.BigEndian, uint16(0)) // no nested attributes
	return buf.Bytes()
}

func encodeBootstrapMethods(methods []BootstrapMethod) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint16(len(methods)))
	for _, m := range methods {
		binary.Write(&buf, binary.BigEndian, m.MethodRef)
		binary.Write(&buf, binary.BigEndian, uint16(len(m.BootstrapArguments)))
		for _, a := range m.BootstrapArguments {
			binary.Write(&buf, binary.BigEndian, a)
		}
	}
	return buf.Bytes()
}
