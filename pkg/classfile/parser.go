package classfile

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

const classMagic = 0xCAFEBABE

// ParseFile reads and parses the class file at path.
func ParseFile(path string) (*ClassFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cf, err := ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cf, nil
}

// Parse reads a whole class file from r.
func Parse(r io.Reader) (*ClassFile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return ParseBytes(data)
}

// ParseBytes parses an in-memory class file. Code and BootstrapMethods
// attributes are decoded; every attribute is also kept raw so that Write
// can reproduce it.
func ParseBytes(data []byte) (*ClassFile, error) {
	d := &decoder{buf: data}

	d.section = "header"
	if magic := d.u32(); d.err == nil && magic != classMagic {
		return nil, fmt.Errorf("invalid magic number: 0x%X (expected 0xCAFEBABE)", magic)
	}
	cf := &ClassFile{}
	cf.MinorVersion = d.u16()
	cf.MajorVersion = d.u16()

	d.section = "constant pool"
	cf.ConstantPool = d.constantPool()

	d.section = "class header"
	cf.AccessFlags = d.u16()
	cf.ThisClass = d.u16()
	cf.SuperClass = d.u16()
	cf.Interfaces = make([]uint16, d.u16())
	for i := range cf.Interfaces {
		cf.Interfaces[i] = d.u16()
	}

	d.section = "fields"
	cf.Fields = make([]FieldInfo, d.u16())
	for i := range cf.Fields {
		f := &cf.Fields[i]
		f.AccessFlags, f.Name, f.Descriptor = d.member(cf.ConstantPool)
		f.Attributes = d.attributes(cf.ConstantPool)
	}

	d.section = "methods"
	cf.Methods = make([]MethodInfo, d.u16())
	for i := range cf.Methods {
		m := &cf.Methods[i]
		m.AccessFlags, m.Name, m.Descriptor = d.member(cf.ConstantPool)
		m.Attributes = d.attributes(cf.ConstantPool)
		if a := findAttribute(m.Attributes, "Code"); a != nil && d.err == nil {
			d.section = "method " + m.Name + m.Descriptor
			m.Code = decodeCode(a.Data, d)
			d.section = "methods"
		}
	}

	d.section = "class attributes"
	attrs := d.attributes(cf.ConstantPool)
	if a := findAttribute(attrs, "BootstrapMethods"); a != nil && d.err == nil {
		cf.BootstrapMethods = decodeBootstrapMethods(a.Data, d)
	}

	if d.err != nil {
		return nil, d.err
	}
	return cf, nil
}

// decoder reads big-endian class file data. The first failure sticks and
// turns every later read into a zero value.
type decoder struct {
	buf     []byte
	off     int
	section string
	err     error
}

func (d *decoder) fail(format string, args ...any) {
	if d.err == nil {
		d.err = fmt.Errorf("%s: %s", d.section, fmt.Sprintf(format, args...))
	}
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n > len(d.buf)-d.off {
		d.err = fmt.Errorf("%s: need %d bytes at offset %d: %w", d.section, n, d.off, io.ErrUnexpectedEOF)
		return nil
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b
}

func (d *decoder) u8() uint8 {
	if b := d.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (d *decoder) u16() uint16 {
	if b := d.take(2); b != nil {
		return binary.BigEndian.Uint16(b)
	}
	return 0
}

func (d *decoder) u32() uint32 {
	if b := d.take(4); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (d *decoder) u64() uint64 {
	if b := d.take(8); b != nil {
		return binary.BigEndian.Uint64(b)
	}
	return 0
}

// bytes returns a copy so that callers may keep the slice.
func (d *decoder) bytes(n int) []byte {
	b := d.take(n)
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

func (d *decoder) utf8(pool []ConstantPoolEntry, index uint16) string {
	if d.err != nil {
		return ""
	}
	s, err := GetUtf8(pool, index)
	if err != nil {
		d.fail("%v", err)
	}
	return s
}

// member reads the access flags, name and descriptor shared by field_info
// and method_info.
func (d *decoder) member(pool []ConstantPoolEntry) (uint16, string, string) {
	flags := d.u16()
	name := d.utf8(pool, d.u16())
	desc := d.utf8(pool, d.u16())
	return flags, name, desc
}

func (d *decoder) attributes(pool []ConstantPoolEntry) []AttributeInfo {
	n := int(d.u16())
	if n == 0 || d.err != nil {
		return nil
	}
	attrs := make([]AttributeInfo, 0, n)
	for i := 0; i < n && d.err == nil; i++ {
		name := d.utf8(pool, d.u16())
		attrs = append(attrs, AttributeInfo{Name: name, Data: d.bytes(int(d.u32()))})
	}
	return attrs
}

func findAttribute(attrs []AttributeInfo, name string) *AttributeInfo {
	for i := range attrs {
		if attrs[i].Name == name {
			return &attrs[i]
		}
	}
	return nil
}

// decodeCode decodes a Code attribute body. Failures are reported on
// parent so that they carry its section.
func decodeCode(data []byte, parent *decoder) *CodeAttribute {
	d := &decoder{buf: data, section: parent.section + " Code"}
	c := &CodeAttribute{MaxStack: d.u16(), MaxLocals: d.u16()}
	c.Code = d.bytes(int(d.u32()))
	if n := int(d.u16()); n > 0 {
		c.ExceptionHandlers = make([]ExceptionHandler, n)
		for i := range c.ExceptionHandlers {
			c.ExceptionHandlers[i] = ExceptionHandler{
				StartPC:   d.u16(),
				EndPC:     d.u16(),
				HandlerPC: d.u16(),
				CatchType: d.u16(),
			}
		}
	}
	// Nested attributes (LineNumberTable and friends) are not needed.
	if d.err != nil {
		parent.err = d.err
		return nil
	}
	return c
}

func decodeBootstrapMethods(data []byte, parent *decoder) []BootstrapMethod {
	d := &decoder{buf: data, section: "BootstrapMethods"}
	methods := make([]BootstrapMethod, d.u16())
	for i := range methods {
		methods[i].MethodRef = d.u16()
		methods[i].BootstrapArguments = make([]uint16, d.u16())
		for j := range methods[i].BootstrapArguments {
			methods[i].BootstrapArguments[j] = d.u16()
		}
	}
	if d.err != nil {
		parent.err = d.err
		return nil
	}
	return methods
}

// ClassName returns the internal name of the class.
func (cf *ClassFile) ClassName() (string, error) {
	return GetClassName(cf.ConstantPool, cf.ThisClass)
}

// FindMethod returns the method with the given name and descriptor, or nil.
func (cf *ClassFile) FindMethod(name, descriptor string) *MethodInfo {
	return cf.findMethod(func(m *MethodInfo) bool {
		return m.Name == name && m.Descriptor == descriptor
	})
}

// FindMethodByName returns the first method called name, or nil.
func (cf *ClassFile) FindMethodByName(name string) *MethodInfo {
	return cf.findMethod(func(m *MethodInfo) bool { return m.Name == name })
}

func (cf *ClassFile) findMethod(match func(*MethodInfo) bool) *MethodInfo {
	for i := range cf.Methods {
		if match(&cf.Methods[i]) {
			return &cf.Methods[i]
		}
	}
	return nil
}
