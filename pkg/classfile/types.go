package classfile

// Access flags
const (
	AccPublic    = 0x0001
	AccPrivate   = 0x0002
	AccProtected = 0x0004
	AccStatic    = 0x0008
	AccFinal     = 0x0010
	AccSuper     = 0x0020
	AccNative    = 0x0100
	AccInterface = 0x0200
	AccAbstract  = 0x0400
)

// Current class file major version emitted by Builder (Java 17).
const DefaultMajorVersion = 61

// ClassFile is a parsed class file. Names of fields and methods are
// resolved; everything else keeps its constant pool index.
type ClassFile struct {
	MinorVersion uint16
	MajorVersion uint16
	ConstantPool []ConstantPoolEntry
	AccessFlags  uint16
	ThisClass    uint16
	SuperClass   uint16
	Interfaces   []uint16
	Fields       []FieldInfo
	Methods      []MethodInfo

	BootstrapMethods []BootstrapMethod
}

// BootstrapMethod is one entry of the BootstrapMethods class attribute.
type BootstrapMethod struct {
	MethodRef          uint16
	BootstrapArguments []uint16
}

// SuperClassName returns the internal name of the superclass, or "" for
// java/lang/Object and for an unresolvable index.
func (cf *ClassFile) SuperClassName() string {
	if cf.SuperClass == 0 {
		return ""
	}
	name, err := GetClassName(cf.ConstantPool, cf.SuperClass)
	if err != nil {
		return ""
	}
	return name
}

// ConstantPoolEntry is an interface implemented by all constant pool types.
type ConstantPoolEntry interface {
	Tag() uint8
}

// Decoded constant pool entries. Indices point back into the same pool.
type (
	ConstantUtf8    struct{ Value string }
	ConstantInteger struct{ Value int32 }
	ConstantFloat   struct{ Value float32 }
	ConstantLong    struct{ Value int64 }
	ConstantDouble  struct{ Value float64 }
	ConstantClass   struct{ NameIndex uint16 }
	ConstantString  struct{ StringIndex uint16 }

	ConstantFieldref struct {
		ClassIndex       uint16
		NameAndTypeIndex uint16
	}
	ConstantMethodref struct {
		ClassIndex       uint16
		NameAndTypeIndex uint16
	}
	ConstantInterfaceMethodref struct {
		ClassIndex       uint16
		NameAndTypeIndex uint16
	}
	ConstantNameAndType struct {
		NameIndex       uint16
		DescriptorIndex uint16
	}
)

func (*ConstantUtf8) Tag() uint8               { return TagUtf8 }
func (*ConstantInteger) Tag() uint8            { return TagInteger }
func (*ConstantFloat) Tag() uint8              { return TagFloat }
func (*ConstantLong) Tag() uint8               { return TagLong }
func (*ConstantDouble) Tag() uint8             { return TagDouble }
func (*ConstantClass) Tag() uint8              { return TagClass }
func (*ConstantString) Tag() uint8             { return TagString }
func (*ConstantFieldref) Tag() uint8           { return TagFieldref }
func (*ConstantMethodref) Tag() uint8          { return TagMethodref }
func (*ConstantInterfaceMethodref) Tag() uint8 { return TagInterfaceMethodref }
func (*ConstantNameAndType) Tag() uint8        { return TagNameAndType }

// ConstantRaw keeps the undecoded payload of the invokedynamic family of
// entries so that Write can reproduce the pool.
type ConstantRaw struct {
	Kind uint8
	Data []byte
}

func (c *ConstantRaw) Tag() uint8 { return c.Kind }

// MethodInfo is a method_info with its Code attribute decoded.
type MethodInfo struct {
	AccessFlags uint16
	Name        string
	Descriptor  string
	Attributes  []AttributeInfo
	Code        *CodeAttribute
}

// IsStatic reports whether the method has ACC_STATIC.
func (m *MethodInfo) IsStatic() bool { return m.AccessFlags&AccStatic != 0 }

// IsNative reports whether the method has ACC_NATIVE.
func (m *MethodInfo) IsNative() bool { return m.AccessFlags&AccNative != 0 }

// FieldInfo represents a field in a class file.
type FieldInfo struct {
	AccessFlags uint16
	Name        string
	Descriptor  string
	Attributes  []AttributeInfo
}

// IsStatic reports whether the field has ACC_STATIC.
func (f *FieldInfo) IsStatic() bool { return f.AccessFlags&AccStatic != 0 }

// AttributeInfo is an attribute as it appears in the file.
type AttributeInfo struct {
	Name string
	Data []byte
}

// ExceptionHandler is one exception_table row. CatchType 0 catches
// everything.
type ExceptionHandler struct {
	StartPC   uint16
	EndPC     uint16
	HandlerPC uint16
	CatchType uint16
}

// CodeAttribute is a decoded Code attribute without its nested attributes.
type CodeAttribute struct {
	MaxStack          uint16
	MaxLocals         uint16
	Code              []byte
	ExceptionHandlers []ExceptionHandler
}
