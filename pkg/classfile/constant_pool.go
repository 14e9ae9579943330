package classfile

import (
	"fmt"
	"math"
)

// Constant pool tags
const (
	TagUtf8               = 1
	TagInteger            = 3
	TagFloat              = 4
	TagLong               = 5
	TagDouble             = 6
	TagClass              = 7
	TagString             = 8
	TagFieldref           = 9
	TagMethodref          = 10
	TagInterfaceMethodref = 11
	TagNameAndType        = 12
	TagMethodHandle       = 15
	TagMethodType         = 16
	TagDynamic            = 17
	TagInvokeDynamic      = 18
)

// rawSizes are the payload sizes of entries kept as ConstantRaw.
var rawSizes = map[uint8]int{
	TagMethodHandle:  3,
	TagMethodType:    2,
	TagDynamic:       4,
	TagInvokeDynamic: 4,
}

// constantPool reads the count and entries of the constant pool. Index 0
// and the slot after each long or double stay nil.
func (d *decoder) constantPool() []ConstantPoolEntry {
	count := int(d.u16())
	pool := make([]ConstantPoolEntry, count)
	for i := 1; i < count && d.err == nil; i++ {
		tag := d.u8()
		switch tag {
		case TagUtf8:
			pool[i] = &ConstantUtf8{Value: string(d.take(int(d.u16())))}
		case TagInteger:
			pool[i] = &ConstantInteger{Value: int32(d.u32())}
		case TagFloat:
			pool[i] = &ConstantFloat{Value: math.Float32frombits(d.u32())}
		case TagLong:
			pool[i] = &ConstantLong{Value: int64(d.u64())}
			i++
		case TagDouble:
			pool[i] = &ConstantDouble{Value: math.Float64frombits(d.u64())}
			i++
		case TagClass:
			pool[i] = &ConstantClass{NameIndex: d.u16()}
		case TagString:
			pool[i] = &ConstantString{StringIndex: d.u16()}
		case TagFieldref:
			pool[i] = &ConstantFieldref{ClassIndex: d.u16(), NameAndTypeIndex: d.u16()}
		case TagMethodref:
			pool[i] = &ConstantMethodref{ClassIndex: d.u16(), NameAndTypeIndex: d.u16()}
		case TagInterfaceMethodref:
			pool[i] = &ConstantInterfaceMethodref{ClassIndex: d.u16(), NameAndTypeIndex: d.u16()}
		case TagNameAndType:
			pool[i] = &ConstantNameAndType{NameIndex: d.u16(), DescriptorIndex: d.u16()}
		default:
			n, ok := rawSizes[tag]
			if !ok {
				d.fail("unknown tag %d at index %d", tag, i)
				break
			}
			pool[i] = &ConstantRaw{Kind: tag, Data: d.bytes(n)}
		}
	}
	return pool
}

func entry(pool []ConstantPoolEntry, index uint16) (ConstantPoolEntry, error) {
	if int(index) >= len(pool) || pool[index] == nil {
		return nil, fmt.Errorf("invalid constant pool index %d", index)
	}
	return pool[index], nil
}

// GetUtf8 returns the Utf8 string at the given constant pool index.
func GetUtf8(pool []ConstantPoolEntry, index uint16) (string, error) {
	c, err := entry(pool, index)
	if err != nil {
		return "", err
	}
	u, ok := c.(*ConstantUtf8)
	if !ok {
		return "", fmt.Errorf("constant pool index %d is not Utf8 (tag=%d)", index, c.Tag())
	}
	return u.Value, nil
}

// GetClassName returns the class name referenced by a CONSTANT_Class entry.
func GetClassName(pool []ConstantPoolEntry, index uint16) (string, error) {
	c, err := entry(pool, index)
	if err != nil {
		return "", err
	}
	class, ok := c.(*ConstantClass)
	if !ok {
		return "", fmt.Errorf("constant pool index %d is not Class (tag=%d)", index, c.Tag())
	}
	return GetUtf8(pool, class.NameIndex)
}

// MethodRefInfo is a resolved Methodref or InterfaceMethodref.
type MethodRefInfo struct {
	ClassName  string
	MethodName string
	Descriptor string
}

// FieldRefInfo is a resolved Fieldref.
type FieldRefInfo struct {
	ClassName  string
	FieldName  string
	Descriptor string
}

// ResolveMethodref resolves a CONSTANT_Methodref entry.
func ResolveMethodref(pool []ConstantPoolEntry, index uint16) (*MethodRefInfo, error) {
	class, name, desc, err := memberRef(pool, index, TagMethodref)
	if err != nil {
		return nil, err
	}
	return &MethodRefInfo{ClassName: class, MethodName: name, Descriptor: desc}, nil
}

// ResolveInterfaceMethodref resolves a CONSTANT_InterfaceMethodref entry.
func ResolveInterfaceMethodref(pool []ConstantPoolEntry, index uint16) (*MethodRefInfo, error) {
	class, name, desc, err := memberRef(pool, index, TagInterfaceMethodref)
	if err != nil {
		return nil, err
	}
	return &MethodRefInfo{ClassName: class, MethodName: name, Descriptor: desc}, nil
}

// ResolveFieldref resolves a CONSTANT_Fieldref entry.
func ResolveFieldref(pool []ConstantPoolEntry, index uint16) (*FieldRefInfo, error) {
	class, name, desc, err := memberRef(pool, index, TagFieldref)
	if err != nil {
		return nil, err
	}
	return &FieldRefInfo{ClassName: class, FieldName: name, Descriptor: desc}, nil
}

var refKinds = map[uint8]string{
	TagFieldref:           "Fieldref",
	TagMethodref:          "Methodref",
	TagInterfaceMethodref: "InterfaceMethodref",
}

// memberRef resolves the class, name and descriptor of a ref entry whose
// tag must be want.
func memberRef(pool []ConstantPoolEntry, index uint16, want uint8) (class, name, desc string, err error) {
	c, err := entry(pool, index)
	if err != nil {
		return "", "", "", err
	}
	if c.Tag() != want {
		return "", "", "", fmt.Errorf("constant pool index %d is not %s (tag=%d)", index, refKinds[want], c.Tag())
	}
	var classIndex, natIndex uint16
	switch r := c.(type) {
	case *ConstantFieldref:
		classIndex, natIndex = r.ClassIndex, r.NameAndTypeIndex
	case *ConstantMethodref:
		classIndex, natIndex = r.ClassIndex, r.NameAndTypeIndex
	case *ConstantInterfaceMethodref:
		classIndex, natIndex = r.ClassIndex, r.NameAndTypeIndex
	}

	if class, err = GetClassName(pool, classIndex); err != nil {
		return "", "", "", fmt.Errorf("resolving %s class: %w", refKinds[want], err)
	}
	n, err := entry(pool, natIndex)
	if err != nil {
		return "", "", "", err
	}
	nat, ok := n.(*ConstantNameAndType)
	if !ok {
		return "", "", "", fmt.Errorf("constant pool index %d is not NameAndType", natIndex)
	}
	if name, err = GetUtf8(pool, nat.NameIndex); err != nil {
		return "", "", "", fmt.Errorf("resolving %s name: %w", refKinds[want], err)
	}
	if desc, err = GetUtf8(pool, nat.DescriptorIndex); err != nil {
		return "", "", "", fmt.Errorf("resolving %s descriptor: %w", refKinds[want], err)
	}
	return class, name, desc, nil
}
