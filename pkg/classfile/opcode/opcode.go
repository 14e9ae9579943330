// Package opcode lists the JVM instruction set subset understood by the
// interpreter and the class builder.
package opcode

const (
	Nop        = 0x00
	AconstNull = 0x01
	IconstM1   = 0x02
	Iconst0    = 0x03
	Iconst1    = 0x04
	Iconst2    = 0x05
	Iconst3    = 0x06
	Iconst4    = 0x07
	Iconst5    = 0x08
	Lconst0    = 0x09
	Lconst1    = 0x0A
	Fconst0    = 0x0B
	Fconst1    = 0x0C
	Fconst2    = 0x0D
	Dconst0    = 0x0E
	Dconst1    = 0x0F
	Bipush     = 0x10
	Sipush     = 0x11
	Ldc        = 0x12
	LdcW       = 0x13
	Ldc2W      = 0x14

	Iload  = 0x15
	Lload  = 0x16
	Fload  = 0x17
	Dload  = 0x18
	Aload  = 0x19
	Iload0 = 0x1A
	Lload0 = 0x1E
	Fload0 = 0x22
	Dload0 = 0x26
	Aload0 = 0x2A
	Aload1 = 0x2B
	Aload2 = 0x2C
	Aload3 = 0x2D

	Iaload = 0x2E
	Laload = 0x2F
	Faload = 0x30
	Daload = 0x31
	Aaload = 0x32
	Baload = 0x33
	Caload = 0x34
	Saload = 0x35

	Istore  = 0x36
	Lstore  = 0x37
	Fstore  = 0x38
	Dstore  = 0x39
	Astore  = 0x3A
	Istore0 = 0x3B
	Lstore0 = 0x3F
	Fstore0 = 0x43
	Dstore0 = 0x47
	Astore0 = 0x4B
	Astore3 = 0x4E

	Iastore = 0x4F
	Lastore = 0x50
	Fastore = 0x51
	Dastore = 0x52
	Aastore = 0x53
	Bastore = 0x54
	Castore = 0x55
	Sastore = 0x56

	Pop    = 0x57
	Pop2   = 0x58
	Dup    = 0x59
	DupX1  = 0x5A
	DupX2  = 0x5B
	Dup2   = 0x5C
	Dup2X1 = 0x5D
	Dup2X2 = 0x5E
	Swap   = 0x5F

	Iadd  = 0x60
	Ladd  = 0x61
	Fadd  = 0x62
	Dadd  = 0x63
	Isub  = 0x64
	Lsub  = 0x65
	Fsub  = 0x66
	Dsub  = 0x67
	Imul  = 0x68
	Lmul  = 0x69
	Fmul  = 0x6A
	Dmul  = 0x6B
	Idiv  = 0x6C
	Ldiv  = 0x6D
	Fdiv  = 0x6E
	Ddiv  = 0x6F
	Irem  = 0x70
	Lrem  = 0x71
	Frem  = 0x72
	Drem  = 0x73
	Ineg  = 0x74
	Lneg  = 0x75
	Fneg  = 0x76
	Dneg  = 0x77
	Ishl  = 0x78
	Lshl  = 0x79
	Ishr  = 0x7A
	Lshr  = 0x7B
	Iushr = 0x7C
	Lushr = 0x7D
	Iand  = 0x7E
	Land  = 0x7F
	Ior   = 0x80
	Lor   = 0x81
	Ixor  = 0x82
	Lxor  = 0x83
	Iinc  = 0x84

	I2l = 0x85
	I2f = 0x86
	I2d = 0x87
	L2i = 0x88
	L2f = 0x89
	L2d = 0x8A
	F2i = 0x8B
	F2l = 0x8C
	F2d = 0x8D
	D2i = 0x8E
	D2l = 0x8F
	D2f = 0x90
	I2b = 0x91
	I2c = 0x92
	I2s = 0x93

	Lcmp  = 0x94
	Fcmpl = 0x95
	Fcmpg = 0x96
	Dcmpl = 0x97
	Dcmpg = 0x98

	Ifeq     = 0x99
	Ifne     = 0x9A
	Iflt     = 0x9B
	Ifge     = 0x9C
	Ifgt     = 0x9D
	Ifle     = 0x9E
	IfIcmpeq = 0x9F
	IfIcmpne = 0xA0
	IfIcmplt = 0xA1
	IfIcmpge = 0xA2
	IfIcmpgt = 0xA3
	IfIcmple = 0xA4
	IfAcmpeq = 0xA5
	IfAcmpne = 0xA6
	Goto     = 0xA7

	Tableswitch  = 0xAA
	Lookupswitch = 0xAB

	Ireturn = 0xAC
	Lreturn = 0xAD
	Freturn = 0xAE
	Dreturn = 0xAF
	Areturn = 0xB0
	Return  = 0xB1

	Getstatic       = 0xB2
	Putstatic       = 0xB3
	Getfield        = 0xB4
	Putfield        = 0xB5
	Invokevirtual   = 0xB6
	Invokespecial   = 0xB7
	Invokestatic    = 0xB8
	Invokeinterface = 0xB9

	New         = 0xBB
	Newarray    = 0xBC
	Anewarray   = 0xBD
	Arraylength = 0xBE
	Athrow      = 0xBF
	Checkcast   = 0xC0
	Instanceof  = 0xC1

	Monitorenter = 0xC2
	Monitorexit  = 0xC3
	Wide         = 0xC4

	Ifnull    = 0xC6
	Ifnonnull = 0xC7
	GotoW     = 0xC8
)

// IsBranch reports whether op takes a signed 16-bit branch offset.
func IsBranch(op byte) bool {
	return (op >= Ifeq && op <= Goto) || op == Ifnull || op == Ifnonnull
}
