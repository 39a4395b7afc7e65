package asm

import (
	"fmt"
	"slices"

	"github.com/chazu/classasm/vtype"
)

// Opcode is a JVM instruction opcode.
type Opcode byte

const (
	// Constants
	OpNop        Opcode = 0x00
	OpAconstNull Opcode = 0x01
	OpIconstM1   Opcode = 0x02
	OpIconst0    Opcode = 0x03
	OpIconst1    Opcode = 0x04
	OpIconst2    Opcode = 0x05
	OpIconst3    Opcode = 0x06
	OpIconst4    Opcode = 0x07
	OpIconst5    Opcode = 0x08
	OpLconst0    Opcode = 0x09
	OpLconst1    Opcode = 0x0A
	OpFconst0    Opcode = 0x0B
	OpFconst1    Opcode = 0x0C
	OpFconst2    Opcode = 0x0D
	OpDconst0    Opcode = 0x0E
	OpDconst1    Opcode = 0x0F
	OpBipush     Opcode = 0x10
	OpSipush     Opcode = 0x11
	OpLdc        Opcode = 0x12
	OpLdcW       Opcode = 0x13
	OpLdc2W      Opcode = 0x14

	// Loads
	OpIload  Opcode = 0x15
	OpLload  Opcode = 0x16
	OpFload  Opcode = 0x17
	OpDload  Opcode = 0x18
	OpAload  Opcode = 0x19
	OpIload0 Opcode = 0x1A
	OpIload1 Opcode = 0x1B
	OpIload2 Opcode = 0x1C
	OpIload3 Opcode = 0x1D
	OpLload0 Opcode = 0x1E
	OpLload1 Opcode = 0x1F
	OpLload2 Opcode = 0x20
	OpLload3 Opcode = 0x21
	OpFload0 Opcode = 0x22
	OpFload1 Opcode = 0x23
	OpFload2 Opcode = 0x24
	OpFload3 Opcode = 0x25
	OpDload0 Opcode = 0x26
	OpDload1 Opcode = 0x27
	OpDload2 Opcode = 0x28
	OpDload3 Opcode = 0x29
	OpAload0 Opcode = 0x2A
	OpAload1 Opcode = 0x2B
	OpAload2 Opcode = 0x2C
	OpAload3 Opcode = 0x2D
	OpIaload Opcode = 0x2E
	OpLaload Opcode = 0x2F
	OpFaload Opcode = 0x30
	OpDaload Opcode = 0x31
	OpAaload Opcode = 0x32
	OpBaload Opcode = 0x33
	OpCaload Opcode = 0x34
	OpSaload Opcode = 0x35

	// Stores
	OpIstore  Opcode = 0x36
	OpLstore  Opcode = 0x37
	OpFstore  Opcode = 0x38
	OpDstore  Opcode = 0x39
	OpAstore  Opcode = 0x3A
	OpIstore0 Opcode = 0x3B
	OpIstore1 Opcode = 0x3C
	OpIstore2 Opcode = 0x3D
	OpIstore3 Opcode = 0x3E
	OpLstore0 Opcode = 0x3F
	OpLstore1 Opcode = 0x40
	OpLstore2 Opcode = 0x41
	OpLstore3 Opcode = 0x42
	OpFstore0 Opcode = 0x43
	OpFstore1 Opcode = 0x44
	OpFstore2 Opcode = 0x45
	OpFstore3 Opcode = 0x46
	OpDstore0 Opcode = 0x47
	OpDstore1 Opcode = 0x48
	OpDstore2 Opcode = 0x49
	OpDstore3 Opcode = 0x4A
	OpAstore0 Opcode = 0x4B
	OpAstore1 Opcode = 0x4C
	OpAstore2 Opcode = 0x4D
	OpAstore3 Opcode = 0x4E
	OpIastore Opcode = 0x4F
	OpLastore Opcode = 0x50
	OpFastore Opcode = 0x51
	OpDastore Opcode = 0x52
	OpAastore Opcode = 0x53
	OpBastore Opcode = 0x54
	OpCastore Opcode = 0x55
	OpSastore Opcode = 0x56

	// Stack
	OpPop    Opcode = 0x57
	OpPop2   Opcode = 0x58
	OpDup    Opcode = 0x59
	OpDupX1  Opcode = 0x5A
	OpDupX2  Opcode = 0x5B
	OpDup2   Opcode = 0x5C
	OpDup2X1 Opcode = 0x5D
	OpDup2X2 Opcode = 0x5E
	OpSwap   Opcode = 0x5F

	// Math
	OpIadd  Opcode = 0x60
	OpLadd  Opcode = 0x61
	OpFadd  Opcode = 0x62
	OpDadd  Opcode = 0x63
	OpIsub  Opcode = 0x64
	OpLsub  Opcode = 0x65
	OpFsub  Opcode = 0x66
	OpDsub  Opcode = 0x67
	OpImul  Opcode = 0x68
	OpLmul  Opcode = 0x69
	OpFmul  Opcode = 0x6A
	OpDmul  Opcode = 0x6B
	OpIdiv  Opcode = 0x6C
	OpLdiv  Opcode = 0x6D
	OpFdiv  Opcode = 0x6E
	OpDdiv  Opcode = 0x6F
	OpIrem  Opcode = 0x70
	OpLrem  Opcode = 0x71
	OpFrem  Opcode = 0x72
	OpDrem  Opcode = 0x73
	OpIneg  Opcode = 0x74
	OpLneg  Opcode = 0x75
	OpFneg  Opcode = 0x76
	OpDneg  Opcode = 0x77
	OpIshl  Opcode = 0x78
	OpLshl  Opcode = 0x79
	OpIshr  Opcode = 0x7A
	OpLshr  Opcode = 0x7B
	OpIushr Opcode = 0x7C
	OpLushr Opcode = 0x7D
	OpIand  Opcode = 0x7E
	OpLand  Opcode = 0x7F
	OpIor   Opcode = 0x80
	OpLor   Opcode = 0x81
	OpIxor  Opcode = 0x82
	OpLxor  Opcode = 0x83

	// Increment and conversions
	OpIinc Opcode = 0x84
	OpI2l  Opcode = 0x85
	OpI2f  Opcode = 0x86
	OpI2d  Opcode = 0x87
	OpL2i  Opcode = 0x88
	OpL2f  Opcode = 0x89
	OpL2d  Opcode = 0x8A
	OpF2i  Opcode = 0x8B
	OpF2l  Opcode = 0x8C
	OpF2d  Opcode = 0x8D
	OpD2i  Opcode = 0x8E
	OpD2l  Opcode = 0x8F
	OpD2f  Opcode = 0x90
	OpI2b  Opcode = 0x91
	OpI2c  Opcode = 0x92
	OpI2s  Opcode = 0x93

	// Comparisons
	OpLcmp     Opcode = 0x94
	OpFcmpl    Opcode = 0x95
	OpFcmpg    Opcode = 0x96
	OpDcmpl    Opcode = 0x97
	OpDcmpg    Opcode = 0x98
	OpIfeq     Opcode = 0x99
	OpIfne     Opcode = 0x9A
	OpIflt     Opcode = 0x9B
	OpIfge     Opcode = 0x9C
	OpIfgt     Opcode = 0x9D
	OpIfle     Opcode = 0x9E
	OpIfIcmpeq Opcode = 0x9F
	OpIfIcmpne Opcode = 0xA0
	OpIfIcmplt Opcode = 0xA1
	OpIfIcmpge Opcode = 0xA2
	OpIfIcmpgt Opcode = 0xA3
	OpIfIcmple Opcode = 0xA4
	OpIfAcmpeq Opcode = 0xA5
	OpIfAcmpne Opcode = 0xA6

	// Control
	OpGoto         Opcode = 0xA7
	OpTableswitch  Opcode = 0xAA
	OpLookupswitch Opcode = 0xAB
	OpIreturn      Opcode = 0xAC
	OpLreturn      Opcode = 0xAD
	OpFreturn      Opcode = 0xAE
	OpDreturn      Opcode = 0xAF
	OpAreturn      Opcode = 0xB0
	OpReturn       Opcode = 0xB1

	// References
	OpGetstatic       Opcode = 0xB2
	OpPutstatic       Opcode = 0xB3
	OpGetfield        Opcode = 0xB4
	OpPutfield        Opcode = 0xB5
	OpInvokevirtual   Opcode = 0xB6
	OpInvokespecial   Opcode = 0xB7
	OpInvokestatic    Opcode = 0xB8
	OpInvokeinterface Opcode = 0xB9
	OpInvokedynamic   Opcode = 0xBA
	OpNew             Opcode = 0xBB
	OpNewarray        Opcode = 0xBC
	OpAnewarray       Opcode = 0xBD
	OpArraylength     Opcode = 0xBE
	OpAthrow          Opcode = 0xBF
	OpCheckcast       Opcode = 0xC0
	OpInstanceof      Opcode = 0xC1
	OpMonitorenter    Opcode = 0xC2
	OpMonitorexit     Opcode = 0xC3

	// Extended
	OpWide      Opcode = 0xC4
	OpIfnull    Opcode = 0xC6
	OpIfnonnull Opcode = 0xC7
)

// opClass groups opcodes by the node kind that may carry them and the way
// their stack effect is computed.
type opClass uint8

const (
	classSimple  opClass = iota // fixed pops and pushes, no operands
	classConst                  // emitted for Const nodes only
	classLocal                  // local variable access
	classShuffle                // untyped stack manipulation
	classBranch                 // 16-bit relative jump
	classSwitch                 // tableswitch and lookupswitch
	classReturn                 // method exit
	classThrow                  // athrow
	classField                  // field access through a Fieldref
	classInvoke                 // method invocation
	classType                   // class operand: new, checkcast, ...
	classPrefix                 // wide
)

// OpcodeInfo describes an opcode for assembly and listing.
type OpcodeInfo struct {
	Name       string       // mnemonic as printed by javap
	OperandLen int          // operand bytes after the opcode, -1 when variable
	Pop        []vtype.Type // popped types, deepest first, for fixed-effect opcodes
	Push       []vtype.Type // pushed types, deepest first, for fixed-effect opcodes
	class      opClass
}

var anyRef = vtype.AnyReference

func types(ts ...vtype.Type) []vtype.Type { return ts }

var opcodeInfoTable = map[Opcode]OpcodeInfo{
	// Constants
	OpNop:        {"nop", 0, nil, nil, classSimple},
	OpAconstNull: {"aconst_null", 0, nil, types(anyRef), classSimple},
	OpIconstM1:   {"iconst_m1", 0, nil, types(vtype.Int), classSimple},
	OpIconst0:    {"iconst_0", 0, nil, types(vtype.Int), classSimple},
	OpIconst1:    {"iconst_1", 0, nil, types(vtype.Int), classSimple},
	OpIconst2:    {"iconst_2", 0, nil, types(vtype.Int), classSimple},
	OpIconst3:    {"iconst_3", 0, nil, types(vtype.Int), classSimple},
	OpIconst4:    {"iconst_4", 0, nil, types(vtype.Int), classSimple},
	OpIconst5:    {"iconst_5", 0, nil, types(vtype.Int), classSimple},
	OpLconst0:    {"lconst_0", 0, nil, types(vtype.Long), classSimple},
	OpLconst1:    {"lconst_1", 0, nil, types(vtype.Long), classSimple},
	OpFconst0:    {"fconst_0", 0, nil, types(vtype.Float), classSimple},
	OpFconst1:    {"fconst_1", 0, nil, types(vtype.Float), classSimple},
	OpFconst2:    {"fconst_2", 0, nil, types(vtype.Float), classSimple},
	OpDconst0:    {"dconst_0", 0, nil, types(vtype.Double), classSimple},
	OpDconst1:    {"dconst_1", 0, nil, types(vtype.Double), classSimple},
	OpBipush:     {"bipush", 1, nil, types(vtype.Int), classConst},
	OpSipush:     {"sipush", 2, nil, types(vtype.Int), classConst},
	OpLdc:        {"ldc", 1, nil, nil, classConst},
	OpLdcW:       {"ldc_w", 2, nil, nil, classConst},
	OpLdc2W:      {"ldc2_w", 2, nil, nil, classConst},

	// Loads
	OpIload:  {"iload", 1, nil, nil, classLocal},
	OpLload:  {"lload", 1, nil, nil, classLocal},
	OpFload:  {"fload", 1, nil, nil, classLocal},
	OpDload:  {"dload", 1, nil, nil, classLocal},
	OpAload:  {"aload", 1, nil, nil, classLocal},
	OpIload0: {"iload_0", 0, nil, nil, classLocal},
	OpIload1: {"iload_1", 0, nil, nil, classLocal},
	OpIload2: {"iload_2", 0, nil, nil, classLocal},
	OpIload3: {"iload_3", 0, nil, nil, classLocal},
	OpLload0: {"lload_0", 0, nil, nil, classLocal},
	OpLload1: {"lload_1", 0, nil, nil, classLocal},
	OpLload2: {"lload_2", 0, nil, nil, classLocal},
	OpLload3: {"lload_3", 0, nil, nil, classLocal},
	OpFload0: {"fload_0", 0, nil, nil, classLocal},
	OpFload1: {"fload_1", 0, nil, nil, classLocal},
	OpFload2: {"fload_2", 0, nil, nil, classLocal},
	OpFload3: {"fload_3", 0, nil, nil, classLocal},
	OpDload0: {"dload_0", 0, nil, nil, classLocal},
	OpDload1: {"dload_1", 0, nil, nil, classLocal},
	OpDload2: {"dload_2", 0, nil, nil, classLocal},
	OpDload3: {"dload_3", 0, nil, nil, classLocal},
	OpAload0: {"aload_0", 0, nil, nil, classLocal},
	OpAload1: {"aload_1", 0, nil, nil, classLocal},
	OpAload2: {"aload_2", 0, nil, nil, classLocal},
	OpAload3: {"aload_3", 0, nil, nil, classLocal},
	OpIaload: {"iaload", 0, types(anyRef, vtype.Int), types(vtype.Int), classSimple},
	OpLaload: {"laload", 0, types(anyRef, vtype.Int), types(vtype.Long), classSimple},
	OpFaload: {"faload", 0, types(anyRef, vtype.Int), types(vtype.Float), classSimple},
	OpDaload: {"daload", 0, types(anyRef, vtype.Int), types(vtype.Double), classSimple},
	OpAaload: {"aaload", 0, types(anyRef, vtype.Int), types(anyRef), classSimple},
	OpBaload: {"baload", 0, types(anyRef, vtype.Int), types(vtype.Int), classSimple},
	OpCaload: {"caload", 0, types(anyRef, vtype.Int), types(vtype.Int), classSimple},
	OpSaload: {"saload", 0, types(anyRef, vtype.Int), types(vtype.Int), classSimple},

	// Stores
	OpIstore:  {"istore", 1, nil, nil, classLocal},
	OpLstore:  {"lstore", 1, nil, nil, classLocal},
	OpFstore:  {"fstore", 1, nil, nil, classLocal},
	OpDstore:  {"dstore", 1, nil, nil, classLocal},
	OpAstore:  {"astore", 1, nil, nil, classLocal},
	OpIstore0: {"istore_0", 0, nil, nil, classLocal},
	OpIstore1: {"istore_1", 0, nil, nil, classLocal},
	OpIstore2: {"istore_2", 0, nil, nil, classLocal},
	OpIstore3: {"istore_3", 0, nil, nil, classLocal},
	OpLstore0: {"lstore_0", 0, nil, nil, classLocal},
	OpLstore1: {"lstore_1", 0, nil, nil, classLocal},
	OpLstore2: {"lstore_2", 0, nil, nil, classLocal},
	OpLstore3: {"lstore_3", 0, nil, nil, classLocal},
	OpFstore0: {"fstore_0", 0, nil, nil, classLocal},
	OpFstore1: {"fstore_1", 0, nil, nil, classLocal},
	OpFstore2: {"fstore_2", 0, nil, nil, classLocal},
	OpFstore3: {"fstore_3", 0, nil, nil, classLocal},
	OpDstore0: {"dstore_0", 0, nil, nil, classLocal},
	OpDstore1: {"dstore_1", 0, nil, nil, classLocal},
	OpDstore2: {"dstore_2", 0, nil, nil, classLocal},
	OpDstore3: {"dstore_3", 0, nil, nil, classLocal},
	OpAstore0: {"astore_0", 0, nil, nil, classLocal},
	OpAstore1: {"astore_1", 0, nil, nil, classLocal},
	OpAstore2: {"astore_2", 0, nil, nil, classLocal},
	OpAstore3: {"astore_3", 0, nil, nil, classLocal},
	OpIastore: {"iastore", 0, types(anyRef, vtype.Int, vtype.Int), nil, classSimple},
	OpLastore: {"lastore", 0, types(anyRef, vtype.Int, vtype.Long), nil, classSimple},
	OpFastore: {"fastore", 0, types(anyRef, vtype.Int, vtype.Float), nil, classSimple},
	OpDastore: {"dastore", 0, types(anyRef, vtype.Int, vtype.Double), nil, classSimple},
	OpAastore: {"aastore", 0, types(anyRef, vtype.Int, anyRef), nil, classSimple},
	OpBastore: {"bastore", 0, types(anyRef, vtype.Int, vtype.Int), nil, classSimple},
	OpCastore: {"castore", 0, types(anyRef, vtype.Int, vtype.Int), nil, classSimple},
	OpSastore: {"sastore", 0, types(anyRef, vtype.Int, vtype.Int), nil, classSimple},

	// Stack
	OpPop:    {"pop", 0, nil, nil, classShuffle},
	OpPop2:   {"pop2", 0, nil, nil, classShuffle},
	OpDup:    {"dup", 0, nil, nil, classShuffle},
	OpDupX1:  {"dup_x1", 0, nil, nil, classShuffle},
	OpDupX2:  {"dup_x2", 0, nil, nil, classShuffle},
	OpDup2:   {"dup2", 0, nil, nil, classShuffle},
	OpDup2X1: {"dup2_x1", 0, nil, nil, classShuffle},
	OpDup2X2: {"dup2_x2", 0, nil, nil, classShuffle},
	OpSwap:   {"swap", 0, nil, nil, classShuffle},

	// Math
	OpIadd:  {"iadd", 0, types(vtype.Int, vtype.Int), types(vtype.Int), classSimple},
	OpLadd:  {"ladd", 0, types(vtype.Long, vtype.Long), types(vtype.Long), classSimple},
	OpFadd:  {"fadd", 0, types(vtype.Float, vtype.Float), types(vtype.Float), classSimple},
	OpDadd:  {"dadd", 0, types(vtype.Double, vtype.Double), types(vtype.Double), classSimple},
	OpIsub:  {"isub", 0, types(vtype.Int, vtype.Int), types(vtype.Int), classSimple},
	OpLsub:  {"lsub", 0, types(vtype.Long, vtype.Long), types(vtype.Long), classSimple},
	OpFsub:  {"fsub", 0, types(vtype.Float, vtype.Float), types(vtype.Float), classSimple},
	OpDsub:  {"dsub", 0, types(vtype.Double, vtype.Double), types(vtype.Double), classSimple},
	OpImul:  {"imul", 0, types(vtype.Int, vtype.Int), types(vtype.Int), classSimple},
	OpLmul:  {"lmul", 0, types(vtype.Long, vtype.Long), types(vtype.Long), classSimple},
	OpFmul:  {"fmul", 0, types(vtype.Float, vtype.Float), types(vtype.Float), classSimple},
	OpDmul:  {"dmul", 0, types(vtype.Double, vtype.Double), types(vtype.Double), classSimple},
	OpIdiv:  {"idiv", 0, types(vtype.Int, vtype.Int), types(vtype.Int), classSimple},
	OpLdiv:  {"ldiv", 0, types(vtype.Long, vtype.Long), types(vtype.Long), classSimple},
	OpFdiv:  {"fdiv", 0, types(vtype.Float, vtype.Float), types(vtype.Float), classSimple},
	OpDdiv:  {"ddiv", 0, types(vtype.Double, vtype.Double), types(vtype.Double), classSimple},
	OpIrem:  {"irem", 0, types(vtype.Int, vtype.Int), types(vtype.Int), classSimple},
	OpLrem:  {"lrem", 0, types(vtype.Long, vtype.Long), types(vtype.Long), classSimple},
	OpFrem:  {"frem", 0, types(vtype.Float, vtype.Float), types(vtype.Float), classSimple},
	OpDrem:  {"drem", 0, types(vtype.Double, vtype.Double), types(vtype.Double), classSimple},
	OpIneg:  {"ineg", 0, types(vtype.Int), types(vtype.Int), classSimple},
	OpLneg:  {"lneg", 0, types(vtype.Long), types(vtype.Long), classSimple},
	OpFneg:  {"fneg", 0, types(vtype.Float), types(vtype.Float), classSimple},
	OpDneg:  {"dneg", 0, types(vtype.Double), types(vtype.Double), classSimple},
	OpIshl:  {"ishl", 0, types(vtype.Int, vtype.Int), types(vtype.Int), classSimple},
	OpLshl:  {"lshl", 0, types(vtype.Long, vtype.Int), types(vtype.Long), classSimple},
	OpIshr:  {"ishr", 0, types(vtype.Int, vtype.Int), types(vtype.Int), classSimple},
	OpLshr:  {"lshr", 0, types(vtype.Long, vtype.Int), types(vtype.Long), classSimple},
	OpIushr: {"iushr", 0, types(vtype.Int, vtype.Int), types(vtype.Int), classSimple},
	OpLushr: {"lushr", 0, types(vtype.Long, vtype.Int), types(vtype.Long), classSimple},
	OpIand:  {"iand", 0, types(vtype.Int, vtype.Int), types(vtype.Int), classSimple},
	OpLand:  {"land", 0, types(vtype.Long, vtype.Long), types(vtype.Long), classSimple},
	OpIor:   {"ior", 0, types(vtype.Int, vtype.Int), types(vtype.Int), classSimple},
	OpLor:   {"lor", 0, types(vtype.Long, vtype.Long), types(vtype.Long), classSimple},
	OpIxor:  {"ixor", 0, types(vtype.Int, vtype.Int), types(vtype.Int), classSimple},
	OpLxor:  {"lxor", 0, types(vtype.Long, vtype.Long), types(vtype.Long), classSimple},

	// Increment and conversions
	OpIinc: {"iinc", 2, nil, nil, classLocal},
	OpI2l:  {"i2l", 0, types(vtype.Int), types(vtype.Long), classSimple},
	OpI2f:  {"i2f", 0, types(vtype.Int), types(vtype.Float), classSimple},
	OpI2d:  {"i2d", 0, types(vtype.Int), types(vtype.Double), classSimple},
	OpL2i:  {"l2i", 0, types(vtype.Long), types(vtype.Int), classSimple},
	OpL2f:  {"l2f", 0, types(vtype.Long), types(vtype.Float), classSimple},
	OpL2d:  {"l2d", 0, types(vtype.Long), types(vtype.Double), classSimple},
	OpF2i:  {"f2i", 0, types(vtype.Float), types(vtype.Int), classSimple},
	OpF2l:  {"f2l", 0, types(vtype.Float), types(vtype.Long), classSimple},
	OpF2d:  {"f2d", 0, types(vtype.Float), types(vtype.Double), classSimple},
	OpD2i:  {"d2i", 0, types(vtype.Double), types(vtype.Int), classSimple},
	OpD2l:  {"d2l", 0, types(vtype.Double), types(vtype.Long), classSimple},
	OpD2f:  {"d2f", 0, types(vtype.Double), types(vtype.Float), classSimple},
	OpI2b:  {"i2b", 0, types(vtype.Int), types(vtype.Int), classSimple},
	OpI2c:  {"i2c", 0, types(vtype.Int), types(vtype.Int), classSimple},
	OpI2s:  {"i2s", 0, types(vtype.Int), types(vtype.Int), classSimple},

	// Comparisons
	OpLcmp:     {"lcmp", 0, types(vtype.Long, vtype.Long), types(vtype.Int), classSimple},
	OpFcmpl:    {"fcmpl", 0, types(vtype.Float, vtype.Float), types(vtype.Int), classSimple},
	OpFcmpg:    {"fcmpg", 0, types(vtype.Float, vtype.Float), types(vtype.Int), classSimple},
	OpDcmpl:    {"dcmpl", 0, types(vtype.Double, vtype.Double), types(vtype.Int), classSimple},
	OpDcmpg:    {"dcmpg", 0, types(vtype.Double, vtype.Double), types(vtype.Int), classSimple},
	OpIfeq:     {"ifeq", 2, types(vtype.Int), nil, classBranch},
	OpIfne:     {"ifne", 2, types(vtype.Int), nil, classBranch},
	OpIflt:     {"iflt", 2, types(vtype.Int), nil, classBranch},
	OpIfge:     {"ifge", 2, types(vtype.Int), nil, classBranch},
	OpIfgt:     {"ifgt", 2, types(vtype.Int), nil, classBranch},
	OpIfle:     {"ifle", 2, types(vtype.Int), nil, classBranch},
	OpIfIcmpeq: {"if_icmpeq", 2, types(vtype.Int, vtype.Int), nil, classBranch},
	OpIfIcmpne: {"if_icmpne", 2, types(vtype.Int, vtype.Int), nil, classBranch},
	OpIfIcmplt: {"if_icmplt", 2, types(vtype.Int, vtype.Int), nil, classBranch},
	OpIfIcmpge: {"if_icmpge", 2, types(vtype.Int, vtype.Int), nil, classBranch},
	OpIfIcmpgt: {"if_icmpgt", 2, types(vtype.Int, vtype.Int), nil, classBranch},
	OpIfIcmple: {"if_icmple", 2, types(vtype.Int, vtype.Int), nil, classBranch},
	OpIfAcmpeq: {"if_acmpeq", 2, types(anyRef, anyRef), nil, classBranch},
	OpIfAcmpne: {"if_acmpne", 2, types(anyRef, anyRef), nil, classBranch},

	// Control
	OpGoto:         {"goto", 2, nil, nil, classBranch},
	OpTableswitch:  {"tableswitch", -1, types(vtype.Int), nil, classSwitch},
	OpLookupswitch: {"lookupswitch", -1, types(vtype.Int), nil, classSwitch},
	OpIreturn:      {"ireturn", 0, types(vtype.Int), nil, classReturn},
	OpLreturn:      {"lreturn", 0, types(vtype.Long), nil, classReturn},
	OpFreturn:      {"freturn", 0, types(vtype.Float), nil, classReturn},
	OpDreturn:      {"dreturn", 0, types(vtype.Double), nil, classReturn},
	OpAreturn:      {"areturn", 0, types(anyRef), nil, classReturn},
	OpReturn:       {"return", 0, nil, nil, classReturn},

	// References
	OpGetstatic:       {"getstatic", 2, nil, nil, classField},
	OpPutstatic:       {"putstatic", 2, nil, nil, classField},
	OpGetfield:        {"getfield", 2, nil, nil, classField},
	OpPutfield:        {"putfield", 2, nil, nil, classField},
	OpInvokevirtual:   {"invokevirtual", 2, nil, nil, classInvoke},
	OpInvokespecial:   {"invokespecial", 2, nil, nil, classInvoke},
	OpInvokestatic:    {"invokestatic", 2, nil, nil, classInvoke},
	OpInvokeinterface: {"invokeinterface", 4, nil, nil, classInvoke},
	OpInvokedynamic:   {"invokedynamic", 4, nil, nil, classInvoke},
	OpNew:             {"new", 2, nil, nil, classType},
	OpNewarray:        {"newarray", 1, types(vtype.Int), nil, classType},
	OpAnewarray:       {"anewarray", 2, nil, nil, classType},
	OpArraylength:     {"arraylength", 0, types(anyRef), types(vtype.Int), classSimple},
	OpAthrow:          {"athrow", 0, types(anyRef), nil, classThrow},
	OpCheckcast:       {"checkcast", 2, nil, nil, classType},
	OpInstanceof:      {"instanceof", 2, nil, nil, classType},
	OpMonitorenter:    {"monitorenter", 0, types(anyRef), nil, classSimple},
	OpMonitorexit:     {"monitorexit", 0, types(anyRef), nil, classSimple},

	// Extended
	OpWide:      {"wide", -1, nil, nil, classPrefix},
	OpIfnull:    {"ifnull", 2, types(anyRef), nil, classBranch},
	OpIfnonnull: {"ifnonnull", 2, types(anyRef), nil, classBranch},
}

// GetOpcodeInfo returns metadata for an opcode. Unknown opcodes get a name
// of the form "unknown(0xNN)".
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("unknown(0x%02X)", byte(op))}
}

// String returns the mnemonic of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// IsBranch reports whether op is a conditional or unconditional 16-bit jump.
func (op Opcode) IsBranch() bool {
	return GetOpcodeInfo(op).class == classBranch
}

// IsConditional reports whether op is a conditional jump.
func (op Opcode) IsConditional() bool {
	return op.IsBranch() && op != OpGoto
}

// IsReturn reports whether op returns from the method.
func (op Opcode) IsReturn() bool {
	return GetOpcodeInfo(op).class == classReturn
}

// EndsBlock reports whether control never falls through op to the next
// instruction.
func (op Opcode) EndsBlock() bool {
	switch GetOpcodeInfo(op).class {
	case classReturn, classThrow, classSwitch:
		return true
	}
	return op == OpGoto
}

// Negate returns the conditional jump taken exactly when op is not taken.
func (op Opcode) Negate() (Opcode, bool) {
	switch op {
	case OpIfeq:
		return OpIfne, true
	case OpIfne:
		return OpIfeq, true
	case OpIflt:
		return OpIfge, true
	case OpIfge:
		return OpIflt, true
	case OpIfgt:
		return OpIfle, true
	case OpIfle:
		return OpIfgt, true
	case OpIfIcmpeq:
		return OpIfIcmpne, true
	case OpIfIcmpne:
		return OpIfIcmpeq, true
	case OpIfIcmplt:
		return OpIfIcmpge, true
	case OpIfIcmpge:
		return OpIfIcmplt, true
	case OpIfIcmpgt:
		return OpIfIcmple, true
	case OpIfIcmple:
		return OpIfIcmpgt, true
	case OpIfAcmpeq:
		return OpIfAcmpne, true
	case OpIfAcmpne:
		return OpIfAcmpeq, true
	case OpIfnull:
		return OpIfnonnull, true
	case OpIfnonnull:
		return OpIfnull, true
	}
	return 0, false
}

// AllOpcodes returns every opcode the assembler knows, in numeric order.
func AllOpcodes() []Opcode {
	ops := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		ops = append(ops, op)
	}
	slices.Sort(ops)
	return ops
}
