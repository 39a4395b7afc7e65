package pool

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf16"
)

// Tag is the constant pool entry tag byte.
type Tag uint8

const (
	TagUtf8               Tag = 1
	TagInteger            Tag = 3
	TagFloat              Tag = 4
	TagLong               Tag = 5
	TagDouble             Tag = 6
	TagClass              Tag = 7
	TagString             Tag = 8
	TagFieldRef           Tag = 9
	TagMethodRef          Tag = 10
	TagInterfaceMethodRef Tag = 11
	TagNameAndType        Tag = 12
	TagMethodHandle       Tag = 15
	TagMethodType         Tag = 16
	TagInvokeDynamic      Tag = 18
)

// String returns the tag name as the class-file format spells it.
func (t Tag) String() string {
	switch t {
	case TagUtf8:
		return "Utf8"
	case TagInteger:
		return "Integer"
	case TagFloat:
		return "Float"
	case TagLong:
		return "Long"
	case TagDouble:
		return "Double"
	case TagClass:
		return "Class"
	case TagString:
		return "String"
	case TagFieldRef:
		return "Fieldref"
	case TagMethodRef:
		return "Methodref"
	case TagInterfaceMethodRef:
		return "InterfaceMethodref"
	case TagNameAndType:
		return "NameAndType"
	case TagMethodHandle:
		return "MethodHandle"
	case TagMethodType:
		return "MethodType"
	case TagInvokeDynamic:
		return "InvokeDynamic"
	default:
		return fmt.Sprintf("Tag(%d)", t)
	}
}

// HandleKind is the reference kind of a MethodHandle entry.
type HandleKind uint8

const (
	RefGetField         HandleKind = 1
	RefGetStatic        HandleKind = 2
	RefPutField         HandleKind = 3
	RefPutStatic        HandleKind = 4
	RefInvokeVirtual    HandleKind = 5
	RefInvokeStatic     HandleKind = 6
	RefInvokeSpecial    HandleKind = 7
	RefNewInvokeSpecial HandleKind = 8
	RefInvokeInterface  HandleKind = 9
)

// Index is a 1-based constant pool index. Zero means "no entry".
type Index uint16

// Entry is a constant pool entry. The set of implementations is closed;
// entries are immutable values.
type Entry interface {
	Tag() Tag

	// deps returns the indices this entry refers to, paired with the tags
	// they must carry.
	deps() []dep
	key() entryKey
	appendTo(b []byte) []byte
}

type dep struct {
	index Index
	tags  []Tag
}

// entryKey is the interning key. Floating point payloads are keyed by bit
// pattern so that NaN values intern.
type entryKey struct {
	tag  Tag
	a, b uint64
	s    string
}

// Utf8 is a text entry.
type Utf8 struct{ Value string }

// Integer is a 32-bit integer constant.
type Integer struct{ Value int32 }

// Float is a 32-bit floating point constant.
type Float struct{ Value float32 }

// Long is a 64-bit integer constant. It occupies two pool slots.
type Long struct{ Value int64 }

// Double is a 64-bit floating point constant. It occupies two pool slots.
type Double struct{ Value float64 }

// Class refers to the Utf8 holding an internal class name.
type Class struct{ Name Index }

// String refers to the Utf8 holding the string literal.
type String struct{ Value Index }

// NameAndType pairs a member name with its descriptor.
type NameAndType struct {
	Name       Index
	Descriptor Index
}

// FieldRef refers to a field of a class.
type FieldRef struct {
	Class       Index
	NameAndType Index
}

// MethodRef refers to a method of a class.
type MethodRef struct {
	Class       Index
	NameAndType Index
}

// InterfaceMethodRef refers to a method of an interface.
type InterfaceMethodRef struct {
	Class       Index
	NameAndType Index
}

// MethodHandle is a typed reference to a field or method entry.
type MethodHandle struct {
	Kind      HandleKind
	Reference Index
}

// MethodType refers to the Utf8 holding a method descriptor.
type MethodType struct{ Descriptor Index }

// InvokeDynamic names a call site bootstrapped by an entry of the
// BootstrapMethods attribute.
type InvokeDynamic struct {
	Bootstrap   uint16
	NameAndType Index
}

func (Utf8) Tag() Tag               { return TagUtf8 }
func (Integer) Tag() Tag            { return TagInteger }
func (Float) Tag() Tag              { return TagFloat }
func (Long) Tag() Tag               { return TagLong }
func (Double) Tag() Tag             { return TagDouble }
func (Class) Tag() Tag              { return TagClass }
func (String) Tag() Tag             { return TagString }
func (NameAndType) Tag() Tag        { return TagNameAndType }
func (FieldRef) Tag() Tag           { return TagFieldRef }
func (MethodRef) Tag() Tag          { return TagMethodRef }
func (InterfaceMethodRef) Tag() Tag { return TagInterfaceMethodRef }
func (MethodHandle) Tag() Tag       { return TagMethodHandle }
func (MethodType) Tag() Tag         { return TagMethodType }
func (InvokeDynamic) Tag() Tag      { return TagInvokeDynamic }

var (
	utf8Only  = []Tag{TagUtf8}
	classOnly = []Tag{TagClass}
	natOnly   = []Tag{TagNameAndType}
)

func (Utf8) deps() []dep    { return nil }
func (Integer) deps() []dep { return nil }
func (Float) deps() []dep   { return nil }
func (Long) deps() []dep    { return nil }
func (Double) deps() []dep  { return nil }
func (e Class) deps() []dep { return []dep{{e.Name, utf8Only}} }
func (e String) deps() []dep {
	return []dep{{e.Value, utf8Only}}
}
func (e NameAndType) deps() []dep {
	return []dep{{e.Name, utf8Only}, {e.Descriptor, utf8Only}}
}
func (e FieldRef) deps() []dep {
	return []dep{{e.Class, classOnly}, {e.NameAndType, natOnly}}
}
func (e MethodRef) deps() []dep {
	return []dep{{e.Class, classOnly}, {e.NameAndType, natOnly}}
}
func (e InterfaceMethodRef) deps() []dep {
	return []dep{{e.Class, classOnly}, {e.NameAndType, natOnly}}
}
func (e MethodHandle) deps() []dep {
	switch e.Kind {
	case RefGetField, RefGetStatic, RefPutField, RefPutStatic:
		return []dep{{e.Reference, []Tag{TagFieldRef}}}
	case RefInvokeVirtual, RefNewInvokeSpecial:
		return []dep{{e.Reference, []Tag{TagMethodRef}}}
	case RefInvokeInterface:
		return []dep{{e.Reference, []Tag{TagInterfaceMethodRef}}}
	default:
		return []dep{{e.Reference, []Tag{TagMethodRef, TagInterfaceMethodRef}}}
	}
}
func (e MethodType) deps() []dep    { return []dep{{e.Descriptor, utf8Only}} }
func (e InvokeDynamic) deps() []dep { return []dep{{e.NameAndType, natOnly}} }

func (e Utf8) key() entryKey    { return entryKey{tag: TagUtf8, s: e.Value} }
func (e Integer) key() entryKey { return entryKey{tag: TagInteger, a: uint64(uint32(e.Value))} }
func (e Float) key() entryKey {
	return entryKey{tag: TagFloat, a: uint64(math.Float32bits(e.Value))}
}
func (e Long) key() entryKey { return entryKey{tag: TagLong, a: uint64(e.Value)} }
func (e Double) key() entryKey {
	return entryKey{tag: TagDouble, a: math.Float64bits(e.Value)}
}
func (e Class) key() entryKey  { return entryKey{tag: TagClass, a: uint64(e.Name)} }
func (e String) key() entryKey { return entryKey{tag: TagString, a: uint64(e.Value)} }
func (e NameAndType) key() entryKey {
	return entryKey{tag: TagNameAndType, a: uint64(e.Name), b: uint64(e.Descriptor)}
}
func (e FieldRef) key() entryKey {
	return entryKey{tag: TagFieldRef, a: uint64(e.Class), b: uint64(e.NameAndType)}
}
func (e MethodRef) key() entryKey {
	return entryKey{tag: TagMethodRef, a: uint64(e.Class), b: uint64(e.NameAndType)}
}
func (e InterfaceMethodRef) key() entryKey {
	return entryKey{tag: TagInterfaceMethodRef, a: uint64(e.Class), b: uint64(e.NameAndType)}
}
func (e MethodHandle) key() entryKey {
	return entryKey{tag: TagMethodHandle, a: uint64(e.Kind), b: uint64(e.Reference)}
}
func (e MethodType) key() entryKey { return entryKey{tag: TagMethodType, a: uint64(e.Descriptor)} }
func (e InvokeDynamic) key() entryKey {
	return entryKey{tag: TagInvokeDynamic, a: uint64(e.Bootstrap), b: uint64(e.NameAndType)}
}

func (e Utf8) appendTo(b []byte) []byte {
	enc := appendModifiedUTF8(nil, e.Value)
	b = append(b, byte(TagUtf8))
	b = binary.BigEndian.AppendUint16(b, uint16(len(enc)))
	return append(b, enc...)
}
func (e Integer) appendTo(b []byte) []byte {
	return binary.BigEndian.AppendUint32(append(b, byte(TagInteger)), uint32(e.Value))
}
func (e Float) appendTo(b []byte) []byte {
	return binary.BigEndian.AppendUint32(append(b, byte(TagFloat)), math.Float32bits(e.Value))
}
func (e Long) appendTo(b []byte) []byte {
	return binary.BigEndian.AppendUint64(append(b, byte(TagLong)), uint64(e.Value))
}
func (e Double) appendTo(b []byte) []byte {
	return binary.BigEndian.AppendUint64(append(b, byte(TagDouble)), math.Float64bits(e.Value))
}
func (e Class) appendTo(b []byte) []byte  { return appendU2(b, TagClass, e.Name) }
func (e String) appendTo(b []byte) []byte { return appendU2(b, TagString, e.Value) }
func (e NameAndType) appendTo(b []byte) []byte {
	return appendU2U2(b, TagNameAndType, e.Name, e.Descriptor)
}
func (e FieldRef) appendTo(b []byte) []byte {
	return appendU2U2(b, TagFieldRef, e.Class, e.NameAndType)
}
func (e MethodRef) appendTo(b []byte) []byte {
	return appendU2U2(b, TagMethodRef, e.Class, e.NameAndType)
}
func (e InterfaceMethodRef) appendTo(b []byte) []byte {
	return appendU2U2(b, TagInterfaceMethodRef, e.Class, e.NameAndType)
}
func (e MethodHandle) appendTo(b []byte) []byte {
	b = append(b, byte(TagMethodHandle), byte(e.Kind))
	return binary.BigEndian.AppendUint16(b, uint16(e.Reference))
}
func (e MethodType) appendTo(b []byte) []byte { return appendU2(b, TagMethodType, e.Descriptor) }
func (e InvokeDynamic) appendTo(b []byte) []byte {
	return appendU2U2(b, TagInvokeDynamic, Index(e.Bootstrap), e.NameAndType)
}

func appendU2(b []byte, tag Tag, i Index) []byte {
	return binary.BigEndian.AppendUint16(append(b, byte(tag)), uint16(i))
}

func appendU2U2(b []byte, tag Tag, i, j Index) []byte {
	b = binary.BigEndian.AppendUint16(append(b, byte(tag)), uint16(i))
	return binary.BigEndian.AppendUint16(b, uint16(j))
}

// Width returns the number of pool slots e occupies.
func Width(e Entry) int {
	switch e.Tag() {
	case TagLong, TagDouble:
		return 2
	default:
		return 1
	}
}

// appendModifiedUTF8 encodes s in the class-file variant of UTF-8: NUL is
// written as two bytes and supplementary characters as surrogate pairs.
func appendModifiedUTF8(b []byte, s string) []byte {
	for _, r := range s {
		switch {
		case r == 0:
			b = append(b, 0xC0, 0x80)
		case r < 0x80:
			b = append(b, byte(r))
		case r < 0x800:
			b = append(b, 0xC0|byte(r>>6), 0x80|byte(r&0x3F))
		case r <= 0xFFFF:
			b = appendThreeByte(b, r)
		default:
			hi, lo := utf16.EncodeRune(r)
			b = appendThreeByte(b, hi)
			b = appendThreeByte(b, lo)
		}
	}
	return b
}

func appendThreeByte(b []byte, r rune) []byte {
	return append(b, 0xE0|byte(r>>12), 0x80|byte((r>>6)&0x3F), 0x80|byte(r&0x3F))
}

// ModifiedUTF8Len returns the encoded length of s in modified UTF-8.
func ModifiedUTF8Len(s string) int {
	return len(appendModifiedUTF8(nil, s))
}
