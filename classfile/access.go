package classfile

import "strings"

// AccessFlags is the access_flags bit set of a class, field or method.
type AccessFlags uint16

const (
	AccPublic       AccessFlags = 0x0001
	AccPrivate      AccessFlags = 0x0002
	AccProtected    AccessFlags = 0x0004
	AccStatic       AccessFlags = 0x0008
	AccFinal        AccessFlags = 0x0010
	AccSuper        AccessFlags = 0x0020 // class
	AccSynchronized AccessFlags = 0x0020 // method
	AccVolatile     AccessFlags = 0x0040 // field
	AccBridge       AccessFlags = 0x0040 // method
	AccTransient    AccessFlags = 0x0080 // field
	AccVarargs      AccessFlags = 0x0080 // method
	AccNative       AccessFlags = 0x0100
	AccInterface    AccessFlags = 0x0200
	AccAbstract     AccessFlags = 0x0400
	AccStrict       AccessFlags = 0x0800
	AccSynthetic    AccessFlags = 0x1000
	AccAnnotation   AccessFlags = 0x2000
	AccEnum         AccessFlags = 0x4000
)

// FlagTarget selects which meaning the overloaded bits carry.
type FlagTarget int

const (
	ClassFlags FlagTarget = iota
	FieldFlags
	MethodFlags
)

type flagName struct {
	flag AccessFlags
	name string
}

var flagNames = map[FlagTarget][]flagName{
	ClassFlags: {
		{AccPublic, "ACC_PUBLIC"}, {AccFinal, "ACC_FINAL"}, {AccSuper, "ACC_SUPER"},
		{AccInterface, "ACC_INTERFACE"}, {AccAbstract, "ACC_ABSTRACT"}, {AccSynthetic, "ACC_SYNTHETIC"},
		{AccAnnotation, "ACC_ANNOTATION"}, {AccEnum, "ACC_ENUM"},
	},
	FieldFlags: {
		{AccPublic, "ACC_PUBLIC"}, {AccPrivate, "ACC_PRIVATE"}, {AccProtected, "ACC_PROTECTED"},
		{AccStatic, "ACC_STATIC"}, {AccFinal, "ACC_FINAL"}, {AccVolatile, "ACC_VOLATILE"},
		{AccTransient, "ACC_TRANSIENT"}, {AccSynthetic, "ACC_SYNTHETIC"}, {AccEnum, "ACC_ENUM"},
	},
	MethodFlags: {
		{AccPublic, "ACC_PUBLIC"}, {AccPrivate, "ACC_PRIVATE"}, {AccProtected, "ACC_PROTECTED"},
		{AccStatic, "ACC_STATIC"}, {AccFinal, "ACC_FINAL"}, {AccSynchronized, "ACC_SYNCHRONIZED"},
		{AccBridge, "ACC_BRIDGE"}, {AccVarargs, "ACC_VARARGS"}, {AccNative, "ACC_NATIVE"},
		{AccAbstract, "ACC_ABSTRACT"}, {AccStrict, "ACC_STRICT"}, {AccSynthetic, "ACC_SYNTHETIC"},
	},
}

// Has reports whether every bit of f is set.
func (a AccessFlags) Has(f AccessFlags) bool { return a&f == f }

func (a AccessFlags) IsPublic() bool    { return a.Has(AccPublic) }
func (a AccessFlags) IsStatic() bool    { return a.Has(AccStatic) }
func (a AccessFlags) IsFinal() bool     { return a.Has(AccFinal) }
func (a AccessFlags) IsInterface() bool { return a.Has(AccInterface) }
func (a AccessFlags) IsAbstract() bool  { return a.Has(AccAbstract) }
func (a AccessFlags) IsNative() bool    { return a.Has(AccNative) }

// Names lists the set flags in javap spelling for the given target.
func (a AccessFlags) Names(target FlagTarget) []string {
	var out []string
	for _, fn := range flagNames[target] {
		if a.Has(fn.flag) {
			out = append(out, fn.name)
		}
	}
	return out
}

// Format joins Names with ", ".
func (a AccessFlags) Format(target FlagTarget) string {
	return strings.Join(a.Names(target), ", ")
}
