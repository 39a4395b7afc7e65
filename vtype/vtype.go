// Package vtype implements the verification types tracked for every operand
// stack entry and local variable slot while a method is assembled, together
// with the assignability relation used to validate operands.
package vtype

import (
	"fmt"
	"strings"

	"github.com/chazu/classasm/descriptor"
)

// Tag identifies a verification type category.
type Tag uint8

const (
	TagTop Tag = iota
	TagInteger
	TagFloat
	TagLong
	TagDouble
	TagReference
	TagUninitialized

	// TagOneWord and TagTwoWord are abstract categories. They are only
	// used as assignability targets and never pushed.
	TagOneWord
	TagTwoWord
)

// String returns a human-readable name for the tag.
func (t Tag) String() string {
	switch t {
	case TagTop:
		return "top"
	case TagInteger:
		return "int"
	case TagFloat:
		return "float"
	case TagLong:
		return "long"
	case TagDouble:
		return "double"
	case TagReference:
		return "reference"
	case TagUninitialized:
		return "uninitialized"
	case TagOneWord:
		return "oneword"
	case TagTwoWord:
		return "twoword"
	default:
		return fmt.Sprintf("Tag(%d)", t)
	}
}

// Type is a verification type: a tag plus the payload some tags carry.
type Type struct {
	Tag Tag

	// Class is the internal class name of a Reference, or the class being
	// constructed for Uninitialized.
	Class string

	// Offset is the code offset of the `new` instruction that created an
	// Uninitialized value.
	Offset int
}

var (
	Top     = Type{Tag: TagTop}
	Int     = Type{Tag: TagInteger}
	Float   = Type{Tag: TagFloat}
	Long    = Type{Tag: TagLong}
	Double  = Type{Tag: TagDouble}
	OneWord = Type{Tag: TagOneWord}
	TwoWord = Type{Tag: TagTwoWord}

	// Object is the reference type of java/lang/Object.
	Object = Reference("java/lang/Object")
	// AnyReference matches any reference when used as a target.
	AnyReference = Type{Tag: TagReference}
)

// Reference returns the reference type for an internal class name. Array
// classes use their descriptor as name, e.g. "[I".
func Reference(class string) Type {
	return Type{Tag: TagReference, Class: class}
}

// Uninitialized returns the type of a freshly allocated, not yet
// constructed object created by the `new` at offset.
func Uninitialized(class string, offset int) Type {
	return Type{Tag: TagUninitialized, Class: class, Offset: offset}
}

// Of maps a field descriptor to the verification type of its values.
// Void has no verification type and maps to Top.
func Of(ft descriptor.FieldType) Type {
	switch ft.Kind {
	case descriptor.Byte, descriptor.Char, descriptor.Short, descriptor.Boolean, descriptor.Int:
		return Int
	case descriptor.Float:
		return Float
	case descriptor.Long:
		return Long
	case descriptor.Double:
		return Double
	case descriptor.Object:
		return Reference(ft.Class)
	case descriptor.Array:
		return Reference(ft.String())
	default:
		return Top
	}
}

// ElementOf returns the verification type of the elements of an array
// reference, or Object if the array class is not known.
func ElementOf(array Type) Type {
	if array.Tag != TagReference || !strings.HasPrefix(array.Class, "[") {
		return Object
	}
	ft, err := descriptor.ParseField(array.Class[1:])
	if err != nil {
		return Object
	}
	return Of(ft)
}

// Width returns the number of words a value of type t occupies.
func Width(t Type) int {
	switch t.Tag {
	case TagLong, TagDouble, TagTwoWord:
		return 2
	default:
		return 1
	}
}

// IsCategory2 reports whether t is a concrete two-word type.
func IsCategory2(t Type) bool {
	return t.Tag == TagLong || t.Tag == TagDouble
}

// IsReference reports whether t holds an object reference, initialized or not.
func IsReference(t Type) bool {
	return t.Tag == TagReference || t.Tag == TagUninitialized
}

// IsAssignable reports whether a value of type actual may be used where
// target is expected. The relation is reflexive, every type is assignable
// to Top, concrete one-word types to OneWord and concrete two-word types to
// TwoWord. Reference subtyping is not modelled: any reference is assignable
// to any reference target.
func IsAssignable(target, actual Type) bool {
	if target == actual {
		return true
	}
	switch target.Tag {
	case TagTop:
		return true
	case TagOneWord:
		switch actual.Tag {
		case TagInteger, TagFloat, TagReference, TagUninitialized:
			return true
		}
		return false
	case TagTwoWord:
		return IsCategory2(actual)
	case TagReference:
		return actual.Tag == TagReference
	case TagUninitialized:
		return actual.Tag == TagUninitialized && actual.Class == target.Class && actual.Offset == target.Offset
	default:
		return target.Tag == actual.Tag
	}
}

// String returns a human-readable form such as "int" or "Ljava/lang/String;".
func (t Type) String() string {
	switch t.Tag {
	case TagReference:
		if t.Class == "" {
			return "reference"
		}
		if strings.HasPrefix(t.Class, "[") {
			return t.Class
		}
		return "L" + t.Class + ";"
	case TagUninitialized:
		return fmt.Sprintf("uninitialized(%s@%d)", t.Class, t.Offset)
	default:
		return t.Tag.String()
	}
}
