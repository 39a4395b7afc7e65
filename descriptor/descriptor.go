// Package descriptor models JVM field and method descriptors such as
// "I", "[Ljava/lang/String;" and "(IJ)V".
package descriptor

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed is returned when a descriptor string cannot be parsed.
var ErrMalformed = errors.New("malformed descriptor")

// Kind is the leading character of a field descriptor.
type Kind byte

const (
	Byte    Kind = 'B'
	Char    Kind = 'C'
	Double  Kind = 'D'
	Float   Kind = 'F'
	Int     Kind = 'I'
	Long    Kind = 'J'
	Short   Kind = 'S'
	Boolean Kind = 'Z'
	Object  Kind = 'L'
	Array   Kind = '['

	// Void only appears as a method return type.
	Void Kind = 'V'
)

// FieldType is a parsed field descriptor.
type FieldType struct {
	Kind  Kind
	Class string     // internal class name for Object, e.g. "java/lang/String"
	Elem  *FieldType // element type for Array
}

// Primitive field types.
var (
	ByteType    = FieldType{Kind: Byte}
	CharType    = FieldType{Kind: Char}
	DoubleType  = FieldType{Kind: Double}
	FloatType   = FieldType{Kind: Float}
	IntType     = FieldType{Kind: Int}
	LongType    = FieldType{Kind: Long}
	ShortType   = FieldType{Kind: Short}
	BooleanType = FieldType{Kind: Boolean}
	VoidType    = FieldType{Kind: Void}
)

// ObjectType returns the field type for the internal class name.
func ObjectType(class string) FieldType {
	return FieldType{Kind: Object, Class: class}
}

// ArrayOf returns an array type with the given element type.
func ArrayOf(elem FieldType) FieldType {
	e := elem
	return FieldType{Kind: Array, Elem: &e}
}

// String returns the descriptor form.
func (f FieldType) String() string {
	var sb strings.Builder
	f.write(&sb)
	return sb.String()
}

func (f FieldType) write(sb *strings.Builder) {
	switch f.Kind {
	case Object:
		sb.WriteByte('L')
		sb.WriteString(f.Class)
		sb.WriteByte(';')
	case Array:
		sb.WriteByte('[')
		if f.Elem != nil {
			f.Elem.write(sb)
		}
	default:
		sb.WriteByte(byte(f.Kind))
	}
}

// Slots returns the number of local variable / operand stack words a value
// of this type occupies. Void occupies none.
func (f FieldType) Slots() int {
	switch f.Kind {
	case Long, Double:
		return 2
	case Void:
		return 0
	default:
		return 1
	}
}

// IsVoid reports whether f is the void return type.
func (f FieldType) IsVoid() bool {
	return f.Kind == Void
}

// IsReference reports whether values of f are object or array references.
func (f FieldType) IsReference() bool {
	return f.Kind == Object || f.Kind == Array
}

// Equal reports structural equality.
func (f FieldType) Equal(o FieldType) bool {
	if f.Kind != o.Kind || f.Class != o.Class {
		return false
	}
	if f.Kind != Array {
		return true
	}
	if f.Elem == nil || o.Elem == nil {
		return f.Elem == o.Elem
	}
	return f.Elem.Equal(*o.Elem)
}

// Method is a parsed method descriptor.
type Method struct {
	Params []FieldType
	Return FieldType
}

// NewMethod builds a method descriptor.
func NewMethod(ret FieldType, params ...FieldType) Method {
	return Method{Params: params, Return: ret}
}

// String returns the descriptor form, e.g. "(ILjava/lang/String;)V".
func (m Method) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for _, p := range m.Params {
		p.write(&sb)
	}
	sb.WriteByte(')')
	m.Return.write(&sb)
	return sb.String()
}

// ParamSlots returns the number of words the parameters occupy, not
// counting a receiver.
func (m Method) ParamSlots() int {
	n := 0
	for _, p := range m.Params {
		n += p.Slots()
	}
	return n
}

// ParseField parses a field descriptor.
func ParseField(s string) (FieldType, error) {
	ft, rest, err := parseField(s, false)
	if err != nil {
		return FieldType{}, fmt.Errorf("%w: %q: %v", ErrMalformed, s, err)
	}
	if rest != "" {
		return FieldType{}, fmt.Errorf("%w: %q: trailing %q", ErrMalformed, s, rest)
	}
	return ft, nil
}

// ParseMethod parses a method descriptor.
func ParseMethod(s string) (Method, error) {
	if !strings.HasPrefix(s, "(") {
		return Method{}, fmt.Errorf("%w: %q: missing '('", ErrMalformed, s)
	}
	rest := s[1:]
	var m Method
	for {
		if rest == "" {
			return Method{}, fmt.Errorf("%w: %q: missing ')'", ErrMalformed, s)
		}
		if rest[0] == ')' {
			rest = rest[1:]
			break
		}
		var (
			p   FieldType
			err error
		)
		p, rest, err = parseField(rest, false)
		if err != nil {
			return Method{}, fmt.Errorf("%w: %q: %v", ErrMalformed, s, err)
		}
		m.Params = append(m.Params, p)
	}
	ret, rest, err := parseField(rest, true)
	if err != nil {
		return Method{}, fmt.Errorf("%w: %q: %v", ErrMalformed, s, err)
	}
	if rest != "" {
		return Method{}, fmt.Errorf("%w: %q: trailing %q", ErrMalformed, s, rest)
	}
	m.Return = ret
	return m, nil
}

// MustParseMethod is like ParseMethod but panics on error. For literals.
func MustParseMethod(s string) Method {
	m, err := ParseMethod(s)
	if err != nil {
		panic(err)
	}
	return m
}

func parseField(s string, allowVoid bool) (FieldType, string, error) {
	if s == "" {
		return FieldType{}, "", errors.New("unexpected end")
	}
	switch k := Kind(s[0]); k {
	case Byte, Char, Double, Float, Int, Long, Short, Boolean:
		return FieldType{Kind: k}, s[1:], nil
	case Void:
		if !allowVoid {
			return FieldType{}, "", errors.New("void is only valid as a return type")
		}
		return VoidType, s[1:], nil
	case Object:
		end := strings.IndexByte(s, ';')
		if end < 2 {
			return FieldType{}, "", errors.New("unterminated class name")
		}
		return ObjectType(s[1:end]), s[end+1:], nil
	case Array:
		elem, rest, err := parseField(s[1:], false)
		if err != nil {
			return FieldType{}, "", err
		}
		return ArrayOf(elem), rest, nil
	default:
		return FieldType{}, "", fmt.Errorf("unknown type %q", s[0])
	}
}
