// Package classfile assembles complete classes: it owns the constant pool,
// runs the method assembler over each body and projects the result onto a
// Writer, either as the binary class-file layout or as a readable listing.
package classfile

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/classasm/asm"
	"github.com/chazu/classasm/descriptor"
	"github.com/chazu/classasm/pool"
)

var log = commonlog.GetLogger("classasm.classfile")

// Magic is the first four bytes of every class file.
const Magic uint32 = 0xCAFEBABE

// DefaultMajor is the version emitted when Options leaves Major unset.
// Versions from 50 on expect a StackMapTable, which is never emitted.
const DefaultMajor = 49

// ---------------------------------------------------------------------------
// Class Errors
// ---------------------------------------------------------------------------

var (
	ErrDuplicateMember  = errors.New("duplicate member")
	ErrInvalidConstant  = errors.New("invalid constant value")
	ErrTooManyMembers   = errors.New("too many members")
	ErrInvalidBootstrap = errors.New("invalid bootstrap method")
)

// Options configures a new class.
type Options struct {
	Major      uint16
	Minor      uint16
	Access     AccessFlags
	SourceFile string
}

// DefaultOptions returns a public class at the default version.
func DefaultOptions() Options {
	return Options{Major: DefaultMajor, Access: AccPublic | AccSuper}
}

// Attribute is a named attribute payload. NameIndex refers to the Utf8
// entry holding Name.
type Attribute struct {
	Name      string
	NameIndex pool.Index
	Data      []byte
}

// Field is a declared field.
type Field struct {
	Access          AccessFlags
	Name            string
	Descriptor      string
	NameIndex       pool.Index
	DescriptorIndex pool.Index
	Attributes      []Attribute
}

// Method is a declared method. Code is nil for abstract and native methods.
type Method struct {
	Access          AccessFlags
	Name            string
	Descriptor      string
	NameIndex       pool.Index
	DescriptorIndex pool.Index
	Code            *asm.Code
	Attributes      []Attribute
}

type bootstrapMethod struct {
	handle pool.Index
	args   []pool.Index
}

// Class is a class under construction. It owns its pool; nothing else
// should add entries to it except through the Class or its Pool accessor.
type Class struct {
	minor, major uint16
	access       AccessFlags
	pool         *pool.Pool
	name         string
	superName    string
	this, super  pool.Index
	interfaces   []pool.Index
	fields       []Field
	methods      []Method
	members      map[string]bool

	sourceFileAttr pool.Index
	sourceFile     pool.Index
	bootstrapAttr  pool.Index
	bootstrap      []bootstrapMethod

	session uuid.UUID
}

// New starts a class with the given internal name and superclass. An
// empty super is only valid for java/lang/Object.
func New(name, super string, opts Options) *Class {
	if opts.Major == 0 {
		opts.Major = DefaultMajor
	}
	c := &Class{
		minor:     opts.Minor,
		major:     opts.Major,
		access:    opts.Access,
		pool:      pool.New(),
		name:      name,
		superName: super,
		members:   make(map[string]bool),
		session:   uuid.New(),
	}
	c.this = c.pool.AddClass(name)
	if super != "" {
		c.super = c.pool.AddClass(super)
	}
	if opts.SourceFile != "" {
		c.SetSourceFile(opts.SourceFile)
	}
	if c.major >= 50 {
		log.Warningf("%s: version %d.%d expects a StackMapTable, none is emitted", name, c.major, c.minor)
	}
	log.Debugf("class %s started (session %s)", name, c.session)
	return c
}

func (c *Class) Name() string        { return c.name }
func (c *Class) Super() string       { return c.superName }
func (c *Class) Access() AccessFlags { return c.access }
func (c *Class) Session() uuid.UUID  { return c.session }
func (c *Class) Fields() []Field     { return slices.Clone(c.fields) }
func (c *Class) Methods() []Method   { return slices.Clone(c.methods) }

// Version returns the class-file version pair.
func (c *Class) Version() (major, minor uint16) { return c.major, c.minor }

// Pool exposes the class's pool, for interning bootstrap arguments.
func (c *Class) Pool() *pool.Pool { return c.pool }

// AddInterface declares an implemented interface.
func (c *Class) AddInterface(name string) error {
	if len(c.interfaces) == math.MaxUint16 {
		return fmt.Errorf("classfile: %s: %w: interfaces", c.name, ErrTooManyMembers)
	}
	c.interfaces = append(c.interfaces, c.pool.AddClass(name))
	return nil
}

// AddField declares a field. A non-nil value becomes its ConstantValue
// attribute and must be an int32, int64, float32, float64 or string
// matching the descriptor.
func (c *Class) AddField(access AccessFlags, name, desc string, value any) error {
	ft, err := descriptor.ParseField(desc)
	if err != nil {
		return fmt.Errorf("classfile: field %s: %w", name, err)
	}
	if err := c.claim("field", name, desc, len(c.fields)); err != nil {
		return err
	}
	mark := c.pool.Count()
	f := Field{
		Access:          access,
		Name:            name,
		Descriptor:      desc,
		NameIndex:       c.pool.AddUtf8(name),
		DescriptorIndex: c.pool.AddUtf8(desc),
	}
	if value != nil {
		attr := c.pool.AddUtf8("ConstantValue")
		idx, err := c.constantValue(ft, value)
		if err != nil {
			delete(c.members, memberKey("field", name, desc))
			c.pool.Truncate(mark)
			return fmt.Errorf("classfile: field %s: %w", name, err)
		}
		f.Attributes = append(f.Attributes, Attribute{
			Name:      "ConstantValue",
			NameIndex: attr,
			Data:      binary.BigEndian.AppendUint16(nil, uint16(idx)),
		})
	}
	c.fields = append(c.fields, f)
	return nil
}

func (c *Class) constantValue(ft descriptor.FieldType, value any) (pool.Index, error) {
	switch v := value.(type) {
	case int32:
		switch ft.Kind {
		case descriptor.Int, descriptor.Short, descriptor.Char, descriptor.Byte, descriptor.Boolean:
			return c.pool.AddInteger(v), nil
		}
	case int64:
		if ft.Kind == descriptor.Long {
			return c.pool.AddLong(v), nil
		}
	case float32:
		if ft.Kind == descriptor.Float {
			return c.pool.AddFloat(v), nil
		}
	case float64:
		if ft.Kind == descriptor.Double {
			return c.pool.AddDouble(v), nil
		}
	case string:
		if ft.Kind == descriptor.Object && ft.Class == "java/lang/String" {
			return c.pool.AddString(v), nil
		}
	}
	return 0, fmt.Errorf("%w: %T for %s", ErrInvalidConstant, value, ft)
}

// AddMethod assembles body and declares the method with a Code attribute.
func (c *Class) AddMethod(access AccessFlags, name, desc string, body *asm.Block, handlers ...asm.Handler) error {
	if err := c.claim("method", name, desc, len(c.methods)); err != nil {
		return err
	}
	mark := c.pool.Count()
	m := Method{
		Access:          access,
		Name:            name,
		Descriptor:      desc,
		NameIndex:       c.pool.AddUtf8(name),
		DescriptorIndex: c.pool.AddUtf8(desc),
	}
	codeName := c.pool.AddUtf8("Code")

	code, err := asm.Assemble(c.pool, asm.Method{
		Class:      c.name,
		Name:       name,
		Descriptor: desc,
		Static:     access.IsStatic(),
		Body:       body,
		Handlers:   handlers,
	})
	if err != nil {
		delete(c.members, memberKey("method", name, desc))
		c.pool.Truncate(mark)
		return fmt.Errorf("classfile: %s: %w", c.name, err)
	}
	m.Code = code
	m.Attributes = append(m.Attributes, Attribute{Name: "Code", NameIndex: codeName, Data: codeAttribute(code)})
	c.methods = append(c.methods, m)
	log.Debugf("%s: method %s%s added", c.name, name, desc)
	return nil
}

// AddAbstractMethod declares a method without code. access must include
// AccAbstract or AccNative.
func (c *Class) AddAbstractMethod(access AccessFlags, name, desc string) error {
	if !access.IsAbstract() && !access.IsNative() {
		return fmt.Errorf("classfile: %s: method %s%s has no body and is neither abstract nor native", c.name, name, desc)
	}
	if _, err := descriptor.ParseMethod(desc); err != nil {
		return fmt.Errorf("classfile: method %s: %w", name, err)
	}
	if err := c.claim("method", name, desc, len(c.methods)); err != nil {
		return err
	}
	c.methods = append(c.methods, Method{
		Access:          access,
		Name:            name,
		Descriptor:      desc,
		NameIndex:       c.pool.AddUtf8(name),
		DescriptorIndex: c.pool.AddUtf8(desc),
	})
	return nil
}

func memberKey(kind, name, desc string) string { return kind + " " + name + ":" + desc }

func (c *Class) claim(kind, name, desc string, n int) error {
	if n == math.MaxUint16 {
		return fmt.Errorf("classfile: %s: %w: %ss", c.name, ErrTooManyMembers, kind)
	}
	key := memberKey(kind, name, desc)
	if c.members[key] {
		return fmt.Errorf("classfile: %s: %w: %s", c.name, ErrDuplicateMember, key)
	}
	c.members[key] = true
	return nil
}

// SetSourceFile records the SourceFile attribute.
func (c *Class) SetSourceFile(name string) {
	c.sourceFileAttr = c.pool.AddUtf8("SourceFile")
	c.sourceFile = c.pool.AddUtf8(name)
}

// AddBootstrapMethod appends a BootstrapMethods row whose handle refers to
// class.name:desc, and returns its index for use by InvokeDynamic. Each
// argument must already be a loadable entry of the class's pool.
func (c *Class) AddBootstrapMethod(kind pool.HandleKind, class, name, desc string, args ...pool.Index) (uint16, error) {
	if len(c.bootstrap) == math.MaxUint16 {
		return 0, fmt.Errorf("classfile: %s: %w: bootstrap methods", c.name, ErrTooManyMembers)
	}
	for _, a := range args {
		e, ok := c.pool.Get(a)
		if !ok {
			return 0, fmt.Errorf("classfile: %w: argument #%d not in pool", ErrInvalidBootstrap, a)
		}
		switch e.Tag() {
		case pool.TagUtf8, pool.TagNameAndType, pool.TagFieldRef, pool.TagMethodRef,
			pool.TagInterfaceMethodRef, pool.TagInvokeDynamic:
			return 0, fmt.Errorf("classfile: %w: argument #%d is a %s", ErrInvalidBootstrap, a, e.Tag())
		}
	}

	mark, attr := c.pool.Count(), c.bootstrapAttr
	if c.bootstrapAttr == 0 {
		c.bootstrapAttr = c.pool.AddUtf8("BootstrapMethods")
	}
	var ref pool.Index
	switch kind {
	case pool.RefGetField, pool.RefGetStatic, pool.RefPutField, pool.RefPutStatic:
		ref = c.pool.AddFieldRef(class, name, desc)
	case pool.RefInvokeInterface:
		ref = c.pool.AddInterfaceMethodRef(class, name, desc)
	default:
		ref = c.pool.AddMethodRef(class, name, desc)
	}
	handle, err := c.pool.AddMethodHandle(kind, ref)
	if err != nil {
		c.pool.Truncate(mark)
		c.bootstrapAttr = attr
		return 0, fmt.Errorf("classfile: %w: %v", ErrInvalidBootstrap, err)
	}
	c.bootstrap = append(c.bootstrap, bootstrapMethod{handle: handle, args: args})
	return uint16(len(c.bootstrap) - 1), nil
}

// attributes builds the class-level attribute list without touching the
// pool.
func (c *Class) attributes() []Attribute {
	var attrs []Attribute
	if c.sourceFile != 0 {
		attrs = append(attrs, Attribute{
			Name:      "SourceFile",
			NameIndex: c.sourceFileAttr,
			Data:      binary.BigEndian.AppendUint16(nil, uint16(c.sourceFile)),
		})
	}
	if len(c.bootstrap) > 0 {
		b := binary.BigEndian.AppendUint16(nil, uint16(len(c.bootstrap)))
		for _, bm := range c.bootstrap {
			b = binary.BigEndian.AppendUint16(b, uint16(bm.handle))
			b = binary.BigEndian.AppendUint16(b, uint16(len(bm.args)))
			for _, a := range bm.args {
				b = binary.BigEndian.AppendUint16(b, uint16(a))
			}
		}
		attrs = append(attrs, Attribute{Name: "BootstrapMethods", NameIndex: c.bootstrapAttr, Data: b})
	}
	return attrs
}

func codeAttribute(code *asm.Code) []byte {
	b := make([]byte, 0, 12+len(code.Bytes)+8*len(code.Exceptions))
	b = binary.BigEndian.AppendUint16(b, uint16(code.MaxStack))
	b = binary.BigEndian.AppendUint16(b, uint16(code.MaxLocals))
	b = binary.BigEndian.AppendUint32(b, uint32(len(code.Bytes)))
	b = append(b, code.Bytes...)
	b = binary.BigEndian.AppendUint16(b, uint16(len(code.Exceptions)))
	for _, e := range code.Exceptions {
		b = binary.BigEndian.AppendUint16(b, uint16(e.StartPC))
		b = binary.BigEndian.AppendUint16(b, uint16(e.EndPC))
		b = binary.BigEndian.AppendUint16(b, uint16(e.HandlerPC))
		b = binary.BigEndian.AppendUint16(b, uint16(e.CatchType))
	}
	return binary.BigEndian.AppendUint16(b, 0)
}

// WriteTo projects the class onto w in class-file order. It does not
// modify the class, so it may be called any number of times.
func (c *Class) WriteTo(w Writer) error {
	if err := w.WriteHeader(c.minor, c.major); err != nil {
		return err
	}
	if err := w.WritePool(c.pool.View()); err != nil {
		return err
	}
	if err := w.WriteAccess(c.access, c.this, c.super, c.interfaces); err != nil {
		return err
	}
	if err := w.BeginFields(len(c.fields)); err != nil {
		return err
	}
	for _, f := range c.fields {
		if err := w.WriteField(f); err != nil {
			return err
		}
	}
	if err := w.BeginMethods(len(c.methods)); err != nil {
		return err
	}
	for _, m := range c.methods {
		if err := w.WriteMethod(m); err != nil {
			return err
		}
	}
	attrs := c.attributes()
	if err := w.BeginAttributes(len(attrs)); err != nil {
		return err
	}
	for _, a := range attrs {
		if err := w.WriteAttribute(a); err != nil {
			return err
		}
	}
	return nil
}

// Bytes returns the binary class file.
func (c *Class) Bytes() ([]byte, error) {
	w := NewBinaryWriter()
	if err := c.WriteTo(w); err != nil {
		return nil, fmt.Errorf("classfile: %s: %w", c.name, err)
	}
	return w.Bytes(), nil
}

// Hash returns the SHA-256 of Bytes.
func (c *Class) Hash() ([32]byte, error) {
	b, err := c.Bytes()
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(b), nil
}
