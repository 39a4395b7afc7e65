package classfile

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/chazu/classasm/asm"
	"github.com/chazu/classasm/pool"
)

// TextWriter renders a class as a javap-style listing.
type TextWriter struct {
	out  io.Writer
	view pool.View
	err  error
}

// NewTextWriter writes the listing to out.
func NewTextWriter(out io.Writer) *TextWriter {
	return &TextWriter{out: out}
}

// Text returns the listing of c.
func Text(c *Class) (string, error) {
	var sb strings.Builder
	if err := c.WriteTo(NewTextWriter(&sb)); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (w *TextWriter) printf(format string, args ...any) error {
	if w.err == nil {
		_, w.err = fmt.Fprintf(w.out, format, args...)
	}
	return w.err
}

func (w *TextWriter) WriteHeader(minor, major uint16) error {
	w.printf("minor version: %d\n", minor)
	return w.printf("major version: %d\n", major)
}

func (w *TextWriter) WritePool(v pool.View) error {
	w.view = v
	w.printf("Constant pool:\n")
	v.Each(func(i pool.Index, e pool.Entry) {
		w.printf("  %5s = %-18s %s\n", fmt.Sprintf("#%d", i), e.Tag(), v.Resolve(i))
	})
	return w.err
}

func (w *TextWriter) WriteAccess(access AccessFlags, this, super pool.Index, interfaces []pool.Index) error {
	w.printf("flags: (0x%04X) %s\n", uint16(access), access.Format(ClassFlags))
	w.printf("this_class: #%d // %s\n", this, w.view.Resolve(this))
	if super != 0 {
		w.printf("super_class: #%d // %s\n", super, w.view.Resolve(super))
	} else {
		w.printf("super_class: #0\n")
	}
	w.printf("interfaces: %d\n", len(interfaces))
	for _, i := range interfaces {
		w.printf("  #%d // %s\n", i, w.view.Resolve(i))
	}
	return w.err
}

func (w *TextWriter) BeginFields(n int) error     { return w.printf("fields: %d\n", n) }
func (w *TextWriter) BeginMethods(n int) error    { return w.printf("methods: %d\n", n) }
func (w *TextWriter) BeginAttributes(n int) error { return w.printf("attributes: %d\n", n) }

func (w *TextWriter) WriteField(f Field) error {
	w.printf("  %s %s (0x%04X) %s\n", f.Name, f.Descriptor, uint16(f.Access), f.Access.Format(FieldFlags))
	for _, a := range f.Attributes {
		w.attribute("    ", a)
	}
	return w.err
}

func (w *TextWriter) WriteMethod(m Method) error {
	w.printf("  %s%s (0x%04X) %s\n", m.Name, m.Descriptor, uint16(m.Access), m.Access.Format(MethodFlags))
	if m.Code == nil {
		return w.err
	}
	w.printf("    Code: stack=%d, locals=%d, length=%d\n", m.Code.MaxStack, m.Code.MaxLocals, len(m.Code.Bytes))
	for _, line := range strings.Split(strings.TrimSuffix(asm.Listing(m.Code.Tree, w.view), "\n"), "\n") {
		w.printf("      %s\n", line)
	}
	if len(m.Code.Exceptions) > 0 {
		w.printf("    Exception table:\n")
		for _, e := range m.Code.Exceptions {
			catch := "any"
			if e.CatchType != 0 {
				catch = w.view.Resolve(e.CatchType)
			}
			w.printf("      %04X %04X %04X %s\n", e.StartPC, e.EndPC, e.HandlerPC, catch)
		}
	}
	return w.err
}

func (w *TextWriter) WriteAttribute(a Attribute) error {
	return w.attribute("  ", a)
}

func (w *TextWriter) attribute(indent string, a Attribute) error {
	switch a.Name {
	case "SourceFile", "ConstantValue":
		if len(a.Data) == 2 {
			i := pool.Index(binary.BigEndian.Uint16(a.Data))
			return w.printf("%s%s: #%d // %s\n", indent, a.Name, i, w.view.Resolve(i))
		}
	case "BootstrapMethods":
		w.printf("%sBootstrapMethods:\n", indent)
		d := a.Data
		n := int(binary.BigEndian.Uint16(d))
		d = d[2:]
		for k := 0; k < n; k++ {
			handle := pool.Index(binary.BigEndian.Uint16(d))
			argc := int(binary.BigEndian.Uint16(d[2:]))
			d = d[4:]
			w.printf("%s  %d: #%d // %s\n", indent, k, handle, w.view.Resolve(handle))
			for j := 0; j < argc; j++ {
				arg := pool.Index(binary.BigEndian.Uint16(d))
				d = d[2:]
				w.printf("%s     #%d // %s\n", indent, arg, w.view.Resolve(arg))
			}
		}
		return w.err
	}
	return w.printf("%s%s: %d bytes\n", indent, a.Name, len(a.Data))
}
