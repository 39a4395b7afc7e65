package classfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/chazu/classasm/pool"
)

// ErrAttributeTooLarge is returned when an attribute payload does not fit
// its u4 length.
var ErrAttributeTooLarge = errors.New("attribute too large")

// Writer receives a class in class-file order. Class.WriteTo drives it;
// implementations decide the output form.
type Writer interface {
	WriteHeader(minor, major uint16) error
	WritePool(v pool.View) error
	WriteAccess(access AccessFlags, this, super pool.Index, interfaces []pool.Index) error
	BeginFields(n int) error
	WriteField(f Field) error
	BeginMethods(n int) error
	WriteMethod(m Method) error
	BeginAttributes(n int) error
	WriteAttribute(a Attribute) error
}

// ---------------------------------------------------------------------------
// BinaryWriter: the class-file layout
// ---------------------------------------------------------------------------

// BinaryWriter accumulates the big-endian class-file bytes.
type BinaryWriter struct {
	buf []byte
}

// NewBinaryWriter creates an empty binary writer.
func NewBinaryWriter() *BinaryWriter {
	return &BinaryWriter{buf: make([]byte, 0, 512)}
}

// Bytes returns everything written so far.
func (w *BinaryWriter) Bytes() []byte { return w.buf }

func (w *BinaryWriter) u2(v int) error {
	if v < 0 || v > math.MaxUint16 {
		return fmt.Errorf("value %d does not fit u2", v)
	}
	w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(v))
	return nil
}

func (w *BinaryWriter) WriteHeader(minor, major uint16) error {
	w.buf = binary.BigEndian.AppendUint32(w.buf, Magic)
	w.buf = binary.BigEndian.AppendUint16(w.buf, minor)
	w.buf = binary.BigEndian.AppendUint16(w.buf, major)
	return nil
}

func (w *BinaryWriter) WritePool(v pool.View) error {
	b, err := v.AppendTo(w.buf)
	if err != nil {
		return err
	}
	w.buf = b
	return nil
}

func (w *BinaryWriter) WriteAccess(access AccessFlags, this, super pool.Index, interfaces []pool.Index) error {
	w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(access))
	w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(this))
	w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(super))
	if err := w.u2(len(interfaces)); err != nil {
		return fmt.Errorf("interfaces: %w", err)
	}
	for _, i := range interfaces {
		w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(i))
	}
	return nil
}

func (w *BinaryWriter) BeginFields(n int) error     { return w.u2(n) }
func (w *BinaryWriter) BeginMethods(n int) error    { return w.u2(n) }
func (w *BinaryWriter) BeginAttributes(n int) error { return w.u2(n) }

func (w *BinaryWriter) WriteField(f Field) error {
	return w.member(f.Access, f.NameIndex, f.DescriptorIndex, f.Attributes)
}

func (w *BinaryWriter) WriteMethod(m Method) error {
	return w.member(m.Access, m.NameIndex, m.DescriptorIndex, m.Attributes)
}

func (w *BinaryWriter) member(access AccessFlags, name, desc pool.Index, attrs []Attribute) error {
	w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(access))
	w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(name))
	w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(desc))
	if err := w.u2(len(attrs)); err != nil {
		return err
	}
	for _, a := range attrs {
		if err := w.WriteAttribute(a); err != nil {
			return err
		}
	}
	return nil
}

func (w *BinaryWriter) WriteAttribute(a Attribute) error {
	if uint64(len(a.Data)) > math.MaxUint32 {
		return fmt.Errorf("%w: %s is %d bytes", ErrAttributeTooLarge, a.Name, len(a.Data))
	}
	w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(a.NameIndex))
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(len(a.Data)))
	w.buf = append(w.buf, a.Data...)
	return nil
}
