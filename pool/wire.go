package pool

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Snapshots hand a finalized pool to out-of-process consumers such as a
// class viewer. The encoding is canonical CBOR so equal pools produce equal
// bytes.

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("pool: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Snapshot is the wire form of a View.
type Snapshot struct {
	Count   uint16          `cbor:"1,keyasint"`
	Entries []SnapshotEntry `cbor:"2,keyasint"`
}

// SnapshotEntry is one entry of a Snapshot. Which payload fields are set
// depends on Tag.
type SnapshotEntry struct {
	Index Index   `cbor:"1,keyasint"`
	Tag   Tag     `cbor:"2,keyasint"`
	Text  string  `cbor:"3,keyasint,omitempty"`
	Int   int64   `cbor:"4,keyasint,omitempty"`
	Float float64 `cbor:"5,keyasint,omitempty"`
	Ref1  Index   `cbor:"6,keyasint,omitempty"`
	Ref2  Index   `cbor:"7,keyasint,omitempty"`
	Kind  uint8   `cbor:"8,keyasint,omitempty"`
}

// MarshalView serializes a view to CBOR bytes.
func MarshalView(v View) ([]byte, error) {
	if v.Count() > MaxCount {
		return nil, fmt.Errorf("%w: %d slots", ErrPoolOverflow, v.Count()-1)
	}
	s := Snapshot{Count: uint16(v.Count())}
	v.Each(func(i Index, e Entry) {
		s.Entries = append(s.Entries, snapshotEntry(i, e))
	})
	return cborEncMode.Marshal(&s)
}

func snapshotEntry(i Index, e Entry) SnapshotEntry {
	se := SnapshotEntry{Index: i, Tag: e.Tag()}
	switch e := e.(type) {
	case Utf8:
		se.Text = e.Value
	case Integer:
		se.Int = int64(e.Value)
	case Float:
		se.Float = float64(e.Value)
	case Long:
		se.Int = e.Value
	case Double:
		se.Float = e.Value
	case Class:
		se.Ref1 = e.Name
	case String:
		se.Ref1 = e.Value
	case NameAndType:
		se.Ref1, se.Ref2 = e.Name, e.Descriptor
	case FieldRef:
		se.Ref1, se.Ref2 = e.Class, e.NameAndType
	case MethodRef:
		se.Ref1, se.Ref2 = e.Class, e.NameAndType
	case InterfaceMethodRef:
		se.Ref1, se.Ref2 = e.Class, e.NameAndType
	case MethodHandle:
		se.Kind, se.Ref1 = uint8(e.Kind), e.Reference
	case MethodType:
		se.Ref1 = e.Descriptor
	case InvokeDynamic:
		se.Ref1, se.Ref2 = Index(e.Bootstrap), e.NameAndType
	}
	return se
}

// UnmarshalSnapshot deserializes CBOR bytes produced by MarshalView and
// validates every cross reference.
func UnmarshalSnapshot(data []byte) (View, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return View{}, fmt.Errorf("pool: unmarshal snapshot: %w", err)
	}
	if s.Count == 0 {
		return View{}, fmt.Errorf("pool: unmarshal snapshot: %w: zero count", ErrInvalidPoolReference)
	}

	entries := make([]Entry, s.Count)
	used := make([]bool, s.Count)
	for _, se := range s.Entries {
		e, err := se.entry()
		if err != nil {
			return View{}, err
		}
		start, end := int(se.Index), int(se.Index)+Width(e)
		if start == 0 || end > len(entries) {
			return View{}, fmt.Errorf("pool: unmarshal snapshot: %w: bad slot #%d", ErrInvalidPoolReference, se.Index)
		}
		for i := start; i < end; i++ {
			if used[i] {
				return View{}, fmt.Errorf("pool: unmarshal snapshot: %w: slot #%d reused", ErrInvalidPoolReference, i)
			}
			used[i] = true
		}
		entries[se.Index] = e
	}
	for _, e := range entries {
		if e == nil {
			continue
		}
		if err := checkDeps(entries, e); err != nil {
			return View{}, fmt.Errorf("pool: unmarshal snapshot: %w", err)
		}
	}
	return View{entries: entries}, nil
}

func (se SnapshotEntry) entry() (Entry, error) {
	switch se.Tag {
	case TagUtf8:
		return Utf8{se.Text}, nil
	case TagInteger:
		return Integer{int32(se.Int)}, nil
	case TagFloat:
		return Float{float32(se.Float)}, nil
	case TagLong:
		return Long{se.Int}, nil
	case TagDouble:
		return Double{se.Float}, nil
	case TagClass:
		return Class{se.Ref1}, nil
	case TagString:
		return String{se.Ref1}, nil
	case TagNameAndType:
		return NameAndType{se.Ref1, se.Ref2}, nil
	case TagFieldRef:
		return FieldRef{se.Ref1, se.Ref2}, nil
	case TagMethodRef:
		return MethodRef{se.Ref1, se.Ref2}, nil
	case TagInterfaceMethodRef:
		return InterfaceMethodRef{se.Ref1, se.Ref2}, nil
	case TagMethodHandle:
		return MethodHandle{HandleKind(se.Kind), se.Ref1}, nil
	case TagMethodType:
		return MethodType{se.Ref1}, nil
	case TagInvokeDynamic:
		return InvokeDynamic{uint16(se.Ref1), se.Ref2}, nil
	default:
		return nil, fmt.Errorf("pool: unmarshal snapshot: unknown tag %d at #%d", se.Tag, se.Index)
	}
}
