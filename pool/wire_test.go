package pool

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSnapshot_CBORRoundTrip(t *testing.T) {
	p := New()
	p.AddMethodRef("java/io/PrintStream", "println", "(Ljava/lang/String;)V")
	p.AddLong(1 << 40)
	p.AddDouble(2.5)
	p.AddFloat(0.25)
	p.AddInteger(-9)
	p.AddString("hello")
	p.AddMethodType("()V")
	p.AddInvokeDynamic(1, "apply", "()Ljava/util/function/Function;")
	f := p.AddFieldRef("a/B", "x", "I")
	if _, err := p.AddMethodHandle(RefGetField, f); err != nil {
		t.Fatalf("AddMethodHandle: %v", err)
	}

	data, err := MarshalView(p.View())
	if err != nil {
		t.Fatalf("MarshalView: %v", err)
	}
	got, err := UnmarshalSnapshot(data)
	if err != nil {
		t.Fatalf("UnmarshalSnapshot: %v", err)
	}

	if got.Count() != p.Count() {
		t.Errorf("Count() = %d, want %d", got.Count(), p.Count())
	}
	if diff := cmp.Diff(collect(p.View()), collect(got)); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestSnapshotDeterministic(t *testing.T) {
	build := func() []byte {
		p := New()
		p.AddClass("x/Y")
		p.AddString("s")
		data, err := MarshalView(p.View())
		if err != nil {
			t.Fatalf("MarshalView: %v", err)
		}
		return data
	}
	if diff := cmp.Diff(build(), build()); diff != "" {
		t.Errorf("snapshots differ:\n%s", diff)
	}
}

func TestUnmarshalSnapshotRejectsDanglingReference(t *testing.T) {
	data, err := cborEncMode.Marshal(&Snapshot{
		Count:   2,
		Entries: []SnapshotEntry{{Index: 1, Tag: TagClass, Ref1: 5}},
	})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if _, err := UnmarshalSnapshot(data); !errors.Is(err, ErrInvalidPoolReference) {
		t.Errorf("UnmarshalSnapshot error = %v, want ErrInvalidPoolReference", err)
	}
}

func TestUnmarshalSnapshotRejectsOverlap(t *testing.T) {
	data, err := cborEncMode.Marshal(&Snapshot{
		Count: 4,
		Entries: []SnapshotEntry{
			{Index: 1, Tag: TagLong, Int: 1},
			{Index: 2, Tag: TagInteger, Int: 2},
		},
	})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if _, err := UnmarshalSnapshot(data); !errors.Is(err, ErrInvalidPoolReference) {
		t.Errorf("UnmarshalSnapshot error = %v, want ErrInvalidPoolReference", err)
	}
}

func TestMarshalViewRejectsOverflow(t *testing.T) {
	p := New()
	for i := 0; i < MaxCount; i++ {
		p.AddInteger(int32(i))
	}
	if _, err := MarshalView(p.View()); !errors.Is(err, ErrPoolOverflow) {
		t.Errorf("MarshalView error = %v, want ErrPoolOverflow", err)
	}
}
