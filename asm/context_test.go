package asm

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/chazu/classasm/descriptor"
	"github.com/chazu/classasm/pool"
	"github.com/chazu/classasm/vtype"
)

func newTestContext(params ...vtype.Type) *Context {
	return NewContext(pool.New(), descriptor.VoidType, params...)
}

func TestContextPushPopCountsWords(t *testing.T) {
	c := newTestContext()
	c.Push(vtype.Int)
	c.Push(vtype.Long)
	if c.Depth() != 3 {
		t.Errorf("Depth() = %d, want 3", c.Depth())
	}
	if _, err := c.PopExpect(vtype.TwoWord); err != nil {
		t.Fatalf("PopExpect(TwoWord): %v", err)
	}
	if c.Depth() != 1 || c.MaxStack() != 3 {
		t.Errorf("Depth() = %d, MaxStack() = %d, want 1, 3", c.Depth(), c.MaxStack())
	}
}

func TestContextPopUnderflow(t *testing.T) {
	c := newTestContext()
	c.OffsetDelta(7)
	_, err := c.Pop()
	if !errors.Is(err, ErrStackUnderflow) {
		t.Fatalf("Pop() error = %v, want ErrStackUnderflow", err)
	}
	var ve *VerifyError
	if !errors.As(err, &ve) || ve.Offset != 7 {
		t.Errorf("error = %#v, want VerifyError at offset 7", err)
	}
}

func TestContextPopExpectMismatch(t *testing.T) {
	c := newTestContext()
	c.Push(vtype.Float)
	_, err := c.PopExpect(vtype.Int)
	var ve *VerifyError
	if !errors.As(err, &ve) {
		t.Fatalf("PopExpect error = %v, want VerifyError", err)
	}
	if !errors.Is(err, ErrTypeMismatch) || ve.Expected != vtype.Int || ve.Actual != vtype.Float {
		t.Errorf("VerifyError = %+v", ve)
	}
}

func TestContextSeedsParameters(t *testing.T) {
	c := newTestContext(vtype.Reference("T"), vtype.Long, vtype.Int)
	want := []vtype.Type{vtype.Reference("T"), vtype.Long, vtype.Top, vtype.Int}
	if diff := cmp.Diff(want, c.Locals()); diff != "" {
		t.Errorf("locals mismatch (-want +got):\n%s", diff)
	}
	if c.MaxLocals() != 4 {
		t.Errorf("MaxLocals() = %d, want 4", c.MaxLocals())
	}
}

func TestContextStoreInvalidatesTwoWordValue(t *testing.T) {
	c := newTestContext()
	if err := c.Store(0, vtype.Double); err != nil {
		t.Fatal(err)
	}
	if err := c.Store(1, vtype.Int); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Load(0, vtype.Double); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("Load(0, double) after overwriting its second half: %v", err)
	}
	if _, err := c.Load(1, vtype.Int); err != nil {
		t.Errorf("Load(1, int): %v", err)
	}
}

func TestContextCloneIsIndependent(t *testing.T) {
	c := newTestContext(vtype.Int)
	c.Push(vtype.Int)
	d := c.Clone()
	d.Push(vtype.Float)
	d.Store(0, vtype.Float)
	d.OffsetDelta(4)

	if c.Depth() != 1 || c.Offset() != 0 {
		t.Errorf("original changed: depth %d, offset %d", c.Depth(), c.Offset())
	}
	if got := c.Locals()[0]; got != vtype.Int {
		t.Errorf("original local 0 = %v, want int", got)
	}
}

// ---------------------------------------------------------------------------
// Merge
// ---------------------------------------------------------------------------

func TestMergeSameDepth(t *testing.T) {
	c := newTestContext()
	c.Push(vtype.Int)
	c.Push(vtype.Int)
	a, b := c.Clone(), c.Clone()
	a.OffsetDelta(3)
	b.OffsetDelta(8)
	b.Push(vtype.Int)
	b.Pop()

	if err := a.Merge(b); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if a.Depth() != 2 {
		t.Errorf("Depth() = %d, want 2", a.Depth())
	}
	if a.Offset() != 8 {
		t.Errorf("Offset() = %d, want 8", a.Offset())
	}
	if a.MaxStack() != 3 {
		t.Errorf("MaxStack() = %d, want 3", a.MaxStack())
	}
}

func TestMergeDifferentDepthFails(t *testing.T) {
	c := newTestContext()
	c.Push(vtype.Int)
	c.Push(vtype.Int)
	a, b := c.Clone(), c.Clone()
	b.Push(vtype.Int)

	if err := a.Merge(b); !errors.Is(err, ErrIncompatibleStackShape) {
		t.Errorf("Merge error = %v, want ErrIncompatibleStackShape", err)
	}
}

func TestMergeDifferentSlotTypesFails(t *testing.T) {
	a, b := newTestContext(), newTestContext()
	a.Push(vtype.Int)
	b.Push(vtype.Float)
	if err := a.Merge(b); !errors.Is(err, ErrIncompatibleStackShape) {
		t.Errorf("Merge error = %v, want ErrIncompatibleStackShape", err)
	}
}

func TestMergeLocalsBecomeTop(t *testing.T) {
	c := newTestContext(vtype.Int, vtype.Float)
	a, b := c.Clone(), c.Clone()
	b.Store(1, vtype.Reference("x/Y"))
	b.Store(2, vtype.Int)

	if err := a.Merge(b); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	want := []vtype.Type{vtype.Int, vtype.Top, vtype.Top}
	if diff := cmp.Diff(want, a.Locals()); diff != "" {
		t.Errorf("locals mismatch (-want +got):\n%s", diff)
	}
	if a.MaxLocals() != 3 {
		t.Errorf("MaxLocals() = %d, want 3", a.MaxLocals())
	}
}

func TestMergeUnreachableSideAdoptsOther(t *testing.T) {
	a, b := newTestContext(), newTestContext()
	a.dead = true
	b.Push(vtype.Long)

	if err := a.Merge(b); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if !a.Reachable() || a.Depth() != 2 {
		t.Errorf("Reachable() = %v, Depth() = %d", a.Reachable(), a.Depth())
	}
}

func TestSwitchPadding(t *testing.T) {
	want := []int{3, 2, 1, 0, 3}
	for p, w := range want {
		if got := switchPadding(p); got != w {
			t.Errorf("switchPadding(%d) = %d, want %d", p, got, w)
		}
	}
}

func TestSwitchPaddingStoredPerNode(t *testing.T) {
	for p, want := range []int{3, 2, 1, 0, 3} {
		c := newTestContext()
		c.OffsetDelta(p)
		c.Push(vtype.Int)
		sw, err := NewSwitch(NewLabel("d"))
		if err != nil {
			t.Fatal(err)
		}
		if err := Preprocess(c, sw); err != nil {
			t.Fatalf("Preprocess at %d: %v", p, err)
		}
		got, ok := c.Padding(sw)
		if !ok || got != want {
			t.Errorf("Padding at %d = %d, %v, want %d", p, got, ok, want)
		}
	}
}
