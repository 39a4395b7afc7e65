package asm

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/chazu/classasm/descriptor"
	"github.com/chazu/classasm/pool"
	"github.com/chazu/classasm/vtype"
)

func words(ts []vtype.Type) int {
	n := 0
	for _, t := range ts {
		n += vtype.Width(t)
	}
	return n
}

func assembleStatic(p *pool.Pool, desc string, nodes ...Node) (*Code, error) {
	return Assemble(p, Method{Class: "T", Name: "m", Descriptor: desc, Static: true, Body: NewBlock(nodes...)})
}

func mustAssemble(t *testing.T, desc string, nodes ...Node) *Code {
	t.Helper()
	code, err := assembleStatic(pool.New(), desc, nodes...)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	return code
}

// ---------------------------------------------------------------------------
// Stack effects
// ---------------------------------------------------------------------------

func TestInsnStackEffect(t *testing.T) {
	for _, op := range AllOpcodes() {
		info := GetOpcodeInfo(op)
		if info.class != classSimple || op == OpAaload {
			continue
		}
		t.Run(info.Name, func(t *testing.T) {
			c := newTestContext()
			for _, p := range info.Pop {
				c.Push(p)
			}
			before := c.Depth()
			if err := Preprocess(c, I(op)); err != nil {
				t.Fatalf("Preprocess: %v", err)
			}
			if want := before - words(info.Pop) + words(info.Push); c.Depth() != want {
				t.Errorf("Depth() = %d, want %d", c.Depth(), want)
			}
			if diff := cmp.Diff(info.Push, c.Stack(), cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("stack mismatch (-want +got):\n%s", diff)
			}
			if c.Offset() != 1 {
				t.Errorf("Offset() = %d, want 1", c.Offset())
			}
		})
	}
}

func TestInsnRejectsWrongOperandTypes(t *testing.T) {
	c := newTestContext()
	c.Push(vtype.Int)
	c.Push(vtype.Float)
	err := Preprocess(c, I(OpIadd))
	var ve *VerifyError
	if !errors.As(err, &ve) || !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("iadd on (int, float) error = %v", err)
	}
	if ve.Op != "iadd" || ve.Expected != vtype.Int || ve.Actual != vtype.Float {
		t.Errorf("VerifyError = %+v", ve)
	}
}

func TestInsnRequiresOperandFreeOpcode(t *testing.T) {
	c := newTestContext()
	if err := Preprocess(c, I(OpBipush)); !errors.Is(err, ErrInvalidOpcode) {
		t.Errorf("Insn{bipush} error = %v, want ErrInvalidOpcode", err)
	}
}

func TestAaloadPushesElementType(t *testing.T) {
	c := newTestContext()
	c.Push(vtype.Reference("[Ljava/lang/String;"))
	c.Push(vtype.Int)
	if err := Preprocess(c, I(OpAaload)); err != nil {
		t.Fatal(err)
	}
	want := []vtype.Type{vtype.Reference("java/lang/String")}
	if diff := cmp.Diff(want, c.Stack()); diff != "" {
		t.Errorf("stack mismatch (-want +got):\n%s", diff)
	}
}

func TestShuffles(t *testing.T) {
	I, F, L := vtype.Int, vtype.Float, vtype.Long
	tests := []struct {
		op   Opcode
		in   []vtype.Type
		want []vtype.Type
	}{
		{OpPop, []vtype.Type{I, F}, []vtype.Type{I}},
		{OpPop2, []vtype.Type{I, F}, nil},
		{OpPop2, []vtype.Type{I, L}, []vtype.Type{I}},
		{OpDup, []vtype.Type{F}, []vtype.Type{F, F}},
		{OpDupX1, []vtype.Type{I, F}, []vtype.Type{F, I, F}},
		{OpDupX2, []vtype.Type{L, F}, []vtype.Type{F, L, F}},
		{OpDupX2, []vtype.Type{I, I, F}, []vtype.Type{F, I, I, F}},
		{OpDup2, []vtype.Type{L}, []vtype.Type{L, L}},
		{OpDup2, []vtype.Type{I, F}, []vtype.Type{I, F, I, F}},
		{OpDup2X1, []vtype.Type{I, L}, []vtype.Type{L, I, L}},
		{OpDup2X2, []vtype.Type{L, L}, []vtype.Type{L, L, L}},
		{OpDup2X2, []vtype.Type{I, F, I, F}, []vtype.Type{I, F, I, F, I, F}},
		{OpSwap, []vtype.Type{I, F}, []vtype.Type{F, I}},
	}
	for _, tt := range tests {
		c := newTestContext()
		for _, v := range tt.in {
			c.Push(v)
		}
		if err := Preprocess(c, &Insn{Op: tt.op}); err != nil {
			t.Errorf("%s on %v: %v", tt.op, tt.in, err)
			continue
		}
		if diff := cmp.Diff(tt.want, c.Stack(), cmpopts.EquateEmpty()); diff != "" {
			t.Errorf("%s on %v (-want +got):\n%s", tt.op, tt.in, diff)
		}
	}
}

func TestShuffleRejectsSplittingTwoWordValues(t *testing.T) {
	for _, op := range []Opcode{OpPop, OpDup, OpSwap} {
		c := newTestContext()
		c.Push(vtype.Int)
		c.Push(vtype.Double)
		if err := Preprocess(c, I(op)); !errors.Is(err, ErrTypeMismatch) {
			t.Errorf("%s on a double: error = %v, want ErrTypeMismatch", op, err)
		}
	}
}

// ---------------------------------------------------------------------------
// Encodings
// ---------------------------------------------------------------------------

func TestConstForms(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  []byte
	}{
		{"iconst_m1", int32(-1), []byte{0x02}},
		{"iconst_5", 5, []byte{0x08}},
		{"bipush", int32(100), []byte{0x10, 0x64}},
		{"sipush", int32(-129), []byte{0x11, 0xFF, 0x7F}},
		{"ldc int", int32(40000), []byte{0x12, 0x01}},
		{"lconst_1", int64(1), []byte{0x0A}},
		{"ldc2_w long", int64(5), []byte{0x14, 0x00, 0x01}},
		{"fconst_2", float32(2), []byte{0x0D}},
		{"ldc float", float32(0.5), []byte{0x12, 0x01}},
		{"dconst_1", float64(1), []byte{0x0F}},
		{"ldc2_w negative zero", -zero(), []byte{0x14, 0x00, 0x01}},
		{"ldc string", "hi", []byte{0x12, 0x02}},
		{"ldc class", ClassConst("a/B"), []byte{0x12, 0x02}},
		{"aconst_null", nil, []byte{0x01}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestContext()
			n := Push(tt.value)
			if err := Preprocess(c, n); err != nil {
				t.Fatalf("Preprocess: %v", err)
			}
			got := Encode(c, n).AppendTo(nil)
			if !bytes.Equal(got, tt.want) {
				t.Errorf("encoding = % x, want % x", got, tt.want)
			}
			if c.Offset() != len(tt.want) {
				t.Errorf("Offset() = %d, want %d", c.Offset(), len(tt.want))
			}
		})
	}
}

func zero() float64 { return 0 }

func TestConstUsesLdcWForHighIndices(t *testing.T) {
	p := pool.New()
	for i := 0; i < 300; i++ {
		p.AddInteger(int32(1000000 + i))
	}
	c := NewContext(p, descriptor.VoidType)
	n := Push("late")
	if err := Preprocess(c, n); err != nil {
		t.Fatal(err)
	}
	got := Encode(c, n).AppendTo(nil)
	if got[0] != byte(OpLdcW) || len(got) != 3 {
		t.Errorf("encoding = % x, want ldc_w", got)
	}
}

func TestConstRejectsUnsupportedValue(t *testing.T) {
	c := newTestContext()
	if err := Preprocess(c, Push(true)); !errors.Is(err, ErrInvalidOperand) {
		t.Errorf("Push(true) error = %v, want ErrInvalidOperand", err)
	}
}

func TestLocalForms(t *testing.T) {
	tests := []struct {
		name string
		node Node
		want []byte
	}{
		{"iload_0", Load(OpIload, 0), []byte{0x1A}},
		{"aload_3", Load(OpAload, 3), []byte{0x2D}},
		{"iload 4", Load(OpIload, 4), []byte{0x15, 0x04}},
		{"wide iload", Load(OpIload, 300), []byte{0xC4, 0x15, 0x01, 0x2C}},
		{"lstore_1", Store(OpLstore, 1), []byte{0x40}},
		{"astore_2", Store(OpAstore, 2), []byte{0x4D}},
		{"fstore 200", Store(OpFstore, 200), []byte{0x38, 0xC8}},
		{"iinc", &Iinc{Index: 1, Delta: -1}, []byte{0x84, 0x01, 0xFF}},
		{"wide iinc", &Iinc{Index: 300, Delta: 1000}, []byte{0xC4, 0x84, 0x01, 0x2C, 0x03, 0xE8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestContext()
			// Give every slot a value of the kind the node touches.
			switch n := tt.node.(type) {
			case *Local:
				load, kind, _ := localKind(n.Op)
				v := localTypes[kind]
				if v == anyRef {
					v = vtype.Object
				}
				if load {
					c.Store(n.Index, v)
				} else {
					c.Push(v)
				}
			case *Iinc:
				c.Store(n.Index, vtype.Int)
			}
			if err := Preprocess(c, tt.node); err != nil {
				t.Fatalf("Preprocess: %v", err)
			}
			got := Encode(c, tt.node).AppendTo(nil)
			if !bytes.Equal(got, tt.want) {
				t.Errorf("encoding = % x, want % x", got, tt.want)
			}
			if c.Offset() != len(tt.want) {
				t.Errorf("Offset() = %d, want %d", c.Offset(), len(tt.want))
			}
		})
	}
}

func TestLoadFromUnsetLocalFails(t *testing.T) {
	c := newTestContext()
	if err := Preprocess(c, Load(OpIload, 2)); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("iload of unset local error = %v, want ErrTypeMismatch", err)
	}
}

func TestNewThenInitialize(t *testing.T) {
	code := mustAssemble(t, "()Ljava/lang/Object;",
		&TypeInsn{Op: OpNew, Class: "java/lang/Object"},
		I(OpDup),
		&Invoke{Op: OpInvokespecial, Class: "java/lang/Object", Name: "<init>", Descriptor: "()V"},
		I(OpAreturn),
	)
	want := []byte{0xBB, 0x00, 0x02, 0x59, 0xB7, 0x00, 0x06, 0xB0}
	if !bytes.Equal(code.Bytes, want) {
		t.Errorf("Bytes = % x, want % x", code.Bytes, want)
	}
	if code.MaxStack != 2 {
		t.Errorf("MaxStack = %d, want 2", code.MaxStack)
	}
}

func TestUninitializedCannotBeReturned(t *testing.T) {
	_, err := assembleStatic(pool.New(), "()Ljava/lang/Object;",
		&TypeInsn{Op: OpNew, Class: "java/lang/Object"},
		I(OpAreturn),
	)
	var ve *VerifyError
	if !errors.As(err, &ve) || !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("error = %v, want type mismatch", err)
	}
	if ve.Actual != vtype.Uninitialized("java/lang/Object", 0) {
		t.Errorf("Actual = %v", ve.Actual)
	}
}

func TestInvokeInterfaceCountsArgumentWords(t *testing.T) {
	c := newTestContext(vtype.Reference("java/util/Map"), vtype.Long)
	n := &Invoke{Op: OpInvokeinterface, Class: "java/util/Map", Name: "get", Descriptor: "(JLjava/lang/Object;)Ljava/lang/Object;"}
	for _, node := range []Node{Load(OpAload, 0), Load(OpLload, 1), Push(nil), n} {
		if err := Preprocess(c, node); err != nil {
			t.Fatalf("Preprocess: %v", err)
		}
	}
	enc := Encode(c, n).(*EncodedInsn)
	if got := enc.Operands(); got[2] != 4 || got[3] != 0 {
		t.Errorf("invokeinterface operands = % x, want count 4", got)
	}
	if enc.Len() != 5 {
		t.Errorf("Len() = %d, want 5", enc.Len())
	}
	if _, ok := c.method.pool.Get(enc.Ref()); !ok {
		t.Error("invokeinterface ref not in pool")
	}
}

func TestReturnMustMatchDescriptor(t *testing.T) {
	_, err := assembleStatic(pool.New(), "()I", Push(int64(1)), I(OpLreturn))
	if !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("lreturn from ()I error = %v, want ErrTypeMismatch", err)
	}
}

func TestFallOffEnd(t *testing.T) {
	_, err := assembleStatic(pool.New(), "()V", I(OpNop))
	if !errors.Is(err, ErrFallOffEnd) {
		t.Errorf("error = %v, want ErrFallOffEnd", err)
	}
}

func TestNodeReuseRejected(t *testing.T) {
	nop := I(OpNop)
	_, err := assembleStatic(pool.New(), "()V", nop, nop, I(OpReturn))
	if !errors.Is(err, ErrNodeReused) {
		t.Errorf("error = %v, want ErrNodeReused", err)
	}
}
