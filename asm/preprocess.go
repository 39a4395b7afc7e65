package asm

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/chazu/classasm/descriptor"
	"github.com/chazu/classasm/pool"
	"github.com/chazu/classasm/vtype"
)

// Preprocess threads c through n: it records the method offset of every
// node, checks and applies each instruction's stack effect, merges state
// at labels and branches, and stores switch padding for the encode pass.
func Preprocess(c *Context, n Node) error {
	if l, ok := n.(*Label); ok {
		c.op = "label " + l.String()
		c.method.at[n] = c.offset
		return c.placeLabel(l)
	}
	if _, seen := c.method.at[n]; seen {
		return c.fail(ErrNodeReused, describe(n))
	}
	c.method.at[n] = c.offset

	if err := c.reachHandlers(); err != nil {
		return err
	}
	if err := preprocessNode(c, n); err != nil {
		return err
	}
	return c.reachHandlers()
}

func preprocessNode(c *Context, n Node) error {
	switch n := n.(type) {
	case *Block:
		return preprocessBlock(c, n)
	case *If:
		return preprocessIf(c, n)
	case *Insn:
		return preprocessInsn(c, n)
	case *Const:
		return preprocessConst(c, n)
	case *Local:
		return preprocessLocal(c, n)
	case *Iinc:
		return preprocessIinc(c, n)
	case *Field:
		return preprocessField(c, n)
	case *Invoke:
		return preprocessInvoke(c, n)
	case *InvokeDynamic:
		return preprocessInvokeDynamic(c, n)
	case *TypeInsn:
		return preprocessTypeInsn(c, n)
	case *NewArray:
		return preprocessNewArray(c, n)
	case *Jump:
		return preprocessJump(c, n)
	case *Switch:
		return preprocessSwitch(c, n)
	default:
		return c.fail(ErrInvalidOpcode, fmt.Sprintf("unknown node %T", n))
	}
}

func preprocessBlock(c *Context, b *Block) error {
	for _, child := range b.Children {
		if c.dead {
			switch child.(type) {
			case *Label, *Block:
			default:
				c.op = ""
				if c.deadLabel != nil {
					return c.fail(ErrUnreachableLabel, c.deadLabel.String())
				}
				return c.fail(ErrIllegalControlFlowInBlock, fmt.Sprintf("%s follows an unconditional transfer", describe(child)))
			}
		}
		if err := Preprocess(c, child); err != nil {
			return err
		}
	}
	return nil
}

// preprocessIf lays out
//
//	start:     <negated cond> elseStart
//	           <then>
//	           goto end            (only if then falls through and there is an else)
//	elseStart: <else>
//	end:
func preprocessIf(c *Context, n *If) error {
	c.op = n.Cond.String()
	if !n.Cond.IsConditional() {
		return c.fail(ErrInvalidOpcode, "if condition must be a conditional jump")
	}
	if n.Then == nil {
		return c.fail(ErrInvalidOperand, "if without then block")
	}
	if err := popFixed(c, GetOpcodeInfo(n.Cond).Pop); err != nil {
		return err
	}
	start := c.offset
	c.OffsetDelta(3)

	thenCtx := c.Clone()
	if err := Preprocess(thenCtx, n.Then); err != nil {
		return err
	}
	jump := n.Else != nil && !thenCtx.dead
	if jump {
		thenCtx.OffsetDelta(3)
	}
	elseStart := thenCtx.offset

	elseCtx := c.Clone()
	elseCtx.offset = elseStart
	if n.Else != nil {
		if err := Preprocess(elseCtx, n.Else); err != nil {
			return err
		}
	}
	if err := thenCtx.Merge(elseCtx); err != nil {
		return err
	}
	*c = *thenCtx
	c.method.branches[n] = branchLayout{start: start, elseStart: elseStart, end: c.offset, jump: jump}
	return nil
}

func preprocessInsn(c *Context, n *Insn) error {
	info, ok := opcodeInfoTable[n.Op]
	c.op = info.Name
	if !ok {
		c.op = n.Op.String()
		return c.fail(ErrInvalidOpcode, "")
	}

	switch info.class {
	case classSimple:
		if n.Op == OpAaload {
			if _, err := c.PopExpect(vtype.Int); err != nil {
				return err
			}
			arr, err := c.PopExpect(anyRef)
			if err != nil {
				return err
			}
			c.Push(vtype.ElementOf(arr))
			break
		}
		if err := popFixed(c, info.Pop); err != nil {
			return err
		}
		for _, t := range info.Push {
			c.Push(t)
		}
	case classShuffle:
		if err := shuffle(c, n.Op); err != nil {
			return err
		}
	case classReturn:
		if err := checkReturn(c, n.Op); err != nil {
			return err
		}
		c.dead = true
	case classThrow:
		if err := popFixed(c, info.Pop); err != nil {
			return err
		}
		c.dead = true
	default:
		return c.fail(ErrInvalidOpcode, "opcode takes operands; use the matching node type")
	}
	c.OffsetDelta(1)
	return nil
}

// popFixed pops ts in reverse, checking each against its declared type.
func popFixed(c *Context, ts []vtype.Type) error {
	for i := len(ts) - 1; i >= 0; i-- {
		if _, err := c.PopExpect(ts[i]); err != nil {
			return err
		}
	}
	return nil
}

func checkReturn(c *Context, op Opcode) error {
	ret := c.method.ret
	want := OpReturn
	if !ret.IsVoid() {
		switch t := vtype.Of(ret); t.Tag {
		case vtype.TagInteger:
			want = OpIreturn
		case vtype.TagLong:
			want = OpLreturn
		case vtype.TagFloat:
			want = OpFreturn
		case vtype.TagDouble:
			want = OpDreturn
		default:
			want = OpAreturn
		}
	}
	if op != want {
		return c.fail(ErrTypeMismatch, fmt.Sprintf("method returns %s, use %s", ret, want))
	}
	if ret.IsVoid() {
		return nil
	}
	_, err := c.PopExpect(vtype.Of(ret))
	return err
}

// shuffle applies the untyped stack operations. Category 1 and 2 values
// select between the forms each opcode defines.
func shuffle(c *Context, op Opcode) error {
	pop1 := func() (vtype.Type, error) { return c.PopExpect(vtype.OneWord) }
	push := func(ts ...vtype.Type) {
		for _, t := range ts {
			c.Push(t)
		}
	}

	switch op {
	case OpPop:
		_, err := pop1()
		return err
	case OpPop2:
		v, err := c.Pop()
		if err != nil || vtype.IsCategory2(v) {
			return err
		}
		_, err = pop1()
		return err
	case OpDup:
		v, err := pop1()
		if err != nil {
			return err
		}
		push(v, v)
	case OpDupX1:
		v1, err := pop1()
		if err != nil {
			return err
		}
		v2, err := pop1()
		if err != nil {
			return err
		}
		push(v1, v2, v1)
	case OpDupX2:
		v1, err := pop1()
		if err != nil {
			return err
		}
		v2, err := c.Pop()
		if err != nil {
			return err
		}
		if vtype.IsCategory2(v2) {
			push(v1, v2, v1)
			break
		}
		v3, err := pop1()
		if err != nil {
			return err
		}
		push(v1, v3, v2, v1)
	case OpDup2:
		v1, err := c.Pop()
		if err != nil {
			return err
		}
		if vtype.IsCategory2(v1) {
			push(v1, v1)
			break
		}
		v2, err := pop1()
		if err != nil {
			return err
		}
		push(v2, v1, v2, v1)
	case OpDup2X1:
		v1, err := c.Pop()
		if err != nil {
			return err
		}
		if vtype.IsCategory2(v1) {
			v2, err := pop1()
			if err != nil {
				return err
			}
			push(v1, v2, v1)
			break
		}
		v2, err := pop1()
		if err != nil {
			return err
		}
		v3, err := pop1()
		if err != nil {
			return err
		}
		push(v2, v1, v3, v2, v1)
	case OpDup2X2:
		v1, err := c.Pop()
		if err != nil {
			return err
		}
		if vtype.IsCategory2(v1) {
			v2, err := c.Pop()
			if err != nil {
				return err
			}
			if vtype.IsCategory2(v2) {
				push(v1, v2, v1)
				break
			}
			v3, err := pop1()
			if err != nil {
				return err
			}
			push(v1, v3, v2, v1)
			break
		}
		v2, err := pop1()
		if err != nil {
			return err
		}
		v3, err := c.Pop()
		if err != nil {
			return err
		}
		if vtype.IsCategory2(v3) {
			push(v2, v1, v3, v2, v1)
			break
		}
		v4, err := pop1()
		if err != nil {
			return err
		}
		push(v2, v1, v4, v3, v2, v1)
	case OpSwap:
		v1, err := pop1()
		if err != nil {
			return err
		}
		v2, err := pop1()
		if err != nil {
			return err
		}
		push(v1, v2)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Constants
// ---------------------------------------------------------------------------

// constForm chooses the encoding of a constant. It interns pool entries,
// so calling it again with the same pool yields the same result.
func constForm(p *pool.Pool, v any) (op Opcode, operands []byte, ref pool.Index, push vtype.Type, err error) {
	switch v := v.(type) {
	case nil:
		return OpAconstNull, nil, 0, anyRef, nil
	case int:
		if v < math.MinInt32 || v > math.MaxInt32 {
			return 0, nil, 0, vtype.Top, fmt.Errorf("int constant %d out of range", v)
		}
		return constForm(p, int32(v))
	case int32:
		switch {
		case v >= -1 && v <= 5:
			return OpIconst0 + Opcode(v), nil, 0, vtype.Int, nil
		case v >= math.MinInt8 && v <= math.MaxInt8:
			return OpBipush, []byte{byte(int8(v))}, 0, vtype.Int, nil
		case v >= math.MinInt16 && v <= math.MaxInt16:
			return OpSipush, binary.BigEndian.AppendUint16(nil, uint16(int16(v))), 0, vtype.Int, nil
		}
		ref = p.AddInteger(v)
		op, operands = ldcForm(ref)
		return op, operands, ref, vtype.Int, nil
	case int64:
		if v == 0 || v == 1 {
			return OpLconst0 + Opcode(v), nil, 0, vtype.Long, nil
		}
		ref = p.AddLong(v)
		return OpLdc2W, binary.BigEndian.AppendUint16(nil, uint16(ref)), ref, vtype.Long, nil
	case float32:
		if (v == 0 && !math.Signbit(float64(v))) || v == 1 || v == 2 {
			return OpFconst0 + Opcode(v), nil, 0, vtype.Float, nil
		}
		ref = p.AddFloat(v)
		op, operands = ldcForm(ref)
		return op, operands, ref, vtype.Float, nil
	case float64:
		if (v == 0 && !math.Signbit(v)) || v == 1 {
			return OpDconst0 + Opcode(v), nil, 0, vtype.Double, nil
		}
		ref = p.AddDouble(v)
		return OpLdc2W, binary.BigEndian.AppendUint16(nil, uint16(ref)), ref, vtype.Double, nil
	case string:
		ref = p.AddString(v)
		op, operands = ldcForm(ref)
		return op, operands, ref, vtype.Reference("java/lang/String"), nil
	case ClassConst:
		ref = p.AddClass(string(v))
		op, operands = ldcForm(ref)
		return op, operands, ref, vtype.Reference("java/lang/Class"), nil
	default:
		return 0, nil, 0, vtype.Top, fmt.Errorf("unsupported constant type %T", v)
	}
}

func ldcForm(ref pool.Index) (Opcode, []byte) {
	if ref <= math.MaxUint8 {
		return OpLdc, []byte{byte(ref)}
	}
	return OpLdcW, binary.BigEndian.AppendUint16(nil, uint16(ref))
}

func preprocessConst(c *Context, n *Const) error {
	c.op = "const"
	op, operands, _, t, err := constForm(c.method.pool, n.Value)
	if err != nil {
		return c.fail(ErrInvalidOperand, err.Error())
	}
	c.op = op.String()
	c.Push(t)
	c.OffsetDelta(1 + len(operands))
	return nil
}

// ---------------------------------------------------------------------------
// Locals
// ---------------------------------------------------------------------------

var localTypes = [...]vtype.Type{vtype.Int, vtype.Long, vtype.Float, vtype.Double, anyRef}

// localKind classifies an indexed load or store opcode.
func localKind(op Opcode) (load bool, kind int, ok bool) {
	switch {
	case op >= OpIload && op <= OpAload:
		return true, int(op - OpIload), true
	case op >= OpIstore && op <= OpAstore:
		return false, int(op - OpIstore), true
	}
	return false, 0, false
}

// localForm picks the short, indexed or wide encoding of a local access.
func localForm(op Opcode, index int) (Opcode, []byte, bool) {
	load, kind, _ := localKind(op)
	switch {
	case index <= 3:
		base := OpIstore0
		if load {
			base = OpIload0
		}
		return base + Opcode(kind*4+index), nil, false
	case index <= math.MaxUint8:
		return op, []byte{byte(index)}, false
	default:
		return op, binary.BigEndian.AppendUint16(nil, uint16(index)), true
	}
}

func localLen(operands []byte, wide bool) int {
	if wide {
		return 2 + len(operands)
	}
	return 1 + len(operands)
}

func preprocessLocal(c *Context, n *Local) error {
	c.op = n.Op.String()
	load, kind, ok := localKind(n.Op)
	if !ok {
		return c.fail(ErrInvalidOpcode, "not a local variable load or store")
	}
	if n.Index < 0 || n.Index > maxLocalIndex {
		return c.fail(ErrInvalidOperand, fmt.Sprintf("local %d", n.Index))
	}
	want := localTypes[kind]
	op, operands, wide := localForm(n.Op, n.Index)
	c.op = op.String()

	if load {
		if want.Tag == vtype.TagReference {
			t, err := c.Load(n.Index, vtype.Top)
			if err != nil {
				return err
			}
			if !vtype.IsReference(t) {
				return c.mismatch(anyRef, t)
			}
			c.Push(t)
		} else {
			t, err := c.Load(n.Index, want)
			if err != nil {
				return err
			}
			c.Push(t)
		}
	} else {
		v, err := c.Pop()
		if err != nil {
			return err
		}
		if want.Tag == vtype.TagReference {
			if !vtype.IsReference(v) {
				return c.mismatch(anyRef, v)
			}
		} else if err := c.AssertAssignable(want, v); err != nil {
			return err
		}
		if err := c.Store(n.Index, v); err != nil {
			return err
		}
	}
	c.OffsetDelta(localLen(operands, wide))
	return nil
}

func iincForm(index, delta int) ([]byte, bool) {
	if index <= math.MaxUint8 && delta >= math.MinInt8 && delta <= math.MaxInt8 {
		return []byte{byte(index), byte(int8(delta))}, false
	}
	b := binary.BigEndian.AppendUint16(nil, uint16(index))
	return binary.BigEndian.AppendUint16(b, uint16(int16(delta))), true
}

func preprocessIinc(c *Context, n *Iinc) error {
	c.op = OpIinc.String()
	if n.Delta < math.MinInt16 || n.Delta > math.MaxInt16 {
		return c.fail(ErrInvalidOperand, fmt.Sprintf("increment %d", n.Delta))
	}
	if _, err := c.Load(n.Index, vtype.Int); err != nil {
		return err
	}
	operands, wide := iincForm(n.Index, n.Delta)
	c.OffsetDelta(localLen(operands, wide))
	return nil
}

// ---------------------------------------------------------------------------
// Members
// ---------------------------------------------------------------------------

func preprocessField(c *Context, n *Field) error {
	c.op = n.Op.String()
	ft, err := descriptor.ParseField(n.Descriptor)
	if err != nil {
		return c.fail(ErrInvalidOperand, err.Error())
	}
	t := vtype.Of(ft)

	switch n.Op {
	case OpGetstatic:
		c.Push(t)
	case OpPutstatic:
		if _, err := c.PopExpect(t); err != nil {
			return err
		}
	case OpGetfield:
		if _, err := c.PopExpect(anyRef); err != nil {
			return err
		}
		c.Push(t)
	case OpPutfield:
		if _, err := c.PopExpect(t); err != nil {
			return err
		}
		if _, err := c.PopExpect(anyRef); err != nil {
			return err
		}
	default:
		return c.fail(ErrInvalidOpcode, "not a field instruction")
	}
	c.method.pool.AddFieldRef(n.Class, n.Name, n.Descriptor)
	c.OffsetDelta(3)
	return nil
}

func methodRef(p *pool.Pool, n *Invoke) pool.Index {
	if n.Op == OpInvokeinterface || n.Interface {
		return p.AddInterfaceMethodRef(n.Class, n.Name, n.Descriptor)
	}
	return p.AddMethodRef(n.Class, n.Name, n.Descriptor)
}

func popParams(c *Context, md descriptor.Method) error {
	for i := len(md.Params) - 1; i >= 0; i-- {
		if _, err := c.PopExpect(vtype.Of(md.Params[i])); err != nil {
			return err
		}
	}
	return nil
}

func preprocessInvoke(c *Context, n *Invoke) error {
	c.op = n.Op.String()
	md, err := descriptor.ParseMethod(n.Descriptor)
	if err != nil {
		return c.fail(ErrInvalidOperand, err.Error())
	}
	switch n.Op {
	case OpInvokevirtual, OpInvokespecial, OpInvokestatic, OpInvokeinterface:
	default:
		return c.fail(ErrInvalidOpcode, "not an invoke instruction")
	}
	if n.Name == "<init>" && n.Op != OpInvokespecial {
		return c.fail(ErrInvalidOpcode, "constructors are called with invokespecial")
	}
	if err := popParams(c, md); err != nil {
		return err
	}

	if n.Op != OpInvokestatic {
		recv, err := c.Pop()
		if err != nil {
			return err
		}
		switch {
		case n.Name == "<init>" && recv.Tag == vtype.TagUninitialized:
			c.initialize(recv)
		case recv.Tag != vtype.TagReference:
			return c.mismatch(anyRef, recv)
		}
	}
	if !md.Return.IsVoid() {
		c.Push(vtype.Of(md.Return))
	}

	methodRef(c.method.pool, n)
	if n.Op == OpInvokeinterface {
		c.OffsetDelta(5)
	} else {
		c.OffsetDelta(3)
	}
	return nil
}

func preprocessInvokeDynamic(c *Context, n *InvokeDynamic) error {
	c.op = OpInvokedynamic.String()
	md, err := descriptor.ParseMethod(n.Descriptor)
	if err != nil {
		return c.fail(ErrInvalidOperand, err.Error())
	}
	if err := popParams(c, md); err != nil {
		return err
	}
	if !md.Return.IsVoid() {
		c.Push(vtype.Of(md.Return))
	}
	c.method.pool.AddInvokeDynamic(n.Bootstrap, n.Name, n.Descriptor)
	c.OffsetDelta(5)
	return nil
}

// ---------------------------------------------------------------------------
// Objects and arrays
// ---------------------------------------------------------------------------

// arrayClass returns the array class whose elements are of class.
func arrayClass(class string) string {
	if strings.HasPrefix(class, "[") {
		return "[" + class
	}
	return "[L" + class + ";"
}

func preprocessTypeInsn(c *Context, n *TypeInsn) error {
	c.op = n.Op.String()
	if n.Class == "" {
		return c.fail(ErrInvalidOperand, "empty class name")
	}
	switch n.Op {
	case OpNew:
		if strings.HasPrefix(n.Class, "[") {
			return c.fail(ErrInvalidOperand, "new of an array class")
		}
		c.Push(vtype.Uninitialized(n.Class, c.offset))
	case OpAnewarray:
		if _, err := c.PopExpect(vtype.Int); err != nil {
			return err
		}
		c.Push(vtype.Reference(arrayClass(n.Class)))
	case OpCheckcast:
		if _, err := c.PopExpect(anyRef); err != nil {
			return err
		}
		c.Push(vtype.Reference(n.Class))
	case OpInstanceof:
		if _, err := c.PopExpect(anyRef); err != nil {
			return err
		}
		c.Push(vtype.Int)
	default:
		return c.fail(ErrInvalidOpcode, "not a type instruction")
	}
	c.method.pool.AddClass(n.Class)
	c.OffsetDelta(3)
	return nil
}

// arrayTypes maps primitive element kinds to newarray atype codes.
var arrayTypes = map[descriptor.Kind]byte{
	descriptor.Boolean: 4,
	descriptor.Char:    5,
	descriptor.Float:   6,
	descriptor.Double:  7,
	descriptor.Byte:    8,
	descriptor.Short:   9,
	descriptor.Int:     10,
	descriptor.Long:    11,
}

func preprocessNewArray(c *Context, n *NewArray) error {
	c.op = OpNewarray.String()
	if _, ok := arrayTypes[n.Elem]; !ok {
		return c.fail(ErrInvalidOperand, fmt.Sprintf("newarray of %q", rune(n.Elem)))
	}
	if _, err := c.PopExpect(vtype.Int); err != nil {
		return err
	}
	c.Push(vtype.Reference("[" + string(rune(n.Elem))))
	c.OffsetDelta(2)
	return nil
}

// ---------------------------------------------------------------------------
// Jumps
// ---------------------------------------------------------------------------

func preprocessJump(c *Context, n *Jump) error {
	c.op = n.Op.String()
	if !n.Op.IsBranch() {
		return c.fail(ErrInvalidOpcode, "not a jump")
	}
	if err := popFixed(c, GetOpcodeInfo(n.Op).Pop); err != nil {
		return err
	}
	if err := c.branchTo(n.Target, true); err != nil {
		return err
	}
	c.OffsetDelta(3)
	if n.Op == OpGoto {
		c.dead = true
	}
	return nil
}

// switchPadding returns the number of bytes after a switch opcode at
// method offset p that align the following table to four bytes.
func switchPadding(p int) int {
	return (4 - (p+1)%4) % 4
}

func preprocessSwitch(c *Context, n *Switch) error {
	op := n.Opcode()
	c.op = op.String()
	if _, err := c.PopExpect(vtype.Int); err != nil {
		return err
	}
	pad := switchPadding(c.offset)
	c.StorePadding(n, pad)
	if err := c.branchTo(n.def, false); err != nil {
		return err
	}
	for _, cs := range n.cases {
		if err := c.branchTo(cs.Target, false); err != nil {
			return err
		}
	}
	c.OffsetDelta(1 + pad + n.bodyLen())
	c.dead = true
	return nil
}

func describe(n Node) string {
	switch n := n.(type) {
	case *Insn:
		return n.Op.String()
	case *Local:
		return n.Op.String()
	case *Field:
		return n.Op.String()
	case *Invoke:
		return n.Op.String()
	case *TypeInsn:
		return n.Op.String()
	case *Jump:
		return n.Op.String()
	case *If:
		return "if " + n.Cond.String()
	default:
		return strings.TrimPrefix(fmt.Sprintf("%T", n), "*asm.")
	}
}

// paramSlots returns the argument words of an already validated method
// descriptor.
func paramSlots(desc string) int {
	md, _ := descriptor.ParseMethod(desc)
	return md.ParamSlots()
}
