package asm

import (
	"encoding/binary"
	"slices"

	"github.com/chazu/classasm/pool"
)

// Encoded is a finalized, position-resolved instruction node. At is the
// method offset of the node; Rel is its offset inside the enclosing
// encoded block or branch.
type Encoded interface {
	At() int
	Rel() int
	Len() int
	AppendTo(b []byte) []byte
	encoded()
}

// ---------------------------------------------------------------------------
// Encoded nodes
// ---------------------------------------------------------------------------

// EncodedInsn is a single instruction with its operand bytes.
type EncodedInsn struct {
	at, rel  int
	op       Opcode
	wide     bool
	operands []byte
	ref      pool.Index
}

func (e *EncodedInsn) At() int  { return e.at }
func (e *EncodedInsn) Rel() int { return e.rel }
func (e *EncodedInsn) Len() int { return localLen(e.operands, e.wide) }

// Op returns the opcode. For wide instructions it is the modified opcode,
// not OpWide.
func (e *EncodedInsn) Op() Opcode { return e.op }

// Wide reports whether the instruction carries the wide prefix.
func (e *EncodedInsn) Wide() bool { return e.wide }

// Operands returns a copy of the operand bytes.
func (e *EncodedInsn) Operands() []byte { return slices.Clone(e.operands) }

// Ref returns the constant pool index the instruction refers to, or 0.
func (e *EncodedInsn) Ref() pool.Index { return e.ref }

func (e *EncodedInsn) AppendTo(b []byte) []byte {
	if e.wide {
		b = append(b, byte(OpWide))
	}
	b = append(b, byte(e.op))
	return append(b, e.operands...)
}

// EncodedBlock is a sequence of encoded children whose Rel offsets start
// at zero.
type EncodedBlock struct {
	at, rel, n int
	children   []Encoded
}

func (e *EncodedBlock) At() int  { return e.at }
func (e *EncodedBlock) Rel() int { return e.rel }
func (e *EncodedBlock) Len() int { return e.n }

// Children returns the encoded children in order.
func (e *EncodedBlock) Children() []Encoded { return slices.Clone(e.children) }

func (e *EncodedBlock) AppendTo(b []byte) []byte {
	for _, c := range e.children {
		b = c.AppendTo(b)
	}
	return b
}

// EncodedBranch is an encoded If: the negated condition jump, the then
// block, an optional goto over the else block, and the else block.
type EncodedBranch struct {
	at, rel int
	cond    *EncodedInsn
	then    *EncodedBlock
	jump    *EncodedInsn
	els     *EncodedBlock
}

func (e *EncodedBranch) At() int  { return e.at }
func (e *EncodedBranch) Rel() int { return e.rel }

func (e *EncodedBranch) Len() int {
	n := e.cond.Len() + e.then.Len()
	if e.jump != nil {
		n += e.jump.Len()
	}
	if e.els != nil {
		n += e.els.Len()
	}
	return n
}

// Cond returns the conditional jump that skips the then block.
func (e *EncodedBranch) Cond() *EncodedInsn { return e.cond }

// Then returns the then block.
func (e *EncodedBranch) Then() *EncodedBlock { return e.then }

// Jump returns the goto past the else block, or nil.
func (e *EncodedBranch) Jump() *EncodedInsn { return e.jump }

// Else returns the else block, or nil.
func (e *EncodedBranch) Else() *EncodedBlock { return e.els }

func (e *EncodedBranch) AppendTo(b []byte) []byte {
	b = e.cond.AppendTo(b)
	b = e.then.AppendTo(b)
	if e.jump != nil {
		b = e.jump.AppendTo(b)
	}
	if e.els != nil {
		b = e.els.AppendTo(b)
	}
	return b
}

// SwitchPair is a case key and its jump offset relative to the switch
// opcode.
type SwitchPair struct {
	Key   int32
	Delta int32
}

// EncodedSwitch is a tableswitch or lookupswitch.
type EncodedSwitch struct {
	at, rel int
	op      Opcode
	padding int
	def     int32
	pairs   []SwitchPair
}

func (e *EncodedSwitch) At() int  { return e.at }
func (e *EncodedSwitch) Rel() int { return e.rel }

func (e *EncodedSwitch) Len() int {
	if e.op == OpTableswitch {
		return 1 + e.padding + 12 + 4*len(e.pairs)
	}
	return 1 + e.padding + 8 + 8*len(e.pairs)
}

// Op returns OpTableswitch or OpLookupswitch.
func (e *EncodedSwitch) Op() Opcode { return e.op }

// Padding returns the number of zero bytes after the opcode.
func (e *EncodedSwitch) Padding() int { return e.padding }

// Default returns the default jump offset.
func (e *EncodedSwitch) Default() int32 { return e.def }

// Pairs returns the cases in ascending key order.
func (e *EncodedSwitch) Pairs() []SwitchPair { return slices.Clone(e.pairs) }

func (e *EncodedSwitch) AppendTo(b []byte) []byte {
	b = append(b, byte(e.op))
	for range e.padding {
		b = append(b, 0)
	}
	b = binary.BigEndian.AppendUint32(b, uint32(e.def))
	if e.op == OpTableswitch {
		low := e.pairs[0].Key
		high := e.pairs[len(e.pairs)-1].Key
		b = binary.BigEndian.AppendUint32(b, uint32(low))
		b = binary.BigEndian.AppendUint32(b, uint32(high))
		for _, p := range e.pairs {
			b = binary.BigEndian.AppendUint32(b, uint32(p.Delta))
		}
		return b
	}
	b = binary.BigEndian.AppendUint32(b, uint32(len(e.pairs)))
	for _, p := range e.pairs {
		b = binary.BigEndian.AppendUint32(b, uint32(p.Key))
		b = binary.BigEndian.AppendUint32(b, uint32(p.Delta))
	}
	return b
}

func (*EncodedInsn) encoded()   {}
func (*EncodedBlock) encoded()  {}
func (*EncodedBranch) encoded() {}
func (*EncodedSwitch) encoded() {}

// ---------------------------------------------------------------------------
// Encode pass
// ---------------------------------------------------------------------------

// Encode produces the encoded form of n, which must already have been
// preprocessed against c and had its labels resolved. Labels encode to
// nothing and yield nil.
func Encode(c *Context, n Node) Encoded {
	e := encoder{m: c.method}
	return e.encode(n, 0)
}

type encoder struct {
	m *methodState
}

func u16(v int) []byte {
	return binary.BigEndian.AppendUint16(nil, uint16(v))
}

func (e encoder) encode(n Node, rel int) Encoded {
	at := e.m.at[n]
	p := e.m.pool

	switch n := n.(type) {
	case *Block:
		return e.block(n, rel)
	case *If:
		return e.branch(n, rel)
	case *Label:
		return nil
	case *Insn:
		return &EncodedInsn{at: at, rel: rel, op: n.Op}
	case *Const:
		op, operands, ref, _, _ := constForm(p, n.Value)
		return &EncodedInsn{at: at, rel: rel, op: op, operands: operands, ref: ref}
	case *Local:
		op, operands, wide := localForm(n.Op, n.Index)
		return &EncodedInsn{at: at, rel: rel, op: op, operands: operands, wide: wide}
	case *Iinc:
		operands, wide := iincForm(n.Index, n.Delta)
		return &EncodedInsn{at: at, rel: rel, op: OpIinc, operands: operands, wide: wide}
	case *Field:
		ref := p.AddFieldRef(n.Class, n.Name, n.Descriptor)
		return &EncodedInsn{at: at, rel: rel, op: n.Op, operands: u16(int(ref)), ref: ref}
	case *Invoke:
		ref := methodRef(p, n)
		operands := u16(int(ref))
		if n.Op == OpInvokeinterface {
			// Argument count in words, including the receiver.
			operands = append(operands, byte(1+paramSlots(n.Descriptor)), 0)
		}
		return &EncodedInsn{at: at, rel: rel, op: n.Op, operands: operands, ref: ref}
	case *InvokeDynamic:
		ref := p.AddInvokeDynamic(n.Bootstrap, n.Name, n.Descriptor)
		return &EncodedInsn{at: at, rel: rel, op: OpInvokedynamic, operands: append(u16(int(ref)), 0, 0), ref: ref}
	case *TypeInsn:
		ref := p.AddClass(n.Class)
		return &EncodedInsn{at: at, rel: rel, op: n.Op, operands: u16(int(ref)), ref: ref}
	case *NewArray:
		return &EncodedInsn{at: at, rel: rel, op: OpNewarray, operands: []byte{arrayTypes[n.Elem]}}
	case *Jump:
		delta := e.m.labels[n.Target].offset - at
		return &EncodedInsn{at: at, rel: rel, op: n.Op, operands: u16(delta)}
	case *Switch:
		return e.sw(n, at, rel)
	}
	return nil
}

// block encodes children against a fresh zero-based offset.
func (e encoder) block(b *Block, rel int) *EncodedBlock {
	eb := &EncodedBlock{at: e.m.at[b], rel: rel}
	local := 0
	for _, child := range b.Children {
		enc := e.encode(child, local)
		if enc == nil {
			continue
		}
		eb.children = append(eb.children, enc)
		local += enc.Len()
	}
	eb.n = local
	return eb
}

func (e encoder) branch(n *If, rel int) *EncodedBranch {
	lay := e.m.branches[n]
	neg, _ := n.Cond.Negate()
	br := &EncodedBranch{
		at:   lay.start,
		rel:  rel,
		cond: &EncodedInsn{at: lay.start, rel: 0, op: neg, operands: u16(lay.elseStart - lay.start)},
	}
	local := br.cond.Len()
	br.then = e.block(n.Then, local)
	local += br.then.Len()
	if lay.jump {
		gotoAt := lay.elseStart - 3
		br.jump = &EncodedInsn{at: gotoAt, rel: local, op: OpGoto, operands: u16(lay.end - gotoAt)}
		local += br.jump.Len()
	}
	if n.Else != nil {
		br.els = e.block(n.Else, local)
	}
	return br
}

func (e encoder) sw(n *Switch, at, rel int) *EncodedSwitch {
	target := func(l *Label) int32 { return int32(e.m.labels[l].offset - at) }
	es := &EncodedSwitch{
		at:      at,
		rel:     rel,
		op:      n.Opcode(),
		padding: e.m.padding[n],
		def:     target(n.def),
	}
	for _, cs := range n.cases {
		es.pairs = append(es.pairs, SwitchPair{Key: cs.Key, Delta: target(cs.Target)})
	}
	return es
}
