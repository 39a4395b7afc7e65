package asm

import (
	"fmt"
	"slices"

	"github.com/chazu/classasm/descriptor"
)

const maxLocalIndex = 0xFFFF

// Node is a source instruction node. The set of node types is closed:
// preprocessing and encoding switch over the concrete types below.
type Node interface {
	node()
}

// Insn is an instruction without operands, such as iadd, dup or areturn.
type Insn struct {
	Op Opcode
}

// Const pushes a constant. Value is one of int32, int, int64, float32,
// float64, string, ClassConst or nil; the shortest encoding is chosen.
type Const struct {
	Value any
}

// ClassConst is a class literal constant, given as an internal name.
type ClassConst string

// Local loads or stores a local variable. Op is one of the indexed forms
// (iload ... astore); the short and wide forms are chosen automatically.
type Local struct {
	Op    Opcode
	Index int
}

// Iinc increments an int local variable by a constant.
type Iinc struct {
	Index int
	Delta int
}

// Field accesses a field through a Fieldref.
type Field struct {
	Op         Opcode
	Class      string
	Name       string
	Descriptor string
}

// Invoke calls a method. Interface selects an InterfaceMethodref for
// invokestatic and invokespecial; invokeinterface always uses one.
type Invoke struct {
	Op         Opcode
	Class      string
	Name       string
	Descriptor string
	Interface  bool
}

// InvokeDynamic is an invokedynamic call site bound by bootstrap method
// number Bootstrap of the class.
type InvokeDynamic struct {
	Bootstrap  uint16
	Name       string
	Descriptor string
}

// TypeInsn is new, anewarray, checkcast or instanceof. Class is an internal
// name or, for arrays, a descriptor.
type TypeInsn struct {
	Op    Opcode
	Class string
}

// NewArray allocates an array of a primitive element kind.
type NewArray struct {
	Elem descriptor.Kind
}

// Label marks a position that jumps and switches can target.
type Label struct {
	Name string
}

// NewLabel returns a fresh label.
func NewLabel(name string) *Label { return &Label{Name: name} }

func (l *Label) String() string {
	if l == nil {
		return "<nil>"
	}
	if l.Name == "" {
		return fmt.Sprintf("label@%p", l)
	}
	return l.Name
}

// Jump is goto or a conditional jump to a label.
type Jump struct {
	Op     Opcode
	Target *Label
}

// Case is one arm of a Switch.
type Case struct {
	Key    int32
	Target *Label
}

// Switch jumps on an int key. Build it with NewSwitch.
type Switch struct {
	def   *Label
	cases []Case
}

// NewSwitch builds a switch with cases sorted by key. Duplicate keys fail
// with ErrDuplicateCaseKey.
func NewSwitch(def *Label, cases ...Case) (*Switch, error) {
	sorted := slices.Clone(cases)
	slices.SortStableFunc(sorted, func(a, b Case) int {
		switch {
		case a.Key < b.Key:
			return -1
		case a.Key > b.Key:
			return 1
		}
		return 0
	})
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Key == sorted[i-1].Key {
			return nil, fmt.Errorf("asm: %w: %d", ErrDuplicateCaseKey, sorted[i].Key)
		}
	}
	return &Switch{def: def, cases: sorted}, nil
}

// Default returns the default target.
func (s *Switch) Default() *Label { return s.def }

// Cases returns the cases in ascending key order.
func (s *Switch) Cases() []Case { return slices.Clone(s.cases) }

// Opcode returns tableswitch when the keys form a contiguous range and
// lookupswitch otherwise.
func (s *Switch) Opcode() Opcode {
	n := len(s.cases)
	if n > 0 && int64(s.cases[n-1].Key)-int64(s.cases[0].Key)+1 == int64(n) {
		return OpTableswitch
	}
	return OpLookupswitch
}

// bodyLen is the size of the switch after the opcode and padding.
func (s *Switch) bodyLen() int {
	if s.Opcode() == OpTableswitch {
		return 12 + 4*len(s.cases)
	}
	return 8 + 8*len(s.cases)
}

// Block is a straight-line sequence of nodes.
type Block struct {
	Children []Node
}

// NewBlock returns a block of the given children.
func NewBlock(children ...Node) *Block { return &Block{Children: children} }

// If runs Then when the condition jump Cond would be taken and Else (which
// may be nil) otherwise. Cond is a conditional jump opcode such as ifeq or
// if_icmplt; its operands are popped from the stack.
type If struct {
	Cond Opcode
	Then *Block
	Else *Block
}

func (*Insn) node()          {}
func (*Const) node()         {}
func (*Local) node()         {}
func (*Iinc) node()          {}
func (*Field) node()         {}
func (*Invoke) node()        {}
func (*InvokeDynamic) node() {}
func (*TypeInsn) node()      {}
func (*NewArray) node()      {}
func (*Label) node()         {}
func (*Jump) node()          {}
func (*Switch) node()        {}
func (*Block) node()         {}
func (*If) node()            {}

// Node constructors for the common instructions.

// I returns a zero-operand instruction node.
func I(op Opcode) *Insn { return &Insn{Op: op} }

// Push returns a constant node.
func Push(v any) *Const { return &Const{Value: v} }

// Load returns a local variable load of the given kind, e.g. OpAload.
func Load(op Opcode, index int) *Local { return &Local{Op: op, Index: index} }

// Store returns a local variable store of the given kind, e.g. OpIstore.
func Store(op Opcode, index int) *Local { return &Local{Op: op, Index: index} }

// Goto returns an unconditional jump.
func Goto(l *Label) *Jump { return &Jump{Op: OpGoto, Target: l} }
