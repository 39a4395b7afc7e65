package asm

import (
	"errors"
	"fmt"
	"slices"

	"github.com/chazu/classasm/descriptor"
	"github.com/chazu/classasm/pool"
	"github.com/chazu/classasm/vtype"
)

// ---------------------------------------------------------------------------
// Assembly Errors
// ---------------------------------------------------------------------------

var (
	ErrStackUnderflow            = errors.New("operand stack underflow")
	ErrTypeMismatch              = errors.New("type mismatch")
	ErrIncompatibleStackShape    = errors.New("incompatible stack shape")
	ErrIllegalControlFlowInBlock = errors.New("illegal control flow in block")
	ErrDuplicateCaseKey          = errors.New("duplicate case key")
	ErrInvalidOpcode             = errors.New("invalid opcode")
	ErrInvalidOperand            = errors.New("invalid operand")
	ErrUndefinedLabel            = errors.New("undefined label")
	ErrLabelRedefined            = errors.New("label placed twice")
	ErrUnreachableLabel          = errors.New("label is only reachable by a later backward jump")
	ErrBranchTooFar              = errors.New("branch offset does not fit in 16 bits")
	ErrCodeTooLarge              = errors.New("code length exceeds 65535 bytes")
	ErrFallOffEnd                = errors.New("control falls off the end of the method")
	ErrNodeReused                = errors.New("node appears more than once in the tree")
)

// VerifyError reports a failed operand check at a code offset. It wraps
// one of the sentinel errors above.
type VerifyError struct {
	Offset   int
	Op       string
	Expected vtype.Type
	Actual   vtype.Type
	Detail   string
	Err      error
}

func (e *VerifyError) Error() string {
	msg := fmt.Sprintf("offset %d", e.Offset)
	if e.Op != "" {
		msg += " (" + e.Op + ")"
	}
	msg += ": " + e.Err.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *VerifyError) Unwrap() error { return e.Err }

// ---------------------------------------------------------------------------
// Context
// ---------------------------------------------------------------------------

// Context is the abstract machine state threaded through preprocessing: the
// current code offset, the verification types on the operand stack and in
// the local variables, and the high-water marks that become max_stack and
// max_locals.
//
// Contexts are cloned at control-flow splits and merged where the paths
// meet. The per-method tables (switch padding, node offsets, label frames)
// are shared by every clone.
type Context struct {
	offset    int
	stack     []vtype.Type
	depth     int
	locals    []vtype.Type
	maxStack  int
	maxLocals int

	// dead is set after an instruction that never falls through. Only a
	// label may follow.
	dead bool
	// deadLabel is a label placed in dead code before any jump to it.
	deadLabel *Label

	op     string
	method *methodState
}

// methodState holds the tables shared by all clones of a method's context.
type methodState struct {
	pool     *pool.Pool
	ret      descriptor.FieldType
	at       map[Node]int
	padding  map[*Switch]int
	labels   map[*Label]*labelState
	branches map[*If]branchLayout
	jumps    []jumpRef
	handlers []*handlerRange
}

// handlerRange is a protected range whose handler entry frame collects the
// locals of every instruction between start and end.
type handlerRange struct {
	start, end, target *Label
	catch              vtype.Type
	open               bool
}

type labelState struct {
	frame  *frame
	placed bool
	offset int
}

type jumpRef struct {
	at     int
	target *Label
	short  bool
}

// branchLayout records where the pieces of an If landed.
type branchLayout struct {
	start     int
	elseStart int
	end       int
	jump      bool
}

// frame is a stack map frame: the types at a point in the code.
type frame struct {
	stack  []vtype.Type
	locals []vtype.Type
}

// NewContext creates the entry context of a method whose result is ret.
// params are the types of the incoming local variables in order; two-word
// types occupy two slots.
func NewContext(p *pool.Pool, ret descriptor.FieldType, params ...vtype.Type) *Context {
	c := &Context{
		method: &methodState{
			pool:     p,
			ret:      ret,
			at:       make(map[Node]int),
			padding:  make(map[*Switch]int),
			labels:   make(map[*Label]*labelState),
			branches: make(map[*If]branchLayout),
		},
	}
	for _, t := range params {
		c.locals = append(c.locals, t)
		if vtype.IsCategory2(t) {
			c.locals = append(c.locals, vtype.Top)
		}
	}
	c.maxLocals = len(c.locals)
	return c
}

// Offset returns the current code offset.
func (c *Context) Offset() int { return c.offset }

// OffsetDelta advances the code offset by n bytes.
func (c *Context) OffsetDelta(n int) { c.offset += n }

// Depth returns the operand stack depth in words.
func (c *Context) Depth() int { return c.depth }

// MaxStack returns the largest stack depth seen so far, in words.
func (c *Context) MaxStack() int { return c.maxStack }

// MaxLocals returns the number of local variable slots used so far.
func (c *Context) MaxLocals() int { return c.maxLocals }

// Reachable reports whether the next instruction can be reached by falling
// through.
func (c *Context) Reachable() bool { return !c.dead }

// Stack returns a copy of the operand stack, bottom first.
func (c *Context) Stack() []vtype.Type { return slices.Clone(c.stack) }

// Locals returns a copy of the local variable types.
func (c *Context) Locals() []vtype.Type { return slices.Clone(c.locals) }

// Push pushes t and raises the max stack watermark.
func (c *Context) Push(t vtype.Type) {
	c.stack = append(c.stack, t)
	c.depth += vtype.Width(t)
	c.maxStack = max(c.maxStack, c.depth)
}

// Pop removes the top of the stack.
func (c *Context) Pop() (vtype.Type, error) {
	if len(c.stack) == 0 {
		return vtype.Top, c.fail(ErrStackUnderflow, "")
	}
	t := c.stack[len(c.stack)-1]
	c.stack = c.stack[:len(c.stack)-1]
	c.depth -= vtype.Width(t)
	return t, nil
}

// PopExpect pops the top of the stack and checks it is assignable to target.
func (c *Context) PopExpect(target vtype.Type) (vtype.Type, error) {
	t, err := c.Pop()
	if err != nil {
		return t, err
	}
	return t, c.AssertAssignable(target, t)
}

// AssertAssignable fails with ErrTypeMismatch unless actual is assignable
// to target.
func (c *Context) AssertAssignable(target, actual vtype.Type) error {
	if vtype.IsAssignable(target, actual) {
		return nil
	}
	return c.mismatch(target, actual)
}

// Load checks that local index holds a value assignable to target and
// returns its type. Unset slots hold Top.
func (c *Context) Load(index int, target vtype.Type) (vtype.Type, error) {
	if index < 0 || index > maxLocalIndex {
		return vtype.Top, c.fail(ErrInvalidOperand, fmt.Sprintf("local %d", index))
	}
	t := vtype.Top
	if index < len(c.locals) {
		t = c.locals[index]
	}
	return t, c.AssertAssignable(target, t)
}

// Store sets local index to t, invalidating any two-word value it
// overlaps.
func (c *Context) Store(index int, t vtype.Type) error {
	w := vtype.Width(t)
	if index < 0 || index+w-1 > maxLocalIndex {
		return c.fail(ErrInvalidOperand, fmt.Sprintf("local %d", index))
	}
	for len(c.locals) < index+w {
		c.locals = append(c.locals, vtype.Top)
	}
	if index > 0 && vtype.IsCategory2(c.locals[index-1]) {
		c.locals[index-1] = vtype.Top
	}
	c.locals[index] = t
	if w == 2 {
		c.locals[index+1] = vtype.Top
	}
	c.maxLocals = max(c.maxLocals, index+w)
	return nil
}

// initialize replaces every occurrence of an uninitialized type by the
// initialized reference, after its constructor has run.
func (c *Context) initialize(u vtype.Type) {
	r := vtype.Reference(u.Class)
	for i, t := range c.stack {
		if t == u {
			c.stack[i] = r
		}
	}
	for i, t := range c.locals {
		if t == u {
			c.locals[i] = r
		}
	}
}

// StorePadding records the alignment padding computed for sw.
func (c *Context) StorePadding(sw *Switch, n int) { c.method.padding[sw] = n }

// Padding returns the padding recorded for sw.
func (c *Context) Padding(sw *Switch) (int, bool) {
	n, ok := c.method.padding[sw]
	return n, ok
}

// Clone returns an independent copy sharing the method tables.
func (c *Context) Clone() *Context {
	n := *c
	n.stack = slices.Clone(c.stack)
	n.locals = slices.Clone(c.locals)
	return &n
}

// Merge joins o into c where two control-flow paths meet. The stacks must
// agree slot by slot; locals that disagree become Top. Watermarks take the
// maximum of both sides, as does the offset. A path that cannot reach the
// join point contributes only its watermarks.
func (c *Context) Merge(o *Context) error {
	c.offset = max(c.offset, o.offset)
	c.maxStack = max(c.maxStack, o.maxStack)
	c.maxLocals = max(c.maxLocals, o.maxLocals)
	switch {
	case o.dead:
		return nil
	case c.dead:
		c.setFrame(o.frame())
		c.dead, c.deadLabel = false, nil
		return nil
	}
	f, err := mergeFrames(c.frame(), o.frame())
	if err != nil {
		return c.fail(ErrIncompatibleStackShape, err.Error())
	}
	c.setFrame(f)
	return nil
}

func (c *Context) frame() frame {
	return frame{stack: slices.Clone(c.stack), locals: slices.Clone(c.locals)}
}

func (c *Context) setFrame(f frame) {
	c.stack = slices.Clone(f.stack)
	c.locals = slices.Clone(f.locals)
	c.depth = 0
	for _, t := range c.stack {
		c.depth += vtype.Width(t)
	}
}

func mergeFrames(a, b frame) (frame, error) {
	if !slices.Equal(a.stack, b.stack) {
		return frame{}, fmt.Errorf("stack %s vs %s", formatTypes(a.stack), formatTypes(b.stack))
	}
	n := max(len(a.locals), len(b.locals))
	locals := make([]vtype.Type, n)
	for i := range locals {
		if i < len(a.locals) && i < len(b.locals) && a.locals[i] == b.locals[i] {
			locals[i] = a.locals[i]
		} else {
			locals[i] = vtype.Top
		}
	}
	return frame{stack: slices.Clone(a.stack), locals: locals}, nil
}

// accepts reports whether code verified against f can be entered with the
// state in g.
func (f frame) accepts(g frame) bool {
	if !slices.Equal(f.stack, g.stack) {
		return false
	}
	for i, t := range f.locals {
		if t == vtype.Top {
			continue
		}
		if i >= len(g.locals) || g.locals[i] != t {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// Labels
// ---------------------------------------------------------------------------

func (c *Context) label(l *Label) *labelState {
	st, ok := c.method.labels[l]
	if !ok {
		st = &labelState{}
		c.method.labels[l] = st
	}
	return st
}

// branchTo records the current state as an entry into l.
func (c *Context) branchTo(l *Label, short bool) error {
	if l == nil {
		return c.fail(ErrUndefinedLabel, "nil target")
	}
	c.method.jumps = append(c.method.jumps, jumpRef{at: c.offset, target: l, short: short})
	return c.enter(l, c.frame(), "jump to "+l.String())
}

// enter records f as a way into l. A label that is already placed must
// accept f; otherwise f is merged into the frames seen so far.
func (c *Context) enter(l *Label, f frame, what string) error {
	st := c.label(l)
	switch {
	case st.placed && st.frame == nil:
		return c.fail(ErrUnreachableLabel, l.String())
	case st.placed:
		if !st.frame.accepts(f) {
			return c.fail(ErrIncompatibleStackShape, fmt.Sprintf("backward %s", what))
		}
	case st.frame == nil:
		st.frame = &f
	default:
		merged, err := mergeFrames(*st.frame, f)
		if err != nil {
			return c.fail(ErrIncompatibleStackShape, fmt.Sprintf("%s: %v", what, err))
		}
		st.frame = &merged
	}
	return nil
}

// reachHandlers enters every handler whose range is open with the current
// locals and the caught exception as the only stack entry.
func (c *Context) reachHandlers() error {
	if c.dead {
		return nil
	}
	for _, h := range c.method.handlers {
		if !h.open {
			continue
		}
		f := frame{stack: []vtype.Type{h.catch}, locals: slices.Clone(c.locals)}
		if err := c.enter(h.target, f, "handler "+h.target.String()); err != nil {
			return err
		}
	}
	return nil
}

// crossLabel closes the ranges ending at l and opens those starting at l.
func (c *Context) crossLabel(l *Label) error {
	for _, h := range c.method.handlers {
		if h.end == l {
			h.open = false
		}
		if h.start == l {
			h.open = true
		}
	}
	return c.reachHandlers()
}

// placeLabel binds l to the current offset. The state after the label is
// the merge of the fall-through state and every jump seen so far.
func (c *Context) placeLabel(l *Label) error {
	st := c.label(l)
	if st.placed {
		return c.fail(ErrLabelRedefined, l.String())
	}
	st.placed = true
	st.offset = c.offset
	switch {
	case c.dead && st.frame == nil:
		// The label stays unreachable; only labels may follow it.
		c.deadLabel = l
	case c.dead:
		c.setFrame(*st.frame)
		c.dead, c.deadLabel = false, nil
	case st.frame != nil:
		f, err := mergeFrames(*st.frame, c.frame())
		if err != nil {
			return c.fail(ErrIncompatibleStackShape, fmt.Sprintf("at %s: %v", l, err))
		}
		st.frame = &f
		c.setFrame(f)
	default:
		f := c.frame()
		st.frame = &f
	}
	return c.crossLabel(l)
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

func (c *Context) fail(err error, detail string) error {
	return &VerifyError{Offset: c.offset, Op: c.op, Detail: detail, Err: err}
}

func (c *Context) mismatch(expected, actual vtype.Type) error {
	return &VerifyError{
		Offset:   c.offset,
		Op:       c.op,
		Expected: expected,
		Actual:   actual,
		Detail:   fmt.Sprintf("expected %s, got %s", expected, actual),
		Err:      ErrTypeMismatch,
	}
}

func formatTypes(ts []vtype.Type) string {
	s := "["
	for i, t := range ts {
		if i > 0 {
			s += " "
		}
		s += t.String()
	}
	return s + "]"
}
