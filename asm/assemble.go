package asm

import (
	"fmt"
	"math"

	"github.com/tliron/commonlog"

	"github.com/chazu/classasm/descriptor"
	"github.com/chazu/classasm/pool"
	"github.com/chazu/classasm/vtype"
)

var log = commonlog.GetLogger("classasm.asm")

// MaxCodeLen is the largest code array a method may have.
const MaxCodeLen = math.MaxUint16

// Method is the input to Assemble.
type Method struct {
	Class      string // internal name of the declaring class
	Name       string
	Descriptor string
	Static     bool
	Body       *Block
	Handlers   []Handler
}

// Handler protects the code between Start and End. Control transfers to
// Target with the thrown reference as the only stack entry. An empty
// CatchType catches everything.
type Handler struct {
	Start     *Label
	End       *Label
	Target    *Label
	CatchType string
}

// ExceptionEntry is a resolved exception table row.
type ExceptionEntry struct {
	StartPC   int
	EndPC     int
	HandlerPC int
	CatchType pool.Index
}

// Code is an assembled method body.
type Code struct {
	MaxStack   int
	MaxLocals  int
	Bytes      []byte
	Tree       *EncodedBlock
	Exceptions []ExceptionEntry
}

// Assemble preprocesses and encodes a method body against p.
func Assemble(p *pool.Pool, m Method) (*Code, error) {
	md, err := descriptor.ParseMethod(m.Descriptor)
	if err != nil {
		return nil, fmt.Errorf("asm: %s: %w", m.Name, err)
	}

	var params []vtype.Type
	if !m.Static {
		params = append(params, vtype.Reference(m.Class))
	}
	for _, pt := range md.Params {
		params = append(params, vtype.Of(pt))
	}
	c := NewContext(p, md.Return, params...)

	if err := registerHandlers(c, m.Handlers); err != nil {
		return nil, fmt.Errorf("asm: %s%s: %w", m.Name, m.Descriptor, err)
	}

	body := m.Body
	if body == nil {
		body = NewBlock()
	}
	if err := Preprocess(c, body); err != nil {
		return nil, fmt.Errorf("asm: %s%s: %w", m.Name, m.Descriptor, err)
	}
	if c.Reachable() {
		return nil, fmt.Errorf("asm: %s%s: %w", m.Name, m.Descriptor, c.fail(ErrFallOffEnd, ""))
	}
	if err := resolve(c); err != nil {
		return nil, fmt.Errorf("asm: %s%s: %w", m.Name, m.Descriptor, err)
	}

	exceptions, err := exceptionTable(c, m.Handlers)
	if err != nil {
		return nil, fmt.Errorf("asm: %s%s: %w", m.Name, m.Descriptor, err)
	}

	tree := Encode(c, body).(*EncodedBlock)
	code := &Code{
		MaxStack:   c.MaxStack(),
		MaxLocals:  c.MaxLocals(),
		Bytes:      tree.AppendTo(make([]byte, 0, c.Offset())),
		Tree:       tree,
		Exceptions: exceptions,
	}
	if len(code.Bytes) != c.Offset() {
		return nil, fmt.Errorf("asm: %s%s: encoded %d bytes, laid out %d", m.Name, m.Descriptor, len(code.Bytes), c.Offset())
	}

	log.Debugf("assembled %s.%s%s: %d bytes, max_stack=%d, max_locals=%d",
		m.Class, m.Name, m.Descriptor, len(code.Bytes), code.MaxStack, code.MaxLocals)
	return code, nil
}

// registerHandlers records the protected ranges. Each handler label is
// entered with the caught exception on the stack and the locals of every
// instruction in its range, as preprocessing reaches them.
func registerHandlers(c *Context, handlers []Handler) error {
	for i, h := range handlers {
		if h.Start == nil || h.End == nil || h.Target == nil {
			return fmt.Errorf("handler %d: %w: missing label", i, ErrUndefinedLabel)
		}
		catch := h.CatchType
		if catch == "" {
			catch = "java/lang/Throwable"
		}
		c.method.handlers = append(c.method.handlers, &handlerRange{
			start:  h.Start,
			end:    h.End,
			target: h.Target,
			catch:  vtype.Reference(catch),
		})
		c.maxStack = max(c.maxStack, 1)
	}
	return nil
}

// resolve checks that every jump target was placed and is within reach.
func resolve(c *Context) error {
	if c.offset > MaxCodeLen {
		return fmt.Errorf("%w: %d bytes", ErrCodeTooLarge, c.offset)
	}
	for _, j := range c.method.jumps {
		st, ok := c.method.labels[j.target]
		if !ok || !st.placed {
			return &VerifyError{Offset: j.at, Err: ErrUndefinedLabel, Detail: j.target.String()}
		}
		if d := st.offset - j.at; j.short && (d < math.MinInt16 || d > math.MaxInt16) {
			return &VerifyError{Offset: j.at, Err: ErrBranchTooFar, Detail: fmt.Sprintf("%d to %s", d, j.target)}
		}
	}
	for _, b := range c.method.branches {
		if d := b.elseStart - b.start; d > math.MaxInt16 {
			return &VerifyError{Offset: b.start, Err: ErrBranchTooFar, Detail: fmt.Sprintf("%d", d)}
		}
		if d := b.end - (b.elseStart - 3); b.jump && d > math.MaxInt16 {
			return &VerifyError{Offset: b.elseStart - 3, Err: ErrBranchTooFar, Detail: fmt.Sprintf("%d", d)}
		}
	}
	return nil
}

func exceptionTable(c *Context, handlers []Handler) ([]ExceptionEntry, error) {
	var out []ExceptionEntry
	pc := func(l *Label) (int, error) {
		st, ok := c.method.labels[l]
		if !ok || !st.placed {
			return 0, fmt.Errorf("%w: %s", ErrUndefinedLabel, l)
		}
		return st.offset, nil
	}
	for i, h := range handlers {
		start, err := pc(h.Start)
		if err != nil {
			return nil, err
		}
		end, err := pc(h.End)
		if err != nil {
			return nil, err
		}
		target, err := pc(h.Target)
		if err != nil {
			return nil, err
		}
		if start >= end {
			return nil, fmt.Errorf("handler %d: %w: empty range %d-%d", i, ErrInvalidOperand, start, end)
		}
		var catch pool.Index
		if h.CatchType != "" {
			catch = c.method.pool.AddClass(h.CatchType)
		}
		out = append(out, ExceptionEntry{StartPC: start, EndPC: end, HandlerPC: target, CatchType: catch})
	}
	return out, nil
}
