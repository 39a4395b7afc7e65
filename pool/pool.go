// Package pool implements the class-file constant pool: a deduplicating,
// insertion-ordered table of typed entries that owns index assignment.
//
// A Pool belongs to exactly one class being assembled. Every component that
// needs to refer to a string, class or member interns it here and keeps the
// returned Index; entries are never removed or renumbered.
package pool

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
)

// MaxCount is the largest constant_pool_count the class-file format can
// express.
const MaxCount = math.MaxUint16

// ---------------------------------------------------------------------------
// Pool Errors
// ---------------------------------------------------------------------------

var (
	ErrInvalidPoolReference = errors.New("invalid constant pool reference")
	ErrPoolOverflow         = errors.New("constant pool overflow")
	ErrUtf8TooLong          = errors.New("utf8 constant too long")
)

// ---------------------------------------------------------------------------
// Pool
// ---------------------------------------------------------------------------

// Pool is a constant pool under construction.
type Pool struct {
	// entries[i] holds the entry at index i. Slot 0 and the second slot of
	// Long and Double entries are nil.
	entries []Entry
	index   map[entryKey]Index
}

// New creates an empty pool. The first entry added receives index 1.
func New() *Pool {
	return &Pool{
		entries: make([]Entry, 1, 64),
		index:   make(map[entryKey]Index),
	}
}

// Add interns e and returns its index. Entries that refer to other entries
// must carry indices that already exist in the pool with the right tag;
// otherwise Add fails with ErrInvalidPoolReference.
func (p *Pool) Add(e Entry) (Index, error) {
	if idx, ok := p.index[e.key()]; ok {
		return idx, nil
	}
	if err := checkDeps(p.entries, e); err != nil {
		return 0, err
	}
	return p.intern(e), nil
}

func checkDeps(entries []Entry, e Entry) error {
	if mh, ok := e.(MethodHandle); ok && (mh.Kind < RefGetField || mh.Kind > RefInvokeInterface) {
		return fmt.Errorf("%w: method handle kind %d", ErrInvalidPoolReference, mh.Kind)
	}
	for _, d := range e.deps() {
		if int(d.index) <= 0 || int(d.index) >= len(entries) || entries[d.index] == nil {
			return fmt.Errorf("%w: %s refers to missing #%d", ErrInvalidPoolReference, e.Tag(), d.index)
		}
		got := entries[d.index].Tag()
		ok := false
		for _, t := range d.tags {
			if got == t {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("%w: %s refers to #%d which is %s", ErrInvalidPoolReference, e.Tag(), d.index, got)
		}
	}
	return nil
}

// intern appends e without checking. Past MaxCount the returned index is
// meaningless; the overflow is reported when the pool is written.
func (p *Pool) intern(e Entry) Index {
	idx := Index(len(p.entries))
	p.entries = append(p.entries, e)
	if Width(e) == 2 {
		p.entries = append(p.entries, nil)
	}
	p.index[e.key()] = idx
	return idx
}

// mustAdd is used by the helpers, which only ever refer to entries they
// interned themselves.
func (p *Pool) mustAdd(e Entry) Index {
	if idx, ok := p.index[e.key()]; ok {
		return idx
	}
	return p.intern(e)
}

// AddUtf8 interns a Utf8 entry.
func (p *Pool) AddUtf8(s string) Index { return p.mustAdd(Utf8{s}) }

// AddInteger interns an Integer entry.
func (p *Pool) AddInteger(v int32) Index { return p.mustAdd(Integer{v}) }

// AddFloat interns a Float entry.
func (p *Pool) AddFloat(v float32) Index { return p.mustAdd(Float{v}) }

// AddLong interns a Long entry, which occupies two slots.
func (p *Pool) AddLong(v int64) Index { return p.mustAdd(Long{v}) }

// AddDouble interns a Double entry, which occupies two slots.
func (p *Pool) AddDouble(v float64) Index { return p.mustAdd(Double{v}) }

// AddString interns a String entry and its Utf8.
func (p *Pool) AddString(s string) Index {
	return p.mustAdd(String{p.AddUtf8(s)})
}

// AddClass interns a Class entry for an internal class name.
func (p *Pool) AddClass(name string) Index {
	return p.mustAdd(Class{p.AddUtf8(name)})
}

// AddNameAndType interns a NameAndType entry.
func (p *Pool) AddNameAndType(name, descriptor string) Index {
	n := p.AddUtf8(name)
	d := p.AddUtf8(descriptor)
	return p.mustAdd(NameAndType{n, d})
}

// AddFieldRef interns a Fieldref entry with its class and name-and-type.
func (p *Pool) AddFieldRef(class, name, descriptor string) Index {
	c := p.AddClass(class)
	nt := p.AddNameAndType(name, descriptor)
	return p.mustAdd(FieldRef{c, nt})
}

// AddMethodRef interns a Methodref entry with its class and name-and-type.
func (p *Pool) AddMethodRef(class, name, descriptor string) Index {
	c := p.AddClass(class)
	nt := p.AddNameAndType(name, descriptor)
	return p.mustAdd(MethodRef{c, nt})
}

// AddInterfaceMethodRef interns an InterfaceMethodref entry.
func (p *Pool) AddInterfaceMethodRef(class, name, descriptor string) Index {
	c := p.AddClass(class)
	nt := p.AddNameAndType(name, descriptor)
	return p.mustAdd(InterfaceMethodRef{c, nt})
}

// AddMethodType interns a MethodType entry.
func (p *Pool) AddMethodType(descriptor string) Index {
	return p.mustAdd(MethodType{p.AddUtf8(descriptor)})
}

// AddMethodHandle interns a MethodHandle. ref must already be a field or
// method reference compatible with kind.
func (p *Pool) AddMethodHandle(kind HandleKind, ref Index) (Index, error) {
	return p.Add(MethodHandle{Kind: kind, Reference: ref})
}

// AddInvokeDynamic interns an InvokeDynamic entry for bootstrap method
// number bootstrap.
func (p *Pool) AddInvokeDynamic(bootstrap uint16, name, descriptor string) Index {
	nt := p.AddNameAndType(name, descriptor)
	return p.mustAdd(InvokeDynamic{bootstrap, nt})
}

// Truncate drops every entry added since Count returned n, so a failed
// operation leaves no orphans behind. Views taken earlier are unaffected.
func (p *Pool) Truncate(n int) {
	if n < 1 || n >= len(p.entries) {
		return
	}
	for _, e := range p.entries[n:] {
		if e != nil {
			delete(p.index, e.key())
		}
	}
	p.entries = slices.Clip(p.entries[:n])
}

// Get returns the entry at i.
func (p *Pool) Get(i Index) (Entry, bool) {
	return p.View().At(i)
}

// Count returns the constant_pool_count value: one more than the highest
// index in use.
func (p *Pool) Count() int {
	return len(p.entries)
}

// Resolve renders the entry at i symbolically.
func (p *Pool) Resolve(i Index) string {
	return p.View().Resolve(i)
}

// View returns a read-only view of the entries added so far. Later
// additions to the pool are not visible through the view.
func (p *Pool) View() View {
	return View{entries: p.entries[:len(p.entries):len(p.entries)]}
}

// ---------------------------------------------------------------------------
// View: read-only index -> entry table
// ---------------------------------------------------------------------------

// View is a read-only index to entry table.
type View struct {
	entries []Entry
}

// Count returns the constant_pool_count value of the view.
func (v View) Count() int {
	if len(v.entries) == 0 {
		return 1
	}
	return len(v.entries)
}

// At returns the entry at i. The second slot of a wide entry is empty.
func (v View) At(i Index) (Entry, bool) {
	if i == 0 || int(i) >= len(v.entries) || v.entries[i] == nil {
		return nil, false
	}
	return v.entries[i], true
}

// Each calls fn for every entry in index order.
func (v View) Each(fn func(Index, Entry)) {
	for i := 1; i < len(v.entries); i++ {
		if v.entries[i] != nil {
			fn(Index(i), v.entries[i])
		}
	}
}

// Utf8 returns the text of the Utf8 entry at i.
func (v View) Utf8(i Index) (string, bool) {
	e, ok := v.At(i)
	if !ok {
		return "", false
	}
	u, ok := e.(Utf8)
	return u.Value, ok
}

// Resolve renders the entry at i the way a disassembler would show it,
// e.g. "java/io/PrintStream.println:(Ljava/lang/String;)V".
func (v View) Resolve(i Index) string {
	e, ok := v.At(i)
	if !ok {
		return fmt.Sprintf("#%d?", i)
	}
	switch e := e.(type) {
	case Utf8:
		return e.Value
	case Integer:
		return strconv.FormatInt(int64(e.Value), 10)
	case Float:
		return strconv.FormatFloat(float64(e.Value), 'g', -1, 32) + "f"
	case Long:
		return strconv.FormatInt(e.Value, 10) + "l"
	case Double:
		return strconv.FormatFloat(e.Value, 'g', -1, 64) + "d"
	case Class:
		return v.Resolve(e.Name)
	case String:
		return strconv.Quote(v.Resolve(e.Value))
	case NameAndType:
		return v.Resolve(e.Name) + ":" + v.Resolve(e.Descriptor)
	case FieldRef:
		return v.Resolve(e.Class) + "." + v.Resolve(e.NameAndType)
	case MethodRef:
		return v.Resolve(e.Class) + "." + v.Resolve(e.NameAndType)
	case InterfaceMethodRef:
		return v.Resolve(e.Class) + "." + v.Resolve(e.NameAndType)
	case MethodHandle:
		return fmt.Sprintf("REF_%d %s", e.Kind, v.Resolve(e.Reference))
	case MethodType:
		return v.Resolve(e.Descriptor)
	case InvokeDynamic:
		return fmt.Sprintf("#%d:%s", e.Bootstrap, v.Resolve(e.NameAndType))
	default:
		return fmt.Sprintf("#%d", i)
	}
}

// AppendTo appends constant_pool_count followed by every entry in the
// class-file layout.
func (v View) AppendTo(b []byte) ([]byte, error) {
	if v.Count() > MaxCount {
		return b, fmt.Errorf("%w: %d slots", ErrPoolOverflow, v.Count()-1)
	}
	b = binary.BigEndian.AppendUint16(b, uint16(v.Count()))
	var err error
	v.Each(func(i Index, e Entry) {
		if err != nil {
			return
		}
		if u, ok := e.(Utf8); ok {
			if n := ModifiedUTF8Len(u.Value); n > math.MaxUint16 {
				err = fmt.Errorf("%w: #%d is %d bytes", ErrUtf8TooLong, i, n)
				return
			}
		}
		b = e.appendTo(b)
	})
	return b, err
}
