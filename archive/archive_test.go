package archive

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/chazu/classasm/asm"
	"github.com/chazu/classasm/classfile"
)

func openTemp(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "db", "classes.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func newClass(t *testing.T, name string, value int32) *classfile.Class {
	t.Helper()
	c := classfile.New(name, "java/lang/Object", classfile.DefaultOptions())
	body := asm.NewBlock(asm.Push(value), asm.I(asm.OpIreturn))
	if err := c.AddMethod(classfile.AccPublic|classfile.AccStatic, "value", "()I", body); err != nil {
		t.Fatalf("AddMethod: %v", err)
	}
	return c
}

func TestPutGet(t *testing.T) {
	a := openTemp(t)
	c := newClass(t, "A", 1)

	e, err := a.Put(c)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	want, _ := c.Bytes()
	if e.Name != "A" || e.Size != len(want) || e.Major != classfile.DefaultMajor {
		t.Errorf("entry = %+v", e)
	}
	if e.Session != c.Session().String() {
		t.Errorf("session = %q, want %q", e.Session, c.Session())
	}

	got, err := a.Get(e.Hash)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Error("Get returned different bytes")
	}
}

func TestPutIsIdempotent(t *testing.T) {
	a := openTemp(t)
	c := newClass(t, "A", 1)
	first, err := a.Put(c)
	if err != nil {
		t.Fatal(err)
	}
	second, err := a.Put(c)
	if err != nil {
		t.Fatal(err)
	}
	if first.Hash != second.Hash {
		t.Errorf("hashes differ: %s, %s", first.Hash, second.Hash)
	}
	list, err := a.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Errorf("List() has %d entries, want 1", len(list))
	}
}

func TestLatest(t *testing.T) {
	a := openTemp(t)
	for _, c := range []*classfile.Class{newClass(t, "A", 1), newClass(t, "B", 1), newClass(t, "A", 2)} {
		if _, err := a.Put(c); err != nil {
			t.Fatal(err)
		}
	}
	latest, err := a.Latest("A")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	list, _ := a.List()
	if len(list) != 3 {
		t.Fatalf("List() has %d entries, want 3", len(list))
	}
	if latest.Hash != list[2].Hash {
		t.Errorf("Latest(A) = %s, want %s", latest.Hash, list[2].Hash)
	}

	if _, err := a.Latest("Missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Latest(Missing) error = %v, want ErrNotFound", err)
	}
}

func TestGetMissing(t *testing.T) {
	a := openTemp(t)
	if _, err := a.Get("00"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get error = %v, want ErrNotFound", err)
	}
}

func TestReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "classes.db")
	a, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	e, err := a.Put(newClass(t, "A", 3))
	if err != nil {
		t.Fatal(err)
	}
	a.Close()

	b, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if _, err := b.Get(e.Hash); err != nil {
		t.Errorf("Get after reopen: %v", err)
	}
}
