package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/chazu/classasm/classfile"
)

func TestLoadManifest(t *testing.T) {
	// Create a temporary directory with a classasm.toml
	dir := t.TempDir()
	tomlContent := `
[class]
major = 50
minor = 3
source-file = "Gen.java"

[log]
verbosity = 2
path = "logs/classasm.log"

[archive]
path = "out/classes.db"
`
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Class.Major != 50 || m.Class.Minor != 3 {
		t.Errorf("class version = %d.%d, want 50.3", m.Class.Major, m.Class.Minor)
	}
	if m.Log.Verbosity != 2 {
		t.Errorf("log verbosity = %d, want 2", m.Log.Verbosity)
	}
	if got, want := m.LogPath(), filepath.Join(m.Dir, "logs", "classasm.log"); got != want {
		t.Errorf("LogPath() = %q, want %q", got, want)
	}
	if got, want := m.ArchivePath(), filepath.Join(m.Dir, "out", "classes.db"); got != want {
		t.Errorf("ArchivePath() = %q, want %q", got, want)
	}

	want := classfile.Options{
		Major:      50,
		Minor:      3,
		Access:     classfile.AccPublic | classfile.AccSuper,
		SourceFile: "Gen.java",
	}
	if diff := cmp.Diff(want, m.ClassOptions()); diff != "" {
		t.Errorf("ClassOptions mismatch (-want +got):\n%s", diff)
	}
}

func TestParseDefaults(t *testing.T) {
	m, err := Parse([]byte("[log]\nverbosity = 1\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if m.Class.Major != classfile.DefaultMajor {
		t.Errorf("class major = %d, want %d", m.Class.Major, classfile.DefaultMajor)
	}
	if m.Archive.Path != filepath.Join(".classasm", "classes.db") {
		t.Errorf("archive path = %q", m.Archive.Path)
	}
	if m.LogPath() != "" {
		t.Errorf("LogPath() = %q, want empty", m.LogPath())
	}
}

func TestParseError(t *testing.T) {
	if _, err := Parse([]byte("[class\nmajor = ")); err == nil {
		t.Error("expected parse error")
	}
	if _, err := Parse([]byte("[class]\nmajor = \"fifty\"\n")); err == nil {
		t.Error("expected type error for string major")
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Error("expected error for missing manifest")
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, FileName), []byte("[class]\nminor = 1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}

	m, err := FindAndLoad(sub)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("expected manifest, got nil")
	}
	want, _ := filepath.Abs(root)
	if m.Dir != want {
		t.Errorf("Dir = %q, want %q", m.Dir, want)
	}
	if m.Class.Minor != 1 {
		t.Errorf("class minor = %d, want 1", m.Class.Minor)
	}
}

func TestFindAndLoadNone(t *testing.T) {
	m, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m != nil {
		t.Errorf("expected nil manifest, got %+v", m)
	}
}
