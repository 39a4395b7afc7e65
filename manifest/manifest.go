// Package manifest handles classasm.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/classasm/classfile"
)

// FileName is the manifest file looked up by Load and FindAndLoad.
const FileName = "classasm.toml"

var log = commonlog.GetLogger("classasm.manifest")

// Manifest represents a classasm.toml configuration.
type Manifest struct {
	Class   ClassConfig   `toml:"class"`
	Log     LogConfig     `toml:"log"`
	Archive ArchiveConfig `toml:"archive"`

	// Dir is the directory containing the classasm.toml file (set at load time).
	Dir string `toml:"-"`
}

// ClassConfig sets defaults for every class assembled under this manifest.
type ClassConfig struct {
	Major      uint16 `toml:"major"`
	Minor      uint16 `toml:"minor"`
	SourceFile string `toml:"source-file"`
}

// LogConfig configures commonlog.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	Path      string `toml:"path"`
}

// ArchiveConfig locates the class archive database.
type ArchiveConfig struct {
	Path string `toml:"path"`
}

// Parse decodes manifest text and applies defaults. Dir is left empty.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		log.Warningf("ignoring unknown manifest keys: %v", undecoded)
	}

	// Defaults
	if m.Class.Major == 0 {
		m.Class.Major = classfile.DefaultMajor
	}
	if m.Archive.Path == "" {
		m.Archive.Path = filepath.Join(".classasm", "classes.db")
	}
	return &m, nil
}

// Load parses a classasm.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return m, nil
}

// FindAndLoad walks up from startDir to find a classasm.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// ClassOptions returns the options for a public class under this manifest.
func (m *Manifest) ClassOptions() classfile.Options {
	opts := classfile.DefaultOptions()
	opts.Major = m.Class.Major
	opts.Minor = m.Class.Minor
	opts.SourceFile = m.Class.SourceFile
	return opts
}

// ArchivePath returns the archive database path, resolved against Dir.
func (m *Manifest) ArchivePath() string {
	if filepath.IsAbs(m.Archive.Path) || m.Dir == "" {
		return m.Archive.Path
	}
	return filepath.Join(m.Dir, m.Archive.Path)
}

// LogPath returns the log file path resolved against Dir, or "" for stderr.
func (m *Manifest) LogPath() string {
	if m.Log.Path == "" || filepath.IsAbs(m.Log.Path) || m.Dir == "" {
		return m.Log.Path
	}
	return filepath.Join(m.Dir, m.Log.Path)
}

// ConfigureLogging applies the [log] section to commonlog.
func (m *Manifest) ConfigureLogging() {
	var path *string
	if p := m.LogPath(); p != "" {
		path = &p
	}
	commonlog.Configure(m.Log.Verbosity, path)
}
