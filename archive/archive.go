// Package archive stores assembled classes in a SQLite database, keyed by
// the SHA-256 of their bytes.
package archive

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/chazu/classasm/classfile"
)

var log = commonlog.GetLogger("classasm.archive")

// ---------------------------------------------------------------------------
// Archive Errors
// ---------------------------------------------------------------------------

var (
	ErrNotFound = errors.New("class not found")
	ErrCorrupt  = errors.New("stored class does not match its hash")
)

const schema = `
CREATE TABLE IF NOT EXISTS classes (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	hash       TEXT NOT NULL UNIQUE,
	name       TEXT NOT NULL,
	major      INTEGER NOT NULL,
	minor      INTEGER NOT NULL,
	session    TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	data       BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS classes_name ON classes(name, seq);
`

// Entry describes a stored class.
type Entry struct {
	Hash    string
	Name    string
	Major   uint16
	Minor   uint16
	Session string
	Size    int
	Created time.Time
}

// Archive is a content-addressed class store. It is safe for concurrent
// use.
type Archive struct {
	db *sql.DB
}

// Open opens or creates the archive at path.
func Open(path string) (*Archive, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("archive: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("archive: failed to open %s: %w", path, err)
	}
	// One writer at a time; SQLite locks the file anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive: failed to ping %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive: schema: %w", err)
	}
	log.Infof("archive opened at %s", path)
	return &Archive{db: db}, nil
}

// Close closes the database.
func (a *Archive) Close() error {
	return a.db.Close()
}

// Put stores c's bytes. Storing an identical class again is a no-op that
// returns the existing entry.
func (a *Archive) Put(c *classfile.Class) (Entry, error) {
	data, err := c.Bytes()
	if err != nil {
		return Entry{}, err
	}
	sum := sha256.Sum256(data)
	major, minor := c.Version()
	e := Entry{
		Hash:    hex.EncodeToString(sum[:]),
		Name:    c.Name(),
		Major:   major,
		Minor:   minor,
		Session: c.Session().String(),
		Size:    len(data),
		Created: time.Now().UTC().Truncate(time.Second),
	}

	res, err := a.db.Exec(
		`INSERT OR IGNORE INTO classes (hash, name, major, minor, session, created_at, data)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Hash, e.Name, e.Major, e.Minor, e.Session, e.Created.Unix(), data)
	if err != nil {
		return Entry{}, fmt.Errorf("archive: put %s: %w", e.Name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		log.Debugf("%s already archived as %s", e.Name, e.Hash)
		return a.entry(`WHERE hash = ?`, e.Hash)
	}
	log.Infof("archived %s (%d bytes) as %s", e.Name, e.Size, e.Hash)
	return e, nil
}

// Get returns the bytes stored under hash, checking them against it.
func (a *Archive) Get(hash string) ([]byte, error) {
	var data []byte
	err := a.db.QueryRow(`SELECT data FROM classes WHERE hash = ?`, hash).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("archive: %w: %s", ErrNotFound, hash)
	}
	if err != nil {
		return nil, fmt.Errorf("archive: get %s: %w", hash, err)
	}
	if sum := sha256.Sum256(data); hex.EncodeToString(sum[:]) != hash {
		return nil, fmt.Errorf("archive: %w: %s", ErrCorrupt, hash)
	}
	return data, nil
}

// Latest returns the most recently stored class with the given name.
func (a *Archive) Latest(name string) (Entry, error) {
	return a.entry(`WHERE name = ? ORDER BY seq DESC LIMIT 1`, name)
}

// List returns every entry in storage order.
func (a *Archive) List() ([]Entry, error) {
	rows, err := a.db.Query(`SELECT ` + entryColumns + ` FROM classes ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("archive: list: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("archive: list: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

const entryColumns = `hash, name, major, minor, session, length(data), created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var e Entry
	var created int64
	if err := s.Scan(&e.Hash, &e.Name, &e.Major, &e.Minor, &e.Session, &e.Size, &created); err != nil {
		return Entry{}, err
	}
	e.Created = time.Unix(created, 0).UTC()
	return e, nil
}

func (a *Archive) entry(where string, arg any) (Entry, error) {
	e, err := scanEntry(a.db.QueryRow(`SELECT `+entryColumns+` FROM classes `+where, arg))
	if err == sql.ErrNoRows {
		return Entry{}, fmt.Errorf("archive: %w: %v", ErrNotFound, arg)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("archive: %w", err)
	}
	return e, nil
}
