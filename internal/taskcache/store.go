package taskcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// MarkerDirName is the directory under a build dir that holds task markers.
const MarkerDirName = "task-results"

// WarnFunc receives non-fatal diagnostics, such as a marker that could not be
// parsed. The error is always a *Error with CodeReadMarker.
type WarnFunc func(err error)

// WarnTo returns a WarnFunc printing "warning:" lines to w.
func WarnTo(w io.Writer) WarnFunc {
	return func(err error) {
		fmt.Fprintf(w, "warning: %v\n", err)
	}
}

// Store persists one Record per marker hash inside a directory.
type Store struct {
	dir  string
	warn WarnFunc
}

// NewStore creates a Store rooted at dir. warn may be nil.
func NewStore(dir string, warn WarnFunc) *Store {
	return &Store{dir: dir, warn: warn}
}

// ForBuildDir returns a Store at <buildDir>/task-results.
func ForBuildDir(buildDir string, warn WarnFunc) *Store {
	return NewStore(filepath.Join(buildDir, MarkerDirName), warn)
}

// Dir returns the store's marker directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the marker file path for a marker hash.
func (s *Store) Path(markerHash string) string {
	return filepath.Join(s.dir, markerHash)
}

// Exists reports whether a marker file is present at path.
func (s *Store) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Load reads the record at path. It returns nil when the file is missing, and
// also when it cannot be read or parsed, in which case a warning is emitted.
func (s *Store) Load(path string) *Record {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.warnf(path, err)
		}
		return nil
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		s.warnf(path, fmt.Errorf("parse: %w", err))
		return nil
	}
	if rec.HashHex == "" {
		s.warnf(path, fmt.Errorf("missing hash_hex"))
		return nil
	}
	return &rec
}

// Delete removes the marker at path. A missing file is not an error.
func (s *Store) Delete(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// Write replaces the marker at path with rec.
func (s *Store) Write(path string, rec *Record) error {
	return writeJSON(path, rec)
}

// Entry is a marker found in the store.
type Entry struct {
	Path   string
	Record *Record // nil when the marker is unreadable
}

// List returns all markers in the store sorted by path. Unreadable markers are
// included with a nil Record and reported through the warning sink.
func (s *Store) List() ([]Entry, error) {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir %s: %w", s.dir, err)
	}

	var entries []Entry
	for _, f := range files {
		if f.IsDir() || strings.HasPrefix(f.Name(), tmpPrefix) {
			continue
		}
		p := s.Path(f.Name())
		entries = append(entries, Entry{Path: p, Record: s.Load(p)})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Path < entries[j].Path
	})
	return entries, nil
}

// Clean removes the marker directory and everything in it.
func (s *Store) Clean() error {
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("remove %s: %w", s.dir, err)
	}
	return nil
}

func (s *Store) warnf(path string, err error) {
	if s.warn == nil {
		return
	}
	s.warn(&Error{Code: CodeReadMarker, Task: path, Err: err})
}
