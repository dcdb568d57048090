// Package archive enumerates class-file entries of one product version:
// a directory tree, a JAR/ZIP/WAR/EAR file, or an in-memory set of files.
// Archives nested inside archives (or found inside directories) are
// expanded in place.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"
)

// Sentinel errors.
var (
	// ErrUnreadable marks a version input that cannot be opened or walked.
	ErrUnreadable = errors.New("archive unreadable")
	// ErrUnsupported marks a path that is neither a directory, an archive nor a class file.
	ErrUnsupported = errors.New("unsupported archive type")
)

// EntryError names the entry that made a whole input unreadable.
type EntryError struct {
	Entry string
	Err   error
}

func (e *EntryError) Error() string { return e.Entry + ": " + e.Err.Error() }

func (e *EntryError) Unwrap() error { return e.Err }

// NestedSeparator joins an outer archive entry and an entry inside it.
const NestedSeparator = "!/"

// Entry is one named member of a version input.
type Entry struct {
	// Name is the slash-separated path within the input. Entries of nested
	// archives are prefixed by the nested archive name and NestedSeparator.
	Name     string
	Modified time.Time
	Size     int64

	open func() (io.ReadCloser, error)
}

// NewEntry builds an entry backed by an open function.
func NewEntry(name string, modified time.Time, size int64, open func() (io.ReadCloser, error)) Entry {
	return Entry{Name: name, Modified: modified, Size: size, open: open}
}

// Open returns a fresh stream over the entry content. The caller closes it.
func (e Entry) Open() (io.ReadCloser, error) {
	if e.open == nil {
		return nil, fmt.Errorf("entry %s: no content", e.Name)
	}

	return e.open()
}

// WalkFunc receives each entry in turn. Returning an error stops the walk.
type WalkFunc func(Entry) error

// Source enumerates the entries of one version input.
type Source interface {
	// Walk calls fn for each entry in a stable order. It stops early when ctx
	// is canceled and returns ctx.Err().
	Walk(ctx context.Context, fn WalkFunc) error
	// Location describes the input for logs and errors.
	Location() string
}

// Open inspects path and returns the matching filtered source.
func Open(p string, opts Options) (Source, error) {
	filter, err := NewFilter(opts)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}

	var src Source

	switch {
	case info.IsDir():
		src = NewDir(p)
	case IsArchiveName(p):
		src = NewZip(p)
	case strings.HasSuffix(strings.ToLower(p), ClassSuffix):
		src = NewFile(p)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, p)
	}

	return Filtered(src, filter), nil
}

// IsArchiveName reports whether the name carries a ZIP-family extension.
func IsArchiveName(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".jar", ".zip", ".war", ".ear":
		return true
	default:
		return false
	}
}

// Filtered wraps src so that only entries accepted by f are visited.
func Filtered(src Source, f *Filter) Source {
	return &filtered{src: src, filter: f}
}

type filtered struct {
	src    Source
	filter *Filter
}

func (f *filtered) Walk(ctx context.Context, fn WalkFunc) error {
	return f.src.Walk(ctx, func(e Entry) error {
		if !f.filter.Match(e.Name) {
			return nil
		}

		return fn(e)
	})
}

func (f *filtered) Location() string { return f.src.Location() }
