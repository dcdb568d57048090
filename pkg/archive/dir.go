package archive

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Dir walks a directory tree in lexical order. Archive files found in the
// tree are expanded as nested archives.
type Dir struct {
	root string
}

// NewDir returns a directory source.
func NewDir(root string) *Dir { return &Dir{root: root} }

// Location returns the root directory.
func (d *Dir) Location() string { return d.root }

// Walk implements Source.
func (d *Dir) Walk(ctx context.Context, fn WalkFunc) error {
	err := filepath.WalkDir(d.root, func(p string, de fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return fmt.Errorf("%w: %w", ErrUnreadable, walkErr)
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		if de.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(d.root, p)
		if err != nil {
			return err
		}

		rel = filepath.ToSlash(rel)

		info, err := de.Info()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrUnreadable, err)
		}

		if IsArchiveName(rel) {
			return walkZipFile(ctx, p, rel+NestedSeparator, fn)
		}

		return fn(NewEntry(rel, info.ModTime(), info.Size(), func() (io.ReadCloser, error) {
			return os.Open(p)
		}))
	})

	return err
}

// File is a source holding a single class file.
type File struct {
	path string
}

// NewFile returns a single-file source.
func NewFile(p string) *File { return &File{path: p} }

// Location returns the file path.
func (f *File) Location() string { return f.path }

// Walk implements Source.
func (f *File) Walk(ctx context.Context, fn WalkFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	info, err := os.Stat(f.path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnreadable, err)
	}

	return fn(NewEntry(filepath.Base(f.path), info.ModTime(), info.Size(), func() (io.ReadCloser, error) {
		return os.Open(f.path)
	}))
}
