package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/klauspost/compress/zip"
)

// maxNestedArchive bounds the size of an archive read into memory for
// nested expansion.
const maxNestedArchive = 512 << 20

// Zip walks a JAR/ZIP/WAR/EAR file in central-directory order.
type Zip struct {
	path string
}

// NewZip returns a ZIP-family archive source.
func NewZip(p string) *Zip { return &Zip{path: p} }

// Location returns the archive path.
func (z *Zip) Location() string { return z.path }

// Walk implements Source.
func (z *Zip) Walk(ctx context.Context, fn WalkFunc) error {
	return walkZipFile(ctx, z.path, "", fn)
}

func walkZipFile(ctx context.Context, p, prefix string, fn WalkFunc) error {
	rc, err := zip.OpenReader(p)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnreadable, p, err)
	}
	defer rc.Close()

	return walkZipReader(ctx, &rc.Reader, prefix, fn)
}

func walkZipReader(ctx context.Context, zr *zip.Reader, prefix string, fn WalkFunc) error {
	for _, file := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}

		if file.FileInfo().IsDir() {
			continue
		}

		name := prefix + file.Name

		if IsArchiveName(file.Name) {
			if err := walkNested(ctx, file, prefix, fn); err != nil {
				return err
			}

			continue
		}

		f := file

		entry := NewEntry(name, f.Modified, int64(f.UncompressedSize64), func() (io.ReadCloser, error) {
			return f.Open()
		})

		if err := fn(entry); err != nil {
			return err
		}
	}

	return nil
}

func walkNested(ctx context.Context, file *zip.File, prefix string, fn WalkFunc) error {
	name := prefix + file.Name

	if file.UncompressedSize64 > maxNestedArchive {
		return &EntryError{Entry: name, Err: fmt.Errorf("%w: nested archive exceeds %d bytes", ErrUnreadable, maxNestedArchive)}
	}

	rc, err := file.Open()
	if err != nil {
		return &EntryError{Entry: name, Err: fmt.Errorf("%w: %w", ErrUnreadable, err)}
	}

	data, err := io.ReadAll(rc)
	rc.Close()

	if err != nil {
		return &EntryError{Entry: name, Err: fmt.Errorf("%w: %w", ErrUnreadable, err)}
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return &EntryError{Entry: name, Err: fmt.Errorf("%w: %w", ErrUnreadable, err)}
	}

	return walkZipReader(ctx, zr, name+NestedSeparator, fn)
}
