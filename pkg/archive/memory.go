package archive

import (
	"bytes"
	"context"
	"io"
	"time"
)

// MemoryFile is one in-memory entry.
type MemoryFile struct {
	Name     string
	Modified time.Time
	Data     []byte
}

// Memory is a source over in-memory files, visited in the given order.
type Memory struct {
	name  string
	files []MemoryFile
}

// NewMemory returns an in-memory source.
func NewMemory(name string, files ...MemoryFile) *Memory {
	return &Memory{name: name, files: files}
}

// Location returns the source name.
func (m *Memory) Location() string { return m.name }

// Walk implements Source.
func (m *Memory) Walk(ctx context.Context, fn WalkFunc) error {
	for _, f := range m.files {
		if err := ctx.Err(); err != nil {
			return err
		}

		data := f.Data

		entry := NewEntry(f.Name, f.Modified, int64(len(data)), func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		})

		if err := fn(entry); err != nil {
			return err
		}
	}

	return nil
}
