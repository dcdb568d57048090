package persist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// SaveState writes state to dir/basename+ext. The file is written to a
// temporary name first and renamed into place, so readers never observe a
// partial file.
func SaveState(dir, basename string, codec Codec, state any) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	path := filepath.Join(dir, basename+codec.Extension())

	tmp, err := os.CreateTemp(dir, basename+".*.tmp")
	if err != nil {
		return fmt.Errorf("create state file: %w", err)
	}

	encErr := codec.Encode(tmp, state)
	closeErr := tmp.Close()

	if err := errors.Join(encErr, closeErr); err != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("encode state: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("rename state file: %w", err)
	}

	return nil
}

// LoadState reads dir/basename+ext into state, which must be a pointer.
// A missing file yields an error matching os.ErrNotExist.
func LoadState(dir, basename string, codec Codec, state any) error {
	file, err := os.Open(filepath.Join(dir, basename+codec.Extension()))
	if err != nil {
		return fmt.Errorf("open state file: %w", err)
	}
	defer file.Close()

	if err := codec.Decode(file, state); err != nil {
		return fmt.Errorf("decode state: %w", err)
	}

	return nil
}

// Persister handles I/O for one state type in one directory.
type Persister[T any] struct {
	dir   string
	codec Codec
}

// NewPersister creates a persister rooted at dir.
func NewPersister[T any](dir string, codec Codec) *Persister[T] {
	return &Persister[T]{dir: dir, codec: codec}
}

// Save writes state under name.
func (p *Persister[T]) Save(name string, state *T) error {
	return SaveState(p.dir, name, p.codec, state)
}

// Load reads the state stored under name.
func (p *Persister[T]) Load(name string) (*T, error) {
	var state T

	if err := LoadState(p.dir, name, p.codec, &state); err != nil {
		return nil, err
	}

	return &state, nil
}

// Path is the file that holds name.
func (p *Persister[T]) Path(name string) string {
	return filepath.Join(p.dir, name+p.codec.Extension())
}
