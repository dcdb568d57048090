package framework

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/Sumatoshi-tech/jseries/pkg/archive"
)

var (
	// ErrCanceled is returned when a build is canceled before it completes.
	// Errors carrying it also match the context error that caused it.
	ErrCanceled = errors.New("history build canceled")
	// ErrNoVersions is returned for an empty version list.
	ErrNoVersions = errors.New("no versions to build")
	// ErrMissingSource is returned for an input without an archive source.
	ErrMissingSource = errors.New("version has no source")
)

// VersionError is a failure of one version that aborts the build.
type VersionError struct {
	RSN      int
	Label    string
	Location string
	// Entry names the nested archive entry at fault, when known.
	Entry string
	Err   error
}

func newVersionError(rsn int, label, location string, err error) *VersionError {
	ve := &VersionError{RSN: rsn, Label: label, Location: location, Err: err}

	var entryErr *archive.EntryError
	if errors.As(err, &entryErr) {
		ve.Entry = entryErr.Entry
	}

	return ve
}

func (e *VersionError) Error() string {
	name := strconv.Itoa(e.RSN)
	if e.Label != "" {
		name += " (" + e.Label + ")"
	}

	if e.Location != "" {
		name += " at " + e.Location
	}

	return fmt.Sprintf("version %s: %v", name, e.Err)
}

func (e *VersionError) Unwrap() error { return e.Err }

func canceled(ctx context.Context) error {
	cause := context.Cause(ctx)
	if cause == nil {
		cause = context.Canceled
	}

	return fmt.Errorf("%w: %w", ErrCanceled, cause)
}
