package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Sumatoshi-tech/jseries/pkg/archive"
)

// ErrEmptyVersions is returned when no version could be read from the input.
var ErrEmptyVersions = errors.New("no versions listed")

// VersionSpec is one line of a versions file.
type VersionSpec struct {
	Label     string
	Path      string
	Timestamp time.Time
}

// ParseVersionsFile reads one version per line: "path", "label path" or
// "label path timestamp". Blank lines and text after '#' are ignored.
// Relative paths are resolved against baseDir.
func ParseVersionsFile(r io.Reader, baseDir string) ([]VersionSpec, error) {
	var specs []VersionSpec

	sc := bufio.NewScanner(r)
	lineNo := 0

	for sc.Scan() {
		lineNo++

		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		spec, err := parseVersionLine(fields)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}

		if !filepath.IsAbs(spec.Path) && baseDir != "" {
			spec.Path = filepath.Join(baseDir, spec.Path)
		}

		specs = append(specs, spec)
	}

	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read versions: %w", err)
	}

	if len(specs) == 0 {
		return nil, ErrEmptyVersions
	}

	return specs, nil
}

func parseVersionLine(fields []string) (VersionSpec, error) {
	switch len(fields) {
	case 1:
		return VersionSpec{Label: labelFromPath(fields[0]), Path: fields[0]}, nil
	case 2:
		return VersionSpec{Label: fields[0], Path: fields[1]}, nil
	case 3:
		ts, err := parseTimestamp(fields[2])
		if err != nil {
			return VersionSpec{}, err
		}

		return VersionSpec{Label: fields[0], Path: fields[1], Timestamp: ts}, nil
	default:
		return VersionSpec{}, fmt.Errorf("expected at most 3 fields, got %d", len(fields))
	}
}

func parseTimestamp(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}

	ts, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q is neither RFC3339 nor a date", s)
	}

	return ts, nil
}

// labelFromPath derives a version label from an archive or directory name.
func labelFromPath(p string) string {
	base := filepath.Base(filepath.Clean(p))
	if archive.IsArchiveName(base) {
		base = strings.TrimSuffix(base, filepath.Ext(base))
	}

	return base
}

// resolveVersions turns command arguments into version specs. A single
// argument that is a plain file but not an archive is a versions file;
// otherwise every argument is an archive or class directory.
func resolveVersions(args []string) ([]VersionSpec, string, error) {
	if len(args) == 1 && !archive.IsArchiveName(args[0]) {
		info, err := os.Stat(args[0])
		if err != nil {
			return nil, "", err
		}

		if info.Mode().IsRegular() {
			f, err := os.Open(args[0])
			if err != nil {
				return nil, "", err
			}
			defer f.Close()

			specs, err := ParseVersionsFile(f, filepath.Dir(args[0]))
			if err != nil {
				return nil, "", fmt.Errorf("%s: %w", args[0], err)
			}

			return specs, labelFromPath(strings.TrimSuffix(args[0], filepath.Ext(args[0]))), nil
		}
	}

	specs := make([]VersionSpec, 0, len(args))
	for _, a := range args {
		specs = append(specs, VersionSpec{Label: labelFromPath(a), Path: a})
	}

	if len(specs) == 0 {
		return nil, "", ErrEmptyVersions
	}

	return specs, productFromLabel(specs[0].Label), nil
}

// productFromLabel strips a trailing "-<version>" from an archive label.
func productFromLabel(label string) string {
	i := strings.LastIndexByte(label, '-')
	if i > 0 && i+1 < len(label) && label[i+1] >= '0' && label[i+1] <= '9' {
		return label[:i]
	}

	return label
}
