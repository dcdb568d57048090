package archive

import (
	"fmt"
	"path"
	"strings"

	"github.com/gobwas/glob"
)

// ClassSuffix is the extension of class-file entries.
const ClassSuffix = ".class"

// Options controls which entries a source yields.
type Options struct {
	// IncludeInner keeps nested and inner classes (names containing '$').
	IncludeInner bool
	// Include, when non-empty, keeps only entries matching one of the globs.
	Include []string
	// Exclude drops entries matching any of the globs.
	Exclude []string
}

// Filter decides which entry names are program classes worth decoding.
type Filter struct {
	includeInner bool
	include      []glob.Glob
	exclude      []glob.Glob
}

// NewFilter compiles the glob patterns of opts. Patterns use '/' as separator.
func NewFilter(opts Options) (*Filter, error) {
	include, err := compileGlobs(opts.Include)
	if err != nil {
		return nil, err
	}

	exclude, err := compileGlobs(opts.Exclude)
	if err != nil {
		return nil, err
	}

	return &Filter{includeInner: opts.IncludeInner, include: include, exclude: exclude}, nil
}

func compileGlobs(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))

	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid entry pattern %q: %w", p, err)
		}

		globs = append(globs, g)
	}

	return globs, nil
}

// Match reports whether the entry should be decoded.
func (f *Filter) Match(name string) bool {
	base := path.Base(name)
	if !strings.HasSuffix(strings.ToLower(base), ClassSuffix) {
		return false
	}

	switch strings.TrimSuffix(base, ClassSuffix) {
	case "module-info", "package-info":
		return false
	}

	if !f.includeInner && strings.Contains(base, "$") {
		return false
	}

	inner := name
	if idx := strings.LastIndex(name, NestedSeparator); idx >= 0 {
		inner = name[idx+len(NestedSeparator):]
	}

	if len(f.include) > 0 && !matchAny(f.include, name, inner) {
		return false
	}

	return !matchAny(f.exclude, name, inner)
}

func matchAny(globs []glob.Glob, names ...string) bool {
	for _, g := range globs {
		for _, n := range names {
			if g.Match(n) {
				return true
			}
		}
	}

	return false
}
