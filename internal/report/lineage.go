package report

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/Sumatoshi-tech/jseries/internal/model"
)

// ErrUnknownClass is returned when a class never appears in the history.
var ErrUnknownClass = errors.New("class not found in history")

// LineageOptions controls lineage rendering.
type LineageOptions struct {
	// Color enables ANSI colors for statuses and diff lines.
	Color bool
}

type palette struct {
	status  map[model.Status]*color.Color
	added   *color.Color
	removed *color.Color
	header  *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		status: map[model.Status]*color.Color{
			model.StatusNew:       color.New(color.FgBlue, color.Bold),
			model.StatusUnchanged: color.New(color.FgGreen),
			model.StatusModified:  color.New(color.FgYellow),
			model.StatusDeleted:   color.New(color.FgRed),
		},
		added:   color.New(color.FgGreen),
		removed: color.New(color.FgRed),
		header:  color.New(color.Bold),
	}

	all := []*color.Color{p.added, p.removed, p.header}
	for _, c := range p.status {
		all = append(all, c)
	}

	for _, c := range all {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}

	return p
}

func (p palette) statusText(s model.Status) string {
	if c, ok := p.status[s]; ok {
		return c.Sprint(s.String())
	}

	return s.String()
}

// WriteLineage prints every observation of a class with its evolution
// fields and the method signatures added or removed since the previous
// observation.
func WriteLineage(w io.Writer, h *model.History, class string, o LineageOptions) error {
	lineage := h.Lineage(class)
	if len(lineage) == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownClass, class)
	}

	p := newPalette(o.Color)

	if _, err := p.header.Fprintf(w, "%s (%s)\n", class, h.Product()); err != nil {
		return err
	}

	var prev []string

	for _, e := range lineage {
		r := e.Record

		if _, err := fmt.Fprintf(w, "  %3d %-12s %-9s age=%d modified=%d distance=%d\n",
			e.RSN, e.Label, p.statusText(r.Status), r.Age, r.ModificationFrequency, r.Distance); err != nil {
			return err
		}

		cur := r.MethodSignatures()
		if r.Status == model.StatusDeleted {
			cur = prev
		}

		for _, line := range SignatureDiff(prev, cur) {
			c := p.added
			if strings.HasPrefix(line, "-") {
				c = p.removed
			}

			if _, err := c.Fprintf(w, "        %s\n", line); err != nil {
				return err
			}
		}

		prev = cur
	}

	return nil
}

// SignatureDiff returns "+ sig" and "- sig" lines turning prev into cur.
// Both inputs must be sorted.
func SignatureDiff(prev, cur []string) []string {
	dmp := diffmatchpatch.New()

	a, b, lines := dmp.DiffLinesToChars(joinLines(prev), joinLines(cur))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var out []string

	for _, d := range diffs {
		var prefix string

		switch d.Type {
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		case diffmatchpatch.DiffEqual:
			continue
		}

		for sig := range strings.SplitSeq(strings.TrimSuffix(d.Text, "\n"), "\n") {
			out = append(out, prefix+sig)
		}
	}

	return out
}

func joinLines(items []string) string {
	if len(items) == 0 {
		return ""
	}

	return strings.Join(items, "\n") + "\n"
}
