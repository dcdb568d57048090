package model

import (
	"errors"
	"fmt"
	"sort"
)

// ErrRSNGap is returned when a snapshot would break RSN contiguity.
var ErrRSNGap = errors.New("release sequence numbers must be contiguous from 1")

// AdvisoryKind classifies non-fatal conditions recorded during a build.
type AdvisoryKind string

// Advisory kinds.
const (
	AdvisoryDecodeFailure AdvisoryKind = "decode_failure"
	AdvisoryDuplicate     AdvisoryKind = "duplicate_identity"
	AdvisoryRebirth       AdvisoryKind = "rebirth"
)

// Advisory is a non-fatal condition observed while building a history.
type Advisory struct {
	Kind    AdvisoryKind `json:"kind" yaml:"kind"`
	RSN     int          `json:"rsn" yaml:"rsn"`
	Label   string       `json:"label" yaml:"label"`
	Entry   string       `json:"entry,omitempty" yaml:"entry,omitempty"`
	Class   string       `json:"class,omitempty" yaml:"class,omitempty"`
	Message string       `json:"message" yaml:"message"`
}

// SortAdvisories orders advisories by RSN, entry, class, then kind.
func SortAdvisories(advisories []Advisory) {
	sort.SliceStable(advisories, func(i, j int) bool {
		a, b := advisories[i], advisories[j]
		if a.RSN != b.RSN {
			return a.RSN < b.RSN
		}

		if a.Entry != b.Entry {
			return a.Entry < b.Entry
		}

		if a.Class != b.Class {
			return a.Class < b.Class
		}

		return a.Kind < b.Kind
	})
}

// History is the ordered sequence of snapshots of one product.
type History struct {
	product    string
	versions   []*Snapshot
	advisories []Advisory
	frozen     bool
}

// NewHistory creates an empty, mutable history.
func NewHistory(product string) *History {
	return &History{product: product}
}

// Append adds the next snapshot. Its RSN must be exactly Len()+1.
func (h *History) Append(s *Snapshot) error {
	if h.frozen {
		return fmt.Errorf("history %q: %w", h.product, ErrFrozen)
	}

	if want := len(h.versions) + 1; s.rsn != want {
		return fmt.Errorf("%w: got %d, want %d", ErrRSNGap, s.rsn, want)
	}

	h.versions = append(h.versions, s)

	return nil
}

// AddAdvisories records non-fatal conditions.
func (h *History) AddAdvisories(advisories ...Advisory) error {
	if h.frozen {
		return fmt.Errorf("history %q: %w", h.product, ErrFrozen)
	}

	h.advisories = append(h.advisories, advisories...)

	return nil
}

// Freeze makes the history and every snapshot read-only.
func (h *History) Freeze() {
	for _, s := range h.versions {
		s.Freeze()
	}

	SortAdvisories(h.advisories)
	h.frozen = true
}

// Product returns the product name.
func (h *History) Product() string { return h.product }

// Frozen reports whether the history is read-only.
func (h *History) Frozen() bool { return h.frozen }

// Len returns the number of versions.
func (h *History) Len() int { return len(h.versions) }

// Version returns the snapshot at a 1-based RSN.
func (h *History) Version(rsn int) (*Snapshot, bool) {
	if rsn < 1 || rsn > len(h.versions) {
		return nil, false
	}

	return h.versions[rsn-1], true
}

// Versions returns the snapshots in RSN order.
func (h *History) Versions() []*Snapshot {
	return append([]*Snapshot(nil), h.versions...)
}

// Latest returns the last snapshot, or nil for an empty history.
func (h *History) Latest() *Snapshot {
	if len(h.versions) == 0 {
		return nil
	}

	return h.versions[len(h.versions)-1]
}

// Advisories returns the recorded advisories.
func (h *History) Advisories() []Advisory {
	return append([]Advisory(nil), h.advisories...)
}

// LineageEntry is one observation of a class identity.
type LineageEntry struct {
	RSN    int
	Label  string
	Record *ClassRecord
}

// Lineage returns every snapshot's record for an identity, in RSN order.
// Versions where the identity has no record are omitted.
func (h *History) Lineage(name string) []LineageEntry {
	var out []LineageEntry

	for _, s := range h.versions {
		if r, ok := s.Class(name); ok {
			out = append(out, LineageEntry{RSN: s.rsn, Label: s.label, Record: r})
		}
	}

	return out
}
