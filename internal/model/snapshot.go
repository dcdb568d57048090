package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrFrozen is returned when mutating a published snapshot or history.
var ErrFrozen = errors.New("model is frozen")

// Snapshot is one version of the product: the class records extracted from
// its archive plus the tombstones carried forward by the matcher.
//
// Once frozen, record accessors hand out copies, so callers cannot reach the
// records the cached aggregates were computed from.
type Snapshot struct {
	rsn       int
	label     string
	timestamp time.Time

	classes    map[string]*ClassRecord
	frozen     bool
	aggregates *[NumVersionMetrics]int64
}

// NewSnapshot creates an empty, mutable snapshot.
func NewSnapshot(rsn int, label string, timestamp time.Time) *Snapshot {
	return &Snapshot{
		rsn:       rsn,
		label:     label,
		timestamp: timestamp,
		classes:   map[string]*ClassRecord{},
	}
}

// RSN returns the 1-based release sequence number.
func (s *Snapshot) RSN() int { return s.rsn }

// Label returns the version label.
func (s *Snapshot) Label() string { return s.label }

// Timestamp returns the release time.
func (s *Snapshot) Timestamp() time.Time { return s.timestamp }

// Put inserts or replaces a record keyed by its identity. It reports whether
// an existing record was replaced.
func (s *Snapshot) Put(r *ClassRecord) (bool, error) {
	if s.frozen {
		return false, fmt.Errorf("snapshot %d: %w", s.rsn, ErrFrozen)
	}

	_, replaced := s.classes[r.Name]
	s.classes[r.Name] = r

	return replaced, nil
}

// Class looks up a record by identity. A frozen snapshot returns a copy.
func (s *Snapshot) Class(name string) (*ClassRecord, bool) {
	r, ok := s.classes[name]
	if !ok {
		return nil, false
	}

	return s.expose(r), true
}

func (s *Snapshot) expose(r *ClassRecord) *ClassRecord {
	if s.frozen {
		return r.Clone()
	}

	return r
}

// Len returns the number of records, tombstones included.
func (s *Snapshot) Len() int { return len(s.classes) }

// Names returns every identity in sorted order, tombstones included.
func (s *Snapshot) Names() []string {
	out := make([]string, 0, len(s.classes))
	for name := range s.classes {
		out = append(out, name)
	}

	sort.Strings(out)

	return out
}

// Classes returns every record sorted by identity, tombstones included.
// A frozen snapshot returns copies.
func (s *Snapshot) Classes() []*ClassRecord {
	return s.collect(func(*ClassRecord) bool { return true })
}

// Live returns records present in this version, sorted by identity.
// A frozen snapshot returns copies.
func (s *Snapshot) Live() []*ClassRecord {
	return s.collect((*ClassRecord).Live)
}

func (s *Snapshot) collect(keep func(*ClassRecord) bool) []*ClassRecord {
	var out []*ClassRecord

	for _, name := range s.Names() {
		if r := s.classes[name]; keep(r) {
			out = append(out, s.expose(r))
		}
	}

	return out
}

// each visits the stored records in identity order without copying.
func (s *Snapshot) each(fn func(*ClassRecord)) {
	for _, name := range s.Names() {
		fn(s.classes[name])
	}
}

// Frozen reports whether the snapshot is read-only.
func (s *Snapshot) Frozen() bool { return s.frozen }

// Freeze makes the snapshot read-only and caches its aggregates.
func (s *Snapshot) Freeze() {
	if s.frozen {
		return
	}

	agg := s.computeAggregates()
	s.aggregates = &agg
	s.frozen = true
}

// Metric returns a version-level aggregate.
func (s *Snapshot) Metric(m VersionMetric) int64 {
	if s.aggregates != nil {
		return s.aggregates[m]
	}

	agg := s.computeAggregates()

	return agg[m]
}

// Get resolves a version metric by identifier.
func (s *Snapshot) Get(name string) (MetricValue, error) {
	m, err := ParseVersionMetric(name)
	if err != nil {
		return MetricValue{}, err
	}

	return IntValue(s.Metric(m)), nil
}

// Sum adds a class counter over the live records.
func (s *Snapshot) Sum(m ClassMetric) (float64, error) {
	if m.Kind() == KindProperty {
		return 0, fmt.Errorf("%w: %s is not numeric", ErrUnknownMetric, m)
	}

	var total float64

	for _, r := range s.classes {
		if !r.Live() {
			continue
		}

		v, _ := r.Value(m).Number()
		total += v
	}

	return total, nil
}

func (s *Snapshot) computeAggregates() [NumVersionMetrics]int64 {
	var agg [NumVersionMetrics]int64

	for _, r := range s.classes {
		if !r.Live() {
			if r.DeletedRSN == s.rsn {
				agg[VersionDeletedClassCount]++
			}

			continue
		}

		agg[VersionClassCount]++
		agg[VersionInterfaceCount] += r.Counters[ClassIsInterface]
		agg[VersionPublicClassCount] += r.Counters[ClassIsPublic]
		agg[VersionMethodCount] += r.Counters[ClassMethodCount]
		agg[VersionFieldCount] += r.Counters[ClassFieldCount]
		agg[VersionInstructionCount] += r.Counters[ClassInstructionCount]
		agg[VersionBranchCount] += r.Counters[ClassBranchCount]

		if r.Counters[ClassIsAbstract] != 0 && r.Counters[ClassIsInterface] == 0 {
			agg[VersionAbstractClassCount]++
		}

		if strings.Contains(r.ShortName, "$") {
			agg[VersionInnerClassCount]++
		}

		switch r.Status {
		case StatusNew:
			agg[VersionNewClassCount]++
		case StatusUnchanged:
			agg[VersionUnchangedClassCount]++
		case StatusModified:
			agg[VersionModifiedClassCount]++
		}
	}

	return agg
}
