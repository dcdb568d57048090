package model

import (
	"fmt"
	"strings"
)

// Status is the evolution status of a class identity between two
// consecutive versions.
type Status uint8

// Evolution statuses. The zero value marks a record not yet matched.
const (
	StatusUnmatched Status = iota
	StatusNew
	StatusUnchanged
	StatusModified
	StatusDeleted
)

var statusNames = [...]string{
	StatusUnmatched: "UNMATCHED",
	StatusNew:       "NEW",
	StatusUnchanged: "UNCHANGED",
	StatusModified:  "MODIFIED",
	StatusDeleted:   "DELETED",
}

// String returns the upper-case status name.
func (s Status) String() string {
	if int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", s)
	}

	return statusNames[s]
}

// ParseStatus parses a status name case-insensitively.
func ParseStatus(s string) (Status, error) {
	for i, name := range statusNames {
		if strings.EqualFold(name, s) {
			return Status(i), nil
		}
	}

	return StatusUnmatched, fmt.Errorf("unknown evolution status %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}

	*s = parsed

	return nil
}

// ClassRecord is the metric record of one class within one version.
//
// Records are built by the extractor, annotated in place by the evolution
// matcher and read-only once their snapshot is frozen.
type ClassRecord struct {
	// Name is the fully-qualified binary name and the identity key.
	Name       string
	ShortName  string
	Package    string
	SuperClass string

	Interfaces   []string
	Dependencies []string

	Counters ClassCounters
	Methods  map[string]*MethodRecord

	BornRSN               int
	Age                   int
	ModificationFrequency int
	Distance              int
	DeletedRSN            int
	Status                Status
}

// NewClassRecord returns an empty record for the given identity with the
// short and package names derived from it.
func NewClassRecord(name string) *ClassRecord {
	pkg, short := SplitName(name)

	return &ClassRecord{
		Name:      name,
		ShortName: short,
		Package:   pkg,
		Methods:   map[string]*MethodRecord{},
	}
}

// SplitName splits "a.b.C" into "a.b" and "C".
func SplitName(name string) (pkg, short string) {
	idx := strings.LastIndexByte(name, '.')
	if idx < 0 {
		return "", name
	}

	return name[:idx], name[idx+1:]
}

// Value returns any class metric as a tagged value.
func (r *ClassRecord) Value(m ClassMetric) MetricValue {
	switch {
	case m.IsCounter():
		return IntValue(r.Counters[m])
	case m == ClassLoadRatio:
		return FloatValue(r.LoadRatio())
	}

	switch m {
	case ClassBornRSN:
		return IntValue(int64(r.BornRSN))
	case ClassAge:
		return IntValue(int64(r.Age))
	case ClassModificationFrequency:
		return IntValue(int64(r.ModificationFrequency))
	case ClassEvolutionDistance:
		return IntValue(int64(r.Distance))
	case ClassDeletedRSN:
		return IntValue(int64(r.DeletedRSN))
	case ClassName:
		return StrValue(r.Name)
	case ClassShortName:
		return StrValue(r.ShortName)
	case ClassPackageName:
		return StrValue(r.Package)
	case ClassSuperClassName:
		return StrValue(r.SuperClass)
	case ClassEvolutionStatus:
		return StrValue(r.Status.String())
	default:
		return MetricValue{}
	}
}

// Get resolves a metric by identifier, for callers that do not know the
// concrete vocabulary.
func (r *ClassRecord) Get(name string) (MetricValue, error) {
	m, err := ParseClassMetric(name)
	if err != nil {
		return MetricValue{}, err
	}

	return r.Value(m), nil
}

// LoadRatio is loadCount / (loadCount + storeCount), or 0 with no local access.
func (r *ClassRecord) LoadRatio() float64 {
	load := r.Counters[ClassLoadCount]
	total := load + r.Counters[ClassStoreCount]

	if total == 0 {
		return 0
	}

	return float64(load) / float64(total)
}

// Live reports whether the identity is present in its version.
func (r *ClassRecord) Live() bool { return r.Status != StatusDeleted }

// MethodSignatures returns the method keys in sorted order.
func (r *ClassRecord) MethodSignatures() []string { return sortedSignatures(r.Methods) }

// Clone returns a deep copy. Method records are immutable and shared.
func (r *ClassRecord) Clone() *ClassRecord {
	out := *r
	out.Interfaces = append([]string(nil), r.Interfaces...)
	out.Dependencies = append([]string(nil), r.Dependencies...)
	out.Methods = make(map[string]*MethodRecord, len(r.Methods))

	for sig, m := range r.Methods {
		out.Methods[sig] = m
	}

	return &out
}
