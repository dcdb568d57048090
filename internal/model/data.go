package model

import (
	"fmt"
	"time"
)

// ClassData is the flat, serializable form of a ClassRecord. Counters are
// keyed by their canonical identifiers.
type ClassData struct {
	Name                  string           `json:"name" yaml:"name"`
	ShortName             string           `json:"shortName" yaml:"shortName"`
	Package               string           `json:"packageName" yaml:"packageName"`
	SuperClass            string           `json:"superClassName,omitempty" yaml:"superClassName,omitempty"`
	Interfaces            []string         `json:"interfaces,omitempty" yaml:"interfaces,omitempty"`
	Dependencies          []string         `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Status                Status           `json:"evolutionStatus" yaml:"evolutionStatus"`
	BornRSN               int              `json:"bornRSN" yaml:"bornRSN"`
	Age                   int              `json:"age" yaml:"age"`
	ModificationFrequency int              `json:"modificationFrequency" yaml:"modificationFrequency"`
	Distance              int              `json:"evolutionDistance" yaml:"evolutionDistance"`
	DeletedRSN            int              `json:"deletedRSN,omitempty" yaml:"deletedRSN,omitempty"`
	Metrics               map[string]int64 `json:"metrics" yaml:"metrics"`
	Methods               []MethodData     `json:"methods,omitempty" yaml:"methods,omitempty"`
}

// MethodData is the flat form of a MethodRecord.
type MethodData struct {
	Name      string           `json:"name" yaml:"name"`
	Signature string           `json:"signature" yaml:"signature"`
	Metrics   map[string]int64 `json:"metrics" yaml:"metrics"`
}

// SnapshotData is the flat form of a Snapshot.
type SnapshotData struct {
	RSN       int              `json:"rsn" yaml:"rsn"`
	Label     string           `json:"label" yaml:"label"`
	Timestamp time.Time        `json:"timestamp" yaml:"timestamp"`
	Metrics   map[string]int64 `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Classes   []ClassData      `json:"classes" yaml:"classes"`
}

// HistoryData is the flat form of a History.
type HistoryData struct {
	Product    string         `json:"product" yaml:"product"`
	Versions   []SnapshotData `json:"versions" yaml:"versions"`
	Advisories []Advisory     `json:"advisories,omitempty" yaml:"advisories,omitempty"`
}

// Data flattens the record.
func (r *ClassRecord) Data() ClassData {
	d := ClassData{
		Name:                  r.Name,
		ShortName:             r.ShortName,
		Package:               r.Package,
		SuperClass:            r.SuperClass,
		Interfaces:            append([]string(nil), r.Interfaces...),
		Dependencies:          append([]string(nil), r.Dependencies...),
		Status:                r.Status,
		BornRSN:               r.BornRSN,
		Age:                   r.Age,
		ModificationFrequency: r.ModificationFrequency,
		Distance:              r.Distance,
		DeletedRSN:            r.DeletedRSN,
		Metrics:               make(map[string]int64, NumClassCounters),
	}

	for i, v := range r.Counters {
		d.Metrics[ClassMetric(i).String()] = v
	}

	for _, sig := range r.MethodSignatures() {
		m := r.Methods[sig]
		md := MethodData{Name: m.Name(), Signature: sig, Metrics: make(map[string]int64, NumMethodMetrics)}

		for i, v := range m.counters {
			md.Metrics[MethodMetric(i).String()] = v
		}

		d.Methods = append(d.Methods, md)
	}

	return d
}

// ClassFromData rebuilds a record from its flat form.
func ClassFromData(d ClassData) (*ClassRecord, error) {
	r := &ClassRecord{
		Name:                  d.Name,
		ShortName:             d.ShortName,
		Package:               d.Package,
		SuperClass:            d.SuperClass,
		Interfaces:            d.Interfaces,
		Dependencies:          d.Dependencies,
		Status:                d.Status,
		BornRSN:               d.BornRSN,
		Age:                   d.Age,
		ModificationFrequency: d.ModificationFrequency,
		Distance:              d.Distance,
		DeletedRSN:            d.DeletedRSN,
		Methods:               make(map[string]*MethodRecord, len(d.Methods)),
	}

	for name, v := range d.Metrics {
		m, err := ParseClassMetric(name)
		if err != nil {
			return nil, fmt.Errorf("class %s: %w", d.Name, err)
		}

		if !m.IsCounter() {
			return nil, fmt.Errorf("class %s: %w: %s is not a counter", d.Name, ErrUnknownMetric, name)
		}

		r.Counters[m] = v
	}

	for _, md := range d.Methods {
		counters, err := methodCountersFromMap(md.Metrics)
		if err != nil {
			return nil, fmt.Errorf("class %s: %w", d.Name, err)
		}

		r.Methods[md.Signature] = &MethodRecord{signature: md.Signature, name: md.Name, counters: counters}
	}

	return r, nil
}

// Data flattens the snapshot with classes sorted by identity.
func (s *Snapshot) Data() SnapshotData {
	d := SnapshotData{
		RSN:       s.rsn,
		Label:     s.label,
		Timestamp: s.timestamp,
		Metrics:   make(map[string]int64, NumVersionMetrics),
	}

	for _, m := range VersionMetrics() {
		d.Metrics[m.String()] = s.Metric(m)
	}

	s.each(func(r *ClassRecord) {
		d.Classes = append(d.Classes, r.Data())
	})

	return d
}

// SnapshotFromData rebuilds a mutable snapshot. Version metrics in the flat
// form are ignored and recomputed from the records.
func SnapshotFromData(d SnapshotData) (*Snapshot, error) {
	s := NewSnapshot(d.RSN, d.Label, d.Timestamp)

	for _, cd := range d.Classes {
		r, err := ClassFromData(cd)
		if err != nil {
			return nil, fmt.Errorf("version %d: %w", d.RSN, err)
		}

		if _, err := s.Put(r); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Data flattens the history.
func (h *History) Data() HistoryData {
	d := HistoryData{Product: h.product, Advisories: h.Advisories()}

	for _, s := range h.versions {
		d.Versions = append(d.Versions, s.Data())
	}

	return d
}

// HistoryFromData rebuilds a frozen history.
func HistoryFromData(d HistoryData) (*History, error) {
	h := NewHistory(d.Product)

	for _, sd := range d.Versions {
		s, err := SnapshotFromData(sd)
		if err != nil {
			return nil, err
		}

		if err := h.Append(s); err != nil {
			return nil, err
		}
	}

	if err := h.AddAdvisories(d.Advisories...); err != nil {
		return nil, err
	}

	h.Freeze()

	return h, nil
}
