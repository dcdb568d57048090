// Package model holds the in-memory history of a product: versions, class
// records, method records and the closed metric vocabularies over them.
package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownMetric is returned when a metric identifier is not part of a vocabulary.
var ErrUnknownMetric = errors.New("unknown metric")

// Kind tags the representation of a MetricValue.
type Kind uint8

// Metric kinds.
const (
	// KindCount is an integer counter or flag.
	KindCount Kind = iota
	// KindProperty is a string property.
	KindProperty
	// KindComputed is a derived floating point value.
	KindComputed
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindCount:
		return "count"
	case KindProperty:
		return "property"
	case KindComputed:
		return "computed"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// MetricValue is a tagged metric value.
type MetricValue struct {
	Kind  Kind
	Int   int64
	Float float64
	Str   string
}

// IntValue wraps a counter.
func IntValue(v int64) MetricValue { return MetricValue{Kind: KindCount, Int: v} }

// FloatValue wraps a computed value.
func FloatValue(v float64) MetricValue { return MetricValue{Kind: KindComputed, Float: v} }

// StrValue wraps a property.
func StrValue(v string) MetricValue { return MetricValue{Kind: KindProperty, Str: v} }

// Number returns the numeric view of the value. Properties are not numeric.
func (v MetricValue) Number() (float64, bool) {
	switch v.Kind {
	case KindCount:
		return float64(v.Int), true
	case KindComputed:
		return v.Float, true
	default:
		return 0, false
	}
}

// String formats the value for display.
func (v MetricValue) String() string {
	switch v.Kind {
	case KindCount:
		return strconv.FormatInt(v.Int, 10)
	case KindComputed:
		return strconv.FormatFloat(v.Float, 'f', 4, 64)
	default:
		return v.Str
	}
}

// metricInfo describes one vocabulary entry.
type metricInfo struct {
	name     string
	kind     Kind
	compared bool
}

// vocabulary indexes metric names case-insensitively.
type vocabulary struct {
	what   string
	byName map[string]int
}

func newVocabulary(what string, infos []metricInfo) vocabulary {
	v := vocabulary{what: what, byName: make(map[string]int, len(infos))}

	for i, info := range infos {
		if info.name == "" {
			panic(fmt.Sprintf("model: %s metric %d has no name", what, i))
		}

		v.byName[strings.ToLower(info.name)] = i
	}

	return v
}

func (v vocabulary) parse(s string) (int, error) {
	idx, ok := v.byName[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("%w: %s metric %q", ErrUnknownMetric, v.what, s)
	}

	return idx, nil
}
