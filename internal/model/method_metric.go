package model

import (
	"fmt"
	"sort"
	"strconv"
)

// MethodMetric identifies a method-level metric. All method metrics are counters.
type MethodMetric uint8

// Method-level metrics.
const (
	MethodInstructionCount MethodMetric = iota
	MethodBranchCount
	MethodMethodCallCount
	MethodFieldLoadCount
	MethodFieldStoreCount
	MethodLocalVarCount
	MethodMaxStack
	MethodParameterCount
	MethodExceptionCount
	MethodTryCatchBlockCount
	MethodThrowCount
	MethodIsPublic
	MethodIsPrivate
	MethodIsProtected
	MethodIsStatic
	MethodIsFinal
	MethodIsAbstract
	MethodIsSynchronized
	MethodIsNative
	MethodIsConstructor
)

// NumMethodMetrics is the size of the method vocabulary.
const NumMethodMetrics = int(MethodIsConstructor) + 1

// MethodCounters holds method metrics indexed by MethodMetric.
type MethodCounters [NumMethodMetrics]int64

var methodMetricInfo = [...]metricInfo{
	MethodInstructionCount:   {"instructionCount", KindCount, true},
	MethodBranchCount:        {"branchCount", KindCount, true},
	MethodMethodCallCount:    {"methodCallCount", KindCount, true},
	MethodFieldLoadCount:     {"fieldLoadCount", KindCount, true},
	MethodFieldStoreCount:    {"fieldStoreCount", KindCount, true},
	MethodLocalVarCount:      {"localVarCount", KindCount, true},
	MethodMaxStack:           {"maxStack", KindCount, true},
	MethodParameterCount:     {"parameterCount", KindCount, true},
	MethodExceptionCount:     {"exceptionCount", KindCount, true},
	MethodTryCatchBlockCount: {"tryCatchBlockCount", KindCount, true},
	MethodThrowCount:         {"throwCount", KindCount, true},
	MethodIsPublic:           {"isPublic", KindCount, true},
	MethodIsPrivate:          {"isPrivate", KindCount, true},
	MethodIsProtected:        {"isProtected", KindCount, true},
	MethodIsStatic:           {"isStatic", KindCount, true},
	MethodIsFinal:            {"isFinal", KindCount, true},
	MethodIsAbstract:         {"isAbstract", KindCount, true},
	MethodIsSynchronized:     {"isSynchronized", KindCount, true},
	MethodIsNative:           {"isNative", KindCount, true},
	MethodIsConstructor:      {"isConstructor", KindCount, true},
}

var methodVocabulary = newVocabulary("method", methodMetricInfo[:])

// ParseMethodMetric resolves a method metric identifier case-insensitively.
func ParseMethodMetric(s string) (MethodMetric, error) {
	idx, err := methodVocabulary.parse(s)

	return MethodMetric(idx), err
}

// String returns the canonical identifier.
func (m MethodMetric) String() string {
	if int(m) >= len(methodMetricInfo) {
		return "methodMetric(" + strconv.Itoa(int(m)) + ")"
	}

	return methodMetricInfo[m].name
}

// MethodRecord is the immutable metric record of one method.
type MethodRecord struct {
	signature string
	name      string
	counters  MethodCounters
}

// NewMethodRecord builds a method record. The signature is name plus descriptor.
func NewMethodRecord(name, descriptor string, counters MethodCounters) *MethodRecord {
	return &MethodRecord{signature: name + descriptor, name: name, counters: counters}
}

// Signature returns the key of the method within its class.
func (m *MethodRecord) Signature() string { return m.signature }

// Name returns the bare method name.
func (m *MethodRecord) Name() string { return m.name }

// Counters returns a copy of the metric array.
func (m *MethodRecord) Counters() MethodCounters { return m.counters }

// Value returns one metric.
func (m *MethodRecord) Value(metric MethodMetric) int64 { return m.counters[metric] }

// Get resolves a metric by identifier.
func (m *MethodRecord) Get(name string) (MetricValue, error) {
	metric, err := ParseMethodMetric(name)
	if err != nil {
		return MetricValue{}, err
	}

	return IntValue(m.counters[metric]), nil
}

func sortedSignatures(methods map[string]*MethodRecord) []string {
	out := make([]string, 0, len(methods))
	for sig := range methods {
		out = append(out, sig)
	}

	sort.Strings(out)

	return out
}

func methodCountersFromMap(values map[string]int64) (MethodCounters, error) {
	var counters MethodCounters

	for name, v := range values {
		metric, err := ParseMethodMetric(name)
		if err != nil {
			return counters, fmt.Errorf("method counters: %w", err)
		}

		counters[metric] = v
	}

	return counters, nil
}
