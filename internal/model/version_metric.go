package model

import "strconv"

// VersionMetric identifies a version-level aggregate. All are counts computed
// by summation over the records of a snapshot.
type VersionMetric uint8

// Version-level metrics.
const (
	VersionClassCount VersionMetric = iota
	VersionInterfaceCount
	VersionAbstractClassCount
	VersionPublicClassCount
	VersionInnerClassCount
	VersionMethodCount
	VersionFieldCount
	VersionInstructionCount
	VersionBranchCount
	VersionNewClassCount
	VersionUnchangedClassCount
	VersionModifiedClassCount
	VersionDeletedClassCount
)

// NumVersionMetrics is the size of the version vocabulary.
const NumVersionMetrics = int(VersionDeletedClassCount) + 1

var versionMetricInfo = [...]metricInfo{
	VersionClassCount:          {"classCount", KindCount, false},
	VersionInterfaceCount:      {"interfaceCount", KindCount, false},
	VersionAbstractClassCount:  {"abstractClassCount", KindCount, false},
	VersionPublicClassCount:    {"publicClassCount", KindCount, false},
	VersionInnerClassCount:     {"innerClassCount", KindCount, false},
	VersionMethodCount:         {"methodCount", KindCount, false},
	VersionFieldCount:          {"fieldCount", KindCount, false},
	VersionInstructionCount:    {"instructionCount", KindCount, false},
	VersionBranchCount:         {"branchCount", KindCount, false},
	VersionNewClassCount:       {"newClassCount", KindCount, false},
	VersionUnchangedClassCount: {"unchangedClassCount", KindCount, false},
	VersionModifiedClassCount:  {"modifiedClassCount", KindCount, false},
	VersionDeletedClassCount:   {"deletedClassCount", KindCount, false},
}

var versionVocabulary = newVocabulary("version", versionMetricInfo[:])

// ParseVersionMetric resolves a version metric identifier case-insensitively.
func ParseVersionMetric(s string) (VersionMetric, error) {
	idx, err := versionVocabulary.parse(s)

	return VersionMetric(idx), err
}

// VersionMetrics lists the version vocabulary in declaration order.
func VersionMetrics() []VersionMetric {
	out := make([]VersionMetric, NumVersionMetrics)
	for i := range out {
		out[i] = VersionMetric(i)
	}

	return out
}

// String returns the canonical identifier.
func (m VersionMetric) String() string {
	if int(m) >= len(versionMetricInfo) {
		return "versionMetric(" + strconv.Itoa(int(m)) + ")"
	}

	return versionMetricInfo[m].name
}
