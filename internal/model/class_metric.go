package model

import "strconv"

// ClassMetric identifies a class-level metric.
type ClassMetric uint8

// Class-level counters. They are stored positionally in ClassCounters and
// every one of them except ClassRawSize takes part in change detection.
const (
	ClassFieldCount ClassMetric = iota
	ClassMethodCount
	ClassInnerClassCount
	ClassInterfaceCount
	ClassPublicMethodCount
	ClassPrivateMethodCount
	ClassProtectedMethodCount
	ClassStaticMethodCount
	ClassFinalMethodCount
	ClassAbstractMethodCount
	ClassSynchronizedMethodCount
	ClassPublicFieldCount
	ClassPrivateFieldCount
	ClassProtectedFieldCount
	ClassStaticFieldCount
	ClassFinalFieldCount
	ClassIsPublic
	ClassIsAbstract
	ClassIsInterface
	ClassIsFinal
	ClassIsSynthetic
	ClassInstructionCount
	ClassBranchCount
	ClassMethodCallCount
	ClassFieldLoadCount
	ClassFieldStoreCount
	ClassLoadCount
	ClassStoreCount
	ClassConstantLoadCount
	ClassIncrementCount
	ClassTypeInsnCount
	ClassThrowCount
	ClassTryCatchBlockCount
	ClassLocalVarCount
	ClassExceptionCount
	ClassFanOutCount
	ClassRawSize

	// ClassLoadRatio is load / (load + store), computed on access.
	ClassLoadRatio

	ClassBornRSN
	ClassAge
	ClassModificationFrequency
	ClassEvolutionDistance
	ClassDeletedRSN

	ClassName
	ClassShortName
	ClassPackageName
	ClassSuperClassName
	ClassEvolutionStatus
)

// NumClassCounters is the number of positional class counters.
const NumClassCounters = int(ClassRawSize) + 1

// ClassCounters holds the raw class counters indexed by ClassMetric.
type ClassCounters [NumClassCounters]int64

var classMetricInfo = [...]metricInfo{
	ClassFieldCount:              {"fieldCount", KindCount, true},
	ClassMethodCount:             {"methodCount", KindCount, true},
	ClassInnerClassCount:         {"innerClassCount", KindCount, true},
	ClassInterfaceCount:          {"interfaceCount", KindCount, true},
	ClassPublicMethodCount:       {"publicMethodCount", KindCount, true},
	ClassPrivateMethodCount:      {"privateMethodCount", KindCount, true},
	ClassProtectedMethodCount:    {"protectedMethodCount", KindCount, true},
	ClassStaticMethodCount:       {"staticMethodCount", KindCount, true},
	ClassFinalMethodCount:        {"finalMethodCount", KindCount, true},
	ClassAbstractMethodCount:     {"abstractMethodCount", KindCount, true},
	ClassSynchronizedMethodCount: {"synchronizedMethodCount", KindCount, true},
	ClassPublicFieldCount:        {"publicFieldCount", KindCount, true},
	ClassPrivateFieldCount:       {"privateFieldCount", KindCount, true},
	ClassProtectedFieldCount:     {"protectedFieldCount", KindCount, true},
	ClassStaticFieldCount:        {"staticFieldCount", KindCount, true},
	ClassFinalFieldCount:         {"finalFieldCount", KindCount, true},
	ClassIsPublic:                {"isPublic", KindCount, true},
	ClassIsAbstract:              {"isAbstract", KindCount, true},
	ClassIsInterface:             {"isInterface", KindCount, true},
	ClassIsFinal:                 {"isFinal", KindCount, true},
	ClassIsSynthetic:             {"isSynthetic", KindCount, true},
	ClassInstructionCount:        {"instructionCount", KindCount, true},
	ClassBranchCount:             {"branchCount", KindCount, true},
	ClassMethodCallCount:         {"methodCallCount", KindCount, true},
	ClassFieldLoadCount:          {"fieldLoadCount", KindCount, true},
	ClassFieldStoreCount:         {"fieldStoreCount", KindCount, true},
	ClassLoadCount:               {"loadCount", KindCount, true},
	ClassStoreCount:              {"storeCount", KindCount, true},
	ClassConstantLoadCount:       {"constantLoadCount", KindCount, true},
	ClassIncrementCount:          {"incrementCount", KindCount, true},
	ClassTypeInsnCount:           {"typeInsnCount", KindCount, true},
	ClassThrowCount:              {"throwCount", KindCount, true},
	ClassTryCatchBlockCount:      {"tryCatchBlockCount", KindCount, true},
	ClassLocalVarCount:           {"localVarCount", KindCount, true},
	ClassExceptionCount:          {"exceptionCount", KindCount, true},
	ClassFanOutCount:             {"fanOutCount", KindCount, true},
	ClassRawSize:                 {"rawSize", KindCount, false},
	ClassLoadRatio:               {"loadRatio", KindComputed, false},
	ClassBornRSN:                 {"bornRSN", KindCount, false},
	ClassAge:                     {"age", KindCount, false},
	ClassModificationFrequency:   {"modificationFrequency", KindCount, false},
	ClassEvolutionDistance:       {"evolutionDistance", KindCount, false},
	ClassDeletedRSN:              {"deletedRSN", KindCount, false},
	ClassName:                    {"name", KindProperty, false},
	ClassShortName:               {"shortName", KindProperty, false},
	ClassPackageName:             {"packageName", KindProperty, false},
	ClassSuperClassName:          {"superClassName", KindProperty, true},
	ClassEvolutionStatus:         {"evolutionStatus", KindProperty, false},
}

var classVocabulary = newVocabulary("class", classMetricInfo[:])

// ParseClassMetric resolves a class metric identifier case-insensitively.
func ParseClassMetric(s string) (ClassMetric, error) {
	idx, err := classVocabulary.parse(s)

	return ClassMetric(idx), err
}

// ClassMetrics lists the whole class vocabulary in declaration order.
func ClassMetrics() []ClassMetric {
	out := make([]ClassMetric, len(classMetricInfo))
	for i := range out {
		out[i] = ClassMetric(i)
	}

	return out
}

// String returns the canonical identifier.
func (m ClassMetric) String() string {
	if int(m) >= len(classMetricInfo) {
		return "classMetric(" + strconv.Itoa(int(m)) + ")"
	}

	return classMetricInfo[m].name
}

// Kind returns the value kind of the metric.
func (m ClassMetric) Kind() Kind { return classMetricInfo[m].kind }

// IsCounter reports whether the metric is stored in ClassCounters.
func (m ClassMetric) IsCounter() bool { return int(m) < NumClassCounters }

// Compared reports whether the metric takes part in change detection.
func (m ClassMetric) Compared() bool { return classMetricInfo[m].compared }
