package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricVersionsExtracted = "jseries.versions.extracted.total"
	metricClassesExtracted  = "jseries.classes.extracted.total"
	metricEntriesSkipped    = "jseries.entries.skipped.total"
	metricExtractDuration   = "jseries.version.extract.duration.seconds"
	metricBuildsTotal       = "jseries.builds.total"
	metricVersionsInflight  = "jseries.versions.inflight"
	metricCacheLookups      = "jseries.cache.lookups.total"

	attrStatus = "status"
	attrResult = "result"
)

// Build outcomes reported by RecordBuild.
const (
	StatusOK       = "ok"
	StatusError    = "error"
	StatusCanceled = "canceled"
)

// durationBuckets spans small jars decoded in milliseconds up to
// multi-minute application archives.
var durationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}

// BuildMetrics holds the instruments recorded by the history engine.
type BuildMetrics struct {
	versionsExtracted metric.Int64Counter
	classesExtracted  metric.Int64Counter
	entriesSkipped    metric.Int64Counter
	extractDuration   metric.Float64Histogram
	buildsTotal       metric.Int64Counter
	versionsInflight  metric.Int64UpDownCounter
	cacheLookups      metric.Int64Counter
}

// VersionStats describes one finished phase-1 task.
type VersionStats struct {
	Classes  int
	Skipped  int
	Duration time.Duration
	Cached   bool
}

// NewBuildMetrics creates the build instruments from mt.
func NewBuildMetrics(mt metric.Meter) (*BuildMetrics, error) {
	b := newMetricBuilder(mt)

	bm := &BuildMetrics{
		versionsExtracted: b.counter(metricVersionsExtracted, "Versions extracted", "{version}"),
		classesExtracted:  b.counter(metricClassesExtracted, "Class records extracted", "{class}"),
		entriesSkipped:    b.counter(metricEntriesSkipped, "Archive entries skipped after decode failures", "{entry}"),
		extractDuration:   b.histogram(metricExtractDuration, "Per-version extraction duration in seconds", "s", durationBuckets...),
		buildsTotal:       b.counter(metricBuildsTotal, "History builds by outcome", "{build}"),
		versionsInflight:  b.upDownCounter(metricVersionsInflight, "Versions currently extracting", "{version}"),
		cacheLookups:      b.counter(metricCacheLookups, "Snapshot cache lookups by result", "{lookup}"),
	}

	if b.err != nil {
		return nil, b.err
	}

	return bm, nil
}

// RecordVersion records one extracted version. Safe on a nil receiver.
func (bm *BuildMetrics) RecordVersion(ctx context.Context, stats VersionStats) {
	if bm == nil {
		return
	}

	result := "miss"
	if stats.Cached {
		result = "hit"
	}

	bm.cacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
	bm.versionsExtracted.Add(ctx, 1)
	bm.classesExtracted.Add(ctx, int64(stats.Classes))
	bm.entriesSkipped.Add(ctx, int64(stats.Skipped))
	bm.extractDuration.Record(ctx, stats.Duration.Seconds())
}

// RecordBuild counts a finished build by status. Safe on a nil receiver.
func (bm *BuildMetrics) RecordBuild(ctx context.Context, status string) {
	if bm == nil {
		return
	}

	bm.buildsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrStatus, status)))
}

// TrackInflight increments the in-flight gauge and returns the matching
// decrement. Safe on a nil receiver.
func (bm *BuildMetrics) TrackInflight(ctx context.Context) func() {
	if bm == nil {
		return func() {}
	}

	bm.versionsInflight.Add(ctx, 1)

	return func() { bm.versionsInflight.Add(ctx, -1) }
}
