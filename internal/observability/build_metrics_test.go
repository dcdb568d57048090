package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Sumatoshi-tech/jseries/internal/observability"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics

	require.NoError(t, reader.Collect(context.Background(), &rm))

	sums := make(map[string]int64)

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					sums[m.Name] += dp.Value
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					sums[m.Name] += int64(dp.Count)
				}
			}
		}
	}

	return sums
}

func TestBuildMetrics_Record(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	bm, err := observability.NewBuildMetrics(mp.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()

	done := bm.TrackInflight(ctx)
	bm.RecordVersion(ctx, observability.VersionStats{Classes: 40, Skipped: 1, Duration: time.Second})
	bm.RecordVersion(ctx, observability.VersionStats{Classes: 2, Cached: true})
	bm.RecordBuild(ctx, observability.StatusOK)
	done()

	sums := collect(t, reader)
	assert.Equal(t, int64(2), sums["jseries.versions.extracted.total"])
	assert.Equal(t, int64(42), sums["jseries.classes.extracted.total"])
	assert.Equal(t, int64(1), sums["jseries.entries.skipped.total"])
	assert.Equal(t, int64(2), sums["jseries.version.extract.duration.seconds"])
	assert.Equal(t, int64(1), sums["jseries.builds.total"])
	assert.Equal(t, int64(2), sums["jseries.cache.lookups.total"])
	assert.Zero(t, sums["jseries.versions.inflight"])
}

func TestBuildMetrics_NilSafe(t *testing.T) {
	t.Parallel()

	var bm *observability.BuildMetrics

	ctx := context.Background()

	assert.NotPanics(t, func() {
		bm.RecordVersion(ctx, observability.VersionStats{Classes: 1})
		bm.RecordBuild(ctx, observability.StatusError)
		bm.TrackInflight(ctx)()
	})
}
