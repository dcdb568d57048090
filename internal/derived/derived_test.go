package derived_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/jseries/internal/derived"
	"github.com/Sumatoshi-tech/jseries/internal/evolution"
	"github.com/Sumatoshi-tech/jseries/internal/model"
)

// history builds four versions:
//
//	v1: A B          (2 classes)
//	v2: A B' C D     (B modified, C and D new)
//	v3: A C D E F G  (B deleted, E F G new)
//	v4: A B C        (B re-born, D E F G deleted)
func history(t *testing.T) *model.History {
	t.Helper()

	layout := [][]struct {
		name   string
		fields int64
	}{
		{{"A", 1}, {"B", 1}},
		{{"A", 1}, {"B", 2}, {"C", 1}, {"D", 1}},
		{{"A", 1}, {"C", 1}, {"D", 1}, {"E", 1}, {"F", 1}, {"G", 1}},
		{{"A", 1}, {"B", 2}, {"C", 1}},
	}

	h := model.NewHistory("demo")

	var prev *model.Snapshot

	for i, classes := range layout {
		s := model.NewSnapshot(i+1, fmt.Sprintf("1.%d", i), time.Time{})

		for _, c := range classes {
			r := model.NewClassRecord(c.name)
			r.SuperClass = "java.lang.Object"
			r.Counters[model.ClassFieldCount] = c.fields
			r.Counters[model.ClassBranchCount] = 2

			_, err := s.Put(r)
			require.NoError(t, err)
		}

		_, err := evolution.Match(prev, s)
		require.NoError(t, err)
		require.NoError(t, h.Append(s))

		prev = s
	}

	h.Freeze()

	return h
}

func TestEvaluate_Growth(t *testing.T) {
	t.Parallel()

	h := history(t)

	v, err := derived.Evaluate(h, "relativeGrowth", derived.Query{Metric: "classCount", From: 1, To: 3})
	require.NoError(t, err)
	assert.InDelta(t, 2.0, v, 1e-9)

	v, err = derived.Evaluate(h, "ABSOLUTEGROWTH", derived.Query{From: 3, To: 4})
	require.NoError(t, err)
	assert.InDelta(t, -3.0, v, 1e-9)

	v, err = derived.Evaluate(h, "absoluteGrowth", derived.Query{Metric: "fieldCount", From: 1, To: 2})
	require.NoError(t, err)
	assert.InDelta(t, 3.0, v, 1e-9)

	v, err = derived.Evaluate(h, "relativeGrowth", derived.Query{Metric: "rawSize", From: 1, To: 2})
	require.ErrorIs(t, err, derived.ErrInvalidArgs)
	assert.Zero(t, v)
}

func TestEvaluate_Prediction(t *testing.T) {
	t.Parallel()

	h := history(t)

	v, err := derived.Evaluate(h, "predictedSize", derived.Query{At: 2})
	require.NoError(t, err)
	assert.InDelta(t, 6.0, v, 1e-9)

	v, err = derived.Evaluate(h, "predictionError", derived.Query{At: 2})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, v, 1e-9)

	v, err = derived.Evaluate(h, "predictionError", derived.Query{At: 3})
	require.NoError(t, err)
	assert.InDelta(t, 5.0/3.0, v, 1e-9)

	_, err = derived.Evaluate(h, "predictedSize", derived.Query{At: 1})
	require.ErrorIs(t, err, derived.ErrInvalidArgs)

	_, err = derived.Evaluate(h, "predictionError", derived.Query{At: 4})
	require.ErrorIs(t, err, derived.ErrInvalidArgs)
}

func TestEvaluate_StatusRatios(t *testing.T) {
	t.Parallel()

	h := history(t)

	v, err := derived.Evaluate(h, "modifiedRatio", derived.Query{At: 2})
	require.NoError(t, err)
	assert.InDelta(t, 0.25, v, 1e-9)

	// v3: 3 new, 0 modified, 1 deleted over 6 live classes.
	v, err = derived.Evaluate(h, "churnRate", derived.Query{At: 3})
	require.NoError(t, err)
	assert.InDelta(t, 4.0/6.0, v, 1e-9)

	v, err = derived.Evaluate(h, "meanAge", derived.Query{At: 3})
	require.NoError(t, err)
	assert.InDelta(t, (2.0+1+1+0+0+0)/6, v, 1e-9)
}

func TestEvaluate_SurvivalRate(t *testing.T) {
	t.Parallel()

	h := history(t)

	// A and B live at v1; B is deleted at v3 and re-born at v4.
	v, err := derived.Evaluate(h, "survivalRate", derived.Query{From: 1, To: 4})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, v, 1e-9)

	v, err = derived.Evaluate(h, "survivalRate", derived.Query{From: 2, To: 2})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, v, 1e-9)

	_, err = derived.Evaluate(h, "survivalRate", derived.Query{From: 3, To: 1})
	require.ErrorIs(t, err, derived.ErrInvalidArgs)
}

func TestEvaluate_Errors(t *testing.T) {
	t.Parallel()

	h := history(t)

	_, err := derived.Evaluate(h, "entropy", derived.Query{})
	require.ErrorIs(t, err, derived.ErrUnknownMetric)

	_, err = derived.Evaluate(h, "meanAge", derived.Query{At: 9})
	require.ErrorIs(t, err, derived.ErrInvalidArgs)

	_, err = derived.Evaluate(h, "absoluteGrowth", derived.Query{Metric: "name", From: 1, To: 2})
	require.ErrorIs(t, err, derived.ErrInvalidArgs)

	_, err = derived.Evaluate(h, "absoluteGrowth", derived.Query{Metric: "nope", From: 1, To: 2})
	require.ErrorIs(t, err, derived.ErrInvalidArgs)
	require.ErrorIs(t, err, model.ErrUnknownMetric)
}

func TestEvaluate_DoesNotMutate(t *testing.T) {
	t.Parallel()

	h := history(t)
	before := h.Data()

	for _, name := range derived.Names() {
		_, _ = derived.Evaluate(h, name, derived.Query{From: 1, To: 3, At: 2})
	}

	assert.Equal(t, before, h.Data())
}

func TestNames(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{
		"absoluteGrowth", "churnRate", "meanAge", "modifiedRatio",
		"predictedSize", "predictionError", "relativeGrowth", "survivalRate",
	}, derived.Names())
}

func TestEvaluate_EmptyVersionIsInvalid(t *testing.T) {
	t.Parallel()

	h := model.NewHistory("demo")

	v1 := model.NewSnapshot(1, "1.0", time.Time{})
	_, err := v1.Put(model.NewClassRecord("A"))
	require.NoError(t, err)

	_, err = evolution.Match(nil, v1)
	require.NoError(t, err)
	require.NoError(t, h.Append(v1))

	// Every class is gone in 2.0; only the tombstone of A remains.
	v2 := model.NewSnapshot(2, "2.0", time.Time{})
	_, err = evolution.Match(v1, v2)
	require.NoError(t, err)
	require.NoError(t, h.Append(v2))
	h.Freeze()

	for _, tt := range []struct {
		name string
		q    derived.Query
	}{
		{"modifiedRatio", derived.Query{At: 2}},
		{"churnRate", derived.Query{At: 2}},
		{"meanAge", derived.Query{At: 2}},
		{"survivalRate", derived.Query{From: 2, To: 2}},
	} {
		v, err := derived.Evaluate(h, tt.name, tt.q)
		require.ErrorIs(t, err, derived.ErrInvalidArgs, tt.name)
		assert.Zero(t, v, tt.name)
	}

	v, err := derived.Evaluate(h, "churnRate", derived.Query{At: 1})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, v, 1e-9)
}
