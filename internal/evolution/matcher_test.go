package evolution_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/jseries/internal/evolution"
	"github.com/Sumatoshi-tech/jseries/internal/model"
)

func rec(name string, fields int64) *model.ClassRecord {
	r := model.NewClassRecord(name)
	r.SuperClass = "java.lang.Object"
	r.Counters[model.ClassFieldCount] = fields
	r.Counters[model.ClassMethodCount] = 1

	return r
}

func snap(t *testing.T, rsn int, records ...*model.ClassRecord) *model.Snapshot {
	t.Helper()

	s := model.NewSnapshot(rsn, "v", time.Time{})
	for _, r := range records {
		_, err := s.Put(r)
		require.NoError(t, err)
	}

	return s
}

func class(t *testing.T, s *model.Snapshot, name string) *model.ClassRecord {
	t.Helper()

	r, ok := s.Class(name)
	require.True(t, ok, "%s missing at %d", name, s.RSN())

	return r
}

func TestMatch_ThreeVersionScenario(t *testing.T) {
	t.Parallel()

	v1 := snap(t, 1, rec("A", 2))
	v2 := snap(t, 2, rec("A", 2), rec("B", 1))
	v3 := snap(t, 3, rec("B", 1))

	_, err := evolution.Match(nil, v1)
	require.NoError(t, err)
	_, err = evolution.Match(v1, v2)
	require.NoError(t, err)
	_, err = evolution.Match(v2, v3)
	require.NoError(t, err)

	a1 := class(t, v1, "A")
	assert.Equal(t, model.StatusNew, a1.Status)
	assert.Equal(t, 1, a1.BornRSN)
	assert.Zero(t, a1.Age)

	a2 := class(t, v2, "A")
	assert.Equal(t, model.StatusUnchanged, a2.Status)
	assert.Equal(t, 1, a2.Age)
	assert.Zero(t, a2.ModificationFrequency)

	a3 := class(t, v3, "A")
	assert.Equal(t, model.StatusDeleted, a3.Status)
	assert.Equal(t, 3, a3.DeletedRSN)
	assert.Equal(t, a2.Counters, a3.Counters)
	assert.Equal(t, a2.BornRSN, a3.BornRSN)

	_, inV1 := v1.Class("B")
	assert.False(t, inV1)

	b2 := class(t, v2, "B")
	assert.Equal(t, model.StatusNew, b2.Status)
	assert.Equal(t, 2, b2.BornRSN)

	b3 := class(t, v3, "B")
	assert.Equal(t, model.StatusUnchanged, b3.Status)
	assert.Equal(t, 2, b3.BornRSN)
	assert.Equal(t, 1, b3.Age)
}

func TestMatch_ModifiedIncrementsFrequency(t *testing.T) {
	t.Parallel()

	v1 := snap(t, 1, rec("A", 1))
	v2 := snap(t, 2, rec("A", 3))

	modified := rec("A", 3)
	modified.SuperClass = "a.Base"
	v3 := snap(t, 3, modified)

	unchanged := rec("A", 3)
	unchanged.SuperClass = "a.Base"
	unchanged.Counters[model.ClassRawSize] = 999
	v4 := snap(t, 4, unchanged)

	for i, pair := range [][2]*model.Snapshot{{nil, v1}, {v1, v2}, {v2, v3}, {v3, v4}} {
		_, err := evolution.Match(pair[0], pair[1])
		require.NoError(t, err, "step %d", i)
	}

	a2 := class(t, v2, "A")
	assert.Equal(t, model.StatusModified, a2.Status)
	assert.Equal(t, 1, a2.ModificationFrequency)
	assert.Equal(t, 2, a2.Distance)

	a3 := class(t, v3, "A")
	assert.Equal(t, model.StatusModified, a3.Status)
	assert.Equal(t, 2, a3.ModificationFrequency)
	assert.Equal(t, 1, a3.Distance)

	a4 := class(t, v4, "A")
	assert.Equal(t, model.StatusUnchanged, a4.Status, "rawSize is excluded from comparison")
	assert.Equal(t, 2, a4.ModificationFrequency)
	assert.Equal(t, 3, a4.Age)
}

func TestMatch_TombstoneCarriedForward(t *testing.T) {
	t.Parallel()

	v1 := snap(t, 1, rec("A", 4), rec("K", 0))
	v2 := snap(t, 2, rec("K", 0))
	v3 := snap(t, 3, rec("K", 0))
	v4 := snap(t, 4, rec("K", 0))

	for _, pair := range [][2]*model.Snapshot{{nil, v1}, {v1, v2}, {v2, v3}, {v3, v4}} {
		_, err := evolution.Match(pair[0], pair[1])
		require.NoError(t, err)
	}

	first := class(t, v2, "A")

	for _, s := range []*model.Snapshot{v3, v4} {
		later := class(t, s, "A")
		assert.Equal(t, model.StatusDeleted, later.Status)
		assert.Equal(t, 2, later.DeletedRSN)
		assert.Equal(t, first.Counters, later.Counters)
		assert.Equal(t, first.Age, later.Age)
		assert.Equal(t, first.ModificationFrequency, later.ModificationFrequency)
	}

	assert.Equal(t, int64(1), v2.Metric(model.VersionDeletedClassCount))
	assert.Zero(t, v3.Metric(model.VersionDeletedClassCount))
	assert.Equal(t, int64(1), v3.Metric(model.VersionClassCount))
}

func TestMatch_RebirthStartsNewLifecycle(t *testing.T) {
	t.Parallel()

	v1 := snap(t, 1, rec("A", 1))
	v2 := snap(t, 2)
	v3 := snap(t, 3, rec("A", 1))

	_, err := evolution.Match(nil, v1)
	require.NoError(t, err)
	_, err = evolution.Match(v1, v2)
	require.NoError(t, err)

	advisories, err := evolution.Match(v2, v3)
	require.NoError(t, err)
	require.Len(t, advisories, 1)
	assert.Equal(t, model.AdvisoryRebirth, advisories[0].Kind)
	assert.Equal(t, "A", advisories[0].Class)
	assert.Equal(t, 3, advisories[0].RSN)

	a3 := class(t, v3, "A")
	assert.Equal(t, model.StatusNew, a3.Status)
	assert.Equal(t, 3, a3.BornRSN)
	assert.Zero(t, a3.Age)
	assert.Zero(t, a3.ModificationFrequency)
}

func TestMatch_RejectsBadInput(t *testing.T) {
	t.Parallel()

	v1 := snap(t, 1, rec("A", 1))
	v3 := snap(t, 3, rec("A", 1))

	_, err := evolution.Match(v1, v3)
	require.ErrorIs(t, err, evolution.ErrOutOfOrder)

	frozen := snap(t, 2)
	frozen.Freeze()

	_, err = evolution.Match(v1, frozen)
	require.ErrorIs(t, err, model.ErrFrozen)
}

func TestDistance(t *testing.T) {
	t.Parallel()

	a := rec("A", 1)
	b := rec("A", 4)
	b.Counters[model.ClassIsAbstract] = 1
	b.Counters[model.ClassRawSize] = 100
	b.SuperClass = "x.Y"

	assert.Equal(t, 5, evolution.Distance(a, b))
	assert.Equal(t, evolution.Distance(a, b), evolution.Distance(b, a))
	assert.Zero(t, evolution.Distance(a, a.Clone()))
}
