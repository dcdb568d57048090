package framework_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/jseries/internal/extract"
	"github.com/Sumatoshi-tech/jseries/internal/framework"
	"github.com/Sumatoshi-tech/jseries/internal/model"
	"github.com/Sumatoshi-tech/jseries/pkg/archive"
	cft "github.com/Sumatoshi-tech/jseries/pkg/classfile/classfiletest"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func classFile(name string, fields int) archive.MemoryFile {
	b := cft.New(name)
	for i := range fields {
		b.Field(fmt.Sprintf("f%d", i), "I", cft.Private)
	}

	return archive.MemoryFile{Name: name + ".class", Data: b.Bytes()}
}

// evolvingInputs produces n versions in which classes are added, grown and
// removed at different rates.
func evolvingInputs(n int) []extract.VersionInput {
	inputs := make([]extract.VersionInput, 0, n)

	for v := 1; v <= n; v++ {
		var files []archive.MemoryFile

		for c := range 12 {
			if c%4 == 3 && v%3 == 0 {
				continue
			}

			if c >= 8 && v < c-6 {
				continue
			}

			files = append(files, classFile(fmt.Sprintf("p.C%02d", c), (c*v)%5))
		}

		inputs = append(inputs, extract.VersionInput{
			RSN:    v,
			Label:  fmt.Sprintf("1.%d", v-1),
			Source: archive.NewMemory(fmt.Sprintf("v%d", v), files...),
		})
	}

	return inputs
}

func engine(opts ...framework.Option) *framework.Engine {
	base := []framework.Option{
		framework.WithProduct("demo"),
		framework.WithLogger(quiet),
		framework.WithExtractor(extract.NewVersionExtractor(extract.WithLogger(quiet), extract.WithWorkers(2))),
	}

	return framework.NewEngine(append(base, opts...)...)
}

func TestBuild_DeterministicAcrossConcurrency(t *testing.T) {
	t.Parallel()

	serial, err := engine().Build(context.Background(), evolvingInputs(6), 1)
	require.NoError(t, err)

	parallel, err := engine().Build(context.Background(), evolvingInputs(6), 8)
	require.NoError(t, err)

	assert.True(t, serial.Frozen())
	assert.Equal(t, "demo", serial.Product())
	assert.Equal(t, serial.Data(), parallel.Data())

	for i, s := range serial.Versions() {
		assert.Equal(t, i+1, s.RSN())
	}
}

func TestBuild_LinksVersions(t *testing.T) {
	t.Parallel()

	inputs := []extract.VersionInput{
		{RSN: 1, Label: "1.0", Source: archive.NewMemory("v1", classFile("p.A", 1))},
		{RSN: 2, Label: "1.1", Source: archive.NewMemory("v2", classFile("p.A", 1), classFile("p.B", 0))},
		{RSN: 3, Label: "1.2", Source: archive.NewMemory("v3", classFile("p.B", 2))},
	}

	h, err := engine().Build(context.Background(), inputs, 3)
	require.NoError(t, err)
	require.Equal(t, 3, h.Len())

	lineage := h.Lineage("p.A")
	require.Len(t, lineage, 3)
	assert.Equal(t, model.StatusNew, lineage[0].Record.Status)
	assert.Equal(t, model.StatusUnchanged, lineage[1].Record.Status)
	assert.Equal(t, model.StatusDeleted, lineage[2].Record.Status)

	b3, ok := h.Latest().Class("p.B")
	require.True(t, ok)
	assert.Equal(t, model.StatusModified, b3.Status)
	assert.Equal(t, 2, b3.BornRSN)
	assert.Equal(t, 1, b3.ModificationFrequency)
}

func TestBuild_CorruptEntryBecomesAdvisory(t *testing.T) {
	t.Parallel()

	files := make([]archive.MemoryFile, 0, 100)
	for i := range 99 {
		files = append(files, classFile(fmt.Sprintf("p.C%03d", i), 1))
	}

	files = append(files, archive.MemoryFile{Name: "p/Bad.class", Data: []byte("nope")})

	h, err := engine().Build(context.Background(), []extract.VersionInput{
		{RSN: 1, Label: "1.0", Source: archive.NewMemory("v1", files...)},
	}, 1)
	require.NoError(t, err)

	assert.Equal(t, 99, h.Latest().Len())
	require.Len(t, h.Advisories(), 1)
	assert.Equal(t, model.AdvisoryDecodeFailure, h.Advisories()[0].Kind)
	assert.Equal(t, "p/Bad.class", h.Advisories()[0].Entry)
}

func TestBuild_RebirthAdvisory(t *testing.T) {
	t.Parallel()

	inputs := []extract.VersionInput{
		{RSN: 1, Label: "1", Source: archive.NewMemory("v1", classFile("p.A", 1), classFile("p.K", 0))},
		{RSN: 2, Label: "2", Source: archive.NewMemory("v2", classFile("p.K", 0))},
		{RSN: 3, Label: "3", Source: archive.NewMemory("v3", classFile("p.A", 1), classFile("p.K", 0))},
	}

	h, err := engine().Build(context.Background(), inputs, 2)
	require.NoError(t, err)

	require.Len(t, h.Advisories(), 1)
	assert.Equal(t, model.AdvisoryRebirth, h.Advisories()[0].Kind)
	assert.Equal(t, "p.A", h.Advisories()[0].Class)
}

// blockingSource never yields entries and returns once ctx is done.
type blockingSource struct{}

func (blockingSource) Walk(ctx context.Context, _ archive.WalkFunc) error {
	<-ctx.Done()

	return ctx.Err()
}

func (blockingSource) Location() string { return "blocked" }

func TestBuild_CancelAfterTwoVersions(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	inputs := evolvingInputs(5)
	for i := 2; i < 5; i++ {
		inputs[i].Source = blockingSource{}
	}

	var once sync.Once

	e := engine(framework.WithObserver(func(p framework.Progress) {
		if p.Phase == framework.PhaseExtract && p.Completed == 2 {
			once.Do(cancel)
		}
	}))

	h, err := e.Build(ctx, inputs, 5)
	require.ErrorIs(t, err, framework.ErrCanceled)
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, h)
}

func TestSession_Cancel(t *testing.T) {
	t.Parallel()

	inputs := evolvingInputs(3)
	inputs[1].Source = blockingSource{}

	s := engine().Start(context.Background(), inputs, 2)
	s.Cancel()

	h, err := s.Wait()
	require.ErrorIs(t, err, framework.ErrCanceled)
	assert.Nil(t, h)

	select {
	case <-s.Done():
	default:
		t.Fatal("session not done after Wait")
	}
}

type failingSource struct{ err error }

func (f failingSource) Walk(context.Context, archive.WalkFunc) error { return f.err }
func (failingSource) Location() string                               { return "/releases/app-2.jar" }

func TestBuild_UnreadableVersionAborts(t *testing.T) {
	t.Parallel()

	inputs := evolvingInputs(4)
	inputs[1].Source = failingSource{err: &archive.EntryError{Entry: "lib/dep.jar", Err: archive.ErrUnreadable}}

	h, err := engine().Build(context.Background(), inputs, 2)
	require.Error(t, err)
	assert.Nil(t, h)
	require.ErrorIs(t, err, archive.ErrUnreadable)
	assert.NotErrorIs(t, err, framework.ErrCanceled)

	var ve *framework.VersionError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, 2, ve.RSN)
	assert.Equal(t, "1.1", ve.Label)
	assert.Equal(t, "/releases/app-2.jar", ve.Location)
	assert.Equal(t, "lib/dep.jar", ve.Entry)
	assert.Contains(t, err.Error(), "version 2 (1.1) at /releases/app-2.jar")
}

func TestBuild_RejectsBadInputs(t *testing.T) {
	t.Parallel()

	_, err := engine().Build(context.Background(), nil, 1)
	require.ErrorIs(t, err, framework.ErrNoVersions)

	inputs := evolvingInputs(3)
	inputs[2].RSN = 4

	_, err = engine().Build(context.Background(), inputs, 1)
	require.ErrorIs(t, err, model.ErrRSNGap)

	inputs = evolvingInputs(2)
	inputs[0].Source = nil

	_, err = engine().Build(context.Background(), inputs, 1)
	require.ErrorIs(t, err, framework.ErrMissingSource)
}

func TestBuild_ProgressEvents(t *testing.T) {
	t.Parallel()

	var (
		mu     sync.Mutex
		events []framework.Progress
	)

	e := engine(framework.WithObserver(func(p framework.Progress) {
		mu.Lock()
		events = append(events, p)
		mu.Unlock()
	}))

	_, err := e.Build(context.Background(), evolvingInputs(4), 3)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(events) == 8
	}, 5*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	var extracted, matchedRSN []int

	for _, p := range events {
		assert.Equal(t, 4, p.Total)

		switch p.Phase {
		case framework.PhaseExtract:
			extracted = append(extracted, p.Completed)
		case framework.PhaseMatch:
			matchedRSN = append(matchedRSN, p.RSN)
			assert.Equal(t, p.RSN, p.Completed)
		}
	}

	sort.Ints(extracted)
	assert.Equal(t, []int{1, 2, 3, 4}, extracted)
	assert.Equal(t, []int{1, 2, 3, 4}, matchedRSN)
}

func TestBuild_StuckObserverDoesNotBlock(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	defer close(release)

	var delivered atomic.Int32

	e := engine(framework.WithObserver(func(framework.Progress) {
		delivered.Add(1)
		<-release
	}))

	type outcome struct {
		h   *model.History
		err error
	}

	done := make(chan outcome, 1)

	go func() {
		h, err := e.Build(context.Background(), evolvingInputs(3), 2)
		done <- outcome{h, err}
	}()

	select {
	case out := <-done:
		require.NoError(t, out.err)
		assert.Equal(t, 3, out.h.Len())
	case <-time.After(5 * time.Second):
		t.Fatal("build blocked by a stuck observer")
	}

	// The first event stays stuck in the observer; nothing else is delivered.
	require.Eventually(t, func() bool { return delivered.Load() == 1 }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), delivered.Load())
}

func TestBuild_ResultIsReadOnly(t *testing.T) {
	t.Parallel()

	h, err := engine().Build(context.Background(), evolvingInputs(3), 2)
	require.NoError(t, err)

	before := h.Data()

	r, ok := h.Latest().Class("p.C00")
	require.True(t, ok)
	r.Status = model.StatusModified
	r.BornRSN = 7

	for _, c := range h.Latest().Classes() {
		c.Status = model.StatusDeleted
	}

	again, ok := h.Latest().Class("p.C00")
	require.True(t, ok)
	assert.Equal(t, 1, again.BornRSN)
	assert.Equal(t, 3, h.Latest().RSN())
	assert.Equal(t, before, h.Data())
}

type memoryCache struct {
	mu      sync.Mutex
	entries map[string]model.SnapshotData
	hits    int
}

func (c *memoryCache) Get(in extract.VersionInput) (*extract.VersionResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.entries[in.Source.Location()]
	if !ok {
		return nil, false
	}

	s, err := model.SnapshotFromData(d)
	if err != nil {
		return nil, false
	}

	c.hits++

	return &extract.VersionResult{Snapshot: s, Entries: s.Len()}, true
}

func (c *memoryCache) Put(in extract.VersionInput, res *extract.VersionResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[in.Source.Location()] = res.Snapshot.Data()

	return nil
}

func TestBuild_UsesSnapshotCache(t *testing.T) {
	t.Parallel()

	cache := &memoryCache{entries: map[string]model.SnapshotData{}}

	first, err := engine(framework.WithCache(cache)).Build(context.Background(), evolvingInputs(3), 2)
	require.NoError(t, err)
	assert.Zero(t, cache.hits)

	second, err := engine(framework.WithCache(cache)).Build(context.Background(), evolvingInputs(3), 2)
	require.NoError(t, err)
	assert.Equal(t, 3, cache.hits)
	assert.Equal(t, first.Data(), second.Data())
}
