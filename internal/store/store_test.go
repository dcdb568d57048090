package store_test

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/jseries/internal/extract"
	"github.com/Sumatoshi-tech/jseries/internal/framework"
	"github.com/Sumatoshi-tech/jseries/internal/model"
	"github.com/Sumatoshi-tech/jseries/internal/store"
	"github.com/Sumatoshi-tech/jseries/pkg/archive"
	cft "github.com/Sumatoshi-tech/jseries/pkg/classfile/classfiletest"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func class(name, super string, fields int, methods ...string) archive.MemoryFile {
	b := cft.New(name)
	if super != "" {
		b.Super(super)
	}

	for i := range fields {
		b.Field(fmt.Sprintf("f%d", i), "I", cft.Private)
	}

	for _, m := range methods {
		b.Method(m, "()V", cft.Public)
	}

	return archive.MemoryFile{Name: name + ".class", Data: b.Bytes()}
}

func buildHistory(t *testing.T, product string, versions int) *model.History {
	t.Helper()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	inputs := make([]extract.VersionInput, 0, versions)

	for v := 1; v <= versions; v++ {
		files := []archive.MemoryFile{
			class("p.Base", "", v, "run"),
			class("p.Impl", "p.Base", 1, "run", fmt.Sprintf("step%d", v)),
		}
		if v%2 == 1 {
			files = append(files, class("p.Odd", "", 0))
		}

		inputs = append(inputs, extract.VersionInput{
			RSN:       v,
			Label:     fmt.Sprintf("1.%d", v),
			Timestamp: base.AddDate(0, v, 0),
			Source:    archive.NewMemory(fmt.Sprintf("v%d", v), files...),
		})
	}

	e := framework.NewEngine(framework.WithProduct(product), framework.WithLogger(quiet),
		framework.WithExtractor(extract.NewVersionExtractor(extract.WithLogger(quiet))))

	h, err := e.Build(context.Background(), inputs, 2)
	require.NoError(t, err)

	return h
}

func openStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	h := buildHistory(t, "demo", 4)

	id, err := s.Save(context.Background(), h)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	got, err := s.Load(context.Background(), "demo")
	require.NoError(t, err)

	assert.True(t, got.Frozen())
	assert.Equal(t, h.Data(), got.Data())

	odd := got.Lineage("p.Odd")
	require.Len(t, odd, 4)
	assert.Equal(t, model.StatusDeleted, odd[1].Record.Status)
	assert.Equal(t, model.StatusNew, odd[2].Record.Status)
}

func TestSaveLoad_KeepsAdvisories(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	h := buildHistory(t, "demo", 3)
	require.NotEmpty(t, h.Advisories())

	_, err := s.Save(context.Background(), h)
	require.NoError(t, err)

	got, err := s.Load(context.Background(), "demo")
	require.NoError(t, err)
	assert.Equal(t, h.Advisories(), got.Advisories())
}

func TestLoad_NotFound(t *testing.T) {
	t.Parallel()

	s := openStore(t)

	_, err := s.Load(context.Background(), "missing")
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.LoadBuild(context.Background(), "no-such-id")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestLoad_LatestBuildWins(t *testing.T) {
	t.Parallel()

	s := openStore(t)

	_, err := s.Save(context.Background(), buildHistory(t, "demo", 2))
	require.NoError(t, err)

	newer := buildHistory(t, "demo", 3)
	id, err := s.Save(context.Background(), newer)
	require.NoError(t, err)

	got, err := s.Load(context.Background(), "demo")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Len())

	products, err := s.Products(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, id, products[0].BuildID)
	assert.Equal(t, 3, products[0].Versions)
}

func TestProducts_SortedByName(t *testing.T) {
	t.Parallel()

	s := openStore(t)

	for _, name := range []string{"zeta", "alpha"} {
		_, err := s.Save(context.Background(), buildHistory(t, name, 1))
		require.NoError(t, err)
	}

	products, err := s.Products(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "alpha", products[0].Name)
	assert.Equal(t, "zeta", products[1].Name)
	assert.False(t, products[0].BuiltAt.IsZero())
}

func TestSave_RequiresProduct(t *testing.T) {
	t.Parallel()

	s := openStore(t)

	_, err := s.Save(context.Background(), buildHistory(t, "", 1))
	require.Error(t, err)
}

func TestOpen_ReopensExistingStore(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "history.db")

	s, err := store.Open(context.Background(), path)
	require.NoError(t, err)

	_, err = s.Save(context.Background(), buildHistory(t, "demo", 2))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = store.Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	got, err := s.Load(context.Background(), "demo")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Len())
	assert.Equal(t, path, s.Path())
}

func TestOpen_RejectsNewerSchema(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "history.db")

	s, err := store.Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO schema_migrations(version) VALUES (?)`, store.SchemaVersion+1)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = store.Open(context.Background(), path)
	require.ErrorIs(t, err, store.ErrSchemaTooNew)
}

func TestOpen_RejectsDirectory(t *testing.T) {
	t.Parallel()

	_, err := store.Open(context.Background(), t.TempDir())
	require.Error(t, err)

	_, err = store.Open(context.Background(), "  ")
	require.Error(t, err)
}
