package archive_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/jseries/pkg/archive"
)

func zipBytes(t *testing.T, files map[string][]byte, order ...string) []byte {
	t.Helper()

	var buf bytes.Buffer

	zw := zip.NewWriter(&buf)

	for _, name := range order {
		w, err := zw.Create(name)
		require.NoError(t, err)

		_, err = w.Write(files[name])
		require.NoError(t, err)
	}

	require.NoError(t, zw.Close())

	return buf.Bytes()
}

func collect(t *testing.T, src archive.Source) map[string]string {
	t.Helper()

	got := map[string]string{}

	err := src.Walk(context.Background(), func(e archive.Entry) error {
		rc, err := e.Open()
		if err != nil {
			return err
		}
		defer rc.Close()

		data, err := io.ReadAll(rc)
		if err != nil {
			return err
		}

		got[e.Name] = string(data)

		return nil
	})
	require.NoError(t, err)

	return got
}

func TestFilter_Match(t *testing.T) {
	t.Parallel()

	f, err := archive.NewFilter(archive.Options{
		IncludeInner: false,
		Exclude:      []string{"**/test/**"},
	})
	require.NoError(t, err)

	assert.True(t, f.Match("com/acme/Widget.class"))
	assert.False(t, f.Match("com/acme/Widget$1.class"))
	assert.False(t, f.Match("META-INF/MANIFEST.MF"))
	assert.False(t, f.Match("module-info.class"))
	assert.False(t, f.Match("com/acme/package-info.class"))
	assert.False(t, f.Match("com/acme/test/WidgetTest.class"))
	assert.True(t, f.Match("lib/dep.jar!/org/dep/Util.class"))

	withInner, err := archive.NewFilter(archive.Options{IncludeInner: true, Include: []string{"com/**"}})
	require.NoError(t, err)
	assert.True(t, withInner.Match("com/acme/Widget$1.class"))
	assert.False(t, withInner.Match("org/other/Thing.class"))
	assert.True(t, withInner.Match("lib/dep.jar!/com/dep/Util.class"))

	_, err = archive.NewFilter(archive.Options{Include: []string{"[unterminated"}})
	require.Error(t, err)
}

func TestOpen_Directory(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "com", "acme"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "com", "acme", "A.class"), []byte("a"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "com", "acme", "A$1.class"), []byte("inner"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.txt"), []byte("doc"), 0o600))

	jar := zipBytes(t, map[string][]byte{"x/Y.class": []byte("y")}, "x/Y.class")
	require.NoError(t, os.WriteFile(filepath.Join(root, "lib.jar"), jar, 0o600))

	src, err := archive.Open(root, archive.Options{IncludeInner: true})
	require.NoError(t, err)
	assert.Equal(t, root, src.Location())

	assert.Equal(t, map[string]string{
		"com/acme/A.class":   "a",
		"com/acme/A$1.class": "inner",
		"lib.jar!/x/Y.class": "y",
	}, collect(t, src))
}

func TestOpen_NestedJar(t *testing.T) {
	t.Parallel()

	inner := zipBytes(t, map[string][]byte{"org/dep/Util.class": []byte("util")}, "org/dep/Util.class")
	outer := zipBytes(t, map[string][]byte{
		"com/acme/Main.class":  []byte("main"),
		"WEB-INF/lib/dep.jar":  inner,
		"META-INF/MANIFEST.MF": []byte("Manifest-Version: 1.0"),
	}, "com/acme/Main.class", "WEB-INF/lib/dep.jar", "META-INF/MANIFEST.MF")

	p := filepath.Join(t.TempDir(), "app.war")
	require.NoError(t, os.WriteFile(p, outer, 0o600))

	src, err := archive.Open(p, archive.Options{})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"com/acme/Main.class":                     "main",
		"WEB-INF/lib/dep.jar!/org/dep/Util.class": "util",
	}, collect(t, src))
}

func TestOpen_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, err := archive.Open(filepath.Join(dir, "missing.jar"), archive.Options{})
	require.ErrorIs(t, err, archive.ErrUnreadable)

	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("x"), 0o600))

	_, err = archive.Open(txt, archive.Options{})
	require.ErrorIs(t, err, archive.ErrUnsupported)

	broken := filepath.Join(dir, "broken.jar")
	require.NoError(t, os.WriteFile(broken, []byte("not a zip"), 0o600))

	src, err := archive.Open(broken, archive.Options{})
	require.NoError(t, err)

	err = src.Walk(context.Background(), func(archive.Entry) error { return nil })
	require.ErrorIs(t, err, archive.ErrUnreadable)
}

func TestMemory_WalkStopsOnCancel(t *testing.T) {
	t.Parallel()

	src := archive.NewMemory("mem",
		archive.MemoryFile{Name: "a/A.class", Data: []byte("a")},
		archive.MemoryFile{Name: "a/B.class", Data: []byte("b")},
	)

	ctx, cancel := context.WithCancel(context.Background())

	var seen []string

	err := src.Walk(ctx, func(e archive.Entry) error {
		seen = append(seen, e.Name)
		cancel()

		return nil
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"a/A.class"}, seen)
}

func TestOpen_CorruptNestedArchiveNamesEntry(t *testing.T) {
	t.Parallel()

	outer := zipBytes(t, map[string][]byte{
		"com/acme/Main.class": []byte("main"),
		"lib/bad.jar":         []byte("garbage"),
	}, "com/acme/Main.class", "lib/bad.jar")

	p := filepath.Join(t.TempDir(), "app.jar")
	require.NoError(t, os.WriteFile(p, outer, 0o600))

	src, err := archive.Open(p, archive.Options{})
	require.NoError(t, err)

	err = src.Walk(context.Background(), func(archive.Entry) error { return nil })
	require.ErrorIs(t, err, archive.ErrUnreadable)

	var entryErr *archive.EntryError
	require.ErrorAs(t, err, &entryErr)
	assert.Equal(t, "lib/bad.jar", entryErr.Entry)
}
