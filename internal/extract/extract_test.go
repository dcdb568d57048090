package extract_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/jseries/internal/extract"
	"github.com/Sumatoshi-tech/jseries/internal/model"
	"github.com/Sumatoshi-tech/jseries/pkg/archive"
	"github.com/Sumatoshi-tech/jseries/pkg/classfile"
	cft "github.com/Sumatoshi-tech/jseries/pkg/classfile/classfiletest"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func widget() *classfile.Descriptor {
	data := cft.New("com.acme.Widget").
		Super("com.acme.Base").
		Implements("java.lang.Runnable").
		Field("count", "I", cft.Private).
		Field("LIMIT", "I", cft.Public|cft.Static|cft.Final).
		Field("cache", "Ljava/util/Map;", cft.Protected).
		Method("<init>", "()V", cft.Public,
			cft.Local(0x19, 0),
			cft.Invoke(0xb7, "com.acme.Base", "<init>", "()V"),
			cft.Op(0xb1),
		).
		AddMethod(cft.Method{
			Name:      "run",
			Desc:      "()V",
			Access:    cft.Public | cft.Final,
			Throws:    []string{"java.io.IOException", "java.lang.InterruptedException"},
			Handlers:  2,
			MaxLocals: 3,
			MaxStack:  4,
			Code: []cft.Insn{
				cft.Local(0x19, 0),
				cft.Field(0xb4, "com.acme.Widget", "count", "I"),
				cft.Branch(0x9a, 10),
				cft.Local(0x19, 0),
				cft.Op(0x03),
				cft.Field(0xb5, "com.acme.Widget", "count", "I"),
				cft.Local(0x36, 1),
				cft.Iinc(1, 1),
				cft.Ldc("hello"),
				cft.Type(0xbb, "java.lang.IllegalStateException"),
				cft.Op(0xbf),
			},
		}).
		Method("helper", "(ILjava/lang/String;)I", cft.Private|cft.Static,
			cft.Local(0x15, 0),
			cft.Op(0xac),
		).
		Method("shape", "()V", cft.Protected|cft.Abstract).
		Inner("com.acme.Widget$Part", "com.acme.Widget").
		Bytes()

	desc, err := classfile.DecodeBytes(data)
	if err != nil {
		panic(err)
	}

	return desc
}

func TestClass_Counters(t *testing.T) {
	t.Parallel()

	rec, err := extract.Class(widget())
	require.NoError(t, err)

	want := map[model.ClassMetric]int64{
		model.ClassFieldCount:           3,
		model.ClassMethodCount:          4,
		model.ClassInterfaceCount:       1,
		model.ClassInnerClassCount:      1,
		model.ClassPublicFieldCount:     1,
		model.ClassPrivateFieldCount:    1,
		model.ClassProtectedFieldCount:  1,
		model.ClassStaticFieldCount:     1,
		model.ClassFinalFieldCount:      1,
		model.ClassPublicMethodCount:    2,
		model.ClassPrivateMethodCount:   1,
		model.ClassProtectedMethodCount: 1,
		model.ClassStaticMethodCount:    1,
		model.ClassFinalMethodCount:     1,
		model.ClassAbstractMethodCount:  1,
		model.ClassIsPublic:             1,
		model.ClassIsAbstract:           0,
		model.ClassInstructionCount:     16,
		model.ClassBranchCount:          1,
		model.ClassMethodCallCount:      1,
		model.ClassFieldLoadCount:       1,
		model.ClassFieldStoreCount:      1,
		model.ClassLoadCount:            4,
		model.ClassStoreCount:           1,
		model.ClassConstantLoadCount:    2,
		model.ClassIncrementCount:       1,
		model.ClassTypeInsnCount:        1,
		model.ClassThrowCount:           1,
		model.ClassTryCatchBlockCount:   2,
		model.ClassExceptionCount:       2,
	}

	for m, v := range want {
		assert.Equal(t, v, rec.Counters[m], m.String())
	}

	assert.Equal(t, "Widget", rec.ShortName)
	assert.Equal(t, "com.acme", rec.Package)
	assert.Equal(t, "com.acme.Base", rec.SuperClass)
	assert.Equal(t, int64(len(rec.Dependencies)), rec.Counters[model.ClassFanOutCount])
	assert.Contains(t, rec.Dependencies, "java.lang.IllegalStateException")
	assert.Positive(t, rec.Counters[model.ClassRawSize])
	assert.InDelta(t, 0.8, rec.LoadRatio(), 1e-9)
}

func TestClass_MethodRecords(t *testing.T) {
	t.Parallel()

	rec, err := extract.Class(widget())
	require.NoError(t, err)

	assert.Equal(t, []string{"<init>()V", "helper(ILjava/lang/String;)I", "run()V", "shape()V"}, rec.MethodSignatures())

	run := rec.Methods["run()V"]
	assert.Equal(t, int64(11), run.Value(model.MethodInstructionCount))
	assert.Equal(t, int64(1), run.Value(model.MethodBranchCount))
	assert.Equal(t, int64(2), run.Value(model.MethodExceptionCount))
	assert.Equal(t, int64(2), run.Value(model.MethodTryCatchBlockCount))
	assert.Equal(t, int64(3), run.Value(model.MethodLocalVarCount))
	assert.Equal(t, int64(4), run.Value(model.MethodMaxStack))
	assert.Equal(t, int64(1), run.Value(model.MethodThrowCount))
	assert.Equal(t, int64(1), run.Value(model.MethodIsFinal))

	helper := rec.Methods["helper(ILjava/lang/String;)I"]
	assert.Equal(t, int64(2), helper.Value(model.MethodParameterCount))
	assert.Equal(t, int64(1), helper.Value(model.MethodIsStatic))

	assert.Equal(t, int64(1), rec.Methods["<init>()V"].Value(model.MethodIsConstructor))
	assert.Equal(t, int64(1), rec.Methods["shape()V"].Value(model.MethodIsAbstract))
}

func TestClass_RejectsIncompleteDescriptors(t *testing.T) {
	t.Parallel()

	_, err := extract.Class(nil)
	require.ErrorIs(t, err, extract.ErrIncompleteDescriptor)

	_, err = extract.Class(&classfile.Descriptor{Name: "a.B"})
	require.ErrorIs(t, err, extract.ErrIncompleteDescriptor)

	_, err = extract.Class(&classfile.Descriptor{
		Name:      "a.B",
		SuperName: "java.lang.Object",
		Methods:   []classfile.Method{{Name: "f", Descriptor: "()V"}},
	})
	require.ErrorIs(t, err, extract.ErrIncompleteDescriptor)

	rec, err := extract.Class(&classfile.Descriptor{Name: "java.lang.Object"})
	require.NoError(t, err)
	assert.Equal(t, "Object", rec.ShortName)
}

func classFile(name string, fields int) archive.MemoryFile {
	b := cft.New(name)
	for i := range fields {
		b.Field(fmt.Sprintf("f%d", i), "I", cft.Private)
	}

	return archive.MemoryFile{Name: name + ".class", Data: b.Bytes()}
}

func TestExtract_SkipsCorruptEntry(t *testing.T) {
	t.Parallel()

	files := make([]archive.MemoryFile, 0, 101)
	for i := range 100 {
		files = append(files, classFile(fmt.Sprintf("p.C%03d", i), i%5))
	}

	files = append(files[:50], append([]archive.MemoryFile{{Name: "p/Corrupt.class", Data: []byte{0xCA, 0xFE, 0xBA}}}, files[50:]...)...)

	x := extract.NewVersionExtractor(extract.WithWorkers(4), extract.WithLogger(quiet))

	res, err := x.Extract(context.Background(), extract.VersionInput{
		RSN:    1,
		Label:  "1.0",
		Source: archive.NewMemory("v1", files...),
	})
	require.NoError(t, err)

	assert.Equal(t, 100, res.Snapshot.Len())
	assert.Equal(t, 101, res.Entries)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.Advisories, 1)
	assert.Equal(t, model.AdvisoryDecodeFailure, res.Advisories[0].Kind)
	assert.Equal(t, "p/Corrupt.class", res.Advisories[0].Entry)
	assert.Contains(t, res.Advisories[0].Message, extract.ErrDecode.Error())
}

func TestExtract_DuplicateLastWriteWins(t *testing.T) {
	t.Parallel()

	first := classFile("p.Dup", 1)
	first.Name = "a/p/Dup.class"
	second := classFile("p.Dup", 3)
	second.Name = "b/p/Dup.class"

	for _, workers := range []int{1, 8} {
		x := extract.NewVersionExtractor(extract.WithWorkers(workers), extract.WithLogger(quiet))

		res, err := x.Extract(context.Background(), extract.VersionInput{
			RSN:    2,
			Label:  "2.0",
			Source: archive.NewMemory("v2", first, second),
		})
		require.NoError(t, err)

		rec, ok := res.Snapshot.Class("p.Dup")
		require.True(t, ok)
		assert.Equal(t, int64(3), rec.Counters[model.ClassFieldCount])
		require.Len(t, res.Advisories, 1)
		assert.Equal(t, model.AdvisoryDuplicate, res.Advisories[0].Kind)
		assert.Equal(t, "b/p/Dup.class", res.Advisories[0].Entry)
		assert.Equal(t, "p.Dup", res.Advisories[0].Class)
	}
}

func TestExtract_TimestampFallback(t *testing.T) {
	t.Parallel()

	older := classFile("p.A", 0)
	older.Modified = time.Date(2019, 5, 1, 0, 0, 0, 0, time.UTC)
	newer := classFile("p.B", 0)
	newer.Modified = time.Date(2020, 7, 1, 0, 0, 0, 0, time.UTC)

	x := extract.NewVersionExtractor(extract.WithLogger(quiet))

	res, err := x.Extract(context.Background(), extract.VersionInput{
		RSN: 1, Label: "1.0", Source: archive.NewMemory("v", older, newer),
	})
	require.NoError(t, err)
	assert.Equal(t, newer.Modified, res.Snapshot.Timestamp())

	explicit := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	res, err = x.Extract(context.Background(), extract.VersionInput{
		RSN: 1, Label: "1.0", Timestamp: explicit, Source: archive.NewMemory("v", older, newer),
	})
	require.NoError(t, err)
	assert.Equal(t, explicit, res.Snapshot.Timestamp())
}

func TestExtract_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	x := extract.NewVersionExtractor(extract.WithLogger(quiet))

	_, err := x.Extract(ctx, extract.VersionInput{RSN: 1, Source: archive.NewMemory("v", classFile("p.A", 1))})
	require.ErrorIs(t, err, context.Canceled)
}

type failingSource struct{}

func (failingSource) Walk(context.Context, archive.WalkFunc) error { return archive.ErrUnreadable }
func (failingSource) Location() string                             { return "broken" }

func TestExtract_UnreadableArchive(t *testing.T) {
	t.Parallel()

	x := extract.NewVersionExtractor(extract.WithLogger(quiet))

	_, err := x.Extract(context.Background(), extract.VersionInput{RSN: 1, Source: failingSource{}})
	require.ErrorIs(t, err, archive.ErrUnreadable)
}
