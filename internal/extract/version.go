package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/Sumatoshi-tech/jseries/internal/model"
	"github.com/Sumatoshi-tech/jseries/pkg/archive"
	"github.com/Sumatoshi-tech/jseries/pkg/classfile"
)

// ErrDecode wraps failures to read or decode a single entry. Such failures
// are absorbed into advisories and never fail the version.
var ErrDecode = errors.New("entry decode failed")

// maxClassWorkers caps the per-version decode fan-out.
const maxClassWorkers = 8

// VersionInput is one version of the product to extract.
type VersionInput struct {
	RSN   int
	Label string
	// Timestamp is the release time. When zero, the newest entry
	// modification time is used instead.
	Timestamp time.Time
	Source    archive.Source
}

// VersionResult is the outcome of extracting one version.
type VersionResult struct {
	Snapshot   *model.Snapshot
	Advisories []model.Advisory
	Entries    int
	Skipped    int
}

// DecodeFunc turns raw class bytes into a descriptor.
type DecodeFunc func(data []byte) (*classfile.Descriptor, error)

// VersionExtractor builds unmatched snapshots from version inputs. It keeps
// no state between calls and is safe for concurrent use.
type VersionExtractor struct {
	workers int
	logger  *slog.Logger
	decode  DecodeFunc
}

// Option configures a VersionExtractor.
type Option func(*VersionExtractor)

// WithWorkers sets the per-version decode fan-out. Values <= 0 select a
// CPU-derived default.
func WithWorkers(n int) Option {
	return func(x *VersionExtractor) {
		if n > 0 {
			x.workers = n
		}
	}
}

// WithLogger sets the advisory logger.
func WithLogger(l *slog.Logger) Option {
	return func(x *VersionExtractor) {
		if l != nil {
			x.logger = l
		}
	}
}

// WithDecoder replaces the class-file decoder.
func WithDecoder(fn DecodeFunc) Option {
	return func(x *VersionExtractor) {
		if fn != nil {
			x.decode = fn
		}
	}
}

// NewVersionExtractor creates an extractor.
func NewVersionExtractor(opts ...Option) *VersionExtractor {
	x := &VersionExtractor{
		workers: min(runtime.GOMAXPROCS(0), maxClassWorkers),
		logger:  slog.Default(),
		decode:  classfile.DecodeBytes,
	}

	for _, opt := range opts {
		opt(x)
	}

	return x
}

// classJob is one entry read from the archive, tagged with its walk order.
type classJob struct {
	seq  int
	name string
	data []byte
	err  error
}

type classResult struct {
	seq    int
	entry  string
	record *model.ClassRecord
	err    error
}

// Extract walks the input and decodes its classes. Entry I/O happens on the
// calling goroutine in walk order; decoding fans out to the worker pool.
// Duplicate identities resolve to the entry visited last.
func (x *VersionExtractor) Extract(ctx context.Context, in VersionInput) (*VersionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	jobs := make(chan classJob, x.workers)
	results := make(chan classResult, x.workers)

	wg := x.startWorkers(jobs, results)

	var collected []classResult

	done := make(chan struct{})

	go func() {
		defer close(done)

		for r := range results {
			collected = append(collected, r)
		}
	}()

	newest, entries, walkErr := x.dispatch(ctx, in.Source, jobs)

	close(jobs)
	wg.Wait()
	close(results)
	<-done

	if walkErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		return nil, walkErr
	}

	timestamp := in.Timestamp
	if timestamp.IsZero() {
		timestamp = newest
	}

	res := &VersionResult{
		Snapshot: model.NewSnapshot(in.RSN, in.Label, timestamp),
		Entries:  entries,
	}

	x.assemble(in, collected, res)

	return res, nil
}

// dispatch reads entries sequentially and hands them to the workers.
func (x *VersionExtractor) dispatch(
	ctx context.Context,
	src archive.Source,
	jobs chan<- classJob,
) (newest time.Time, entries int, err error) {
	err = src.Walk(ctx, func(e archive.Entry) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if e.Modified.After(newest) {
			newest = e.Modified
		}

		data, readErr := readEntry(e)
		job := classJob{seq: entries, name: e.Name, data: data, err: readErr}
		entries++

		select {
		case jobs <- job:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	return newest, entries, err
}

func readEntry(e archive.Entry) ([]byte, error) {
	rc, err := e.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return io.ReadAll(rc)
}

// startWorkers launches decode workers. Every job yields exactly one result.
func (x *VersionExtractor) startWorkers(jobs <-chan classJob, results chan<- classResult) *sync.WaitGroup {
	var wg sync.WaitGroup

	wg.Add(x.workers)

	for range x.workers {
		go func() {
			defer wg.Done()

			for job := range jobs {
				results <- x.decodeJob(job)
			}
		}()
	}

	return &wg
}

func (x *VersionExtractor) decodeJob(job classJob) classResult {
	res := classResult{seq: job.seq, entry: job.name}

	if job.err != nil {
		res.err = fmt.Errorf("%w: %s: %w", ErrDecode, job.name, job.err)

		return res
	}

	desc, err := x.decode(job.data)
	if err != nil {
		res.err = fmt.Errorf("%w: %s: %w", ErrDecode, job.name, err)

		return res
	}

	rec, err := Class(desc)
	if err != nil {
		res.err = fmt.Errorf("%w: %s: %w", ErrDecode, job.name, err)

		return res
	}

	res.record = rec

	return res
}

// assemble inserts decoded records in walk order and records advisories.
func (x *VersionExtractor) assemble(in VersionInput, collected []classResult, res *VersionResult) {
	sort.Slice(collected, func(i, j int) bool { return collected[i].seq < collected[j].seq })

	owner := make(map[string]string, len(collected))

	for _, r := range collected {
		if r.err != nil {
			res.Skipped++
			res.Advisories = append(res.Advisories, model.Advisory{
				Kind:    model.AdvisoryDecodeFailure,
				RSN:     in.RSN,
				Label:   in.Label,
				Entry:   r.entry,
				Message: r.err.Error(),
			})

			x.logger.Warn("skipping undecodable entry",
				"rsn", in.RSN, "version", in.Label, "entry", r.entry, "error", r.err)

			continue
		}

		replaced, _ := res.Snapshot.Put(r.record)
		if replaced {
			res.Advisories = append(res.Advisories, model.Advisory{
				Kind:    model.AdvisoryDuplicate,
				RSN:     in.RSN,
				Label:   in.Label,
				Entry:   r.entry,
				Class:   r.record.Name,
				Message: "duplicate identity replaces entry " + owner[r.record.Name],
			})

			x.logger.Warn("duplicate class identity, keeping last entry",
				"rsn", in.RSN, "version", in.Label, "entry", r.entry,
				"class", r.record.Name, "previous", owner[r.record.Name])
		}

		owner[r.record.Name] = r.entry
	}
}
