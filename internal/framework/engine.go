// Package framework runs the history build: versions are extracted in
// parallel and matched against their predecessor strictly in RSN order.
package framework

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/jseries/internal/evolution"
	"github.com/Sumatoshi-tech/jseries/internal/extract"
	"github.com/Sumatoshi-tech/jseries/internal/model"
	"github.com/Sumatoshi-tech/jseries/internal/observability"
)

const tracerName = "jseries"

// SnapshotCache stores extraction results between builds. Get must return
// a result the caller may mutate.
type SnapshotCache interface {
	Get(in extract.VersionInput) (*extract.VersionResult, bool)
	Put(in extract.VersionInput, res *extract.VersionResult) error
}

// Engine builds histories. It is safe to run several builds concurrently.
type Engine struct {
	product   string
	extractor *extract.VersionExtractor
	logger    *slog.Logger
	tracer    trace.Tracer
	metrics   *observability.BuildMetrics
	cache     SnapshotCache
	observers []Observer
}

// Option configures an Engine.
type Option func(*Engine)

// WithProduct names the product recorded on built histories.
func WithProduct(name string) Option {
	return func(e *Engine) { e.product = name }
}

// WithExtractor replaces the default version extractor.
func WithExtractor(x *extract.VersionExtractor) Option {
	return func(e *Engine) {
		if x != nil {
			e.extractor = x
		}
	}
}

// WithLogger sets the build logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTracer sets the tracer. The global provider is used otherwise.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithMetrics records build metrics. Nil disables them.
func WithMetrics(m *observability.BuildMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithCache enables the snapshot cache.
func WithCache(c SnapshotCache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithObserver registers a progress observer.
func WithObserver(obs Observer) Option {
	return func(e *Engine) {
		if obs != nil {
			e.observers = append(e.observers, obs)
		}
	}
}

// NewEngine creates an engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{logger: slog.Default()}

	for _, opt := range opts {
		opt(e)
	}

	if e.extractor == nil {
		e.extractor = extract.NewVersionExtractor(extract.WithLogger(e.logger))
	}

	return e
}

func (e *Engine) tracerOrGlobal() trace.Tracer {
	if e.tracer != nil {
		return e.tracer
	}

	return otel.Tracer(tracerName)
}

// DefaultConcurrency is the number of versions extracted at once when the
// caller passes zero.
func DefaultConcurrency() int {
	return max(1, runtime.GOMAXPROCS(0)/2)
}

// versionSlot carries one version through the pipeline. done is closed
// once res or err is set.
type versionSlot struct {
	in   extract.VersionInput
	res  *extract.VersionResult
	err  error
	done chan struct{}
}

// build is the state of one Build call.
type build struct {
	engine *Engine
	total  int
	notify *notifier

	mu        sync.Mutex
	extracted int
}

// Build extracts every input and links consecutive versions. Inputs must
// carry RSNs 1..n in order. The result is frozen. On cancellation it
// returns an error matching ErrCanceled and no history; a failing version
// aborts the build with a *VersionError.
func (e *Engine) Build(ctx context.Context, inputs []extract.VersionInput, concurrency int) (*model.History, error) {
	ctx = observability.WithProduct(ctx, e.product)

	ctx, span := e.tracerOrGlobal().Start(ctx, "jseries.build",
		trace.WithAttributes(
			attribute.String("jseries.product", e.product),
			attribute.Int("jseries.versions", len(inputs)),
		))
	defer span.End()

	h, err := e.build(ctx, inputs, concurrency)

	switch {
	case err == nil:
		e.metrics.RecordBuild(ctx, observability.StatusOK)
		e.logger.InfoContext(ctx, "history built", "versions", h.Len(), "advisories", len(h.Advisories()))
	case ctx.Err() != nil:
		e.metrics.RecordBuild(context.WithoutCancel(ctx), observability.StatusCanceled)
		e.logger.InfoContext(ctx, "history build canceled")
	default:
		e.metrics.RecordBuild(ctx, observability.StatusError)
		observability.RecordSpanError(span, err)
	}

	return h, err
}

func (e *Engine) build(parent context.Context, inputs []extract.VersionInput, concurrency int) (*model.History, error) {
	if len(inputs) == 0 {
		return nil, ErrNoVersions
	}

	for i, in := range inputs {
		if in.RSN != i+1 {
			return nil, fmt.Errorf("%w: input %d has RSN %d", model.ErrRSNGap, i, in.RSN)
		}

		if in.Source == nil {
			return nil, newVersionError(in.RSN, in.Label, "", ErrMissingSource)
		}
	}

	if concurrency <= 0 {
		concurrency = DefaultConcurrency()
	}

	concurrency = min(concurrency, len(inputs))

	// A failed version cancels the remaining extraction work.
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	b := &build{engine: e, total: len(inputs), notify: newNotifier(e.observers)}
	defer b.notify.close()

	slots := make(chan *versionSlot, len(inputs))
	jobs := make(chan *versionSlot, concurrency)

	go b.dispatch(ctx, inputs, slots, jobs)

	wg := b.startWorkers(ctx, jobs, concurrency)

	h, err := b.link(ctx, slots)

	cancel()
	wg.Wait()

	if err != nil {
		if parent.Err() != nil {
			return nil, canceled(parent)
		}

		return nil, err
	}

	return h, nil
}

// dispatch queues every version in RSN order and stops scheduling new
// extraction work once ctx is done.
func (b *build) dispatch(ctx context.Context, inputs []extract.VersionInput, slots, jobs chan<- *versionSlot) {
	defer close(slots)
	defer close(jobs)

	for _, in := range inputs {
		if ctx.Err() != nil {
			return
		}

		slot := &versionSlot{in: in, done: make(chan struct{})}

		slots <- slot

		select {
		case jobs <- slot:
		case <-ctx.Done():
			slot.err = ctx.Err()
			close(slot.done)

			return
		}
	}
}

func (b *build) startWorkers(ctx context.Context, jobs <-chan *versionSlot, workers int) *sync.WaitGroup {
	var wg sync.WaitGroup

	wg.Add(workers)

	for range workers {
		go func() {
			defer wg.Done()

			for slot := range jobs {
				if err := ctx.Err(); err != nil {
					slot.err = err
				} else {
					slot.res, slot.err = b.engine.extractVersion(ctx, slot.in)
				}

				if slot.err == nil {
					b.extractedOne(slot)
				}

				close(slot.done)
			}
		}()
	}

	return &wg
}

func (b *build) extractedOne(slot *versionSlot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.extracted++
	b.notify.publish(Progress{
		Phase:     PhaseExtract,
		RSN:       slot.in.RSN,
		Label:     slot.in.Label,
		Completed: b.extracted,
		Total:     b.total,
	})
}

// link consumes slots in RSN order and matches each version against the
// previous one as soon as its extraction is done.
func (b *build) link(ctx context.Context, slots <-chan *versionSlot) (*model.History, error) {
	e := b.engine
	h := model.NewHistory(e.product)

	var (
		prev       *model.Snapshot
		advisories []model.Advisory
		linked     int
	)

	for slot := range slots {
		select {
		case <-slot.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		if slot.err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			return nil, newVersionError(slot.in.RSN, slot.in.Label, location(slot.in), slot.err)
		}

		cur := slot.res.Snapshot
		advisories = append(advisories, slot.res.Advisories...)

		rebirths, err := e.matchVersion(ctx, prev, cur)
		if err != nil {
			return nil, newVersionError(slot.in.RSN, slot.in.Label, location(slot.in), err)
		}

		advisories = append(advisories, rebirths...)

		if err := h.Append(cur); err != nil {
			return nil, err
		}

		linked++
		b.notify.publish(Progress{
			Phase:     PhaseMatch,
			RSN:       cur.RSN(),
			Label:     cur.Label(),
			Completed: linked,
			Total:     b.total,
		})

		prev = cur
	}

	// dispatch stops early on cancellation, which closes slots short.
	if linked < b.total {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		return nil, fmt.Errorf("linked %d of %d versions", linked, b.total)
	}

	if err := h.AddAdvisories(advisories...); err != nil {
		return nil, err
	}

	h.Freeze()

	return h, nil
}

func (e *Engine) extractVersion(ctx context.Context, in extract.VersionInput) (*extract.VersionResult, error) {
	ctx = observability.WithVersion(ctx, in.RSN, in.Label)

	ctx, span := e.tracerOrGlobal().Start(ctx, "jseries.extract_version",
		trace.WithAttributes(
			attribute.Int("jseries.rsn", in.RSN),
			attribute.String("jseries.version", in.Label),
		))
	defer span.End()

	done := e.metrics.TrackInflight(ctx)
	defer done()

	start := time.Now()

	if e.cache != nil {
		if res, ok := e.cache.Get(in); ok {
			span.SetAttributes(attribute.Bool("jseries.cache_hit", true))
			e.recordVersion(ctx, res, time.Since(start), true)

			return res, nil
		}
	}

	res, err := e.extractor.Extract(ctx, in)
	if err != nil {
		observability.RecordSpanError(span, err)

		return nil, err
	}

	if e.cache != nil {
		if err := e.cache.Put(in, res); err != nil {
			e.logger.WarnContext(ctx, "snapshot cache write failed", "error", err)
		}
	}

	e.recordVersion(ctx, res, time.Since(start), false)

	return res, nil
}

func (e *Engine) recordVersion(ctx context.Context, res *extract.VersionResult, d time.Duration, cached bool) {
	e.metrics.RecordVersion(ctx, observability.VersionStats{
		Classes:  res.Snapshot.Len(),
		Skipped:  res.Skipped,
		Duration: d,
		Cached:   cached,
	})

	e.logger.DebugContext(ctx, "version extracted",
		"classes", res.Snapshot.Len(), "skipped", res.Skipped, "cached", cached, "duration", d)
}

func (e *Engine) matchVersion(ctx context.Context, prev, cur *model.Snapshot) ([]model.Advisory, error) {
	ctx = observability.WithVersion(ctx, cur.RSN(), cur.Label())

	ctx, span := e.tracerOrGlobal().Start(ctx, "jseries.match_version",
		trace.WithAttributes(attribute.Int("jseries.rsn", cur.RSN())))
	defer span.End()

	advisories, err := evolution.Match(prev, cur)
	if err != nil {
		observability.RecordSpanError(span, err)

		return nil, err
	}

	for _, adv := range advisories {
		e.logger.WarnContext(ctx, "deleted class reappears",
			"rsn", adv.RSN, "version", adv.Label, "class", adv.Class)
	}

	return advisories, nil
}

func location(in extract.VersionInput) string {
	if in.Source == nil {
		return ""
	}

	return in.Source.Location()
}
