package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

const (
	attrTraceID = "trace_id"
	attrSpanID  = "span_id"
	attrService = "service"
	attrEnv     = "env"
	attrMode    = "mode"

	attrProduct = "product"
	attrRSN     = "rsn"
	attrVersion = "version"
)

type logAttrsKey struct{}

// WithProduct returns ctx carrying the product a build works on. Records
// logged with it through a [TracingHandler] get a product attribute.
func WithProduct(ctx context.Context, product string) context.Context {
	return withLogAttrs(ctx, slog.String(attrProduct, product))
}

// WithVersion returns ctx carrying the version being extracted or matched.
// Records logged with it get rsn and version attributes.
func WithVersion(ctx context.Context, rsn int, label string) context.Context {
	return withLogAttrs(ctx, slog.Int(attrRSN, rsn), slog.String(attrVersion, label))
}

func withLogAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	prev := logAttrs(ctx)
	merged := make([]slog.Attr, 0, len(prev)+len(attrs))
	merged = append(merged, prev...)
	merged = append(merged, attrs...)

	return context.WithValue(ctx, logAttrsKey{}, merged)
}

func logAttrs(ctx context.Context) []slog.Attr {
	attrs, _ := ctx.Value(logAttrsKey{}).([]slog.Attr)

	return attrs
}

// TracingHandler is an [slog.Handler] that adds trace_id and span_id from the
// active span, plus the build attributes carried by the context. Service
// metadata is attached once at construction so it stays at the top level
// when groups are used later.
type TracingHandler struct {
	inner slog.Handler
}

// NewTracingHandler wraps inner with trace correlation and service metadata.
func NewTracingHandler(inner slog.Handler, service, env string, mode AppMode) *TracingHandler {
	attrs := []slog.Attr{
		slog.String(attrService, service),
		slog.String(attrMode, string(mode)),
	}

	if env != "" {
		attrs = append(attrs, slog.String(attrEnv, env))
	}

	return &TracingHandler{inner: inner.WithAttrs(attrs)}
}

// Enabled delegates to the inner handler.
func (th *TracingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return th.inner.Enabled(ctx, level)
}

// Handle adds trace context and build attributes and delegates. A build
// attribute already set on the record wins over the context.
func (th *TracingHandler) Handle(ctx context.Context, record slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		record.AddAttrs(
			slog.String(attrTraceID, sc.TraceID().String()),
			slog.String(attrSpanID, sc.SpanID().String()),
		)
	}

	if attrs := logAttrs(ctx); len(attrs) > 0 {
		addMissing(&record, attrs)
	}

	if err := th.inner.Handle(ctx, record); err != nil {
		return fmt.Errorf("tracing handler: %w", err)
	}

	return nil
}

func addMissing(record *slog.Record, attrs []slog.Attr) {
	set := make(map[string]bool, record.NumAttrs())

	record.Attrs(func(a slog.Attr) bool {
		set[a.Key] = true

		return true
	})

	// Later context values override earlier ones with the same key.
	latest := make(map[string]slog.Attr, len(attrs))
	order := make([]string, 0, len(attrs))

	for _, a := range attrs {
		if _, seen := latest[a.Key]; !seen {
			order = append(order, a.Key)
		}

		latest[a.Key] = a
	}

	for _, key := range order {
		if !set[key] {
			record.AddAttrs(latest[key])
		}
	}
}

// WithAttrs returns a handler with extra attributes on the inner handler.
func (th *TracingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TracingHandler{inner: th.inner.WithAttrs(attrs)}
}

// WithGroup returns a handler with a group prefix on the inner handler.
func (th *TracingHandler) WithGroup(name string) slog.Handler {
	return &TracingHandler{inner: th.inner.WithGroup(name)}
}

// NewLogger builds the process logger writing to w.
func NewLogger(w io.Writer, cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}

	var inner slog.Handler
	if cfg.LogJSON {
		inner = slog.NewJSONHandler(w, opts)
	} else {
		inner = slog.NewTextHandler(w, opts)
	}

	return slog.New(NewTracingHandler(inner, cfg.ServiceName, cfg.Environment, cfg.Mode))
}
