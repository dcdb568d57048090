package report

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"

	"github.com/Sumatoshi-tech/jseries/internal/framework"
	"github.com/Sumatoshi-tech/jseries/internal/model"
)

// DefaultProgressInterval is the minimum gap between progress lines.
const DefaultProgressInterval = 250 * time.Millisecond

// ProgressPrinter writes throttled build progress lines. The last event of
// each phase is always printed.
type ProgressPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	limiter *rate.Limiter
	stopped bool
}

// NewProgressPrinter prints at most one line per interval. A zero interval
// prints every event.
func NewProgressPrinter(w io.Writer, interval time.Duration) *ProgressPrinter {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}

	return &ProgressPrinter{w: w, limiter: rate.NewLimiter(limit, 1)}
}

// Observe is a framework.Observer.
func (p *ProgressPrinter) Observe(ev framework.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped || (ev.Completed < ev.Total && !p.limiter.Allow()) {
		return
	}

	fmt.Fprintf(p.w, "%-7s %d/%d  version %d (%s)\n", ev.Phase, ev.Completed, ev.Total, ev.RSN, ev.Label)
}

// Stop drops events that arrive after the build has returned. It is safe on
// a nil printer.
func (p *ProgressPrinter) Stop() {
	if p == nil {
		return
	}

	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
}

// WriteSummary prints a one-line outcome of a build.
func WriteSummary(w io.Writer, h *model.History, elapsed time.Duration) error {
	latest := h.Latest()

	var classes int64
	if latest != nil {
		classes = latest.Metric(model.VersionClassCount)
	}

	_, err := fmt.Fprintf(w, "built %s: %d versions, %s classes in the latest, %d advisories, took %s\n",
		h.Product(), h.Len(), humanize.Comma(classes), len(h.Advisories()), elapsed.Round(time.Millisecond))

	return err
}

// WriteSaved reports a stored build with the size of the store file.
func WriteSaved(w io.Writer, buildID, path string, size int64) error {
	_, err := fmt.Fprintf(w, "saved build %s to %s (%s)\n", buildID, path, humanize.Bytes(uint64(max(size, 0))))

	return err
}
