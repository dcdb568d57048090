// Package derived evaluates cross-version metrics over a built history.
package derived

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/Sumatoshi-tech/jseries/internal/model"
)

// Sentinel errors.
var (
	// ErrUnknownMetric is returned for names missing from the registry.
	ErrUnknownMetric = errors.New("unknown derived metric")
	// ErrInvalidArgs is returned when a query does not fit the history.
	ErrInvalidArgs = errors.New("invalid derived metric arguments")
)

// Query carries the arguments of a derived metric. Each function reads only
// the fields it needs.
type Query struct {
	// Metric names a version metric, or a class metric summed over live classes.
	Metric string
	From   int
	To     int
	At     int
}

// Func computes a derived metric. Implementations must not mutate the history.
type Func func(h *model.History, q Query) (float64, error)

var registry = map[string]Func{
	"relativeGrowth":  relativeGrowth,
	"absoluteGrowth":  absoluteGrowth,
	"predictedSize":   predictedSize,
	"predictionError": predictionError,
	"modifiedRatio":   modifiedRatio,
	"survivalRate":    survivalRate,
	"meanAge":         meanAge,
	"churnRate":       churnRate,
}

// Names lists the registered metrics in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Lookup resolves a registered metric case-insensitively.
func Lookup(name string) (Func, error) {
	if fn, ok := registry[name]; ok {
		return fn, nil
	}

	for key, fn := range registry {
		if strings.EqualFold(key, name) {
			return fn, nil
		}
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, name)
}

// Evaluate computes a derived metric by name.
func Evaluate(h *model.History, name string, q Query) (float64, error) {
	fn, err := Lookup(name)
	if err != nil {
		return 0, err
	}

	return fn(h, q)
}

func version(h *model.History, rsn int) (*model.Snapshot, error) {
	s, ok := h.Version(rsn)
	if !ok {
		return nil, fmt.Errorf("%w: version %d outside 1..%d", ErrInvalidArgs, rsn, h.Len())
	}

	return s, nil
}

// size resolves q.Metric at one version: a version aggregate when the name
// is in the version vocabulary, otherwise a class metric summed over live
// classes.
func size(h *model.History, metric string, rsn int) (float64, error) {
	s, err := version(h, rsn)
	if err != nil {
		return 0, err
	}

	if metric == "" {
		return float64(s.Metric(model.VersionClassCount)), nil
	}

	if vm, err := model.ParseVersionMetric(metric); err == nil {
		return float64(s.Metric(vm)), nil
	}

	cm, err := model.ParseClassMetric(metric)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidArgs, err)
	}

	total, err := s.Sum(cm)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidArgs, err)
	}

	return total, nil
}

func absoluteGrowth(h *model.History, q Query) (float64, error) {
	from, err := size(h, q.Metric, q.From)
	if err != nil {
		return 0, err
	}

	to, err := size(h, q.Metric, q.To)
	if err != nil {
		return 0, err
	}

	return to - from, nil
}

func relativeGrowth(h *model.History, q Query) (float64, error) {
	from, err := size(h, q.Metric, q.From)
	if err != nil {
		return 0, err
	}

	to, err := size(h, q.Metric, q.To)
	if err != nil {
		return 0, err
	}

	if from == 0 {
		return 0, fmt.Errorf("%w: %s is zero at version %d", ErrInvalidArgs, metricName(q), q.From)
	}

	return (to - from) / from, nil
}

// predictedSize extrapolates linearly from versions At-1 and At to At+1.
func predictedSize(h *model.History, q Query) (float64, error) {
	if q.At < 2 {
		return 0, fmt.Errorf("%w: prediction needs a previous version, got at=%d", ErrInvalidArgs, q.At)
	}

	prev, err := size(h, q.Metric, q.At-1)
	if err != nil {
		return 0, err
	}

	cur, err := size(h, q.Metric, q.At)
	if err != nil {
		return 0, err
	}

	return math.Max(0, cur+(cur-prev)), nil
}

// predictionError is |predicted - observed| / observed at version At+1.
func predictionError(h *model.History, q Query) (float64, error) {
	predicted, err := predictedSize(h, q)
	if err != nil {
		return 0, err
	}

	observed, err := size(h, q.Metric, q.At+1)
	if err != nil {
		return 0, err
	}

	if observed == 0 {
		return 0, fmt.Errorf("%w: %s is zero at version %d", ErrInvalidArgs, metricName(q), q.At+1)
	}

	return math.Abs(predicted-observed) / observed, nil
}

func modifiedRatio(h *model.History, q Query) (float64, error) {
	s, err := version(h, q.At)
	if err != nil {
		return 0, err
	}

	return ratio(s.Metric(model.VersionModifiedClassCount), s.Metric(model.VersionClassCount), q.At)
}

func churnRate(h *model.History, q Query) (float64, error) {
	s, err := version(h, q.At)
	if err != nil {
		return 0, err
	}

	changed := s.Metric(model.VersionNewClassCount) +
		s.Metric(model.VersionModifiedClassCount) +
		s.Metric(model.VersionDeletedClassCount)

	return ratio(changed, s.Metric(model.VersionClassCount), q.At)
}

func meanAge(h *model.History, q Query) (float64, error) {
	s, err := version(h, q.At)
	if err != nil {
		return 0, err
	}

	live := s.Live()
	if len(live) == 0 {
		return 0, noClasses(q.At)
	}

	var total int

	for _, r := range live {
		total += r.Age
	}

	return float64(total) / float64(len(live)), nil
}

// survivalRate is the fraction of identities live at From that are still
// live at To within the same lifecycle. A re-born identity does not count.
func survivalRate(h *model.History, q Query) (float64, error) {
	if q.From > q.To {
		return 0, fmt.Errorf("%w: from %d after to %d", ErrInvalidArgs, q.From, q.To)
	}

	from, err := version(h, q.From)
	if err != nil {
		return 0, err
	}

	to, err := version(h, q.To)
	if err != nil {
		return 0, err
	}

	live := from.Live()
	if len(live) == 0 {
		return 0, noClasses(q.From)
	}

	survived := 0

	for _, r := range live {
		later, ok := to.Class(r.Name)
		if ok && later.Live() && later.BornRSN == r.BornRSN {
			survived++
		}
	}

	return float64(survived) / float64(len(live)), nil
}

// ratio divides by the live class count of version rsn.
func ratio(num, den int64, rsn int) (float64, error) {
	if den == 0 {
		return 0, noClasses(rsn)
	}

	return float64(num) / float64(den), nil
}

func noClasses(rsn int) error {
	return fmt.Errorf("%w: version %d has no live classes", ErrInvalidArgs, rsn)
}

func metricName(q Query) string {
	if q.Metric == "" {
		return model.VersionClassCount.String()
	}

	return q.Metric
}
