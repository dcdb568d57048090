// Package evolution classifies each class identity of a version against the
// immediately preceding version.
package evolution

import (
	"errors"
	"fmt"

	"github.com/Sumatoshi-tech/jseries/internal/model"
)

// ErrOutOfOrder is returned when the two snapshots are not consecutive.
var ErrOutOfOrder = errors.New("snapshots are not consecutive")

// Match annotates cur in place against prev, which may be nil for the first
// version. Identities are matched by exact name through map lookups, so a
// step costs O(|prev| + |cur|). Identities that vanished are carried into
// cur as DELETED tombstones. The returned advisories report re-births of
// previously deleted identities.
func Match(prev, cur *model.Snapshot) ([]model.Advisory, error) {
	if cur.Frozen() {
		return nil, fmt.Errorf("match version %d: %w", cur.RSN(), model.ErrFrozen)
	}

	if prev != nil && prev.RSN()+1 != cur.RSN() {
		return nil, fmt.Errorf("%w: %d then %d", ErrOutOfOrder, prev.RSN(), cur.RSN())
	}

	var advisories []model.Advisory

	for _, rec := range cur.Classes() {
		var before *model.ClassRecord

		if prev != nil {
			before, _ = prev.Class(rec.Name)
		}

		switch {
		case before == nil:
			born(rec, cur.RSN())
		case !before.Live():
			born(rec, cur.RSN())

			advisories = append(advisories, model.Advisory{
				Kind:    model.AdvisoryRebirth,
				RSN:     cur.RSN(),
				Label:   cur.Label(),
				Class:   rec.Name,
				Message: fmt.Sprintf("identity deleted at version %d reappears; starting a new lifecycle", before.DeletedRSN),
			})
		default:
			carry(before, rec, cur.RSN())
		}
	}

	if prev == nil {
		return advisories, nil
	}

	for _, before := range prev.Classes() {
		if _, ok := cur.Class(before.Name); ok {
			continue
		}

		if _, err := cur.Put(tombstone(before, cur.RSN())); err != nil {
			return nil, err
		}
	}

	return advisories, nil
}

func born(rec *model.ClassRecord, rsn int) {
	rec.Status = model.StatusNew
	rec.BornRSN = rsn
	rec.Age = 0
	rec.ModificationFrequency = 0
	rec.Distance = 0
	rec.DeletedRSN = 0
}

func carry(before, rec *model.ClassRecord, rsn int) {
	rec.BornRSN = before.BornRSN
	rec.ModificationFrequency = before.ModificationFrequency
	rec.Age = rsn - rec.BornRSN
	rec.DeletedRSN = 0
	rec.Distance = Distance(before, rec)

	if rec.Distance == 0 {
		rec.Status = model.StatusUnchanged

		return
	}

	rec.Status = model.StatusModified
	rec.ModificationFrequency++
}

// tombstone copies a vanished record verbatim. An existing tombstone is
// carried forward unchanged.
func tombstone(before *model.ClassRecord, rsn int) *model.ClassRecord {
	rec := before.Clone()

	if before.Live() {
		rec.Status = model.StatusDeleted
		rec.DeletedRSN = rsn
		rec.Distance = 0
	}

	return rec
}

// Distance is the structural distance between two records of one identity:
// the sum of absolute differences over the compared counters, plus one when
// the superclass changed. Zero means the comparison subset is equal.
func Distance(a, b *model.ClassRecord) int {
	var d int64

	for i := range model.NumClassCounters {
		m := model.ClassMetric(i)
		if !m.Compared() {
			continue
		}

		diff := a.Counters[m] - b.Counters[m]
		if diff < 0 {
			diff = -diff
		}

		d += diff
	}

	if a.SuperClass != b.SuperClass {
		d++
	}

	return int(d)
}
