// Package conflict is the one place where intervals are compared. Every
// overlap decision in booking and availability goes through Overlaps.
package conflict

import (
	"slices"

	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/model"
)

// Overlaps reports whether two half-open intervals intersect. Intervals that
// only touch at an endpoint do not overlap.
func Overlaps(a, b model.Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// Contains reports whether inner lies entirely within outer.
func Contains(outer, inner model.Interval) bool {
	return !inner.Start.Before(outer.Start) && !inner.End.After(outer.End)
}

// FirstConflict returns the first active appointment other than excludeID
// whose interval overlaps candidate.
func FirstConflict(candidate model.Interval, existing []model.Appointment, excludeID string) (model.Appointment, bool) {
	for _, a := range existing {
		if a.ID == excludeID || !a.Status.Active() {
			continue
		}
		if Overlaps(candidate, a.Interval()) {
			return a, true
		}
	}
	return model.Appointment{}, false
}

// Merge sorts intervals and coalesces overlapping or touching ones.
func Merge(in []model.Interval) []model.Interval {
	if len(in) == 0 {
		return nil
	}
	sorted := make([]model.Interval, 0, len(in))
	for _, iv := range in {
		if !iv.Empty() {
			sorted = append(sorted, iv)
		}
	}
	slices.SortFunc(sorted, func(a, b model.Interval) int { return a.Start.Compare(b.Start) })

	var out []model.Interval
	for _, iv := range sorted {
		if n := len(out); n > 0 && !iv.Start.After(out[n-1].End) {
			if iv.End.After(out[n-1].End) {
				out[n-1].End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

// Subtract removes every busy interval from free. free must be merged; the
// result stays sorted and disjoint.
func Subtract(free []model.Interval, busy []model.Interval) []model.Interval {
	out := slices.Clone(free)
	for _, b := range busy {
		next := out[:0:0]
		for _, f := range out {
			if !Overlaps(f, b) {
				next = append(next, f)
				continue
			}
			if f.Start.Before(b.Start) {
				next = append(next, model.Interval{Start: f.Start, End: b.Start})
			}
			if b.End.Before(f.End) {
				next = append(next, model.Interval{Start: b.End, End: f.End})
			}
		}
		out = next
	}
	return out
}

// Clip intersects every interval with bounds, dropping the empty results.
func Clip(in []model.Interval, bounds model.Interval) []model.Interval {
	var out []model.Interval
	for _, iv := range in {
		if !Overlaps(iv, bounds) {
			continue
		}
		if iv.Start.Before(bounds.Start) {
			iv.Start = bounds.Start
		}
		if iv.End.After(bounds.End) {
			iv.End = bounds.End
		}
		out = append(out, iv)
	}
	return out
}

// Covered reports whether candidate fits entirely inside one of the intervals.
func Covered(candidate model.Interval, in []model.Interval) bool {
	for _, iv := range in {
		if Contains(iv, candidate) {
			return true
		}
	}
	return false
}
