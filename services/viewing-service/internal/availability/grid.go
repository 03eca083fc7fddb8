package availability

import (
	"iter"
	"time"

	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/conflict"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/model"
)

// Grid is the free/busy picture of one agent over a range.
type Grid struct {
	// Windows are the merged working windows as instants. Slot alignment is
	// anchored at each window's start.
	Windows []model.Interval
	// Free is Windows minus blocked intervals minus busy intervals.
	Free []model.Interval
}

// Expand resolves wall-clock windows to the instants they cover within
// [from, to). A dated window replaces every weekly window on its date.
// Windows are not clipped to the range so slot anchors stay stable.
func Expand(windows []model.AvailabilityWindow, from, to time.Time) []model.Interval {
	overridden := make(map[string]bool)
	for _, w := range windows {
		if w.Dated() {
			overridden[w.Date] = true
		}
	}

	var out []model.Interval
	for _, w := range windows {
		loc := w.Loc()
		first := from.In(loc)
		last := to.In(loc)
		day := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, -1)
		for !day.After(last) {
			y, m, d := day.Date()
			key := day.Format(time.DateOnly)
			day = day.AddDate(0, 0, 1)

			if w.Dated() {
				if w.Date != key {
					continue
				}
			} else if w.Weekday != time.Date(y, m, d, 12, 0, 0, 0, loc).Weekday() || overridden[key] {
				continue
			}
			iv := model.Interval{Start: w.Start.On(y, m, d, loc), End: w.End.On(y, m, d, loc)}
			if conflict.Overlaps(iv, model.Interval{Start: from, End: to}) {
				out = append(out, iv)
			}
		}
	}
	return conflict.Merge(out)
}

// Blocked collects the union of blocked intervals attached to windows.
func Blocked(windows []model.AvailabilityWindow) []model.Interval {
	var out []model.Interval
	for _, w := range windows {
		out = append(out, w.Blocked...)
	}
	return conflict.Merge(out)
}

// Open is the bookable time before appointments are taken into account.
func Open(windows []model.AvailabilityWindow, from, to time.Time) []model.Interval {
	return conflict.Subtract(Expand(windows, from, to), Blocked(windows))
}

// BuildGrid subtracts blocked intervals and busy appointment intervals from
// the agent's windows.
func BuildGrid(windows []model.AvailabilityWindow, busy []model.Interval, from, to time.Time) Grid {
	expanded := Expand(windows, from, to)
	free := conflict.Subtract(expanded, Blocked(windows))
	free = conflict.Subtract(free, conflict.Merge(busy))
	return Grid{Windows: expanded, Free: free}
}

// Slots yields granularity-sized slots inside [from, to) that fit entirely in
// free time, ordered by start. Slots starting before notBefore are skipped.
// The sequence is computed from the grid alone and can be ranged repeatedly.
func (g Grid) Slots(from, to time.Time, granularity time.Duration, notBefore time.Time) iter.Seq[model.Interval] {
	return func(yield func(model.Interval) bool) {
		if granularity <= 0 || !to.After(from) {
			return
		}
		free := 0
		for _, w := range g.Windows {
			t := w.Start
			if t.Before(from) {
				steps := (from.Sub(t) + granularity - 1) / granularity
				t = t.Add(steps * granularity)
			}
			limit := w.End
			if to.Before(limit) {
				limit = to
			}
			for ; !t.Add(granularity).After(limit); t = t.Add(granularity) {
				if t.Before(notBefore) {
					continue
				}
				slot := model.NewInterval(t, granularity)
				for free < len(g.Free) && !g.Free[free].End.After(slot.Start) {
					free++
				}
				if free < len(g.Free) && conflict.Contains(g.Free[free], slot) {
					if !yield(slot) {
						return
					}
				}
			}
		}
	}
}
