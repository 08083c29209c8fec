package cluster

import (
	"sort"
	"time"
)

// TimeRange is a closed interval during which a cluster was visited.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Duration returns the length of the interval.
func (r TimeRange) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Intersects reports whether r and o overlap or touch.
func (r TimeRange) Intersects(o TimeRange) bool {
	return !r.Start.After(o.End) && !o.Start.After(r.End)
}

// Equal reports whether both ranges cover the same instants.
func (r TimeRange) Equal(o TimeRange) bool {
	return r.Start.Equal(o.Start) && r.End.Equal(o.End)
}

// coalesceTimes returns the union of the given ranges as a sorted list of
// disjoint, non-touching intervals.
func coalesceTimes(ranges []TimeRange) []TimeRange {
	if len(ranges) == 0 {
		return nil
	}

	sorted := make([]TimeRange, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].Start.Equal(sorted[j].Start) {
			return sorted[i].Start.Before(sorted[j].Start)
		}
		return sorted[i].End.Before(sorted[j].End)
	})

	out := []TimeRange{sorted[0]}
	for _, r := range sorted[1:] {
		last := &out[len(out)-1]
		if !r.Start.After(last.End) {
			if r.End.After(last.End) {
				last.End = r.End
			}
			continue
		}
		out = append(out, r)
	}
	return out
}
