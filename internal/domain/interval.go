package domain

import (
	"sort"
	"time"
)

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (i Interval) Empty() bool {
	return !i.End.After(i.Start)
}

func (i Interval) Duration() time.Duration {
	if i.Empty() {
		return 0
	}
	return i.End.Sub(i.Start)
}

func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

func (i Interval) Contains(o Interval) bool {
	return !o.Start.Before(i.Start) && !o.End.After(i.End)
}

// NormalizeIntervals drops empty intervals, sorts by start and merges
// overlapping or adjacent ones. The input slice is not modified.
func NormalizeIntervals(in []Interval) []Interval {
	sorted := make([]Interval, 0, len(in))
	for _, iv := range in {
		if !iv.Empty() {
			sorted = append(sorted, iv)
		}
	}
	sort.Slice(sorted, func(a, b int) bool {
		if sorted[a].Start.Equal(sorted[b].Start) {
			return sorted[a].End.Before(sorted[b].End)
		}
		return sorted[a].Start.Before(sorted[b].Start)
	})

	out := make([]Interval, 0, len(sorted))
	for _, iv := range sorted {
		n := len(out)
		if n > 0 && !iv.Start.After(out[n-1].End) {
			if iv.End.After(out[n-1].End) {
				out[n-1].End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

func SubtractInterval(in []Interval, cut Interval) []Interval {
	if cut.Empty() {
		return in
	}
	out := make([]Interval, 0, len(in)+1)
	for _, iv := range in {
		if !iv.Overlaps(cut) {
			out = append(out, iv)
			continue
		}
		if iv.Start.Before(cut.Start) {
			out = append(out, Interval{Start: iv.Start, End: cut.Start})
		}
		if cut.End.Before(iv.End) {
			out = append(out, Interval{Start: cut.End, End: iv.End})
		}
	}
	return out
}

func UnionIntervals(a []Interval, b ...Interval) []Interval {
	all := make([]Interval, 0, len(a)+len(b))
	all = append(all, a...)
	all = append(all, b...)
	return NormalizeIntervals(all)
}
