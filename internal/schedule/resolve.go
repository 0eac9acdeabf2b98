package schedule

import (
	"sort"
	"time"

	"appointly/backend/internal/domain"
)

// OpenIntervals maps each day of a range to its bookable intervals, sorted
// by start and non-overlapping. Closed days map to an empty slice.
type OpenIntervals map[domain.Date][]domain.Interval

// Between flattens the days of the range, in order, into one list.
func (o OpenIntervals) Between(r domain.DateRange) []domain.Interval {
	var out []domain.Interval
	for _, d := range r.Days() {
		out = append(out, o[d]...)
	}
	return domain.NormalizeIntervals(out)
}

// Resolve computes the open intervals of every day in r from a calendar
// snapshot. It performs no I/O.
//
// Per day: the active template's slots, minus breaks, minus approved
// subtractive exceptions, plus approved extra hours.
func Resolve(cal domain.Calendar, r domain.DateRange) (OpenIntervals, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	loc, err := cal.Professional.Location()
	if err != nil {
		return nil, err
	}

	days := r.Days()
	out := make(OpenIntervals, len(days))
	for _, d := range days {
		out[d] = resolveDay(cal, d, loc)
	}
	return out, nil
}

func resolveDay(cal domain.Calendar, d domain.Date, loc *time.Location) []domain.Interval {
	open := templateIntervals(cal, d, loc)
	open = applyBreaks(open, cal.Breaks, d, loc)

	var extra []domain.Interval
	for i := range cal.Exceptions {
		ex := &cal.Exceptions[i]
		if !ex.AppliesOn(d) {
			continue
		}
		w := ex.DailyWindow().On(d, loc)
		if ex.IsAdditive() {
			extra = append(extra, w)
			continue
		}
		open = domain.SubtractInterval(open, w)
	}

	out := domain.UnionIntervals(open, extra...)
	if out == nil {
		out = []domain.Interval{}
	}
	return out
}

func templateIntervals(cal domain.Calendar, d domain.Date, loc *time.Location) []domain.Interval {
	tpl, ok := cal.ActiveTemplate(d)
	if !ok {
		return nil
	}
	day, ok := tpl.Day(d.Weekday())
	if !ok || !day.IsWorkDay {
		return nil
	}
	out := make([]domain.Interval, 0, len(day.Slots))
	for _, s := range day.Slots {
		out = append(out, s.On(d, loc))
	}
	return domain.NormalizeIntervals(out)
}

// applyBreaks removes fixed breaks first, then places each flexible break
// at the earliest start inside its window where it fits entirely in open
// time. A flexible break that fits nowhere is skipped for the day.
func applyBreaks(open []domain.Interval, rules []domain.BreakRule, d domain.Date, loc *time.Location) []domain.Interval {
	if len(open) == 0 {
		return open
	}

	var flexible []*domain.BreakRule
	for i := range rules {
		b := &rules[i]
		if !b.AppliesOn(d.Weekday()) {
			continue
		}
		if b.IsFlexible() {
			if b.WindowStart != nil && b.WindowEnd != nil {
				flexible = append(flexible, b)
			}
			continue
		}
		start := d.At(*b.FixedStart, loc)
		open = domain.SubtractInterval(open, domain.Interval{Start: start, End: start.Add(b.Duration())})
	}

	sort.SliceStable(flexible, func(i, j int) bool { return *flexible[i].WindowStart < *flexible[j].WindowStart })
	for _, b := range flexible {
		window := domain.TimeSlot{Start: *b.WindowStart, End: *b.WindowEnd}.On(d, loc)
		if placed, ok := placeBreak(open, window, b.Duration()); ok {
			open = domain.SubtractInterval(open, placed)
		}
	}
	return open
}

func placeBreak(open []domain.Interval, window domain.Interval, dur time.Duration) (domain.Interval, bool) {
	for _, iv := range open {
		start := iv.Start
		if window.Start.After(start) {
			start = window.Start
		}
		end := iv.End
		if window.End.Before(end) {
			end = window.End
		}
		if !start.Add(dur).After(end) {
			return domain.Interval{Start: start, End: start.Add(dur)}, true
		}
	}
	return domain.Interval{}, false
}
