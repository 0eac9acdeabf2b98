package domain

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// MaxRecurrenceOccurrences caps how many sibling appointments one recurring
// booking request may create.
const MaxRecurrenceOccurrences = 52

// RecurrenceRule describes a weekly recurring booking. ByWeekday uses ISO
// numbering (1 = Monday … 7 = Sunday); an empty set means the weekday of the
// first occurrence.
type RecurrenceRule struct {
	Interval  int
	ByWeekday []int16
	Until     *time.Time
	Count     *int
	Timezone  string
}

// ExpandWeekly returns the start instants of the series beginning at dtstart,
// keeping the local wall-clock time stable across DST changes.
func ExpandWeekly(rule RecurrenceRule, dtstart time.Time) ([]time.Time, error) {
	loc, err := time.LoadLocation(rule.Timezone)
	if err != nil {
		return nil, errors.New("invalid time_zone")
	}
	if rule.Until == nil && rule.Count == nil {
		return nil, errors.New("until or count is required")
	}

	limit := MaxRecurrenceOccurrences
	if rule.Count != nil {
		c := *rule.Count
		if c < 1 {
			return nil, errors.New("count must be at least 1")
		}
		if c > MaxRecurrenceOccurrences {
			return nil, fmt.Errorf("count must not exceed %d", MaxRecurrenceOccurrences)
		}
		limit = c
	}
	if rule.Until != nil && rule.Until.Before(dtstart) {
		return nil, errors.New("until must be after the first occurrence")
	}

	interval := rule.Interval
	if interval < 1 {
		interval = 1
	}

	local := dtstart.In(loc)
	weekdays, err := normalizeWeekdays(rule.ByWeekday, local.Weekday())
	if err != nil {
		return nil, err
	}

	firstMonday := mondayDate(local)
	out := make([]time.Time, 0, limit)
	for week := 0; ; week++ {
		monday := firstMonday.AddDays(week * interval * 7)
		for _, wd := range weekdays {
			day := monday.AddDays(weekdayOffsetFromMonday(wd))
			start := time.Date(day.Year, day.Month, day.Day, local.Hour(), local.Minute(), local.Second(), 0, loc)
			if start.Before(dtstart) {
				continue
			}
			if rule.Until != nil && start.After(*rule.Until) {
				return out, nil
			}
			if len(out) == limit {
				// Only until-bounded rules get here: count-bounded ones
				// return as soon as the count is reached.
				return nil, fmt.Errorf("until spans more than %d occurrences", MaxRecurrenceOccurrences)
			}
			out = append(out, start.UTC())
			if rule.Count != nil && len(out) == limit {
				return out, nil
			}
		}
	}
}

func normalizeWeekdays(in []int16, fallback time.Weekday) ([]int16, error) {
	if len(in) == 0 {
		if fallback == time.Sunday {
			return []int16{7}, nil
		}
		return []int16{int16(fallback)}, nil
	}
	seen := make(map[int16]struct{}, len(in))
	out := make([]int16, 0, len(in))
	for _, wd := range in {
		if wd < 1 || wd > 7 {
			return nil, errors.New("invalid weekday")
		}
		if _, ok := seen[wd]; ok {
			continue
		}
		seen[wd] = struct{}{}
		out = append(out, wd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func mondayDate(t time.Time) Date {
	offset := int(t.Weekday()) - 1
	if t.Weekday() == time.Sunday {
		offset = 6
	}
	return DateOf(t).AddDays(-offset)
}

func weekdayOffsetFromMonday(weekday int16) int {
	if weekday == 7 {
		return 6
	}
	return int(weekday) - 1
}
