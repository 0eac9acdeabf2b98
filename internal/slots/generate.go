package slots

import (
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"appointly/backend/internal/domain"
)

var (
	ErrOutsideOpenHours    = errors.New("window is outside open hours")
	ErrOverlapsAppointment = errors.New("window overlaps an existing appointment")
	ErrOutsideAdvance      = errors.New("start is outside the bookable advance window")
)

// Input is everything Generate needs. It is never mutated.
type Input struct {
	ProfessionalID uuid.UUID
	Preferred      bool

	Open     []domain.Interval
	Duration domain.ServiceDurationModel
	Mode     domain.DurationMode
	Existing []domain.Appointment
	// Ignore excludes one appointment from the conflict check (the one
	// being rescheduled).
	Ignore uuid.UUID

	Step     time.Duration
	Now      time.Time
	Policy   domain.TenantPolicy
	Location *time.Location
}

type Candidate struct {
	ProfessionalID uuid.UUID `json:"professional_id"`
	Preferred      bool      `json:"preferred"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
}

// Generate returns every step-aligned start s for which
// [s, s+duration+buffer) lies inside one open interval, does not touch the
// blocked window of any active appointment and respects the advance rules.
// Output is ascending by start.
func Generate(in Input) []Candidate {
	dur := in.Duration.Bookable(in.Mode)
	if dur <= 0 {
		return nil
	}
	need := dur + in.Duration.Buffer()
	step := in.Step
	if step <= 0 {
		step = in.Policy.Step()
	}
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}
	blocked := blockedWindows(in.Existing, in.Ignore)
	earliest := in.Policy.EarliestStart(in.Now)
	latest, bounded := in.Policy.LatestStart(in.Now)

	var out []Candidate
	for _, iv := range domain.NormalizeIntervals(in.Open) {
		for s := alignUp(iv.Start, step, loc); !s.Add(need).After(iv.End); s = s.Add(step) {
			if s.Before(earliest) {
				continue
			}
			if bounded && s.After(latest) {
				break
			}
			w := domain.Interval{Start: s, End: s.Add(need)}
			if overlapsAny(blocked, w) {
				continue
			}
			out = append(out, Candidate{
				ProfessionalID: in.ProfessionalID,
				Preferred:      in.Preferred,
				Start:          s,
				End:            s.Add(dur),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// Fits validates a single requested start. Unlike Generate it does not
// require grid alignment.
func Fits(in Input, start time.Time) error {
	dur := in.Duration.Bookable(in.Mode)
	w := domain.Interval{Start: start, End: start.Add(dur + in.Duration.Buffer())}

	if start.Before(in.Policy.EarliestStart(in.Now)) {
		return ErrOutsideAdvance
	}
	if latest, ok := in.Policy.LatestStart(in.Now); ok && start.After(latest) {
		return ErrOutsideAdvance
	}

	inside := false
	for _, iv := range domain.NormalizeIntervals(in.Open) {
		if iv.Contains(w) {
			inside = true
			break
		}
	}
	if !inside {
		return ErrOutsideOpenHours
	}
	if overlapsAny(blockedWindows(in.Existing, in.Ignore), w) {
		return ErrOverlapsAppointment
	}
	return nil
}

// Merge orders candidates from several professionals by start time. Ties go
// to preferred professionals first, then to the lower professional id.
func Merge(lists ...[]Candidate) []Candidate {
	var out []Candidate
	for _, l := range lists {
		out = append(out, l...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		if a.Preferred != b.Preferred {
			return a.Preferred
		}
		return a.ProfessionalID.String() < b.ProfessionalID.String()
	})
	return out
}

func blockedWindows(appts []domain.Appointment, ignore uuid.UUID) []domain.Interval {
	out := make([]domain.Interval, 0, len(appts))
	for i := range appts {
		a := &appts[i]
		if !a.Status.IsActive() || (ignore != uuid.Nil && a.ID == ignore) {
			continue
		}
		out = append(out, a.Window())
	}
	return out
}

func overlapsAny(blocked []domain.Interval, w domain.Interval) bool {
	for _, b := range blocked {
		if b.Overlaps(w) {
			return true
		}
	}
	return false
}

// alignUp returns the first instant at or after t that sits on the step grid
// anchored at t's local midnight.
func alignUp(t time.Time, step time.Duration, loc *time.Location) time.Time {
	local := t.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	offset := t.Sub(midnight)
	if rem := offset % step; rem != 0 {
		offset += step - rem
	}
	return midnight.Add(offset)
}
