package schedule

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"appointly/backend/internal/domain"
	"appointly/backend/internal/store"
)

var proID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

func mustDate(t *testing.T, s string) domain.Date {
	t.Helper()
	d, err := domain.ParseDate(s)
	if err != nil {
		t.Fatalf("ParseDate(%q): %v", s, err)
	}
	return d
}

func clock(h, m int) *domain.ClockTime {
	c := domain.NewClock(h, m)
	return &c
}

func weekdayTemplate(slots ...domain.TimeSlot) domain.WorkingHoursTemplate {
	tpl := domain.WorkingHoursTemplate{ProfessionalID: proID, Name: "default", IsActive: true}
	for wd := time.Monday; wd <= time.Friday; wd++ {
		tpl.Days = append(tpl.Days, domain.DaySchedule{DayOfWeek: wd, IsWorkDay: true, Slots: slots})
	}
	tpl.Days = append(tpl.Days, domain.DaySchedule{DayOfWeek: time.Saturday}, domain.DaySchedule{DayOfWeek: time.Sunday})
	return tpl
}

func nineToFive() domain.TimeSlot {
	return domain.TimeSlot{Start: domain.NewClock(9, 0), End: domain.NewClock(17, 0)}
}

func baseCalendar() domain.Calendar {
	return domain.Calendar{
		Professional: domain.Professional{ID: proID, Timezone: "UTC"},
		Templates:    []domain.WorkingHoursTemplate{weekdayTemplate(nineToFive())},
	}
}

func hm(d domain.Date, h, m int) time.Time {
	return d.At(domain.NewClock(h, m), time.UTC)
}

func assertIntervals(t *testing.T, got []domain.Interval, want ...domain.Interval) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d intervals %v, want %d %v", len(got), got, len(want), want)
	}
	for i := range want {
		if !got[i].Start.Equal(want[i].Start) || !got[i].End.Equal(want[i].End) {
			t.Fatalf("interval[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestResolve_TemplateAndFixedBreak(t *testing.T) {
	cal := baseCalendar()
	cal.Breaks = []domain.BreakRule{{ProfessionalID: proID, Name: "lunch", DurationMinutes: 60, FixedStart: clock(12, 0), IsActive: true}}

	mon := mustDate(t, "2026-03-02")
	sat := mon.AddDays(5)

	got, err := Resolve(cal, domain.DateRange{From: mon, To: sat})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if len(got) != 6 {
		t.Fatalf("len(days) = %d, want 6", len(got))
	}
	assertIntervals(t, got[mon],
		domain.Interval{Start: hm(mon, 9, 0), End: hm(mon, 12, 0)},
		domain.Interval{Start: hm(mon, 13, 0), End: hm(mon, 17, 0)},
	)
	if len(got[sat]) != 0 {
		t.Fatalf("saturday should be closed, got %v", got[sat])
	}
}

func TestResolve_ExceptionsSubtractThenExtraHoursAdd(t *testing.T) {
	mon := mustDate(t, "2026-03-02")
	tue := mon.AddDays(1)
	wed := mon.AddDays(2)

	cal := baseCalendar()
	cal.Exceptions = []domain.ScheduleException{
		{ProfessionalID: proID, Kind: domain.ExceptionVacation, StartDate: mon, EndDate: tue, IsAllDay: true, Status: domain.ExceptionApproved},
		{ProfessionalID: proID, Kind: domain.ExceptionExtraHours, StartDate: tue, EndDate: tue, StartTime: clock(18, 0), EndTime: clock(20, 0), Status: domain.ExceptionApproved},
		{ProfessionalID: proID, Kind: domain.ExceptionTraining, StartDate: wed, EndDate: wed, StartTime: clock(14, 0), EndTime: clock(16, 0), Status: domain.ExceptionApproved},
		{ProfessionalID: proID, Kind: domain.ExceptionSickLeave, StartDate: wed, EndDate: wed, IsAllDay: true, Status: domain.ExceptionPending},
		{ProfessionalID: proID, Kind: domain.ExceptionSickLeave, StartDate: wed, EndDate: wed, IsAllDay: true, Status: domain.ExceptionRejected},
	}

	got, err := Resolve(cal, domain.DateRange{From: mon, To: wed})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if len(got[mon]) != 0 {
		t.Fatalf("vacation day should be closed, got %v", got[mon])
	}
	assertIntervals(t, got[tue], domain.Interval{Start: hm(tue, 18, 0), End: hm(tue, 20, 0)})
	assertIntervals(t, got[wed],
		domain.Interval{Start: hm(wed, 9, 0), End: hm(wed, 14, 0)},
		domain.Interval{Start: hm(wed, 16, 0), End: hm(wed, 17, 0)},
	)
}

func TestResolve_FlexibleBreakTakesEarliestFit(t *testing.T) {
	mon := mustDate(t, "2026-03-02")
	cal := baseCalendar()
	cal.Templates = []domain.WorkingHoursTemplate{weekdayTemplate(
		domain.TimeSlot{Start: domain.NewClock(9, 0), End: domain.NewClock(11, 30)},
		domain.TimeSlot{Start: domain.NewClock(12, 30), End: domain.NewClock(17, 0)},
	)}
	cal.Breaks = []domain.BreakRule{{
		ProfessionalID: proID, Name: "lunch", DurationMinutes: 45,
		WindowStart: clock(11, 0), WindowEnd: clock(14, 0), IsActive: true,
	}}

	got, err := Resolve(cal, domain.DateRange{From: mon, To: mon})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	// 11:00-11:30 is too short for 45 minutes, so the break lands at 12:30.
	assertIntervals(t, got[mon],
		domain.Interval{Start: hm(mon, 9, 0), End: hm(mon, 11, 30)},
		domain.Interval{Start: hm(mon, 13, 15), End: hm(mon, 17, 0)},
	)
}

func TestResolve_BreakDaySetAndInactive(t *testing.T) {
	mon := mustDate(t, "2026-03-02")
	tue := mon.AddDays(1)
	cal := baseCalendar()
	cal.Breaks = []domain.BreakRule{
		{ProfessionalID: proID, DurationMinutes: 60, FixedStart: clock(12, 0), Days: []int16{int16(time.Tuesday)}, IsActive: true},
		{ProfessionalID: proID, DurationMinutes: 60, FixedStart: clock(15, 0), IsActive: false},
	}

	got, err := Resolve(cal, domain.DateRange{From: mon, To: tue})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	assertIntervals(t, got[mon], domain.Interval{Start: hm(mon, 9, 0), End: hm(mon, 17, 0)})
	if len(got[tue]) != 2 {
		t.Fatalf("tuesday intervals = %v, want 2", got[tue])
	}
}

func TestResolve_TemplateValidityAndTimezone(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Lisbon")
	if err != nil {
		t.Fatalf("LoadLocation error: %v", err)
	}
	mon := mustDate(t, "2026-03-30")
	from := mon.AddDays(-7)
	until := mon.AddDays(-1)

	cal := baseCalendar()
	cal.Professional.Timezone = "Europe/Lisbon"
	cal.Templates[0].ValidUntil = &until

	got, err := Resolve(cal, domain.DateRange{From: from, To: mon})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if len(got[mon]) != 0 {
		t.Fatalf("template expired, expected closed day, got %v", got[mon])
	}
	first := got[from]
	if len(first) != 1 {
		t.Fatalf("intervals = %v", first)
	}
	if want := time.Date(2026, 3, 23, 9, 0, 0, 0, loc); !first[0].Start.Equal(want) {
		t.Fatalf("start = %v, want %v", first[0].Start, want)
	}
}

func TestResolve_RejectsBadRange(t *testing.T) {
	mon := mustDate(t, "2026-03-02")
	if _, err := Resolve(baseCalendar(), domain.DateRange{From: mon, To: mon.AddDays(-1)}); err == nil {
		t.Fatalf("expected error for inverted range")
	}
	if _, err := Resolve(baseCalendar(), domain.DateRange{From: mon, To: mon.AddDays(domain.MaxResolveRangeDays)}); err == nil {
		t.Fatalf("expected error for oversized range")
	}
}

func TestResolve_OutputSortedAndDisjoint(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	from := mustDate(t, "2026-01-05")

	for iter := 0; iter < 200; iter++ {
		cal := domain.Calendar{Professional: domain.Professional{ID: proID, Timezone: "America/New_York"}}

		var slots []domain.TimeSlot
		cursor := rng.Intn(8 * 60)
		for cursor < 23*60 {
			length := 15 + rng.Intn(180)
			end := cursor + length
			if end > int(domain.EndOfDay) {
				end = int(domain.EndOfDay)
			}
			slots = append(slots, domain.TimeSlot{Start: domain.ClockTime(cursor), End: domain.ClockTime(end)})
			cursor = end + rng.Intn(90)
		}
		tpl := domain.WorkingHoursTemplate{ProfessionalID: proID, IsActive: true}
		for wd := time.Sunday; wd <= time.Saturday; wd++ {
			tpl.Days = append(tpl.Days, domain.DaySchedule{DayOfWeek: wd, IsWorkDay: rng.Intn(5) > 0, Slots: slots})
		}
		cal.Templates = []domain.WorkingHoursTemplate{tpl}

		for i := 0; i < rng.Intn(4); i++ {
			start := rng.Intn(20 * 60)
			cal.Breaks = append(cal.Breaks, domain.BreakRule{
				ProfessionalID: proID, DurationMinutes: 15 + rng.Intn(60),
				FixedStart: clock(start/60, start%60), IsActive: true,
			})
		}
		for i := 0; i < rng.Intn(5); i++ {
			kinds := []domain.ExceptionKind{domain.ExceptionVacation, domain.ExceptionExtraHours, domain.ExceptionTraining}
			start := rng.Intn(22 * 60)
			end := start + 30 + rng.Intn(120)
			if end > int(domain.EndOfDay) {
				end = int(domain.EndOfDay)
			}
			d := from.AddDays(rng.Intn(14))
			cal.Exceptions = append(cal.Exceptions, domain.ScheduleException{
				ProfessionalID: proID, Kind: kinds[rng.Intn(len(kinds))],
				StartDate: d, EndDate: d.AddDays(rng.Intn(3)),
				StartTime: clock(start/60, start%60), EndTime: clock(end/60, end%60),
				IsAllDay: rng.Intn(4) == 0, Status: domain.ExceptionApproved,
			})
		}

		got, err := Resolve(cal, domain.DateRange{From: from, To: from.AddDays(20)})
		if err != nil {
			t.Fatalf("iter %d: Resolve error: %v", iter, err)
		}
		for d, ivs := range got {
			for i, iv := range ivs {
				if iv.Empty() {
					t.Fatalf("iter %d day %s: empty interval %v", iter, d, iv)
				}
				if i > 0 && !ivs[i-1].End.Before(iv.Start) {
					t.Fatalf("iter %d day %s: intervals not sorted/disjoint: %v", iter, d, ivs)
				}
			}
		}
	}
}

type fakeCalendars struct {
	loadFn func(ctx context.Context, professionalID uuid.UUID) (domain.Calendar, error)
}

func (f *fakeCalendars) LoadCalendar(ctx context.Context, professionalID uuid.UUID) (domain.Calendar, error) {
	if f.loadFn == nil {
		panic("LoadCalendar not configured")
	}
	return f.loadFn(ctx, professionalID)
}

func TestResolver_UnknownProfessional(t *testing.T) {
	r := NewResolver(&fakeCalendars{loadFn: func(ctx context.Context, id uuid.UUID) (domain.Calendar, error) {
		return domain.Calendar{}, store.ErrNotFound
	}})
	mon := mustDate(t, "2026-03-02")
	_, err := r.ResolveOpenIntervals(context.Background(), proID, domain.DateRange{From: mon, To: mon})
	var nf *domain.NotFoundError
	if !errors.As(err, &nf) || nf.Entity != "professional" {
		t.Fatalf("err = %v, want NotFoundError(professional)", err)
	}
}

type fakeCache struct {
	mu   sync.Mutex
	data map[domain.Date][]domain.Interval
	puts int
}

func (f *fakeCache) GetDays(ctx context.Context, professionalID uuid.UUID, days []domain.Date) (map[domain.Date][]domain.Interval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[domain.Date][]domain.Interval)
	for _, d := range days {
		if v, ok := f.data[d]; ok {
			out[d] = v
		}
	}
	return out, nil
}

func (f *fakeCache) PutDays(ctx context.Context, professionalID uuid.UUID, days map[domain.Date][]domain.Interval) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.data == nil {
		f.data = make(map[domain.Date][]domain.Interval)
	}
	for d, v := range days {
		f.data[d] = v
	}
	f.puts++
	return nil
}

func TestCachedResolver_ServesFromCacheAfterFirstLoad(t *testing.T) {
	var loads atomic.Int32
	inner := NewResolver(&fakeCalendars{loadFn: func(ctx context.Context, id uuid.UUID) (domain.Calendar, error) {
		loads.Add(1)
		return baseCalendar(), nil
	}})
	cache := &fakeCache{}
	r := NewCachedResolver(inner, cache, nil)

	mon := mustDate(t, "2026-03-02")
	rng := domain.DateRange{From: mon, To: mon.AddDays(6)}
	first, err := r.ResolveOpenIntervals(context.Background(), proID, rng)
	if err != nil {
		t.Fatalf("ResolveOpenIntervals error: %v", err)
	}
	second, err := r.ResolveOpenIntervals(context.Background(), proID, rng)
	if err != nil {
		t.Fatalf("ResolveOpenIntervals error: %v", err)
	}
	if loads.Load() != 1 {
		t.Fatalf("calendar loads = %d, want 1", loads.Load())
	}
	if len(first) != len(second) {
		t.Fatalf("cached result differs: %d vs %d days", len(first), len(second))
	}
	assertIntervals(t, second[mon], first[mon]...)
}
