package domain

import (
	"context"
	"database/sql/driver"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const DateLayout = "2006-01-02"

// Date is a civil calendar day with no time zone attached.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q", s)
	}
	return DateOf(t), nil
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

func (d Date) AddDays(n int) Date {
	return DateOf(time.Date(d.Year, d.Month, d.Day+n, 0, 0, 0, 0, time.UTC))
}

func (d Date) Weekday() time.Weekday {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Weekday()
}

func (d Date) Before(o Date) bool { return d.ordinal() < o.ordinal() }
func (d Date) After(o Date) bool  { return d.ordinal() > o.ordinal() }

// At returns the instant of clock time c on day d in loc. 24:00 maps to the
// next day's midnight.
func (d Date) At(c ClockTime, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, int(c), 0, 0, loc)
}

func (d Date) ordinal() int {
	return d.Year*10000 + int(d.Month)*100 + d.Day
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) Value() (driver.Value, error) {
	return d.String(), nil
}

func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*d = DateOf(v)
		return nil
	case string:
		return d.UnmarshalText([]byte(v))
	case []byte:
		return d.UnmarshalText(v)
	case nil:
		*d = Date{}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Date", src)
	}
}

// DateRange is inclusive on both ends.
type DateRange struct {
	From Date
	To   Date
}

const MaxResolveRangeDays = 93

func (r DateRange) Validate() error {
	if r.From.IsZero() || r.To.IsZero() {
		return fmt.Errorf("date range bounds are required")
	}
	if r.To.Before(r.From) {
		return fmt.Errorf("date range end %s is before start %s", r.To, r.From)
	}
	if len(r.Days()) > MaxResolveRangeDays {
		return fmt.Errorf("date range exceeds %d days", MaxResolveRangeDays)
	}
	return nil
}

func (r DateRange) Days() []Date {
	var out []Date
	for d := r.From; !d.After(r.To); d = d.AddDays(1) {
		out = append(out, d)
		if len(out) > MaxResolveRangeDays {
			break
		}
	}
	return out
}

func (r DateRange) Contains(d Date) bool {
	return !d.Before(r.From) && !d.After(r.To)
}

// ClockTime is a wall-clock offset in minutes from local midnight, 0..1440.
type ClockTime int

const EndOfDay ClockTime = 24 * 60

func NewClock(hour, minute int) ClockTime {
	return ClockTime(hour*60 + minute)
}

func ParseClock(s string) (ClockTime, error) {
	s = strings.TrimSpace(s)
	if s == "24:00" {
		return EndOfDay, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	return NewClock(t.Hour(), t.Minute()), nil
}

func (c ClockTime) Valid() bool {
	return c >= 0 && c <= EndOfDay
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

type TimeSlot struct {
	Start ClockTime `json:"start"`
	End   ClockTime `json:"end"`
}

func (s TimeSlot) Valid() bool {
	return s.Start.Valid() && s.End.Valid() && s.Start < s.End
}

func (s TimeSlot) On(d Date, loc *time.Location) Interval {
	return Interval{Start: d.At(s.Start, loc), End: d.At(s.End, loc)}
}

type DaySchedule struct {
	DayOfWeek time.Weekday `json:"day_of_week"`
	IsWorkDay bool         `json:"is_work_day"`
	Slots     []TimeSlot   `json:"slots"`
}

type WorkingHoursTemplate struct {
	bun.BaseModel `bun:"table:working_hours_templates"`

	ID             uuid.UUID     `bun:"id,pk,type:uuid"`
	ProfessionalID uuid.UUID     `bun:"professional_id,notnull,type:uuid"`
	Name           string        `bun:"name,notnull"`
	IsActive       bool          `bun:"is_active,notnull"`
	ValidFrom      *Date         `bun:"valid_from,type:date"`
	ValidUntil     *Date         `bun:"valid_until,type:date"`
	Days           []DaySchedule `bun:"days,type:jsonb,notnull"`
	CreatedAt      time.Time     `bun:"created_at,notnull"`
	UpdatedAt      time.Time     `bun:"updated_at,notnull"`
}

func (t *WorkingHoursTemplate) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	return stamp(query, &t.ID, &t.CreatedAt, &t.UpdatedAt)
}

// Covers reports whether d falls inside the template's validity window.
// Missing bounds are open-ended.
func (t *WorkingHoursTemplate) Covers(d Date) bool {
	if t.ValidFrom != nil && d.Before(*t.ValidFrom) {
		return false
	}
	if t.ValidUntil != nil && d.After(*t.ValidUntil) {
		return false
	}
	return true
}

func (t *WorkingHoursTemplate) Day(wd time.Weekday) (DaySchedule, bool) {
	for _, d := range t.Days {
		if d.DayOfWeek == wd {
			return d, true
		}
	}
	return DaySchedule{}, false
}

// Normalize orders days by weekday and slots by start time.
func (t *WorkingHoursTemplate) Normalize() {
	sort.Slice(t.Days, func(i, j int) bool { return t.Days[i].DayOfWeek < t.Days[j].DayOfWeek })
	for i := range t.Days {
		slots := t.Days[i].Slots
		sort.Slice(slots, func(a, b int) bool { return slots[a].Start < slots[b].Start })
	}
}

func (t *WorkingHoursTemplate) Validate() error {
	if t.ProfessionalID == uuid.Nil {
		return invalidSchedule("professional_id is required")
	}
	if t.ValidFrom != nil && t.ValidUntil != nil && t.ValidUntil.Before(*t.ValidFrom) {
		return invalidSchedule("valid_until must not be before valid_from")
	}
	seen := make(map[time.Weekday]struct{}, len(t.Days))
	for _, d := range t.Days {
		if d.DayOfWeek < time.Sunday || d.DayOfWeek > time.Saturday {
			return invalidSchedule(fmt.Sprintf("invalid day_of_week %d", d.DayOfWeek))
		}
		if _, ok := seen[d.DayOfWeek]; ok {
			return invalidSchedule(fmt.Sprintf("duplicate schedule for %s", d.DayOfWeek))
		}
		seen[d.DayOfWeek] = struct{}{}

		slots := append([]TimeSlot(nil), d.Slots...)
		sort.Slice(slots, func(a, b int) bool { return slots[a].Start < slots[b].Start })
		for i, s := range slots {
			if !s.Valid() {
				return invalidSchedule(fmt.Sprintf("invalid slot %s-%s on %s", s.Start, s.End, d.DayOfWeek))
			}
			if i > 0 && slots[i-1].End > s.Start {
				return invalidSchedule(fmt.Sprintf("overlapping slots on %s: %s-%s and %s-%s",
					d.DayOfWeek, slots[i-1].Start, slots[i-1].End, s.Start, s.End))
			}
		}
	}
	return nil
}

type ExceptionKind string

const (
	ExceptionVacation   ExceptionKind = "vacation"
	ExceptionSickLeave  ExceptionKind = "sick_leave"
	ExceptionTraining   ExceptionKind = "training"
	ExceptionExtraHours ExceptionKind = "extra_hours"
	ExceptionOther      ExceptionKind = "other"
)

func (k ExceptionKind) Valid() bool {
	switch k {
	case ExceptionVacation, ExceptionSickLeave, ExceptionTraining, ExceptionExtraHours, ExceptionOther:
		return true
	}
	return false
}

type ExceptionStatus string

const (
	ExceptionPending  ExceptionStatus = "pending"
	ExceptionApproved ExceptionStatus = "approved"
	ExceptionRejected ExceptionStatus = "rejected"
)

type ScheduleException struct {
	bun.BaseModel `bun:"table:schedule_exceptions"`

	ID             uuid.UUID       `bun:"id,pk,type:uuid"`
	ProfessionalID uuid.UUID       `bun:"professional_id,notnull,type:uuid"`
	Kind           ExceptionKind   `bun:"kind,notnull"`
	StartDate      Date            `bun:"start_date,notnull,type:date"`
	EndDate        Date            `bun:"end_date,notnull,type:date"`
	StartTime      *ClockTime      `bun:"start_time"`
	EndTime        *ClockTime      `bun:"end_time"`
	IsAllDay       bool            `bun:"is_all_day,notnull"`
	Status         ExceptionStatus `bun:"status,notnull"`
	Reason         string          `bun:"reason"`
	CreatedAt      time.Time       `bun:"created_at,notnull"`
	UpdatedAt      time.Time       `bun:"updated_at,notnull"`
}

func (e *ScheduleException) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	return stamp(query, &e.ID, &e.CreatedAt, &e.UpdatedAt)
}

// IsAdditive reports whether the exception grants time instead of removing it.
func (e *ScheduleException) IsAdditive() bool {
	return e.Kind == ExceptionExtraHours
}

func (e *ScheduleException) AppliesOn(d Date) bool {
	return e.Status == ExceptionApproved && !d.Before(e.StartDate) && !d.After(e.EndDate)
}

// DailyWindow is the clock window the exception covers on each day of its
// date range. All-day exceptions cover the whole day.
func (e *ScheduleException) DailyWindow() TimeSlot {
	if e.IsAllDay || e.StartTime == nil || e.EndTime == nil {
		return TimeSlot{Start: 0, End: EndOfDay}
	}
	return TimeSlot{Start: *e.StartTime, End: *e.EndTime}
}

func (e *ScheduleException) Validate() error {
	if e.ProfessionalID == uuid.Nil {
		return invalidSchedule("professional_id is required")
	}
	if !e.Kind.Valid() {
		return invalidSchedule(fmt.Sprintf("unknown exception kind %q", e.Kind))
	}
	if e.StartDate.IsZero() || e.EndDate.IsZero() {
		return invalidSchedule("start_date and end_date are required")
	}
	if e.EndDate.Before(e.StartDate) {
		return invalidSchedule("end_date must not be before start_date")
	}
	if e.IsAllDay {
		return nil
	}
	if e.StartTime == nil || e.EndTime == nil {
		return invalidSchedule("partial-day exception requires start_time and end_time")
	}
	if !(TimeSlot{Start: *e.StartTime, End: *e.EndTime}).Valid() {
		return invalidSchedule("exception end_time must be after start_time")
	}
	return nil
}

type BreakRule struct {
	bun.BaseModel `bun:"table:break_rules"`

	ID              uuid.UUID  `bun:"id,pk,type:uuid"`
	ProfessionalID  uuid.UUID  `bun:"professional_id,notnull,type:uuid"`
	Name            string     `bun:"name,notnull"`
	DurationMinutes int        `bun:"duration_minutes,notnull"`
	FixedStart      *ClockTime `bun:"fixed_start"`
	WindowStart     *ClockTime `bun:"window_start"`
	WindowEnd       *ClockTime `bun:"window_end"`
	Days            []int16    `bun:"days,array"`
	IsActive        bool       `bun:"is_active,notnull"`
	CreatedAt       time.Time  `bun:"created_at,notnull"`
	UpdatedAt       time.Time  `bun:"updated_at,notnull"`
}

func (b *BreakRule) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	return stamp(query, &b.ID, &b.CreatedAt, &b.UpdatedAt)
}

// AppliesOn reports whether the break is taken on wd. An empty day set means
// every day.
func (b *BreakRule) AppliesOn(wd time.Weekday) bool {
	if !b.IsActive {
		return false
	}
	if len(b.Days) == 0 {
		return true
	}
	for _, d := range b.Days {
		if time.Weekday(d) == wd {
			return true
		}
	}
	return false
}

func (b *BreakRule) IsFlexible() bool {
	return b.FixedStart == nil
}

func (b *BreakRule) Duration() time.Duration {
	return time.Duration(b.DurationMinutes) * time.Minute
}

func (b *BreakRule) Validate() error {
	if b.ProfessionalID == uuid.Nil {
		return invalidSchedule("professional_id is required")
	}
	if b.DurationMinutes <= 0 {
		return invalidSchedule("break duration must be positive")
	}
	for _, d := range b.Days {
		if d < 0 || d > 6 {
			return invalidSchedule(fmt.Sprintf("invalid break day %d", d))
		}
	}
	switch {
	case b.FixedStart != nil && (b.WindowStart != nil || b.WindowEnd != nil):
		return invalidSchedule("break must be either fixed or flexible, not both")
	case b.FixedStart != nil:
		end := *b.FixedStart + ClockTime(b.DurationMinutes)
		if !(TimeSlot{Start: *b.FixedStart, End: end}).Valid() {
			return invalidSchedule("fixed break must end within the day")
		}
	case b.WindowStart != nil && b.WindowEnd != nil:
		w := TimeSlot{Start: *b.WindowStart, End: *b.WindowEnd}
		if !w.Valid() {
			return invalidSchedule("break window end must be after start")
		}
		if int(w.End-w.Start) < b.DurationMinutes {
			return invalidSchedule("break window is shorter than the break")
		}
	default:
		return invalidSchedule("break requires fixed_start or window_start/window_end")
	}
	return nil
}

type Professional struct {
	bun.BaseModel `bun:"table:professionals"`

	ID        uuid.UUID `bun:"id,pk,type:uuid"`
	TenantID  uuid.UUID `bun:"tenant_id,notnull,type:uuid"`
	Name      string    `bun:"name,notnull"`
	Timezone  string    `bun:"timezone,notnull"`
	Preferred bool      `bun:"preferred,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

func (p *Professional) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	return stamp(query, &p.ID, &p.CreatedAt, &p.UpdatedAt)
}

func (p Professional) Location() (*time.Location, error) {
	if strings.TrimSpace(p.Timezone) == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return nil, invalidSchedule("invalid time_zone")
	}
	return loc, nil
}

// Calendar is everything the resolver needs about one professional.
type Calendar struct {
	Professional Professional
	Templates    []WorkingHoursTemplate
	Exceptions   []ScheduleException
	Breaks       []BreakRule
}

// ActiveTemplate returns the active template covering d. When several active
// templates cover the day the one with the latest valid_from wins.
func (c Calendar) ActiveTemplate(d Date) (*WorkingHoursTemplate, bool) {
	var best *WorkingHoursTemplate
	for i := range c.Templates {
		t := &c.Templates[i]
		if !t.IsActive || !t.Covers(d) {
			continue
		}
		if best == nil || laterStart(t.ValidFrom, best.ValidFrom) {
			best = t
		}
	}
	return best, best != nil
}

func laterStart(a, b *Date) bool {
	if a == nil {
		return false
	}
	if b == nil {
		return true
	}
	return a.After(*b)
}

func stamp(query bun.Query, id *uuid.UUID, createdAt, updatedAt *time.Time) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if *id == uuid.Nil {
			v, err := uuid.NewV7()
			if err != nil {
				return err
			}
			*id = v
		}
		if createdAt.IsZero() {
			*createdAt = now
		}
		if updatedAt.IsZero() {
			*updatedAt = now
		}
	case *bun.UpdateQuery:
		*updatedAt = now
	}
	return nil
}
