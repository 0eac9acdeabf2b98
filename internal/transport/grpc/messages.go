package grpc

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"appointly/backend/internal/domain"
	"appointly/backend/internal/slots"
)

// decode maps a Struct request onto a JSON-tagged request type. UUIDs,
// timestamps (RFC 3339) and dates (YYYY-MM-DD) are strings on the wire.
func decode(req *structpb.Struct, dst any) error {
	if req == nil {
		return fmt.Errorf("request is required")
	}
	b, err := req.MarshalJSON()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("malformed request: %w", err)
	}
	return nil
}

func encode(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := out.UnmarshalJSON(b); err != nil {
		return nil, err
	}
	return out, nil
}

type availabilityRequest struct {
	ProfessionalID  uuid.UUID   `json:"professional_id"`
	ProfessionalIDs []uuid.UUID `json:"professional_ids"`
	ServiceIDs      []uuid.UUID `json:"service_ids"`
	From            domain.Date `json:"from"`
	To              domain.Date `json:"to"`
}

func (r availabilityRequest) dateRange() domain.DateRange {
	to := r.To
	if to.IsZero() {
		to = r.From
	}
	return domain.DateRange{From: r.From, To: to}
}

type slotsResponse struct {
	Slots []slots.Candidate `json:"slots"`
}

type createRequest struct {
	ProfessionalID uuid.UUID       `json:"professional_id"`
	ClientID       uuid.UUID       `json:"client_id"`
	ServiceIDs     []uuid.UUID     `json:"service_ids"`
	ScheduledAt    time.Time       `json:"scheduled_at"`
	Notes          string          `json:"notes"`
	Recurrence     *recurrenceRule `json:"recurrence"`
}

type recurrenceRule struct {
	Interval int        `json:"interval"`
	Weekdays []int16    `json:"weekdays"`
	Until    *time.Time `json:"until"`
	Count    *int       `json:"count"`
	TimeZone string     `json:"time_zone"`
}

func (r recurrenceRule) toDomain() domain.RecurrenceRule {
	return domain.RecurrenceRule{
		Interval:  r.Interval,
		ByWeekday: r.Weekdays,
		Until:     r.Until,
		Count:     r.Count,
		Timezone:  r.TimeZone,
	}
}

type appointmentRequest struct {
	AppointmentID         uuid.UUID `json:"appointment_id"`
	Reason                string    `json:"reason"`
	NewScheduledAt        time.Time `json:"new_scheduled_at"`
	ActualDurationMinutes *int      `json:"actual_duration_minutes"`
}

type groupRequest struct {
	RecurrenceGroupID uuid.UUID `json:"recurrence_group_id"`
	From              time.Time `json:"from"`
	Reason            string    `json:"reason"`
}

type appointmentResponse struct {
	Appointment domain.Appointment `json:"appointment"`
}

type appointmentsResponse struct {
	Appointments []domain.Appointment `json:"appointments"`
}

type rescheduleResponse struct {
	Original    domain.Appointment `json:"original"`
	Replacement domain.Appointment `json:"replacement"`
}

type slotMsg struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type dayMsg struct {
	DayOfWeek time.Weekday `json:"day_of_week"`
	IsWorkDay bool         `json:"is_work_day"`
	Slots     []slotMsg    `json:"slots"`
}

type templateMsg struct {
	ID             uuid.UUID    `json:"id"`
	ProfessionalID uuid.UUID    `json:"professional_id"`
	Name           string       `json:"name"`
	IsActive       bool         `json:"is_active"`
	ValidFrom      *domain.Date `json:"valid_from,omitempty"`
	ValidUntil     *domain.Date `json:"valid_until,omitempty"`
	Days           []dayMsg     `json:"days"`
}

func (m templateMsg) toDomain() (domain.WorkingHoursTemplate, error) {
	tpl := domain.WorkingHoursTemplate{
		ID:             m.ID,
		ProfessionalID: m.ProfessionalID,
		Name:           m.Name,
		IsActive:       m.IsActive,
		ValidFrom:      m.ValidFrom,
		ValidUntil:     m.ValidUntil,
	}
	for _, d := range m.Days {
		day := domain.DaySchedule{DayOfWeek: d.DayOfWeek, IsWorkDay: d.IsWorkDay}
		for _, s := range d.Slots {
			start, err := domain.ParseClock(s.Start)
			if err != nil {
				return domain.WorkingHoursTemplate{}, err
			}
			end, err := domain.ParseClock(s.End)
			if err != nil {
				return domain.WorkingHoursTemplate{}, err
			}
			day.Slots = append(day.Slots, domain.TimeSlot{Start: start, End: end})
		}
		tpl.Days = append(tpl.Days, day)
	}
	return tpl, nil
}

func templateFromDomain(t domain.WorkingHoursTemplate) templateMsg {
	m := templateMsg{
		ID:             t.ID,
		ProfessionalID: t.ProfessionalID,
		Name:           t.Name,
		IsActive:       t.IsActive,
		ValidFrom:      t.ValidFrom,
		ValidUntil:     t.ValidUntil,
		Days:           make([]dayMsg, 0, len(t.Days)),
	}
	for _, d := range t.Days {
		day := dayMsg{DayOfWeek: d.DayOfWeek, IsWorkDay: d.IsWorkDay, Slots: make([]slotMsg, 0, len(d.Slots))}
		for _, s := range d.Slots {
			day.Slots = append(day.Slots, slotMsg{Start: s.Start.String(), End: s.End.String()})
		}
		m.Days = append(m.Days, day)
	}
	return m
}

type exceptionMsg struct {
	ID             uuid.UUID   `json:"id"`
	ProfessionalID uuid.UUID   `json:"professional_id"`
	Kind           string      `json:"kind"`
	StartDate      domain.Date `json:"start_date"`
	EndDate        domain.Date `json:"end_date"`
	StartTime      string      `json:"start_time,omitempty"`
	EndTime        string      `json:"end_time,omitempty"`
	IsAllDay       bool        `json:"is_all_day"`
	Status         string      `json:"status,omitempty"`
	Reason         string      `json:"reason,omitempty"`
}

func (m exceptionMsg) toDomain() (domain.ScheduleException, error) {
	ex := domain.ScheduleException{
		ID:             m.ID,
		ProfessionalID: m.ProfessionalID,
		Kind:           domain.ExceptionKind(m.Kind),
		StartDate:      m.StartDate,
		EndDate:        m.EndDate,
		IsAllDay:       m.IsAllDay,
		Reason:         m.Reason,
	}
	var err error
	if ex.StartTime, err = optionalClock(m.StartTime); err != nil {
		return domain.ScheduleException{}, err
	}
	if ex.EndTime, err = optionalClock(m.EndTime); err != nil {
		return domain.ScheduleException{}, err
	}
	return ex, nil
}

func exceptionFromDomain(ex domain.ScheduleException) exceptionMsg {
	return exceptionMsg{
		ID:             ex.ID,
		ProfessionalID: ex.ProfessionalID,
		Kind:           string(ex.Kind),
		StartDate:      ex.StartDate,
		EndDate:        ex.EndDate,
		StartTime:      clockString(ex.StartTime),
		EndTime:        clockString(ex.EndTime),
		IsAllDay:       ex.IsAllDay,
		Status:         string(ex.Status),
		Reason:         ex.Reason,
	}
}

type reviewRequest struct {
	ExceptionID uuid.UUID `json:"exception_id"`
	Approve     bool      `json:"approve"`
}

type breakMsg struct {
	ID              uuid.UUID `json:"id"`
	ProfessionalID  uuid.UUID `json:"professional_id"`
	Name            string    `json:"name"`
	DurationMinutes int       `json:"duration_minutes"`
	FixedStart      string    `json:"fixed_start,omitempty"`
	WindowStart     string    `json:"window_start,omitempty"`
	WindowEnd       string    `json:"window_end,omitempty"`
	Days            []int16   `json:"days,omitempty"`
	IsActive        bool      `json:"is_active"`
}

func (m breakMsg) toDomain() (domain.BreakRule, error) {
	br := domain.BreakRule{
		ID:              m.ID,
		ProfessionalID:  m.ProfessionalID,
		Name:            m.Name,
		DurationMinutes: m.DurationMinutes,
		Days:            m.Days,
		IsActive:        m.IsActive,
	}
	var err error
	if br.FixedStart, err = optionalClock(m.FixedStart); err != nil {
		return domain.BreakRule{}, err
	}
	if br.WindowStart, err = optionalClock(m.WindowStart); err != nil {
		return domain.BreakRule{}, err
	}
	if br.WindowEnd, err = optionalClock(m.WindowEnd); err != nil {
		return domain.BreakRule{}, err
	}
	return br, nil
}

func breakFromDomain(br domain.BreakRule) breakMsg {
	return breakMsg{
		ID:              br.ID,
		ProfessionalID:  br.ProfessionalID,
		Name:            br.Name,
		DurationMinutes: br.DurationMinutes,
		FixedStart:      clockString(br.FixedStart),
		WindowStart:     clockString(br.WindowStart),
		WindowEnd:       clockString(br.WindowEnd),
		Days:            br.Days,
		IsActive:        br.IsActive,
	}
}

func optionalClock(s string) (*domain.ClockTime, error) {
	if s == "" {
		return nil, nil
	}
	c, err := domain.ParseClock(s)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func clockString(c *domain.ClockTime) string {
	if c == nil {
		return ""
	}
	return c.String()
}
