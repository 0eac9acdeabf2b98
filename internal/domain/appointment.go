package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Status string

const (
	StatusPending     Status = "PENDING"
	StatusConfirmed   Status = "CONFIRMED"
	StatusCompleted   Status = "COMPLETED"
	StatusCancelled   Status = "CANCELLED"
	StatusNoShow      Status = "NO_SHOW"
	StatusRescheduled Status = "RESCHEDULED"
)

// ActiveStatuses are the statuses that hold a professional's time.
var ActiveStatuses = []Status{StatusPending, StatusConfirmed}

func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusConfirmed
}

func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow, StatusRescheduled:
		return true
	}
	return false
}

type Appointment struct {
	bun.BaseModel `bun:"table:appointments"`

	ID                    uuid.UUID   `bun:"id,pk,type:uuid" json:"id"`
	TenantID              uuid.UUID   `bun:"tenant_id,notnull,type:uuid" json:"tenant_id"`
	ProfessionalID        uuid.UUID   `bun:"professional_id,notnull,type:uuid" json:"professional_id"`
	ClientID              uuid.UUID   `bun:"client_id,notnull,type:uuid" json:"client_id"`
	ServiceIDs            []uuid.UUID `bun:"service_ids,type:jsonb,notnull" json:"service_ids"`
	ScheduledAt           time.Time   `bun:"scheduled_at,notnull" json:"scheduled_at"`
	EndTime               time.Time   `bun:"end_time,notnull" json:"end_time"`
	BufferMinutes         int         `bun:"buffer_minutes,notnull" json:"buffer_minutes"`
	BlockedUntil          time.Time   `bun:"blocked_until,notnull" json:"-"`
	Status                Status      `bun:"status,notnull" json:"status"`
	RecurrenceGroupID     *uuid.UUID  `bun:"recurrence_group_id,type:uuid" json:"recurrence_group_id,omitempty"`
	RescheduledFromID     *uuid.UUID  `bun:"rescheduled_from_id,type:uuid" json:"rescheduled_from_id,omitempty"`
	RescheduledToID       *uuid.UUID  `bun:"rescheduled_to_id,type:uuid" json:"rescheduled_to_id,omitempty"`
	CancellationReason    string      `bun:"cancellation_reason" json:"cancellation_reason,omitempty"`
	LateCancellation      bool        `bun:"late_cancellation,notnull" json:"late_cancellation"`
	ActualDurationMinutes *int        `bun:"actual_duration_minutes" json:"actual_duration_minutes,omitempty"`
	Notes                 string      `bun:"notes" json:"notes,omitempty"`
	ConfirmedAt           *time.Time  `bun:"confirmed_at" json:"confirmed_at,omitempty"`
	CancelledAt           *time.Time  `bun:"cancelled_at" json:"cancelled_at,omitempty"`
	CompletedAt           *time.Time  `bun:"completed_at" json:"completed_at,omitempty"`
	NoShowAt              *time.Time  `bun:"no_show_at" json:"no_show_at,omitempty"`
	RescheduledAt         *time.Time  `bun:"rescheduled_at" json:"rescheduled_at,omitempty"`
	CreatedAt             time.Time   `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt             time.Time   `bun:"updated_at,notnull" json:"updated_at"`
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	a.BlockedUntil = a.Window().End
	return stamp(query, &a.ID, &a.CreatedAt, &a.UpdatedAt)
}

func (a *Appointment) Buffer() time.Duration {
	return time.Duration(a.BufferMinutes) * time.Minute
}

// Window is the time the appointment holds on its professional's timeline:
// [scheduledAt, endTime + buffer).
func (a *Appointment) Window() Interval {
	return Interval{Start: a.ScheduledAt, End: a.EndTime.Add(a.Buffer())}
}

// Clone returns a deep copy suitable for event snapshots.
func (a Appointment) Clone() Appointment {
	out := a
	out.ServiceIDs = append([]uuid.UUID(nil), a.ServiceIDs...)
	out.RecurrenceGroupID = cloneUUID(a.RecurrenceGroupID)
	out.RescheduledFromID = cloneUUID(a.RescheduledFromID)
	out.RescheduledToID = cloneUUID(a.RescheduledToID)
	out.ConfirmedAt = cloneTime(a.ConfirmedAt)
	out.CancelledAt = cloneTime(a.CancelledAt)
	out.CompletedAt = cloneTime(a.CompletedAt)
	out.NoShowAt = cloneTime(a.NoShowAt)
	out.RescheduledAt = cloneTime(a.RescheduledAt)
	if a.ActualDurationMinutes != nil {
		v := *a.ActualDurationMinutes
		out.ActualDurationMinutes = &v
	}
	return out
}

func cloneUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
