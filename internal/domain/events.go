package domain

import (
	"time"

	"github.com/google/uuid"
)

type TransitionKind string

const (
	TransitionCreated     TransitionKind = "created"
	TransitionConfirmed   TransitionKind = "confirmed"
	TransitionCancelled   TransitionKind = "cancelled"
	TransitionRescheduled TransitionKind = "rescheduled"
	TransitionCompleted   TransitionKind = "completed"
	TransitionNoShow      TransitionKind = "no_show"
)

// Event is the single record emitted for each lifecycle transition. Fields
// after Appointment are only set for the kinds that carry them.
type Event struct {
	ID          uuid.UUID      `json:"id"`
	Kind        TransitionKind `json:"kind"`
	OccurredAt  time.Time      `json:"occurred_at"`
	Appointment Appointment    `json:"appointment"`

	WasLateCancellation   bool           `json:"was_late_cancellation"`
	CancellationReason    string         `json:"cancellation_reason,omitempty"`
	PreviousScheduledAt   *time.Time     `json:"previous_scheduled_at,omitempty"`
	PreviousAppointmentID *uuid.UUID     `json:"previous_appointment_id,omitempty"`
	ActualDuration        *time.Duration `json:"actual_duration,omitempty"`
}

func NewEvent(kind TransitionKind, appt Appointment, now time.Time) Event {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return Event{
		ID:          id,
		Kind:        kind,
		OccurredAt:  now,
		Appointment: appt.Clone(),
	}
}

func (e Event) Name() string {
	return "appointment." + string(e.Kind)
}
