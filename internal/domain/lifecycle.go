package domain

import (
	"time"

	"github.com/google/uuid"
)

// Lifecycle rules. Every method mutates the receiver only when the transition
// is legal; on error the appointment is left untouched.

func (a *Appointment) Confirm(now time.Time) error {
	if a.Status != StatusPending {
		return &IllegalTransitionError{From: a.Status, Action: "confirm"}
	}
	a.Status = StatusConfirmed
	a.ConfirmedAt = &now
	return nil
}

// Cancel moves a non-terminal appointment to CANCELLED and records whether
// it happened inside the tenant's minimum-notice window. Late cancellations
// still proceed.
func (a *Appointment) Cancel(now time.Time, reason string, policy TenantPolicy) error {
	if !a.Status.IsActive() {
		return &IllegalTransitionError{From: a.Status, Action: "cancel"}
	}
	a.Status = StatusCancelled
	a.CancelledAt = &now
	a.CancellationReason = reason
	a.LateCancellation = policy.IsLateCancellation(a.ScheduledAt, now)
	return nil
}

func (a *Appointment) Complete(now time.Time, actual *time.Duration) error {
	if a.Status != StatusConfirmed {
		return &IllegalTransitionError{From: a.Status, Action: "complete"}
	}
	if now.Before(a.ScheduledAt) {
		return &IllegalTransitionError{From: a.Status, Action: "complete", Reason: "appointment has not started yet"}
	}
	if actual != nil && *actual < 0 {
		return &IllegalTransitionError{From: a.Status, Action: "complete", Reason: "actual duration must not be negative"}
	}
	a.Status = StatusCompleted
	a.CompletedAt = &now
	if actual != nil {
		minutes := int(actual.Round(time.Minute) / time.Minute)
		a.ActualDurationMinutes = &minutes
	}
	return nil
}

func (a *Appointment) MarkNoShow(now time.Time) error {
	if !a.Status.IsActive() {
		return &IllegalTransitionError{From: a.Status, Action: "mark no-show"}
	}
	if now.Before(a.ScheduledAt) {
		return &IllegalTransitionError{From: a.Status, Action: "mark no-show", Reason: "appointment has not started yet"}
	}
	a.Status = StatusNoShow
	a.NoShowAt = &now
	return nil
}

// RescheduleTo builds the replacement appointment at a new time and marks the
// receiver RESCHEDULED with a reference to it. The replacement keeps the
// receiver's PENDING/CONFIRMED status.
func (a *Appointment) RescheduleTo(scheduledAt, endTime time.Time, bufferMinutes int, now time.Time) (Appointment, error) {
	if !a.Status.IsActive() {
		return Appointment{}, &IllegalTransitionError{From: a.Status, Action: "reschedule"}
	}
	newID, err := uuid.NewV7()
	if err != nil {
		return Appointment{}, err
	}

	next := Appointment{
		ID:                newID,
		TenantID:          a.TenantID,
		ProfessionalID:    a.ProfessionalID,
		ClientID:          a.ClientID,
		ServiceIDs:        append([]uuid.UUID(nil), a.ServiceIDs...),
		ScheduledAt:       scheduledAt,
		EndTime:           endTime,
		BufferMinutes:     bufferMinutes,
		Status:            a.Status,
		RecurrenceGroupID: cloneUUID(a.RecurrenceGroupID),
		Notes:             a.Notes,
		ConfirmedAt:       cloneTime(a.ConfirmedAt),
	}
	originalID := a.ID
	next.RescheduledFromID = &originalID

	a.Status = StatusRescheduled
	a.RescheduledAt = &now
	a.RescheduledToID = &newID
	return next, nil
}
