package booking

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"appointly/backend/internal/domain"
	"appointly/backend/internal/guard"
	"appointly/backend/internal/store"
)

// transition loads the appointment, applies a lifecycle rule under the
// professional's lock and persists the result. The event is built from the
// committed state and published after commit.
func (s *Service) transition(
	ctx context.Context,
	id uuid.UUID,
	kind domain.TransitionKind,
	apply func(a *domain.Appointment, policy domain.TenantPolicy, now time.Time) error,
	annotate func(e *domain.Event, a domain.Appointment),
) (domain.Appointment, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return domain.Appointment{}, err
	}
	policy, err := s.policies.TenantPolicy(ctx, current.TenantID)
	if err != nil {
		return domain.Appointment{}, err
	}
	now := s.now().UTC()
	window := current.Window()

	var updated domain.Appointment
	err = s.guard.WithExclusiveWindow(ctx, current.ProfessionalID, window, func(ctx context.Context) error {
		return s.appointments.InProfessionalTransaction(ctx, current.ProfessionalID, guard.Days(window), func(ctx context.Context, tx store.BookingTx) error {
			a, err := tx.GetAppointment(ctx, id)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return domain.NotFound("appointment", id)
				}
				return err
			}
			if err := apply(&a, policy, now); err != nil {
				return err
			}
			if err := tx.UpdateAppointment(ctx, a); err != nil {
				return err
			}
			updated = a
			return nil
		})
	})
	if err != nil {
		return domain.Appointment{}, err
	}

	e := domain.NewEvent(kind, updated, now)
	if annotate != nil {
		annotate(&e, updated)
	}
	s.publish(ctx, e)
	return updated, nil
}

func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	return s.transition(ctx, id, domain.TransitionConfirmed,
		func(a *domain.Appointment, _ domain.TenantPolicy, now time.Time) error {
			return a.Confirm(now)
		}, nil)
}

// Cancel always proceeds for a non-terminal appointment. Cancelling inside
// the tenant's minimum-notice window only flags the appointment and event
// as late.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (domain.Appointment, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) > 1024 {
		return domain.Appointment{}, validationError("cancellation_reason too long")
	}
	return s.transition(ctx, id, domain.TransitionCancelled,
		func(a *domain.Appointment, policy domain.TenantPolicy, now time.Time) error {
			return a.Cancel(now, reason, policy)
		},
		func(e *domain.Event, a domain.Appointment) {
			e.WasLateCancellation = a.LateCancellation
			e.CancellationReason = a.CancellationReason
		})
}

func (s *Service) Complete(ctx context.Context, id uuid.UUID, actual *time.Duration) (domain.Appointment, error) {
	if actual != nil && *actual < 0 {
		return domain.Appointment{}, validationError("actual_duration must not be negative")
	}
	return s.transition(ctx, id, domain.TransitionCompleted,
		func(a *domain.Appointment, _ domain.TenantPolicy, now time.Time) error {
			return a.Complete(now, actual)
		},
		func(e *domain.Event, a domain.Appointment) {
			if actual != nil {
				d := *actual
				e.ActualDuration = &d
			}
		})
}

func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	return s.transition(ctx, id, domain.TransitionNoShow,
		func(a *domain.Appointment, _ domain.TenantPolicy, now time.Time) error {
			return a.MarkNoShow(now)
		}, nil)
}

type RescheduleInput struct {
	AppointmentID  uuid.UUID
	NewScheduledAt time.Time
}

type RescheduleResult struct {
	Original    domain.Appointment
	Replacement domain.Appointment
}

// Reschedule validates the new window exactly like Create, then marks the
// original RESCHEDULED and inserts its replacement in one transaction.
func (s *Service) Reschedule(ctx context.Context, in RescheduleInput) (RescheduleResult, error) {
	if in.NewScheduledAt.IsZero() {
		return RescheduleResult{}, validationError("new_scheduled_at is required")
	}
	current, err := s.Get(ctx, in.AppointmentID)
	if err != nil {
		return RescheduleResult{}, err
	}
	if !current.Status.IsActive() {
		return RescheduleResult{}, &domain.IllegalTransitionError{From: current.Status, Action: "reschedule"}
	}

	b, err := s.prepare(ctx, current.ProfessionalID, current.ServiceIDs)
	if err != nil {
		return RescheduleResult{}, err
	}
	start := in.NewScheduledAt.UTC()
	if err := b.policy.CheckAdvance(start, b.now); err != nil {
		return RescheduleResult{}, err
	}
	end, window := b.span(start)
	windows := []domain.Interval{current.Window(), window}

	var out RescheduleResult
	err = s.guard.WithExclusiveWindows(ctx, current.ProfessionalID, windows, func(ctx context.Context) error {
		return s.appointments.InProfessionalTransaction(ctx, current.ProfessionalID, guard.Days(windows...), func(ctx context.Context, tx store.BookingTx) error {
			original, err := tx.GetAppointment(ctx, in.AppointmentID)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return domain.NotFound("appointment", in.AppointmentID)
				}
				return err
			}
			next, err := original.RescheduleTo(start, end, b.model.BufferMinutes, b.now)
			if err != nil {
				return err
			}
			if err := s.checkWindow(ctx, tx, b, start, original.ID); err != nil {
				return err
			}
			if err := tx.UpdateAppointment(ctx, original); err != nil {
				return err
			}
			created, err := tx.InsertAppointment(ctx, next)
			if err != nil {
				return s.storeError(err, current.ProfessionalID, window)
			}
			out = RescheduleResult{Original: original, Replacement: created}
			return nil
		})
	})
	if err != nil {
		return RescheduleResult{}, err
	}

	e := domain.NewEvent(domain.TransitionRescheduled, out.Replacement, b.now)
	prevAt := out.Original.ScheduledAt
	prevID := out.Original.ID
	e.PreviousScheduledAt = &prevAt
	e.PreviousAppointmentID = &prevID
	s.publish(ctx, e)
	return out, nil
}
