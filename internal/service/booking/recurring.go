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

type CreateRecurringInput struct {
	CreateInput
	Rule domain.RecurrenceRule
}

// CreateRecurring books every occurrence of a weekly rule as sibling
// appointments sharing one recurrence group. Either all occurrences are
// booked or none.
func (s *Service) CreateRecurring(ctx context.Context, in CreateRecurringInput) ([]domain.Appointment, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	b, err := s.prepare(ctx, in.ProfessionalID, in.ServiceIDs)
	if err != nil {
		return nil, err
	}
	rule := in.Rule
	if strings.TrimSpace(rule.Timezone) == "" {
		rule.Timezone = b.loc.String()
	}
	starts, err := domain.ExpandWeekly(rule, in.ScheduledAt)
	if err != nil {
		return nil, validationError(err.Error())
	}

	groupID, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	if key := strings.TrimSpace(in.IdempotencyKey); key != "" {
		groupID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("appointly:create_recurring:"+in.ClientID.String()+":"+key))
		existing, err := s.appointments.ListRecurrenceGroup(ctx, groupID)
		if err != nil {
			return nil, err
		}
		if len(existing) > 0 {
			if len(existing) != len(starts) || !existing[0].ScheduledAt.Equal(starts[0]) {
				return nil, validationError("idempotency_key was already used for a different booking")
			}
			return existing, nil
		}
	}

	appts := make([]domain.Appointment, 0, len(starts))
	windows := make([]domain.Interval, 0, len(starts))
	for _, start := range starts {
		if err := b.policy.CheckAdvance(start, b.now); err != nil {
			return nil, err
		}
		end, window := b.span(start)
		group := groupID
		appts = append(appts, domain.Appointment{
			ID:                uuid.NewSHA1(groupID, []byte(start.Format(time.RFC3339))),
			TenantID:          b.professional.TenantID,
			ProfessionalID:    in.ProfessionalID,
			ClientID:          in.ClientID,
			ServiceIDs:        append([]uuid.UUID(nil), in.ServiceIDs...),
			ScheduledAt:       start,
			EndTime:           end,
			BufferMinutes:     b.model.BufferMinutes,
			Status:            domain.StatusPending,
			RecurrenceGroupID: &group,
			Notes:             in.Notes,
		})
		windows = append(windows, window)
	}

	created := make([]domain.Appointment, 0, len(appts))
	err = s.guard.WithExclusiveWindows(ctx, in.ProfessionalID, windows, func(ctx context.Context) error {
		return s.appointments.InProfessionalTransaction(ctx, in.ProfessionalID, guard.Days(windows...), func(ctx context.Context, tx store.BookingTx) error {
			for i, a := range appts {
				if err := s.checkWindow(ctx, tx, b, a.ScheduledAt, uuid.Nil); err != nil {
					return err
				}
				out, err := tx.InsertAppointment(ctx, a)
				if err != nil {
					return s.storeError(err, a.ProfessionalID, windows[i])
				}
				created = append(created, out)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	evts := make([]domain.Event, 0, len(created))
	for _, a := range created {
		evts = append(evts, domain.NewEvent(domain.TransitionCreated, a, b.now))
	}
	s.publish(ctx, evts...)
	return created, nil
}

// CancelGroup cancels every non-terminal sibling of a recurrence group
// scheduled at or after from. Siblings already finished are left alone.
func (s *Service) CancelGroup(ctx context.Context, groupID uuid.UUID, from time.Time, reason string) ([]domain.Appointment, error) {
	if groupID == uuid.Nil {
		return nil, validationError("recurrence_group_id is required")
	}
	siblings, err := s.appointments.ListRecurrenceGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if len(siblings) == 0 {
		return nil, domain.NotFound("recurrence group", groupID)
	}

	var targets []domain.Appointment
	var windows []domain.Interval
	for _, a := range siblings {
		if a.Status.IsActive() && !a.ScheduledAt.Before(from) {
			targets = append(targets, a)
			windows = append(windows, a.Window())
		}
	}
	if len(targets) == 0 {
		return nil, nil
	}

	policy, err := s.policies.TenantPolicy(ctx, targets[0].TenantID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	professionalID := targets[0].ProfessionalID
	reason = strings.TrimSpace(reason)

	cancelled := make([]domain.Appointment, 0, len(targets))
	err = s.guard.WithExclusiveWindows(ctx, professionalID, windows, func(ctx context.Context) error {
		return s.appointments.InProfessionalTransaction(ctx, professionalID, guard.Days(windows...), func(ctx context.Context, tx store.BookingTx) error {
			for _, t := range targets {
				a, err := tx.GetAppointment(ctx, t.ID)
				if err != nil {
					return err
				}
				if err := a.Cancel(now, reason, policy); err != nil {
					var ite *domain.IllegalTransitionError
					if errors.As(err, &ite) {
						// finished concurrently; leave it
						continue
					}
					return err
				}
				if err := tx.UpdateAppointment(ctx, a); err != nil {
					return err
				}
				cancelled = append(cancelled, a)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	evts := make([]domain.Event, 0, len(cancelled))
	for _, a := range cancelled {
		e := domain.NewEvent(domain.TransitionCancelled, a, now)
		e.WasLateCancellation = a.LateCancellation
		e.CancellationReason = a.CancellationReason
		evts = append(evts, e)
	}
	s.publish(ctx, evts...)
	return cancelled, nil
}
