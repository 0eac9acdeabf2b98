package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"appointly/backend/internal/domain"
	"appointly/backend/internal/store"
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

// Invalidator drops cached open intervals of a professional.
type Invalidator interface {
	Invalidate(ctx context.Context, professionalID uuid.UUID) error
}

type Service struct {
	calendars store.CalendarWriter
	catalog   store.CatalogReader
	cache     Invalidator
	log       *slog.Logger
}

// NewService builds the calendar administration service. cache may be nil
// when open intervals are not cached.
func NewService(calendars store.CalendarWriter, catalog store.CatalogReader, cache Invalidator, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		calendars: calendars,
		catalog:   catalog,
		cache:     cache,
		log:       log.With(slog.String("component", "calendar")),
	}
}

// SaveTemplate validates and stores a working-hours template. Slots are
// stored start-ascending.
func (s *Service) SaveTemplate(ctx context.Context, tpl domain.WorkingHoursTemplate) (domain.WorkingHoursTemplate, error) {
	if err := s.requireProfessional(ctx, tpl.ProfessionalID); err != nil {
		return domain.WorkingHoursTemplate{}, err
	}
	tpl.Name = strings.TrimSpace(tpl.Name)
	if tpl.Name == "" {
		return domain.WorkingHoursTemplate{}, validationError("template name is required")
	}
	tpl.Normalize()
	if err := tpl.Validate(); err != nil {
		return domain.WorkingHoursTemplate{}, err
	}

	saved, err := s.calendars.SaveTemplate(ctx, tpl)
	if err != nil {
		return domain.WorkingHoursTemplate{}, fmt.Errorf("save template: %w", err)
	}
	s.invalidate(ctx, saved.ProfessionalID)
	return saved, nil
}

// SubmitException stores a new exception in pending status. It does not
// affect availability until approved.
func (s *Service) SubmitException(ctx context.Context, ex domain.ScheduleException) (domain.ScheduleException, error) {
	if err := s.requireProfessional(ctx, ex.ProfessionalID); err != nil {
		return domain.ScheduleException{}, err
	}
	if ex.ID != uuid.Nil {
		return domain.ScheduleException{}, validationError("exceptions are reviewed, not edited; submit a new one")
	}
	ex.Status = domain.ExceptionPending
	ex.Reason = strings.TrimSpace(ex.Reason)
	if ex.IsAllDay {
		ex.StartTime, ex.EndTime = nil, nil
	}
	if err := ex.Validate(); err != nil {
		return domain.ScheduleException{}, err
	}
	saved, err := s.calendars.SaveException(ctx, ex)
	if err != nil {
		return domain.ScheduleException{}, fmt.Errorf("save exception: %w", err)
	}
	return saved, nil
}

func (s *Service) ApproveException(ctx context.Context, id uuid.UUID) (domain.ScheduleException, error) {
	return s.review(ctx, id, domain.ExceptionApproved)
}

func (s *Service) RejectException(ctx context.Context, id uuid.UUID) (domain.ScheduleException, error) {
	return s.review(ctx, id, domain.ExceptionRejected)
}

func (s *Service) review(ctx context.Context, id uuid.UUID, status domain.ExceptionStatus) (domain.ScheduleException, error) {
	if id == uuid.Nil {
		return domain.ScheduleException{}, validationError("exception_id is required")
	}
	ex, err := s.calendars.GetException(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.ScheduleException{}, domain.NotFound("schedule exception", id)
		}
		return domain.ScheduleException{}, err
	}
	if ex.Status != domain.ExceptionPending {
		return domain.ScheduleException{}, validationError(fmt.Sprintf("exception is already %s", ex.Status))
	}
	ex.Status = status
	saved, err := s.calendars.SaveException(ctx, ex)
	if err != nil {
		return domain.ScheduleException{}, fmt.Errorf("save exception: %w", err)
	}
	if status == domain.ExceptionApproved {
		s.invalidate(ctx, saved.ProfessionalID)
	}
	s.log.Info("schedule exception reviewed",
		slog.String("exception_id", saved.ID.String()),
		slog.String("professional_id", saved.ProfessionalID.String()),
		slog.String("status", string(saved.Status)))
	return saved, nil
}

func (s *Service) SaveBreak(ctx context.Context, br domain.BreakRule) (domain.BreakRule, error) {
	if err := s.requireProfessional(ctx, br.ProfessionalID); err != nil {
		return domain.BreakRule{}, err
	}
	br.Name = strings.TrimSpace(br.Name)
	if err := br.Validate(); err != nil {
		return domain.BreakRule{}, err
	}
	saved, err := s.calendars.SaveBreak(ctx, br)
	if err != nil {
		return domain.BreakRule{}, fmt.Errorf("save break: %w", err)
	}
	s.invalidate(ctx, saved.ProfessionalID)
	return saved, nil
}

func (s *Service) requireProfessional(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return validationError("professional_id is required")
	}
	if _, err := s.catalog.GetProfessional(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.NotFound("professional", id)
		}
		return err
	}
	return nil
}

// invalidate is best effort; cached days expire on their own.
func (s *Service) invalidate(ctx context.Context, professionalID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, professionalID); err != nil {
		s.log.Warn("open interval cache invalidation failed",
			slog.String("professional_id", professionalID.String()),
			slog.Any("err", err))
	}
}
