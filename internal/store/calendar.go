package store

import (
	"context"

	"github.com/google/uuid"

	"appointly/backend/internal/domain"
)

type CalendarReader interface {
	// LoadCalendar returns ErrNotFound for an unknown professional.
	LoadCalendar(ctx context.Context, professionalID uuid.UUID) (domain.Calendar, error)
}

type CalendarWriter interface {
	// SaveTemplate upserts tpl. Saving an active template deactivates the
	// professional's other templates in the same transaction.
	SaveTemplate(ctx context.Context, tpl domain.WorkingHoursTemplate) (domain.WorkingHoursTemplate, error)
	SaveException(ctx context.Context, ex domain.ScheduleException) (domain.ScheduleException, error)
	GetException(ctx context.Context, id uuid.UUID) (domain.ScheduleException, error)
	SaveBreak(ctx context.Context, br domain.BreakRule) (domain.BreakRule, error)
}

type CatalogReader interface {
	GetProfessional(ctx context.Context, id uuid.UUID) (domain.Professional, error)
	// GetServices returns services in the order of ids; ErrNotFound when any
	// id is unknown.
	GetServices(ctx context.Context, ids []uuid.UUID) ([]domain.Service, error)
}

type CatalogWriter interface {
	SaveProfessional(ctx context.Context, p domain.Professional) (domain.Professional, error)
	SaveService(ctx context.Context, s domain.Service) (domain.Service, error)
}

type PolicyReader interface {
	// GetTenantPolicy returns ErrNotFound when the tenant has no override.
	GetTenantPolicy(ctx context.Context, tenantID uuid.UUID) (domain.TenantPolicy, error)
}
