package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"appointly/backend/internal/domain"
	"appointly/backend/internal/store"
)

// CalendarRepo stores everything the resolver and the booking flow read
// besides appointments: professionals, services, calendars and tenant
// policies.
type CalendarRepo struct {
	db bun.IDB
}

func NewCalendarRepo(db bun.IDB) *CalendarRepo {
	return &CalendarRepo{db: db}
}

type tenantPolicyRow struct {
	bun.BaseModel `bun:"table:tenant_policies"`

	TenantID                 uuid.UUID `bun:"tenant_id,pk,type:uuid"`
	MinAdvanceHours          int       `bun:"min_advance_hours,notnull"`
	MaxAdvanceDays           int       `bun:"max_advance_days,notnull"`
	CancellationMinimumHours int       `bun:"cancellation_minimum_hours,notnull"`
	SlotStepMinutes          int       `bun:"slot_step_minutes,notnull"`
	UpdatedAt                time.Time `bun:"updated_at,notnull"`
}

func (r *CalendarRepo) LoadCalendar(ctx context.Context, professionalID uuid.UUID) (domain.Calendar, error) {
	pro, err := r.GetProfessional(ctx, professionalID)
	if err != nil {
		return domain.Calendar{}, err
	}
	cal := domain.Calendar{Professional: pro}

	err = r.db.NewSelect().
		Model(&cal.Templates).
		Where("professional_id = ?", professionalID).
		Where("is_active").
		OrderExpr("valid_from ASC NULLS FIRST, id ASC").
		Scan(ctx)
	if err != nil {
		return domain.Calendar{}, err
	}
	err = r.db.NewSelect().
		Model(&cal.Exceptions).
		Where("professional_id = ?", professionalID).
		Where("status = ?", domain.ExceptionApproved).
		OrderExpr("start_date ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return domain.Calendar{}, err
	}
	err = r.db.NewSelect().
		Model(&cal.Breaks).
		Where("professional_id = ?", professionalID).
		Where("is_active").
		OrderExpr("id ASC").
		Scan(ctx)
	if err != nil {
		return domain.Calendar{}, err
	}
	return cal, nil
}

func (r *CalendarRepo) SaveTemplate(ctx context.Context, tpl domain.WorkingHoursTemplate) (domain.WorkingHoursTemplate, error) {
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().
			Model(&tpl).
			On("CONFLICT (id) DO UPDATE").
			Set("name = EXCLUDED.name").
			Set("is_active = EXCLUDED.is_active").
			Set("valid_from = EXCLUDED.valid_from").
			Set("valid_until = EXCLUDED.valid_until").
			Set("days = EXCLUDED.days").
			Set("updated_at = now()").
			Exec(ctx)
		if err != nil {
			return err
		}
		if !tpl.IsActive {
			return nil
		}
		_, err = tx.NewUpdate().
			Model((*domain.WorkingHoursTemplate)(nil)).
			Set("is_active = false").
			Set("updated_at = now()").
			Where("professional_id = ?", tpl.ProfessionalID).
			Where("id <> ?", tpl.ID).
			Where("is_active").
			Exec(ctx)
		return err
	})
	if err != nil {
		return domain.WorkingHoursTemplate{}, err
	}
	return tpl, nil
}

func (r *CalendarRepo) SaveException(ctx context.Context, ex domain.ScheduleException) (domain.ScheduleException, error) {
	_, err := r.db.NewInsert().
		Model(&ex).
		On("CONFLICT (id) DO UPDATE").
		Set("kind = EXCLUDED.kind").
		Set("start_date = EXCLUDED.start_date").
		Set("end_date = EXCLUDED.end_date").
		Set("start_time = EXCLUDED.start_time").
		Set("end_time = EXCLUDED.end_time").
		Set("is_all_day = EXCLUDED.is_all_day").
		Set("status = EXCLUDED.status").
		Set("reason = EXCLUDED.reason").
		Set("updated_at = now()").
		Exec(ctx)
	if err != nil {
		return domain.ScheduleException{}, err
	}
	return ex, nil
}

func (r *CalendarRepo) GetException(ctx context.Context, id uuid.UUID) (domain.ScheduleException, error) {
	var ex domain.ScheduleException
	err := r.db.NewSelect().Model(&ex).Where("id = ?", id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ScheduleException{}, store.ErrNotFound
	}
	if err != nil {
		return domain.ScheduleException{}, err
	}
	return ex, nil
}

func (r *CalendarRepo) SaveBreak(ctx context.Context, br domain.BreakRule) (domain.BreakRule, error) {
	_, err := r.db.NewInsert().
		Model(&br).
		On("CONFLICT (id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("duration_minutes = EXCLUDED.duration_minutes").
		Set("fixed_start = EXCLUDED.fixed_start").
		Set("window_start = EXCLUDED.window_start").
		Set("window_end = EXCLUDED.window_end").
		Set("days = EXCLUDED.days").
		Set("is_active = EXCLUDED.is_active").
		Set("updated_at = now()").
		Exec(ctx)
	if err != nil {
		return domain.BreakRule{}, err
	}
	return br, nil
}

func (r *CalendarRepo) GetProfessional(ctx context.Context, id uuid.UUID) (domain.Professional, error) {
	var p domain.Professional
	err := r.db.NewSelect().Model(&p).Where("id = ?", id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Professional{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Professional{}, err
	}
	return p, nil
}

func (r *CalendarRepo) SaveProfessional(ctx context.Context, p domain.Professional) (domain.Professional, error) {
	_, err := r.db.NewInsert().
		Model(&p).
		On("CONFLICT (id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("timezone = EXCLUDED.timezone").
		Set("preferred = EXCLUDED.preferred").
		Set("updated_at = now()").
		Exec(ctx)
	if err != nil {
		return domain.Professional{}, err
	}
	return p, nil
}

func (r *CalendarRepo) GetServices(ctx context.Context, ids []uuid.UUID) ([]domain.Service, error) {
	var rows []domain.Service
	err := r.db.NewSelect().
		Model(&rows).
		Where("id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return orderServices(ids, rows)
}

// orderServices returns rows in the order of ids, repeating a row when an
// id is repeated.
func orderServices(ids []uuid.UUID, rows []domain.Service) ([]domain.Service, error) {
	byID := make(map[uuid.UUID]domain.Service, len(rows))
	for _, s := range rows {
		byID[s.ID] = s
	}
	out := make([]domain.Service, 0, len(ids))
	for _, id := range ids {
		s, ok := byID[id]
		if !ok {
			return nil, store.ErrNotFound
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *CalendarRepo) SaveService(ctx context.Context, s domain.Service) (domain.Service, error) {
	_, err := r.db.NewInsert().
		Model(&s).
		On("CONFLICT (id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("preparation_minutes = EXCLUDED.preparation_minutes").
		Set("execution_minutes = EXCLUDED.execution_minutes").
		Set("execution_max_minutes = EXCLUDED.execution_max_minutes").
		Set("finalization_minutes = EXCLUDED.finalization_minutes").
		Set("buffer_minutes = EXCLUDED.buffer_minutes").
		Set("updated_at = now()").
		Exec(ctx)
	if err != nil {
		return domain.Service{}, err
	}
	return s, nil
}

func (r *CalendarRepo) GetTenantPolicy(ctx context.Context, tenantID uuid.UUID) (domain.TenantPolicy, error) {
	var row tenantPolicyRow
	err := r.db.NewSelect().Model(&row).Where("tenant_id = ?", tenantID).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.TenantPolicy{}, store.ErrNotFound
	}
	if err != nil {
		return domain.TenantPolicy{}, err
	}
	return domain.TenantPolicy{
		MinAdvanceHours:          row.MinAdvanceHours,
		MaxAdvanceDays:           row.MaxAdvanceDays,
		CancellationMinimumHours: row.CancellationMinimumHours,
		SlotStepMinutes:          row.SlotStepMinutes,
	}, nil
}

func (r *CalendarRepo) SaveTenantPolicy(ctx context.Context, tenantID uuid.UUID, p domain.TenantPolicy) error {
	row := tenantPolicyRow{
		TenantID:                 tenantID,
		MinAdvanceHours:          p.MinAdvanceHours,
		MaxAdvanceDays:           p.MaxAdvanceDays,
		CancellationMinimumHours: p.CancellationMinimumHours,
		SlotStepMinutes:          p.SlotStepMinutes,
		UpdatedAt:                time.Now().UTC(),
	}
	_, err := r.db.NewInsert().
		Model(&row).
		On("CONFLICT (tenant_id) DO UPDATE").
		Set("min_advance_hours = EXCLUDED.min_advance_hours").
		Set("max_advance_days = EXCLUDED.max_advance_days").
		Set("cancellation_minimum_hours = EXCLUDED.cancellation_minimum_hours").
		Set("slot_step_minutes = EXCLUDED.slot_step_minutes").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}
