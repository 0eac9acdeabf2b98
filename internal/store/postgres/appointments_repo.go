package postgres

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"appointly/backend/internal/domain"
	"appointly/backend/internal/guard"
	"appointly/backend/internal/store"
)

const (
	pgExclusionViolation = "23P01"
	pgUniqueViolation    = "23505"

	noOverlapConstraint = "appointments_no_overlap"
)

type AppointmentRepo struct {
	db bun.IDB
}

// NewAppointmentRepo accepts a *bun.DB or a bun.Tx; transactions opened on a
// bun.Tx become savepoints.
func NewAppointmentRepo(db bun.IDB) *AppointmentRepo {
	return &AppointmentRepo{db: db}
}

type bookingTx struct {
	tx bun.Tx
}

func (r *AppointmentRepo) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	return getAppointment(ctx, r.db, id)
}

func (r *AppointmentRepo) ListActiveAppointments(ctx context.Context, professionalID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	return listActive(ctx, r.db, professionalID, windowStart, windowEnd)
}

func (r *AppointmentRepo) ListRecurrenceGroup(ctx context.Context, groupID uuid.UUID) ([]domain.Appointment, error) {
	return listGroup(ctx, r.db, groupID)
}

func (r *AppointmentRepo) InProfessionalTransaction(ctx context.Context, professionalID uuid.UUID, days []domain.Date, fn func(ctx context.Context, tx store.BookingTx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockProfessionalDays(ctx, tx, professionalID, days); err != nil {
			return err
		}
		return fn(ctx, bookingTx{tx: tx})
	})
}

// lockProfessionalDays takes the same per-day keys the Conflict Guard uses,
// as transaction-scoped advisory locks, in a fixed order. Without days the
// whole professional is locked.
func lockProfessionalDays(ctx context.Context, tx bun.Tx, professionalID uuid.UUID, days []domain.Date) error {
	for _, key := range lockKeys(professionalID, days) {
		if _, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", key).Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

func lockKeys(professionalID uuid.UUID, days []domain.Date) []string {
	if len(days) == 0 {
		return []string{"appointly:lock:" + professionalID.String()}
	}
	seen := make(map[string]struct{}, len(days))
	out := make([]string, 0, len(days))
	for _, d := range days {
		k := guard.Key(professionalID, d)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (t bookingTx) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	return getAppointment(ctx, t.tx, id)
}

func (t bookingTx) ListActiveAppointments(ctx context.Context, professionalID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	return listActive(ctx, t.tx, professionalID, windowStart, windowEnd)
}

func (t bookingTx) ListRecurrenceGroup(ctx context.Context, groupID uuid.UUID) ([]domain.Appointment, error) {
	return listGroup(ctx, t.tx, groupID)
}

func (t bookingTx) InsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := appt.Clone()

	res, err := t.tx.NewInsert().
		Model(&m).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return domain.Appointment{}, mapWriteError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Appointment{}, err
	}
	if affected == 1 {
		return m, nil
	}

	existing, err := getAppointment(ctx, t.tx, m.ID)
	if err != nil {
		return domain.Appointment{}, err
	}
	if !sameBooking(existing, appt) {
		return domain.Appointment{}, store.ErrIdempotencyConflict
	}
	return existing, nil
}

func (t bookingTx) UpdateAppointment(ctx context.Context, appt domain.Appointment) error {
	m := appt.Clone()
	res, err := t.tx.NewUpdate().
		Model(&m).
		ExcludeColumn("created_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return mapWriteError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch {
	case pgErr.Code == pgExclusionViolation && pgErr.ConstraintName == noOverlapConstraint:
		return store.ErrConflict
	case pgErr.Code == pgUniqueViolation:
		return store.ErrIdempotencyConflict
	}
	return err
}

func sameBooking(a, b domain.Appointment) bool {
	if a.ProfessionalID != b.ProfessionalID ||
		a.ClientID != b.ClientID ||
		!a.ScheduledAt.Equal(b.ScheduledAt) ||
		!a.EndTime.Equal(b.EndTime) ||
		len(a.ServiceIDs) != len(b.ServiceIDs) {
		return false
	}
	for i := range a.ServiceIDs {
		if a.ServiceIDs[i] != b.ServiceIDs[i] {
			return false
		}
	}
	return true
}

func getAppointment(ctx context.Context, db bun.IDB, id uuid.UUID) (domain.Appointment, error) {
	var a domain.Appointment
	err := db.NewSelect().
		Model(&a).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Appointment{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Appointment{}, err
	}
	return a, nil
}

func listActive(ctx context.Context, db bun.IDB, professionalID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := db.NewSelect().
		Model(&rows).
		Where("professional_id = ?", professionalID).
		Where("status IN (?)", bun.In(domain.ActiveStatuses)).
		Where("scheduled_at < ?", windowEnd).
		Where("blocked_until > ?", windowStart).
		OrderExpr("scheduled_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func listGroup(ctx context.Context, db bun.IDB, groupID uuid.UUID) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := db.NewSelect().
		Model(&rows).
		Where("recurrence_group_id = ?", groupID).
		OrderExpr("scheduled_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
