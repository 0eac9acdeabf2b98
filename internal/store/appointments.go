package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"appointly/backend/internal/domain"
)

type AppointmentReader interface {
	GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	// ListActiveAppointments returns PENDING/CONFIRMED appointments of the
	// professional whose blocked window intersects [windowStart, windowEnd).
	ListActiveAppointments(ctx context.Context, professionalID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.Appointment, error)
	ListRecurrenceGroup(ctx context.Context, groupID uuid.UUID) ([]domain.Appointment, error)
}

// BookingTx is the write side of one professional's timeline. Everything
// done through it commits or rolls back together.
type BookingTx interface {
	AppointmentReader

	// InsertAppointment returns ErrConflict when the window overlaps another
	// active appointment and ErrIdempotencyConflict when the ID exists with
	// different content. Re-inserting an identical appointment returns it.
	InsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	// UpdateAppointment persists a status transition. ErrNotFound when the
	// row is missing.
	UpdateAppointment(ctx context.Context, appt domain.Appointment) error
}

type AppointmentStore interface {
	AppointmentReader

	// InProfessionalTransaction runs fn in a transaction that holds the
	// professional's per-day write locks for days.
	InProfessionalTransaction(ctx context.Context, professionalID uuid.UUID, days []domain.Date, fn func(ctx context.Context, tx BookingTx) error) error
}
