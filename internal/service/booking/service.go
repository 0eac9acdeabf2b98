package booking

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"appointly/backend/internal/domain"
	"appointly/backend/internal/events"
	"appointly/backend/internal/guard"
	"appointly/backend/internal/metrics"
	"appointly/backend/internal/schedule"
	"appointly/backend/internal/slots"
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

type PolicySource interface {
	TenantPolicy(ctx context.Context, tenantID uuid.UUID) (domain.TenantPolicy, error)
}

type Service struct {
	appointments store.AppointmentStore
	catalog      store.CatalogReader
	schedule     schedule.Source
	guard        guard.Guard
	policies     PolicySource
	events       events.Sink

	log     *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) { s.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService wires the booking flow. sched must read current data: the
// create and reschedule paths re-validate against it inside the lock.
func NewService(
	appointments store.AppointmentStore,
	catalog store.CatalogReader,
	sched schedule.Source,
	g guard.Guard,
	policies PolicySource,
	sink events.Sink,
	opts ...Option,
) *Service {
	s := &Service{
		appointments: appointments,
		catalog:      catalog,
		schedule:     sched,
		guard:        g,
		policies:     policies,
		events:       sink,
		log:          slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(slog.String("component", "booking"))
	return s
}

type CreateInput struct {
	ProfessionalID uuid.UUID
	ClientID       uuid.UUID
	ServiceIDs     []uuid.UUID
	ScheduledAt    time.Time
	Notes          string
	IdempotencyKey string
}

func (in CreateInput) validate() error {
	if in.ProfessionalID == uuid.Nil {
		return validationError("professional_id is required")
	}
	if in.ClientID == uuid.Nil {
		return validationError("client_id is required")
	}
	if len(in.ServiceIDs) == 0 {
		return validationError("at least one service_id is required")
	}
	for _, id := range in.ServiceIDs {
		if id == uuid.Nil {
			return validationError("service_ids must not contain empty ids")
		}
	}
	if in.ScheduledAt.IsZero() {
		return validationError("scheduled_at is required")
	}
	if len(strings.TrimSpace(in.IdempotencyKey)) > 256 {
		return validationError("idempotency_key too long")
	}
	return nil
}

// booking is the resolved context shared by create, reschedule and
// recurring creation.
type booking struct {
	professional domain.Professional
	loc          *time.Location
	model        domain.ServiceDurationModel
	policy       domain.TenantPolicy
	now          time.Time
}

func (b booking) span(start time.Time) (end time.Time, window domain.Interval) {
	end = start.Add(b.model.Bookable(domain.DurationBooking))
	return end, domain.Interval{Start: start, End: end.Add(b.model.Buffer())}
}

func (s *Service) prepare(ctx context.Context, professionalID uuid.UUID, serviceIDs []uuid.UUID) (booking, error) {
	pro, err := s.catalog.GetProfessional(ctx, professionalID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return booking{}, domain.NotFound("professional", professionalID)
		}
		return booking{}, err
	}
	loc, err := pro.Location()
	if err != nil {
		return booking{}, err
	}

	services, err := s.catalog.GetServices(ctx, serviceIDs)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return booking{}, &domain.NotFoundError{Entity: "service", ID: joinIDs(serviceIDs)}
		}
		return booking{}, err
	}
	models := make([]domain.ServiceDurationModel, 0, len(services))
	for _, svc := range services {
		if svc.TenantID != pro.TenantID {
			return booking{}, validationError("service " + svc.ID.String() + " is not offered by this professional's tenant")
		}
		models = append(models, svc.DurationModel())
	}
	model := domain.CombineDurations(models...)
	if err := model.Validate(); err != nil {
		return booking{}, err
	}

	policy, err := s.policies.TenantPolicy(ctx, pro.TenantID)
	if err != nil {
		return booking{}, err
	}

	return booking{professional: pro, loc: loc, model: model, policy: policy, now: s.now().UTC()}, nil
}

func (s *Service) Create(ctx context.Context, in CreateInput) (domain.Appointment, error) {
	if err := in.validate(); err != nil {
		return domain.Appointment{}, err
	}

	appt := domain.Appointment{
		ProfessionalID: in.ProfessionalID,
		ClientID:       in.ClientID,
		ServiceIDs:     append([]uuid.UUID(nil), in.ServiceIDs...),
		ScheduledAt:    in.ScheduledAt.UTC(),
		Notes:          in.Notes,
		Status:         domain.StatusPending,
	}
	if key := strings.TrimSpace(in.IdempotencyKey); key != "" {
		appt.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("appointly:create_appointment:"+in.ClientID.String()+":"+key))
		if existing, err := s.appointments.GetAppointment(ctx, appt.ID); err == nil {
			return replay(existing, appt)
		} else if !errors.Is(err, store.ErrNotFound) {
			return domain.Appointment{}, err
		}
	}

	b, err := s.prepare(ctx, in.ProfessionalID, in.ServiceIDs)
	if err != nil {
		return domain.Appointment{}, err
	}
	if err := b.policy.CheckAdvance(appt.ScheduledAt, b.now); err != nil {
		return domain.Appointment{}, err
	}

	end, window := b.span(appt.ScheduledAt)
	appt.TenantID = b.professional.TenantID
	appt.EndTime = end
	appt.BufferMinutes = b.model.BufferMinutes

	var created domain.Appointment
	err = s.guard.WithExclusiveWindow(ctx, appt.ProfessionalID, window, func(ctx context.Context) error {
		return s.appointments.InProfessionalTransaction(ctx, appt.ProfessionalID, guard.Days(window), func(ctx context.Context, tx store.BookingTx) error {
			if err := s.checkWindow(ctx, tx, b, appt.ScheduledAt, uuid.Nil); err != nil {
				return err
			}
			out, err := tx.InsertAppointment(ctx, appt)
			if err != nil {
				return s.storeError(err, appt.ProfessionalID, window)
			}
			created = out
			return nil
		})
	})
	if err != nil {
		return domain.Appointment{}, err
	}

	s.publish(ctx, domain.NewEvent(domain.TransitionCreated, created, b.now))
	return created, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if id == uuid.Nil {
		return domain.Appointment{}, validationError("appointment_id is required")
	}
	a, err := s.appointments.GetAppointment(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Appointment{}, domain.NotFound("appointment", id)
		}
		return domain.Appointment{}, err
	}
	return a, nil
}

// checkWindow re-runs resolution and slot fitting against the data visible
// inside the transaction.
func (s *Service) checkWindow(ctx context.Context, tx store.BookingTx, b booking, start time.Time, ignore uuid.UUID) error {
	_, window := b.span(start)
	rng := domain.DateRange{
		From: domain.DateOf(window.Start.In(b.loc)),
		To:   domain.DateOf(window.End.Add(-time.Nanosecond).In(b.loc)),
	}
	open, err := s.schedule.ResolveOpenIntervals(ctx, b.professional.ID, rng)
	if err != nil {
		return err
	}
	existing, err := tx.ListActiveAppointments(ctx, b.professional.ID, window.Start, window.End)
	if err != nil {
		return err
	}

	err = slots.Fits(slots.Input{
		ProfessionalID: b.professional.ID,
		Open:           open.Between(rng),
		Duration:       b.model,
		Mode:           domain.DurationBooking,
		Existing:       existing,
		Ignore:         ignore,
		Now:            b.now,
		Policy:         b.policy,
		Location:       b.loc,
	}, start)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, slots.ErrOutsideAdvance):
		return b.policy.CheckAdvance(start, b.now)
	default:
		s.log.Info("slot conflict",
			slog.String("professional_id", b.professional.ID.String()),
			slog.Time("start", start),
			slog.String("reason", err.Error()))
		return &domain.SlotConflictError{ProfessionalID: b.professional.ID, Window: window, Reason: err.Error()}
	}
}

func (s *Service) storeError(err error, professionalID uuid.UUID, window domain.Interval) error {
	switch {
	case errors.Is(err, store.ErrConflict):
		return &domain.SlotConflictError{ProfessionalID: professionalID, Window: window, Reason: "window was taken by a concurrent booking"}
	case errors.Is(err, store.ErrIdempotencyConflict):
		return validationError("idempotency_key was already used for a different booking")
	default:
		return err
	}
}

func replay(existing, requested domain.Appointment) (domain.Appointment, error) {
	if existing.ProfessionalID != requested.ProfessionalID ||
		existing.ClientID != requested.ClientID ||
		!existing.ScheduledAt.Equal(requested.ScheduledAt) {
		return domain.Appointment{}, validationError("idempotency_key was already used for a different booking")
	}
	return existing, nil
}

func (s *Service) publish(ctx context.Context, evts ...domain.Event) {
	for _, e := range evts {
		s.metrics.Transition(string(e.Kind))
		s.log.Info("appointment transition",
			slog.String("appointment_id", e.Appointment.ID.String()),
			slog.String("professional_id", e.Appointment.ProfessionalID.String()),
			slog.String("kind", string(e.Kind)))
		if s.events == nil {
			continue
		}
		if err := s.events.Publish(ctx, e); err != nil {
			s.log.Warn("publish event failed",
				slog.String("event_id", e.ID.String()),
				slog.String("event", e.Name()),
				slog.Any("err", err))
		}
	}
}

func joinIDs(ids []uuid.UUID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ",")
}
