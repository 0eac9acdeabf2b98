package availability

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"appointly/backend/internal/domain"
	"appointly/backend/internal/metrics"
	"appointly/backend/internal/schedule"
	"appointly/backend/internal/slots"
	"appointly/backend/internal/store"
)

// MaxCompareProfessionals bounds one comparison request.
const MaxCompareProfessionals = 20

const compareParallelism = 8

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
	catalog      store.CatalogReader
	schedule     schedule.Source
	appointments store.AppointmentReader
	policies     PolicySource

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

func NewService(catalog store.CatalogReader, sched schedule.Source, appointments store.AppointmentReader, policies PolicySource, opts ...Option) *Service {
	s := &Service{
		catalog:      catalog,
		schedule:     sched,
		appointments: appointments,
		policies:     policies,
		log:          slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(slog.String("component", "availability"))
	return s
}

type Query struct {
	ProfessionalID uuid.UUID
	ServiceIDs     []uuid.UUID
	Range          domain.DateRange
}

type CompareQuery struct {
	ProfessionalIDs []uuid.UUID
	ServiceIDs      []uuid.UUID
	Range           domain.DateRange
}

// Slots lists the bookable starts of one professional over a date range,
// sized with the minimum execution time of variable services.
func (s *Service) Slots(ctx context.Context, q Query) ([]slots.Candidate, error) {
	if q.ProfessionalID == uuid.Nil {
		return nil, validationError("professional_id is required")
	}
	if err := validateCommon(q.ServiceIDs, q.Range); err != nil {
		return nil, err
	}

	started := time.Now()
	out, err := s.slotsFor(ctx, q.ProfessionalID, q.ServiceIDs, q.Range)
	s.metrics.ObserveQuery("single", time.Since(started))
	return out, err
}

// Compare queries several professionals in parallel and merges their slots
// by start time. Any failure fails the whole comparison.
func (s *Service) Compare(ctx context.Context, q CompareQuery) ([]slots.Candidate, error) {
	if len(q.ProfessionalIDs) == 0 {
		return nil, validationError("at least one professional_id is required")
	}
	if len(q.ProfessionalIDs) > MaxCompareProfessionals {
		return nil, validationError("too many professionals to compare")
	}
	seen := make(map[uuid.UUID]struct{}, len(q.ProfessionalIDs))
	for _, id := range q.ProfessionalIDs {
		if id == uuid.Nil {
			return nil, validationError("professional_ids must not contain empty ids")
		}
		if _, dup := seen[id]; dup {
			return nil, validationError("professional_ids must be unique")
		}
		seen[id] = struct{}{}
	}
	if err := validateCommon(q.ServiceIDs, q.Range); err != nil {
		return nil, err
	}

	started := time.Now()
	defer func() { s.metrics.ObserveQuery("compare", time.Since(started)) }()

	results := make([][]slots.Candidate, len(q.ProfessionalIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(compareParallelism)
	for i, id := range q.ProfessionalIDs {
		i, id := i, id
		g.Go(func() error {
			out, err := s.slotsFor(gctx, id, q.ServiceIDs, q.Range)
			if err != nil {
				return err
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return slots.Merge(results...), nil
}

func validateCommon(serviceIDs []uuid.UUID, r domain.DateRange) error {
	if len(serviceIDs) == 0 {
		return validationError("at least one service_id is required")
	}
	for _, id := range serviceIDs {
		if id == uuid.Nil {
			return validationError("service_ids must not contain empty ids")
		}
	}
	if err := r.Validate(); err != nil {
		return validationError(err.Error())
	}
	return nil
}

func (s *Service) slotsFor(ctx context.Context, professionalID uuid.UUID, serviceIDs []uuid.UUID, r domain.DateRange) ([]slots.Candidate, error) {
	pro, err := s.catalog.GetProfessional(ctx, professionalID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.NotFound("professional", professionalID)
		}
		return nil, err
	}
	loc, err := pro.Location()
	if err != nil {
		return nil, err
	}
	model, err := s.durationModel(ctx, pro, serviceIDs)
	if err != nil {
		return nil, err
	}
	policy, err := s.policies.TenantPolicy(ctx, pro.TenantID)
	if err != nil {
		return nil, err
	}

	open, err := s.schedule.ResolveOpenIntervals(ctx, professionalID, r)
	if err != nil {
		return nil, err
	}
	from := r.From.At(0, loc)
	to := r.To.AddDays(1).At(0, loc)
	existing, err := s.appointments.ListActiveAppointments(ctx, professionalID, from, to)
	if err != nil {
		return nil, err
	}

	out := slots.Generate(slots.Input{
		ProfessionalID: pro.ID,
		Preferred:      pro.Preferred,
		Open:           open.Between(r),
		Duration:       model,
		Mode:           domain.DurationDisplay,
		Existing:       existing,
		Step:           policy.Step(),
		Now:            s.now().UTC(),
		Policy:         policy,
		Location:       loc,
	})
	s.log.Debug("slots generated",
		slog.String("professional_id", professionalID.String()),
		slog.String("from", r.From.String()),
		slog.String("to", r.To.String()),
		slog.Int("count", len(out)))
	return out, nil
}

func (s *Service) durationModel(ctx context.Context, pro domain.Professional, serviceIDs []uuid.UUID) (domain.ServiceDurationModel, error) {
	services, err := s.catalog.GetServices(ctx, serviceIDs)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.ServiceDurationModel{}, domain.NotFound("service", serviceIDs[0])
		}
		return domain.ServiceDurationModel{}, err
	}
	models := make([]domain.ServiceDurationModel, 0, len(services))
	for _, svc := range services {
		if svc.TenantID != pro.TenantID {
			return domain.ServiceDurationModel{}, validationError("service " + svc.ID.String() + " is not offered by professional " + pro.ID.String())
		}
		models = append(models, svc.DurationModel())
	}
	model := domain.CombineDurations(models...)
	if err := model.Validate(); err != nil {
		return domain.ServiceDurationModel{}, err
	}
	return model, nil
}
