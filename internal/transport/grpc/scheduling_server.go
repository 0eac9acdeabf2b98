package grpc

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"appointly/backend/internal/domain"
	"appointly/backend/internal/service/availability"
	"appointly/backend/internal/service/booking"
	"appointly/backend/internal/service/calendar"
	"appointly/backend/internal/slots"
)

type bookingService interface {
	Create(ctx context.Context, in booking.CreateInput) (domain.Appointment, error)
	CreateRecurring(ctx context.Context, in booking.CreateRecurringInput) ([]domain.Appointment, error)
	Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	Confirm(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string) (domain.Appointment, error)
	CancelGroup(ctx context.Context, groupID uuid.UUID, from time.Time, reason string) ([]domain.Appointment, error)
	Complete(ctx context.Context, id uuid.UUID, actual *time.Duration) (domain.Appointment, error)
	MarkNoShow(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	Reschedule(ctx context.Context, in booking.RescheduleInput) (booking.RescheduleResult, error)
}

type availabilityService interface {
	Slots(ctx context.Context, q availability.Query) ([]slots.Candidate, error)
	Compare(ctx context.Context, q availability.CompareQuery) ([]slots.Candidate, error)
}

type calendarService interface {
	SaveTemplate(ctx context.Context, tpl domain.WorkingHoursTemplate) (domain.WorkingHoursTemplate, error)
	SubmitException(ctx context.Context, ex domain.ScheduleException) (domain.ScheduleException, error)
	ApproveException(ctx context.Context, id uuid.UUID) (domain.ScheduleException, error)
	RejectException(ctx context.Context, id uuid.UUID) (domain.ScheduleException, error)
	SaveBreak(ctx context.Context, br domain.BreakRule) (domain.BreakRule, error)
}

type SchedulingServer struct {
	booking      bookingService
	availability availabilityService
	calendar     calendarService
	log          *slog.Logger
}

var _ SchedulingServiceServer = (*SchedulingServer)(nil)

func NewSchedulingServer(b bookingService, a availabilityService, c calendarService, log *slog.Logger) *SchedulingServer {
	if log == nil {
		log = slog.Default()
	}
	return &SchedulingServer{
		booking:      b,
		availability: a,
		calendar:     c,
		log:          log.With(slog.String("component", "grpc.scheduling")),
	}
}

func (s *SchedulingServer) GetAvailableSlots(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "GetAvailableSlots"))

	var in availabilityRequest
	if err := decode(req, &in); err != nil {
		return nil, invalidRequest(log, err)
	}
	out, err := s.availability.Slots(ctx, availability.Query{
		ProfessionalID: in.ProfessionalID,
		ServiceIDs:     in.ServiceIDs,
		Range:          in.dateRange(),
	})
	if err != nil {
		return nil, toStatus(log, "availability query failed", err, slog.String("professional_id", in.ProfessionalID.String()))
	}

	log.Debug("slots listed",
		slog.String("professional_id", in.ProfessionalID.String()),
		slog.String("from", in.From.String()),
		slog.Int("count", len(out)))
	return encode(slotsResponse{Slots: nonNil(out)})
}

func (s *SchedulingServer) CompareAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "CompareAvailability"))

	var in availabilityRequest
	if err := decode(req, &in); err != nil {
		return nil, invalidRequest(log, err)
	}
	out, err := s.availability.Compare(ctx, availability.CompareQuery{
		ProfessionalIDs: in.ProfessionalIDs,
		ServiceIDs:      in.ServiceIDs,
		Range:           in.dateRange(),
	})
	if err != nil {
		return nil, toStatus(log, "availability comparison failed", err, slog.Int("professionals", len(in.ProfessionalIDs)))
	}

	log.Debug("slots compared", slog.Int("professionals", len(in.ProfessionalIDs)), slog.Int("count", len(out)))
	return encode(slotsResponse{Slots: nonNil(out)})
}

func (s *SchedulingServer) CreateAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "CreateAppointment"))

	var in createRequest
	if err := decode(req, &in); err != nil {
		return nil, invalidRequest(log, err)
	}
	appt, err := s.booking.Create(ctx, in.createInput(idempotencyKey(ctx)))
	if err != nil {
		return nil, toStatus(log, "appointment create failed", err,
			slog.String("professional_id", in.ProfessionalID.String()),
			slog.Time("scheduled_at", in.ScheduledAt))
	}

	log.Info("appointment created",
		slog.String("appointment_id", appt.ID.String()),
		slog.String("professional_id", appt.ProfessionalID.String()),
		slog.Time("scheduled_at", appt.ScheduledAt))
	return encode(appointmentResponse{Appointment: appt})
}

func (s *SchedulingServer) CreateRecurringAppointments(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "CreateRecurringAppointments"))

	var in createRequest
	if err := decode(req, &in); err != nil {
		return nil, invalidRequest(log, err)
	}
	if in.Recurrence == nil {
		log.Warn("invalid request", slog.String("reason", "missing_recurrence"))
		return nil, status.Error(codes.InvalidArgument, "recurrence is required")
	}
	appts, err := s.booking.CreateRecurring(ctx, booking.CreateRecurringInput{
		CreateInput: in.createInput(idempotencyKey(ctx)),
		Rule:        in.Recurrence.toDomain(),
	})
	if err != nil {
		return nil, toStatus(log, "recurring create failed", err,
			slog.String("professional_id", in.ProfessionalID.String()),
			slog.Time("scheduled_at", in.ScheduledAt))
	}

	log.Info("recurring appointments created",
		slog.String("professional_id", in.ProfessionalID.String()),
		slog.Int("count", len(appts)))
	return encode(appointmentsResponse{Appointments: appts})
}

func (s *SchedulingServer) GetAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.appointmentCall(ctx, req, "GetAppointment", func(ctx context.Context, in appointmentRequest) (domain.Appointment, error) {
		return s.booking.Get(ctx, in.AppointmentID)
	})
}

func (s *SchedulingServer) ConfirmAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.appointmentCall(ctx, req, "ConfirmAppointment", func(ctx context.Context, in appointmentRequest) (domain.Appointment, error) {
		return s.booking.Confirm(ctx, in.AppointmentID)
	})
}

func (s *SchedulingServer) CancelAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.appointmentCall(ctx, req, "CancelAppointment", func(ctx context.Context, in appointmentRequest) (domain.Appointment, error) {
		return s.booking.Cancel(ctx, in.AppointmentID, in.Reason)
	})
}

func (s *SchedulingServer) CompleteAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.appointmentCall(ctx, req, "CompleteAppointment", func(ctx context.Context, in appointmentRequest) (domain.Appointment, error) {
		var actual *time.Duration
		if in.ActualDurationMinutes != nil {
			d := time.Duration(*in.ActualDurationMinutes) * time.Minute
			actual = &d
		}
		return s.booking.Complete(ctx, in.AppointmentID, actual)
	})
}

func (s *SchedulingServer) MarkNoShow(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.appointmentCall(ctx, req, "MarkNoShow", func(ctx context.Context, in appointmentRequest) (domain.Appointment, error) {
		return s.booking.MarkNoShow(ctx, in.AppointmentID)
	})
}

// appointmentCall runs the single-appointment RPCs, which share request
// parsing and response shape.
func (s *SchedulingServer) appointmentCall(
	ctx context.Context,
	req *structpb.Struct,
	rpc string,
	call func(ctx context.Context, in appointmentRequest) (domain.Appointment, error),
) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", rpc))

	var in appointmentRequest
	if err := decode(req, &in); err != nil {
		return nil, invalidRequest(log, err)
	}
	if in.AppointmentID == uuid.Nil {
		log.Warn("invalid request", slog.String("reason", "missing_appointment_id"))
		return nil, status.Error(codes.InvalidArgument, "appointment_id is required")
	}
	appt, err := call(ctx, in)
	if err != nil {
		return nil, toStatus(log, "appointment call failed", err, slog.String("appointment_id", in.AppointmentID.String()))
	}

	log.Info("appointment handled",
		slog.String("appointment_id", appt.ID.String()),
		slog.String("status", string(appt.Status)))
	return encode(appointmentResponse{Appointment: appt})
}

func (s *SchedulingServer) CancelRecurrenceGroup(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "CancelRecurrenceGroup"))

	var in groupRequest
	if err := decode(req, &in); err != nil {
		return nil, invalidRequest(log, err)
	}
	if in.RecurrenceGroupID == uuid.Nil {
		log.Warn("invalid request", slog.String("reason", "missing_group_id"))
		return nil, status.Error(codes.InvalidArgument, "recurrence_group_id is required")
	}
	appts, err := s.booking.CancelGroup(ctx, in.RecurrenceGroupID, in.From, in.Reason)
	if err != nil {
		return nil, toStatus(log, "group cancel failed", err, slog.String("recurrence_group_id", in.RecurrenceGroupID.String()))
	}

	log.Info("recurrence group cancelled",
		slog.String("recurrence_group_id", in.RecurrenceGroupID.String()),
		slog.Int("count", len(appts)))
	return encode(appointmentsResponse{Appointments: nonNil(appts)})
}

func (s *SchedulingServer) RescheduleAppointment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "RescheduleAppointment"))

	var in appointmentRequest
	if err := decode(req, &in); err != nil {
		return nil, invalidRequest(log, err)
	}
	if in.AppointmentID == uuid.Nil {
		log.Warn("invalid request", slog.String("reason", "missing_appointment_id"))
		return nil, status.Error(codes.InvalidArgument, "appointment_id is required")
	}
	res, err := s.booking.Reschedule(ctx, booking.RescheduleInput{
		AppointmentID:  in.AppointmentID,
		NewScheduledAt: in.NewScheduledAt,
	})
	if err != nil {
		return nil, toStatus(log, "appointment reschedule failed", err,
			slog.String("appointment_id", in.AppointmentID.String()),
			slog.Time("new_scheduled_at", in.NewScheduledAt))
	}

	log.Info("appointment rescheduled",
		slog.String("appointment_id", res.Original.ID.String()),
		slog.String("replacement_id", res.Replacement.ID.String()),
		slog.Time("scheduled_at", res.Replacement.ScheduledAt))
	return encode(rescheduleResponse{Original: res.Original, Replacement: res.Replacement})
}

func (s *SchedulingServer) SaveWorkingHoursTemplate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "SaveWorkingHoursTemplate"))

	var in templateMsg
	if err := decode(req, &in); err != nil {
		return nil, invalidRequest(log, err)
	}
	tpl, err := in.toDomain()
	if err != nil {
		return nil, invalidRequest(log, err)
	}
	saved, err := s.calendar.SaveTemplate(ctx, tpl)
	if err != nil {
		return nil, toStatus(log, "template save failed", err, slog.String("professional_id", in.ProfessionalID.String()))
	}

	log.Info("template saved",
		slog.String("template_id", saved.ID.String()),
		slog.String("professional_id", saved.ProfessionalID.String()))
	return encode(templateFromDomain(saved))
}

func (s *SchedulingServer) SubmitScheduleException(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "SubmitScheduleException"))

	var in exceptionMsg
	if err := decode(req, &in); err != nil {
		return nil, invalidRequest(log, err)
	}
	ex, err := in.toDomain()
	if err != nil {
		return nil, invalidRequest(log, err)
	}
	saved, err := s.calendar.SubmitException(ctx, ex)
	if err != nil {
		return nil, toStatus(log, "exception submit failed", err, slog.String("professional_id", in.ProfessionalID.String()))
	}

	log.Info("exception submitted",
		slog.String("exception_id", saved.ID.String()),
		slog.String("kind", string(saved.Kind)))
	return encode(exceptionFromDomain(saved))
}

func (s *SchedulingServer) ReviewScheduleException(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "ReviewScheduleException"))

	var in reviewRequest
	if err := decode(req, &in); err != nil {
		return nil, invalidRequest(log, err)
	}
	if in.ExceptionID == uuid.Nil {
		log.Warn("invalid request", slog.String("reason", "missing_exception_id"))
		return nil, status.Error(codes.InvalidArgument, "exception_id is required")
	}
	review := s.calendar.RejectException
	if in.Approve {
		review = s.calendar.ApproveException
	}
	ex, err := review(ctx, in.ExceptionID)
	if err != nil {
		return nil, toStatus(log, "exception review failed", err, slog.String("exception_id", in.ExceptionID.String()))
	}

	log.Info("exception reviewed",
		slog.String("exception_id", ex.ID.String()),
		slog.String("status", string(ex.Status)))
	return encode(exceptionFromDomain(ex))
}

func (s *SchedulingServer) SaveBreakRule(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "SaveBreakRule"))

	var in breakMsg
	if err := decode(req, &in); err != nil {
		return nil, invalidRequest(log, err)
	}
	br, err := in.toDomain()
	if err != nil {
		return nil, invalidRequest(log, err)
	}
	saved, err := s.calendar.SaveBreak(ctx, br)
	if err != nil {
		return nil, toStatus(log, "break save failed", err, slog.String("professional_id", in.ProfessionalID.String()))
	}

	log.Info("break saved",
		slog.String("break_id", saved.ID.String()),
		slog.String("professional_id", saved.ProfessionalID.String()))
	return encode(breakFromDomain(saved))
}

func (r createRequest) createInput(key string) booking.CreateInput {
	return booking.CreateInput{
		ProfessionalID: r.ProfessionalID,
		ClientID:       r.ClientID,
		ServiceIDs:     r.ServiceIDs,
		ScheduledAt:    r.ScheduledAt,
		Notes:          r.Notes,
		IdempotencyKey: key,
	}
}

func idempotencyKey(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("idempotency-key")
	if len(values) == 0 {
		values = md.Get("x-idempotency-key")
	}
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

func invalidRequest(log *slog.Logger, err error) error {
	log.Warn("invalid request", slog.Any("err", err))
	return status.Error(codes.InvalidArgument, err.Error())
}

// toStatus maps service errors onto gRPC codes. Only validation and domain
// errors carry their message to the caller.
func toStatus(log *slog.Logger, msg string, err error, attrs ...any) error {
	var (
		bookingErr      *booking.ValidationError
		availabilityErr *availability.ValidationError
		calendarErr     *calendar.ValidationError
	)
	switch {
	case errors.As(err, &bookingErr), errors.As(err, &availabilityErr), errors.As(err, &calendarErr),
		errors.Is(err, domain.ErrInvalidSchedule):
		log.Warn("invalid request", append(attrs, slog.Any("err", err))...)
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		log.Info("not found", append(attrs, slog.Any("err", err))...)
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrSlotConflict):
		log.Info("slot conflict", append(attrs, slog.Any("err", err))...)
		return status.Error(codes.Aborted, "That time is no longer available. Refresh availability and pick another slot.")
	case errors.Is(err, domain.ErrIllegalTransition), errors.Is(err, domain.ErrPolicyViolation):
		log.Info("precondition failed", append(attrs, slog.Any("err", err))...)
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn("deadline exceeded", attrs...)
		return status.Error(codes.DeadlineExceeded, "request timed out")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request cancelled")
	}
	log.Error(msg, append(attrs, slog.Any("err", err))...)
	return status.Error(codes.Internal, "internal error")
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
