package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"appointly/backend/internal/domain"
	"appointly/backend/internal/metrics"
)

// Sink receives one event per committed transition. Delivery guarantees are
// the sink's business; the booking flow never retries.
type Sink interface {
	Publish(ctx context.Context, e domain.Event) error
}

type namedSink struct {
	name string
	sink Sink
}

// FanOut publishes to every sink and joins their errors.
type FanOut struct {
	sinks   []namedSink
	metrics *metrics.Metrics
}

func NewFanOut(m *metrics.Metrics) *FanOut {
	return &FanOut{metrics: m}
}

func (f *FanOut) Add(name string, s Sink) *FanOut {
	f.sinks = append(f.sinks, namedSink{name: name, sink: s})
	return f
}

func (f *FanOut) Publish(ctx context.Context, e domain.Event) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.sink.Publish(ctx, e); err != nil {
			f.metrics.PublishFailed(s.name)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes every event as a structured log line.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(log *slog.Logger) *LogSink {
	if log == nil {
		log = slog.Default()
	}
	return &LogSink{log: log.With(slog.String("component", "events"))}
}

func (s *LogSink) Publish(ctx context.Context, e domain.Event) error {
	attrs := []any{
		slog.String("event_id", e.ID.String()),
		slog.String("event", e.Name()),
		slog.String("appointment_id", e.Appointment.ID.String()),
		slog.String("professional_id", e.Appointment.ProfessionalID.String()),
		slog.String("status", string(e.Appointment.Status)),
	}
	if e.Kind == domain.TransitionCancelled {
		attrs = append(attrs, slog.Bool("late_cancellation", e.WasLateCancellation))
	}
	s.log.InfoContext(ctx, "appointment event", attrs...)
	return nil
}

// Recorder keeps events in memory. Used by tests and local runs.
type Recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *Recorder) Publish(ctx context.Context, e domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events...)
}
