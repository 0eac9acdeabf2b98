package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"appointly/backend/internal/domain"
)

type fakeEnqueuer struct {
	enqueueFn func(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

func (f *fakeEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.enqueueFn == nil {
		panic("EnqueueContext not configured")
	}
	return f.enqueueFn(ctx, task, opts...)
}

func sampleEvent() domain.Event {
	appt := domain.Appointment{
		ID:             uuid.MustParse("00000000-0000-0000-0000-0000000000a1"),
		ProfessionalID: uuid.MustParse("00000000-0000-0000-0000-0000000000c1"),
		ScheduledAt:    time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		EndTime:        time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		Status:         domain.StatusCancelled,
	}
	e := domain.NewEvent(domain.TransitionCancelled, appt, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	e.WasLateCancellation = true
	return e
}

func TestAsynqPublisher_EnqueuesTypedTask(t *testing.T) {
	var got *asynq.Task
	var optCount int
	p := NewAsynqPublisher(&fakeEnqueuer{enqueueFn: func(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
		got = task
		optCount = len(opts)
		return &asynq.TaskInfo{}, nil
	}}, "events")

	e := sampleEvent()
	if err := p.Publish(context.Background(), e); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	if got.Type() != "appointment:cancelled" {
		t.Fatalf("task type = %q", got.Type())
	}
	if optCount != 2 {
		t.Fatalf("opts = %d, want queue and task id", optCount)
	}

	decoded, err := ParseTask(got)
	if err != nil {
		t.Fatalf("ParseTask error: %v", err)
	}
	if decoded.ID != e.ID || !decoded.WasLateCancellation || decoded.Appointment.ID != e.Appointment.ID {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func TestAsynqPublisher_DuplicateIsNotAnError(t *testing.T) {
	p := NewAsynqPublisher(&fakeEnqueuer{enqueueFn: func(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
		return nil, asynq.ErrTaskIDConflict
	}}, "")
	if err := p.Publish(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
}

type failingSink struct{ err error }

func (f failingSink) Publish(ctx context.Context, e domain.Event) error { return f.err }

func TestFanOut_PublishesToAllAndJoinsErrors(t *testing.T) {
	rec := &Recorder{}
	boom := errors.New("boom")
	f := NewFanOut(nil).Add("broken", failingSink{err: boom}).Add("recorder", rec)

	err := f.Publish(context.Background(), sampleEvent())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if len(rec.Events()) != 1 {
		t.Fatalf("recorder got %d events, want 1", len(rec.Events()))
	}
}

func TestParseTask_RejectsForeignType(t *testing.T) {
	if _, err := ParseTask(asynq.NewTask("reminder:send", nil)); err == nil {
		t.Fatalf("expected error")
	}
}

func TestNewTask_EarlyCancellationCarriesFalseFlag(t *testing.T) {
	e := sampleEvent()
	e.WasLateCancellation = false

	task, err := NewTask(e)
	if err != nil {
		t.Fatalf("NewTask error: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	late, ok := payload["was_late_cancellation"]
	if !ok {
		t.Fatalf("payload has no was_late_cancellation key: %s", task.Payload())
	}
	if late != false {
		t.Fatalf("was_late_cancellation = %v, want false", late)
	}
}
