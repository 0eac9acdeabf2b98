package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"

	"appointly/backend/internal/domain"
)

const TaskPrefix = "appointment:"

// Enqueuer is the part of *asynq.Client the publisher needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqPublisher enqueues one task per event, typed "appointment:<kind>".
// The event ID doubles as the task ID so a duplicate publish is rejected by
// the queue instead of delivered twice.
type AsynqPublisher struct {
	client Enqueuer
	queue  string
}

func NewAsynqPublisher(client Enqueuer, queue string) *AsynqPublisher {
	if queue == "" {
		queue = "default"
	}
	return &AsynqPublisher{client: client, queue: queue}
}

func NewTask(e domain.Event) (*asynq.Task, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPrefix+string(e.Kind), b), nil
}

// ParseTask decodes a task produced by NewTask.
func ParseTask(t *asynq.Task) (domain.Event, error) {
	if !strings.HasPrefix(t.Type(), TaskPrefix) {
		return domain.Event{}, fmt.Errorf("unexpected task type %q", t.Type())
	}
	var e domain.Event
	if err := json.Unmarshal(t.Payload(), &e); err != nil {
		return domain.Event{}, err
	}
	return e, nil
}

func (p *AsynqPublisher) Publish(ctx context.Context, e domain.Event) error {
	task, err := NewTask(e)
	if err != nil {
		return err
	}
	_, err = p.client.EnqueueContext(ctx, task, asynq.Queue(p.queue), asynq.TaskID(e.ID.String()))
	if err != nil && err != asynq.ErrTaskIDConflict {
		return fmt.Errorf("enqueue %s: %w", task.Type(), err)
	}
	return nil
}
