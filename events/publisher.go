package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Publisher hands an event off for processing.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// AsynqPublisher enqueues events as asynq tasks for the event worker.
type AsynqPublisher struct {
	client   *asynq.Client
	queue    string
	maxRetry int
}

// NewAsynqPublisher enqueues on the given queue through an existing Redis
// client.
func NewAsynqPublisher(rdb redis.UniversalClient, queue string, maxRetry int) *AsynqPublisher {
	if queue == "" {
		queue = "default"
	}
	return &AsynqPublisher{
		client:   asynq.NewClientFromRedisClient(rdb),
		queue:    queue,
		maxRetry: maxRetry,
	}
}

// Publish enqueues e. The event id doubles as the task id, so publishing the
// same event twice is a no-op.
func (p *AsynqPublisher) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	task := asynq.NewTask(TaskType, payload)
	_, err = p.client.EnqueueContext(ctx, task,
		asynq.Queue(p.queue),
		asynq.MaxRetry(p.maxRetry),
		asynq.TaskID(e.ID),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("events: enqueue %s: %w", e.Type, err)
	}
	return nil
}

// Close releases the asynq client. The Redis client is left open.
func (p *AsynqPublisher) Close() error {
	return p.client.Close()
}

// InlinePublisher processes events synchronously in the publishing process.
type InlinePublisher struct {
	Processor *Processor
}

func (p InlinePublisher) Publish(ctx context.Context, e Event) error {
	return p.Processor.Process(ctx, e)
}

// NopPublisher drops events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
