package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/shaurya/tradeledger/config"
	"github.com/shaurya/tradeledger/framework"
	"go.uber.org/zap"
)

// Worker manages the asynq server consuming ledger events.
type Worker struct {
	Server *asynq.Server
	Mux    *asynq.ServeMux
	log    *zap.Logger
}

// NewWorker creates an event worker on an existing Redis client. With the
// default concurrency of 1 events are handled one at a time, in order.
func NewWorker(rdb redis.UniversalClient, cfg config.QueueConfig, log *zap.Logger) *Worker {
	if log == nil {
		log = zap.NewNop()
	}
	concurrency := cfg.EventConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	queue := cfg.EventQueue
	if queue == "" {
		queue = "default"
	}

	srv := asynq.NewServerFromRedisClient(rdb, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queue: 1},
		Logger:      log.Sugar(),
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			id, _ := asynq.GetTaskID(ctx)
			log.Error("Event task failed",
				zap.String("type", task.Type()),
				zap.String("id", id),
				zap.Error(err),
			)
		}),
	})

	return &Worker{
		Server: srv,
		Mux:    asynq.NewServeMux(),
		log:    log,
	}
}

// Handle registers a task handler wrapped with logging and metrics.
func (w *Worker) Handle(pattern string, handler asynq.Handler) {
	w.Mux.Handle(pattern, loggingHandler(w.log, pattern, handler))
}

// Run starts the worker and blocks until SIGTERM/SIGINT.
func (w *Worker) Run() error {
	w.log.Info("Starting event worker...")
	return w.Server.Run(w.Mux)
}

// Start starts the worker without blocking. Stop it with Shutdown.
func (w *Worker) Start() error {
	return w.Server.Start(w.Mux)
}

// Shutdown stops the worker, waiting for in-flight tasks.
func (w *Worker) Shutdown() {
	w.Server.Shutdown()
}

// HandleEvent decodes ledger:event tasks and passes them to p. Malformed
// payloads are not retried.
func HandleEvent(p *Processor) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
		var e Event
		if err := json.Unmarshal(task.Payload(), &e); err != nil {
			return fmt.Errorf("decode event: %v: %w", err, asynq.SkipRetry)
		}
		if e.ID == "" || e.Type == "" {
			return fmt.Errorf("event without id or type: %w", asynq.SkipRetry)
		}
		return p.Process(ctx, e)
	})
}

// loggingHandler wraps a handler with start/completion/failure logging + metrics.
func loggingHandler(log *zap.Logger, taskType string, next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
		start := time.Now()
		id, _ := asynq.GetTaskID(ctx)
		log.Debug("Event task started", zap.String("type", taskType), zap.String("id", id))

		err := next.ProcessTask(ctx, task)
		duration := time.Since(start)

		if err != nil {
			log.Error("Event task failed",
				zap.String("type", taskType),
				zap.String("id", id),
				zap.Duration("duration", duration),
				zap.Error(err),
			)
			framework.RecordEventProcessed(taskType, "failure")
			return err
		}

		log.Info("Event task completed",
			zap.String("type", taskType),
			zap.String("id", id),
			zap.Duration("duration", duration),
		)
		framework.RecordEventProcessed(taskType, "success")
		return nil
	})
}
