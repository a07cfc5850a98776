package queue

import (
	"context"
	"time"
)

// Done reports the outcome of a job's single mutation attempt.
// Only the first call is honoured.
type Done func(result any, err error)

// WorkFunc performs exactly one mutation attempt and calls done when it
// finishes, either before returning or later from another goroutine.
type WorkFunc func(done Done)

// CompletionFunc receives a job's outcome exactly once, after its WorkFunc
// called done.
type CompletionFunc func(result any, err error)

// Job is one submitted unit of serialized work plus its completion callback.
type Job struct {
	ID       string
	Name     string
	QueuedAt time.Time

	work       WorkFunc
	onComplete CompletionFunc
}

// JobInfo is the read-only view of a job handed to observers.
type JobInfo struct {
	ID       string
	Name     string
	Queue    string
	QueuedAt time.Time
}

func (j *Job) info(queue string) JobInfo {
	return JobInfo{ID: j.ID, Name: j.Name, Queue: queue, QueuedAt: j.QueuedAt}
}

// Func adapts a blocking function into a WorkFunc. fn runs with ctx and its
// return values are passed straight to done.
func Func(ctx context.Context, fn func(ctx context.Context) (any, error)) WorkFunc {
	return func(done Done) {
		done(fn(ctx))
	}
}
