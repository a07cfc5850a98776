package queue

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Serial runs submitted jobs strictly one at a time, in submission order.
//
// A job is running from the moment its WorkFunc is invoked until the WorkFunc
// calls done. The next job starts only after the previous job's completion
// callback has returned, so submission order, execution order and completion
// order are the same. A WorkFunc that never calls done stalls the queue; wrap
// it with WithTimeout when liveness matters.
type Serial struct {
	name      string
	maxDepth  int
	log       *zap.Logger
	observers []Observer

	mu        sync.Mutex
	pending   []*Job // pending[0] is the running job while busy
	busy      bool
	closed    bool
	idle      chan struct{}
	processed uint64
	failed    uint64
}

// Stats is a point-in-time view of a queue.
type Stats struct {
	Name      string `json:"name"`
	Depth     int    `json:"depth"`
	Busy      bool   `json:"busy"`
	Running   string `json:"running,omitempty"`
	Closed    bool   `json:"closed"`
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
}

// NewSerial creates an idle queue.
func NewSerial(opts ...Option) *Serial {
	q := &Serial{
		name: "default",
		log:  zap.NewNop(),
		idle: make(chan struct{}),
	}
	close(q.idle)
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Name returns the queue name.
func (q *Serial) Name() string { return q.name }

// Observe registers an observer after construction.
func (q *Serial) Observe(o Observer) {
	if o == nil {
		return
	}
	q.mu.Lock()
	q.observers = append(q.observers, o)
	q.mu.Unlock()
}

// Submit enqueues a job and returns without waiting for it to run.
// onComplete may be nil.
func (q *Serial) Submit(work WorkFunc, onComplete CompletionFunc) error {
	return q.SubmitNamed("", work, onComplete)
}

// SubmitNamed is Submit with a job name for logs and metrics.
func (q *Serial) SubmitNamed(name string, work WorkFunc, onComplete CompletionFunc) error {
	if work == nil {
		return ErrNilWork
	}
	job := &Job{
		ID:         uuid.NewString(),
		Name:       name,
		QueuedAt:   time.Now(),
		work:       work,
		onComplete: onComplete,
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	if q.maxDepth > 0 && len(q.pending) >= q.maxDepth {
		q.mu.Unlock()
		return ErrQueueFull
	}
	q.pending = append(q.pending, job)
	depth := len(q.pending)
	start := !q.busy
	if start {
		q.busy = true
		q.idle = make(chan struct{})
	}
	observers := q.observers
	q.mu.Unlock()

	info := job.info(q.name)
	for _, o := range observers {
		o.JobQueued(info, depth)
	}

	if start {
		go q.run()
	}
	return nil
}

// Len returns the number of jobs held by the queue, including the running one.
func (q *Serial) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Busy reports whether a job is currently running.
func (q *Serial) Busy() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.busy
}

// Stats returns the queue's current depth, running job and counters.
func (q *Serial) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	st := Stats{
		Name:      q.name,
		Depth:     len(q.pending),
		Busy:      q.busy,
		Closed:    q.closed,
		Processed: q.processed,
		Failed:    q.failed,
	}
	if q.busy && len(q.pending) > 0 {
		st.Running = q.pending[0].Name
		if st.Running == "" {
			st.Running = q.pending[0].ID
		}
	}
	return st
}

// Close stops accepting submissions. Jobs already queued still run.
func (q *Serial) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

// Drain blocks until the queue is idle or ctx is done.
func (q *Serial) Drain(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the queue's single worker. It exits when the pending list empties.
func (q *Serial) run() {
	for {
		q.mu.Lock()
		job := q.pending[0]
		observers := q.observers
		q.mu.Unlock()

		info := job.info(q.name)
		for _, o := range observers {
			o.JobStarted(info)
		}
		q.log.Debug("Job started",
			zap.String("queue", q.name),
			zap.String("job", job.Name),
			zap.String("id", job.ID),
			zap.Duration("waited", time.Since(job.QueuedAt)),
		)

		start := time.Now()
		out := q.execute(job)
		elapsed := time.Since(start)

		if out.err != nil {
			q.log.Error("Job failed",
				zap.String("queue", q.name),
				zap.String("job", job.Name),
				zap.String("id", job.ID),
				zap.Duration("duration", elapsed),
				zap.Error(out.err),
			)
		} else {
			q.log.Info("Job completed",
				zap.String("queue", q.name),
				zap.String("job", job.Name),
				zap.String("id", job.ID),
				zap.Duration("duration", elapsed),
			)
		}
		for _, o := range observers {
			o.JobFinished(info, elapsed, out.err)
		}

		q.mu.Lock()
		q.processed++
		if out.err != nil {
			q.failed++
		}
		q.mu.Unlock()

		q.complete(job, out)

		q.mu.Lock()
		q.pending[0] = nil
		q.pending = q.pending[1:]
		if len(q.pending) == 0 {
			q.pending = nil
			q.busy = false
			close(q.idle)
			q.mu.Unlock()
			return
		}
		q.mu.Unlock()
	}
}

type outcome struct {
	result any
	err    error
}

// execute invokes the job's work function on its own goroutine and waits
// for the first call to done.
func (q *Serial) execute(job *Job) outcome {
	ch := make(chan outcome, 1)
	var once sync.Once
	done := func(result any, err error) {
		fired := false
		once.Do(func() {
			fired = true
			ch <- outcome{result: result, err: err}
		})
		if !fired {
			q.log.Warn("done called more than once, ignoring",
				zap.String("queue", q.name),
				zap.String("id", job.ID),
			)
		}
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done(nil, &PanicError{Value: r, Stack: debug.Stack()})
			}
		}()
		job.work(done)
	}()

	return <-ch
}

func (q *Serial) complete(job *Job, out outcome) {
	if job.onComplete == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("Completion callback panicked",
				zap.String("queue", q.name),
				zap.String("id", job.ID),
				zap.Any("panic", r),
			)
		}
	}()
	job.onComplete(out.result, out.err)
}
