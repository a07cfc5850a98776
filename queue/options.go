package queue

import "go.uber.org/zap"

// Option configures a Serial queue.
type Option func(*Serial)

// WithName sets the queue name used in logs and metrics.
func WithName(name string) Option {
	return func(q *Serial) { q.name = name }
}

// WithMaxDepth bounds the number of jobs (running plus pending) the queue
// accepts. Zero means unbounded.
func WithMaxDepth(n int) Option {
	return func(q *Serial) {
		if n > 0 {
			q.maxDepth = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(q *Serial) {
		if log != nil {
			q.log = log
		}
	}
}

// WithObserver registers an observer.
func WithObserver(o Observer) Option {
	return func(q *Serial) {
		if o != nil {
			q.observers = append(q.observers, o)
		}
	}
}
