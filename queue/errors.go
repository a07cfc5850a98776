package queue

import (
	"errors"
	"fmt"
)

var (
	// ErrQueueFull is returned by Submit when the queue holds MaxDepth jobs.
	ErrQueueFull = errors.New("queue: full")

	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("queue: closed")

	// ErrTimeout is reported to a job wrapped with WithTimeout whose
	// mutation did not answer in time.
	ErrTimeout = errors.New("queue: job timed out")

	// ErrNilWork is returned by Submit when no work function is given.
	ErrNilWork = errors.New("queue: nil work function")
)

// PanicError is reported to a job whose work function panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("queue: work function panicked: %v", e.Value)
}
