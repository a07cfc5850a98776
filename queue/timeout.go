package queue

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"time"
)

// WithTimeout wraps work so that done always fires: with the work's own
// outcome if it answers within d, otherwise with ErrTimeout. A late answer is
// dropped. A non-positive d returns work unchanged.
//
// The work itself is not stopped when the timer fires; use FuncWithTimeout
// when the mutation can observe a context.
func WithTimeout(work WorkFunc, d time.Duration) WorkFunc {
	if d <= 0 {
		return work
	}
	return func(done Done) {
		var once sync.Once
		finish := func(result any, err error) {
			once.Do(func() { done(result, err) })
		}
		timer := time.AfterFunc(d, func() { finish(nil, ErrTimeout) })
		defer func() {
			if r := recover(); r != nil {
				timer.Stop()
				panic(r)
			}
		}()
		work(func(result any, err error) {
			timer.Stop()
			finish(result, err)
		})
	}
}

// FuncWithTimeout is Func bounded by d: fn runs on a context that is
// cancelled after d, and the job reports ErrTimeout if fn has not returned
// by then. fn keeps running until it returns; it must stop writing once its
// context is done. A non-positive d is the same as Func.
func FuncWithTimeout(ctx context.Context, fn func(ctx context.Context) (any, error), d time.Duration) WorkFunc {
	if d <= 0 {
		return Func(ctx, fn)
	}
	return func(done Done) {
		ctx, cancel := context.WithTimeout(ctx, d)
		results := make(chan outcome, 1)
		go func() {
			defer cancel()
			defer func() {
				if r := recover(); r != nil {
					results <- outcome{err: &PanicError{Value: r, Stack: debug.Stack()}}
				}
			}()
			result, err := fn(ctx)
			results <- outcome{result: result, err: err}
		}()

		var out outcome
		select {
		case out = <-results:
		case <-ctx.Done():
			select {
			case out = <-results:
			default:
				out = outcome{err: ErrTimeout}
			}
		}
		if out.err != nil && errors.Is(out.err, context.DeadlineExceeded) && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			out = outcome{err: ErrTimeout}
		}
		done(out.result, out.err)
	}
}
