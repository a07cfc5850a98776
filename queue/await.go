package queue

import "context"

// Await submits through submit and blocks until the job completes or ctx is
// done. Cancelling ctx only stops the wait; the job still runs.
func Await(ctx context.Context, submit func(onComplete CompletionFunc) error) (any, error) {
	ch := make(chan outcome, 1)
	err := submit(func(result any, err error) {
		ch <- outcome{result: result, err: err}
	})
	if err != nil {
		return nil, err
	}

	select {
	case out := <-ch:
		return out.result, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Do runs fn as a named job on q and waits for its outcome. fn receives a
// context that keeps ctx's values but is never cancelled by the caller.
func Do(ctx context.Context, q *Serial, name string, fn func(ctx context.Context) (any, error)) (any, error) {
	jobCtx := context.WithoutCancel(ctx)
	return Await(ctx, func(onComplete CompletionFunc) error {
		return q.SubmitNamed(name, Func(jobCtx, fn), onComplete)
	})
}
