package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithTimeoutUnsticksQueue(t *testing.T) {
	q := NewSerial()
	rec := newRecorder(2)

	hung := func(Done) {}
	require.NoError(t, q.Submit(WithTimeout(hung, 20*time.Millisecond), rec.complete("hung")))
	require.NoError(t, q.Submit(asyncWork(0, "next", nil), rec.complete("next")))

	rec.wait(t)
	assert.ErrorIs(t, rec.errs["hung"], ErrTimeout)
	assert.Equal(t, "next", rec.results["next"])
}

func TestWithTimeoutDropsLateAnswer(t *testing.T) {
	q := NewSerial()
	rec := newRecorder(1)
	late := make(chan Done, 1)

	require.NoError(t, q.Submit(WithTimeout(func(done Done) {
		late <- done
	}, 10*time.Millisecond), rec.complete("late")))

	rec.wait(t)
	(<-late)("too late", nil)
	drain(t, q)
	assert.ErrorIs(t, rec.errs["late"], ErrTimeout)
	assert.Nil(t, rec.results["late"])
}

func TestWithTimeoutPassesFastAnswer(t *testing.T) {
	q := NewSerial()
	rec := newRecorder(1)

	require.NoError(t, q.Submit(WithTimeout(asyncWork(0, "fast", nil), time.Second), rec.complete("fast")))
	rec.wait(t)
	assert.Equal(t, "fast", rec.results["fast"])
	assert.NoError(t, rec.errs["fast"])
}

func TestWithTimeoutPanicStopsTimer(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	q := NewSerial(WithLogger(zap.New(core)))
	rec := newRecorder(1)

	require.NoError(t, q.Submit(WithTimeout(func(Done) {
		panic("boom")
	}, 20*time.Millisecond), rec.complete("panics")))

	rec.wait(t)
	var perr *PanicError
	require.ErrorAs(t, rec.errs["panics"], &perr)
	assert.Equal(t, "boom", perr.Value)

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, logs.FilterMessage("done called more than once, ignoring").Len())
}

func TestFuncWithTimeoutCancelsWork(t *testing.T) {
	q := NewSerial()
	rec := newRecorder(2)
	stopped := make(chan error, 1)

	require.NoError(t, q.Submit(FuncWithTimeout(context.Background(), func(ctx context.Context) (any, error) {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		stopped <- ctx.Err()
		return "late", nil
	}, 20*time.Millisecond), rec.complete("slow")))
	require.NoError(t, q.Submit(asyncWork(0, "next", nil), rec.complete("next")))

	rec.wait(t)
	assert.ErrorIs(t, rec.errs["slow"], ErrTimeout)
	assert.Nil(t, rec.results["slow"])
	assert.Equal(t, "next", rec.results["next"])

	select {
	case err := <-stopped:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(5 * time.Second):
		t.Fatal("work never saw its context end")
	}
}

func TestFuncWithTimeoutOutcomes(t *testing.T) {
	q := NewSerial()
	errX := errors.New("rejected")
	rec := newRecorder(4)

	require.NoError(t, q.Submit(FuncWithTimeout(context.Background(), func(ctx context.Context) (any, error) {
		return "fast", nil
	}, time.Second), rec.complete("fast")))
	require.NoError(t, q.Submit(FuncWithTimeout(context.Background(), func(ctx context.Context) (any, error) {
		return nil, errX
	}, time.Second), rec.complete("fail")))
	require.NoError(t, q.Submit(FuncWithTimeout(context.Background(), func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, 10*time.Millisecond), rec.complete("expired")))
	require.NoError(t, q.Submit(FuncWithTimeout(context.Background(), func(ctx context.Context) (any, error) {
		panic("boom")
	}, time.Second), rec.complete("panics")))

	rec.wait(t)
	assert.Equal(t, "fast", rec.results["fast"])
	assert.NoError(t, rec.errs["fast"])
	assert.ErrorIs(t, rec.errs["fail"], errX)
	assert.ErrorIs(t, rec.errs["expired"], ErrTimeout)
	var perr *PanicError
	require.ErrorAs(t, rec.errs["panics"], &perr)
	assert.Equal(t, "boom", perr.Value)
}

func TestDoReturnsOutcome(t *testing.T) {
	q := NewSerial()
	errX := errors.New("rejected")

	res, err := Do(context.Background(), q, "ok", func(context.Context) (any, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, res)

	res, err = Do(context.Background(), q, "fail", func(context.Context) (any, error) {
		return nil, errX
	})
	assert.ErrorIs(t, err, errX)
	assert.Nil(t, res)
}

func TestDoCallerCancelDoesNotCancelJob(t *testing.T) {
	q := NewSerial()
	finished := make(chan error, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := Do(ctx, q, "slow", func(jobCtx context.Context) (any, error) {
		time.Sleep(50 * time.Millisecond)
		finished <- jobCtx.Err()
		return nil, nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	select {
	case jobErr := <-finished:
		assert.NoError(t, jobErr)
	case <-time.After(5 * time.Second):
		t.Fatal("job never finished")
	}
}

func TestAwaitPropagatesSubmitError(t *testing.T) {
	q := NewSerial()
	q.Close()

	_, err := Do(context.Background(), q, "closed", func(context.Context) (any, error) {
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrClosed)
}
