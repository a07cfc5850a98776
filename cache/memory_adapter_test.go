package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryAdapterGetSetDelete(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryAdapter()

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.Set(ctx, "a", 42, 0))
	v, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "42", v)

	ok, err := c.Exists(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.Delete(ctx, "a"))
	ok, _ = c.Exists(ctx, "a")
	assert.False(t, ok)
}

func TestMemoryAdapterExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryAdapter()

	require.NoError(t, c.Set(ctx, "k", "v", 10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)
	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryAdapterGetOrSet(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryAdapter()
	calls := 0
	fill := func() (any, error) {
		calls++
		return []byte(`["lc-1"]`), nil
	}

	v, err := c.GetOrSet(ctx, "lcs", time.Minute, fill)
	require.NoError(t, err)
	assert.Equal(t, `["lc-1"]`, v)

	v, err = c.GetOrSet(ctx, "lcs", time.Minute, fill)
	require.NoError(t, err)
	assert.Equal(t, `["lc-1"]`, v)
	assert.Equal(t, 1, calls)

	boom := errors.New("boom")
	_, err = c.GetOrSet(ctx, "other", time.Minute, func() (any, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
}

func TestMemoryAdapterPubSub(t *testing.T) {
	c := NewMemoryAdapter()
	ctx, cancel := context.WithCancel(context.Background())

	msgs, err := c.Subscribe(ctx, "ledger:events")
	require.NoError(t, err)

	require.NoError(t, c.Publish(context.Background(), "ledger:events", `{"type":"createLC"}`))
	require.NoError(t, c.Publish(context.Background(), "other", "ignored"))

	select {
	case m := <-msgs:
		assert.Equal(t, `{"type":"createLC"}`, m)
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
	}

	cancel()
	select {
	case _, ok := <-msgs:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed")
	}
}
