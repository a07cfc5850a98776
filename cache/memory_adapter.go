package cache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryAdapter implements Cache using an in-memory map (thread-safe, for
// tests and single-process deployments).
type MemoryAdapter struct {
	mu    sync.RWMutex
	items map[string]memoryItem

	subMu sync.Mutex
	subs  map[string]map[chan string]struct{}
}

type memoryItem struct {
	value      string
	expiration int64
}

// NewMemoryAdapter creates a new in-memory cache adapter.
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		items: make(map[string]memoryItem),
		subs:  make(map[string]map[chan string]struct{}),
	}
}

func (m *MemoryAdapter) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.items[key]
	if !ok || (item.expiration > 0 && time.Now().UnixNano() > item.expiration) {
		return "", ErrMiss
	}

	return item.value, nil
}

func (m *MemoryAdapter) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expiration int64
	if ttl > 0 {
		expiration = time.Now().Add(ttl).UnixNano()
	}

	m.items[key] = memoryItem{
		value:      stringify(value),
		expiration: expiration,
	}

	return nil
}

func (m *MemoryAdapter) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.items, key)
	}
	return nil
}

func (m *MemoryAdapter) Exists(ctx context.Context, key string) (bool, error) {
	_, err := m.Get(ctx, key)
	return err == nil, nil
}

func (m *MemoryAdapter) GetOrSet(ctx context.Context, key string, ttl time.Duration, fn func() (any, error)) (string, error) {
	return getOrSet(ctx, m, key, ttl, fn)
}

func (m *MemoryAdapter) Flush(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[string]memoryItem)
	return nil
}

// Publish delivers message to every current subscriber of channel. Slow
// subscribers miss messages rather than block the publisher.
func (m *MemoryAdapter) Publish(_ context.Context, channel string, message any) error {
	payload := stringify(message)

	m.subMu.Lock()
	defer m.subMu.Unlock()
	for ch := range m.subs[channel] {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

func (m *MemoryAdapter) Subscribe(ctx context.Context, channel string) (<-chan string, error) {
	ch := make(chan string, 64)

	m.subMu.Lock()
	if m.subs[channel] == nil {
		m.subs[channel] = make(map[chan string]struct{})
	}
	m.subs[channel][ch] = struct{}{}
	m.subMu.Unlock()

	go func() {
		<-ctx.Done()
		m.subMu.Lock()
		delete(m.subs[channel], ch)
		close(ch)
		m.subMu.Unlock()
	}()

	return ch, nil
}

func (m *MemoryAdapter) Ping(context.Context) error { return nil }

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(v)
	}
}

// getOrSet is shared by both adapters.
func getOrSet(ctx context.Context, c Cache, key string, ttl time.Duration, fn func() (any, error)) (string, error) {
	val, err := c.Get(ctx, key)
	if err == nil {
		return val, nil
	}

	res, err := fn()
	if err != nil {
		return "", err
	}

	if err := c.Set(ctx, key, res, ttl); err != nil {
		return "", err
	}

	return stringify(res), nil
}
