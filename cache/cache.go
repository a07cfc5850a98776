package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when a key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Cache is the read cache and pub/sub bus shared by the portal and the
// event worker.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	GetOrSet(ctx context.Context, key string, ttl time.Duration, fn func() (any, error)) (string, error)
	Flush(ctx context.Context) error
	Publish(ctx context.Context, channel string, message any) error
	// Subscribe delivers messages until ctx is done, then closes the channel.
	Subscribe(ctx context.Context, channel string) (<-chan string, error)
	Ping(ctx context.Context) error
}
