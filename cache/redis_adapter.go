package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shaurya/tradeledger/config"
)

// RedisAdapter implements Cache using Redis. Keys are namespaced with Prefix;
// pub/sub channels are not.
type RedisAdapter struct {
	Client *redis.Client
	Prefix string
}

// NewRedisAdapter creates a new Redis-backed cache adapter.
func NewRedisAdapter(cfg config.RedisConfig, prefix string) (*RedisAdapter, error) {
	client, err := NewRedisClient(cfg)
	if err != nil {
		return nil, err
	}
	return &RedisAdapter{Client: client, Prefix: prefix}, nil
}

// NewRedisClient parses the configured URL, applies pool settings and pings.
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL %s: %w", cfg.URL, err)
	}

	if cfg.Pool > 0 {
		opts.PoolSize = cfg.Pool
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("cannot connect to Redis at %s: %w", cfg.URL, err)
	}

	return client, nil
}

func (r *RedisAdapter) key(k string) string { return r.Prefix + k }

func (r *RedisAdapter) Get(ctx context.Context, key string) (string, error) {
	val, err := r.Client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (r *RedisAdapter) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return r.Client.Set(ctx, r.key(key), value, ttl).Err()
}

func (r *RedisAdapter) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.key(k)
	}
	return r.Client.Del(ctx, full...).Err()
}

func (r *RedisAdapter) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.Client.Exists(ctx, r.key(key)).Result()
	return n > 0, err
}

func (r *RedisAdapter) GetOrSet(ctx context.Context, key string, ttl time.Duration, fn func() (any, error)) (string, error) {
	return getOrSet(ctx, r, key, ttl, fn)
}

// Flush removes every key under Prefix. Without a prefix it flushes the
// selected database.
func (r *RedisAdapter) Flush(ctx context.Context) error {
	if r.Prefix == "" {
		return r.Client.FlushDB(ctx).Err()
	}
	iter := r.Client.Scan(ctx, 0, r.Prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := r.Client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

func (r *RedisAdapter) Publish(ctx context.Context, channel string, message any) error {
	return r.Client.Publish(ctx, channel, message).Err()
}

func (r *RedisAdapter) Subscribe(ctx context.Context, channel string) (<-chan string, error) {
	pubsub := r.Client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	ch := make(chan string)
	go func() {
		defer close(ch)
		defer pubsub.Close()
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case ch <- msg.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}

func (r *RedisAdapter) Ping(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}
