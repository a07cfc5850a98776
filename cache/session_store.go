package cache

import (
	"fmt"

	"github.com/boj/redistore"
	"github.com/redis/go-redis/v9"
	"github.com/shaurya/tradeledger/config"
)

// RedisSessionStore wraps redistore for Redis-backed session storage.
type RedisSessionStore struct {
	*redistore.RediStore
}

// NewRedisSessionStore creates a Redis-backed session store from the redis
// URL and session settings.
func NewRedisSessionStore(redisCfg config.RedisConfig, sessCfg config.SessionConfig, secret string) (*RedisSessionStore, error) {
	opts, err := redis.ParseURL(redisCfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL %s: %w", redisCfg.URL, err)
	}

	size := redisCfg.Pool
	if size <= 0 {
		size = 10
	}

	store, err := redistore.NewRediStore(size, "tcp", opts.Addr, opts.Username, opts.Password, []byte(secret))
	if err != nil {
		return nil, err
	}
	if sessCfg.TTL > 0 {
		store.SetMaxAge(sessCfg.TTL)
	}
	if sessCfg.KeyPrefix != "" {
		store.SetKeyPrefix(sessCfg.KeyPrefix)
	}
	return &RedisSessionStore{store}, nil
}
