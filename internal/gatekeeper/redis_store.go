package gatekeeper

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCounterStore is the multi-instance CounterStore: the increment happens
// inside Redis, so every gatekeeper replica shares one set of windows. The
// window lives as a key TTL set on the first increment.
type RedisCounterStore struct {
	client *redis.Client
	prefix string
}

func NewRedisCounterStore(client *redis.Client) *RedisCounterStore {
	return &RedisCounterStore{
		client: client,
		prefix: "gk:rl:",
	}
}

func (s *RedisCounterStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	redisKey := s.prefix + key

	count, err := s.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("rate counter incr: %w", err)
	}

	if count == 1 {
		if err := s.client.PExpire(ctx, redisKey, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("rate counter expire: %w", err)
		}
		return count, window, nil
	}

	resetIn, err := s.client.PTTL(ctx, redisKey).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("rate counter ttl: %w", err)
	}
	if resetIn < 0 {
		// Key exists without a TTL (expire failed earlier). Repair it so
		// the window cannot grow unbounded.
		if err := s.client.PExpire(ctx, redisKey, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("rate counter ttl repair: %w", err)
		}
		resetIn = window
	}

	return count, resetIn, nil
}
