package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore counts events in Redis sorted sets, one set per key with event
// timestamps as scores. The window math runs server-side in one pipeline so
// replicas share the same view.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Take implements Store.
func (s *RedisStore) Take(ctx context.Context, key string, window time.Duration, max int) (Decision, error) {
	now := time.Now()
	cutoff := now.Add(-window)

	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", cutoff.UnixMilli()))
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: uuid.NewString(),
	})
	card := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("rate limit pipeline failed: %w", err)
	}

	count := int(card.Val())
	decision := Decision{
		Limit:     max,
		Remaining: max - count,
	}
	if decision.Remaining < 0 {
		decision.Remaining = 0
	}

	if count > max {
		decision.RetryAfter = s.retryAfter(ctx, key, window, now)
		return decision, nil
	}

	decision.Allowed = true
	return decision, nil
}

// retryAfter estimates when the oldest event leaves the window. Only
// consulted on denial, so the extra round trip stays off the hot path.
func (s *RedisStore) retryAfter(ctx context.Context, key string, window time.Duration, now time.Time) time.Duration {
	oldest, err := s.client.ZRangeWithScores(ctx, key, 0, 0).Result()
	if err != nil || len(oldest) == 0 {
		return window
	}
	freesAt := time.UnixMilli(int64(oldest[0].Score)).Add(window)
	if retry := freesAt.Sub(now); retry > 0 {
		return retry
	}
	return time.Second
}

// Close implements Store. The client is shared, closing it is the owner's
// call.
func (s *RedisStore) Close() error {
	return nil
}
