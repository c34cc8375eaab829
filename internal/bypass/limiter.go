package bypass

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisLimiter keeps failure timestamps in a sorted set per key, so the
// window slides instead of resetting on a fixed boundary.
type RedisLimiter struct {
	rdb    *redis.Client
	max    int
	window time.Duration
	now    func() time.Time
}

func NewRedisLimiter(rdb *redis.Client, maxFailures int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, max: maxFailures, window: window, now: time.Now}
}

func (l *RedisLimiter) Exceeded(ctx context.Context, key string) (bool, error) {
	floor := l.now().Add(-l.window).UnixMilli()

	pipe := l.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(floor, 10))
	count := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("count failures: %w", err)
	}
	return count.Val() >= int64(l.max), nil
}

func (l *RedisLimiter) RecordFailure(ctx context.Context, key string) error {
	now := l.now()
	pipe := l.rdb.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: uuid.NewString()})
	pipe.Expire(ctx, key, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	return nil
}

func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	return l.rdb.Del(ctx, key).Err()
}
