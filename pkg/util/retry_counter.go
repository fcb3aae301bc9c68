package util

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const retryKeyPrefix = "retry:"

// RetryCounter tracks delivery attempts per message in Redis. Counters
// expire ttl after the first attempt so abandoned keys do not pile up.
type RetryCounter struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRetryCounter(rdb *redis.Client, ttl time.Duration) *RetryCounter {
	return &RetryCounter{rdb: rdb, ttl: ttl}
}

// IncrementAndGet increments the attempt count for key and returns it. The
// increment and the expiry are sent in one MULTI so a crash between them
// cannot leave a counter without a TTL.
func (r *RetryCounter) IncrementAndGet(ctx context.Context, key string) (int64, error) {
	var incr *redis.IntCmd
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		// NX: 只在首次计数时设置过期时间
		pipe.ExpireNX(ctx, key, r.ttl)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (r *RetryCounter) Reset(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, key).Err()
}

// FormatRetryKey namespaces a message key by handler.
func FormatRetryKey(handler, key string) string {
	return retryKeyPrefix + handler + ":" + key
}
