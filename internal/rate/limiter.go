package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Window is a fixed-window counter: the first hit for a key starts a window
// of the configured length, and the key is rejected once it has collected
// limit hits inside that window.
type Window struct {
	redis  redis.UniversalClient
	prefix string
	limit  int64
	window time.Duration
}

// NewWindow creates a fixed-window counter whose keys live under prefix.
func NewWindow(redisClient redis.UniversalClient, prefix string, limit int, window time.Duration) *Window {
	return &Window{
		redis:  redisClient,
		prefix: prefix,
		limit:  int64(limit),
		window: window,
	}
}

// Limit returns the number of hits a key may collect per window.
func (w *Window) Limit() int {
	return int(w.limit)
}

// Check returns ErrRateLimited when key has already used its budget.
// Missing keys are within budget.
func (w *Window) Check(ctx context.Context, key string) error {
	count, err := w.redis.Get(ctx, w.key(key)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count >= w.limit {
		return ErrRateLimited
	}

	return nil
}

// Hit records one hit for key and returns the count inside the current window.
func (w *Window) Hit(ctx context.Context, key string) (int64, error) {
	k := w.key(key)
	count, err := w.redis.Incr(ctx, k).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := w.redis.Expire(ctx, k, w.window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

// Reset clears the counter for key.
func (w *Window) Reset(ctx context.Context, key string) error {
	if err := w.redis.Del(ctx, w.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Count returns the hits recorded for key in the current window.
func (w *Window) Count(ctx context.Context, key string) (int, error) {
	count, err := w.redis.Get(ctx, w.key(key)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (w *Window) key(key string) string {
	return w.prefix + ":" + key
}
