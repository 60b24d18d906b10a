package cache

import (
	"context"
	"time"
)

// Counter is a shared fixed-window counter used by the rate limiter.
type Counter interface {
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}
