package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestRedisStorePrefixed(t *testing.T) {
	store := NewRedisStoreFromClient(nil, "")
	require.Equal(t, "bloggers:ratelimit:a", store.prefixed("ratelimit:a"))
	require.Equal(t, "bloggers:ratelimit:a", store.prefixed("bloggers:ratelimit:a"))
}

func TestRedisStorePrefixedKeepsIPv6Keys(t *testing.T) {
	store := NewRedisStoreFromClient(nil, "")

	compressed := store.prefixed("ratelimit:2001:db8::1:/api/auth/login")
	other := store.prefixed("ratelimit:2001:db8:1:/api/auth/login")

	require.Equal(t, "bloggers:ratelimit:2001:db8::1:/api/auth/login", compressed)
	require.NotEqual(t, compressed, other)
}

func TestNewRedisStoreRequiresAddress(t *testing.T) {
	_, err := NewRedisStore(context.Background(), RedisConfig{Address: "  "})
	require.Error(t, err)
}

func TestRedisStoreIncrementWithTTL(t *testing.T) {
	addr := os.Getenv("BLOGGERS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("BLOGGERS_TEST_REDIS_ADDR not set")
	}

	ctx := context.Background()
	store, err := NewRedisStore(ctx, RedisConfig{Address: addr, KeyPrefix: "bloggers-test:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	key := "ratelimit:" + uuid.NewString()

	count, ttl, err := store.IncrementWithTTL(ctx, key, 2*time.Second)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
	require.Greater(t, ttl, time.Duration(0))
	require.LessOrEqual(t, ttl, 2*time.Second)

	count, _, err = store.IncrementWithTTL(ctx, key, 2*time.Second)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
}
