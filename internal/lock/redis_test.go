package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisLocker(client, ""), mr
}

func TestRedisLocker_Acquire(t *testing.T) {
	ctx := context.Background()

	t.Run("second holder is refused until release", func(t *testing.T) {
		locker, mr := newTestLocker(t)

		release, ok, err := locker.Acquire(ctx, "join_request:r1", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, mr.Exists("studymates:lock:join_request:r1"))

		_, ok, err = locker.Acquire(ctx, "join_request:r1", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, release(ctx))
		assert.False(t, mr.Exists("studymates:lock:join_request:r1"))

		_, ok, err = locker.Acquire(ctx, "join_request:r1", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("expired lock cannot be released by the old holder", func(t *testing.T) {
		locker, mr := newTestLocker(t)

		stale, ok, err := locker.Acquire(ctx, "k", time.Second)
		require.NoError(t, err)
		require.True(t, ok)

		mr.FastForward(2 * time.Second)
		fresh, ok, err := locker.Acquire(ctx, "k", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		err = stale(ctx)
		assert.True(t, errors.Is(err, ErrNotHeld), "got %v", err)
		assert.True(t, mr.Exists("studymates:lock:k"), "fresh holder must keep the lock")
		require.NoError(t, fresh(ctx))
	})

	t.Run("rejects non-positive ttl", func(t *testing.T) {
		locker, _ := newTestLocker(t)

		_, _, err := locker.Acquire(ctx, "k", 0)
		assert.Error(t, err)
	})

	t.Run("surfaces connection errors", func(t *testing.T) {
		locker, mr := newTestLocker(t)
		mr.Close()

		_, ok, err := locker.Acquire(ctx, "k", time.Minute)
		assert.Error(t, err)
		assert.False(t, ok)
	})
}
