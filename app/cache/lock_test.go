package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	locker, err := NewRedisLocker(mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { locker.Close() })

	return locker, mr
}

func TestRedisLocker(t *testing.T) {
	ctx := context.Background()
	locker, mr := newRedisLocker(t)

	lock, err := locker.TryLock(ctx, "fetch", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists(keyPrefix+"fetch"))

	_, err = locker.TryLock(ctx, "fetch", time.Minute)
	assert.ErrorIs(t, err, ErrLocked)

	other, err := locker.TryLock(ctx, "queue", time.Minute)
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, lock.Release(ctx))
	assert.False(t, mr.Exists(keyPrefix+"fetch"))

	again, err := locker.TryLock(ctx, "fetch", time.Minute)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestRedisLockerExpiry(t *testing.T) {
	ctx := context.Background()
	locker, mr := newRedisLocker(t)

	stale, err := locker.TryLock(ctx, "fetch", time.Minute)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	fresh, err := locker.TryLock(ctx, "fetch", time.Minute)
	require.NoError(t, err)

	// The expired holder must not release the new holder's lock.
	require.NoError(t, stale.Release(ctx))
	assert.True(t, mr.Exists(keyPrefix+"fetch"))

	require.NoError(t, fresh.Release(ctx))
	assert.False(t, mr.Exists(keyPrefix+"fetch"))
}

func TestRedisLockerHealth(t *testing.T) {
	locker, mr := newRedisLocker(t)

	assert.Equal(t, "healthy", locker.Health(context.Background())["status"])

	mr.Close()
	assert.Equal(t, "unhealthy", locker.Health(context.Background())["status"])
}

func TestNewRedisLockerUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = NewRedisLocker(addr, "", 0)
	assert.Error(t, err)
}

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	locker := NewLocalLocker()
	locker.clock = func() time.Time { return now }

	lock, err := locker.TryLock(ctx, "fetch", time.Minute)
	require.NoError(t, err)

	_, err = locker.TryLock(ctx, "fetch", time.Minute)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, lock.Release(ctx))
	lock, err = locker.TryLock(ctx, "fetch", time.Minute)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	fresh, err := locker.TryLock(ctx, "fetch", time.Minute)
	require.NoError(t, err)

	require.NoError(t, lock.Release(ctx))
	_, err = locker.TryLock(ctx, "fetch", time.Minute)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, fresh.Release(ctx))
}

func TestWithLock(t *testing.T) {
	ctx := context.Background()
	locker := NewLocalLocker()
	boom := errors.New("boom")

	err := WithLock(ctx, locker, "fetch", time.Minute, func() error {
		inner := WithLock(ctx, locker, "fetch", time.Minute, func() error { return nil })
		assert.ErrorIs(t, inner, ErrLocked)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	called := false
	require.NoError(t, WithLock(ctx, locker, "fetch", time.Minute, func() error {
		called = true
		return nil
	}))
	assert.True(t, called)
}
