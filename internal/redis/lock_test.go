package redisclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *redis.Client, Locker) {
	t.Helper()
	mr := miniredis.RunT(t)

	rdb, err := NewRedisClient(context.Background(), mr.Addr(), "", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	return mr, rdb, NewRedisAccountLocker(rdb, ttl)
}

func TestAccountLockContention(t *testing.T) {
	mr, _, locker := newTestLocker(t, time.Minute)
	ctx := context.Background()
	account := uuid.New()

	ran := false
	err := locker.WithAccountLock(ctx, account, func(ctx context.Context) error {
		ran = true
		assert.True(t, mr.Exists(LockKey(account)))
		assert.Equal(t, time.Minute, mr.TTL(LockKey(account)))

		err := locker.WithAccountLock(ctx, account, func(context.Context) error {
			t.Fatal("second holder must not run")
			return nil
		})
		assert.ErrorIs(t, err, ErrLockNotAcquired)

		// other accounts are not blocked
		return locker.WithAccountLock(ctx, uuid.New(), func(context.Context) error { return nil })
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, mr.Exists(LockKey(account)), "lock released after the run")

	// free again once released
	require.NoError(t, locker.WithAccountLock(ctx, account, func(context.Context) error { return nil }))
}

func TestAccountLockReleasedOnError(t *testing.T) {
	mr, _, locker := newTestLocker(t, time.Minute)
	account := uuid.New()
	boom := errors.New("boom")

	err := locker.WithAccountLock(context.Background(), account, func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists(LockKey(account)))
}

func TestAccountLockReleaseChecksToken(t *testing.T) {
	mr, rdb, locker := newTestLocker(t, time.Minute)
	ctx := context.Background()
	account := uuid.New()
	key := LockKey(account)

	err := locker.WithAccountLock(ctx, account, func(ctx context.Context) error {
		// our lease runs out and another instance takes the lock
		mr.FastForward(2 * time.Minute)
		ok, err := rdb.SetNX(ctx, key, "other-instance", time.Minute).Result()
		require.NoError(t, err)
		require.True(t, ok)
		return nil
	})
	require.NoError(t, err)

	got, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "other-instance", got, "release must not delete a lock held by someone else")

	l := &redisAccountLocker{client: rdb, ttl: time.Minute}
	require.NoError(t, l.release(ctx, key, "stale-token"))
	assert.True(t, mr.Exists(key))
	require.NoError(t, l.release(ctx, key, "other-instance"))
	assert.False(t, mr.Exists(key))
}

func TestNopLockerRunsFn(t *testing.T) {
	ran := false
	err := NopLocker{}.WithAccountLock(context.Background(), uuid.New(), func(context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestHealthCheck(t *testing.T) {
	_, rdb, _ := newTestLocker(t, time.Minute)
	require.NoError(t, NewHealthCheck(rdb).Ping(context.Background()))

	down := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer down.Close()
	assert.Error(t, NewHealthCheck(down).Ping(context.Background()))
}
