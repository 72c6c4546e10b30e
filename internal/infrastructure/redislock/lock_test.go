package redislock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T, ttl time.Duration) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, "payments:", ttl), mr
}

func TestTryLock_Exclusive(t *testing.T) {
	locker, mr := newTestLocker(t, time.Minute)
	ctx := context.Background()

	unlock, ok, err := locker.TryLock(ctx, "charge:o1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists("payments:charge:o1"))

	_, ok, err = locker.TryLock(ctx, "charge:o1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = locker.TryLock(ctx, "charge:o2")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists("payments:charge:o1"))

	_, ok, err = locker.TryLock(ctx, "charge:o1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTryLock_Expires(t *testing.T) {
	locker, mr := newTestLocker(t, time.Second)
	ctx := context.Background()

	_, ok, err := locker.TryLock(ctx, "charge:o1")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	_, ok, err = locker.TryLock(ctx, "charge:o1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUnlock_KeepsLockTakenOverByAnotherHolder(t *testing.T) {
	locker, mr := newTestLocker(t, time.Second)
	ctx := context.Background()

	staleUnlock, ok, err := locker.TryLock(ctx, "charge:o1")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)
	_, ok, err = locker.TryLock(ctx, "charge:o1")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, staleUnlock(ctx))
	assert.True(t, mr.Exists("payments:charge:o1"))
}

func TestTryLock_ServerDown(t *testing.T) {
	locker, mr := newTestLocker(t, time.Second)
	mr.Close()

	_, ok, err := locker.TryLock(context.Background(), "charge:o1")

	assert.Error(t, err)
	assert.False(t, ok)
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := Connect(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	_ = client.Close()

	_, err = Connect(context.Background(), "not-a-url")
	assert.Error(t, err)
}
