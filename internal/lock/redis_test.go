package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLockIsExclusivePerCampaign(t *testing.T) {
	ctx := context.Background()
	_, client := newRedis(t)
	newLock := RedisFactory(client, time.Minute)

	first := newLock("c1")
	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = newLock("c1").Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "second run for same campaign must not get the lock")

	ok, err = newLock("c2").Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok, "other campaigns are independent")

	require.NoError(t, first.Release(ctx))
	ok, err = newLock("c1").Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLockReleaseOnlyByOwner(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)

	owner := NewRedisLock(client, Key("c1"), time.Minute)
	ok, err := owner.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	intruder := NewRedisLock(client, Key("c1"), time.Minute)
	assert.ErrorIs(t, intruder.Release(ctx), ErrNotHeld)
	assert.True(t, mr.Exists("lock:campaign:c1"))

	require.NoError(t, owner.Release(ctx))
	assert.False(t, mr.Exists("lock:campaign:c1"))
}

func TestRedisLockExpiresAndExtends(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)

	l := NewRedisLock(client, Key("c1"), 10*time.Second)
	ok, err := l.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, l.Extend(ctx, time.Minute))
	mr.FastForward(30 * time.Second)
	assert.True(t, mr.Exists("lock:campaign:c1"))

	mr.FastForward(time.Minute)
	assert.False(t, mr.Exists("lock:campaign:c1"))
	assert.ErrorIs(t, l.Extend(ctx, time.Minute), ErrNotHeld)
}

func TestKeepaliveIgnoresNonExpiringLocks(t *testing.T) {
	stop := Keepalive(context.Background(), &PGLock{}, time.Minute)
	stop()
}
