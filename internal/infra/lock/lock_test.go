package lock

import (
	"context"
	"testing"
	"time"

	repo "rentalshop/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisLocker(client, "checkout:"), mr
}

func TestRedisLocker_Exclusive(t *testing.T) {
	ctx := context.Background()
	locker, mr := newRedisLocker(t)

	l1, err := locker.Acquire(ctx, "user:1", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("checkout:user:1"))

	_, err = locker.Acquire(ctx, "user:1", time.Minute)
	assert.ErrorIs(t, err, repo.ErrLockNotAcquired)

	// 別ユーザーは取れる
	l2, err := locker.Acquire(ctx, "user:2", time.Minute)
	require.NoError(t, err)

	require.NoError(t, l1.Release(ctx))
	assert.False(t, mr.Exists("checkout:user:1"))

	l3, err := locker.Acquire(ctx, "user:1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, l3.Release(ctx))
	require.NoError(t, l2.Release(ctx))
}

func TestRedisLocker_ReleaseAfterExpiryKeepsNewOwner(t *testing.T) {
	ctx := context.Background()
	locker, mr := newRedisLocker(t)

	stale, err := locker.Acquire(ctx, "user:1", time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	fresh, err := locker.Acquire(ctx, "user:1", time.Minute)
	require.NoError(t, err)

	// 古いロックの解放で新しい持ち主のキーは消えない
	require.NoError(t, stale.Release(ctx))
	assert.True(t, mr.Exists("checkout:user:1"))

	require.NoError(t, fresh.Release(ctx))
	assert.False(t, mr.Exists("checkout:user:1"))
}

func TestRedisLocker_ServerDown(t *testing.T) {
	locker, mr := newRedisLocker(t)
	mr.Close()

	_, err := locker.Acquire(context.Background(), "user:1", time.Minute)
	require.Error(t, err)
	assert.NotErrorIs(t, err, repo.ErrLockNotAcquired)
}

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	locker := NewLocalLocker()
	locker.now = func() time.Time { return now }

	l1, err := locker.Acquire(ctx, "user:1", time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "user:1", time.Minute)
	assert.ErrorIs(t, err, repo.ErrLockNotAcquired)

	// TTL切れなら取り直せる
	now = now.Add(2 * time.Minute)
	l2, err := locker.Acquire(ctx, "user:1", time.Minute)
	require.NoError(t, err)

	require.NoError(t, l1.Release(ctx))
	_, err = locker.Acquire(ctx, "user:1", time.Minute)
	assert.ErrorIs(t, err, repo.ErrLockNotAcquired)

	require.NoError(t, l2.Release(ctx))
	_, err = locker.Acquire(ctx, "user:1", time.Minute)
	assert.NoError(t, err)
}
