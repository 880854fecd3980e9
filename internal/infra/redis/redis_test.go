//go:build !integration

package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLocker(t *testing.T) {
	ctx := context.Background()
	cli := newFakeClient()
	l := NewLocker(cli)

	token, err := l.TryLock(ctx, SweepLockKey(), time.Minute)
	require.NoError(t, err)

	_, err = l.TryLock(ctx, SweepLockKey(), time.Minute)
	assert.True(t, errors.Is(err, ErrLockHeld), "second holder must be refused")

	// a stale token must not release someone else's lock
	require.NoError(t, l.Unlock(ctx, SweepLockKey(), "not-mine"))
	_, err = l.TryLock(ctx, SweepLockKey(), time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, l.Unlock(ctx, SweepLockKey(), token))
	_, err = l.TryLock(ctx, SweepLockKey(), time.Minute)
	assert.NoError(t, err)
}

func TestRateLimiter_Allow(t *testing.T) {
	ctx := context.Background()
	rl := NewRateLimiter(newFakeClient())
	key := LoginKey(" Alice ")
	assert.Equal(t, "rate_limit:login:alice", key)

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, key, 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "attempt %d", i+1)
	}
	ok, err := rl.Allow(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}
