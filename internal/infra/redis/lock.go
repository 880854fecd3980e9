// File: internal/infra/redis/lock.go
package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrLockHeld is returned when another holder owns the lock.
var ErrLockHeld = errors.New("lock is held by another instance")

type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

var _ Locker = (*RedisLocker)(nil)

// RedisLocker is a single-instance SET NX lock with token-checked release.
type RedisLocker struct {
	cli     RedisClient
	retries int
	backoff time.Duration
}

func NewLocker(c RedisClient) *RedisLocker {
	return &RedisLocker{cli: c, retries: 1, backoff: 50 * time.Millisecond}
}

// WithRetries makes TryLock retry n times, sleeping backoff between tries.
func (l *RedisLocker) WithRetries(n int, backoff time.Duration) *RedisLocker {
	if n < 1 {
		n = 1
	}
	l.retries, l.backoff = n, backoff
	return l
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	var lastErr error
	for i := 0; i < l.retries; i++ {
		ok, err := l.cli.SetNX(ctx, key, token, ttl)
		if err != nil {
			lastErr = err
		} else if ok {
			return token, nil
		}
		if i+1 < l.retries {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(l.backoff):
			}
		}
	}
	if lastErr != nil {
		return "", lastErr
	}
	return "", ErrLockHeld
}

func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	_, err := l.cli.CompareAndDelete(ctx, key, token)
	return err
}

func SweepLockKey() string { return "lock:subscription-sweep" }
