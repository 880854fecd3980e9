//go:build !integration

package usecase_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"edu-access-core/internal/domain"
	"edu-access-core/internal/domain/ports/repository"
	"edu-access-core/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingLimiter struct {
	mu    sync.Mutex
	count map[string]int
}

func (l *countingLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.count[key]++
	return l.count[key] <= limit, nil
}

func TestAuthUseCase_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("should bind two devices and refuse a third", func(t *testing.T) {
		env := newEnv(t)
		_, err := env.auth.CreateUser(ctx, "alice", "correct-horse", false)
		require.NoError(t, err)

		u, err := env.auth.Login(ctx, "alice", "correct-horse", "A")
		require.NoError(t, err)
		assert.Equal(t, "A", *u.ActiveDevice)

		u, err = env.auth.Login(ctx, "alice", "correct-horse", "B")
		require.NoError(t, err)
		assert.Equal(t, "B", *u.ActiveDevice)

		_, err = env.auth.Login(ctx, "alice", "correct-horse", "C")
		assert.ErrorIs(t, err, domain.ErrTooManyDevices)

		u, err = env.auth.Login(ctx, "alice", "correct-horse", "A")
		require.NoError(t, err)
		assert.Equal(t, "A", *u.ActiveDevice)

		stored, _ := env.store.Users().FindByUsername(ctx, repository.NoTX, "alice")
		assert.Equal(t, "A", *stored.DeviceSlot1)
		assert.Equal(t, "B", *stored.DeviceSlot2)
		assert.Equal(t, "A", *stored.ActiveDevice)
	})

	t.Run("should reject bad credentials and missing devices", func(t *testing.T) {
		env := newEnv(t)
		_, err := env.auth.CreateUser(ctx, "bob", "correct-horse", false)
		require.NoError(t, err)

		_, err = env.auth.Login(ctx, "bob", "wrong-password", "A")
		assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
		_, err = env.auth.Login(ctx, "nobody", "whatever", "A")
		assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
		_, err = env.auth.Login(ctx, "bob", "correct-horse", "  ")
		assert.ErrorIs(t, err, domain.ErrDeviceRequired)
	})

	t.Run("should let staff log in without a device", func(t *testing.T) {
		env := newEnv(t)
		_, err := env.auth.CreateUser(ctx, "root", "correct-horse", true)
		require.NoError(t, err)

		u, err := env.auth.Login(ctx, "root", "correct-horse", "")
		require.NoError(t, err)
		assert.Nil(t, u.ActiveDevice)
	})

	t.Run("should throttle repeated attempts", func(t *testing.T) {
		env := newEnv(t)
		settings := env.settings
		settings.LoginRateLimit = 2
		auth := usecase.NewAuthUseCase(env.store.Users(), env.store, &countingLimiter{count: map[string]int{}}, nil, settings, newTestLogger())
		_, err := auth.CreateUser(ctx, "carol", "correct-horse", false)
		require.NoError(t, err)

		for i := 0; i < 2; i++ {
			_, err = auth.Login(ctx, "carol", "nope-nope", "A")
			assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
		}
		_, err = auth.Login(ctx, "Carol", "correct-horse", "A")
		assert.ErrorIs(t, err, domain.ErrTooManyAttempts)
	})
}

func TestAuthUseCase_Authorize(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	usr, err := env.auth.CreateUser(ctx, "alice", "correct-horse", false)
	require.NoError(t, err)
	_, err = env.auth.Login(ctx, "alice", "correct-horse", "A")
	require.NoError(t, err)
	_, err = env.auth.Login(ctx, "alice", "correct-horse", "B")
	require.NoError(t, err)

	_, err = env.auth.Authorize(ctx, usr.ID, "B")
	assert.NoError(t, err)
	_, err = env.auth.Authorize(ctx, usr.ID, "A")
	assert.ErrorIs(t, err, domain.ErrDeviceMismatch, "only the most recent device is active")
	_, err = env.auth.Authorize(ctx, usr.ID, "")
	assert.ErrorIs(t, err, domain.ErrDeviceRequired)

	root, err := env.auth.CreateUser(ctx, "root", "correct-horse", true)
	require.NoError(t, err)
	_, err = env.auth.Authorize(ctx, root.ID, "")
	assert.NoError(t, err)
}
