//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"edu-access-core/internal/domain"
	"edu-access-core/internal/domain/model"
	"edu-access-core/internal/domain/policy"
	"edu-access-core/internal/domain/ports/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscriptionUseCase_StartTrial(t *testing.T) {
	ctx := context.Background()

	t.Run("should start a three day trial and fill the cache", func(t *testing.T) {
		// --- Arrange ---
		env := newEnv(t)
		env.addUser(t, "u1")
		now := env.clock.Now()

		// --- Act ---
		sub, err := env.subs.StartTrial(ctx, "u1", "")

		// --- Assert ---
		require.NoError(t, err)
		assert.Equal(t, model.SubscriptionStatusTrial, sub.Status)
		assert.True(t, sub.IsTrial)
		assert.True(t, sub.FinalPrice.IsZero())
		require.NotNil(t, sub.EndsAt)
		assert.True(t, sub.EndsAt.Equal(now.Add(72*time.Hour)))

		u := env.user(t, "u1")
		assert.True(t, u.IsActiveSubscription)
		assert.Equal(t, "basic", u.Plan)
		require.NotNil(t, u.ActivatedAt)
		assert.True(t, u.ActivatedAt.Equal(now))
		assert.True(t, u.ExpiresAt.Equal(*sub.EndsAt))
	})

	t.Run("should refuse a second trial and leave the first untouched", func(t *testing.T) {
		env := newEnv(t)
		env.addUser(t, "u1")
		first, err := env.subs.StartTrial(ctx, "u1", "basic")
		require.NoError(t, err)

		_, err = env.subs.StartTrial(ctx, "u1", "basic")
		assert.ErrorIs(t, err, domain.ErrTrialAlreadyUsed)

		got, err := env.store.Subscriptions().FindByID(ctx, repository.NoTX, first.ID)
		require.NoError(t, err)
		assert.Equal(t, model.SubscriptionStatusTrial, got.Status)
		assert.True(t, got.EndsAt.Equal(*first.EndsAt))
	})

	t.Run("should refuse a trial even after the first one lapsed", func(t *testing.T) {
		env := newEnv(t)
		env.addUser(t, "u1")
		_, err := env.subs.StartTrial(ctx, "u1", "")
		require.NoError(t, err)
		env.clock.Advance(96 * time.Hour)
		_, err = env.sweep.Sweep(ctx, env.clock.Now())
		require.NoError(t, err)

		_, err = env.subs.StartTrial(ctx, "u1", "")
		assert.ErrorIs(t, err, domain.ErrTrialAlreadyUsed)
	})

	t.Run("should refuse a trial while a paid grant is live", func(t *testing.T) {
		env := newEnv(t)
		env.addUser(t, "u1")
		_, err := env.subs.Purchase(ctx, "u1", "premium", "")
		require.NoError(t, err)

		_, err = env.subs.StartTrial(ctx, "u1", "")
		assert.ErrorIs(t, err, domain.ErrActiveSubscriptionExists)
		env.requireSingleLive(t, "u1")
	})

	t.Run("should reject unknown and inactive plans", func(t *testing.T) {
		env := newEnv(t)
		env.addUser(t, "u1")
		_, err := env.subs.StartTrial(ctx, "u1", "gold")
		assert.ErrorIs(t, err, domain.ErrUnknownPlan)

		p, _ := env.store.Plans().FindByCode(ctx, repository.NoTX, "premium")
		p.IsActive = false
		require.NoError(t, env.store.Plans().Save(ctx, repository.NoTX, p))
		_, err = env.subs.StartTrial(ctx, "u1", "premium")
		assert.ErrorIs(t, err, domain.ErrUnknownPlan)

		subs, _ := env.subs.List(ctx, "u1")
		assert.Empty(t, subs, "a rejected request must not leave rows behind")
	})
}

func TestSubscriptionUseCase_Purchase(t *testing.T) {
	ctx := context.Background()

	t.Run("should apply the coupon percentage", func(t *testing.T) {
		env := newEnv(t)
		env.addCoupon(t, "TWENTY", 20, nil)
		env.addCoupon(t, "FREE", 100, nil)
		env.addCoupon(t, "ZERO", 0, nil)

		cases := []struct {
			user, code, want string
		}{
			{"u20", "twenty", "80.00"},
			{"u100", " free ", "0.00"},
			{"u0", "ZERO", "100.00"},
			{"unone", "", "100.00"},
		}
		for _, tc := range cases {
			env.addUser(t, tc.user)
			sub, err := env.subs.Purchase(ctx, tc.user, "basic", tc.code)
			require.NoError(t, err, tc.user)
			assert.Equal(t, tc.want, sub.FinalPrice.StringFixed(2), tc.user)
			assert.Equal(t, model.SubscriptionStatusActive, sub.Status)
		}

		c, _ := env.store.Coupons().FindByCode(ctx, repository.NoTX, "TWENTY")
		assert.Equal(t, 1, c.UsedCountTotal)
	})

	t.Run("should supersede a live trial", func(t *testing.T) {
		env := newEnv(t)
		env.addUser(t, "u1")
		trial, err := env.subs.StartTrial(ctx, "u1", "")
		require.NoError(t, err)
		trialStart := env.clock.Now()
		env.clock.Advance(time.Hour)

		sub, err := env.subs.Purchase(ctx, "u1", "advanced", "")
		require.NoError(t, err)

		old, _ := env.store.Subscriptions().FindByID(ctx, repository.NoTX, trial.ID)
		assert.Equal(t, model.SubscriptionStatusExpired, old.Status)
		env.requireSingleLive(t, "u1")

		u := env.user(t, "u1")
		assert.Equal(t, "advanced", u.Plan)
		assert.True(t, u.ExpiresAt.Equal(*sub.EndsAt))
		assert.True(t, u.ActivatedAt.Equal(trialStart), "activated_at is written once")
	})

	t.Run("should refuse a second paid grant", func(t *testing.T) {
		env := newEnv(t)
		env.addUser(t, "u1")
		_, err := env.subs.Purchase(ctx, "u1", "basic", "")
		require.NoError(t, err)

		_, err = env.subs.Purchase(ctx, "u1", "premium", "")
		assert.ErrorIs(t, err, domain.ErrActivePaidSubscriptionExist)
		assert.Equal(t, "basic", env.user(t, "u1").Plan)
	})

	t.Run("should refuse a coupon the user already redeemed", func(t *testing.T) {
		env := newEnv(t)
		env.addUser(t, "u1")
		env.addCoupon(t, "ONCE", 10, nil)
		_, err := env.subs.Purchase(ctx, "u1", "basic", "ONCE")
		require.NoError(t, err)
		env.clock.Advance(31 * 24 * time.Hour)
		_, err = env.sweep.Sweep(ctx, env.clock.Now())
		require.NoError(t, err)

		_, err = env.subs.Purchase(ctx, "u1", "basic", "once")
		assert.ErrorIs(t, err, domain.ErrCouponAlreadyUsed)
	})

	t.Run("should report the cap without side effects", func(t *testing.T) {
		env := newEnv(t)
		env.addUser(t, "u1")
		c := env.addCoupon(t, "GONE", 50, intPtr(0))

		_, err := env.subs.Purchase(ctx, "u1", "basic", "GONE")
		var le *domain.LimitError
		require.True(t, errors.As(err, &le), "got %v", err)
		assert.ErrorIs(t, err, domain.ErrCouponUsageCapReached)
		assert.Equal(t, 0, le.Limit)

		subs, _ := env.subs.List(ctx, "u1")
		assert.Empty(t, subs)
		got, _ := env.store.Coupons().FindByCode(ctx, repository.NoTX, c.Code)
		assert.Zero(t, got.UsedCountTotal)
	})

	t.Run("should let exactly one of two racing purchases take the last use", func(t *testing.T) {
		env := newEnv(t)
		env.addUser(t, "a")
		env.addUser(t, "b")
		env.addCoupon(t, "LAST", 30, intPtr(1))

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i, uid := range []string{"a", "b"} {
			wg.Add(1)
			go func(i int, uid string) {
				defer wg.Done()
				_, errs[i] = env.subs.Purchase(ctx, uid, "basic", "LAST")
			}(i, uid)
		}
		wg.Wait()

		ok, capped := 0, 0
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrCouponUsageCapReached):
				capped++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, ok)
		assert.Equal(t, 1, capped)
		c, _ := env.store.Coupons().FindByCode(ctx, repository.NoTX, "LAST")
		assert.Equal(t, 1, c.UsedCountTotal)
	})
}

func TestSubscriptionUseCase_Entitlements(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t)
	env.addUser(t, "u1")

	e, err := env.subs.Entitlements(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, e.CanViewQuestions)
	assert.Equal(t, model.PlanNone, e.Plan)

	_, err = env.subs.Purchase(ctx, "u1", "premium", "")
	require.NoError(t, err)
	e, err = env.subs.Entitlements(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, e.CanViewQuestions)
	assert.True(t, e.CanUseFlashcards)
	assert.Equal(t, policy.VisibilityOwnAndStaff, e.FlashcardVisibility)
	assert.Equal(t, 30, e.AIDailyLimit)

	_, err = env.subs.Entitlements(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
