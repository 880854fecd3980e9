//go:build !integration

package usecase_test

import (
	"context"
	"testing"
	"time"

	"edu-access-core/internal/domain"
	"edu-access-core/internal/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCouponUseCase_Quote(t *testing.T) {
	ctx := context.Background()

	t.Run("should price a plan without consuming the coupon", func(t *testing.T) {
		env := newEnv(t)
		env.addUser(t, "u1")
		env.addCoupon(t, "SAVE20", 20, intPtr(1))

		q, err := env.coupons.Quote(ctx, "u1", " save20 ", "premium")
		require.NoError(t, err)
		assert.Equal(t, "SAVE20", q.CouponCode)
		assert.Equal(t, "200.00", q.BasePrice.StringFixed(2))
		assert.Equal(t, "160.00", q.FinalPrice.StringFixed(2))

		// a quote leaves the single use available
		sub, err := env.subs.Purchase(ctx, "u1", "premium", "SAVE20")
		require.NoError(t, err)
		assert.Equal(t, "160.00", sub.FinalPrice.StringFixed(2))
	})

	t.Run("should report unknown, inactive and out-of-window coupons", func(t *testing.T) {
		env := newEnv(t)
		env.addUser(t, "u1")

		_, err := env.coupons.Quote(ctx, "u1", "NOPE", "basic")
		assert.ErrorIs(t, err, domain.ErrCouponNotFound)

		off, err := model.NewCoupon("c-off", "OFF", 10, nil, nil, nil)
		require.NoError(t, err)
		off.IsActive = false
		require.NoError(t, env.coupons.Create(ctx, off))
		_, err = env.coupons.Quote(ctx, "u1", "OFF", "basic")
		assert.ErrorIs(t, err, domain.ErrCouponInactive)

		from := env.clock.Now().Add(24 * time.Hour)
		later, err := model.NewCoupon("c-later", "LATER", 10, &from, nil, nil)
		require.NoError(t, err)
		require.NoError(t, env.coupons.Create(ctx, later))
		_, err = env.coupons.Quote(ctx, "u1", "LATER", "basic")
		assert.ErrorIs(t, err, domain.ErrCouponOutOfWindow)

		env.clock.Advance(25 * time.Hour)
		_, err = env.coupons.Quote(ctx, "u1", "LATER", "basic")
		assert.NoError(t, err)
	})

	t.Run("should reject an unknown plan", func(t *testing.T) {
		env := newEnv(t)
		env.addUser(t, "u1")
		env.addCoupon(t, "SAVE20", 20, nil)

		_, err := env.coupons.Quote(ctx, "u1", "SAVE20", "platinum")
		assert.ErrorIs(t, err, domain.ErrUnknownPlan)
	})

	t.Run("should refuse a coupon the user already redeemed", func(t *testing.T) {
		env := newEnv(t)
		env.addUser(t, "u1")
		env.addCoupon(t, "ONCE", 50, nil)
		_, err := env.subs.Purchase(ctx, "u1", "basic", "ONCE")
		require.NoError(t, err)

		_, err = env.coupons.Quote(ctx, "u1", "ONCE", "basic")
		assert.ErrorIs(t, err, domain.ErrCouponAlreadyUsed)
	})
}
