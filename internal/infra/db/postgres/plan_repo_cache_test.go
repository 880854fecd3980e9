//go:build !integration

package postgres

import (
	"context"
	"errors"
	"io"
	"testing"

	"edu-access-core/internal/domain/model"
	"edu-access-core/internal/domain/ports/repository"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

func TestPlanRepoCacheDecorator(t *testing.T) {
	ctx := context.Background()
	plan, err := model.NewPlan("plan-1", "premium", "Premium", decimal.RequireFromString("199.90"), 30)
	require.NoError(t, err)

	t.Run("FindByCode should hit the inner repo once and then serve from cache", func(t *testing.T) {
		// Arrange
		calls := 0
		inner := &mockInnerPlanRepo{
			FindByCodeFunc: func(ctx context.Context, tx repository.Tx, code string) (*model.Plan, error) {
				calls++
				return plan, nil
			},
		}
		decorator := NewPlanRepoCacheDecorator(inner, newMockRedis(), 0, newTestLogger())

		// Act
		first, err1 := decorator.FindByCode(ctx, repository.NoTX, "premium")
		second, err2 := decorator.FindByCode(ctx, repository.NoTX, " PREMIUM ")

		// Assert
		require.NoError(t, err1)
		require.NoError(t, err2)
		assert.Equal(t, 1, calls)
		assert.Equal(t, "plan-1", second.ID)
		assert.True(t, first.Price.Equal(second.Price), "price survives the cache round trip")
	})

	t.Run("should fall through to the inner repo when redis fails", func(t *testing.T) {
		cache := newMockRedis()
		cache.getErr = errors.New("connection refused")
		inner := &mockInnerPlanRepo{
			FindByIDFunc: func(ctx context.Context, tx repository.Tx, id string) (*model.Plan, error) { return plan, nil },
		}
		decorator := NewPlanRepoCacheDecorator(inner, cache, 0, newTestLogger())

		got, err := decorator.FindByID(ctx, repository.NoTX, "plan-1")
		require.NoError(t, err)
		assert.Equal(t, "premium", got.Code)
	})

	t.Run("should not cache not-found results", func(t *testing.T) {
		cache := newMockRedis()
		inner := &mockInnerPlanRepo{
			FindByCodeFunc: func(ctx context.Context, tx repository.Tx, code string) (*model.Plan, error) {
				return nil, errors.New("entity not found")
			},
		}
		decorator := NewPlanRepoCacheDecorator(inner, cache, 0, newTestLogger())

		_, err := decorator.FindByCode(ctx, repository.NoTX, "gold")
		assert.Error(t, err)
		assert.Empty(t, cache.data)
	})

	t.Run("Save should invalidate the id, code and list keys", func(t *testing.T) {
		cache := newMockRedis()
		inner := &mockInnerPlanRepo{
			SaveFunc:       func(ctx context.Context, tx repository.Tx, p *model.Plan) error { return nil },
			ListActiveFunc: func(ctx context.Context, tx repository.Tx) ([]*model.Plan, error) { return []*model.Plan{plan}, nil },
		}
		decorator := NewPlanRepoCacheDecorator(inner, cache, 0, newTestLogger())
		_, err := decorator.ListActive(ctx, repository.NoTX)
		require.NoError(t, err)
		require.Contains(t, cache.data, plansListKey)

		err = decorator.Save(ctx, repository.NoTX, plan)

		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"plan:id:plan-1", "plan:code:premium", plansListKey}, cache.deleted)
		assert.NotContains(t, cache.data, plansListKey)
	})
}
