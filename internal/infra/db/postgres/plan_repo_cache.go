package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"edu-access-core/internal/domain/model"
	"edu-access-core/internal/domain/ports/repository"
	"edu-access-core/internal/infra/metrics"
	red "edu-access-core/internal/infra/redis"

	"github.com/rs/zerolog"
)

var _ repository.PlanRepository = (*planRepoCacheDecorator)(nil)

const plansListKey = "plans:active"

// planRepoCacheDecorator serves catalog reads from Redis. Reads that run
// inside a transaction always go to the inner repository.
type planRepoCacheDecorator struct {
	inner repository.PlanRepository
	cache red.RedisClient
	ttl   time.Duration
	log   *zerolog.Logger
}

func NewPlanRepoCacheDecorator(inner repository.PlanRepository, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) repository.PlanRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	l := logger.With().Str("component", "PlanCache").Logger()
	return &planRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl, log: &l}
}

func planIDKey(id string) string     { return fmt.Sprintf("plan:id:%s", id) }
func planCodeKey(code string) string { return fmt.Sprintf("plan:code:%s", model.NormalizePlanCode(code)) }

func (d *planRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Plan, error) {
	if inTx(tx) {
		return d.inner.FindByID(ctx, tx, id)
	}
	return d.cachedOne(ctx, planIDKey(id), func() (*model.Plan, error) { return d.inner.FindByID(ctx, tx, id) })
}

func (d *planRepoCacheDecorator) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.Plan, error) {
	if inTx(tx) {
		return d.inner.FindByCode(ctx, tx, code)
	}
	return d.cachedOne(ctx, planCodeKey(code), func() (*model.Plan, error) { return d.inner.FindByCode(ctx, tx, code) })
}

func (d *planRepoCacheDecorator) cachedOne(ctx context.Context, key string, load func() (*model.Plan, error)) (*model.Plan, error) {
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		var plan model.Plan
		if json.Unmarshal([]byte(val), &plan) == nil {
			metrics.IncCacheRequest("plan", "hit")
			return &plan, nil
		}
	} else if !errors.Is(err, red.ErrCacheMiss) {
		d.log.Warn().Err(err).Str("key", key).Msg("plan cache read failed")
	}

	metrics.IncCacheRequest("plan", "miss")
	plan, err := load()
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(plan); err == nil {
		if err := d.cache.Set(ctx, key, b, d.ttl); err != nil {
			d.log.Warn().Err(err).Str("key", key).Msg("plan cache write failed")
		}
	}
	return plan, nil
}

func (d *planRepoCacheDecorator) ListActive(ctx context.Context, tx repository.Tx) ([]*model.Plan, error) {
	if inTx(tx) {
		return d.inner.ListActive(ctx, tx)
	}
	val, err := d.cache.Get(ctx, plansListKey)
	if err == nil {
		var plans []*model.Plan
		if json.Unmarshal([]byte(val), &plans) == nil {
			metrics.IncCacheRequest("plan_list", "hit")
			return plans, nil
		}
	}

	metrics.IncCacheRequest("plan_list", "miss")
	plans, err := d.inner.ListActive(ctx, tx)
	if err != nil {
		return nil, err
	}
	if len(plans) > 0 {
		if b, err := json.Marshal(plans); err == nil {
			_ = d.cache.Set(ctx, plansListKey, b, d.ttl)
		}
	}
	return plans, nil
}

// Save writes through and drops every key the plan may be cached under.
func (d *planRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, plan *model.Plan) error {
	if err := d.inner.Save(ctx, tx, plan); err != nil {
		return err
	}
	if err := d.cache.Del(ctx, planIDKey(plan.ID), planCodeKey(plan.Code), plansListKey); err != nil {
		d.log.Warn().Err(err).Str("plan_id", plan.ID).Msg("plan cache invalidation failed")
	}
	return nil
}
