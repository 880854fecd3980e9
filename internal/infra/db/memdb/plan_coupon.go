package memdb

import (
	"context"
	"sort"

	"edu-access-core/internal/domain"
	"edu-access-core/internal/domain/model"
	"edu-access-core/internal/domain/ports/repository"
)

type planRepo struct{ s *Store }

var _ repository.PlanRepository = (*planRepo)(nil)

func (r *planRepo) Save(ctx context.Context, tx repository.Tx, p *model.Plan) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, other := range r.s.t.plans {
		if other.Code == p.Code && id != p.ID {
			return domain.ErrAlreadyExists
		}
	}
	r.s.t.plans[p.ID] = copyPlan(p)
	return nil
}

func (r *planRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Plan, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.t.plans[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyPlan(p), nil
}

func (r *planRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.Plan, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	code = model.NormalizePlanCode(code)
	for _, p := range r.s.t.plans {
		if p.Code == code {
			return copyPlan(p), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *planRepo) ListActive(ctx context.Context, tx repository.Tx) ([]*model.Plan, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*model.Plan, 0, len(r.s.t.plans))
	for _, p := range r.s.t.plans {
		if p.IsActive {
			out = append(out, copyPlan(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Price.Equal(out[j].Price) {
			return out[i].Price.LessThan(out[j].Price)
		}
		return out[i].Code < out[j].Code
	})
	return out, nil
}

type couponRepo struct{ s *Store }

var _ repository.CouponRepository = (*couponRepo)(nil)

func (r *couponRepo) Save(ctx context.Context, tx repository.Tx, c *model.Coupon) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, other := range r.s.t.coupons {
		if other.Code == c.Code && id != c.ID {
			return domain.ErrAlreadyExists
		}
	}
	r.s.t.coupons[c.ID] = copyCoupon(c)
	return nil
}

func (r *couponRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.Coupon, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	code = model.NormalizeCouponCode(code)
	for _, c := range r.s.t.coupons {
		if c.Code == code {
			return copyCoupon(c), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *couponRepo) IncrementUsageIfBelowCap(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.t.coupons[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if c.MaxUsesTotal != nil && c.UsedCountTotal >= *c.MaxUsesTotal {
		return false, nil
	}
	c.UsedCountTotal++
	return true, nil
}
