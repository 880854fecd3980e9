package memdb

import (
	"context"
	"sort"
	"time"

	"edu-access-core/internal/domain"
	"edu-access-core/internal/domain/model"
	"edu-access-core/internal/domain/ports/repository"
)

type subRepo struct{ s *Store }

var _ repository.SubscriptionRepository = (*subRepo)(nil)

// read returns a copy with PlanCode joined. Callers hold mu.
func (r *subRepo) read(sub *model.Subscription) *model.Subscription {
	cp := copySub(sub)
	if p, ok := r.s.t.plans[sub.PlanID]; ok {
		cp.PlanCode = p.Code
	}
	return cp
}

func (r *subRepo) Save(ctx context.Context, tx repository.Tx, sub *model.Subscription) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.t.plans[sub.PlanID]; !ok {
		return domain.ErrNotFound
	}
	if sub.PaymentID != nil {
		for id, other := range r.s.t.subs {
			if id != sub.ID && other.PaymentID != nil && *other.PaymentID == *sub.PaymentID {
				return domain.ErrAlreadyExists
			}
		}
	}
	r.s.t.subs[sub.ID] = copySub(sub)
	return nil
}

func (r *subRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	sub, ok := r.s.t.subs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r.read(sub), nil
}

func (r *subRepo) FindByPaymentID(ctx context.Context, tx repository.Tx, paymentID string) (*model.Subscription, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, sub := range r.s.t.subs {
		if sub.PaymentID != nil && *sub.PaymentID == paymentID {
			return r.read(sub), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *subRepo) FindLiveByUser(ctx context.Context, tx repository.Tx, userID string, now time.Time) ([]*model.Subscription, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*model.Subscription
	for _, sub := range r.s.t.subs {
		if sub.UserID == userID && sub.IsLive(now) {
			out = append(out, r.read(sub))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (r *subRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Subscription, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*model.Subscription
	for _, sub := range r.s.t.subs {
		if sub.UserID == userID {
			out = append(out, r.read(sub))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (r *subRepo) HasTrial(ctx context.Context, tx repository.Tx, userID string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, sub := range r.s.t.subs {
		if sub.UserID == userID && sub.IsTrial {
			return true, nil
		}
	}
	return false, nil
}

func (r *subRepo) CouponUsedByUser(ctx context.Context, tx repository.Tx, userID, code string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	code = model.NormalizeCouponCode(code)
	for _, sub := range r.s.t.subs {
		if sub.UserID == userID && sub.CouponCode != nil && model.NormalizeCouponCode(*sub.CouponCode) == code {
			return true, nil
		}
	}
	return false, nil
}

func (r *subRepo) UpdateStatusIfCurrent(ctx context.Context, tx repository.Tx, id string, from, to model.SubscriptionStatus) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sub, ok := r.s.t.subs[id]
	if !ok || sub.Status != from {
		return false, nil
	}
	sub.Status = to
	return true, nil
}

func (r *subRepo) ExpireLapsed(ctx context.Context, tx repository.Tx, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, sub := range r.s.t.subs {
		if (sub.Status == model.SubscriptionStatusTrial || sub.Status == model.SubscriptionStatusActive) &&
			sub.EndsAt != nil && sub.EndsAt.Before(now) {
			sub.Status = model.SubscriptionStatusExpired
			n++
		}
	}
	return n, nil
}

func (r *subRepo) ExpireStalePending(ctx context.Context, tx repository.Tx, cutoff time.Time) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ids []string
	for _, sub := range r.s.t.subs {
		if sub.Status == model.SubscriptionStatusPending && sub.CreatedAt.Before(cutoff) {
			sub.Status = model.SubscriptionStatusExpired
			if sub.PaymentID != nil {
				ids = append(ids, *sub.PaymentID)
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *subRepo) CountLiveByPlan(ctx context.Context, tx repository.Tx, now time.Time) (map[string]int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := map[string]int{}
	for _, sub := range r.s.t.subs {
		if sub.IsLive(now) {
			out[r.read(sub).PlanCode]++
		}
	}
	return out, nil
}

func sortNewestFirst(subs []*model.Subscription) {
	sort.Slice(subs, func(i, j int) bool {
		if !subs[i].CreatedAt.Equal(subs[j].CreatedAt) {
			return subs[i].CreatedAt.After(subs[j].CreatedAt)
		}
		return subs[i].ID > subs[j].ID
	})
}
