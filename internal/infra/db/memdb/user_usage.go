package memdb

import (
	"context"
	"strings"
	"time"

	"edu-access-core/internal/domain"
	"edu-access-core/internal/domain/model"
	"edu-access-core/internal/domain/ports/repository"
)

type userRepo struct{ s *Store }

var _ repository.UserRepository = (*userRepo)(nil)

func (r *userRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, other := range r.s.t.users {
		if id != u.ID && strings.EqualFold(other.Username, u.Username) {
			return domain.ErrAlreadyExists
		}
	}
	cp := copyUser(u)
	if cp.Plan == "" {
		cp.Plan = model.PlanNone
	}
	r.s.t.users[u.ID] = cp
	return nil
}

func (r *userRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.t.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyUser(u), nil
}

func (r *userRepo) FindByUsername(ctx context.Context, tx repository.Tx, username string) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.t.users {
		if strings.EqualFold(u.Username, strings.TrimSpace(username)) {
			return copyUser(u), nil
		}
	}
	return nil, domain.ErrNotFound
}

// LockByID is FindByID; WithTx already excludes concurrent transactions.
func (r *userRepo) LockByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	return r.FindByID(ctx, tx, id)
}

func (r *userRepo) SetSubscriptionCache(ctx context.Context, tx repository.Tx, userID string, c repository.SubscriptionCache) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.t.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.Plan = model.NormalizePlanCode(c.Plan)
	u.IsActiveSubscription = c.Active
	u.ExpiresAt = copyTime(c.ExpiresAt)
	if u.ActivatedAt == nil && c.ActivatedAt != nil {
		u.ActivatedAt = copyTime(c.ActivatedAt)
	}
	return nil
}

// liveGrant returns the live grant with the latest end for userID. Callers hold mu.
func (s *Store) liveGrant(userID string, now time.Time) *model.Subscription {
	var best *model.Subscription
	for _, sub := range s.t.subs {
		if sub.UserID != userID || !sub.IsLive(now) {
			continue
		}
		if best == nil || sub.EndsAt.After(*best.EndsAt) {
			best = sub
		}
	}
	return best
}

func (r *userRepo) ClearStaleCaches(ctx context.Context, tx repository.Tx, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, u := range r.s.t.users {
		if u.IsActiveSubscription && r.s.liveGrant(u.ID, now) == nil {
			u.IsActiveSubscription = false
			u.Plan = model.PlanNone
			u.ExpiresAt = nil
			n++
		}
	}
	return n, nil
}

func (r *userRepo) RebuildCaches(ctx context.Context, tx repository.Tx, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, u := range r.s.t.users {
		plan, active := model.PlanNone, false
		var expires *time.Time
		if g := r.s.liveGrant(u.ID, now); g != nil {
			if p, ok := r.s.t.plans[g.PlanID]; ok {
				plan = p.Code
			}
			active = true
			expires = copyTime(g.EndsAt)
		}
		activated := u.ActivatedAt
		if activated == nil {
			activated = r.s.firstStart(u.ID)
		}
		changed := u.Plan != plan || u.IsActiveSubscription != active ||
			!timeEq(u.ExpiresAt, expires) || !timeEq(u.ActivatedAt, activated)
		if changed {
			u.Plan, u.IsActiveSubscription, u.ExpiresAt, u.ActivatedAt = plan, active, expires, copyTime(activated)
			n++
		}
	}
	return n, nil
}

// firstStart is the earliest start of any grant that ever conferred access.
func (s *Store) firstStart(userID string) *time.Time {
	var first *time.Time
	for _, sub := range s.t.subs {
		if sub.UserID != userID || sub.EndsAt == nil {
			continue
		}
		if first == nil || sub.StartedAt.Before(*first) {
			t := sub.StartedAt
			first = &t
		}
	}
	return first
}

func timeEq(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func (r *userRepo) UpdateDevices(ctx context.Context, tx repository.Tx, u *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.t.users[u.ID]
	if !ok {
		return domain.ErrNotFound
	}
	cur.DeviceSlot1 = copyStr(u.DeviceSlot1)
	cur.DeviceSlot2 = copyStr(u.DeviceSlot2)
	cur.ActiveDevice = copyStr(u.ActiveDevice)
	return nil
}

type usageRepo struct{ s *Store }

var _ repository.UsageRepository = (*usageRepo)(nil)

func dayKey(userID string, day time.Time) usageKey {
	return usageKey{userID: userID, day: day.Format("2006-01-02")}
}

func (r *usageRepo) GetOrCreate(ctx context.Context, tx repository.Tx, userID string, day time.Time) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := dayKey(userID, day)
	if _, ok := r.s.t.usage[k]; !ok {
		r.s.t.usage[k] = 0
	}
	return r.s.t.usage[k], nil
}

func (r *usageRepo) IncrementIfBelow(ctx context.Context, tx repository.Tx, userID string, day time.Time, n, limit int) (int, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := dayKey(userID, day)
	cur := r.s.t.usage[k]
	if cur+n > limit {
		return cur, false, nil
	}
	r.s.t.usage[k] = cur + n
	return cur + n, true, nil
}
