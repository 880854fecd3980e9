// Package memdb is an in-process implementation of every repository port.
// It backs unit tests and the demo binary. Transactions are serialized and
// rolled back by restoring a snapshot taken when they began.
package memdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"edu-access-core/internal/domain/model"
	"edu-access-core/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4"
)

type usageKey struct {
	userID string
	day    string
}

type tables struct {
	plans    map[string]*model.Plan
	coupons  map[string]*model.Coupon
	subs     map[string]*model.Subscription
	payments map[string]*model.Payment
	users    map[string]*model.User
	usage    map[usageKey]int
}

// Store holds all tables. The zero value is not usable; call New.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	t    tables
}

func New() *Store {
	return &Store{t: tables{
		plans:    map[string]*model.Plan{},
		coupons:  map[string]*model.Coupon{},
		subs:     map[string]*model.Subscription{},
		payments: map[string]*model.Payment{},
		users:    map[string]*model.User{},
		usage:    map[usageKey]int{},
	}}
}

// txHandle is what WithTx hands to repositories.
type txHandle struct{ id int64 }

var _ repository.TransactionManager = (*Store)(nil)

// WithTx runs fn with every other transaction excluded. If fn fails, or
// panics, all tables are restored to their state at the start.
func (s *Store) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) (err error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	snap := s.t.clone()
	s.mu.RUnlock()

	defer func() {
		if r := recover(); r != nil {
			s.restore(snap)
			err = fmt.Errorf("memdb: panic in transaction: %v", r)
		}
	}()

	if err = fn(ctx, &txHandle{id: time.Now().UnixNano()}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *Store) restore(snap tables) {
	s.mu.Lock()
	s.t = snap
	s.mu.Unlock()
}

func (t tables) clone() tables {
	out := tables{
		plans:    make(map[string]*model.Plan, len(t.plans)),
		coupons:  make(map[string]*model.Coupon, len(t.coupons)),
		subs:     make(map[string]*model.Subscription, len(t.subs)),
		payments: make(map[string]*model.Payment, len(t.payments)),
		users:    make(map[string]*model.User, len(t.users)),
		usage:    make(map[usageKey]int, len(t.usage)),
	}
	for k, v := range t.plans {
		out.plans[k] = copyPlan(v)
	}
	for k, v := range t.coupons {
		out.coupons[k] = copyCoupon(v)
	}
	for k, v := range t.subs {
		out.subs[k] = copySub(v)
	}
	for k, v := range t.payments {
		out.payments[k] = copyPayment(v)
	}
	for k, v := range t.users {
		out.users[k] = copyUser(v)
	}
	for k, v := range t.usage {
		out.usage[k] = v
	}
	return out
}

func copyPlan(p *model.Plan) *model.Plan { cp := *p; return &cp }

func copyCoupon(c *model.Coupon) *model.Coupon {
	cp := *c
	cp.ValidFrom = copyTime(c.ValidFrom)
	cp.ValidTo = copyTime(c.ValidTo)
	if c.MaxUsesTotal != nil {
		v := *c.MaxUsesTotal
		cp.MaxUsesTotal = &v
	}
	return &cp
}

func copySub(s *model.Subscription) *model.Subscription {
	cp := *s
	cp.EndsAt = copyTime(s.EndsAt)
	cp.CouponCode = copyStr(s.CouponCode)
	cp.PaymentID = copyStr(s.PaymentID)
	return &cp
}

func copyPayment(p *model.Payment) *model.Payment {
	cp := *p
	cp.DiscountCode = copyStr(p.DiscountCode)
	cp.ReferenceNo = copyStr(p.ReferenceNo)
	cp.UserNote = copyStr(p.UserNote)
	cp.PaidAt = copyTime(p.PaidAt)
	return &cp
}

func copyUser(u *model.User) *model.User {
	cp := *u
	cp.ActivatedAt = copyTime(u.ActivatedAt)
	cp.ExpiresAt = copyTime(u.ExpiresAt)
	cp.DeviceSlot1 = copyStr(u.DeviceSlot1)
	cp.DeviceSlot2 = copyStr(u.DeviceSlot2)
	cp.ActiveDevice = copyStr(u.ActiveDevice)
	return &cp
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyStr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// Repositories.

func (s *Store) Plans() repository.PlanRepository                 { return &planRepo{s} }
func (s *Store) Coupons() repository.CouponRepository             { return &couponRepo{s} }
func (s *Store) Subscriptions() repository.SubscriptionRepository { return &subRepo{s} }
func (s *Store) Payments() repository.PaymentRepository           { return &paymentRepo{s} }
func (s *Store) Users() repository.UserRepository                 { return &userRepo{s} }
func (s *Store) Usage() repository.UsageRepository                { return &usageRepo{s} }
