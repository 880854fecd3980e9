package model

import (
	"time"

	"edu-access-core/internal/domain"

	"github.com/shopspring/decimal"
)

type SubscriptionStatus string

const (
	SubscriptionStatusTrial   SubscriptionStatus = "trial"
	SubscriptionStatusActive  SubscriptionStatus = "active"
	SubscriptionStatusPending SubscriptionStatus = "pending"
	SubscriptionStatusExpired SubscriptionStatus = "expired"
)

// LiveStatuses are the statuses that grant access while EndsAt is in the future.
var LiveStatuses = []SubscriptionStatus{SubscriptionStatusTrial, SubscriptionStatusActive}

// allowedTransitions lists every legal status change. EXPIRED is terminal.
var allowedTransitions = map[SubscriptionStatus][]SubscriptionStatus{
	SubscriptionStatusTrial:   {SubscriptionStatusExpired},
	SubscriptionStatusActive:  {SubscriptionStatusExpired},
	SubscriptionStatusPending: {SubscriptionStatusActive, SubscriptionStatusExpired},
}

// Subscription is one access grant.
type Subscription struct {
	ID         string
	UserID     string
	PlanID     string
	PlanCode   string // joined from plans on read
	Status     SubscriptionStatus
	IsTrial    bool
	StartedAt  time.Time
	EndsAt     *time.Time // nil while pending
	CouponCode *string
	FinalPrice decimal.Decimal
	PaymentID  *string
	CreatedAt  time.Time
}

// IsLive reports whether the grant currently confers access.
func (s *Subscription) IsLive(now time.Time) bool {
	if s == nil || s.EndsAt == nil {
		return false
	}
	if s.Status != SubscriptionStatusTrial && s.Status != SubscriptionStatusActive {
		return false
	}
	return s.EndsAt.After(now)
}

// CanTransition reports whether from -> to is a legal change.
func CanTransition(from, to SubscriptionStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionTo moves the grant to status `to` or returns ErrInvalidTransition.
func (s *Subscription) TransitionTo(to SubscriptionStatus) error {
	if !CanTransition(s.Status, to) {
		return domain.ErrInvalidTransition
	}
	s.Status = to
	return nil
}

// NewTrialSubscription builds a trial grant of the given length.
func NewTrialSubscription(id, userID string, plan *Plan, now time.Time, length time.Duration) (*Subscription, error) {
	if id == "" || userID == "" || plan.IsZero() || length <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	ends := now.Add(length)
	return &Subscription{
		ID:         id,
		UserID:     userID,
		PlanID:     plan.ID,
		PlanCode:   plan.Code,
		Status:     SubscriptionStatusTrial,
		IsTrial:    true,
		StartedAt:  now,
		EndsAt:     &ends,
		FinalPrice: decimal.Zero,
		CreatedAt:  now,
	}, nil
}

// NewActiveSubscription builds a paid grant that starts now.
func NewActiveSubscription(id, userID string, plan *Plan, now time.Time, price decimal.Decimal, couponCode *string) (*Subscription, error) {
	if id == "" || userID == "" || plan.IsZero() || price.IsNegative() {
		return nil, domain.ErrInvalidArgument
	}
	ends := now.Add(plan.Duration())
	return &Subscription{
		ID:         id,
		UserID:     userID,
		PlanID:     plan.ID,
		PlanCode:   plan.Code,
		Status:     SubscriptionStatusActive,
		StartedAt:  now,
		EndsAt:     &ends,
		CouponCode: couponCode,
		FinalPrice: price,
		CreatedAt:  now,
	}, nil
}

// NewPendingSubscription builds a grant awaiting confirmation of paymentID.
func NewPendingSubscription(id, userID string, plan *Plan, now time.Time, price decimal.Decimal, couponCode *string, paymentID string) (*Subscription, error) {
	if id == "" || userID == "" || plan.IsZero() || paymentID == "" || price.IsNegative() {
		return nil, domain.ErrInvalidArgument
	}
	return &Subscription{
		ID:         id,
		UserID:     userID,
		PlanID:     plan.ID,
		PlanCode:   plan.Code,
		Status:     SubscriptionStatusPending,
		StartedAt:  now,
		CouponCode: couponCode,
		FinalPrice: price,
		PaymentID:  &paymentID,
		CreatedAt:  now,
	}, nil
}
