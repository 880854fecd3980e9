package repository

import (
	"context"
	"time"

	"edu-access-core/internal/domain/model"
)

// SubscriptionRepository is the port for access grants.
type SubscriptionRepository interface {
	Save(ctx context.Context, tx Tx, sub *model.Subscription) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Subscription, error)
	FindByPaymentID(ctx context.Context, tx Tx, paymentID string) (*model.Subscription, error)
	// FindLiveByUser returns TRIAL/ACTIVE grants with ends_at after now.
	FindLiveByUser(ctx context.Context, tx Tx, userID string, now time.Time) ([]*model.Subscription, error)
	ListByUser(ctx context.Context, tx Tx, userID string) ([]*model.Subscription, error)
	HasTrial(ctx context.Context, tx Tx, userID string) (bool, error)
	// CouponUsedByUser reports whether any grant of the user carries coupon code.
	CouponUsedByUser(ctx context.Context, tx Tx, userID, code string) (bool, error)

	// UpdateStatusIfCurrent moves a row from `from` to `to` and returns false
	// when the row was no longer in `from`.
	UpdateStatusIfCurrent(ctx context.Context, tx Tx, id string, from, to model.SubscriptionStatus) (bool, error)
	// ExpireLapsed sets EXPIRED on every TRIAL/ACTIVE row whose ends_at < now.
	ExpireLapsed(ctx context.Context, tx Tx, now time.Time) (int64, error)
	// ExpireStalePending sets EXPIRED on PENDING rows created before cutoff and
	// returns their payment ids.
	ExpireStalePending(ctx context.Context, tx Tx, cutoff time.Time) ([]string, error)
	CountLiveByPlan(ctx context.Context, tx Tx, now time.Time) (map[string]int, error)
}
