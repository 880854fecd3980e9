package usecase

import (
	"context"
	"fmt"
	"time"

	"edu-access-core/internal/domain/model"
	"edu-access-core/internal/domain/ports/repository"
)

// grantStore bundles the two repositories every grant transition touches.
// All methods must run inside a transaction that already holds the user lock.
type grantStore struct {
	subs  repository.SubscriptionRepository
	users repository.UserRepository
}

// markLive writes the cache for a grant that just landed in TRIAL or ACTIVE.
func (g grantStore) markLive(ctx context.Context, tx repository.Tx, sub *model.Subscription) error {
	started := sub.StartedAt
	err := g.users.SetSubscriptionCache(ctx, tx, sub.UserID, repository.SubscriptionCache{
		Plan:        sub.PlanCode,
		Active:      true,
		ActivatedAt: &started,
		ExpiresAt:   sub.EndsAt,
	})
	if err != nil {
		return fmt.Errorf("update user cache: %w", err)
	}
	return nil
}

// expireLive moves every live grant of the user except keepID to EXPIRED.
// When onlyStatus is set, only grants in that status are touched.
func (g grantStore) expireLive(ctx context.Context, tx repository.Tx, userID, keepID string, onlyStatus model.SubscriptionStatus, now time.Time) (int, error) {
	live, err := g.subs.FindLiveByUser(ctx, tx, userID, now)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, s := range live {
		if s.ID == keepID || (onlyStatus != "" && s.Status != onlyStatus) {
			continue
		}
		ok, err := g.subs.UpdateStatusIfCurrent(ctx, tx, s.ID, s.Status, model.SubscriptionStatusExpired)
		if err != nil {
			return n, fmt.Errorf("expire grant %s: %w", s.ID, err)
		}
		if ok {
			n++
		}
	}
	return n, nil
}
