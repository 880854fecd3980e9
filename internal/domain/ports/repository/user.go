package repository

import (
	"context"
	"time"

	"edu-access-core/internal/domain/model"
)

// SubscriptionCache is the denormalized grant state stored on the user record.
type SubscriptionCache struct {
	Plan        string
	Active      bool
	ActivatedAt *time.Time // written only when the stored value is NULL
	ExpiresAt   *time.Time
}

// UserRepository is the port for the identity record. The core writes only
// the cached subscription fields and the device binding.
type UserRepository interface {
	Save(ctx context.Context, tx Tx, u *model.User) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.User, error)
	FindByUsername(ctx context.Context, tx Tx, username string) (*model.User, error)
	// LockByID loads the user row FOR UPDATE; it serializes grant changes per user.
	LockByID(ctx context.Context, tx Tx, id string) (*model.User, error)

	SetSubscriptionCache(ctx context.Context, tx Tx, userID string, c SubscriptionCache) error
	// ClearStaleCaches resets the cache of every user flagged active that holds
	// no live TRIAL/ACTIVE grant at now.
	ClearStaleCaches(ctx context.Context, tx Tx, now time.Time) (int64, error)
	// RebuildCaches recomputes every user's cache from subscription rows.
	RebuildCaches(ctx context.Context, tx Tx, now time.Time) (int64, error)

	UpdateDevices(ctx context.Context, tx Tx, u *model.User) error
}
