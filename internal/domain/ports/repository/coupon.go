package repository

import (
	"context"

	"edu-access-core/internal/domain/model"
)

// CouponRepository is the port for discount codes.
type CouponRepository interface {
	Save(ctx context.Context, tx Tx, c *model.Coupon) error
	// FindByCode looks a coupon up by its normalized code. With a tx the row is locked.
	FindByCode(ctx context.Context, tx Tx, code string) (*model.Coupon, error)
	// IncrementUsageIfBelowCap bumps used_count_total by one only while the
	// cap (if any) is not reached. It returns false when the guard failed.
	IncrementUsageIfBelowCap(ctx context.Context, tx Tx, id string) (bool, error)
}
