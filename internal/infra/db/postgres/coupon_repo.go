package postgres

import (
	"context"
	"fmt"

	"edu-access-core/internal/domain"
	"edu-access-core/internal/domain/model"
	"edu-access-core/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

var _ repository.CouponRepository = (*couponRepo)(nil)

type couponRepo struct {
	pool *pgxpool.Pool
}

func NewCouponRepo(pool *pgxpool.Pool) *couponRepo {
	return &couponRepo{pool: pool}
}

func scanCoupon(row pgx.Row) (*model.Coupon, error) {
	var c model.Coupon
	if err := row.Scan(&c.ID, &c.Code, &c.Percent, &c.ValidFrom, &c.ValidTo, &c.IsActive,
		&c.MaxUsesTotal, &c.UsedCountTotal, &c.CreatedAt); err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

func (r *couponRepo) Save(ctx context.Context, tx repository.Tx, c *model.Coupon) error {
	const q = `
INSERT INTO coupons (id, code, percent, valid_from, valid_to, is_active, max_uses_total, used_count_total, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO UPDATE SET
  percent=$3, valid_from=$4, valid_to=$5, is_active=$6, max_uses_total=$7;`
	_, err := execSQL(ctx, r.pool, tx, q,
		c.ID, model.NormalizeCouponCode(c.Code), c.Percent, c.ValidFrom, c.ValidTo, c.IsActive,
		c.MaxUsesTotal, c.UsedCountTotal, c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("save coupon: %w", mapErr(err))
	}
	return nil
}

func (r *couponRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.Coupon, error) {
	q := forUpdate(`
SELECT id, code, percent, valid_from, valid_to, is_active, max_uses_total, used_count_total, created_at
  FROM coupons WHERE code = $1`, tx)
	row, err := pickRow(ctx, r.pool, tx, q, model.NormalizeCouponCode(code))
	if err != nil {
		return nil, err
	}
	return scanCoupon(row)
}

// IncrementUsageIfBelowCap relies on the WHERE guard, so two racing
// redemptions of the last use cannot both succeed.
func (r *couponRepo) IncrementUsageIfBelowCap(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	const q = `
UPDATE coupons
   SET used_count_total = used_count_total + 1
 WHERE id = $1
   AND (max_uses_total IS NULL OR used_count_total < max_uses_total);`
	tag, err := execSQL(ctx, r.pool, tx, q, id)
	if err != nil {
		return false, fmt.Errorf("redeem coupon: %w", mapErr(err))
	}
	return tag.RowsAffected() == 1, nil
}
