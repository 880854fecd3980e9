package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"edu-access-core/internal/domain"
	"edu-access-core/internal/domain/model"
	"edu-access-core/internal/domain/ports/repository"
)

// Ensure subscriptionRepo implements repository.SubscriptionRepository
var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

const subSelect = `
SELECT s.id, s.user_id, s.plan_id, p.code, s.status, s.is_trial, s.started_at, s.ends_at,
       s.coupon_code, s.final_price, s.payment_id, s.created_at
  FROM subscriptions s
  JOIN plans p ON p.id = s.plan_id`

func scanSub(row pgx.Row) (*model.Subscription, error) {
	var s model.Subscription
	var status string
	if err := row.Scan(&s.ID, &s.UserID, &s.PlanID, &s.PlanCode, &status, &s.IsTrial, &s.StartedAt, &s.EndsAt,
		&s.CouponCode, &s.FinalPrice, &s.PaymentID, &s.CreatedAt); err != nil {
		return nil, mapErr(err)
	}
	s.Status = model.SubscriptionStatus(status)
	return &s, nil
}

func (r *subscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	const q = `
INSERT INTO subscriptions (
  id, user_id, plan_id, status, is_trial, started_at, ends_at, coupon_code, final_price, payment_id, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (id) DO UPDATE SET
  status=$4, started_at=$6, ends_at=$7;`
	_, err := execSQL(ctx, r.pool, tx, q, s.ID, s.UserID, s.PlanID, string(s.Status), s.IsTrial,
		s.StartedAt, s.EndsAt, s.CouponCode, s.FinalPrice, s.PaymentID, s.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			if s.IsTrial {
				return domain.ErrTrialAlreadyUsed
			}
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("save subscription: %w", mapErr(err))
	}
	return nil
}

func (r *subscriptionRepo) queryOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.Subscription, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	return scanSub(row)
}

func (r *subscriptionRepo) queryMany(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.Subscription, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []*model.Subscription
	for rows.Next() {
		s, err := scanSub(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *subscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	return r.queryOne(ctx, tx, subSelect+` WHERE s.id = $1`, id)
}

func (r *subscriptionRepo) FindByPaymentID(ctx context.Context, tx repository.Tx, paymentID string) (*model.Subscription, error) {
	q := subSelect + ` WHERE s.payment_id = $1`
	if inTx(tx) {
		q += ` FOR UPDATE OF s`
	}
	return r.queryOne(ctx, tx, q, paymentID)
}

func (r *subscriptionRepo) FindLiveByUser(ctx context.Context, tx repository.Tx, userID string, now time.Time) ([]*model.Subscription, error) {
	q := subSelect + `
 WHERE s.user_id = $1 AND s.status IN ('trial','active') AND s.ends_at > $2
 ORDER BY s.created_at DESC, s.id DESC`
	if inTx(tx) {
		q += ` FOR UPDATE OF s`
	}
	return r.queryMany(ctx, tx, q, userID, now)
}

func (r *subscriptionRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Subscription, error) {
	return r.queryMany(ctx, tx, subSelect+` WHERE s.user_id = $1 ORDER BY s.created_at DESC, s.id DESC`, userID)
}

func (r *subscriptionRepo) HasTrial(ctx context.Context, tx repository.Tx, userID string) (bool, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT EXISTS (SELECT 1 FROM subscriptions WHERE user_id = $1 AND is_trial)`, userID)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := row.Scan(&ok); err != nil {
		return false, mapErr(err)
	}
	return ok, nil
}

func (r *subscriptionRepo) CouponUsedByUser(ctx context.Context, tx repository.Tx, userID, code string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM subscriptions WHERE user_id = $1 AND UPPER(coupon_code) = $2)`
	row, err := pickRow(ctx, r.pool, tx, q, userID, model.NormalizeCouponCode(code))
	if err != nil {
		return false, err
	}
	var ok bool
	if err := row.Scan(&ok); err != nil {
		return false, mapErr(err)
	}
	return ok, nil
}

func (r *subscriptionRepo) UpdateStatusIfCurrent(ctx context.Context, tx repository.Tx, id string, from, to model.SubscriptionStatus) (bool, error) {
	tag, err := execSQL(ctx, r.pool, tx, `UPDATE subscriptions SET status = $3 WHERE id = $1 AND status = $2`, id, string(from), string(to))
	if err != nil {
		return false, fmt.Errorf("update subscription status: %w", mapErr(err))
	}
	return tag.RowsAffected() == 1, nil
}

func (r *subscriptionRepo) ExpireLapsed(ctx context.Context, tx repository.Tx, now time.Time) (int64, error) {
	const q = `UPDATE subscriptions SET status = 'expired' WHERE status IN ('trial','active') AND ends_at < $1`
	tag, err := execSQL(ctx, r.pool, tx, q, now)
	if err != nil {
		return 0, fmt.Errorf("expire lapsed: %w", mapErr(err))
	}
	return tag.RowsAffected(), nil
}

func (r *subscriptionRepo) ExpireStalePending(ctx context.Context, tx repository.Tx, cutoff time.Time) ([]string, error) {
	const q = `
UPDATE subscriptions SET status = 'expired'
 WHERE status = 'pending' AND created_at < $1
RETURNING payment_id`
	rows, err := queryRows(ctx, r.pool, tx, q, cutoff)
	if err != nil {
		return nil, fmt.Errorf("expire stale pending: %w", mapErr(err))
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id *string
		if err := rows.Scan(&id); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		if id != nil {
			ids = append(ids, *id)
		}
	}
	return ids, rows.Err()
}

func (r *subscriptionRepo) CountLiveByPlan(ctx context.Context, tx repository.Tx, now time.Time) (map[string]int, error) {
	const q = `
SELECT p.code, COUNT(*)
  FROM subscriptions s JOIN plans p ON p.id = s.plan_id
 WHERE s.status IN ('trial','active') AND s.ends_at > $1
 GROUP BY p.code`
	rows, err := queryRows(ctx, r.pool, tx, q, now)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var code string
		var n int
		if err := rows.Scan(&code, &n); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out[code] = n
	}
	return out, rows.Err()
}
