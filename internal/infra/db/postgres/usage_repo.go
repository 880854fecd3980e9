package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"edu-access-core/internal/domain/ports/repository"
)

var _ repository.UsageRepository = (*usageRepo)(nil)

type usageRepo struct {
	pool *pgxpool.Pool
}

func NewUsageRepo(pool *pgxpool.Pool) *usageRepo {
	return &usageRepo{pool: pool}
}

// dayParam renders the local calendar day; the column is a DATE.
func dayParam(day time.Time) string { return day.Format("2006-01-02") }

func (r *usageRepo) GetOrCreate(ctx context.Context, tx repository.Tx, userID string, day time.Time) (int, error) {
	const q = `
INSERT INTO ai_usage_daily (user_id, day, count) VALUES ($1, $2::date, 0)
ON CONFLICT (user_id, day) DO UPDATE SET count = ai_usage_daily.count
RETURNING count;`
	row, err := pickRow(ctx, r.pool, tx, q, userID, dayParam(day))
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("usage get-or-create: %w", mapErr(err))
	}
	return n, nil
}

// IncrementIfBelow upserts the row and adds n under a single guarded statement.
func (r *usageRepo) IncrementIfBelow(ctx context.Context, tx repository.Tx, userID string, day time.Time, n, limit int) (int, bool, error) {
	const q = `
INSERT INTO ai_usage_daily (user_id, day, count) VALUES ($1, $2::date, $3)
ON CONFLICT (user_id, day) DO UPDATE SET count = ai_usage_daily.count + EXCLUDED.count
 WHERE ai_usage_daily.count + EXCLUDED.count <= $4
RETURNING count;`
	if n > limit {
		cur, err := r.GetOrCreate(ctx, tx, userID, day)
		return cur, false, err
	}
	row, err := pickRow(ctx, r.pool, tx, q, userID, dayParam(day), n, limit)
	if err != nil {
		return 0, false, err
	}
	var count int
	err = row.Scan(&count)
	if err == pgx.ErrNoRows {
		cur, err := r.GetOrCreate(ctx, tx, userID, day)
		return cur, false, err
	}
	if err != nil {
		return 0, false, fmt.Errorf("usage increment: %w", mapErr(err))
	}
	return count, true, nil
}
