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

// Ensure interface compliance
var _ repository.PlanRepository = (*planRepo)(nil)

type planRepo struct {
	pool *pgxpool.Pool
}

func NewPlanRepo(pool *pgxpool.Pool) *planRepo {
	return &planRepo{pool: pool}
}

const planColumns = `id, code, name, price, duration_days, is_active, created_at`

func scanPlan(row pgx.Row) (*model.Plan, error) {
	var p model.Plan
	if err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Price, &p.DurationDays, &p.IsActive, &p.CreatedAt); err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

func (r *planRepo) Save(ctx context.Context, tx repository.Tx, plan *model.Plan) error {
	const q = `
INSERT INTO plans (id, code, name, price, duration_days, is_active, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE
  SET code          = EXCLUDED.code,
      name          = EXCLUDED.name,
      price         = EXCLUDED.price,
      duration_days = EXCLUDED.duration_days,
      is_active     = EXCLUDED.is_active;`
	_, err := execSQL(ctx, r.pool, tx, q,
		plan.ID, plan.Code, plan.Name, plan.Price, plan.DurationDays, plan.IsActive, plan.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("save plan: %w", mapErr(err))
	}
	return nil
}

func (r *planRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Plan, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+planColumns+` FROM plans WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	return scanPlan(row)
}

func (r *planRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.Plan, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+planColumns+` FROM plans WHERE code = $1`, model.NormalizePlanCode(code))
	if err != nil {
		return nil, err
	}
	return scanPlan(row)
}

func (r *planRepo) ListActive(ctx context.Context, tx repository.Tx) ([]*model.Plan, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT `+planColumns+` FROM plans WHERE is_active ORDER BY price ASC, code ASC`)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", mapErr(err))
	}
	defer rows.Close()

	var out []*model.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
