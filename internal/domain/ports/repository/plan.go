package repository

import (
	"context"

	"edu-access-core/internal/domain/model"
)

// PlanRepository is the port for the plan catalog.
type PlanRepository interface {
	Save(ctx context.Context, tx Tx, plan *model.Plan) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Plan, error)
	FindByCode(ctx context.Context, tx Tx, code string) (*model.Plan, error)
	ListActive(ctx context.Context, tx Tx) ([]*model.Plan, error)
}
