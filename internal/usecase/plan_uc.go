package usecase

import (
	"context"
	"errors"

	"edu-access-core/internal/domain"
	"edu-access-core/internal/domain/model"
	"edu-access-core/internal/domain/ports/repository"
	"edu-access-core/internal/infra/logging"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ PlanUseCase = (*planUC)(nil)

// PlanUseCase is the read side of the plan catalog plus staff seeding.
type PlanUseCase interface {
	Create(ctx context.Context, plan *model.Plan) error
	// GetByCode returns an active plan or domain.ErrUnknownPlan.
	GetByCode(ctx context.Context, code string) (*model.Plan, error)
	List(ctx context.Context) ([]*model.Plan, error)
}

type planUC struct {
	plans repository.PlanRepository
	log   *zerolog.Logger
}

func NewPlanUseCase(plans repository.PlanRepository, logger *zerolog.Logger) *planUC {
	l := logger.With().Str("component", "PlanUC").Logger()
	return &planUC{plans: plans, log: &l}
}

func (u *planUC) Create(ctx context.Context, plan *model.Plan) error {
	defer logging.TraceDuration(u.log, "PlanUC.Create")()
	return u.plans.Save(ctx, repository.NoTX, plan)
}

func (u *planUC) GetByCode(ctx context.Context, code string) (*model.Plan, error) {
	defer logging.TraceDuration(u.log, "PlanUC.GetByCode")()
	return resolvePlan(ctx, u.plans, repository.NoTX, code, "")
}

func (u *planUC) List(ctx context.Context) ([]*model.Plan, error) {
	defer logging.TraceDuration(u.log, "PlanUC.List")()
	return u.plans.ListActive(ctx, repository.NoTX)
}

// resolvePlan looks a plan up by code, or by id when code is empty, and
// rejects missing or inactive plans with domain.ErrUnknownPlan.
func resolvePlan(ctx context.Context, plans repository.PlanRepository, tx repository.Tx, code, id string) (*model.Plan, error) {
	var (
		p   *model.Plan
		err error
	)
	switch {
	case code != "":
		p, err = plans.FindByCode(ctx, tx, model.NormalizePlanCode(code))
	case id != "":
		p, err = plans.FindByID(ctx, tx, id)
	default:
		return nil, domain.ErrUnknownPlan
	}
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrUnknownPlan
	}
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, domain.ErrUnknownPlan
	}
	return p, nil
}
