package usecase

import (
	"context"
	"errors"
	"time"

	"edu-access-core/internal/domain"
	"edu-access-core/internal/domain/model"
	"edu-access-core/internal/domain/ports/repository"
	"edu-access-core/internal/infra/logging"
	"edu-access-core/internal/infra/metrics"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Compile-time check
var _ CouponUseCase = (*couponUC)(nil)

// Quote is a price computed for one plan and an optional coupon.
type Quote struct {
	PlanCode   string          `json:"plan_code"`
	CouponCode string          `json:"coupon_code,omitempty"`
	Percent    int             `json:"percent"`
	BasePrice  decimal.Decimal `json:"base_price"`
	FinalPrice decimal.Decimal `json:"final_price"`
}

type CouponUseCase interface {
	Create(ctx context.Context, c *model.Coupon) error
	// Quote validates code for userID and prices planCode without consuming the coupon.
	Quote(ctx context.Context, userID, code, planCode string) (*Quote, error)

	// Validate runs every redemption check inside tx.
	Validate(ctx context.Context, tx repository.Tx, code, userID string, now time.Time) (*model.Coupon, error)
	// Redeem consumes one use of c. It must share tx with the grant it funds.
	Redeem(ctx context.Context, tx repository.Tx, c *model.Coupon) error
}

type couponUC struct {
	coupons repository.CouponRepository
	subs    repository.SubscriptionRepository
	plans   repository.PlanRepository
	clock   Clock
	log     *zerolog.Logger
}

func NewCouponUseCase(coupons repository.CouponRepository, subs repository.SubscriptionRepository, plans repository.PlanRepository, settings Settings, logger *zerolog.Logger) *couponUC {
	l := logger.With().Str("component", "CouponUC").Logger()
	return &couponUC{coupons: coupons, subs: subs, plans: plans, clock: settings.withDefaults().Clock, log: &l}
}

func (u *couponUC) Create(ctx context.Context, c *model.Coupon) error {
	defer logging.TraceDuration(u.log, "CouponUC.Create")()
	return u.coupons.Save(ctx, repository.NoTX, c)
}

func (u *couponUC) Quote(ctx context.Context, userID, code, planCode string) (*Quote, error) {
	defer logging.TraceDuration(u.log, "CouponUC.Quote")()

	plan, err := resolvePlan(ctx, u.plans, repository.NoTX, planCode, "")
	if err != nil {
		return nil, err
	}
	c, err := u.Validate(ctx, repository.NoTX, code, userID, u.clock())
	if err != nil {
		return nil, err
	}
	return &Quote{
		PlanCode:   plan.Code,
		CouponCode: c.Code,
		Percent:    c.Percent,
		BasePrice:  plan.Price,
		FinalPrice: c.Apply(plan.Price),
	}, nil
}

func (u *couponUC) Validate(ctx context.Context, tx repository.Tx, code, userID string, now time.Time) (*model.Coupon, error) {
	code = model.NormalizeCouponCode(code)
	if code == "" {
		return nil, domain.ErrInvalidArgument
	}

	c, err := u.coupons.FindByCode(ctx, tx, code)
	if errors.Is(err, domain.ErrNotFound) {
		metrics.IncCoupon("validate", "not_found")
		return nil, domain.ErrCouponNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := c.CheckUsable(now); err != nil {
		metrics.IncCoupon("validate", couponOutcome(err))
		return nil, err
	}

	used, err := u.subs.CouponUsedByUser(ctx, tx, userID, c.Code)
	if err != nil {
		return nil, err
	}
	if used {
		metrics.IncCoupon("validate", "used")
		return nil, domain.ErrCouponAlreadyUsed
	}
	metrics.IncCoupon("validate", "ok")
	return c, nil
}

func (u *couponUC) Redeem(ctx context.Context, tx repository.Tx, c *model.Coupon) error {
	ok, err := u.coupons.IncrementUsageIfBelowCap(ctx, tx, c.ID)
	if err != nil {
		return err
	}
	if !ok {
		metrics.IncCoupon("redeem", "cap")
		limit := 0
		if c.MaxUsesTotal != nil {
			limit = *c.MaxUsesTotal
		}
		return &domain.LimitError{Err: domain.ErrCouponUsageCapReached, Limit: limit, Used: limit}
	}
	metrics.IncCoupon("redeem", "ok")
	u.log.Debug().Str("coupon", c.Code).Msg("coupon redeemed")
	return nil
}

func couponOutcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrCouponInactive):
		return "inactive"
	case errors.Is(err, domain.ErrCouponOutOfWindow):
		return "window"
	case errors.Is(err, domain.ErrCouponUsageCapReached):
		return "cap"
	}
	return "error"
}
