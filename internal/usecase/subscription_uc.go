// File: internal/usecase/subscription_uc.go
package usecase

import (
	"context"
	"fmt"

	"edu-access-core/internal/domain"
	"edu-access-core/internal/domain/model"
	"edu-access-core/internal/domain/policy"
	"edu-access-core/internal/domain/ports/repository"
	"edu-access-core/internal/infra/logging"
	"edu-access-core/internal/infra/metrics"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
)

// Compile-time check
var _ SubscriptionUseCase = (*subscriptionUC)(nil)

// SubscriptionUseCase owns the grant lifecycle outside of payments.
type SubscriptionUseCase interface {
	// StartTrial grants a free trial on planCode (the configured trial plan when empty).
	StartTrial(ctx context.Context, userID, planCode string) (*model.Subscription, error)
	// Purchase grants an ACTIVE subscription immediately, superseding a live trial.
	Purchase(ctx context.Context, userID, planCode, couponCode string) (*model.Subscription, error)
	List(ctx context.Context, userID string) ([]*model.Subscription, error)
	Entitlements(ctx context.Context, userID string) (*policy.Entitlements, error)
}

type subscriptionUC struct {
	plans    repository.PlanRepository
	subs     repository.SubscriptionRepository
	users    repository.UserRepository
	coupons  CouponUseCase
	tm       repository.TransactionManager
	settings Settings
	log      *zerolog.Logger
}

func NewSubscriptionUseCase(
	plans repository.PlanRepository,
	subs repository.SubscriptionRepository,
	users repository.UserRepository,
	coupons CouponUseCase,
	tm repository.TransactionManager,
	settings Settings,
	logger *zerolog.Logger,
) *subscriptionUC {
	l := logger.With().Str("component", "SubscriptionUC").Logger()
	return &subscriptionUC{
		plans:    plans,
		subs:     subs,
		users:    users,
		coupons:  coupons,
		tm:       tm,
		settings: settings.withDefaults(),
		log:      &l,
	}
}

func (u *subscriptionUC) grants() grantStore { return grantStore{subs: u.subs, users: u.users} }

func (u *subscriptionUC) StartTrial(ctx context.Context, userID, planCode string) (*model.Subscription, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.StartTrial")()
	if planCode == "" {
		planCode = u.settings.TrialPlan
	}

	var sub *model.Subscription
	err := u.tm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, tx repository.Tx) error {
		if _, err := u.users.LockByID(ctx, tx, userID); err != nil {
			return err
		}
		now := u.settings.Clock()

		used, err := u.subs.HasTrial(ctx, tx, userID)
		if err != nil {
			return err
		}
		if used {
			return domain.ErrTrialAlreadyUsed
		}
		live, err := u.subs.FindLiveByUser(ctx, tx, userID, now)
		if err != nil {
			return err
		}
		if len(live) > 0 {
			return domain.ErrActiveSubscriptionExists
		}

		plan, err := resolvePlan(ctx, u.plans, tx, planCode, "")
		if err != nil {
			return err
		}
		s, err := model.NewTrialSubscription(uuid.NewString(), userID, plan, now, u.settings.TrialLength)
		if err != nil {
			return err
		}
		if err := u.subs.Save(ctx, tx, s); err != nil {
			return fmt.Errorf("save trial: %w", err)
		}
		if err := u.grants().markLive(ctx, tx, s); err != nil {
			return err
		}
		sub = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.IncTransition(model.SubscriptionStatusTrial, "trial")
	logging.With(ctx, u.log).Info().Str("subscription_id", sub.ID).Str("plan", sub.PlanCode).Msg("trial started")
	return sub, nil
}

func (u *subscriptionUC) Purchase(ctx context.Context, userID, planCode, couponCode string) (*model.Subscription, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.Purchase")()

	var (
		sub        *model.Subscription
		superseded int
	)
	err := u.tm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, tx repository.Tx) error {
		if _, err := u.users.LockByID(ctx, tx, userID); err != nil {
			return err
		}
		now := u.settings.Clock()

		live, err := u.subs.FindLiveByUser(ctx, tx, userID, now)
		if err != nil {
			return err
		}
		for _, s := range live {
			if s.Status == model.SubscriptionStatusActive {
				return domain.ErrActivePaidSubscriptionExist
			}
		}

		plan, err := resolvePlan(ctx, u.plans, tx, planCode, "")
		if err != nil {
			return err
		}

		price := plan.Price
		var applied *string
		if model.NormalizeCouponCode(couponCode) != "" {
			c, err := u.coupons.Validate(ctx, tx, couponCode, userID, now)
			if err != nil {
				return err
			}
			if err := u.coupons.Redeem(ctx, tx, c); err != nil {
				return err
			}
			price = c.Apply(plan.Price)
			code := c.Code
			applied = &code
		}

		n, err := u.grants().expireLive(ctx, tx, userID, "", model.SubscriptionStatusTrial, now)
		if err != nil {
			return err
		}
		superseded = n

		s, err := model.NewActiveSubscription(uuid.NewString(), userID, plan, now, price, applied)
		if err != nil {
			return err
		}
		if err := u.subs.Save(ctx, tx, s); err != nil {
			return fmt.Errorf("save subscription: %w", err)
		}
		if err := u.grants().markLive(ctx, tx, s); err != nil {
			return err
		}
		sub = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i := 0; i < superseded; i++ {
		metrics.IncTransition(model.SubscriptionStatusExpired, "supersede")
	}
	metrics.IncTransition(model.SubscriptionStatusActive, "purchase")
	logging.With(ctx, u.log).Info().
		Str("subscription_id", sub.ID).
		Str("plan", sub.PlanCode).
		Str("final_price", sub.FinalPrice.StringFixed(2)).
		Int("superseded", superseded).
		Msg("subscription purchased")
	return sub, nil
}

func (u *subscriptionUC) List(ctx context.Context, userID string) ([]*model.Subscription, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.List")()
	return u.subs.ListByUser(ctx, repository.NoTX, userID)
}

func (u *subscriptionUC) Entitlements(ctx context.Context, userID string) (*policy.Entitlements, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.Entitlements")()
	usr, err := u.users.FindByID(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, err
	}
	e := policy.Evaluate(usr, u.settings.Clock())
	return &e, nil
}
