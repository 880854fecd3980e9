package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"edu-access-core/internal/domain"
	"edu-access-core/internal/domain/model"
	"edu-access-core/internal/domain/ports/repository"
	"edu-access-core/internal/infra/db/memdb"
	pg "edu-access-core/internal/infra/db/postgres"
	red "edu-access-core/internal/infra/redis"
	"edu-access-core/internal/usecase"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Stores bundles every repository port plus the transaction manager.
type Stores struct {
	Plans    repository.PlanRepository
	Coupons  repository.CouponRepository
	Subs     repository.SubscriptionRepository
	Payments repository.PaymentRepository
	Users    repository.UserRepository
	Usage    repository.UsageRepository
	TM       repository.TransactionManager
}

// PostgresStores wires the Postgres repositories. A non-nil cache puts the
// plan catalog behind a Redis read-through decorator.
func PostgresStores(pool *pgxpool.Pool, cache red.RedisClient, cacheTTL time.Duration, logger *zerolog.Logger) Stores {
	var plans repository.PlanRepository = pg.NewPlanRepo(pool)
	if cache != nil {
		plans = pg.NewPlanRepoCacheDecorator(plans, cache, cacheTTL, logger)
	}
	return Stores{
		Plans:    plans,
		Coupons:  pg.NewCouponRepo(pool),
		Subs:     pg.NewSubscriptionRepo(pool),
		Payments: pg.NewPaymentRepo(pool),
		Users:    pg.NewUserRepo(pool),
		Usage:    pg.NewUsageRepo(pool),
		TM:       pg.NewTxManager(pool),
	}
}

// MemoryStores wires the in-memory store used by the demo and tests.
func MemoryStores(s *memdb.Store) Stores {
	return Stores{
		Plans:    s.Plans(),
		Coupons:  s.Coupons(),
		Subs:     s.Subscriptions(),
		Payments: s.Payments(),
		Users:    s.Users(),
		Usage:    s.Usage(),
		TM:       s,
	}
}

// Core composes the use cases into one entry point for the binaries.
type Core struct {
	Plans    usecase.PlanUseCase
	Coupons  usecase.CouponUseCase
	Subs     usecase.SubscriptionUseCase
	Payments usecase.PaymentUseCase
	Sweep    usecase.SweepUseCase
	Quota    usecase.QuotaUseCase
	Auth     usecase.AuthUseCase

	log *zerolog.Logger
}

// NewCore builds every use case over st. limiter may be nil.
func NewCore(st Stores, limiter usecase.RateLimiter, settings usecase.Settings, logger *zerolog.Logger) *Core {
	coupons := usecase.NewCouponUseCase(st.Coupons, st.Subs, st.Plans, settings, logger)
	var keyFn func(string) string
	if limiter != nil {
		keyFn = red.LoginKey
	}
	return &Core{
		Plans:    usecase.NewPlanUseCase(st.Plans, logger),
		Coupons:  coupons,
		Subs:     usecase.NewSubscriptionUseCase(st.Plans, st.Subs, st.Users, coupons, st.TM, settings, logger),
		Payments: usecase.NewPaymentUseCase(st.Payments, st.Plans, st.Subs, st.Users, coupons, st.TM, settings, logger),
		Sweep:    usecase.NewSweepUseCase(st.Subs, st.Users, st.Payments, st.TM, settings, logger),
		Quota:    usecase.NewQuotaUseCase(st.Users, st.Usage, st.TM, settings, logger),
		Auth:     usecase.NewAuthUseCase(st.Users, st.TM, limiter, keyFn, settings, logger),
		log:      logger,
	}
}

// DefaultPlans is the catalog written by SeedCatalog.
var DefaultPlans = []struct {
	Code  string
	Name  string
	Price string
	Days  int
}{
	{model.PlanBasic, "Basic", "100.00", 30},
	{model.PlanPremium, "Premium", "200.00", 30},
	{model.PlanAdvanced, "Advanced", "350.00", 30},
}

// SeedCatalog creates the default plans that do not exist yet and returns
// how many were added.
func (c *Core) SeedCatalog(ctx context.Context) (int, error) {
	added := 0
	for _, s := range DefaultPlans {
		if _, err := c.Plans.GetByCode(ctx, s.Code); err == nil {
			continue
		} else if !errors.Is(err, domain.ErrUnknownPlan) {
			return added, fmt.Errorf("lookup plan %s: %w", s.Code, err)
		}
		p, err := model.NewPlan(uuid.NewString(), s.Code, s.Name, decimal.RequireFromString(s.Price), s.Days)
		if err != nil {
			return added, err
		}
		if err := c.Plans.Create(ctx, p); err != nil {
			return added, fmt.Errorf("create plan %s: %w", s.Code, err)
		}
		c.log.Info().Str("plan", p.Code).Str("price", p.Price.StringFixed(2)).Msg("plan seeded")
		added++
	}
	return added, nil
}
