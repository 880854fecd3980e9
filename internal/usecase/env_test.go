//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"edu-access-core/internal/domain/model"
	"edu-access-core/internal/domain/ports/repository"
	"edu-access-core/internal/infra/db/memdb"
	"edu-access-core/internal/usecase"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// testEnv wires every use case over one in-memory store.
type testEnv struct {
	store    *memdb.Store
	clock    *fakeClock
	settings usecase.Settings

	plans   usecase.PlanUseCase
	coupons usecase.CouponUseCase
	subs    usecase.SubscriptionUseCase
	pays    usecase.PaymentUseCase
	sweep   usecase.SweepUseCase
	quota   usecase.QuotaUseCase
	auth    usecase.AuthUseCase
}

func newEnv(t *testing.T, tweak ...func(*usecase.Settings)) *testEnv {
	t.Helper()
	store := memdb.New()
	clock := &fakeClock{t: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
	settings := usecase.Settings{
		TrialLength:     72 * time.Hour,
		TrialPlan:       "basic",
		InstructionsURL: "https://pay.example.com/transfer",
		QuotaLocation:   time.UTC,
		Clock:           clock.Now,
	}
	for _, f := range tweak {
		f(&settings)
	}
	log := newTestLogger()

	e := &testEnv{store: store, clock: clock, settings: settings}
	e.plans = usecase.NewPlanUseCase(store.Plans(), log)
	e.coupons = usecase.NewCouponUseCase(store.Coupons(), store.Subscriptions(), store.Plans(), settings, log)
	e.subs = usecase.NewSubscriptionUseCase(store.Plans(), store.Subscriptions(), store.Users(), e.coupons, store, settings, log)
	e.pays = usecase.NewPaymentUseCase(store.Payments(), store.Plans(), store.Subscriptions(), store.Users(), e.coupons, store, settings, log)
	e.sweep = usecase.NewSweepUseCase(store.Subscriptions(), store.Users(), store.Payments(), store, settings, log)
	e.quota = usecase.NewQuotaUseCase(store.Users(), store.Usage(), store, settings, log)
	e.auth = usecase.NewAuthUseCase(store.Users(), store, nil, nil, settings, log)

	ctx := context.Background()
	for i, p := range []struct {
		code  string
		price int64
		days  int
	}{{"basic", 100, 30}, {"premium", 200, 30}, {"advanced", 300, 90}} {
		plan, err := model.NewPlan("plan-"+p.code, p.code, p.code, decimal.NewFromInt(p.price), p.days)
		require.NoError(t, err)
		plan.CreatedAt = clock.Now().Add(time.Duration(i) * time.Second)
		require.NoError(t, e.plans.Create(ctx, plan))
	}
	return e
}

func (e *testEnv) addUser(t *testing.T, id string) *model.User {
	t.Helper()
	u := &model.User{ID: id, Username: id, Plan: model.PlanNone, CreatedAt: e.clock.Now()}
	require.NoError(t, e.store.Users().Save(context.Background(), repository.NoTX, u))
	return u
}

func (e *testEnv) addCoupon(t *testing.T, code string, percent int, maxUses *int) *model.Coupon {
	t.Helper()
	c, err := model.NewCoupon("coupon-"+code, code, percent, nil, nil, maxUses)
	require.NoError(t, err)
	require.NoError(t, e.coupons.Create(context.Background(), c))
	return c
}

func (e *testEnv) user(t *testing.T, id string) *model.User {
	t.Helper()
	u, err := e.store.Users().FindByID(context.Background(), repository.NoTX, id)
	require.NoError(t, err)
	return u
}

// requireSingleLive checks that the user holds at most one live grant.
func (e *testEnv) requireSingleLive(t *testing.T, userID string) {
	t.Helper()
	live, err := e.store.Subscriptions().FindLiveByUser(context.Background(), repository.NoTX, userID, e.clock.Now())
	require.NoError(t, err)
	require.LessOrEqual(t, len(live), 1, "user %s holds %d live grants", userID, len(live))
}

func intPtr(v int) *int { return &v }
