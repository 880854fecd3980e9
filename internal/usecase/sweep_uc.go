package usecase

import (
	"context"
	"fmt"
	"time"

	"edu-access-core/internal/domain/model"
	"edu-access-core/internal/domain/ports/repository"
	ucport "edu-access-core/internal/domain/ports/usecase"
	"edu-access-core/internal/infra/logging"
	"edu-access-core/internal/infra/metrics"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
)

// Compile-time check
var _ SweepUseCase = (*sweepUC)(nil)

// SweepUseCase runs the set-based maintenance jobs over grants and user caches.
type SweepUseCase interface {
	ucport.Sweeper
	// RebuildCaches recomputes every user's cached grant fields from subscriptions.
	RebuildCaches(ctx context.Context, now time.Time) (int64, error)
}

type sweepUC struct {
	subs     repository.SubscriptionRepository
	users    repository.UserRepository
	payments repository.PaymentRepository
	tm       repository.TransactionManager
	settings Settings
	log      *zerolog.Logger
}

func NewSweepUseCase(
	subs repository.SubscriptionRepository,
	users repository.UserRepository,
	payments repository.PaymentRepository,
	tm repository.TransactionManager,
	settings Settings,
	logger *zerolog.Logger,
) *sweepUC {
	l := logger.With().Str("component", "SweepUC").Logger()
	return &sweepUC{subs: subs, users: users, payments: payments, tm: tm, settings: settings.withDefaults(), log: &l}
}

// Sweep expires lapsed grants, then clears caches left pointing at them.
// Each step is a single conditional set update, so overlapping runs are harmless.
func (u *sweepUC) Sweep(ctx context.Context, now time.Time) (ucport.SweepResult, error) {
	defer logging.TraceDuration(u.log, "SweepUC.Sweep")()
	var res ucport.SweepResult

	expired, err := u.subs.ExpireLapsed(ctx, repository.NoTX, now)
	if err != nil {
		metrics.IncJobRun("sweep", "failed")
		return res, fmt.Errorf("expire lapsed grants: %w", err)
	}
	res.Expired = expired

	if u.settings.PendingTTL > 0 {
		if err := u.expireStalePending(ctx, now, &res); err != nil {
			metrics.IncJobRun("sweep", "failed")
			return res, err
		}
	}

	cleared, err := u.users.ClearStaleCaches(ctx, repository.NoTX, now)
	if err != nil {
		metrics.IncJobRun("sweep", "failed")
		return res, fmt.Errorf("clear stale caches: %w", err)
	}
	res.CachesCleared = cleared

	metrics.IncSubscriptionsExpired(res.Expired + res.PendingExpired)
	metrics.IncCachesCleared(res.CachesCleared)
	metrics.IncJobRun("sweep", "ok")
	if live, err := u.subs.CountLiveByPlan(ctx, repository.NoTX, now); err == nil {
		metrics.SetLiveByPlan(live)
	}

	u.log.Info().
		Int64("expired", res.Expired).
		Int64("caches_cleared", res.CachesCleared).
		Int64("pending_expired", res.PendingExpired).
		Int64("payments_cancelled", res.PaymentsClosed).
		Msg("expiration sweep finished")
	return res, nil
}

// expireStalePending closes PENDING grants older than the TTL together with their payments.
func (u *sweepUC) expireStalePending(ctx context.Context, now time.Time, res *ucport.SweepResult) error {
	cutoff := now.Add(-u.settings.PendingTTL)
	return u.tm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, tx repository.Tx) error {
		ids, err := u.subs.ExpireStalePending(ctx, tx, cutoff)
		if err != nil {
			return fmt.Errorf("expire stale pending: %w", err)
		}
		n, err := u.payments.CancelIfPending(ctx, tx, ids)
		if err != nil {
			return fmt.Errorf("cancel stale payments: %w", err)
		}
		res.PendingExpired = int64(len(ids))
		res.PaymentsClosed = n
		for i := int64(0); i < n; i++ {
			metrics.IncPayment(string(model.PaymentStatusCancelled))
		}
		return nil
	})
}

func (u *sweepUC) RebuildCaches(ctx context.Context, now time.Time) (int64, error) {
	defer logging.TraceDuration(u.log, "SweepUC.RebuildCaches")()
	n, err := u.users.RebuildCaches(ctx, repository.NoTX, now)
	if err != nil {
		metrics.IncJobRun("rebuild_cache", "failed")
		return 0, fmt.Errorf("rebuild caches: %w", err)
	}
	metrics.IncJobRun("rebuild_cache", "ok")
	u.log.Info().Int64("users_updated", n).Msg("user caches rebuilt")
	return n, nil
}
