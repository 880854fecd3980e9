package sched

import (
	"context"
	"errors"
	"strings"
	"time"

	ucport "edu-access-core/internal/domain/ports/usecase"
	"edu-access-core/internal/infra/metrics"
	red "edu-access-core/internal/infra/redis"

	"github.com/rs/zerolog"
)

// ExpiryWorker periodically runs the expiration sweep. When a locker is
// configured only one instance sweeps per tick.
type ExpiryWorker struct {
	interval time.Duration
	sweeper  ucport.Sweeper
	locker   red.Locker // nil runs without coordination
	lockTTL  time.Duration
	now      func() time.Time
	log      *zerolog.Logger
}

func NewExpiryWorker(interval time.Duration, sweeper ucport.Sweeper, locker red.Locker, lockTTL time.Duration, logger *zerolog.Logger) *ExpiryWorker {
	exprLog := logger.With().Str("component", "ExpiryWorker").Logger()
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if lockTTL <= 0 {
		lockTTL = time.Minute
	}
	return &ExpiryWorker{
		interval: interval,
		sweeper:  sweeper,
		locker:   locker,
		lockTTL:  lockTTL,
		now:      time.Now,
		log:      &exprLog,
	}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (w *ExpiryWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting expiry worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping expiry worker")
			return ctx.Err()
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep. It reports whether the sweep ran.
func (w *ExpiryWorker) RunOnce(ctx context.Context) bool {
	return withLock(ctx, w.locker, red.SweepLockKey(), w.lockTTL, w.log, func(ctx context.Context) {
		runCtx, cancel := context.WithTimeout(ctx, w.interval)
		defer cancel()
		res, err := w.sweeper.Sweep(runCtx, w.now())
		if err != nil {
			w.log.Error().Err(err).Msg("expiry sweep failed")
			return
		}
		if res.Expired > 0 || res.CachesCleared > 0 || res.PendingExpired > 0 {
			w.log.Info().
				Int64("expired", res.Expired).
				Int64("caches_cleared", res.CachesCleared).
				Int64("pending_expired", res.PendingExpired).
				Msg("expired subscriptions finished")
		}
	})
}

// withLock runs fn under the named lock. A held lock skips the run; a lock
// store failure runs fn anyway because every job here is idempotent.
func withLock(ctx context.Context, locker red.Locker, key string, ttl time.Duration, log *zerolog.Logger, fn func(ctx context.Context)) bool {
	if locker == nil {
		fn(ctx)
		return true
	}
	token, err := locker.TryLock(ctx, key, ttl)
	switch {
	case errors.Is(err, red.ErrLockHeld):
		metrics.IncJobRun(strings.TrimPrefix(key, "lock:"), "skipped")
		log.Debug().Str("lock", key).Msg("another instance holds the lock; skipping")
		return false
	case err != nil:
		log.Warn().Err(err).Str("lock", key).Msg("lock store unavailable; running unlocked")
		fn(ctx)
		return true
	}
	defer func() {
		if err := locker.Unlock(context.Background(), key, token); err != nil {
			log.Warn().Err(err).Str("lock", key).Msg("unlock failed")
		}
	}()
	fn(ctx)
	return true
}
