package sched

import (
	"context"
	"time"

	red "edu-access-core/internal/infra/redis"

	"github.com/rs/zerolog"
)

// CacheRebuilder is the slice of the sweep use case the reconciler needs.
type CacheRebuilder interface {
	RebuildCaches(ctx context.Context, now time.Time) (int64, error)
}

// CacheReconciler periodically recomputes every user's cached grant fields
// from subscription rows, repairing drift left by manual edits or crashes.
type CacheReconciler struct {
	rebuilder CacheRebuilder
	locker    red.Locker
	interval  time.Duration
	lockTTL   time.Duration
	log       *zerolog.Logger
}

func NewCacheReconciler(rebuilder CacheRebuilder, locker red.Locker, interval, lockTTL time.Duration, logger *zerolog.Logger) *CacheReconciler {
	l := logger.With().Str("component", "CacheReconciler").Logger()
	if interval <= 0 {
		interval = time.Hour
	}
	if lockTTL <= 0 {
		lockTTL = time.Minute
	}
	return &CacheReconciler{rebuilder: rebuilder, locker: locker, interval: interval, lockTTL: lockTTL, log: &l}
}

func (w *CacheReconciler) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("Starting cache reconciler")
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping cache reconciler")
			return
		case <-t.C:
			w.tick(ctx)
		}
	}
}

func (w *CacheReconciler) tick(ctx context.Context) {
	withLock(ctx, w.locker, "lock:cache-rebuild", w.lockTTL, w.log, func(ctx context.Context) {
		n, err := w.rebuilder.RebuildCaches(ctx, time.Now())
		if err != nil {
			w.log.Error().Err(err).Msg("cache rebuild failed")
			return
		}
		if n > 0 {
			w.log.Warn().Int64("users_updated", n).Msg("repaired drifted subscription caches")
		}
	})
}
