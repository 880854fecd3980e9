// File: cmd/app/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"edu-access-core/internal/application"
	"edu-access-core/internal/config"
	aiAdapters "edu-access-core/internal/infra/adapters/ai"
	"edu-access-core/internal/infra/api"
	pg "edu-access-core/internal/infra/db/postgres"
	"edu-access-core/internal/infra/i18n"
	"edu-access-core/internal/infra/logging"
	"edu-access-core/internal/infra/metrics"
	red "edu-access-core/internal/infra/redis"
	"edu-access-core/internal/infra/sched"
	"edu-access-core/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

// maxConcurrentAnswers caps in-flight calls into the answer pipeline.
const maxConcurrentAnswers = 16

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- Config & logging ----
	cfg, err := config.LoadConfig()
	if err != nil {
		// logger is not configured yet
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("dev mode enabled")
	}
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	pool, err := pg.Connect(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	if cfg.Database.MigrateOnStart {
		if err := pg.Migrate(ctx, pool, logger); err != nil {
			logger.Fatal().Err(err).Msg("migrate")
		}
	}

	// ---- Redis (optional) ----
	var (
		redisClient red.RedisClient
		locker      red.Locker
		limiter     usecase.RateLimiter
	)
	if cfg.Redis.URL != "" {
		c, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
		defer c.Close()
		redisClient = c
		locker = red.NewLocker(c)
		limiter = red.NewRateLimiter(c)
	} else {
		logger.Warn().Msg("redis.url empty: plan cache, sweep lock and login throttling disabled")
	}

	// ---- Use cases ----
	settings := usecase.SettingsFromConfig(cfg)
	core := application.NewCore(application.PostgresStores(pool, redisClient, cfg.Redis.TTL, logger), limiter, settings, logger)

	// ---- Answer pipeline (external; metered here) ----
	answerer := aiAdapters.NewMeteredAnswerer(
		aiAdapters.NewLimitedAnswerer(aiAdapters.NewNoopAnswerer(), maxConcurrentAnswers),
		core.Quota,
	)

	// ---- Background jobs ----
	expiry := sched.NewExpiryWorker(cfg.Scheduler.ExpiryInterval, core.Sweep, locker, cfg.Scheduler.LockTTL, logger)
	go func() { _ = expiry.Run(ctx) }()
	if cfg.Scheduler.RebuildInterval > 0 {
		rec := sched.NewCacheReconciler(core.Sweep, locker, cfg.Scheduler.RebuildInterval, cfg.Scheduler.LockTTL, logger)
		go rec.Start(ctx)
	}
	go pg.ReportPoolStats(ctx, pool, 15*time.Second)

	// ---- HTTP ----
	srv := api.NewServer(api.Deps{
		Plans:    core.Plans,
		Coupons:  core.Coupons,
		Subs:     core.Subs,
		Payments: core.Payments,
		Sweep:    core.Sweep,
		Quota:    core.Quota,
		Auth:     core.Auth,
		Answerer: answerer,
		Tokens:   api.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL),
		Messages: i18n.MustLoadEmbedded(),
	}, cfg.HTTP, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			cancel()
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
		logger.Info().Msg("shutdown requested")
	case <-ctx.Done():
	}
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
}
