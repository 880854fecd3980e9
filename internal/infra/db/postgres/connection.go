package postgres

import (
	"context"
	"fmt"
	"time"

	"edu-access-core/internal/infra/metrics"

	"github.com/jackc/pgx/v4/pgxpool"
)

// Connect returns a live *pgxpool.Pool for dsn. The first ping must succeed within five seconds.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database url is required")
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := pgxpool.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.Connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// ReportPoolStats publishes pool gauges every interval until ctx ends.
func ReportPoolStats(ctx context.Context, pool *pgxpool.Pool, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		st := pool.Stat()
		metrics.SetDBPoolStats(st.TotalConns(), st.IdleConns(), st.AcquiredConns())
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
