package usecase

import (
	"context"
	"time"
)

// SweepResult summarizes one pass of the expiration sweep.
type SweepResult struct {
	Expired        int64
	CachesCleared  int64
	PendingExpired int64
	PaymentsClosed int64
}

// Sweeper is what background workers and the CLI need from the subscription core.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (SweepResult, error)
}
