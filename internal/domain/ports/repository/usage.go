package repository

import (
	"context"
	"time"
)

// UsageRepository is the port for the per-user per-day AI call counter.
type UsageRepository interface {
	// GetOrCreate returns today's count, creating a zero row on first use.
	GetOrCreate(ctx context.Context, tx Tx, userID string, day time.Time) (int, error)
	// IncrementIfBelow adds n to the counter only while count+n <= limit and
	// returns the new count and whether the increment happened.
	IncrementIfBelow(ctx context.Context, tx Tx, userID string, day time.Time, n, limit int) (int, bool, error)
}
