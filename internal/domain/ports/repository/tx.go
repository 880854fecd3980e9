package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager runs fn inside a storage transaction and hands the
// transaction handle to fn as tx.
//
// Every multi-row mutation of the entitlement core (coupon redemption plus
// grant creation, payment confirmation plus activation plus cache update,
// quota increment) goes through WithTx so it either commits fully or not at all.
//
// The concrete type of tx is infra-defined (pgx.Tx for Postgres, a marker for
// the in-memory store). Repositories MUST accept NoTX for the non-transactional
// path and SHOULD lock rows (SELECT ... FOR UPDATE) when given a real tx.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
