package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"edu-access-core/internal/domain"
	"edu-access-core/internal/domain/ports/repository"
)

const uniqueViolation = "23505"

type executor interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

func getExecutor(pool *pgxpool.Pool, tx repository.Tx) (executor, error) {
	switch v := tx.(type) {
	case pgx.Tx:
		return v, nil
	case *pgxpool.Conn:
		return v, nil
	case *pgxpool.Pool:
		return v, nil
	case nil:
		if pool != nil {
			return pool, nil
		}
		return nil, domain.ErrInvalidArgument
	default:
		return nil, domain.ErrInvalidExecContext
	}
}

// inTx reports whether tx is a real transaction, i.e. row locks are meaningful.
func inTx(tx repository.Tx) bool {
	_, ok := tx.(pgx.Tx)
	return ok
}

// forUpdate appends a row lock to q when running inside a transaction.
func forUpdate(q string, tx repository.Tx) string {
	if inTx(tx) {
		return q + " FOR UPDATE"
	}
	return q
}

func execSQL(ctx context.Context, pool *pgxpool.Pool, tx repository.Tx, q string, args ...interface{}) (pgconn.CommandTag, error) {
	ex, err := getExecutor(pool, tx)
	if err != nil {
		return nil, err
	}
	return ex.Exec(ctx, q, args...)
}

func pickRow(ctx context.Context, pool *pgxpool.Pool, tx repository.Tx, q string, args ...interface{}) (pgx.Row, error) {
	ex, err := getExecutor(pool, tx)
	if err != nil {
		return nil, err
	}
	return ex.QueryRow(ctx, q, args...), nil
}

func queryRows(ctx context.Context, pool *pgxpool.Pool, tx repository.Tx, q string, args ...interface{}) (pgx.Rows, error) {
	ex, err := getExecutor(pool, tx)
	if err != nil {
		return nil, err
	}
	return ex.Query(ctx, q, args...)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// mapErr converts driver errors into domain errors. Exec-context errors pass through.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return domain.ErrNotFound
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrInvalidExecContext):
		return err
	case isUniqueViolation(err):
		return domain.ErrAlreadyExists
	default:
		return err
	}
}
