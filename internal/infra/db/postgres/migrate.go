package postgres

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jackc/pgx/v4/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies the embedded schema migrations. goose needs database/sql,
// so a stdlib handle is opened from the pool's connection config.
func Migrate(ctx context.Context, pool *pgxpool.Pool, logger *zerolog.Logger) error {
	db := stdlib.OpenDB(*pool.Config().ConnConfig)
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn().Err(err).Msg("close migration connection")
		}
	}()

	l := logger.With().Str("component", "migrate").Logger()
	goose.SetLogger(gooseLogger{log: &l})
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// MigrationStatus logs the applied state of every embedded migration.
func MigrationStatus(ctx context.Context, pool *pgxpool.Pool, logger *zerolog.Logger) error {
	db := stdlib.OpenDB(*pool.Config().ConnConfig)
	defer db.Close()

	goose.SetLogger(gooseLogger{log: logger})
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.StatusContext(ctx, db, "migrations")
}

// gooseLogger routes goose output through zerolog.
type gooseLogger struct{ log *zerolog.Logger }

func (g gooseLogger) Fatalf(format string, v ...interface{}) {
	g.log.Error().Msgf(format, v...)
}

func (g gooseLogger) Printf(format string, v ...interface{}) {
	g.log.Info().Msgf(format, v...)
}
