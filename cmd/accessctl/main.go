package main

import (
	"context"
	"fmt"
	"os"

	"edu-access-core/internal/application"
	"edu-access-core/internal/config"
	pg "edu-access-core/internal/infra/db/postgres"
	"edu-access-core/internal/infra/logging"
	"edu-access-core/internal/usecase"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	GitCommit = "none"
)

var (
	configPath string
	devMode    bool
)

var rootCmd = &cobra.Command{
	Use:           "accessctl",
	Short:         "Operate the entitlement core",
	Long:          `Run migrations, seed the catalog and perform staff actions against the database.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "accessctl %s (commit %s)\n", Version, GitCommit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config yaml")
	rootCmd.PersistentFlags().BoolVar(&devMode, "dev", false, "development mode")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// env is what every database-backed command needs.
type env struct {
	cfg  *config.Config
	log  *zerolog.Logger
	pool *pgxpool.Pool
	core *application.Core
}

func (e *env) Close() { e.pool.Close() }

// openEnv loads config and connects to Postgres. Redis is not used by the CLI.
func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load(configPath, devMode)
	if err != nil {
		return nil, err
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	pool, err := pg.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	core := application.NewCore(application.PostgresStores(pool, nil, 0, logger), nil, usecase.SettingsFromConfig(cfg), logger)
	return &env{cfg: cfg, log: logger, pool: pool, core: core}, nil
}
