package main

import (
	"fmt"

	pg "edu-access-core/internal/infra/db/postgres"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()
		return pg.Migrate(cmd.Context(), e.pool, e.log)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migration status",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()
		return pg.MigrationStatus(cmd.Context(), e.pool, e.log)
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the default plan catalog",
	Long:  `Create the basic, premium and advanced plans. Existing plans are left untouched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()
		n, err := e.core.SeedCatalog(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d plan(s) created\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd, statusCmd, seedCmd)
}
