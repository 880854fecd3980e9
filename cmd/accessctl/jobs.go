package main

import (
	"fmt"
	"strings"
	"time"

	"edu-access-core/internal/domain/model"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Expire lapsed grants and clear stale user caches",
	Long:  `Run one expiration sweep. Safe to schedule from cron; overlapping runs are harmless.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()
		res, err := e.core.Sweep.Sweep(cmd.Context(), time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "expired=%d caches_cleared=%d pending_expired=%d payments_closed=%d\n",
			res.Expired, res.CachesCleared, res.PendingExpired, res.PaymentsClosed)
		return nil
	},
}

var rebuildCacheCmd = &cobra.Command{
	Use:   "rebuild-cache",
	Short: "Recompute every user's cached subscription fields",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()
		n, err := e.core.Sweep.RebuildCaches(cmd.Context(), time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d user(s) updated\n", n)
		return nil
	},
}

var confirmStatus string

var confirmPaymentCmd = &cobra.Command{
	Use:   "confirm-payment <payment-id>",
	Short: "Record a staff decision on a payment",
	Example: `  accessctl confirm-payment 01J9Z3X6V1Q8 --status paid
  accessctl confirm-payment 01J9Z3X6V1Q8 --status failed`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := model.ParsePaymentStatus(strings.ToLower(strings.TrimSpace(confirmStatus)))
		if err != nil {
			return fmt.Errorf("--status: %w", err)
		}
		e, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()
		p, err := e.core.Payments.Confirm(cmd.Context(), args[0], st)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "payment %s is %s\n", p.ID, p.Status)
		return nil
	},
}

func init() {
	confirmPaymentCmd.Flags().StringVar(&confirmStatus, "status", "paid", "new status: paid|failed|cancelled")
	rootCmd.AddCommand(sweepCmd, rebuildCacheCmd, confirmPaymentCmd)
}
