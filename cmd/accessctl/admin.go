package main

import (
	"fmt"
	"time"

	"edu-access-core/internal/domain/model"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	couponCode    string
	couponPercent int
	couponMaxUses int
	couponFrom    string
	couponTo      string
)

var couponCmd = &cobra.Command{
	Use:   "coupon",
	Short: "Coupon management commands",
}

var couponCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a percentage coupon",
	Example: `  accessctl coupon create --code SPRING20 --percent 20 --max-uses 100 \
    --valid-from 2025-03-01T00:00:00Z --valid-to 2025-03-31T23:59:59Z`,
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := parseOptionalTime(couponFrom)
		if err != nil {
			return fmt.Errorf("--valid-from: %w", err)
		}
		to, err := parseOptionalTime(couponTo)
		if err != nil {
			return fmt.Errorf("--valid-to: %w", err)
		}
		var maxUses *int
		if couponMaxUses > 0 {
			maxUses = &couponMaxUses
		}
		c, err := model.NewCoupon(uuid.NewString(), couponCode, couponPercent, from, to, maxUses)
		if err != nil {
			return err
		}

		e, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()
		if err := e.core.Coupons.Create(cmd.Context(), c); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "coupon %s created (%d%%)\n", c.Code, c.Percent)
		return nil
	},
}

var (
	userName     string
	userPassword string
	userStaff    bool
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Account management commands",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an account",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()
		u, err := e.core.Auth.CreateUser(cmd.Context(), userName, userPassword, userStaff)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "user %s created (id=%s staff=%t)\n", u.Username, u.ID, u.IsStaff)
		return nil
	},
}

// parseOptionalTime accepts RFC3339 or a bare date; empty means unset.
func parseOptionalTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid time %q", s)
}

func init() {
	couponCreateCmd.Flags().StringVar(&couponCode, "code", "", "coupon code (stored upper-case)")
	couponCreateCmd.Flags().IntVar(&couponPercent, "percent", 0, "discount percent, 0-100")
	couponCreateCmd.Flags().IntVar(&couponMaxUses, "max-uses", 0, "global usage cap; 0 means unlimited")
	couponCreateCmd.Flags().StringVar(&couponFrom, "valid-from", "", "start of validity window")
	couponCreateCmd.Flags().StringVar(&couponTo, "valid-to", "", "end of validity window")
	_ = couponCreateCmd.MarkFlagRequired("code")
	couponCmd.AddCommand(couponCreateCmd)

	userCreateCmd.Flags().StringVar(&userName, "username", "", "login name")
	userCreateCmd.Flags().StringVar(&userPassword, "password", "", "password, at least 8 characters")
	userCreateCmd.Flags().BoolVar(&userStaff, "staff", false, "grant staff privileges")
	_ = userCreateCmd.MarkFlagRequired("username")
	_ = userCreateCmd.MarkFlagRequired("password")
	userCmd.AddCommand(userCreateCmd)

	rootCmd.AddCommand(couponCmd, userCmd)
}
