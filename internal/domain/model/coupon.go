package model

import (
	"strings"
	"time"

	"edu-access-core/internal/domain"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Coupon is a percentage discount code with an optional validity window
// and an optional global usage cap.
type Coupon struct {
	ID             string
	Code           string
	Percent        int
	ValidFrom      *time.Time
	ValidTo        *time.Time
	IsActive       bool
	MaxUsesTotal   *int // nil = unlimited
	UsedCountTotal int
	CreatedAt      time.Time
}

// NormalizeCouponCode trims and upper-cases a user-supplied code.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// NewCoupon validates and constructs a coupon.
func NewCoupon(id, code string, percent int, validFrom, validTo *time.Time, maxUses *int) (*Coupon, error) {
	code = NormalizeCouponCode(code)
	if id == "" || code == "" || percent < 0 || percent > 100 {
		return nil, domain.ErrInvalidArgument
	}
	if maxUses != nil && *maxUses < 0 {
		return nil, domain.ErrInvalidArgument
	}
	if validFrom != nil && validTo != nil && validTo.Before(*validFrom) {
		return nil, domain.ErrInvalidArgument
	}
	return &Coupon{
		ID:           id,
		Code:         code,
		Percent:      percent,
		ValidFrom:    validFrom,
		ValidTo:      validTo,
		IsActive:     true,
		MaxUsesTotal: maxUses,
		CreatedAt:    time.Now(),
	}, nil
}

// CheckUsable reports why the coupon cannot be redeemed at now, or nil.
// Both window bounds are inclusive.
func (c *Coupon) CheckUsable(now time.Time) error {
	if !c.IsActive {
		return domain.ErrCouponInactive
	}
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return domain.ErrCouponOutOfWindow
	}
	if c.ValidTo != nil && now.After(*c.ValidTo) {
		return domain.ErrCouponOutOfWindow
	}
	if c.MaxUsesTotal != nil && c.UsedCountTotal >= *c.MaxUsesTotal {
		return &domain.LimitError{Err: domain.ErrCouponUsageCapReached, Limit: *c.MaxUsesTotal, Used: c.UsedCountTotal}
	}
	return nil
}

// Apply returns base discounted by the coupon percentage.
func (c *Coupon) Apply(base decimal.Decimal) decimal.Decimal {
	return ApplyPercent(base, c.Percent)
}

// ApplyPercent computes base*(100-percent)/100 rounded half-up to 2 places, floored at 0.
func ApplyPercent(base decimal.Decimal, percent int) decimal.Decimal {
	final := base.Mul(decimal.NewFromInt(int64(100 - percent))).Div(hundred).Round(2)
	if final.IsNegative() {
		return decimal.Zero
	}
	return final
}
