package model

import (
	"strings"
	"time"

	"edu-access-core/internal/domain"

	"github.com/shopspring/decimal"
)

// Plan tier codes. PlanNone is the "no access" tier stored on users without a live grant.
const (
	PlanNone     = "none"
	PlanBasic    = "basic"
	PlanPremium  = "premium"
	PlanAdvanced = "advanced"
)

// Plan is a purchasable catalog row. The core never mutates plans.
type Plan struct {
	ID           string
	Code         string
	Name         string
	Price        decimal.Decimal
	DurationDays int
	IsActive     bool
	CreatedAt    time.Time
}

func (p *Plan) IsZero() bool { return p == nil || p.ID == "" }

// Duration returns the grant length for this plan.
func (p *Plan) Duration() time.Duration {
	return time.Duration(p.DurationDays) * 24 * time.Hour
}

// NormalizePlanCode lower-cases and trims a tier code; empty maps to PlanNone.
func NormalizePlanCode(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return PlanNone
	}
	return code
}

// NewPlan validates and constructs a plan.
func NewPlan(id, code, name string, price decimal.Decimal, durationDays int) (*Plan, error) {
	code = NormalizePlanCode(code)
	if id == "" || code == PlanNone || name == "" || durationDays <= 0 || price.IsNegative() {
		return nil, domain.ErrInvalidArgument
	}
	return &Plan{
		ID:           id,
		Code:         code,
		Name:         name,
		Price:        price,
		DurationDays: durationDays,
		IsActive:     true,
		CreatedAt:    time.Now(),
	}, nil
}
