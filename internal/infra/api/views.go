package api

import (
	"time"

	"edu-access-core/internal/domain/model"

	"github.com/shopspring/decimal"
)

type planView struct {
	ID           string          `json:"id"`
	Code         string          `json:"code"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	DurationDays int             `json:"duration_days"`
}

func toPlanView(p *model.Plan) planView {
	return planView{ID: p.ID, Code: p.Code, Name: p.Name, Price: p.Price, DurationDays: p.DurationDays}
}

type subscriptionView struct {
	ID         string                   `json:"id"`
	PlanCode   string                   `json:"plan_code"`
	Status     model.SubscriptionStatus `json:"status"`
	IsTrial    bool                     `json:"is_trial"`
	StartedAt  time.Time                `json:"started_at"`
	EndsAt     *time.Time               `json:"ends_at,omitempty"`
	CouponCode *string                  `json:"coupon_code,omitempty"`
	FinalPrice decimal.Decimal          `json:"final_price"`
	PaymentID  *string                  `json:"payment_id,omitempty"`
}

func toSubscriptionView(s *model.Subscription) subscriptionView {
	return subscriptionView{
		ID:         s.ID,
		PlanCode:   s.PlanCode,
		Status:     s.Status,
		IsTrial:    s.IsTrial,
		StartedAt:  s.StartedAt,
		EndsAt:     s.EndsAt,
		CouponCode: s.CouponCode,
		FinalPrice: s.FinalPrice,
		PaymentID:  s.PaymentID,
	}
}

type paymentView struct {
	ID           string              `json:"id"`
	UserID       string              `json:"user_id"`
	PlanID       string              `json:"plan_id"`
	DiscountCode *string             `json:"discount_code,omitempty"`
	FinalPrice   decimal.Decimal     `json:"final_price"`
	Status       model.PaymentStatus `json:"status"`
	NotesCode    string              `json:"notes_code"`
	ReferenceNo  *string             `json:"reference_no,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	PaidAt       *time.Time          `json:"paid_at,omitempty"`
}

func toPaymentView(p *model.Payment) paymentView {
	return paymentView{
		ID:           p.ID,
		UserID:       p.UserID,
		PlanID:       p.PlanID,
		DiscountCode: p.DiscountCode,
		FinalPrice:   p.FinalPrice,
		Status:       p.Status,
		NotesCode:    p.NotesCode,
		ReferenceNo:  p.ReferenceNo,
		CreatedAt:    p.CreatedAt,
		PaidAt:       p.PaidAt,
	}
}

type userView struct {
	ID           string  `json:"id"`
	Username     string  `json:"username"`
	IsStaff      bool    `json:"is_staff"`
	ActiveDevice *string `json:"active_device,omitempty"`
}

func toUserView(u *model.User) userView {
	return userView{ID: u.ID, Username: u.Username, IsStaff: u.IsPrivileged(), ActiveDevice: u.ActiveDevice}
}

func mapSlice[T, V any](in []T, f func(T) V) []V {
	out := make([]V, 0, len(in))
	for _, v := range in {
		out = append(out, f(v))
	}
	return out
}
