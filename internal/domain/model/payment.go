package model

import (
	"time"

	"edu-access-core/internal/domain"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"   // awaiting staff review of the transfer
	PaymentStatusPaid      PaymentStatus = "paid"      // confirmed by staff; terminal
	PaymentStatusFailed    PaymentStatus = "failed"    // transfer not found; may be retried manually
	PaymentStatusCancelled PaymentStatus = "cancelled" // abandoned by user, staff or the stale-pending sweep
)

// ParsePaymentStatus validates a status received from a caller.
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch st := PaymentStatus(s); st {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusCancelled:
		return st, nil
	}
	return "", domain.ErrInvalidArgument
}

// Payment records one out-of-band payment attempt. NotesCode is the
// reference the payer quotes in the bank transfer.
type Payment struct {
	ID           string // ULID
	UserID       string
	PlanID       string
	DiscountCode *string
	FinalPrice   decimal.Decimal
	Status       PaymentStatus
	NotesCode    string
	ReferenceNo  *string
	UserNote     *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	PaidAt       *time.Time
}

// IsPaid reports whether the payment reached its terminal PAID state.
func (p *Payment) IsPaid() bool { return p.Status == PaymentStatusPaid }
