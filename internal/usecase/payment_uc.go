// File: internal/usecase/payment_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"edu-access-core/internal/domain"
	"edu-access-core/internal/domain/model"
	"edu-access-core/internal/domain/ports/repository"
	"edu-access-core/internal/infra/logging"
	"edu-access-core/internal/infra/metrics"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

const maxNotesCodeAttempts = 5

// CreatePaymentInput is what a payer submits. PlanCode wins over PlanID.
type CreatePaymentInput struct {
	UserID       string
	PlanCode     string
	PlanID       string
	DiscountCode string
	NotesCode    string
	ReferenceNo  string
	UserNote     string
}

// PaymentReceipt is returned to the payer after a payment is recorded.
type PaymentReceipt struct {
	Payment         *model.Payment
	Subscription    *model.Subscription
	InstructionsURL string
}

type PaymentUseCase interface {
	// Create records a PENDING payment and its PENDING grant in one transaction.
	Create(ctx context.Context, in CreatePaymentInput) (*PaymentReceipt, error)
	// Confirm applies a staff decision. Moving to PAID activates the linked grant;
	// re-applying the current status is a no-op.
	Confirm(ctx context.Context, paymentID string, status model.PaymentStatus) (*model.Payment, error)
	Get(ctx context.Context, paymentID string) (*model.Payment, error)
	ListByUser(ctx context.Context, userID string) ([]*model.Payment, error)
}

type paymentUC struct {
	payments repository.PaymentRepository
	plans    repository.PlanRepository
	subs     repository.SubscriptionRepository
	users    repository.UserRepository
	coupons  CouponUseCase
	tm       repository.TransactionManager
	settings Settings
	log      *zerolog.Logger
}

func NewPaymentUseCase(
	payments repository.PaymentRepository,
	plans repository.PlanRepository,
	subs repository.SubscriptionRepository,
	users repository.UserRepository,
	coupons CouponUseCase,
	tm repository.TransactionManager,
	settings Settings,
	logger *zerolog.Logger,
) *paymentUC {
	l := logger.With().Str("component", "PaymentUC").Logger()
	return &paymentUC{
		payments: payments,
		plans:    plans,
		subs:     subs,
		users:    users,
		coupons:  coupons,
		tm:       tm,
		settings: settings.withDefaults(),
		log:      &l,
	}
}

func (u *paymentUC) Create(ctx context.Context, in CreatePaymentInput) (*PaymentReceipt, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.Create")()
	if in.UserID == "" {
		return nil, domain.ErrInvalidArgument
	}

	var receipt *PaymentReceipt
	err := u.tm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, tx repository.Tx) error {
		if _, err := u.users.LockByID(ctx, tx, in.UserID); err != nil {
			return err
		}
		now := u.settings.Clock()

		plan, err := resolvePlan(ctx, u.plans, tx, in.PlanCode, in.PlanID)
		if err != nil {
			return err
		}

		notes, err := u.pickNotesCode(ctx, tx, in.NotesCode)
		if err != nil {
			return err
		}

		price := plan.Price
		var applied *string
		if model.NormalizeCouponCode(in.DiscountCode) != "" {
			c, err := u.coupons.Validate(ctx, tx, in.DiscountCode, in.UserID, now)
			if err != nil {
				return err
			}
			if err := u.coupons.Redeem(ctx, tx, c); err != nil {
				return err
			}
			price = c.Apply(plan.Price)
			code := c.Code
			applied = &code
		}

		p := &model.Payment{
			ID:           ulid.Make().String(),
			UserID:       in.UserID,
			PlanID:       plan.ID,
			DiscountCode: applied,
			FinalPrice:   price,
			Status:       model.PaymentStatusPending,
			NotesCode:    notes,
			ReferenceNo:  optional(in.ReferenceNo),
			UserNote:     optional(in.UserNote),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := u.payments.Save(ctx, tx, p); err != nil {
			return err
		}

		sub, err := model.NewPendingSubscription(uuid.NewString(), in.UserID, plan, now, price, applied, p.ID)
		if err != nil {
			return err
		}
		if err := u.subs.Save(ctx, tx, sub); err != nil {
			return fmt.Errorf("save pending subscription: %w", err)
		}

		receipt = &PaymentReceipt{Payment: p, Subscription: sub, InstructionsURL: u.instructionsURL(notes)}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.IncPayment(string(model.PaymentStatusPending))
	logging.With(ctx, u.log).Info().
		Str("payment_id", receipt.Payment.ID).
		Str("notes_code", receipt.Payment.NotesCode).
		Str("final_price", receipt.Payment.FinalPrice.StringFixed(2)).
		Msg("payment created")
	return receipt, nil
}

// pickNotesCode returns the caller's code when free, or a fresh random one.
func (u *paymentUC) pickNotesCode(ctx context.Context, tx repository.Tx, supplied string) (string, error) {
	if code := normalizeNotesCode(supplied); code != "" {
		taken, err := u.notesCodeTaken(ctx, tx, code)
		if err != nil {
			return "", err
		}
		if taken {
			return "", domain.ErrDuplicateNotesCode
		}
		return code, nil
	}
	for i := 0; i < maxNotesCodeAttempts; i++ {
		code, err := generateNotesCode()
		if err != nil {
			return "", err
		}
		taken, err := u.notesCodeTaken(ctx, tx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", fmt.Errorf("generate notes code: %w", domain.ErrOperationFailed)
}

func (u *paymentUC) notesCodeTaken(ctx context.Context, tx repository.Tx, code string) (bool, error) {
	_, err := u.payments.FindByNotesCode(ctx, tx, code)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (u *paymentUC) instructionsURL(notes string) string {
	base := strings.TrimSpace(u.settings.InstructionsURL)
	if base == "" {
		return ""
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := parsed.Query()
	q.Set("notes_code", notes)
	parsed.RawQuery = q.Encode()
	return parsed.String()
}

func (u *paymentUC) Confirm(ctx context.Context, paymentID string, status model.PaymentStatus) (*model.Payment, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.Confirm")()
	log := logging.With(ctx, u.log).With().Str("payment_id", paymentID).Str("status", string(status)).Logger()

	var (
		out       *model.Payment
		changed   bool
		activated *model.Subscription
		expired   int
	)
	err := u.tm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, tx repository.Tx) error {
		p, err := u.payments.FindByID(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		out = p
		if p.Status == status {
			return nil
		}
		if p.IsPaid() {
			return domain.ErrInvalidTransition
		}

		now := u.settings.Clock()
		if status == model.PaymentStatusPaid {
			p.PaidAt = &now
		}
		if err := u.payments.UpdateStatus(ctx, tx, p.ID, status, p.PaidAt); err != nil {
			return err
		}
		p.Status = status
		p.UpdatedAt = now
		changed = true

		if status != model.PaymentStatusPaid {
			return nil
		}
		sub, n, err := u.activateLinked(ctx, tx, p, log)
		activated, expired = sub, n
		return err
	})
	if err != nil {
		return nil, err
	}

	if !changed {
		log.Debug().Msg("payment already in requested status")
		return out, nil
	}
	metrics.IncPayment(string(status))
	if status == model.PaymentStatusPaid {
		metrics.AddPaymentRevenue(out.FinalPrice)
	}
	for i := 0; i < expired; i++ {
		metrics.IncTransition(model.SubscriptionStatusExpired, "supersede")
	}
	ev := log.Info().Int("superseded", expired)
	if activated != nil {
		metrics.IncTransition(model.SubscriptionStatusActive, "payment")
		ev = ev.Str("subscription_id", activated.ID)
	}
	ev.Msg("payment status changed")
	return out, nil
}

// activateLinked moves the payment's PENDING grant to ACTIVE. A missing or
// non-pending grant is logged and skipped so a payment is never activated twice.
func (u *paymentUC) activateLinked(ctx context.Context, tx repository.Tx, p *model.Payment, log zerolog.Logger) (*model.Subscription, int, error) {
	if _, err := u.users.LockByID(ctx, tx, p.UserID); err != nil {
		return nil, 0, err
	}
	sub, err := u.subs.FindByPaymentID(ctx, tx, p.ID)
	if errors.Is(err, domain.ErrNotFound) {
		log.Warn().Err(domain.ErrPaymentNotLinked).Msg("paid payment has no subscription; skipping activation")
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	if sub.Status != model.SubscriptionStatusPending {
		log.Warn().Str("subscription_id", sub.ID).Str("subscription_status", string(sub.Status)).
			Msg("linked subscription is not pending; skipping activation")
		return nil, 0, nil
	}

	plan, err := u.plans.FindByID(ctx, tx, sub.PlanID)
	if err != nil {
		return nil, 0, err
	}
	now := u.settings.Clock()

	g := grantStore{subs: u.subs, users: u.users}
	n, err := g.expireLive(ctx, tx, p.UserID, sub.ID, "", now)
	if err != nil {
		return nil, 0, err
	}

	if err := sub.TransitionTo(model.SubscriptionStatusActive); err != nil {
		return nil, 0, err
	}
	sub.StartedAt = now
	if sub.EndsAt == nil {
		ends := now.Add(plan.Duration())
		sub.EndsAt = &ends
	}
	sub.PlanCode = plan.Code
	if err := u.subs.Save(ctx, tx, sub); err != nil {
		return nil, 0, fmt.Errorf("activate subscription: %w", err)
	}
	if err := g.markLive(ctx, tx, sub); err != nil {
		return nil, 0, err
	}
	return sub, n, nil
}

func (u *paymentUC) Get(ctx context.Context, paymentID string) (*model.Payment, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.Get")()
	return u.payments.FindByID(ctx, repository.NoTX, paymentID)
}

func (u *paymentUC) ListByUser(ctx context.Context, userID string) ([]*model.Payment, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.ListByUser")()
	return u.payments.ListByUser(ctx, repository.NoTX, userID)
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
