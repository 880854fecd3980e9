package repository

import (
	"context"
	"time"

	"edu-access-core/internal/domain/model"
)

// PaymentRepository is the port for out-of-band payment records.
type PaymentRepository interface {
	// Save inserts a payment. A notes_code collision returns domain.ErrDuplicateNotesCode.
	Save(ctx context.Context, tx Tx, p *model.Payment) error
	// FindByID loads a payment. With a tx the row is locked.
	FindByID(ctx context.Context, tx Tx, id string) (*model.Payment, error)
	FindByNotesCode(ctx context.Context, tx Tx, code string) (*model.Payment, error)
	ListByUser(ctx context.Context, tx Tx, userID string) ([]*model.Payment, error)
	UpdateStatus(ctx context.Context, tx Tx, id string, status model.PaymentStatus, paidAt *time.Time) error
	// CancelIfPending cancels the given payments that are still PENDING.
	CancelIfPending(ctx context.Context, tx Tx, ids []string) (int64, error)
}
