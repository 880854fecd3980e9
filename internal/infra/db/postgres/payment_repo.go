package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"edu-access-core/internal/domain"
	"edu-access-core/internal/domain/model"
	"edu-access-core/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct {
	pool *pgxpool.Pool
}

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const paymentSelect = `
SELECT id, user_id, plan_id, discount_code, final_price, status, notes_code, reference_no, user_note,
       created_at, updated_at, paid_at
  FROM payments`

func scanPayment(row pgx.Row) (*model.Payment, error) {
	var p model.Payment
	var status string
	if err := row.Scan(&p.ID, &p.UserID, &p.PlanID, &p.DiscountCode, &p.FinalPrice, &status, &p.NotesCode,
		&p.ReferenceNo, &p.UserNote, &p.CreatedAt, &p.UpdatedAt, &p.PaidAt); err != nil {
		return nil, mapErr(err)
	}
	p.Status = model.PaymentStatus(status)
	return &p, nil
}

func (r *paymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	const q = `
INSERT INTO payments (id, user_id, plan_id, discount_code, final_price, status, notes_code, reference_no, user_note, created_at, updated_at, paid_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12);`
	_, err := execSQL(ctx, r.pool, tx, q, p.ID, p.UserID, p.PlanID, p.DiscountCode, p.FinalPrice, string(p.Status),
		p.NotesCode, p.ReferenceNo, p.UserNote, p.CreatedAt, p.UpdatedAt, p.PaidAt)
	if err != nil {
		if isUniqueViolation(err) {
			return uniqueToPaymentErr(err)
		}
		return fmt.Errorf("save payment: %w", mapErr(err))
	}
	return nil
}

func (r *paymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	row, err := pickRow(ctx, r.pool, tx, forUpdate(paymentSelect+` WHERE id = $1`, tx), id)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

func (r *paymentRepo) FindByNotesCode(ctx context.Context, tx repository.Tx, code string) (*model.Payment, error) {
	row, err := pickRow(ctx, r.pool, tx, paymentSelect+` WHERE notes_code = $1`, code)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

func (r *paymentRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Payment, error) {
	rows, err := queryRows(ctx, r.pool, tx, paymentSelect+` WHERE user_id = $1 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []*model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *paymentRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.PaymentStatus, paidAt *time.Time) error {
	const q = `UPDATE payments SET status=$2, paid_at=COALESCE($3, paid_at), updated_at=NOW() WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, string(status), paidAt)
	if err != nil {
		return fmt.Errorf("update payment status: %w", mapErr(err))
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *paymentRepo) CancelIfPending(ctx context.Context, tx repository.Tx, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	const q = `UPDATE payments SET status='cancelled', updated_at=NOW() WHERE id = ANY($1) AND status='pending';`
	tag, err := execSQL(ctx, r.pool, tx, q, ids)
	if err != nil {
		return 0, fmt.Errorf("cancel pending payments: %w", mapErr(err))
	}
	return tag.RowsAffected(), nil
}

// uniqueToPaymentErr tells a notes_code collision apart from a duplicate id.
func uniqueToPaymentErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.Contains(pgErr.ConstraintName, "notes_code") {
		return domain.ErrDuplicateNotesCode
	}
	return domain.ErrAlreadyExists
}
