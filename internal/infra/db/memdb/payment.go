package memdb

import (
	"context"
	"sort"
	"time"

	"edu-access-core/internal/domain"
	"edu-access-core/internal/domain/model"
	"edu-access-core/internal/domain/ports/repository"
)

type paymentRepo struct{ s *Store }

var _ repository.PaymentRepository = (*paymentRepo)(nil)

func (r *paymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.t.payments[p.ID]; ok {
		return domain.ErrAlreadyExists
	}
	for _, other := range r.s.t.payments {
		if other.NotesCode == p.NotesCode {
			return domain.ErrDuplicateNotesCode
		}
	}
	r.s.t.payments[p.ID] = copyPayment(p)
	return nil
}

func (r *paymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.t.payments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyPayment(p), nil
}

func (r *paymentRepo) FindByNotesCode(ctx context.Context, tx repository.Tx, code string) (*model.Payment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, p := range r.s.t.payments {
		if p.NotesCode == code {
			return copyPayment(p), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *paymentRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Payment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*model.Payment
	for _, p := range r.s.t.payments {
		if p.UserID == userID {
			out = append(out, copyPayment(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *paymentRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.PaymentStatus, paidAt *time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.t.payments[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.Status = status
	p.UpdatedAt = time.Now()
	if paidAt != nil {
		p.PaidAt = copyTime(paidAt)
	}
	return nil
}

func (r *paymentRepo) CancelIfPending(ctx context.Context, tx repository.Tx, ids []string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, id := range ids {
		if p, ok := r.s.t.payments[id]; ok && p.Status == model.PaymentStatusPending {
			p.Status = model.PaymentStatusCancelled
			p.UpdatedAt = time.Now()
			n++
		}
	}
	return n, nil
}
