package ai

import (
	"context"

	"edu-access-core/internal/domain/ports/adapter"
	"edu-access-core/internal/usecase"
)

// Compile-time check
var _ adapter.Answerer = (*meteredAnswerer)(nil)

// meteredAnswerer charges one unit of the caller's daily AI quota per
// successful answer. Failed calls are not charged.
type meteredAnswerer struct {
	inner adapter.Answerer
	quota usecase.QuotaUseCase
}

func NewMeteredAnswerer(inner adapter.Answerer, quota usecase.QuotaUseCase) adapter.Answerer {
	return &meteredAnswerer{inner: inner, quota: quota}
}

func (m *meteredAnswerer) Answer(ctx context.Context, q adapter.Question) (adapter.Answer, error) {
	var out adapter.Answer
	err := m.quota.Gate(ctx, q.UserID, func(ctx context.Context) error {
		a, err := m.inner.Answer(ctx, q)
		if err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return adapter.Answer{}, err
	}
	return out, nil
}
