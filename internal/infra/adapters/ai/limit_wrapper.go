package ai

import (
	"context"

	"edu-access-core/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.Answerer = (*limitedAnswerer)(nil)

type limitedAnswerer struct {
	inner adapter.Answerer
	sem   chan struct{}
}

// NewLimitedAnswerer caps in-flight calls to inner. maxConcurrent <= 0 disables the cap.
func NewLimitedAnswerer(inner adapter.Answerer, maxConcurrent int) adapter.Answerer {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedAnswerer{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedAnswerer) Answer(ctx context.Context, q adapter.Question) (adapter.Answer, error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return adapter.Answer{}, ctx.Err()
	}
	defer func() { <-l.sem }()
	return l.inner.Answer(ctx, q)
}
