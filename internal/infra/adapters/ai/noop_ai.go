package ai

import (
	"context"
	"fmt"
	"time"

	"edu-access-core/internal/domain/ports/adapter"
)

var _ adapter.Answerer = (*NoopAnswerer)(nil)

// NoopAnswerer stands in for the answer pipeline in local runs and the demo.
type NoopAnswerer struct {
	Delay time.Duration
}

func NewNoopAnswerer() *NoopAnswerer {
	return &NoopAnswerer{Delay: 10 * time.Millisecond}
}

func (a *NoopAnswerer) Answer(ctx context.Context, q adapter.Question) (adapter.Answer, error) {
	select {
	case <-time.After(a.Delay):
	case <-ctx.Done():
		return adapter.Answer{}, ctx.Err()
	}
	return adapter.Answer{
		Text:      fmt.Sprintf("noop answer to %q", q.Text),
		Citations: q.Sources,
	}, nil
}
