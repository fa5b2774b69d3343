package weather

import (
	"context"
	"fmt"

	"agroadvisor/pkg/circuitbreaker"
)

// BreakerProvider shields a provider behind a circuit breaker so a
// failing upstream is skipped quickly instead of timing out every
// district in the poll loop.
type BreakerProvider struct {
	provider Provider
	cb       *circuitbreaker.Wrapper
}

func NewBreakerProvider(provider Provider, cfg circuitbreaker.Config) *BreakerProvider {
	return &BreakerProvider{
		provider: provider,
		cb:       circuitbreaker.NewWrapper(cfg),
	}
}

func (p *BreakerProvider) Name() string {
	return p.provider.Name()
}

func (p *BreakerProvider) Fetch(ctx context.Context, district string) (*Snapshot, error) {
	result, err := p.cb.ExecuteWithContext(ctx, func() (interface{}, error) {
		return p.provider.Fetch(ctx, district)
	})

	p.cb.RecordRequest(err == nil)

	if err != nil {
		if p.cb.IsOpen() {
			return nil, fmt.Errorf("circuit breaker is open for provider %s: %w", p.Name(), err)
		}
		return nil, err
	}

	snapshot, ok := result.(*Snapshot)
	if !ok || snapshot == nil {
		return nil, fmt.Errorf("provider %s returned invalid result", p.Name())
	}

	return snapshot, nil
}

func (p *BreakerProvider) Available() bool {
	return !p.cb.IsOpen()
}
