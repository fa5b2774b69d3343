package weather

import (
	"context"
	"fmt"

	"agroadvisor/internal/logger"
	"agroadvisor/pkg/metrics"
	"agroadvisor/pkg/retry"
)

// Chain tries providers in order: the primary first, then each
// fallback. A provider behind an open circuit breaker fails fast and
// the chain moves on.
type Chain struct {
	providers []Provider
	policy    retry.Policy
	logger    logger.Logger
}

func NewChain(providers []Provider, policy retry.Policy, log logger.Logger) *Chain {
	return &Chain{
		providers: providers,
		policy:    policy,
		logger:    log,
	}
}

func (c *Chain) Fetch(ctx context.Context, district string) (*Snapshot, error) {
	if len(c.providers) == 0 {
		return nil, fmt.Errorf("no weather providers configured")
	}

	var lastErr error
	for i, provider := range c.providers {
		var snapshot *Snapshot
		err := retry.Retry(ctx, c.policy, func() error {
			var fetchErr error
			snapshot, fetchErr = provider.Fetch(ctx, district)
			return fetchErr
		})
		if err == nil {
			if i > 0 {
				metrics.ProviderFallbackTotal.WithLabelValues(provider.Name()).Inc()
				c.logger.InfowCtx(ctx, "Fallback provider served district",
					"provider", provider.Name(),
					"district", district,
				)
			}
			return snapshot, nil
		}

		lastErr = err
		c.logger.WarnwCtx(ctx, "Weather provider failed",
			"provider", provider.Name(),
			"district", district,
			"error", err,
		)
	}

	return nil, fmt.Errorf("all weather providers failed for district %s: %w", district, lastErr)
}

// Availability reports per-provider availability. Providers without a
// circuit breaker are always considered available.
func (c *Chain) Availability() map[string]bool {
	out := make(map[string]bool, len(c.providers))
	for _, p := range c.providers {
		if bp, ok := p.(*BreakerProvider); ok {
			out[p.Name()] = bp.Available()
			continue
		}
		out[p.Name()] = true
	}
	return out
}
