// Package retry wraps a crawler.Fetcher with retry and backoff.
package retry

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/wikicrawler/internal/crawler"
)

// Fetcher retries transient failures of the wrapped fetcher.
type Fetcher struct {
	next   crawler.Fetcher
	policy Policy
	logger *zap.Logger
}

// New wraps next. A nil policy uses NewExponentialPolicy defaults.
func New(next crawler.Fetcher, policy Policy, logger *zap.Logger) *Fetcher {
	if policy == nil {
		policy = NewExponentialPolicy(0, 0, 0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{next: next, policy: policy, logger: logger.Named("retry")}
}

// Fetch calls the wrapped fetcher until it succeeds, the policy gives up or
// ctx ends. The last error is returned.
func (f *Fetcher) Fetch(ctx context.Context, key crawler.CanonicalKey) ([]byte, error) {
	for attempt := 1; ; attempt++ {
		body, err := f.next.Fetch(ctx, key)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil || !f.policy.ShouldRetry(err, attempt) {
			return nil, err
		}

		wait := f.policy.Backoff(attempt - 1)
		f.logger.Debug("retrying fetch",
			zap.String("key", key.String()),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("retry %s: %w", key, ctx.Err())
		case <-timer.C:
		}
	}
}
