package strategies

import (
	"context"
	"fmt"
	"time"

	"github.com/ShabariRepo/bonito-sub002/internal/logging"
	"github.com/ShabariRepo/bonito-sub002/providers"
)

// retrySchedule is the capped backoff between retries of the same target:
// a quick first retry, then a longer one, before the strategy gives up on
// that target and advances to the next one.
var retrySchedule = []time.Duration{100 * time.Millisecond, 500 * time.Millisecond}

// Fallback tries each target in order, moving to the next on failure. A
// transient failure is retried in place on retrySchedule; a permanent,
// client-origin failure short-circuits straight to the next target instead
// of spending the retry budget on it.
type Fallback struct {
	targets []Target
	lookup  ProviderLookup
}

// NewFallback creates a new fallback strategy.
func NewFallback(targets []Target, lookup ProviderLookup) *Fallback {
	return &Fallback{targets: targets, lookup: lookup}
}

// WithMaxRetries is kept for source compatibility with callers configured
// before retry counts became error-category driven; it is now a no-op.
func (f *Fallback) WithMaxRetries(int) *Fallback {
	return f
}

// Execute attempts each provider in order, retrying a transient failure on
// the same target before moving on, and skipping straight past a permanent
// one.
func (f *Fallback) Execute(ctx context.Context, req providers.Request) (*providers.Response, error) {
	if len(f.targets) == 0 {
		return nil, fmt.Errorf("no targets configured for fallback")
	}

	var lastErr error
	for _, target := range f.targets {
		p, ok := f.lookup(target.VirtualKey)
		if !ok {
			logging.Logger.Warn("provider not found, skipping", "provider", target.VirtualKey)
			lastErr = fmt.Errorf("provider not found: %s", target.VirtualKey)
			continue
		}
		if !p.SupportsModel(req.Model) {
			continue
		}

		resp, err := f.tryWithRetry(ctx, p, target.VirtualKey, req)
		if err == nil {
			return resp, nil
		}
		lastErr = fmt.Errorf("provider %s: %w", target.VirtualKey, err)
		if providers.IsPermanent(err) {
			break
		}
	}

	return nil, fmt.Errorf("all providers failed: %w", lastErr)
}

// tryWithRetry calls p once, then retries on retrySchedule as long as each
// failure is categorised transient or rate-limited-upstream.
func (f *Fallback) tryWithRetry(ctx context.Context, p providers.Provider, name string, req providers.Request) (*providers.Response, error) {
	resp, err := p.Complete(ctx, req)
	for _, backoff := range retrySchedule {
		if err == nil || !providers.IsRetryable(err) {
			return resp, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		logging.Logger.Info("retrying provider", "provider", name)
		resp, err = p.Complete(ctx, req)
	}
	return resp, err
}
