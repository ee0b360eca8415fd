package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/ShabariRepo/bonito-sub002/internal/sharedcache"
)

// windowTTL is the cache entry's time-to-live, set once on a window's
// first increment (spec §4.3: set_ttl(k, 120 seconds)). It is twice the
// 60-second window so the counter survives clock skew between replicas
// and still expires naturally instead of needing an explicit delete.
const windowTTL = 120 * time.Second

// FixedWindowLimiter enforces a per-key requests-per-minute quota using a
// fixed 60-second window keyed by floor(now/60), backed by a shared cache
// so the count stays correct across replicas. The counter for a window is
// created by its first increment, which also sets the window's TTL; later
// increments in the same window never refresh it, so the window expires
// on schedule regardless of how much traffic it saw.
type FixedWindowLimiter struct {
	cache sharedcache.Client
}

// NewFixedWindowLimiter builds a limiter backed by cache.
func NewFixedWindowLimiter(cache sharedcache.Client) *FixedWindowLimiter {
	return &FixedWindowLimiter{cache: cache}
}

// Decision reports the outcome of a rate limit check plus enough state for
// the caller to set RateLimit-Remaining/Reset response headers.
type Decision struct {
	Allowed   bool
	Count     int64
	Limit     int
	WindowEnd time.Time
}

// Allow increments keyID's counter for the current 60-second window and
// reports whether the request stays within limit requests/minute. limit
// <= 0 disables the check (always allowed, counter still incremented for
// observability).
func (l *FixedWindowLimiter) Allow(ctx context.Context, keyID string, limit int) (Decision, error) {
	now := time.Now().Unix()
	slot := now / 60
	cacheKey := fmt.Sprintf("ratelimit:%s:%d", keyID, slot)

	windowEnd := time.Unix((slot+1)*60, 0)

	n, err := l.cache.Incr(ctx, cacheKey, windowTTL)
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit incr: %w", err)
	}

	d := Decision{Count: n, Limit: limit, WindowEnd: windowEnd}
	d.Allowed = limit <= 0 || n <= int64(limit)
	return d, nil
}
