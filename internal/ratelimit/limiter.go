package ratelimit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"stats-service/internal/models"
)

// Tier is an immutable rate-limit configuration. Each named tier has an
// independent counter namespace.
type Tier struct {
	Window      time.Duration
	MaxRequests int
}

// DefaultTiers covers the endpoint groups exposed by the service.
var DefaultTiers = map[string]Tier{
	"general":   {Window: time.Minute, MaxRequests: 120},
	"auth":      {Window: time.Minute, MaxRequests: 10},
	"messaging": {Window: time.Minute, MaxRequests: 30},
	"profile":   {Window: time.Minute, MaxRequests: 60},
	"strict":    {Window: time.Minute, MaxRequests: 3},
}

// Limiter enforces tiered fixed-window rate limits keyed by identifier.
type Limiter struct {
	store  *windowStore
	tiers  map[string]Tier
	logger *zap.Logger
	clock  func() time.Time
}

// NewLimiter validates the tier set and builds a limiter around a fresh
// window store. A nil tier map falls back to DefaultTiers.
func NewLimiter(tiers map[string]Tier, logger *zap.Logger) (*Limiter, error) {
	if tiers == nil {
		tiers = DefaultTiers
	}
	for name, tier := range tiers {
		if tier.MaxRequests <= 0 {
			return nil, fmt.Errorf("tier %q: max requests must be positive, got %d", name, tier.MaxRequests)
		}
		if tier.Window <= 0 {
			return nil, fmt.Errorf("tier %q: window must be positive, got %s", name, tier.Window)
		}
	}

	return &Limiter{
		store:  newWindowStore(),
		tiers:  tiers,
		logger: logger,
		clock:  time.Now,
	}, nil
}

// Check records one request for identifier within the named tier and decides
// whether it may proceed. The increment is atomic, so at most MaxRequests
// calls are allowed within any single window.
func (l *Limiter) Check(identifier, tierName string) (models.RateLimitDecision, error) {
	tier, ok := l.tiers[tierName]
	if !ok {
		return models.RateLimitDecision{}, fmt.Errorf("unknown rate limit tier: %q", tierName)
	}

	now := l.clock()
	count, resetAt := l.store.Increment(tierName+":"+identifier, now, tier.Window)

	decision := models.RateLimitDecision{
		Allowed: count <= tier.MaxRequests,
		Limit:   tier.MaxRequests,
		ResetAt: resetAt,
	}
	if remaining := tier.MaxRequests - count; remaining > 0 {
		decision.Remaining = remaining
	}
	if !decision.Allowed {
		decision.RetryAfterSeconds = int((resetAt.Sub(now) + time.Second - 1) / time.Second)
		l.logger.Debug("rate limit exceeded",
			zap.String("identifier", identifier),
			zap.String("tier", tierName),
			zap.Int("count", count),
			zap.Int("limit", tier.MaxRequests),
			zap.Int("retry_after_seconds", decision.RetryAfterSeconds))
	}

	return decision, nil
}

// Sweep drops idle expired windows to bound memory.
func (l *Limiter) Sweep() int {
	return l.store.Sweep(l.clock())
}

// StartSweeper runs Sweep on the given interval until ctx is cancelled.
func (l *Limiter) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := l.Sweep(); removed > 0 {
					l.logger.Debug("swept expired rate windows", zap.Int("removed", removed))
				}
			}
		}
	}()
}

// WindowCount reports the number of live windows, for stats endpoints.
func (l *Limiter) WindowCount() int {
	return l.store.Len()
}
