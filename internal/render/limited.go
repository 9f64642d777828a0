package render

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/listing-sync/internal/model"
)

// AdaptiveLimiter wraps a rate.Limiter with adaptive rate adjustment.
// On success it increases the rate by 20% (up to 2x initial).
// On a rate-limited render it halves the rate (down to initial/4 minimum).
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	maxRate     rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates an adaptive rate limiter that auto-tunes.
func NewAdaptiveLimiter(initialRate rate.Limit, burst int) *AdaptiveLimiter {
	if burst < 1 {
		burst = 1
	}
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(initialRate, burst),
		maxRate:     initialRate * 2,
		minRate:     initialRate / 4,
		currentRate: initialRate,
	}
}

// Wait blocks until the limiter allows an event.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess increases the rate by 20%, up to 2x initial.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentRate = min(a.currentRate*1.2, a.maxRate)
	a.limiter.SetLimit(a.currentRate)
}

// OnRateLimit halves the rate.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentRate = max(a.currentRate*0.5, a.minRate)
	a.limiter.SetLimit(a.currentRate)
	zap.L().Warn("render: reducing render rate after rate limit",
		zap.Float64("new_rate", float64(a.currentRate)),
	)
}

// Limit returns the current rate limit.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

// Limited throttles calls to the wrapped client. One Limited is shared by
// every run that talks to the same rendering service.
type Limited struct {
	next    Client
	limiter *AdaptiveLimiter
}

// NewLimited wraps next with limiter.
func NewLimited(next Client, limiter *AdaptiveLimiter) *Limited {
	return &Limited{next: next, limiter: limiter}
}

// Name implements Client.
func (l *Limited) Name() string { return l.next.Name() }

// Render implements Client.
func (l *Limited) Render(ctx context.Context, req Request) Outcome {
	if err := l.limiter.Wait(ctx); err != nil {
		return Outcome{
			Reason: model.FailureCanceled,
			Err:    eris.Wrap(err, "render: wait for rate limiter"),
		}
	}

	out := l.next.Render(ctx, req)
	switch out.Reason {
	case model.FailureRateLimited:
		l.limiter.OnRateLimit()
	case model.FailureNone:
		l.limiter.OnSuccess()
	}
	return out
}
