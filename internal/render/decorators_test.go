package render

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"

	"github.com/sells-group/listing-sync/internal/model"
	"github.com/sells-group/listing-sync/internal/resilience"
	"github.com/sells-group/listing-sync/pkg/firecrawl"
)

func TestAdaptiveLimiter_Adjusts(t *testing.T) {
	t.Parallel()
	l := NewAdaptiveLimiter(4, 1)

	l.OnRateLimit()
	assert.InDelta(t, 2.0, float64(l.Limit()), 0.001)
	l.OnRateLimit()
	l.OnRateLimit()
	assert.InDelta(t, 1.0, float64(l.Limit()), 0.001, "floored at a quarter of the initial rate")

	for i := 0; i < 20; i++ {
		l.OnSuccess()
	}
	assert.InDelta(t, 8.0, float64(l.Limit()), 0.001, "capped at twice the initial rate")
}

func TestLimited_FeedsOutcomeBack(t *testing.T) {
	t.Parallel()
	stub := &stubClient{outcomes: []Outcome{{Reason: model.FailureRateLimited}}}
	limiter := NewAdaptiveLimiter(rate.Inf, 1)
	l := NewLimited(stub, limiter)

	out := l.Render(context.Background(), testRequest())
	assert.Equal(t, model.FailureRateLimited, out.Reason)
	assert.Equal(t, 1, stub.calls())
	assert.Equal(t, "stub", l.Name())
}

func TestLimited_CanceledWhileWaiting(t *testing.T) {
	t.Parallel()
	stub := &stubClient{}
	l := NewLimited(stub, NewAdaptiveLimiter(rate.Every(time.Hour), 1))

	// Drain the single burst token.
	_ = l.Render(context.Background(), testRequest())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := l.Render(ctx, testRequest())
	assert.Equal(t, model.FailureCanceled, out.Reason)
	assert.Equal(t, 1, stub.calls())
}

func TestGuarded_OpensOnTransportFailures(t *testing.T) {
	t.Parallel()
	stub := &stubClient{outcomes: []Outcome{{Reason: model.FailureTransport, Err: errors.New("connection refused")}}}
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Hour,
	})
	g := NewGuarded(stub, breaker)

	g.Render(context.Background(), testRequest())
	g.Render(context.Background(), testRequest())
	assert.Equal(t, resilience.CircuitOpen, breaker.State())

	out := g.Render(context.Background(), testRequest())
	assert.Equal(t, model.FailureTransport, out.Reason)
	assert.ErrorIs(t, out.Err, resilience.ErrCircuitOpen)
	assert.Equal(t, 2, stub.calls(), "open circuit must not reach the client")
}

func TestGuarded_RateLimitDoesNotTrip(t *testing.T) {
	t.Parallel()
	stub := &stubClient{outcomes: []Outcome{{Reason: model.FailureRateLimited}}}
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{FailureThreshold: 1})
	g := NewGuarded(stub, breaker)

	for i := 0; i < 3; i++ {
		g.Render(context.Background(), testRequest())
	}
	assert.Equal(t, resilience.CircuitClosed, breaker.State())
	assert.Equal(t, 3, stub.calls())
}

func TestTripsBreaker(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", context.DeadlineExceeded, true},
		{"timeout text", errors.New("scrape timed out after 30s"), true},
		{"connection refused", &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}, true},
		{"connection reset", fmt.Errorf("post: %w", syscall.ECONNRESET), true},
		{"dns", &net.DNSError{Err: "no such host", Name: "api.firecrawl.dev"}, true},
		{"service 503", &firecrawl.APIError{StatusCode: 503, Body: "unavailable"}, true},
		{"service 408", &firecrawl.APIError{StatusCode: 408}, true},
		{"bad key 401", &firecrawl.APIError{StatusCode: 401, Body: "invalid key"}, false},
		{"target 404", &firecrawl.APIError{StatusCode: 404}, false},
		{"other", errors.New("unexpected payload"), false},
		{"timeout sentinel", errServiceTimeout, true},
		{"transport sentinel", errServiceTransport, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TripsBreaker(tt.err))
		})
	}
}

func TestGuarded_ClientErrorsDoNotTrip(t *testing.T) {
	t.Parallel()
	stub := &stubClient{outcomes: []Outcome{{
		Reason: model.FailureTransport,
		Err:    &firecrawl.APIError{StatusCode: 401, Body: "invalid key"},
	}}}
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Hour,
		ShouldTrip:       TripsBreaker,
	})
	g := NewGuarded(stub, breaker)

	for i := 0; i < 3; i++ {
		g.Render(context.Background(), testRequest())
	}
	assert.Equal(t, resilience.CircuitClosed, breaker.State())
	assert.Equal(t, 3, stub.calls())
}

func TestGuarded_ServiceFailuresTrip(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		out  Outcome
	}{
		{"refused", Outcome{Reason: model.FailureTransport, Err: &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}}},
		{"5xx", Outcome{Reason: model.FailureTransport, Err: &firecrawl.APIError{StatusCode: 502}}},
		{"timeout without error", Outcome{Reason: model.FailureTimeout}},
		{"transport without error", Outcome{Reason: model.FailureTransport}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubClient{outcomes: []Outcome{tt.out}}
			breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
				FailureThreshold: 1,
				ResetTimeout:     time.Hour,
				ShouldTrip:       TripsBreaker,
			})
			g := NewGuarded(stub, breaker)

			g.Render(context.Background(), testRequest())
			assert.Equal(t, resilience.CircuitOpen, breaker.State())
		})
	}
}
