package render

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/sells-group/listing-sync/internal/model"
	"github.com/sells-group/listing-sync/internal/resilience"
	"github.com/sells-group/listing-sync/pkg/firecrawl"
)

var (
	errServiceTimeout   = eris.New("render: service timed out")
	errServiceTransport = eris.New("render: service unreachable")
)

// Guarded short-circuits renders while the rendering service looks down.
// Only timeouts and transport errors are offered to the breaker; a rate limit
// or a thin page still proves the service is reachable.
type Guarded struct {
	next    Client
	breaker *resilience.CircuitBreaker
}

// NewGuarded wraps next with breaker. Pair it with TripsBreaker as the
// breaker's ShouldTrip so that only service-level failures open the circuit.
func NewGuarded(next Client, breaker *resilience.CircuitBreaker) *Guarded {
	return &Guarded{next: next, breaker: breaker}
}

// Name implements Client.
func (g *Guarded) Name() string { return g.next.Name() }

// Render implements Client.
func (g *Guarded) Render(ctx context.Context, req Request) Outcome {
	if err := g.breaker.Allow(); err != nil {
		return Outcome{
			Reason: model.FailureTransport,
			Err:    eris.Wrapf(err, "render: %s", g.next.Name()),
		}
	}

	out := g.next.Render(ctx, req)
	switch out.Reason {
	case model.FailureCanceled:
	case model.FailureTimeout:
		g.breaker.Record(orSentinel(out.Err, errServiceTimeout))
	case model.FailureTransport:
		g.breaker.Record(orSentinel(out.Err, errServiceTransport))
	default:
		g.breaker.Record(nil)
	}
	return out
}

func orSentinel(err, sentinel error) error {
	if err == nil {
		return sentinel
	}
	return err
}

// TripsBreaker reports whether err means the rendering service itself is
// failing: a timeout, a dropped or refused connection, or a 408/5xx from the
// service. Other HTTP errors come from a reachable service and do not count.
func TripsBreaker(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, errServiceTimeout), errors.Is(err, errServiceTransport):
		return true
	case resilience.IsTimeout(err), resilience.IsConnectionFailure(err):
		return true
	}
	var apiErr *firecrawl.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 408 || apiErr.StatusCode >= 500
	}
	return false
}
