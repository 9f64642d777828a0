package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestCircuitBreaker_ClosedState_PassesThrough(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())

	if err := cb.Allow(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cb.Record(nil)
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed state, got %s", cb.State())
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 3,
		ResetTimeout:     time.Minute,
	})

	for i := 0; i < 3; i++ {
		if err := cb.Allow(); err != nil {
			t.Fatalf("call %d rejected early: %v", i, err)
		}
		cb.Record(errors.New("fail"))
	}
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open state, got %s", cb.State())
	}

	if err := cb.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     10 * time.Second,
	})
	cb.nowFunc = func() time.Time { return now }

	cb.Record(errors.New("fail"))
	if err := cb.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected open circuit, got %v", err)
	}

	now = now.Add(11 * time.Second)
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("expected half-open, got %s", cb.State())
	}
	if err := cb.Allow(); err != nil {
		t.Fatalf("trial call should be admitted: %v", err)
	}
	cb.Record(nil)
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed after successful trial call, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenFailure_Reopens(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     10 * time.Second,
	})
	cb.nowFunc = func() time.Time { return now }

	cb.Record(errors.New("fail"))
	now = now.Add(11 * time.Second)
	if err := cb.Allow(); err != nil {
		t.Fatalf("trial call should be admitted: %v", err)
	}
	cb.Record(errors.New("still failing"))
	if cb.State() != CircuitOpen {
		t.Errorf("expected reopened circuit, got %s", cb.State())
	}
}

func TestCircuitBreaker_ShouldTrip(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Minute,
		ShouldTrip: func(err error) bool {
			return err.Error() == "tripworthy"
		},
	})

	for i := 0; i < 5; i++ {
		cb.Record(errors.New("rate limited"))
	}
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed, got %s", cb.State())
	}

	for i := 0; i < 2; i++ {
		cb.Record(errors.New("tripworthy"))
	}
	if cb.State() != CircuitOpen {
		t.Errorf("expected open, got %s", cb.State())
	}
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	type transition struct{ from, to CircuitState }
	var transitions []transition

	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Hour,
		OnStateChange: func(from, to CircuitState) {
			transitions = append(transitions, transition{from, to})
		},
	})
	cb.nowFunc = func() time.Time { return now }

	cb.Record(errors.New("fail"))
	now = now.Add(2 * time.Hour)
	if err := cb.Allow(); err != nil {
		t.Fatalf("trial call should be admitted: %v", err)
	}
	cb.Record(nil)

	if len(transitions) != 3 {
		t.Fatalf("expected 3 transitions, got %d", len(transitions))
	}
	if transitions[0].to != CircuitOpen || transitions[1].to != CircuitHalfOpen || transitions[2].to != CircuitClosed {
		t.Errorf("unexpected transitions: %+v", transitions)
	}
}

func TestCircuitBreaker_ConcurrentAccess(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1000})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if cb.Allow() != nil {
				return
			}
			if i%2 == 0 {
				cb.Record(errors.New("fail"))
				return
			}
			cb.Record(nil)
		}(i)
	}
	wg.Wait()

	if cb.State() != CircuitClosed {
		t.Errorf("expected closed, got %s", cb.State())
	}
}

func TestCircuitState_String(t *testing.T) {
	tests := map[CircuitState]string{
		CircuitClosed:    "closed",
		CircuitOpen:      "open",
		CircuitHalfOpen:  "half-open",
		CircuitState(99): "unknown",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
