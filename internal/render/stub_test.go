package render

import (
	"context"
	"sync"
)

// stubClient replays scripted outcomes and records every request.
type stubClient struct {
	mu       sync.Mutex
	outcomes []Outcome
	requests []Request
}

func (s *stubClient) Name() string { return "stub" }

func (s *stubClient) Render(_ context.Context, req Request) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.outcomes) == 0 {
		return Outcome{Content: "ok"}
	}
	out := s.outcomes[0]
	if len(s.outcomes) > 1 {
		s.outcomes = s.outcomes[1:]
	}
	return out
}

func (s *stubClient) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}
