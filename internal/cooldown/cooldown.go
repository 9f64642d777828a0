// Package cooldown remembers which marketplace hosts recently answered with a
// rate limit so later runs wait instead of deepening the penalty.
package cooldown

import (
	"context"
	"sync"
	"time"
)

// DefaultDuration is how long a host stays cooled down after a rate limit.
const DefaultDuration = 300 * time.Second

// Gate tracks rate-limit cooldowns by key (normally the target host).
type Gate interface {
	// Remaining returns how long key stays cooled down; zero when open.
	Remaining(ctx context.Context, key string) (time.Duration, error)
	// Trip starts or extends the cooldown for key.
	Trip(ctx context.Context, key string, d time.Duration) error
}

// MemoryGate is a process-local Gate.
type MemoryGate struct {
	mu    sync.Mutex
	until map[string]time.Time
	now   func() time.Time
}

// NewMemoryGate creates an empty MemoryGate.
func NewMemoryGate() *MemoryGate {
	return &MemoryGate{until: make(map[string]time.Time), now: time.Now}
}

func (g *MemoryGate) Remaining(_ context.Context, key string) (time.Duration, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	until, ok := g.until[key]
	if !ok {
		return 0, nil
	}
	left := until.Sub(g.now())
	if left <= 0 {
		delete(g.until, key)
		return 0, nil
	}
	return left, nil
}

func (g *MemoryGate) Trip(_ context.Context, key string, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	until := g.now().Add(d)
	if cur, ok := g.until[key]; !ok || until.After(cur) {
		g.until[key] = until
	}
	return nil
}
