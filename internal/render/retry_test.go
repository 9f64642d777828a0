package render

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/listing-sync/internal/model"
)

const cookie = "sessionid=8f14e45fceea167a5a36dedd4bea2543; auth_token=c9f0f895fb98ab9159f51fd0297e236d"

func noSleep(_ context.Context, _ time.Duration) error { return nil }

func newTestOrchestrator(client Client) *Orchestrator {
	o := NewOrchestrator(client, DefaultPolicy())
	o.sleep = noSleep
	return o
}

func TestRenderWithRetry_RateLimitedStopsImmediately(t *testing.T) {
	t.Parallel()
	stub := &stubClient{outcomes: []Outcome{
		{Reason: model.FailureRateLimited, StatusCode: 429, Err: errors.New("firecrawl: HTTP 429")},
	}}
	o := newTestOrchestrator(stub)

	res := o.RenderWithRetry(context.Background(), "https://marketplace.example.com/search", cookie, nil)

	assert.Equal(t, 1, stub.calls())
	require.Len(t, res.Attempts, 1)
	assert.Equal(t, model.FailureRateLimited, res.Outcome.Reason)
	assert.Equal(t, 429, res.Attempts[0].StatusCode)
}

func TestRenderWithRetry_SucceedsOnThirdAttempt(t *testing.T) {
	t.Parallel()
	stub := &stubClient{outcomes: []Outcome{
		{Reason: model.FailureTimeout, Err: errors.New("timed out")},
		{Reason: model.FailureTimeout, Err: errors.New("timed out")},
		{Content: "rendered page"},
	}}
	o := newTestOrchestrator(stub)
	events := model.NewEventLog()

	res := o.RenderWithRetry(context.Background(), "https://marketplace.example.com/search", cookie, events)

	require.True(t, res.Outcome.OK())
	require.Len(t, res.Attempts, 3)
	for i := 1; i < len(res.Attempts); i++ {
		assert.Greater(t, res.Attempts[i].WaitBudgetMs, res.Attempts[i-1].WaitBudgetMs)
	}
	assert.Equal(t, []int{1, 2, 3}, []int{res.Attempts[0].Index, res.Attempts[1].Index, res.Attempts[2].Index})
	assert.True(t, res.Attempts[2].Success)

	got := events.Events()
	require.Len(t, got, 3)
	assert.Equal(t, "timeout", got[0].Item)
	assert.Equal(t, "success", got[2].Item)

	for i, req := range stub.requests {
		assert.Equal(t, 60*time.Second, req.HardTimeout, "attempt %d", i+1)
		assert.Equal(t, cookie, req.Credential)
	}
}

func TestRenderWithRetry_ExhaustsAttempts(t *testing.T) {
	t.Parallel()
	stub := &stubClient{outcomes: []Outcome{
		{Reason: model.FailureTransport, Err: errors.New("connection reset by peer")},
	}}
	o := newTestOrchestrator(stub)

	res := o.RenderWithRetry(context.Background(), "https://marketplace.example.com/search", cookie, nil)

	assert.Equal(t, 3, stub.calls())
	assert.Len(t, res.Attempts, 3)
	assert.Equal(t, model.FailureTransport, res.Outcome.Reason)
}

func TestRenderWithRetry_EmptyContentRetried(t *testing.T) {
	t.Parallel()
	stub := &stubClient{outcomes: []Outcome{
		{Reason: model.FailureEmptyContent, Err: errors.New("too short")},
		{Content: "rendered page"},
	}}
	o := newTestOrchestrator(stub)

	res := o.RenderWithRetry(context.Background(), "https://marketplace.example.com/search", cookie, nil)
	assert.True(t, res.Outcome.OK())
	assert.Len(t, res.Attempts, 2)
}

func TestRenderWithRetry_CanceledDuringDelay(t *testing.T) {
	t.Parallel()
	stub := &stubClient{outcomes: []Outcome{
		{Reason: model.FailureTimeout, Err: errors.New("timed out")},
	}}
	o := NewOrchestrator(stub, DefaultPolicy())

	ctx, cancel := context.WithCancel(context.Background())
	o.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return sleepCtx(ctx, d)
	}

	res := o.RenderWithRetry(ctx, "https://marketplace.example.com/search", cookie, nil)
	assert.Equal(t, 1, stub.calls())
	assert.Equal(t, model.FailureCanceled, res.Outcome.Reason)
	assert.Len(t, res.Attempts, 1)
}

func TestRenderWithRetry_ScrubsCredentialFromErrors(t *testing.T) {
	t.Parallel()
	stub := &stubClient{outcomes: []Outcome{
		{Reason: model.FailureRateLimited, Err: errors.New("rejected cookie 8f14e45fceea167a5a36dedd4bea2543")},
	}}
	o := newTestOrchestrator(stub)

	res := o.RenderWithRetry(context.Background(), "https://marketplace.example.com/search", cookie, nil)
	require.Len(t, res.Attempts, 1)
	assert.NotContains(t, res.Attempts[0].Error, "8f14e45fceea167a5a36dedd4bea2543")
	assert.Contains(t, res.Attempts[0].Error, "[redacted]")
}

func TestPolicy_Validate(t *testing.T) {
	t.Parallel()
	require.NoError(t, DefaultPolicy().Validate())

	tests := []struct {
		name   string
		mutate func(*Policy)
	}{
		{"no attempts", func(p *Policy) { p.MaxAttempts = 0 }},
		{"no budgets", func(p *Policy) { p.WaitBudgets = nil }},
		{"not ascending", func(p *Policy) { p.WaitBudgets = []time.Duration{5 * time.Second, 5 * time.Second} }},
		{"over hard timeout", func(p *Policy) { p.WaitBudgets = []time.Duration{5 * time.Second, 90 * time.Second} }},
		{"negative delay", func(p *Policy) { p.Delay = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultPolicy()
			tt.mutate(&p)
			assert.Error(t, p.Validate())
		})
	}
}

func TestSleepCtx(t *testing.T) {
	t.Parallel()
	require.NoError(t, sleepCtx(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepCtx(ctx, time.Hour), context.Canceled)
}
