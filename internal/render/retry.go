package render

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/listing-sync/internal/model"
)

// Policy controls how the Orchestrator escalates render attempts.
type Policy struct {
	// WaitBudgets is the ascending wait budget per attempt. Attempts beyond
	// the last entry reuse it.
	WaitBudgets []time.Duration
	// HardTimeout bounds each attempt and is the same for every attempt.
	HardTimeout time.Duration
	// Delay is the fixed pause between attempts.
	Delay            time.Duration
	MaxAttempts      int
	WaitSelector     string
	MinContentLength int
}

// DefaultPolicy returns three attempts at 5s, 12s and 25s of render wait under
// a 60s ceiling.
func DefaultPolicy() Policy {
	return Policy{
		WaitBudgets:      []time.Duration{5 * time.Second, 12 * time.Second, 25 * time.Second},
		HardTimeout:      60 * time.Second,
		Delay:            2 * time.Second,
		MaxAttempts:      3,
		MinContentLength: 200,
	}
}

// Validate checks that budgets strictly ascend and each fits under the hard
// timeout.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return eris.New("render: max attempts must be at least 1")
	}
	if len(p.WaitBudgets) == 0 {
		return eris.New("render: at least one wait budget is required")
	}
	for i, b := range p.WaitBudgets {
		if b <= 0 {
			return eris.Errorf("render: wait budget %d must be positive", i+1)
		}
		if i > 0 && b <= p.WaitBudgets[i-1] {
			return eris.Errorf("render: wait budgets must strictly ascend (%s after %s)", b, p.WaitBudgets[i-1])
		}
		if p.HardTimeout > 0 && b >= p.HardTimeout {
			return eris.Errorf("render: wait budget %s must be below hard timeout %s", b, p.HardTimeout)
		}
	}
	if p.Delay < 0 {
		return eris.New("render: delay must not be negative")
	}
	return nil
}

func (p Policy) budget(attempt int) time.Duration {
	if attempt > len(p.WaitBudgets) {
		return p.WaitBudgets[len(p.WaitBudgets)-1]
	}
	return p.WaitBudgets[attempt-1]
}

// Result is the terminal outcome of a retried render plus every attempt made.
type Result struct {
	Outcome  Outcome
	Attempts []model.RenderAttempt
}

// Orchestrator drives a Client through the Policy.
type Orchestrator struct {
	client Client
	policy Policy
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator creates an Orchestrator. The policy should already be
// validated; missing attempts or budgets fall back to DefaultPolicy.
func NewOrchestrator(client Client, policy Policy) *Orchestrator {
	def := DefaultPolicy()
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = def.MaxAttempts
	}
	if len(policy.WaitBudgets) == 0 {
		policy.WaitBudgets = def.WaitBudgets
	}
	return &Orchestrator{client: client, policy: policy, sleep: sleepCtx}
}

// Policy returns the orchestrator's policy.
func (o *Orchestrator) Policy() Policy { return o.policy }

// RenderWithRetry renders targetURL, retrying timeouts, transport errors and
// thin content with a larger wait budget each time. A rate limit or a
// cancellation ends the loop at once. One progress event is emitted per
// attempt.
func (o *Orchestrator) RenderWithRetry(ctx context.Context, targetURL, credential string, events *model.EventLog) Result {
	var res Result
	maxAttempts := o.policy.MaxAttempts
	log := zap.L().With(zap.String("url", targetURL), zap.String("renderer", o.client.Name()))

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		budget := o.policy.budget(attempt)
		out := o.client.Render(ctx, Request{
			URL:              targetURL,
			Credential:       credential,
			WaitBudget:       budget,
			HardTimeout:      o.policy.HardTimeout,
			WaitSelector:     o.policy.WaitSelector,
			MinContentLength: o.policy.MinContentLength,
		})

		record := model.RenderAttempt{
			Index:         attempt,
			WaitBudgetMs:  budget.Milliseconds(),
			Success:       out.OK(),
			Reason:        out.Reason,
			StatusCode:    out.StatusCode,
			ContentLength: len(out.Content),
			DurationMs:    out.Duration.Milliseconds(),
		}
		if out.Err != nil {
			record.Error = scrub(out.Err.Error(), credential)
		}
		res.Attempts = append(res.Attempts, record)

		item := "success"
		if !out.OK() {
			item = string(out.Reason)
		}
		events.Emit(model.StageRender, attempt, maxAttempts, item)

		if out.OK() {
			log.Info("render: succeeded",
				zap.Int("attempt", attempt),
				zap.Int("content_length", len(out.Content)),
				zap.Duration("duration", out.Duration),
			)
			res.Outcome = out
			return res
		}

		log.Warn("render: attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.Duration("wait_budget", budget),
			zap.String("reason", string(out.Reason)),
			zap.String("error", record.Error),
		)

		if !out.Reason.Retryable() || attempt == maxAttempts {
			res.Outcome = out
			return res
		}

		if err := o.sleep(ctx, o.policy.Delay); err != nil {
			res.Outcome = Outcome{
				Reason: model.FailureCanceled,
				Err:    eris.Wrap(err, "render: canceled between attempts"),
			}
			return res
		}
	}
	return res
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
