package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/listing-sync/internal/content"
	"github.com/sells-group/listing-sync/internal/cooldown"
	"github.com/sells-group/listing-sync/internal/credential"
	"github.com/sells-group/listing-sync/internal/extract"
	"github.com/sells-group/listing-sync/internal/model"
	"github.com/sells-group/listing-sync/internal/render"
)

const (
	validCookie   = "sessionid=9f2c4e7a1b3d5f60; auth_token=tk_81f0a2b4c6d8e0f1a3b5; theme=dark"
	searchURL     = "https://marketplace.example.com/search"
	loginPage     = "# Welcome back\n\nSign in to continue to your account.\n\nEmail address\n\nPassword\n\nForgot password?"
	challengePage = "Attention Required! Please verify you are human by completing the captcha below to continue browsing."
)

const listingsPage = `## 42 listings match your filters

### Profitable SaaS for dental clinics
Industry: Software | Location: Remote
Asking Price: $1,200,000 | TTM Revenue: $640K | TTM Profit: $310K | Multiple: 3.9x

### Ecommerce pet supplies brand
Industry: Ecommerce | Location: Austin, TX
Asking Price: $850K | Revenue: $2.1M | Profit: $260K`

// countingClient is a render.Client that replays outcomes and counts calls.
// The last outcome repeats once the script runs out.
type countingClient struct {
	mu       sync.Mutex
	outcomes []render.Outcome
	requests []render.Request
}

func (c *countingClient) Name() string { return "counting" }

func (c *countingClient) Render(_ context.Context, req render.Request) render.Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	i := min(len(c.requests)-1, len(c.outcomes)-1)
	return c.outcomes[i]
}

func (c *countingClient) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

func success(body string) render.Outcome {
	return render.Outcome{Content: body, StatusCode: 200, Duration: 50 * time.Millisecond}
}

func failure(reason model.FailureReason) render.Outcome {
	return render.Outcome{Reason: reason, Duration: 50 * time.Millisecond}
}

type mockExtractor struct {
	mock.Mock
}

func (m *mockExtractor) Extract(ctx context.Context, body string) (*extract.Result, error) {
	args := m.Called(ctx, body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*extract.Result), args.Error(1)
}

type mockReconciler struct {
	mock.Mock
}

func (m *mockReconciler) UpsertAll(ctx context.Context, sourceURL string, records []model.ExtractedRecord, events *model.EventLog) ([]model.ReconciliationOutcome, model.ReconcileSummary) {
	args := m.Called(ctx, sourceURL, records, events)
	for i := range records {
		events.Emit(model.StageReconcile, i+1, len(records), records[i].NaturalKey)
	}
	return args.Get(0).([]model.ReconciliationOutcome), args.Get(1).(model.ReconcileSummary)
}

type harness struct {
	client     *countingClient
	extractor  *mockExtractor
	reconciler *mockReconciler
	gate       *cooldown.MemoryGate
	coord      *Coordinator
}

func newHarness(t *testing.T, outcomes ...render.Outcome) *harness {
	t.Helper()
	h := &harness{
		client:     &countingClient{outcomes: outcomes},
		extractor:  &mockExtractor{},
		reconciler: &mockReconciler{},
		gate:       cooldown.NewMemoryGate(),
	}
	policy := render.DefaultPolicy()
	policy.Delay = 0

	coord, err := New(Deps{
		Validator:  credential.NewValidator(credential.Rules{}),
		Renderer:   render.NewOrchestrator(h.client, policy),
		Classifier: content.NewClassifier(content.DefaultRules()),
		Extractor:  h.extractor,
		Reconciler: h.reconciler,
		Gate:       h.gate,
	}, Options{SearchURL: searchURL})
	require.NoError(t, err)
	h.coord = coord
	t.Cleanup(func() {
		h.extractor.AssertExpectations(t)
		h.reconciler.AssertExpectations(t)
	})
	return h
}

func strPtr(s string) *string { return &s }
