// Package pipeline runs one authenticated scrape: credential check, render
// with retry, classification, extraction and reconciliation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/listing-sync/internal/content"
	"github.com/sells-group/listing-sync/internal/cooldown"
	"github.com/sells-group/listing-sync/internal/credential"
	"github.com/sells-group/listing-sync/internal/extract"
	"github.com/sells-group/listing-sync/internal/metrics"
	"github.com/sells-group/listing-sync/internal/model"
	"github.com/sells-group/listing-sync/internal/render"
	"github.com/sells-group/listing-sync/internal/store"
)

// DefaultPreviewLength is the number of characters of content returned by a
// dry run or an auth failure.
const DefaultPreviewLength = 500

// Renderer renders a page with retries. *render.Orchestrator implements it.
type Renderer interface {
	RenderWithRetry(ctx context.Context, targetURL, credential string, events *model.EventLog) render.Result
}

// Extractor turns rendered content into records. *extract.Extractor implements it.
type Extractor interface {
	Extract(ctx context.Context, content string) (*extract.Result, error)
}

// Reconciler upserts records. *store.Reconciler implements it.
type Reconciler interface {
	UpsertAll(ctx context.Context, sourceURL string, records []model.ExtractedRecord, events *model.EventLog) ([]model.ReconciliationOutcome, model.ReconcileSummary)
}

// Deps are the collaborators of a Coordinator. Gate, Runs and Metrics are
// optional.
type Deps struct {
	Validator  *credential.Validator
	Renderer   Renderer
	Classifier *content.Classifier
	Extractor  Extractor
	Reconciler Reconciler
	Gate       cooldown.Gate
	Runs       store.RunStore
	Metrics    *metrics.Recorder
}

// Options tune a Coordinator.
type Options struct {
	SearchURL     string
	PreviewLength int
	Cooldown      time.Duration
}

// Invocation is one request to run the pipeline. Credential is used for this
// run only and is never logged or persisted.
type Invocation struct {
	URL        string
	Credential string
	Filters    map[string]string
	DryRun     bool
}

// Coordinator sequences the pipeline stages for each invocation. It holds no
// per-run state, so one Coordinator may serve concurrent runs.
type Coordinator struct {
	deps  Deps
	opts  Options
	now   func() time.Time
	newID func() string
}

// New creates a Coordinator.
func New(deps Deps, opts Options) (*Coordinator, error) {
	switch {
	case deps.Validator == nil:
		return nil, eris.New("pipeline: credential validator is required")
	case deps.Renderer == nil:
		return nil, eris.New("pipeline: renderer is required")
	case deps.Classifier == nil:
		return nil, eris.New("pipeline: classifier is required")
	case deps.Extractor == nil:
		return nil, eris.New("pipeline: extractor is required")
	case deps.Reconciler == nil:
		return nil, eris.New("pipeline: reconciler is required")
	}
	if opts.PreviewLength <= 0 {
		opts.PreviewLength = DefaultPreviewLength
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = cooldown.DefaultDuration
	}
	return &Coordinator{
		deps:  deps,
		opts:  opts,
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}, nil
}

// ValidateCredential runs only the offline credential check.
func (c *Coordinator) ValidateCredential(raw string) model.CredentialDiagnostics {
	return c.deps.Validator.Validate(raw)
}

// Run executes one invocation. Every outcome, including failures, is reported
// in the returned result; it is never nil.
func (c *Coordinator) Run(ctx context.Context, inv Invocation) *model.PipelineResult {
	start := c.now()
	events := model.NewEventLog()
	res := &model.PipelineResult{
		RunID:     c.newID(),
		URL:       inv.URL,
		DryRun:    inv.DryRun,
		Attempts:  []model.RenderAttempt{},
		StartedAt: start.UTC(),
	}
	log := zap.L().With(zap.String("run_id", res.RunID))

	defer func() {
		res.Events = events.Events()
		res.DurationMs = c.now().Sub(start).Milliseconds()
		c.record(ctx, res, log)
	}()

	target, err := ResolveURL(inv.URL, c.opts.SearchURL, inv.Filters)
	if err != nil {
		c.fail(res, model.RunStatusRejected, model.CodeInvalidURL, err.Error())
		return res
	}
	res.URL = target.String()
	log = log.With(zap.String("url", res.URL))

	diag := c.deps.Validator.Validate(inv.Credential)
	res.Credential = &diag
	log.Info("pipeline: credential checked",
		zap.Strings("detected", diag.Detected),
		zap.Strings("missing", diag.Missing),
		zap.Strings("warnings", diag.WarningNames()),
		zap.Int("length", diag.Length),
		zap.Bool("accepted", diag.Accepted()),
	)
	if !diag.Accepted() {
		events.Emit(model.StageCredential, 1, 1, "rejected")
		c.fail(res, model.RunStatusRejected, model.CodeInvalidCookie, credential.Message(diag))
		res.Hint = credential.Hint(diag, c.now())
		return res
	}
	events.Emit(model.StageCredential, 1, 1, "accepted")

	host := target.Hostname()
	if c.deps.Gate != nil {
		left, err := c.deps.Gate.Remaining(ctx, host)
		if err != nil {
			log.Warn("pipeline: cooldown lookup failed", zap.Error(err))
		} else if left > 0 {
			c.fail(res, model.RunStatusRenderFailed, model.CodeRateLimited, cooldownMessage(left))
			return res
		}
	}

	rendered := c.deps.Renderer.RenderWithRetry(ctx, res.URL, credential.Normalize(inv.Credential), events)
	res.Attempts = rendered.Attempts
	if !rendered.Outcome.OK() {
		reason := rendered.Outcome.Reason
		code := renderCode(reason)
		status := model.RunStatusRenderFailed
		if reason == model.FailureCanceled {
			status = model.RunStatusCanceled
		}
		if reason == model.FailureRateLimited && c.deps.Gate != nil {
			if err := c.deps.Gate.Trip(ctx, host, c.opts.Cooldown); err != nil {
				log.Warn("pipeline: cooldown trip failed", zap.Error(err))
			}
		}
		c.fail(res, status, code, renderMessage(code, len(res.Attempts)))
		return res
	}

	page := rendered.Outcome.Content
	verdict := c.deps.Classifier.Classify(page)
	res.Classification = verdict.Class
	res.ContentLength = len(page)
	events.Emit(model.StageClassify, 1, 1, string(verdict.Class))
	log.Info("pipeline: content classified",
		zap.String("class", string(verdict.Class)),
		zap.Int("content_length", res.ContentLength),
		zap.String("matched", verdict.Matched),
	)

	switch verdict.Class {
	case model.ContentLoginWall:
		c.fail(res, model.RunStatusAuthFailed, model.CodeSessionExpired, msgSessionExpired)
		res.Hint = hintSessionExpired
		res.Preview = content.Preview(page, c.opts.PreviewLength)
		return res
	case model.ContentChallenge:
		c.fail(res, model.RunStatusBlocked, model.CodeCaptchaDetected, msgCaptcha)
		res.Hint = hintCaptcha
		res.Preview = content.Preview(page, c.opts.PreviewLength)
		return res
	case model.ContentInsufficient:
		c.fail(res, model.RunStatusRenderFailed, model.CodeScrapeFailed, renderMessage(model.CodeScrapeFailed, len(res.Attempts)))
		return res
	}

	if inv.DryRun {
		res.Status = model.RunStatusPreviewReady
		res.Success = true
		res.Message = msgPreviewReady
		res.Preview = content.Preview(page, c.opts.PreviewLength)
		return res
	}

	extracted, err := c.deps.Extractor.Extract(ctx, page)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			c.fail(res, model.RunStatusCanceled, model.CodeCanceled, "The run was canceled during extraction")
			return res
		}
		log.Error("pipeline: extraction failed", zap.Error(err))
		msg := msgExtractCalled
		var pe *extract.ParseError
		if errors.As(err, &pe) {
			msg = fmt.Sprintf("%s: %s", msgExtractFailed, pe.Reason)
		}
		c.fail(res, model.RunStatusExtractFailed, model.CodeExtractionFailed, msg)
		return res
	}
	res.Found = len(extracted.Records)
	res.TotalFound = extracted.TotalFound
	res.HasMorePages = extracted.HasMorePages
	res.Warnings = append(res.Warnings, extracted.Warnings...)
	events.Emit(model.StageExtract, res.Found, res.TotalFound, "")

	res.Outcomes, res.Summary = c.deps.Reconciler.UpsertAll(ctx, res.URL, extracted.Records, events)
	if res.Summary.Failed > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%d of %d records could not be stored", res.Summary.Failed, res.Found))
	}

	res.Status = model.RunStatusCompleted
	res.Success = true
	res.Message = msgCompleted
	return res
}

func (c *Coordinator) fail(res *model.PipelineResult, status model.RunStatus, code, msg string) {
	res.Status = status
	res.Success = false
	res.Code = code
	res.Message = msg
}

func (c *Coordinator) record(ctx context.Context, res *model.PipelineResult, log *zap.Logger) {
	c.deps.Metrics.ObserveRun(res)

	if c.deps.Runs != nil {
		// The caller's context may already be canceled; the record still matters.
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := c.deps.Runs.SaveRun(saveCtx, res); err != nil {
			log.Warn("pipeline: save run failed", zap.Error(err))
		}
	}

	log.Info("pipeline: run finished",
		zap.String("status", string(res.Status)),
		zap.String("code", res.Code),
		zap.Int("attempts", res.AttemptCount()),
		zap.Int("found", res.Found),
		zap.Int("inserted", res.Summary.Inserted),
		zap.Int("updated", res.Summary.Updated),
		zap.Int("failed", res.Summary.Failed),
		zap.Int64("duration_ms", res.DurationMs),
	)
}
