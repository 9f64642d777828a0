package model

import (
	"iter"
	"slices"
	"time"
)

// RunStatus is the terminal state reached by a pipeline run.
type RunStatus string

const (
	RunStatusRejected      RunStatus = "rejected"
	RunStatusRenderFailed  RunStatus = "render_failed"
	RunStatusAuthFailed    RunStatus = "auth_failed"
	RunStatusBlocked       RunStatus = "blocked"
	RunStatusPreviewReady  RunStatus = "preview_ready"
	RunStatusExtractFailed RunStatus = "extract_failed"
	RunStatusCompleted     RunStatus = "completed"
	RunStatusCanceled      RunStatus = "canceled"
)

// Machine-checkable reason codes returned to callers.
const (
	CodeInvalidCookie    = "invalid_cookie_format"
	CodeInvalidURL       = "invalid_url"
	CodeTimeout          = "timeout"
	CodeRateLimited      = "rate_limited"
	CodeConnectionError  = "connection_error"
	CodeScrapeFailed     = "scrape_failed"
	CodeSessionExpired   = "session_expired"
	CodeCaptchaDetected  = "captcha_detected"
	CodeExtractionFailed = "extraction_failed"
	CodeCanceled         = "canceled"
)

// ContentClass is the verdict on rendered content.
type ContentClass string

const (
	ContentAuthenticated ContentClass = "authenticated"
	ContentLoginWall     ContentClass = "login_wall"
	ContentChallenge     ContentClass = "challenge_page"
	ContentInsufficient  ContentClass = "insufficient"
)

// Outcome is the per-record reconciliation result.
type Outcome string

const (
	OutcomeInserted Outcome = "inserted"
	OutcomeUpdated  Outcome = "updated"
	OutcomeFailed   Outcome = "failed"
)

// ReconciliationOutcome reports what happened to one extracted record.
type ReconciliationOutcome struct {
	NaturalKey string  `json:"natural_key"`
	Outcome    Outcome `json:"outcome"`
	StoredID   string  `json:"stored_id,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// ReconcileSummary counts outcomes for a batch.
type ReconcileSummary struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Failed   int `json:"failed"`
}

// Add tallies a single outcome.
func (s *ReconcileSummary) Add(o Outcome) {
	switch o {
	case OutcomeInserted:
		s.Inserted++
	case OutcomeUpdated:
		s.Updated++
	case OutcomeFailed:
		s.Failed++
	}
}

// ProgressEvent is one entry in the ordered progress stream of a run.
type ProgressEvent struct {
	Seq       int       `json:"seq"`
	Stage     string    `json:"stage"`
	Processed int       `json:"processed"`
	Total     int       `json:"total"`
	Item      string    `json:"item,omitempty"`
	At        time.Time `json:"at"`
}

// PipelineResult is the only externally observable artifact of a run.
type PipelineResult struct {
	RunID          string                  `json:"run_id"`
	URL            string                  `json:"url"`
	Status         RunStatus               `json:"status"`
	Success        bool                    `json:"success"`
	Code           string                  `json:"code,omitempty"`
	Message        string                  `json:"message,omitempty"`
	Hint           string                  `json:"hint,omitempty"`
	DryRun         bool                    `json:"dry_run"`
	Credential     *CredentialDiagnostics  `json:"credential,omitempty"`
	Attempts       []RenderAttempt         `json:"attempts"`
	Classification ContentClass            `json:"classification,omitempty"`
	ContentLength  int                     `json:"content_length"`
	Preview        string                  `json:"preview,omitempty"`
	Found          int                     `json:"found"`
	TotalFound     int                     `json:"total_found"`
	HasMorePages   bool                    `json:"has_more_pages"`
	Summary        ReconcileSummary        `json:"summary"`
	Outcomes       []ReconciliationOutcome `json:"outcomes,omitempty"`
	Warnings       []string                `json:"warnings,omitempty"`
	Events         []ProgressEvent         `json:"events,omitempty"`
	StartedAt      time.Time               `json:"started_at"`
	DurationMs     int64                   `json:"duration_ms"`
}

// AttemptCount returns the number of render attempts made.
func (r *PipelineResult) AttemptCount() int {
	return len(r.Attempts)
}

// CanRetry reports whether the caller may retry the run unchanged, possibly
// after waiting. Auth-state, credential and extraction failures need a
// different remedy.
func (r *PipelineResult) CanRetry() bool {
	switch r.Code {
	case CodeTimeout, CodeRateLimited, CodeConnectionError, CodeCanceled:
		return true
	default:
		return false
	}
}

// Progress replays the run's progress events in order.
func (r *PipelineResult) Progress() iter.Seq[ProgressEvent] {
	return slices.Values(slices.Clone(r.Events))
}
