package model

// FailureReason classifies why a single render attempt failed.
type FailureReason string

const (
	FailureNone         FailureReason = ""
	FailureTimeout      FailureReason = "timeout"
	FailureRateLimited  FailureReason = "rate_limited"
	FailureTransport    FailureReason = "transport_error"
	FailureEmptyContent FailureReason = "empty_content"
	FailureCanceled     FailureReason = "canceled"
)

// Retryable reports whether another render attempt may follow this failure.
func (r FailureReason) Retryable() bool {
	switch r {
	case FailureTimeout, FailureTransport, FailureEmptyContent:
		return true
	default:
		return false
	}
}

// RenderAttempt records one call to the rendering service.
type RenderAttempt struct {
	Index         int           `json:"attempt"`
	WaitBudgetMs  int64         `json:"wait_budget_ms"`
	Success       bool          `json:"success"`
	Reason        FailureReason `json:"reason,omitempty"`
	StatusCode    int           `json:"status_code,omitempty"`
	Error         string        `json:"error,omitempty"`
	ContentLength int           `json:"content_length"`
	DurationMs    int64         `json:"duration_ms"`
}
