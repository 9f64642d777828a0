// Package render fetches JavaScript-heavy marketplace pages through a
// headless browser, classifies render failures and retries them under an
// escalating wait policy.
package render

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/listing-sync/internal/model"
	"github.com/sells-group/listing-sync/internal/resilience"
)

// Browser-like headers sent alongside the session cookie.
const (
	DefaultUserAgent      = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"
	defaultAccept         = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	defaultAcceptLanguage = "en-US,en;q=0.9"
)

// BlockedResources are the sub-resource types never loaded during a render.
var BlockedResources = []string{"image", "media", "font"}

// Request is a single render call.
type Request struct {
	URL        string
	Credential string
	// WaitBudget is how long the browser waits for client-side rendering.
	WaitBudget time.Duration
	// HardTimeout bounds the whole call, including the wait budget.
	HardTimeout time.Duration
	// WaitSelector, when set, ends the wait early once the element is visible.
	WaitSelector     string
	MinContentLength int
}

// Outcome is the result of one render call. Reason is empty on success.
type Outcome struct {
	Content    string
	StatusCode int
	Reason     model.FailureReason
	Err        error
	Duration   time.Duration
}

// OK reports whether the render produced usable content.
func (o Outcome) OK() bool {
	return o.Reason == model.FailureNone
}

// Client issues exactly one render call per Render invocation. Failures are
// reported in the Outcome rather than as a Go error.
type Client interface {
	Render(ctx context.Context, req Request) Outcome
	Name() string
}

// ClassifyFailure maps the raw result of a render call to a failure reason.
// The timeout check falls back to matching "timeout" in the error text because
// the rendering service reports some timeouts only in its message body.
func ClassifyFailure(status int, body string, err error) model.FailureReason {
	switch {
	case errors.Is(err, context.Canceled):
		return model.FailureCanceled
	case status == 429:
		return model.FailureRateLimited
	case status == 408:
		return model.FailureTimeout
	case resilience.IsTimeout(err), resilience.ContainsTimeoutMarker(body):
		return model.FailureTimeout
	case err != nil, status != 0 && (status < 200 || status >= 300):
		return model.FailureTransport
	default:
		return model.FailureNone
	}
}

// classify is ClassifyFailure with the caller's context taken into account:
// once the caller gives up, every failure is a cancellation.
func classify(parent context.Context, status int, body string, err error) model.FailureReason {
	if parent.Err() != nil {
		return model.FailureCanceled
	}
	return ClassifyFailure(status, body, err)
}

// complete turns rendered content into an outcome, applying the usable-length
// threshold. pageStatus is the status of the target page itself.
func complete(out Outcome, content string, pageStatus, minLength int) Outcome {
	out.StatusCode = pageStatus
	if pageStatus == 429 {
		out.Reason = model.FailureRateLimited
		out.Err = eris.New("render: target responded 429")
		return out
	}
	content = strings.TrimSpace(content)
	if len(content) < minLength {
		out.Reason = model.FailureEmptyContent
		out.Err = eris.Errorf("render: content too short (%d < %d chars)", len(content), minLength)
		return out
	}
	out.Content = content
	return out
}

func withHardTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// scrub removes the credential and each of its cookie values from text.
func scrub(text, credential string) string {
	if credential == "" || text == "" {
		return text
	}
	text = strings.ReplaceAll(text, credential, "[redacted]")
	for _, seg := range strings.Split(credential, ";") {
		_, value, ok := strings.Cut(seg, "=")
		if value = strings.TrimSpace(value); ok && len(value) >= 6 {
			text = strings.ReplaceAll(text, value, "[redacted]")
		}
	}
	return text
}
