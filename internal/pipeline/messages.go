package pipeline

import (
	"fmt"
	"time"

	"github.com/sells-group/listing-sync/internal/model"
)

// renderCode maps a terminal render failure to its reason code.
func renderCode(reason model.FailureReason) string {
	switch reason {
	case model.FailureTimeout:
		return model.CodeTimeout
	case model.FailureRateLimited:
		return model.CodeRateLimited
	case model.FailureTransport:
		return model.CodeConnectionError
	case model.FailureCanceled:
		return model.CodeCanceled
	default:
		return model.CodeScrapeFailed
	}
}

func renderMessage(code string, attempts int) string {
	switch code {
	case model.CodeTimeout:
		return fmt.Sprintf("The marketplace page did not finish loading after %d attempts", attempts)
	case model.CodeRateLimited:
		return "The marketplace is rate limiting requests; wait a few minutes before trying again"
	case model.CodeConnectionError:
		return fmt.Sprintf("Could not reach the rendering service after %d attempts", attempts)
	case model.CodeCanceled:
		return "The run was canceled before the page finished rendering"
	default:
		return "The rendered page was empty or too short to contain listings"
	}
}

func cooldownMessage(left time.Duration) string {
	return fmt.Sprintf("The marketplace recently rate limited requests; retry in %s", left.Round(time.Second))
}

const (
	msgSessionExpired  = "The marketplace showed a login page; the session cookie has expired or was signed out"
	hintSessionExpired = "Log in again in your browser and copy a fresh Cookie header"
	msgCaptcha         = "The marketplace showed a bot-verification page instead of listings"
	hintCaptcha        = "Open the marketplace in your browser, complete the verification, then copy a fresh Cookie header"
	msgPreviewReady    = "Session is valid; the page rendered as an authenticated listing page"
	msgExtractFailed   = "Listings could not be extracted from the rendered page"
	msgExtractCalled   = "The extraction service call failed"
	msgCompleted       = "Listings extracted and stored"
)
