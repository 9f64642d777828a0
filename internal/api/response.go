// Package api exposes the pipeline over HTTP and shapes results into the
// response payloads callers consume.
package api

import (
	"time"

	"github.com/sells-group/listing-sync/internal/credential"
	"github.com/sells-group/listing-sync/internal/model"
)

// Response is a wire payload. Its keys depend on how the run ended.
type Response map[string]any

// BuildResponse converts a pipeline result into its wire payload. The
// credential itself never appears; rejected credentials are described only by
// their diagnostics.
func BuildResponse(res *model.PipelineResult) Response {
	out := Response{
		"success": res.Success,
		"run_id":  res.RunID,
	}

	switch {
	case res.Success && res.DryRun:
		out["dry_run"] = true
		out["is_authenticated"] = res.Classification == model.ContentAuthenticated
		out["content_length"] = res.ContentLength
		out["preview"] = res.Preview
		out["attempts"] = res.AttemptCount()
		out["message"] = res.Message

	case res.Success:
		out["extracted"] = res.Found
		out["total_found"] = res.TotalFound
		out["inserted"] = res.Summary.Inserted
		out["updated"] = res.Summary.Updated
		out["failed"] = res.Summary.Failed
		out["has_more_pages"] = res.HasMorePages
		out["warnings"] = nonNil(res.Warnings)
		out["attempts"] = res.AttemptCount()
		out["message"] = res.Message

	case res.Code == model.CodeInvalidCookie:
		out["error"] = res.Code
		out["message"] = res.Message
		out["hint"] = res.Hint
		if res.Credential != nil {
			addDiagnostics(out, *res.Credential)
		}

	case res.Code == model.CodeSessionExpired, res.Code == model.CodeCaptchaDetected:
		out["error"] = res.Code
		out["message"] = res.Message
		out["hint"] = res.Hint
		if res.Preview != "" {
			out["preview"] = res.Preview
		}

	case res.Code == model.CodeInvalidURL:
		out["error"] = res.Code
		out["message"] = res.Message

	default:
		out["error"] = res.Code
		out["message"] = res.Message
		out["attempts"] = res.AttemptCount()
		out["can_retry"] = res.CanRetry()
	}
	return out
}

// CredentialResponse is the payload of an offline credential check.
func CredentialResponse(d model.CredentialDiagnostics, now time.Time) Response {
	out := Response{
		"success": d.Accepted(),
		"message": credential.Message(d),
	}
	if !d.Accepted() {
		out["error"] = model.CodeInvalidCookie
	}
	if hint := credential.Hint(d, now); hint != "" {
		out["hint"] = hint
	}
	addDiagnostics(out, d)
	return out
}

func addDiagnostics(out Response, d model.CredentialDiagnostics) {
	out["detected"] = nonNil(d.Detected)
	out["missing"] = nonNil(d.Missing)
	out["warnings"] = nonNil(d.WarningNames())

	diag := map[string]any{
		"length":       d.Length,
		"segments":     d.Segments,
		"hard_rejects": len(d.HardRejects()),
	}
	if d.ExpiresAt != nil {
		diag["expires_at"] = d.ExpiresAt.Format(time.RFC3339)
	}
	out["diagnostics"] = diag
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
