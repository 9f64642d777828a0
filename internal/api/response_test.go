package api

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/listing-sync/internal/model"
)

func roundTrip(t *testing.T, r Response) map[string]any {
	t.Helper()
	b, err := json.Marshal(r)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(b, &out))
	return out
}

func TestBuildResponse_InvalidCookie(t *testing.T) {
	res := &model.PipelineResult{
		Status:  model.RunStatusRejected,
		Code:    model.CodeInvalidCookie,
		Message: "Cookie is missing required session values: auth_token",
		Hint:    "copy the full Cookie header",
		Credential: &model.CredentialDiagnostics{
			Detected: []string{"sessionid"},
			Missing:  []string{"auth_token"},
			Length:   58,
			Segments: 1,
		},
	}

	out := roundTrip(t, BuildResponse(res))

	assert.Equal(t, false, out["success"])
	assert.Equal(t, "invalid_cookie_format", out["error"])
	assert.Equal(t, []any{"auth_token"}, out["missing"])
	assert.Equal(t, []any{"sessionid"}, out["detected"])
	assert.Equal(t, []any{}, out["warnings"])
	assert.NotNil(t, out["diagnostics"])
	assert.NotContains(t, out, "attempts")
}

func TestBuildResponse_RenderFailure(t *testing.T) {
	res := &model.PipelineResult{
		Status:   model.RunStatusRenderFailed,
		Code:     model.CodeTimeout,
		Message:  "did not finish loading",
		Attempts: make([]model.RenderAttempt, 3),
	}

	out := roundTrip(t, BuildResponse(res))

	assert.Equal(t, "timeout", out["error"])
	assert.Equal(t, 3.0, out["attempts"])
	assert.Equal(t, true, out["can_retry"])
}

func TestBuildResponse_SessionExpired(t *testing.T) {
	res := &model.PipelineResult{
		Status:  model.RunStatusAuthFailed,
		Code:    model.CodeSessionExpired,
		Message: "login page",
		Preview: "Sign in",
	}

	out := roundTrip(t, BuildResponse(res))

	assert.Equal(t, false, out["success"])
	assert.Equal(t, "session_expired", out["error"])
	assert.Equal(t, "Sign in", out["preview"])
}

func TestBuildResponse_DryRun(t *testing.T) {
	res := &model.PipelineResult{
		Status:         model.RunStatusPreviewReady,
		Success:        true,
		DryRun:         true,
		Classification: model.ContentAuthenticated,
		ContentLength:  1234,
		Preview:        "## 42 listings",
		Attempts:       make([]model.RenderAttempt, 1),
	}

	out := roundTrip(t, BuildResponse(res))

	assert.Equal(t, true, out["success"])
	assert.Equal(t, true, out["dry_run"])
	assert.Equal(t, true, out["is_authenticated"])
	assert.Equal(t, 1.0, out["attempts"])
	assert.Equal(t, 1234.0, out["content_length"])
}

func TestBuildResponse_FullSuccess(t *testing.T) {
	res := &model.PipelineResult{
		Status:       model.RunStatusCompleted,
		Success:      true,
		Found:        5,
		HasMorePages: true,
		Summary:      model.ReconcileSummary{Inserted: 3, Updated: 2},
		Attempts:     make([]model.RenderAttempt, 2),
	}

	out := roundTrip(t, BuildResponse(res))

	assert.Equal(t, 5.0, out["extracted"])
	assert.Equal(t, 3.0, out["inserted"])
	assert.Equal(t, 2.0, out["updated"])
	assert.Equal(t, true, out["has_more_pages"])
	assert.Equal(t, []any{}, out["warnings"])
	assert.Equal(t, 2.0, out["attempts"])
}

func TestBuildResponse_ExtractionFailed(t *testing.T) {
	res := &model.PipelineResult{Status: model.RunStatusExtractFailed, Code: model.CodeExtractionFailed}

	out := roundTrip(t, BuildResponse(res))

	assert.Equal(t, "extraction_failed", out["error"])
	assert.Equal(t, false, out["can_retry"])
}

func TestCredentialResponse(t *testing.T) {
	exp := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	d := model.CredentialDiagnostics{
		Detected:  []string{"sessionid", "auth_token"},
		Warnings:  []model.CredentialFlag{model.FlagWrappingQuotes},
		ExpiresAt: &exp,
	}

	out := roundTrip(t, CredentialResponse(d, exp.Add(time.Hour)))

	assert.Equal(t, true, out["success"])
	assert.NotContains(t, out, "error")
	assert.Contains(t, out["hint"], "expired")
	diag := out["diagnostics"].(map[string]any)
	assert.Equal(t, "2026-01-01T00:00:00Z", diag["expires_at"])
}
