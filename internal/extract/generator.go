package extract

import "context"

// GenerateRequest is one structured-output generation call.
type GenerateRequest struct {
	System      string
	Content     string
	Temperature float64
	MaxTokens   int64
}

// Generation is the raw text a generator returned plus its usage.
type Generation struct {
	Text         string
	Model        string
	InputTokens  int64
	OutputTokens int64
	// Truncated is set when output stopped at the token limit.
	Truncated bool
}

// Generator produces JSON text from an instruction and page content.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*Generation, error)
	Name() string
}
