package extract

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

// contentGenerator is the subset of *genai.Models used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiGenerator generates through the Gemini API.
type GeminiGenerator struct {
	models contentGenerator
	model  string
}

// NewGeminiGenerator creates a Gemini API client for model.
func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, eris.Wrap(err, "extract: create gemini client")
	}
	return &GeminiGenerator{models: client.Models, model: model}, nil
}

// Name implements Generator.
func (g *GeminiGenerator) Name() string { return "gemini" }

// Generate implements Generator.
func (g *GeminiGenerator) Generate(ctx context.Context, req GenerateRequest) (*Generation, error) {
	config := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr(float32(req.Temperature)),
		MaxOutputTokens:   int32(req.MaxTokens),
		ResponseMIMEType:  "application/json",
		SystemInstruction: genai.NewContentFromText(req.System, genai.RoleUser),
	}
	resp, err := g.models.GenerateContent(ctx, g.model, []*genai.Content{
		genai.NewContentFromText(req.Content, genai.RoleUser),
	}, config)
	if err != nil {
		return nil, eris.Wrap(err, "extract: gemini generate")
	}

	gen := &Generation{Text: resp.Text(), Model: g.model}
	if resp.UsageMetadata != nil {
		gen.InputTokens = int64(resp.UsageMetadata.PromptTokenCount)
		gen.OutputTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason == genai.FinishReasonMaxTokens {
		gen.Truncated = true
	}
	zap.L().Info("cost attribution",
		zap.String("model", g.model),
		zap.String("phase", "extract"),
		zap.Int64("input_tokens", gen.InputTokens),
		zap.Int64("output_tokens", gen.OutputTokens),
	)
	return gen, nil
}
