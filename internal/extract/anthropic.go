package extract

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/listing-sync/pkg/anthropic"
)

// AnthropicGenerator generates through the Anthropic Messages API.
type AnthropicGenerator struct {
	client anthropic.Client
	model  string
}

// NewAnthropicGenerator creates a generator for model.
func NewAnthropicGenerator(client anthropic.Client, model string) *AnthropicGenerator {
	return &AnthropicGenerator{client: client, model: model}
}

// Name implements Generator.
func (g *AnthropicGenerator) Name() string { return "anthropic" }

// Generate implements Generator.
func (g *AnthropicGenerator) Generate(ctx context.Context, req GenerateRequest) (*Generation, error) {
	temp := req.Temperature
	resp, err := g.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     g.model,
		MaxTokens: req.MaxTokens,
		System: []anthropic.SystemBlock{
			{Text: req.System, CacheControl: &anthropic.CacheControl{TTL: "5m"}},
		},
		Messages:    []anthropic.Message{{Role: "user", Content: req.Content}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, eris.Wrap(err, "extract: anthropic generate")
	}
	resp.Usage.LogCost(g.model, "extract")

	return &Generation{
		Text:         resp.Text(),
		Model:        g.model,
		InputTokens:  resp.Usage.InputTokens + resp.Usage.CacheReadInputTokens + resp.Usage.CacheCreationInputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		Truncated:    resp.Truncated(),
	}, nil
}
