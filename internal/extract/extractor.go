// Package extract turns rendered listing pages into validated records using a
// schema-constrained language model call.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/listing-sync/internal/model"
)

// Defaults for the generation call.
const (
	DefaultTemperature   = 0.1
	DefaultMaxTokens     = 8192
	DefaultContentBudget = 60000
)

// Options tune an Extractor.
type Options struct {
	Temperature   float64
	MaxTokens     int64
	ContentBudget int
}

// Result is the outcome of one extraction.
type Result struct {
	Records      []model.ExtractedRecord
	TotalFound   int
	HasMorePages bool
	Warnings     []string
}

// Extractor sends page content to a Generator and validates the response.
type Extractor struct {
	gen  Generator
	opts Options
}

// New creates an Extractor, filling unset options with defaults.
func New(gen Generator, opts Options) *Extractor {
	if opts.Temperature <= 0 {
		opts.Temperature = DefaultTemperature
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.ContentBudget <= 0 {
		opts.ContentBudget = DefaultContentBudget
	}
	return &Extractor{gen: gen, opts: opts}
}

// Extract runs one generation over content. Generator failures are returned
// as-is; output that does not conform to the schema is a *ParseError. Neither
// is retried.
func (e *Extractor) Extract(ctx context.Context, content string) (*Result, error) {
	var warnings []string

	body, truncated := truncateContent(content, e.opts.ContentBudget)
	if truncated {
		warnings = append(warnings, fmt.Sprintf("content truncated to %d characters before extraction", e.opts.ContentBudget))
	}

	gen, err := e.gen.Generate(ctx, GenerateRequest{
		System:      systemPrompt,
		Content:     body,
		Temperature: e.opts.Temperature,
		MaxTokens:   e.opts.MaxTokens,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "extract: generate with %s", e.gen.Name())
	}

	res, err := Parse(gen.Text)
	if err != nil {
		var pe *ParseError
		if gen.Truncated && errors.As(err, &pe) {
			pe.Reason += " (output hit the token limit)"
		}
		return nil, err
	}
	res.Warnings = append(warnings, res.Warnings...)

	zap.L().Info("extract: parsed listings",
		zap.String("generator", e.gen.Name()),
		zap.String("model", gen.Model),
		zap.Int("records", len(res.Records)),
		zap.Int("total_found", res.TotalFound),
		zap.Bool("has_more_pages", res.HasMorePages),
		zap.Int("warnings", len(res.Warnings)),
	)
	return res, nil
}

// Parse converts generator output into validated records. Code fences and
// prose around the JSON object are ignored. Listings with neither an ID nor a
// title are skipped with a warning; duplicate natural keys keep the first.
func Parse(text string) (*Result, error) {
	env, err := parseEnvelope(text)
	if err != nil {
		return nil, err
	}

	res := &Result{HasMorePages: *env.HasMorePages}
	seen := make(map[string]bool, len(env.Listings))

	for i, raw := range env.Listings {
		rec, notes, err := toRecord(raw)
		if err != nil {
			return nil, parseErr(err, "listing %d", i+1)
		}
		for _, n := range notes {
			res.Warnings = append(res.Warnings, fmt.Sprintf("listing %d: %s", i+1, n))
		}

		key, ok := NaturalKey(deref(rec.ListingID), deref(rec.Title), deref(rec.Location))
		if !ok {
			res.Warnings = append(res.Warnings, fmt.Sprintf("listing %d skipped: no listing_id or title", i+1))
			continue
		}
		rec.NaturalKey = key

		if err := validateRecord(&rec); err != nil {
			return nil, parseErr(err, "listing %d", i+1)
		}
		if seen[key] {
			res.Warnings = append(res.Warnings, fmt.Sprintf("listing %d skipped: duplicate of %s", i+1, key))
			continue
		}
		seen[key] = true
		res.Records = append(res.Records, rec)
	}

	res.TotalFound = len(env.Listings)
	if env.TotalFound != nil {
		res.TotalFound = *env.TotalFound
	}
	return res, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
