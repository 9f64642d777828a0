package render

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/listing-sync/pkg/firecrawl"
)

// FirecrawlClient renders pages through the Firecrawl scrape API.
type FirecrawlClient struct {
	api       firecrawl.Client
	userAgent string
}

// NewFirecrawlClient wraps a Firecrawl API client.
func NewFirecrawlClient(api firecrawl.Client, userAgent string) *FirecrawlClient {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &FirecrawlClient{api: api, userAgent: userAgent}
}

// Name implements Client.
func (f *FirecrawlClient) Name() string { return "firecrawl" }

// Render implements Client.
func (f *FirecrawlClient) Render(ctx context.Context, req Request) Outcome {
	start := time.Now()
	callCtx, cancel := withHardTimeout(ctx, req.HardTimeout)
	defer cancel()

	resp, err := f.api.Scrape(callCtx, f.scrapeRequest(req))
	out := Outcome{Duration: time.Since(start)}

	if err != nil {
		var status int
		var body string
		var apiErr *firecrawl.APIError
		if errors.As(err, &apiErr) {
			status, body = apiErr.StatusCode, apiErr.Body
		}
		out.StatusCode = status
		out.Reason = classify(ctx, status, body, err)
		out.Err = err
		return out
	}
	if !resp.Success {
		out.Err = eris.Errorf("firecrawl: scrape not successful: %s", resp.Error)
		out.Reason = classify(ctx, 0, resp.Error, out.Err)
		return out
	}
	return complete(out, resp.Data.Markdown, resp.Data.Metadata.StatusCode, req.MinContentLength)
}

func (f *FirecrawlClient) scrapeRequest(req Request) firecrawl.ScrapeRequest {
	sr := firecrawl.ScrapeRequest{
		URL:             req.URL,
		Formats:         []string{"markdown"},
		OnlyMainContent: false,
		Timeout:         req.HardTimeout.Milliseconds(),
		BlockResources:  BlockedResources,
		Headers: map[string]string{
			"Cookie":          req.Credential,
			"User-Agent":      f.userAgent,
			"Accept":          defaultAccept,
			"Accept-Language": defaultAcceptLanguage,
		},
	}
	// Firecrawl runs waitFor and wait actions back to back, so only one of
	// them carries the budget.
	if req.WaitSelector != "" {
		sr.Actions = []firecrawl.Action{{Type: "wait", Selector: req.WaitSelector}}
	} else {
		sr.WaitFor = req.WaitBudget.Milliseconds()
	}
	return sr
}
