package render

import (
	"context"
	"time"

	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/listing-sync/internal/content"
)

// ChromeOptions configures the local headless browser.
type ChromeOptions struct {
	ExecPath  string
	Headless  bool
	UserAgent string
}

// ChromeClient renders pages in a local headless Chrome. Each Render call gets
// a fresh browser tab from a shared allocator.
type ChromeClient struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
}

// NewChromeClient starts an allocator for the local browser. Chrome itself is
// launched lazily on the first render.
func NewChromeClient(opts ChromeOptions) *ChromeClient {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(opts.UserAgent),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	return &ChromeClient{allocCtx: allocCtx, allocCancel: cancel}
}

// Name implements Client.
func (c *ChromeClient) Name() string { return "chrome" }

// Close shuts down the browser.
func (c *ChromeClient) Close() {
	c.allocCancel()
}

// Render implements Client.
func (c *ChromeClient) Render(ctx context.Context, req Request) Outcome {
	start := time.Now()

	tabCtx, closeTab := chromedp.NewContext(c.allocCtx)
	defer closeTab()
	stop := context.AfterFunc(ctx, closeTab)
	defer stop()

	tabCtx, cancel := withHardTimeout(tabCtx, req.HardTimeout)
	defer cancel()

	blockHeavyResources(tabCtx)

	var html string
	var status int64
	err := chromedp.Run(tabCtx,
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers{
			"Cookie":          req.Credential,
			"Accept":          defaultAccept,
			"Accept-Language": defaultAcceptLanguage,
		}),
		fetch.Enable().WithPatterns(blockPatterns()),
		chromedp.Navigate(req.URL),
		waitForContent(req.WaitBudget, req.WaitSelector),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Evaluate(`window.performance?.getEntriesByType?.('navigation')?.[0]?.responseStatus || 200`, &status),
	)
	out := Outcome{Duration: time.Since(start)}
	if err != nil {
		out.Reason = classify(ctx, 0, "", err)
		out.Err = eris.Wrap(err, "chrome: render")
		return out
	}

	markdown, err := content.ToMarkdown(html, req.URL)
	if err != nil {
		out.Reason = classify(ctx, 0, "", err)
		out.Err = err
		return out
	}
	return complete(out, markdown, int(status), req.MinContentLength)
}

// blockPatterns pauses every image, media and font request so the listener
// installed by blockHeavyResources can fail it.
func blockPatterns() []*fetch.RequestPattern {
	types := []network.ResourceType{
		network.ResourceTypeImage,
		network.ResourceTypeMedia,
		network.ResourceTypeFont,
	}
	patterns := make([]*fetch.RequestPattern, 0, len(types))
	for _, t := range types {
		patterns = append(patterns, &fetch.RequestPattern{
			URLPattern:   "*",
			ResourceType: t,
			RequestStage: fetch.RequestStageRequest,
		})
	}
	return patterns
}

func blockHeavyResources(tabCtx context.Context) {
	chromedp.ListenTarget(tabCtx, func(ev any) {
		paused, ok := ev.(*fetch.EventRequestPaused)
		if !ok {
			return
		}
		go func() {
			err := chromedp.Run(tabCtx, fetch.FailRequest(paused.RequestID, network.ErrorReasonBlockedByClient))
			if err != nil && tabCtx.Err() == nil {
				zap.L().Debug("chrome: fail paused request", zap.Error(err))
			}
		}()
	})
}

// waitForContent waits for the selector to become visible or for the budget
// to elapse, whichever comes first. Running out of budget is not an error.
func waitForContent(budget time.Duration, selector string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if budget <= 0 {
			return nil
		}
		waitCtx, cancel := context.WithTimeout(ctx, budget)
		defer cancel()

		if selector == "" {
			<-waitCtx.Done()
		} else {
			_ = chromedp.WaitVisible(selector, chromedp.ByQuery).Do(waitCtx)
		}
		return ctx.Err()
	})
}
