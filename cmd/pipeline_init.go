package main

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/listing-sync/internal/config"
	"github.com/sells-group/listing-sync/internal/content"
	"github.com/sells-group/listing-sync/internal/cooldown"
	"github.com/sells-group/listing-sync/internal/credential"
	"github.com/sells-group/listing-sync/internal/extract"
	"github.com/sells-group/listing-sync/internal/metrics"
	"github.com/sells-group/listing-sync/internal/model"
	"github.com/sells-group/listing-sync/internal/pipeline"
	"github.com/sells-group/listing-sync/internal/render"
	"github.com/sells-group/listing-sync/internal/resilience"
	"github.com/sells-group/listing-sync/internal/store"
	anthropicpkg "github.com/sells-group/listing-sync/pkg/anthropic"
	"github.com/sells-group/listing-sync/pkg/firecrawl"
)

// pipelineEnv holds the initialized store, clients and coordinator needed by
// the run, batch and serve commands.
type pipelineEnv struct {
	Store       store.Store
	Coordinator *pipeline.Coordinator
	Metrics     *metrics.Recorder
	closers     []func()
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	for i := len(pe.closers) - 1; i >= 0; i-- {
		pe.closers[i]()
	}
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline sets up the store, the render and extract clients, and builds
// the Coordinator. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	env := &pipelineEnv{Store: st, Metrics: metrics.NewRecorder()}

	if err := st.Migrate(ctx); err != nil {
		env.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	client, err := initRenderClient(env)
	if err != nil {
		env.Close()
		return nil, err
	}

	policy := renderPolicy(cfg.Render)
	if err := policy.Validate(); err != nil {
		env.Close()
		return nil, err
	}

	gen, err := initGenerator(ctx)
	if err != nil {
		env.Close()
		return nil, err
	}

	gate := initGate(env)

	coord, err := pipeline.New(pipeline.Deps{
		Validator:  credential.NewValidator(credentialRules(cfg.Credential)),
		Renderer:   render.NewOrchestrator(client, policy),
		Classifier: content.NewClassifier(classifierRules(cfg)),
		Extractor: extract.New(gen, extract.Options{
			Temperature:   cfg.Extract.Temperature,
			MaxTokens:     cfg.Extract.MaxTokens,
			ContentBudget: cfg.Extract.ContentBudget,
		}),
		Reconciler: store.NewReconciler(st),
		Gate:       gate,
		Runs:       st,
		Metrics:    env.Metrics,
	}, pipeline.Options{
		SearchURL:     cfg.Marketplace.SearchURL,
		PreviewLength: cfg.Marketplace.PreviewLength,
		Cooldown:      time.Duration(cfg.Redis.CooldownSecs) * time.Second,
	})
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Coordinator = coord

	zap.L().Info("pipeline initialized",
		zap.String("store", cfg.Store.Driver),
		zap.String("renderer", client.Name()),
		zap.String("generator", gen.Name()),
		zap.Int("max_attempts", policy.MaxAttempts),
	)
	return env, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "listing-sync.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initRenderClient builds the configured renderer behind a rate limiter and a
// circuit breaker.
func initRenderClient(env *pipelineEnv) (render.Client, error) {
	var base render.Client
	switch cfg.Render.Provider {
	case "firecrawl":
		api := firecrawl.NewClient(cfg.Render.Firecrawl.Key, firecrawl.WithBaseURL(cfg.Render.Firecrawl.BaseURL))
		base = render.NewFirecrawlClient(api, cfg.Render.UserAgent)
	case "chrome":
		chrome := render.NewChromeClient(render.ChromeOptions{
			ExecPath:  cfg.Render.Chrome.ExecPath,
			Headless:  cfg.Render.Chrome.Headless,
			UserAgent: cfg.Render.UserAgent,
		})
		env.closers = append(env.closers, chrome.Close)
		base = chrome
	default:
		return nil, eris.Errorf("unsupported render provider: %s", cfg.Render.Provider)
	}

	limiter := render.NewAdaptiveLimiter(rate.Limit(cfg.Render.RateLimit), cfg.Render.RateBurst)
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.Render.BreakerThreshold,
		ResetTimeout:     time.Duration(cfg.Render.BreakerResetSecs) * time.Second,
		ShouldTrip:       render.TripsBreaker,
		OnStateChange: func(from, to resilience.CircuitState) {
			zap.L().Warn("render circuit state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return render.NewGuarded(render.NewLimited(base, limiter), breaker), nil
}

func initGenerator(ctx context.Context) (extract.Generator, error) {
	switch cfg.Extract.Provider {
	case "anthropic":
		var opts []anthropicpkg.Option
		if cfg.Extract.Anthropic.BaseURL != "" {
			opts = append(opts, anthropicpkg.WithBaseURL(cfg.Extract.Anthropic.BaseURL))
		}
		if cfg.Extract.Anthropic.MaxRetries > 0 {
			opts = append(opts, anthropicpkg.WithMaxRetries(cfg.Extract.Anthropic.MaxRetries))
		}
		client := anthropicpkg.NewClient(cfg.Extract.Anthropic.Key, opts...)
		return extract.NewAnthropicGenerator(client, cfg.Extract.Anthropic.Model), nil
	case "gemini":
		gen, err := extract.NewGeminiGenerator(ctx, cfg.Extract.Gemini.Key, cfg.Extract.Gemini.Model)
		if err != nil {
			return nil, eris.Wrap(err, "init gemini")
		}
		return gen, nil
	default:
		return nil, eris.Errorf("unsupported extract provider: %s", cfg.Extract.Provider)
	}
}

// initGate returns a Redis-backed cooldown when configured so several
// processes share rate-limit state, and an in-memory one otherwise.
func initGate(env *pipelineEnv) cooldown.Gate {
	if cfg.Redis.Addr == "" {
		return cooldown.NewMemoryGate()
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	env.closers = append(env.closers, func() {
		if err := rdb.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			zap.L().Warn("close redis", zap.Error(err))
		}
	})
	zap.L().Info("cooldown gate using redis", zap.String("addr", cfg.Redis.Addr))
	return cooldown.NewRedisGate(rdb)
}

func renderPolicy(rc config.RenderConfig) render.Policy {
	return render.Policy{
		WaitBudgets:      rc.WaitBudgets(),
		HardTimeout:      time.Duration(rc.HardTimeoutMs) * time.Millisecond,
		Delay:            time.Duration(rc.RetryDelayMs) * time.Millisecond,
		MaxAttempts:      rc.MaxAttempts,
		WaitSelector:     rc.WaitSelector,
		MinContentLength: rc.MinContentLength,
	}
}

func credentialRules(cc config.CredentialConfig) credential.Rules {
	return credential.Rules{
		RequiredTokens: cc.RequiredTokens,
		MinLength:      cc.MinLength,
		MinSegments:    cc.MinSegments,
	}
}

func classifierRules(c *config.Config) content.Rules {
	return content.Rules{
		SubjectKeyword: c.Classify.SubjectKeyword,
		FieldKeywords:  c.Classify.FieldKeywords,
		MinLength:      c.Render.MinContentLength,
	}
}

// exitStatus maps a finished run to a process error so scripts can branch on
// the exit code. The result itself is already printed.
func exitStatus(res *model.PipelineResult) error {
	if res.Success {
		return nil
	}
	return eris.Errorf("run %s: %s", res.Status, res.Code)
}
