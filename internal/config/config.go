package config

import (
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Render      RenderConfig      `yaml:"render" mapstructure:"render"`
	Credential  CredentialConfig  `yaml:"credential" mapstructure:"credential"`
	Classify    ClassifyConfig    `yaml:"classify" mapstructure:"classify"`
	Extract     ExtractConfig     `yaml:"extract" mapstructure:"extract"`
	Marketplace MarketplaceConfig `yaml:"marketplace" mapstructure:"marketplace"`
	Redis       RedisConfig       `yaml:"redis" mapstructure:"redis"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Batch       BatchConfig       `yaml:"batch" mapstructure:"batch"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// RenderConfig configures page rendering and its retry policy.
type RenderConfig struct {
	Provider         string          `yaml:"provider" mapstructure:"provider"`
	WaitBudgetsMs    []int           `yaml:"wait_budgets_ms" mapstructure:"wait_budgets_ms"`
	HardTimeoutMs    int             `yaml:"hard_timeout_ms" mapstructure:"hard_timeout_ms"`
	RetryDelayMs     int             `yaml:"retry_delay_ms" mapstructure:"retry_delay_ms"`
	MaxAttempts      int             `yaml:"max_attempts" mapstructure:"max_attempts"`
	WaitSelector     string          `yaml:"wait_selector" mapstructure:"wait_selector"`
	MinContentLength int             `yaml:"min_content_length" mapstructure:"min_content_length"`
	UserAgent        string          `yaml:"user_agent" mapstructure:"user_agent"`
	RateLimit        float64         `yaml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst        int             `yaml:"rate_burst" mapstructure:"rate_burst"`
	BreakerThreshold int             `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs int             `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
	Firecrawl        FirecrawlConfig `yaml:"firecrawl" mapstructure:"firecrawl"`
	Chrome           ChromeConfig    `yaml:"chrome" mapstructure:"chrome"`
}

// FirecrawlConfig holds Firecrawl API settings.
type FirecrawlConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// ChromeConfig configures the local headless browser renderer.
type ChromeConfig struct {
	ExecPath string `yaml:"exec_path" mapstructure:"exec_path"`
	Headless bool   `yaml:"headless" mapstructure:"headless"`
}

// CredentialConfig configures session cookie validation.
type CredentialConfig struct {
	RequiredTokens []string `yaml:"required_tokens" mapstructure:"required_tokens"`
	MinLength      int      `yaml:"min_length" mapstructure:"min_length"`
	MinSegments    int      `yaml:"min_segments" mapstructure:"min_segments"`
}

// ClassifyConfig configures the rendered content classifier.
type ClassifyConfig struct {
	SubjectKeyword string   `yaml:"subject_keyword" mapstructure:"subject_keyword"`
	FieldKeywords  []string `yaml:"field_keywords" mapstructure:"field_keywords"`
}

// ExtractConfig configures structured extraction.
type ExtractConfig struct {
	Provider      string          `yaml:"provider" mapstructure:"provider"`
	Temperature   float64         `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens     int64           `yaml:"max_tokens" mapstructure:"max_tokens"`
	ContentBudget int             `yaml:"content_budget" mapstructure:"content_budget"`
	Anthropic     AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini        GeminiConfig    `yaml:"gemini" mapstructure:"gemini"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key        string `yaml:"key" mapstructure:"key"`
	Model      string `yaml:"model" mapstructure:"model"`
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	MaxRetries int    `yaml:"max_retries" mapstructure:"max_retries"`
}

// GeminiConfig holds Gemini API settings.
type GeminiConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// MarketplaceConfig describes the target site.
type MarketplaceConfig struct {
	SearchURL     string `yaml:"search_url" mapstructure:"search_url"`
	PreviewLength int    `yaml:"preview_length" mapstructure:"preview_length"`
}

// RedisConfig configures the shared rate-limit cooldown. An empty Addr keeps
// cooldowns in process memory.
type RedisConfig struct {
	Addr         string `yaml:"addr" mapstructure:"addr"`
	Password     string `yaml:"password" mapstructure:"password"`
	DB           int    `yaml:"db" mapstructure:"db"`
	CooldownSecs int    `yaml:"cooldown_secs" mapstructure:"cooldown_secs"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	CORSOrigins    []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	RunTimeoutSecs int      `yaml:"run_timeout_secs" mapstructure:"run_timeout_secs"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LISTINGSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "listing-sync.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.run_timeout_secs", 300)
	v.SetDefault("batch.max_concurrent", 2)
	v.SetDefault("render.provider", "firecrawl")
	v.SetDefault("render.wait_budgets_ms", []int{5000, 12000, 25000})
	v.SetDefault("render.hard_timeout_ms", 60000)
	v.SetDefault("render.retry_delay_ms", 2000)
	v.SetDefault("render.max_attempts", 3)
	v.SetDefault("render.min_content_length", 200)
	v.SetDefault("render.rate_limit", 0.5)
	v.SetDefault("render.rate_burst", 1)
	v.SetDefault("render.breaker_threshold", 5)
	v.SetDefault("render.breaker_reset_secs", 60)
	v.SetDefault("render.firecrawl.base_url", "https://api.firecrawl.dev/v1")
	v.SetDefault("render.chrome.headless", true)
	v.SetDefault("credential.required_tokens", []string{"sessionid", "auth_token"})
	v.SetDefault("credential.min_length", 40)
	v.SetDefault("credential.min_segments", 2)
	v.SetDefault("classify.subject_keyword", "listing")
	v.SetDefault("extract.provider", "anthropic")
	v.SetDefault("extract.temperature", 0.1)
	v.SetDefault("extract.max_tokens", 8192)
	v.SetDefault("extract.content_budget", 60000)
	v.SetDefault("extract.anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("extract.gemini.model", "gemini-2.5-flash")
	v.SetDefault("marketplace.preview_length", 500)
	v.SetDefault("redis.cooldown_secs", 300)

	// Keys without defaults still need binding so env vars reach Unmarshal.
	for _, key := range []string{
		"render.firecrawl.key",
		"render.chrome.exec_path",
		"render.wait_selector",
		"render.user_agent",
		"extract.anthropic.key",
		"extract.anthropic.base_url",
		"extract.anthropic.max_retries",
		"extract.gemini.key",
		"marketplace.search_url",
		"redis.addr",
		"redis.password",
		"redis.db",
		"store.max_conns",
		"store.min_conns",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// WaitBudgets returns the configured wait budgets as durations.
func (c RenderConfig) WaitBudgets() []time.Duration {
	out := make([]time.Duration, len(c.WaitBudgetsMs))
	for i, ms := range c.WaitBudgetsMs {
		out[i] = time.Duration(ms) * time.Millisecond
	}
	return out
}

// Validate checks the settings a command needs. mode is one of "run",
// "batch", "serve", "validate" or "migrate".
func (c *Config) Validate(mode string) error {
	switch mode {
	case "validate":
		return nil
	case "run", "batch", "serve", "migrate":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	var missing []string
	switch c.Store.Driver {
	case "postgres", "sqlite":
	default:
		return eris.Errorf("config: unsupported store.driver %q", c.Store.Driver)
	}
	if c.Store.DatabaseURL == "" {
		missing = append(missing, "store.database_url")
	}
	if mode == "migrate" {
		return missingErr(missing)
	}

	switch c.Render.Provider {
	case "firecrawl":
		if c.Render.Firecrawl.Key == "" {
			missing = append(missing, "render.firecrawl.key")
		}
	case "chrome":
	default:
		return eris.Errorf("config: unsupported render.provider %q", c.Render.Provider)
	}

	switch c.Extract.Provider {
	case "anthropic":
		if c.Extract.Anthropic.Key == "" {
			missing = append(missing, "extract.anthropic.key")
		}
	case "gemini":
		if c.Extract.Gemini.Key == "" {
			missing = append(missing, "extract.gemini.key")
		}
	default:
		return eris.Errorf("config: unsupported extract.provider %q", c.Extract.Provider)
	}
	if err := missingErr(missing); err != nil {
		return err
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			return eris.New("config: server.port must be > 0")
		}
	case "batch":
		if c.Batch.MaxConcurrent < 1 || c.Batch.MaxConcurrent > 50 {
			return eris.New("config: batch.max_concurrent must be between 1 and 50")
		}
	}

	return c.Render.validateBudgets()
}

func (c RenderConfig) validateBudgets() error {
	if len(c.WaitBudgetsMs) == 0 {
		return eris.New("config: render.wait_budgets_ms must not be empty")
	}
	if c.MaxAttempts < 1 {
		return eris.New("config: render.max_attempts must be at least 1")
	}
	for i, ms := range c.WaitBudgetsMs {
		if ms <= 0 {
			return eris.Errorf("config: render.wait_budgets_ms[%d] must be positive", i)
		}
		if i > 0 && ms <= c.WaitBudgetsMs[i-1] {
			return eris.New("config: render.wait_budgets_ms must be strictly ascending")
		}
		if ms >= c.HardTimeoutMs {
			return eris.Errorf("config: render.wait_budgets_ms[%d] must be below render.hard_timeout_ms", i)
		}
	}
	if c.RetryDelayMs < 0 {
		return eris.New("config: render.retry_delay_ms must not be negative")
	}
	return nil
}

func missingErr(missing []string) error {
	if len(missing) == 0 {
		return nil
	}
	slices.Sort(missing)
	return eris.Errorf("config: missing required settings: %s", strings.Join(missing, ", "))
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
