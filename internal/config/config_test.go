package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 2, cfg.Batch.MaxConcurrent)
	assert.Equal(t, "firecrawl", cfg.Render.Provider)
	assert.Equal(t, []int{5000, 12000, 25000}, cfg.Render.WaitBudgetsMs)
	assert.Equal(t, 60000, cfg.Render.HardTimeoutMs)
	assert.Equal(t, 2000, cfg.Render.RetryDelayMs)
	assert.Equal(t, 3, cfg.Render.MaxAttempts)
	assert.Equal(t, 200, cfg.Render.MinContentLength)
	assert.Equal(t, "https://api.firecrawl.dev/v1", cfg.Render.Firecrawl.BaseURL)
	assert.True(t, cfg.Render.Chrome.Headless)
	assert.Equal(t, []string{"sessionid", "auth_token"}, cfg.Credential.RequiredTokens)
	assert.Equal(t, "anthropic", cfg.Extract.Provider)
	assert.InDelta(t, 0.1, cfg.Extract.Temperature, 0.001)
	assert.Equal(t, 500, cfg.Marketplace.PreviewLength)
	assert.Equal(t, 300, cfg.Redis.CooldownSecs)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/listings
log:
  level: debug
  format: console
render:
  provider: chrome
  wait_budgets_ms: [1000, 2000]
batch:
  max_concurrent: 4
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/listings", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "chrome", cfg.Render.Provider)
	assert.Equal(t, []int{1000, 2000}, cfg.Render.WaitBudgetsMs)
	assert.Equal(t, 4, cfg.Batch.MaxConcurrent)
	// Defaults still apply for unset values
	assert.Equal(t, 3, cfg.Render.MaxAttempts)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("LISTINGSYNC_STORE_DRIVER", "postgres")
	t.Setenv("LISTINGSYNC_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvBindsSecrets(t *testing.T) {
	chdirTemp(t)

	t.Setenv("LISTINGSYNC_RENDER_FIRECRAWL_KEY", "fc-key")
	t.Setenv("LISTINGSYNC_EXTRACT_ANTHROPIC_KEY", "sk-ant-key")
	t.Setenv("LISTINGSYNC_REDIS_ADDR", "localhost:6379")
	t.Setenv("LISTINGSYNC_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "fc-key", cfg.Render.Firecrawl.Key)
	assert.Equal(t, "sk-ant-key", cfg.Extract.Anthropic.Key)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0644))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config that passes validation for every mode.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "listings.db"
	cfg.Render.Provider = "firecrawl"
	cfg.Render.Firecrawl.Key = "fc-key"
	cfg.Render.WaitBudgetsMs = []int{5000, 12000, 25000}
	cfg.Render.HardTimeoutMs = 60000
	cfg.Render.RetryDelayMs = 2000
	cfg.Render.MaxAttempts = 3
	cfg.Extract.Provider = "anthropic"
	cfg.Extract.Anthropic.Key = "sk-ant-key"
	cfg.Server.Port = 8080
	cfg.Batch.MaxConcurrent = 2
	return cfg
}

func TestValidate_AllModesPass(t *testing.T) {
	cfg := validDefaults()
	for _, mode := range []string{"run", "batch", "serve", "migrate", "validate"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
}

func TestValidate_ValidateModeNeedsNothing(t *testing.T) {
	cfg := &Config{}
	assert.NoError(t, cfg.Validate("validate"))
}

func TestValidate_MissingKeys(t *testing.T) {
	cfg := validDefaults()
	cfg.Render.Firecrawl.Key = ""
	cfg.Extract.Anthropic.Key = ""
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extract.anthropic.key, render.firecrawl.key, store.database_url")
}

func TestValidate_MigrateOnlyNeedsStore(t *testing.T) {
	cfg := validDefaults()
	cfg.Render.Firecrawl.Key = ""
	cfg.Extract.Anthropic.Key = ""
	assert.NoError(t, cfg.Validate("migrate"))

	cfg.Store.DatabaseURL = ""
	assert.Error(t, cfg.Validate("migrate"))
}

func TestValidate_ChromeNeedsNoKey(t *testing.T) {
	cfg := validDefaults()
	cfg.Render.Provider = "chrome"
	cfg.Render.Firecrawl.Key = ""
	assert.NoError(t, cfg.Validate("run"))
}

func TestValidate_GeminiKey(t *testing.T) {
	cfg := validDefaults()
	cfg.Extract.Provider = "gemini"
	err := cfg.Validate("run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extract.gemini.key")

	cfg.Extract.Gemini.Key = "g-key"
	assert.NoError(t, cfg.Validate("run"))
}

func TestValidate_UnsupportedProviders(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"store", func(c *Config) { c.Store.Driver = "mysql" }, "store.driver"},
		{"render", func(c *Config) { c.Render.Provider = "curl" }, "render.provider"},
		{"extract", func(c *Config) { c.Extract.Provider = "regex" }, "extract.provider"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			tt.mutate(cfg)
			err := cfg.Validate("run")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_WaitBudgets(t *testing.T) {
	tests := []struct {
		name    string
		budgets []int
		want    string
	}{
		{"empty", nil, "must not be empty"},
		{"non-positive", []int{0, 1000}, "must be positive"},
		{"descending", []int{5000, 4000}, "strictly ascending"},
		{"equal", []int{5000, 5000}, "strictly ascending"},
		{"above hard timeout", []int{5000, 60000}, "below render.hard_timeout_ms"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			cfg.Render.WaitBudgetsMs = tt.budgets
			err := cfg.Validate("run")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_MaxAttempts(t *testing.T) {
	cfg := validDefaults()
	cfg.Render.MaxAttempts = 0
	err := cfg.Validate("run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_attempts")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateBatch_ConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Batch.MaxConcurrent = 0
	assert.Error(t, cfg.Validate("batch"))

	cfg.Batch.MaxConcurrent = 51
	assert.Error(t, cfg.Validate("batch"))

	cfg.Batch.MaxConcurrent = 50
	assert.NoError(t, cfg.Validate("batch"))
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestWaitBudgets(t *testing.T) {
	r := RenderConfig{WaitBudgetsMs: []int{5000, 12000}}
	assert.Equal(t, []time.Duration{5 * time.Second, 12 * time.Second}, r.WaitBudgets())
}
