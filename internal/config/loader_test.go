package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate keeps the developer's own config file out of the test.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	SetConfigFile("")
	t.Cleanup(func() { SetConfigFile("") })
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("LoadDefaults", func(t *testing.T) {
		isolate(t)

		cfg, err := Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

		assert.Equal(t, "libsql", cfg.Store.Driver)
		expectedStorePath := filepath.Join(gfconfig.GetAppDataDir("storelens"), "storelens.db")
		assert.Equal(t, expectedStorePath, cfg.Store.Path)
		assert.Equal(t, filepath.Join(gfconfig.GetAppDataDir("storelens"), "reports"), cfg.Report.Dir)

		assert.Equal(t, 2, cfg.Workers.Count)
		assert.Equal(t, 2*time.Second, cfg.Workers.PollInterval)

		assert.Equal(t, "vision", cfg.Grader.Mode)
		assert.Equal(t, "storefront-audit", cfg.Grader.PromptSlug)
		assert.Equal(t, 390, cfg.Scraper.Viewport.Width)
		assert.True(t, cfg.Scraper.Viewport.Mobile)
		assert.Equal(t, int64(5242880), cfg.Fetch.MaxBytes)
		assert.Equal(t, "mobile", cfg.Performance.Strategy)
		assert.Equal(t, 2*time.Second, cfg.Timeouts.ProgressDrain)

		assert.Equal(t, 0.7, cfg.Scoring.Damping)
		assert.Equal(t, 2.5, cfg.Scoring.Thresholds.LCPGoodSeconds)
		assert.Empty(t, cfg.Platform.Platforms)
		assert.Equal(t, []string{"markdown", "json"}, cfg.Report.Formats)

		assert.False(t, cfg.Events.Enabled)
		assert.Equal(t, "storelens:audits", cfg.Events.Channel)

		assert.Equal(t, 0.9, cfg.RateLimitMargin)
		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, "production", cfg.Logging.Environment)
		assert.Equal(t, "stderr", cfg.Logging.Stream)
		assert.True(t, cfg.Metrics.Enabled)
		assert.Equal(t, 9090, cfg.Metrics.Port)
		assert.False(t, cfg.Debug.PprofEnabled)
	})

	t.Run("RuntimeOverrides", func(t *testing.T) {
		isolate(t)
		overrides := map[string]any{
			"server": map[string]any{
				"port": 9000,
				"host": "0.0.0.0",
			},
			"logging": map[string]any{
				"level": "debug",
			},
		}

		cfg, err := Load(ctx, overrides)
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, "production", cfg.Logging.Environment)
		assert.Equal(t, 9090, cfg.Metrics.Port)
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		isolate(t)
		t.Setenv("STORELENS_PORT", "3000")
		t.Setenv("STORELENS_LOG_LEVEL", "warn")
		t.Setenv("STORELENS_METRICS_ENABLED", "false")
		t.Setenv("STORELENS_RATE_LIMIT_MARGIN", "0.8")
		t.Setenv("STORELENS_SCORING_DAMPING", "0.5")
		t.Setenv("STORELENS_WORKERS", "6")
		t.Setenv("STORELENS_REDIS_ADDR", "redis:6380")

		cfg, err := Load(ctx)
		require.NoError(t, err)

		assert.Equal(t, 3000, cfg.Server.Port)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.False(t, cfg.Metrics.Enabled)
		assert.Equal(t, 0.8, cfg.RateLimitMargin)
		assert.Equal(t, 0.5, cfg.Scoring.Damping)
		assert.Equal(t, 6, cfg.Workers.Count)
		assert.Equal(t, "redis:6380", cfg.Events.Addr)
	})

	t.Run("InvalidFloatEnv", func(t *testing.T) {
		isolate(t)
		t.Setenv("STORELENS_RATE_LIMIT_MARGIN", "lots")

		_, err := Load(ctx)
		require.Error(t, err)
	})

	// runtime > env > file > defaults
	t.Run("ConfigPrecedence", func(t *testing.T) {
		isolate(t)
		SetConfigFile(writeConfig(t, "server:\n  port: 7000\n  host: file-host\n"))
		t.Setenv("STORELENS_PORT", "4000")

		cfg, err := Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, 4000, cfg.Server.Port)
		assert.Equal(t, "file-host", cfg.Server.Host)

		cfg, err = Load(ctx, map[string]any{"server": map[string]any{"port": 5000}})
		require.NoError(t, err)
		assert.Equal(t, 5000, cfg.Server.Port)
	})

	t.Run("MissingExplicitFile", func(t *testing.T) {
		isolate(t)
		SetConfigFile(filepath.Join(t.TempDir(), "absent.yaml"))

		_, err := Load(ctx)
		require.Error(t, err)
	})
}

func TestLoadKeepsDottedMessageKeys(t *testing.T) {
	isolate(t)
	SetConfigFile(writeConfig(t, `
scoring:
  messages:
    performance.lcp_slow: "Ship a lighter hero image."
platform:
  threshold: 0.4
  platforms:
    - name: shopify
      signals:
        - channel: host
          pattern: myshopify.com
          weight: 1
`))

	cfg, err := Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Ship a lighter hero image.", cfg.Scoring.Messages["performance.lcp_slow"])
	require.Len(t, cfg.Platform.Platforms, 1)
	require.Equal(t, "myshopify.com", cfg.Platform.Platforms[0].Signals[0].Pattern)
	require.Equal(t, 0.4, cfg.Platform.Threshold)
}

func TestGetConfig(t *testing.T) {
	isolate(t)

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	retrieved := GetConfig()
	require.NotNil(t, retrieved)
	assert.Equal(t, cfg.Server.Port, retrieved.Server.Port)
	assert.Equal(t, cfg.Logging.Level, retrieved.Logging.Level)
}

func TestEnvSpecs(t *testing.T) {
	isolate(t)
	_, err := Load(context.Background())
	require.NoError(t, err)

	envVarNames := make(map[string]bool)
	for _, spec := range getEnvSpecs() {
		envVarNames[spec.Name] = true
	}

	assert.True(t, envVarNames["STORELENS_LOG_LEVEL"], "LOG_LEVEL env var must be mapped")
	assert.True(t, envVarNames["STORELENS_PORT"], "PORT env var must be mapped")
	assert.True(t, envVarNames["STORELENS_DB_PATH"], "DB_PATH env var must be mapped")
	assert.True(t, envVarNames["STORELENS_SCRAPER_BASE_URL"], "SCRAPER_BASE_URL env var must be mapped")
	assert.True(t, envVarNames["STORELENS_PAGESPEED_API_KEY"], "PAGESPEED_API_KEY env var must be mapped")
}

func TestDurationParsing(t *testing.T) {
	isolate(t)
	t.Setenv("STORELENS_READ_TIMEOUT", "45s")
	t.Setenv("STORELENS_SHUTDOWN_TIMEOUT", "5m")

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Server.ShutdownTimeout)
}

func TestAILinkDynamicEnv(t *testing.T) {
	isolate(t)
	t.Setenv("STORELENS_AILINK_PROVIDERS_VISION_OPENAI_ENABLED", "true")
	t.Setenv("STORELENS_AILINK_PROVIDERS_VISION_OPENAI_AI_PROVIDER", "OpenAI")
	t.Setenv("STORELENS_AILINK_PROVIDERS_VISION_OPENAI_MODELS_VISION", "gpt-4o")
	t.Setenv("STORELENS_AILINK_PROVIDERS_VISION_OPENAI_CREDENTIALS_0_API_KEY", "sk-test")
	t.Setenv("STORELENS_AILINK_PROVIDERS_VISION_OPENAI_CREDENTIALS_0_PRIORITY", "2")
	t.Setenv("STORELENS_AILINK_ROUTING_GRADER", "vision-openai")

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	provider, ok := cfg.AILink.Providers["vision-openai"]
	require.True(t, ok)
	require.True(t, provider.Enabled)
	require.Equal(t, "openai", provider.AIProvider)
	require.Equal(t, "gpt-4o", provider.Models["vision"])
	require.Len(t, provider.Credentials, 1)
	require.Equal(t, "sk-test", provider.Credentials[0].APIKey)
	require.Equal(t, 2, provider.Credentials[0].Priority)
	require.Equal(t, "vision-openai", cfg.AILink.Routing["grader"])
}

func TestWatchReloadsOnWrite(t *testing.T) {
	isolate(t)
	path := writeConfig(t, "server:\n  port: 7100\n")
	SetConfigFile(path)

	cfg, err := Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 7100, cfg.Server.Port)

	var (
		mu   sync.Mutex
		port int
	)
	require.NoError(t, Watch(context.Background(), func(cfg *Config, _ fsnotify.Event, err error) {
		if err != nil || cfg == nil {
			return
		}
		mu.Lock()
		port = cfg.Server.Port
		mu.Unlock()
	}))

	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 7200\n"), 0o600))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return port == 7200
	}, 5*time.Second, 20*time.Millisecond)
	require.Equal(t, 7200, GetConfig().Server.Port)
}

func TestWatchWithoutFile(t *testing.T) {
	isolate(t)
	_, err := Load(context.Background())
	require.NoError(t, err)
	require.ErrorIs(t, Watch(context.Background(), nil), ErrNoConfigFile)
}
