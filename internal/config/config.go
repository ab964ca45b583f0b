package config

import (
	"time"

	"github.com/storelens/storelens/internal/ailink"
	"github.com/storelens/storelens/internal/core/platform"
	"github.com/storelens/storelens/internal/core/scoring"
	"github.com/storelens/storelens/internal/events"
)

// Config represents the complete application configuration. Values are
// layered: embedded defaults, the user config file, environment variables,
// then runtime overrides.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Store   StoreConfig   `mapstructure:"store"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Health  HealthConfig  `mapstructure:"health"`
	Debug   DebugConfig   `mapstructure:"debug"`
	Workers WorkersConfig `mapstructure:"workers"`

	AILink      ailink.Config     `mapstructure:"ailink"`
	Grader      GraderConfig      `mapstructure:"grader"`
	Scraper     ScraperConfig     `mapstructure:"scraper"`
	Screenshot  ScreenshotConfig  `mapstructure:"screenshot"`
	Fetch       FetchConfig       `mapstructure:"fetch"`
	Performance PerformanceConfig `mapstructure:"performance"`
	Timeouts    TimeoutsConfig    `mapstructure:"timeouts"`
	Scoring     ScoringConfig     `mapstructure:"scoring"`
	Platform    platform.Rules    `mapstructure:"platform"`
	Report      ReportConfig      `mapstructure:"report"`
	Events      events.Config     `mapstructure:"events"`

	RateLimits      map[string]int `mapstructure:"rate_limits"`
	RateLimitMargin float64        `mapstructure:"rate_limit_margin"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig contains database configuration. Driver is "libsql" (local
// file or Turso URL) or "postgres".
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// LoggingConfig tunes the serve-mode structured logger. CLI commands always
// log with the SIMPLE profile.
type LoggingConfig struct {
	// Level is one of trace, debug, info, warn, error.
	Level string `mapstructure:"level"`

	// Environment is stamped on every record (production, staging, dev).
	Environment string `mapstructure:"environment"`

	// Stream is the console sink: stderr (default) or stdout.
	Stream string `mapstructure:"stream"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	// Enabled controls whether metrics are exposed
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format)
	Port int `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// DebugConfig contains debug and profiling configuration
type DebugConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// PprofEnabled controls whether pprof endpoints are exposed
	// WARNING: Only enable in development/staging environments
	PprofEnabled bool `mapstructure:"pprof_enabled"`
}

// WorkersConfig sizes the background audit pool started by serve.
type WorkersConfig struct {
	Count        int           `mapstructure:"count"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// GraderConfig selects and tunes the category grader.
//
// Mode is "vision" (AILink) or "mock". A failed vision call is always
// answered by the deterministic grader.
type GraderConfig struct {
	Mode       string `mapstructure:"mode"`
	Role       string `mapstructure:"role"`
	PromptSlug string `mapstructure:"prompt_slug"`
	Tier       string `mapstructure:"tier"`
	Model      string `mapstructure:"model"`
	HTMLLimit  int    `mapstructure:"html_limit"`
}

// ScraperConfig points at the headless-browser scraping service.
type ScraperConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	BaseURL  string         `mapstructure:"base_url"`
	APIKey   string         `mapstructure:"api_key"`
	Timeout  time.Duration  `mapstructure:"timeout"`
	Viewport ViewportConfig `mapstructure:"viewport"`
}

// ViewportConfig is the emulated browser window.
type ViewportConfig struct {
	Width  int  `mapstructure:"width"`
	Height int  `mapstructure:"height"`
	Mobile bool `mapstructure:"mobile"`
}

// ScreenshotConfig bounds the images sent to the grader.
type ScreenshotConfig struct {
	MaxWidth    int `mapstructure:"max_width"`
	JPEGQuality int `mapstructure:"jpeg_quality"`
	MaxImages   int `mapstructure:"max_images"`
}

// FetchConfig configures the plain HTTP fallback collector.
type FetchConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	UserAgent string        `mapstructure:"user_agent"`
	MaxBytes  int64         `mapstructure:"max_bytes"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// PerformanceConfig configures the PageSpeed Insights client.
type PerformanceConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BaseURL  string        `mapstructure:"base_url"`
	APIKey   string        `mapstructure:"api_key"`
	Strategy string        `mapstructure:"strategy"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// TimeoutsConfig bounds the audit stages.
type TimeoutsConfig struct {
	Collect     time.Duration `mapstructure:"collect"`
	Performance time.Duration `mapstructure:"performance"`
	Grade       time.Duration `mapstructure:"grade"`
	Report      time.Duration `mapstructure:"report"`
	// ProgressDrain is how long a finished run waits for queued progress
	// updates to be delivered.
	ProgressDrain time.Duration `mapstructure:"progress_drain"`
}

// ScoringConfig holds the rule thresholds and the improvement message
// catalog overrides keyed by "<category>.<condition>".
type ScoringConfig struct {
	scoring.RuleConfig `mapstructure:",squash"`

	Messages map[string]string `mapstructure:"messages"`
}

// ReportConfig controls artifact rendering after a completed audit.
type ReportConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Dir            string   `mapstructure:"dir"`
	Formats        []string `mapstructure:"formats"`
	SkipScreenshot bool     `mapstructure:"skip_screenshot"`
}
