package cmd

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/storelens/storelens/internal/ailink"
	"github.com/storelens/storelens/internal/ailink/prompt"
	"github.com/storelens/storelens/internal/config"
	"github.com/storelens/storelens/internal/core/collector"
	"github.com/storelens/storelens/internal/core/engine"
	"github.com/storelens/storelens/internal/core/grader"
	"github.com/storelens/storelens/internal/core/platform"
	"github.com/storelens/storelens/internal/core/report"
	"github.com/storelens/storelens/internal/core/scoring"
	"github.com/storelens/storelens/internal/core/store"
	"github.com/storelens/storelens/internal/events"
	"github.com/storelens/storelens/internal/output"
)

const graderModeMock = "mock"

// pipelineOptions are the per-invocation switches layered over config.
type pipelineOptions struct {
	MockGrader bool
	NoReport   bool
	// Store backs rate limiting and progress history. Nil runs unmetered.
	Store *store.Store
	// Events receives progress and status notifications when set.
	Events *events.RedisPublisher
	Logger engine.Logger
}

func buildOrchestrator(cfg *config.Config, opts pipelineOptions) (*engine.Orchestrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config not loaded")
	}

	classifier, err := platform.ConfiguredClassifier(cfg.Platform)
	if err != nil {
		return nil, err
	}
	g, err := buildGrader(cfg, opts)
	if err != nil {
		return nil, err
	}

	o := &engine.Orchestrator{
		Attempts:      buildAttempts(cfg),
		DeviceProfile: cfg.Performance.Strategy,
		DOM:           collector.DOMAnalyzer{},
		Classifier:    classifier,
		Grader:        g,
		Fallback:      grader.MockGrader{},
		Scorer:        scoring.NewEngine(cfg.Scoring.RuleConfig, scoring.Messages(cfg.Scoring.Messages)),
		Logger:        opts.Logger,
		HTMLLimit:     cfg.Grader.HTMLLimit,
		DrainTimeout:  cfg.Timeouts.ProgressDrain,
		Timeouts: engine.Timeouts{
			Performance: cfg.Timeouts.Performance,
			Grade:       cfg.Timeouts.Grade,
			Report:      cfg.Timeouts.Report,
		},
	}

	if cfg.Performance.Enabled {
		o.Performance = &collector.PageSpeedClient{
			BaseURL:  cfg.Performance.BaseURL,
			APIKey:   cfg.Performance.APIKey,
			Strategy: cfg.Performance.Strategy,
			Timeout:  cfg.Performance.Timeout,
		}
	}

	if cfg.Report.Enabled && !opts.NoReport {
		reporter, err := buildReporter(cfg)
		if err != nil {
			return nil, err
		}
		o.Reporter = reporter
	}

	var progress engine.MultiProgress
	if opts.Store != nil {
		progress = append(progress, opts.Store)
		limiter := &engine.RateLimiter{Store: opts.Store}
		limiter.ApplyOverrides(cfg.RateLimits)
		limiter.ApplySafetyMargin(cfg.RateLimitMargin)
		o.Limiter = limiter
	}
	if opts.Events != nil {
		progress = append(progress, opts.Events)
	}
	if len(progress) > 0 {
		o.Progress = progress
	}

	return o, nil
}

// buildAttempts returns the collection policy: the scraping service first,
// then the plain fetch.
func buildAttempts(cfg *config.Config) []engine.Attempt {
	var attempts []engine.Attempt
	if cfg.Scraper.Enabled && strings.TrimSpace(cfg.Scraper.BaseURL) != "" {
		attempts = append(attempts, engine.Attempt{
			Name:    "scrape",
			Service: engine.ServiceScrape,
			Timeout: cfg.Timeouts.Collect,
			Collector: &collector.ScrapeCollector{Scraper: &collector.ScrapeClient{
				BaseURL: cfg.Scraper.BaseURL,
				APIKey:  cfg.Scraper.APIKey,
				Timeout: cfg.Scraper.Timeout,
				Viewport: collector.Viewport{
					Width:  cfg.Scraper.Viewport.Width,
					Height: cfg.Scraper.Viewport.Height,
					Mobile: cfg.Scraper.Viewport.Mobile,
				},
			}},
			Sufficient: collector.HasScreenshot,
		})
	}
	if cfg.Fetch.Enabled {
		attempts = append(attempts, engine.Attempt{
			Name:    "fetch",
			Timeout: cfg.Timeouts.Collect,
			Collector: &collector.Fetcher{
				UserAgent: cfg.Fetch.UserAgent,
				MaxBytes:  cfg.Fetch.MaxBytes,
				Timeout:   cfg.Fetch.Timeout,
			},
			Sufficient: collector.HasHTML,
		})
	}
	return attempts
}

// buildGrader returns nil when no vision provider can be resolved; the
// orchestrator then grades with the mock.
func buildGrader(cfg *config.Config, opts pipelineOptions) (engine.Grader, error) {
	if opts.MockGrader || strings.EqualFold(strings.TrimSpace(cfg.Grader.Mode), graderModeMock) {
		return grader.MockGrader{}, nil
	}

	prompts, err := prompt.DefaultRegistry(cfg.AILink.PromptsDir)
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}

	role := firstNonBlank(cfg.Grader.Role, grader.DefaultRole)
	slug := firstNonBlank(cfg.Grader.PromptSlug, grader.DefaultPromptSlug)
	promptDef, err := prompts.Get(slug)
	if err != nil {
		return nil, err
	}

	providers := ailink.NewRegistry(cfg.AILink)
	resolved, err := providers.Resolve(role, promptDef, cfg.Grader.Model, cfg.Grader.Tier)
	if err != nil || strings.TrimSpace(resolved.Credential.APIKey) == "" {
		if opts.Logger != nil {
			fields := []zap.Field{zap.String("role", role)}
			if err != nil {
				fields = append(fields, zap.Error(err))
			}
			opts.Logger.Warn("No grader provider configured; using mock grader", fields...)
		}
		return nil, nil
	}

	return &grader.VisionGrader{
		Service:     &ailink.Service{Providers: providers, Registry: prompts},
		Role:        role,
		PromptSlug:  slug,
		Tier:        cfg.Grader.Tier,
		Model:       cfg.Grader.Model,
		Timeout:     cfg.Timeouts.Grade,
		MaxWidth:    cfg.Screenshot.MaxWidth,
		JPEGQuality: cfg.Screenshot.JPEGQuality,
		MaxImages:   cfg.Screenshot.MaxImages,
		Logger:      opts.Logger,
	}, nil
}

func buildReporter(cfg *config.Config) (*report.Reporter, error) {
	formats := make([]output.Format, 0, len(cfg.Report.Formats))
	for _, raw := range cfg.Report.Formats {
		format, err := output.ParseFormat(raw)
		if err != nil {
			return nil, fmt.Errorf("report formats: %w", err)
		}
		formats = append(formats, format)
	}
	dir := firstNonBlank(cfg.Report.Dir, config.DefaultReportDir())
	return &report.Reporter{
		Uploader:       report.DirUploader{Dir: dir},
		Formats:        formats,
		SkipScreenshot: cfg.Report.SkipScreenshot,
	}, nil
}

// connectEvents dials Redis when events are enabled. A failed dial is
// logged and the run proceeds without notifications.
func connectEvents(ctx context.Context, cfg *config.Config, logger engine.Logger) *events.RedisPublisher {
	if cfg == nil || !cfg.Events.Enabled {
		return nil
	}
	publisher, err := events.Connect(ctx, cfg.Events)
	if err != nil {
		if logger != nil {
			logger.Warn("Event publisher unavailable", zap.String("addr", cfg.Events.Addr), zap.Error(err))
		}
		return nil
	}
	return publisher
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
