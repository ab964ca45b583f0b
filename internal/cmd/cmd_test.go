package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fulmenhq/gofulmen/appidentity"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/storelens/storelens/internal/ailink"
	"github.com/storelens/storelens/internal/ailink/prompt"
	"github.com/storelens/storelens/internal/config"
	"github.com/storelens/storelens/internal/core"
	"github.com/storelens/storelens/internal/core/collector"
	"github.com/storelens/storelens/internal/core/engine"
	"github.com/storelens/storelens/internal/core/grader"
	"github.com/storelens/storelens/internal/core/platform"
	"github.com/storelens/storelens/internal/core/scoring"
	"github.com/storelens/storelens/internal/core/store"
	"github.com/storelens/storelens/internal/output"
	"github.com/storelens/storelens/internal/worker"
)

func TestExitCodeFor(t *testing.T) {
	require.Equal(t, foundry.ExitCode(0), exitCodeFor(nil))
	require.Equal(t, exitUsage, exitCodeFor(core.NewValidationError("bad url")))
	require.Equal(t, exitUsage, exitCodeFor(fmt.Errorf("line 3: %w", core.NewValidationError("bad url"))))
	require.Equal(t, foundry.ExitExternalServiceUnavailable, exitCodeFor(core.NewFatalError("collect", "no capture", errors.New("timeout"))))
	require.Equal(t, foundry.ExitFailure, exitCodeFor(errors.New("boom")))
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Grader.Mode = graderModeMock
	cfg.Fetch.Enabled = true
	cfg.Scraper.Enabled = true
	cfg.Scraper.BaseURL = "https://scrape.example.test"
	cfg.Timeouts.Collect = 30 * time.Second
	return cfg
}

func TestBuildAttemptsOrdersScrapeBeforeFetch(t *testing.T) {
	attempts := buildAttempts(testConfig())
	require.Len(t, attempts, 2)
	require.Equal(t, "scrape", attempts[0].Name)
	require.Equal(t, "fetch", attempts[1].Name)
	require.Equal(t, 30*time.Second, attempts[0].Timeout)
}

func TestDefaultConfigFetchSendsMobileUserAgent(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	config.SetConfigFile("")

	cfg, err := config.Load(context.Background())
	require.NoError(t, err)

	var ua string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.UserAgent()
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body>shop</body></html>"))
	}))
	defer srv.Close()

	var fetch *engine.Attempt
	attempts := buildAttempts(cfg)
	for i := range attempts {
		if attempts[i].Name == "fetch" {
			fetch = &attempts[i]
		}
	}
	require.NotNil(t, fetch)
	_, err = fetch.Collector.Collect(context.Background(), srv.URL, core.PlatformUnknown)
	require.NoError(t, err)
	require.Contains(t, ua, "Mobile")
	require.Equal(t, collector.DefaultMobileUserAgent, ua)
}

func TestBuildAttemptsSkipsScraperWithoutBaseURL(t *testing.T) {
	cfg := testConfig()
	cfg.Scraper.BaseURL = "  "
	attempts := buildAttempts(cfg)
	require.Len(t, attempts, 1)
	require.Equal(t, "fetch", attempts[0].Name)
}

func TestBuildOrchestratorWithoutStore(t *testing.T) {
	o, err := buildOrchestrator(testConfig(), pipelineOptions{NoReport: true})
	require.NoError(t, err)
	require.IsType(t, grader.MockGrader{}, o.Grader)
	require.Nil(t, o.Limiter)
	require.Nil(t, o.Progress)
	require.Nil(t, o.Reporter)
	require.Nil(t, o.Performance)

	_, err = buildOrchestrator(nil, pipelineOptions{})
	require.Error(t, err)
}

func TestBuildOrchestratorFallsBackToMockWithoutProviderKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>Daily Goods</title></head><body><h1>Daily Goods</h1></body></html>`))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Grader.Mode = "vision"
	cfg.Scraper.Enabled = false
	cfg.AILink.Providers = map[string]ailink.ProviderInstanceConfig{
		"openai-main": {
			Enabled:     true,
			AIProvider:  "openai",
			Models:      map[string]string{"default": "gpt-4o-mini"},
			Credentials: []ailink.CredentialConfig{{APIKey: "  "}},
		},
	}

	o, err := buildOrchestrator(cfg, pipelineOptions{NoReport: true})
	require.NoError(t, err)
	require.Nil(t, o.Grader)
	require.IsType(t, grader.MockGrader{}, o.Fallback)

	run, err := core.NewAuditRun(srv.URL, time.Now())
	require.NoError(t, err)
	result, err := o.Run(context.Background(), run)
	require.NoError(t, err)
	require.Equal(t, core.StatusCompleted, result.Run.Status)
	require.Len(t, result.Categories, 10)
}

func TestBuildOrchestratorRejectsWeakPlatformRules(t *testing.T) {
	cfg := testConfig()
	cfg.Platform.Platforms = []platform.PlatformRule{{
		Name:    "makeshop",
		Signals: []platform.Signal{{Channel: platform.ChannelScript, Pattern: "makeshop.jp", Weight: 0.3}},
	}}
	_, err := buildOrchestrator(cfg, pipelineOptions{NoReport: true})
	require.ErrorContains(t, err, "platform rules")
}

func TestBuildReporterRejectsUnknownFormat(t *testing.T) {
	cfg := testConfig()
	cfg.Report.Formats = []string{"markdown", "pdf"}
	_, err := buildReporter(cfg)
	require.ErrorContains(t, err, "report formats")

	cfg.Report.Formats = []string{"json"}
	cfg.Report.Dir = t.TempDir()
	reporter, err := buildReporter(cfg)
	require.NoError(t, err)
	require.Len(t, reporter.Formats, 1)
}

func TestServerOverrides(t *testing.T) {
	require.Nil(t, serverOverrides("", 0))
	require.Equal(t, map[string]any{"server": map[string]any{"host": "0.0.0.0", "port": 9000}}, serverOverrides(" 0.0.0.0 ", 9000))
}

func TestAdminTokenEnv(t *testing.T) {
	require.Equal(t, "STORELENS_ADMIN_TOKEN", adminTokenEnv("STORELENS_"))
	require.Equal(t, "ACME_ADMIN_TOKEN", adminTokenEnv("ACME"))
	require.Equal(t, "STORELENS_ADMIN_TOKEN", adminTokenEnv(""))
}

func TestPipelineInfo(t *testing.T) {
	cfg := testConfig()
	o, err := buildOrchestrator(cfg, pipelineOptions{NoReport: true})
	require.NoError(t, err)

	info := pipelineInfo(cfg, o)
	require.Equal(t, graderModeMock, info.Grader)
	require.Empty(t, info.PromptSlug)
	require.InDelta(t, scoring.DefaultDamping, info.HybridDamping, 1e-9)

	o.Grader = &grader.VisionGrader{PromptSlug: "storefront-audit"}
	cfg.Scoring.Damping = 0.5
	info = pipelineInfo(cfg, o)
	require.Equal(t, "vision", info.Grader)
	require.Equal(t, "storefront-audit", info.PromptSlug)
	require.InDelta(t, 0.5, info.HybridDamping, 1e-9)
}

func TestOutputPath(t *testing.T) {
	path, err := outputPath("", "", "shop.example.com", output.FormatJSON)
	require.NoError(t, err)
	require.Empty(t, path)

	path, err = outputPath(" report.md ", "", "ignored", output.FormatMarkdown)
	require.NoError(t, err)
	require.Equal(t, "report.md", path)

	path, err = outputPath("", "reports", "Shop.Example.com", output.FormatMarkdown)
	require.NoError(t, err)
	require.Equal(t, filepath.Join("reports", "shop.example.com.md"), path)

	_, err = outputPath("a.json", "reports", "x", output.FormatJSON)
	require.ErrorContains(t, err, "mutually exclusive")
}

func TestSanitizeFilename(t *testing.T) {
	require.Equal(t, "shop.example.com", sanitizeFilename("Shop.Example.com"))
	require.Equal(t, "a-b", sanitizeFilename("  a / b "))
	require.Equal(t, "output", sanitizeFilename("..."))
}

func TestWriteVersion(t *testing.T) {
	SetVersionInfo("1.4.0", "abc1234", "2026-03-01")

	var short strings.Builder
	writeVersion(&short, "storelens", false)
	require.Equal(t, "storelens 1.4.0\n", short.String())

	var long strings.Builder
	writeVersion(&long, "storelens", true)
	require.Contains(t, long.String(), "Commit:     abc1234")
	require.Contains(t, long.String(), "Prompt:     "+grader.DefaultPromptSlug)
	require.Contains(t, long.String(), "Categories: 10 (hybrid damping 0.7)")
}

func TestParseBatchTargets(t *testing.T) {
	input := strings.Join([]string{
		"# storefronts",
		"shop.example.com",
		"",
		"https://shop.example.com",
		"https://other.example.org/collections",
	}, "\n")

	runs, err := parseBatchTargets(strings.NewReader(input), time.Unix(1700000000, 0))
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "https://shop.example.com", runs[0].TargetURL)
	require.Equal(t, core.StatusPending, runs[0].Status)
	require.NotEqual(t, runs[0].ID, runs[1].ID)
}

func TestParseBatchTargetsReportsLine(t *testing.T) {
	_, err := parseBatchTargets(strings.NewReader("shop.example.com\nftp://nope\n"), time.Now())
	require.ErrorContains(t, err, "line 2")
	require.True(t, core.IsKind(err, core.KindValidation))

	_, err = parseBatchTargets(strings.NewReader("# only comments\n"), time.Now())
	require.True(t, core.IsKind(err, core.KindValidation))
}

type scriptedAuditor struct {
	fail map[string]bool
}

func (a scriptedAuditor) Run(_ context.Context, run core.AuditRun) (*core.AuditResult, error) {
	if a.fail[run.TargetURL] {
		return nil, core.NewFatalError("collect", "no capture could be collected", errors.New("dial timeout"))
	}
	run.Status = core.StatusCompleted
	run.Progress = 100
	return &core.AuditResult{Run: run}, nil
}

func TestRunBatchAuditsKeepsOrderAndIsolatesFailures(t *testing.T) {
	runs, err := parseBatchTargets(strings.NewReader("a.example.com\nb.example.com\nc.example.com\n"), time.Now())
	require.NoError(t, err)

	runner := &worker.Runner{Auditor: scriptedAuditor{fail: map[string]bool{"https://b.example.com": true}}}
	finished := runBatchAudits(context.Background(), runner, nil, runs, 2)

	require.Len(t, finished, 3)
	require.Equal(t, core.StatusCompleted, finished[0].Status)
	require.Equal(t, core.StatusFailed, finished[1].Status)
	require.NotEmpty(t, finished[1].Error)
	require.Equal(t, core.StatusCompleted, finished[2].Status)
	for i := range runs {
		require.Equal(t, runs[i].ID, finished[i].ID)
	}
}

func TestApplyIdentity(t *testing.T) {
	root := &cobra.Command{Use: "a.out"}
	root.PersistentFlags().String("config", "", "config file")

	applyIdentity(root, nil)
	require.Equal(t, "a.out", root.Use)

	applyIdentity(root, &appidentity.Identity{BinaryName: "storelens", Description: "Storefront audits", ConfigName: "storelens"})
	require.Equal(t, "storelens", root.Use)
	require.Equal(t, "Storefront audits", root.Short)
	require.True(t, strings.HasPrefix(root.Long, "storelens - Storefront audits"))
	require.Contains(t, root.PersistentFlags().Lookup("config").Usage, "$XDG_CONFIG_HOME/storelens/config.yaml")
}

func TestStoreLabelHidesURLs(t *testing.T) {
	require.Equal(t, "runs.db", storeLabel(config.StoreConfig{Path: "runs.db"}))
	require.Equal(t, "postgres", storeLabel(config.StoreConfig{Driver: "postgres", URL: "postgres://u:secret@db/runs"}))
	require.Equal(t, "libsql", storeLabel(config.StoreConfig{URL: "libsql://runs.turso.io?authToken=x"}))
}

func TestRateLimitFlagsQuery(t *testing.T) {
	q, err := rateLimitFlags{service: " PageSpeed "}.query()
	require.NoError(t, err)
	require.Equal(t, "pagespeed", q.Service)

	_, err = rateLimitFlags{service: "pagespeed", all: true}.query()
	require.ErrorContains(t, err, "mutually exclusive")

	_, err = rateLimitFlags{service: "gemini"}.query()
	require.ErrorContains(t, err, `unknown service "gemini"`)

	_, err = rateLimitFlags{}.query()
	require.ErrorContains(t, err, "--all or --service")

	_, err = rateLimitFlags{format: "markdown"}.outputFormat()
	require.ErrorContains(t, err, "unsupported output format")
}

func TestRateLimitTableMarksActiveBackoff(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	until := now.Add(time.Minute)
	rendered := rateLimitTable([]store.RateLimitEntry{
		{Service: "grader", State: core.RateLimitState{RequestCount: 4, WindowStart: now, BackoffUntil: &until}},
	}, now)
	require.Contains(t, rendered, "grader")
	require.Contains(t, rendered, "(active)")

	require.Contains(t, rateLimitTable(nil, now), "no stored rate limit state")
}

func TestWriteResetResult(t *testing.T) {
	var text strings.Builder
	require.NoError(t, writeResetResult(&text, output.FormatTable, resetResult{Matched: 2, DryRun: true}))
	require.Equal(t, "Would delete 2 rate limit window(s)\n", text.String())

	var payload strings.Builder
	require.NoError(t, writeResetResult(&payload, output.FormatJSON, resetResult{Matched: 2, Deleted: 2}))
	require.JSONEq(t, `{"matched":2,"deleted":2,"dry_run":false}`, payload.String())
}

func TestConfigSectionsListProvidersWithoutSecrets(t *testing.T) {
	cfg := testConfig()
	cfg.Store.Driver = "postgres"
	cfg.Store.URL = "postgres://u:secret@db/runs"
	cfg.AILink.Providers = map[string]ailink.ProviderInstanceConfig{
		"xai-main":    {Enabled: true, AIProvider: "xai", Models: map[string]string{"default": "grok-4"}, Credentials: []ailink.CredentialConfig{{APIKey: "k1"}, {APIKey: ""}}},
		"openai-main": {AIProvider: "openai"},
	}

	sections := configSections(cfg)
	require.Len(t, sections, 3)
	for _, section := range sections {
		for _, row := range section.rows {
			require.NotContains(t, row.value, "secret")
			require.NotContains(t, row.value, "k1")
		}
	}

	ai := sections[2].rows
	require.Equal(t, envRow{"Default Provider", "(unset)"}, ai[0])
	require.Equal(t, "openai-main", ai[2].label)
	require.Equal(t, "disabled (openai)  model= keys=0", ai[2].value)
	require.Equal(t, "xai-main", ai[3].label)
	require.Contains(t, ai[3].value, "keys=1")
}

func TestEnabledLabel(t *testing.T) {
	require.Equal(t, "enabled", enabledLabel(true, " "))
	require.Equal(t, "disabled (mobile)", enabledLabel(false, "mobile"))
}

func TestWritePrompt(t *testing.T) {
	p := &prompt.Prompt{
		Source: "embedded/storefront-audit.md",
		Schema: []byte(`{"type":"object"}`),
		Config: prompt.Config{
			Slug:           "storefront-audit",
			Version:        "2",
			Input:          prompt.InputSpec{RequiredVariables: []string{"url"}, MaxImages: 2},
			SystemTemplate: "You audit storefronts.\n",
			UserTemplate:   "Audit {{.url}}",
		},
	}

	var out strings.Builder
	require.NoError(t, writePrompt(&out, p))
	require.Contains(t, out.String(), "storefront-audit 2 (embedded/storefront-audit.md)")
	require.Contains(t, out.String(), "required: url")
	require.Contains(t, out.String(), "--- response schema ---\n{\"type\":\"object\"}")

	var list strings.Builder
	require.NoError(t, writePromptTable(&list, nil))
	require.Equal(t, "No prompts found.\n", list.String())
}

func TestRouteTable(t *testing.T) {
	rendered := routeTable("grader", []*ailink.ResolvedProvider{
		{ProviderID: "xai-main", Model: "grok-4", BaseURL: "https://api.x.ai/v1"},
		{ProviderID: "openai-main", Model: "gpt-4o", Credential: ailink.CredentialConfig{Label: "team"}},
	})
	require.Contains(t, rendered, "xai-main")
	require.Contains(t, rendered, "(unlabelled)")
	require.Contains(t, rendered, "team")
}
