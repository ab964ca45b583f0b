package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/storelens/storelens/internal/ailink"
	"github.com/storelens/storelens/internal/ailink/prompt"
	"github.com/storelens/storelens/internal/config"
	"github.com/storelens/storelens/internal/core"
	"github.com/storelens/storelens/internal/core/grader"
	"github.com/storelens/storelens/internal/events"
	"github.com/storelens/storelens/internal/observability"
)

type verdict int

const (
	verdictOK verdict = iota
	// verdictNote is a degraded setup that still audits.
	verdictNote
	verdictFail
)

func (v verdict) mark() string {
	switch v {
	case verdictOK:
		return "✅"
	case verdictNote:
		return "⚠️ "
	default:
		return "❌"
	}
}

type checkResult struct {
	verdict verdict
	detail  string
	err     error
}

func passed(format string, args ...any) checkResult {
	return checkResult{verdict: verdictOK, detail: fmt.Sprintf(format, args...)}
}

func noted(format string, args ...any) checkResult {
	return checkResult{verdict: verdictNote, detail: fmt.Sprintf(format, args...)}
}

func failed(detail string, err error) checkResult {
	return checkResult{verdict: verdictFail, detail: detail, err: err}
}

// doctorCheck inspects one dependency of an audit. Checks after the
// configuration check receive the loaded config.
type doctorCheck struct {
	label string
	run   func(ctx context.Context, cfg *config.Config) checkResult
}

var doctorChecks = []doctorCheck{
	{"store", checkStore},
	{"scraping service", checkScraper},
	{"performance API", checkPerformance},
	{"grader", func(_ context.Context, cfg *config.Config) checkResult { return checkGrader(cfg) }},
	{"event publisher", checkEvents},
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long:  "Run diagnostic checks on the installation and the services an audit depends on.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		log := observability.CLILogger
		appName := binaryName()
		log.Info("=== " + appName + " doctor ===")
		log.Info("")

		total := len(doctorChecks) + 3
		n := 0
		healthy := true
		report := func(label string, r checkResult) {
			n++
			line := fmt.Sprintf("[%d/%d] Checking %s... %s %s", n, total, label, r.verdict.mark(), r.detail)
			fields := []zap.Field{zap.String("check", label)}
			if r.err != nil {
				fields = append(fields, zap.Error(r.err))
			}
			switch r.verdict {
			case verdictOK:
				log.Info(line, fields...)
			case verdictNote:
				log.Warn(line, fields...)
			default:
				healthy = false
				log.Error(line, fields...)
			}
		}

		report("Go version", passed("%s", runtime.Version()))
		report("Fulmen libraries", checkFulmen())

		cfg, err := config.Load(ctx)
		if err != nil {
			report("configuration", failed("failed to load", err))
			log.Info("")
			log.Warn("⚠️  Remaining checks need a loadable configuration.")
			return
		}
		report("configuration", passed("%s", describeConfigFile()))

		for _, check := range doctorChecks {
			report(check.label, check.run(ctx, cfg))
		}

		log.Info("")
		if healthy {
			log.Info(fmt.Sprintf("✅ All checks passed! Your %s installation is healthy.", appName))
		} else {
			log.Warn("⚠️  Some checks failed. Review the output above for details.")
		}
	},
}

func checkFulmen() checkResult {
	version := crucible.GetVersion()
	if version.Gofulmen == "" {
		return failed("version unknown", nil)
	}
	return passed("gofulmen v%s, crucible v%s", version.Gofulmen, version.Crucible)
}

func checkStore(ctx context.Context, cfg *config.Config) checkResult {
	db, err := openConfiguredStore(ctx, cfg.Store)
	if err != nil {
		return failed("cannot open "+storeLabel(cfg.Store), err)
	}
	defer db.Close() // nolint:errcheck // best-effort cleanup

	pending, err := db.ListRuns(ctx, 100, core.StatusPending)
	if err != nil {
		return failed("migrated but unreadable", err)
	}
	return passed("%s (%d pending runs)", describeStore(cfg.Store), len(pending))
}

func checkScraper(_ context.Context, cfg *config.Config) checkResult {
	if !cfg.Scraper.Enabled || strings.TrimSpace(cfg.Scraper.BaseURL) == "" {
		return noted("not configured; audits fall back to a plain fetch without screenshots")
	}
	return passed("%s", cfg.Scraper.BaseURL)
}

func checkPerformance(_ context.Context, cfg *config.Config) checkResult {
	switch {
	case !cfg.Performance.Enabled:
		return passed("disabled")
	case strings.TrimSpace(cfg.Performance.APIKey) == "":
		return noted("no api key; anonymous requests are heavily rate limited")
	default:
		return passed("%s (%s)", cfg.Performance.BaseURL, cfg.Performance.Strategy)
	}
}

// checkGrader reports whether vision grading is usable and which provider
// serves it. A missing backend is a note: audits then grade with the mock.
func checkGrader(cfg *config.Config) checkResult {
	if strings.EqualFold(strings.TrimSpace(cfg.Grader.Mode), graderModeMock) {
		return passed("mock mode")
	}
	prompts, err := prompt.DefaultRegistry(cfg.AILink.PromptsDir)
	if err != nil {
		return failed("prompts invalid", err)
	}
	slug := firstNonBlank(cfg.Grader.PromptSlug, grader.DefaultPromptSlug)
	promptDef, err := prompts.Get(slug)
	if err != nil {
		return failed(fmt.Sprintf("prompt %q missing", slug), err)
	}
	if !hasUsableCredential(cfg.AILink) {
		return noted("no AI provider with credentials; audits use the mock grader")
	}
	role := firstNonBlank(cfg.Grader.Role, grader.DefaultRole)
	resolved, err := ailink.NewRegistry(cfg.AILink).Resolve(role, promptDef, cfg.Grader.Model, cfg.Grader.Tier)
	if err != nil {
		return failed(fmt.Sprintf("role %q unresolved", role), err)
	}
	return passed("%s via %s", resolved.Model, resolved.ProviderID)
}

func hasUsableCredential(cfg ailink.Config) bool {
	for _, provider := range cfg.Providers {
		if !provider.Enabled {
			continue
		}
		for _, cred := range provider.Credentials {
			if cred.Enabled && strings.TrimSpace(cred.APIKey) != "" {
				return true
			}
		}
	}
	return false
}

func checkEvents(ctx context.Context, cfg *config.Config) checkResult {
	if !cfg.Events.Enabled {
		return passed("disabled")
	}
	publisher, err := events.Connect(ctx, cfg.Events)
	if err != nil {
		return failed("unreachable at "+cfg.Events.Addr, err)
	}
	_ = publisher.Close()
	return passed("%s", cfg.Events.Addr)
}

func describeConfigFile() string {
	path := config.DefaultConfigPath()
	switch {
	case path == "":
		return "defaults only (config path not resolved)"
	case !fileExists(path):
		return "defaults only (" + path + " missing)"
	default:
		return path
	}
}

func describeStore(cfg config.StoreConfig) string {
	if strings.TrimSpace(cfg.URL) != "" {
		return storeLabel(cfg) + " (remote)"
	}
	path, _ := filepath.Abs(firstNonBlank(cfg.Path, config.DefaultStorePath()))
	if info, err := os.Stat(path); err == nil {
		return fmt.Sprintf("%s (%s)", path, formatFileSize(info.Size()))
	}
	return path
}

// formatFileSize renders bytes in binary units.
func formatFileSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d bytes", bytes)
	}
	value, suffix := float64(bytes)/unit, "KB"
	for _, next := range []string{"MB", "GB"} {
		if value < unit {
			break
		}
		value, suffix = value/unit, next
	}
	return fmt.Sprintf("%.1f %s", value, suffix)
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
