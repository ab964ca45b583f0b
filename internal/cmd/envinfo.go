package cmd

import (
	"fmt"
	"runtime"
	"sort"
	"strings"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/storelens/storelens/internal/config"
	"github.com/storelens/storelens/internal/observability"
)

type envRow struct {
	label string
	value string
}

type envSection struct {
	title string
	rows  []envRow
}

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display version, runtime, configuration and pipeline settings.",
	Run: func(cmd *cobra.Command, args []string) {
		name := binaryName()
		sections := []envSection{buildSection(), runtimeSection()}

		cfg, err := config.Load(cmd.Context())
		if err != nil {
			observability.CLILogger.Warn("Config load failed", zap.Error(err))
		} else {
			sections = append(sections, configSections(cfg)...)
		}

		observability.CLILogger.Info("=== " + name + " Environment Information ===")
		for _, section := range sections {
			observability.CLILogger.Info("")
			observability.CLILogger.Info(section.title + ":")
			for _, row := range section.rows {
				observability.CLILogger.Info(fmt.Sprintf("  %-18s %s", row.label+":", row.value),
					zap.String("section", strings.ToLower(section.title)), zap.String("key", row.label))
			}
		}
		observability.CLILogger.Info("")
		observability.CLILogger.Info("=== End Environment Information ===")
	},
}

func buildSection() envSection {
	ssot := crucible.GetVersion()
	return envSection{title: "Application", rows: []envRow{
		{"Name", binaryName()},
		{"Version", versionInfo.Version},
		{"Commit", versionInfo.Commit},
		{"Built", versionInfo.BuildDate},
		{"Gofulmen", ssot.Gofulmen},
		{"Crucible", ssot.Crucible},
	}}
}

func runtimeSection() envSection {
	return envSection{title: "Runtime", rows: []envRow{
		{"Go Version", runtime.Version()},
		{"Platform", runtime.GOOS + "/" + runtime.GOARCH},
		{"NumCPU", fmt.Sprint(runtime.NumCPU())},
	}}
}

func configSections(cfg *config.Config) []envSection {
	settings := envSection{title: "Configuration", rows: []envRow{
		{"Server", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)},
		{"Metrics Port", fmt.Sprint(cfg.Metrics.Port)},
		{"Log Level", cfg.Logging.Level},
		{"Log Env", cfg.Logging.Environment},
		{"Log Stream", cfg.Logging.Stream},
		{"Store", storeLabel(cfg.Store)},
		{"Config File", config.DefaultConfigPath()},
	}}

	pipeline := envSection{title: "Pipeline", rows: []envRow{
		{"Workers", fmt.Sprintf("%d every %s", cfg.Workers.Count, cfg.Workers.PollInterval)},
		{"Scraper", enabledLabel(cfg.Scraper.Enabled, cfg.Scraper.BaseURL)},
		{"Fetch", enabledLabel(cfg.Fetch.Enabled, "")},
		{"PageSpeed", enabledLabel(cfg.Performance.Enabled, cfg.Performance.Strategy)},
		{"Report", enabledLabel(cfg.Report.Enabled, strings.Join(cfg.Report.Formats, ","))},
		{"Report Dir", firstNonBlank(cfg.Report.Dir, config.DefaultReportDir())},
		{"Events", enabledLabel(cfg.Events.Enabled, cfg.Events.Addr)},
		{"Grader", fmt.Sprintf("%s role=%s prompt=%s tier=%s", cfg.Grader.Mode, cfg.Grader.Role, cfg.Grader.PromptSlug, cfg.Grader.Tier)},
	}}

	ai := envSection{title: "AILink", rows: []envRow{
		{"Default Provider", firstNonBlank(cfg.AILink.DefaultProvider, "(unset)")},
		{"Default Timeout", cfg.AILink.DefaultTimeout.String()},
	}}
	ids := make([]string, 0, len(cfg.AILink.Providers))
	for id := range cfg.AILink.Providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		p := cfg.AILink.Providers[id]
		keys := 0
		for _, cred := range p.Credentials {
			if strings.TrimSpace(cred.APIKey) != "" {
				keys++
			}
		}
		ai.rows = append(ai.rows, envRow{id, fmt.Sprintf("%s %s model=%s keys=%d",
			enabledLabel(p.Enabled, p.AIProvider), p.BaseURL, p.Models["default"], keys)})
	}

	return []envSection{settings, pipeline, ai}
}

func enabledLabel(enabled bool, detail string) string {
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	if detail = strings.TrimSpace(detail); detail != "" {
		return state + " (" + detail + ")"
	}
	return state
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}
