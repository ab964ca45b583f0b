package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/storelens/storelens/internal/config"
	"github.com/storelens/storelens/internal/observability"
)

const initProviderID = "storelens-openai"

var (
	doctorInitForce     bool
	doctorInitGraderKey string
	doctorResetConfig   bool
	doctorResetData     bool
	doctorResetAll      bool
)

var doctorInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := requireConfigPath()
		if err != nil {
			return err
		}
		if fileExists(path) && !doctorInitForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", path)
		}

		key := strings.TrimSpace(doctorInitGraderKey)
		if strings.EqualFold(key, "prompt") {
			if key, err = promptForValue(cmd.InOrStdin(), cmd.OutOrStdout(), "Enter grader API key (leave blank to skip): "); err != nil {
				return err
			}
		}

		body, err := buildInitConfig(key, envPrefixForDocs())
		if err != nil {
			return err
		}
		// A config holding a key is readable by the owner only.
		mode := fs.FileMode(0o644)
		if key != "" {
			mode = 0o600
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
		if err := os.WriteFile(path, body, mode); err != nil {
			return fmt.Errorf("write config file: %w", err)
		}
		observability.CLILogger.Info("Config initialized", zap.String("path", path))
		return nil
	},
}

var doctorConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show configuration status and paths",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := observability.CLILogger
		log.Info("Configuration:")
		for _, p := range []struct{ label, path string }{
			{"Config file", config.DefaultConfigPath()},
			{"Data directory", config.DefaultDataDir()},
			{"Report dir", config.DefaultReportDir()},
		} {
			log.Info(fmt.Sprintf("  %-15s %s", p.label+":", pathStatus(p.path)))
		}

		cfg, err := config.Load(cmd.Context())
		if err != nil {
			log.Warn("Config load failed", zap.Error(err))
			return nil
		}
		log.Info("  Store:          " + describeStore(cfg.Store))

		prefix := envPrefixForDocs()
		log.Info("")
		log.Info("Environment:")
		for _, name := range []string{"SCRAPER_API_KEY", "PAGESPEED_API_KEY", "ADMIN_TOKEN"} {
			state := "(not set)"
			if strings.TrimSpace(os.Getenv(prefix+name)) != "" {
				state = "(set)"
			}
			log.Info(fmt.Sprintf("  %s%s: %s", prefix, name, state))
		}

		log.Info("")
		log.Info("Effective Settings:")
		log.Info("  grader.mode: " + cfg.Grader.Mode)
		log.Info(fmt.Sprintf("  scraper.enabled: %t", cfg.Scraper.Enabled))
		log.Info(fmt.Sprintf("  performance.enabled: %t", cfg.Performance.Enabled))
		log.Info(fmt.Sprintf("  events.enabled: %t", cfg.Events.Enabled))
		log.Info(fmt.Sprintf("  workers.count: %d", cfg.Workers.Count))
		return nil
	},
}

var doctorResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Remove the user config file and/or the local database",
	RunE: func(cmd *cobra.Command, args []string) error {
		resetConfig := doctorResetConfig || doctorResetAll
		resetData := doctorResetData || doctorResetAll
		if !resetConfig && !resetData {
			return errors.New("specify --config, --data, or --all")
		}

		if resetConfig {
			if path := config.DefaultConfigPath(); path == "" {
				observability.CLILogger.Warn("Config path not resolved; skipping config reset")
			} else if err := removeFile("Config", path); err != nil {
				return err
			}
		}
		if !resetData {
			return nil
		}

		cfg, err := config.Load(cmd.Context())
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if strings.TrimSpace(cfg.Store.URL) != "" {
			return errors.New("remote store configured; database reset is not supported")
		}
		path, err := filepath.Abs(firstNonBlank(cfg.Store.Path, config.DefaultStorePath()))
		if err != nil {
			return err
		}
		return removeFile("Database", path)
	},
}

var doctorValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the current config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := requireConfigPath()
		if err != nil {
			return err
		}
		if !fileExists(path) {
			return fmt.Errorf("config file not found: %s", path)
		}
		cfg, err := config.Load(cmd.Context())
		if err != nil {
			return err
		}
		if _, err := buildReporter(cfg); err != nil {
			return err
		}
		if r := checkGrader(cfg); r.verdict == verdictFail {
			return fmt.Errorf("grader: %s: %w", r.detail, r.err)
		}
		observability.CLILogger.Info("Config is valid", zap.String("path", path))
		return nil
	},
}

func requireConfigPath() (string, error) {
	path := config.DefaultConfigPath()
	if path == "" {
		return "", errors.New("config path not resolved")
	}
	return path, nil
}

func removeFile(what, path string) error {
	err := os.Remove(path)
	switch {
	case err == nil:
		observability.CLILogger.Info(what+" removed", zap.String("path", path))
	case errors.Is(err, fs.ErrNotExist):
		observability.CLILogger.Info(what+" already removed", zap.String("path", path))
	default:
		return fmt.Errorf("remove %s: %w", strings.ToLower(what), err)
	}
	return nil
}

func pathStatus(path string) string {
	switch {
	case path == "":
		return "(not resolved)"
	case fileExists(path):
		return path + " (exists)"
	default:
		return path + " (missing)"
	}
}

func envPrefixForDocs() string {
	prefix := "STORELENS"
	if identity := GetAppIdentity(); identity != nil && identity.EnvPrefix != "" {
		prefix = identity.EnvPrefix
	}
	return strings.TrimSuffix(prefix, "_") + "_"
}

// buildInitConfig renders a starter config routing the grader to OpenAI.
// Without a key the file names the variable that supplies one.
func buildInitConfig(graderKey, envPrefix string) ([]byte, error) {
	cred := map[string]any{"label": "default", "enabled": true, "priority": 0}
	if graderKey != "" {
		cred["api_key"] = graderKey
	}
	doc := map[string]any{
		"ailink": map[string]any{
			"default_provider": initProviderID,
			"routing":          map[string]any{"grader": initProviderID},
			"providers": map[string]any{
				initProviderID: map[string]any{
					"enabled":     true,
					"ai_provider": "openai",
					"base_url":    "https://api.openai.com/v1",
					"models":      map[string]any{"default": "gpt-4o-mini", "vision": "gpt-4o"},
					"credentials": []any{cred},
				},
			},
		},
		"scraper":     map[string]any{"enabled": true, "base_url": ""},
		"performance": map[string]any{"enabled": true},
	}
	body, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("render config: %w", err)
	}

	header := "# storelens config, created by 'storelens doctor init'\n"
	if graderKey == "" {
		header += fmt.Sprintf("# Set the grader key with %sAILINK_PROVIDERS_%s_CREDENTIALS_0_API_KEY\n",
			envPrefix, strings.ToUpper(strings.ReplaceAll(initProviderID, "-", "_")))
	}
	header += "# scraper.base_url is the screenshot and scrape service endpoint.\n"
	return append([]byte(header), body...), nil
}

func promptForValue(in io.Reader, out io.Writer, label string) (string, error) {
	if _, err := fmt.Fprint(out, label); err != nil {
		return "", err
	}
	value, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(value), nil
}

func init() {
	doctorCmd.AddCommand(doctorInitCmd, doctorConfigCmd, doctorResetCmd, doctorValidateCmd)

	doctorInitCmd.Flags().BoolVar(&doctorInitForce, "force", false, "overwrite existing config file")
	doctorInitCmd.Flags().StringVar(&doctorInitGraderKey, "grader-key", "", "set the grader api key or use 'prompt' to enter")

	doctorResetCmd.Flags().BoolVar(&doctorResetConfig, "config", false, "remove user config file")
	doctorResetCmd.Flags().BoolVar(&doctorResetData, "data", false, "remove local database")
	doctorResetCmd.Flags().BoolVar(&doctorResetAll, "all", false, "remove config and data")
}
