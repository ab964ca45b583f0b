// Package config provides centralized configuration management for storelens.
// Configuration is layered with viper:
// Layer 1: embedded defaults (defaults.yaml)
// Layer 2: the user config file (--config or the XDG path from app identity)
// Layer 3: environment variables and runtime overrides
package config

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/fulmenhq/gofulmen/appidentity"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/storelens/storelens/internal/appid"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// keyDelimiter keeps dotted map keys (scoring.messages) intact.
const keyDelimiter = "::"

// ErrNoConfigFile is returned by Watch when no user config file was loaded.
var ErrNoConfigFile = errors.New("no config file to watch")

var (
	// appConfig holds the current application configuration
	appConfig   *Config
	configMu    sync.RWMutex
	appIdentity *appidentity.Identity

	// configFile is an explicit user config path set by --config.
	configFile string
	// active is the viper instance behind appConfig.
	active       *viper.Viper
	lastOverride []map[string]any
)

// SetConfigFile pins the user config file. An empty path restores XDG
// discovery.
func SetConfigFile(path string) {
	configMu.Lock()
	defer configMu.Unlock()
	configFile = strings.TrimSpace(path)
}

// Load builds the configuration from all layers and makes it current.
// Later runtime overrides win over earlier ones. Safe to call again on reload.
func Load(ctx context.Context, runtimeOverrides ...map[string]any) (*Config, error) {
	if appIdentity == nil {
		identity, err := appid.Get(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load app identity: %w", err)
		}
		appIdentity = identity
	}

	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaultsYAML)); err != nil {
		return nil, fmt.Errorf("failed to read embedded defaults: %w", err)
	}

	if path := userConfigFile(); path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	envOverrides, err := loadEnvOverrides()
	if err != nil {
		return nil, err
	}
	for _, layer := range append([]map[string]any{envOverrides}, runtimeOverrides...) {
		if len(layer) == 0 {
			continue
		}
		if err := v.MergeConfigMap(layer); err != nil {
			return nil, fmt.Errorf("failed to merge overrides: %w", err)
		}
	}

	cfg, err := decode(v.AllSettings())
	if err != nil {
		return nil, err
	}
	applyDerivedDefaults(cfg)

	configMu.Lock()
	appConfig = cfg
	active = v
	lastOverride = runtimeOverrides
	configMu.Unlock()

	return cfg, nil
}

// Watch reloads the configuration whenever the user config file changes
// and passes the fresh value to onChange. A file that fails to load keeps
// the previous configuration; the error is passed instead.
func Watch(ctx context.Context, onChange func(cfg *Config, event fsnotify.Event, err error)) error {
	configMu.RLock()
	v := active
	configMu.RUnlock()
	if v == nil || v.ConfigFileUsed() == "" {
		return ErrNoConfigFile
	}

	v.OnConfigChange(func(event fsnotify.Event) {
		if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
			return
		}
		configMu.RLock()
		overrides := lastOverride
		configMu.RUnlock()

		cfg, err := reload(ctx, v, overrides)
		if onChange != nil {
			onChange(cfg, event, err)
		}
	})
	v.WatchConfig()
	return nil
}

// reload rebuilds the config but keeps the watched viper instance active so
// later file events still reach the same callback.
func reload(ctx context.Context, watched *viper.Viper, overrides []map[string]any) (*Config, error) {
	cfg, err := Load(ctx, overrides...)
	if err != nil {
		return nil, err
	}
	configMu.Lock()
	active = watched
	configMu.Unlock()
	return cfg, nil
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

func decode(settings map[string]any) (*Config, error) {
	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToFloat64HookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

func applyDerivedDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}
	if strings.TrimSpace(cfg.Report.Dir) == "" {
		cfg.Report.Dir = DefaultReportDir()
	}
}

func userConfigFile() string {
	configMu.RLock()
	explicit := configFile
	configMu.RUnlock()
	if explicit != "" {
		return explicit
	}

	for _, path := range getUserConfigPaths() {
		if st, err := os.Stat(path); err == nil && !st.IsDir() {
			return path
		}
	}
	return ""
}
