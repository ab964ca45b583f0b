package config

import (
	"path/filepath"
	"strings"

	gfconfig "github.com/fulmenhq/gofulmen/config"
)

const fallbackAppName = "storelens"

// appNames are the identity names that shape XDG paths. The config name
// picks directories; the binary name picks the database file.
type appNames struct {
	config string
	binary string
}

func currentNames() appNames {
	names := appNames{config: fallbackAppName, binary: fallbackAppName}
	if appIdentity == nil {
		return names
	}
	if name := strings.TrimSpace(appIdentity.ConfigName); name != "" {
		names.config = name
	}
	if name := strings.TrimSpace(appIdentity.BinaryName); name != "" {
		names.binary = name
	}
	return names
}

// getUserConfigPaths lists candidate user config files. The binary name is
// accepted as a legacy directory when it differs from the config name.
func getUserConfigPaths() []string {
	names := currentNames()
	if names.binary == names.config {
		return gfconfig.GetAppConfigPaths(names.config)
	}
	return gfconfig.GetAppConfigPaths(names.config, names.binary)
}

func envPrefix() string {
	prefix := strings.ToUpper(fallbackAppName) + "_"
	if appIdentity != nil && strings.TrimSpace(appIdentity.EnvPrefix) != "" {
		prefix = appIdentity.EnvPrefix
	}
	if !strings.HasSuffix(prefix, "_") {
		prefix += "_"
	}
	return prefix
}

// DefaultConfigPath returns the XDG config file path, or "" when there is
// no config home.
func DefaultConfigPath() string {
	dir := strings.TrimSpace(gfconfig.GetAppConfigDir(currentNames().config))
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// DefaultDataDir returns the XDG data directory of the app.
func DefaultDataDir() string {
	return gfconfig.GetAppDataDir(currentNames().config)
}

// DefaultStorePath returns where the local run database lives.
func DefaultStorePath() string {
	return inDataDir(currentNames().binary + ".db")
}

// DefaultReportDir returns where report artifacts are written.
func DefaultReportDir() string {
	return inDataDir("reports")
}

// inDataDir joins name onto the data dir, falling back to the working
// directory.
func inDataDir(name string) string {
	dir := strings.TrimSpace(DefaultDataDir())
	if dir == "" {
		return "./" + name
	}
	return filepath.Join(dir, name)
}
