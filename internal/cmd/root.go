package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fulmenhq/gofulmen/appidentity"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/storelens/storelens/internal/ailink/driver"
	"github.com/storelens/storelens/internal/appid"
	"github.com/storelens/storelens/internal/config"
	"github.com/storelens/storelens/internal/observability"
)

var (
	cfgFile   string
	verbose   bool
	traceFile string

	appIdentity  *appidentity.Identity
	closeTracing func()

	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo records the ldflags build stamp.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// GetAppIdentity returns the identity loaded by initConfig.
func GetAppIdentity() *appidentity.Identity {
	return appIdentity
}

// binaryName is the identity's binary name, or "storelens" before the
// identity is loaded.
func binaryName() string {
	if appIdentity != nil && strings.TrimSpace(appIdentity.BinaryName) != "" {
		return appIdentity.BinaryName
	}
	return "storelens"
}

var rootCmd = &cobra.Command{
	Use:   filepath.Base(os.Args[0]),
	Short: "Storefront conversion audits",
	Long: `storelens collects, grades and scores e-commerce storefronts.

Use the subcommands to perform specific operations.`,
	SilenceUsage: true,
}

// Execute runs the root command and flushes the AILink trace afterwards.
func Execute() error {
	defer func() {
		if closeTracing != nil {
			closeTracing()
			closeTracing = nil
		}
	}()
	return rootCmd.Execute()
}

func init() {
	// Config loading must not emit metrics to stdout; serve installs the
	// real telemetry system later.
	if sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: false}); err == nil {
		telemetry.SetGlobalSystem(sys)
	}

	// Help text is rendered before OnInitialize runs.
	if identity, err := appid.Get(context.Background()); err == nil {
		applyIdentity(rootCmd, identity)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional; defaults to app identity config path)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")
	rootCmd.PersistentFlags().StringVar(&traceFile, "trace", "", "trace AILink requests/responses to NDJSON file")
}

// applyIdentity rewrites the root help surfaces from the app identity.
func applyIdentity(root *cobra.Command, identity *appidentity.Identity) {
	if identity == nil {
		return
	}
	if identity.BinaryName != "" {
		root.Use = identity.BinaryName
	}
	if identity.Description != "" {
		root.Short = identity.Description
		root.Long = fmt.Sprintf("%s - %s\n\nUse the subcommands to perform specific operations.", root.Use, identity.Description)
	}
	if f := root.PersistentFlags().Lookup("config"); f != nil && identity.ConfigName != "" {
		f.Usage = fmt.Sprintf("config file (default is $XDG_CONFIG_HOME/%s/config.yaml)", identity.ConfigName)
	}
}

// initConfig loads app identity, starts the CLI logger and records the
// --config override for config.Load.
func initConfig() {
	identity, err := appid.Get(context.Background())
	if err != nil {
		ExitWithCodeStderr(foundry.ExitFileNotFound, "Failed to load app identity from .fulmen/app.yaml", err)
	}
	appIdentity = identity
	applyIdentity(rootCmd, identity)

	observability.InitCLILogger(identity.BinaryName, verbose)

	if traceFile != "" {
		cleanup, err := driver.EnableTracing(traceFile)
		if err != nil {
			observability.CLILogger.Warn("Failed to enable tracing", zap.Error(err))
		} else {
			closeTracing = cleanup
			observability.CLILogger.Debug("AILink tracing enabled", zap.String("file", traceFile))
		}
	}

	config.SetConfigFile(cfgFile)
	if cfgFile != "" {
		observability.CLILogger.Debug("Using config file", zap.String("path", cfgFile))
	}
}
