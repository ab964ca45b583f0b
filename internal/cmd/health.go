package cmd

import (
	"errors"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/storelens/storelens/internal/config"
	errwrap "github.com/storelens/storelens/internal/errors"
	"github.com/storelens/storelens/internal/observability"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long:  "Run a self-health check to verify the application can start successfully.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		if observability.CLILogger == nil {
			ExitWithCodeStderr(foundry.ExitConfigInvalid, "Logger not initialized", errors.New("logger not initialized"))
			return
		}
		log := observability.CLILogger
		log.Info("Running health check...")

		if versionInfo.Version == "" {
			log.Error("❌ FAIL: Version information missing")
			ExitWithCode(log, foundry.ExitConfigInvalid, "Version information missing",
				errwrap.WrapConfigInvalid(ctx, errors.New("version not set"), "Version information missing"))
			return
		}
		log.Debug("Version check passed", zap.String("version", versionInfo.Version))
		log.Info("✅ Version information available")
		log.Info("✅ Logger initialized")

		cfg, err := config.Load(ctx)
		if err != nil {
			log.Error("❌ FAIL: Configuration invalid")
			ExitWithCode(log, foundry.ExitConfigInvalid, "Configuration invalid", errwrap.WrapConfigInvalid(ctx, err, "config load failed"))
			return
		}
		log.Info("✅ Configuration loaded")

		db, err := openConfiguredStore(ctx, cfg.Store)
		if err != nil {
			log.Error("❌ FAIL: Store unavailable")
			ExitWithCode(log, foundry.ExitExternalServiceUnavailable, "Store unavailable", errwrap.WrapDatabaseError(ctx, err, "store open failed"))
			return
		}
		_ = db.Close()
		log.Info("✅ Store reachable and migrated", zap.String("driver", db.Driver()))

		log.Info("")
		log.Info("✅ All health checks passed")
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
