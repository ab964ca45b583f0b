package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/storelens/storelens/internal/config"
	"github.com/storelens/storelens/internal/core/engine"
	"github.com/storelens/storelens/internal/core/grader"
	"github.com/storelens/storelens/internal/core/scoring"
	errwrap "github.com/storelens/storelens/internal/errors"
	"github.com/storelens/storelens/internal/observability"
	"github.com/storelens/storelens/internal/server"
	"github.com/storelens/storelens/internal/server/handlers"
	"github.com/storelens/storelens/internal/worker"
)

var (
	serverPort int
	serverHost string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and audit workers",
	Long: `Start the HTTP API with a background pool that drains pending audits.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Config reload (logged; restart to apply pipeline changes)

Shutdown stops accepting requests, lets in-flight audits finish, then closes
the store and flushes logs.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "", "server host (overrides server.host)")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 0, "server port (overrides server.port)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	identity := GetAppIdentity()
	namespace := identity.TelemetryNamespace()

	overrides := serverOverrides(serverHost, serverPort)
	cfg, err := config.Load(ctx, overrides)
	if err != nil {
		ExitWithCodeStderr(foundry.ExitConfigInvalid, "Failed to load configuration", err)
		return err
	}

	observability.InitServerLogger(identity.BinaryName, cfg.Logging, namespace)
	logger := observability.ServerLogger

	metricsPort := cfg.Metrics.Port
	if metricsPort == 0 {
		metricsPort = 9090
	}
	if cfg.Metrics.Enabled {
		if err := observability.InitMetrics(identity.BinaryName, metricsPort, namespace); err != nil {
			logger.Error("Failed to initialize metrics", zap.Error(err))
			return errwrap.WrapInternal(ctx, err, "metrics initialization failed")
		}
	}

	logger.Info("Initializing server",
		zap.String("service", identity.BinaryName),
		zap.String("namespace", namespace),
		zap.String("version", versionInfo.Version),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.Int("metrics_port", metricsPort),
		zap.Int("workers", cfg.Workers.Count))

	db, err := openConfiguredStore(ctx, cfg.Store)
	if err != nil {
		return errwrap.WrapDatabaseError(ctx, err, "open store")
	}

	opts := pipelineOptions{Store: db, Logger: logger}
	publisher := connectEvents(ctx, cfg, logger)
	if publisher != nil {
		opts.Events = publisher
	}

	orchestrator, err := buildOrchestrator(cfg, opts)
	if err != nil {
		_ = db.Close()
		return errwrap.WrapConfigInvalid(ctx, err, "pipeline configuration invalid")
	}

	runner := &worker.Runner{
		Store:        db,
		Auditor:      orchestrator,
		Workers:      cfg.Workers.Count,
		PollInterval: cfg.Workers.PollInterval,
		Logger:       logger,
	}
	audits := &handlers.Audits{Store: db}
	if publisher != nil {
		runner.Notifier = publisher
		audits.Notifier = publisher
	}

	health := handlers.NewHealthManager(versionInfo.Version)
	health.RegisterChecker("store", handlers.CheckerFunc(func(ctx context.Context) error {
		return db.DB.PingContext(ctx)
	}))
	if publisher != nil {
		health.RegisterOptionalChecker("events", handlers.CheckerFunc(publisher.Ping))
	}
	if cfg.Metrics.Enabled {
		health.RegisterOptionalChecker("telemetry", handlers.CheckerFunc(func(context.Context) error {
			if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
				return errors.New("telemetry system not initialized")
			}
			return nil
		}))
	}

	handlers.SetAppIdentity(identity)
	handlers.SetPipelineInfo(pipelineInfo(cfg, orchestrator))
	srv := server.New(server.Options{
		Config:      cfg.Server,
		MetricsPort: metricsPort,
		AdminToken:  os.Getenv(adminTokenEnv(identity.EnvPrefix)),
		Pprof:       cfg.Debug.Enabled && cfg.Debug.PprofEnabled,
		Health:      health,
		Audits:      audits,
	})

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 10 * time.Second
	}

	// Shutdown handlers run LIFO: server, workers, store, then logger.
	signals.OnShutdown(func(ctx context.Context) error {
		logger.Info("Flushing logger...")
		if err := logger.Sync(); err != nil {
			logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
		}
		return nil
	})
	signals.OnShutdown(func(ctx context.Context) error {
		if err := publisher.Close(); err != nil {
			logger.Warn("Event publisher close failed", zap.Error(err))
		}
		if err := db.Close(); err != nil {
			return errwrap.WrapDatabaseError(ctx, err, "store close failed")
		}
		return nil
	})
	signals.OnShutdown(func(ctx context.Context) error {
		logger.Info("Waiting for in-flight audits...")
		runner.Stop()
		return nil
	})
	signals.OnShutdown(func(ctx context.Context) error {
		logger.Info("Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errwrap.WrapInternal(ctx, err, "server shutdown failed")
		}
		logger.Info("HTTP server stopped gracefully")
		return nil
	})

	signals.OnReload(func(ctx context.Context) error {
		logger.Info("Received SIGHUP: attempting config reload")
		if _, err := config.Load(ctx, overrides); err != nil {
			logger.Error("Failed to reload config", zap.Error(err))
			return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
		}
		logger.Info("Configuration reloaded; restart to apply pipeline changes")
		return nil
	})

	if err := config.Watch(ctx, func(_ *config.Config, event fsnotify.Event, err error) {
		if err != nil {
			logger.Warn("Config file change rejected", zap.String("file", event.Name), zap.Error(err))
			return
		}
		logger.Info("Config file changed", zap.String("file", event.Name))
	}); err != nil && !errors.Is(err, config.ErrNoConfigFile) {
		logger.Warn("Config watch unavailable", zap.Error(err))
	}

	if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
		Window:  2 * time.Second,
		Message: "Press Ctrl+C again within 2 seconds to force quit",
	}); err != nil {
		logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
	}

	if err := runner.Start(ctx); err != nil {
		_ = db.Close()
		return errwrap.WrapInternal(ctx, err, "worker pool failed to start")
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server...",
			zap.String("host", cfg.Server.Host),
			zap.Int("port", srv.Port()))
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go func() {
		if err := signals.Listen(ctx); err != nil {
			logger.Error("Signal handler error", zap.Error(err))
			errChan <- err
		}
	}()

	if err := <-errChan; err != nil {
		runner.Stop()
		_ = db.Close()
		return errwrap.WrapInternal(ctx, err, "server error")
	}
	return nil
}

// serverOverrides layers --host and --port over the loaded server config.
func serverOverrides(host string, port int) map[string]any {
	values := map[string]any{}
	if strings.TrimSpace(host) != "" {
		values["host"] = strings.TrimSpace(host)
	}
	if port != 0 {
		values["port"] = port
	}
	if len(values) == 0 {
		return nil
	}
	return map[string]any{"server": values}
}

// pipelineInfo describes the grader and scoring setup on /version.
func pipelineInfo(cfg *config.Config, o *engine.Orchestrator) handlers.PipelineInfo {
	info := handlers.PipelineInfo{Grader: graderModeMock, HybridDamping: cfg.Scoring.Damping}
	if o != nil {
		if vision, ok := o.Grader.(*grader.VisionGrader); ok {
			info.Grader = "vision"
			info.PromptSlug = vision.PromptSlug
		}
	}
	if info.HybridDamping <= 0 {
		info.HybridDamping = scoring.DefaultDamping
	}
	return info
}

func adminTokenEnv(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "STORELENS"
	}
	return strings.TrimSuffix(prefix, "_") + "_ADMIN_TOKEN"
}
