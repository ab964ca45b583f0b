// Package observability owns the process loggers and the telemetry system.
package observability

import (
	"fmt"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"

	"github.com/storelens/storelens/internal/config"
)

var (
	// CLILogger is used by one-shot commands (SIMPLE profile).
	CLILogger *logging.Logger

	// ServerLogger is used by serve and its workers (STRUCTURED profile).
	ServerLogger *logging.Logger
)

// InitCLILogger starts the SIMPLE profile logger; verbose lowers it to DEBUG.
func InitCLILogger(serviceName string, verbose bool) {
	logger, err := logging.NewCLI(serviceName)
	if err != nil {
		exitWithCodeStderr(foundry.ExitConfigInvalid, "Failed to initialize CLI logger", err)
	}
	if verbose {
		logger.SetLevel(logging.DEBUG)
	}
	CLILogger = logger
}

// InitServerLogger starts the STRUCTURED profile logger with the correlation
// middleware, writing JSON to the configured console stream.
func InitServerLogger(serviceName string, cfg config.LoggingConfig, namespace string) {
	logger, err := logging.New(serverLoggerConfig(serviceName, cfg, namespace))
	if err != nil {
		exitWithCodeStderr(foundry.ExitConfigInvalid, "Failed to initialize server logger", err)
	}
	ServerLogger = logger
}

func serverLoggerConfig(serviceName string, cfg config.LoggingConfig, namespace string) *logging.LoggerConfig {
	static := map[string]any{}
	if namespace = strings.TrimSpace(namespace); namespace != "" {
		static["namespace"] = namespace
	}

	env := strings.TrimSpace(cfg.Environment)
	if env == "" {
		env = "production"
	}

	return &logging.LoggerConfig{
		Profile:      logging.ProfileStructured,
		DefaultLevel: parseLogLevel(cfg.Level),
		Service:      serviceName,
		Environment:  env,
		StaticFields: static,
		Middleware: []logging.MiddlewareConfig{
			{Name: "correlation", Enabled: true, Order: 100, Config: map[string]any{}},
		},
		Sinks: []logging.SinkConfig{
			{
				Type:    "console",
				Format:  "json",
				Console: &logging.ConsoleSinkConfig{Stream: consoleStream(cfg.Stream)},
			},
		},
		EnableCaller:     true,
		EnableStacktrace: true,
	}
}

func consoleStream(value string) string {
	if strings.EqualFold(strings.TrimSpace(value), "stdout") {
		return "stdout"
	}
	return "stderr"
}

func parseLogLevel(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "trace":
		return "TRACE"
	case "debug":
		return "DEBUG"
	case "warn", "warning":
		return "WARN"
	case "error":
		return "ERROR"
	default:
		return "INFO"
	}
}

// exitWithCodeStderr is used before any logger exists.
func exitWithCodeStderr(exitCode foundry.ExitCode, msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "FATAL: %s\n", msg)
	}
	if info, ok := foundry.GetExitCodeInfo(exitCode); ok {
		fmt.Fprintf(os.Stderr, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)
		os.Exit(info.Code)
	}
	os.Exit(int(exitCode))
}
