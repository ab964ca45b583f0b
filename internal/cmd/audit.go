package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/storelens/storelens/internal/config"
	"github.com/storelens/storelens/internal/core"
	"github.com/storelens/storelens/internal/core/store"
	"github.com/storelens/storelens/internal/observability"
	"github.com/storelens/storelens/internal/output"
	"github.com/storelens/storelens/internal/worker"
)

var auditCmd = &cobra.Command{
	Use:   "audit <url>",
	Short: "Audit a storefront",
	Long: `Collect, grade and score a storefront URL and print the result.

The run is recorded in the store unless --no-store is given. Report
artifacts are written to report.dir unless --no-report is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)

	auditCmd.Flags().String("format", string(output.FormatTable), "Output format: table, json, markdown")
	auditCmd.Flags().Bool("no-store", false, "Do not record the run")
	auditCmd.Flags().Bool("mock-grader", false, "Grade with the deterministic mock grader")
	auditCmd.Flags().Bool("no-report", false, "Skip writing report artifacts")
	addOutputFlags(auditCmd, "Write output to <domain>.<ext> in a directory")
}

func runAudit(cmd *cobra.Command, args []string) error {
	formatValue, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	format, err := output.ParseFormat(formatValue)
	if err != nil {
		return err
	}
	noStore, err := cmd.Flags().GetBool("no-store")
	if err != nil {
		return err
	}
	mockGrader, err := cmd.Flags().GetBool("mock-grader")
	if err != nil {
		return err
	}
	noReport, err := cmd.Flags().GetBool("no-report")
	if err != nil {
		return err
	}
	outPath, _ := cmd.Flags().GetString("out")
	outDir, _ := cmd.Flags().GetString("out-dir")
	if _, err := outputPath(outPath, outDir, "", format); err != nil {
		return err
	}

	logger := observability.CLILogger
	run, err := core.NewAuditRun(args[0], time.Now())
	if err != nil {
		ExitWithCode(logger, exitCodeFor(err), "Invalid audit target", err)
		return err
	}

	ctx := cmd.Context()
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	opts := pipelineOptions{MockGrader: mockGrader, NoReport: noReport, Logger: logger}
	var db *store.Store
	if !noStore {
		db, err = openConfiguredStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup
		opts.Store = db
	}
	if publisher := connectEvents(ctx, cfg, logger); publisher != nil {
		defer publisher.Close() // nolint:errcheck // best-effort cleanup
		opts.Events = publisher
	}

	orchestrator, err := buildOrchestrator(cfg, opts)
	if err != nil {
		return err
	}

	runner := &worker.Runner{Auditor: orchestrator, Logger: logger}
	if opts.Events != nil {
		runner.Notifier = opts.Events
	}
	if db != nil {
		if err := db.CreateRun(ctx, run); err != nil {
			return err
		}
		if err := db.MarkProcessing(ctx, run.ID); err != nil {
			return err
		}
		runner.Store = db
	}

	startedAt := time.Now()
	result, err := runner.Execute(ctx, run)
	if err != nil {
		ExitWithCode(logger, exitCodeFor(err), "Audit failed", err)
		return err
	}

	rendered, err := output.NewFormatter(format).FormatResult(result)
	if err != nil {
		return err
	}
	sink, err := openOutput(cmd, result.Run.Domain, format)
	if err != nil {
		return err
	}
	defer sink.Close() // nolint:errcheck // best-effort cleanup
	if _, err := fmt.Fprintln(sink, strings.TrimRight(rendered, "\n")); err != nil {
		return err
	}

	if format != output.FormatJSON {
		fields := []zap.Field{
			zap.String("run_id", result.Run.ID),
			zap.String("platform", string(result.Platform.Platform)),
			zap.Duration("elapsed", time.Since(startedAt)),
		}
		if len(result.Degraded) > 0 {
			fields = append(fields, zap.Strings("degraded", result.Degraded))
		}
		for _, artifact := range result.Artifacts {
			fields = append(fields, zap.String("artifact_"+artifact.Kind, artifact.Location))
		}
		logger.Info("Audit completed", fields...)
	}
	return nil
}
