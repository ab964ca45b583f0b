package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/storelens/storelens/internal/config"
	"github.com/storelens/storelens/internal/core"
	"github.com/storelens/storelens/internal/observability"
	"github.com/storelens/storelens/internal/output"
	"github.com/storelens/storelens/internal/worker"
)

var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Audit multiple storefronts from a file",
	Long: `Read storefront URLs from a file (one per line, "-" for stdin) and audit them.

With --enqueue the runs are only recorded as pending for 'serve' workers to
pick up. Otherwise they are audited here and a summary of every run is printed.`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().String("format", string(output.FormatTable), "Output format: table, json, markdown")
	batchCmd.Flags().Int("concurrency", 2, "Concurrent audits")
	batchCmd.Flags().Bool("enqueue", false, "Record pending runs without auditing them")
	batchCmd.Flags().Bool("mock-grader", false, "Grade with the deterministic mock grader")
	batchCmd.Flags().Bool("no-report", false, "Skip writing report artifacts")
}

func runBatch(cmd *cobra.Command, args []string) error {
	formatValue, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	format, err := output.ParseFormat(formatValue)
	if err != nil {
		return err
	}
	concurrency, err := cmd.Flags().GetInt("concurrency")
	if err != nil {
		return err
	}
	if concurrency < 1 {
		return errors.New("concurrency must be at least 1")
	}
	enqueue, err := cmd.Flags().GetBool("enqueue")
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

	runs, err := readBatchTargets(args[0], time.Now())
	if err != nil {
		ExitWithCode(observability.CLILogger, exitCodeFor(err), "Invalid batch file", err)
		return err
	}

	ctx := cmd.Context()
	logger := observability.CLILogger
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := openConfiguredStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer db.Close() // nolint:errcheck // best-effort cleanup

	for _, run := range runs {
		if err := db.CreateRun(ctx, run); err != nil {
			return err
		}
	}
	if enqueue {
		logger.Info("Runs enqueued", zap.Int("count", len(runs)))
		return printRuns(format, runs)
	}

	opts := pipelineOptions{MockGrader: mockGrader, NoReport: noReport, Store: db, Logger: logger}
	if publisher := connectEvents(ctx, cfg, logger); publisher != nil {
		defer publisher.Close() // nolint:errcheck // best-effort cleanup
		opts.Events = publisher
	}
	orchestrator, err := buildOrchestrator(cfg, opts)
	if err != nil {
		return err
	}
	runner := &worker.Runner{Store: db, Auditor: orchestrator, Logger: logger}
	if opts.Events != nil {
		runner.Notifier = opts.Events
	}

	startedAt := time.Now()
	finished := runBatchAudits(ctx, runner, db, runs, concurrency)

	failed := 0
	for _, run := range finished {
		if run.Status == core.StatusFailed {
			failed++
		}
	}
	logger.Info("Batch completed",
		zap.Int("runs", len(finished)),
		zap.Int("failed", failed),
		zap.Duration("elapsed", time.Since(startedAt)))
	return printRuns(format, finished)
}

type batchJob struct {
	index int
	run   core.AuditRun
}

// processingMarker claims a run before it is executed.
type processingMarker interface {
	MarkProcessing(ctx context.Context, id string) error
}

// runBatchAudits executes runs on a fixed pool. A failed run is recorded and
// does not stop the others; the returned slice keeps input order.
func runBatchAudits(ctx context.Context, runner *worker.Runner, marker processingMarker, runs []core.AuditRun, concurrency int) []core.AuditRun {
	finished := make([]core.AuditRun, len(runs))
	jobs := make(chan batchJob)

	var wg sync.WaitGroup
	work := func() {
		defer wg.Done()
		for job := range jobs {
			finished[job.index] = executeBatchRun(ctx, runner, marker, job.run)
		}
	}

	if concurrency > len(runs) {
		concurrency = len(runs)
	}
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go work()
	}

sendLoop:
	for i, run := range runs {
		select {
		case <-ctx.Done():
			for j := i; j < len(runs); j++ {
				finished[j] = runs[j]
			}
			break sendLoop
		case jobs <- batchJob{index: i, run: run}:
		}
	}
	close(jobs)
	wg.Wait()

	return finished
}

func executeBatchRun(ctx context.Context, runner *worker.Runner, marker processingMarker, run core.AuditRun) core.AuditRun {
	if marker != nil {
		if err := marker.MarkProcessing(ctx, run.ID); err != nil {
			run.Status = core.StatusFailed
			run.Error = core.PublicMessage(err)
			return run
		}
	}
	result, err := runner.Execute(ctx, run)
	if result != nil {
		return result.Run
	}
	run.Status = core.StatusFailed
	run.Error = core.PublicMessage(err)
	return run
}

func printRuns(format output.Format, runs []core.AuditRun) error {
	rendered, err := output.FormatRuns(format, runs)
	if err != nil {
		return err
	}
	if strings.TrimSpace(rendered) != "" {
		fmt.Println(rendered)
	}
	return nil
}

// readBatchTargets parses one target per line, skipping blanks and # comments.
// Duplicate targets are audited once.
func readBatchTargets(path string, now time.Time) ([]core.AuditRun, error) {
	var reader io.Reader
	if strings.TrimSpace(path) == "-" {
		reader = os.Stdin
	} else {
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer file.Close() // nolint:errcheck // best-effort cleanup on read-only file
		reader = file
	}
	return parseBatchTargets(reader, now)
}

func parseBatchTargets(r io.Reader, now time.Time) ([]core.AuditRun, error) {
	runs := make([]core.AuditRun, 0)
	seen := make(map[string]struct{})
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		run, err := core.NewAuditRun(raw, now)
		if err != nil {
			return nil, fmt.Errorf("invalid target on line %d: %w", line, err)
		}
		if _, dup := seen[run.TargetURL]; dup {
			continue
		}
		seen[run.TargetURL] = struct{}{}
		runs = append(runs, run)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, core.NewValidationError("no targets found in batch file")
	}
	return runs, nil
}
