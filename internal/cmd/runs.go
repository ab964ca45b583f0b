package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/storelens/storelens/internal/core"
	"github.com/storelens/storelens/internal/core/store"
	"github.com/storelens/storelens/internal/output"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect recorded audit runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, err := cmd.Flags().GetInt("limit")
		if err != nil {
			return err
		}
		statusValue, err := cmd.Flags().GetString("status")
		if err != nil {
			return err
		}
		format, err := runsFormat(cmd)
		if err != nil {
			return err
		}

		var status core.RunStatus
		if strings.TrimSpace(statusValue) != "" {
			if status, err = core.ParseRunStatus(statusValue); err != nil {
				return err
			}
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		runs, err := db.ListRuns(cmd.Context(), limit, status)
		if err != nil {
			return err
		}
		rendered, err := output.FormatRuns(format, runs)
		if err != nil {
			return err
		}
		fmt.Println(rendered)
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a run and, once completed, its result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := runsFormat(cmd)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		db, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		id := strings.TrimSpace(args[0])
		run, err := db.GetRun(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("run %s not found", id)
		}
		if err != nil {
			return err
		}

		if run.Status == core.StatusCompleted {
			result, err := db.GetResult(ctx, run.ID)
			if err != nil {
				return err
			}
			rendered, err := output.NewFormatter(format).FormatResult(result)
			if err != nil {
				return err
			}
			fmt.Println(rendered)
			return nil
		}

		progress, err := db.ListProgress(ctx, run.ID)
		if err != nil {
			return err
		}
		if format == output.FormatJSON {
			if progress == nil {
				progress = []store.ProgressEntry{}
			}
			payload, err := json.MarshalIndent(struct {
				Run      *core.AuditRun        `json:"run"`
				Progress []store.ProgressEntry `json:"progress"`
			}{Run: run, Progress: progress}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(payload))
			return nil
		}

		rendered, err := output.FormatRuns(format, []core.AuditRun{*run})
		if err != nil {
			return err
		}
		fmt.Println(rendered)
		if run.Error != "" {
			fmt.Printf("\nError: %s\n", run.Error)
		}
		for _, entry := range progress {
			fmt.Printf("%s  %3d%%  %s\n", entry.RecordedAt.UTC().Format("15:04:05"), entry.Percent, entry.Message)
		}
		return nil
	},
}

func runsFormat(cmd *cobra.Command) (output.Format, error) {
	value, err := cmd.Flags().GetString("format")
	if err != nil {
		return "", err
	}
	return output.ParseFormat(value)
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)

	runsListCmd.Flags().Int("limit", 20, "Maximum runs to list")
	runsListCmd.Flags().String("status", "", "Only list runs in this status: pending, processing, completed, failed")
	runsCmd.PersistentFlags().String("format", string(output.FormatTable), "Output format: table, json, markdown")
}
