package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/storelens/storelens/internal/output"
)

var (
	rateLimitResetFlags  rateLimitFlags
	rateLimitResetYes    bool
	rateLimitResetDryRun bool
)

// resetResult is the outcome of a rate-limit reset.
type resetResult struct {
	Matched int   `json:"matched"`
	Deleted int64 `json:"deleted"`
	DryRun  bool  `json:"dry_run"`
}

var rateLimitResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete stored rate limit windows",
	Long: `Deletes persisted windows and backoffs so the next audit starts with a
fresh quota. Resetting every service needs --yes unless --dry-run is set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := rateLimitResetFlags.outputFormat()
		if err != nil {
			return err
		}
		query, err := rateLimitResetFlags.query()
		if err != nil {
			return err
		}
		if query.All && !rateLimitResetYes && !rateLimitResetDryRun {
			return errors.New("--all requires --yes (or use --dry-run)")
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		result := resetResult{DryRun: rateLimitResetDryRun}
		if result.Matched, err = db.CountRateLimits(cmd.Context(), query); err != nil {
			return err
		}
		if !result.DryRun {
			if result.Deleted, err = db.ResetRateLimits(cmd.Context(), query); err != nil {
				return err
			}
		}

		sink, err := openOutput(cmd, "rate-limit.reset", format)
		if err != nil {
			return err
		}
		defer sink.Close() // nolint:errcheck // best-effort cleanup
		return writeResetResult(sink, format, result)
	},
}

func writeResetResult(w io.Writer, format output.Format, result resetResult) error {
	if format == output.FormatJSON {
		return writeJSON(w, result)
	}
	var err error
	if result.DryRun {
		_, err = fmt.Fprintf(w, "Would delete %d rate limit window(s)\n", result.Matched)
	} else {
		_, err = fmt.Fprintf(w, "Deleted %d/%d rate limit window(s)\n", result.Deleted, result.Matched)
	}
	return err
}

func init() {
	rateLimitResetFlags.bind(rateLimitResetCmd, "Reset")
	rateLimitResetCmd.Flags().BoolVar(&rateLimitResetYes, "yes", false, "Confirm resetting every service")
	rateLimitResetCmd.Flags().BoolVar(&rateLimitResetDryRun, "dry-run", false, "Report what would be deleted")
	addOutputFlags(rateLimitResetCmd, "Write rate-limit.reset.<ext> to a directory")
}
