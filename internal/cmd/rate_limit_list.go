package cmd

import (
	"fmt"
	"time"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/storelens/storelens/internal/core/store"
	"github.com/storelens/storelens/internal/output"
)

var rateLimitListFlags rateLimitFlags

var rateLimitListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored rate limit windows",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := rateLimitListFlags.outputFormat()
		if err != nil {
			return err
		}
		// Listing defaults to every service.
		flags := rateLimitListFlags
		flags.all = flags.all || flags.service == ""
		query, err := flags.query()
		if err != nil {
			return err
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		entries, err := db.ListRateLimits(cmd.Context(), query)
		if err != nil {
			return err
		}

		sink, err := openOutput(cmd, "rate-limit.list", format)
		if err != nil {
			return err
		}
		defer sink.Close() // nolint:errcheck // best-effort cleanup

		if format == output.FormatJSON {
			return writeJSON(sink, entries)
		}
		_, err = fmt.Fprintln(sink, rateLimitTable(entries, time.Now()))
		return err
	},
}

func rateLimitTable(entries []store.RateLimitEntry, now time.Time) string {
	if len(entries) == 0 {
		return ascii.DrawBox("Rate Limits\n\n(no stored rate limit state)", 0)
	}
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.SetTitle("Rate Limits")
	tw.AppendHeader(table.Row{"Service", "Requests", "Window Start", "Backoff Until", "Last 429"})
	for _, entry := range entries {
		backoff := formatStamp(entry.State.BackoffUntil)
		if entry.State.BackingOff(now) {
			backoff += " (active)"
		}
		tw.AppendRow(table.Row{
			entry.Service,
			entry.State.RequestCount,
			formatStamp(&entry.State.WindowStart),
			backoff,
			formatStamp(entry.State.Last429At),
		})
	}
	return tw.Render()
}

func formatStamp(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func init() {
	rateLimitListFlags.bind(rateLimitListCmd, "List")
	addOutputFlags(rateLimitListCmd, "Write rate-limit.list.<ext> to a directory")
}
