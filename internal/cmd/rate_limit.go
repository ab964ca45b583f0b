package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/storelens/storelens/internal/core/engine"
	"github.com/storelens/storelens/internal/core/store"
	"github.com/storelens/storelens/internal/output"
)

var rateLimitCmd = &cobra.Command{
	Use:   "rate-limit",
	Short: "Inspect or clear persisted collaborator rate limits",
	Long: `The audit pipeline throttles its calls to the scraper, PageSpeed and the
vision grader. Windows and 429 backoffs are persisted in the run store so they
survive restarts; these commands list or reset them.`,
}

// rateLimitFlags are shared by the rate-limit subcommands.
type rateLimitFlags struct {
	all     bool
	service string
	format  string
}

func (f *rateLimitFlags) bind(cmd *cobra.Command, verb string) {
	cmd.Flags().BoolVar(&f.all, "all", false, verb+" every service")
	cmd.Flags().StringVar(&f.service, "service", "", verb+" a single service: "+strings.Join(engine.Services, ", "))
	cmd.Flags().StringVar(&f.format, "output-format", string(output.FormatTable), "Output format: table|json")
}

func (f rateLimitFlags) outputFormat() (output.Format, error) {
	format, err := output.ParseFormat(f.format)
	if err != nil {
		return "", err
	}
	if format != output.FormatJSON && format != output.FormatTable {
		return "", fmt.Errorf("unsupported output format: %s", format)
	}
	return format, nil
}

func (f rateLimitFlags) query() (store.RateLimitQuery, error) {
	q := store.RateLimitQuery{All: f.all, Service: strings.ToLower(strings.TrimSpace(f.service))}
	if q.All && q.Service != "" {
		return q, fmt.Errorf("--all and --service are mutually exclusive")
	}
	if q.Service != "" && !slices.Contains(engine.Services, q.Service) {
		return q, fmt.Errorf("unknown service %q (want one of %s)", q.Service, strings.Join(engine.Services, ", "))
	}
	return q, q.Validate()
}

func writeJSON(w io.Writer, v any) error {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(payload))
	return err
}

func init() {
	rateLimitCmd.AddCommand(rateLimitListCmd, rateLimitResetCmd)
	rootCmd.AddCommand(rateLimitCmd)
}
