package cmd

import (
	"fmt"
	"io"
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"

	"github.com/storelens/storelens/internal/core"
	"github.com/storelens/storelens/internal/core/grader"
	"github.com/storelens/storelens/internal/core/scoring"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print version information. --extended adds build, toolchain and scoring model details.",
	RunE: func(cmd *cobra.Command, args []string) error {
		extended, err := cmd.Flags().GetBool("extended")
		if err != nil {
			return err
		}
		writeVersion(cmd.OutOrStdout(), binaryName(), extended)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolP("extended", "e", false, "show extended version information")
}

func writeVersion(w io.Writer, name string, extended bool) {
	_, _ = fmt.Fprintf(w, "%s %s\n", name, versionInfo.Version)
	if !extended {
		return
	}

	versions := crucible.GetVersion()
	_, _ = fmt.Fprintf(w, "Commit:     %s\n", versionInfo.Commit)
	_, _ = fmt.Fprintf(w, "Built:      %s\n", versionInfo.BuildDate)
	_, _ = fmt.Fprintf(w, "Go:         %s\n", runtime.Version())
	_, _ = fmt.Fprintf(w, "Gofulmen:   %s\n", versions.Gofulmen)
	_, _ = fmt.Fprintf(w, "Crucible:   %s\n", versions.Crucible)
	_, _ = fmt.Fprintf(w, "Prompt:     %s\n", grader.DefaultPromptSlug)
	_, _ = fmt.Fprintf(w, "Categories: %d (hybrid damping %.1f)\n", len(core.Categories()), scoring.DefaultDamping)
}
