package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/storelens/storelens/internal/ailink"
	"github.com/storelens/storelens/internal/ailink/prompt"
	"github.com/storelens/storelens/internal/config"
)

var ailinkCmd = &cobra.Command{
	Use:   "ailink",
	Short: "Inspect grader prompts and provider routing",
}

var ailinkListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"prompts"},
	Short:   "List available prompts",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, _, err := loadPrompts(cmd)
		if err != nil {
			return err
		}
		return writePromptTable(cmd.OutOrStdout(), registry.List())
	},
}

var ailinkShowCmd = &cobra.Command{
	Use:   "show <slug>",
	Short: "Print a prompt's templates and response schema",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, _, err := loadPrompts(cmd)
		if err != nil {
			return err
		}
		p, err := registry.Get(args[0])
		if err != nil {
			return err
		}
		return writePrompt(cmd.OutOrStdout(), p)
	},
}

var ailinkRouteCmd = &cobra.Command{
	Use:   "route",
	Short: "Show which providers and models serve the grader",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, cfg, err := loadPrompts(cmd)
		if err != nil {
			return err
		}
		p, err := registry.Get(cfg.Grader.PromptSlug)
		if err != nil {
			return err
		}
		chain, err := ailink.NewRegistry(cfg.AILink).ResolveChain(cfg.Grader.Role, p, "", cfg.Grader.Tier)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), routeTable(cfg.Grader.Role, chain))
		return err
	},
}

func loadPrompts(cmd *cobra.Command) (prompt.Registry, *config.Config, error) {
	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return nil, nil, err
	}
	registry, err := prompt.DefaultRegistry(cfg.AILink.PromptsDir)
	if err != nil {
		return nil, nil, err
	}
	return registry, cfg, nil
}

func writePromptTable(w io.Writer, prompts []*prompt.Prompt) error {
	if len(prompts) == 0 {
		_, err := fmt.Fprintln(w, "No prompts found.")
		return err
	}
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Slug", "Version", "Images", "Source", "Description"})
	for _, p := range prompts {
		if p == nil {
			continue
		}
		tw.AppendRow(table.Row{p.Config.Slug, p.Config.Version, p.Config.Input.MaxImages, p.Source, p.Config.Description})
	}
	_, err := fmt.Fprintln(w, tw.Render())
	return err
}

func writePrompt(w io.Writer, p *prompt.Prompt) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s (%s)\n", p.Config.Slug, p.Config.Version, p.Source)
	if vars := p.Config.Input.RequiredVariables; len(vars) > 0 {
		fmt.Fprintf(&b, "required: %s\n", strings.Join(vars, ", "))
	}
	fmt.Fprintf(&b, "\n--- system ---\n%s\n", strings.TrimSpace(p.Config.SystemTemplate))
	fmt.Fprintf(&b, "\n--- user ---\n%s\n", strings.TrimSpace(p.Config.UserTemplate))
	if len(p.Schema) > 0 {
		fmt.Fprintf(&b, "\n--- response schema ---\n%s\n", strings.TrimSpace(string(p.Schema)))
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func routeTable(role string, chain []*ailink.ResolvedProvider) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.SetTitle("Role " + role)
	tw.AppendHeader(table.Row{"#", "Provider", "Model", "Base URL", "Credential"})
	for i, p := range chain {
		tw.AppendRow(table.Row{i + 1, p.ProviderID, p.Model, p.BaseURL, firstNonBlank(p.Credential.Label, "(unlabelled)")})
	}
	return tw.Render()
}

func init() {
	ailinkCmd.AddCommand(ailinkListCmd, ailinkShowCmd, ailinkRouteCmd)
	rootCmd.AddCommand(ailinkCmd)
}
