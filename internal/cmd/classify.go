package cmd

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/storelens/storelens/internal/config"
	"github.com/storelens/storelens/internal/core"
	"github.com/storelens/storelens/internal/core/collector"
	"github.com/storelens/storelens/internal/core/platform"
	"github.com/storelens/storelens/internal/output"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <url>",
	Short: "Detect the storefront platform",
	Long: `Classify the e-commerce platform behind a URL.

Without --html or --fetch only the host is examined, which is never enough
for a positive label on its own.`,
	Args: cobra.ExactArgs(1),
	RunE: runClassify,
}

func init() {
	rootCmd.AddCommand(classifyCmd)

	classifyCmd.Flags().String("html", "", "Classify markup from a local HTML file")
	classifyCmd.Flags().Bool("fetch", false, "Fetch the page and classify its markup, headers and cookies")
	classifyCmd.Flags().String("format", string(output.FormatTable), "Output format: table, json, markdown")
}

func runClassify(cmd *cobra.Command, args []string) error {
	htmlPath, err := cmd.Flags().GetString("html")
	if err != nil {
		return err
	}
	fetch, err := cmd.Flags().GetBool("fetch")
	if err != nil {
		return err
	}
	formatValue, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	format, err := output.ParseFormat(formatValue)
	if err != nil {
		return err
	}
	if strings.TrimSpace(htmlPath) != "" && fetch {
		return errors.New("--html and --fetch are mutually exclusive")
	}

	target, err := core.NormalizeTargetURL(args[0])
	if err != nil {
		ExitWithCode(nil, exitCodeFor(err), "Invalid classify target", err)
		return err
	}

	ctx := cmd.Context()
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	in := platform.Input{URL: target}
	switch {
	case strings.TrimSpace(htmlPath) != "":
		data, err := os.ReadFile(htmlPath)
		if err != nil {
			return fmt.Errorf("read html: %w", err)
		}
		in.HTML = string(data)
		in.ResourceURLs = collector.ExtractLinks(in.HTML, target)
	case fetch:
		fetcher := &collector.Fetcher{
			UserAgent: cfg.Fetch.UserAgent,
			MaxBytes:  cfg.Fetch.MaxBytes,
			Timeout:   cfg.Fetch.Timeout,
		}
		capture, err := fetcher.Collect(ctx, target, core.PlatformUnknown)
		if err != nil {
			return err
		}
		in.URL = firstNonBlank(capture.FinalURL, target)
		in.HTML = capture.HTML
		in.ResourceURLs = capture.Links
		in.Headers = http.Header(capture.Headers)
		in.Cookies = capture.Cookies
	}

	classifier, err := platform.ConfiguredClassifier(cfg.Platform)
	if err != nil {
		return err
	}
	detection := classifier.Classify(in)
	rendered, err := output.FormatDetection(format, target, detection)
	if err != nil {
		return err
	}
	fmt.Println(rendered)
	return nil
}
