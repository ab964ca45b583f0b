package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/storelens/storelens/internal/output"
)

// outputSink is stdout or a created file.
type outputSink struct {
	io.Writer
	Path  string
	close func() error
}

func (s *outputSink) Close() error {
	if s == nil || s.close == nil {
		return nil
	}
	return s.close()
}

var nonFilename = regexp.MustCompile(`[^a-z0-9._-]+`)

// sanitizeFilename turns a domain or label into a safe file stem.
func sanitizeFilename(value string) string {
	clean := nonFilename.ReplaceAllString(strings.ToLower(strings.TrimSpace(value)), "-")
	clean = strings.Trim(clean, "-.")
	if clean == "" {
		return "output"
	}
	return clean
}

// addOutputFlags registers --out and --out-dir. dirHelp describes the file
// name used inside --out-dir.
func addOutputFlags(cmd *cobra.Command, dirHelp string) {
	cmd.Flags().String("out", "", "Write output to a file (default stdout)")
	cmd.Flags().String("out-dir", "", dirHelp)
}

// openOutput resolves --out and --out-dir. With --out-dir the file is
// <stem>.<ext> inside the (created) directory; with neither, stdout.
func openOutput(cmd *cobra.Command, stem string, format output.Format) (*outputSink, error) {
	outPath, err := cmd.Flags().GetString("out")
	if err != nil {
		return nil, err
	}
	outDir, err := cmd.Flags().GetString("out-dir")
	if err != nil {
		return nil, err
	}
	return openSink(outputPath(outPath, outDir, stem, format))
}

func outputPath(outPath, outDir, stem string, format output.Format) (string, error) {
	outPath, outDir = strings.TrimSpace(outPath), strings.TrimSpace(outDir)
	switch {
	case outPath != "" && outDir != "":
		return "", errors.New("--out and --out-dir are mutually exclusive")
	case outDir != "":
		return filepath.Join(outDir, sanitizeFilename(stem)+"."+format.Extension()), nil
	default:
		return outPath, nil
	}
}

func openSink(path string, err error) (*outputSink, error) {
	if err != nil {
		return nil, err
	}
	if path == "" || path == "-" {
		return &outputSink{Writer: os.Stdout, Path: "-"}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &outputSink{Writer: file, Path: path, close: file.Close}, nil
}
