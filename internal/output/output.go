package output

import (
	"fmt"
	"strings"

	"github.com/storelens/storelens/internal/core"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// Formatter renders audit results.
type Formatter interface {
	FormatResult(result *core.AuditResult) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// Extension returns the file extension used for artifacts of format.
func (f Format) Extension() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatMarkdown:
		return "md"
	default:
		return "txt"
	}
}

// ContentType returns the MIME type of rendered output.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}

// FormatRuns renders a run listing using the requested format.
func FormatRuns(format Format, runs []core.AuditRun) (string, error) {
	switch format {
	case FormatJSON:
		if runs == nil {
			runs = []core.AuditRun{}
		}
		return encodeJSON(runs, true)
	case FormatMarkdown:
		return markdownRuns(runs), nil
	default:
		return tableRuns(runs), nil
	}
}

// FormatDetection renders a platform classification.
func FormatDetection(format Format, target string, detection core.PlatformDetectionResult) (string, error) {
	switch format {
	case FormatJSON:
		payload := struct {
			URL string `json:"url"`
			core.PlatformDetectionResult
		}{URL: target, PlatformDetectionResult: detection}
		if payload.Signals == nil {
			payload.Signals = []string{}
		}
		return encodeJSON(payload, true)
	case FormatMarkdown:
		return markdownDetection(target, detection), nil
	default:
		return tableDetection(target, detection), nil
	}
}
