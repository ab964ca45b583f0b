package output

import (
	"fmt"
	"strings"

	"github.com/storelens/storelens/internal/core"
)

// MarkdownFormatter renders results as a markdown report.
type MarkdownFormatter struct{}

// FormatResult renders an audit result as Markdown.
func (f *MarkdownFormatter) FormatResult(result *core.AuditResult) (string, error) {
	if result == nil {
		return "", nil
	}

	title := result.Run.Domain
	if title == "" {
		title = result.Run.TargetURL
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# Storefront audit: %s\n\n", escapeMarkdownCell(title)))
	sb.WriteString(fmt.Sprintf("- **URL**: %s\n", result.Run.TargetURL))
	sb.WriteString(fmt.Sprintf("- **Score**: %s\n", totalLabel(result)))
	sb.WriteString(fmt.Sprintf("- **Platform**: %s\n", platformLabel(result.Platform)))
	if !result.GeneratedAt.IsZero() {
		sb.WriteString(fmt.Sprintf("- **Generated**: %s\n", result.GeneratedAt.UTC().Format("2006-01-02 15:04 UTC")))
	}

	sb.WriteString("\n## Categories\n\n")
	sb.WriteString("| Category | Score | Source | Evidence |\n")
	sb.WriteString("|----------|-------|--------|----------|\n")
	for _, cr := range result.Categories {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
			escapeMarkdownCell(categoryLabel(cr.Category)),
			formatScore(cr.Score),
			escapeMarkdownCell(string(cr.Source)),
			escapeMarkdownCell(evidenceNote(cr)),
		))
	}

	if lines := improvementLines(result); len(lines) > 0 {
		sb.WriteString("\n## Improvements\n\n")
		for _, line := range lines {
			sb.WriteString("- " + line + "\n")
		}
	}

	if len(result.PurchaseFlow) > 0 {
		sb.WriteString("\n## Purchase flow\n\n")
		for i, step := range result.PurchaseFlow {
			mark := "x"
			if !step.Success {
				mark = " "
			}
			sb.WriteString(fmt.Sprintf("%d. [%s] %s\n", i+1, mark, step.Name))
		}
	}

	if len(result.Degraded) > 0 {
		sb.WriteString(fmt.Sprintf("\n> Degraded stages: %s\n", strings.Join(result.Degraded, ", ")))
	}
	return sb.String(), nil
}

func markdownRuns(runs []core.AuditRun) string {
	var sb strings.Builder
	sb.WriteString("| ID | Target | Status | Score | Platform |\n")
	sb.WriteString("|----|--------|--------|-------|----------|\n")
	for _, run := range runs {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s |\n",
			run.ID,
			escapeMarkdownCell(run.TargetURL),
			run.Status,
			totalScoreCell(run),
			platformCell(run),
		))
	}
	return sb.String()
}

func escapeMarkdownCell(value string) string {
	return strings.ReplaceAll(value, "|", "\\|")
}

func markdownDetection(target string, detection core.PlatformDetectionResult) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Platform: %s\n\n", platformLabel(detection)))
	sb.WriteString(fmt.Sprintf("- URL: %s\n", target))
	sb.WriteString(fmt.Sprintf("- Confidence: %.2f\n", detection.Confidence))
	for _, signal := range detection.Signals {
		sb.WriteString(fmt.Sprintf("- Signal: `%s`\n", signal))
	}
	return sb.String()
}
