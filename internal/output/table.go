package output

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/storelens/storelens/internal/core"
)

const tableInsightWidth = 60

// TableFormatter renders results as an ASCII table.
type TableFormatter struct{}

// FormatResult renders an audit result as a table followed by improvements.
func (f *TableFormatter) FormatResult(result *core.AuditResult) (string, error) {
	if result == nil {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s  platform: %s\n", result.Run.TargetURL, platformLabel(result.Platform)))

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Category", "Score", "Source", "Evidence", "Top insight"})
	for _, cr := range result.Categories {
		t.AppendRow(table.Row{
			categoryLabel(cr.Category),
			formatScore(cr.Score),
			string(cr.Source),
			oneLine(evidenceNote(cr), tableInsightWidth),
			oneLine(topInsight(cr), tableInsightWidth),
		})
	}
	t.AppendFooter(table.Row{"Total", totalLabel(result), "", "", ""})
	sb.WriteString(t.Render())

	if lines := improvementLines(result); len(lines) > 0 {
		sb.WriteString("\n\nImprovements:\n")
		for _, line := range lines {
			sb.WriteString("  - " + line + "\n")
		}
	}
	if len(result.Degraded) > 0 {
		sb.WriteString(fmt.Sprintf("\nDegraded stages: %s\n", strings.Join(result.Degraded, ", ")))
	}
	for _, artifact := range result.Artifacts {
		sb.WriteString(fmt.Sprintf("\n%s: %s", artifact.Kind, artifact.Location))
	}
	return sb.String(), nil
}

func tableRuns(runs []core.AuditRun) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"ID", "Target", "Status", "Progress", "Score", "Platform", "Created"})
	for _, run := range runs {
		t.AppendRow(table.Row{
			run.ID,
			run.TargetURL,
			string(run.Status),
			fmt.Sprintf("%d%%", run.Progress),
			totalScoreCell(run),
			platformCell(run),
			run.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
		})
	}
	if len(runs) == 0 {
		t.AppendRow(table.Row{"(no runs)", "", "", "", "", "", ""})
	}
	return t.Render()
}

func tableDetection(target string, detection core.PlatformDetectionResult) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetTitle(target)
	t.AppendRow(table.Row{"Platform", platformLabel(detection)})
	t.AppendRow(table.Row{"Confidence", fmt.Sprintf("%.2f", detection.Confidence)})
	signals := "-"
	if len(detection.Signals) > 0 {
		signals = strings.Join(detection.Signals, "\n")
	}
	t.AppendRow(table.Row{"Signals", signals})
	return t.Render()
}
