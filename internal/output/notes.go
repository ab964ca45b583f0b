package output

import (
	"fmt"
	"sort"
	"strings"

	"github.com/storelens/storelens/internal/core"
)

var categoryLabels = map[core.Category]string{
	core.CategoryPerformance:     "Performance",
	core.CategoryFirstView:       "First view",
	core.CategoryBrandIdentity:   "Brand identity",
	core.CategoryNavigation:      "Navigation",
	core.CategoryPromotions:      "Promotions",
	core.CategoryVisuals:         "Visuals",
	core.CategoryTrustSignals:    "Trust signals",
	core.CategoryMobileUsability: "Mobile usability",
	core.CategoryPurchaseFlow:    "Purchase flow",
	core.CategorySEOAnalytics:    "SEO & analytics",
}

func categoryLabel(c core.Category) string {
	if label, ok := categoryLabels[c]; ok {
		return label
	}
	return string(c)
}

func formatScore(score float64) string {
	return fmt.Sprintf("%.1f", score)
}

func totalLabel(result *core.AuditResult) string {
	if result == nil || result.Run.TotalScore == nil {
		return "-"
	}
	return fmt.Sprintf("%d/100", *result.Run.TotalScore)
}

func platformLabel(detection core.PlatformDetectionResult) string {
	if detection.Platform == "" || detection.Platform == core.PlatformUnknown {
		return "unknown"
	}
	return fmt.Sprintf("%s (%.0f%%)", detection.Platform, detection.Confidence*100)
}

// evidenceNote summarizes what supports a score: measurements for
// performance and markup, otherwise the cited proof.
func evidenceNote(cr core.CategoryResult) string {
	if perf, ok := cr.Evidence.(*core.PerformanceEvidence); ok {
		if !perf.Metrics.Measured {
			return "not measured"
		}
		return fmt.Sprintf("LCP %.1fs, CLS %.2f, TBT %.0fms",
			perf.Metrics.LCPSeconds, perf.Metrics.CLS, perf.Metrics.TBTMillis)
	}
	if len(cr.Metrics) > 0 && cr.Source != core.SourceAI {
		rule := metricNote(cr.Metrics)
		if proof, ok := core.ProofOf(cr.Evidence); ok && proof.Present() {
			return rule + "; " + proofNote(proof)
		}
		return rule
	}
	if proof, ok := core.ProofOf(cr.Evidence); ok && proof.Present() {
		return proofNote(proof)
	}
	return "-"
}

func proofNote(p core.Proof) string {
	parts := make([]string, 0, 3)
	if snippet := oneLine(p.Snippet, 48); snippet != "" {
		parts = append(parts, fmt.Sprintf("%q", snippet))
	}
	if locator := strings.TrimSpace(p.Locator); locator != "" {
		parts = append(parts, locator)
	}
	if b := p.BoundingBox; b != nil && b.Width > 0 && b.Height > 0 {
		parts = append(parts, fmt.Sprintf("@%.0f,%.0f %.0fx%.0f", b.X, b.Y, b.Width, b.Height))
	}
	return strings.Join(parts, " ")
}

func metricNote(metrics map[string]float64) string {
	keys := sortedKeys(metrics)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s=%g", key, metrics[key]))
	}
	return strings.Join(parts, " ")
}

func topInsight(cr core.CategoryResult) string {
	for _, insight := range cr.Insights {
		if trimmed := strings.TrimSpace(insight); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func oneLine(value string, limit int) string {
	value = strings.Join(strings.Fields(value), " ")
	runes := []rune(value)
	if limit > 3 && len(runes) > limit {
		return string(runes[:limit-3]) + "..."
	}
	return value
}

func totalScoreCell(run core.AuditRun) string {
	if run.TotalScore == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *run.TotalScore)
}

func platformCell(run core.AuditRun) string {
	if run.Platform == "" {
		return "-"
	}
	return string(run.Platform)
}

func sortedKeys(values map[string]float64) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// improvementLines flattens improvements in category order.
func improvementLines(result *core.AuditResult) []string {
	if result == nil || len(result.Improvements) == 0 {
		return nil
	}
	var lines []string
	for _, c := range core.Categories() {
		for _, item := range result.Improvements[c] {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				lines = append(lines, fmt.Sprintf("%s: %s", categoryLabel(c), trimmed))
			}
		}
	}
	return lines
}
