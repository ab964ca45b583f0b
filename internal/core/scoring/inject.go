package scoring

import "github.com/storelens/storelens/internal/core"

// Measurements is the measured data attached to grader output before scoring.
type Measurements struct {
	Performance  core.PerformanceMetrics
	Markup       *core.MarkupSignals
	PurchaseFlow []core.FlowStep
}

// InjectMeasurements returns a copy of results with measured evidence merged
// into the typed evidence of each category. Every category is present in the
// output; grader proofs are preserved.
func InjectMeasurements(results []core.CategoryResult, m Measurements) []core.CategoryResult {
	byCategory := make(map[core.Category]core.CategoryResult, len(results))
	for _, r := range results {
		if _, dup := byCategory[r.Category]; !dup {
			byCategory[r.Category] = r
		}
	}

	out := make([]core.CategoryResult, 0, len(core.Categories()))
	for _, c := range core.Categories() {
		r, ok := byCategory[c]
		if !ok {
			r = core.CategoryResult{Category: c}
		}
		r.Metrics = copyMetrics(r.Metrics)
		r.Insights = append([]string(nil), r.Insights...)
		proof, _ := core.ProofOf(r.Evidence)

		switch c {
		case core.CategoryPerformance:
			r.Evidence = &core.PerformanceEvidence{Metrics: m.Performance}
			if m.Performance.Measured {
				setMetric(&r, "lcp_seconds", m.Performance.LCPSeconds)
				setMetric(&r, "cls", m.Performance.CLS)
				setMetric(&r, "tbt_ms", m.Performance.TBTMillis)
				setMetric(&r, "console_errors", float64(m.Performance.ConsoleErrors))
			}
		case core.CategoryFirstView:
			r.Evidence = &core.FirstViewEvidence{Proof: proof, Markup: m.Markup}
		case core.CategoryMobileUsability:
			r.Evidence = &core.MobileEvidence{Proof: proof, Markup: m.Markup}
			if m.Markup != nil && m.Markup.Measured {
				setMetric(&r, "min_font_px", m.Markup.MinFontPx)
				setMetric(&r, "fixed_width_elements", float64(m.Markup.FixedWidthElements))
			}
		case core.CategorySEOAnalytics:
			r.Evidence = &core.SEOAnalyticsEvidence{Proof: proof, Markup: m.Markup}
			if m.Markup != nil && m.Markup.Measured {
				setMetric(&r, "analytics_tags", float64(len(m.Markup.AnalyticsTags)))
			}
		case core.CategoryPurchaseFlow:
			if len(m.PurchaseFlow) > 0 {
				r.Evidence = &core.PurchaseFlowEvidence{Proof: proof, Steps: m.PurchaseFlow}
			}
		}
		out = append(out, r)
	}
	return out
}
