package scoring

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/storelens/storelens/internal/core"
)

func proofFor(t *testing.T, c core.Category) core.Evidence {
	t.Helper()
	ev, err := core.NewProofEvidence(c, core.Proof{Snippet: "hero banner", Locator: "main > section"})
	require.NoError(t, err)
	return ev
}

func gradedAll(t *testing.T, score float64) []core.CategoryResult {
	t.Helper()
	out := make([]core.CategoryResult, 0, 10)
	for _, c := range core.Categories() {
		out = append(out, core.CategoryResult{
			Category: c,
			Score:    score,
			Evidence: proofFor(t, c),
			Insights: []string{"Improve " + string(c)},
		})
	}
	return out
}

func fullMarkup() *core.MarkupSignals {
	return &core.MarkupSignals{
		Measured:           true,
		HasViewportMeta:    true,
		ResponsiveViewport: true,
		MinFontPx:          14,
		HasHeading:         true,
		HasTitle:           true,
		HasMetaDescription: true,
		HasCanonical:       true,
		AnalyticsTags:      []string{"gtag"},
	}
}

func categoryOf(t *testing.T, r Result, c core.Category) core.CategoryResult {
	t.Helper()
	for _, cr := range r.Categories {
		if cr.Category == c {
			return cr
		}
	}
	t.Fatalf("category %s missing", c)
	return core.CategoryResult{}
}

func TestPerformanceRuleScenarios(t *testing.T) {
	engine := NewEngine(DefaultRuleConfig(), nil)

	fast := InjectMeasurements(nil, Measurements{Performance: core.PerformanceMetrics{
		Measured: true, LCPSeconds: 2.0, CLS: 0.05, TBTMillis: 200, ConsoleErrors: 0,
	}})
	result := engine.Score(fast)
	perf := categoryOf(t, result, core.CategoryPerformance)
	require.Equal(t, 10.0, perf.Score)
	require.Equal(t, core.SourceRule, perf.Source)
	require.Empty(t, perf.Insights)

	slow := InjectMeasurements(nil, Measurements{Performance: core.PerformanceMetrics{
		Measured: true, LCPSeconds: 5.0, CLS: 0.2, TBTMillis: 500, ConsoleErrors: 1,
	}})
	result = engine.Score(slow)
	perf = categoryOf(t, result, core.CategoryPerformance)
	require.Equal(t, 0.0, perf.Score)
	require.Len(t, perf.Insights, MaxImprovements)
	require.Equal(t, DefaultMessages()["performance.lcp_slow"], perf.Insights[0])
}

func TestPerformanceFairBands(t *testing.T) {
	engine := NewEngine(DefaultRuleConfig(), nil)
	results := InjectMeasurements(nil, Measurements{Performance: core.PerformanceMetrics{
		Measured: true, LCPSeconds: 3.2, CLS: 0.1, TBTMillis: 250, ConsoleErrors: 0,
	}})
	perf := categoryOf(t, engine.Score(results), core.CategoryPerformance)
	require.Equal(t, 7.0, perf.Score)
}

func TestUnmeasuredPerformanceScoresZero(t *testing.T) {
	engine := NewEngine(DefaultRuleConfig(), nil)
	result := engine.Score(InjectMeasurements(gradedAll(t, 9), Measurements{}))
	perf := categoryOf(t, result, core.CategoryPerformance)
	require.Equal(t, 0.0, perf.Score)
	require.Contains(t, perf.Insights, DefaultMessages()["performance.not_measured"])
}

func TestHybridRoundsOnce(t *testing.T) {
	engine := NewEngine(DefaultRuleConfig(), nil)
	markup := fullMarkup()
	results := InjectMeasurements(gradedAll(t, 8), Measurements{Markup: markup})

	result := engine.Score(results)
	fv := categoryOf(t, result, core.CategoryFirstView)
	require.Equal(t, core.SourceHybrid, fv.Source)
	// 3 rule points + 0.7*8 = 8.6
	require.Equal(t, 9.0, fv.Score)
	require.Equal(t, 3.0, fv.Metrics["rule_points"])
	require.Equal(t, 8.0, fv.Metrics["ai_score"])

	markup.AnalyticsTags = nil
	result = engine.Score(InjectMeasurements(gradedAll(t, 6), Measurements{Markup: markup}))
	seo := categoryOf(t, result, core.CategorySEOAnalytics)
	// 2 rule points + 0.7*6 = 6.2
	require.Equal(t, 6.0, seo.Score)
	require.Equal(t, "Improve seo_analytics", seo.Insights[0])
	require.Equal(t, DefaultMessages()["seo_analytics.no_analytics"], seo.Insights[1])
}

func TestHybridClampsAtTen(t *testing.T) {
	engine := NewEngine(DefaultRuleConfig(), nil)
	result := engine.Score(InjectMeasurements(gradedAll(t, 10), Measurements{Markup: fullMarkup()}))
	require.Equal(t, 10.0, categoryOf(t, result, core.CategoryFirstView).Score)
}

func TestAIOnlyRequiresProof(t *testing.T) {
	engine := NewEngine(DefaultRuleConfig(), nil)
	results := gradedAll(t, 7)
	for i := range results {
		if results[i].Category == core.CategoryTrustSignals {
			results[i].Evidence = &core.TrustEvidence{}
			results[i].Insights = []string{"Show payment badges"}
		}
	}

	result := engine.Score(results)
	trust := categoryOf(t, result, core.CategoryTrustSignals)
	require.Equal(t, 0.0, trust.Score)
	require.Equal(t, []string{EvidenceShortageInsight}, trust.Insights)

	brand := categoryOf(t, result, core.CategoryBrandIdentity)
	require.Equal(t, 7.0, brand.Score)
	require.Equal(t, core.SourceAI, brand.Source)
}

func TestAIScoreIsClamped(t *testing.T) {
	engine := NewEngine(DefaultRuleConfig(), nil)
	result := engine.Score([]core.CategoryResult{
		{Category: core.CategoryVisuals, Score: 14, Evidence: proofFor(t, core.CategoryVisuals)},
		{Category: core.CategoryNavigation, Score: -2, Evidence: proofFor(t, core.CategoryNavigation)},
	})
	require.Equal(t, 10.0, categoryOf(t, result, core.CategoryVisuals).Score)
	require.Equal(t, 0.0, categoryOf(t, result, core.CategoryNavigation).Score)
	require.NoError(t, result.Validate())
}

func TestMobileGatedWithoutMarkup(t *testing.T) {
	engine := NewEngine(DefaultRuleConfig(), nil)
	result := engine.Score(InjectMeasurements(gradedAll(t, 9), Measurements{}))
	mobile := categoryOf(t, result, core.CategoryMobileUsability)
	require.Equal(t, 0.0, mobile.Score)
	require.Equal(t, EvidenceShortageInsight, mobile.Insights[0])
	require.NotContains(t, mobile.Insights, "Improve mobile_usability")
}

func TestMobileRule(t *testing.T) {
	engine := NewEngine(DefaultRuleConfig(), nil)
	markup := fullMarkup()
	markup.MinFontPx = 10
	markup.FixedWidthElements = 2
	result := engine.Score(InjectMeasurements(nil, Measurements{Markup: markup}))
	mobile := categoryOf(t, result, core.CategoryMobileUsability)
	require.Equal(t, 4.0, mobile.Score)
	require.Equal(t, []string{
		DefaultMessages()["mobile_usability.small_font"],
		DefaultMessages()["mobile_usability.fixed_width"],
	}, mobile.Insights)
}

func TestMissingCategoriesScoreZero(t *testing.T) {
	engine := NewEngine(DefaultRuleConfig(), nil)
	result := engine.Score(nil)
	require.Len(t, result.Categories, 10)
	require.Zero(t, result.TotalScore)
	for _, c := range result.Categories {
		require.Zero(t, c.Score)
		require.Nil(t, c.Evidence)
		require.Equal(t, result.Sources[c.Category], c.Source)
	}
	require.NoError(t, result.Validate())
}

func TestTotalIsRoundedSum(t *testing.T) {
	engine := NewEngine(DefaultRuleConfig(), nil)
	results := InjectMeasurements(gradedAll(t, 6.4), Measurements{
		Performance: core.PerformanceMetrics{Measured: true, LCPSeconds: 1, CLS: 0, TBTMillis: 100},
		Markup:      fullMarkup(),
	})
	result := engine.Score(results)
	// perf 10, mobile 10, first_view round(3+4.48)=7, seo round(3+4.48)=7, six AI categories at 6.4
	require.Equal(t, 72, result.TotalScore)
	require.NoError(t, result.Validate())
}

func TestImprovementsDedupeAndCap(t *testing.T) {
	engine := NewEngine(DefaultRuleConfig(), Messages{"seo_analytics.no_canonical": "Add canonical", "seo_analytics.no_analytics": "Add canonical"})
	results := gradedAll(t, 5)
	for i := range results {
		if results[i].Category == core.CategorySEOAnalytics {
			results[i].Insights = []string{"Add canonical", " ", "Add canonical"}
		}
	}
	markup := fullMarkup()
	markup.HasCanonical = false
	markup.AnalyticsTags = nil
	result := engine.Score(InjectMeasurements(results, Measurements{Markup: markup}))
	require.Equal(t, []string{"Add canonical"}, result.Improvements[core.CategorySEOAnalytics])
}

func TestMessagesFallback(t *testing.T) {
	m := DefaultMessages()
	require.Equal(t, genericMessage, m.Lookup(core.CategoryVisuals, "blurry"))
	custom := Messages{"default": "Look closer."}.merged()
	require.Equal(t, "Look closer.", custom.Lookup(core.CategoryVisuals, "blurry"))
}

func TestValidateRejectsBadSource(t *testing.T) {
	engine := NewEngine(DefaultRuleConfig(), nil)
	result := engine.Score(nil)
	result.Categories[2].Source = "oracle"
	err := result.Validate()
	require.True(t, core.IsKind(err, core.KindInvariant))

	result = engine.Score(nil)
	result.Categories[0].Score = 11
	require.True(t, core.IsKind(result.Validate(), core.KindInvariant))
}

func TestStrategiesTable(t *testing.T) {
	table := Strategies(RuleConfig{})
	require.Len(t, table, 10)
	sources := map[core.Category]core.ScoreSource{}
	for _, d := range table {
		sources[d.Category] = d.Source
	}
	require.Equal(t, core.SourceRule, sources[core.CategoryPerformance])
	require.Equal(t, core.SourceRule, sources[core.CategoryMobileUsability])
	require.Equal(t, core.SourceHybrid, sources[core.CategoryFirstView])
	require.Equal(t, core.SourceHybrid, sources[core.CategorySEOAnalytics])
	require.Equal(t, core.SourceAI, sources[core.CategoryPromotions])
	require.Equal(t, DefaultDamping, table[1].AIWeight)
}

func TestInjectPreservesProofAndInput(t *testing.T) {
	graded := gradedAll(t, 5)
	injected := InjectMeasurements(graded, Measurements{Markup: fullMarkup()})

	fv, ok := injected[1].Evidence.(*core.FirstViewEvidence)
	require.True(t, ok)
	require.Equal(t, "hero banner", fv.Snippet)
	require.NotNil(t, fv.Markup)

	_, isTyped := graded[1].Evidence.(*core.FirstViewEvidence)
	require.True(t, isTyped)
	require.Nil(t, graded[1].Evidence.(*core.FirstViewEvidence).Markup)
}
