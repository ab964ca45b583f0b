package scoring

import "github.com/storelens/storelens/internal/core"

// Breach conditions reported by rule functions. Each maps to a canned
// improvement message under "<category>.<condition>".
const (
	BreachNotMeasured       = "not_measured"
	BreachLCPSlow           = "lcp_slow"
	BreachCLSHigh           = "cls_high"
	BreachTBTHigh           = "tbt_high"
	BreachConsoleErrors     = "console_errors"
	BreachViewportMissing   = "viewport_missing"
	BreachSmallFont         = "small_font"
	BreachFixedWidth        = "fixed_width"
	BreachNoHeading         = "no_heading"
	BreachNoTitle           = "no_title"
	BreachNoMetaDescription = "no_meta_description"
	BreachNoCanonical       = "no_canonical"
	BreachNoAnalytics       = "no_analytics"
)

// DefaultDamping scales the AI score in hybrid categories.
const DefaultDamping = 0.7

const (
	defaultLCPGoodSeconds    = 2.5
	defaultLCPFairSeconds    = 4.0
	defaultCLSGood           = 0.1
	defaultTBTGoodMillis     = 200
	defaultTBTFairMillis     = 300
	defaultMinReadableFontPx = 12
)

// Thresholds are the pass marks used by rule functions.
type Thresholds struct {
	LCPGoodSeconds float64 `mapstructure:"lcp_good_seconds"`
	LCPFairSeconds float64 `mapstructure:"lcp_fair_seconds"`
	CLSGood        float64 `mapstructure:"cls_good"`
	TBTGoodMillis  float64 `mapstructure:"tbt_good_ms"`
	TBTFairMillis  float64 `mapstructure:"tbt_fair_ms"`
	MinFontPx      float64 `mapstructure:"min_font_px"`
}

// RuleConfig parameterizes deterministic scoring.
type RuleConfig struct {
	Damping    float64    `mapstructure:"damping"`
	Thresholds Thresholds `mapstructure:"thresholds"`
}

// DefaultRuleConfig returns the stock thresholds and damping.
func DefaultRuleConfig() RuleConfig {
	return RuleConfig{
		Damping: DefaultDamping,
		Thresholds: Thresholds{
			LCPGoodSeconds: defaultLCPGoodSeconds,
			LCPFairSeconds: defaultLCPFairSeconds,
			CLSGood:        defaultCLSGood,
			TBTGoodMillis:  defaultTBTGoodMillis,
			TBTFairMillis:  defaultTBTFairMillis,
			MinFontPx:      defaultMinReadableFontPx,
		},
	}
}

// normalized fills zero fields from the defaults.
func (c RuleConfig) normalized() RuleConfig {
	d := DefaultRuleConfig()
	if c.Damping <= 0 {
		c.Damping = d.Damping
	}
	t := &c.Thresholds
	if t.LCPGoodSeconds <= 0 {
		t.LCPGoodSeconds = d.Thresholds.LCPGoodSeconds
	}
	if t.LCPFairSeconds <= 0 {
		t.LCPFairSeconds = d.Thresholds.LCPFairSeconds
	}
	if t.CLSGood <= 0 {
		t.CLSGood = d.Thresholds.CLSGood
	}
	if t.TBTGoodMillis <= 0 {
		t.TBTGoodMillis = d.Thresholds.TBTGoodMillis
	}
	if t.TBTFairMillis <= 0 {
		t.TBTFairMillis = d.Thresholds.TBTFairMillis
	}
	if t.MinFontPx <= 0 {
		t.MinFontPx = d.Thresholds.MinFontPx
	}
	return c
}

// RuleOutcome is the deterministic part of a category score.
type RuleOutcome struct {
	Points   float64
	Breaches []string
}

// RuleFunc scores measured evidence for one category.
type RuleFunc func(cfg RuleConfig, ev core.Evidence) RuleOutcome

func performanceRule(cfg RuleConfig, ev core.Evidence) RuleOutcome {
	pe, ok := ev.(*core.PerformanceEvidence)
	if !ok || pe == nil || !pe.Metrics.Measured {
		return RuleOutcome{Breaches: []string{BreachNotMeasured}}
	}
	m := pe.Metrics
	t := cfg.Thresholds
	out := RuleOutcome{}

	switch {
	case m.LCPSeconds <= t.LCPGoodSeconds:
		out.Points += 4
	case m.LCPSeconds <= t.LCPFairSeconds:
		out.Points += 2
		out.Breaches = append(out.Breaches, BreachLCPSlow)
	default:
		out.Breaches = append(out.Breaches, BreachLCPSlow)
	}

	if m.CLS <= t.CLSGood {
		out.Points += 3
	} else {
		out.Breaches = append(out.Breaches, BreachCLSHigh)
	}

	switch {
	case m.TBTMillis <= t.TBTGoodMillis:
		out.Points += 2
	case m.TBTMillis <= t.TBTFairMillis:
		out.Points++
		out.Breaches = append(out.Breaches, BreachTBTHigh)
	default:
		out.Breaches = append(out.Breaches, BreachTBTHigh)
	}

	if m.ConsoleErrors == 0 {
		out.Points++
	} else {
		out.Breaches = append(out.Breaches, BreachConsoleErrors)
	}
	return out
}

func mobileRule(cfg RuleConfig, ev core.Evidence) RuleOutcome {
	m, ok := core.MarkupOf(ev)
	if !ok {
		return RuleOutcome{Breaches: []string{BreachNotMeasured}}
	}
	out := RuleOutcome{}
	if m.HasViewportMeta && m.ResponsiveViewport {
		out.Points += 4
	} else {
		out.Breaches = append(out.Breaches, BreachViewportMissing)
	}
	if readableFont(cfg, m) {
		out.Points += 3
	} else {
		out.Breaches = append(out.Breaches, BreachSmallFont)
	}
	if m.FixedWidthElements == 0 {
		out.Points += 3
	} else {
		out.Breaches = append(out.Breaches, BreachFixedWidth)
	}
	return out
}

func firstViewRule(cfg RuleConfig, ev core.Evidence) RuleOutcome {
	m, ok := core.MarkupOf(ev)
	if !ok {
		return RuleOutcome{Breaches: []string{BreachNotMeasured}}
	}
	out := RuleOutcome{}
	if m.HasHeading {
		out.Points++
	} else {
		out.Breaches = append(out.Breaches, BreachNoHeading)
	}
	if m.HasTitle {
		out.Points++
	} else {
		out.Breaches = append(out.Breaches, BreachNoTitle)
	}
	if readableFont(cfg, m) {
		out.Points++
	} else {
		out.Breaches = append(out.Breaches, BreachSmallFont)
	}
	return out
}

func seoRule(_ RuleConfig, ev core.Evidence) RuleOutcome {
	m, ok := core.MarkupOf(ev)
	if !ok {
		return RuleOutcome{Breaches: []string{BreachNotMeasured}}
	}
	out := RuleOutcome{}
	if m.HasTitle && m.HasMetaDescription {
		out.Points++
	} else {
		out.Breaches = append(out.Breaches, BreachNoMetaDescription)
	}
	if m.HasCanonical {
		out.Points++
	} else {
		out.Breaches = append(out.Breaches, BreachNoCanonical)
	}
	if len(m.AnalyticsTags) > 0 {
		out.Points++
	} else {
		out.Breaches = append(out.Breaches, BreachNoAnalytics)
	}
	return out
}

// An unknown minimum font size counts as readable.
func readableFont(cfg RuleConfig, m core.MarkupSignals) bool {
	return m.MinFontPx == 0 || m.MinFontPx >= cfg.Thresholds.MinFontPx
}
