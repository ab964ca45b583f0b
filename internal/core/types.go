package core

import (
	"strings"
	"time"
)

// Category identifies one of the fixed audit categories.
type Category string

const (
	CategoryPerformance     Category = "performance"
	CategoryFirstView       Category = "first_view"
	CategoryBrandIdentity   Category = "brand_identity"
	CategoryNavigation      Category = "navigation"
	CategoryPromotions      Category = "promotions"
	CategoryVisuals         Category = "visuals"
	CategoryTrustSignals    Category = "trust_signals"
	CategoryMobileUsability Category = "mobile_usability"
	CategoryPurchaseFlow    Category = "purchase_flow"
	CategorySEOAnalytics    Category = "seo_analytics"
)

// Categories returns every category in report order.
func Categories() []Category {
	return []Category{
		CategoryPerformance,
		CategoryFirstView,
		CategoryBrandIdentity,
		CategoryNavigation,
		CategoryPromotions,
		CategoryVisuals,
		CategoryTrustSignals,
		CategoryMobileUsability,
		CategoryPurchaseFlow,
		CategorySEOAnalytics,
	}
}

// ParseCategory normalizes a category identifier.
func ParseCategory(value string) (Category, bool) {
	normalized := Category(strings.ToLower(strings.TrimSpace(value)))
	for _, c := range Categories() {
		if c == normalized {
			return c, true
		}
	}
	return "", false
}

// ScoreSource records which strategy produced a category score.
type ScoreSource string

const (
	SourceRule   ScoreSource = "rule"
	SourceAI     ScoreSource = "ai"
	SourceHybrid ScoreSource = "hybrid"
)

// Valid reports whether s is a known source.
func (s ScoreSource) Valid() bool {
	switch s {
	case SourceRule, SourceAI, SourceHybrid:
		return true
	default:
		return false
	}
}

const (
	MinScore = 0.0
	MaxScore = 10.0
)

// ClampScore bounds a score to the category range.
func ClampScore(v float64) float64 {
	if v < MinScore {
		return MinScore
	}
	if v > MaxScore {
		return MaxScore
	}
	return v
}

// CategoryResult is the score and supporting data for one category.
type CategoryResult struct {
	Category Category           `json:"id"`
	Score    float64            `json:"score"`
	Source   ScoreSource        `json:"source,omitempty"`
	Metrics  map[string]float64 `json:"metrics,omitempty"`
	Evidence Evidence           `json:"evidence,omitempty"`
	Insights []string           `json:"insights,omitempty"`
}

// Platform identifies a storefront platform.
type Platform string

const (
	PlatformShopify Platform = "shopify"
	PlatformEcforce Platform = "ecforce"
	PlatformUnknown Platform = "unknown"
)

// PlatformDetectionResult is the classifier verdict.
type PlatformDetectionResult struct {
	Platform   Platform `json:"platform"`
	Confidence float64  `json:"confidence"`
	Signals    []string `json:"signals"`
}

// PerformanceMetrics are the lab measurements from a performance audit.
type PerformanceMetrics struct {
	Measured      bool    `json:"measured"`
	LCPSeconds    float64 `json:"lcp_seconds"`
	CLS           float64 `json:"cls"`
	TBTMillis     float64 `json:"tbt_ms"`
	ConsoleErrors int     `json:"console_errors"`
}

// MarkupSignals are DOM heuristics measured from page HTML.
type MarkupSignals struct {
	Measured           bool     `json:"measured"`
	HasViewportMeta    bool     `json:"has_viewport_meta"`
	ResponsiveViewport bool     `json:"responsive_viewport"`
	MinFontPx          float64  `json:"min_font_px,omitempty"`
	FixedWidthElements int      `json:"fixed_width_elements"`
	HasHeading         bool     `json:"has_heading"`
	HasTitle           bool     `json:"has_title"`
	Title              string   `json:"title,omitempty"`
	HasMetaDescription bool     `json:"has_meta_description"`
	HasCanonical       bool     `json:"has_canonical"`
	AnalyticsTags      []string `json:"analytics_tags,omitempty"`
	ImageCount         int      `json:"image_count"`
	ImagesMissingAlt   int      `json:"images_missing_alt"`
	LinkCount          int      `json:"link_count"`
}

// ActionShot is a screenshot captured after a scripted page action.
type ActionShot struct {
	Name       string `json:"name"`
	URL        string `json:"url,omitempty"`
	Success    bool   `json:"success"`
	Screenshot []byte `json:"-"`
}

// Capture is the page material gathered during collection.
type Capture struct {
	Source      string
	FinalURL    string
	HTML        string
	Screenshot  []byte
	Links       []string
	ActionShots []ActionShot
	Headers     map[string][]string
	Cookies     []string
}

// Usable reports whether the capture holds anything later stages can use.
func (c *Capture) Usable() bool {
	return c != nil && (strings.TrimSpace(c.HTML) != "" || len(c.Screenshot) > 0)
}

// FlowStep is one step of the traced purchase flow.
type FlowStep struct {
	Name    string `json:"name"`
	URL     string `json:"url,omitempty"`
	Success bool   `json:"success"`
}

// Artifact locates a rendered or uploaded report output.
type Artifact struct {
	Kind     string `json:"kind"`
	Format   string `json:"format,omitempty"`
	Location string `json:"location"`
}

// AuditResult is the completed output of an audit run.
type AuditResult struct {
	Run          AuditRun                `json:"run"`
	Categories   []CategoryResult        `json:"categories"`
	Improvements map[Category][]string   `json:"improvements,omitempty"`
	Platform     PlatformDetectionResult `json:"platform"`
	PurchaseFlow []FlowStep              `json:"purchase_flow,omitempty"`
	Artifacts    []Artifact              `json:"artifacts,omitempty"`
	Degraded     []string                `json:"degraded,omitempty"`
	GeneratedAt  time.Time               `json:"generated_at"`
}

// Category returns the result for c, if present.
func (r *AuditResult) Category(c Category) (CategoryResult, bool) {
	if r == nil {
		return CategoryResult{}, false
	}
	for _, cr := range r.Categories {
		if cr.Category == c {
			return cr, true
		}
	}
	return CategoryResult{}, false
}
