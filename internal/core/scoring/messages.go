package scoring

import (
	"strings"

	"github.com/storelens/storelens/internal/core"
)

// EvidenceShortageInsight leads the improvements of a category whose score
// was withheld for lack of evidence.
const EvidenceShortageInsight = "Evidence was insufficient to verify this category; the score was withheld."

const genericMessage = "Review this area against storefront best practices."

// Messages maps "<category>.<condition>" to a canned improvement.
type Messages map[string]string

// DefaultMessages returns the built-in improvement texts.
func DefaultMessages() Messages {
	return Messages{
		"performance.not_measured":          "Performance could not be measured; rerun the audit once the page is reachable.",
		"performance.lcp_slow":              "Speed up the largest above-the-fold element: compress the hero image and preload it.",
		"performance.cls_high":              "Reserve space for images, banners and embeds to stop layout shifts.",
		"performance.tbt_high":              "Split or defer heavy JavaScript to reduce main-thread blocking.",
		"performance.console_errors":        "Fix the JavaScript errors logged to the console on page load.",
		"mobile_usability.viewport_missing": "Add a responsive viewport meta tag (width=device-width).",
		"mobile_usability.small_font":       "Raise body text to at least 12px on mobile.",
		"mobile_usability.fixed_width":      "Replace fixed pixel widths with fluid layouts so content fits small screens.",
		"first_view.no_heading":             "Add a clear H1 that states what the store sells.",
		"first_view.no_title":               "Give the page a descriptive <title>.",
		"first_view.small_font":             "Make first-view copy readable without zooming.",
		"first_view.not_measured":           "Page markup was unavailable; first-view structure could not be checked.",
		"seo_analytics.no_meta_description": "Write a meta description that summarizes the store offer.",
		"seo_analytics.no_canonical":        "Declare a canonical URL to avoid duplicate-content dilution.",
		"seo_analytics.no_analytics":        "Install an analytics tag (GA4 or GTM) to measure conversion.",
		"seo_analytics.not_measured":        "Page markup was unavailable; SEO tags could not be checked.",
	}
}

// merged overlays m onto the defaults.
func (m Messages) merged() Messages {
	out := DefaultMessages()
	for k, v := range m {
		key := strings.ToLower(strings.TrimSpace(k))
		if key == "" || strings.TrimSpace(v) == "" {
			continue
		}
		out[key] = v
	}
	return out
}

// Lookup returns the message for a breach, or a generic fallback.
func (m Messages) Lookup(c core.Category, condition string) string {
	if msg, ok := m[string(c)+"."+condition]; ok {
		return msg
	}
	if msg, ok := m["default"]; ok {
		return msg
	}
	return genericMessage
}
