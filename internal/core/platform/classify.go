// Package platform detects which e-commerce platform serves a storefront
// from host, resource, markup and cookie fingerprints.
package platform

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/storelens/storelens/internal/core"
)

// Input is everything the classifier may look at. Absent fields yield no signals.
type Input struct {
	URL          string
	HTML         string
	ResourceURLs []string
	Headers      http.Header
	Cookies      []string
}

// Classifier scores inputs against a signal table.
type Classifier struct {
	rules Rules
}

// NewClassifier returns a classifier for rules, falling back to DefaultRules
// when rules are empty or invalid.
func NewClassifier(rules Rules) *Classifier {
	if rules.Validate() != nil {
		rules = DefaultRules()
	}
	return &Classifier{rules: rules}
}

// ConfiguredClassifier returns the built-in classifier when rules name no
// platforms and otherwise rejects a table that does not validate. A zero
// threshold takes DefaultThreshold.
func ConfiguredClassifier(rules Rules) (*Classifier, error) {
	if len(rules.Platforms) == 0 {
		return &Classifier{rules: DefaultRules()}, nil
	}
	if rules.Threshold == 0 {
		rules.Threshold = DefaultThreshold
	}
	if err := rules.Validate(); err != nil {
		return nil, fmt.Errorf("platform rules: %w", err)
	}
	return &Classifier{rules: rules}, nil
}

// Classify never fails; malformed input simply contributes no signals.
func (c *Classifier) Classify(in Input) core.PlatformDetectionResult {
	doc := observe(in)

	type candidate struct {
		name    core.Platform
		score   float64
		signals []string
	}
	candidates := make([]candidate, 0, len(c.rules.Platforms))
	for _, p := range c.rules.Platforms {
		cand := candidate{name: p.Name}
		seen := make(map[string]struct{}, len(p.Signals))
		for _, s := range p.Signals {
			if _, ok := seen[s.Name()]; ok {
				continue
			}
			if doc.matches(s) {
				seen[s.Name()] = struct{}{}
				cand.score += s.Weight
				cand.signals = append(cand.signals, s.Name())
			}
		}
		if cand.score > 1 {
			cand.score = 1
		}
		candidates = append(candidates, cand)
	}

	best := -1
	unique := true
	for i, cand := range candidates {
		switch {
		case best < 0 || cand.score > candidates[best].score:
			best = i
			unique = true
		case cand.score == candidates[best].score:
			unique = false
		}
	}

	if best < 0 || candidates[best].score == 0 {
		return core.PlatformDetectionResult{Platform: core.PlatformUnknown, Confidence: 0, Signals: []string{}}
	}

	top := candidates[best]
	if unique && top.score >= c.rules.Threshold {
		return core.PlatformDetectionResult{Platform: top.name, Confidence: top.score, Signals: top.signals}
	}

	union := make([]string, 0)
	for _, cand := range candidates {
		union = append(union, cand.signals...)
	}
	return core.PlatformDetectionResult{Platform: core.PlatformUnknown, Confidence: top.score, Signals: union}
}

type observation struct {
	host      string
	resources []string
	markup    []string
	cookies   []string
}

func observe(in Input) observation {
	obs := observation{}
	if parsed, err := url.Parse(strings.TrimSpace(in.URL)); err == nil {
		obs.host = strings.ToLower(parsed.Hostname())
	}
	for _, r := range in.ResourceURLs {
		obs.resources = append(obs.resources, strings.ToLower(r))
	}
	for _, c := range in.Cookies {
		obs.cookies = append(obs.cookies, cookieName(c))
	}
	for name, values := range in.Headers {
		lower := strings.ToLower(name)
		obs.cookies = append(obs.cookies, lower)
		if lower == "set-cookie" || lower == "cookie" {
			for _, v := range values {
				for _, part := range strings.Split(v, ";") {
					obs.cookies = append(obs.cookies, cookieName(part))
				}
			}
		}
	}
	if in.HTML != "" {
		resources, markup := tokenize(in.HTML)
		obs.resources = append(obs.resources, resources...)
		obs.markup = markup
	}
	return obs
}

func cookieName(raw string) string {
	name, _, _ := strings.Cut(strings.TrimSpace(raw), "=")
	return strings.ToLower(strings.TrimSpace(name))
}

func tokenize(doc string) (resources, markup []string) {
	z := html.NewTokenizer(strings.NewReader(doc))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return resources, markup
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		tok := z.Token()
		for _, attr := range tok.Attr {
			value := strings.ToLower(attr.Val)
			switch attr.Key {
			case "src", "href", "data-src":
				resources = append(resources, value)
			case "class", "id":
				markup = append(markup, value)
			}
		}
	}
}

func (o observation) matches(s Signal) bool {
	pattern := strings.ToLower(strings.TrimSpace(s.Pattern))
	switch s.Channel {
	case ChannelHost:
		return o.host != "" && (o.host == pattern || strings.HasSuffix(o.host, "."+pattern))
	case ChannelScript:
		return containsAny(o.resources, pattern)
	case ChannelMarkup:
		return containsAny(o.markup, pattern)
	case ChannelCookie:
		for _, c := range o.cookies {
			if c == pattern {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func containsAny(values []string, pattern string) bool {
	for _, v := range values {
		if strings.Contains(v, pattern) {
			return true
		}
	}
	return false
}
