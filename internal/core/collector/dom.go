package collector

import (
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/storelens/storelens/internal/core"
)

// Elements wider than this in CSS pixels cannot fit a phone viewport.
const fixedWidthPx = 480

const maxLinks = 200

var (
	fontSizePattern = regexp.MustCompile(`font-size\s*:\s*(\d+(?:\.\d+)?)px`)
	widthPattern    = regexp.MustCompile(`(?:^|[;{\s])(?:min-)?width\s*:\s*(\d+(?:\.\d+)?)px`)
)

type analyticsSignature struct {
	tag    string
	src    string
	inline string
}

var analyticsSignatures = []analyticsSignature{
	{tag: "ga4", src: "googletagmanager.com/gtag/js", inline: "gtag("},
	{tag: "gtm", src: "googletagmanager.com/gtm.js", inline: "gtm-"},
	{tag: "universal_analytics", src: "google-analytics.com/analytics.js", inline: "googleanalyticsobject"},
	{tag: "meta_pixel", src: "connect.facebook.net", inline: "fbq("},
}

// DOMAnalyzer measures mobile, first-view and SEO heuristics from HTML.
type DOMAnalyzer struct{}

// Analyze parses doc. Unparseable markup yields an unmeasured result.
func (DOMAnalyzer) Analyze(doc string) (core.MarkupSignals, error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return core.MarkupSignals{}, err
	}

	w := &domWalker{tags: map[string]struct{}{}}
	w.walk(root)

	signals := w.signals
	signals.Measured = true
	signals.AnalyticsTags = make([]string, 0, len(w.tags))
	for tag := range w.tags {
		signals.AnalyticsTags = append(signals.AnalyticsTags, tag)
	}
	sort.Strings(signals.AnalyticsTags)
	return signals, nil
}

type domWalker struct {
	signals core.MarkupSignals
	tags    map[string]struct{}
}

func (w *domWalker) walk(n *html.Node) {
	if n.Type == html.ElementNode {
		w.element(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
}

func (w *domWalker) element(n *html.Node) {
	s := &w.signals
	if style := attr(n, "style"); style != "" {
		w.styles(style)
	}

	switch n.DataAtom {
	case atom.Meta:
		name := strings.ToLower(attr(n, "name"))
		content := strings.ToLower(attr(n, "content"))
		switch name {
		case "viewport":
			s.HasViewportMeta = true
			s.ResponsiveViewport = strings.Contains(strings.ReplaceAll(content, " ", ""), "width=device-width")
		case "description":
			s.HasMetaDescription = strings.TrimSpace(content) != ""
		}
	case atom.Title:
		title := strings.TrimSpace(text(n))
		if title != "" {
			s.HasTitle = true
			s.Title = title
		}
	case atom.H1:
		s.HasHeading = true
	case atom.Link:
		if hasToken(attr(n, "rel"), "canonical") && attr(n, "href") != "" {
			s.HasCanonical = true
		}
	case atom.Img:
		s.ImageCount++
		if _, ok := attrOK(n, "alt"); !ok {
			s.ImagesMissingAlt++
		}
	case atom.A:
		if attr(n, "href") != "" {
			s.LinkCount++
		}
	case atom.Style:
		w.styles(text(n))
	case atom.Script:
		w.script(strings.ToLower(attr(n, "src")), strings.ToLower(text(n)))
	case atom.Table, atom.Div:
		if v, err := strconv.ParseFloat(strings.TrimSuffix(attr(n, "width"), "px"), 64); err == nil && v > fixedWidthPx {
			s.FixedWidthElements++
		}
	}
}

func (w *domWalker) styles(css string) {
	s := &w.signals
	for _, m := range fontSizePattern.FindAllStringSubmatch(css, -1) {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil || v <= 0 {
			continue
		}
		if s.MinFontPx == 0 || v < s.MinFontPx {
			s.MinFontPx = v
		}
	}
	for _, m := range widthPattern.FindAllStringSubmatch(css, -1) {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil && v > fixedWidthPx {
			s.FixedWidthElements++
		}
	}
}

func (w *domWalker) script(src, body string) {
	for _, sig := range analyticsSignatures {
		if (src != "" && strings.Contains(src, sig.src)) || (body != "" && strings.Contains(body, sig.inline)) {
			w.tags[sig.tag] = struct{}{}
		}
	}
}

// ExtractLinks returns absolute http(s) anchor targets of doc, deduplicated.
func ExtractLinks(doc, base string) []string {
	baseURL, err := url.Parse(base)
	if err != nil {
		baseURL = &url.URL{}
	}
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return nil
	}
	seen := map[string]struct{}{}
	links := make([]string, 0)
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if len(links) >= maxLinks {
			return
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			if href := strings.TrimSpace(attr(n, "href")); href != "" {
				if ref, err := url.Parse(href); err == nil {
					abs := baseURL.ResolveReference(ref)
					abs.Fragment = ""
					if abs.Scheme == "http" || abs.Scheme == "https" {
						key := abs.String()
						if _, ok := seen[key]; !ok {
							seen[key] = struct{}{}
							links = append(links, key)
						}
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(root)
	return links
}

func attr(n *html.Node, key string) string {
	v, _ := attrOK(n, key)
	return v
}

func attrOK(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

func text(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

func hasToken(value, token string) bool {
	for _, f := range strings.Fields(strings.ToLower(value)) {
		if f == token {
			return true
		}
	}
	return false
}
